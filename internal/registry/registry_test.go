package registry

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"rss_watch/internal/model"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "already normal", raw: "https://example.com/rss", want: "https://example.com/rss"},
		{name: "trims spaces", raw: "  https://example.com/rss\n", want: "https://example.com/rss"},
		{name: "lowercases host and scheme", raw: "HTTPS://Example.COM/Feed", want: "https://example.com/Feed"},
		{name: "keeps port", raw: "http://Example.com:8080/rss", want: "http://example.com:8080/rss"},
		{name: "drops fragment", raw: "https://example.com/rss#top", want: "https://example.com/rss"},
		{name: "keeps query", raw: "https://example.com/rss?cat=go", want: "https://example.com/rss?cat=go"},
		{name: "ftp rejected", raw: "ftp://example.com/rss", wantErr: true},
		{name: "no scheme", raw: "example.com/rss", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
		{name: "missing host", raw: "https:///rss", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeURL(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidURL) {
					t.Fatalf("expected ErrInvalidURL, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("NormalizeURL mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFeeds(t *testing.T) {
	r := New(nil, nil)

	if !r.AddFeed("https://b.com/rss") {
		t.Fatal("first add should succeed")
	}
	if !r.AddFeed("https://a.com/rss") {
		t.Fatal("second feed should be added")
	}
	if r.AddFeed("HTTPS://B.com/rss#x") {
		t.Error("normalized duplicate must be rejected")
	}

	if diff := cmp.Diff([]string{"https://b.com/rss", "https://a.com/rss"}, r.Feeds()); diff != "" {
		t.Errorf("Feeds mismatch (-want +got):\n%s", diff)
	}
	if !r.HasFeed("https://A.com/rss") {
		t.Error("HasFeed should compare normalized URLs")
	}

	if !r.RemoveFeed("https://b.com/rss") {
		t.Error("remove existing feed should succeed")
	}
	if r.RemoveFeed("https://b.com/rss") {
		t.Error("second remove should report not found")
	}
	if diff := cmp.Diff([]string{"https://a.com/rss"}, r.Feeds()); diff != "" {
		t.Errorf("Feeds after remove mismatch (-want +got):\n%s", diff)
	}

	if !r.AddFeed("https://b.com/rss") {
		t.Error("re-adding a removed feed should succeed")
	}
	if diff := cmp.Diff([]string{"https://a.com/rss", "https://b.com/rss"}, r.Feeds()); diff != "" {
		t.Errorf("re-added feed goes last (-want +got):\n%s", diff)
	}
}

func TestFeedsReturnsCopy(t *testing.T) {
	r := New([]string{"https://a.com/rss"}, nil)
	got := r.Feeds()
	got[0] = "mutated"
	if diff := cmp.Diff([]string{"https://a.com/rss"}, r.Feeds()); diff != "" {
		t.Errorf("registry leaked its slice (-want +got):\n%s", diff)
	}
}

func TestSubscribers(t *testing.T) {
	r := New(nil, []model.Subscriber{10, 20, 10})
	if diff := cmp.Diff([]model.Subscriber{10, 20}, r.Subscribers()); diff != "" {
		t.Fatalf("New should drop duplicates (-want +got):\n%s", diff)
	}

	if r.AddSubscriber(20) {
		t.Error("duplicate subscriber must be rejected")
	}
	if !r.AddSubscriber(30) {
		t.Error("new subscriber should be added")
	}
	if !r.RemoveSubscriber(10) {
		t.Error("remove existing subscriber should succeed")
	}
	if r.RemoveSubscriber(10) {
		t.Error("second remove should report not found")
	}
	if diff := cmp.Diff([]model.Subscriber{20, 30}, r.Subscribers()); diff != "" {
		t.Errorf("Subscribers mismatch (-want +got):\n%s", diff)
	}
}
