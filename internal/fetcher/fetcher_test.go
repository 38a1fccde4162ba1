package fetcher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mmcdole/gofeed"
)

type mockTransport struct {
	body       string
	statusCode int
	err        error
}

func (m *mockTransport) Do(_ *http.Request) (*http.Response, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

// hangingTransport blocks until the request context is done.
type hangingTransport struct{}

func (hangingTransport) Do(req *http.Request) (*http.Response, error) {
	<-req.Context().Done()
	return nil, req.Context().Err()
}

func loadFixture(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path) //nolint:gosec // test-only fixture loading
	if err != nil {
		t.Fatalf("read fixture %s: %v", path, err)
	}
	return string(data)
}

func TestFetch(t *testing.T) {
	xml := loadFixture(t, "../../testdata/sample.xml")

	tests := []struct {
		name      string
		transport *mockTransport
		wantIDs   []string
		wantErr   bool
	}{
		{
			name:      "successful fetch",
			transport: &mockTransport{body: xml, statusCode: 200},
			wantIDs:   []string{"item-1", "item-2", "item-3", "item-4", "item-5"},
		},
		{
			name:      "http error status",
			transport: &mockTransport{body: "not found", statusCode: 404},
			wantErr:   true,
		},
		{
			name:      "network error",
			transport: &mockTransport{err: io.ErrUnexpectedEOF},
			wantErr:   true,
		},
		{
			name:      "invalid xml",
			transport: &mockTransport{body: "not xml at all", statusCode: 200},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.transport)
			posts, err := f.Fetch(context.Background(), "https://example.com/rss")

			if tt.wantErr {
				var fetchErr *FetchError
				if !errors.As(err, &fetchErr) {
					t.Fatalf("expected *FetchError, got %v", err)
				}
				if diff := cmp.Diff("https://example.com/rss", fetchErr.URL); diff != "" {
					t.Errorf("error URL mismatch (-want +got):\n%s", diff)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			var gotIDs []string
			for _, p := range posts {
				gotIDs = append(gotIDs, p.ID)
			}
			if diff := cmp.Diff(tt.wantIDs, gotIDs); diff != "" {
				t.Errorf("post IDs mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFetchPostFields(t *testing.T) {
	f := New(&mockTransport{body: loadFixture(t, "../../testdata/sample.xml"), statusCode: 200})
	posts, err := f.Fetch(context.Background(), "https://devops.example.com/rss")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	first := posts[0]
	if diff := cmp.Diff("Kubernetes 1.32 Released", first.Title); diff != "" {
		t.Errorf("title mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("https://devops.example.com/k8s-1-32", first.Link); diff != "" {
		t.Errorf("link mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("https://devops.example.com/rss", first.Feed); diff != "" {
		t.Errorf("feed mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("The new release brings sidecar containers to GA.", first.Summary); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
	if first.Published == nil {
		t.Fatal("expected published time")
	}
	want := time.Date(2024, 12, 9, 10, 0, 0, 0, time.UTC)
	if !first.Published.Equal(want) {
		t.Errorf("published = %v, want %v", first.Published, want)
	}
}

func TestFetchAtom(t *testing.T) {
	f := New(&mockTransport{body: loadFixture(t, "../../testdata/atom.xml"), statusCode: 200})
	posts, err := f.Fetch(context.Background(), "https://status.example.com/feed.atom")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if diff := cmp.Diff(2, len(posts)); diff != "" {
		t.Fatalf("post count mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("urn:incident:2", posts[0].ID); diff != "" {
		t.Errorf("entry id mismatch (-want +got):\n%s", diff)
	}
	if !strings.HasPrefix(posts[1].ID, "sha256:") {
		t.Errorf("entry without id should get a hash, got %q", posts[1].ID)
	}

	again, err := f.Fetch(context.Background(), "https://status.example.com/feed.atom")
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if diff := cmp.Diff(posts[1].ID, again[1].ID); diff != "" {
		t.Errorf("hash not stable across fetches (-want +got):\n%s", diff)
	}
}

func TestFetchTimeout(t *testing.T) {
	f := New(hangingTransport{})
	f.SetTimeout(20 * time.Millisecond)

	done := make(chan error, 1)
	go func() {
		_, err := f.Fetch(context.Background(), "https://slow.example.com/rss")
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Fetch did not honour its timeout")
	}
}

func TestPostID(t *testing.T) {
	tests := []struct {
		name     string
		item     *gofeed.Item
		wantGUID string
		hasHash  bool
	}{
		{
			name:     "with guid",
			item:     &gofeed.Item{GUID: "abc-123"},
			wantGUID: "abc-123",
		},
		{
			name:     "guid is trimmed",
			item:     &gofeed.Item{GUID: "  abc-123\n"},
			wantGUID: "abc-123",
		},
		{
			name:    "without guid generates hash",
			item:    &gofeed.Item{Title: "Post Without GUID", Link: "https://example.com/post-1"},
			hasHash: true,
		},
		{
			name:    "description only",
			item:    &gofeed.Item{Description: "Just a body"},
			hasHash: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PostID(tt.item)
			if tt.hasHash {
				if !strings.HasPrefix(got, "sha256:") {
					t.Errorf("expected sha256 prefix, got %q", got)
				}
				return
			}
			if diff := cmp.Diff(tt.wantGUID, got); diff != "" {
				t.Errorf("GUID mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSummary(t *testing.T) {
	tests := []struct {
		name string
		item *gofeed.Item
		want string
	}{
		{
			name: "plain description",
			item: &gofeed.Item{Description: "  Release notes  "},
			want: "Release notes",
		},
		{
			name: "html is reduced to text",
			item: &gofeed.Item{Description: "<p>Fixes <b>CVE-2024-1</b> &amp; more.</p>\n<p>Upgrade now.</p>"},
			want: "Fixes CVE-2024-1 & more. Upgrade now.",
		},
		{
			name: "content used when description is empty",
			item: &gofeed.Item{Content: "<div>Full   body</div>"},
			want: "Full body",
		},
		{
			name: "empty",
			item: &gofeed.Item{},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, summary(tt.item)); diff != "" {
				t.Errorf("summary mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPostIDDeterministic(t *testing.T) {
	a := &gofeed.Item{Title: "Same", Link: "https://example.com/same"}
	b := &gofeed.Item{Title: "Same", Link: "https://example.com/same", Description: "changed body"}
	c := &gofeed.Item{Title: "Other", Link: "https://example.com/same"}

	if PostID(a) != PostID(b) {
		t.Error("hash should depend only on link and title")
	}
	if PostID(a) == PostID(c) {
		t.Error("different titles should produce different hashes")
	}
	if PostID(&gofeed.Item{Description: "x"}) == PostID(&gofeed.Item{Description: "y"}) {
		t.Error("description fallback should distinguish bodies")
	}
}
