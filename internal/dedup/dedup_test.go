package dedup

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"rss_watch/internal/model"
)

const feedA = "https://a.example.com/rss"

func posts(ids ...string) []model.Post {
	out := make([]model.Post, len(ids))
	for i, id := range ids {
		out[i] = model.Post{ID: id, Title: "Post " + id}
	}
	return out
}

func TestFilterNewThenMarkSeenIsIdempotent(t *testing.T) {
	tests := []struct {
		name  string
		seed  []string
		input []model.Post
		want  []string
	}{
		{name: "single post", input: posts("1"), want: []string{"1"}},
		{name: "several posts", input: posts("1", "2", "3"), want: []string{"1", "2", "3"}},
		{name: "partly seen", seed: []string{"2"}, input: posts("1", "2", "3"), want: []string{"1", "3"}},
		{name: "duplicates in batch", input: posts("1", "1", "2"), want: []string{"1", "2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			s.MarkSeen(feedA, tt.seed)

			first := s.FilterNew(feedA, tt.input)
			if diff := cmp.Diff(tt.want, IDs(first)); diff != "" {
				t.Fatalf("first FilterNew mismatch (-want +got):\n%s", diff)
			}
			s.MarkSeen(feedA, IDs(first))

			second := s.FilterNew(feedA, tt.input)
			if len(second) != 0 {
				t.Errorf("second FilterNew should be empty, got %v", IDs(second))
			}
			if added := s.MarkSeen(feedA, IDs(second)); added != 0 {
				t.Errorf("second MarkSeen added %d ids", added)
			}
		})
	}
}

func TestFilterNewIsPure(t *testing.T) {
	s := New()
	in := posts("1", "2")
	_ = s.FilterNew(feedA, in)
	_ = s.FilterNew(feedA, in)

	if s.Known(feedA) {
		t.Error("FilterNew must not create a seen set")
	}
	if diff := cmp.Diff([]string{"1", "2"}, IDs(s.FilterNew(feedA, in))); diff != "" {
		t.Errorf("FilterNew mismatch (-want +got):\n%s", diff)
	}
}

func TestSeenSetsArePerFeed(t *testing.T) {
	s := New()
	s.MarkSeen(feedA, []string{"1"})

	got := s.FilterNew("https://b.example.com/rss", posts("1"))
	if diff := cmp.Diff([]string{"1"}, IDs(got)); diff != "" {
		t.Errorf("other feed should still see the post (-want +got):\n%s", diff)
	}
}

func TestMarkSeenIdempotent(t *testing.T) {
	s := New()
	if got := s.MarkSeen(feedA, []string{"1", "2"}); got != 2 {
		t.Errorf("first MarkSeen added %d, want 2", got)
	}
	if got := s.MarkSeen(feedA, []string{"1", "2", "3"}); got != 1 {
		t.Errorf("second MarkSeen added %d, want 1", got)
	}
	if diff := cmp.Diff(3, s.Count(feedA)); diff != "" {
		t.Errorf("count mismatch (-want +got):\n%s", diff)
	}
}

func TestKnown(t *testing.T) {
	s := New()
	if s.Known(feedA) {
		t.Fatal("new store should not know any feed")
	}
	s.MarkSeen(feedA, nil)
	if !s.Known(feedA) {
		t.Fatal("MarkSeen with no ids should still create an empty set")
	}
	if s.Count(feedA) != 0 {
		t.Errorf("expected empty set, got %d", s.Count(feedA))
	}
}

func TestReset(t *testing.T) {
	s := New()
	s.MarkSeen(feedA, []string{"1", "2"})
	s.Reset(feedA)

	if s.Known(feedA) {
		t.Error("feed should be unknown after reset")
	}
	got := s.FilterNew(feedA, posts("1", "2"))
	if diff := cmp.Diff([]string{"1", "2"}, IDs(got)); diff != "" {
		t.Errorf("after reset all posts are new (-want +got):\n%s", diff)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := New()
	s.MarkSeen(feedA, []string{"b", "a", "c"})
	s.MarkSeen("https://empty.example.com/rss", nil)

	snap := s.Snapshot()
	want := map[string][]string{
		feedA:                            {"a", "b", "c"},
		"https://empty.example.com/rss": {},
	}
	if diff := cmp.Diff(want, snap); diff != "" {
		t.Fatalf("Snapshot mismatch (-want +got):\n%s", diff)
	}

	restored := FromSnapshot(snap)
	if diff := cmp.Diff(snap, restored.Snapshot()); diff != "" {
		t.Errorf("FromSnapshot round trip mismatch (-want +got):\n%s", diff)
	}
	if !restored.Known("https://empty.example.com/rss") {
		t.Error("empty seen set must survive a snapshot round trip")
	}
}

func TestNoDuplicateAcrossManyCycles(t *testing.T) {
	s := New()
	notified := map[string]int{}
	for cycle := 0; cycle < 5; cycle++ {
		var ids []string
		for i := 0; i <= cycle; i++ {
			ids = append(ids, fmt.Sprintf("p%d", i))
		}
		fresh := s.FilterNew(feedA, posts(ids...))
		for _, p := range fresh {
			notified[p.ID]++
		}
		s.MarkSeen(feedA, IDs(fresh))
	}
	for id, n := range notified {
		if n != 1 {
			t.Errorf("post %s notified %d times", id, n)
		}
	}
	if diff := cmp.Diff(5, len(notified)); diff != "" {
		t.Errorf("notified count mismatch (-want +got):\n%s", diff)
	}
}
