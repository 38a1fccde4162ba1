// Package dedup tracks which posts have already been notified, per feed.
//
// A Store is not safe for concurrent use; callers serialize access
// (see state.Manager).
package dedup

import (
	"slices"

	"rss_watch/internal/model"
)

// Store maps a feed URL to the set of post IDs already notified for it.
// A feed with no entry has never been seeded, which is different from a
// feed whose set is empty.
type Store struct {
	seen map[string]map[string]struct{}
}

// New returns an empty Store.
func New() *Store {
	return &Store{seen: make(map[string]map[string]struct{})}
}

// FromSnapshot builds a Store from persisted seen lists.
func FromSnapshot(snap map[string][]string) *Store {
	s := New()
	for feed, ids := range snap {
		set := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		s.seen[feed] = set
	}
	return s
}

// Known reports whether feed has a seen set.
func (s *Store) Known(feed string) bool {
	_, ok := s.seen[feed]
	return ok
}

// FilterNew returns the posts whose ID has not been seen for feed, in input
// order. Repeated IDs within posts are returned once.
func (s *Store) FilterNew(feed string, posts []model.Post) []model.Post {
	set := s.seen[feed]
	batch := make(map[string]struct{}, len(posts))
	var out []model.Post
	for _, p := range posts {
		if _, ok := set[p.ID]; ok {
			continue
		}
		if _, ok := batch[p.ID]; ok {
			continue
		}
		batch[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}

// MarkSeen adds ids to the seen set of feed, creating it if needed.
// It returns how many IDs were not already present.
func (s *Store) MarkSeen(feed string, ids []string) int {
	set, ok := s.seen[feed]
	if !ok {
		set = make(map[string]struct{}, len(ids))
		s.seen[feed] = set
	}
	added := 0
	for _, id := range ids {
		if _, ok := set[id]; ok {
			continue
		}
		set[id] = struct{}{}
		added++
	}
	return added
}

// Reset forgets everything seen for feed.
func (s *Store) Reset(feed string) {
	delete(s.seen, feed)
}

// Count returns the number of IDs seen for feed.
func (s *Store) Count(feed string) int {
	return len(s.seen[feed])
}

// Snapshot returns the seen sets as sorted ID lists.
func (s *Store) Snapshot() map[string][]string {
	out := make(map[string][]string, len(s.seen))
	for feed, set := range s.seen {
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		out[feed] = ids
	}
	return out
}

// IDs returns the identifiers of posts.
func IDs(posts []model.Post) []string {
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	return ids
}
