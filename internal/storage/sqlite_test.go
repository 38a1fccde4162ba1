package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"rss_watch/internal/model"
)

func countRows(t *testing.T, s *SQLite, table string) int {
	t.Helper()
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestSQLiteMigrationsApplied(t *testing.T) {
	s := newTestSQLite(t)

	var version int64
	if err := s.db.QueryRow(`SELECT MAX(version_id) FROM goose_db_version`).Scan(&version); err != nil {
		t.Fatalf("read goose version: %v", err)
	}
	if diff := cmp.Diff(int64(2), version); diff != "" {
		t.Errorf("schema version mismatch (-want +got):\n%s", diff)
	}

	for _, table := range []string{"feeds", "seen_sets", "seen_posts", "subscribers", "state_meta"} {
		if diff := cmp.Diff(0, countRows(t, s, table)); diff != "" {
			t.Errorf("%s should start empty (-want +got):\n%s", table, diff)
		}
	}
}

func TestSQLiteMigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	for i := 0; i < 2; i++ {
		s, err := NewSQLite(path)
		if err != nil {
			t.Fatalf("open #%d: %v", i+1, err)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("close #%d: %v", i+1, err)
		}
	}
}

func TestSQLiteRows(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	st := model.State{
		Feeds: []string{"https://a.com/rss", "https://b.com/rss"},
		Seen: map[string][]string{
			"https://a.com/rss": {"1", "2", "2"},
			"https://b.com/rss": {},
		},
		Subscribers: []model.Subscriber{10, 20, 10},
	}
	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("save: %v", err)
	}

	tests := []struct {
		table string
		want  int
	}{
		{"feeds", 2},
		{"seen_sets", 2},
		{"seen_posts", 2},
		{"subscribers", 2},
		{"state_meta", 1},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, countRows(t, s, tt.table)); diff != "" {
			t.Errorf("%s row count (-want +got):\n%s", tt.table, diff)
		}
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := model.State{
		Feeds: []string{"https://a.com/rss", "https://b.com/rss"},
		Seen: map[string][]string{
			"https://a.com/rss": {"1", "2"},
			"https://b.com/rss": {},
		},
		Subscribers: []model.Subscriber{10, 20},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("duplicates should collapse (-want +got):\n%s", diff)
	}
}

func TestSQLiteSavedEmptyStateIsFound(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	if _, err := s.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before save, got %v", err)
	}
	if err := s.Save(ctx, model.NewState()); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("saved empty state must load: %v", err)
	}
	if diff := cmp.Diff(model.NewState(), got); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLiteSaveCancelledKeepsPrevious(t *testing.T) {
	s := newTestSQLite(t)
	want := roundTripCases()[2].state
	if err := s.Save(context.Background(), want); err != nil {
		t.Fatalf("save: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Save(ctx, model.NewState()); err == nil {
		t.Fatal("expected error from cancelled save")
	}

	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("failed save must not change stored state (-want +got):\n%s", diff)
	}
}
