package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"rss_watch/internal/model"
	"rss_watch/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Persister backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Load reads the full state. It returns ErrNotFound if Save was never called.
func (s *SQLite) Load(ctx context.Context) (model.State, error) {
	var savedAt string
	err := s.db.QueryRowContext(ctx, `SELECT saved_at FROM state_meta WHERE id = 1`).Scan(&savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.State{}, ErrNotFound
	}
	if err != nil {
		return model.State{}, fmt.Errorf("read state meta: %w", err)
	}

	st := model.NewState()

	st.Feeds, err = queryStrings(ctx, s.db, `SELECT url FROM feeds ORDER BY position`)
	if err != nil {
		return model.State{}, fmt.Errorf("query feeds: %w", err)
	}

	sets, err := queryStrings(ctx, s.db, `SELECT feed_url FROM seen_sets`)
	if err != nil {
		return model.State{}, fmt.Errorf("query seen sets: %w", err)
	}
	for _, feed := range sets {
		st.Seen[feed] = []string{}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT feed_url, post_id FROM seen_posts ORDER BY feed_url, post_id`)
	if err != nil {
		return model.State{}, fmt.Errorf("query seen posts: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var feed, id string
		if err := rows.Scan(&feed, &id); err != nil {
			return model.State{}, fmt.Errorf("scan seen post: %w", err)
		}
		st.Seen[feed] = append(st.Seen[feed], id)
	}
	if err := rows.Err(); err != nil {
		return model.State{}, fmt.Errorf("iterate seen posts: %w", err)
	}

	subRows, err := s.db.QueryContext(ctx, `SELECT chat_id FROM subscribers ORDER BY position`)
	if err != nil {
		return model.State{}, fmt.Errorf("query subscribers: %w", err)
	}
	defer func() { _ = subRows.Close() }()
	for subRows.Next() {
		var id int64
		if err := subRows.Scan(&id); err != nil {
			return model.State{}, fmt.Errorf("scan subscriber: %w", err)
		}
		st.Subscribers = append(st.Subscribers, id)
	}
	if err := subRows.Err(); err != nil {
		return model.State{}, fmt.Errorf("iterate subscribers: %w", err)
	}

	st.Normalize()
	return st, nil
}

// Save replaces the stored state in a single transaction.
func (s *SQLite) Save(ctx context.Context, st model.State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"feeds", "seen_sets", "seen_posts", "subscribers"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for i, url := range st.Feeds {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO feeds (position, url) VALUES (?, ?)`, i, url,
		); err != nil {
			return fmt.Errorf("insert feed: %w", err)
		}
	}

	for feed, ids := range st.Seen {
		if _, err := tx.ExecContext(ctx, `INSERT INTO seen_sets (feed_url) VALUES (?)`, feed); err != nil {
			return fmt.Errorf("insert seen set: %w", err)
		}
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO seen_posts (feed_url, post_id) VALUES (?, ?)`, feed, id,
			); err != nil {
				return fmt.Errorf("insert seen post: %w", err)
			}
		}
	}

	for i, id := range st.Subscribers {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO subscribers (position, chat_id) VALUES (?, ?)`, i, id,
		); err != nil {
			return fmt.Errorf("insert subscriber: %w", err)
		}
	}

	now := time.Now().UTC().Format(timeLayout)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO state_meta (id, saved_at) VALUES (1, ?)
		 ON CONFLICT (id) DO UPDATE SET saved_at = excluded.saved_at`, now,
	); err != nil {
		return fmt.Errorf("update state meta: %w", err)
	}

	return tx.Commit()
}

func queryStrings(ctx context.Context, db *sql.DB, query string) ([]string, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
