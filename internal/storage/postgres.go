package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rss_watch/internal/model"
)

// Postgres implements Persister backed by a PostgreSQL database.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to connStr and creates the schema if needed.
func NewPostgres(ctx context.Context, connStr string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	p := &Postgres{pool: pool}
	if err := p.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) initSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS feeds (
			position INTEGER NOT NULL,
			url      TEXT    PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS seen_sets (
			feed_url TEXT PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS seen_posts (
			feed_url TEXT NOT NULL,
			post_id  TEXT NOT NULL,
			PRIMARY KEY (feed_url, post_id)
		)`,
		`CREATE TABLE IF NOT EXISTS subscribers (
			position INTEGER NOT NULL,
			chat_id  BIGINT  PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS state_meta (
			id       INTEGER     PRIMARY KEY CHECK (id = 1),
			saved_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, q := range queries {
		if _, err := p.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// Load reads the full state. It returns ErrNotFound if Save was never called.
func (p *Postgres) Load(ctx context.Context) (model.State, error) {
	var savedAt time.Time
	err := p.pool.QueryRow(ctx, `SELECT saved_at FROM state_meta WHERE id = 1`).Scan(&savedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.State{}, ErrNotFound
	}
	if err != nil {
		return model.State{}, fmt.Errorf("read state meta: %w", err)
	}

	st := model.NewState()

	rows, _ := p.pool.Query(ctx, `SELECT url FROM feeds ORDER BY position`)
	st.Feeds, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return model.State{}, fmt.Errorf("query feeds: %w", err)
	}

	rows, _ = p.pool.Query(ctx, `SELECT feed_url FROM seen_sets`)
	sets, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return model.State{}, fmt.Errorf("query seen sets: %w", err)
	}
	for _, feed := range sets {
		st.Seen[feed] = []string{}
	}

	rows, _ = p.pool.Query(ctx, `SELECT feed_url, post_id FROM seen_posts ORDER BY feed_url, post_id`)
	var feed, id string
	_, err = pgx.ForEachRow(rows, []any{&feed, &id}, func() error {
		st.Seen[feed] = append(st.Seen[feed], id)
		return nil
	})
	if err != nil {
		return model.State{}, fmt.Errorf("query seen posts: %w", err)
	}

	rows, _ = p.pool.Query(ctx, `SELECT chat_id FROM subscribers ORDER BY position`)
	st.Subscribers, err = pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return model.State{}, fmt.Errorf("query subscribers: %w", err)
	}

	st.Normalize()
	return st, nil
}

// Save replaces the stored state in a single transaction.
func (p *Postgres) Save(ctx context.Context, st model.State) error {
	st = st.Clone()
	st.Normalize()

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `TRUNCATE feeds, seen_sets, seen_posts, subscribers`); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}

	feedRows := make([][]any, 0, len(st.Feeds))
	seenFeeds := make(map[string]struct{}, len(st.Feeds))
	for i, url := range st.Feeds {
		if _, ok := seenFeeds[url]; ok {
			continue
		}
		seenFeeds[url] = struct{}{}
		feedRows = append(feedRows, []any{i, url})
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"feeds"}, []string{"position", "url"}, pgx.CopyFromRows(feedRows)); err != nil {
		return fmt.Errorf("copy feeds: %w", err)
	}

	setRows := make([][]any, 0, len(st.Seen))
	var postRows [][]any
	for feed, ids := range st.Seen {
		setRows = append(setRows, []any{feed})
		for _, id := range ids {
			postRows = append(postRows, []any{feed, id})
		}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"seen_sets"}, []string{"feed_url"}, pgx.CopyFromRows(setRows)); err != nil {
		return fmt.Errorf("copy seen sets: %w", err)
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"seen_posts"}, []string{"feed_url", "post_id"}, pgx.CopyFromRows(postRows)); err != nil {
		return fmt.Errorf("copy seen posts: %w", err)
	}

	subRows := make([][]any, 0, len(st.Subscribers))
	seenSubs := make(map[int64]struct{}, len(st.Subscribers))
	for i, id := range st.Subscribers {
		if _, ok := seenSubs[id]; ok {
			continue
		}
		seenSubs[id] = struct{}{}
		subRows = append(subRows, []any{i, id})
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"subscribers"}, []string{"position", "chat_id"}, pgx.CopyFromRows(subRows)); err != nil {
		return fmt.Errorf("copy subscribers: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO state_meta (id, saved_at) VALUES (1, $1)
		 ON CONFLICT (id) DO UPDATE SET saved_at = EXCLUDED.saved_at`, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("update state meta: %w", err)
	}

	return tx.Commit(ctx)
}
