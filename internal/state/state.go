// Package state owns the in-memory bot state: the feed/subscriber registry
// and the per-feed seen sets, guarded by a single mutex and flushed to a
// storage.Persister after every mutation.
package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"rss_watch/internal/dedup"
	"rss_watch/internal/model"
	"rss_watch/internal/registry"
	"rss_watch/internal/storage"
)

// Manager is the single owner of the bot state.
type Manager struct {
	mu    sync.Mutex
	reg   *registry.Registry
	seen  *dedup.Store
	store storage.Persister
	log   *slog.Logger
	dirty bool
}

// Open loads the state from store. A missing state starts from defaultFeeds;
// an unreadable state is logged and replaced by the default state.
func Open(ctx context.Context, store storage.Persister, defaultFeeds []string, log *slog.Logger) *Manager {
	st, err := store.Load(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		log.Info("no saved state, starting fresh", "default_feeds", len(defaultFeeds))
		st = defaultState(defaultFeeds, log)
	case err != nil:
		log.Warn("load state failed, starting fresh", "error", err)
		st = defaultState(defaultFeeds, log)
	default:
		log.Info("state loaded", "feeds", len(st.Feeds), "subscribers", len(st.Subscribers))
	}
	return New(st, store, log)
}

// New builds a Manager from an already loaded state.
func New(st model.State, store storage.Persister, log *slog.Logger) *Manager {
	reg := registry.New(st.Feeds, st.Subscribers)
	// Seen sets of feeds that are no longer registered are dropped.
	seen := make(map[string][]string, len(st.Seen))
	for feed, ids := range st.Seen {
		if reg.HasFeed(feed) {
			k := registry.Key(feed)
			seen[k] = append(seen[k], ids...)
		}
	}
	return &Manager{
		reg:   reg,
		seen:  dedup.FromSnapshot(seen),
		store: store,
		log:   log,
	}
}

func defaultState(feeds []string, log *slog.Logger) model.State {
	st := model.NewState()
	for _, raw := range feeds {
		url, err := registry.NormalizeURL(raw)
		if err != nil {
			log.Warn("skip default feed", "url", raw, "error", err)
			continue
		}
		st.Feeds = append(st.Feeds, url)
	}
	return st
}

// Snapshot returns a copy of the current state in its persisted form.
func (m *Manager) Snapshot() model.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() model.State {
	return model.State{
		Feeds:       m.reg.Feeds(),
		Seen:        m.seen.Snapshot(),
		Subscribers: m.reg.Subscribers(),
	}
}

// flushLocked saves the state. On failure the Manager stays dirty so that
// Flush can retry later; the in-memory state remains authoritative.
func (m *Manager) flushLocked(ctx context.Context) error {
	if err := m.store.Save(ctx, m.snapshotLocked()); err != nil {
		m.dirty = true
		m.log.Error("save state", "error", err)
		return fmt.Errorf("save state: %w", err)
	}
	m.dirty = false
	return nil
}

// Flush saves the state if a previous save failed.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.dirty {
		return nil
	}
	return m.flushLocked(ctx)
}

// Dirty reports whether the last save failed.
func (m *Manager) Dirty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirty
}

// Feeds returns the monitored feeds in insertion order.
func (m *Manager) Feeds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reg.Feeds()
}

// HasFeed reports whether url is monitored.
func (m *Manager) HasFeed(url string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reg.HasFeed(url)
}

// AddFeed registers url and seeds its seen set with backlog, so that the
// posts present when the feed is added are never notified. It reports
// whether the feed was new. An invalid URL yields registry.ErrInvalidURL;
// any other error is a save failure and the feed stays registered in memory.
func (m *Manager) AddFeed(ctx context.Context, url string, backlog []model.Post) (bool, error) {
	url, err := registry.NormalizeURL(url)
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.reg.AddFeed(url) {
		return false, nil
	}
	m.seen.Reset(url)
	m.seen.MarkSeen(url, dedup.IDs(backlog))
	m.log.Info("feed added", "url", url, "backlog", len(backlog))
	return true, m.flushLocked(ctx)
}

// RemoveFeed unregisters url and forgets its seen set.
func (m *Manager) RemoveFeed(ctx context.Context, url string) (bool, error) {
	url = registry.Key(url)
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.reg.RemoveFeed(url) {
		return false, nil
	}
	m.seen.Reset(url)
	m.log.Info("feed removed", "url", url)
	return true, m.flushLocked(ctx)
}

// Subscribers returns the subscribed chats.
func (m *Manager) Subscribers() []model.Subscriber {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reg.Subscribers()
}

// AddSubscriber registers a chat and reports whether it was new.
func (m *Manager) AddSubscriber(ctx context.Context, id model.Subscriber) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.reg.AddSubscriber(id) {
		return false, nil
	}
	m.log.Info("subscriber added", "chat_id", id)
	return true, m.flushLocked(ctx)
}

// RemoveSubscriber unregisters a chat and reports whether it was present.
func (m *Manager) RemoveSubscriber(ctx context.Context, id model.Subscriber) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.reg.RemoveSubscriber(id) {
		return false, nil
	}
	m.log.Info("subscriber removed", "chat_id", id)
	return true, m.flushLocked(ctx)
}

// FilterNew returns the posts of feed not yet seen. seeded is false when the
// feed has no seen set yet, i.e. this is its first poll.
func (m *Manager) FilterNew(feed string, posts []model.Post) (fresh []model.Post, seeded bool) {
	feed = registry.Key(feed)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen.FilterNew(feed, posts), m.seen.Known(feed)
}

// MarkSeen records ids as notified for feed and flushes. Feeds that are no
// longer registered are ignored so that a concurrent removal is not undone.
func (m *Manager) MarkSeen(ctx context.Context, feed string, ids []string) error {
	feed = registry.Key(feed)
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.reg.HasFeed(feed) {
		m.log.Debug("skip mark seen for removed feed", "url", feed)
		return nil
	}
	known := m.seen.Known(feed)
	if m.seen.MarkSeen(feed, ids) == 0 && known {
		return nil
	}
	return m.flushLocked(ctx)
}
