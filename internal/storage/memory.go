package storage

import (
	"context"
	"sync"

	"rss_watch/internal/model"
)

// Memory implements Persister in memory. Saved states are deep-copied.
type Memory struct {
	mu    sync.Mutex
	state *model.State
	saves int
}

// NewMemory returns an empty Memory persister.
func NewMemory() *Memory {
	return &Memory{}
}

// Load returns the last saved state or ErrNotFound.
func (m *Memory) Load(_ context.Context) (model.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return model.State{}, ErrNotFound
	}
	return m.state.Clone(), nil
}

// Save stores a copy of st.
func (m *Memory) Save(_ context.Context, st model.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := st.Clone()
	cp.Normalize()
	m.state = &cp
	m.saves++
	return nil
}

// Saves returns how many times Save has been called.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}
