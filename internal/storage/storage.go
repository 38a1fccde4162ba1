// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"

	"rss_watch/internal/model"
)

var (
	// ErrNotFound is returned by Load when no state has ever been saved.
	ErrNotFound = errors.New("no saved state")
	// ErrCorrupt is returned by Load when saved state exists but cannot be decoded.
	ErrCorrupt = errors.New("saved state is corrupt")
)

// Persister saves and restores the whole bot state.
//
// Save must be atomic: a crash part-way through must leave either the
// previous or the new state loadable.
type Persister interface {
	Load(ctx context.Context) (model.State, error)
	Save(ctx context.Context, st model.State) error
	Close() error
}
