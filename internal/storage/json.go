package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"rss_watch/internal/model"
)

// JSONFile implements Persister as a single JSON document on disk.
type JSONFile struct {
	path string
}

// NewJSONFile returns a JSONFile persister writing to path, creating its directory.
func NewJSONFile(path string) (*JSONFile, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}
	return &JSONFile{path: path}, nil
}

// Path returns the location of the state file.
func (j *JSONFile) Path() string {
	return j.path
}

// Load reads the state file.
func (j *JSONFile) Load(_ context.Context) (model.State, error) {
	data, err := os.ReadFile(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return model.State{}, ErrNotFound
	}
	if err != nil {
		return model.State{}, fmt.Errorf("read state file: %w", err)
	}

	var st model.State
	if err := json.Unmarshal(data, &st); err != nil {
		return model.State{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	st.Normalize()
	return st, nil
}

// Save writes st to a temporary file next to the target and renames it into place.
func (j *JSONFile) Save(_ context.Context, st model.State) error {
	st = st.Clone()
	st.Normalize()
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(j.path), filepath.Base(j.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, j.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return syncDir(filepath.Dir(j.path))
}

// syncDir makes a rename inside dir durable.
func syncDir(dir string) error {
	d, err := os.Open(dir) //nolint:gosec // state directory from config
	if err != nil {
		return fmt.Errorf("open state directory: %w", err)
	}
	defer func() { _ = d.Close() }()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync state directory: %w", err)
	}
	return nil
}

// Close is a no-op.
func (j *JSONFile) Close() error {
	return nil
}
