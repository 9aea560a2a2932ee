// Package store persists VTEC records as a flat JSON list on disk. Updates
// hold an exclusive lock for their whole duration and replace the file
// atomically, so readers see either the old or the new list.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/couchcryptid/storm-data-vtec/internal/vtec"
)

// UpdateFunc receives the current records and returns the replacement list
// and whether anything changed. Returning an error aborts the update.
type UpdateFunc func(records []vtec.Record) ([]vtec.Record, bool, error)

// FileStore is the VTEC record store.
type FileStore struct {
	path   string
	logger *slog.Logger
	mu     sync.RWMutex
}

// NewFileStore opens the store at path. The file is created on first write.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	return &FileStore{path: path, logger: logger}
}

// Path is the backing file.
func (s *FileStore) Path() string { return s.path }

// Records returns a snapshot of the stored records.
func (s *FileStore) Records(ctx context.Context) ([]vtec.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read()
}

// Update runs fn under the write lock and writes its result when it reports
// a change.
func (s *FileStore) Update(ctx context.Context, fn UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return err
	}
	updated, changed, err := fn(records)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if err := writeJSON(s.path, updated); err != nil {
		return fmt.Errorf("write vtec records: %w", err)
	}
	s.logger.Debug("vtec records written", "path", s.path, "records", len(updated))
	return nil
}

func (s *FileStore) read() ([]vtec.Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read vtec records: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var records []vtec.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode vtec records %s: %w", s.path, err)
	}
	return records, nil
}

// writeJSON replaces path atomically through a temp file in the same
// directory.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", " ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
