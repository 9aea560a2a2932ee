package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultRetention is how long backups are kept.
const DefaultRetention = 672 * time.Hour

const backupLayout = "20060102T150405Z"

// BackupDir is the sibling directory holding timestamped copies.
func (s *FileStore) BackupDir() string {
	return filepath.Join(filepath.Dir(s.path), "backups")
}

// Backup copies the current store file into BackupDir stamped with now, then
// deletes backups older than retention. It returns the new backup's path, or
// "" when there is nothing to back up.
func (s *FileStore) Backup(now time.Time, retention time.Duration) (string, error) {
	s.mu.RLock()
	data, err := os.ReadFile(s.path)
	s.mu.RUnlock()
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read vtec records for backup: %w", err)
	}

	dir := s.BackupDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	name := filepath.Join(dir, filepath.Base(s.path)+"."+now.UTC().Format(backupLayout))
	if err := os.WriteFile(name, data, 0o644); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}

	purged, err := s.purgeBackups(now.Add(-retention))
	if err != nil {
		s.logger.Warn("backup purge failed", "dir", dir, "error", err)
	} else if purged > 0 {
		s.logger.Info("purged old vtec backups", "count", purged, "retention", retention)
	}
	return name, nil
}

// purgeBackups removes backups stamped before cutoff.
func (s *FileStore) purgeBackups(cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(s.BackupDir())
	if err != nil {
		return 0, err
	}
	prefix := filepath.Base(s.path) + "."
	purged := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		stamp, err := time.Parse(backupLayout, strings.TrimPrefix(e.Name(), prefix))
		if err != nil {
			continue
		}
		if stamp.Before(cutoff) {
			if err := os.Remove(filepath.Join(s.BackupDir(), e.Name())); err != nil {
				return purged, err
			}
			purged++
		}
	}
	return purged, nil
}
