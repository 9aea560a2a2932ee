package localization

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher drops cached compositions when files under the store root change.
type Watcher struct {
	store *Store
	fsw   *fsnotify.Watcher
}

// NewWatcher watches every directory under the store root.
func (s *Store) NewWatcher() (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create localization watcher: %w", err)
	}
	w := &Watcher{store: s, fsw: fsw}
	if err := w.addTree(s.root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run handles file events until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.store.logger.Warn("localization watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if err := w.addTree(ev.Name); err != nil {
			w.store.logger.Warn("localization watch failed", "path", ev.Name, "error", err)
		}
	}

	path, ok := w.store.pathOf(ev.Name)
	switch {
	case !ok:
		w.store.InvalidateAll()
		w.store.logger.Debug("localization cache cleared", "file", ev.Name, "op", ev.Op.String())
	case path == HintsPath:
		if err := w.store.reloadHints(); err != nil {
			w.store.logger.Warn("xml hints not reloaded", "error", err)
		}
		w.store.InvalidateAll()
	default:
		n := w.store.Invalidate(path)
		w.store.logger.Debug("localization cache invalidated", "path", path, "entries", n, "op", ev.Op.String())
	}
}

// addTree watches dir and its subdirectories. A path that is not a directory
// is ignored.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}

// pathOf maps a file under the root back to the localization path it serves.
func (s *Store) pathOf(file string) (string, bool) {
	rel, err := filepath.Rel(s.root, file)
	if err != nil {
		return "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	switch {
	case parts[0] == "base" && len(parts) > 1:
		return strings.Join(parts[1:], "/"), true
	case len(parts) > 2 && (parts[0] == "configured" || parts[0] == "site" ||
		parts[0] == "workstation" || parts[0] == "user"):
		return strings.Join(parts[2:], "/"), true
	}
	return "", false
}
