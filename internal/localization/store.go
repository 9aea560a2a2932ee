// Package localization reads layered configuration files and composes them
// with the overlay resolver.
//
// Files live under a root directory, one subtree per scope:
//
//	base/<path>
//	configured/<site>/<path>
//	site/<site>/<path>
//	workstation/<workstation>/<path>
//	user/<user>/<path>
//
// The file format follows the extension: .json, .xml, .yaml or .yml. A path
// given without an extension matches any of them. XML layers are converted
// with the store's hint table.
package localization

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/couchcryptid/storm-data-vtec/internal/confignode"
	"github.com/couchcryptid/storm-data-vtec/internal/domain"
	"github.com/couchcryptid/storm-data-vtec/internal/overlay"
	"github.com/couchcryptid/storm-data-vtec/internal/xmltree"
)

// ErrNotFound is returned when no scope holds the requested path.
var ErrNotFound = errors.New("localization file not found")

// HintsPath is the XML conversion hint table, itself a localization file.
const HintsPath = "xml2Json.xml"

// Extensions are the recognized file formats in lookup order.
var Extensions = []string{".json", ".xml", ".yaml", ".yml"}

// CacheObserver is told about every composition cache lookup.
type CacheObserver interface {
	ObserveCache(hit bool)
}

// Layer is one scope's file for a path.
type Layer struct {
	Scope Scope            `json:"scope"`
	File  string           `json:"file"`
	Doc   *confignode.Node `json:"doc"`
}

// Store composes localization files.
type Store struct {
	root     string
	mu       sync.RWMutex
	hints    xmltree.Hints
	hinted   bool
	cache    *docCache
	observer CacheObserver
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store) error

// WithCache keeps up to size composed documents in memory.
func WithCache(size int) Option {
	return func(s *Store) error {
		c, err := newDocCache(size)
		if err != nil {
			return fmt.Errorf("localization cache: %w", err)
		}
		s.cache = c
		return nil
	}
}

// WithHints sets the XML conversion hints instead of loading them from the
// base scope.
func WithHints(h xmltree.Hints) Option {
	return func(s *Store) error {
		s.hints, s.hinted = h, true
		return nil
	}
}

// WithCacheObserver reports cache hits and misses.
func WithCacheObserver(o CacheObserver) Option {
	return func(s *Store) error {
		s.observer = o
		return nil
	}
}

// NewStore opens the localization tree at root. Unless WithHints is given,
// the hint table is read from base/xml2Json.xml, falling back to the built-in
// hints when that file is absent.
func NewStore(root string, logger *slog.Logger, opts ...Option) (*Store, error) {
	s := &Store{root: root, logger: logger}
	for _, o := range opts {
		if err := o(s); err != nil {
			return nil, err
		}
	}
	if s.hinted {
		return s, nil
	}
	if err := s.reloadHints(); err != nil {
		return nil, err
	}
	return s, nil
}

// reloadHints rereads base/xml2Json.xml. Hints given with WithHints are kept.
func (s *Store) reloadHints() error {
	if s.hinted {
		return nil
	}
	h := xmltree.DefaultHints()
	data, err := os.ReadFile(filepath.Join(s.root, Base.dir(Context{}), HintsPath))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("read xml hints: %w", err)
	default:
		if h, err = xmltree.ParseHints(data); err != nil {
			return fmt.Errorf("parse xml hints: %w", err)
		}
	}
	s.mu.Lock()
	s.hints = h
	s.mu.Unlock()
	return nil
}

// Root is the directory the store reads.
func (s *Store) Root() string { return s.root }

// Hints is the XML conversion hint table in use.
func (s *Store) Hints() xmltree.Hints {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hints
}

// Layers reads path from every scope that has it, in composition order. Files
// that cannot be parsed are skipped and reported.
func (s *Store) Layers(path string, c Context) ([]Layer, []domain.Diagnostic, error) {
	var layers []Layer
	var diags []domain.Diagnostic
	for _, sc := range Scopes {
		dir := sc.dir(c)
		if dir == "" {
			continue
		}
		file, ok := s.find(filepath.Join(s.root, dir), path)
		if !ok {
			continue
		}
		doc, err := s.read(file)
		if errors.Is(err, errUnreadable) {
			return nil, diags, err
		}
		if err != nil {
			diags = append(diags, domain.Diagnosef(domain.MalformedInput, file, "%v", err))
			s.logger.Warn("localization layer skipped", "scope", sc, "file", file, "error", err)
			continue
		}
		layers = append(layers, Layer{Scope: sc, File: file, Doc: doc})
	}
	return layers, diags, nil
}

// Compose returns path resolved across every scope for c. A layer whose kind
// conflicts with the composition so far is skipped with a diagnostic.
func (s *Store) Compose(path string, c Context) (*confignode.Node, []domain.Diagnostic, error) {
	key := cacheKey(path, c)
	if doc, ok := s.cache.get(key); ok {
		s.observe(true)
		return doc.Clone(), nil, nil
	}
	s.observe(false)

	layers, diags, err := s.Layers(path, c)
	if err != nil {
		return nil, diags, err
	}
	if len(layers) == 0 {
		return nil, diags, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	r := overlay.New()
	for _, l := range layers {
		if err := r.Accumulate(l.Doc); err != nil {
			s.logger.Warn("localization layer rejected", "scope", l.Scope, "file", l.File, "error", err)
		}
	}
	diags = append(diags, r.Diagnostics()...)
	doc := r.Combine()
	s.cache.put(key, doc.Clone())
	s.logger.Debug("localization composed", "path", path, "layers", r.Layers(), "site", c.Site)
	return doc, diags, nil
}

// Invalidate drops cached compositions of path for every context.
func (s *Store) Invalidate(path string) int {
	return s.cache.removePrefix(logical(path) + "|")
}

// InvalidateAll empties the cache.
func (s *Store) InvalidateAll() { s.cache.purge() }

// Cached is the number of cached compositions.
func (s *Store) Cached() int { return s.cache.len() }

func (s *Store) observe(hit bool) {
	if s.observer != nil {
		s.observer.ObserveCache(hit)
	}
}

var errUnreadable = errors.New("localization file unreadable")

// find resolves path inside dir, trying each extension when path has none.
func (s *Store) find(dir, path string) (string, bool) {
	candidates := []string{path}
	if filepath.Ext(path) == "" {
		candidates = candidates[:0]
		for _, ext := range Extensions {
			candidates = append(candidates, path+ext)
		}
	}
	for _, cand := range candidates {
		file := filepath.Join(dir, filepath.FromSlash(cand))
		if info, err := os.Stat(file); err == nil && !info.IsDir() {
			return file, true
		}
	}
	return "", false
}

func (s *Store) read(file string) (*confignode.Node, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errUnreadable, err)
	}
	return Parse(file, data, s.Hints())
}

// Parse decodes data according to name's extension.
func Parse(name string, data []byte, h xmltree.Hints) (*confignode.Node, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return confignode.ParseJSON(data)
	case ".yaml", ".yml":
		return confignode.ParseYAML(data)
	case ".xml":
		return xmltree.Decode(bytes.NewReader(data), h)
	}
	return nil, fmt.Errorf("unsupported configuration format %q", filepath.Ext(name))
}

// logical strips the extension so invalidating "a/b.xml" also drops the
// compositions of "a/b" and "a/b.json".
func logical(path string) string {
	path = filepath.ToSlash(path)
	return strings.TrimSuffix(path, filepath.Ext(path))
}

func cacheKey(path string, c Context) string {
	return logical(path) + "|" + filepath.Ext(path) + "|" + c.key()
}
