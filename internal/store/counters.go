package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
)

// Counters persists the last ETN handed out per counter key
// (office.phen.sig.year) in a small JSON object.
type Counters struct {
	path string
	mu   sync.Mutex
}

// NewCounters opens the counter file at path.
func NewCounters(path string) *Counters {
	return &Counters{path: path}
}

// Current returns the last ETN recorded for key, or 0.
func (c *Counters) Current(ctx context.Context, key string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	all, err := c.read()
	if err != nil {
		return 0, err
	}
	return all[key], nil
}

// Advance records etn for key. Counters never move backwards.
func (c *Counters) Advance(ctx context.Context, key string, etn int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	all, err := c.read()
	if err != nil {
		return err
	}
	if all[key] >= etn {
		return nil
	}
	all[key] = etn
	if err := writeJSON(c.path, all); err != nil {
		return fmt.Errorf("write etn counters: %w", err)
	}
	return nil
}

// All returns every counter.
func (c *Counters) All(ctx context.Context) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.read()
}

func (c *Counters) read() (map[string]int, error) {
	all := map[string]int{}
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && len(data) == 0) {
		return all, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read etn counters: %w", err)
	}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("decode etn counters %s: %w", c.path, err)
	}
	return all, nil
}
