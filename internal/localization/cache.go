package localization

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/couchcryptid/storm-data-vtec/internal/confignode"
)

// docCache holds composed documents keyed by
// "path|ext|site|workstation|user".
// A nil docCache caches nothing.
type docCache struct {
	lru *lru.Cache[string, *confignode.Node]
}

func newDocCache(size int) (*docCache, error) {
	if size <= 0 {
		return nil, nil
	}
	c, err := lru.New[string, *confignode.Node](size)
	if err != nil {
		return nil, err
	}
	return &docCache{lru: c}, nil
}

func (c *docCache) get(key string) (*confignode.Node, bool) {
	if c == nil {
		return nil, false
	}
	return c.lru.Get(key)
}

func (c *docCache) put(key string, doc *confignode.Node) {
	if c != nil {
		c.lru.Add(key, doc)
	}
}

// removePrefix drops every entry whose key starts with prefix and returns how
// many went.
func (c *docCache) removePrefix(prefix string) int {
	if c == nil {
		return 0
	}
	n := 0
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) && c.lru.Remove(key) {
			n++
		}
	}
	return n
}

func (c *docCache) purge() {
	if c != nil {
		c.lru.Purge()
	}
}

func (c *docCache) len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
