package initfile

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cached keeps resolved sections in an LRU. Misses are not cached so a
// section added later becomes visible without a purge.
type Cached struct {
	next    Resolver
	cache   *lru.Cache[string, string]
	observe func(result string)
}

func NewCached(next Resolver, size int, observe func(result string)) (*Cached, error) {
	if size <= 0 {
		size = 256
	}
	c, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	if observe == nil {
		observe = func(string) {}
	}
	return &Cached{next: next, cache: c, observe: observe}, nil
}

func (c *Cached) Lookup(ctx context.Context, file, section string) (string, error) {
	key := file + ":" + section
	if def, ok := c.cache.Get(key); ok {
		c.observe("hit")
		return def, nil
	}
	def, err := c.next.Lookup(ctx, file, section)
	if err != nil {
		c.observe("miss")
		return "", err
	}
	c.observe("miss")
	c.cache.Add(key, def)
	return def, nil
}

func (c *Cached) Purge() { c.cache.Purge() }

func (c *Cached) Len() int { return c.cache.Len() }
