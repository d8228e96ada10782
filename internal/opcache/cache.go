// Package opcache keeps prepared transformation handles between requests.
//
// Handles are not safe for concurrent use, so every entry carries its own
// lock and its own runtime context; callers go through Entry.Do.
package opcache

import (
	"errors"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/mohammed-shakir/projpipe/pkg/proj"
)

// Meta describes what an entry depends on, for targeted purges.
type Meta struct {
	// CRS holds the ids the handle was built from, including base CRSs
	// the conversions go through.
	CRS []string
}

type Entry struct {
	mu   sync.Mutex
	key  string
	pj   *proj.PJ
	ctx  *proj.Context
	crs  []string
	grid []string
}

func (e *Entry) Key() string { return e.key }

// Do runs fn with exclusive use of the handle. The error cell of the
// entry's context is cleared first.
func (e *Entry) Do(fn func(p *proj.PJ) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pj == nil {
		return errEvicted
	}
	e.ctx.ErrnoReset()
	return fn(e.pj)
}

func (e *Entry) destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pj.Destroy()
	e.pj = nil
}

var errEvicted = errors.New("opcache: entry evicted")

// IsEvicted reports whether err came from using an entry that was purged
// while the caller held it.
func IsEvicted(err error) bool { return errors.Is(err, errEvicted) }

// Builder creates a handle on the given context.
type Builder func(ctx *proj.Context) (*proj.PJ, error)

type Cache struct {
	mu      sync.Mutex
	lru     *lru.Cache[string, *Entry]
	base    *proj.Context
	observe func(outcome string)
	purging bool
	// gen counts purges; a build that overlaps one is not cached
	gen    uint64
	builds singleflight.Group
}

// New creates a cache of at most size handles. Every entry gets a clone of
// base. observe, when set, receives "hit", "miss", "evict" and "purge".
func New(size int, base *proj.Context, observe func(outcome string)) (*Cache, error) {
	if size <= 0 {
		size = 128
	}
	if observe == nil {
		observe = func(string) {}
	}
	c := &Cache{base: base, observe: observe}
	l, err := lru.NewWithEvict[string, *Entry](size, func(_ string, e *Entry) {
		e.destroy()
		if c.purging {
			c.observe("purge")
		} else {
			c.observe("evict")
		}
	})
	if err != nil {
		return nil, err
	}
	c.lru = l
	return c, nil
}

// Get returns the entry for key, building it when absent. Builds run
// outside the cache lock and concurrent misses on one key share a single
// build. A nil handle from build is returned as (nil, nil) and not cached.
func (c *Cache) Get(key string, meta Meta, build Builder) (*Entry, error) {
	if e, ok := c.lookup(key); ok {
		c.observe("hit")
		return e, nil
	}
	v, err, _ := c.builds.Do(key, func() (any, error) {
		if e, ok := c.lookup(key); ok {
			return e, nil
		}
		c.observe("miss")
		c.mu.Lock()
		gen := c.gen
		c.mu.Unlock()

		ctx := c.base.Clone()
		p, err := build(ctx)
		if err != nil || p == nil {
			return (*Entry)(nil), err
		}
		e := &Entry{key: key, pj: p, ctx: ctx, crs: upper(meta.CRS), grid: p.GridsNeeded()}

		c.mu.Lock()
		defer c.mu.Unlock()
		// built against state a purge has since dropped: serve it once
		if c.gen == gen {
			c.lru.Add(key, e)
		}
		return e, nil
	})
	e, _ := v.(*Entry)
	return e, err
}

func (c *Cache) lookup(key string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(key)
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Purge drops every entry and returns how many were removed.
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.lru.Len()
	c.gen++
	c.purging = true
	c.lru.Purge()
	c.purging = false
	return n
}

// PurgeCRS drops the entries built from any of ids.
func (c *Cache) PurgeCRS(ids ...string) int {
	want := set(upper(ids))
	return c.purgeWhere(func(e *Entry) bool { return anyIn(e.crs, want) })
}

// PurgeGrids drops the entries whose operations reference any of names.
func (c *Cache) PurgeGrids(names ...string) int {
	want := set(names)
	return c.purgeWhere(func(e *Entry) bool { return anyIn(e.grid, want) })
}

func (c *Cache) purgeWhere(match func(*Entry) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.purging = true
	defer func() { c.purging = false }()
	n := 0
	for _, k := range c.lru.Keys() {
		e, ok := c.lru.Peek(k)
		// Remove runs the eviction callback, which destroys the handle
		if ok && match(e) && c.lru.Remove(k) {
			n++
		}
	}
	return n
}

func upper(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.ToUpper(strings.TrimSpace(id)); id != "" {
			out = append(out, id)
		}
	}
	return out
}

func set(vs []string) map[string]bool {
	m := make(map[string]bool, len(vs))
	for _, v := range vs {
		m[v] = true
	}
	return m
}

func anyIn(vs []string, want map[string]bool) bool {
	for _, v := range vs {
		if want[v] {
			return true
		}
	}
	return false
}
