package grids

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/projpipe/internal/core/httpclient"
	"github.com/mohammed-shakir/projpipe/internal/core/model"
)

// Provider opens grids by name.
type Provider interface {
	Open(ctx context.Context, name string) (*Grid, error)
	Has(ctx context.Context, name string) bool
}

// Memory serves grids registered in process.
type Memory struct {
	mu    sync.RWMutex
	grids map[string]*Grid
}

func NewMemory(gs ...*Grid) *Memory {
	m := &Memory{grids: map[string]*Grid{}}
	for _, g := range gs {
		m.Add(g)
	}
	return m
}

func (m *Memory) Add(g *Grid) {
	m.mu.Lock()
	m.grids[g.Name] = g
	m.mu.Unlock()
}

func (m *Memory) Open(_ context.Context, name string) (*Grid, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if g, ok := m.grids[name]; ok {
		return g, nil
	}
	return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
}

func (m *Memory) Has(_ context.Context, name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.grids[name]
	return ok
}

// Dir reads <root>/<name> and <root>/<name>.json.
type Dir struct {
	Root string
}

func (d Dir) path(name string) (string, error) {
	if name == "" || strings.Contains(name, "..") || filepath.IsAbs(name) {
		return "", fmt.Errorf("invalid grid name %q", name)
	}
	for _, candidate := range []string{name, name + ".json"} {
		p := filepath.Join(d.Root, candidate)
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%s: %w", name, ErrNotFound)
}

func (d Dir) Open(_ context.Context, name string) (*Grid, error) {
	p, err := d.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p) // #nosec G304 -- path is confined to Root
	if err != nil {
		return nil, fmt.Errorf("open grid %s: %w", name, err)
	}
	defer func() { _ = f.Close() }()
	g, err := Decode(f)
	if err != nil {
		return nil, err
	}
	if g.Name == "" {
		g.Name = name
	}
	return g, nil
}

func (d Dir) Has(_ context.Context, name string) bool {
	_, err := d.path(name)
	return err == nil
}

// HTTP fetches <BaseURL>/<name>. Transport failures surface as network
// errors so the dispatcher stops retrying.
type HTTP struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTP(baseURL string, opts ...httpclient.Option) *HTTP {
	return &HTTP{BaseURL: strings.TrimRight(baseURL, "/"), Client: httpclient.NewOutbound(opts...)}
}

func (h *HTTP) url(name string) string {
	return h.BaseURL + "/" + url.PathEscape(name)
}

func (h *HTTP) do(ctx context.Context, method, name string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, h.url(name), nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, model.Errorf(model.ErrOtherNetworkError, "fetch grid %s: %v", name, err)
	}
	return resp, nil
}

func (h *HTTP) Open(ctx context.Context, name string) (*Grid, error) {
	resp, err := h.do(ctx, http.MethodGet, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	case resp.StatusCode >= 500:
		return nil, model.Errorf(model.ErrOtherNetworkError, "fetch grid %s: status %d", name, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetch grid %s: status %d", name, resp.StatusCode)
	}
	g, err := Decode(resp.Body)
	if err != nil {
		return nil, err
	}
	if g.Name == "" {
		g.Name = name
	}
	return g, nil
}

func (h *HTTP) Has(ctx context.Context, name string) bool {
	resp, err := h.do(ctx, http.MethodHead, name)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Cached keeps decoded grids in an LRU in front of another provider.
type Cached struct {
	next    Provider
	lru     *lru.Cache[string, *Grid]
	observe func(result string)
}

func NewCached(next Provider, size int, observe func(result string)) (*Cached, error) {
	if size <= 0 {
		size = 64
	}
	c, err := lru.New[string, *Grid](size)
	if err != nil {
		return nil, err
	}
	if observe == nil {
		observe = func(string) {}
	}
	return &Cached{next: next, lru: c, observe: observe}, nil
}

func (c *Cached) Open(ctx context.Context, name string) (*Grid, error) {
	if g, ok := c.lru.Get(name); ok {
		c.observe("hit")
		return g, nil
	}
	g, err := c.next.Open(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.observe("not_found")
		} else {
			c.observe("error")
		}
		return nil, err
	}
	c.observe("miss")
	c.lru.Add(name, g)
	return g, nil
}

func (c *Cached) Has(ctx context.Context, name string) bool {
	if c.lru.Contains(name) {
		return true
	}
	return c.next.Has(ctx, name)
}

func (c *Cached) Purge() { c.lru.Purge() }

func (c *Cached) Len() int { return c.lru.Len() }

// Chain tries providers in order and returns the first hit. A network
// error from one provider is kept only when no later provider succeeds.
type Chain []Provider

func (ch Chain) Open(ctx context.Context, name string) (*Grid, error) {
	var firstErr error
	for _, p := range ch {
		g, err := p.Open(ctx, name)
		if err == nil {
			return g, nil
		}
		if firstErr == nil || (errors.Is(firstErr, ErrNotFound) && !errors.Is(err, ErrNotFound)) {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return nil, firstErr
}

func (ch Chain) Has(ctx context.Context, name string) bool {
	for _, p := range ch {
		if p.Has(ctx, name) {
			return true
		}
	}
	return false
}
