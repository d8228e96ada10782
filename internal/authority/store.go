package authority

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Store holds the live catalog and swaps it on Reload, so readers never
// see a half-loaded catalog.
type Store struct {
	path string
	cur  atomic.Pointer[Catalog]
}

// NewStore serves c. When path is not empty Reload re-reads it, otherwise
// Reload keeps the current catalog.
func NewStore(c *Catalog, path string) *Store {
	s := &Store{path: path}
	s.cur.Store(c)
	return s
}

// Open loads the catalog at path, or the compiled-in catalog when path is
// empty.
func Open(path string) (*Store, error) {
	if path == "" {
		return NewStore(Default(), ""), nil
	}
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	return NewStore(c, path), nil
}

func (s *Store) Catalog() *Catalog { return s.cur.Load() }

func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	c, err := Load(s.path)
	if err != nil {
		return fmt.Errorf("reload catalog: %w", err)
	}
	s.cur.Store(c)
	return nil
}

func (s *Store) Candidates(ctx context.Context, src, tgt string, q Query) ([]Candidate, error) {
	return s.Catalog().Candidates(ctx, src, tgt, q)
}

func (s *Store) LookupCRS(id string) (CRS, error) {
	return s.Catalog().LookupCRS(id)
}

func (s *Store) GeographicHelper(id string, gridAvailable func(string) bool) (Helper, error) {
	return s.Catalog().GeographicHelper(id, gridAvailable)
}

func (s *Store) Touching(ids ...string) []string {
	return s.Catalog().Touching(ids...)
}
