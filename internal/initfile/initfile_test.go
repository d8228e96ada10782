package initfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/projpipe/internal/core/model"
)

const sample = `
# test init file
<merc> proj=merc ellps=WGS84 <>
<utm32>
  proj=utm zone=32   # trailing comment
  ellps=GRS80
<>
<a> proj=noop <b> proj=latlong
`

func TestParse(t *testing.T) {
	got, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := map[string]string{
		"merc":  "proj=merc ellps=WGS84",
		"utm32": "proj=utm zone=32 ellps=GRS80",
		"a":     "proj=noop",
		"b":     "proj=latlong",
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("section %s = %q, want %q", k, got[k], v)
		}
	}
	if len(got) != len(want) {
		t.Fatalf("got %d sections, want %d: %v", len(got), len(want), got)
	}

	if _, err := Parse(strings.NewReader("<broken proj=merc")); err == nil {
		t.Fatalf("expected error for unterminated section name")
	}
}

func TestDirLookup(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "world"), []byte(sample), 0o600); err != nil {
		t.Fatal(err)
	}
	d := NewDir(root)
	ctx := context.Background()

	def, err := d.Lookup(ctx, "world", "utm32")
	if err != nil || def != "proj=utm zone=32 ellps=GRS80" {
		t.Fatalf("Lookup = %q, %v", def, err)
	}
	if _, err := d.Lookup(ctx, "world", "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing section err = %v", err)
	}
	if _, err := d.Lookup(ctx, "other", "utm32"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing file err = %v", err)
	}
	if _, err := d.Lookup(ctx, "../etc/passwd", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("traversal err = %v", err)
	}
}

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *Redis, *[]string) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	var seen []string
	r, err := NewRedis(ctx, mr.Addr(), func(res string) { seen = append(seen, res) })
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return mr, r, &seen
}

func TestRedisLookup(t *testing.T) {
	mr, r, seen := newMiniRedis(t)
	ctx := context.Background()

	mr.HSet(KeyPrefix+"world", "merc", "proj=merc ellps=WGS84")
	if err := r.Store(ctx, "world", "eqc", "proj=eqc"); err != nil {
		t.Fatalf("Store: %v", err)
	}

	def, err := r.Lookup(ctx, "world", "merc")
	if err != nil || def != "proj=merc ellps=WGS84" {
		t.Fatalf("Lookup = %q, %v", def, err)
	}
	def, err = r.Lookup(ctx, "world", "eqc")
	if err != nil || def != "proj=eqc" {
		t.Fatalf("Lookup stored = %q, %v", def, err)
	}
	if _, err := r.Lookup(ctx, "world", "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing section err = %v", err)
	}
	if got := strings.Join(*seen, ","); got != "hit,hit,not_found" {
		t.Fatalf("observed %s", got)
	}
}

func TestRedisDownIsNetworkError(t *testing.T) {
	mr, r, _ := newMiniRedis(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := r.Lookup(ctx, "world", "merc")
	if model.CodeOf(err) != model.ErrOtherNetworkError {
		t.Fatalf("code = %v (%v), want network error", model.CodeOf(err), err)
	}
}

func TestNewRedisRequiresAddr(t *testing.T) {
	if _, err := NewRedis(context.Background(), "", nil); err == nil {
		t.Fatalf("expected error for empty address")
	}
}

type countingResolver struct {
	Resolver
	calls int
}

func (c *countingResolver) Lookup(ctx context.Context, file, section string) (string, error) {
	c.calls++
	return c.Resolver.Lookup(ctx, file, section)
}

func TestCachedAndChain(t *testing.T) {
	first := NewMemory()
	second := NewMemory()
	second.Add("world", "merc", "proj=merc")
	first.Add("world", "eqc", "proj=eqc")

	inner := &countingResolver{Resolver: Chain{first, second}}
	var seen []string
	c, err := NewCached(inner, 4, func(r string) { seen = append(seen, r) })
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for range 3 {
		def, err := c.Lookup(ctx, "world", "merc")
		if err != nil || def != "proj=merc" {
			t.Fatalf("Lookup = %q, %v", def, err)
		}
	}
	if inner.calls != 1 {
		t.Fatalf("inner calls = %d, want 1", inner.calls)
	}
	if _, err := c.Lookup(ctx, "world", "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing err = %v", err)
	}
	if got := strings.Join(seen, ","); got != "miss,hit,hit,miss" {
		t.Fatalf("observed %s", got)
	}

	c.Purge()
	if c.Len() != 0 {
		t.Fatalf("Len after purge = %d", c.Len())
	}
}
