package app

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"github.com/mohammed-shakir/projpipe/internal/core/config"
	"github.com/mohammed-shakir/projpipe/internal/core/model"
	"github.com/mohammed-shakir/projpipe/internal/initfile"
	"github.com/mohammed-shakir/projpipe/pkg/proj"
)

func TestNew_Defaults(t *testing.T) {
	rt, err := New(context.Background(), config.Config{}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	if rt.Inits != nil || rt.Grids != nil {
		t.Fatal("no resolvers configured, caches should be nil")
	}
	rt.PurgeInits()
	rt.PurgeGrids()

	p, err := proj.CreateCrsToCrs(rt.Base, "EPSG:4326", "EPSG:32632", nil)
	if err != nil || p == nil {
		t.Fatalf("create: %v", err)
	}
	defer p.Destroy()
	out := p.Trans(model.Fwd, model.Coord{0, 9})
	if math.Abs(out[0]-500000) > 1e-6 {
		t.Fatalf("x=%v", out[0])
	}
}

func TestNew_InitDirThenPurge(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "site")
	write := func(body string) {
		if err := os.WriteFile(file, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	write("<a> proj=utm zone=32 <>\n")

	rt, err := New(context.Background(), config.Config{InitDir: dir, InitCacheSize: 8}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	x := func() float64 {
		p, err := proj.Create(rt.Base, "init=site:a")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		defer p.Destroy()
		return p.Trans(model.Fwd, model.Coord{15 * math.Pi / 180, 0})[0]
	}
	if got := x(); math.Abs(got-500000) < 1 {
		t.Fatalf("zone 32 should not be centred on 15E, x=%v", got)
	}

	write("<a> proj=utm zone=33 <>\n")
	rt.PurgeInits()
	if got := x(); math.Abs(got-500000) > 1e-6 {
		t.Fatalf("after purge want zone 33, x=%v", got)
	}
}

func TestNew_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.HSet(initfile.KeyPrefix+"site", "b", "proj=merc")

	rt, err := New(context.Background(), config.Config{InitRedisEnabled: true, RedisAddr: mr.Addr()}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	p, err := proj.Create(rt.Base, "init=site:b")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	p.Destroy()

	checks := rt.Checks()
	if len(checks) != 2 || checks[1].Name != "redis" {
		t.Fatalf("checks=%v", checks)
	}
	for _, c := range checks {
		if err := c.Probe(context.Background()); err != nil {
			t.Fatalf("%s: %v", c.Name, err)
		}
	}
	mr.Close()
	if err := checks[1].Probe(context.Background()); err == nil {
		t.Fatal("redis probe should fail once the server is gone")
	}

	if _, err := New(context.Background(), config.Config{InitRedisEnabled: true, RedisAddr: "127.0.0.1:1"}, zerolog.Nop()); err == nil {
		t.Fatal("unreachable redis should fail startup")
	}
}

func TestLogLevel(t *testing.T) {
	for n, want := range map[int]proj.LogLevel{-1: proj.LogNone, 0: proj.LogNone, 1: proj.LogError, 2: proj.LogDebug, 9: proj.LogTrace} {
		if got := LogLevel(n); got != want {
			t.Errorf("LogLevel(%d)=%v want %v", n, got, want)
		}
	}
}
