// Package app assembles the transformation runtime from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mohammed-shakir/projpipe/internal/authority"
	"github.com/mohammed-shakir/projpipe/internal/core/config"
	"github.com/mohammed-shakir/projpipe/internal/core/health"
	"github.com/mohammed-shakir/projpipe/internal/core/httpclient"
	"github.com/mohammed-shakir/projpipe/internal/core/observability"
	"github.com/mohammed-shakir/projpipe/internal/grids"
	"github.com/mohammed-shakir/projpipe/internal/initfile"
	"github.com/mohammed-shakir/projpipe/internal/logger"
	"github.com/mohammed-shakir/projpipe/pkg/proj"
)

// Runtime is the shared state every handle is created from.
type Runtime struct {
	Authority *authority.Store
	Inits     *initfile.Cached
	Grids     *grids.Cached
	Base      *proj.Context

	redis   *initfile.Redis
	initDir *initfile.Dir
}

// PurgeFunc adapts a function to the invalidation runner's purger.
type PurgeFunc func()

func (f PurgeFunc) Purge() { f() }

// New opens the catalog, the init file resolvers and the grid providers
// named by cfg and builds the base context.
func New(ctx context.Context, cfg config.Config, zl zerolog.Logger) (*Runtime, error) {
	auth, err := authority.Open(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	rt := &Runtime{Authority: auth}

	var chain initfile.Chain
	if cfg.InitRedisEnabled {
		rt.redis, err = initfile.NewRedis(ctx, cfg.RedisAddr, observability.InitLookupObserver("redis"))
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		chain = append(chain, rt.redis)
	}
	if cfg.InitDir != "" {
		rt.initDir = initfile.NewDir(cfg.InitDir)
		chain = append(chain, rt.initDir)
	}
	var inits proj.InitResolver
	if len(chain) > 0 {
		rt.Inits, err = initfile.NewCached(chain, cfg.InitCacheSize, observability.InitLookupObserver("cache"))
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("init cache: %w", err)
		}
		inits = rt.Inits
	}

	var providers grids.Chain
	if cfg.GridDir != "" {
		providers = append(providers, grids.Dir{Root: cfg.GridDir})
	}
	if cfg.NetworkEnabled && cfg.GridBaseURL != "" {
		providers = append(providers, grids.NewHTTP(cfg.GridBaseURL, httpclient.WithTimeout(cfg.GridFetchTimeout)))
	}
	var gp grids.Provider
	if len(providers) > 0 {
		rt.Grids, err = grids.NewCached(providers, cfg.GridCacheSize, observability.ObserveGridFetch)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("grid cache: %w", err)
		}
		gp = rt.Grids
	}

	opts := []proj.Option{
		proj.WithLogger(logger.Component(zl, "proj", zerolog.TraceLevel)),
		proj.WithLogLevel(LogLevel(cfg.ProjDebug)),
		proj.WithAuthority(auth),
		proj.WithNetwork(cfg.NetworkEnabled),
		proj.WithOnlyBestDefault(cfg.OnlyBestDefault),
		proj.WithBaseContext(ctx),
		proj.WithHooks(proj.Hooks{
			OnRetry:       func(string) { observability.IncTransformRetry() },
			OnFallback:    func(string) { observability.IncTransformFallback() },
			OnNoOperation: observability.IncTransformNoOperation,
		}),
	}
	if inits != nil {
		opts = append(opts, proj.WithInitResolver(inits))
	}
	if gp != nil {
		opts = append(opts, proj.WithGrids(gp))
	}
	rt.Base = proj.NewContext(opts...)
	return rt, nil
}

// LogLevel clamps n onto the runtime verbosity scale.
func LogLevel(n int) proj.LogLevel {
	switch {
	case n <= 0:
		return proj.LogNone
	case n >= int(proj.LogTrace):
		return proj.LogTrace
	}
	return proj.LogLevel(n)
}

// Checks lists readiness probes for the runtime's dependencies.
func (rt *Runtime) Checks() []health.Check {
	checks := []health.Check{{
		Name: "catalog",
		Probe: func(context.Context) error {
			if rt.Authority.Catalog() == nil {
				return errors.New("no catalog loaded")
			}
			return nil
		},
	}}
	if rt.redis != nil {
		checks = append(checks, health.Check{Name: "redis", Probe: rt.redis.Ping})
	}
	return checks
}

// PurgeInits drops cached init sections and parsed init files.
func (rt *Runtime) PurgeInits() {
	if rt.initDir != nil {
		rt.initDir.Purge()
	}
	if rt.Inits != nil {
		rt.Inits.Purge()
	}
}

// PurgeGrids drops cached grids; a nil cache is a no-op.
func (rt *Runtime) PurgeGrids() {
	if rt.Grids != nil {
		rt.Grids.Purge()
	}
}

func (rt *Runtime) Close() error {
	var errs []error
	if rt.redis != nil {
		errs = append(errs, rt.redis.Close())
	}
	return errors.Join(errs...)
}
