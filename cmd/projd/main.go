package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/mohammed-shakir/projpipe/internal/app"
	"github.com/mohammed-shakir/projpipe/internal/core/config"
	"github.com/mohammed-shakir/projpipe/internal/core/executor"
	"github.com/mohammed-shakir/projpipe/internal/core/observability"
	"github.com/mohammed-shakir/projpipe/internal/core/server"
	"github.com/mohammed-shakir/projpipe/internal/logger"
	"github.com/mohammed-shakir/projpipe/internal/metrics"
	"github.com/mohammed-shakir/projpipe/internal/opcache"
	"github.com/mohammed-shakir/projpipe/pkg/invalidation/kafka"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	envFile := flag.String("env", ".env", "dotenv file to load before reading the environment")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		return 2
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "projd",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mp := metrics.Init(cfg.Metrics, Version)

	rt, err := app.New(ctx, cfg, zl)
	if err != nil {
		appLog.Error("runtime setup failed", "err", err)
		return 1
	}
	defer func() { _ = rt.Close() }()

	ops, err := opcache.New(cfg.OpCacheSize, rt.Base, observability.ObserveOpCache)
	if err != nil {
		appLog.Error("op cache setup failed", "err", err)
		return 1
	}
	exec := executor.New(appLog, ops, rt.Authority, executor.Options{
		MaxPoints: cfg.TransformMaxPoints,
		Densify:   cfg.BoundsDensifyDefault,
	})

	runner := kafka.New(kafka.FromConfig(cfg.Invalidation), ops, kafka.Options{
		Logger:   appLog.With("component", "invalidation"),
		Register: mp.Registerer(),
		Catalog:  rt.Authority,
		Inits:    app.PurgeFunc(rt.PurgeInits),
		Grids:    app.PurgeFunc(rt.PurgeGrids),
	})
	if err := runner.Start(ctx); err != nil {
		appLog.Error("invalidation runner failed to start", "err", err)
		return 1
	}
	defer runner.Stop()

	appLog.Info("starting projd",
		"addr", cfg.Addr,
		"version", Version,
		"catalog", cfg.CatalogPath,
		"network", cfg.NetworkEnabled,
		"invalidation", cfg.Invalidation.Enabled)

	deps := server.Deps{Transformer: exec, Ready: runner, Checks: rt.Checks()}
	if cfg.Metrics.Enabled {
		if mp.Separate() {
			go func() {
				if err := mp.Serve(ctx, appLog); err != nil {
					appLog.Error("metrics server exited", "err", err)
				}
			}()
		} else {
			deps.Metrics, deps.MetricsPath = mp.Handler(), mp.Path()
		}
	}

	if err := server.Run(ctx, cfg, appLog, deps); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped", "cached_operations", ops.Len())
	return 0
}
