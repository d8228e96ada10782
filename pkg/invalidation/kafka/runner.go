package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammed-shakir/projpipe/internal/invalidation"
)

// OpCache holds prepared transformation handles.
type OpCache interface {
	Purge() int
	PurgeCRS(ids ...string) int
	PurgeGrids(names ...string) int
}

// Catalog is the live authority catalog.
type Catalog interface {
	Reload() error
	Touching(ids ...string) []string
}

// Purger drops every cached value, such as the init section cache or the
// grid cache.
type Purger interface {
	Purge()
}

type Runner struct {
	log      *slog.Logger
	cfg      InvalidationConfig
	ops      OpCache
	catalog  Catalog
	inits    Purger
	grids    Purger
	ms       *metricSet
	seq      *seqTracker
	assigned atomic.Bool
	assignMu sync.RWMutex
	assign   map[int32]struct{}
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

type Options struct {
	Logger   *slog.Logger
	Register prometheus.Registerer
	Catalog  Catalog
	Inits    Purger
	Grids    Purger
}

func New(cfg InvalidationConfig, ops OpCache, opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runner{
		log:     opts.Logger,
		cfg:     cfg,
		ops:     ops,
		catalog: opts.Catalog,
		inits:   opts.Inits,
		grids:   opts.Grids,
		ms:      newMetricSet(opts.Register),
		seq:     newSeqTracker(1024),
		assign:  map[int32]struct{}{},
	}
}

func (r *Runner) Start(ctx context.Context) error {
	if r.cfg.Driver != DriverKafka || !r.cfg.Enabled {
		r.log.Info("invalidation runner disabled", "driver", r.cfg.Driver, "enabled", r.cfg.Enabled)
		return nil
	}
	if r.ops == nil {
		return errors.New("kafka runner: op cache dependency is required")
	}

	group, err := sarama.NewConsumerGroup(r.cfg.Brokers, r.cfg.GroupID, saramaConfig(r.cfg))
	if err != nil {
		return fmt.Errorf("consumer group: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	h := &groupHandler{
		setup:   func(sess sarama.ConsumerGroupSession) { r.setAssignment(sess.Claims()) },
		cleanup: func(sarama.ConsumerGroupSession) { r.setAssignment(nil) },
		process: r.handleMessage,
	}
	r.wg.Add(2)
	go r.consume(ctx, group, h)
	go func() {
		defer r.wg.Done()
		for err := range group.Errors() {
			r.log.Error("kafka group error", "err", err)
		}
	}()

	r.log.Info("kafka invalidation runner started",
		"topic", r.cfg.Topic, "group", r.cfg.GroupID, "brokers", r.cfg.Brokers)
	return nil
}

func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.log.Info("kafka invalidation runner stopped")
}

// Readiness reports whether the consumer holds a partition assignment. A
// disabled runner is always ready.
func (r *Runner) Readiness() (ready bool, partitions []int32) {
	if r.cfg.Driver != DriverKafka || !r.cfg.Enabled {
		return true, nil
	}
	if !r.assigned.Load() {
		return false, nil
	}
	r.assignMu.RLock()
	defer r.assignMu.RUnlock()
	for p := range r.assign {
		partitions = append(partitions, p)
	}
	return true, partitions
}

func (r *Runner) handleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()

	if !msg.Timestamp.IsZero() {
		r.ms.lagGauge.Set(time.Since(msg.Timestamp).Seconds())
	}

	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		// redelivering it would block the partition
		r.ms.msgs.WithLabelValues("error").Inc()
		r.log.ErrorContext(ctx, "undecodable catalog event",
			"partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		r.ms.msgs.WithLabelValues("invalid").Inc()
		r.log.WarnContext(ctx, "dropping invalid catalog event",
			"partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	if r.seq.stale(ev.SourceKey(), ev.Seq) {
		r.ms.apply.WithLabelValues("skip_seq").Inc()
		r.ms.msgs.WithLabelValues("ok").Inc()
		return nil
	}

	err := r.apply(ctx, ev)
	if err == nil && ev.Seq > 0 {
		r.seq.commit(ev.SourceKey(), ev.Seq)
		r.ms.lastSeq.WithLabelValues(ev.SourceKey()).Set(float64(ev.Seq))
	}
	r.observe(ev.Op, err, time.Since(start))
	return err
}

func (r *Runner) observe(op string, err error, dur time.Duration) {
	if op == "" {
		op = "unknown"
	}
	if err != nil {
		r.ms.msgs.WithLabelValues("error").Inc()
	} else {
		r.ms.msgs.WithLabelValues("ok").Inc()
	}
	r.ms.proc.WithLabelValues(op).Observe(dur.Seconds())
}

// apply reloads the catalog when CRS definitions changed and then drops
// whatever was derived from the touched entries.
func (r *Runner) apply(ctx context.Context, ev invalidation.Event) error {
	if r.catalog != nil && (ev.Op == invalidation.OpReload || len(ev.CRS) > 0) {
		if err := r.catalog.Reload(); err != nil {
			return fmt.Errorf("catalog reload: %w", err)
		}
		r.ms.apply.WithLabelValues("reload").Inc()
	}

	if ev.Op == invalidation.OpReload {
		n := r.ops.Purge()
		r.ms.apply.WithLabelValues("purge_ops").Add(float64(n))
		r.purge(r.inits, "purge_inits")
		r.purge(r.grids, "purge_grids")
		r.log.InfoContext(ctx, "catalog reloaded", "ops_purged", n)
		return nil
	}

	if len(ev.CRS) > 0 {
		n := r.ops.PurgeCRS(ev.CRS...)
		r.ms.apply.WithLabelValues("purge_ops").Add(float64(n))
		touched := 0
		if r.catalog != nil {
			touched = len(r.catalog.Touching(ev.CRS...))
		}
		r.log.InfoContext(ctx, "crs invalidated",
			"crs", ev.CRS, "ops_purged", n, "catalog_operations", touched)
	}
	if len(ev.Grids) > 0 {
		n := r.ops.PurgeGrids(ev.Grids...)
		r.ms.apply.WithLabelValues("purge_ops").Add(float64(n))
		r.purge(r.grids, "purge_grids")
		r.log.InfoContext(ctx, "grids invalidated", "grids", ev.Grids, "ops_purged", n)
	}
	if len(ev.InitFiles) > 0 {
		// handles expanded from init files cannot be told apart
		n := r.ops.Purge()
		r.ms.apply.WithLabelValues("purge_ops").Add(float64(n))
		r.purge(r.inits, "purge_inits")
		r.log.InfoContext(ctx, "init files invalidated", "files", ev.InitFiles, "ops_purged", n)
	}
	return nil
}

func (r *Runner) purge(p Purger, action string) {
	if p == nil {
		return
	}
	p.Purge()
	r.ms.apply.WithLabelValues(action).Inc()
}
