package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mohammed-shakir/projpipe/internal/authority"
	"github.com/mohammed-shakir/projpipe/internal/core/config"
	"github.com/mohammed-shakir/projpipe/internal/core/model"
	"github.com/mohammed-shakir/projpipe/internal/initfile"
	"github.com/mohammed-shakir/projpipe/internal/invalidation"
	"github.com/mohammed-shakir/projpipe/internal/opcache"
	"github.com/mohammed-shakir/projpipe/pkg/proj"
)

type fakeOps struct {
	mu     sync.Mutex
	all    int
	crs    []string
	grids  []string
	result int
}

func (f *fakeOps) Purge() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.all++
	return f.result
}

func (f *fakeOps) PurgeCRS(ids ...string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.crs = append(f.crs, ids...)
	return f.result
}

func (f *fakeOps) PurgeGrids(names ...string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grids = append(f.grids, names...)
	return f.result
}

type fakeCatalog struct {
	reloads int
	err     error
}

func (c *fakeCatalog) Reload() error {
	c.reloads++
	return c.err
}

func (c *fakeCatalog) Touching(ids ...string) []string { return ids }

type countPurger struct{ n int }

func (p *countPurger) Purge() { p.n++ }

func message(t *testing.T, ev invalidation.Event) *sarama.ConsumerMessage {
	t.Helper()
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	return &sarama.ConsumerMessage{Topic: "t", Partition: 0, Offset: 1, Timestamp: time.Now().UTC(), Value: b}
}

func newRunner(ops OpCache, opts Options) *Runner {
	cfg := InvalidationConfig{Enabled: true, Driver: DriverKafka}
	if opts.Register == nil {
		opts.Register = prometheus.NewRegistry()
	}
	return New(cfg, ops, opts)
}

func TestCRSEvent_ReloadsAndPurges_Idempotent(t *testing.T) {
	ops := &fakeOps{result: 2}
	cat := &fakeCatalog{}
	grids := &countPurger{}
	r := newRunner(ops, Options{Catalog: cat, Grids: grids})

	msg := message(t, invalidation.Event{
		Version: 1, Op: invalidation.OpUpdate, Seq: 4, TS: time.Now().UTC(),
		CRS: []string{"EPSG:4267"}, Grids: []string{"conus"},
	})
	if err := r.handleMessage(context.Background(), msg); err != nil {
		t.Fatalf("handleMessage: %v", err)
	}
	if cat.reloads != 1 || len(ops.crs) != 1 || ops.crs[0] != "EPSG:4267" {
		t.Fatalf("reloads=%d crs=%v", cat.reloads, ops.crs)
	}
	if len(ops.grids) != 1 || grids.n != 1 {
		t.Fatalf("grids=%v grid purges=%d", ops.grids, grids.n)
	}
	if got := testutil.ToFloat64(r.ms.apply.WithLabelValues("purge_ops")); got != 4 {
		t.Fatalf("purge_ops=%v want 4", got)
	}
	if got := testutil.ToFloat64(r.ms.lastSeq.WithLabelValues("default")); got != 4 {
		t.Fatalf("last seq=%v want 4", got)
	}

	// same sequence number again: skipped
	if err := r.handleMessage(context.Background(), msg); err != nil {
		t.Fatalf("second handleMessage: %v", err)
	}
	if cat.reloads != 1 || len(ops.crs) != 1 {
		t.Fatalf("duplicate event applied: reloads=%d", cat.reloads)
	}
	if got := testutil.ToFloat64(r.ms.apply.WithLabelValues("skip_seq")); got != 1 {
		t.Fatalf("skip_seq=%v", got)
	}
}

func TestReloadEvent_PurgesEverything(t *testing.T) {
	ops := &fakeOps{}
	inits, grids := &countPurger{}, &countPurger{}
	r := newRunner(ops, Options{Catalog: &fakeCatalog{}, Inits: inits, Grids: grids})

	msg := message(t, invalidation.Event{Version: 1, Op: invalidation.OpReload, TS: time.Now().UTC()})
	if err := r.handleMessage(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if ops.all != 1 || inits.n != 1 || grids.n != 1 {
		t.Fatalf("ops=%d inits=%d grids=%d", ops.all, inits.n, grids.n)
	}
}

func TestBadMessages(t *testing.T) {
	ops := &fakeOps{}
	r := newRunner(ops, Options{})

	// undecodable and invalid events are dropped without blocking the partition
	if err := r.handleMessage(context.Background(), &sarama.ConsumerMessage{Value: []byte("{")}); err != nil {
		t.Fatalf("undecodable event should be dropped, got %v", err)
	}
	if got := testutil.ToFloat64(r.ms.msgs.WithLabelValues("error")); got != 1 {
		t.Fatalf("error=%v", got)
	}
	msg := message(t, invalidation.Event{Version: 1, Op: "insert", TS: time.Now()})
	if err := r.handleMessage(context.Background(), msg); err != nil {
		t.Fatalf("invalid event should be dropped, got %v", err)
	}
	if got := testutil.ToFloat64(r.ms.msgs.WithLabelValues("invalid")); got != 1 {
		t.Fatalf("invalid=%v", got)
	}

	r = newRunner(ops, Options{Catalog: &fakeCatalog{err: errors.New("disk")}})
	msg = message(t, invalidation.Event{Version: 1, Op: invalidation.OpUpdate, TS: time.Now(), CRS: []string{"EPSG:4326"}})
	if err := r.handleMessage(context.Background(), msg); err == nil {
		t.Fatal("expected reload error")
	}
}

func TestFailedApplyIsRetried(t *testing.T) {
	ops := &fakeOps{}
	cat := &fakeCatalog{err: errors.New("disk")}
	r := newRunner(ops, Options{Catalog: cat})
	msg := message(t, invalidation.Event{
		Version: 1, Op: invalidation.OpUpdate, Seq: 7, Source: "catalog-admin", TS: time.Now(),
		CRS: []string{"EPSG:4326"},
	})

	if err := r.handleMessage(context.Background(), msg); err == nil {
		t.Fatal("expected reload error")
	}
	cat.err = nil
	if err := r.handleMessage(context.Background(), msg); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if cat.reloads != 2 || len(ops.crs) != 1 {
		t.Fatalf("reloads=%d crs=%v", cat.reloads, ops.crs)
	}
	if got := testutil.ToFloat64(r.ms.lastSeq.WithLabelValues("catalog-admin")); got != 7 {
		t.Fatalf("last seq=%v", got)
	}

	// older and equal sequence numbers from the same source are skipped
	for _, seq := range []uint64{7, 3} {
		old := message(t, invalidation.Event{
			Version: 1, Op: invalidation.OpUpdate, Seq: seq, Source: "catalog-admin", TS: time.Now(),
			CRS: []string{"EPSG:4326"},
		})
		if err := r.handleMessage(context.Background(), old); err != nil {
			t.Fatal(err)
		}
	}
	if cat.reloads != 2 {
		t.Fatalf("stale events applied: reloads=%d", cat.reloads)
	}
}

func TestSeqTracker(t *testing.T) {
	tr := newSeqTracker(1)
	if tr.stale("a", 1) {
		t.Fatal("unseen source is not stale")
	}
	tr.commit("a", 5)
	tr.commit("a", 2)
	if !tr.stale("a", 5) || tr.stale("a", 6) {
		t.Fatal("commit must keep the highest seq")
	}
	if tr.stale("a", 0) {
		t.Fatal("zero seq is never stale")
	}
	// capacity one: b evicts a
	tr.commit("b", 1)
	if tr.stale("a", 5) {
		t.Fatal("evicted source starts over")
	}
}

func TestReadiness(t *testing.T) {
	r := New(InvalidationConfig{Driver: DriverNone}, &fakeOps{}, Options{})
	if ready, _ := r.Readiness(); !ready {
		t.Fatal("disabled runner should be ready")
	}
	r = newRunner(&fakeOps{}, Options{})
	if ready, _ := r.Readiness(); ready {
		t.Fatal("kafka runner without assignment should not be ready")
	}

	r.setAssignment(map[string][]int32{"catalog-changes": {2}})
	ready, parts := r.Readiness()
	if !ready || len(parts) != 1 || parts[0] != 2 {
		t.Fatalf("ready=%v parts=%v", ready, parts)
	}
	if got := testutil.ToFloat64(r.ms.partitions); got != 1 {
		t.Fatalf("partitions gauge=%v", got)
	}
	r.setAssignment(nil)
	if ready, _ := r.Readiness(); ready {
		t.Fatal("cleared assignment should not be ready")
	}
	if got := testutil.ToFloat64(r.ms.partitions); got != 0 {
		t.Fatalf("partitions gauge=%v", got)
	}
}

func TestSaramaConfig(t *testing.T) {
	c := FromConfig(config.InvalidationCfg{Driver: "Kafka", Brokers: "a:9092, b:9092,", Topic: "t", GroupID: "g"})
	if c.Driver != DriverKafka || len(c.Brokers) != 2 || c.Brokers[1] != "b:9092" {
		t.Fatalf("config=%+v", c)
	}
	sc := saramaConfig(c)
	if sc.Consumer.Offsets.Initial != sarama.OffsetOldest || !sc.Consumer.Return.Errors {
		t.Fatalf("offsets=%d errors=%v", sc.Consumer.Offsets.Initial, sc.Consumer.Return.Errors)
	}
	if err := sc.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	c.InitialOldest = false
	if saramaConfig(c).Consumer.Offsets.Initial != sarama.OffsetNewest {
		t.Fatal("expected newest offset")
	}
}

// An init file change in Redis becomes visible once the event went through.
func TestInitFilesEvent_RedisEndToEnd(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	rds, err := initfile.NewRedis(ctx, mr.Addr(), nil)
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	t.Cleanup(func() { _ = rds.Close() })
	if err := rds.Store(ctx, "projd", "site", "proj=utm zone=32"); err != nil {
		t.Fatal(err)
	}
	inits, err := initfile.NewCached(rds, 16, nil)
	if err != nil {
		t.Fatal(err)
	}

	base := proj.NewContext(proj.WithInitResolver(inits), proj.WithAuthority(authority.NewStore(authority.Default(), "")))
	ops, err := opcache.New(8, base, nil)
	if err != nil {
		t.Fatal(err)
	}
	build := func(c *proj.Context) (*proj.PJ, error) { return proj.Create(c, "init=projd:site") }
	key := opcache.DefinitionKey("init=projd:site")
	e, err := ops.Get(key, opcache.Meta{}, build)
	if err != nil || e == nil {
		t.Fatalf("get: %v", err)
	}

	if err := rds.Store(ctx, "projd", "site", "proj=utm zone=33"); err != nil {
		t.Fatal(err)
	}
	r := newRunner(ops, Options{Inits: inits})
	msg := message(t, invalidation.Event{
		Version: 1, Op: invalidation.OpUpdate, Seq: 1, TS: time.Now().UTC(), InitFiles: []string{"projd"},
	})
	if err := r.handleMessage(ctx, msg); err != nil {
		t.Fatal(err)
	}
	if ops.Len() != 0 || inits.Len() != 0 {
		t.Fatalf("caches not purged: ops=%d inits=%d", ops.Len(), inits.Len())
	}

	e, err = ops.Get(key, opcache.Meta{}, build)
	if err != nil {
		t.Fatal(err)
	}
	// zone 33 has its central meridian at 15 degrees
	var x float64
	_ = e.Do(func(p *proj.PJ) error {
		x = p.Trans(model.Fwd, model.Coord{15 * model.DegToRad, 0})[0]
		return nil
	})
	if x < 499999 || x > 500001 {
		t.Fatalf("x=%v, handle still uses the old section", x)
	}
}
