package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/rs/zerolog"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	return m
}

func TestFromContextFields(t *testing.T) {
	var buf bytes.Buffer
	base := Build(Config{Level: "debug", Component: "projd"}, &buf)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithOperation(ctx, "EPSG:4326->EPSG:32632")
	ctx = WithComponent(ctx, "router")
	FromContext(ctx, &base).Info().Msg("transform")

	m := decode(t, &buf)
	if m["request_id"] != "req-1" || m["operation"] != "EPSG:4326->EPSG:32632" {
		t.Fatalf("missing context fields: %v", m)
	}
	if m["msg"] != "transform" || m["timestamp"] == nil {
		t.Fatalf("bad envelope: %v", m)
	}
}

func TestWithRequestIDGenerates(t *testing.T) {
	ctx := WithRequestID(context.Background(), "")
	id, _ := ctx.Value(ctxReqIDKey).(string)
	if len(id) != 16 {
		t.Fatalf("want 16 hex chars, got %q", id)
	}
	if WithOperation(ctx, "") != ctx {
		t.Fatal("empty operation should keep the context")
	}
}

func TestSlogBridge(t *testing.T) {
	var buf bytes.Buffer
	base := Build(Config{Level: "info"}, &buf)
	l := NewSlog(&base).With("route", "/transform")
	l.WarnContext(WithRequestID(context.Background(), "abc"), "slow", slog.Int("points", 3))

	m := decode(t, &buf)
	if m["level"] != "warn" || m["route"] != "/transform" || m["request_id"] != "abc" {
		t.Fatalf("unexpected record: %v", m)
	}
	if m["points"] != float64(3) {
		t.Fatalf("points=%v", m["points"])
	}
}

func TestSlogBridge_GroupsAndLevels(t *testing.T) {
	var buf bytes.Buffer
	base := Build(Config{Level: "info"}, &buf)
	l := NewSlog(&base)

	if l.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug should be disabled at info")
	}
	l.DebugContext(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("unexpected output %s", buf.String())
	}

	l.WithGroup("grid").Info("fetched", slog.String("name", "conus"), slog.Group("size", slog.Int("rows", 3)))
	m := decode(t, &buf)
	if m["grid.name"] != "conus" || m["grid.size.rows"] != float64(3) {
		t.Fatalf("group keys missing: %v", m)
	}
}

func TestComponentLevelOverridesService(t *testing.T) {
	var buf bytes.Buffer
	base := Build(Config{Level: "warn"}, &buf)

	base.Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn: %s", buf.String())
	}

	rt := Component(base, "proj", zerolog.TraceLevel)
	rt.Trace().Msg("step")
	m := decode(t, &buf)
	if m["component"] != "proj" || m["level"] != "trace" {
		t.Fatalf("unexpected record: %v", m)
	}

	if got := Component(base, "x", zerolog.NoLevel).GetLevel(); got != zerolog.WarnLevel {
		t.Fatalf("NoLevel should inherit, got %v", got)
	}
	if ParseLevel("bogus") != zerolog.InfoLevel || ParseLevel(" Debug ") != zerolog.DebugLevel {
		t.Fatal("ParseLevel")
	}
}
