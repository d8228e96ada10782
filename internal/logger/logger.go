// Package logger builds the service's zerolog loggers and carries request
// scoped fields through context.Context.
package logger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level     string
	Console   bool
	SampleN   int
	Component string
}

type ctxKey string

const (
	ctxReqIDKey  ctxKey = "request_id"
	ctxOperation ctxKey = "operation"
	ctxComponent ctxKey = "component"
)

// order in which context fields are written
var ctxFields = [...]ctxKey{ctxReqIDKey, ctxComponent, ctxOperation}

func with(ctx context.Context, k ctxKey, v string) context.Context {
	if v == "" {
		return ctx
	}
	return context.WithValue(ctx, k, v)
}

// WithRequestID stores reqID, generating one when empty.
func WithRequestID(ctx context.Context, reqID string) context.Context {
	if reqID == "" {
		reqID = NewID()
	}
	return with(ctx, ctxReqIDKey, reqID)
}

// WithOperation tags the context with the coordinate operation being used,
// typically a CRS pair such as "EPSG:4326->EPSG:32632" or a definition.
func WithOperation(ctx context.Context, op string) context.Context {
	return with(ctx, ctxOperation, op)
}

func WithComponent(ctx context.Context, component string) context.Context {
	return with(ctx, ctxComponent, component)
}

func NewID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// Build configures zerolog's field names and returns the root logger.
func Build(cfg Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "timestamp"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "msg"
	// levels live on each logger so components such as the runtime can log
	// below the service level
	zerolog.SetGlobalLevel(zerolog.TraceLevel)

	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	base := zerolog.New(out).Level(ParseLevel(cfg.Level))
	if cfg.SampleN > 0 {
		n := uint32(math.MaxUint32)
		if uint64(cfg.SampleN) < math.MaxUint32 {
			n = uint32(cfg.SampleN)
		}
		base = base.Sample(&zerolog.BasicSampler{N: n})
	}

	zc := base.With().Timestamp()
	if cfg.Component != "" {
		zc = zc.Str("component", cfg.Component)
	}
	return zc.Logger()
}

// ParseLevel maps a LOG_LEVEL value onto zerolog; unknown values are info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "off", "disabled":
		return zerolog.Disabled
	}
	return zerolog.InfoLevel
}

// Component returns a child tagged with name. A level other than
// zerolog.NoLevel overrides the parent's.
func Component(parent zerolog.Logger, name string, lvl zerolog.Level) zerolog.Logger {
	l := parent.With().Str("component", name).Logger()
	if lvl != zerolog.NoLevel {
		l = l.Level(lvl)
	}
	return l
}

// FromContext returns a child of parent carrying the request id, component
// and operation found in ctx. A nil parent discards.
func FromContext(ctx context.Context, parent *zerolog.Logger) *zerolog.Logger {
	base := zerolog.Nop()
	if parent != nil {
		base = *parent
	}
	w := base.With()
	for _, k := range ctxFields {
		if s, ok := ctx.Value(k).(string); ok && s != "" {
			w = w.Str(string(k), s)
		}
	}
	l := w.Logger()
	return &l
}
