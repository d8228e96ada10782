// Package proj is the coordinate operation runtime: it compiles definitions
// into operator trees, selects among candidate operations and drives
// coordinates through them.
//
// A Context and the handles created from it are not safe for concurrent
// use. Callers either keep one context per goroutine or lock around it.
package proj

import (
	"context"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mohammed-shakir/projpipe/internal/authority"
	"github.com/mohammed-shakir/projpipe/internal/core/model"
	"github.com/mohammed-shakir/projpipe/internal/grids"
)

// LogLevel is the classic NONE/ERROR/DEBUG/TRACE verbosity scale.
type LogLevel int

const (
	LogNone LogLevel = iota
	LogError
	LogDebug
	LogTrace
)

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case LogNone:
		return zerolog.Disabled
	case LogDebug:
		return zerolog.DebugLevel
	case LogTrace:
		return zerolog.TraceLevel
	default:
		// warnings are part of the error level
		return zerolog.WarnLevel
	}
}

// InitResolver returns the definition stored under section in an init file.
type InitResolver interface {
	Lookup(ctx context.Context, file, section string) (string, error)
}

// Authority lists candidate operations between two CRSs and describes the
// CRSs themselves.
type Authority interface {
	Candidates(ctx context.Context, src, tgt string, q authority.Query) ([]authority.Candidate, error)
	LookupCRS(id string) (authority.CRS, error)
	GeographicHelper(id string, gridAvailable func(string) bool) (authority.Helper, error)
}

// Hooks are called by the dispatcher so callers can count retries and
// fallbacks without the runtime knowing about their metrics.
type Hooks struct {
	OnRetry       func(op string)
	OnFallback    func(op string)
	OnNoOperation func()
}

type Context struct {
	errno model.Errno

	logger    zerolog.Logger
	level     LogLevel
	init      InitResolver
	grids     grids.Provider
	authority Authority
	network   bool
	onlyBest  bool
	hooks     Hooks
	base      context.Context
}

type Option func(*Context)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Context) { c.logger = l }
}

func WithLogLevel(l LogLevel) Option {
	return func(c *Context) { c.level = l }
}

func WithInitResolver(r InitResolver) Option {
	return func(c *Context) { c.init = r }
}

func WithGrids(p grids.Provider) Option {
	return func(c *Context) { c.grids = p }
}

func WithAuthority(a Authority) Option {
	return func(c *Context) { c.authority = a }
}

// WithNetwork marks remote grid access as enabled, which makes
// CreateCrsToCrs keep candidates whose grids are not available locally.
func WithNetwork(enabled bool) Option {
	return func(c *Context) { c.network = enabled }
}

// WithOnlyBestDefault sets the ONLY_BEST policy used when a CreateCrsToCrs
// call does not give one.
func WithOnlyBestDefault(v bool) Option {
	return func(c *Context) { c.onlyBest = v }
}

func WithHooks(h Hooks) Option {
	return func(c *Context) { c.hooks = h }
}

// WithBaseContext sets the context.Context used for grid and init lookups.
func WithBaseContext(ctx context.Context) Option {
	return func(c *Context) { c.base = ctx }
}

var defaultCatalog = sync.OnceValue(authority.Default)

func NewContext(opts ...Option) *Context {
	c := &Context{
		logger: zerolog.New(io.Discard),
		level:  LogError,
		base:   context.Background(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.authority == nil {
		c.authority = defaultCatalog()
	}
	if c.base == nil {
		c.base = context.Background()
	}
	c.logger = c.logger.Level(c.level.zerolog())
	return c
}

var (
	defaultOnce sync.Once
	defaultCtx  *Context
)

// DefaultContext returns the process wide context, created on first use.
func DefaultContext() *Context {
	defaultOnce.Do(func() { defaultCtx = NewContext() })
	return defaultCtx
}

func orDefault(c *Context) *Context {
	if c == nil {
		return DefaultContext()
	}
	return c
}

// Clone copies the configuration of c. The error cell starts out clear.
func (c *Context) Clone() *Context {
	c = orDefault(c)
	cp := *c
	cp.errno = 0
	return &cp
}

func (c *Context) SetLogLevel(l LogLevel) {
	c.level = l
	c.logger = c.logger.Level(l.zerolog())
}

func (c *Context) LogLevel() LogLevel { return c.level }

func (c *Context) Logger() *zerolog.Logger { return &c.logger }

func (c *Context) Authority() Authority { return c.authority }

func (c *Context) Grids() grids.Provider { return c.grids }

func (c *Context) Errno() model.Errno { return c.errno }

func (c *Context) SetErrno(e model.Errno) { c.errno = e }

// ErrnoReset clears the error cell and returns its previous value.
func (c *Context) ErrnoReset() model.Errno {
	last := c.errno
	c.errno = 0
	return last
}

// ErrnoRestore puts back a value saved by ErrnoReset, unless a new error
// was raised in between.
func (c *Context) ErrnoRestore(e model.Errno) {
	if e == 0 {
		return
	}
	c.errno = e
}

func ErrnoString(code model.Errno) string { return code.String() }

// setError records err in the error cell. Errors without a code count as
// a generic transformation failure.
func (c *Context) setError(err error, fallback model.Errno) model.Errno {
	code := model.CodeOf(err)
	if code == model.ErrOther && !hasCode(err) {
		code = fallback
	}
	c.errno = code
	return code
}

func (c *Context) goContext() context.Context {
	if c.base == nil {
		return context.Background()
	}
	return c.base
}

func (c *Context) gridAvailable(name string) bool {
	if c.grids == nil {
		return false
	}
	return c.grids.Has(c.goContext(), name)
}
