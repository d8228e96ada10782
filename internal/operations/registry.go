// Package operations holds the leaf operator kernels and the registry the
// factory looks them up in.
package operations

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mohammed-shakir/projpipe/internal/core/model"
	"github.com/mohammed-shakir/projpipe/internal/grids"
)

// Operation is a constructed kernel. Kernels implement Forwarder and/or
// Inverter; a kernel implementing neither cannot be used.
type Operation interface {
	Units() (left, right model.Unit)
}

type Forwarder interface {
	Forward(c model.Coord) (model.Coord, error)
}

type Inverter interface {
	Inverse(c model.Coord) (model.Coord, error)
}

// Geocentric is implemented by kernels whose output is geocentric cartesian
// space reached through a synthesized cart helper.
type Geocentric interface {
	Geocentric() bool
}

// GridUser is implemented by kernels that read shift grids. GridNames lists
// the grids that must be present.
type GridUser interface {
	GridNames() []string
}

// Setup is what a constructor receives. Constructors may overwrite the
// projection fields (Lam0, K0, X0, ...) and the factory reads them back.
type Setup struct {
	Name      string
	Params    *model.Params
	Ellipsoid model.Ellipsoid

	Lam0, Phi0 float64
	K0         float64
	X0, Y0, Z0 float64

	Grids      grids.Provider
	DeferGrids bool
	Context    context.Context
	Logger     zerolog.Logger
}

func (s *Setup) ctx() context.Context {
	if s.Context == nil {
		return context.Background()
	}
	return s.Context
}

type Constructor func(s *Setup) (Operation, error)

// Descriptor registers a kernel.
type Descriptor struct {
	Description    string
	NeedsEllipsoid bool
	New            Constructor
}

var (
	regMu sync.RWMutex
	reg   = map[string]Descriptor{}
)

func Register(name string, d Descriptor) {
	regMu.Lock()
	defer regMu.Unlock()
	if _, dup := reg[name]; dup {
		panic(fmt.Sprintf("operations: %q registered twice", name))
	}
	reg[name] = d
}

func Lookup(name string) (Descriptor, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	d, ok := reg[name]
	return d, ok
}

func Names() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(reg))
	for k := range reg {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type forwardOnly struct {
	Forwarder
	left, right model.Unit
}

func (f forwardOnly) Units() (model.Unit, model.Unit) { return f.left, f.right }

// ForwardOnly hides the inverse of op.
func ForwardOnly(op interface {
	Operation
	Forwarder
}) Operation {
	l, r := op.Units()
	return forwardOnly{Forwarder: op, left: l, right: r}
}

// units is embedded by kernels with a fixed unit contract.
type units struct {
	left, right model.Unit
}

func (u units) Units() (model.Unit, model.Unit) { return u.left, u.right }
