package proj

import (
	"errors"
	"slices"

	"github.com/tidwall/geodesic"

	"github.com/mohammed-shakir/projpipe/internal/core/model"
	"github.com/mohammed-shakir/projpipe/internal/operations"
)

type Coord = model.Coord

type kind int

const (
	kindLeaf kind = iota
	kindPipeline
	kindPush
	kindPop
	kindAlternatives
)

type kernelFunc func(model.Coord) (model.Coord, error)

// PJ is a transformation handle: a leaf operator, a pipeline of handles,
// a push/pop pseudo operator or a set of candidate operations.
type PJ struct {
	ctx   *Context
	kind  kind
	name  string
	descr string
	// label is the catalog identifier of an operation built from a candidate
	label string
	// definition the handle was built from, used by Clone and Info
	definition string
	params     *model.Params
	opts       createOptions

	op          operations.Operation
	fwd, inv    kernelFunc
	left, right model.Unit
	inverted    bool
	skipPrepFin bool

	ellipsoid     model.Ellipsoid
	geod          *geodesic.Ellipsoid
	lam0, phi0    float64
	k0            float64
	x0, y0, z0    float64
	fromGreenwich float64
	toMeter       float64
	frMeter       float64
	vtoMeter      float64
	vfrMeter      float64
	over          bool
	geoc          bool
	geocentric    bool
	lonWrap       bool
	lonWrapCenter float64

	// cs2cs style helpers
	axisswap   *PJ
	hgridshift *PJ
	vgridshift *PJ
	helmert    *PJ
	cart       *PJ
	cartWGS84  *PJ

	// pipeline
	steps            []*PJ
	stacks           [4][]float64
	omitFwd, omitInv bool

	// push and pop; parent is the enclosing pipeline, not owned
	parent *PJ
	flags  [4]bool

	// candidate operations
	alts  []CoordOperation
	curOp int

	hasEpoch    bool
	epoch       float64
	errorIfBest bool
	warnIfBest  bool
	srcCRS      string
	dstCRS      string
	accuracy    float64
}

func (p *PJ) Context() *Context {
	if p == nil {
		return DefaultContext()
	}
	return p.ctx
}

// Errno returns the error cell of the handle's context.
func (p *PJ) Errno() model.Errno { return p.Context().Errno() }

func (p *PJ) ErrnoReset() model.Errno { return p.Context().ErrnoReset() }

func (p *PJ) ErrnoRestore(e model.Errno) { p.Context().ErrnoRestore(e) }

func (p *PJ) ID() string { return p.name }

func (p *PJ) Description() string { return p.descr }

func (p *PJ) Definition() string { return p.definition }

func (p *PJ) Inverted() bool { return p.inverted }

// SetEpoch fixes the coordinate epoch applied before every call.
func (p *PJ) SetEpoch(t float64) {
	p.hasEpoch, p.epoch = true, t
}

// Left and Right return the unit contract of the handle as it will be
// called, with classic units reported as projected.
func (p *PJ) Left() model.Unit {
	if len(p.alts) > 0 {
		return p.alts[0].PJ.Left()
	}
	u := p.left
	if p.inverted {
		u = p.right
	}
	return u.Comparable()
}

func (p *PJ) Right() model.Unit {
	if len(p.alts) > 0 {
		return p.alts[0].PJ.Right()
	}
	u := p.right
	if p.inverted {
		u = p.left
	}
	return u.Comparable()
}

func (p *PJ) inputUnit(dir model.Direction) model.Unit {
	if dir == model.Inv {
		return p.Right()
	}
	return p.Left()
}

func (p *PJ) outputUnit(dir model.Direction) model.Unit {
	if dir == model.Inv {
		return p.Left()
	}
	return p.Right()
}

func (p *PJ) AngularInput(dir model.Direction) bool {
	return p.inputUnit(dir) == model.UnitRadians
}

func (p *PJ) AngularOutput(dir model.Direction) bool {
	return p.outputUnit(dir) == model.UnitRadians
}

func (p *PJ) DegreeInput(dir model.Direction) bool {
	return p.inputUnit(dir) == model.UnitDegrees
}

func (p *PJ) DegreeOutput(dir model.Direction) bool {
	return p.outputUnit(dir) == model.UnitDegrees
}

// canRun reports whether the kernel supports dir, before applying the
// inverted flag.
func (p *PJ) canRun(dir model.Direction) bool {
	switch p.kind {
	case kindAlternatives:
		return true
	}
	if dir == model.Inv {
		return p.inv != nil
	}
	return p.fwd != nil
}

// HasInverse reports whether the handle can run in the opposite direction
// of the one it is called with.
func (p *PJ) HasInverse() bool {
	if p.inverted {
		return p.canRun(model.Fwd)
	}
	return p.canRun(model.Inv)
}

// Destroy detaches everything the handle owns. It is safe on partially
// built handles and may be called more than once.
func (p *PJ) Destroy() {
	if p == nil {
		return
	}
	for _, s := range p.steps {
		s.Destroy()
	}
	p.steps = nil
	for i := range p.stacks {
		p.stacks[i] = nil
	}
	for i := range p.alts {
		p.alts[i].PJ.Destroy()
	}
	p.alts = nil
	for _, h := range []*PJ{p.axisswap, p.hgridshift, p.vgridshift, p.helmert, p.cart, p.cartWGS84} {
		h.Destroy()
	}
	p.axisswap, p.hgridshift, p.vgridshift = nil, nil, nil
	p.helmert, p.cart, p.cartWGS84 = nil, nil, nil
	p.parent = nil
	p.op, p.fwd, p.inv = nil, nil, nil
}

// Clone builds an independent handle equivalent to p.
func (p *PJ) Clone() (*PJ, error) {
	if p == nil {
		return nil, model.Errorf(model.ErrOtherAPIMisuse, "clone of a nil handle")
	}
	if p.kind == kindAlternatives {
		cp := *p
		cp.alts = make([]CoordOperation, len(p.alts))
		for i, a := range p.alts {
			c, err := a.clone()
			if err != nil {
				return nil, err
			}
			cp.alts[i] = c
		}
		cp.steps = nil
		cp.curOp = -1
		return &cp, nil
	}
	q, err := createWith(p.ctx, p.definition, p.opts)
	if err != nil {
		return nil, err
	}
	q.inverted = p.inverted
	q.label = p.label
	q.hasEpoch, q.epoch = p.hasEpoch, p.epoch
	q.errorIfBest, q.warnIfBest = p.errorIfBest, p.warnIfBest
	q.srcCRS, q.dstCRS = p.srcCRS, p.dstCRS
	q.accuracy = p.accuracy
	if p.over {
		q.setOver(true)
	}
	if p.descr != "" {
		q.descr = p.descr
	}
	return q, nil
}

// GridsNeeded lists the grid names referenced anywhere below p.
func (p *PJ) GridsNeeded() []string {
	var out []string
	add := func(names []string) {
		for _, n := range names {
			if !slices.Contains(out, n) {
				out = append(out, n)
			}
		}
	}
	if p == nil {
		return nil
	}
	if g, ok := p.op.(operations.GridUser); ok {
		add(g.GridNames())
	}
	for _, s := range p.steps {
		add(s.GridsNeeded())
	}
	for _, h := range []*PJ{p.hgridshift, p.vgridshift} {
		add(h.GridsNeeded())
	}
	for _, a := range p.alts {
		add(a.GridsNeeded)
	}
	return out
}

// Instantiable reports whether every grid p needs can be opened, or network
// access is enabled.
func (p *PJ) Instantiable() bool {
	if p.ctx.network {
		return true
	}
	for _, g := range p.GridsNeeded() {
		if !p.ctx.gridAvailable(g) {
			return false
		}
	}
	return true
}

// setOver disables longitude wrapping on p and every step below it.
func (p *PJ) setOver(v bool) {
	p.over = v
	for _, s := range p.steps {
		s.setOver(v)
	}
}

// Info describes a handle.
type Info struct {
	ID string
	// Name is the catalog identifier, empty for handles built from a
	// definition.
	Name        string
	Description string
	Definition  string
	HasInverse  bool
	// Accuracy in meters, negative when unknown.
	Accuracy float64
}

func (p *PJ) Info() Info {
	info := Info{
		ID:          p.name,
		Name:        p.label,
		Description: p.descr,
		Definition:  p.definition,
		HasInverse:  p.HasInverse(),
		Accuracy:    p.accuracy,
	}
	if p.kind == kindAlternatives {
		info.HasInverse = true
		for _, a := range p.alts {
			if !a.PJ.HasInverse() {
				info.HasInverse = false
			}
		}
	}
	return info
}

func hasCode(err error) bool {
	var e *model.Error
	return errors.As(err, &e)
}
