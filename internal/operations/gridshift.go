package operations

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/mohammed-shakir/projpipe/internal/core/model"
	"github.com/mohammed-shakir/projpipe/internal/grids"
)

func init() {
	Register("hgridshift", Descriptor{Description: "Horizontal grid shift", New: newHgridshift})
	Register("vgridshift", Descriptor{Description: "Vertical grid shift", New: newVgridshift})
}

type gridRef struct {
	name     string
	optional bool
}

// parseGridList splits a grids= value. A leading '@' marks a grid as
// optional.
func parseGridList(s string) []gridRef {
	var out []gridRef
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		ref := gridRef{name: part}
		if strings.HasPrefix(part, "@") {
			ref.name, ref.optional = part[1:], true
		}
		out = append(out, ref)
	}
	return out
}

// GridNamesOf returns the names referenced by a grids= value, without the
// optional marker.
func GridNamesOf(s string) (names []string, optional []bool) {
	for _, r := range parseGridList(s) {
		names = append(names, r.name)
		optional = append(optional, r.optional)
	}
	return names, optional
}

// gridSet loads its grids once, either at construction or at first use.
type gridSet struct {
	setup *Setup
	refs  []gridRef

	once  sync.Once
	grids []*grids.Grid
	err   error
}

func newGridSet(s *Setup) (*gridSet, error) {
	spec, ok := s.Params.String("grids")
	if !ok || strings.TrimSpace(spec) == "" {
		return nil, model.Errorf(model.ErrInvalidOpMissingArg, "%s: +grids parameter missing", s.Name)
	}
	gs := &gridSet{setup: s, refs: parseGridList(spec)}
	if !s.DeferGrids {
		if _, err := gs.load(); err != nil {
			if model.CodeOf(err) == model.ErrOtherNetworkError {
				return nil, err
			}
			return nil, model.Errorf(model.ErrInvalidOpFileNotFoundOrInvalid, "%s: could not find required grid(s): %v", s.Name, err)
		}
	}
	return gs, nil
}

func (g *gridSet) load() ([]*grids.Grid, error) {
	g.once.Do(func() {
		provider := g.setup.Grids
		for _, ref := range g.refs {
			if provider == nil {
				if ref.optional {
					continue
				}
				g.err = model.Errorf(model.ErrInvalidOpFileNotFoundOrInvalid, "grid %s: no grid provider configured", ref.name)
				return
			}
			grid, err := provider.Open(g.setup.ctx(), ref.name)
			if err != nil {
				if ref.optional && errors.Is(err, grids.ErrNotFound) {
					g.setup.Logger.Debug().Str("grid", ref.name).Msg("optional grid not found")
					continue
				}
				if model.CodeOf(err) == model.ErrOtherNetworkError {
					g.err = err
				} else {
					g.err = model.Errorf(model.ErrInvalidOpFileNotFoundOrInvalid, "grid %s: %v", ref.name, err)
				}
				return
			}
			g.grids = append(g.grids, grid)
		}
	})
	return g.grids, g.err
}

// names lists the required grids; optional ones never block an operation.
func (g *gridSet) names() []string {
	var out []string
	for _, r := range g.refs {
		if !r.optional {
			out = append(out, r.name)
		}
	}
	return out
}

// find returns the first grid containing lon/lat (radians). It returns a nil
// grid and no error when none of the (optional) grids could be loaded, in
// which case the point passes through unchanged.
func (g *gridSet) find(lam, phi float64) (*grids.Grid, float64, float64, error) {
	list, err := g.load()
	if err != nil || len(list) == 0 {
		return nil, 0, 0, err
	}
	lon, lat := lam*model.RadToDeg, phi*model.RadToDeg
	for _, grid := range list {
		if grid.Contains(lon, lat) {
			return grid, lon, lat, nil
		}
		// grids defined in 0..360
		if lon < 0 && grid.Contains(lon+360, lat) {
			return grid, lon + 360, lat, nil
		}
	}
	return nil, lon, lat, model.Errorf(model.ErrCoordTransfmOutsideGrid, "point outside of grid(s) %s", strings.Join(g.names(), ","))
}

// temporal gates a grid operator on t_epoch/t_final: when both are given the
// shift only applies to observations older than t_epoch.
type temporal struct {
	tEpoch, tFinal float64
}

func newTemporal(p *model.Params) (temporal, error) {
	var t temporal
	var err error
	if t.tEpoch, err = p.FloatOr("t_epoch", 0); err != nil {
		return t, err
	}
	if s, ok := p.String("t_final"); ok && s != "now" {
		if t.tFinal, err = p.FloatOr("t_final", 0); err != nil {
			return t, err
		}
	}
	return t, nil
}

func (t temporal) applies(obs float64) bool {
	if t.tFinal == 0 || t.tEpoch == 0 {
		return true
	}
	return obs < t.tEpoch && t.tFinal > t.tEpoch
}

type hgridshift struct {
	units
	temporal
	set *gridSet
}

func newHgridshift(s *Setup) (Operation, error) {
	gs, err := newGridSet(s)
	if err != nil {
		return nil, err
	}
	tm, err := newTemporal(s.Params)
	if err != nil {
		return nil, err
	}
	return &hgridshift{units: units{model.UnitRadians, model.UnitRadians}, temporal: tm, set: gs}, nil
}

func (o *hgridshift) GridNames() []string { return o.set.names() }

// shiftAt returns dlam, dphi (radians) at lam/phi.
func (o *hgridshift) shiftAt(lam, phi float64) (float64, float64, error) {
	grid, lon, lat, err := o.set.find(lam, phi)
	if err != nil || grid == nil {
		return 0, 0, err
	}
	if len(grid.Bands) < 2 {
		return 0, 0, model.Errorf(model.ErrInvalidOpFileNotFoundOrInvalid, "grid %s: horizontal shift needs two bands", grid.Name)
	}
	dlat, err := grid.Value(0, lon, lat)
	if err != nil {
		return 0, 0, err
	}
	dlon, err := grid.Value(1, lon, lat)
	if err != nil {
		return 0, 0, err
	}
	return grid.ToRadians(dlon), grid.ToRadians(dlat), nil
}

func (o *hgridshift) Forward(c model.Coord) (model.Coord, error) {
	if !o.applies(c[3]) {
		return c, nil
	}
	dlam, dphi, err := o.shiftAt(c[0], c[1])
	if err != nil {
		return model.ErrorCoord(), err
	}
	c[0] += dlam
	c[1] += dphi
	return c, nil
}

// Inverse iterates until the forward shift of the estimate lands on c.
func (o *hgridshift) Inverse(c model.Coord) (model.Coord, error) {
	if !o.applies(c[3]) {
		return c, nil
	}
	lam, phi := c[0], c[1]
	guessLam, guessPhi := lam, phi
	for range 10 {
		dlam, dphi, err := o.shiftAt(guessLam, guessPhi)
		if err != nil {
			return model.ErrorCoord(), err
		}
		diffLam := guessLam + dlam - lam
		diffPhi := guessPhi + dphi - phi
		guessLam -= diffLam
		guessPhi -= diffPhi
		if math.Abs(diffLam) < 1e-12 && math.Abs(diffPhi) < 1e-12 {
			break
		}
	}
	c[0], c[1] = guessLam, guessPhi
	return c, nil
}

type vgridshift struct {
	units
	temporal
	set        *gridSet
	multiplier float64
}

func newVgridshift(s *Setup) (Operation, error) {
	gs, err := newGridSet(s)
	if err != nil {
		return nil, err
	}
	tm, err := newTemporal(s.Params)
	if err != nil {
		return nil, err
	}
	// historical: the forward direction subtracts the grid value
	mult, err := s.Params.FloatOr("multiplier", -1)
	if err != nil {
		return nil, err
	}
	return &vgridshift{units: units{model.UnitRadians, model.UnitRadians}, temporal: tm, set: gs, multiplier: mult}, nil
}

func (o *vgridshift) GridNames() []string { return o.set.names() }

func (o *vgridshift) valueAt(lam, phi float64) (float64, error) {
	grid, lon, lat, err := o.set.find(lam, phi)
	if err != nil || grid == nil {
		return 0, err
	}
	v, err := grid.Value(0, lon, lat)
	if err != nil {
		return 0, err
	}
	if grid.Unit != "" && grid.Unit != "meter" {
		return 0, fmt.Errorf("grid %s: vertical shift grid must be in meters", grid.Name)
	}
	return v * o.multiplier, nil
}

func (o *vgridshift) Forward(c model.Coord) (model.Coord, error) {
	if !o.applies(c[3]) {
		return c, nil
	}
	v, err := o.valueAt(c[0], c[1])
	if err != nil {
		return model.ErrorCoord(), err
	}
	c[2] += v
	return c, nil
}

func (o *vgridshift) Inverse(c model.Coord) (model.Coord, error) {
	if !o.applies(c[3]) {
		return c, nil
	}
	v, err := o.valueAt(c[0], c[1])
	if err != nil {
		return model.ErrorCoord(), err
	}
	c[2] -= v
	return c, nil
}
