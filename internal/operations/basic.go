package operations

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/projpipe/internal/core/model"
)

func init() {
	latlong := Descriptor{Description: "Lat/long (Geodetic)", New: newLatLong}
	for _, name := range []string{"latlong", "longlat", "latlon", "lonlat"} {
		Register(name, latlong)
	}
	Register("geocent", Descriptor{Description: "Geocentric", New: newGeocent})
	Register("noop", Descriptor{Description: "No operation", New: newNoop})
	Register("set", Descriptor{Description: "Set coordinate value", New: newSet})
	Register("axisswap", Descriptor{Description: "Axis ordering", New: newAxisswap})
	Register("affine", Descriptor{Description: "Affine transformation", New: newAffine})
	Register("geogoffset", Descriptor{Description: "Geographic Offset", New: newGeogoffset})
}

type identity struct{ units }

func (identity) Forward(c model.Coord) (model.Coord, error) { return c, nil }
func (identity) Inverse(c model.Coord) (model.Coord, error) { return c, nil }

func newLatLong(*Setup) (Operation, error) {
	return identity{units{model.UnitRadians, model.UnitRadians}}, nil
}

func newNoop(*Setup) (Operation, error) {
	return identity{units{model.UnitWhatever, model.UnitWhatever}}, nil
}

type geocent struct{ identity }

func (geocent) Geocentric() bool { return true }

func newGeocent(s *Setup) (Operation, error) {
	s.X0, s.Y0 = 0, 0
	return geocent{identity{units{model.UnitRadians, model.UnitCartesian}}}, nil
}

// set overwrites selected components with constants in both directions.
type set struct {
	units
	vals [4]float64
	has  [4]bool
}

func newSet(s *Setup) (Operation, error) {
	op := &set{units: units{model.UnitWhatever, model.UnitWhatever}}
	for i := range 4 {
		v, ok, err := s.Params.Float(fmt.Sprintf("v_%d", i+1))
		if err != nil {
			return nil, err
		}
		if ok {
			op.vals[i], op.has[i] = v, true
		}
	}
	return op, nil
}

func (o *set) apply(c model.Coord) model.Coord {
	for i := range 4 {
		if o.has[i] {
			c[i] = o.vals[i]
		}
	}
	return c
}

func (o *set) Forward(c model.Coord) (model.Coord, error) { return o.apply(c), nil }
func (o *set) Inverse(c model.Coord) (model.Coord, error) { return o.apply(c), nil }

// axisswap permutes and negates components. axis[i] is the 0-based source
// component of output i, sign[i] its sign.
type axisswap struct {
	units
	axis [4]int
	sign [4]float64
}

func newAxisswap(s *Setup) (Operation, error) {
	order, hasOrder := s.Params.String("order")
	axisSpec, hasAxis := s.Params.String("axis")
	if hasOrder && hasAxis {
		return nil, model.Errorf(model.ErrInvalidOpMutuallyExclusiveArgs, "order and axis parameters cannot be combined")
	}
	if !hasOrder && !hasAxis {
		return nil, model.Errorf(model.ErrInvalidOpMissingArg, "missing order or axis parameter")
	}

	op := &axisswap{units: units{model.UnitWhatever, model.UnitWhatever}}
	for i := range 4 {
		op.axis[i], op.sign[i] = i, 1
	}

	if hasAxis {
		if err := ValidateAxis(axisSpec); err != nil {
			return nil, err
		}
		for i, ch := range axisSpec {
			switch ch {
			case 'e':
				op.axis[i], op.sign[i] = 0, 1
			case 'w':
				op.axis[i], op.sign[i] = 0, -1
			case 'n':
				op.axis[i], op.sign[i] = 1, 1
			case 's':
				op.axis[i], op.sign[i] = 1, -1
			case 'u':
				op.axis[i], op.sign[i] = 2, 1
			case 'd':
				op.axis[i], op.sign[i] = 2, -1
			}
		}
		return op, nil
	}

	seen := map[int]bool{}
	parts := strings.Split(order, ",")
	if len(parts) > 4 {
		return nil, model.Errorf(model.ErrInvalidOpIllegalArgValue, "order: too many axes")
	}
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n == 0 || n < -4 || n > 4 {
			return nil, model.Errorf(model.ErrInvalidOpIllegalArgValue, "order: unknown axis %q", p)
		}
		idx := n
		if idx < 0 {
			idx = -idx
			op.sign[i] = -1
		}
		if seen[idx] {
			return nil, model.Errorf(model.ErrInvalidOpIllegalArgValue, "order: axis %d repeated", idx)
		}
		seen[idx] = true
		op.axis[i] = idx - 1
	}
	// every output slot must come from a distinct input
	used := map[int]bool{}
	for i := range 4 {
		if used[op.axis[i]] {
			return nil, model.Errorf(model.ErrInvalidOpIllegalArgValue, "order: %q leaves axes unassigned", order)
		}
		used[op.axis[i]] = true
	}
	return op, nil
}

// ValidateAxis checks an axis= value: three letters, one per direction pair.
func ValidateAxis(axis string) error {
	if len(axis) != 3 {
		return model.Errorf(model.ErrInvalidOpIllegalArgValue, "axis: must be 3 characters, got %q", axis)
	}
	var seen [3]bool
	for _, ch := range axis {
		var k int
		switch ch {
		case 'e', 'w':
			k = 0
		case 'n', 's':
			k = 1
		case 'u', 'd':
			k = 2
		default:
			return model.Errorf(model.ErrInvalidOpIllegalArgValue, "axis: unknown direction %q", ch)
		}
		if seen[k] {
			return model.Errorf(model.ErrInvalidOpIllegalArgValue, "axis: direction repeated in %q", axis)
		}
		seen[k] = true
	}
	return nil
}

func (o *axisswap) Forward(c model.Coord) (model.Coord, error) {
	var out model.Coord
	for i := range 4 {
		out[i] = o.sign[i] * c[o.axis[i]]
	}
	return out, nil
}

func (o *axisswap) Inverse(c model.Coord) (model.Coord, error) {
	var out model.Coord
	for i := range 4 {
		out[o.axis[i]] = o.sign[i] * c[i]
	}
	return out, nil
}

// affine: x' = off + M x, t' = toff + tscale t.
type affine struct {
	units
	off    [3]float64
	m      [3][3]float64
	inv    [3][3]float64
	toff   float64
	tscale float64
}

func newAffine(s *Setup) (Operation, error) {
	op := &affine{units: units{model.UnitWhatever, model.UnitWhatever}}
	var err error
	read := func(key string, def float64) float64 {
		if err != nil {
			return 0
		}
		var v float64
		v, err = s.Params.FloatOr(key, def)
		return v
	}
	op.off = [3]float64{read("xoff", 0), read("yoff", 0), read("zoff", 0)}
	op.toff = read("toff", 0)
	op.tscale = read("tscale", 1)
	for i := range 3 {
		for j := range 3 {
			def := 0.0
			if i == j {
				def = 1
			}
			op.m[i][j] = read(fmt.Sprintf("s%d%d", i+1, j+1), def)
		}
	}
	if err != nil {
		return nil, err
	}

	m := op.m
	det := m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
	if math.Abs(det) < 1e-10 || op.tscale == 0 {
		s.Logger.Debug().Str("op", s.Name).Msg("affine matrix is singular; no inverse")
		return ForwardOnly(op), nil
	}
	op.inv = [3][3]float64{
		{(m[1][1]*m[2][2] - m[1][2]*m[2][1]) / det, (m[0][2]*m[2][1] - m[0][1]*m[2][2]) / det, (m[0][1]*m[1][2] - m[0][2]*m[1][1]) / det},
		{(m[1][2]*m[2][0] - m[1][0]*m[2][2]) / det, (m[0][0]*m[2][2] - m[0][2]*m[2][0]) / det, (m[0][2]*m[1][0] - m[0][0]*m[1][2]) / det},
		{(m[1][0]*m[2][1] - m[1][1]*m[2][0]) / det, (m[0][1]*m[2][0] - m[0][0]*m[2][1]) / det, (m[0][0]*m[1][1] - m[0][1]*m[1][0]) / det},
	}
	return op, nil
}

func (o *affine) Forward(c model.Coord) (model.Coord, error) {
	var out model.Coord
	for i := range 3 {
		out[i] = o.off[i] + o.m[i][0]*c[0] + o.m[i][1]*c[1] + o.m[i][2]*c[2]
	}
	out[3] = o.toff + o.tscale*c[3]
	return out, nil
}

func (o *affine) Inverse(c model.Coord) (model.Coord, error) {
	d := [3]float64{c[0] - o.off[0], c[1] - o.off[1], c[2] - o.off[2]}
	var out model.Coord
	for i := range 3 {
		out[i] = o.inv[i][0]*d[0] + o.inv[i][1]*d[1] + o.inv[i][2]*d[2]
	}
	out[3] = (c[3] - o.toff) / o.tscale
	return out, nil
}

// geogoffset shifts lon/lat by arc-seconds and the height by meters.
type geogoffset struct {
	units
	dlam, dphi, dh float64
}

func newGeogoffset(s *Setup) (Operation, error) {
	op := &geogoffset{units: units{model.UnitRadians, model.UnitRadians}}
	var err error
	if op.dlam, err = s.Params.FloatOr("dlon", 0); err != nil {
		return nil, err
	}
	if op.dphi, err = s.Params.FloatOr("dlat", 0); err != nil {
		return nil, err
	}
	if op.dh, err = s.Params.FloatOr("dh", 0); err != nil {
		return nil, err
	}
	op.dlam *= model.DegToRad / 3600
	op.dphi *= model.DegToRad / 3600
	return op, nil
}

func (o *geogoffset) Forward(c model.Coord) (model.Coord, error) {
	c[0] += o.dlam
	c[1] += o.dphi
	c[2] += o.dh
	return c, nil
}

func (o *geogoffset) Inverse(c model.Coord) (model.Coord, error) {
	c[0] -= o.dlam
	c[1] -= o.dphi
	c[2] -= o.dh
	return c, nil
}
