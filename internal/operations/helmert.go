package operations

import (
	"math"

	"github.com/mohammed-shakir/projpipe/internal/core/model"
)

func init() {
	Register("helmert", Descriptor{Description: "3(6)-, 4(8)- and 7(14)-parameter Helmert shift", New: newHelmert})
}

const arcsecToRad = math.Pi / (180 * 3600)

// helmertParams are the shift (m), rotations (rad) and scale (ppm).
type helmertParams struct {
	x, y, z    float64
	rx, ry, rz float64
	s          float64
}

type helmert struct {
	units
	base, rate     helmertParams
	tEpoch         float64
	timeDependent  bool
	exact          bool
	positionVector bool
}

func newHelmert(s *Setup) (Operation, error) {
	op := &helmert{units: units{model.UnitCartesian, model.UnitCartesian}, positionVector: true}
	p := s.Params
	var err error
	get := func(key string) float64 {
		if err != nil {
			return 0
		}
		var v float64
		v, err = p.FloatOr(key, 0)
		return v
	}

	if tw, ok, terr := model.ParseToWGS84(p); terr != nil {
		return nil, terr
	} else if ok {
		v := tw.Params
		op.base = helmertParams{v[0], v[1], v[2], v[3] * arcsecToRad, v[4] * arcsecToRad, v[5] * arcsecToRad, v[6]}
	} else {
		op.base = helmertParams{
			x: get("x"), y: get("y"), z: get("z"),
			rx: get("rx") * arcsecToRad, ry: get("ry") * arcsecToRad, rz: get("rz") * arcsecToRad,
			s: get("s"),
		}
	}
	op.rate = helmertParams{
		x: get("dx"), y: get("dy"), z: get("dz"),
		rx: get("drx") * arcsecToRad, ry: get("dry") * arcsecToRad, rz: get("drz") * arcsecToRad,
		s: get("ds"),
	}
	op.tEpoch = get("t_epoch")
	if err != nil {
		return nil, err
	}
	op.timeDependent = p.Exists("t_epoch")
	if op.exact, err = p.Bool("exact"); err != nil {
		return nil, err
	}

	rotates := op.base.rx != 0 || op.base.ry != 0 || op.base.rz != 0 ||
		op.rate.rx != 0 || op.rate.ry != 0 || op.rate.rz != 0
	conv, hasConv := p.String("convention")
	switch {
	case hasConv && conv == "position_vector":
		op.positionVector = true
	case hasConv && conv == "coordinate_frame":
		op.positionVector = false
	case hasConv:
		return nil, model.Errorf(model.ErrInvalidOpIllegalArgValue, "convention: invalid value %q", conv)
	case rotates:
		return nil, model.Errorf(model.ErrInvalidOpMissingArg, "helmert: convention required when rotations are given")
	}
	return op, nil
}

// at returns the parameters valid at epoch t.
func (o *helmert) at(t float64) helmertParams {
	if !o.timeDependent || t == model.HugeVal || math.IsNaN(t) {
		return o.base
	}
	dt := t - o.tEpoch
	b, r := o.base, o.rate
	return helmertParams{
		b.x + r.x*dt, b.y + r.y*dt, b.z + r.z*dt,
		b.rx + r.rx*dt, b.ry + r.ry*dt, b.rz + r.rz*dt,
		b.s + r.s*dt,
	}
}

// rotation returns the coordinate frame rotation matrix, transposed for the
// position vector convention.
func (o *helmert) rotation(p helmertParams) [3][3]float64 {
	var r [3][3]float64
	if o.exact {
		sf, cf := math.Sincos(p.rx)
		st, ct := math.Sincos(p.ry)
		sp, cp := math.Sincos(p.rz)
		r = [3][3]float64{
			{ct * cp, cf*sp + sf*st*cp, sf*sp - cf*st*cp},
			{-ct * sp, cf*cp - sf*st*sp, sf*cp + cf*st*sp},
			{st, -sf * ct, cf * ct},
		}
	} else {
		r = [3][3]float64{
			{1, p.rz, -p.ry},
			{-p.rz, 1, p.rx},
			{p.ry, -p.rx, 1},
		}
	}
	if o.positionVector {
		r[0][1], r[1][0] = r[1][0], r[0][1]
		r[0][2], r[2][0] = r[2][0], r[0][2]
		r[1][2], r[2][1] = r[2][1], r[1][2]
	}
	return r
}

func (o *helmert) Forward(c model.Coord) (model.Coord, error) {
	p := o.at(c[3])
	r := o.rotation(p)
	scale := 1 + p.s*1e-6
	x, y, z := c[0], c[1], c[2]
	c[0] = p.x + scale*(r[0][0]*x+r[0][1]*y+r[0][2]*z)
	c[1] = p.y + scale*(r[1][0]*x+r[1][1]*y+r[1][2]*z)
	c[2] = p.z + scale*(r[2][0]*x+r[2][1]*y+r[2][2]*z)
	return c, nil
}

func (o *helmert) Inverse(c model.Coord) (model.Coord, error) {
	p := o.at(c[3])
	r := o.rotation(p)
	scale := 1 + p.s*1e-6
	x := (c[0] - p.x) / scale
	y := (c[1] - p.y) / scale
	z := (c[2] - p.z) / scale
	c[0] = r[0][0]*x + r[1][0]*y + r[2][0]*z
	c[1] = r[0][1]*x + r[1][1]*y + r[2][1]*z
	c[2] = r[0][2]*x + r[1][2]*y + r[2][2]*z
	return c, nil
}
