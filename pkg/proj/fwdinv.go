package proj

import (
	"math"

	"github.com/mohammed-shakir/projpipe/internal/core/model"
)

const latEpsilon = 1e-12

// fwd4d runs the forward kernel between the prepare and finalize stages.
// The error cell is left as it was unless this call raised a new error.
func (p *PJ) fwd4d(c model.Coord) model.Coord {
	last := p.ctx.ErrnoReset()
	if !p.skipPrepFin {
		c = p.fwdPrepare(c)
		if c.IsError() {
			return model.ErrorCoord()
		}
	}
	if p.fwd == nil {
		p.ctx.SetErrno(model.ErrOtherNoInverseOp)
		return model.ErrorCoord()
	}
	out, err := p.fwd(c)
	if err != nil {
		p.kernelFailed(err)
		return model.ErrorCoord()
	}
	if out.IsError() {
		return model.ErrorCoord()
	}
	if !p.skipPrepFin {
		out = p.fwdFinalize(out)
	}
	return p.settle(out, last)
}

func (p *PJ) inv4d(c model.Coord) model.Coord {
	last := p.ctx.ErrnoReset()
	if !p.skipPrepFin {
		c = p.invPrepare(c)
		if c.IsError() {
			return model.ErrorCoord()
		}
	}
	if p.inv == nil {
		p.ctx.SetErrno(model.ErrOtherNoInverseOp)
		return model.ErrorCoord()
	}
	out, err := p.inv(c)
	if err != nil {
		p.kernelFailed(err)
		return model.ErrorCoord()
	}
	if out.IsError() {
		return model.ErrorCoord()
	}
	if !p.skipPrepFin {
		out = p.invFinalize(out)
	}
	return p.settle(out, last)
}

func (p *PJ) kernelFailed(err error) {
	code := p.ctx.setError(err, model.ErrCoordTransfm)
	p.ctx.logger.Trace().Err(err).Str("op", p.name).Int("errno", int(code)).Msg("kernel failed")
}

func (p *PJ) settle(c model.Coord, last model.Errno) model.Coord {
	if p.ctx.errno != 0 || c.IsError() {
		return model.ErrorCoord()
	}
	p.ctx.ErrnoRestore(last)
	return c
}

func (p *PJ) invalid(code model.Errno) model.Coord {
	p.ctx.SetErrno(code)
	return model.ErrorCoord()
}

// toLocalDatum takes lon/lat from WGS84 to the datum of p.
func (p *PJ) toLocalDatum(c model.Coord) model.Coord {
	switch {
	case p.hgridshift != nil:
		return p.hgridshift.inv4d(c)
	case p.helmert != nil || (p.cartWGS84 != nil && p.cart != nil):
		c = p.cartWGS84.fwd4d(c)
		if p.helmert != nil {
			c = p.helmert.inv4d(c)
		}
		return p.cart.inv4d(c)
	}
	return c
}

// toWGS84 is the reverse of toLocalDatum.
func (p *PJ) toWGS84(c model.Coord) model.Coord {
	switch {
	case p.hgridshift != nil:
		return p.hgridshift.fwd4d(c)
	case p.helmert != nil || (p.cartWGS84 != nil && p.cart != nil):
		c = p.cart.fwd4d(c)
		if p.helmert != nil {
			c = p.helmert.fwd4d(c)
		}
		return p.cartWGS84.inv4d(c)
	}
	return c
}

func (p *PJ) fwdPrepare(c model.Coord) model.Coord {
	if c[0] == model.HugeVal || c[1] == model.HugeVal {
		return model.ErrorCoord()
	}
	if p.helmert != nil {
		if c[2] == model.HugeVal {
			c[2] = 0
		}
		if c[3] == model.HugeVal {
			c[3] = 0
		}
	}

	switch p.left {
	case model.UnitRadians:
		t := math.Abs(c[1]) - math.Pi/2
		if t > latEpsilon || c[0] > 10 || c[0] < -10 {
			return p.invalid(model.ErrCoordTransfmInvalidCoord)
		}
		c[1] = math.Max(-math.Pi/2, math.Min(math.Pi/2, c[1]))

		if p.geoc {
			c[1] = p.geocentricLatitude(model.Inv, c[1])
		}
		if !p.over {
			c[0] = model.Adjlon(c[0])
		}
		c = p.toLocalDatum(c)
		if c[0] == model.HugeVal {
			return c
		}
		if p.vgridshift != nil {
			c = p.vgridshift.fwd4d(c)
		}

		c[0] = c[0] - p.fromGreenwich - p.lam0
		if !p.over {
			c[0] = model.Adjlon(c[0])
		}
	case model.UnitCartesian:
		if p.helmert != nil {
			c = p.helmert.inv4d(c)
		}
	}
	return c
}

func (p *PJ) fwdFinalize(c model.Coord) model.Coord {
	switch p.right {
	case model.UnitCartesian:
		if p.geocentric && p.cart != nil {
			c = p.cart.fwd4d(c)
		}
		c[0] *= p.frMeter
		c[1] *= p.frMeter
		c[2] *= p.frMeter
	case model.UnitClassic, model.UnitProjected:
		if p.right == model.UnitClassic {
			c[0] *= p.ellipsoid.A
			c[1] *= p.ellipsoid.A
		}
		c[0] = p.frMeter * (c[0] + p.x0)
		c[1] = p.frMeter * (c[1] + p.y0)
		c[2] = p.vfrMeter * (c[2] + p.z0)
	case model.UnitRadians:
		c[2] = p.vfrMeter * (c[2] + p.z0)
		c[0] = p.wrapLongitude(c[0])
	}
	if p.axisswap != nil {
		c = p.axisswap.fwd4d(c)
	}
	return c
}

func (p *PJ) invPrepare(c model.Coord) model.Coord {
	if c[0] == model.HugeVal || c[1] == model.HugeVal || c[2] == model.HugeVal {
		return p.invalid(model.ErrCoordTransfmOutsideProjectionDomain)
	}
	if p.helmert != nil && c[3] == model.HugeVal {
		c[3] = 0
	}
	if p.axisswap != nil {
		c = p.axisswap.inv4d(c)
	}

	switch p.right {
	case model.UnitCartesian:
		c[0] *= p.toMeter
		c[1] *= p.toMeter
		c[2] *= p.toMeter
		if p.geocentric && p.cart != nil {
			c = p.cart.inv4d(c)
		}
	case model.UnitClassic, model.UnitProjected:
		c[0] = p.toMeter*c[0] - p.x0
		c[1] = p.toMeter*c[1] - p.y0
		c[2] = p.vtoMeter*c[2] - p.z0
		if p.right == model.UnitClassic {
			c[0] *= p.ellipsoid.Ra
			c[1] *= p.ellipsoid.Ra
		}
	case model.UnitRadians:
		c[2] = p.vtoMeter*c[2] - p.z0
	}
	return c
}

func (p *PJ) invFinalize(c model.Coord) model.Coord {
	if c[0] == model.HugeVal {
		return p.invalid(model.ErrCoordTransfmOutsideProjectionDomain)
	}

	switch p.left {
	case model.UnitRadians:
		c[0] = c[0] + p.fromGreenwich + p.lam0
		if !p.over {
			c[0] = model.Adjlon(c[0])
		}
		if p.vgridshift != nil {
			c = p.vgridshift.inv4d(c)
		}
		if c[0] == model.HugeVal {
			return c
		}
		c = p.toWGS84(c)
		if c[0] == model.HugeVal {
			return c
		}
		if p.geoc {
			c[1] = p.geocentricLatitude(model.Fwd, c[1])
		}
		c[0] = p.wrapLongitude(c[0])
	case model.UnitCartesian:
		if p.helmert != nil {
			c = p.helmert.fwd4d(c)
		}
	}
	return c
}

func (p *PJ) wrapLongitude(lam float64) float64 {
	if !p.lonWrap || lam == model.HugeVal {
		return lam
	}
	return p.lonWrapCenter + model.Adjlon(lam-p.lonWrapCenter)
}

// geocentricLatitude converts geographic to geocentric latitude (Fwd) or
// back (Inv). Latitudes within 1e-9 of a pole are left alone.
func (p *PJ) geocentricLatitude(dir model.Direction, phi float64) float64 {
	const limit = math.Pi/2 - 1e-9
	if phi > limit || phi < -limit {
		return phi
	}
	if dir == model.Fwd {
		return math.Atan(p.ellipsoid.OneEs * math.Tan(phi))
	}
	return math.Atan(p.ellipsoid.ROneEs * math.Tan(phi))
}
