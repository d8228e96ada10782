package operations

import (
	"math"

	"github.com/mohammed-shakir/projpipe/internal/core/model"
)

func init() {
	Register("merc", Descriptor{Description: "Mercator", NeedsEllipsoid: true, New: newMerc})
	Register("webmerc", Descriptor{Description: "Web Mercator / Pseudo Mercator", NeedsEllipsoid: true, New: newWebmerc})
	Register("eqc", Descriptor{Description: "Equidistant Cylindrical (Plate Carree)", NeedsEllipsoid: true, New: newEqc})
}

const eps10 = 1e-10

// classic projections produce x/y in units of the semi-major axis; the
// factory applies a, x_0 and y_0 afterwards.
func classic() units { return units{model.UnitRadians, model.UnitClassic} }

// tsfn is the function t of Snyder (7-10).
func tsfn(phi, sinphi, e float64) float64 {
	es := e * sinphi
	return math.Tan(0.5*(math.Pi/2-phi)) / math.Pow((1-es)/(1+es), 0.5*e)
}

// msfn is the function m of Snyder (14-15).
func msfn(sinphi, cosphi, es float64) float64 {
	return cosphi / math.Sqrt(1-es*sinphi*sinphi)
}

// phi2 inverts tsfn by fixed point iteration.
func phi2(ts, e float64) (float64, error) {
	eccnth := 0.5 * e
	phi := math.Pi/2 - 2*math.Atan(ts)
	for range 15 {
		con := e * math.Sin(phi)
		dphi := math.Pi/2 - 2*math.Atan(ts*math.Pow((1-con)/(1+con), eccnth)) - phi
		phi += dphi
		if math.Abs(dphi) <= 1e-10 {
			return phi, nil
		}
	}
	return 0, model.Errorf(model.ErrCoordTransfmNoConvergence, "phi2: no convergence")
}

type merc struct {
	units
	k0, e     float64
	spherical bool
}

func newMerc(s *Setup) (Operation, error) {
	op := &merc{units: classic(), k0: s.K0, e: s.Ellipsoid.E, spherical: s.Ellipsoid.Es == 0}
	phits, ok, err := s.Params.Angle("lat_ts")
	if err != nil {
		return nil, err
	}
	if ok {
		phits = math.Abs(phits)
		if phits >= math.Pi/2 {
			return nil, model.Errorf(model.ErrInvalidOpIllegalArgValue, "lat_ts: must be less than 90 degrees")
		}
		sinp, cosp := math.Sincos(phits)
		if op.spherical {
			op.k0 = cosp
		} else {
			op.k0 = msfn(sinp, cosp, s.Ellipsoid.Es)
		}
		s.K0 = op.k0
	}
	return op, nil
}

func newWebmerc(s *Setup) (Operation, error) {
	s.K0 = 1
	return &merc{units: classic(), k0: 1, spherical: true}, nil
}

func (o *merc) Forward(c model.Coord) (model.Coord, error) {
	lam, phi := c[0], c[1]
	if math.Abs(math.Abs(phi)-math.Pi/2) <= eps10 {
		return model.ErrorCoord(), model.Errorf(model.ErrCoordTransfmOutsideProjectionDomain, "merc: latitude at the pole")
	}
	c[0] = o.k0 * lam
	if o.spherical {
		c[1] = o.k0 * math.Log(math.Tan(math.Pi/4+0.5*phi))
	} else {
		c[1] = -o.k0 * math.Log(tsfn(phi, math.Sin(phi), o.e))
	}
	return c, nil
}

func (o *merc) Inverse(c model.Coord) (model.Coord, error) {
	x, y := c[0], c[1]
	if o.spherical {
		c[1] = math.Atan(math.Sinh(y / o.k0))
	} else {
		phi, err := phi2(math.Exp(-y/o.k0), o.e)
		if err != nil {
			return model.ErrorCoord(), err
		}
		c[1] = phi
	}
	c[0] = x / o.k0
	return c, nil
}

// eqc is always spherical.
type eqc struct {
	units
	rc, phi0 float64
}

func newEqc(s *Setup) (Operation, error) {
	latts, _, err := s.Params.Angle("lat_ts")
	if err != nil {
		return nil, err
	}
	rc := math.Cos(latts)
	if rc <= 0 {
		return nil, model.Errorf(model.ErrInvalidOpIllegalArgValue, "lat_ts: must be less than 90 degrees")
	}
	return &eqc{units: classic(), rc: rc, phi0: s.Phi0}, nil
}

func (o *eqc) Forward(c model.Coord) (model.Coord, error) {
	c[0] = o.rc * c[0]
	c[1] = c[1] - o.phi0
	return c, nil
}

func (o *eqc) Inverse(c model.Coord) (model.Coord, error) {
	c[0] = c[0] / o.rc
	c[1] = c[1] + o.phi0
	return c, nil
}
