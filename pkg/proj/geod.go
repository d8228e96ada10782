package proj

import (
	"math"

	"github.com/tidwall/geodesic"

	"github.com/mohammed-shakir/projpipe/internal/core/model"
)

func (p *PJ) solver() *geodesic.Ellipsoid {
	if p != nil && p.geod != nil {
		return p.geod
	}
	return geodesic.WGS84
}

// Geod solves the inverse geodesic problem between two lon/lat points in
// radians on the ellipsoid of p. The result holds the distance in meters
// and the forward azimuths at both ends in degrees.
func (p *PJ) Geod(a, b model.Coord) model.Coord {
	var s12, azi1, azi2 float64
	p.solver().Inverse(
		a.Phi()*model.RadToDeg, a.Lam()*model.RadToDeg,
		b.Phi()*model.RadToDeg, b.Lam()*model.RadToDeg,
		&s12, &azi1, &azi2)
	return model.Coord{s12, azi1, azi2, 0}
}

// LPDistance is the geodesic distance in meters between two lon/lat points
// in radians.
func (p *PJ) LPDistance(a, b model.Coord) float64 {
	if a[0] == model.HugeVal || b[0] == model.HugeVal {
		return model.HugeVal
	}
	return p.Geod(a, b)[0]
}

// LPZDistance adds the height difference to LPDistance.
func (p *PJ) LPZDistance(a, b model.Coord) float64 {
	if a[0] == model.HugeVal || b[0] == model.HugeVal {
		return model.HugeVal
	}
	return math.Hypot(p.LPDistance(a, b), a[2]-b[2])
}

func XYDistance(a, b model.Coord) float64 {
	return math.Hypot(a[0]-b[0], a[1]-b[1])
}

func XYZDistance(a, b model.Coord) float64 {
	return math.Hypot(XYDistance(a, b), a[2]-b[2])
}

// Roundtrip transforms c in dir, then runs n-1 full back and forth trips
// and a final half trip, and returns the distance between where it started
// and where it ended. c is overwritten with the first transformed value.
func (p *PJ) Roundtrip(dir model.Direction, n int, c *model.Coord) float64 {
	if p == nil {
		return model.HugeVal
	}
	if n < 1 {
		p.ctx.SetErrno(model.ErrOtherAPIMisuse)
		p.ctx.logger.Error().Int("n", n).Msg("roundtrip: n should be >= 1")
		return model.HugeVal
	}
	org := *c
	*c = p.Trans(dir, org)
	t := *c
	back := dir.Opposite()
	for i := 0; i < n-1; i++ {
		t = p.Trans(dir, p.Trans(back, t))
	}
	t = p.Trans(back, t)

	if p.AngularInput(dir) {
		return p.LPZDistance(org, t)
	}
	return XYZDistance(org, t)
}
