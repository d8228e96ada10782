package operations

import (
	"math"

	"github.com/mohammed-shakir/projpipe/internal/core/model"
)

func init() {
	Register("cart", Descriptor{
		Description:    "Geodetic/cartesian conversions",
		NeedsEllipsoid: true,
		New:            newCart,
	})
}

// cart converts geodetic lon/lat/h (radians, meters) to geocentric X/Y/Z.
type cart struct {
	units
	a, b, es, ep2 float64
}

func newCart(s *Setup) (Operation, error) {
	e := s.Ellipsoid
	return &cart{
		units: units{model.UnitRadians, model.UnitCartesian},
		a:     e.A,
		b:     e.B,
		es:    e.Es,
		ep2:   e.Ep2,
	}, nil
}

func (o *cart) normalRadius(sinphi float64) float64 {
	if o.es == 0 {
		return o.a
	}
	return o.a / math.Sqrt(1-o.es*sinphi*sinphi)
}

func (o *cart) Forward(c model.Coord) (model.Coord, error) {
	sinphi, cosphi := math.Sincos(c[1])
	sinlam, coslam := math.Sincos(c[0])
	n := o.normalRadius(sinphi)
	h := c[2]
	return model.Coord{
		(n + h) * cosphi * coslam,
		(n + h) * cosphi * sinlam,
		(n*(1-o.es) + h) * sinphi,
		c[3],
	}, nil
}

// Inverse uses Bowring's closed form, which is accurate to well below a
// millimeter for terrestrial heights.
func (o *cart) Inverse(c model.Coord) (model.Coord, error) {
	x, y, z := c[0], c[1], c[2]
	p := math.Hypot(x, y)
	lam := math.Atan2(y, x)

	theta := math.Atan2(z*o.a, p*o.b)
	st, ct := math.Sincos(theta)
	phi := math.Atan2(z+o.ep2*o.b*st*st*st, p-o.es*o.a*ct*ct*ct)

	sinphi, cosphi := math.Sincos(phi)
	var h float64
	if math.Abs(cosphi) < 1e-6 {
		h = math.Abs(z) - o.b
	} else {
		h = p/cosphi - o.normalRadius(sinphi)
	}
	return model.Coord{lam, phi, h, c[3]}, nil
}
