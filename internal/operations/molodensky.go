package operations

import (
	"math"

	"github.com/mohammed-shakir/projpipe/internal/core/model"
)

func init() {
	Register("molodensky", Descriptor{Description: "Molodensky transform", NeedsEllipsoid: true, New: newMolodensky})
}

type molodensky struct {
	units
	a, b, f, es float64
	da, df      float64
	dx, dy, dz  float64
	abridged    bool
}

func newMolodensky(s *Setup) (Operation, error) {
	op := &molodensky{
		units: units{model.UnitRadians, model.UnitRadians},
		a:     s.Ellipsoid.A,
		b:     s.Ellipsoid.B,
		f:     s.Ellipsoid.F,
		es:    s.Ellipsoid.Es,
	}
	for _, k := range []string{"da", "df", "dx", "dy", "dz"} {
		if !s.Params.Exists(k) {
			return nil, model.Errorf(model.ErrInvalidOpMissingArg, "molodensky: missing %s", k)
		}
	}
	var err error
	for k, dst := range map[string]*float64{"da": &op.da, "df": &op.df, "dx": &op.dx, "dy": &op.dy, "dz": &op.dz} {
		if *dst, err = s.Params.FloatOr(k, 0); err != nil {
			return nil, err
		}
	}
	if op.abridged, err = s.Params.Bool("abridged"); err != nil {
		return nil, err
	}
	return op, nil
}

// shift evaluates the datum shift (dlam, dphi, dh) at c.
func (o *molodensky) shift(c model.Coord) (float64, float64, float64, error) {
	sinphi, cosphi := math.Sincos(c[1])
	sinlam, coslam := math.Sincos(c[0])
	h := c[2]

	w := 1 - o.es*sinphi*sinphi
	rn := o.a / math.Sqrt(w)
	rm := o.a * (1 - o.es) / (w * math.Sqrt(w))
	if math.Abs(cosphi) < 1e-12 {
		return 0, 0, 0, model.Errorf(model.ErrCoordTransfmInvalidCoord, "molodensky: undefined at the poles")
	}

	common := -o.dx*sinphi*coslam - o.dy*sinphi*sinlam + o.dz*cosphi
	dlam := (-o.dx*sinlam + o.dy*coslam)
	var dphi, dh float64
	if o.abridged {
		adffda := o.a*o.df + o.f*o.da
		dphi = (common + adffda*math.Sin(2*c[1])) / rm
		dlam /= rn * cosphi
		dh = o.dx*cosphi*coslam + o.dy*cosphi*sinlam + o.dz*sinphi + adffda*sinphi*sinphi - o.da
	} else {
		dphi = (common + o.da*rn*o.es*sinphi*cosphi/o.a +
			o.df*(rm*o.a/o.b+rn*o.b/o.a)*sinphi*cosphi) / (rm + h)
		dlam /= (rn + h) * cosphi
		dh = o.dx*cosphi*coslam + o.dy*cosphi*sinlam + o.dz*sinphi -
			o.da*o.a/rn + o.df*o.b/o.a*rn*sinphi*sinphi
	}
	return dlam, dphi, dh, nil
}

func (o *molodensky) Forward(c model.Coord) (model.Coord, error) {
	dlam, dphi, dh, err := o.shift(c)
	if err != nil {
		return model.ErrorCoord(), err
	}
	c[0] += dlam
	c[1] += dphi
	c[2] += dh
	return c, nil
}

// Inverse subtracts the shift evaluated at the shifted point.
func (o *molodensky) Inverse(c model.Coord) (model.Coord, error) {
	dlam, dphi, dh, err := o.shift(c)
	if err != nil {
		return model.ErrorCoord(), err
	}
	c[0] -= dlam
	c[1] -= dphi
	c[2] -= dh
	return c, nil
}
