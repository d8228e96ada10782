package operations

import (
	"math"

	"github.com/mohammed-shakir/projpipe/internal/core/model"
)

func init() {
	Register("tmerc", Descriptor{Description: "Transverse Mercator", NeedsEllipsoid: true, New: newTmerc})
	Register("utm", Descriptor{Description: "Universal Transverse Mercator (UTM)", NeedsEllipsoid: true, New: newUTM})
}

// tmerc implements the Krüger series to sixth order in the third
// flattening. Output is in units of the semi-major axis.
type tmerc struct {
	units
	k0    float64
	e     float64
	es    float64
	rect  float64 // rectifying radius for a=1
	alpha [6]float64
	beta  [6]float64
	xi0   float64 // xi of the origin latitude
}

func newTmerc(s *Setup) (Operation, error) {
	return buildTmerc(s.Ellipsoid, s.K0, s.Phi0), nil
}

func buildTmerc(e model.Ellipsoid, k0, phi0 float64) *tmerc {
	n := e.N
	if e.Es == 0 {
		n = 0
	}
	n2 := n * n
	n3 := n2 * n
	n4 := n3 * n
	n5 := n4 * n
	n6 := n5 * n
	op := &tmerc{units: classic(), k0: k0, e: e.E, es: e.Es}
	op.rect = (1 + n2/4 + n4/64 + n6/256) / (1 + n)
	op.alpha = [6]float64{
		n/2 - 2*n2/3 + 5*n3/16 + 41*n4/180 - 127*n5/288 + 7891*n6/37800,
		13*n2/48 - 3*n3/5 + 557*n4/1440 + 281*n5/630 - 1983433*n6/1935360,
		61*n3/240 - 103*n4/140 + 15061*n5/26880 + 167603*n6/181440,
		49561*n4/161280 - 179*n5/168 + 6601661*n6/7257600,
		34729*n5/80640 - 3418889*n6/1995840,
		212378941 * n6 / 319334400,
	}
	op.beta = [6]float64{
		n/2 - 2*n2/3 + 37*n3/96 - n4/360 - 81*n5/512 + 96199*n6/604800,
		n2/48 + n3/15 - 437*n4/1440 + 46*n5/105 - 1118711*n6/3870720,
		17*n3/480 - 37*n4/840 - 209*n5/4480 + 5569*n6/90720,
		4397*n4/161280 - 11*n5/504 - 830251*n6/7257600,
		4583*n5/161280 - 108847*n6/3991680,
		20648693 * n6 / 638668800,
	}
	chi0 := op.conformal(phi0)
	op.xi0 = chi0
	for j := range 6 {
		op.xi0 += op.alpha[j] * math.Sin(float64(2*(j+1))*chi0)
	}
	return op
}

// conformal returns the conformal latitude of phi.
func (o *tmerc) conformal(phi float64) float64 {
	sinphi := math.Sin(phi)
	if math.Abs(sinphi) >= 1 {
		return phi
	}
	t := math.Sinh(math.Atanh(sinphi) - o.e*math.Atanh(o.e*sinphi))
	return math.Atan(t)
}

func (o *tmerc) Forward(c model.Coord) (model.Coord, error) {
	lam, phi := c[0], c[1]
	if math.Abs(lam) > math.Pi/2 {
		return model.ErrorCoord(), model.Errorf(model.ErrCoordTransfmOutsideProjectionDomain, "tmerc: longitude more than 90 degrees from the central meridian")
	}
	chi := o.conformal(phi)
	tanchi := math.Tan(chi)
	xiP := math.Atan2(tanchi, math.Cos(lam))
	etaP := math.Atanh(math.Sin(lam) / math.Sqrt(1+tanchi*tanchi))
	if math.IsInf(etaP, 0) || math.IsNaN(etaP) {
		return model.ErrorCoord(), model.Errorf(model.ErrCoordTransfmOutsideProjectionDomain, "tmerc: point outside of projection domain")
	}

	xi, eta := xiP, etaP
	for j := range 6 {
		k := float64(2 * (j + 1))
		xi += o.alpha[j] * math.Sin(k*xiP) * math.Cosh(k*etaP)
		eta += o.alpha[j] * math.Cos(k*xiP) * math.Sinh(k*etaP)
	}
	c[0] = o.k0 * o.rect * eta
	c[1] = o.k0 * o.rect * (xi - o.xi0)
	return c, nil
}

func (o *tmerc) Inverse(c model.Coord) (model.Coord, error) {
	xi := c[1]/(o.k0*o.rect) + o.xi0
	eta := c[0] / (o.k0 * o.rect)

	xiP, etaP := xi, eta
	for j := range 6 {
		k := float64(2 * (j + 1))
		xiP -= o.beta[j] * math.Sin(k*xi) * math.Cosh(k*eta)
		etaP -= o.beta[j] * math.Cos(k*xi) * math.Sinh(k*eta)
	}
	chi := math.Asin(math.Sin(xiP) / math.Cosh(etaP))
	lam := math.Atan2(math.Sinh(etaP), math.Cos(xiP))

	phi, err := o.geodeticFromConformal(chi)
	if err != nil {
		return model.ErrorCoord(), err
	}
	c[0], c[1] = lam, phi
	return c, nil
}

// geodeticFromConformal solves for phi by Newton iteration on tan(phi).
func (o *tmerc) geodeticFromConformal(chi float64) (float64, error) {
	if o.es == 0 || math.Abs(chi) >= math.Pi/2-1e-15 {
		return chi, nil
	}
	tauP := math.Tan(chi)
	tau := tauP
	for range 10 {
		tau1 := math.Sqrt(1 + tau*tau)
		sig := math.Sinh(o.e * math.Atanh(o.e*tau/tau1))
		tauPi := tau*math.Sqrt(1+sig*sig) - sig*tau1
		dtau := (tauP - tauPi) / math.Sqrt(1+tauPi*tauPi) *
			(1 + (1-o.es)*tau*tau) / ((1 - o.es) * tau1)
		tau += dtau
		if math.Abs(dtau) < 1e-14*math.Max(1, math.Abs(tau)) {
			return math.Atan(tau), nil
		}
	}
	return 0, model.Errorf(model.ErrCoordTransfmNoConvergence, "tmerc: no convergence")
}

func newUTM(s *Setup) (Operation, error) {
	if s.Ellipsoid.Es == 0 {
		return nil, model.Errorf(model.ErrInvalidOpIllegalArgValue, "utm: requires an ellipsoid, not a sphere")
	}
	south, err := s.Params.Bool("south")
	if err != nil {
		return nil, err
	}
	zone, ok, err := s.Params.Int("zone")
	if err != nil {
		return nil, err
	}
	if ok {
		if zone < 1 || zone > 60 {
			return nil, model.Errorf(model.ErrInvalidOpIllegalArgValue, "zone: must be in [1, 60], got %d", zone)
		}
	} else {
		// guess the zone from the central meridian
		zone = int(math.Floor((model.Adjlon(s.Lam0)+math.Pi)*30/math.Pi)) + 1
		zone = min(max(zone, 1), 60)
	}
	s.X0 = 500000
	if south {
		s.Y0 = 10000000
	} else {
		s.Y0 = 0
	}
	s.Lam0 = (float64(zone)-0.5)*math.Pi/30 - math.Pi
	s.K0 = 0.9996
	s.Phi0 = 0
	return buildTmerc(s.Ellipsoid, s.K0, 0), nil
}
