package model

import (
	"math"
)

// Ellipsoid holds the shape of a reference ellipsoid and the quantities
// derived from it that the kernels use.
type Ellipsoid struct {
	Name string
	A    float64 // semi-major axis
	B    float64 // semi-minor axis
	Es   float64 // first eccentricity squared
	E    float64
	F    float64 // flattening
	Rf   float64 // inverse flattening, 0 for a sphere
	// derived
	OneEs  float64
	ROneEs float64
	Ra     float64
	N      float64 // third flattening
	Ep2    float64 // second eccentricity squared
}

type ellipsoidDef struct {
	id, major, shape, name string
}

var ellipsoids = []ellipsoidDef{
	{"MERIT", "a=6378137.0", "rf=298.257", "MERIT 1983"},
	{"SGS85", "a=6378136.0", "rf=298.257", "Soviet Geodetic System 85"},
	{"GRS80", "a=6378137.0", "rf=298.257222101", "GRS 1980(IUGG, 1980)"},
	{"IAU76", "a=6378140.0", "rf=298.257", "IAU 1976"},
	{"airy", "a=6377563.396", "rf=299.3249646", "Airy 1830"},
	{"APL4.9", "a=6378137.0", "rf=298.25", "Appl. Physics. 1965"},
	{"NWL9D", "a=6378145.0", "rf=298.25", "Naval Weapons Lab., 1965"},
	{"mod_airy", "a=6377340.189", "b=6356034.446", "Modified Airy"},
	{"andrae", "a=6377104.43", "rf=300.0", "Andrae 1876 (Den., Iclnd.)"},
	{"aust_SA", "a=6378160.0", "rf=298.25", "Australian Natl & S. Amer. 1969"},
	{"GRS67", "a=6378160.0", "rf=298.2471674270", "GRS 67(IUGG 1967)"},
	{"bessel", "a=6377397.155", "rf=299.1528128", "Bessel 1841"},
	{"bess_nam", "a=6377483.865", "rf=299.1528128", "Bessel 1841 (Namibia)"},
	{"clrk66", "a=6378206.4", "b=6356583.8", "Clarke 1866"},
	{"clrk80", "a=6378249.145", "rf=293.4663", "Clarke 1880 mod."},
	{"clrk80ign", "a=6378249.2", "rf=293.4660212936269", "Clarke 1880 (IGN)."},
	{"CPM", "a=6375738.7", "rf=334.29", "Comm. des Poids et Mesures 1799"},
	{"delmbr", "a=6376428.", "rf=311.5", "Delambre 1810 (Belgium)"},
	{"engelis", "a=6378136.05", "rf=298.2566", "Engelis 1985"},
	{"evrst30", "a=6377276.345", "rf=300.8017", "Everest 1830"},
	{"fschr60", "a=6378166.", "rf=298.3", "Fischer (Mercury Datum) 1960"},
	{"helmert", "a=6378200.", "rf=298.3", "Helmert 1906"},
	{"hough", "a=6378270.0", "rf=297.", "Hough"},
	{"intl", "a=6378388.0", "rf=297.", "International 1924 (Hayford 1909, 1910)"},
	{"krass", "a=6378245.0", "rf=298.3", "Krassovsky, 1942"},
	{"kaula", "a=6378163.", "rf=298.24", "Kaula 1961"},
	{"lerch", "a=6378139.", "rf=298.257", "Lerch 1979"},
	{"mprts", "a=6397300.", "rf=191.", "Maupertius 1738"},
	{"new_intl", "a=6378157.5", "b=6356772.2", "New International 1967"},
	{"plessis", "a=6376523.", "b=6355863.", "Plessis 1817 (France)"},
	{"SEasia", "a=6378155.0", "b=6356773.3205", "Southeast Asia"},
	{"walbeck", "a=6376896.0", "b=6355834.8467", "Walbeck"},
	{"WGS60", "a=6378165.0", "rf=298.3", "WGS 60"},
	{"WGS66", "a=6378145.0", "rf=298.25", "WGS 66"},
	{"WGS72", "a=6378135.0", "rf=298.26", "WGS 72"},
	{"WGS84", "a=6378137.0", "rf=298.257223563", "WGS 84"},
	{"sphere", "a=6370997.0", "b=6370997.0", "Normal Sphere (r=6370997)"},
}

// EllipsoidNames lists the known ellipsoid ids in table order.
func EllipsoidNames() []string {
	out := make([]string, 0, len(ellipsoids))
	for _, e := range ellipsoids {
		out = append(out, e.id)
	}
	return out
}

// LookupEllipsoid returns the named ellipsoid with its derived quantities.
func LookupEllipsoid(id string) (Ellipsoid, bool) {
	for _, d := range ellipsoids {
		if d.id != id {
			continue
		}
		p := NewParams([]string{d.major, d.shape})
		e, err := ResolveEllipsoid(p)
		if err != nil {
			return Ellipsoid{}, false
		}
		e.Name = d.id
		return e, true
	}
	return Ellipsoid{}, false
}

// GRS80 and WGS84 are the defaults used by pipelines and by the factory.
func GRS80() Ellipsoid {
	e, _ := LookupEllipsoid("GRS80")
	return e
}

func WGS84() Ellipsoid {
	e, _ := LookupEllipsoid("WGS84")
	return e
}

// HasEllipsoidParams reports whether p names an ellipsoid in any of the
// accepted spellings.
func HasEllipsoidParams(p *Params) bool {
	for _, k := range []string{"R", "ellps", "a", "b", "rf", "f", "e", "es"} {
		if p.Exists(k) {
			return true
		}
	}
	return false
}

// ResolveEllipsoid derives an ellipsoid from R, ellps and the size/shape
// parameters. Explicit size and shape parameters override the named
// ellipsoid. It fails with ErrInvalidOpMissingArg when nothing describes a
// size.
func ResolveEllipsoid(p *Params) (Ellipsoid, error) {
	var e Ellipsoid

	if r, ok, err := p.Float("R"); err != nil {
		return e, err
	} else if ok {
		if r <= 0 {
			return e, Errorf(ErrInvalidOpIllegalArgValue, "invalid value for R: %v", r)
		}
		e.A = r
		return e.derive(), nil
	}

	haveShape := false
	if name, ok := p.String("ellps"); ok {
		base, found := LookupEllipsoid(name)
		if !found {
			return e, Errorf(ErrInvalidOpIllegalArgValue, "unknown ellipsoid %q", name)
		}
		e = base
		haveShape = true
	}

	if a, ok, err := p.Float("a"); err != nil {
		return e, err
	} else if ok {
		if a <= 0 {
			return e, Errorf(ErrInvalidOpIllegalArgValue, "invalid value for a: %v", a)
		}
		e.A = a
		e.Name = ""
	}
	if e.A == 0 {
		return e, Errorf(ErrInvalidOpMissingArg, "no ellipsoid size given")
	}

	switch {
	case p.Exists("rf"):
		rf, _, err := p.Float("rf")
		if err != nil {
			return e, err
		}
		if rf <= 0 {
			return e, Errorf(ErrInvalidOpIllegalArgValue, "invalid value for rf: %v", rf)
		}
		e.F = 1 / rf
		e.Es = 2*e.F - e.F*e.F
	case p.Exists("f"):
		f, _, err := p.Float("f")
		if err != nil {
			return e, err
		}
		if f < 0 || f >= 1 {
			return e, Errorf(ErrInvalidOpIllegalArgValue, "invalid value for f: %v", f)
		}
		e.F = f
		e.Es = 2*f - f*f
	case p.Exists("es"):
		es, _, err := p.Float("es")
		if err != nil {
			return e, err
		}
		if es < 0 || es >= 1 {
			return e, Errorf(ErrInvalidOpIllegalArgValue, "invalid value for es: %v", es)
		}
		e.Es = es
	case p.Exists("e"):
		ecc, _, err := p.Float("e")
		if err != nil {
			return e, err
		}
		if ecc < 0 || ecc >= 1 {
			return e, Errorf(ErrInvalidOpIllegalArgValue, "invalid value for e: %v", ecc)
		}
		e.Es = ecc * ecc
	case p.Exists("b"):
		b, _, err := p.Float("b")
		if err != nil {
			return e, err
		}
		if b <= 0 || b > e.A {
			return e, Errorf(ErrInvalidOpIllegalArgValue, "invalid value for b: %v", b)
		}
		e.B = b
		e.F = (e.A - b) / e.A
		e.Es = 2*e.F - e.F*e.F
	case !haveShape:
		// a alone describes a sphere
		e.Es = 0
	}

	if ok, _ := p.Bool("R_A"); ok && e.Es != 0 {
		es := e.Es
		e.A *= 1 - es*(1.0/6+es*(17.0/360+es*67.0/3024))
		e.Es = 0
	}
	return e.derive(), nil
}

// NewEllipsoid builds an ellipsoid from a semi-major axis and eccentricity squared.
func NewEllipsoid(a, es float64) Ellipsoid {
	return Ellipsoid{A: a, Es: es}.derive()
}

func (e Ellipsoid) derive() Ellipsoid {
	e.E = math.Sqrt(e.Es)
	e.F = 1 - math.Sqrt(1-e.Es)
	if e.F != 0 {
		e.Rf = 1 / e.F
	} else {
		e.Rf = 0
	}
	e.B = e.A * (1 - e.F)
	e.OneEs = 1 - e.Es
	e.ROneEs = 1 / e.OneEs
	e.Ra = 1 / e.A
	if e.F != 0 {
		e.N = e.F / (2 - e.F)
	}
	if e.Es != 0 {
		e.Ep2 = e.Es / e.OneEs
	}
	return e
}

func (e Ellipsoid) IsSphere() bool { return e.Es == 0 }

// IsWGS84 compares against WGS84 with the tolerances used when deciding
// whether a null towgs84 needs a geocentric round trip.
func (e Ellipsoid) IsWGS84() bool {
	return math.Abs(e.A-6378137.0) < 1e-8 && math.Abs(e.Es-0.0066943799901413) < 1e-15
}
