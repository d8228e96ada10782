package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Unit is the kind of coordinate an operation consumes or produces on one side.
type Unit int

const (
	UnitWhatever Unit = iota
	// UnitClassic is linear, scaled by the semi-major axis inside the kernel.
	UnitClassic
	UnitProjected
	UnitCartesian
	UnitRadians
	UnitDegrees
)

func (u Unit) String() string {
	switch u {
	case UnitClassic:
		return "classic"
	case UnitProjected:
		return "projected"
	case UnitCartesian:
		return "cartesian"
	case UnitRadians:
		return "radians"
	case UnitDegrees:
		return "degrees"
	default:
		return "whatever"
	}
}

// Comparable folds classic units onto projected ones, which is how two
// adjacent steps are matched.
func (u Unit) Comparable() Unit {
	if u == UnitClassic {
		return UnitProjected
	}
	return u
}

func (u Unit) Angular() bool {
	return u == UnitRadians || u == UnitDegrees
}

type LinearUnit struct {
	ID      string
	ToMeter string
	Name    string
	Factor  float64
}

var linearUnits = []LinearUnit{
	{"km", "1000", "Kilometer", 1000},
	{"m", "1", "Meter", 1},
	{"dm", "1/10", "Decimeter", 0.1},
	{"cm", "1/100", "Centimeter", 0.01},
	{"mm", "1/1000", "Millimeter", 0.001},
	{"kmi", "1852", "International Nautical Mile", 1852},
	{"in", "0.0254", "International Inch", 0.0254},
	{"ft", "0.3048", "International Foot", 0.3048},
	{"yd", "0.9144", "International Yard", 0.9144},
	{"mi", "1609.344", "International Statute Mile", 1609.344},
	{"fath", "1.8288", "International Fathom", 1.8288},
	{"ch", "20.1168", "International Chain", 20.1168},
	{"link", "0.201168", "International Link", 0.201168},
	{"us-in", "1/39.37", "U.S. Surveyor's Inch", 1 / 39.37},
	{"us-ft", "0.304800609601219", "U.S. Surveyor's Foot", 0.304800609601219},
	{"us-yd", "0.914401828803658", "U.S. Surveyor's Yard", 0.914401828803658},
	{"us-ch", "20.11684023368047", "U.S. Surveyor's Chain", 20.11684023368047},
	{"us-mi", "1609.347218694437", "U.S. Surveyor's Statute Mile", 1609.347218694437},
	{"ind-yd", "0.91439523", "Indian Yard", 0.91439523},
	{"ind-ft", "0.30479841", "Indian Foot", 0.30479841},
	{"ind-ch", "20.11669506", "Indian Chain", 20.11669506},
}

func LinearUnits() []LinearUnit {
	out := make([]LinearUnit, len(linearUnits))
	copy(out, linearUnits)
	return out
}

func LookupLinearUnit(id string) (LinearUnit, bool) {
	for _, u := range linearUnits {
		if u.ID == id {
			return u, true
		}
	}
	return LinearUnit{}, false
}

// ParseToMeter accepts a plain number or an "a/b" ratio.
func ParseToMeter(s string) (float64, error) {
	s = strings.TrimSpace(s)
	num, den, isRatio := strings.Cut(s, "/")
	v, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	if err != nil {
		return 0, Errorf(ErrInvalidOpIllegalArgValue, "invalid unit factor %q", s)
	}
	if isRatio {
		d, err := strconv.ParseFloat(strings.TrimSpace(den), 64)
		if err != nil || d == 0 {
			return 0, Errorf(ErrInvalidOpIllegalArgValue, "invalid unit ratio %q", s)
		}
		v /= d
	}
	if v <= 0 {
		return 0, Errorf(ErrInvalidOpIllegalArgValue, "unit factor must be > 0, got %q", s)
	}
	return v, nil
}

// UnitFactor resolves either a named unit (units=) or a factor (to_meter=).
func UnitFactor(p *Params, unitsKey, factorKey string) (float64, bool, error) {
	if name, ok := p.String(unitsKey); ok {
		u, found := LookupLinearUnit(name)
		if !found {
			return 0, false, Errorf(ErrInvalidOpIllegalArgValue, "unknown unit %q", name)
		}
		f, err := ParseToMeter(u.ToMeter)
		return f, true, err
	}
	if s, ok := p.String(factorKey); ok {
		f, err := ParseToMeter(s)
		if err != nil {
			return 0, false, fmt.Errorf("%s: %w", factorKey, err)
		}
		return f, true, nil
	}
	return 1, false, nil
}
