package operations

import (
	"math"
	"strconv"
	"time"

	"github.com/mohammed-shakir/projpipe/internal/core/model"
)

func init() {
	Register("unitconvert", Descriptor{Description: "Unit conversion", New: newUnitconvert})
}

type unitKind int

const (
	kindUnknown unitKind = iota
	kindLinear
	kindAngular
)

// resolveUnit returns the factor to the base unit (meter or radian).
func resolveUnit(name string) (float64, unitKind, model.Unit, error) {
	switch name {
	case "deg":
		return model.DegToRad, kindAngular, model.UnitDegrees, nil
	case "rad":
		return 1, kindAngular, model.UnitRadians, nil
	case "grad":
		return math.Pi / 200, kindAngular, model.UnitWhatever, nil
	}
	if u, ok := model.LookupLinearUnit(name); ok {
		f, err := model.ParseToMeter(u.ToMeter)
		return f, kindLinear, model.UnitWhatever, err
	}
	if f, err := model.ParseToMeter(name); err == nil {
		return f, kindLinear, model.UnitWhatever, nil
	}
	return 0, kindUnknown, model.UnitWhatever, model.Errorf(model.ErrInvalidOpIllegalArgValue, "unknown unit %q", name)
}

type timeUnit int

const (
	timeNone timeUnit = iota
	timeDecimalYear
	timeMJD
	timeGPSWeek
	timeYYYYMMDD
)

func resolveTimeUnit(name string) (timeUnit, error) {
	switch name {
	case "decimalyear":
		return timeDecimalYear, nil
	case "mjd":
		return timeMJD, nil
	case "gps_week":
		return timeGPSWeek, nil
	case "yyyymmdd":
		return timeYYYYMMDD, nil
	}
	return timeNone, model.Errorf(model.ErrInvalidOpIllegalArgValue, "unknown time unit %q", name)
}

type unitconvert struct {
	units
	xyIn, xyOut float64
	zIn, zOut   float64
	tIn, tOut   timeUnit
}

func newUnitconvert(s *Setup) (Operation, error) {
	op := &unitconvert{units: units{model.UnitWhatever, model.UnitWhatever}, xyIn: 1, xyOut: 1, zIn: 1, zOut: 1}
	p := s.Params

	xyKind := [2]unitKind{}
	for i, key := range []string{"xy_in", "xy_out"} {
		name, ok := p.String(key)
		if !ok {
			continue
		}
		f, kind, u, err := resolveUnit(name)
		if err != nil {
			return nil, err
		}
		xyKind[i] = kind
		if i == 0 {
			op.xyIn, op.left = f, u
		} else {
			op.xyOut, op.right = f, u
		}
	}
	if xyKind[0] != kindUnknown && xyKind[1] != kindUnknown && xyKind[0] != xyKind[1] {
		return nil, model.Errorf(model.ErrInvalidOpIllegalArgValue, "xy_in and xy_out must both be linear or both angular")
	}

	for i, key := range []string{"z_in", "z_out"} {
		name, ok := p.String(key)
		if !ok {
			continue
		}
		f, kind, _, err := resolveUnit(name)
		if err != nil {
			return nil, err
		}
		if kind != kindLinear {
			return nil, model.Errorf(model.ErrInvalidOpIllegalArgValue, "%s: angular units not supported for z", key)
		}
		if i == 0 {
			op.zIn = f
		} else {
			op.zOut = f
		}
	}

	for i, key := range []string{"t_in", "t_out"} {
		name, ok := p.String(key)
		if !ok {
			continue
		}
		tu, err := resolveTimeUnit(name)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			op.tIn = tu
		} else {
			op.tOut = tu
		}
	}
	return op, nil
}

func (o *unitconvert) convert(c model.Coord, xyIn, xyOut, zIn, zOut float64, tIn, tOut timeUnit) model.Coord {
	c[0] = c[0] * xyIn / xyOut
	c[1] = c[1] * xyIn / xyOut
	c[2] = c[2] * zIn / zOut
	if tIn != timeNone && tOut != timeNone && c[3] != model.HugeVal {
		c[3] = fromMJD(toMJD(c[3], tIn), tOut)
	}
	return c
}

func (o *unitconvert) Forward(c model.Coord) (model.Coord, error) {
	return o.convert(c, o.xyIn, o.xyOut, o.zIn, o.zOut, o.tIn, o.tOut), nil
}

func (o *unitconvert) Inverse(c model.Coord) (model.Coord, error) {
	return o.convert(c, o.xyOut, o.xyIn, o.zOut, o.zIn, o.tOut, o.tIn), nil
}

var mjdEpoch = time.Date(1858, 11, 17, 0, 0, 0, 0, time.UTC)

const gpsEpochMJD = 44244.0

func mjdOf(t time.Time) float64 {
	return float64(t.Unix()-mjdEpoch.Unix())/86400 + float64(t.Nanosecond())/86400e9
}

func timeOfMJD(mjd float64) time.Time {
	days := math.Floor(mjd)
	frac := mjd - days
	return mjdEpoch.AddDate(0, 0, int(days)).Add(time.Duration(frac * 24 * float64(time.Hour)))
}

func mjdOfYear(year int) float64 {
	return mjdOf(time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC))
}

func daysInYear(year int) float64 {
	return mjdOfYear(year+1) - mjdOfYear(year)
}

func toMJD(v float64, u timeUnit) float64 {
	switch u {
	case timeDecimalYear:
		year := int(math.Floor(v))
		return mjdOfYear(year) + (v-float64(year))*daysInYear(year)
	case timeGPSWeek:
		return v*7 + gpsEpochMJD
	case timeYYYYMMDD:
		n := int64(math.Round(v))
		year, month, day := int(n/10000), time.Month((n/100)%100), int(n%100)
		return mjdOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
	default:
		return v
	}
}

func fromMJD(mjd float64, u timeUnit) float64 {
	switch u {
	case timeDecimalYear:
		t := timeOfMJD(mjd)
		year := t.Year()
		return float64(year) + (mjd-mjdOfYear(year))/daysInYear(year)
	case timeGPSWeek:
		return (mjd - gpsEpochMJD) / 7
	case timeYYYYMMDD:
		t := timeOfMJD(mjd)
		v, _ := strconv.ParseFloat(t.Format("20060102"), 64)
		return v
	default:
		return mjd
	}
}
