package model

import (
	"math"
	"strings"
)

// Datum is a named datum expanding to an ellipsoid and a shift definition.
type Datum struct {
	ID       string
	Defn     string // towgs84=... or nadgrids=...
	Ellps    string
	Comments string
}

var datums = []Datum{
	{"WGS84", "towgs84=0,0,0", "WGS84", ""},
	{"GGRS87", "towgs84=-199.87,74.79,246.62", "GRS80", "Greek_Geodetic_Reference_System_1987"},
	{"NAD83", "towgs84=0,0,0", "GRS80", "North_American_Datum_1983"},
	{"NAD27", "nadgrids=@conus,@alaska,@ntv2_0.gsb,@ntv1_can.dat", "clrk66", "North_American_Datum_1927"},
	{"potsdam", "towgs84=598.1,73.7,418.2,0.202,0.045,-2.455,6.7", "bessel", "Potsdam Rauenberg 1950 DHDN"},
	{"carthage", "towgs84=-263.0,6.0,431.0", "clrk80ign", "Carthage 1934 Tunisia"},
	{"hermannskogel", "towgs84=577.326,90.129,463.919,5.137,1.474,5.297,2.4232", "bessel", "Hermannskogel"},
	{"ire65", "towgs84=482.530,-130.596,564.557,-1.042,-0.214,-0.631,8.15", "mod_airy", "Ireland 1965"},
	{"nzgd49", "towgs84=59.47,-5.04,187.44,0.47,-0.1,1.024,-4.5993", "intl", "New Zealand Geodetic Datum 1949"},
	{"OSGB36", "towgs84=446.448,-125.157,542.060,0.1502,0.2470,0.8421,-20.4894", "airy", "Airy 1830"},
}

func LookupDatum(id string) (Datum, bool) {
	for _, d := range datums {
		if strings.EqualFold(d.ID, id) {
			return d, true
		}
	}
	return Datum{}, false
}

// ExpandDatum appends the ellipsoid and shift tokens of a datum= parameter.
// Tokens already present win because lookups return the first occurrence.
func ExpandDatum(p *Params) error {
	name, ok := p.String("datum")
	if !ok {
		return nil
	}
	d, found := LookupDatum(name)
	if !found {
		return Errorf(ErrInvalidOpIllegalArgValue, "unknown datum %q", name)
	}
	if d.Ellps != "" && !HasEllipsoidParams(p) {
		p.Append("ellps=" + d.Ellps)
	}
	if d.Defn != "" {
		p.Append(d.Defn)
	}
	return nil
}

// ToWGS84 holds the seven Helmert parameters of a towgs84= list in the
// units the helmert operator expects (meters, arc-seconds, ppm).
type ToWGS84 struct {
	Params [7]float64
	N      int
}

func ParseToWGS84(p *Params) (ToWGS84, bool, error) {
	vals, ok, err := p.Floats("towgs84")
	if err != nil || !ok {
		return ToWGS84{}, ok, err
	}
	if len(vals) != 3 && len(vals) != 7 {
		return ToWGS84{}, true, Errorf(ErrInvalidOpIllegalArgValue, "towgs84 needs 3 or 7 values, got %d", len(vals))
	}
	var t ToWGS84
	copy(t.Params[:], vals)
	t.N = len(vals)
	return t, true, nil
}

func (t ToWGS84) IsNull() bool {
	for _, v := range t.Params {
		if v != 0 {
			return false
		}
	}
	return true
}

// PrimeMeridian is a named meridian with its longitude from Greenwich.
type PrimeMeridian struct {
	ID   string
	Defn string
}

var primeMeridians = []PrimeMeridian{
	{"greenwich", "0dE"},
	{"lisbon", "9d07'54.862\"W"},
	{"paris", "2d20'14.025\"E"},
	{"bogota", "74d04'51.3\"W"},
	{"madrid", "3d41'14.55\"W"},
	{"rome", "12d27'8.4\"E"},
	{"bern", "7d26'22.5\"E"},
	{"jakarta", "106d48'27.79\"E"},
	{"ferro", "17d40'W"},
	{"brussels", "4d22'4.71\"E"},
	{"stockholm", "18d3'29.8\"E"},
	{"athens", "23d42'58.815\"E"},
	{"oslo", "10d43'22.5\"E"},
	{"copenhagen", "12d34'40.35\"E"},
}

// PrimeMeridianOffset returns the pm= value in radians, accepting either a
// meridian name or an angle.
func PrimeMeridianOffset(p *Params) (float64, error) {
	s, ok := p.String("pm")
	if !ok {
		return 0, nil
	}
	for _, pm := range primeMeridians {
		if strings.EqualFold(pm.ID, s) {
			return ParseAngle(pm.Defn)
		}
	}
	v, err := ParseAngle(s)
	if err != nil {
		return 0, Errorf(ErrInvalidOpIllegalArgValue, "invalid prime meridian %q", s)
	}
	return v, nil
}

// Adjlon reduces a longitude to [-pi, pi].
func Adjlon(lon float64) float64 {
	if math.Abs(lon) < math.Pi+1e-12 {
		return lon
	}
	lon += math.Pi
	lon -= 2 * math.Pi * math.Floor(lon/(2*math.Pi))
	lon -= math.Pi
	return lon
}
