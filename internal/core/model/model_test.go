package model

import (
	"errors"
	"fmt"
	"math"
	"testing"
)

func TestBBoxIntersectsAcrossAntimeridian(t *testing.T) {
	fiji := BBox{West: 174, South: -22, East: -178, North: -12}
	if !fiji.CrossesAntimeridian() {
		t.Fatalf("expected fiji box to cross the antimeridian")
	}
	if !fiji.Intersects(BBox{West: -179, South: -20, East: -178.5, North: -15}) {
		t.Fatalf("expected east part to intersect")
	}
	if fiji.Intersects(BBox{West: 0, South: -20, East: 10, North: -15}) {
		t.Fatalf("unexpected intersection with greenwich box")
	}
	if !WorldBBox().Intersects(fiji) {
		t.Fatalf("world must intersect everything")
	}
}

func TestParamsFirstOccurrenceWins(t *testing.T) {
	p := NewParams([]string{"proj=merc", "lat_ts=10", "lat_ts=20", "over"})
	v, ok, err := p.Float("lat_ts")
	if err != nil || !ok || v != 10 {
		t.Fatalf("lat_ts=%v ok=%v err=%v", v, ok, err)
	}
	if b, _ := p.Bool("over"); !b {
		t.Fatalf("bare flag should read true")
	}
	p.Append("k_0=0.9996")
	if got := p.Tokens(); len(got) != 5 || got[4] != "k_0=0.9996" {
		t.Fatalf("tokens=%v", got)
	}
	if _, err := NewParams([]string{"over=maybe"}).Bool("over"); CodeOf(err) != ErrInvalidOpIllegalArgValue {
		t.Fatalf("expected illegal arg, got %v", err)
	}
}

func TestParseAngle(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"45", 45},
		{"-45.5", -45.5},
		{"12d30'", 12.5},
		{"12d30'36\"W", -(12 + 30.0/60 + 36.0/3600)},
		{"10S", -10},
		{"0dE", 0},
	}
	for _, c := range cases {
		got, err := ParseAngle(c.in)
		if err != nil {
			t.Fatalf("%s: %v", c.in, err)
		}
		if math.Abs(got-c.want*DegToRad) > 1e-14 {
			t.Fatalf("%s: got %v want %v", c.in, got*RadToDeg, c.want)
		}
	}
	if r, _ := ParseAngle("1.5r"); r != 1.5 {
		t.Fatalf("radian suffix: %v", r)
	}
	if _, err := ParseAngle("abc"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestResolveEllipsoid(t *testing.T) {
	grs := GRS80()
	if grs.A != 6378137 || math.Abs(grs.Rf-298.257222101) > 1e-9 {
		t.Fatalf("grs80 %+v", grs)
	}
	e, err := ResolveEllipsoid(NewParams([]string{"ellps=GRS80", "a=6400000"}))
	if err != nil || e.A != 6400000 || math.Abs(e.Es-grs.Es) > 1e-15 {
		t.Fatalf("override: %+v %v", e, err)
	}
	s, err := ResolveEllipsoid(NewParams([]string{"R=6371000"}))
	if err != nil || !s.IsSphere() {
		t.Fatalf("sphere: %+v %v", s, err)
	}
	if _, err := ResolveEllipsoid(NewParams([]string{"proj=merc"})); CodeOf(err) != ErrInvalidOpMissingArg {
		t.Fatalf("expected missing arg, got %v", err)
	}
	if _, err := ResolveEllipsoid(NewParams([]string{"ellps=nope"})); CodeOf(err) != ErrInvalidOpIllegalArgValue {
		t.Fatalf("expected illegal arg, got %v", err)
	}
	if !WGS84().IsWGS84() || grs.IsWGS84() {
		t.Fatalf("wgs84 detection broken")
	}
}

func TestExpandDatumKeepsExplicitTokens(t *testing.T) {
	p := NewParams([]string{"proj=longlat", "datum=potsdam", "towgs84=1,2,3"})
	if err := ExpandDatum(p); err != nil {
		t.Fatal(err)
	}
	tw, ok, err := ParseToWGS84(p)
	if err != nil || !ok || tw.N != 3 || tw.Params[0] != 1 {
		t.Fatalf("towgs84 %+v ok=%v err=%v", tw, ok, err)
	}
	if s, _ := p.String("ellps"); s != "bessel" {
		t.Fatalf("ellps=%q", s)
	}
}

func TestUnitFactor(t *testing.T) {
	f, ok, err := UnitFactor(NewParams([]string{"units=us-ft"}), "units", "to_meter")
	if err != nil || !ok || math.Abs(f-0.304800609601219) > 1e-15 {
		t.Fatalf("us-ft %v %v %v", f, ok, err)
	}
	f, _, err = UnitFactor(NewParams([]string{"to_meter=1/3"}), "units", "to_meter")
	if err != nil || math.Abs(f-1.0/3) > 1e-15 {
		t.Fatalf("ratio %v %v", f, err)
	}
	if _, _, err := UnitFactor(NewParams([]string{"to_meter=-2"}), "units", "to_meter"); CodeOf(err) != ErrInvalidOpIllegalArgValue {
		t.Fatalf("expected illegal arg, got %v", err)
	}
}

func TestErrorCodes(t *testing.T) {
	err := fmt.Errorf("step 2: %w", Errorf(ErrCoordTransfmOutsideGrid, "outside grid"))
	if CodeOf(err) != ErrCoordTransfmOutsideGrid {
		t.Fatalf("code=%d", CodeOf(err))
	}
	if !errors.Is(err, &Error{Code: ErrCoordTransfmOutsideGrid}) {
		t.Fatalf("errors.Is should match on code")
	}
	if CodeOf(errors.New("plain")) != ErrOther || CodeOf(nil) != 0 {
		t.Fatalf("fallback codes wrong")
	}
	if Errno(2060).String() != ErrCoordTransfm.String() {
		t.Fatalf("range fallback wrong")
	}
}

func TestAdjlon(t *testing.T) {
	if got := Adjlon(3 * math.Pi / 2); math.Abs(got+math.Pi/2) > 1e-12 {
		t.Fatalf("adjlon=%v", got)
	}
	if got := Adjlon(0.5); got != 0.5 {
		t.Fatalf("adjlon changed in-range value: %v", got)
	}
}
