package model

import "math"

// HugeVal marks a coordinate component as invalid, unset or failed.
var HugeVal = math.Inf(1)

// Coord is a 4D coordinate. Depending on the unit contract of the operation
// consuming it, it reads as x/y/z/t, lam/phi/z/t or easting/northing/height/t.
type Coord [4]float64

func XYZT(x, y, z, t float64) Coord {
	return Coord{x, y, z, t}
}

// LPZT builds a geodetic coordinate from longitude and latitude in radians.
func LPZT(lam, phi, z, t float64) Coord {
	return Coord{lam, phi, z, t}
}

func ErrorCoord() Coord {
	return Coord{HugeVal, HugeVal, HugeVal, HugeVal}
}

func (c Coord) X() float64 { return c[0] }
func (c Coord) Y() float64 { return c[1] }
func (c Coord) Z() float64 { return c[2] }
func (c Coord) T() float64 { return c[3] }

func (c Coord) Lam() float64 { return c[0] }
func (c Coord) Phi() float64 { return c[1] }

// IsError reports whether the x component carries the error sentinel, which
// is how every layer signals a failed point.
func (c Coord) IsError() bool {
	return c[0] == HugeVal
}

func (c Coord) HasNaN() bool {
	return math.IsNaN(c[0]) || math.IsNaN(c[1]) || math.IsNaN(c[2]) || math.IsNaN(c[3])
}

// Direction of a transformation call.
type Direction int

const (
	Inv   Direction = -1
	Ident Direction = 0
	Fwd   Direction = 1
)

func (d Direction) Opposite() Direction {
	return -d
}

func (d Direction) String() string {
	switch d {
	case Fwd:
		return "forward"
	case Inv:
		return "inverse"
	default:
		return "identity"
	}
}
