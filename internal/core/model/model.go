// Package model defines core domain types shared across the runtime and the service.
package model

import "fmt"

// BBox is a west/south/east/north rectangle in degrees. West may exceed
// east when the box crosses the antimeridian.
type BBox struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
	Name  string  `json:"name,omitempty"`
}

// String representation matching the bbox query parameter format
func (b BBox) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", b.West, b.South, b.East, b.North)
}

func (b BBox) CrossesAntimeridian() bool {
	return b.West > b.East
}

// Intersects reports whether two areas share at least one point, taking
// antimeridian crossing into account.
func (b BBox) Intersects(o BBox) bool {
	if b.South > o.North || o.South > b.North {
		return false
	}
	for _, x := range b.lonRanges() {
		for _, y := range o.lonRanges() {
			if x[0] <= y[1] && y[0] <= x[1] {
				return true
			}
		}
	}
	return false
}

func (b BBox) lonRanges() [][2]float64 {
	if b.CrossesAntimeridian() {
		return [][2]float64{{b.West, 180}, {-180, b.East}}
	}
	return [][2]float64{{b.West, b.East}}
}

func WorldBBox() BBox {
	return BBox{West: -180, South: -90, East: 180, North: 90, Name: "World"}
}
