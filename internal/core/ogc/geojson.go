// Package ogc renders transformation results as GeoJSON geometries.
package ogc

import (
	"fmt"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/mohammed-shakir/projpipe/pkg/proj"
)

const maxDecimalDigits = 9

// BoundsGeometry returns the box as a closed polygon ring. A geographic box
// whose west edge lies east of its east edge crosses the antimeridian and
// becomes a two-part MultiPolygon. Latitude first boxes are swapped to
// GeoJSON longitude/latitude order.
func BoundsGeometry(b proj.Bounds, geographic, lonFirst bool) geom.T {
	minX, minY, maxX, maxY := b.XMin, b.YMin, b.XMax, b.YMax
	if geographic && !lonFirst {
		minX, minY, maxX, maxY = b.YMin, b.XMin, b.YMax, b.XMax
	}
	if geographic && minX > maxX {
		return geom.NewMultiPolygonFlat(geom.XY,
			append(ring(minX, minY, 180, maxY), ring(-180, minY, maxX, maxY)...),
			[][]int{{10}, {20}})
	}
	return geom.NewPolygonFlat(geom.XY, ring(minX, minY, maxX, maxY), []int{10})
}

func ring(minX, minY, maxX, maxY float64) []float64 {
	return []float64{
		minX, minY,
		maxX, minY,
		maxX, maxY,
		minX, maxY,
		minX, minY,
	}
}

// MarshalBounds encodes BoundsGeometry with its bbox member.
func MarshalBounds(b proj.Bounds, geographic, lonFirst bool) ([]byte, error) {
	g := BoundsGeometry(b, geographic, lonFirst)
	out, err := geojson.Marshal(g,
		geojson.EncodeGeometryWithMaxDecimalDigits(maxDecimalDigits),
		geojson.EncodeGeometryWithBBox(),
	)
	if err != nil {
		return nil, fmt.Errorf("encode bounds: %w", err)
	}
	return out, nil
}
