// Package grids decodes shift grids and serves them from memory, disk or HTTP.
package grids

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/mohammed-shakir/projpipe/internal/core/model"
)

// ErrNotFound is returned by providers when a grid does not exist.
var ErrNotFound = errors.New("grid not found")

// Grid is a regular lon/lat lattice. Nodes are stored row-major starting at
// the south-west corner; every band holds Cols*Rows values.
type Grid struct {
	Name   string      `json:"name"`
	West   float64     `json:"west"`
	South  float64     `json:"south"`
	ResLon float64     `json:"res_lon"`
	ResLat float64     `json:"res_lat"`
	Cols   int         `json:"cols"`
	Rows   int         `json:"rows"`
	Unit   string      `json:"unit"` // arcsec, degree, radian or meter
	Nodata *float64    `json:"nodata,omitempty"`
	Bands  [][]float64 `json:"bands"`
}

// Decode reads a JSON grid document and validates its shape.
func Decode(r io.Reader) (*Grid, error) {
	var g Grid
	if err := json.NewDecoder(r).Decode(&g); err != nil {
		return nil, fmt.Errorf("decode grid: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

func (g *Grid) Validate() error {
	if g.Cols < 2 || g.Rows < 2 {
		return fmt.Errorf("grid %q: need at least 2x2 nodes", g.Name)
	}
	if g.ResLon <= 0 || g.ResLat <= 0 {
		return fmt.Errorf("grid %q: resolution must be positive", g.Name)
	}
	if len(g.Bands) == 0 {
		return fmt.Errorf("grid %q: no bands", g.Name)
	}
	for i, b := range g.Bands {
		if len(b) != g.Cols*g.Rows {
			return fmt.Errorf("grid %q: band %d has %d values, want %d", g.Name, i, len(b), g.Cols*g.Rows)
		}
	}
	switch g.Unit {
	case "", "arcsec", "degree", "radian", "meter":
	default:
		return fmt.Errorf("grid %q: unknown unit %q", g.Name, g.Unit)
	}
	return nil
}

func (g *Grid) East() float64  { return g.West + float64(g.Cols-1)*g.ResLon }
func (g *Grid) North() float64 { return g.South + float64(g.Rows-1)*g.ResLat }

func (g *Grid) Extent() model.BBox {
	return model.BBox{West: g.West, South: g.South, East: g.East(), North: g.North(), Name: g.Name}
}

// Contains takes degrees.
func (g *Grid) Contains(lon, lat float64) bool {
	const eps = 1e-10
	return lon >= g.West-eps && lon <= g.East()+eps && lat >= g.South-eps && lat <= g.North()+eps
}

// Value interpolates band at lon/lat (degrees) bilinearly. The result is in
// the grid unit. Outside the grid or next to a nodata node it fails with the
// matching coordinate error code.
func (g *Grid) Value(band int, lon, lat float64) (float64, error) {
	if band < 0 || band >= len(g.Bands) {
		return 0, fmt.Errorf("grid %q has no band %d", g.Name, band)
	}
	if !g.Contains(lon, lat) {
		return 0, model.Errorf(model.ErrCoordTransfmOutsideGrid, "point outside of grid %s", g.Name)
	}
	fx := (lon - g.West) / g.ResLon
	fy := (lat - g.South) / g.ResLat
	ix := int(math.Floor(fx))
	iy := int(math.Floor(fy))
	if ix >= g.Cols-1 {
		ix = g.Cols - 2
	}
	if iy >= g.Rows-1 {
		iy = g.Rows - 2
	}
	ix = max(ix, 0)
	iy = max(iy, 0)
	dx := fx - float64(ix)
	dy := fy - float64(iy)

	vals := g.Bands[band]
	v00 := vals[iy*g.Cols+ix]
	v10 := vals[iy*g.Cols+ix+1]
	v01 := vals[(iy+1)*g.Cols+ix]
	v11 := vals[(iy+1)*g.Cols+ix+1]
	if g.Nodata != nil {
		nd := *g.Nodata
		if v00 == nd || v10 == nd || v01 == nd || v11 == nd {
			return 0, model.Errorf(model.ErrCoordTransfmGridAtNodata, "grid %s has no data at this point", g.Name)
		}
	}
	return (1-dx)*(1-dy)*v00 + dx*(1-dy)*v10 + (1-dx)*dy*v01 + dx*dy*v11, nil
}

// ToRadians converts a value of an angular grid to radians.
func (g *Grid) ToRadians(v float64) float64 {
	switch g.Unit {
	case "degree":
		return v * model.DegToRad
	case "radian":
		return v
	default:
		return v / 3600 * model.DegToRad
	}
}
