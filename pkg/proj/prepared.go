package proj

import (
	"math"
	"slices"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/mohammed-shakir/projpipe/internal/authority"
	"github.com/mohammed-shakir/projpipe/internal/core/model"
)

// bboxSteps is the number of intervals each edge of an area of use is cut
// into before reprojection.
const bboxSteps = 20

// CoordOperation is one row of a multi-candidate handle: an operation with
// its area of use expressed in source and target CRS units.
type CoordOperation struct {
	OriginalIndex int

	MinXSrc, MinYSrc, MaxXSrc, MaxYSrc float64
	MinXDst, MinYDst, MaxXDst, MaxYDst float64

	PJ       *PJ
	Name     string
	Accuracy float64
	// IsOffshore marks areas of use named "... - offshore"; such rows
	// never displace a row that was already selected.
	IsOffshore bool
	// PseudoArea is the longitude span times the difference of the sines of
	// the latitude bounds, used for reporting.
	PseudoArea  float64
	GridsNeeded []string

	// srcLon and dstLon give the axis holding longitude degrees on each
	// side, -1 when that side is not geographic.
	srcLon, dstLon int
	ballpark       bool
}

func (o CoordOperation) clone() (CoordOperation, error) {
	pj, err := o.PJ.Clone()
	if err != nil {
		return CoordOperation{}, err
	}
	o.PJ = pj
	o.GridsNeeded = slices.Clone(o.GridsNeeded)
	return o, nil
}

func (o *CoordOperation) srcBox() (minX, minY, maxX, maxY float64) {
	return o.MinXSrc, o.MinYSrc, o.MaxXSrc, o.MaxYSrc
}

func (o *CoordOperation) dstBox() (minX, minY, maxX, maxY float64) {
	return o.MinXDst, o.MinYDst, o.MaxXDst, o.MaxYDst
}

func pseudoArea(b model.BBox) float64 {
	w, e := b.West, b.East
	if w > e {
		e += 360
	}
	return (e - w) * (math.Sin(b.North*model.DegToRad) - math.Sin(b.South*model.DegToRad))
}

func lonAxis(crs authority.CRS) int {
	if !crs.Geographic() {
		return -1
	}
	if crs.LonFirst() {
		return 0
	}
	return 1
}

// reprojectBBox runs a densified outline of the lon/lat box through
// geogToCRS and returns the envelope of the points that made it. The whole
// world maps to the largest finite box.
// validBBox reports whether the area of use survived reprojection into both
// CRSs, on either axis.
func (o CoordOperation) validBBox() bool {
	return o.MinXSrc <= o.MaxXSrc && o.MinYSrc <= o.MaxYSrc &&
		o.MinXDst <= o.MaxXDst && o.MinYDst <= o.MaxYDst
}

func reprojectBBox(geogToCRS *PJ, west, south, east, north float64) (minX, minY, maxX, maxY float64) {
	if west == -180 && east == 180 && south == -90 && north == 90 {
		return -math.MaxFloat64, -math.MaxFloat64, math.MaxFloat64, math.MaxFloat64
	}

	const n = bboxSteps + 1
	xs := make([]float64, 4*n)
	ys := make([]float64, 4*n)
	for j := 0; j < n; j++ {
		lon := west + float64(j)*(east-west)/bboxSteps
		lat := south + float64(j)*(north-south)/bboxSteps
		xs[j], ys[j] = lon, south
		xs[n+j], ys[n+j] = lon, north
		xs[2*n+j], ys[2*n+j] = west, lat
		xs[3*n+j], ys[3*n+j] = east, lat
	}
	geogToCRS.TransGeneric(model.Fwd, Column(xs), Column(ys), Strided{}, Strided{})

	vx := make([]float64, 0, len(xs))
	vy := make([]float64, 0, len(ys))
	for i := range xs {
		if xs[i] != model.HugeVal && ys[i] != model.HugeVal {
			vx = append(vx, xs[i])
			vy = append(vy, ys[i])
		}
	}
	if len(vx) == 0 {
		return math.MaxFloat64, math.MaxFloat64, -math.MaxFloat64, -math.MaxFloat64
	}
	return floats.Min(vx), floats.Min(vy), floats.Max(vx), floats.Max(vy)
}

// geographicHelper builds the operation from base longitude/latitude
// degrees to crs.
func (c *Context) geographicHelper(crs authority.CRS) (*PJ, error) {
	h, err := c.authority.GeographicHelper(crs.ID, c.gridAvailable)
	if err != nil {
		return nil, err
	}
	return createWith(c, h.Definition, createOptions{})
}

// prepareOperations turns candidates into rows. Candidates whose area of
// use crosses the antimeridian give two rows, one on each side.
func (c *Context) prepareOperations(src, dst authority.CRS, cands []authority.Candidate) ([]CoordOperation, error) {
	toSrc, err := c.geographicHelper(src)
	if err != nil {
		c.logger.Debug().Err(err).Msg("Cannot create transformation from geographic CRS of source CRS to source CRS")
		return nil, err
	}
	defer toSrc.Destroy()
	toDst, err := c.geographicHelper(dst)
	if err != nil {
		c.logger.Debug().Err(err).Msg("Cannot create transformation from geographic CRS of target CRS to target CRS")
		return nil, err
	}
	defer toDst.Destroy()

	var rows []CoordOperation
	add := func(idx int, cand authority.Candidate, op *PJ, west, south, east, north float64) bool {
		row := CoordOperation{
			OriginalIndex: idx,
			PJ:            op,
			Name:          cand.Name,
			Accuracy:      cand.Accuracy,
			IsOffshore:    strings.Contains(cand.Area.Name, "- offshore"),
			PseudoArea:    pseudoArea(model.BBox{West: west, South: south, East: east, North: north}),
			GridsNeeded:   slices.Clone(cand.Grids),
			srcLon:        lonAxis(src),
			dstLon:        lonAxis(dst),
			ballpark:      cand.Ballpark,
		}
		row.MinXSrc, row.MinYSrc, row.MaxXSrc, row.MaxYSrc = reprojectBBox(toSrc, west, south, east, north)
		row.MinXDst, row.MinYDst, row.MaxXDst, row.MaxYDst = reprojectBBox(toDst, west, south, east, north)
		if row.validBBox() {
			rows = append(rows, row)
			return true
		}
		return false
	}

	for i, cand := range cands {
		op, err := c.candidateOperation(cand, src, dst)
		if err != nil {
			c.logger.Debug().Err(err).Str("op", cand.ID).Msg("skipping candidate operation")
			continue
		}
		a := cand.Area
		if a.West <= a.East {
			if !add(i, cand, op, a.West, a.South, a.East, a.North) {
				op.Destroy()
			}
			continue
		}
		other, err := op.Clone()
		if err != nil {
			op.Destroy()
			continue
		}
		if !add(i, cand, op, a.West, a.South, 180, a.North) {
			op.Destroy()
		}
		if !add(i, cand, other, -180, a.South, a.East, a.North) {
			other.Destroy()
		}
	}
	return rows, nil
}

// candidateOperation instantiates a candidate with grid loading deferred,
// so an operation whose grid is missing still takes part in selection.
func (c *Context) candidateOperation(cand authority.Candidate, src, dst authority.CRS) (*PJ, error) {
	op, err := createWith(c, cand.Definition, createOptions{deferGrids: true})
	if err != nil {
		return nil, err
	}
	if cand.Inverse {
		op.inverted = !op.inverted
	}
	op.label = cand.ID
	op.descr = cand.Name
	op.accuracy = cand.Accuracy
	op.srcCRS, op.dstCRS = src.ID, dst.ID
	return op, nil
}
