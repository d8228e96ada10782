package proj

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/mohammed-shakir/projpipe/internal/core/model"
)

const (
	maxDensify = 10000
	// a jump of this many degrees between ring neighbours is taken as an
	// antimeridian crossing
	antimeridianJump = 200
)

// Bounds is an axis aligned box in the units of one side of a handle.
type Bounds struct {
	XMin, YMin, XMax, YMax float64
}

func misuse(p *PJ, format string, args ...any) error {
	err := model.Errorf(model.ErrOtherAPIMisuse, format, args...)
	p.ctx.SetErrno(model.ErrOtherAPIMisuse)
	p.ctx.logger.Error().Err(err).Msg("transform bounds")
	return err
}

// TransBounds transforms a box by densifying its outline with densify
// points per edge. With geographic output it accounts for boxes that hold a
// pole or cross the antimeridian; in the latter case XMin > XMax (or YMin >
// YMax for latitude first output) in the result.
func (p *PJ) TransBounds(dir model.Direction, xmin, ymin, xmax, ymax float64, densify int) (Bounds, error) {
	out := Bounds{model.HugeVal, model.HugeVal, model.HugeVal, model.HugeVal}
	if p == nil {
		return out, model.Errorf(model.ErrOtherAPIMisuse, "nil handle not allowed")
	}
	if densify < 0 || densify > maxDensify {
		return out, misuse(p, "densify must be between 0-%d", maxDensify)
	}
	if p.name == "noop" || dir == model.Ident {
		return Bounds{xmin, ymin, xmax, ymax}, nil
	}

	degreeIn := p.DegreeInput(dir)
	degreeOut := p.DegreeOutput(dir)
	if degreeOut && densify < 2 {
		return out, misuse(p, "densify must be at least 2 if the output is geographic")
	}

	sidePts := densify + 1
	n := sidePts * 4

	var inLonLat, outLonLat, north, south bool
	if degreeIn {
		inLonLat = p.lonLatOrder(dir.Opposite())
	}
	if degreeOut {
		outLonLat = p.lonLatOrder(dir)
		north = p.containsPole(dir, xmin, ymin, xmax, ymax, outLonLat, 90)
		south = p.containsPole(dir, xmin, ymin, xmax, ymax, outLonLat, -90)
	}

	var dx, dy float64
	if degreeIn && xmax < xmin {
		if !inLonLat {
			return out, misuse(p, "latitude max < latitude min")
		}
		dx = (xmax - xmin + 360) / float64(sidePts)
	} else {
		dx = (xmax - xmin) / float64(sidePts)
	}
	if degreeIn && ymax < ymin {
		if inLonLat {
			return out, misuse(p, "latitude max < latitude min")
		}
		dy = (ymax - ymin + 360) / float64(sidePts)
	} else {
		dy = (ymax - ymin) / float64(sidePts)
	}

	// the outline must stay a closed ring for the crossing analysis
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i := 0; i < sidePts; i++ {
		fi := float64(i)
		xs[i], ys[i] = xmin, ymax-fi*dy
		xs[i+sidePts], ys[i+sidePts] = xmin+fi*dx, ymin
		xs[i+2*sidePts], ys[i+2*sidePts] = xmax, ymin+fi*dy
		xs[i+3*sidePts], ys[i+3*sidePts] = xmax-fi*dx, ymax
	}
	p.TransGeneric(dir, Column(xs), Column(ys), Strided{}, Strided{})

	crossed := false
	switch {
	case !degreeOut:
		out = Bounds{simpleMin(xs), simpleMin(ys), simpleMax(xs), simpleMax(ys)}
	case north && outLonLat:
		out = Bounds{-180, simpleMin(ys), 180, 90}
	case north:
		out = Bounds{simpleMin(xs), -180, 90, 180}
	case south && outLonLat:
		out = Bounds{-180, -90, 180, simpleMax(ys)}
	case south:
		out = Bounds{-90, -180, simpleMax(xs), 180}
	case outLonLat:
		out = Bounds{antimeridianMin(xs), simpleMin(ys), antimeridianMax(xs), simpleMax(ys)}
		crossed = out.XMin > out.XMax
	default:
		out = Bounds{simpleMin(xs), antimeridianMin(ys), simpleMax(xs), antimeridianMax(ys)}
		crossed = out.YMin > out.YMax
	}
	if !crossed {
		p.sampleInterior(dir, &out, xmin, ymin, dx, dy, sidePts)
	}
	return out, nil
}

// sampleInterior widens out with the inner rows of the source grid, which
// catches extremes that lie inside the box rather than on its outline.
func (p *PJ) sampleInterior(dir model.Direction, out *Bounds, xmin, ymin, dx, dy float64, sidePts int) {
	xs := make([]float64, sidePts)
	ys := make([]float64, sidePts)
	for j := 1; j < sidePts-1; j++ {
		for i := range sidePts {
			xs[i], ys[i] = xmin+float64(i)*dx, ymin+float64(j)*dy
		}
		p.TransGeneric(dir, Column(xs), Column(ys), Strided{}, Strided{})
		for i := range sidePts {
			if !isFinite(xs[i], ys[i]) {
				continue
			}
			out.XMin, out.XMax = math.Min(out.XMin, xs[i]), math.Max(out.XMax, xs[i])
			out.YMin, out.YMax = math.Min(out.YMin, ys[i]), math.Max(out.YMax, ys[i])
		}
	}
}

// lonLatOrder reports whether the output side of dir puts longitude first.
// Handles built from CRSs answer from the CRS axis order; bare definitions
// are taken as longitude first unless they end in a lat/lon axis swap.
func (p *PJ) lonLatOrder(dir model.Direction) bool {
	if p.inverted {
		dir = dir.Opposite()
	}
	id := p.dstCRS
	if dir == model.Inv {
		id = p.srcCRS
	}
	if id != "" && p.ctx.authority != nil {
		if crs, err := p.ctx.authority.LookupCRS(id); err == nil {
			return crs.LonFirst()
		}
	}

	end := p
	if len(p.steps) > 0 {
		end = p.steps[len(p.steps)-1]
		if dir == model.Inv {
			end = p.steps[0]
		}
	}
	return !(end.name == "axisswap" && end.params.StringOr("order", "") == "2,1")
}

// containsPole runs the pole at lat back through the handle and checks it
// falls strictly inside the input box.
func (p *PJ) containsPole(dir model.Direction, xmin, ymin, xmax, ymax float64, lonLat bool, lat float64) bool {
	px, py := 0.0, lat
	if !lonLat {
		px, py = lat, 0
	}
	last := p.ctx.ErrnoReset()
	xs, ys := []float64{px}, []float64{py}
	p.TransGeneric(dir.Opposite(), Column(xs), Column(ys), Strided{}, Strided{})
	p.ctx.SetErrno(last)
	px, py = xs[0], ys[0]
	return xmin < px && px < xmax && ymax > py && py > ymin
}

func isFinite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return false
		}
	}
	return true
}

func finite(data []float64) []float64 {
	return slices.DeleteFunc(slices.Clone(data), func(v float64) bool { return v == model.HugeVal })
}

func simpleMin(data []float64) float64 {
	if v := finite(data); len(v) > 0 {
		return floats.Min(v)
	}
	return model.HugeVal
}

func simpleMax(data []float64) float64 {
	if v := finite(data); len(v) > 0 {
		return floats.Max(v)
	}
	return model.HugeVal
}

// previousIndex is the nearest earlier valid index around the ring.
func previousIndex(i int, data []float64) int {
	n := len(data)
	prev := (i - 1 + n) % n
	for data[prev] == model.HugeVal && prev != i {
		prev = (prev - 1 + n) % n
	}
	return prev
}

// antimeridianMin returns the western bound of a ring of longitudes. Two
// crossings mean the ring straddles the antimeridian and the bound is the
// smallest value on the positive side; four mean it wraps the globe.
func antimeridianMin(data []float64) float64 {
	positiveMin := model.HugeVal
	minValue := model.HugeVal
	crossings := 0
	positive := false
	for i, v := range data {
		if v == model.HugeVal {
			continue
		}
		delta := data[previousIndex(i, data)] - v
		switch {
		case delta >= antimeridianJump && delta != model.HugeVal:
			if crossings == 0 {
				positiveMin = minValue
			}
			crossings++
			positive = false
		case delta <= -antimeridianJump && delta != model.HugeVal:
			if crossings == 0 {
				positiveMin = v
			}
			crossings++
			positive = true
		}
		if positive && v < positiveMin {
			positiveMin = v
		}
		if v < minValue {
			minValue = v
		}
	}
	switch crossings {
	case 2:
		return positiveMin
	case 4:
		return -180
	}
	return minValue
}

func antimeridianMax(data []float64) float64 {
	negativeMax := -model.HugeVal
	maxValue := -model.HugeVal
	crossings := 0
	negative := false
	for i, v := range data {
		if v == model.HugeVal {
			continue
		}
		delta := data[previousIndex(i, data)] - v
		switch {
		case delta >= antimeridianJump && delta != model.HugeVal:
			if crossings == 0 {
				negativeMax = v
			}
			crossings++
			negative = true
		case delta <= -antimeridianJump && delta != model.HugeVal:
			if crossings == 0 {
				negativeMax = maxValue
			}
			crossings++
			negative = false
		}
		if negative && v > negativeMax {
			negativeMax = v
		}
		if v > maxValue {
			maxValue = v
		}
	}
	switch crossings {
	case 2:
		return negativeMax
	case 4:
		return 180
	}
	return maxValue
}
