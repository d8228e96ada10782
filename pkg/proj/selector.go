package proj

import (
	"math"
	"strings"

	"github.com/mohammed-shakir/projpipe/internal/core/model"
)

// HARNExceptions are operation names that lose the equal-accuracy
// tie-break to a candidate with a smaller area of use: their published
// areas are larger than the region they are accurate for.
var HARNExceptions = []string{
	"NAD83 to NAD83(HARN) (47)",
	"NAD83 to NAD83(HARN) (48)",
	"NAD83 to NAD83(HARN) (49)",
	"NAD83 to NAD83(HARN) (50)",
}

func isHARNException(name string) bool {
	for _, s := range HARNExceptions {
		if strings.Contains(name, s) {
			return true
		}
	}
	return false
}

// inBox tests x/y against a box. On the longitude axis the value is also
// tried shifted by a full turn, so -190 matches a box spanning [170,180].
func inBox(x, y float64, lonAxis int, minX, minY, maxX, maxY float64) bool {
	in := func(x, y float64) bool {
		return x >= minX && x <= maxX && y >= minY && y <= maxY
	}
	if in(x, y) {
		return true
	}
	switch lonAxis {
	case 0:
		return in(x+360, y) || in(x-360, y)
	case 1:
		return in(x, y+360) || in(x, y-360)
	}
	return false
}

// suggestedOperation picks the row for c: among the rows whose area of use
// contains the point, the best known accuracy wins. On equal accuracy a row
// whose source area lies inside the current choice replaces it, unless the
// current choice is one of the HARNExceptions. Rows in excluded are
// skipped. It returns -1 when no row contains the point.
func suggestedOperation(ops []CoordOperation, excluded [2]int, dir model.Direction, c model.Coord) int {
	best := -1
	bestAcc := math.MaxFloat64
	for i := range ops {
		if i == excluded[0] || i == excluded[1] {
			continue
		}
		alt := &ops[i]

		var inside bool
		if dir == model.Fwd {
			minX, minY, maxX, maxY := alt.srcBox()
			inside = inBox(c[0], c[1], alt.srcLon, minX, minY, maxX, maxY)
		} else {
			minX, minY, maxX, maxY := alt.dstBox()
			inside = inBox(c[0], c[1], alt.dstLon, minX, minY, maxX, maxY)
		}
		if !inside {
			continue
		}

		if best < 0 {
			best, bestAcc = i, alt.Accuracy
			continue
		}
		if alt.Accuracy < 0 || alt.IsOffshore {
			continue
		}
		cur := &ops[best]
		better := alt.Accuracy < bestAcc
		if !better && alt.Accuracy == bestAcc {
			better = alt.MinXSrc >= cur.MinXSrc && alt.MinYSrc >= cur.MinYSrc &&
				alt.MaxXSrc <= cur.MaxXSrc && alt.MaxYSrc <= cur.MaxYSrc &&
				!isHARNException(cur.Name)
		}
		if better {
			best, bestAcc = i, alt.Accuracy
		}
	}
	return best
}
