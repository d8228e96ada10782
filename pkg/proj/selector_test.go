package proj

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mohammed-shakir/projpipe/internal/core/model"
)

func row(name string, acc float64, minX, minY, maxX, maxY float64) CoordOperation {
	return CoordOperation{
		Name: name, Accuracy: acc,
		MinXSrc: minX, MinYSrc: minY, MaxXSrc: maxX, MaxYSrc: maxY,
		MinXDst: minX, MinYDst: minY, MaxXDst: maxX, MaxYDst: maxY,
		srcLon: -1, dstLon: -1,
	}
}

func TestSuggestedOperationPrefersAccuracy(t *testing.T) {
	ops := []CoordOperation{
		row("coarse", 10, -10, -10, 10, 10),
		row("fine", 1, -5, -5, 5, 5),
		row("unknown", -1, -10, -10, 10, 10),
	}
	none := [2]int{-1, -1}
	assert.Equal(t, 1, suggestedOperation(ops, none, model.Fwd, model.Coord{0, 0}))
	assert.Equal(t, 0, suggestedOperation(ops, none, model.Fwd, model.Coord{8, 8}))
	assert.Equal(t, 0, suggestedOperation(ops, [2]int{1, -1}, model.Inv, model.Coord{0, 0}))
	assert.Equal(t, 2, suggestedOperation(ops, [2]int{0, 1}, model.Fwd, model.Coord{0, 0}))
	assert.Equal(t, -1, suggestedOperation(ops, none, model.Fwd, model.Coord{50, 0}))
}

func TestSuggestedOperationTieBreak(t *testing.T) {
	none := [2]int{-1, -1}
	ops := []CoordOperation{
		row("wide", 1, -10, -10, 10, 10),
		row("narrow", 1, -5, -5, 5, 5),
	}
	// equal accuracy: the smaller area of use wins
	assert.Equal(t, 1, suggestedOperation(ops, none, model.Fwd, model.Coord{0, 0}))

	ops[0].Name = "NAD83 to NAD83(HARN) (47)"
	assert.Equal(t, 0, suggestedOperation(ops, none, model.Fwd, model.Coord{0, 0}))

	ops[0].Name = "wide"
	ops[1].IsOffshore = true
	assert.Equal(t, 0, suggestedOperation(ops, none, model.Fwd, model.Coord{0, 0}))
}

func TestInBoxLongitudeWrap(t *testing.T) {
	assert.True(t, inBox(-190, 0, 0, 170, -10, 180, 10))
	assert.True(t, inBox(-185, 0, 0, 170, -10, 180, 10))
	// 190 is -170, outside [170,180]
	assert.False(t, inBox(190, 0, 0, 170, -10, 180, 10))
	assert.False(t, inBox(-190, 0, -1, 170, -10, 180, 10))
	assert.True(t, inBox(0, -185, 1, -10, 170, 10, 180))
	assert.False(t, inBox(0, 0, 0, 170, -10, 180, 10))
}

func TestAntimeridianBounds(t *testing.T) {
	twoCrossings := []float64{170, 175, -175, -170, -170, -175, 175, 170}
	assert.Equal(t, 170.0, antimeridianMin(twoCrossings))
	assert.Equal(t, -170.0, antimeridianMax(twoCrossings))

	fourCrossings := []float64{170, -170, 170, -170}
	assert.Equal(t, -180.0, antimeridianMin(fourCrossings))
	assert.Equal(t, 180.0, antimeridianMax(fourCrossings))

	plain := []float64{10, 20, model.HugeVal, 30}
	assert.Equal(t, 10.0, antimeridianMin(plain))
	assert.Equal(t, 30.0, antimeridianMax(plain))

	assert.Equal(t, model.HugeVal, simpleMin([]float64{model.HugeVal}))
	assert.Equal(t, -5.0, simpleMin([]float64{model.HugeVal, 3, -5}))
	assert.Equal(t, 3.0, simpleMax([]float64{model.HugeVal, 3, -5}))
}

func TestValidBBoxChecksBothAxes(t *testing.T) {
	assert.True(t, row("ok", 1, -10, -10, 10, 10).validBBox())

	r := row("lat inverted in target", 1, -10, -10, 10, 10)
	r.MinYDst, r.MaxYDst = 5, -5
	assert.False(t, r.validBBox())

	r = row("lon inverted in source", 1, -10, -10, 10, 10)
	r.MinXSrc, r.MaxXSrc = 5, -5
	assert.False(t, r.validBBox())
}
