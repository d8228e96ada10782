package proj

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/projpipe/internal/authority"
	"github.com/mohammed-shakir/projpipe/internal/core/model"
	"github.com/mohammed-shakir/projpipe/internal/grids"
)

// conusGrid is a zero shift covering the NAD27 to NAD83 grid operation.
func conusGrid() *grids.Grid {
	return &grids.Grid{
		Name: "conus", West: -130, South: 20, ResLon: 70, ResLat: 35,
		Cols: 2, Rows: 2, Unit: "arcsec",
		Bands: [][]float64{{0, 0, 0, 0}, {0, 0, 0, 0}},
	}
}

type hookCounts struct {
	retries, fallbacks, none int
	lastRetry, lastFallback  string
}

func (h *hookCounts) hooks() Hooks {
	return Hooks{
		OnRetry:       func(op string) { h.retries++; h.lastRetry = op },
		OnFallback:    func(op string) { h.fallbacks++; h.lastFallback = op },
		OnNoOperation: func() { h.none++ },
	}
}

func mustCrsToCrs(t *testing.T, ctx *Context, src, tgt string, area *model.BBox, opts ...string) *PJ {
	t.Helper()
	p, err := CreateCrsToCrs(ctx, src, tgt, area, opts...)
	require.NoError(t, err)
	require.NotNil(t, p, "%s to %s", src, tgt)
	t.Cleanup(p.Destroy)
	return p
}

func TestCrsToCrsConversion(t *testing.T) {
	p := mustCrsToCrs(t, NewContext(), "EPSG:4326", "EPSG:32632", nil)
	assert.Nil(t, p.LastUsedOperation())

	// EPSG:4326 is latitude first
	out := p.Trans(model.Fwd, model.Coord{52, 9})
	require.False(t, out.IsError())
	assert.InDelta(t, 500000, out[0], 1e-6)

	back := p.Trans(model.Inv, out)
	assert.InDelta(t, 52, back[0], 1e-9)
	assert.InDelta(t, 9, back[1], 1e-9)

	last := p.LastUsedOperation()
	require.NotNil(t, last)
	defer last.Destroy()
	assert.Equal(t, "PROJ:CONV_EPSG_4326_TO_EPSG_32632", last.Info().Name)
}

func TestCrsToCrsErrors(t *testing.T) {
	ctx := NewContext()
	_, err := CreateCrsToCrs(ctx, "EPSG:9999", "EPSG:4326", nil)
	assert.Equal(t, model.ErrInvalidOpIllegalArgValue, model.CodeOf(err))

	_, err = CreateCrsToCrs(ctx, "EPSG:4326", "EPSG:32632", nil, "FOO=BAR")
	assert.Equal(t, model.ErrOtherAPIMisuse, model.CodeOf(err))
	assert.Equal(t, model.ErrOtherAPIMisuse, ctx.Errno())

	_, err = CreateCrsToCrs(ctx, "EPSG:4326", "EPSG:32632", nil, "ALLOW_BALLPARK=maybe")
	assert.Equal(t, model.ErrOtherAPIMisuse, model.CodeOf(err))
}

func TestCrsToCrsBallpark(t *testing.T) {
	ctx := NewContext()
	p := mustCrsToCrs(t, ctx, "EPSG:4277", "EPSG:4269", nil)
	assert.True(t, strings.HasPrefix(p.Info().Name, "PROJ:BALLPARK_"))
	out := p.Trans(model.Fwd, model.Coord{52, -1})
	assert.InDelta(t, 52, out[0], 1e-12)

	p, err := CreateCrsToCrs(ctx, "EPSG:4277", "EPSG:4269", nil, "ALLOW_BALLPARK=NO")
	assert.NoError(t, err)
	assert.Nil(t, p)
}

func TestCrsToCrsRetryWhenGridMissing(t *testing.T) {
	var h hookCounts
	ctx := NewContext(WithHooks(h.hooks()))
	p := mustCrsToCrs(t, ctx, "EPSG:4267", "EPSG:4269", nil)
	assert.Equal(t, "alternatives", p.ID())
	assert.Equal(t, []string{"conus"}, p.GridsNeeded())

	out := p.Trans(model.Fwd, model.Coord{40, -100})
	require.False(t, out.IsError())
	assert.Zero(t, ctx.Errno())
	assert.Equal(t, 1, h.retries)
	assert.Equal(t, "NAD27 to NAD83 (Helmert approximation)", h.lastRetry)

	last := p.LastUsedOperation()
	require.NotNil(t, last)
	defer last.Destroy()
	assert.Equal(t, "EPSG:1172", last.Info().Name)
	assert.Equal(t, 10.0, last.Info().Accuracy)
}

func TestCrsToCrsUsesGridWhenAvailable(t *testing.T) {
	ctx := NewContext(WithGrids(grids.NewMemory(conusGrid())))
	p := mustCrsToCrs(t, ctx, "EPSG:4267", "EPSG:4269", nil)

	out := p.Trans(model.Fwd, model.Coord{40, -100})
	require.False(t, out.IsError())
	assert.InDelta(t, 40, out[0], 1e-9)
	assert.InDelta(t, -100, out[1], 1e-9)

	last := p.LastUsedOperation()
	require.NotNil(t, last)
	defer last.Destroy()
	assert.Equal(t, "EPSG:1241", last.Info().Name)
}

func TestCrsToCrsFallback(t *testing.T) {
	var h hookCounts
	ctx := NewContext(WithHooks(h.hooks()))
	p := mustCrsToCrs(t, ctx, "EPSG:4267", "EPSG:4269", nil)

	// outside every area of use
	out := p.Trans(model.Fwd, model.Coord{10, 0})
	require.False(t, out.IsError())
	assert.Equal(t, 1, h.fallbacks)
	assert.Equal(t, "NAD27 to NAD83 (Helmert approximation)", h.lastFallback)
	assert.Zero(t, h.none)
}

func TestCrsToCrsOnlyBest(t *testing.T) {
	ctx := NewContext()
	p := mustCrsToCrs(t, ctx, "EPSG:4267", "EPSG:4269", nil, "ONLY_BEST=YES")

	out := p.Trans(model.Fwd, model.Coord{40, -100})
	assert.True(t, out.IsError())
	assert.Equal(t, model.ErrInvalidOpFileNotFoundOrInvalid, ctx.Errno())

	// with an area the best operation is instantiated on its own
	area := &model.BBox{West: -100, South: 35, East: -95, North: 40}
	p, err := CreateCrsToCrs(ctx, "EPSG:4267", "EPSG:4269", area, "ONLY_BEST=YES")
	assert.NoError(t, err)
	assert.Nil(t, p)

	p = mustCrsToCrs(t, ctx, "EPSG:4267", "EPSG:4269", area)
	assert.Equal(t, "EPSG:1241", p.Info().Name)
	assert.False(t, p.Instantiable())
}

func TestPrepareOperationsSplitsAntimeridian(t *testing.T) {
	ctx := NewContext()
	src, err := ctx.Authority().LookupCRS("EPSG:4326")
	require.NoError(t, err)
	dst, err := ctx.Authority().LookupCRS("EPSG:4269")
	require.NoError(t, err)
	cands, err := ctx.Authority().Candidates(context.Background(), src.ID, dst.ID, authority.Query{Accuracy: -1})
	require.NoError(t, err)
	require.Len(t, cands, 1)

	rows, err := ctx.prepareOperations(src, dst, cands)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		defer row.PJ.Destroy()
		assert.Equal(t, "Inverse of NAD83 to WGS 84 (1)", row.Name)
		assert.Equal(t, 1, row.srcLon)
		assert.True(t, row.PJ.Inverted())
	}
	// latitude first: the longitude range sits on the second axis
	assert.InDelta(t, 167.65, rows[0].MinYSrc, 1e-9)
	assert.InDelta(t, 180, rows[0].MaxYSrc, 1e-9)
	assert.InDelta(t, -180, rows[1].MinYSrc, 1e-9)
	assert.InDelta(t, -40.73, rows[1].MaxYSrc, 1e-9)
	assert.InDelta(t, 14.92, rows[0].MinXSrc, 1e-9)

	// a single candidate is returned as it is
	p := mustCrsToCrs(t, ctx, "EPSG:4326", "EPSG:4269", nil)
	assert.Empty(t, p.alts)
	assert.Equal(t, model.Coord{45, -100}, p.Trans(model.Fwd, model.Coord{45, -100}))
}
