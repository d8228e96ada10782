package operations

import (
	"context"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/projpipe/internal/core/model"
	"github.com/mohammed-shakir/projpipe/internal/grids"
)

func newSetup(t *testing.T, name string, tokens ...string) *Setup {
	t.Helper()
	p := model.NewParams(append([]string{"proj=" + name}, tokens...))
	if !model.HasEllipsoidParams(p) {
		p.Append("ellps=GRS80")
	}
	e, err := model.ResolveEllipsoid(p)
	require.NoError(t, err)
	return &Setup{Name: name, Params: p, Ellipsoid: e, K0: 1, Context: context.Background(), Logger: zerolog.Nop()}
}

func build(t *testing.T, name string, tokens ...string) (Operation, *Setup) {
	t.Helper()
	d, ok := Lookup(name)
	require.True(t, ok, "operation %s not registered", name)
	s := newSetup(t, name, tokens...)
	op, err := d.New(s)
	require.NoError(t, err)
	return op, s
}

func fwd(t *testing.T, op Operation, c model.Coord) model.Coord {
	t.Helper()
	f, ok := op.(Forwarder)
	require.True(t, ok)
	out, err := f.Forward(c)
	require.NoError(t, err)
	return out
}

func inv(t *testing.T, op Operation, c model.Coord) model.Coord {
	t.Helper()
	i, ok := op.(Inverter)
	require.True(t, ok)
	out, err := i.Inverse(c)
	require.NoError(t, err)
	return out
}

func TestRegistryNames(t *testing.T) {
	names := Names()
	for _, want := range []string{"cart", "helmert", "hgridshift", "latlong", "merc", "tmerc", "unitconvert", "utm", "vgridshift"} {
		assert.Contains(t, names, want)
	}
	_, ok := Lookup("nope")
	assert.False(t, ok)
	assert.Panics(t, func() { Register("cart", Descriptor{}) })
}

func TestCartRoundTrip(t *testing.T) {
	op, _ := build(t, "cart", "ellps=WGS84")
	in := model.Coord{12 * model.DegToRad, 55 * model.DegToRad, 100, 0}
	xyz := fwd(t, op, in)
	back := inv(t, op, xyz)
	assert.InDelta(t, in[0], back[0], 1e-12)
	assert.InDelta(t, in[1], back[1], 1e-10)
	assert.InDelta(t, in[2], back[2], 1e-4)

	origin := fwd(t, op, model.Coord{0, 0, 0, 0})
	assert.InDelta(t, 6378137.0, origin[0], 1e-6)

	pole := inv(t, op, fwd(t, op, model.Coord{0, math.Pi / 2, 10, 0}))
	assert.InDelta(t, math.Pi/2, pole[1], 1e-12)
	assert.InDelta(t, 10, pole[2], 1e-6)
}

func TestHelmert(t *testing.T) {
	op, _ := build(t, "helmert", "x=1", "y=2", "z=3")
	out := fwd(t, op, model.Coord{100, 200, 300, 0})
	assert.Equal(t, model.Coord{101, 202, 303, 0}, out)

	_, err := mustLookup(t, "helmert").New(newSetup(t, "helmert", "rx=1"))
	assert.Equal(t, model.ErrInvalidOpMissingArg, model.CodeOf(err))
	_, err = mustLookup(t, "helmert").New(newSetup(t, "helmert", "convention=bogus"))
	assert.Equal(t, model.ErrInvalidOpIllegalArgValue, model.CodeOf(err))

	pv, _ := build(t, "helmert", "rz=3600", "convention=position_vector", "exact")
	cf, _ := build(t, "helmert", "rz=3600", "convention=coordinate_frame", "exact")
	a := fwd(t, pv, model.Coord{1000, 0, 0, 0})
	b := fwd(t, cf, model.Coord{1000, 0, 0, 0})
	assert.Greater(t, a[1], 0.0)
	assert.InDelta(t, -a[1], b[1], 1e-9)

	seven, _ := build(t, "helmert", "x=-81.07", "y=-89.36", "z=-115.75", "rx=0.485", "ry=0.024", "rz=0.413",
		"s=-0.54", "convention=position_vector", "exact")
	in := model.Coord{3565285, 855949, 5201383, 0}
	back := inv(t, seven, fwd(t, seven, in))
	for i := range 3 {
		assert.InDelta(t, in[i], back[i], 1e-6)
	}
}

func TestHelmertTimeDependent(t *testing.T) {
	op, _ := build(t, "helmert", "x=0", "dx=1", "t_epoch=2000")
	out := fwd(t, op, model.Coord{0, 0, 0, 2010})
	assert.InDelta(t, 10, out[0], 1e-12)
	unset := fwd(t, op, model.Coord{0, 0, 0, model.HugeVal})
	assert.Equal(t, 0.0, unset[0])
}

func TestMolodenskyRoundTrip(t *testing.T) {
	op, _ := build(t, "molodensky", "ellps=WGS84", "da=-251", "df=-1.419270e-05", "dx=-87", "dy=-98", "dz=-121")
	in := model.Coord{2 * model.DegToRad, 47 * model.DegToRad, 0, 0}
	out := fwd(t, op, in)
	assert.NotEqual(t, in, out)
	back := inv(t, op, out)
	assert.InDelta(t, in[0], back[0], 1e-8)
	assert.InDelta(t, in[1], back[1], 1e-8)

	_, err := mustLookup(t, "molodensky").New(newSetup(t, "molodensky", "da=1"))
	assert.Equal(t, model.ErrInvalidOpMissingArg, model.CodeOf(err))
}

func TestMercator(t *testing.T) {
	op, s := build(t, "merc")
	out := fwd(t, op, model.Coord{2 * model.DegToRad, 1 * model.DegToRad, 0, 0})
	assert.InDelta(t, 222638.981586547, out[0]*s.Ellipsoid.A, 1e-6)
	assert.InDelta(t, 110579.965218249, out[1]*s.Ellipsoid.A, 1e-3)
	back := inv(t, op, out)
	assert.InDelta(t, 1*model.DegToRad, back[1], 1e-11)

	_, err := op.(Forwarder).Forward(model.Coord{0, math.Pi / 2, 0, 0})
	assert.Equal(t, model.ErrCoordTransfmOutsideProjectionDomain, model.CodeOf(err))

	_, err = mustLookup(t, "merc").New(newSetup(t, "merc", "lat_ts=91"))
	assert.Equal(t, model.ErrInvalidOpIllegalArgValue, model.CodeOf(err))
}

func TestUTM(t *testing.T) {
	op, s := build(t, "utm", "zone=32")
	assert.Equal(t, 500000.0, s.X0)
	assert.Equal(t, 0.9996, s.K0)
	assert.InDelta(t, 9*model.DegToRad, s.Lam0, 1e-14)

	in := model.Coord{(12 - 9) * model.DegToRad, 55 * model.DegToRad, 0, 0}
	out := fwd(t, op, in)
	assert.InDelta(t, 691875.63, out[0]*s.Ellipsoid.A+s.X0, 1e-2)
	assert.InDelta(t, 6098907.83, out[1]*s.Ellipsoid.A, 1e-2)

	back := inv(t, op, out)
	assert.InDelta(t, in[0], back[0], 1e-12)
	assert.InDelta(t, in[1], back[1], 1e-12)

	south, s2 := build(t, "utm", "zone=32", "south")
	assert.Equal(t, 10000000.0, s2.Y0)
	assert.NotNil(t, south)

	_, err := mustLookup(t, "utm").New(newSetup(t, "utm", "zone=61"))
	assert.Equal(t, model.ErrInvalidOpIllegalArgValue, model.CodeOf(err))
	_, err = mustLookup(t, "utm").New(newSetup(t, "utm", "R=6371000"))
	assert.Equal(t, model.ErrInvalidOpIllegalArgValue, model.CodeOf(err))
}

func TestTmercOrigin(t *testing.T) {
	s := newSetup(t, "tmerc")
	s.Phi0 = 49 * model.DegToRad
	op, err := mustLookup(t, "tmerc").New(s)
	require.NoError(t, err)
	out := fwd(t, op, model.Coord{0, 49 * model.DegToRad, 0, 0})
	assert.InDelta(t, 0, out[0], 1e-15)
	assert.InDelta(t, 0, out[1], 1e-15)
}

func TestAxisswap(t *testing.T) {
	op, _ := build(t, "axisswap", "order=2,-1")
	out := fwd(t, op, model.Coord{1, 2, 3, 4})
	assert.Equal(t, model.Coord{2, -1, 3, 4}, out)
	assert.Equal(t, model.Coord{1, 2, 3, 4}, inv(t, op, out))

	neu, _ := build(t, "axisswap", "axis=neu")
	assert.Equal(t, model.Coord{2, 1, 3, 4}, fwd(t, neu, model.Coord{1, 2, 3, 4}))

	wsu, _ := build(t, "axisswap", "axis=wsu")
	assert.Equal(t, model.Coord{-1, -2, 3, 4}, fwd(t, wsu, model.Coord{1, 2, 3, 4}))

	for _, bad := range [][]string{{"order=1,1"}, {"axis=enn"}, {"axis=en"}, {"order=5"}} {
		_, err := mustLookup(t, "axisswap").New(newSetup(t, "axisswap", bad...))
		assert.Equal(t, model.ErrInvalidOpIllegalArgValue, model.CodeOf(err), "%v", bad)
	}
	_, err := mustLookup(t, "axisswap").New(newSetup(t, "axisswap", "order=2,1", "axis=neu"))
	assert.Equal(t, model.ErrInvalidOpMutuallyExclusiveArgs, model.CodeOf(err))
}

func TestAffineSingularHasNoInverse(t *testing.T) {
	op, _ := build(t, "affine", "xoff=10", "s11=2")
	out := fwd(t, op, model.Coord{1, 1, 1, 1})
	assert.Equal(t, model.Coord{12, 1, 1, 1}, out)
	assert.Equal(t, model.Coord{1, 1, 1, 1}, inv(t, op, out))

	singular, _ := build(t, "affine", "s11=0")
	_, ok := singular.(Inverter)
	assert.False(t, ok)
	_, ok = singular.(Forwarder)
	assert.True(t, ok)
}

func TestSetAndGeogoffset(t *testing.T) {
	op, _ := build(t, "set", "v_3=0", "v_4=2020")
	assert.Equal(t, model.Coord{1, 2, 0, 2020}, fwd(t, op, model.Coord{1, 2, 3, 4}))

	off, _ := build(t, "geogoffset", "dlat=3600", "dh=10")
	out := fwd(t, off, model.Coord{0, 0, 0, 0})
	assert.InDelta(t, model.DegToRad, out[1], 1e-15)
	assert.Equal(t, 10.0, out[2])
}

func TestUnitconvert(t *testing.T) {
	op, _ := build(t, "unitconvert", "xy_in=deg", "xy_out=rad", "z_in=m", "z_out=km")
	left, right := op.Units()
	assert.Equal(t, model.UnitDegrees, left)
	assert.Equal(t, model.UnitRadians, right)
	out := fwd(t, op, model.Coord{180, 90, 1500, 0})
	assert.InDelta(t, math.Pi, out[0], 1e-15)
	assert.InDelta(t, 1.5, out[2], 1e-15)

	tm, _ := build(t, "unitconvert", "t_in=decimalyear", "t_out=mjd")
	assert.InDelta(t, 51544, fwd(t, tm, model.Coord{0, 0, 0, 2000})[3], 1e-9)
	assert.InDelta(t, 2000.5, inv(t, tm, fwd(t, tm, model.Coord{0, 0, 0, 2000.5}))[3], 1e-9)

	gps, _ := build(t, "unitconvert", "t_in=yyyymmdd", "t_out=gps_week")
	assert.InDelta(t, 0, fwd(t, gps, model.Coord{0, 0, 0, 19800106})[3], 1e-9)

	_, err := mustLookup(t, "unitconvert").New(newSetup(t, "unitconvert", "xy_in=deg", "xy_out=m"))
	assert.Equal(t, model.ErrInvalidOpIllegalArgValue, model.CodeOf(err))
}

func shiftGrid() *grids.Grid {
	return &grids.Grid{
		Name: "shift.json", West: -1, South: -1, ResLon: 1, ResLat: 1, Cols: 3, Rows: 3, Unit: "arcsec",
		Bands: [][]float64{
			{36, 36, 36, 36, 36, 36, 36, 36, 36},
			{72, 72, 72, 72, 72, 72, 72, 72, 72},
		},
	}
}

func geoidGrid() *grids.Grid {
	return &grids.Grid{
		Name: "geoid.json", West: -1, South: -1, ResLon: 2, ResLat: 2, Cols: 2, Rows: 2, Unit: "meter",
		Bands: [][]float64{{40, 40, 40, 40}},
	}
}

func TestHgridshift(t *testing.T) {
	s := newSetup(t, "hgridshift", "grids=shift.json")
	s.Grids = grids.NewMemory(shiftGrid())
	op, err := mustLookup(t, "hgridshift").New(s)
	require.NoError(t, err)
	assert.Equal(t, []string{"shift.json"}, op.(GridUser).GridNames())

	out := fwd(t, op, model.Coord{0, 0, 0, 0})
	assert.InDelta(t, 0.02*model.DegToRad, out[0], 1e-15)
	assert.InDelta(t, 0.01*model.DegToRad, out[1], 1e-15)
	back := inv(t, op, out)
	assert.InDelta(t, 0, back[0], 1e-14)

	_, err = op.(Forwarder).Forward(model.Coord{5 * model.DegToRad, 0, 0, 0})
	assert.Equal(t, model.ErrCoordTransfmOutsideGrid, model.CodeOf(err))
}

func TestGridshiftMissingGrids(t *testing.T) {
	s := newSetup(t, "hgridshift", "grids=absent.json")
	s.Grids = grids.NewMemory()
	_, err := mustLookup(t, "hgridshift").New(s)
	assert.Equal(t, model.ErrInvalidOpFileNotFoundOrInvalid, model.CodeOf(err))

	deferred := newSetup(t, "hgridshift", "grids=absent.json")
	deferred.Grids = grids.NewMemory()
	deferred.DeferGrids = true
	op, err := mustLookup(t, "hgridshift").New(deferred)
	require.NoError(t, err)
	_, err = op.(Forwarder).Forward(model.Coord{0, 0, 0, 0})
	assert.Equal(t, model.ErrInvalidOpFileNotFoundOrInvalid, model.CodeOf(err))

	optional := newSetup(t, "hgridshift", "grids=@absent.json")
	optional.Grids = grids.NewMemory()
	op, err = mustLookup(t, "hgridshift").New(optional)
	require.NoError(t, err)
	assert.Equal(t, model.Coord{0.1, 0.1, 0, 0}, fwd(t, op, model.Coord{0.1, 0.1, 0, 0}))

	_, err = mustLookup(t, "vgridshift").New(newSetup(t, "vgridshift"))
	assert.Equal(t, model.ErrInvalidOpMissingArg, model.CodeOf(err))
}

func TestVgridshift(t *testing.T) {
	s := newSetup(t, "vgridshift", "grids=geoid.json")
	s.Grids = grids.NewMemory(geoidGrid())
	op, err := mustLookup(t, "vgridshift").New(s)
	require.NoError(t, err)
	out := fwd(t, op, model.Coord{0, 0, 100, 0})
	assert.InDelta(t, 60, out[2], 1e-12)
	assert.InDelta(t, 100, inv(t, op, out)[2], 1e-12)

	m := newSetup(t, "vgridshift", "grids=geoid.json", "multiplier=1")
	m.Grids = grids.NewMemory(geoidGrid())
	plus, err := mustLookup(t, "vgridshift").New(m)
	require.NoError(t, err)
	assert.InDelta(t, 140, fwd(t, plus, model.Coord{0, 0, 100, 0})[2], 1e-12)
}

func mustLookup(t *testing.T, name string) Descriptor {
	t.Helper()
	d, ok := Lookup(name)
	require.True(t, ok)
	return d
}
