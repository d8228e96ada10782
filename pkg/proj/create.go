package proj

import (
	"math"
	"slices"
	"strings"

	"github.com/tidwall/geodesic"

	"github.com/mohammed-shakir/projpipe/internal/core/model"
	"github.com/mohammed-shakir/projpipe/internal/operations"
	"github.com/mohammed-shakir/projpipe/internal/projstring"
)

const maxInitDepth = 16

type createOptions struct {
	// deferGrids postpones grid loading to the first transformed point, so
	// a missing grid fails the point instead of the construction.
	deferGrids bool
}

// Create compiles definition into a handle. On failure the returned error
// carries the numeric code, which is also left in the context error cell.
func Create(ctx *Context, definition string) (*PJ, error) {
	return createWith(orDefault(ctx), definition, createOptions{})
}

func createWith(ctx *Context, definition string, opts createOptions) (*PJ, error) {
	ctx = orDefault(ctx)
	tokens := projstring.Split(definition)
	if len(tokens) == 0 {
		return nil, ctx.fail(model.Errorf(model.ErrInvalidOpMissingArg, "empty definition"))
	}
	p, err := createTokens(ctx, tokens, opts)
	if err != nil {
		return nil, ctx.fail(err)
	}
	if p.inverted && !p.canRun(model.Inv) {
		p.Destroy()
		return nil, ctx.fail(model.Errorf(model.ErrOtherNoInverseOp, "%s: inverse operation not available", p.name))
	}
	return p, nil
}

func (c *Context) fail(err error) error {
	code := c.setError(err, model.ErrInvalidOpWrongSyntax)
	c.logger.Debug().Err(err).Int("errno", int(code)).Msg("operation construction failed")
	return err
}

func createTokens(ctx *Context, tokens []string, opts createOptions) (*PJ, error) {
	original := projstring.Join(tokens)

	if countTokens(tokens, "proj=pipeline") == 0 {
		var err error
		if tokens, err = ctx.expandInit(tokens); err != nil {
			return nil, err
		}
	}
	if countTokens(tokens, "proj=pipeline") > 1 {
		return nil, model.Errorf(model.ErrInvalidOpWrongSyntax,
			"malformed pipeline: nested pipelines must be wrapped in init files")
	}

	params := model.NewParams(tokens)
	name, ok := params.String("proj")
	if countTokens(tokens, "proj=pipeline") == 1 {
		name, ok = "pipeline", true
	}
	if !ok || name == "" {
		return nil, model.Errorf(model.ErrInvalidOpMissingArg, "missing proj= parameter in %q", original)
	}

	p := &PJ{
		ctx:        ctx,
		name:       name,
		definition: original,
		params:     params,
		opts:       opts,
		curOp:      -1,
		accuracy:   -1,
		k0:         1,
		toMeter:    1,
		frMeter:    1,
		vtoMeter:   1,
		vfrMeter:   1,
	}

	var err error
	switch name {
	case "pipeline":
		err = p.initPipeline(tokens)
	case "push", "pop":
		p.initPushPop()
	default:
		err = p.initLeaf()
	}
	if err != nil {
		p.Destroy()
		return nil, err
	}
	if name != "pipeline" {
		for _, t := range tokens {
			if t == "inv" {
				p.inverted = !p.inverted
			}
		}
	}
	return p, nil
}

func countTokens(tokens []string, tok string) int {
	n := 0
	for _, t := range tokens {
		if t == tok {
			n++
		}
	}
	return n
}

func isInitToken(t string) bool { return strings.HasPrefix(t, "init=") }

// expandInit splices init=file:section references. The expansion is
// appended, so tokens given explicitly win over the ones from the file.
func (c *Context) expandInit(tokens []string) ([]string, error) {
	for depth := 0; ; depth++ {
		n := 0
		for _, t := range tokens {
			if isInitToken(t) {
				n++
			}
		}
		if n == 0 || countTokens(tokens, "proj=pipeline") > 0 {
			return tokens, nil
		}
		if n > 1 {
			return nil, model.Errorf(model.ErrInvalidOpWrongSyntax, "too many inits")
		}
		if depth == maxInitDepth {
			return nil, model.Errorf(model.ErrInvalidOpWrongSyntax, "init files nested deeper than %d levels", maxInitDepth)
		}

		idx := slices.IndexFunc(tokens, isInitToken)
		ref := strings.TrimPrefix(tokens[idx], "init=")
		file, section, ok := strings.Cut(ref, ":")
		if !ok || file == "" || section == "" {
			return nil, model.Errorf(model.ErrInvalidOpWrongSyntax, "init=%s: expected file:section", ref)
		}
		if c.init == nil {
			return nil, model.Errorf(model.ErrInvalidOpFileNotFoundOrInvalid, "init=%s: no init resolver configured", ref)
		}
		def, err := c.init.Lookup(c.goContext(), file, section)
		if err != nil {
			if model.CodeOf(err) == model.ErrOtherNetworkError {
				return nil, err
			}
			return nil, model.Errorf(model.ErrInvalidOpFileNotFoundOrInvalid, "init=%s: %v", ref, err)
		}
		c.logger.Trace().Str("init", ref).Str("expansion", def).Msg("expanded init")

		next := make([]string, 0, len(tokens)+8)
		next = append(next, tokens[:idx]...)
		next = append(next, tokens[idx+1:]...)
		tokens = append(next, projstring.Split(def)...)
	}
}

func (p *PJ) initLeaf() error {
	desc, ok := operations.Lookup(p.name)
	if !ok {
		return model.Errorf(model.ErrInvalidOpWrongSyntax, "unknown projection id %q", p.name)
	}
	p.descr = desc.Description
	params := p.params

	if !params.Exists("no_defs") && !params.Exists("datum") && !model.HasEllipsoidParams(params) {
		params.Append("ellps=GRS80")
	}
	if err := model.ExpandDatum(params); err != nil {
		return err
	}
	switch {
	case model.HasEllipsoidParams(params):
		e, err := model.ResolveEllipsoid(params)
		if err != nil {
			return err
		}
		p.ellipsoid = e
	case desc.NeedsEllipsoid:
		return model.Errorf(model.ErrInvalidOpMissingArg, "%s: no ellipsoid given", p.name)
	default:
		p.ellipsoid = model.WGS84()
	}

	if err := p.parseCommon(); err != nil {
		return err
	}

	setup := &operations.Setup{
		Name:       p.name,
		Params:     params,
		Ellipsoid:  p.ellipsoid,
		Lam0:       p.lam0,
		Phi0:       p.phi0,
		K0:         p.k0,
		X0:         p.x0,
		Y0:         p.y0,
		Z0:         p.z0,
		Grids:      p.ctx.grids,
		DeferGrids: p.opts.deferGrids,
		Context:    p.ctx.goContext(),
		Logger:     p.ctx.logger,
	}
	op, err := desc.New(setup)
	if err != nil {
		return err
	}
	p.lam0, p.phi0, p.k0 = setup.Lam0, setup.Phi0, setup.K0
	p.x0, p.y0, p.z0 = setup.X0, setup.Y0, setup.Z0

	p.op = op
	p.left, p.right = op.Units()
	if f, ok := op.(operations.Forwarder); ok {
		p.fwd = f.Forward
	}
	if i, ok := op.(operations.Inverter); ok {
		p.inv = i.Inverse
	}
	if g, ok := op.(operations.Geocentric); ok && g.Geocentric() {
		p.geocentric = true
	}

	if params.Exists("break_cs2cs_recursion") {
		return nil
	}
	return p.cs2csSetup()
}

// parseCommon reads the parameters every leaf operator understands.
func (p *PJ) parseCommon() error {
	params := p.params
	var err error

	if p.geoc, err = params.Bool("geoc"); err != nil {
		return err
	}
	if p.over, err = params.Bool("over"); err != nil {
		return err
	}
	if params.Exists("lon_wrap") {
		center, _, err := params.Angle("lon_wrap")
		if err != nil {
			return err
		}
		if !(math.Abs(center) < 20*math.Pi) {
			return model.Errorf(model.ErrInvalidOpIllegalArgValue, "lon_wrap: value out of range")
		}
		p.lonWrap, p.lonWrapCenter = true, center
	}
	if axis, ok := params.String("axis"); ok {
		if err := operations.ValidateAxis(axis); err != nil {
			return err
		}
	}

	if v, ok, err := params.Angle("lon_0"); err != nil {
		return err
	} else if ok {
		p.lam0 = v
	}
	if v, ok, err := params.Angle("lat_0"); err != nil {
		return err
	} else if ok {
		if math.Abs(v) > math.Pi/2 {
			return model.Errorf(model.ErrInvalidOpIllegalArgValue, "lat_0: latitude out of range")
		}
		p.phi0 = v
	}
	if p.x0, err = params.FloatOr("x_0", 0); err != nil {
		return err
	}
	if p.y0, err = params.FloatOr("y_0", 0); err != nil {
		return err
	}
	if p.z0, err = params.FloatOr("z_0", 0); err != nil {
		return err
	}

	key := "k_0"
	if !params.Exists(key) {
		key = "k"
	}
	if p.k0, err = params.FloatOr(key, 1); err != nil {
		return err
	}
	if p.k0 <= 0 {
		return model.Errorf(model.ErrInvalidOpIllegalArgValue, "%s: scale factor must be > 0", key)
	}

	toMeter, _, err := model.UnitFactor(params, "units", "to_meter")
	if err != nil {
		return err
	}
	p.toMeter, p.frMeter = toMeter, 1/toMeter

	vto, ok, err := model.UnitFactor(params, "vunits", "vto_meter")
	if err != nil {
		return err
	}
	if !ok {
		vto = toMeter
	}
	p.vtoMeter, p.vfrMeter = vto, 1/vto

	if p.fromGreenwich, err = model.PrimeMeridianOffset(params); err != nil {
		return err
	}

	p.geod = geodesic.NewEllipsoid(p.ellipsoid.A, p.ellipsoid.F)
	return nil
}
