package proj

import (
	"slices"

	"github.com/tidwall/geodesic"

	"github.com/mohammed-shakir/projpipe/internal/core/model"
)

const stepToken = "step"

func malformed(format string, args ...any) error {
	return model.Errorf(model.ErrInvalidOpWrongSyntax, "pipeline: "+format, args...)
}

// initPipeline builds the steps of a proj=pipeline definition. Each step
// sees its own tokens followed by the global ones, the tokens between
// proj=pipeline and the first step.
func (p *PJ) initPipeline(tokens []string) error {
	p.kind = kindPipeline
	p.descr = "Transformation pipeline manager"
	p.skipPrepFin = true

	iPipeline, iFirst := -1, -1
	nsteps := 0
	for i, t := range tokens {
		switch t {
		case stepToken:
			if iPipeline < 0 {
				return malformed("+step before +proj=pipeline")
			}
			if nsteps == 0 {
				iFirst = i
			}
			nsteps++
		case "proj=pipeline":
			iPipeline = i
		}
	}
	if nsteps == 0 {
		return malformed("at least one +step must be given")
	}

	// the token list is terminated by a virtual step marker
	argv := append(slices.Clone(tokens), stepToken)
	globals := argv[iPipeline+1 : iFirst]
	for _, g := range globals {
		if len(g) > 5 && g[:5] == "proj=" {
			return malformed("proj= operator before first step not allowed")
		}
	}

	if err := p.pipelineEllipsoid(globals); err != nil {
		return err
	}

	cur := iFirst
	for i := 0; i < nsteps; i++ {
		j := cur + 1
		for argv[j] != stepToken {
			j++
		}
		stepArgs := make([]string, 0, j-cur-1+len(globals))
		stepArgs = append(stepArgs, argv[cur+1:j]...)
		stepArgs = append(stepArgs, globals...)
		cur = j

		p.ctx.logger.Trace().Int("step", i+1).Strs("args", stepArgs).Msg("pipeline: building step")

		last := p.ctx.ErrnoReset()
		step, err := createTokens(p.ctx, stepArgs, p.opts)
		if err != nil {
			if !hasCode(err) {
				err = malformed("bad step definition: %v", err)
			}
			p.ctx.logger.Debug().Err(err).Int("step", i+1).Msg("pipeline: bad step definition")
			return err
		}
		p.ctx.ErrnoRestore(last)

		// inv was applied by createTokens
		step.parent = p
		for _, a := range stepArgs {
			switch a {
			case "omit_fwd":
				step.omitFwd = true
			case "omit_inv":
				step.omitInv = true
			}
		}
		p.steps = append(p.steps, step)
	}

	for _, s := range p.steps {
		forward := s.canRun(model.Fwd)
		if s.inverted {
			forward = s.canRun(model.Inv)
		}
		if !forward {
			return malformed("a forward operation couldn't be constructed")
		}
	}

	p.fwd = p.pipelineForward
	p.inv = p.pipelineInverse
	for _, s := range p.steps {
		if !s.HasInverse() {
			p.inv = nil
			break
		}
	}

	if err := p.propagateUnits(); err != nil {
		return err
	}
	p.left = p.steps[0].Left()
	p.right = p.steps[len(p.steps)-1].Right()
	return nil
}

// pipelineEllipsoid takes the ellipsoid from the global arguments, with
// GRS80 when none is given. It is only used for geodesic distances.
func (p *PJ) pipelineEllipsoid(globals []string) error {
	gp := model.NewParams(globals)
	p.ellipsoid = model.GRS80()
	if model.HasEllipsoidParams(gp) {
		e, err := model.ResolveEllipsoid(gp)
		if err != nil {
			return err
		}
		p.ellipsoid = e
	}
	p.geod = geodesic.NewEllipsoid(p.ellipsoid.A, p.ellipsoid.F)
	return nil
}

// setUnits overwrites the contract of a step with no contract of its own.
func (p *PJ) setUnits(left, right model.Unit) {
	if p.inverted {
		left, right = right, left
	}
	p.left, p.right = left, right
}

// propagateUnits gives steps without a unit contract the units of their
// neighbours, then rejects adjacent steps whose units disagree.
func (p *PJ) propagateUnits() error {
	n := len(p.steps)
	whatever := func(s *PJ) bool {
		return s.Left() == model.UnitWhatever && s.Right() == model.UnitWhatever
	}

	for i, s := range p.steps {
		if whatever(s) {
			u := p.nextUnit(i, model.Fwd)
			s.setUnits(u, u)
		}
	}
	for i := n - 1; i >= 0; i-- {
		if s := p.steps[i]; whatever(s) {
			u := p.nextUnit(i, model.Inv)
			s.setUnits(u, u)
		}
	}

	for i := 0; i+1 < n; i++ {
		out := p.steps[i].Right()
		in := p.steps[i+1].Left()
		if out == model.UnitWhatever || in == model.UnitWhatever {
			continue
		}
		if out != in {
			p.ctx.logger.Debug().Int("step", i+1).Str("output", out.String()).Str("input", in.String()).
				Msg("pipeline: mismatched units")
			return malformed("mismatched units between step %d and %d", i+1, i+2)
		}
	}
	return nil
}

// nextUnit looks for the nearest step with a unit contract, after step i
// going forward or from step i down to the second step going backward.
func (p *PJ) nextUnit(i int, dir model.Direction) model.Unit {
	if dir == model.Fwd {
		for j := i + 1; j < len(p.steps); j++ {
			l, r := p.steps[j].Left(), p.steps[j].Right()
			switch {
			case l != r:
				return l
			case l != model.UnitWhatever:
				return l
			case r != model.UnitWhatever:
				return r
			}
		}
		return model.UnitWhatever
	}
	for j := i; j > 0; j-- {
		l, r := p.steps[j].Left(), p.steps[j].Right()
		switch {
		case r != l:
			return r
		case r != model.UnitWhatever:
			return r
		case l != model.UnitWhatever:
			return l
		}
	}
	return model.UnitWhatever
}

func (p *PJ) pipelineForward(c model.Coord) (model.Coord, error) {
	for _, s := range p.steps {
		if s.omitFwd {
			continue
		}
		c = s.Trans(model.Fwd, c)
		if c.IsError() {
			break
		}
	}
	return c, nil
}

func (p *PJ) pipelineInverse(c model.Coord) (model.Coord, error) {
	for i := len(p.steps) - 1; i >= 0; i-- {
		s := p.steps[i]
		if s.omitInv {
			continue
		}
		c = s.Trans(model.Inv, c)
		if c.IsError() {
			break
		}
	}
	return c, nil
}

// transDims runs c through p with only the first n components significant,
// the rest forced to zero before and after every step.
func (p *PJ) transDims(dir model.Direction, c model.Coord, n int) model.Coord {
	c = truncate(c, n)
	if p == nil || dir == model.Ident {
		return c
	}
	if p.kind != kindPipeline {
		out := p.Trans(dir, c)
		if out.IsError() {
			return out
		}
		return truncate(out, n)
	}

	if p.inverted {
		dir = dir.Opposite()
	}
	if !p.canRun(dir) {
		p.ctx.SetErrno(model.ErrOtherNoInverseOp)
		return model.ErrorCoord()
	}
	last := p.ctx.ErrnoReset()
	order := p.steps
	if dir == model.Inv {
		order = slices.Clone(p.steps)
		slices.Reverse(order)
	}
	for _, s := range order {
		if (dir == model.Fwd && s.omitFwd) || (dir == model.Inv && s.omitInv) {
			continue
		}
		c = s.transDims(dir, c, n)
		if c.IsError() {
			break
		}
	}
	if c.IsError() || p.ctx.errno != 0 {
		return model.ErrorCoord()
	}
	p.ctx.ErrnoRestore(last)
	return c
}

func truncate(c model.Coord, n int) model.Coord {
	if c.IsError() {
		return c
	}
	for i := n; i < len(c); i++ {
		c[i] = 0
	}
	return c
}

// Trans2D transforms a planar or lon/lat pair; every step sees z and t as
// zero.
func (p *PJ) Trans2D(dir model.Direction, x, y float64) (float64, float64) {
	c := p.transDims(dir, model.Coord{x, y}, 2)
	return c[0], c[1]
}

// Trans3D is Trans2D with the third component carried through.
func (p *PJ) Trans3D(dir model.Direction, x, y, z float64) (float64, float64, float64) {
	c := p.transDims(dir, model.Coord{x, y, z}, 3)
	return c[0], c[1], c[2]
}
