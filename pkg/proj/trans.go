package proj

import (
	"strings"

	"github.com/mohammed-shakir/projpipe/internal/core/model"
)

const maxRetries = 3

// Trans transforms one coordinate. A failed transformation returns the
// error coordinate and leaves the reason in the context error cell.
func (p *PJ) Trans(dir model.Direction, c model.Coord) model.Coord {
	if p == nil || dir == model.Ident {
		return c
	}
	if p.inverted {
		dir = dir.Opposite()
	}
	if len(p.alts) > 0 {
		return p.transAlternatives(dir, c)
	}
	p.curOp = 0
	if p.hasEpoch {
		c[3] = p.epoch
	}
	return p.apply(dir, c)
}

func (p *PJ) apply(dir model.Direction, c model.Coord) model.Coord {
	if dir == model.Fwd {
		return p.fwd4d(c)
	}
	return p.inv4d(c)
}

// run calls a candidate row, honouring its own inverted flag and epoch.
func (p *PJ) run(dir model.Direction, c model.Coord) model.Coord {
	if p.inverted {
		dir = dir.Opposite()
	}
	if p.hasEpoch {
		c[3] = p.epoch
	}
	return p.apply(dir, c)
}

func (p *PJ) transAlternatives(dir model.Direction, c model.Coord) model.Coord {
	log := p.ctx.logger
	if p.hasEpoch {
		c[3] = p.epoch
	}

	excluded := [2]int{-1, -1}
	for retry := 0; retry < maxRetries; retry++ {
		best := suggestedOperation(p.alts, excluded, dir, c)
		if best < 0 {
			break
		}
		alt := &p.alts[best]
		if retry > 0 {
			old := p.ctx.ErrnoReset()
			log.Debug().Str("errno", old.String()).
				Msg("Did not result in valid result. Attempting a retry with another operation.")
			if p.ctx.hooks.OnRetry != nil {
				p.ctx.hooks.OnRetry(alt.Name)
			}
		}
		if p.curOp != best {
			log.Debug().Msgf("Using coordinate operation %s", alt.Name)
			p.curOp = best
		}

		res := alt.PJ.run(dir, c)
		if p.ctx.errno == model.ErrOtherNetworkError {
			return model.ErrorCoord()
		}
		if !res.IsError() {
			return res
		}
		if p.warnIfBest || p.errorIfBest {
			p.warnAboutMissingGrid(alt)
			if p.errorIfBest {
				return res
			}
		}
		if retry == maxRetries-1 {
			break
		}
		excluded[retry] = best
	}

	// nothing fitted the point: fall back to the first operation that needs
	// no grid at all
	p.ctx.ErrnoReset()
	for i := range p.alts {
		alt := &p.alts[i]
		if len(alt.GridsNeeded) != 0 {
			continue
		}
		if p.curOp != i {
			log.Debug().Msgf("Using coordinate operation %s as a fallback due to lack of more appropriate operations", alt.Name)
			p.curOp = i
		}
		if p.ctx.hooks.OnFallback != nil {
			p.ctx.hooks.OnFallback(alt.Name)
		}
		return alt.PJ.run(dir, c)
	}

	p.ctx.SetErrno(model.ErrCoordTransfmNoOperation)
	if p.ctx.hooks.OnNoOperation != nil {
		p.ctx.hooks.OnNoOperation()
	}
	return model.ErrorCoord()
}

// warnAboutMissingGrid reports the grids that kept alt from running. Under
// the warn-only policy the notice is emitted once per handle.
func (p *PJ) warnAboutMissingGrid(alt *CoordOperation) {
	var b strings.Builder
	b.WriteString("Attempt to use coordinate operation ")
	b.WriteString(alt.Name)
	b.WriteString(" failed.")
	for _, g := range alt.GridsNeeded {
		if !p.ctx.gridAvailable(g) {
			b.WriteString(" Grid ")
			b.WriteString(g)
			b.WriteString(" is not available.")
		}
	}
	if !p.errorIfBest && p.warnIfBest {
		b.WriteString(" This might become an error in a future release." +
			" Set the ONLY_BEST option to YES or NO." +
			" This warning will no longer be emitted (for the current transformation instance).")
		p.warnIfBest = false
	}
	if p.errorIfBest {
		p.ctx.logger.Error().Str("op", alt.Name).Msg(b.String())
		return
	}
	p.ctx.logger.Warn().Str("op", alt.Name).Msg(b.String())
}

// LastUsedOperation returns a copy of the operation that handled the most
// recent Trans call, or nil before the first call.
func (p *PJ) LastUsedOperation() *PJ {
	if p == nil || p.curOp < 0 {
		return nil
	}
	src := p
	if len(p.alts) > 0 {
		src = p.alts[p.curOp].PJ
	}
	q, err := src.Clone()
	if err != nil {
		p.ctx.logger.Debug().Err(err).Msg("clone of last used operation failed")
		return nil
	}
	return q
}
