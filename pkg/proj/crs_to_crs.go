package proj

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/projpipe/internal/authority"
	"github.com/mohammed-shakir/projpipe/internal/core/model"
)

type crsToCrsOptions struct {
	authority     string
	accuracy      float64
	allowBallpark bool
	forceOver     bool
	errorIfBest   bool
	warnIfBest    bool
}

func parseYesNo(key, v string) (bool, error) {
	switch {
	case strings.EqualFold(v, "yes"):
		return true, nil
	case strings.EqualFold(v, "no"):
		return false, nil
	}
	return false, model.Errorf(model.ErrOtherAPIMisuse, "invalid value for %s option", key)
}

func (c *Context) parseCrsToCrsOptions(opts []string) (crsToCrsOptions, error) {
	o := crsToCrsOptions{
		accuracy:      -1,
		allowBallpark: true,
		errorIfBest:   c.onlyBest,
		warnIfBest:    true,
	}
	for _, raw := range opts {
		key, value, _ := strings.Cut(raw, "=")
		var err error
		switch strings.ToUpper(key) {
		case "AUTHORITY":
			o.authority = value
		case "ACCURACY":
			o.accuracy, err = strconv.ParseFloat(value, 64)
			if err != nil {
				err = model.Errorf(model.ErrOtherAPIMisuse, "invalid value for ACCURACY option: %v", err)
			}
		case "ALLOW_BALLPARK":
			o.allowBallpark, err = parseYesNo("ALLOW_BALLPARK", value)
		case "ONLY_BEST":
			o.warnIfBest = false
			o.errorIfBest, err = parseYesNo("ONLY_BEST", value)
		case "FORCE_OVER":
			o.forceOver = strings.EqualFold(value, "yes")
		default:
			err = model.Errorf(model.ErrOtherAPIMisuse, "unknown option: %s", raw)
		}
		if err != nil {
			c.logger.Error().Err(err).Msg("invalid crs to crs option")
			return o, err
		}
	}
	return o, nil
}

// CreateCrsToCrs builds the handle transforming from src to tgt, both CRS
// identifiers known to the context authority. When several operations apply
// and area is nil, the handle holds all of them and picks one per point.
//
// Options are KEY=VALUE strings: AUTHORITY, ACCURACY, ALLOW_BALLPARK=YES|NO,
// ONLY_BEST=YES|NO and FORCE_OVER=YES. A nil handle with a nil error means no
// operation matched.
func CreateCrsToCrs(ctx *Context, src, tgt string, area *model.BBox, opts ...string) (*PJ, error) {
	ctx = orDefault(ctx)
	o, err := ctx.parseCrsToCrsOptions(opts)
	if err != nil {
		return nil, ctx.fail(err)
	}
	if ctx.authority == nil {
		return nil, ctx.fail(model.Errorf(model.ErrOtherAPIMisuse, "no authority configured"))
	}
	srcCRS, err := ctx.authority.LookupCRS(src)
	if err != nil {
		return nil, ctx.fail(model.Errorf(model.ErrInvalidOpIllegalArgValue, "source crs: %v", err))
	}
	tgtCRS, err := ctx.authority.LookupCRS(tgt)
	if err != nil {
		return nil, ctx.fail(model.Errorf(model.ErrInvalidOpIllegalArgValue, "target crs: %v", err))
	}

	q := authority.Query{
		Authority:     o.authority,
		Accuracy:      o.accuracy,
		Area:          area,
		AllowBallpark: o.allowBallpark,
		Grids:         authority.GridsDiscardMissing,
		GridAvailable: ctx.gridAvailable,
	}
	if o.errorIfBest || o.warnIfBest || ctx.network {
		q.Grids = authority.GridsKnownAvailable
	}
	cands, err := ctx.authority.Candidates(ctx.goContext(), srcCRS.ID, tgtCRS.ID, q)
	if err != nil {
		return nil, ctx.fail(err)
	}
	if len(cands) == 0 {
		ctx.logger.Debug().Msg("No operation found matching criteria")
		return nil, nil
	}

	if len(cands) == 1 || area != nil ||
		srcCRS.Kind == authority.KindGeocentric || tgtCRS.Kind == authority.KindGeocentric {
		p, err := ctx.candidateOperation(cands[0], srcCRS, tgtCRS)
		if err != nil {
			return nil, ctx.fail(err)
		}
		if (o.errorIfBest || o.warnIfBest) && !p.Instantiable() {
			row := CoordOperation{Name: cands[0].Name, GridsNeeded: cands[0].Grids}
			p.errorIfBest, p.warnIfBest = o.errorIfBest, o.warnIfBest
			p.warnAboutMissingGrid(&row)
			if o.errorIfBest {
				p.Destroy()
				return nil, nil
			}
		}
		p.errorIfBest, p.warnIfBest = o.errorIfBest, o.warnIfBest
		if o.forceOver {
			p.setOver(true)
		}
		ctx.ErrnoReset()
		return p, nil
	}

	rows, err := ctx.prepareOperations(srcCRS, tgtCRS, cands)
	if err != nil {
		return nil, ctx.fail(err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	usable := func(row *CoordOperation) bool {
		return !row.ballpark && row.PJ.Instantiable()
	}

	rerun := (o.errorIfBest || o.warnIfBest) && !ctx.network
	if rerun && !slices.ContainsFunc(rows, func(r CoordOperation) bool { return usable(&r) }) {
		rows = ctx.mergeDiscardingMissing(rows, srcCRS, tgtCRS, q, usable)
	}

	for i := range rows {
		if o.forceOver {
			rows[i].PJ.setOver(true)
		}
		rows[i].PJ.errorIfBest = o.errorIfBest
		rows[i].PJ.warnIfBest = o.warnIfBest
	}
	if len(rows) == 1 {
		ctx.ErrnoReset()
		return rows[0].PJ, nil
	}

	p := &PJ{
		ctx:         ctx,
		kind:        kindAlternatives,
		name:        "alternatives",
		descr:       "Set of coordinate operations",
		definition:  fmt.Sprintf("%s to %s", srcCRS.ID, tgtCRS.ID),
		alts:        rows,
		curOp:       -1,
		accuracy:    -1,
		errorIfBest: o.errorIfBest,
		warnIfBest:  o.warnIfBest,
		srcCRS:      srcCRS.ID,
		dstCRS:      tgtCRS.ID,
		geod:        rows[0].PJ.geod,
	}
	ctx.ErrnoReset()
	return p, nil
}

// mergeDiscardingMissing re-runs the candidate search without operations
// whose grids are missing and inserts the first usable one right after the
// rows that are not ballpark, so it is preferred to a ballpark fallback.
func (c *Context) mergeDiscardingMissing(rows []CoordOperation, src, dst authority.CRS,
	q authority.Query, usable func(*CoordOperation) bool,
) []CoordOperation {
	q.Grids = authority.GridsDiscardMissing
	cands, err := c.authority.Candidates(c.goContext(), src.ID, dst.ID, q)
	if err != nil || len(cands) == 0 {
		return rows
	}
	more, err := c.prepareOperations(src, dst, cands)
	if err != nil {
		return rows
	}
	for i := range more {
		if !usable(&more[i]) {
			more[i].PJ.Destroy()
			continue
		}
		at := 0
		for at < len(rows) && !rows[at].ballpark {
			at++
		}
		rows = slices.Insert(rows, at, more[i])
		for _, rest := range more[i+1:] {
			rest.PJ.Destroy()
		}
		break
	}
	return rows
}
