package authority

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/mohammed-shakir/projpipe/internal/core/model"
	"github.com/mohammed-shakir/projpipe/internal/projstring"
)

type GridPolicy int

const (
	// GridsKnownAvailable keeps operations whatever the state of their grids.
	GridsKnownAvailable GridPolicy = iota
	GridsDiscardMissing
)

// Query narrows the candidate list. The zero value asks for everything
// except ballpark operations.
type Query struct {
	Authority     string
	Accuracy      float64 // negative: no accuracy floor
	Area          *model.BBox
	AllowBallpark bool
	Grids         GridPolicy
	GridAvailable func(name string) bool
}

// Candidate is one operation usable from source to target.
type Candidate struct {
	ID         string
	Name       string
	Definition string
	// Inverse is set when the catalog operation runs target to source and
	// has to be applied reversed.
	Inverse  bool
	Accuracy float64
	Area     model.BBox
	Grids    []string
	Ballpark bool
}

// Candidates lists the operations from src to tgt, best accuracy first
// with unknown accuracies last and catalog order kept for ties.
func (c *Catalog) Candidates(_ context.Context, src, tgt string, q Query) ([]Candidate, error) {
	s, err := c.LookupCRS(src)
	if err != nil {
		return nil, err
	}
	t, err := c.LookupCRS(tgt)
	if err != nil {
		return nil, err
	}

	var out []Candidate
	if conv, ok := c.conversion(s, t, q); ok {
		out = append(out, conv)
	}
	for _, op := range c.Operations {
		var cand Candidate
		switch {
		case strings.EqualFold(op.Source, s.ID) && strings.EqualFold(op.Target, t.ID):
			cand = Candidate{ID: op.ID, Name: op.Name, Definition: op.Definition}
		case strings.EqualFold(op.Source, t.ID) && strings.EqualFold(op.Target, s.ID):
			cand = Candidate{ID: op.ID, Name: "Inverse of " + op.Name, Definition: op.Definition, Inverse: true}
		default:
			continue
		}
		cand.Accuracy = op.AccuracyOr()
		cand.Area = op.Area.BBox()
		cand.Grids = slices.Clone(op.Grids)
		cand.Ballpark = op.Ballpark
		if !q.accepts(cand) {
			continue
		}
		out = append(out, cand)
	}

	if q.AllowBallpark && !slices.ContainsFunc(out, func(c Candidate) bool { return !c.Ballpark }) {
		if bp, ok := c.ballpark(s, t, q); ok {
			out = append(out, bp)
		}
	}

	slices.SortStableFunc(out, func(a, b Candidate) int {
		switch {
		case a.Accuracy < 0 && b.Accuracy < 0:
			return 0
		case a.Accuracy < 0:
			return 1
		case b.Accuracy < 0:
			return -1
		case a.Accuracy < b.Accuracy:
			return -1
		case a.Accuracy > b.Accuracy:
			return 1
		}
		return 0
	})
	return out, nil
}

func (q Query) accepts(c Candidate) bool {
	if c.Ballpark && !q.AllowBallpark {
		return false
	}
	if q.Authority != "" && !strings.EqualFold(q.Authority, "any") &&
		!strings.HasPrefix(strings.ToUpper(c.ID), strings.ToUpper(q.Authority)+":") {
		return false
	}
	if q.Accuracy >= 0 && (c.Accuracy < 0 || c.Accuracy > q.Accuracy) {
		return false
	}
	if q.Area != nil && !c.Area.Intersects(*q.Area) {
		return false
	}
	if q.Grids == GridsDiscardMissing && q.GridAvailable != nil {
		for _, g := range c.Grids {
			if !q.GridAvailable(g) {
				return false
			}
		}
	}
	return true
}

// conversion handles two CRSs defined on the same base: the operation is
// exact and goes through the base longitude/latitude.
func (c *Catalog) conversion(s, t CRS, q Query) (Candidate, bool) {
	if !strings.EqualFold(s.BaseID(), t.BaseID()) {
		return Candidate{}, false
	}
	def, grids, ok := c.throughBase(s, t, q)
	if !ok {
		return Candidate{}, false
	}
	cand := Candidate{
		ID:         "PROJ:CONV_" + sanitize(s.ID) + "_TO_" + sanitize(t.ID),
		Name:       fmt.Sprintf("Conversion from %s to %s", s.Name, t.Name),
		Definition: def,
		Accuracy:   0,
		Area:       model.WorldBBox(),
		Grids:      grids,
	}
	if strings.EqualFold(s.ID, t.ID) {
		cand.Name = "Null geographic offset from " + s.Name + " to " + t.Name
		cand.Definition = "proj=noop"
	}
	return cand, q.accepts(cand)
}

// ballpark ignores the datum difference between the two bases.
func (c *Catalog) ballpark(s, t CRS, q Query) (Candidate, bool) {
	def, grids, ok := c.throughBase(s, t, q)
	if !ok {
		return Candidate{}, false
	}
	cand := Candidate{
		ID:         "PROJ:BALLPARK_" + sanitize(s.ID) + "_TO_" + sanitize(t.ID),
		Name:       fmt.Sprintf("Ballpark geographic offset from %s to %s", s.Name, t.Name),
		Definition: def,
		Accuracy:   -1,
		Area:       model.WorldBBox(),
		Grids:      grids,
		Ballpark:   true,
	}
	q.Authority = ""
	return cand, q.accepts(cand)
}

func (c *Catalog) throughBase(s, t CRS, q Query) (string, []string, bool) {
	hs, ok := pickHelper(s.Helpers(), q)
	if !ok {
		return "", nil, false
	}
	ht, ok := pickHelper(t.Helpers(), q)
	if !ok {
		return "", nil, false
	}
	def := Concat(Part{Definition: hs.Definition, Inverse: true}, Part{Definition: ht.Definition})
	grids := append(slices.Clone(hs.Grids), ht.Grids...)
	return def, grids, true
}

// pickHelper prefers helpers without grids, then helpers whose grids are
// all available, then the first one.
func pickHelper(hs []Helper, q Query) (Helper, bool) {
	if len(hs) == 0 {
		return Helper{}, false
	}
	for _, h := range hs {
		if len(h.Grids) == 0 {
			return h, true
		}
	}
	if q.GridAvailable != nil {
		for _, h := range hs {
			if !slices.ContainsFunc(h.Grids, func(g string) bool { return !q.GridAvailable(g) }) {
				return h, true
			}
		}
	}
	return hs[0], true
}

// GeographicHelper returns the definition going from longitude/latitude
// degrees on the CRS base to the CRS, preferring one without grids.
func (c *Catalog) GeographicHelper(id string, gridAvailable func(string) bool) (Helper, error) {
	crs, err := c.LookupCRS(id)
	if err != nil {
		return Helper{}, err
	}
	h, ok := pickHelper(crs.Helpers(), Query{GridAvailable: gridAvailable})
	if !ok {
		return Helper{}, fmt.Errorf("crs %s: no helper from its geographic base", id)
	}
	return h, nil
}

func sanitize(id string) string {
	return strings.NewReplacer(":", "_", " ", "_").Replace(strings.ToUpper(id))
}

// Part is one definition taking part in a Concat, optionally reversed.
type Part struct {
	Definition string
	Inverse    bool
}

// Concat chains definitions into a single pipeline. Reversed parts have
// their steps reversed and each step's inv flag toggled.
func Concat(parts ...Part) string {
	var steps [][]string
	for _, p := range parts {
		ss := splitSteps(p.Definition)
		if p.Inverse {
			slices.Reverse(ss)
			for i := range ss {
				ss[i] = toggleInv(ss[i])
			}
		}
		for _, s := range ss {
			if slices.Contains(s, "proj=noop") {
				continue
			}
			steps = append(steps, s)
		}
	}
	switch {
	case len(steps) == 0:
		return "proj=noop"
	case len(steps) == 1 && !slices.Contains(steps[0], "inv"):
		return projstring.Join(steps[0])
	}
	var b strings.Builder
	b.WriteString("proj=pipeline")
	for _, s := range steps {
		b.WriteString(" step ")
		b.WriteString(projstring.Join(s))
	}
	return b.String()
}

// splitSteps returns the steps of a definition with the pipeline global
// tokens appended to each step. A plain definition is a single step.
func splitSteps(def string) [][]string {
	tokens := projstring.Split(def)
	ip := slices.Index(tokens, "proj=pipeline")
	if ip < 0 {
		return [][]string{tokens}
	}
	var globals []string
	var steps [][]string
	cur := -1
	for _, tok := range tokens[ip+1:] {
		if tok == "step" {
			steps = append(steps, nil)
			cur++
			continue
		}
		if cur < 0 {
			globals = append(globals, tok)
			continue
		}
		steps[cur] = append(steps[cur], tok)
	}
	for i := range steps {
		steps[i] = append(steps[i], globals...)
	}
	return steps
}

func toggleInv(step []string) []string {
	n := 0
	out := make([]string, 0, len(step)+1)
	for _, tok := range step {
		if tok == "inv" {
			n++
			continue
		}
		out = append(out, tok)
	}
	if n%2 == 0 {
		out = append(out, "inv")
	}
	return out
}
