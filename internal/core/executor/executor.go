// Package executor runs transformation requests against prepared handles.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mohammed-shakir/projpipe/internal/authority"
	"github.com/mohammed-shakir/projpipe/internal/core/model"
	"github.com/mohammed-shakir/projpipe/internal/core/observability"
	"github.com/mohammed-shakir/projpipe/internal/opcache"
	"github.com/mohammed-shakir/projpipe/pkg/proj"
)

// Target names what to transform with: either a CRS pair or a definition.
type Target struct {
	Source     string
	Target     string
	Definition string
	Area       *model.BBox
	Options    []string
}

func (t Target) label() string {
	if t.Definition != "" {
		return t.Definition
	}
	return t.Source + "->" + t.Target
}

type TransformRequest struct {
	Target
	Direction model.Direction
	Points    []model.Coord
}

type TransformResult struct {
	Points []model.Coord
	// Errno holds one code per point, zero on success.
	Errno     []model.Errno
	Operation string
}

type BoundsRequest struct {
	Target
	Direction              model.Direction
	XMin, YMin, XMax, YMax float64
	// Densify is the number of points added per edge, the default when
	// negative.
	Densify int
}

type BoundsResult struct {
	proj.Bounds
	// Geographic is set when the box is in degrees; LonFirst then tells the
	// axis order.
	Geographic bool
	LonFirst   bool
}

type Executor struct {
	logger    *slog.Logger
	ops       *opcache.Cache
	auth      proj.Authority
	maxPoints int
	densify   int
}

type Options struct {
	MaxPoints int
	Densify   int
}

func New(logger *slog.Logger, ops *opcache.Cache, auth proj.Authority, opts Options) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxPoints <= 0 {
		opts.MaxPoints = 100000
	}
	if opts.Densify < 2 {
		opts.Densify = 21
	}
	return &Executor{logger: logger, ops: ops, auth: auth, maxPoints: opts.MaxPoints, densify: opts.Densify}
}

// ParseDirection accepts forward/fwd/1, inverse/inv/-1 and ident/0; empty
// means forward.
func ParseDirection(s string) (model.Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "forward", "fwd", "1":
		return model.Fwd, nil
	case "inverse", "inv", "-1":
		return model.Inv, nil
	case "ident", "identity", "0":
		return model.Ident, nil
	}
	return 0, model.Errorf(model.ErrOtherAPIMisuse, "unknown direction %q", s)
}

func (e *Executor) entry(t Target) (*opcache.Entry, error) {
	if t.Definition != "" {
		def := t.Definition
		return e.ops.Get(opcache.DefinitionKey(def), opcache.Meta{}, func(c *proj.Context) (*proj.PJ, error) {
			return proj.Create(c, def)
		})
	}
	if t.Source == "" || t.Target == "" {
		return nil, model.Errorf(model.ErrOtherAPIMisuse, "either source and target or definition is required")
	}
	meta := opcache.Meta{CRS: e.dependencies(t.Source, t.Target)}
	key := opcache.PairKey(t.Source, t.Target, t.Area, t.Options)
	ent, err := e.ops.Get(key, meta, func(c *proj.Context) (*proj.PJ, error) {
		return proj.CreateCrsToCrs(c, t.Source, t.Target, t.Area, t.Options...)
	})
	if err == nil && ent == nil {
		return nil, model.Errorf(model.ErrCoordTransfmNoOperation, "no operation from %s to %s", t.Source, t.Target)
	}
	return ent, err
}

// dependencies lists the CRS ids a pair handle is derived from.
func (e *Executor) dependencies(ids ...string) []string {
	out := append([]string(nil), ids...)
	for _, id := range ids {
		if crs, err := e.auth.LookupCRS(id); err == nil && crs.BaseID() != crs.ID {
			out = append(out, crs.BaseID())
		}
	}
	return out
}

// do runs fn on the handle for t, building it again once when a purge
// raced with the lookup.
func (e *Executor) do(t Target, fn func(p *proj.PJ) error) error {
	for attempt := 0; ; attempt++ {
		ent, err := e.entry(t)
		if err != nil {
			return err
		}
		err = ent.Do(fn)
		if opcache.IsEvicted(err) && attempt == 0 {
			continue
		}
		return err
	}
}

func (e *Executor) Transform(ctx context.Context, req TransformRequest) (TransformResult, error) {
	if len(req.Points) > e.maxPoints {
		return TransformResult{}, model.Errorf(model.ErrOtherAPIMisuse,
			"too many points: %d (max %d)", len(req.Points), e.maxPoints)
	}
	res := TransformResult{
		Points: make([]model.Coord, len(req.Points)),
		Errno:  make([]model.Errno, len(req.Points)),
	}
	failed := 0
	err := e.do(req.Target, func(p *proj.PJ) error {
		failed = 0
		for i, c := range req.Points {
			if i%1024 == 0 {
				if err := ctx.Err(); err != nil {
					return fmt.Errorf("transform: %w", err)
				}
			}
			p.ErrnoReset()
			res.Points[i] = p.Trans(req.Direction, c)
			res.Errno[i] = p.Errno()
			if res.Errno[i] == 0 && res.Points[i].IsError() {
				res.Errno[i] = model.ErrCoordTransfm
			}
			if res.Errno[i] != 0 {
				failed++
			}
		}
		res.Operation = lastUsed(p)
		return nil
	})
	if err != nil {
		return TransformResult{}, err
	}

	observability.AddTransformPoints("ok", len(req.Points)-failed)
	observability.AddTransformPoints("error", failed)
	e.logger.DebugContext(ctx, "transform done",
		"operation", res.Operation, "points", len(req.Points), "failed", failed)
	return res, nil
}

func lastUsed(p *proj.PJ) string {
	if last := p.LastUsedOperation(); last != nil {
		defer last.Destroy()
		return name(last.Info())
	}
	return name(p.Info())
}

func name(info proj.Info) string {
	if info.Name != "" {
		return info.Name
	}
	if info.Description != "" {
		return info.Description
	}
	return info.ID
}

func (e *Executor) Bounds(ctx context.Context, req BoundsRequest) (BoundsResult, error) {
	densify := req.Densify
	if densify < 0 {
		densify = e.densify
	}
	var out BoundsResult
	err := e.do(req.Target, func(p *proj.PJ) error {
		b, err := p.TransBounds(req.Direction, req.XMin, req.YMin, req.XMax, req.YMax, densify)
		if err != nil {
			return err
		}
		out.Bounds = b
		out.Geographic, out.LonFirst = e.outputAxes(req, p)
		return nil
	})
	if err != nil {
		return BoundsResult{}, err
	}
	e.logger.DebugContext(ctx, "bounds done", "target", req.label(), "bounds", out.Bounds)
	return out, nil
}

func (e *Executor) outputAxes(req BoundsRequest, p *proj.PJ) (geographic, lonFirst bool) {
	if req.Definition != "" {
		return p.DegreeOutput(req.Direction), true
	}
	id := req.Target.Target
	if req.Direction == model.Inv {
		id = req.Source
	}
	crs, err := e.auth.LookupCRS(id)
	if err != nil {
		return false, true
	}
	return crs.Geographic(), crs.LonFirst()
}

// OperationInfo is one row of the candidate table.
type OperationInfo struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Accuracy   float64    `json:"accuracy"`
	Area       model.BBox `json:"area"`
	Grids      []string   `json:"grids,omitempty"`
	Inverse    bool       `json:"inverse,omitempty"`
	Ballpark   bool       `json:"ballpark,omitempty"`
	Definition string     `json:"definition"`
}

// Operations lists the candidates the authority has for a CRS pair, in
// preference order.
func (e *Executor) Operations(ctx context.Context, src, tgt string, area *model.BBox) ([]OperationInfo, error) {
	s, err := e.auth.LookupCRS(src)
	if err != nil {
		return nil, model.Errorf(model.ErrInvalidOpIllegalArgValue, "%v", err)
	}
	t, err := e.auth.LookupCRS(tgt)
	if err != nil {
		return nil, model.Errorf(model.ErrInvalidOpIllegalArgValue, "%v", err)
	}
	q := authority.Query{Accuracy: -1, AllowBallpark: true}
	if area != nil {
		q.Area = area
	}
	cands, err := e.auth.Candidates(ctx, s.ID, t.ID, q)
	if err != nil {
		return nil, err
	}
	out := make([]OperationInfo, 0, len(cands))
	for _, c := range cands {
		out = append(out, OperationInfo{
			ID:         c.ID,
			Name:       c.Name,
			Accuracy:   c.Accuracy,
			Area:       c.Area,
			Grids:      c.Grids,
			Inverse:    c.Inverse,
			Ballpark:   c.Ballpark,
			Definition: c.Definition,
		})
	}
	return out, nil
}
