package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/projpipe/internal/core/config"
	"github.com/mohammed-shakir/projpipe/internal/core/executor"
	"github.com/mohammed-shakir/projpipe/internal/core/model"
	"github.com/mohammed-shakir/projpipe/internal/core/observability"
	"github.com/mohammed-shakir/projpipe/internal/core/ogc"
	"github.com/mohammed-shakir/projpipe/internal/logger"
)

// Transformer serves validated transformation requests.
type Transformer interface {
	Transform(ctx context.Context, req executor.TransformRequest) (executor.TransformResult, error)
	Bounds(ctx context.Context, req executor.BoundsRequest) (executor.BoundsResult, error)
	Operations(ctx context.Context, src, tgt string, area *model.BBox) ([]executor.OperationInfo, error)
}

const maxBodyBytes = 32 << 20

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// observed wraps h with the request metrics for route.
func observed(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		h(sw, r)
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	}
}

type transformBody struct {
	Source     string      `json:"source"`
	Target     string      `json:"target"`
	Definition string      `json:"definition"`
	Direction  string      `json:"direction"`
	Area       *model.BBox `json:"area,omitempty"`
	Options    []string    `json:"options,omitempty"`
	Points     [][]float64 `json:"points"`
}

type pointError struct {
	Index   int         `json:"index"`
	Errno   model.Errno `json:"errno"`
	Message string      `json:"message"`
}

type transformResponse struct {
	Points    []jsonCoord  `json:"points"`
	Errors    []pointError `json:"errors,omitempty"`
	Operation string       `json:"operation,omitempty"`
}

// jsonCoord writes non-finite ordinates as null.
type jsonCoord model.Coord

func (c jsonCoord) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range c {
		if i > 0 {
			b.WriteByte(',')
		}
		if math.IsInf(v, 0) || math.IsNaN(v) {
			b.WriteString("null")
			continue
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	b.WriteByte(']')
	return []byte(b.String()), nil
}

// HandleTransform answers POST /transform.
func HandleTransform(log *slog.Logger, cfg config.Config, t Transformer) http.HandlerFunc {
	return observed("/transform", func(w http.ResponseWriter, r *http.Request) {
		var body transformBody
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&body); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		req, err := parseTransform(body, cfg.TransformMaxPoints)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		ctx := logger.WithOperation(r.Context(), label(req.Target))
		res, err := t.Transform(ctx, req)
		if err != nil {
			writeError(ctx, log, w, err)
			return
		}

		out := transformResponse{Points: make([]jsonCoord, len(res.Points)), Operation: res.Operation}
		for i, c := range res.Points {
			out.Points[i] = jsonCoord(c)
			if code := res.Errno[i]; code != 0 {
				out.Errors = append(out.Errors, pointError{Index: i, Errno: code, Message: code.String()})
			}
		}
		writeJSON(w, http.StatusOK, out)
	})
}

func parseTransform(b transformBody, maxPoints int) (executor.TransformRequest, error) {
	dir, err := executor.ParseDirection(b.Direction)
	if err != nil {
		return executor.TransformRequest{}, err
	}
	tgt, err := target(b.Source, b.Target, b.Definition)
	if err != nil {
		return executor.TransformRequest{}, err
	}
	tgt.Area, tgt.Options = b.Area, b.Options
	if len(b.Points) == 0 {
		return executor.TransformRequest{}, errors.New("points must not be empty")
	}
	if maxPoints > 0 && len(b.Points) > maxPoints {
		return executor.TransformRequest{}, fmt.Errorf("too many points: %d (max %d)", len(b.Points), maxPoints)
	}
	pts := make([]model.Coord, len(b.Points))
	for i, p := range b.Points {
		if len(p) < 2 || len(p) > 4 {
			return executor.TransformRequest{}, fmt.Errorf("point %d: want 2 to 4 ordinates, got %d", i, len(p))
		}
		pts[i] = model.Coord{0, 0, 0, model.HugeVal}
		copy(pts[i][:], p)
	}
	return executor.TransformRequest{Target: tgt, Direction: dir, Points: pts}, nil
}

func target(src, tgt, def string) (executor.Target, error) {
	src, tgt, def = strings.TrimSpace(src), strings.TrimSpace(tgt), strings.TrimSpace(def)
	switch {
	case def != "" && (src != "" || tgt != ""):
		return executor.Target{}, errors.New("definition and source/target are mutually exclusive")
	case def != "":
		return executor.Target{Definition: def}, nil
	case src == "" || tgt == "":
		return executor.Target{}, errors.New("missing required parameters: source and target, or definition")
	}
	return executor.Target{Source: src, Target: tgt}, nil
}

func label(t executor.Target) string {
	if t.Definition != "" {
		return t.Definition
	}
	return t.Source + "->" + t.Target
}

// HandleBounds answers GET /bounds with a GeoJSON geometry.
func HandleBounds(log *slog.Logger, cfg config.Config, t Transformer) http.HandlerFunc {
	return observed("/bounds", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		tgt, err := target(q.Get("source"), q.Get("target"), q.Get("definition"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		tgt.Options = q["option"]
		dir, err := executor.ParseDirection(q.Get("direction"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		box, err := parseBBOX(q.Get("bbox"))
		if err != nil {
			http.Error(w, "invalid bbox: "+err.Error(), http.StatusBadRequest)
			return
		}
		densify := cfg.BoundsDensifyDefault
		if v := strings.TrimSpace(q.Get("densify")); v != "" {
			if densify, err = strconv.Atoi(v); err != nil {
				http.Error(w, "invalid densify: "+err.Error(), http.StatusBadRequest)
				return
			}
		}

		ctx := logger.WithOperation(r.Context(), label(tgt))
		res, err := t.Bounds(ctx, executor.BoundsRequest{
			Target: tgt, Direction: dir,
			XMin: box[0], YMin: box[1], XMax: box[2], YMax: box[3],
			Densify: densify,
		})
		if err != nil {
			writeError(ctx, log, w, err)
			return
		}
		raw, err := ogc.MarshalBounds(res.Bounds, res.Geographic, res.LonFirst)
		if err != nil {
			writeError(ctx, log, w, err)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		_, _ = w.Write(raw)
	})
}

// HandleOperations answers GET /operations with the candidate table.
func HandleOperations(log *slog.Logger, _ config.Config, t Transformer) http.HandlerFunc {
	return observed("/operations", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		src, tgt := strings.TrimSpace(q.Get("source")), strings.TrimSpace(q.Get("target"))
		if src == "" || tgt == "" {
			http.Error(w, "missing required parameters: source, target", http.StatusBadRequest)
			return
		}
		var area *model.BBox
		if raw := strings.TrimSpace(q.Get("area")); raw != "" {
			box, err := parseBBOX(raw)
			if err != nil {
				http.Error(w, "invalid area: "+err.Error(), http.StatusBadRequest)
				return
			}
			if box[1] < -90 || box[3] > 90 || box[1] > box[3] {
				http.Error(w, "invalid area: latitude must be in [-90,90] with south <= north", http.StatusBadRequest)
				return
			}
			area = &model.BBox{West: box[0], South: box[1], East: box[2], North: box[3]}
		}

		ctx := logger.WithOperation(r.Context(), src+"->"+tgt)
		ops, err := t.Operations(ctx, src, tgt, area)
		if err != nil {
			writeError(ctx, log, w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Operations []executor.OperationInfo `json:"operations"`
		}{ops})
	})
}

// parseBBOX reads "x1,y1,x2,y2". x2 < x1 is allowed for boxes crossing the
// antimeridian.
func parseBBOX(raw string) ([4]float64, error) {
	var out [4]float64
	parts := strings.Split(strings.TrimSpace(raw), ",")
	if len(parts) != 4 {
		return out, errors.New("expected 4 comma-separated values: x1,y1,x2,y2")
	}
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return out, fmt.Errorf("value %d: %w", i+1, err)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return out, fmt.Errorf("value %d: must be finite", i+1)
		}
		out[i] = f
	}
	return out, nil
}

// StatusOf maps an error code to the HTTP status it is reported with.
func StatusOf(err error) int {
	switch code := model.CodeOf(err); {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case code == model.ErrCoordTransfmNoOperation:
		return http.StatusUnprocessableEntity
	case code == model.ErrOtherNetworkError:
		return http.StatusBadGateway
	case code == model.ErrOtherAPIMisuse, code == model.ErrOtherNoInverseOp:
		return http.StatusBadRequest
	case code >= model.ErrInvalidOp && code < model.ErrCoordTransfm:
		return http.StatusBadRequest
	case code >= model.ErrCoordTransfm && code < model.ErrOther:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeError(ctx context.Context, log *slog.Logger, w http.ResponseWriter, err error) {
	status := StatusOf(err)
	lvl := slog.LevelInfo
	if status >= http.StatusInternalServerError {
		lvl = slog.LevelError
	}
	log.Log(ctx, lvl, "request failed", "status", status, "errno", int(model.CodeOf(err)), "err", err)
	writeJSON(w, status, struct {
		Error string      `json:"error"`
		Errno model.Errno `json:"errno"`
	}{err.Error(), model.CodeOf(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
