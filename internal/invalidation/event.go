// Package invalidation defines the catalog change events that make the
// service drop prepared handles and cached lookups.
package invalidation

import (
	"fmt"
	"strings"
	"time"
)

const (
	OpUpdate = "update"
	OpDelete = "delete"
	OpReload = "reload"
)

type Event struct {
	Version int    `json:"version"`
	Op      string `json:"op"`
	// Seq orders the events of one source; stale or repeated events are
	// skipped.
	Seq    uint64    `json:"seq"`
	Source string    `json:"source,omitempty"`
	TS     time.Time `json:"ts"`

	CRS       []string `json:"crs,omitempty"`
	Grids     []string `json:"grids,omitempty"`
	InitFiles []string `json:"init_files,omitempty"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case OpUpdate, OpDelete, OpReload:
	default:
		return fmt.Errorf("op must be update|delete|reload")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	if e.Op == OpReload {
		return nil
	}
	if len(e.CRS)+len(e.Grids)+len(e.InitFiles) == 0 {
		return fmt.Errorf("at least one of crs, grids or init_files is required")
	}
	for _, id := range e.CRS {
		auth, code, ok := strings.Cut(strings.TrimSpace(id), ":")
		if !ok || auth == "" || code == "" {
			return fmt.Errorf("crs id %q must look like AUTHORITY:CODE", id)
		}
	}
	for _, g := range e.Grids {
		if strings.TrimSpace(g) == "" || strings.ContainsAny(g, "/\\") {
			return fmt.Errorf("bad grid name %q", g)
		}
	}
	return nil
}

// SourceKey is the key used to order events, "default" when the producer
// did not name itself.
func (e Event) SourceKey() string {
	if s := strings.TrimSpace(e.Source); s != "" {
		return s
	}
	return "default"
}
