package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// ReadinessReporter is implemented by the invalidation runner; partitions
// lists the assignment it currently holds.
type ReadinessReporter interface {
	Readiness() (ready bool, partitions []int32)
}

// Check probes one dependency. A non-nil error marks the service not ready.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

const probeTimeout = 2 * time.Second

type readyResp struct {
	Status     string            `json:"status"`
	Checks     map[string]string `json:"checks,omitempty"`
	Partitions []int32           `json:"partitions,omitempty"`
}

// Readiness reports 200 when every check passes and the reporter, if any,
// holds its assignment. rr may be nil.
func Readiness(rr ReadinessReporter, checks ...Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		defer cancel()

		ready := true
		out := readyResp{}
		if len(checks) > 0 {
			out.Checks = make(map[string]string, len(checks))
		}
		for _, c := range checks {
			if err := c.Probe(ctx); err != nil {
				ready = false
				out.Checks[c.Name] = err.Error()
				continue
			}
			out.Checks[c.Name] = "ok"
		}
		if rr != nil {
			ok, parts := rr.Readiness()
			if ok {
				out.Partitions = parts
			}
			ready = ready && ok
		}

		out.Status = "ready"
		w.Header().Set("Content-Type", "application/json")
		if !ready {
			out.Status = "not_ready"
			out.Partitions = nil
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
