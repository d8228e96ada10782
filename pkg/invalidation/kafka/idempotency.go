package kafka

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// seqTracker holds the highest sequence number applied per event source.
// Sources are evicted least recently used first; an evicted source starts
// over and its next event is applied.
type seqTracker struct {
	mu      sync.Mutex
	applied *lru.Cache[string, uint64]
}

func newSeqTracker(sources int) *seqTracker {
	if sources <= 0 {
		sources = 1024
	}
	c, _ := lru.New[string, uint64](sources)
	return &seqTracker{applied: c}
}

// stale reports whether an event was already applied. Events without a
// sequence number never are.
func (t *seqTracker) stale(source string, seq uint64) bool {
	if seq == 0 {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	last, ok := t.applied.Peek(source)
	return ok && seq <= last
}

// commit records seq once the event was applied, so a failed apply is
// retried on redelivery instead of being skipped.
func (t *seqTracker) commit(source string, seq uint64) {
	if seq == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if last, ok := t.applied.Get(source); ok && seq <= last {
		return
	}
	t.applied.Add(source, seq)
}
