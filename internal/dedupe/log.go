// Package dedupe remembers which calls this node has finished resolving so
// the scheduler does not start the same call twice.
package dedupe

import (
	"fmt"
	"sync"

	"github.com/hashicorp/golang-lru/simplelru"

	"oracle/internal/metrics"
)

const DefaultCapacity = 1000

// Log is a bounded set of resolved call ids plus the set of calls whose
// attempt is still running. Resolved ids are evicted oldest first once the
// capacity is reached; in-flight ids are never evicted.
type Log struct {
	mu       sync.Mutex
	done     *simplelru.LRU
	inFlight map[string]struct{}
}

func New(capacity int) (*Log, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("dedupe capacity must be positive, got %d", capacity)
	}
	done, err := simplelru.NewLRU(capacity, func(key, _ interface{}) {
		metrics.DedupeEvictions.Inc()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create dedupe cache: %w", err)
	}
	return &Log{done: done, inFlight: make(map[string]struct{})}, nil
}

// TryBegin claims callID for a new attempt. It returns false if the call is
// already resolved or another attempt is running.
func (l *Log) TryBegin(callID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Contains does not touch recency, keeping eviction in insertion order
	if l.done.Contains(callID) {
		return false
	}
	if _, running := l.inFlight[callID]; running {
		return false
	}
	l.inFlight[callID] = struct{}{}
	metrics.InFlight.Set(float64(len(l.inFlight)))
	return true
}

// Finish releases the in-flight claim. When resolved is true the call is
// remembered as done; otherwise it becomes eligible again.
func (l *Log) Finish(callID string, resolved bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.inFlight, callID)
	if resolved {
		l.done.Add(callID, struct{}{})
	}
	metrics.InFlight.Set(float64(len(l.inFlight)))
	metrics.DedupeEntries.Set(float64(l.done.Len()))
}

// Done reports whether callID is remembered as resolved
func (l *Log) Done(callID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done.Contains(callID)
}

// InFlight reports whether an attempt for callID is running
func (l *Log) InFlight(callID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.inFlight[callID]
	return ok
}

// Len returns the number of remembered resolved calls
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done.Len()
}
