// Package memory provides in-process storage backends, used for
// single-instance deployments and as fast, dependency-free stand-ins in
// tests. State is local to the process and does not survive a restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/komugidappei/ai-pose-editor-sub001/internal/core/ports"
)

// evictAfterWindows is how many idle window lengths a counter survives
// before the sweep drops it.
const evictAfterWindows = 3

type windowCounter struct {
	count       int64
	windowStart time.Time
	lastAccess  time.Time
}

// CounterStore is a mutex-guarded fixed-window counter map. Counting is
// fixed-window on purpose: O(1) memory and time per key, at the cost of
// admitting up to twice the limit in a burst straddling a window boundary.
type CounterStore struct {
	mu        sync.Mutex
	counters  map[string]*windowCounter
	lastSweep time.Time
}

func NewCounterStore() *CounterStore {
	return &CounterStore{counters: make(map[string]*windowCounter)}
}

// IncrementAndCheck increments the counter for key inside a single critical
// section, replacing it first when its window has elapsed.
func (s *CounterStore) IncrementAndCheck(_ context.Context, key string, limit int64, window time.Duration, now time.Time) (ports.CounterResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counter, ok := s.counters[key]
	if !ok || now.Sub(counter.windowStart) >= window {
		counter = &windowCounter{windowStart: now}
		s.counters[key] = counter
	}
	counter.count++
	counter.lastAccess = now

	s.maybeSweep(now, window)

	return ports.CounterResult{
		Count:   counter.count,
		Allowed: counter.count <= limit,
		ResetAt: counter.windowStart.Add(window),
	}, nil
}

// maybeSweep drops counters idle for several windows, at most once per window
// length. Losing a stale counter is harmless: a fresh window starts on the
// next request for that key anyway.
func (s *CounterStore) maybeSweep(now time.Time, window time.Duration) {
	if now.Sub(s.lastSweep) < window {
		return
	}
	s.lastSweep = now
	for key, counter := range s.counters {
		if now.Sub(counter.lastAccess) > evictAfterWindows*window {
			delete(s.counters, key)
		}
	}
}
