// Package ports defines the contracts that connect the admission core to
// storage and observability backends.
package ports

import (
	"context"
	"time"

	"github.com/komugidappei/ai-pose-editor-sub001/internal/core/domain"
)

// CounterResult is the outcome of one fixed-window increment.
type CounterResult struct {
	Count   int64
	Allowed bool
	ResetAt time.Time
}

// CounterStore is the keyed fixed-window counter behind the rate limiter.
// Implementations must linearize increments on the same key: no two concurrent
// calls may both observe count-1 and both write count. A counter whose window
// has elapsed is replaced with a fresh one, never rewound. Stale keys may be
// evicted opportunistically; losing a stale counter is harmless because a new
// window starts on the next request anyway.
type CounterStore interface {
	IncrementAndCheck(ctx context.Context, key string, limit int64, window time.Duration, now time.Time) (CounterResult, error)
}

// MetricsRecorder receives admission outcomes and backend failures.
type MetricsRecorder interface {
	RecordAdmission(route string, reason domain.Reason)
	RecordStoreError(component string)
	ObserveLedgerLatency(d time.Duration)
}

// NoopRecorder discards all measurements.
type NoopRecorder struct{}

func (NoopRecorder) RecordAdmission(string, domain.Reason) {}
func (NoopRecorder) RecordStoreError(string)               {}
func (NoopRecorder) ObserveLedgerLatency(time.Duration)    {}
