package ports

import "context"

// QuotaResult is the outcome of one quota reservation attempt.
type QuotaResult struct {
	Count   int64
	Allowed bool
}

// QuotaLedger is the durable per-identity, per-day counter behind the daily
// quota. CheckAndReserve must perform its read-compare-increment as a single
// atomic operation at the storage layer itself; callers may run in arbitrary
// concurrent processes, so an application-level compare-then-write would let
// N racing requests overshoot the limit by up to N.
//
// The reservation protocol: CheckAndReserve charges one slot immediately.
// Call sites that only want to pay for successful downstream work call
// Release to refund the slot when the work fails, and Commit to acknowledge
// it when the work succeeds. Call sites using the simple increment-now mode
// just never call either.
type QuotaLedger interface {
	CheckAndReserve(ctx context.Context, identityKey, dayKey string, limit int64) (QuotaResult, error)
	Commit(ctx context.Context, identityKey, dayKey string) error
	Release(ctx context.Context, identityKey, dayKey string) error

	// PurgeExpired deletes rows whose day key sorts strictly before
	// cutoffDay and reports how many were removed. It is the maintenance
	// entry point consumed by the reclamation job, never by the hot path.
	PurgeExpired(ctx context.Context, cutoffDay string) (int64, error)
}
