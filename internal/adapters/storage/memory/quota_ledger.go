package memory

import (
	"context"
	"sync"

	"github.com/komugidappei/ai-pose-editor-sub001/internal/core/ports"
)

type quotaKey struct {
	identity string
	day      string
}

// QuotaLedger keeps per-identity daily counters in process memory. It offers
// the same reserve/commit/release protocol as the durable backends, but is
// only suitable for single-instance deployments: counters reset on restart
// and are not shared across processes.
type QuotaLedger struct {
	mu   sync.Mutex
	rows map[quotaKey]int64
}

func NewQuotaLedger() *QuotaLedger {
	return &QuotaLedger{rows: make(map[quotaKey]int64)}
}

// CheckAndReserve charges one slot when the day's count is still under limit.
// The whole read-compare-increment runs under the ledger mutex.
func (l *QuotaLedger) CheckAndReserve(_ context.Context, identityKey, dayKey string, limit int64) (ports.QuotaResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := quotaKey{identity: identityKey, day: dayKey}
	count := l.rows[key]
	if count >= limit {
		return ports.QuotaResult{Count: count, Allowed: false}, nil
	}
	count++
	l.rows[key] = count
	return ports.QuotaResult{Count: count, Allowed: true}, nil
}

// Commit acknowledges a reservation. The slot was already counted by
// CheckAndReserve, so there is nothing further to write.
func (l *QuotaLedger) Commit(_ context.Context, _, _ string) error {
	return nil
}

// Release refunds one reserved slot, never dropping the count below zero.
func (l *QuotaLedger) Release(_ context.Context, identityKey, dayKey string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := quotaKey{identity: identityKey, day: dayKey}
	if count := l.rows[key]; count > 0 {
		l.rows[key] = count - 1
	}
	return nil
}

// PurgeExpired removes rows whose day key sorts strictly before cutoffDay.
func (l *QuotaLedger) PurgeExpired(_ context.Context, cutoffDay string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var deleted int64
	for key := range l.rows {
		if key.day < cutoffDay {
			delete(l.rows, key)
			deleted++
		}
	}
	return deleted, nil
}
