// Package sqlite provides a SQL-backed quota ledger for deployments without
// a shared Redis that still need daily counters to survive restarts.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/komugidappei/ai-pose-editor-sub001/internal/core/domain"
	"github.com/komugidappei/ai-pose-editor-sub001/internal/core/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS quota_usage (
    identity   TEXT NOT NULL,
    day_key    TEXT NOT NULL,
    count      INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (identity, day_key)
);

CREATE INDEX IF NOT EXISTS idx_quota_usage_day_key ON quota_usage(day_key);
`

// The whole check-and-increment is one statement: when the day's count has
// reached the limit the conditional update declines and no row comes back.
// Racing callers can therefore never both observe the same count.
const reserveQuery = `
INSERT INTO quota_usage (identity, day_key, count) VALUES (?, ?, 1)
ON CONFLICT (identity, day_key) DO UPDATE
SET count = count + 1, updated_at = CURRENT_TIMESTAMP
WHERE count < ?
RETURNING count
`

// QuotaLedger stores per-identity daily counters in SQLite.
type QuotaLedger struct {
	db *sql.DB
}

func Open(path string) (*QuotaLedger, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection serializes writers instead of surfacing
	// SQLITE_BUSY to the admission path.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate quota schema: %w", err)
	}
	return &QuotaLedger{db: db}, nil
}

func (l *QuotaLedger) Close() error {
	return l.db.Close()
}

func (l *QuotaLedger) CheckAndReserve(ctx context.Context, identityKey, dayKey string, limit int64) (ports.QuotaResult, error) {
	if limit <= 0 {
		count, err := l.currentCount(ctx, identityKey, dayKey)
		if err != nil {
			return ports.QuotaResult{}, err
		}
		return ports.QuotaResult{Count: count, Allowed: false}, nil
	}

	var count int64
	err := l.db.QueryRowContext(ctx, reserveQuery, identityKey, dayKey, limit).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		// Budget spent; re-read the count for reporting only.
		count, err = l.currentCount(ctx, identityKey, dayKey)
		if err != nil {
			return ports.QuotaResult{}, err
		}
		return ports.QuotaResult{Count: count, Allowed: false}, nil
	}
	if err != nil {
		return ports.QuotaResult{}, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	return ports.QuotaResult{Count: count, Allowed: true}, nil
}

// Commit acknowledges a reservation. The slot was already counted, so the
// row is only touched.
func (l *QuotaLedger) Commit(ctx context.Context, identityKey, dayKey string) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE quota_usage SET updated_at = CURRENT_TIMESTAMP WHERE identity = ? AND day_key = ?`,
		identityKey, dayKey)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	return nil
}

// Release refunds one reserved slot, never dropping the count below zero.
func (l *QuotaLedger) Release(ctx context.Context, identityKey, dayKey string) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE quota_usage SET count = count - 1, updated_at = CURRENT_TIMESTAMP WHERE identity = ? AND day_key = ? AND count > 0`,
		identityKey, dayKey)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	return nil
}

// PurgeExpired deletes rows older than cutoffDay. Day keys are YYYY-MM-DD,
// so the string comparison is a date comparison.
func (l *QuotaLedger) PurgeExpired(ctx context.Context, cutoffDay string) (int64, error) {
	result, err := l.db.ExecContext(ctx, `DELETE FROM quota_usage WHERE day_key < ?`, cutoffDay)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	return deleted, nil
}

func (l *QuotaLedger) currentCount(ctx context.Context, identityKey, dayKey string) (int64, error) {
	var count int64
	err := l.db.QueryRowContext(ctx,
		`SELECT count FROM quota_usage WHERE identity = ? AND day_key = ?`,
		identityKey, dayKey).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	return count, nil
}
