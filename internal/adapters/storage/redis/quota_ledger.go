package redis

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/komugidappei/ai-pose-editor-sub001/internal/core/domain"
	"github.com/komugidappei/ai-pose-editor-sub001/internal/core/ports"
)

//go:embed quota_reserve.lua
var quotaReserveScript string

//go:embed quota_release.lua
var quotaReleaseScript string

const quotaPrefix = "quota:"

// QuotaLedger stores per-identity daily counters in Redis, one key per
// (day, identity). The conditional increment runs inside a Lua script, which
// is the storage-side atomicity boundary the daily quota depends on.
//
// Keys expire on their own after the retention horizon; PurgeExpired exists
// for keys written before a TTL policy change and to give the reclamation
// job a deterministic entry point.
type QuotaLedger struct {
	client  *redis.Client
	reserve *redis.Script
	release *redis.Script
	keyTTL  time.Duration
}

func NewQuotaLedger(client *redis.Client, retentionDays int) *QuotaLedger {
	if retentionDays < 1 {
		retentionDays = 1
	}
	return &QuotaLedger{
		client:  client,
		reserve: redis.NewScript(quotaReserveScript),
		release: redis.NewScript(quotaReleaseScript),
		// One day of slack so the reclaimer always sees rows before Redis
		// expires them on its own.
		keyTTL: time.Duration(retentionDays+1) * 24 * time.Hour,
	}
}

func quotaKey(identityKey, dayKey string) string {
	return quotaPrefix + dayKey + ":" + identityKey
}

func (l *QuotaLedger) CheckAndReserve(ctx context.Context, identityKey, dayKey string, limit int64) (ports.QuotaResult, error) {
	reply, err := l.reserve.Run(ctx, l.client, []string{quotaKey(identityKey, dayKey)}, limit, l.keyTTL.Milliseconds()).Result()
	if err != nil {
		return ports.QuotaResult{}, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}

	values, ok := reply.([]interface{})
	if !ok || len(values) != 2 {
		return ports.QuotaResult{}, fmt.Errorf("%w: unexpected script reply", domain.ErrLedgerUnavailable)
	}
	count, _ := values[0].(int64)
	allowed, _ := values[1].(int64)

	return ports.QuotaResult{Count: count, Allowed: allowed == 1}, nil
}

// Commit acknowledges a reservation made by CheckAndReserve. The slot was
// already counted, so the call only verifies the ledger is still reachable.
func (l *QuotaLedger) Commit(ctx context.Context, identityKey, dayKey string) error {
	if err := l.client.Exists(ctx, quotaKey(identityKey, dayKey)).Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	return nil
}

func (l *QuotaLedger) Release(ctx context.Context, identityKey, dayKey string) error {
	if err := l.release.Run(ctx, l.client, []string{quotaKey(identityKey, dayKey)}).Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	return nil
}

// PurgeExpired scans the quota keyspace and deletes keys whose day segment
// sorts strictly before cutoffDay.
func (l *QuotaLedger) PurgeExpired(ctx context.Context, cutoffDay string) (int64, error) {
	var deleted int64
	iter := l.client.Scan(ctx, 0, quotaPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		day, _, ok := strings.Cut(strings.TrimPrefix(key, quotaPrefix), ":")
		if !ok || day >= cutoffDay {
			continue
		}
		removed, err := l.client.Del(ctx, key).Result()
		if err != nil {
			return deleted, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
		}
		deleted += removed
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	return deleted, nil
}
