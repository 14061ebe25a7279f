package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/komugidappei/ai-pose-editor-sub001/internal/core/ports"
)

// Reclaimer purges quota rows older than the retention horizon. It runs off
// the request path, triggered by an external scheduler (or the optional
// in-process ticker in main), and is safe to run concurrently with live
// traffic: the cutoff arithmetic can never reach the current day's rows.
type Reclaimer struct {
	ledger        ports.QuotaLedger
	retentionDays int
	loc           *time.Location
	now           func() time.Time
}

func NewReclaimer(ledger ports.QuotaLedger, retentionDays int, loc *time.Location, now func() time.Time) (*Reclaimer, error) {
	if ledger == nil {
		return nil, fmt.Errorf("quota ledger is required")
	}
	if retentionDays < 1 {
		return nil, fmt.Errorf("retention must be at least one day")
	}
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Reclaimer{ledger: ledger, retentionDays: retentionDays, loc: loc, now: now}, nil
}

// Run performs one reclamation pass and reports how many rows were purged.
// Rows aged exactly retentionDays are kept; only strictly older ones go. The
// pass is idempotent, and a failure only delays cleanup, it never corrupts
// counting.
func (r *Reclaimer) Run(ctx context.Context) (int64, error) {
	cutoff := r.now().In(r.loc).AddDate(0, 0, -r.retentionDays).Format(dayKeyLayout)
	deleted, err := r.ledger.PurgeExpired(ctx, cutoff)
	if err != nil {
		return deleted, fmt.Errorf("reclaim quota rows: %w", err)
	}
	if deleted > 0 {
		log.Printf("reclaimer: purged %d expired quota rows (cutoff %s)", deleted, cutoff)
	}
	return deleted, nil
}
