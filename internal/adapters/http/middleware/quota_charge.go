package middleware

import (
	"context"

	"github.com/komugidappei/ai-pose-editor-sub001/internal/core/ports"
)

type chargeKey struct{}

// QuotaCharge lets a handler settle the quota slot reserved at admission:
// Commit once the downstream call succeeded, Release to refund a slot for
// work that never happened. Handlers that charge unconditionally simply
// ignore it.
type QuotaCharge struct {
	ledger      ports.QuotaLedger
	identityKey string
	dayKey      string
}

func NewQuotaCharge(ledger ports.QuotaLedger, identityKey, dayKey string) *QuotaCharge {
	return &QuotaCharge{ledger: ledger, identityKey: identityKey, dayKey: dayKey}
}

func (c *QuotaCharge) Commit(ctx context.Context) error {
	if c == nil || c.ledger == nil {
		return nil
	}
	return c.ledger.Commit(ctx, c.identityKey, c.dayKey)
}

func (c *QuotaCharge) Release(ctx context.Context) error {
	if c == nil || c.ledger == nil {
		return nil
	}
	return c.ledger.Release(ctx, c.identityKey, c.dayKey)
}

func withCharge(ctx context.Context, charge *QuotaCharge) context.Context {
	return context.WithValue(ctx, chargeKey{}, charge)
}

// ChargeFromContext returns the reservation made for this request, when the
// admission middleware admitted it.
func ChargeFromContext(ctx context.Context) (*QuotaCharge, bool) {
	charge, ok := ctx.Value(chargeKey{}).(*QuotaCharge)
	return charge, ok && charge != nil
}
