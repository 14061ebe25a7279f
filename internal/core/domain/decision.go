package domain

import "time"

// Reason classifies why a request was admitted or denied.
type Reason string

const (
	ReasonOK            Reason = "OK"
	ReasonRateLimited   Reason = "RATE_LIMITED"
	ReasonQuotaExceeded Reason = "QUOTA_EXCEEDED"
	ReasonInternalError Reason = "INTERNAL_ERROR"
)

// Decision is the admit/deny verdict for a single request plus the metadata a
// caller needs to build a 429-style response. It is ephemeral and never
// persisted.
type Decision struct {
	Allowed   bool
	Remaining int64
	Limit     int64
	ResetAt   time.Time
	Reason    Reason
}
