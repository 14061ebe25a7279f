package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/komugidappei/ai-pose-editor-sub001/internal/core/domain"
	"github.com/komugidappei/ai-pose-editor-sub001/internal/core/ports"
)

const dayKeyLayout = "2006-01-02"

// internalErrorRetry is the retry horizon surfaced when the ledger itself is
// unavailable. The real reset time is unknowable at that point, so denials
// point the client at a short backoff instead.
const internalErrorRetry = 30 * time.Second

// AdmissionConfig carries the quota policy applied by the admission service.
type AdmissionConfig struct {
	// QuotaLimit is the daily per-identity request budget.
	QuotaLimit int64
	// LedgerTimeout bounds the single blocking storage call on the hot path.
	LedgerTimeout time.Duration
	// Location is the fixed reference timezone for day keys, so rollover is
	// the same instant for every process. Defaults to UTC.
	Location *time.Location
	// Now is injectable for tests. Defaults to time.Now.
	Now func() time.Time
}

// AdmissionService orchestrates identity resolution, rate limiting, and the
// daily quota for every inbound request. The rate limiter runs first because
// it is cheap and in-process; the ledger round trip is only paid for requests
// that survived it. A request denied by quota still charged its rate-limit
// window slots, so a quota-exhausted client cannot hammer the ledger at
// unlimited speed.
type AdmissionService struct {
	resolver *IdentityResolver
	limiter  *RateLimiterService
	ledger   ports.QuotaLedger
	recorder ports.MetricsRecorder

	quotaLimit    int64
	ledgerTimeout time.Duration
	loc           *time.Location
	now           func() time.Time
}

func NewAdmissionService(resolver *IdentityResolver, limiter *RateLimiterService, ledger ports.QuotaLedger, recorder ports.MetricsRecorder, cfg AdmissionConfig) (*AdmissionService, error) {
	if resolver == nil {
		return nil, fmt.Errorf("identity resolver is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("quota ledger is required")
	}
	if cfg.QuotaLimit <= 0 {
		return nil, fmt.Errorf("quota limit must be positive")
	}
	if recorder == nil {
		recorder = ports.NoopRecorder{}
	}
	if cfg.LedgerTimeout <= 0 {
		cfg.LedgerTimeout = 2 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &AdmissionService{
		resolver:      resolver,
		limiter:       limiter,
		ledger:        ledger,
		recorder:      recorder,
		quotaLimit:    cfg.QuotaLimit,
		ledgerTimeout: cfg.LedgerTimeout,
		loc:           cfg.Location,
		now:           cfg.Now,
	}, nil
}

// Admit runs the full admission pipeline for one request.
func (s *AdmissionService) Admit(ctx context.Context, req domain.RequestContext, route string) ports.Admission {
	now := s.now()
	identity := s.resolver.Resolve(req)
	admission := ports.Admission{Identity: identity, DayKey: s.DayKey(now)}

	rateDecision := s.limiter.Check(ctx, identity, route, now)
	if !rateDecision.Allowed {
		admission.Decision = rateDecision
		s.recorder.RecordAdmission(route, rateDecision.Reason)
		return admission
	}

	ledgerCtx, cancel := context.WithTimeout(ctx, s.ledgerTimeout)
	defer cancel()

	started := time.Now()
	result, err := s.ledger.CheckAndReserve(ledgerCtx, identity.Key(), admission.DayKey, s.quotaLimit)
	s.recorder.ObserveLedgerLatency(time.Since(started))

	if err != nil {
		// Fail closed: the quota exists to bound a costly downstream call,
		// and unmetered access on error is the worse failure mode.
		log.Printf("admission: quota ledger failed identity=%s route=%s op=check_and_reserve: %v", identity.Key(), route, err)
		s.recorder.RecordStoreError("quota_ledger")
		admission.Decision = domain.Decision{
			Allowed: false,
			Limit:   s.quotaLimit,
			ResetAt: now.Add(internalErrorRetry),
			Reason:  domain.ReasonInternalError,
		}
		s.recorder.RecordAdmission(route, domain.ReasonInternalError)
		return admission
	}

	reset := s.NextReset(now)
	if !result.Allowed {
		admission.Decision = domain.Decision{
			Allowed: false,
			Limit:   s.quotaLimit,
			ResetAt: reset,
			Reason:  domain.ReasonQuotaExceeded,
		}
		s.recorder.RecordAdmission(route, domain.ReasonQuotaExceeded)
		return admission
	}

	// Surface whichever budget is tighter, the short window or the day.
	decision := domain.Decision{
		Allowed:   true,
		Remaining: s.quotaLimit - result.Count,
		Limit:     s.quotaLimit,
		ResetAt:   reset,
		Reason:    domain.ReasonOK,
	}
	if rateDecision.Remaining < decision.Remaining {
		decision.Remaining = rateDecision.Remaining
		decision.Limit = rateDecision.Limit
		decision.ResetAt = rateDecision.ResetAt
	}
	admission.Decision = decision
	s.recorder.RecordAdmission(route, domain.ReasonOK)
	return admission
}

// DayKey buckets t into a calendar day in the reference timezone.
func (s *AdmissionService) DayKey(t time.Time) string {
	return t.In(s.loc).Format(dayKeyLayout)
}

// NextReset returns the start of the next day in the reference timezone,
// regardless of when the identity's first request of the day happened.
func (s *AdmissionService) NextReset(t time.Time) time.Time {
	local := t.In(s.loc)
	year, month, day := local.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, s.loc).AddDate(0, 0, 1)
}
