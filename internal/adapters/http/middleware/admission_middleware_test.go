package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/komugidappei/ai-pose-editor-sub001/internal/core/domain"
	"github.com/komugidappei/ai-pose-editor-sub001/internal/core/ports"
)

var testMessages = Messages{
	RateLimited:   "too many requests",
	QuotaExceeded: "daily limit reached",
	Unavailable:   "try again shortly",
}

func TestMiddleware_AllowedSetsHeadersAndCharge(t *testing.T) {
	resetAt := time.Now().Add(42 * time.Second).Truncate(time.Second)
	controller := &fakeController{admission: ports.Admission{
		Identity: domain.ClientIdentity{Kind: domain.IdentityGuest, Fingerprint: "fp123"},
		DayKey:   "2026-03-10",
		Decision: domain.Decision{Allowed: true, Remaining: 4, Limit: 5, ResetAt: resetAt, Reason: domain.ReasonOK},
	}}
	ledger := &fakeLedger{}

	var sawCharge bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		charge, ok := ChargeFromContext(r.Context())
		sawCharge = ok
		if ok {
			if err := charge.Commit(r.Context()); err != nil {
				t.Errorf("unexpected commit error: %v", err)
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	handler := NewAdmissionMiddleware(controller, ledger, testMessages)(next)
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/generate", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !sawCharge {
		t.Fatal("expected a quota charge in the request context")
	}
	if got := ledger.commitCalls(); got != 1 {
		t.Fatalf("expected one commit, got %d", got)
	}

	if got := rec.Header().Get("X-RateLimit-Limit"); got != "5" {
		t.Fatalf("unexpected X-RateLimit-Limit: %s", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "4" {
		t.Fatalf("unexpected X-RateLimit-Remaining: %s", got)
	}
	if got := rec.Header().Get("X-RateLimit-Reset"); got != strconv.FormatInt(resetAt.Unix(), 10) {
		t.Fatalf("unexpected X-RateLimit-Reset: %s", got)
	}
}

func TestMiddleware_RateLimitedWrites429(t *testing.T) {
	resetAt := time.Now().Add(30 * time.Second)
	controller := &fakeController{admission: ports.Admission{
		Decision: domain.Decision{Allowed: false, Limit: 5, ResetAt: resetAt, Reason: domain.ReasonRateLimited},
	}}

	rec := httptest.NewRecorder()
	handler := NewAdmissionMiddleware(controller, &fakeLedger{}, testMessages)(blockedNext(t))
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/generate", nil))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}

	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	if err != nil || retryAfter <= 0 || retryAfter > 31 {
		t.Fatalf("unexpected Retry-After %q (err %v)", rec.Header().Get("Retry-After"), err)
	}

	var body struct {
		Message   string `json:"message"`
		Limit     int64  `json:"limit"`
		Remaining int64  `json:"remaining"`
		ResetAt   int64  `json:"reset_at"`
		Reason    string `json:"reason"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Reason != "RATE_LIMITED" || body.Limit != 5 || body.Remaining != 0 {
		t.Fatalf("unexpected body: %+v", body)
	}
	if body.Message != testMessages.RateLimited {
		t.Fatalf("unexpected message: %s", body.Message)
	}
	if body.ResetAt != resetAt.Unix() {
		t.Fatalf("unexpected reset_at: %d", body.ResetAt)
	}
}

func TestMiddleware_QuotaExceededUsesQuotaMessage(t *testing.T) {
	controller := &fakeController{admission: ports.Admission{
		Decision: domain.Decision{Allowed: false, Limit: 50, ResetAt: time.Now().Add(time.Hour), Reason: domain.ReasonQuotaExceeded},
	}}

	rec := httptest.NewRecorder()
	handler := NewAdmissionMiddleware(controller, &fakeLedger{}, testMessages)(blockedNext(t))
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/generate", nil))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	var body struct {
		Message string `json:"message"`
	}
	json.NewDecoder(rec.Body).Decode(&body)
	if body.Message != testMessages.QuotaExceeded {
		t.Fatalf("unexpected message: %s", body.Message)
	}
}

func TestMiddleware_InternalErrorWrites503(t *testing.T) {
	controller := &fakeController{admission: ports.Admission{
		Decision: domain.Decision{Allowed: false, Limit: 50, ResetAt: time.Now().Add(30 * time.Second), Reason: domain.ReasonInternalError},
	}}

	rec := httptest.NewRecorder()
	handler := NewAdmissionMiddleware(controller, &fakeLedger{}, testMessages)(blockedNext(t))
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/generate", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestMiddleware_ForwardsRequestAttributes(t *testing.T) {
	controller := &fakeController{admission: ports.Admission{
		Decision: domain.Decision{Allowed: true, Remaining: 1, Limit: 2, ResetAt: time.Now(), Reason: domain.ReasonOK},
	}}

	req := httptest.NewRequest(http.MethodPost, "/generate", nil)
	req.RemoteAddr = "198.51.100.7:39200"
	req.Header.Set("X-Forwarded-For", "203.0.113.10, 10.0.0.1")
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Accept-Language", "ja")
	req = req.WithContext(WithUserID(req.Context(), "user-42"))

	handler := NewAdmissionMiddleware(controller, &fakeLedger{}, testMessages)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	got := controller.gotRequest
	if got.UserID != "user-42" {
		t.Fatalf("expected user id forwarded, got %q", got.UserID)
	}
	if got.RemoteIP != "203.0.113.10" {
		t.Fatalf("expected first X-Forwarded-For hop, got %q", got.RemoteIP)
	}
	if got.UserAgent != "Mozilla/5.0" || got.AcceptLanguage != "ja" {
		t.Fatalf("expected headers forwarded, got %+v", got)
	}
	if controller.gotRoute != "/generate" {
		t.Fatalf("unexpected route: %s", controller.gotRoute)
	}
}

func TestMiddleware_NilControllerPassesThrough(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	handler := NewAdmissionMiddleware(nil, &fakeLedger{}, testMessages)(next)
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/generate", nil))

	if !called {
		t.Fatal("expected pass-through with a nil controller")
	}
}

func blockedNext(t *testing.T) http.Handler {
	return http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("business handler must not run on denial")
	})
}

type fakeController struct {
	admission  ports.Admission
	gotRequest domain.RequestContext
	gotRoute   string
}

func (f *fakeController) Admit(_ context.Context, req domain.RequestContext, route string) ports.Admission {
	f.gotRequest = req
	f.gotRoute = route
	return f.admission
}

type fakeLedger struct {
	mu       sync.Mutex
	commits  int
	releases int
}

func (f *fakeLedger) CheckAndReserve(_ context.Context, _, _ string, _ int64) (ports.QuotaResult, error) {
	return ports.QuotaResult{Count: 1, Allowed: true}, nil
}

func (f *fakeLedger) Commit(_ context.Context, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits++
	return nil
}

func (f *fakeLedger) Release(_ context.Context, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
	return nil
}

func (f *fakeLedger) PurgeExpired(_ context.Context, _ string) (int64, error) {
	return 0, nil
}

func (f *fakeLedger) commitCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commits
}

func (f *fakeLedger) releaseCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.releases
}
