// Package middleware provides the HTTP admission middleware applied to every
// guarded route.
package middleware

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/komugidappei/ai-pose-editor-sub001/internal/core/domain"
	"github.com/komugidappei/ai-pose-editor-sub001/internal/core/ports"
)

// Messages are the denial message templates surfaced to clients.
type Messages struct {
	RateLimited   string
	QuotaExceeded string
	Unavailable   string
}

type userIDKey struct{}

// WithUserID marks the request as authenticated. The auth layer in front of
// this subsystem must call it only after validating the bearer token.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

func userIDFrom(r *http.Request) string {
	if userID, ok := r.Context().Value(userIDKey{}).(string); ok {
		return userID
	}
	return ""
}

type deniedResponse struct {
	Message   string `json:"message"`
	Limit     int64  `json:"limit"`
	Remaining int64  `json:"remaining"`
	ResetAt   int64  `json:"reset_at"`
	Reason    string `json:"reason"`
}

// NewAdmissionMiddleware runs the admission check on every request before the
// business handler. Denials become a 429 (or 503 when admission itself is
// degraded) with X-RateLimit-* headers and a machine-readable JSON body.
// Admitted requests carry a QuotaCharge in their context so the handler can
// settle the reservation after the downstream call.
func NewAdmissionMiddleware(controller ports.AdmissionController, ledger ports.QuotaLedger, msgs Messages) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if controller == nil {
				next.ServeHTTP(w, r)
				return
			}

			reqCtx := domain.RequestContext{
				UserID:         userIDFrom(r),
				RemoteIP:       extractIP(r),
				UserAgent:      r.Header.Get("User-Agent"),
				AcceptLanguage: r.Header.Get("Accept-Language"),
			}

			admission := controller.Admit(r.Context(), reqCtx, routeKey(r))
			writeRateLimitHeaders(w, admission.Decision)

			if !admission.Decision.Allowed {
				writeDenied(w, admission.Decision, msgs)
				return
			}

			charge := NewQuotaCharge(ledger, admission.Identity.Key(), admission.DayKey)
			next.ServeHTTP(w, r.WithContext(withCharge(r.Context(), charge)))
		})
	}
}

// routeKey prefers the chi route pattern so parameterized paths share one
// rule, falling back to the raw path when the middleware runs before routing.
func routeKey(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func writeRateLimitHeaders(w http.ResponseWriter, d domain.Decision) {
	remaining := d.Remaining
	if remaining < 0 {
		remaining = 0
	}
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}

func writeDenied(w http.ResponseWriter, d domain.Decision, msgs Messages) {
	retry := time.Until(d.ResetAt)
	if retry < 0 {
		retry = 0
	}
	w.Header().Set("Retry-After", strconv.FormatInt(int64(math.Ceil(retry.Seconds())), 10))
	w.Header().Set("Content-Type", "application/json")

	status := http.StatusTooManyRequests
	message := msgs.RateLimited
	switch d.Reason {
	case domain.ReasonQuotaExceeded:
		message = msgs.QuotaExceeded
	case domain.ReasonInternalError:
		status = http.StatusServiceUnavailable
		message = msgs.Unavailable
	}

	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(deniedResponse{
		Message: message,
		Limit:   d.Limit,
		ResetAt: d.ResetAt.Unix(),
		Reason:  string(d.Reason),
	})
}

func extractIP(r *http.Request) string {
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
