package services

import (
	"testing"

	"github.com/komugidappei/ai-pose-editor-sub001/internal/core/domain"
)

func TestResolve_AuthenticatedUsesUserID(t *testing.T) {
	resolver := NewIdentityResolver()

	identity := resolver.Resolve(domain.RequestContext{UserID: "user-42", RemoteIP: "203.0.113.10"})

	if identity.Kind != domain.IdentityAuthenticated {
		t.Fatalf("expected authenticated identity, got %s", identity.Kind)
	}
	if identity.Key() != "user:user-42" {
		t.Fatalf("unexpected identity key: %s", identity.Key())
	}
}

func TestResolve_GuestFingerprintIsDeterministic(t *testing.T) {
	req := domain.RequestContext{
		RemoteIP:       "203.0.113.10",
		UserAgent:      "Mozilla/5.0",
		AcceptLanguage: "ja,en-US;q=0.9",
	}

	first := NewIdentityResolver().Resolve(req)
	// A separate resolver instance stands in for a process restart.
	second := NewIdentityResolver().Resolve(req)

	if first.Kind != domain.IdentityGuest {
		t.Fatalf("expected guest identity, got %s", first.Kind)
	}
	if first.Fingerprint == "" {
		t.Fatal("expected non-empty fingerprint")
	}
	if first.Key() != second.Key() {
		t.Fatalf("fingerprint not stable: %s vs %s", first.Key(), second.Key())
	}

	for i := 0; i < 5; i++ {
		if got := NewIdentityResolver().Resolve(req); got.Key() != first.Key() {
			t.Fatalf("fingerprint drifted on call %d: %s", i, got.Key())
		}
	}
}

func TestResolve_FingerprintChangesWithInputs(t *testing.T) {
	resolver := NewIdentityResolver()
	base := domain.RequestContext{
		RemoteIP:       "203.0.113.10",
		UserAgent:      "Mozilla/5.0",
		AcceptLanguage: "ja",
	}
	baseKey := resolver.Resolve(base).Key()

	variants := []domain.RequestContext{
		{RemoteIP: "203.0.113.11", UserAgent: base.UserAgent, AcceptLanguage: base.AcceptLanguage},
		{RemoteIP: base.RemoteIP, UserAgent: "curl/8.0", AcceptLanguage: base.AcceptLanguage},
		{RemoteIP: base.RemoteIP, UserAgent: base.UserAgent, AcceptLanguage: "en-US"},
	}
	for i, variant := range variants {
		if resolver.Resolve(variant).Key() == baseKey {
			t.Fatalf("variant %d produced the same fingerprint as the base request", i)
		}
	}
}

func TestResolve_EmptyRequestStillResolves(t *testing.T) {
	identity := NewIdentityResolver().Resolve(domain.RequestContext{})

	if identity.Kind != domain.IdentityGuest {
		t.Fatalf("expected guest identity, got %s", identity.Kind)
	}
	if identity.Fingerprint == "" {
		t.Fatal("expected a deterministic fingerprint even with no inputs")
	}
}
