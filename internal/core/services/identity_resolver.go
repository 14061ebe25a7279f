// Package services implements the core admission-control logic.
package services

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/komugidappei/ai-pose-editor-sub001/internal/core/domain"
)

// IdentityResolver derives a stable ClientIdentity from request attributes.
// Resolution is a pure function of its inputs: the same address and headers
// always produce the same fingerprint, across calls and across process
// restarts. There is no error path; even a request with nothing resolvable
// yields a deterministic guest fingerprint.
type IdentityResolver struct{}

func NewIdentityResolver() *IdentityResolver {
	return &IdentityResolver{}
}

// Resolve returns the authenticated identity when the upstream auth layer has
// provided a user id, and a guest fingerprint otherwise.
func (r *IdentityResolver) Resolve(req domain.RequestContext) domain.ClientIdentity {
	if userID := strings.TrimSpace(req.UserID); userID != "" {
		return domain.ClientIdentity{Kind: domain.IdentityAuthenticated, UserID: userID}
	}
	return domain.ClientIdentity{Kind: domain.IdentityGuest, Fingerprint: fingerprint(req)}
}

// fingerprint hashes the network address and a small set of headers into a
// non-reversible identifier. Only the digest ever leaves this function; the
// raw inputs are not stored or logged anywhere.
func fingerprint(req domain.RequestContext) string {
	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(req.RemoteIP)))
	h.Write([]byte{'\n'})
	h.Write([]byte(strings.TrimSpace(req.UserAgent)))
	h.Write([]byte{'\n'})
	h.Write([]byte(strings.TrimSpace(req.AcceptLanguage)))
	return hex.EncodeToString(h.Sum(nil))[:32]
}
