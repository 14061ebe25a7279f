// Package domain holds the core entities of the admission-control subsystem.
package domain

type IdentityKind string

const (
	IdentityAuthenticated IdentityKind = "user"
	IdentityGuest         IdentityKind = "guest"
)

// ClientIdentity identifies the caller of a request: an authenticated user id,
// or a fingerprint derived from network and header attributes for anonymous
// callers. The fingerprint is never reversible and is only ever compared for
// equality; two distinct clients colliding on a fingerprint is an accepted
// risk.
type ClientIdentity struct {
	Kind        IdentityKind
	UserID      string
	Fingerprint string
}

// Key returns the stable string used to key counters and quota rows.
func (c ClientIdentity) Key() string {
	if c.Kind == IdentityAuthenticated {
		return "user:" + c.UserID
	}
	return "guest:" + c.Fingerprint
}

// RequestContext carries the identity-relevant attributes of an inbound
// request. UserID is set by the upstream auth layer only after it has
// validated the bearer token; everything else comes straight off the request.
type RequestContext struct {
	UserID         string
	RemoteIP       string
	UserAgent      string
	AcceptLanguage string
}
