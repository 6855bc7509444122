package auth

import (
	"context"
	"time"

	"github.com/formloft/formloft/pkg/contextkeys"
)

// Principal is a verified identity. It is constructed only by a Verifier
// after signature verification succeeds, and is immutable afterward:
// enrichment attaches authorization data to the request context rather
// than mutating the principal.
type Principal struct {
	// Subject is the user id claim (sub).
	Subject string

	// Issuer is the verified issuer claim (iss).
	Issuer string

	// TokenID is the token's unique id claim (jti), when present. The
	// authorization cache prefers it as a cache key so cached decisions
	// expire with the token.
	TokenID string

	// TenantID is the tenant claim (tid), 0 when absent.
	TenantID int64

	// ExpiresAt is the token expiry (exp). Zero when the token carries
	// no expiry, in which case cache TTLs fall back to a fixed ceiling.
	ExpiresAt time.Time

	// Claims holds the full verified claim set for provider-specific
	// lookups. Callers must treat it as read-only.
	Claims map[string]interface{}
}

// Authenticated reports whether the principal carries a verified subject.
func (p *Principal) Authenticated() bool {
	return p != nil && p.Subject != ""
}

// WithPrincipal attaches a verified principal to the context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return contextkeys.WithPrincipal(ctx, p)
}

// PrincipalFromContext retrieves the verified principal, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(contextkeys.PrincipalKey).(*Principal)
	return p, ok && p != nil
}
