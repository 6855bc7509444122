package authz

import (
	"context"

	"github.com/formloft/formloft/pkg/auth"
)

// Strategy resolves a verified principal's roles and permissions. One
// implementation exists per identity-provider family: the internal
// provider reads local storage, external OIDC-style providers call a
// remote introspection endpoint and map role names.
type Strategy interface {
	// CanHandle reports whether this strategy owns the principal's
	// verified issuer.
	CanHandle(p *auth.Principal) bool

	// Resolve produces the authorization bundle for the principal.
	// Failures are classified: KindUnauthorized for strategy mismatch,
	// KindValidation for missing claims, KindExternalService for failed
	// introspection calls, KindMapping for role-mapping failures.
	Resolve(ctx context.Context, p *auth.Principal) (*AuthorizationData, error)
}
