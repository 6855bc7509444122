package authz

import (
	"context"
	"fmt"

	"github.com/formloft/formloft/pkg/auth"
	"github.com/formloft/formloft/pkg/observability"
)

// InternalStrategy resolves authorization for tokens minted by the
// internal provider: roles and permissions come straight from the local
// role/permission join, and admin flags from role membership.
type InternalStrategy struct {
	issuer string
	store  *Store
	logger *observability.Logger
}

// NewInternalStrategy creates the strategy for the given internal issuer.
func NewInternalStrategy(issuer string, store *Store, logger *observability.Logger) *InternalStrategy {
	return &InternalStrategy{
		issuer: issuer,
		store:  store,
		logger: logger,
	}
}

// CanHandle reports whether the principal was issued internally.
func (s *InternalStrategy) CanHandle(p *auth.Principal) bool {
	return p != nil && p.Issuer == s.issuer
}

// Resolve reads the user's roles and permissions from local storage.
func (s *InternalStrategy) Resolve(ctx context.Context, p *auth.Principal) (*AuthorizationData, error) {
	if !s.CanHandle(p) {
		return nil, NewError(KindUnauthorized, "internal strategy cannot handle issuer %q", issuerOf(p))
	}
	if p.Subject == "" {
		return nil, NewError(KindValidation, "principal has no user id claim")
	}

	roles, err := s.store.GetUserRoles(ctx, p.Subject)
	if err != nil {
		return nil, fmt.Errorf("failed to load roles for user %s: %w", p.Subject, err)
	}

	permissions, err := s.store.RolePermissions(ctx, roles)
	if err != nil {
		return nil, fmt.Errorf("failed to load permissions for user %s: %w", p.Subject, err)
	}

	tenantID := p.TenantID
	if tenantID == 0 {
		tenantID, err = s.store.GetUserTenant(ctx, p.Subject)
		if err != nil {
			return nil, fmt.Errorf("failed to load tenant for user %s: %w", p.Subject, err)
		}
	}

	s.logger.WithField("user_id", p.Subject).
		WithField("roles", len(roles)).
		Debug("resolved internal authorization")

	return NewAuthorizationData(p.Subject, tenantID, roles, permissions), nil
}

func issuerOf(p *auth.Principal) string {
	if p == nil {
		return ""
	}
	return p.Issuer
}
