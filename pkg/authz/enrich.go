package authz

import (
	"context"

	"github.com/formloft/formloft/pkg/auth"
	"github.com/formloft/formloft/pkg/observability"
)

// Enricher attaches resolved AuthorizationData to request contexts. It is
// the seam between authentication (who is this) and authorization (what
// may they do): the middleware verifies the principal, the enricher picks
// the strategy for its issuer and runs it through the cache.
type Enricher struct {
	cache      *Cache
	strategies []Strategy
	logger     *observability.Logger
}

// NewEnricher creates an Enricher. Strategies are consulted in order;
// the first one whose CanHandle accepts the principal wins.
func NewEnricher(cache *Cache, strategies []Strategy, logger *observability.Logger) *Enricher {
	return &Enricher{
		cache:      cache,
		strategies: strategies,
		logger:     logger,
	}
}

// Enrich resolves authorization for the principal and returns a context
// carrying it. An unauthenticated principal passes through untouched so
// optional-auth routes keep working.
func (e *Enricher) Enrich(ctx context.Context, p *auth.Principal) (context.Context, error) {
	if p == nil || !p.Authenticated() {
		return ctx, nil
	}

	data, err := e.cache.GetOrCreate(ctx, p, func(ctx context.Context) (*AuthorizationData, error) {
		return e.resolve(ctx, p)
	})
	if err != nil {
		return ctx, err
	}

	return WithAuthorization(ctx, data), nil
}

func (e *Enricher) resolve(ctx context.Context, p *auth.Principal) (*AuthorizationData, error) {
	for _, s := range e.strategies {
		if s.CanHandle(p) {
			return s.Resolve(ctx, p)
		}
	}
	e.logger.WithField("issuer", p.Issuer).Warn("no authorization provider registered for issuer")
	return nil, NewError(KindUnauthorized, "no authorization provider for issuer %q", p.Issuer)
}
