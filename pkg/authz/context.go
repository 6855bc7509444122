package authz

import (
	"context"

	"github.com/formloft/formloft/pkg/contextkeys"
)

// WithAuthorization attaches resolved authorization data to the context.
// Called exactly once per request by the Enricher.
func WithAuthorization(ctx context.Context, data *AuthorizationData) context.Context {
	return contextkeys.WithAuthorization(ctx, data)
}

// FromContext retrieves the enriched authorization data, if any.
func FromContext(ctx context.Context) (*AuthorizationData, bool) {
	data, ok := ctx.Value(contextkeys.AuthorizationKey).(*AuthorizationData)
	return data, ok && data != nil
}
