// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//   import "github.com/formloft/formloft/pkg/contextkeys"
//   ctx = contextkeys.WithRawToken(ctx, token)
//   raw, ok := contextkeys.RawToken(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// PrincipalKey contains *auth.Principal
	// Set by: middleware.Authenticator after signature verification
	// Required by: claims enrichment, protected API endpoints
	// Type: *auth.Principal
	PrincipalKey Key = "principal"

	// RawTokenKey contains the raw bearer token string
	// Set by: middleware.Authenticator before verification
	// Required by: authz.IntrospectionStrategy (introspection needs the
	// original token, not the verified principal)
	// Type: string
	RawTokenKey Key = "raw_token"

	// AuthorizationKey contains *authz.AuthorizationData
	// Set by: authz.Enricher once per request
	// Required by: authz.PermissionHandler, request logging
	// Type: *authz.AuthorizationData
	AuthorizationKey Key = "authorization_data"

	// RequestIDKey contains request ID string (UUID)
	// Set by: middleware.RequestID
	// Used by: Logger, response headers
	// Type: string
	RequestIDKey Key = "request_id"

	// LoggerKey contains *observability.Logger
	// Set by: middleware.RequestID
	// Used by: Handlers that need structured logging with request context
	// Type: *observability.Logger
	LoggerKey Key = "logger"
)

// WithRawToken stashes the raw bearer token in the context.
func WithRawToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, RawTokenKey, token)
}

// RawToken retrieves the raw bearer token from the context.
func RawToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(RawTokenKey).(string)
	return token, ok && token != ""
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// RequestID retrieves the request ID from the context
func RequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithPrincipal adds a verified principal to the context.
// The value is stored untyped to avoid an import cycle; use
// auth.PrincipalFromContext for the typed accessor.
func WithPrincipal(ctx context.Context, principal interface{}) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}

// WithAuthorization adds resolved authorization data to the context.
// Use authz.FromContext for the typed accessor.
func WithAuthorization(ctx context.Context, data interface{}) context.Context {
	return context.WithValue(ctx, AuthorizationKey, data)
}
