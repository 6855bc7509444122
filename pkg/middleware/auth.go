package middleware

import (
	"net/http"
	"strings"

	"github.com/formloft/formloft/pkg/auth"
	"github.com/formloft/formloft/pkg/authz"
	"github.com/formloft/formloft/pkg/contextkeys"
	"github.com/formloft/formloft/pkg/observability"
)

// Authenticator authenticates bearer tokens. It routes each token to a
// verification scheme by peeking the unverified issuer claim, verifies the
// token with that scheme's verifier, then runs authorization enrichment so
// downstream handlers see both the principal and its resolved permissions.
type Authenticator struct {
	selector  *auth.SchemeSelector
	verifiers map[string]auth.Verifier
	enricher  *authz.Enricher
	optional  bool // If true, allow requests without auth
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// NewAuthenticator creates an Authenticator. verifiers is keyed by scheme
// name and must cover every scheme the selector can return; metrics may be
// nil.
func NewAuthenticator(
	selector *auth.SchemeSelector,
	verifiers map[string]auth.Verifier,
	enricher *authz.Enricher,
	optional bool,
	logger *observability.Logger,
	metrics *observability.Metrics,
) *Authenticator {
	return &Authenticator{
		selector:  selector,
		verifiers: verifiers,
		enricher:  enricher,
		optional:  optional,
		logger:    logger,
		metrics:   metrics,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Extract token from Authorization header
		// Format: "Bearer <token>"
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				// Continue without auth
				next.ServeHTTP(w, r)
				return
			}
			m.unauthorized(w, "none", "missing_header", "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			m.unauthorized(w, "none", "malformed_header", "invalid authorization header format")
			return
		}
		rawToken := parts[1]

		scheme := m.selector.SelectScheme(rawToken)
		if m.metrics != nil {
			m.metrics.SchemeSelectionsTotal.WithLabelValues(scheme).Inc()
		}

		verifier, ok := m.verifiers[scheme]
		if !ok {
			m.logger.WithField("scheme", scheme).Error("selected scheme has no verifier")
			m.unauthorized(w, scheme, "no_verifier", "no verification scheme available")
			return
		}

		principal, err := verifier.Verify(r.Context(), rawToken)
		if err != nil {
			m.logger.WithError(err).WithField("scheme", scheme).Debug("token verification failed")
			m.unauthorized(w, scheme, "verification", "invalid or expired token")
			return
		}

		// The raw token stays in context for strategies that need to
		// forward it, e.g. introspection.
		ctx := contextkeys.WithRawToken(r.Context(), rawToken)
		ctx = auth.WithPrincipal(ctx, principal)

		ctx, err = m.enricher.Enrich(ctx, principal)
		if err != nil {
			m.logger.WithError(err).
				WithField("scheme", scheme).
				WithField("subject", principal.Subject).
				Warn("authorization enrichment failed")
			m.unauthorized(w, scheme, "enrichment", "authorization could not be resolved")
			return
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Authenticator) unauthorized(w http.ResponseWriter, scheme, reason, message string) {
	if m.metrics != nil {
		m.metrics.AuthFailuresTotal.WithLabelValues(scheme, reason).Inc()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
