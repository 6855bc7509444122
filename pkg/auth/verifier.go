package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// Verifier establishes trust in a raw bearer token under one scheme:
// signature, issuer, audience, and expiry checks. The transport layer
// picks the Verifier via SchemeSelector, one per registered scheme.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (*Principal, error)
}

// HMACVerifier verifies tokens minted by the internal provider with a
// shared HMAC secret.
type HMACVerifier struct {
	issuer   string
	audience string
	secret   []byte
}

// NewHMACVerifier creates a verifier for internally issued tokens.
// audience may be empty to skip the audience check.
func NewHMACVerifier(issuer, audience string, secret []byte) (*HMACVerifier, error) {
	if issuer == "" {
		return nil, fmt.Errorf("internal verifier: issuer is required")
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("internal verifier: signing secret is required")
	}
	return &HMACVerifier{
		issuer:   issuer,
		audience: audience,
		secret:   secret,
	}, nil
}

// Verify checks the token signature and standard claims and returns the
// verified principal.
func (v *HMACVerifier) Verify(_ context.Context, rawToken string) (*Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.Parse(rawToken, func(_ *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type %T", token.Claims)
	}

	return principalFromClaims(claims)
}

// OIDCVerifier verifies tokens from an external OIDC provider against its
// published JWKS. Discovery runs once at construction; key rotation is
// handled by the underlying verifier.
type OIDCVerifier struct {
	issuer   string
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers the provider configuration for issuer and
// builds a verifier. clientID may be empty when the provider does not pin
// an audience.
func NewOIDCVerifier(ctx context.Context, issuer, clientID string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider %q: %w", issuer, err)
	}

	cfg := &oidc.Config{ClientID: clientID}
	if clientID == "" {
		cfg.SkipClientIDCheck = true
	}

	return &OIDCVerifier{
		issuer:   issuer,
		verifier: provider.Verifier(cfg),
	}, nil
}

// Verify checks the token against the provider's JWKS and returns the
// verified principal.
func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*Principal, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	claims := make(map[string]interface{})
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}

	return &Principal{
		Subject:   idToken.Subject,
		Issuer:    idToken.Issuer,
		TokenID:   claimString(claims, "jti"),
		TenantID:  claimInt64(claims, "tid"),
		ExpiresAt: idToken.Expiry,
		Claims:    claims,
	}, nil
}

// principalFromClaims builds a Principal from verified JWT claims.
func principalFromClaims(claims jwt.MapClaims) (*Principal, error) {
	subject, err := claims.GetSubject()
	if err != nil {
		return nil, fmt.Errorf("failed to read subject claim: %w", err)
	}
	issuer, err := claims.GetIssuer()
	if err != nil {
		return nil, fmt.Errorf("failed to read issuer claim: %w", err)
	}

	var expiresAt time.Time
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt = exp.Time
	}

	return &Principal{
		Subject:   subject,
		Issuer:    issuer,
		TokenID:   claimString(claims, "jti"),
		TenantID:  claimInt64(claims, "tid"),
		ExpiresAt: expiresAt,
		Claims:    claims,
	}, nil
}

// claimString reads a string claim, "" when absent or mistyped.
func claimString(claims map[string]interface{}, name string) string {
	s, _ := claims[name].(string)
	return s
}

// claimInt64 reads a numeric claim, 0 when absent or mistyped. JSON
// numbers decode as float64.
func claimInt64(claims map[string]interface{}, name string) int64 {
	switch v := claims[name].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}
