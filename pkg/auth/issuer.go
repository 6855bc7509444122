package auth

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// IssuerInspector extracts the issuer claim from a bearer token WITHOUT
// verifying its signature. The result is only safe for routing decisions
// (picking a verification scheme); it must never be used to grant trust.
type IssuerInspector struct{}

// PeekIssuer returns the unverified "iss" claim of a JWT-shaped token, or
// "" when the token is malformed, has no payload segment, or carries no
// issuer. It never returns an error and never panics: failures here occur
// before trust is established and must not break request routing.
func (IssuerInspector) PeekIssuer(rawToken string) string {
	parts := strings.Split(rawToken, ".")
	if len(parts) < 2 {
		return ""
	}

	payload, err := decodeSegment(parts[1])
	if err != nil {
		return ""
	}

	var claims struct {
		Issuer string `json:"iss"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return ""
	}

	return claims.Issuer
}

// decodeSegment base64url-decodes a JWT segment, correcting for stripped
// padding.
func decodeSegment(segment string) ([]byte, error) {
	if rem := len(segment) % 4; rem > 0 {
		segment += strings.Repeat("=", 4-rem)
	}
	return base64.URLEncoding.DecodeString(segment)
}
