package auth

// SchemeSelector answers "which verification scheme should handle this raw
// token?" for the transport layer. It composes the unverified issuer peek
// with registry lookup: a single parse and a map read, no I/O. It runs on
// every request carrying a bearer token, before signature verification.
type SchemeSelector struct {
	inspector IssuerInspector
	registry  *ProviderRegistry
}

// NewSchemeSelector creates a selector over the given registry.
func NewSchemeSelector(registry *ProviderRegistry) *SchemeSelector {
	return &SchemeSelector{registry: registry}
}

// SelectScheme returns the scheme name for a raw bearer token. The caller
// supplies the token without the "Bearer " prefix. Malformed tokens route
// to the default scheme, whose verifier will reject them properly.
func (s *SchemeSelector) SelectScheme(rawToken string) string {
	issuer := s.inspector.PeekIssuer(rawToken)
	return s.registry.SelectScheme(issuer)
}
