// Package auth routes inbound bearer tokens to the correct verification
// scheme and verifies them into an immutable Principal.
//
// # Trust Boundary
//
// Routing happens BEFORE any signature is checked. IssuerInspector peeks
// at a token's issuer claim without verifying it; the issuer is used only
// to pick a verification scheme, never for a trust decision. Trust is
// established exclusively by a Verifier, which checks the signature,
// issuer, audience, and expiry for its scheme.
//
// # Components
//
//   1. IssuerInspector: unverified issuer peek (routing only)
//   2. ProviderRegistry: registered providers, issuer matching, priorities
//   3. SchemeSelector: raw token -> scheme name (single parse, no I/O)
//   4. Verifier: per-scheme signature verification -> *Principal
//
// # Flow
//
//	raw token -> IssuerInspector.PeekIssuer (unverified)
//	          -> ProviderRegistry.SelectScheme
//	          -> Verifier.Verify (signature checked here)
//	          -> *Principal handed to pkg/authz enrichment
//
// The registry is populated once at startup by composition code and is
// read-only afterward; selection is safe under unlimited concurrent
// readers.
//
// # Related Packages
//
//   - pkg/authz: resolves a Principal into roles/permissions
//   - pkg/middleware: HTTP plumbing that drives this package per request
package auth
