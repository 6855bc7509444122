// Package authz resolves and enforces authorization.
//
// Resolution turns an authenticated principal into AuthorizationData
// (roles, permissions, tenant) via a Strategy chosen by token issuer:
// InternalStrategy reads roles straight from the database for first-party
// tokens, IntrospectionStrategy calls an external provider's RFC 7662
// endpoint and maps its role names onto the internal model. Resolved data
// is cached in Redis with a TTL derived from the token's own expiry.
//
// Enforcement is PermissionHandler: admin roles bypass checks, direct
// permissions grant outright, and ".owned"-suffixed permissions grant only
// when the requester owns the specific entity the request path targets.
//
// Every ambiguous state fails closed.
package authz
