// Package middleware provides the HTTP request pipeline: request id and
// panic recovery, bearer token authentication with per-issuer scheme
// selection, and permission enforcement.
package middleware
