// Package api exposes the HTTP surface: form and submission endpoints
// guarded by permission middleware, plus administrative endpoints for role
// assignment and cache maintenance.
package api
