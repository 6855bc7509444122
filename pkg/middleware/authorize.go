package middleware

import (
	"net/http"

	"github.com/formloft/formloft/pkg/authz"
)

// RequirePermissions creates middleware enforcing that the request's
// resolved authorization satisfies at least one of the given permissions.
// Ownership-scoped permissions (".owned" suffix) are checked against the
// entity the request path targets.
func RequirePermissions(handler *authz.PermissionHandler, permissions ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			data, _ := authz.FromContext(r.Context())

			switch handler.Handle(r.Context(), data, permissions, r.URL.Path) {
			case authz.Allowed, authz.Deferred:
				next.ServeHTTP(w, r)
			default:
				forbiddenResponse(w, "insufficient permissions")
			}
		})
	}
}

func forbiddenResponse(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
