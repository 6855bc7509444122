package api

import (
	"net/http"

	"github.com/formloft/formloft/pkg/authz"
	"github.com/formloft/formloft/pkg/httputil"
	"github.com/formloft/formloft/pkg/observability"
)

// AdminHandlers handles role assignment and cache maintenance
type AdminHandlers struct {
	cache  *authz.Cache
	store  *authz.Store
	logger *observability.Logger
}

// NewAdminHandlers creates a new admin handlers instance
func NewAdminHandlers(cache *authz.Cache, store *authz.Store, logger *observability.Logger) *AdminHandlers {
	return &AdminHandlers{cache: cache, store: store, logger: logger}
}

// flushCache handles POST /admin/cache/flush
func (h *AdminHandlers) flushCache(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.InvalidateAll(r.Context()); err != nil {
		h.logger.WithError(err).Error("cache flush failed")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "flushed"})
}

// assignRole handles POST /users/{id}/roles. Assignments take effect on
// the user's next cache miss, so their cached authorization is
// invalidated here.
func (h *AdminHandlers) assignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Role     string `json:"role"`
		TenantID int64  `json:"tenant_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Role == "" {
		httputil.WriteBadRequest(w, "role is required")
		return
	}

	if err := h.store.AssignRole(r.Context(), userID, req.Role); err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("role assignment failed")
		httputil.WriteInternalError(w, err)
		return
	}

	if err := h.cache.Invalidate(r.Context(), userID, req.TenantID); err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Warn("cache invalidation after role assignment failed")
	}

	httputil.WriteJSON(w, http.StatusCreated, map[string]string{
		"user_id": userID,
		"role":    req.Role,
	})
}

// revokeRole handles DELETE /users/{id}/roles/{role}
func (h *AdminHandlers) revokeRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	role, ok := httputil.ParsePathStringOrError(w, r, "role")
	if !ok {
		return
	}

	if err := h.store.RevokeRole(r.Context(), userID, role); err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("role revocation failed")
		httputil.WriteInternalError(w, err)
		return
	}

	tenantID, err := h.store.GetUserTenant(r.Context(), userID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Warn("tenant lookup for cache invalidation failed")
	}
	if err := h.cache.Invalidate(r.Context(), userID, tenantID); err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Warn("cache invalidation after role revocation failed")
	}

	w.WriteHeader(http.StatusNoContent)
}
