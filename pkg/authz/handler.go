package authz

import (
	"context"

	"github.com/formloft/formloft/pkg/observability"
)

// Decision is the outcome of a permission check.
type Decision int

const (
	// Deferred means the handler has no opinion: nothing was required, so
	// downstream handlers decide.
	Deferred Decision = iota
	// Allowed grants the request.
	Allowed
	// Denied rejects the request.
	Denied
)

func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case Denied:
		return "denied"
	default:
		return "deferred"
	}
}

// PermissionHandler evaluates required permissions against resolved
// authorization data. Evaluation order: admin bypass, then direct
// permission match, then ownership-scoped match against the entity the
// request path targets. Anything unmatched is denied.
type PermissionHandler struct {
	ownership *OwnershipCache

	// collections maps URL collection segments to entity type names,
	// e.g. "submissions" to "submission".
	collections map[string]string

	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewPermissionHandler creates a handler. collections maps path collection
// segments onto entity type names for ownership checks; metrics may be nil.
func NewPermissionHandler(ownership *OwnershipCache, collections map[string]string, logger *observability.Logger, metrics *observability.Metrics) *PermissionHandler {
	if collections == nil {
		collections = map[string]string{
			"forms":       "form",
			"submissions": "submission",
		}
	}
	return &PermissionHandler{
		ownership:   ownership,
		collections: collections,
		logger:      logger,
		metrics:     metrics,
	}
}

// Handle evaluates the required permissions for a request targeting path.
func (h *PermissionHandler) Handle(ctx context.Context, data *AuthorizationData, required []string, path string) Decision {
	decision := h.evaluate(ctx, data, required, path)
	if h.metrics != nil {
		h.metrics.AuthDecisionsTotal.WithLabelValues(decision.String()).Inc()
	}
	return decision
}

func (h *PermissionHandler) evaluate(ctx context.Context, data *AuthorizationData, required []string, path string) Decision {
	// No resolved authorization: routes that require nothing still pass,
	// everything else fails closed.
	if data == nil {
		if len(required) == 0 {
			return Deferred
		}
		return Denied
	}

	if data.IsAdmin || data.IsPlatformAdmin {
		return Allowed
	}

	if len(required) == 0 {
		return Deferred
	}

	// Direct grants win before any ownership work.
	for _, perm := range required {
		if IsOwnedPermission(perm) {
			continue
		}
		if data.HasPermission(perm) {
			return Allowed
		}
	}

	if d := h.evaluateOwned(ctx, data, required, path); d != Deferred {
		return d
	}

	h.logger.WithField("user_id", data.UserID).
		WithField("path", path).
		Debug("permission check denied")
	return Denied
}

// evaluateOwned checks ownership-scoped requirements against the entity
// the path targets. A held owned permission only applies when its
// category matches the target collection and the user owns the entity.
func (h *PermissionHandler) evaluateOwned(ctx context.Context, data *AuthorizationData, required []string, path string) Decision {
	ref, ok := ParseEntityRef(path)
	if !ok {
		return Deferred
	}

	typeName, ok := h.collections[ref.Collection]
	if !ok {
		return Deferred
	}

	for _, perm := range required {
		if !IsOwnedPermission(perm) {
			continue
		}
		if !data.HasPermission(perm) {
			continue
		}
		if PermissionCategory(perm) != ref.Collection {
			continue
		}
		if h.ownership.IsOwner(ctx, data.UserID, typeName, ref.ID) {
			return Allowed
		}
	}
	return Deferred
}
