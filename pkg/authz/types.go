package authz

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// Role names with special meaning to the authorization engine.
const (
	RoleAdmin         = "admin"
	RolePlatformAdmin = "platform_admin"
)

// OwnedSuffix marks a permission as ownership-scoped: granted only when
// the requester owns the specific target entity.
const OwnedSuffix = ".owned"

// AuthorizationData is the resolved, cached bundle of roles, permissions,
// and tenant for a principal. It is produced once per cache window by a
// Strategy and treated as immutable afterward.
type AuthorizationData struct {
	UserID          string    `json:"user_id"`
	TenantID        int64     `json:"tenant_id"`
	Roles           []string  `json:"roles"`
	Permissions     []string  `json:"permissions"`
	IsAdmin         bool      `json:"is_admin"`
	IsPlatformAdmin bool      `json:"is_platform_admin"`
	CachedAt        time.Time `json:"cached_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	ETag            string    `json:"etag"`
}

// NewAuthorizationData builds a normalized bundle: roles and permissions
// are deduplicated and sorted so identical authorization states are
// byte-identical, and admin flags are derived from role membership.
// CachedAt/ExpiresAt/ETag are stamped by the cache, not here.
func NewAuthorizationData(userID string, tenantID int64, roles, permissions []string) *AuthorizationData {
	roles = normalizeSet(roles)
	permissions = normalizeSet(permissions)

	data := &AuthorizationData{
		UserID:      userID,
		TenantID:    tenantID,
		Roles:       roles,
		Permissions: permissions,
	}
	for _, role := range roles {
		switch role {
		case RoleAdmin:
			data.IsAdmin = true
		case RolePlatformAdmin:
			data.IsPlatformAdmin = true
		}
	}
	return data
}

// HasRole reports role membership.
func (d *AuthorizationData) HasRole(role string) bool {
	for _, r := range d.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasPermission reports whether the permission is in the effective set.
func (d *AuthorizationData) HasPermission(permission string) bool {
	for _, p := range d.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// ComputeETag derives a short integrity tag over the authorization state.
// It is a deterministic function of (UserID, TenantID, sorted Roles,
// sorted Permissions): identical states produce identical tags.
func (d *AuthorizationData) ComputeETag() string {
	h := sha256.New()
	io.WriteString(h, d.UserID)
	fmt.Fprintf(h, "|%d|", d.TenantID)
	io.WriteString(h, strings.Join(d.Roles, ","))
	io.WriteString(h, "|")
	io.WriteString(h, strings.Join(d.Permissions, ","))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// IsOwnedPermission reports whether a permission string carries the
// ownership scope suffix.
func IsOwnedPermission(permission string) bool {
	return strings.HasSuffix(permission, OwnedSuffix)
}

// PermissionCategory returns the leading namespace segment of a
// permission string, e.g. "forms" for "forms.edit.owned".
func PermissionCategory(permission string) string {
	if i := strings.IndexByte(permission, '.'); i > 0 {
		return permission[:i]
	}
	return permission
}

// normalizeSet sorts and deduplicates, dropping empties. Always returns a
// non-nil slice so JSON round-trips are stable.
func normalizeSet(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
