package authz

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Store handles role and permission persistence for the internal provider.
// Schema (external collaborator owns migrations):
//
//	users(id TEXT PRIMARY KEY, tenant_id INTEGER, ...)
//	roles(id INTEGER PRIMARY KEY, name TEXT UNIQUE)
//	user_roles(user_id TEXT, role_id INTEGER)
//	role_permissions(role_id INTEGER, permission TEXT)
type Store struct {
	db *sql.DB
}

// NewStore creates a new role/permission store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetUserRoles returns the role names assigned to a user. A user with no
// assignments gets an empty slice, not an error.
func (s *Store) GetUserRoles(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT r.name
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.name
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user roles: %w", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, name)
	}

	return roles, rows.Err()
}

// RolePermissions returns the distinct permission strings granted by the
// given roles. An empty role list yields an empty permission set.
func (s *Store) RolePermissions(ctx context.Context, roles []string) ([]string, error) {
	if len(roles) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(roles))
	args := make([]interface{}, len(roles))
	for i, role := range roles {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = role
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT rp.permission
		FROM role_permissions rp
		JOIN roles r ON r.id = rp.role_id
		WHERE r.name IN (%s)
		ORDER BY rp.permission
	`, strings.Join(placeholders, ", "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query role permissions: %w", err)
	}
	defer rows.Close()

	var permissions []string
	for rows.Next() {
		var permission string
		if err := rows.Scan(&permission); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		permissions = append(permissions, permission)
	}

	return permissions, rows.Err()
}

// GetUserTenant returns the tenant a user belongs to, 0 when the user has
// no local record (externally provisioned identities).
func (s *Store) GetUserTenant(ctx context.Context, userID string) (int64, error) {
	var tenantID sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT tenant_id FROM users WHERE id = $1`, userID,
	).Scan(&tenantID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query user tenant: %w", err)
	}
	return tenantID.Int64, nil
}

// AssignRole grants a role to a user by role name. Callers must invalidate
// the authorization cache for the user afterward.
func (s *Store) AssignRole(ctx context.Context, userID, roleName string) error {
	var roleID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM roles WHERE name = $1`, roleName,
	).Scan(&roleID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("unknown role %q", roleName)
	}
	if err != nil {
		return fmt.Errorf("failed to look up role: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role_id, granted_at) VALUES ($1, $2, $3)`,
		userID, roleID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	return nil
}

// RevokeRole removes a role assignment. Callers must invalidate the
// authorization cache for the user afterward.
func (s *Store) RevokeRole(ctx context.Context, userID, roleName string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM user_roles
		WHERE user_id = $1
		  AND role_id IN (SELECT id FROM roles WHERE name = $2)
	`, userID, roleName)
	if err != nil {
		return fmt.Errorf("failed to revoke role: %w", err)
	}
	return nil
}
