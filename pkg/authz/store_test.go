package authz

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE users (
			id TEXT PRIMARY KEY,
			tenant_id INTEGER
		);

		CREATE TABLE roles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE
		);

		CREATE TABLE user_roles (
			user_id TEXT NOT NULL,
			role_id INTEGER NOT NULL,
			granted_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE role_permissions (
			role_id INTEGER NOT NULL,
			permission TEXT NOT NULL
		);
	`)
	if err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	return db
}

func seedRoles(t *testing.T, db *sql.DB) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO users (id, tenant_id) VALUES ('user-1', 3), ('user-2', NULL);
		INSERT INTO roles (id, name) VALUES (1, 'editor'), (2, 'viewer'), (3, 'admin');
		INSERT INTO user_roles (user_id, role_id) VALUES ('user-1', 1), ('user-1', 2);
		INSERT INTO role_permissions (role_id, permission) VALUES
			(1, 'forms.edit.owned'),
			(1, 'submissions.edit.owned'),
			(2, 'forms.view'),
			(2, 'forms.view');
	`)
	if err != nil {
		t.Fatalf("Failed to seed data: %v", err)
	}
}

func TestStoreGetUserRoles(t *testing.T) {
	db := setupTestDB(t)
	seedRoles(t, db)
	store := NewStore(db)
	ctx := context.Background()

	roles, err := store.GetUserRoles(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetUserRoles: %v", err)
	}
	if len(roles) != 2 || roles[0] != "editor" || roles[1] != "viewer" {
		t.Errorf("roles = %v", roles)
	}

	none, err := store.GetUserRoles(ctx, "nobody")
	if err != nil {
		t.Fatalf("GetUserRoles(nobody): %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no roles, got %v", none)
	}
}

func TestStoreRolePermissions(t *testing.T) {
	db := setupTestDB(t)
	seedRoles(t, db)
	store := NewStore(db)
	ctx := context.Background()

	perms, err := store.RolePermissions(ctx, []string{"editor", "viewer"})
	if err != nil {
		t.Fatalf("RolePermissions: %v", err)
	}
	want := []string{"forms.edit.owned", "forms.view", "submissions.edit.owned"}
	if len(perms) != len(want) {
		t.Fatalf("perms = %v, want %v", perms, want)
	}
	for i := range want {
		if perms[i] != want[i] {
			t.Errorf("perms[%d] = %q, want %q", i, perms[i], want[i])
		}
	}

	empty, err := store.RolePermissions(ctx, nil)
	if err != nil {
		t.Fatalf("RolePermissions(nil): %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected empty permission set, got %v", empty)
	}
}

func TestStoreGetUserTenant(t *testing.T) {
	db := setupTestDB(t)
	seedRoles(t, db)
	store := NewStore(db)
	ctx := context.Background()

	tenant, err := store.GetUserTenant(ctx, "user-1")
	if err != nil || tenant != 3 {
		t.Errorf("GetUserTenant(user-1) = %d, %v", tenant, err)
	}

	// NULL tenant reads as zero.
	tenant, err = store.GetUserTenant(ctx, "user-2")
	if err != nil || tenant != 0 {
		t.Errorf("GetUserTenant(user-2) = %d, %v", tenant, err)
	}

	// Unknown users are externally provisioned, not errors.
	tenant, err = store.GetUserTenant(ctx, "stranger")
	if err != nil || tenant != 0 {
		t.Errorf("GetUserTenant(stranger) = %d, %v", tenant, err)
	}
}

func TestStoreAssignAndRevokeRole(t *testing.T) {
	db := setupTestDB(t)
	seedRoles(t, db)
	store := NewStore(db)
	ctx := context.Background()

	if err := store.AssignRole(ctx, "user-2", "admin"); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}
	roles, err := store.GetUserRoles(ctx, "user-2")
	if err != nil || len(roles) != 1 || roles[0] != "admin" {
		t.Fatalf("after assign: roles=%v err=%v", roles, err)
	}

	if err := store.AssignRole(ctx, "user-2", "no-such-role"); err == nil {
		t.Error("expected error assigning unknown role")
	}

	if err := store.RevokeRole(ctx, "user-2", "admin"); err != nil {
		t.Fatalf("RevokeRole: %v", err)
	}
	roles, err = store.GetUserRoles(ctx, "user-2")
	if err != nil || len(roles) != 0 {
		t.Fatalf("after revoke: roles=%v err=%v", roles, err)
	}
}
