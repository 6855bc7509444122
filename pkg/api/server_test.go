package api

import (
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	_ "github.com/mattn/go-sqlite3"

	"github.com/formloft/formloft/pkg/auth"
	"github.com/formloft/formloft/pkg/authz"
	"github.com/formloft/formloft/pkg/entities"
	"github.com/formloft/formloft/pkg/middleware"
	"github.com/formloft/formloft/pkg/observability"
)

const testIssuer = "https://auth.formloft.io"

var testSecret = []byte("api-test-secret")

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

// setupStack builds the full request pipeline over sqlite and miniredis:
// authentication, enrichment, permission enforcement, and the handlers.
func setupStack(t *testing.T) http.Handler {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE users (id TEXT PRIMARY KEY, tenant_id INTEGER);
		CREATE TABLE roles (id INTEGER PRIMARY KEY, name TEXT UNIQUE);
		CREATE TABLE user_roles (user_id TEXT, role_id INTEGER, granted_at TIMESTAMP);
		CREATE TABLE role_permissions (role_id INTEGER, permission TEXT);
		CREATE TABLE forms (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			tenant_id INTEGER NOT NULL,
			created_at TIMESTAMP,
			updated_at TIMESTAMP
		);
		CREATE TABLE submissions (
			id INTEGER PRIMARY KEY,
			form_id INTEGER NOT NULL,
			owner_id TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMP,
			updated_at TIMESTAMP
		);

		INSERT INTO users (id, tenant_id) VALUES
			('owner-user', 1), ('other-user', 1), ('admin-user', 1);
		INSERT INTO roles (id, name) VALUES (1, 'contributor'), (2, 'admin');
		INSERT INTO user_roles (user_id, role_id) VALUES
			('owner-user', 1), ('other-user', 1), ('admin-user', 2);
		INSERT INTO role_permissions (role_id, permission) VALUES
			(1, 'forms.view'),
			(1, 'submissions.view.owned'),
			(1, 'submissions.edit.owned'),
			(2, 'admin.cache.flush'),
			(2, 'admin.roles.manage');

		INSERT INTO forms (id, name, owner_id, tenant_id, created_at, updated_at)
			VALUES (7, 'feedback', 'owner-user', 1, '2026-01-01', '2026-01-01');
		INSERT INTO submissions (id, form_id, owner_id, status, created_at, updated_at)
			VALUES (42, 7, 'owner-user', 'open', '2026-01-02', '2026-01-02');
	`)
	if err != nil {
		t.Fatal(err)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	logger := testLogger()
	store := authz.NewStore(db)
	cache := authz.NewCache(rdb, nil, logger, nil)
	enricher := authz.NewEnricher(cache, []authz.Strategy{
		authz.NewInternalStrategy(testIssuer, store, logger),
	}, logger)

	registry := auth.NewProviderRegistry()
	if err := registry.Register(auth.Registration{
		Scheme:  "internal",
		Default: true,
		MatchIssuer: func(iss string) bool {
			return iss == testIssuer
		},
	}); err != nil {
		t.Fatal(err)
	}
	verifier, err := auth.NewHMACVerifier(testIssuer, "", testSecret)
	if err != nil {
		t.Fatal(err)
	}

	authenticator := middleware.NewAuthenticator(
		auth.NewSchemeSelector(registry),
		map[string]auth.Verifier{"internal": verifier},
		enricher, false, logger, nil)

	ownership := authz.NewOwnershipCache(entities.NewSQLStore(db), 64, time.Minute, logger, nil)
	permHandler := authz.NewPermissionHandler(ownership, nil, logger, nil)

	router := mux.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recovery(logger))
	router.Use(authenticator.Handler)

	NewServer(db, cache, store, permHandler, logger).RegisterRoutes(router)
	return router
}

func bearerFor(t *testing.T, subject, jti string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": testIssuer,
		"sub": subject,
		"jti": jti,
		"tid": float64(1),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	raw, err := token.SignedString(testSecret)
	if err != nil {
		t.Fatal(err)
	}
	return "Bearer " + raw
}

func doRequest(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestOwnershipScopedSubmissionEdit(t *testing.T) {
	h := setupStack(t)

	t.Run("owner can edit own submission", func(t *testing.T) {
		w := doRequest(t, h, "PATCH", "/submissions/42",
			bearerFor(t, "owner-user", "jti-own-1"), `{"status":"resolved"}`)
		if w.Code != http.StatusNoContent {
			t.Errorf("status = %d, body = %s", w.Code, w.Body.String())
		}
	})

	t.Run("non-owner with same role is forbidden", func(t *testing.T) {
		w := doRequest(t, h, "PATCH", "/submissions/42",
			bearerFor(t, "other-user", "jti-other-1"), `{"status":"resolved"}`)
		if w.Code != http.StatusForbidden {
			t.Errorf("status = %d, body = %s", w.Code, w.Body.String())
		}
	})

	t.Run("admin bypasses ownership", func(t *testing.T) {
		w := doRequest(t, h, "PATCH", "/submissions/42",
			bearerFor(t, "admin-user", "jti-admin-1"), `{"status":"closed"}`)
		if w.Code != http.StatusNoContent {
			t.Errorf("status = %d, body = %s", w.Code, w.Body.String())
		}
	})

	t.Run("unauthenticated request is rejected", func(t *testing.T) {
		w := doRequest(t, h, "PATCH", "/submissions/42", "", `{"status":"x"}`)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d", w.Code)
		}
	})
}

func TestFormRoutes(t *testing.T) {
	h := setupStack(t)

	t.Run("contributor lists forms", func(t *testing.T) {
		w := doRequest(t, h, "GET", "/forms", bearerFor(t, "owner-user", "jti-list"), "")
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, body = %s", w.Code, w.Body.String())
		}
	})

	t.Run("contributor cannot create forms", func(t *testing.T) {
		w := doRequest(t, h, "POST", "/forms",
			bearerFor(t, "owner-user", "jti-create"), `{"name":"new"}`)
		if w.Code != http.StatusForbidden {
			t.Errorf("status = %d, body = %s", w.Code, w.Body.String())
		}
	})

	t.Run("owner views own submission via owned permission", func(t *testing.T) {
		w := doRequest(t, h, "GET", "/submissions/42",
			bearerFor(t, "owner-user", "jti-view"), "")
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, body = %s", w.Code, w.Body.String())
		}
	})
}

func TestAdminRoutes(t *testing.T) {
	h := setupStack(t)

	t.Run("admin flushes cache", func(t *testing.T) {
		w := doRequest(t, h, "POST", "/admin/cache/flush",
			bearerFor(t, "admin-user", "jti-flush"), "")
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, body = %s", w.Code, w.Body.String())
		}
	})

	t.Run("contributor cannot flush cache", func(t *testing.T) {
		w := doRequest(t, h, "POST", "/admin/cache/flush",
			bearerFor(t, "owner-user", "jti-flush-denied"), "")
		if w.Code != http.StatusForbidden {
			t.Errorf("status = %d", w.Code)
		}
	})

	t.Run("admin assigns role and cache is invalidated", func(t *testing.T) {
		w := doRequest(t, h, "POST", "/users/other-user/roles",
			bearerFor(t, "admin-user", "jti-assign"), `{"role":"admin","tenant_id":1}`)
		if w.Code != http.StatusCreated {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
		}

		// Fresh token picks up the new role.
		w = doRequest(t, h, "POST", "/admin/cache/flush",
			bearerFor(t, "other-user", "jti-after-assign"), "")
		if w.Code != http.StatusOK {
			t.Errorf("newly assigned admin: status = %d, body = %s", w.Code, w.Body.String())
		}
	})
}
