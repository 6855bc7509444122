package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/formloft/formloft/pkg/observability"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("FORMLOFT_POSTGRES_URL", "postgres://localhost/formloft?sslmode=disable")
	t.Setenv("FORMLOFT_AUTH_INTERNAL_HMAC_SECRET", "test-secret")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Server.Port != "8080" || cfg.Server.HealthPort != "9090" {
		t.Errorf("server ports = %s/%s", cfg.Server.Port, cfg.Server.HealthPort)
	}
	if cfg.Cache.SafetyBuffer != 10*time.Second {
		t.Errorf("SafetyBuffer = %v", cfg.Cache.SafetyBuffer)
	}
	if cfg.Cache.FallbackTTL != 15*time.Minute {
		t.Errorf("FallbackTTL = %v", cfg.Cache.FallbackTTL)
	}
	if cfg.Cache.OwnershipTTL != 5*time.Minute || cfg.Cache.OwnershipSize != 4096 {
		t.Errorf("ownership cache = %v/%d", cfg.Cache.OwnershipTTL, cfg.Cache.OwnershipSize)
	}
	if cfg.Observability.LogLevel != observability.InfoLevel {
		t.Errorf("LogLevel = %v", cfg.Observability.LogLevel)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("FORMLOFT_POSTGRES_URL", "postgres://localhost/formloft")
	t.Setenv("FORMLOFT_AUTH_INTERNAL_HMAC_SECRET", "test-secret")
	t.Setenv("FORMLOFT_PORT", "9999")
	t.Setenv("FORMLOFT_CACHE_FALLBACK_TTL", "30m")
	t.Setenv("FORMLOFT_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Port != "9999" {
		t.Errorf("Port = %s", cfg.Server.Port)
	}
	if cfg.Cache.FallbackTTL != 30*time.Minute {
		t.Errorf("FallbackTTL = %v", cfg.Cache.FallbackTTL)
	}
	if cfg.Observability.LogLevel != observability.DebugLevel {
		t.Errorf("LogLevel = %v", cfg.Observability.LogLevel)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	t.Run("missing postgres URL", func(t *testing.T) {
		t.Setenv("FORMLOFT_AUTH_INTERNAL_HMAC_SECRET", "s")
		t.Setenv("FORMLOFT_POSTGRES_URL", "")
		if _, err := LoadConfig(); err == nil {
			t.Error("expected validation failure")
		}
	})

	t.Run("missing HMAC secret", func(t *testing.T) {
		t.Setenv("FORMLOFT_POSTGRES_URL", "postgres://localhost/formloft")
		t.Setenv("FORMLOFT_AUTH_INTERNAL_HMAC_SECRET", "")
		if _, err := LoadConfig(); err == nil {
			t.Error("expected validation failure")
		}
	})

	t.Run("ports must differ", func(t *testing.T) {
		t.Setenv("FORMLOFT_POSTGRES_URL", "postgres://localhost/formloft")
		t.Setenv("FORMLOFT_AUTH_INTERNAL_HMAC_SECRET", "s")
		t.Setenv("FORMLOFT_PORT", "8080")
		t.Setenv("FORMLOFT_HEALTH_PORT", "8080")
		if _, err := LoadConfig(); err == nil {
			t.Error("expected validation failure")
		}
	})
}

const validProvidersYAML = `
providers:
  - scheme: internal
    type: internal
    issuer: https://auth.formloft.io
    priority: 0
    default: true
  - scheme: keycloak
    type: oidc
    issuer: https://kc.example.com/realms/main
    priority: 10
    introspection:
      endpoint: https://kc.example.com/realms/main/protocol/openid-connect/token/introspect
      client_id: formloft
      client_secret: hunter2
      roles_claim: resource_access.formloft.roles
    role_mappings:
      formloft-admin: admin
      formloft-editor: editor
`

func writeProvidersFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "providers.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadProviders(t *testing.T) {
	providers, err := LoadProviders(writeProvidersFile(t, validProvidersYAML))
	if err != nil {
		t.Fatalf("LoadProviders: %v", err)
	}

	if len(providers.Providers) != 2 {
		t.Fatalf("providers = %d, want 2", len(providers.Providers))
	}
	kc := providers.Providers[1]
	if kc.Scheme != "keycloak" || kc.Type != ProviderTypeOIDC {
		t.Errorf("provider = %+v", kc)
	}
	if kc.Introspection.RolesClaim != "resource_access.formloft.roles" {
		t.Errorf("roles claim = %q", kc.Introspection.RolesClaim)
	}

	mappings := providers.MappingsFor("keycloak")
	if mappings["formloft-admin"] != "admin" {
		t.Errorf("mappings = %v", mappings)
	}
	if got := providers.MappingsFor("internal"); len(got) != 0 {
		t.Errorf("internal mappings = %v, want empty", got)
	}
}

func TestLoadProvidersValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no providers", "providers: []"},
		{
			"no default",
			`
providers:
  - scheme: internal
    type: internal
    issuer: https://a
`,
		},
		{
			"two defaults",
			`
providers:
  - scheme: a
    type: internal
    issuer: https://a
    default: true
  - scheme: b
    type: internal
    issuer: https://b
    default: true
`,
		},
		{
			"duplicate schemes",
			`
providers:
  - scheme: a
    type: internal
    issuer: https://a
    default: true
  - scheme: a
    type: internal
    issuer: https://b
`,
		},
		{
			"oidc without introspection endpoint",
			`
providers:
  - scheme: kc
    type: oidc
    issuer: https://kc
    default: true
    introspection:
      roles_claim: roles
`,
		},
		{
			"unknown provider type",
			`
providers:
  - scheme: x
    type: saml
    issuer: https://x
    default: true
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadProviders(writeProvidersFile(t, tt.yaml)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestWatchProviders(t *testing.T) {
	path := writeProvidersFile(t, validProvidersYAML)
	logger := observability.NewLogger(observability.ErrorLevel, os.Stderr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Providers, 1)
	err := WatchProviders(ctx, path, logger, func(p *Providers) {
		select {
		case reloaded <- p:
		default:
		}
	})
	if err != nil {
		t.Fatalf("WatchProviders: %v", err)
	}

	updated := validProvidersYAML + `      formloft-viewer: viewer
`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-reloaded:
		if p.MappingsFor("keycloak")["formloft-viewer"] != "viewer" {
			t.Errorf("reloaded mappings = %v", p.MappingsFor("keycloak"))
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for provider reload")
	}
}
