package authz

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/formloft/formloft/pkg/auth"
	"github.com/formloft/formloft/pkg/contextkeys"
	"github.com/formloft/formloft/pkg/observability"
)

// RoleMapper translates external role names into internal role names.
// Unknown external roles are dropped, not errors; a lookup that cannot be
// performed at all is an error (KindMapping at the strategy level).
type RoleMapper interface {
	Map(ctx context.Context, externalRoles []string) ([]string, error)
}

// StaticRoleMapper is a table-driven RoleMapper. The table is hot-swappable
// so configuration reloads take effect without restarting.
type StaticRoleMapper struct {
	mu      sync.RWMutex
	mapping map[string]string
}

// NewStaticRoleMapper creates a mapper over the given table.
func NewStaticRoleMapper(mapping map[string]string) *StaticRoleMapper {
	if mapping == nil {
		mapping = make(map[string]string)
	}
	return &StaticRoleMapper{mapping: mapping}
}

// Map translates external roles, silently dropping unmapped names.
func (m *StaticRoleMapper) Map(_ context.Context, externalRoles []string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var internal []string
	for _, ext := range externalRoles {
		if mapped, ok := m.mapping[ext]; ok {
			internal = append(internal, mapped)
		}
	}
	return internal, nil
}

// Reload replaces the mapping table. Callers should invalidate the
// authorization cache afterward so the new table takes effect.
func (m *StaticRoleMapper) Reload(mapping map[string]string) {
	if mapping == nil {
		mapping = make(map[string]string)
	}
	m.mu.Lock()
	m.mapping = mapping
	m.mu.Unlock()
}

// IntrospectionConfig configures an IntrospectionStrategy.
type IntrospectionConfig struct {
	// Issuer is the external provider's verified issuer URL.
	Issuer string

	// Endpoint is the RFC 7662 token introspection endpoint.
	Endpoint string

	// ClientID and ClientSecret authenticate the introspection call via
	// HTTP basic auth.
	ClientID     string
	ClientSecret string

	// TokenURL, when set, switches introspection authentication to a
	// client-credentials bearer token instead of basic auth (providers
	// that protect their introspection endpoint this way).
	TokenURL string

	// RolesClaim is the dot path to the external roles claim in the
	// introspection response, e.g. "resource_access.formloft.roles".
	RolesClaim string

	// TenantClaim is the claim carrying the tenant id, "tid" by default.
	TenantClaim string

	// Timeout bounds the introspection round trip.
	Timeout time.Duration
}

// IntrospectionStrategy resolves authorization for principals issued by an
// external OIDC-style provider. It re-extracts the raw bearer token from
// the request context (introspection needs the original token, not the
// verified principal), calls the provider's introspection endpoint, pulls
// a provider-specific roles claim, and maps the role names onto the
// internal role model.
type IntrospectionStrategy struct {
	cfg     IntrospectionConfig
	mapper  RoleMapper
	store   *Store
	client  *http.Client
	tokens  oauth2.TokenSource
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewIntrospectionStrategy creates the strategy. store expands mapped
// internal roles into permissions; metrics may be nil.
func NewIntrospectionStrategy(
	cfg IntrospectionConfig,
	mapper RoleMapper,
	store *Store,
	logger *observability.Logger,
	metrics *observability.Metrics,
) (*IntrospectionStrategy, error) {
	if cfg.Issuer == "" {
		return nil, NewError(KindConfiguration, "introspection strategy requires an issuer")
	}
	if cfg.Endpoint == "" {
		return nil, NewError(KindConfiguration, "introspection strategy requires an endpoint")
	}
	if cfg.RolesClaim == "" {
		return nil, NewError(KindConfiguration, "introspection strategy requires a roles claim path")
	}
	if cfg.TenantClaim == "" {
		cfg.TenantClaim = "tid"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	s := &IntrospectionStrategy{
		cfg:     cfg,
		mapper:  mapper,
		store:   store,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
		metrics: metrics,
	}

	if cfg.TokenURL != "" {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		s.tokens = cc.TokenSource(context.Background())
	}

	return s, nil
}

// CanHandle reports whether the principal was issued by this provider.
func (s *IntrospectionStrategy) CanHandle(p *auth.Principal) bool {
	return p != nil && p.Issuer == s.cfg.Issuer
}

// Resolve introspects the raw token and maps external roles onto the
// internal role model. An empty role list after mapping is a valid
// empty-permission result, not a failure.
func (s *IntrospectionStrategy) Resolve(ctx context.Context, p *auth.Principal) (*AuthorizationData, error) {
	if !s.CanHandle(p) {
		return nil, NewError(KindUnauthorized, "introspection strategy cannot handle issuer %q", issuerOf(p))
	}
	if p.Subject == "" {
		return nil, NewError(KindValidation, "principal has no user id claim")
	}

	rawToken, ok := contextkeys.RawToken(ctx)
	if !ok {
		return nil, NewError(KindValidation, "no bearer token present in request context")
	}

	body, err := s.introspect(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	if active, _ := body["active"].(bool); !active {
		return nil, NewError(KindUnauthorized, "token reported inactive by issuer %q", s.cfg.Issuer)
	}

	externalRoles, err := s.extractRoles(body)
	if err != nil {
		return nil, err
	}

	internalRoles, err := s.mapper.Map(ctx, externalRoles)
	if err != nil {
		return nil, WrapError(KindMapping, err, "role mapping failed for issuer %q", s.cfg.Issuer)
	}

	permissions, err := s.store.RolePermissions(ctx, internalRoles)
	if err != nil {
		return nil, fmt.Errorf("failed to expand permissions for mapped roles: %w", err)
	}

	tenantID := p.TenantID
	if tenantID == 0 {
		tenantID = claimInt64(body, s.cfg.TenantClaim)
	}

	s.logger.WithField("user_id", p.Subject).
		WithField("external_roles", len(externalRoles)).
		WithField("mapped_roles", len(internalRoles)).
		Debug("resolved external authorization")

	return NewAuthorizationData(p.Subject, tenantID, internalRoles, permissions), nil
}

// introspect performs the RFC 7662 call and decodes the response.
func (s *IntrospectionStrategy) introspect(ctx context.Context, rawToken string) (map[string]interface{}, error) {
	form := url.Values{}
	form.Set("token", rawToken)
	form.Set("token_type_hint", "access_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, WrapError(KindExternalService, err, "failed to build introspection request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	if s.tokens != nil {
		token, err := s.tokens.Token()
		if err != nil {
			return nil, WrapError(KindExternalService, err, "failed to obtain introspection credentials")
		}
		token.SetAuthHeader(req)
	} else if s.cfg.ClientID != "" {
		req.SetBasicAuth(s.cfg.ClientID, s.cfg.ClientSecret)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		if s.metrics != nil {
			s.metrics.ObserveIntrospection(0, time.Since(start))
		}
		return nil, WrapError(KindExternalService, err, "introspection call to %q failed", s.cfg.Endpoint)
	}
	defer resp.Body.Close()

	if s.metrics != nil {
		s.metrics.ObserveIntrospection(resp.StatusCode, time.Since(start))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, NewError(KindExternalService, "introspection returned status %d", resp.StatusCode)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, WrapError(KindExternalService, err, "failed to decode introspection response")
	}

	return body, nil
}

// extractRoles walks the configured dot path into the introspection
// response. An absent or mistyped roles claim is an explicit failure.
func (s *IntrospectionStrategy) extractRoles(body map[string]interface{}) ([]string, error) {
	value := lookupClaimPath(body, strings.Split(s.cfg.RolesClaim, "."))
	if value == nil {
		return nil, NewError(KindValidation, "roles claim %q absent from introspection response", s.cfg.RolesClaim)
	}

	raw, ok := value.([]interface{})
	if !ok {
		return nil, NewError(KindValidation, "roles claim %q is not a list", s.cfg.RolesClaim)
	}

	roles := make([]string, 0, len(raw))
	for _, v := range raw {
		if name, ok := v.(string); ok && name != "" {
			roles = append(roles, name)
		}
	}
	return roles, nil
}

// lookupClaimPath descends nested JSON objects along the path.
func lookupClaimPath(body map[string]interface{}, path []string) interface{} {
	var current interface{} = body
	for _, segment := range path {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current, ok = obj[segment]
		if !ok {
			return nil
		}
	}
	return current
}

// claimInt64 reads a numeric claim, 0 when absent. JSON numbers decode as
// float64.
func claimInt64(body map[string]interface{}, name string) int64 {
	if f, ok := body[name].(float64); ok {
		return int64(f)
	}
	return 0
}
