package authz

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/singleflight"

	"github.com/formloft/formloft/pkg/auth"
	"github.com/formloft/formloft/pkg/observability"
)

const (
	// Key prefixes. Token-scoped entries key on the jti so a revoked or
	// reissued token never sees another token's authorization; user-scoped
	// entries key on (user, tenant) for flows with no token at hand.
	jwtKeyPrefix  = "jwt_auth:"
	userKeyPrefix = "usr_auth:"

	// tagSetKey indexes every live cache key so InvalidateAll can find
	// them without a blocking KEYS scan.
	tagSetKey = "auth_tags"

	cacheName = "authorization"
)

// CacheConfig tunes the authorization cache.
type CacheConfig struct {
	// SafetyBuffer is subtracted from the token lifetime when deriving an
	// entry's TTL, so entries expire strictly before the tokens they
	// describe.
	SafetyBuffer time.Duration

	// FallbackTTL bounds entries whose token expiry is absent, already in
	// the past, or unreasonably far out.
	FallbackTTL time.Duration
}

func (c *CacheConfig) withDefaults() CacheConfig {
	out := CacheConfig{SafetyBuffer: 10 * time.Second, FallbackTTL: 15 * time.Minute}
	if c == nil {
		return out
	}
	if c.SafetyBuffer > 0 {
		out.SafetyBuffer = c.SafetyBuffer
	}
	if c.FallbackTTL > 0 {
		out.FallbackTTL = c.FallbackTTL
	}
	return out
}

// Cache stores resolved AuthorizationData in Redis, keyed per token or per
// user, with single-flight collapsing of concurrent misses so a cache
// stampede produces exactly one resolver call.
type Cache struct {
	rdb     *redis.Client
	cfg     CacheConfig
	group   singleflight.Group
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewCache creates a Cache over the given Redis client. cfg may be nil for
// defaults; metrics may be nil.
func NewCache(rdb *redis.Client, cfg *CacheConfig, logger *observability.Logger, metrics *observability.Metrics) *Cache {
	return &Cache{
		rdb:     rdb,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		metrics: metrics,
	}
}

// ResolveFunc produces fresh AuthorizationData on a cache miss.
type ResolveFunc func(ctx context.Context) (*AuthorizationData, error)

// GetOrCreate returns the cached authorization for the principal's token,
// resolving and caching it on a miss. A resolver failure propagates to the
// caller and is never cached. Tokens without a jti fall back to the
// user-scoped key, so two jti-less tokens for the same user and tenant
// share one entry.
func (c *Cache) GetOrCreate(ctx context.Context, p *auth.Principal, resolve ResolveFunc) (*AuthorizationData, error) {
	if p.TokenID == "" {
		return c.GetOrCreateUser(ctx, p.Subject, p.TenantID, p, resolve)
	}
	return c.getOrCreate(ctx, jwtKeyPrefix+p.TokenID, p, resolve)
}

// GetOrCreateUser is the user-scoped variant for callers that hold a user
// identity but no token, such as background enrichment jobs.
func (c *Cache) GetOrCreateUser(ctx context.Context, userID string, tenantID int64, p *auth.Principal, resolve ResolveFunc) (*AuthorizationData, error) {
	key := fmt.Sprintf("%s%s:%d", userKeyPrefix, userID, tenantID)
	return c.getOrCreate(ctx, key, p, resolve)
}

func (c *Cache) getOrCreate(ctx context.Context, key string, p *auth.Principal, resolve ResolveFunc) (*AuthorizationData, error) {
	if data, ok := c.lookup(ctx, key); ok {
		return data, nil
	}

	// Collapse concurrent misses for the same key into one resolver call.
	result, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Another flight may have populated the entry between our miss
		// and acquiring the flight.
		if data, ok := c.lookup(ctx, key); ok {
			return data, nil
		}

		data, err := c.resolveAndStamp(ctx, p, resolve)
		if err != nil {
			return nil, err
		}
		c.storeEntry(ctx, key, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*AuthorizationData), nil
}

// resolveAndStamp runs the resolver and stamps the cache metadata.
func (c *Cache) resolveAndStamp(ctx context.Context, p *auth.Principal, resolve ResolveFunc) (data *AuthorizationData, err error) {
	// A panicking resolver must not take the request down with it; the
	// caller treats it like any other resolution failure.
	defer func() {
		if rec := observability.MustRecover(recover()); rec != nil {
			data, err = nil, rec
		}
	}()

	data, err = resolve(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	data.CachedAt = now
	data.ExpiresAt = now.Add(c.ttlFor(p, now))
	data.ETag = data.ComputeETag()
	return data, nil
}

// lookup fetches and decodes an entry. Redis errors and corrupt entries
// degrade to a miss so an unhealthy cache never blocks authorization.
func (c *Cache) lookup(ctx context.Context, key string) (*AuthorizationData, bool) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).WithField("key", key).Warn("authorization cache read failed")
		}
		c.miss()
		return nil, false
	}

	var data AuthorizationData
	if err := json.Unmarshal(raw, &data); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("dropping corrupt authorization cache entry")
		c.rdb.Del(ctx, key)
		c.miss()
		return nil, false
	}

	c.hit()
	return &data, true
}

// storeEntry writes the entry and registers its key in the tag set. A
// write failure is logged but not surfaced: the caller already holds valid
// data.
func (c *Cache) storeEntry(ctx context.Context, key string, data *AuthorizationData) {
	ttl := time.Until(data.ExpiresAt)
	if ttl <= 0 {
		return
	}

	raw, err := json.Marshal(data)
	if err != nil {
		c.logger.WithError(err).Warn("failed to encode authorization cache entry")
		return
	}

	pipe := c.rdb.Pipeline()
	pipe.Set(ctx, key, raw, ttl)
	pipe.SAdd(ctx, tagSetKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("authorization cache write failed")
	}
}

// Invalidate removes the cached authorization for one user, covering both
// the user-scoped entry and any token-scoped entries named explicitly.
func (c *Cache) Invalidate(ctx context.Context, userID string, tenantID int64, tokenIDs ...string) error {
	keys := []string{fmt.Sprintf("%s%s:%d", userKeyPrefix, userID, tenantID)}
	for _, jti := range tokenIDs {
		if jti != "" {
			keys = append(keys, jwtKeyPrefix+jti)
		}
	}

	pipe := c.rdb.Pipeline()
	pipe.Del(ctx, keys...)
	pipe.SRem(ctx, tagSetKey, toInterfaces(keys)...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to invalidate authorization cache for user %s: %w", userID, err)
	}

	if c.metrics != nil {
		c.metrics.CacheInvalidatesTotal.WithLabelValues(cacheName, "user").Inc()
	}
	return nil
}

// InvalidateAll flushes every authorization entry. Used when roles,
// permissions, or role mappings change out from under cached data.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	iter := c.rdb.SScan(ctx, tagSetKey, 0, "", 256).Iterator()

	batch := make([]string, 0, 256)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := c.rdb.Del(ctx, batch...).Err(); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 256 {
			if err := flush(); err != nil {
				return fmt.Errorf("failed to flush authorization cache: %w", err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan authorization cache tag set: %w", err)
	}
	if err := flush(); err != nil {
		return fmt.Errorf("failed to flush authorization cache: %w", err)
	}

	if err := c.rdb.Del(ctx, tagSetKey).Err(); err != nil {
		return fmt.Errorf("failed to clear authorization cache tag set: %w", err)
	}

	if c.metrics != nil {
		c.metrics.CacheInvalidatesTotal.WithLabelValues(cacheName, "all").Inc()
	}
	c.logger.Info("authorization cache flushed")
	return nil
}

// ttlFor derives an entry's lifetime from the token expiry, minus the
// safety buffer, clamped to the fallback when the result is unusable.
func (c *Cache) ttlFor(p *auth.Principal, now time.Time) time.Duration {
	if p == nil || p.ExpiresAt.IsZero() {
		return c.cfg.FallbackTTL
	}
	ttl := p.ExpiresAt.Sub(now) - c.cfg.SafetyBuffer
	if ttl <= 0 || ttl > c.cfg.FallbackTTL {
		return c.cfg.FallbackTTL
	}
	return ttl
}

func (c *Cache) hit() {
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues(cacheName).Inc()
	}
}

func (c *Cache) miss() {
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.WithLabelValues(cacheName).Inc()
	}
}

func toInterfaces(keys []string) []interface{} {
	out := make([]interface{}, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return out
}
