package authz

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/formloft/formloft/pkg/entities"
	"github.com/formloft/formloft/pkg/observability"
)

const ownershipCacheName = "ownership"

// OwnershipCache answers "does this user own that entity" with a small
// in-process TTL cache in front of the entity store. Ownership changes
// rarely and the TTL is short, so a few minutes of staleness is an
// acceptable trade for keeping per-request database lookups off the hot
// path.
type OwnershipCache struct {
	store   entities.Store
	cache   *expirable.LRU[string, bool]
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewOwnershipCache creates the cache. size bounds the number of cached
// (user, entity) pairs; ttl bounds their staleness.
func NewOwnershipCache(store entities.Store, size int, ttl time.Duration, logger *observability.Logger, metrics *observability.Metrics) *OwnershipCache {
	if size <= 0 {
		size = 4096
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &OwnershipCache{
		store:   store,
		cache:   expirable.NewLRU[string, bool](size, nil, ttl),
		logger:  logger,
		metrics: metrics,
	}
}

// IsOwner reports whether the user owns the entity. Lookup failures are
// treated as not-owned and are not cached, so a transient store error
// never denies a user longer than the request it happened on.
func (o *OwnershipCache) IsOwner(ctx context.Context, userID, typeName string, id int64) bool {
	key := fmt.Sprintf("%s:%s:%d", userID, typeName, id)

	if owned, ok := o.cache.Get(key); ok {
		if o.metrics != nil {
			o.metrics.CacheHitsTotal.WithLabelValues(ownershipCacheName).Inc()
		}
		return owned
	}
	if o.metrics != nil {
		o.metrics.CacheMissesTotal.WithLabelValues(ownershipCacheName).Inc()
	}

	entity, err := o.store.Get(ctx, typeName, id)
	if err != nil {
		o.logger.WithError(err).
			WithField("entity_type", typeName).
			WithField("entity_id", id).
			Warn("ownership lookup failed, denying")
		return false
	}

	owned := entity.OwnedBy(userID)
	o.cache.Add(key, owned)
	return owned
}
