// Package cached wraps entity type lookups with an in-memory LRU.
//
// An entity's object_type never changes after creation, so cached answers
// only go stale when the entity is deleted; the TTL bounds that window.
// Missing entities are not cached because they may be created later.
package cached

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/EGF2/file/pkg/lifecycle"
)

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "file_type_cache_hits_total",
		Help: "Entity type lookups answered from the LRU cache",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "file_type_cache_misses_total",
		Help: "Entity type lookups forwarded to the metadata store",
	})
)

// TypeResolver is a caching lifecycle.TypeResolver
type TypeResolver struct {
	next  lifecycle.TypeResolver
	cache *expirable.LRU[string, string]
}

var _ lifecycle.TypeResolver = (*TypeResolver)(nil)

// NewTypeResolver caches up to maxSize lookups of next for ttl each
func NewTypeResolver(next lifecycle.TypeResolver, maxSize int, ttl time.Duration) *TypeResolver {
	return &TypeResolver{
		next:  next,
		cache: expirable.NewLRU[string, string](maxSize, nil, ttl),
	}
}

func (r *TypeResolver) GetObjectType(ctx context.Context, id string) (string, error) {
	if typ, ok := r.cache.Get(id); ok {
		cacheHitsTotal.Inc()
		return typ, nil
	}
	cacheMissesTotal.Inc()

	typ, err := r.next.GetObjectType(ctx, id)
	if err != nil {
		return "", err
	}
	r.cache.Add(id, typ)
	return typ, nil
}

// Forget drops id from the cache
func (r *TypeResolver) Forget(id string) {
	r.cache.Remove(id)
}

// Len returns the number of cached entries
func (r *TypeResolver) Len() int {
	return r.cache.Len()
}
