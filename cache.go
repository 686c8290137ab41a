package permit

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

// CacheConfig sizes the ristretto decision cache.
type CacheConfig struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	TTL         time.Duration
}

// DefaultCacheConfig suits a few hundred thousand cached decisions.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		NumCounters: 1_000_000,
		MaxCost:     100_000,
		BufferItems: 64,
		TTL:         5 * time.Minute,
	}
}

// CachedPolicyEvaluator memoizes delegation-aware decisions in ristretto.
// Cache keys include the policy checksum, so handing in an edited policy
// naturally misses; delegation grants and revocations do NOT invalidate
// entries, which is why the TTL should stay short.
type CachedPolicyEvaluator struct {
	inner *DelegationAwarePolicyEvaluator
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewCachedPolicyEvaluator wraps the evaluator with a decision cache.
func NewCachedPolicyEvaluator(inner *DelegationAwarePolicyEvaluator, cfg CacheConfig) (*CachedPolicyEvaluator, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("init decision cache: %w", err)
	}
	return &CachedPolicyEvaluator{inner: inner, cache: cache, ttl: cfg.TTL}, nil
}

// Decide returns the cached decision when present, otherwise evaluates and
// caches the result.
func (c *CachedPolicyEvaluator) Decide(ctx context.Context, policy *Policy, subject *Subject, resource *Resource, action Action) *Decision {
	key := c.cacheKey(policy, subject, resource, action)
	if cached, ok := c.cache.Get(key); ok {
		if decision, ok := cached.(*Decision); ok {
			return decision
		}
	}
	decision := c.inner.Decide(ctx, policy, subject, resource, action)
	c.cache.SetWithTTL(key, decision, 1, c.ttl)
	return decision
}

// Evaluate is Decide reduced to its effect.
func (c *CachedPolicyEvaluator) Evaluate(ctx context.Context, policy *Policy, subject *Subject, resource *Resource, action Action) Effect {
	return c.Decide(ctx, policy, subject, resource, action).Effect
}

// Invalidate drops every cached decision; call after revoking a delegation
// when waiting out the TTL is not acceptable.
func (c *CachedPolicyEvaluator) Invalidate() {
	c.cache.Clear()
}

// Close releases the cache and the wrapped evaluator's audit worker.
func (c *CachedPolicyEvaluator) Close() {
	c.cache.Close()
	c.inner.Close()
}

func (c *CachedPolicyEvaluator) cacheKey(policy *Policy, subject *Subject, resource *Resource, action Action) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s", policy.Checksum(), subject.ID, subject.Domain(), resource.ID, action)
}
