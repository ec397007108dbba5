package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"estatehub/pkg/domain"
)

const (
	// DefaultTierCacheEntries bounds the number of cached accounts.
	DefaultTierCacheEntries = 1024
	// DefaultTierCacheTTL is how long a looked-up tier is served from cache.
	DefaultTierCacheTTL = 30 * time.Second
)

// TierCache serves "current tier" lookups for one named capability scope.
// Entries expire on read; there are no background timers.
type TierCache struct {
	scope   string
	lookup  domain.TierLookup
	ttl     time.Duration
	now     func() time.Time
	mu      sync.Mutex
	entries *lru.Cache[string, tierEntry]
}

type tierEntry struct {
	tier      string
	found     bool
	expiresAt time.Time
}

// TierCacheOption customizes a TierCache.
type TierCacheOption func(*TierCache)

// WithTierClock overrides the clock used for expiry checks.
func WithTierClock(now func() time.Time) TierCacheOption {
	return func(c *TierCache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewTierCache caches lookups from lookup under scope for ttl. Non-positive
// sizes or TTLs fall back to the defaults.
func NewTierCache(scope string, lookup domain.TierLookup, maxEntries int, ttl time.Duration, opts ...TierCacheOption) (*TierCache, error) {
	if lookup == nil {
		return nil, fmt.Errorf("tier cache %q: nil lookup", scope)
	}
	if maxEntries <= 0 {
		maxEntries = DefaultTierCacheEntries
	}
	if ttl <= 0 {
		ttl = DefaultTierCacheTTL
	}
	entries, err := lru.New[string, tierEntry](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("tier cache %q: %w", scope, err)
	}
	c := &TierCache{scope: scope, lookup: lookup, ttl: ttl, now: time.Now, entries: entries}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Scope returns the capability scope the cache was created for.
func (c *TierCache) Scope() string { return c.scope }

// Tier returns the current tier of the account with email. found is false
// for unknown accounts; known accounts without a tier return "" and true.
// Misses, including unknown accounts, are cached as well.
func (c *TierCache) Tier(ctx context.Context, email string) (tier string, found bool, err error) {
	now := c.now()
	c.mu.Lock()
	entry, ok := c.entries.Get(email)
	if ok && now.Before(entry.expiresAt) {
		c.mu.Unlock()
		return entry.tier, entry.found, nil
	}
	if ok {
		c.entries.Remove(email)
	}
	c.mu.Unlock()

	tier, found, err = c.lookup.LookupTier(ctx, email)
	if err != nil {
		return "", false, fmt.Errorf("tier lookup %s: %w", c.scope, err)
	}
	c.mu.Lock()
	c.entries.Add(email, tierEntry{tier: tier, found: found, expiresAt: now.Add(c.ttl)})
	c.mu.Unlock()
	return tier, found, nil
}

// Invalidate drops the cached entry for email.
func (c *TierCache) Invalidate(email string) {
	c.mu.Lock()
	c.entries.Remove(email)
	c.mu.Unlock()
}

// Purge drops every entry, e.g. after a reseed.
func (c *TierCache) Purge() {
	c.mu.Lock()
	c.entries.Purge()
	c.mu.Unlock()
}

// Len returns the number of cached entries, expired ones included.
func (c *TierCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}
