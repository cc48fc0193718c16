package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/HatiCode/loadcast/pkg/forecast"
)

// DefaultMaxEntries bounds the in-process cache; there are only 365 distinct horizons.
const DefaultMaxEntries = 512

// MemoryCache implements Cache in process on an expiring LRU.
// It is safe for concurrent use and suits single-instance deployments and tests.
type MemoryCache struct {
	entries *expirable.LRU[string, Entry]
	now     func() time.Time

	mu       sync.Mutex
	inflight map[string]claim
}

type claim struct {
	owner     string
	expiresAt time.Time
}

// NewMemoryCache creates a cache holding at most maxEntries forecasts.
// ttl bounds physical retention; Set's ttl still decides logical expiry.
func NewMemoryCache(maxEntries int, ttl time.Duration) *MemoryCache {
	return NewMemoryCacheWithClock(maxEntries, ttl, time.Now)
}

// NewMemoryCacheWithClock is NewMemoryCache with an injectable clock.
func NewMemoryCacheWithClock(maxEntries int, ttl time.Duration, now func() time.Time) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		entries:  expirable.NewLRU[string, Entry](maxEntries, nil, ttl),
		now:      now,
		inflight: make(map[string]claim),
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]forecast.Point, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	entry, ok := c.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	if entry.Expired(c.now()) {
		c.entries.Remove(key)
		return nil, false, nil
	}

	points := make([]forecast.Point, len(entry.Points))
	copy(points, entry.Points)
	return points, true, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, points []forecast.Point, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.entries.Add(key, newEntry(key, points, ttl, c.now()))
	return nil
}

func (c *MemoryCache) Claim(ctx context.Context, key, owner string, ttl time.Duration) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if cur, ok := c.inflight[key]; ok && now.Before(cur.expiresAt) {
		return cur.owner, cur.owner == owner, nil
	}

	c.inflight[key] = claim{owner: owner, expiresAt: now.Add(ttl)}
	return owner, true, nil
}

func (c *MemoryCache) Release(ctx context.Context, key, owner string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, ok := c.inflight[key]; ok && cur.owner == owner {
		delete(c.inflight, key)
	}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	return c.entries.Len()
}
