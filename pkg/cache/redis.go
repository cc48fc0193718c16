package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HatiCode/loadcast/pkg/forecast"
)

const (
	entryPrefix    = "loadcast:forecast:"
	inflightPrefix = "loadcast:inflight:"
)

// releaseScript deletes the in-flight marker only when it still belongs to the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisCache implements Cache on Redis so that several forecaster
// instances share results and in-flight markers.
type RedisCache struct {
	client *redis.Client
	now    func() time.Time
	mu     sync.RWMutex
}

// NewRedisCache connects to Redis and pings it.
//
// Parameters:
//   - addr: Redis server address (e.g., "localhost:6379")
//   - password: Redis password (empty string for no auth)
//   - db: Redis database number (typically 0)
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	r, err := NewRedisCacheLazy(addr, password, db)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.Ping(ctx); err != nil {
		r.client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return r, nil
}

// NewRedisCacheLazy is NewRedisCache without the initial ping; connections
// are dialed on first use.
func NewRedisCacheLazy(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if db < 0 {
		return nil, errors.New("redis database number must be >= 0")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	return &RedisCache{client: client, now: time.Now}, nil
}

// Get returns the cached forecast for key. Entries past their expires_at are
// misses even if Redis has not evicted them yet.
func (r *RedisCache) Get(ctx context.Context, key string) ([]forecast.Point, bool, error) {
	data, err := r.client.Get(ctx, entryPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get forecast from redis: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}
	if entry.Expired(r.now()) {
		return nil, false, nil
	}
	return entry.Points, true, nil
}

// Set stores points under key, replacing any previous entry.
func (r *RedisCache) Set(ctx context.Context, key string, points []forecast.Point, ttl time.Duration) error {
	entry := newEntry(key, points, ttl, r.now())

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	if err := r.client.Set(ctx, entryPrefix+key, data, entry.ExpiresAt.Sub(r.now())).Err(); err != nil {
		return fmt.Errorf("failed to store forecast in redis: %w", err)
	}
	return nil
}

// Claim takes the in-flight marker with SET NX PX.
func (r *RedisCache) Claim(ctx context.Context, key, owner string, ttl time.Duration) (string, bool, error) {
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	markerKey := inflightPrefix + key

	// The holder can expire between SETNX and GET; one retry covers that window.
	for range 2 {
		ok, err := r.client.SetNX(ctx, markerKey, owner, ttl).Result()
		if err != nil {
			return "", false, fmt.Errorf("failed to claim in-flight marker: %w", err)
		}
		if ok {
			return owner, true, nil
		}

		holder, err := r.client.Get(ctx, markerKey).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("failed to read in-flight marker: %w", err)
		}
		return holder, false, nil
	}
	return "", false, errors.New("in-flight marker contended")
}

// Release drops the in-flight marker if owner still holds it.
func (r *RedisCache) Release(ctx context.Context, key, owner string) error {
	if err := releaseScript.Run(ctx, r.client, []string{inflightPrefix + key}, owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release in-flight marker: %w", err)
	}
	return nil
}

// Ping checks the Redis connection health.
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis client connection.
// It is safe to call multiple times (idempotent).
func (r *RedisCache) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}

	err := r.client.Close()
	r.client = nil
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}
