// Package cache provides the forecast result cache: a fingerprint-keyed store
// of computed forecasts with logical expiry, plus a short-lived in-flight
// marker that lets at most one computation run per key.
package cache

import (
	"context"
	"time"

	"github.com/HatiCode/loadcast/pkg/forecast"
)

const (
	// DefaultTTL is how long a cached forecast is served.
	DefaultTTL = time.Hour

	// DefaultClaimTTL bounds how long an in-flight marker outlives a crashed worker.
	DefaultClaimTTL = 5 * time.Minute
)

// Cache stores forecast payloads by cache key.
//
// Get reports found=false for absent and expired entries alike. Claim
// atomically takes the in-flight marker for key on behalf of owner; when
// another owner already holds it, claimed is false and holder names that
// owner. Release drops the marker only if owner still holds it.
type Cache interface {
	Get(ctx context.Context, key string) (points []forecast.Point, found bool, err error)
	Set(ctx context.Context, key string, points []forecast.Point, ttl time.Duration) error
	Claim(ctx context.Context, key, owner string, ttl time.Duration) (holder string, claimed bool, err error)
	Release(ctx context.Context, key, owner string) error
}

// Entry is the stored form of a cached forecast.
type Entry struct {
	Key       string           `json:"key"`
	Points    []forecast.Point `json:"payload"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// Expired reports whether the entry must be treated as a miss at now.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

func newEntry(key string, points []forecast.Point, ttl time.Duration, now time.Time) Entry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	cp := make([]forecast.Point, len(points))
	copy(cp, points)
	return Entry{Key: key, Points: cp, ExpiresAt: now.Add(ttl)}
}
