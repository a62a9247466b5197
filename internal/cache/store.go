// Package cache holds the TTL store and the in-flight request coalescer.
package cache

import (
	"context"
	"time"
)

// Status tags how a value was obtained.
type Status string

const (
	StatusHit      Status = "HIT"
	StatusMiss     Status = "MISS"
	StatusInflight Status = "HIT_INFLIGHT"
)

// Store is a TTL key-value store. Get reports absent for keys that were
// never set or whose expiry has passed.
type Store[V any] interface {
	Get(ctx context.Context, key string) (V, bool)
	Set(ctx context.Context, key string, value V, ttl time.Duration)
}
