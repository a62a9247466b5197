package cache

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
)

// Coalescer guarantees at most one concurrent computation per key. Callers
// that arrive while a computation runs share its outcome.
type Coalescer[V any] struct {
	store    Store[V]
	inflight singleflight.Group
}

func NewCoalescer[V any](store Store[V]) *Coalescer[V] {
	return &Coalescer[V]{store: store}
}

// Store exposes the underlying TTL store.
func (c *Coalescer[V]) Store() Store[V] {
	return c.store
}

type outcome[V any] struct {
	value  V
	status Status
}

// GetOrCompute returns a cached value, joins an in-flight computation or
// starts one. The computation is detached from ctx: a caller whose context
// ends stops waiting, the computation still completes and is cached.
// The in-flight entry is released on every exit path; a panicking
// computation is reported to all waiters as an error.
func (c *Coalescer[V]) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(context.Context) (V, error)) (V, Status, error) {
	var zero V

	if v, ok := c.store.Get(ctx, key); ok {
		return v, StatusHit, nil
	}

	detached := context.WithoutCancel(ctx)
	leader := false
	ch := c.inflight.DoChan(key, func() (res interface{}, err error) {
		leader = true
		defer func() {
			if r := recover(); r != nil {
				res, err = nil, fmt.Errorf("computing %s: panic: %v", key, r)
			}
		}()
		// a previous leader may have finished between our Get and DoChan
		if v, ok := c.store.Get(detached, key); ok {
			return outcome[V]{value: v, status: StatusHit}, nil
		}
		v, err := compute(detached)
		if err != nil {
			return nil, err
		}
		c.store.Set(detached, key, v, ttl)
		return outcome[V]{value: v, status: StatusMiss}, nil
	})

	select {
	case <-ctx.Done():
		return zero, "", fmt.Errorf("waiting for %s: %w", key, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return zero, "", res.Err
		}
		out := res.Val.(outcome[V])
		if !leader {
			return out.value, StatusInflight, nil
		}
		return out.value, out.status, nil
	}
}
