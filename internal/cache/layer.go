// Package cache memoizes read operations behind a TTL-keyed store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"
)

// ErrStore marks a failed read or write of the backing store. Memoize still
// returns the computed value alongside it.
var ErrStore = errors.New("cache: store failure")

// Store persists memoized values.
type Store interface {
	// Load fills dest and reports a hit. Expired entries are misses.
	Load(ctx context.Context, key string, dest any) (bool, error)
	// Save stores value for ttl. A non-positive ttl never expires.
	Save(ctx context.Context, key string, value any, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
	InvalidateAll(ctx context.Context) error
}

// Observer is notified of lookups.
type Observer interface {
	CacheLookup(namespace string, hit bool)
}

// DefaultComputeTimeout bounds a shared compute once no caller owns it.
const DefaultComputeTimeout = 5 * time.Minute

// Layer wraps a Store with miss collapsing: concurrent misses on one key
// share a single compute.
type Layer struct {
	name     string
	store    Store
	observer Observer
	timeout  time.Duration
	group    singleflight.Group
}

// NewLayer constructs a Layer. A nil store disables caching.
func NewLayer(name string, store Store, observer Observer) *Layer {
	return &Layer{name: name, store: store, observer: observer, timeout: DefaultComputeTimeout}
}

// WithComputeTimeout replaces the bound on shared computes. Non-positive
// values keep the default.
func (l *Layer) WithComputeTimeout(d time.Duration) *Layer {
	if d > 0 {
		l.timeout = d
	}
	return l
}

// Invalidate drops one key.
func (l *Layer) Invalidate(ctx context.Context, key string) error {
	if l == nil || l.store == nil {
		return nil
	}
	return l.store.Invalidate(ctx, key)
}

// InvalidateAll drops every key. Call it after anything that changes
// master data.
func (l *Layer) InvalidateAll(ctx context.Context) error {
	if l == nil || l.store == nil {
		return nil
	}
	return l.store.InvalidateAll(ctx)
}

func (l *Layer) computeTimeout() time.Duration {
	if l.timeout > 0 {
		return l.timeout
	}
	return DefaultComputeTimeout
}

func (l *Layer) observe(hit bool) {
	if l.observer != nil {
		l.observer.CacheLookup(l.name, hit)
	}
}

// Memoize returns the cached value for key or computes, stores and returns
// it. Store failures wrap ErrStore and are returned together with the
// computed value.
func Memoize[T any](ctx context.Context, l *Layer, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	if compute == nil {
		var zero T
		return zero, errors.New("cache: compute required")
	}
	return MemoizeFor(ctx, l, key, func(ctx context.Context) (T, time.Duration, error) {
		value, err := compute(ctx)
		return value, ttl, err
	})
}

// MemoizeFor is Memoize with the lifetime decided by compute, for values
// that must not outlive what they were derived from.
func MemoizeFor[T any](ctx context.Context, l *Layer, key string, compute func(context.Context) (T, time.Duration, error)) (T, error) {
	var zero T
	if compute == nil {
		return zero, errors.New("cache: compute required")
	}
	if l == nil || l.store == nil {
		value, _, err := compute(ctx)
		return value, err
	}

	var cached T
	hit, err := l.store.Load(ctx, key, &cached)
	var loadErr error
	if err != nil {
		loadErr = fmt.Errorf("%w: load %s: %w", ErrStore, key, err)
		hit = false
	}
	l.observe(hit)
	if hit {
		return cached, nil
	}

	// The compute is shared, so it must outlive the caller that started it.
	// Each caller abandons only its own wait below.
	resultChan := l.group.DoChan(key, func() (interface{}, error) {
		sharedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.computeTimeout())
		defer cancel()
		value, ttl, err := compute(sharedCtx)
		if err != nil {
			return nil, err
		}
		if err := l.store.Save(sharedCtx, key, value, ttl); err != nil {
			return value, fmt.Errorf("%w: save %s: %w", ErrStore, key, err)
		}
		return value, nil
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-resultChan:
		if res.Val == nil {
			return zero, res.Err
		}
		value, ok := res.Val.(T)
		if !ok {
			return zero, fmt.Errorf("cache: unexpected value type %T for %s", res.Val, key)
		}
		if res.Err == nil {
			return value, loadErr
		}
		return value, res.Err
	}
}

// Key serialises the call parameters deterministically (JSON sorts map keys)
// and digests them under namespace.
func Key(namespace string, parts ...any) (string, error) {
	raw, err := json.Marshal(parts)
	if err != nil {
		return "", fmt.Errorf("cache: key %s: %w", namespace, err)
	}
	return namespace + ":" + strconv.FormatUint(xxhash.Sum64(raw), 16), nil
}
