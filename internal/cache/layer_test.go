package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type report struct {
	Total float64  `json:"total"`
	Keys  []string `json:"keys"`
}

type lookups struct {
	mu     sync.Mutex
	hits   int
	misses int
}

func (l *lookups) CacheLookup(_ string, hit bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if hit {
		l.hits++
		return
	}
	l.misses++
}

func newRedisStore(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, "test"), mr
}

func TestMemoizeMemoryHitsUntilExpiry(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	store := NewMemory().WithClock(func() time.Time { return now })
	obs := &lookups{}
	layer := NewLayer("reports", store, obs)

	calls := 0
	compute := func(context.Context) (report, error) {
		calls++
		return report{Total: 180, Keys: []string{"1", "3"}}, nil
	}
	ctx := context.Background()

	first, err := Memoize(ctx, layer, "k", time.Minute, compute)
	require.NoError(t, err)
	second, err := Memoize(ctx, layer, "k", time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)

	now = now.Add(time.Minute)
	_, err = Memoize(ctx, layer, "k", time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, obs.hits)
	assert.Equal(t, 2, obs.misses)
}

func TestMemoizeZeroTTLNeverExpires(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	store := NewMemory().WithClock(func() time.Time { return now })
	layer := NewLayer("reports", store, nil)
	calls := 0
	compute := func(context.Context) (int, error) {
		calls++
		return 42, nil
	}
	_, err := Memoize(context.Background(), layer, "k", 0, compute)
	require.NoError(t, err)
	now = now.Add(365 * 24 * time.Hour)
	v, err := Memoize(context.Background(), layer, "k", 0, compute)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)
}

func TestMemoizeErrorIsNotCached(t *testing.T) {
	layer := NewLayer("reports", NewMemory(), nil)
	boom := errors.New("erp down")
	calls := 0
	compute := func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, boom
		}
		return 7, nil
	}
	_, err := Memoize(context.Background(), layer, "k", time.Minute, compute)
	require.ErrorIs(t, err, boom)
	v, err := Memoize(context.Background(), layer, "k", time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestInvalidateForcesRecompute(t *testing.T) {
	store := NewMemory()
	layer := NewLayer("reports", store, nil)
	var calls int
	compute := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}
	ctx := context.Background()
	_, _ = Memoize(ctx, layer, "a", time.Minute, compute)
	_, _ = Memoize(ctx, layer, "b", time.Minute, compute)
	require.Equal(t, 2, store.Len())

	require.NoError(t, layer.Invalidate(ctx, "a"))
	v, _ := Memoize(ctx, layer, "a", time.Minute, compute)
	assert.Equal(t, 3, v)

	require.NoError(t, layer.InvalidateAll(ctx))
	assert.Zero(t, store.Len())
	v, _ = Memoize(ctx, layer, "b", time.Minute, compute)
	assert.Equal(t, 4, v)
}

func TestMemoizeCollapsesConcurrentMisses(t *testing.T) {
	layer := NewLayer("reports", NewMemory(), nil)
	var calls int32
	release := make(chan struct{})
	compute := func(context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 9, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := Memoize(context.Background(), layer, "same", time.Minute, compute)
			if err == nil {
				results[i] = v
			}
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, v := range results {
		assert.Equal(t, 9, v)
	}
}

func TestMemoizeCancelledCallerDoesNotFailSharedWaiters(t *testing.T) {
	layer := NewLayer("reports", NewMemory(), nil)
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	compute := func(ctx context.Context) (int, error) {
		started <- struct{}{}
		select {
		case <-release:
			return 7, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := Memoize(ctxA, layer, "k", time.Minute, compute)
		errA <- err
	}()
	<-started

	type outcome struct {
		v   int
		err error
	}
	resB := make(chan outcome, 1)
	go func() {
		v, err := Memoize(context.Background(), layer, "k", time.Minute, compute)
		resB <- outcome{v, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	close(release)
	b := <-resB
	require.NoError(t, b.err)
	assert.Equal(t, 7, b.v)
}

func TestMemoizeSharedComputeIsBounded(t *testing.T) {
	layer := NewLayer("reports", NewMemory(), nil).WithComputeTimeout(10 * time.Millisecond)
	_, err := Memoize(context.Background(), layer, "slow", time.Minute, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNilLayerComputesDirectly(t *testing.T) {
	v, err := Memoize(context.Background(), nil, "k", time.Minute, func(context.Context) (string, error) {
		return "fresh", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
}

func TestMemoizeRedisRoundTripAndTTL(t *testing.T) {
	store, mr := newRedisStore(t)
	layer := NewLayer("reports", store, nil)
	calls := 0
	compute := func(context.Context) (report, error) {
		calls++
		return report{Total: 150.5, Keys: []string{"2024-01"}}, nil
	}
	ctx := context.Background()

	first, err := Memoize(ctx, layer, "r", time.Minute, compute)
	require.NoError(t, err)
	cached, err := Memoize(ctx, layer, "r", time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, first, cached)
	assert.Equal(t, 1, calls)

	mr.FastForward(2 * time.Minute)
	_, err = Memoize(ctx, layer, "r", time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestMemoizeServesValueWhenStoreIsDown(t *testing.T) {
	store, mr := newRedisStore(t)
	layer := NewLayer("reports", store, nil)
	mr.Close()

	v, err := Memoize(context.Background(), layer, "r", time.Minute, func(context.Context) (report, error) {
		return report{Total: 42}, nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStore)
	assert.Equal(t, 42.0, v.Total)
}

func TestRedisInvalidateAllBumpsVersion(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	v1, err := store.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v1)

	require.NoError(t, store.Save(ctx, "r", report{Total: 1}, time.Minute))
	var got report
	hit, err := store.Load(ctx, "r", &got)
	require.NoError(t, err)
	require.True(t, hit)

	require.NoError(t, store.InvalidateAll(ctx))
	v2, err := store.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v2)

	hit, err = store.Load(ctx, "r", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRedisInvalidateSingleKey(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "a", 1, 0))
	require.NoError(t, store.Save(ctx, "b", 2, 0))
	require.NoError(t, store.Invalidate(ctx, "a"))

	var n int
	hit, err := store.Load(ctx, "a", &n)
	require.NoError(t, err)
	assert.False(t, hit)
	hit, err = store.Load(ctx, "b", &n)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 2, n)
}

func TestKeyIsDeterministic(t *testing.T) {
	a, err := Key("rollup", map[string]string{"year": "2024", "vendor": "1"}, true)
	require.NoError(t, err)
	b, err := Key("rollup", map[string]string{"vendor": "1", "year": "2024"}, true)
	require.NoError(t, err)
	c, err := Key("rollup", map[string]string{"vendor": "2", "year": "2024"}, true)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "rollup:")

	_, err = Key("rollup", func() {})
	assert.Error(t, err)
}
