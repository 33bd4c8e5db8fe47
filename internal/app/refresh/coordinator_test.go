package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCoordinator() (*Coordinator, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := NewCoordinator(Options{PollInterval: 5 * time.Second, FetchTimeout: time.Second}, zap.NewNop())
	c.now = clock.Now
	return c, clock
}

func TestKey_StringIsCaseInsensitive(t *testing.T) {
	a := Key{Source: SourceBalance, ChainID: 10, Address: "0xAbC", Account: "0xDEF"}
	b := Key{Source: SourceBalance, ChainID: 10, Address: "0xabc", Account: "0xdef"}
	assert.Equal(t, a.String(), b.String())
	assert.NotEqual(t, a.String(), Key{Source: SourceAllowance, ChainID: 10, Address: "0xabc", Account: "0xdef"}.String())
}

func TestFetch_ConcurrentCallersShareOneCall(t *testing.T) {
	c, _ := newTestCoordinator()
	key := Key{Source: "market", ChainID: 1, Address: "0x01", Account: "0x02"}

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fn := func(context.Context) (int, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 2)
	errs := make([]error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = Fetch(context.Background(), c, key, fn)
	}()
	<-started
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], errs[1] = Fetch(context.Background(), c, key, fn)
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.Equal(t, 42, results[0])
	assert.Equal(t, 42, results[1])
}

func TestFetch_ConcurrentCallersShareFailure(t *testing.T) {
	c, _ := newTestCoordinator()
	key := Key{Source: "market", ChainID: 1, Address: "0x01"}
	boom := errors.New("rpc timeout")

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fn := func(context.Context) (int, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return 0, boom
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[0] = Fetch(context.Background(), c, key, fn)
	}()
	<-started
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[1] = Fetch(context.Background(), c, key, fn)
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.ErrorIs(t, errs[0], boom)
	assert.ErrorIs(t, errs[1], boom)
}

func TestFetch_ErrorsAreNotCached(t *testing.T) {
	c, _ := newTestCoordinator()
	key := Key{Source: SourceBalance, ChainID: 1}

	var calls int
	_, err := Fetch(context.Background(), c, key, func(context.Context) (string, error) {
		calls++
		return "", errors.New("unavailable")
	})
	require.Error(t, err)

	v, err := Fetch(context.Background(), c, key, func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 2, calls)
}

func TestFetch_FreshValueServedFromCache(t *testing.T) {
	c, clock := newTestCoordinator()
	key := Key{Source: SourceBalance, ChainID: 1}

	var calls int
	fn := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}

	v, err := Fetch(context.Background(), c, key, fn)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	clock.Advance(4 * time.Second)
	v, err = Fetch(context.Background(), c, key, fn)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, calls)
}

func TestFetch_StaleWhileRevalidate(t *testing.T) {
	c, clock := newTestCoordinator()
	key := Key{Source: SourceBalance, ChainID: 1}

	var calls atomic.Int32
	fn := func(context.Context) (int32, error) {
		return calls.Add(1), nil
	}

	v, err := Fetch(context.Background(), c, key, fn)
	require.NoError(t, err)
	require.Equal(t, int32(1), v)

	clock.Advance(6 * time.Second)
	v, err = Fetch(context.Background(), c, key, fn)
	require.NoError(t, err)
	assert.Equal(t, int32(1), v, "stale value is returned while revalidating")

	require.Eventually(t, func() bool {
		got, err := Fetch(context.Background(), c, key, fn)
		return err == nil && got >= 2
	}, time.Second, 10*time.Millisecond)
}

func TestFetch_CallerCancellationDoesNotFailOthers(t *testing.T) {
	c, _ := newTestCoordinator()
	key := Key{Source: SourceBalance, ChainID: 1}

	release := make(chan struct{})
	started := make(chan struct{})
	fn := func(ctx context.Context) (int, error) {
		close(started)
		select {
		case <-release:
			return 7, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := Fetch(ctx, c, key, fn)
		done <- err
	}()
	<-started
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(release)
	require.Eventually(t, func() bool {
		v, err := Fetch(context.Background(), c, key, func(context.Context) (int, error) { return -1, nil })
		return err == nil && v == 7
	}, time.Second, 10*time.Millisecond)
}

func TestStoreAndCached(t *testing.T) {
	c, clock := newTestCoordinator()
	key := Key{Source: SourceBalance, ChainID: 1, Address: "0xA", Account: "0xB"}

	_, _, ok := Cached[int](c, key)
	assert.False(t, ok)

	Store(c, key, 7)
	v, fresh, ok := Cached[int](c, key)
	require.True(t, ok)
	assert.True(t, fresh)
	assert.Equal(t, 7, v)

	_, _, ok = Cached[string](c, key)
	assert.False(t, ok, "type mismatch is a miss")

	got, err := Fetch(context.Background(), c, key, func(context.Context) (int, error) {
		return 0, errors.New("must not be called")
	})
	require.NoError(t, err)
	assert.Equal(t, 7, got)

	clock.Advance(6 * time.Second)
	v, fresh, ok = Cached[int](c, key)
	require.True(t, ok, "stale values are still served")
	assert.False(t, fresh)
	assert.Equal(t, 7, v)
}

func TestShare_ConcurrentCallersShareOneCallWithoutCaching(t *testing.T) {
	c, _ := newTestCoordinator()
	key := Key{Source: SourceBalanceBatch, ChainID: 1, Account: "0xB", Extra: "0x1,0x2"}

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fn := func(context.Context) (int, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return 9, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := Share(context.Background(), c, key, fn)
			assert.NoError(t, err)
			results[i] = v
		}(i)
		if i == 0 {
			<-started
		}
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, []int{9, 9, 9}, results)

	_, _, ok := Cached[int](c, key)
	assert.False(t, ok, "shared results are not cached")

	_, err := Share(context.Background(), c, key, func(context.Context) (int, error) { return 0, errors.New("boom") })
	assert.Error(t, err)
}
