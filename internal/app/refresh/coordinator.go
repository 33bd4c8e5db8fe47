package refresh

import (
	"context"
	"fmt"
	"time"

	"networth_aggregator/internal/pkg/metrics"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Options configure a Coordinator.
type Options struct {
	// PollInterval is how long a cached value counts as fresh.
	PollInterval time.Duration
	// MaxStale is how long a value may be served stale before it is evicted.
	MaxStale time.Duration
	// FetchTimeout bounds one underlying fetch, independent of the callers' contexts.
	FetchTimeout time.Duration
}

// Coordinator deduplicates concurrent fetches and serves cached values with
// stale-while-revalidate semantics. Errors are never cached.
type Coordinator struct {
	group  singleflight.Group
	cache  *cache.Cache
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

type entry struct {
	value     interface{}
	fetchedAt time.Time
}

// NewCoordinator creates a coordinator.
func NewCoordinator(opts Options, logger *zap.Logger) *Coordinator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.MaxStale < opts.PollInterval {
		opts.MaxStale = 12 * opts.PollInterval
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	return &Coordinator{
		cache:  cache.New(opts.MaxStale, 2*opts.MaxStale),
		opts:   opts,
		logger: logger.Named("RefreshCoordinator"),
		now:    time.Now,
	}
}

// PollInterval returns the refresh period.
func (c *Coordinator) PollInterval() time.Duration {
	return c.opts.PollInterval
}

// Fetch returns the value for key. Fresh cached values are returned directly;
// stale ones are returned while a single background revalidation runs; misses
// wait for the (shared) in-flight call. Concurrent callers with the same key
// observe the same outcome.
func Fetch[T any](ctx context.Context, c *Coordinator, key Key, fn func(ctx context.Context) (T, error)) (T, error) {
	k := key.String()

	if raw, ok := c.cache.Get(k); ok {
		if e, ok := raw.(entry); ok {
			if v, ok := e.value.(T); ok {
				if c.now().Sub(e.fetchedAt) < c.opts.PollInterval {
					metrics.CacheLookups.WithLabelValues(key.Source, "fresh").Inc()
					return v, nil
				}
				metrics.CacheLookups.WithLabelValues(key.Source, "stale").Inc()
				c.revalidate(ctx, key, k, wrap(fn))
				return v, nil
			}
		}
	}
	metrics.CacheLookups.WithLabelValues(key.Source, "miss").Inc()

	var zero T
	raw, err := c.do(ctx, key, k, wrap(fn), true)
	if err != nil {
		return zero, err
	}
	v, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("refresh: key %s holds %T", k, raw)
	}
	return v, nil
}

func wrap[T any](fn func(ctx context.Context) (T, error)) func(ctx context.Context) (interface{}, error) {
	return func(ctx context.Context) (interface{}, error) {
		return fn(ctx)
	}
}

// Share runs fn once for all concurrent callers with the same key and hands
// every caller the same outcome. Nothing is cached; fn stores what it wants to keep.
func Share[T any](ctx context.Context, c *Coordinator, key Key, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	raw, err := c.do(ctx, key, "shared_"+key.String(), wrap(fn), false)
	if err != nil {
		return zero, err
	}
	v, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("refresh: shared key %s returned %T", key, raw)
	}
	return v, nil
}

// do runs fn once per key at a time. The fetch runs on a context detached from
// the caller so one caller giving up does not fail the others.
func (c *Coordinator) do(ctx context.Context, key Key, k string, fn func(ctx context.Context) (interface{}, error), store bool) (interface{}, error) {
	ch := c.group.DoChan(k, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.FetchTimeout)
		defer cancel()

		v, err := fn(fetchCtx)
		if err != nil {
			return nil, err
		}
		if store {
			c.cache.SetDefault(k, entry{value: v, fetchedAt: c.now()})
		}
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			metrics.DedupShared.WithLabelValues(key.Source).Inc()
		}
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Coordinator) revalidate(ctx context.Context, key Key, k string, fn func(ctx context.Context) (interface{}, error)) {
	bg := context.WithoutCancel(ctx)
	go func() {
		if _, err := c.do(bg, key, k, fn, true); err != nil {
			c.logger.Warn("Background revalidation failed, keeping stale value", zap.String("key", k), zap.Error(err))
		}
	}()
}

// Cached returns the cached value for key and whether it is still fresh.
// ok is false when nothing usable is cached.
func Cached[T any](c *Coordinator, key Key) (v T, fresh, ok bool) {
	raw, found := c.cache.Get(key.String())
	if !found {
		return v, false, false
	}
	e, isEntry := raw.(entry)
	if !isEntry {
		return v, false, false
	}
	if v, ok = e.value.(T); !ok {
		return v, false, false
	}
	fresh = c.now().Sub(e.fetchedAt) < c.opts.PollInterval
	if fresh {
		metrics.CacheLookups.WithLabelValues(key.Source, "fresh").Inc()
	} else {
		metrics.CacheLookups.WithLabelValues(key.Source, "stale").Inc()
	}
	return v, fresh, true
}

// Store caches a value obtained outside Fetch, such as one entry of a batch.
func Store[T any](c *Coordinator, key Key, v T) {
	c.cache.SetDefault(key.String(), entry{value: v, fetchedAt: c.now()})
}
