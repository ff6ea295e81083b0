// Package cache is a revalidating read-through cache over backend GETs,
// keyed by request path. Entries live only for the process lifetime.
// Revalidation is trigger-driven (app foreground, network reconnect), not
// timer-driven.
package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"billpoint/client/internal/api"
	"billpoint/client/internal/lifecycle"
)

// Fetcher performs the underlying GET. *api.Client satisfies it.
type Fetcher interface {
	Get(ctx context.Context, path string) ([]byte, error)
}

// Cache memoizes GET responses per path with single-flight deduplication and
// the retry Policy. A 401 seen during a fetch invokes the auth-failure hook
// (the session manager's forced logout, which tolerates repeat calls).
type Cache struct {
	fetcher       Fetcher
	policy        Policy
	onAuthFailure func()
	log           *zap.Logger

	group   singleflight.Group
	mu      sync.Mutex
	entries map[string][]byte
	active  map[string]struct{}
	subs    []*lifecycle.Subscription
}

// New returns a Cache wired to hub's foreground and reconnect triggers.
// onAuthFailure may be nil.
func New(fetcher Fetcher, policy Policy, hub *lifecycle.Hub, onAuthFailure func(), log *zap.Logger) *Cache {
	c := &Cache{
		fetcher:       fetcher,
		policy:        policy,
		onAuthFailure: onAuthFailure,
		log:           log,
		entries:       make(map[string][]byte),
		active:        make(map[string]struct{}),
	}
	if hub != nil {
		c.subs = append(c.subs,
			hub.SubscribeAppState(func(prev, next lifecycle.AppState) {
				if !prev.Foreground() && next.Foreground() {
					c.RevalidateAll(context.Background())
				}
			}),
			hub.SubscribeConnectivity(func(prev, next lifecycle.Connectivity) {
				if !prev.Online() && next.Online() {
					c.RevalidateAll(context.Background())
				}
			}),
		)
	}
	return c
}

// Close releases the lifecycle subscriptions.
func (c *Cache) Close() {
	for _, s := range c.subs {
		s.Cancel()
	}
}

// Fetch returns the cached value for key, fetching it on first use.
// Concurrent fetches for the same key share one underlying request.
func (c *Cache) Fetch(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	c.active[key] = struct{}{}
	if v, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()
	return c.refresh(ctx, key)
}

// Revalidate refetches key regardless of any cached value.
func (c *Cache) Revalidate(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	c.active[key] = struct{}{}
	c.mu.Unlock()
	return c.refresh(ctx, key)
}

// RevalidateAll refetches every active key concurrently and waits for all of
// them. Failures are logged, not returned; a stale entry stays usable.
func (c *Cache) RevalidateAll(ctx context.Context) {
	keys := c.Active()
	var wg sync.WaitGroup
	for _, key := range keys {
		wg.Add(1)
		go func(k string) {
			defer wg.Done()
			if _, err := c.refresh(ctx, k); err != nil {
				c.log.Warn("revalidate failed", zap.String("key", k), zap.Error(err))
			}
		}(key)
	}
	wg.Wait()
}

// Invalidate drops the cached value for key. The key stays active, so the
// next Fetch or revalidation trigger refetches it.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Forget drops the value and the active registration for key.
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	delete(c.active, key)
	c.mu.Unlock()
}

// Active returns the active keys, sorted.
func (c *Cache) Active() []string {
	c.mu.Lock()
	keys := make([]string, 0, len(c.active))
	for k := range c.active {
		keys = append(keys, k)
	}
	c.mu.Unlock()
	sort.Strings(keys)
	return keys
}

func (c *Cache) refresh(ctx context.Context, key string) ([]byte, error) {
	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.fetchWithRetry(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	raw := v.([]byte)
	c.mu.Lock()
	c.entries[key] = raw
	c.mu.Unlock()
	return raw, nil
}

func (c *Cache) fetchWithRetry(ctx context.Context, key string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, c.policy.Delay); err != nil {
				return nil, err
			}
		}
		raw, err := c.fetcher.Get(ctx, key)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if api.IsUnauthorized(err) {
			if c.onAuthFailure != nil {
				c.onAuthFailure()
			}
			return nil, err
		}
		if c.policy.Retryable != nil && !c.policy.Retryable(err) {
			return nil, err
		}
		c.log.Warn("fetch failed",
			zap.String("key", key),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return nil, lastErr
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
