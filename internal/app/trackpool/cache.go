// Package trackpool provides the TTL cache of track pools.
package trackpool

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/osa030/muser/internal/domain/failure"
	"github.com/osa030/muser/internal/domain/pool"
	"github.com/osa030/muser/internal/domain/track"
	"github.com/osa030/muser/internal/infra/metrics"
)

const (
	// DefaultTTL is the pool lifetime used when none is configured.
	DefaultTTL = 6 * time.Hour
	// DefaultBuildTimeout bounds a single pool build.
	DefaultBuildTimeout = 30 * time.Second
)

type entry struct {
	ids       []track.ID
	fetchedAt time.Time
}

func (e *entry) isExpired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.fetchedAt) >= ttl
}

// Cache maps pool keys to deduplicated track id lists.
// Entries are built lazily and only invalidated by TTL on read, Refresh or Clear.
type Cache struct {
	resolve      Resolver
	ttl          time.Duration
	buildTimeout time.Duration
	clock        func() time.Time

	mu      sync.RWMutex
	entries map[pool.Key]*entry
	group   singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock sets the time source.
func WithClock(clock func() time.Time) Option {
	return func(c *Cache) {
		c.clock = clock
	}
}

// WithBuildTimeout bounds how long a single build may run.
func WithBuildTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.buildTimeout = d
		}
	}
}

// New creates a cache.
func New(resolve Resolver, ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		resolve:      resolve,
		ttl:          ttl,
		buildTimeout: DefaultBuildTimeout,
		clock:        time.Now,
		entries:      make(map[pool.Key]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the pool of key, building it when absent or expired.
// The returned slice is a copy.
func (c *Cache) Get(ctx context.Context, key pool.Key) ([]track.ID, error) {
	now := c.clock()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && !e.isExpired(now, c.ttl) {
		metrics.PoolLookups.WithLabelValues(key.Kind.String(), "hit").Inc()
		return copyIDs(e.ids), nil
	}

	metrics.PoolLookups.WithLabelValues(key.Kind.String(), "miss").Inc()
	return c.load(ctx, "get|"+key.String(), key, false)
}

// Refresh rebuilds the pool of key regardless of its age.
// A failed refresh leaves any existing entry in place.
func (c *Cache) Refresh(ctx context.Context, key pool.Key) ([]track.ID, error) {
	return c.load(ctx, "refresh|"+key.String(), key, true)
}

// Clear drops the entry of key.
func (c *Cache) Clear(key pool.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Peek returns the stored pool of key without building it, expired or not.
func (c *Cache) Peek(key pool.Key) ([]track.ID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return copyIDs(e.ids), true
}

// load builds the pool once per flight key and stores it.
// Unless forced, an entry stored by a flight that finished meanwhile is reused.
// The build is detached from the caller that started it; each caller stops
// waiting when its own context ends.
func (c *Cache) load(ctx context.Context, flight string, key pool.Key, force bool) ([]track.ID, error) {
	ch := c.group.DoChan(flight, func() (any, error) {
		if !force {
			c.mu.RLock()
			e, ok := c.entries[key]
			c.mu.RUnlock()
			if ok && !e.isExpired(c.clock(), c.ttl) {
				return e.ids, nil
			}
		}
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.buildTimeout)
		defer cancel()
		return c.build(bctx, key)
	})

	select {
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "waiting for pool %s", key)
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			zlog.Debug().Msgf("pool build shared: key=%s", key)
		}
		return copyIDs(res.Val.([]track.ID)), nil
	}
}

func (c *Cache) build(ctx context.Context, key pool.Key) ([]track.ID, error) {
	src, err := c.resolve(key)
	if err != nil {
		metrics.PoolBuilds.WithLabelValues(key.Kind.String(), "error").Inc()
		return nil, err
	}

	ids, err := src.Fetch(ctx)
	if err != nil {
		metrics.PoolBuilds.WithLabelValues(key.Kind.String(), "error").Inc()
		zlog.Warn().Msgf("pool build failed: key=%s source=%s error=%v", key, src.Name(), err)
		return nil, err
	}

	ids = track.Dedup(ids)
	if len(ids) == 0 {
		metrics.PoolBuilds.WithLabelValues(key.Kind.String(), "empty").Inc()
		return nil, failure.Mark(nil, failure.ErrNoTracksAvailable, "pool "+key.String()+" is empty")
	}

	c.mu.Lock()
	c.entries[key] = &entry{ids: ids, fetchedAt: c.clock()}
	c.mu.Unlock()

	metrics.PoolBuilds.WithLabelValues(key.Kind.String(), "ok").Inc()
	zlog.Info().Msgf("pool built: key=%s source=%s tracks=%d", key, src.Name(), len(ids))
	return ids, nil
}

func copyIDs(ids []track.ID) []track.ID {
	out := make([]track.ID, len(ids))
	copy(out, ids)
	return out
}
