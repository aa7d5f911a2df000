// Package rotation advances the daily challenge of every context.
package rotation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/osa030/muser/internal/app/probe"
	"github.com/osa030/muser/internal/domain/challenge"
	"github.com/osa030/muser/internal/domain/failure"
	"github.com/osa030/muser/internal/domain/pool"
	"github.com/osa030/muser/internal/domain/track"
	"github.com/osa030/muser/internal/infra/metrics"
	"github.com/osa030/muser/internal/infra/store"
)

// Pools refreshes track pools and exposes the last stored one.
type Pools interface {
	Refresh(ctx context.Context, key pool.Key) ([]track.ID, error)
	Peek(key pool.Key) ([]track.ID, bool)
}

// Store reads and writes challenge rows.
type Store interface {
	GetRow(ctx context.Context, typ challenge.Type, genre string) (*challenge.Row, error)
	UpdateRow(ctx context.Context, id string, u challenge.Update) error
}

// Picker picks a readable track from a draw.
type Picker interface {
	PickReadable(ctx context.Context, draw probe.Draw, accept func(track.Track) bool) (*track.Track, error)
}

// Fetcher fetches full track metadata.
type Fetcher interface {
	GetTrack(ctx context.Context, id track.ID) (*track.Track, error)
}

// Config represents engine configuration.
type Config struct {
	Contexts    []pool.Key // Main and every configured genre
	Parallelism int
}

// Engine is the sole writer of challenge rows.
type Engine struct {
	pools       Pools
	store       Store
	picker      Picker
	fetcher     Fetcher
	contexts    []pool.Key
	parallelism int
	clock       func() time.Time

	runMu sync.Mutex // one RotateAll at a time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// NewEngine creates a rotation engine.
func NewEngine(cfg Config, pools Pools, st Store, picker Picker, fetcher Fetcher, opts ...Option) *Engine {
	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = 1
	}
	e := &Engine{
		pools:       pools,
		store:       st,
		picker:      picker,
		fetcher:     fetcher,
		contexts:    cfg.Contexts,
		parallelism: parallelism,
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RotateAll rotates every context concurrently. A failing context is
// recorded in the summary and never stops the others.
func (e *Engine) RotateAll(ctx context.Context) Summary {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	summary := Summary{StartedAt: e.clock(), Results: make([]Result, len(e.contexts))}
	start := time.Now()

	var g errgroup.Group
	g.SetLimit(e.parallelism)

	for i, key := range e.contexts {
		g.Go(func() error {
			summary.Results[i] = e.rotateSafe(ctx, key)
			return nil
		})
	}
	_ = g.Wait()

	summary.Duration = time.Since(start)
	metrics.RotationDuration.Observe(summary.Duration.Seconds())

	zlog.Info().Msgf("rotation finished: contexts=%d rotated=%d reset=%d skipped=%d failed=%d duration=%s",
		len(summary.Results), summary.Count(OutcomeRotated), summary.Count(OutcomeReset),
		summary.Count(OutcomeSkipped), summary.Count(OutcomeFailed), summary.Duration)
	return summary
}

// rotateSafe turns a panic in one context into a failed result.
func (e *Engine) rotateSafe(ctx context.Context, key pool.Key) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Key: key, Outcome: OutcomeFailed, Err: errors.Newf("panic: %v", r)}
		}
		metrics.Rotations.WithLabelValues(key.String(), res.Outcome.String()).Inc()
		if res.Outcome == OutcomeFailed {
			zlog.Error().Err(res.Err).Msgf("rotation failed: key=%s", key)
		}
	}()
	return e.Rotate(ctx, key)
}

// Rotate advances one context.
func (e *Engine) Rotate(ctx context.Context, key pool.Key) Result {
	ids, err := e.pools.Refresh(ctx, key)
	if err != nil {
		cached, ok := e.pools.Peek(key)
		if !ok {
			return failed(key, errors.Wrap(err, "failed to refresh pool"))
		}
		zlog.Warn().Msgf("pool refresh failed, using cached pool: key=%s tracks=%d error=%v", key, len(cached), err)
		ids = cached
	}

	typ, genre := challenge.TypeFor(key)
	row, err := e.store.GetRow(ctx, typ, genre)
	if errors.Is(err, store.ErrRowNotFound) {
		zlog.Warn().Msgf("no challenge row, skipping: key=%s", key)
		return Result{Key: key, Outcome: OutcomeSkipped}
	}
	if err != nil {
		return failed(key, errors.Wrap(err, "failed to read row"))
	}

	candidates := track.Without(ids, row.Served())
	t, err := e.picker.PickReadable(ctx, probe.NewRandomDraw(candidates, nil), nil)
	now := e.clock()

	if err != nil {
		if !errors.Is(err, failure.ErrNoReadableTracks) {
			return failed(key, err)
		}
		// Exhausted or nothing unseen: start the history over, keep today's track
		u := row.ResetHistory(now)
		if err := e.store.UpdateRow(ctx, row.ID, u); err != nil {
			return failed(key, errors.Wrap(err, "failed to reset row"))
		}
		zlog.Info().Msgf("challenge history reset: key=%s pool=%d candidates=%d", key, len(ids), len(candidates))
		return Result{Key: key, Outcome: OutcomeReset}
	}

	u := row.Advance(*t, now)
	if err := e.store.UpdateRow(ctx, row.ID, u); err != nil {
		return failed(key, errors.Wrap(err, "failed to update row"))
	}
	zlog.Info().Msgf("challenge rotated: key=%s track=%s title=%q history=%d", key, t.ID, t.Title, len(u.PreviousIDs))
	return Result{Key: key, Outcome: OutcomeRotated, TrackID: u.CurrentTrackID}
}

// Current returns the metadata of the current track of a context.
// When the catalog is unreachable, the snapshot taken at rotation is served.
func (e *Engine) Current(ctx context.Context, key pool.Key) (*track.Track, error) {
	if !e.isContext(key) {
		return nil, failure.Mark(nil, failure.ErrNotConfigured, fmt.Sprintf("unknown context %s", key))
	}

	typ, genre := challenge.TypeFor(key)
	row, err := e.store.GetRow(ctx, typ, genre)
	if errors.Is(err, store.ErrRowNotFound) {
		return nil, failure.Mark(err, failure.ErrNotConfigured, fmt.Sprintf("no challenge row for %s", key))
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read row")
	}
	if row.CurrentTrackID == nil {
		return nil, failure.Mark(nil, failure.ErrNotConfigured, fmt.Sprintf("no current track for %s", key))
	}

	id := *row.CurrentTrackID
	t, err := e.fetcher.GetTrack(ctx, id)
	if err != nil {
		if row.Snapshot != nil && row.Snapshot.ID == id {
			zlog.Warn().Msgf("catalog unavailable, serving snapshot: key=%s track=%s error=%v", key, id, err)
			snapshot := *row.Snapshot
			return &snapshot, nil
		}
		return nil, failure.Mark(err, failure.ErrUpstream, fmt.Sprintf("failed to fetch current track of %s", key))
	}
	return t, nil
}

func (e *Engine) isContext(key pool.Key) bool {
	for _, k := range e.contexts {
		if k == key {
			return true
		}
	}
	return false
}

func failed(key pool.Key, err error) Result {
	return Result{Key: key, Outcome: OutcomeFailed, Err: err}
}
