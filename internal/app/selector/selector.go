// Package selector picks unseen, playable tracks for free play.
package selector

import (
	"context"
	"math/rand/v2"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/muser/internal/app/exclusion"
	"github.com/osa030/muser/internal/app/probe"
	"github.com/osa030/muser/internal/domain/failure"
	"github.com/osa030/muser/internal/domain/pool"
	"github.com/osa030/muser/internal/domain/track"
	"github.com/osa030/muser/internal/infra/metrics"
)

// Pools returns the track ids of a pool.
type Pools interface {
	Get(ctx context.Context, key pool.Key) ([]track.ID, error)
}

// Picker picks a readable track from a draw.
type Picker interface {
	PickReadable(ctx context.Context, draw probe.Draw, accept func(track.Track) bool) (*track.Track, error)
}

// Selector serves each track of a pool at most once until the pool is exhausted.
type Selector struct {
	pools      Pools
	exclusions *exclusion.Set
	picker     Picker
	rng        *rand.Rand
}

// Option configures a Selector.
type Option func(*Selector)

// WithRand sets the random source. The source is not safe for concurrent use,
// so it is meant for single-goroutine tests.
func WithRand(rng *rand.Rand) Option {
	return func(s *Selector) {
		s.rng = rng
	}
}

// New creates a selector.
func New(pools Pools, exclusions *exclusion.Set, picker Picker, opts ...Option) *Selector {
	s := &Selector{
		pools:      pools,
		exclusions: exclusions,
		picker:     picker,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Next returns a random unseen readable track of key and marks it served.
//
// When every track of the pool has been served, the exclusions of key are
// cleared and failure.ErrNoNewTracks is returned; the following call draws
// from the full pool again.
func (s *Selector) Next(ctx context.Context, key pool.Key) (*track.Track, error) {
	ids, err := s.pools.Get(ctx, key)
	if err != nil {
		metrics.Selections.WithLabelValues(key.Kind.String(), failure.KindOf(err).String()).Inc()
		return nil, errors.Wrapf(err, "failed to get pool %s", key)
	}

	available := track.Without(ids, s.exclusions.Seen(key))
	if len(available) == 0 {
		s.exclusions.Clear(key)
		metrics.Selections.WithLabelValues(key.Kind.String(), failure.KindNoNewTracks.String()).Inc()
		zlog.Info().Msgf("pool exhausted, exclusions cleared: key=%s pool=%d", key, len(ids))
		return nil, failure.Mark(nil, failure.ErrNoNewTracks, "No new tracks available. Try again.")
	}

	claim := func(t track.Track) bool {
		return s.exclusions.Claim(key, t.ID)
	}

	t, err := s.picker.PickReadable(ctx, probe.NewRandomDraw(available, s.rng), claim)
	if err != nil {
		metrics.Selections.WithLabelValues(key.Kind.String(), failure.KindOf(err).String()).Inc()
		zlog.Warn().Msgf("selection failed: key=%s available=%d error=%v", key, len(available), err)
		return nil, errors.Wrapf(err, "failed to select from %s", key)
	}

	metrics.Selections.WithLabelValues(key.Kind.String(), "selected").Inc()
	zlog.Debug().Msgf("track selected: key=%s track=%s available=%d", key, t.ID, len(available)-1)
	return t, nil
}
