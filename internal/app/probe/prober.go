// Package probe picks playable tracks from a candidate draw.
package probe

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/muser/internal/domain/failure"
	"github.com/osa030/muser/internal/domain/track"
	"github.com/osa030/muser/internal/infra/metrics"
)

// DefaultMaxAttempts is the metadata fetch budget per pick.
const DefaultMaxAttempts = 10

// Fetcher fetches full track metadata. Each call must reach the upstream at
// most once, so the attempt budget bounds upstream traffic.
type Fetcher interface {
	GetTrack(ctx context.Context, id track.ID) (*track.Track, error)
}

// Draw yields candidates one at a time.
type Draw interface {
	// Next returns the next candidate, or false when none remain.
	Next() (track.ID, bool)
}

// RandomDraw draws uniformly at random without replacement.
type RandomDraw struct {
	ids []track.ID
	rng *rand.Rand
}

// NewRandomDraw creates a random draw over a copy of ids.
// A nil rng uses the global source.
func NewRandomDraw(ids []track.ID, rng *rand.Rand) *RandomDraw {
	return &RandomDraw{ids: append([]track.ID(nil), ids...), rng: rng}
}

// Next removes and returns a random remaining id.
func (d *RandomDraw) Next() (track.ID, bool) {
	n := len(d.ids)
	if n == 0 {
		return 0, false
	}
	var i int
	if d.rng != nil {
		i = d.rng.IntN(n)
	} else {
		i = rand.IntN(n)
	}
	id := d.ids[i]
	d.ids[i] = d.ids[n-1]
	d.ids = d.ids[:n-1]
	return id, true
}

// SequenceDraw yields ids in priority order.
type SequenceDraw struct {
	ids []track.ID
	pos int
}

// NewSequenceDraw creates a draw that follows ids in order.
func NewSequenceDraw(ids []track.ID) *SequenceDraw {
	return &SequenceDraw{ids: ids}
}

// Next returns the next id in order.
func (d *SequenceDraw) Next() (track.ID, bool) {
	if d.pos >= len(d.ids) {
		return 0, false
	}
	id := d.ids[d.pos]
	d.pos++
	return id, true
}

// Prober confirms candidates are readable within a fixed fetch budget.
type Prober struct {
	fetcher     Fetcher
	maxAttempts int
}

// New creates a prober.
func New(fetcher Fetcher, maxAttempts int) *Prober {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Prober{fetcher: fetcher, maxAttempts: maxAttempts}
}

// PickReadable returns the first drawn track that is playable (readable with
// a preview) and, when accept is set, accepted. Each candidate is fetched once; a fetch failure
// counts as not readable. Returns failure.ErrNoReadableTracks once the budget
// or the draw runs out.
func (p *Prober) PickReadable(ctx context.Context, draw Draw, accept func(track.Track) bool) (*track.Track, error) {
	attempts := 0
	for attempts < p.maxAttempts {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "probe cancelled")
		}

		id, ok := draw.Next()
		if !ok {
			break
		}
		attempts++

		t, err := p.fetcher.GetTrack(ctx, id)
		if err != nil {
			metrics.ProbeAttempts.WithLabelValues("error").Inc()
			zlog.Debug().Msgf("probe fetch failed: track=%s attempt=%d/%d error=%v", id, attempts, p.maxAttempts, err)
			continue
		}
		if !t.IsPlayable() {
			metrics.ProbeAttempts.WithLabelValues("unreadable").Inc()
			zlog.Debug().Msgf("probe track not playable: track=%s readable=%v attempt=%d/%d", id, t.Readable, attempts, p.maxAttempts)
			continue
		}
		if accept != nil && !accept(*t) {
			metrics.ProbeAttempts.WithLabelValues("rejected").Inc()
			continue
		}

		metrics.ProbeAttempts.WithLabelValues("readable").Inc()
		return t, nil
	}

	return nil, failure.Mark(nil, failure.ErrNoReadableTracks, fmt.Sprintf("no readable track after %d attempts", attempts))
}
