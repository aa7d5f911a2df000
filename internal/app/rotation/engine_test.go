package rotation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/muser/internal/app/probe"
	"github.com/osa030/muser/internal/domain/challenge"
	"github.com/osa030/muser/internal/domain/failure"
	"github.com/osa030/muser/internal/domain/pool"
	"github.com/osa030/muser/internal/domain/track"
	"github.com/osa030/muser/internal/infra/store"
)

var testNow = time.Date(2026, 3, 1, 5, 0, 0, 0, time.UTC)

type fakePools struct {
	mu         sync.Mutex
	pools      map[pool.Key][]track.ID
	refreshErr error
	refreshes  int
	peeks      int
}

func (f *fakePools) Refresh(_ context.Context, key pool.Key) ([]track.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	ids, ok := f.pools[key]
	if !ok {
		return nil, failure.Mark(nil, failure.ErrNoTracksAvailable, "empty")
	}
	return append([]track.ID(nil), ids...), nil
}

func (f *fakePools) Peek(key pool.Key) ([]track.ID, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.peeks++
	ids, ok := f.pools[key]
	if !ok {
		return nil, false
	}
	return append([]track.ID(nil), ids...), true
}

type fakeFetcher struct {
	mu         sync.Mutex
	unreadable map[track.ID]bool
	err        error
}

func (f *fakeFetcher) GetTrack(_ context.Context, id track.ID) (*track.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &track.Track{ID: id, Title: "live " + id.String(), Preview: "p", Readable: !f.unreadable[id]}, nil
}

// brokenStore fails every read of one genre.
type brokenStore struct {
	*store.Memory
	genre string
}

func (s *brokenStore) GetRow(ctx context.Context, typ challenge.Type, genre string) (*challenge.Row, error) {
	if genre == s.genre {
		return nil, errors.New("connection reset by peer")
	}
	return s.Memory.GetRow(ctx, typ, genre)
}

func seedRows(t *testing.T, st *store.Memory, keys ...pool.Key) {
	t.Helper()
	_, err := store.EnsureRows(context.Background(), st, keys)
	require.NoError(t, err)
}

func newTestEngine(contexts []pool.Key, pools *fakePools, st Store, fetcher *fakeFetcher) *Engine {
	return NewEngine(
		Config{Contexts: contexts, Parallelism: 2},
		pools, st, probe.New(fetcher, 10), fetcher,
		WithClock(func() time.Time { return testNow }),
	)
}

func TestRotate_AcceptAppendsHistory(t *testing.T) {
	key := pool.Genre("Pop")
	st := store.NewMemory()
	seedRows(t, st, key)

	pools := &fakePools{pools: map[pool.Key][]track.ID{key: {1, 2, 3}}}
	fetcher := &fakeFetcher{unreadable: map[track.ID]bool{1: true, 2: true}}
	e := newTestEngine([]pool.Key{key}, pools, st, fetcher)

	res := e.Rotate(context.Background(), key)
	require.Equal(t, OutcomeRotated, res.Outcome, "err: %v", res.Err)

	row, err := st.GetRow(context.Background(), challenge.TypeGenre, "Pop")
	require.NoError(t, err)
	require.NotNil(t, row.CurrentTrackID)
	assert.Equal(t, track.ID(3), *row.CurrentTrackID)
	assert.Equal(t, []track.ID{3}, row.PreviousIDs, "unreadable candidates are not recorded")
	assert.Equal(t, testNow, row.LastUpdated)
	require.NotNil(t, row.Snapshot)
	assert.Equal(t, track.ID(3), row.Snapshot.ID)
	assert.Equal(t, 1, pools.refreshes)
}

func TestRotate_ExhaustedHistoryResets(t *testing.T) {
	key := pool.Genre("Jazz")
	st := store.NewMemory()
	seedRows(t, st, key)

	row, err := st.GetRow(context.Background(), challenge.TypeGenre, "Jazz")
	require.NoError(t, err)
	var u challenge.Update
	for _, id := range []track.ID{10, 11, 12} {
		u = row.Advance(track.Track{ID: id}, testNow.Add(-24*time.Hour))
	}
	require.NoError(t, st.UpdateRow(context.Background(), row.ID, u))

	pools := &fakePools{pools: map[pool.Key][]track.ID{key: {10, 11, 12}}}
	fetcher := &fakeFetcher{}
	e := newTestEngine([]pool.Key{key}, pools, st, fetcher)

	res := e.Rotate(context.Background(), key)
	assert.Equal(t, OutcomeReset, res.Outcome)

	got, err := st.GetRow(context.Background(), challenge.TypeGenre, "Jazz")
	require.NoError(t, err)
	assert.Empty(t, got.PreviousIDs)
	require.NotNil(t, got.CurrentTrackID)
	assert.Equal(t, track.ID(12), *got.CurrentTrackID, "current track is unchanged")
	assert.Equal(t, testNow, got.LastUpdated)

	// The next cycle starts fresh
	res = e.Rotate(context.Background(), key)
	assert.Equal(t, OutcomeRotated, res.Outcome)
}

func TestRotate_AllUnreadableResets(t *testing.T) {
	key := pool.Main()
	st := store.NewMemory()
	seedRows(t, st, key)

	pools := &fakePools{pools: map[pool.Key][]track.ID{key: {1, 2}}}
	fetcher := &fakeFetcher{unreadable: map[track.ID]bool{1: true, 2: true}}
	e := newTestEngine([]pool.Key{key}, pools, st, fetcher)

	res := e.Rotate(context.Background(), key)
	assert.Equal(t, OutcomeReset, res.Outcome)

	row, err := st.GetRow(context.Background(), challenge.TypeDaily, "")
	require.NoError(t, err)
	assert.Nil(t, row.CurrentTrackID)
}

func TestRotate_RefreshFailureFallsBackToCache(t *testing.T) {
	key := pool.Main()
	st := store.NewMemory()
	seedRows(t, st, key)

	pools := &fakePools{
		pools:      map[pool.Key][]track.ID{key: {5}},
		refreshErr: failure.Mark(nil, failure.ErrUpstream, "down"),
	}
	e := newTestEngine([]pool.Key{key}, pools, st, &fakeFetcher{})

	res := e.Rotate(context.Background(), key)
	assert.Equal(t, OutcomeRotated, res.Outcome)
	require.NotNil(t, res.TrackID)
	assert.Equal(t, track.ID(5), *res.TrackID)
}

func TestRotate_RefreshFailureOnColdPoolFails(t *testing.T) {
	key := pool.Genre("Pop")
	st := store.NewMemory()
	seedRows(t, st, key)

	pools := &fakePools{refreshErr: failure.Mark(nil, failure.ErrUpstream, "down")}
	e := newTestEngine([]pool.Key{key}, pools, st, &fakeFetcher{})

	res := e.Rotate(context.Background(), key)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, failure.KindUpstream, failure.KindOf(res.Err))
	assert.Equal(t, 1, pools.refreshes, "no second build after a failed refresh")
	assert.Equal(t, 1, pools.peeks)

	row, err := st.GetRow(context.Background(), challenge.TypeGenre, "Pop")
	require.NoError(t, err)
	assert.Nil(t, row.CurrentTrackID)
}

func TestRotateAll_ContextsAreIndependent(t *testing.T) {
	main, pop, rock, jazz := pool.Main(), pool.Genre("Pop"), pool.Genre("Rock"), pool.Genre("Jazz")
	mem := store.NewMemory()
	seedRows(t, mem, main, pop, rock)
	st := &brokenStore{Memory: mem, genre: "Rock"}

	pools := &fakePools{pools: map[pool.Key][]track.ID{
		main: {1, 2},
		pop:  {3, 4},
		rock: {5, 6},
		jazz: {7},
	}}
	e := newTestEngine([]pool.Key{main, pop, rock, jazz}, pools, st, &fakeFetcher{})

	summary := e.RotateAll(context.Background())
	require.Len(t, summary.Results, 4)

	assert.Equal(t, main, summary.Results[0].Key)
	assert.Equal(t, OutcomeRotated, summary.Results[0].Outcome)
	assert.Equal(t, OutcomeRotated, summary.Results[1].Outcome)
	assert.Equal(t, OutcomeFailed, summary.Results[2].Outcome)
	assert.Error(t, summary.Results[2].Err)
	assert.Equal(t, OutcomeSkipped, summary.Results[3].Outcome, "jazz has no row")

	assert.False(t, summary.OK())
	assert.Equal(t, 2, summary.Count(OutcomeRotated))
	assert.Equal(t, testNow, summary.StartedAt)
}

func TestRotateAll_HistoryGrowsMonotonically(t *testing.T) {
	key := pool.Genre("Country")
	st := store.NewMemory()
	seedRows(t, st, key)

	pools := &fakePools{pools: map[pool.Key][]track.ID{key: {1, 2, 3}}}
	e := newTestEngine([]pool.Key{key}, pools, st, &fakeFetcher{})
	ctx := context.Background()

	last := []track.ID{}
	for i := 0; i < 3; i++ {
		e.RotateAll(ctx)
		row, err := st.GetRow(ctx, challenge.TypeGenre, "Country")
		require.NoError(t, err)
		assert.Len(t, row.PreviousIDs, i+1)
		assert.Equal(t, last, row.PreviousIDs[:len(last)], "history is append-only")
		last = row.PreviousIDs
	}
	assert.ElementsMatch(t, []track.ID{1, 2, 3}, last)

	e.RotateAll(ctx)
	row, err := st.GetRow(ctx, challenge.TypeGenre, "Country")
	require.NoError(t, err)
	assert.Empty(t, row.PreviousIDs)
}

func TestCurrent(t *testing.T) {
	main, pop := pool.Main(), pool.Genre("Pop")
	ctx := context.Background()

	t.Run("unset row is not configured", func(t *testing.T) {
		st := store.NewMemory()
		seedRows(t, st, main)
		e := newTestEngine([]pool.Key{main}, &fakePools{}, st, &fakeFetcher{})

		_, err := e.Current(ctx, main)
		assert.Equal(t, failure.KindNotConfigured, failure.KindOf(err))
	})

	t.Run("missing row is not configured", func(t *testing.T) {
		e := newTestEngine([]pool.Key{main}, &fakePools{}, store.NewMemory(), &fakeFetcher{})

		_, err := e.Current(ctx, main)
		assert.Equal(t, failure.KindNotConfigured, failure.KindOf(err))
	})

	t.Run("unknown context is not configured", func(t *testing.T) {
		e := newTestEngine([]pool.Key{main}, &fakePools{}, store.NewMemory(), &fakeFetcher{})

		_, err := e.Current(ctx, pool.Genre("Polka"))
		assert.Equal(t, failure.KindNotConfigured, failure.KindOf(err))
	})

	t.Run("live metadata then snapshot fallback", func(t *testing.T) {
		st := store.NewMemory()
		seedRows(t, st, pop)
		pools := &fakePools{pools: map[pool.Key][]track.ID{pop: {9}}}
		fetcher := &fakeFetcher{}
		e := newTestEngine([]pool.Key{pop}, pools, st, fetcher)
		require.Equal(t, OutcomeRotated, e.Rotate(ctx, pop).Outcome)

		got, err := e.Current(ctx, pop)
		require.NoError(t, err)
		assert.Equal(t, track.ID(9), got.ID)

		fetcher.err = failure.Mark(errors.New("timeout"), failure.ErrUpstream, "down")
		got, err = e.Current(ctx, pop)
		require.NoError(t, err)
		assert.Equal(t, track.ID(9), got.ID)
		assert.Equal(t, "live 9", got.Title)
	})

	t.Run("upstream failure without snapshot", func(t *testing.T) {
		st := store.NewMemory()
		seedRows(t, st, pop)
		row, err := st.GetRow(ctx, challenge.TypeGenre, "Pop")
		require.NoError(t, err)
		u := row.Advance(track.Track{ID: 4}, testNow)
		u.Snapshot = nil
		require.NoError(t, st.UpdateRow(ctx, row.ID, u))

		fetcher := &fakeFetcher{err: errors.New("dial tcp: connection refused")}
		e := newTestEngine([]pool.Key{pop}, &fakePools{}, st, fetcher)

		_, err = e.Current(ctx, pop)
		assert.Equal(t, failure.KindUpstream, failure.KindOf(err))
	})
}
