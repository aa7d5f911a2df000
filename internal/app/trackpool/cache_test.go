package trackpool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/muser/internal/domain/failure"
	"github.com/osa030/muser/internal/domain/pool"
	"github.com/osa030/muser/internal/domain/track"
	"github.com/osa030/muser/internal/infra/config"
)

type fakeCatalog struct {
	mu            sync.Mutex
	playlists     map[int64][]track.ID
	failPlaylists map[int64]bool
	artists       map[string]int64
	topTracks     map[int64][]track.ID
	playlistCalls map[int64]int
	searches      []string
	topLimits     []int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		playlists:     make(map[int64][]track.ID),
		failPlaylists: make(map[int64]bool),
		artists:       make(map[string]int64),
		topTracks:     make(map[int64][]track.ID),
		playlistCalls: make(map[int64]int),
	}
}

func (f *fakeCatalog) GetPlaylistTrackIDs(_ context.Context, id int64) ([]track.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playlistCalls[id]++
	if f.failPlaylists[id] {
		return nil, failure.Mark(errors.New("502 bad gateway"), failure.ErrUpstream, "playlist")
	}
	return append([]track.ID(nil), f.playlists[id]...), nil
}

func (f *fakeCatalog) SearchArtist(_ context.Context, name string) (*track.ArtistRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, name)
	id, ok := f.artists[name]
	if !ok {
		return nil, failure.Mark(nil, failure.ErrNotFound, "no artist")
	}
	return &track.ArtistRef{ID: id, Name: name}, nil
}

func (f *fakeCatalog) GetArtistTopTrackIDs(_ context.Context, artistID int64, limit int) ([]track.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topLimits = append(f.topLimits, limit)
	return append([]track.ID(nil), f.topTracks[artistID]...), nil
}

func (f *fakeCatalog) calls(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playlistCalls[id]
}

func testConfig() *config.Config {
	return &config.Config{
		Daily: config.DailyConfig{Playlists: []int64{100}},
		Genres: []config.GenreConfig{
			{Name: "Pop", Playlists: []int64{100, 200}},
			{Name: "Jazz", Playlists: []int64{300}},
		},
		Artist: config.ArtistConfig{TopLimit: 50},
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(catalog *fakeCatalog, clock *fakeClock) *Cache {
	return New(NewResolverFromConfig(testConfig(), catalog), 6*time.Hour, WithClock(clock.Now))
}

func TestCache_GenreUnionIsDeduplicated(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.playlists[100] = []track.ID{1, 2}
	catalog.playlists[200] = []track.ID{2, 3}
	cache := newTestCache(catalog, &fakeClock{now: time.Now()})

	ids, err := cache.Get(context.Background(), pool.Genre("Pop"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []track.ID{1, 2, 3}, ids)
}

func TestCache_TTL(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.playlists[300] = []track.ID{7, 8}
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	cache := newTestCache(catalog, clock)
	ctx := context.Background()

	_, err := cache.Get(ctx, pool.Genre("Jazz"))
	require.NoError(t, err)

	clock.Advance(5*time.Hour + 59*time.Minute)
	_, err = cache.Get(ctx, pool.Genre("Jazz"))
	require.NoError(t, err)
	assert.Equal(t, 1, catalog.calls(300), "entry within TTL is reused")

	clock.Advance(time.Minute)
	_, err = cache.Get(ctx, pool.Genre("Jazz"))
	require.NoError(t, err)
	assert.Equal(t, 2, catalog.calls(300), "expired entry is rebuilt")
	ids, ok := cache.Peek(pool.Genre("Jazz"))
	assert.True(t, ok)
	assert.Equal(t, []track.ID{7, 8}, ids)
}

func TestCache_PartialPlaylistFailure(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.failPlaylists[100] = true
	catalog.playlists[200] = []track.ID{4, 5}
	cache := newTestCache(catalog, &fakeClock{now: time.Now()})

	ids, err := cache.Get(context.Background(), pool.Genre("Pop"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []track.ID{4, 5}, ids)
}

func TestCache_AllPlaylistsFail(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.failPlaylists[100] = true
	catalog.failPlaylists[200] = true
	cache := newTestCache(catalog, &fakeClock{now: time.Now()})

	_, err := cache.Get(context.Background(), pool.Genre("Pop"))
	require.Error(t, err)
	assert.Equal(t, failure.KindNoTracksAvailable, failure.KindOf(err))
	_, ok := cache.Peek(pool.Genre("Pop"))
	assert.False(t, ok)
}

func TestCache_EmptyPool(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.playlists[300] = []track.ID{}
	cache := newTestCache(catalog, &fakeClock{now: time.Now()})

	_, err := cache.Get(context.Background(), pool.Genre("Jazz"))
	assert.Equal(t, failure.KindNoTracksAvailable, failure.KindOf(err))
}

func TestCache_UnknownGenre(t *testing.T) {
	cache := newTestCache(newFakeCatalog(), &fakeClock{now: time.Now()})

	_, err := cache.Get(context.Background(), pool.Genre("Polka"))
	assert.Equal(t, failure.KindNotConfigured, failure.KindOf(err))
}

func TestCache_ArtistKeyIsNormalized(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.artists["drake"] = 246791
	catalog.topTracks[246791] = []track.ID{11, 12, 11}
	cache := newTestCache(catalog, &fakeClock{now: time.Now()})
	ctx := context.Background()

	ids, err := cache.Get(ctx, pool.Artist(" Drake "))
	require.NoError(t, err)
	assert.Equal(t, []track.ID{11, 12}, ids)

	_, err = cache.Get(ctx, pool.Artist("drake"))
	require.NoError(t, err)

	assert.Equal(t, []string{"drake"}, catalog.searches)
	assert.Equal(t, []int{50}, catalog.topLimits)
	_, ok := cache.Peek(pool.Artist("DRAKE"))
	assert.True(t, ok)
}

func TestCache_ArtistNotFound(t *testing.T) {
	cache := newTestCache(newFakeCatalog(), &fakeClock{now: time.Now()})

	_, err := cache.Get(context.Background(), pool.Artist("nobody"))
	assert.Equal(t, failure.KindNotFound, failure.KindOf(err))
}

func TestCache_ArtistWithoutTopTracks(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.artists["quiet"] = 1
	cache := newTestCache(catalog, &fakeClock{now: time.Now()})

	_, err := cache.Get(context.Background(), pool.Artist("quiet"))
	assert.Equal(t, failure.KindNoTracksAvailable, failure.KindOf(err))
}

func TestCache_RefreshBypassesTTL(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.playlists[100] = []track.ID{1}
	cache := newTestCache(catalog, &fakeClock{now: time.Now()})
	ctx := context.Background()

	_, err := cache.Get(ctx, pool.Main())
	require.NoError(t, err)

	catalog.playlists[100] = []track.ID{1, 2}
	ids, err := cache.Refresh(ctx, pool.Main())
	require.NoError(t, err)
	assert.Equal(t, []track.ID{1, 2}, ids)
	assert.Equal(t, 2, catalog.calls(100))

	// A failed refresh keeps the last good entry
	catalog.failPlaylists[100] = true
	_, err = cache.Refresh(ctx, pool.Main())
	require.Error(t, err)

	ids, err = cache.Get(ctx, pool.Main())
	require.NoError(t, err)
	assert.Equal(t, []track.ID{1, 2}, ids)
}

func TestCache_ReturnsCopy(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.playlists[100] = []track.ID{1, 2}
	cache := newTestCache(catalog, &fakeClock{now: time.Now()})
	ctx := context.Background()

	ids, err := cache.Get(ctx, pool.Main())
	require.NoError(t, err)
	ids[0] = 999

	again, err := cache.Get(ctx, pool.Main())
	require.NoError(t, err)
	assert.Equal(t, []track.ID{1, 2}, again)
}

func TestCache_ConcurrentMissesBuildOnce(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.playlists[300] = []track.ID{1, 2, 3}
	cache := newTestCache(catalog, &fakeClock{now: time.Now()})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids, err := cache.Get(context.Background(), pool.Genre("Jazz"))
			assert.NoError(t, err)
			assert.Len(t, ids, 3)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, catalog.calls(300))
}

// gatedSource blocks Fetch until release is closed.
type gatedSource struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	mu      sync.Mutex
	fetches int
}

func (s *gatedSource) Fetch(ctx context.Context) ([]track.ID, error) {
	s.mu.Lock()
	s.fetches++
	s.mu.Unlock()
	s.once.Do(func() { close(s.started) })
	select {
	case <-s.release:
		return []track.ID{1, 2}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *gatedSource) Name() string { return "gated" }

func TestCache_CancelledCallerDoesNotFailSharedBuild(t *testing.T) {
	src := &gatedSource{started: make(chan struct{}), release: make(chan struct{})}
	cache := New(func(pool.Key) (Source, error) { return src, nil }, time.Hour)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cache.Get(first, pool.Main())
		firstErr <- err
	}()
	<-src.started

	type result struct {
		ids []track.ID
		err error
	}
	second := make(chan result, 1)
	go func() {
		ids, err := cache.Get(context.Background(), pool.Main())
		second <- result{ids, err}
	}()

	// Let the second caller join the flight before the first one leaves
	time.Sleep(50 * time.Millisecond)
	cancel()
	err := <-firstErr
	assert.ErrorIs(t, err, context.Canceled)

	close(src.release)
	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, []track.ID{1, 2}, res.ids)

	src.mu.Lock()
	assert.Equal(t, 1, src.fetches)
	src.mu.Unlock()

	ids, ok := cache.Peek(pool.Main())
	assert.True(t, ok)
	assert.Equal(t, []track.ID{1, 2}, ids)
}

func TestCache_BuildTimeout(t *testing.T) {
	src := &gatedSource{started: make(chan struct{}), release: make(chan struct{})}
	cache := New(func(pool.Key) (Source, error) { return src, nil }, time.Hour, WithBuildTimeout(20*time.Millisecond))

	_, err := cache.Get(context.Background(), pool.Main())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	_, ok := cache.Peek(pool.Main())
	assert.False(t, ok)
}

func TestCache_Clear(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.playlists[100] = []track.ID{1}
	cache := newTestCache(catalog, &fakeClock{now: time.Now()})
	ctx := context.Background()

	_, err := cache.Get(ctx, pool.Main())
	require.NoError(t, err)
	cache.Clear(pool.Main())
	_, ok := cache.Peek(pool.Main())
	assert.False(t, ok)

	_, err = cache.Get(ctx, pool.Main())
	require.NoError(t, err)
	assert.Equal(t, 2, catalog.calls(100))
}

func TestNewPlaylistSource_InvalidSettings(t *testing.T) {
	_, err := NewPlaylistSource(newFakeCatalog(), map[string]any{})
	assert.Error(t, err)

	_, err = NewArtistSource(newFakeCatalog(), map[string]any{"limit": 500, "name": "x"})
	assert.Error(t, err)

	src, err := NewArtistSource(newFakeCatalog(), map[string]any{"name": "x"})
	require.NoError(t, err)
	assert.Equal(t, 50, src.config.Limit)
}
