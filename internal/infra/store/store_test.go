package store

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/muser/internal/domain/challenge"
	"github.com/osa030/muser/internal/domain/pool"
	"github.com/osa030/muser/internal/domain/track"
	"github.com/osa030/muser/internal/infra/config"
)

func TestMemory_CreateGetUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	_, err := s.GetRow(ctx, challenge.TypeGenre, "Jazz")
	assert.True(t, errors.Is(err, ErrRowNotFound))

	require.NoError(t, s.CreateRow(ctx, challenge.NewRow("row-1", pool.Genre("Jazz"))))
	err = s.CreateRow(ctx, challenge.NewRow("row-2", pool.Genre("Jazz")))
	assert.True(t, errors.Is(err, ErrRowExists))

	row, err := s.GetRow(ctx, challenge.TypeGenre, "Jazz")
	require.NoError(t, err)
	assert.Equal(t, "row-1", row.ID)
	assert.Nil(t, row.CurrentTrackID)

	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	u := row.Advance(track.Track{ID: 42, Title: "So What"}, now)
	require.NoError(t, s.UpdateRow(ctx, row.ID, u))

	got, err := s.GetRow(ctx, challenge.TypeGenre, "Jazz")
	require.NoError(t, err)
	require.NotNil(t, got.CurrentTrackID)
	assert.Equal(t, track.ID(42), *got.CurrentTrackID)
	assert.Equal(t, []track.ID{42}, got.PreviousIDs)
	assert.Equal(t, now, got.LastUpdated)
	require.NotNil(t, got.Snapshot)
	assert.Equal(t, "So What", got.Snapshot.Title)

	err = s.UpdateRow(ctx, "missing", u)
	assert.True(t, errors.Is(err, ErrRowNotFound))
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.CreateRow(ctx, challenge.NewRow("row-1", pool.Main())))

	row, err := s.GetRow(ctx, challenge.TypeDaily, "")
	require.NoError(t, err)
	row.PreviousIDs = append(row.PreviousIDs, 1, 2, 3)

	again, err := s.GetRow(ctx, challenge.TypeDaily, "")
	require.NoError(t, err)
	assert.Empty(t, again.PreviousIDs)
}

func TestEnsureRows(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	keys := []pool.Key{pool.Main(), pool.Genre("Pop"), pool.Genre("Jazz"), pool.Artist("drake")}

	created, err := EnsureRows(ctx, s, keys)
	require.NoError(t, err)
	assert.Equal(t, 3, created)

	created, err = EnsureRows(ctx, s, keys)
	require.NoError(t, err)
	assert.Equal(t, 0, created)

	main, err := s.GetRow(ctx, challenge.TypeDaily, "")
	require.NoError(t, err)
	assert.Len(t, main.ID, 36)
	assert.Equal(t, challenge.TypeDaily, main.Type)

	_, err = s.GetRow(ctx, challenge.TypeGenre, "drake")
	assert.True(t, errors.Is(err, ErrRowNotFound))
}

func TestRecord_ApplyKeepsIdentity(t *testing.T) {
	cur := track.ID(7)
	row := &challenge.Row{
		ID:             "row-1",
		Type:           challenge.TypeGenre,
		Genre:          "Rock",
		CurrentTrackID: &cur,
		PreviousIDs:    []track.ID{3, 7},
	}
	rec := toRecord(row)

	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	rec.apply(row.Clone().ResetHistory(now))

	back := rec.toRow()
	assert.Equal(t, "row-1", back.ID)
	assert.Equal(t, challenge.TypeGenre, back.Type)
	assert.Equal(t, "Rock", back.Genre)
	require.NotNil(t, back.CurrentTrackID)
	assert.Equal(t, track.ID(7), *back.CurrentTrackID)
	assert.Empty(t, back.PreviousIDs)
	assert.Equal(t, now, back.LastUpdated)
}

func TestRedis_Keys(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	s := newRedisWithClient(client, "")
	assert.Equal(t, "muser:challenge:row:daily:", s.rowKey(challenge.TypeDaily, ""))
	assert.Equal(t, "muser:challenge:row:genre:R&B", s.rowKey(challenge.TypeGenre, "R&B"))
	assert.Equal(t, "muser:challenge:id:abc", s.idKey("abc"))

	custom := newRedisWithClient(client, "game")
	assert.Equal(t, "game:row:genre:Pop", custom.rowKey(challenge.TypeGenre, "Pop"))
}

func TestOpen(t *testing.T) {
	s, err := Open(context.Background(), config.StoreConfig{Driver: config.StoreDriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)
	assert.NoError(t, s.Close())

	_, err = Open(context.Background(), config.StoreConfig{Driver: "sqlite"})
	assert.Error(t, err)
}
