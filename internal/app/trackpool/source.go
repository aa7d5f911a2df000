package trackpool

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/muser/internal/domain/failure"
	"github.com/osa030/muser/internal/domain/track"
	"github.com/osa030/muser/internal/infra/metrics"
)

// Catalog defines the catalog operations needed to build pools.
type Catalog interface {
	GetPlaylistTrackIDs(ctx context.Context, playlistID int64) ([]track.ID, error)
	SearchArtist(ctx context.Context, name string) (*track.ArtistRef, error)
	GetArtistTopTrackIDs(ctx context.Context, artistID int64, limit int) ([]track.ID, error)
}

// Source produces the track ids of a pool.
type Source interface {
	// Fetch retrieves track ids from the catalog.
	Fetch(ctx context.Context) ([]track.ID, error)
	// Name returns a label used in logs and metrics.
	Name() string
}

// PlaylistSourceConfig holds the settings of a playlist source.
type PlaylistSourceConfig struct {
	PlaylistID int64 `mapstructure:"playlist_id" validate:"required,gt=0"`
}

// PlaylistSource reads the track ids of one playlist.
type PlaylistSource struct {
	catalog Catalog
	config  *PlaylistSourceConfig
}

// NewPlaylistSource creates a PlaylistSource from settings.
func NewPlaylistSource(catalog Catalog, settings map[string]any) (*PlaylistSource, error) {
	var config PlaylistSourceConfig
	if err := decodeSettings(settings, &config); err != nil {
		return nil, err
	}
	return &PlaylistSource{catalog: catalog, config: &config}, nil
}

// Fetch retrieves the playlist's track ids.
func (s *PlaylistSource) Fetch(ctx context.Context) ([]track.ID, error) {
	ids, err := s.catalog.GetPlaylistTrackIDs(ctx, s.config.PlaylistID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch playlist %d", s.config.PlaylistID)
	}
	return ids, nil
}

// Name returns the source label.
func (s *PlaylistSource) Name() string {
	return fmt.Sprintf("playlist:%d", s.config.PlaylistID)
}

// ArtistSourceConfig holds the settings of an artist source.
type ArtistSourceConfig struct {
	Name  string `mapstructure:"name" validate:"required"`
	Limit int    `mapstructure:"limit" default:"50" validate:"gte=1,lte=100"`
}

// ArtistSource reads an artist's top tracks.
type ArtistSource struct {
	catalog Catalog
	config  *ArtistSourceConfig
}

// NewArtistSource creates an ArtistSource from settings.
func NewArtistSource(catalog Catalog, settings map[string]any) (*ArtistSource, error) {
	var config ArtistSourceConfig
	if err := decodeSettings(settings, &config); err != nil {
		return nil, err
	}
	return &ArtistSource{catalog: catalog, config: &config}, nil
}

// Fetch resolves the artist by name, then reads its top tracks in one call.
// A failed search propagates, including failure.ErrNotFound.
func (s *ArtistSource) Fetch(ctx context.Context) ([]track.ID, error) {
	artist, err := s.catalog.SearchArtist(ctx, s.config.Name)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve artist %q", s.config.Name)
	}

	ids, err := s.catalog.GetArtistTopTrackIDs(ctx, artist.ID, s.config.Limit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch top tracks of %q", artist.Name)
	}
	zlog.Debug().Msgf("artist resolved: query=%q artist=%s id=%d tracks=%d", s.config.Name, artist.Name, artist.ID, len(ids))
	return ids, nil
}

// Name returns the source label.
func (s *ArtistSource) Name() string {
	return "artist:" + s.config.Name
}

// Chain merges the results of several sources.
// A failing source is logged and skipped, so one bad playlist does not fail the pool.
type Chain struct {
	sources []Source
}

// NewChain creates a chain over sources.
func NewChain(sources ...Source) *Chain {
	return &Chain{sources: sources}
}

// Fetch returns the deduplicated union of every successful source.
// Returns failure.ErrNoTracksAvailable when the union is empty.
func (c *Chain) Fetch(ctx context.Context) ([]track.ID, error) {
	var all []track.ID
	var lastErr error

	for i, src := range c.sources {
		ids, err := src.Fetch(ctx)
		if err != nil {
			// A context error affects every remaining source alike
			if ctx.Err() != nil {
				return nil, errors.Wrap(ctx.Err(), "pool build cancelled")
			}
			zlog.Warn().Msgf("source failed, trying next: index=%d/%d source=%s error=%v", i+1, len(c.sources), src.Name(), err)
			metrics.PoolSourceFailures.WithLabelValues(sourceKind(src)).Inc()
			lastErr = err
			continue
		}
		all = append(all, ids...)
		zlog.Debug().Msgf("source returned tracks: source=%s count=%d total_so_far=%d", src.Name(), len(ids), len(all))
	}

	all = track.Dedup(all)
	if len(all) == 0 {
		return nil, failure.Mark(lastErr, failure.ErrNoTracksAvailable, "all sources returned no tracks")
	}
	return all, nil
}

// Name returns the chain label.
func (c *Chain) Name() string {
	return fmt.Sprintf("chain(%d)", len(c.sources))
}

func sourceKind(src Source) string {
	switch src.(type) {
	case *PlaylistSource:
		return "playlist"
	case *ArtistSource:
		return "artist"
	default:
		return "other"
	}
}

// decodeSettings decodes, defaults and validates source settings.
func decodeSettings(settings map[string]any, out any) error {
	if err := mapstructure.Decode(settings, out); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}
