package trackpool

import (
	"github.com/cockroachdb/errors"

	"github.com/osa030/muser/internal/domain/failure"
	"github.com/osa030/muser/internal/domain/pool"
	"github.com/osa030/muser/internal/infra/config"
)

// Resolver returns the source that builds the pool of a key.
type Resolver func(key pool.Key) (Source, error)

// NewResolverFromConfig maps pool keys to sources using the configured playlists.
func NewResolverFromConfig(cfg *config.Config, catalog Catalog) Resolver {
	return func(key pool.Key) (Source, error) {
		switch key.Kind {
		case pool.KindMain:
			return playlistChain(catalog, cfg.Daily.Playlists)

		case pool.KindGenre:
			playlists, ok := cfg.GenrePlaylists(key.Name)
			if !ok || len(playlists) == 0 {
				return nil, failure.Mark(nil, failure.ErrNotConfigured, "unknown genre "+key.Name)
			}
			return playlistChain(catalog, playlists)

		case pool.KindArtist:
			return NewArtistSource(catalog, map[string]any{
				"name":  key.Name,
				"limit": cfg.Artist.TopLimit,
			})

		default:
			return nil, errors.Newf("unsupported pool kind: %s", key.Kind)
		}
	}
}

func playlistChain(catalog Catalog, playlists []int64) (Source, error) {
	if len(playlists) == 0 {
		return nil, failure.Mark(nil, failure.ErrNotConfigured, "no playlists configured")
	}

	sources := make([]Source, 0, len(playlists))
	for i, id := range playlists {
		src, err := NewPlaylistSource(catalog, map[string]any{"playlist_id": id})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create playlist source (index %d)", i)
		}
		sources = append(sources, src)
	}
	return NewChain(sources...), nil
}
