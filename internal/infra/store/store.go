// Package store persists daily-challenge rows.
package store

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/muser/internal/domain/challenge"
	"github.com/osa030/muser/internal/domain/pool"
	"github.com/osa030/muser/internal/infra/config"
)

var (
	// ErrRowNotFound is returned when no row exists for the requested context.
	ErrRowNotFound = errors.New("challenge row not found")
	// ErrRowExists is returned when creating a row whose context already has one.
	ErrRowExists = errors.New("challenge row already exists")
)

// Store reads and writes challenge rows. There is one row per (type, genre).
type Store interface {
	// GetRow returns a copy of the row, or ErrRowNotFound.
	GetRow(ctx context.Context, typ challenge.Type, genre string) (*challenge.Row, error)
	// UpdateRow writes a rotation result to the row with the given id.
	UpdateRow(ctx context.Context, id string, u challenge.Update) error
	// CreateRow inserts a new row, or returns ErrRowExists.
	CreateRow(ctx context.Context, row *challenge.Row) error
	// Close releases the underlying connection.
	Close() error
}

// Open creates the store selected by the configuration.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case config.StoreDriverRedis:
		return NewRedis(ctx, cfg.Redis)
	case config.StoreDriverPostgres:
		return NewPostgres(ctx, cfg.Postgres)
	case config.StoreDriverMemory, "":
		return NewMemory(), nil
	default:
		return nil, errors.Newf("unknown store driver %q", cfg.Driver)
	}
}

// EnsureRows provisions an empty row for every key that has none.
// Returns the number of rows created.
func EnsureRows(ctx context.Context, s Store, keys []pool.Key) (int, error) {
	created := 0
	for _, key := range keys {
		if !key.IsRotating() {
			continue
		}
		typ, genre := challenge.TypeFor(key)

		_, err := s.GetRow(ctx, typ, genre)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrRowNotFound) {
			return created, errors.Wrapf(err, "failed to look up row for %s", key)
		}

		row := challenge.NewRow(uuid.New().String(), key)
		if err := s.CreateRow(ctx, row); err != nil {
			if errors.Is(err, ErrRowExists) {
				continue
			}
			return created, errors.Wrapf(err, "failed to create row for %s", key)
		}
		zlog.Info().Msgf("challenge row created: key=%s id=%s", key, row.ID)
		created++
	}
	return created, nil
}
