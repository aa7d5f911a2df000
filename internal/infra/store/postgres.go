package store

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/osa030/muser/internal/domain/challenge"
	"github.com/osa030/muser/internal/infra/config"
)

// Postgres stores rows in the challenge_rows table.
type Postgres struct {
	db *gorm.DB
}

// NewPostgres opens the database, configures the pool and migrates the schema.
func NewPostgres(ctx context.Context, cfg config.PostgresConfig) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get underlying sql.DB")
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLife)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	if err := db.WithContext(ctx).AutoMigrate(&record{}); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "failed to migrate challenge_rows")
	}

	zlog.Info().Msg("postgres store connected")
	return &Postgres{db: db}, nil
}

// GetRow selects the row of a context.
func (s *Postgres) GetRow(ctx context.Context, typ challenge.Type, genre string) (*challenge.Row, error) {
	var rec record
	err := s.db.WithContext(ctx).
		Where("type = ? AND genre = ?", string(typ), genre).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(ErrRowNotFound, "type=%s genre=%s", typ, genre)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read row")
	}
	return rec.toRow(), nil
}

// UpdateRow writes the rotation fields of a row.
func (s *Postgres) UpdateRow(ctx context.Context, id string, u challenge.Update) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec record
		if err := tx.First(&rec, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrapf(ErrRowNotFound, "id=%s", id)
			}
			return errors.Wrap(err, "failed to read row")
		}
		rec.apply(u)
		if err := tx.Save(&rec).Error; err != nil {
			return errors.Wrapf(err, "failed to update row %s", id)
		}
		return nil
	})
}

// CreateRow inserts a row. The unique (type, genre) index rejects duplicates.
func (s *Postgres) CreateRow(ctx context.Context, row *challenge.Row) error {
	err := s.db.WithContext(ctx).Create(toRecord(row)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errors.Wrapf(ErrRowExists, "type=%s genre=%s", row.Type, row.Genre)
	}
	if err != nil {
		return errors.Wrap(err, "failed to create row")
	}
	return nil
}

// Close closes the database connection.
func (s *Postgres) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
