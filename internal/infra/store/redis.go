package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/muser/internal/domain/challenge"
	"github.com/osa030/muser/internal/infra/config"
)

// maxTxRetries bounds optimistic-lock retries of a write.
const maxTxRetries = 3

// Redis stores rows as JSON values.
//
// Layout:
//
//	<prefix>:row:<type>:<genre> -> JSON row
//	<prefix>:id:<id>            -> row key
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "failed to connect to redis at %s", cfg.Addr)
	}

	zlog.Info().Msgf("redis store connected: addr=%s db=%d", cfg.Addr, cfg.DB)
	return newRedisWithClient(client, cfg.KeyPrefix), nil
}

func newRedisWithClient(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "muser:challenge"
	}
	return &Redis{client: client, prefix: prefix}
}

func (s *Redis) rowKey(typ challenge.Type, genre string) string {
	return s.prefix + ":row:" + string(typ) + ":" + genre
}

func (s *Redis) idKey(id string) string {
	return s.prefix + ":id:" + id
}

// GetRow reads and decodes a row.
func (s *Redis) GetRow(ctx context.Context, typ challenge.Type, genre string) (*challenge.Row, error) {
	data, err := s.client.Get(ctx, s.rowKey(typ, genre)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errors.Wrapf(ErrRowNotFound, "type=%s genre=%s", typ, genre)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read row")
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal row")
	}
	return rec.toRow(), nil
}

// UpdateRow applies an update under WATCH so concurrent writers do not lose updates.
func (s *Redis) UpdateRow(ctx context.Context, id string, u challenge.Update) error {
	key, err := s.client.Get(ctx, s.idKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return errors.Wrapf(ErrRowNotFound, "id=%s", id)
	}
	if err != nil {
		return errors.Wrap(err, "failed to resolve row id")
	}

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return errors.Wrapf(ErrRowNotFound, "id=%s", id)
		}
		if err != nil {
			return err
		}

		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			return errors.Wrap(err, "failed to unmarshal row")
		}
		rec.apply(u)

		out, err := json.Marshal(&rec)
		if err != nil {
			return errors.Wrap(err, "failed to marshal row")
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err = s.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
		zlog.Debug().Msgf("row update conflicted, retrying: id=%s attempt=%d", id, i+1)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to update row %s", id)
	}
	return nil
}

// CreateRow inserts a row if its context has none. The row and its id
// index are written in one MULTI under WATCH, so a reader never sees one
// without the other.
func (s *Redis) CreateRow(ctx context.Context, row *challenge.Row) error {
	data, err := json.Marshal(toRecord(row))
	if err != nil {
		return errors.Wrap(err, "failed to marshal row")
	}

	key := s.rowKey(row.Type, row.Genre)
	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return errors.Wrapf(ErrRowExists, "type=%s genre=%s", row.Type, row.Genre)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.Set(ctx, s.idKey(row.ID), key, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err = s.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
		zlog.Debug().Msgf("row create conflicted, retrying: type=%s genre=%s attempt=%d", row.Type, row.Genre, i+1)
	}
	if errors.Is(err, ErrRowExists) {
		return err
	}
	if err != nil {
		return errors.Wrap(err, "failed to create row")
	}
	return nil
}

// Close closes the Redis client.
func (s *Redis) Close() error {
	return s.client.Close()
}
