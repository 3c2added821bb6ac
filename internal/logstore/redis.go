package logstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/DukeRupert/designaudit/internal/domain"
)

const (
	// KeyPrefix is the Redis key prefix of stored calculation logs.
	KeyPrefix = "designaudit:calclog:"
	// DefaultTTL is how long a log is kept after its last write.
	DefaultTTL = 24 * time.Hour

	maxUpdateAttempts = 10
)

// RedisStore keeps calculation logs as JSON strings in Redis. Update uses
// optimistic locking (WATCH/MULTI) so concurrent writers from several
// processes never lose an override.
type RedisStore struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisStore creates a store over rdb. A non-positive ttl selects DefaultTTL.
func NewRedisStore(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl, logger: logger}
}

func key(id uuid.UUID) string {
	return KeyPrefix + id.String()
}

func (s *RedisStore) Get(ctx context.Context, id uuid.UUID) (*domain.CalculationLog, error) {
	const op = "logstore.redis.get"

	data, err := s.rdb.Get(ctx, key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.NotFound(op, "calculation log", id.String())
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return decode(data)
}

func (s *RedisStore) Put(ctx context.Context, log *domain.CalculationLog) error {
	data, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("encode calculation log: %w", err)
	}
	if err := s.rdb.Set(ctx, key(log.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.rdb.Del(ctx, key(id)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *RedisStore) Update(ctx context.Context, id uuid.UUID, fn func(*domain.CalculationLog) error) error {
	const op = "logstore.redis.update"

	k := key(id)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, k).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return domain.NotFound(op, "calculation log", id.String())
			}
			return fmt.Errorf("redis get: %w", err)
		}
		log, err := decode(data)
		if err != nil {
			return err
		}
		if err := fn(log); err != nil {
			return err
		}
		out, err := json.Marshal(log)
		if err != nil {
			return fmt.Errorf("encode calculation log: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, out, s.ttl)
			return nil
		})
		return err
	}

	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		err := s.rdb.Watch(ctx, txf, k)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		s.logger.Debug("calculation log changed during update, retrying", "log_id", id, "attempt", attempt)
	}
	return domain.Conflict(op, fmt.Sprintf("calculation log %s is being modified concurrently", id))
}
