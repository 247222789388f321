package breaker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix  = "parley:breaker:"
	redisRecordTTL  = 24 * time.Hour
	maxWatchRetries = 5
)

// RedisStore shares breaker state across replicas. Updates are optimistic WATCH/MULTI
// transactions retried on contention.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Update(ctx context.Context, key string, fn func(rec *Record) bool) (Record, error) {
	redisKey := redisKeyPrefix + key

	var rec Record

	txf := func(tx *redis.Tx) error {
		rec = Record{}

		raw, err := tx.Get(ctx, redisKey).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(raw, &rec); err != nil {
				return fmt.Errorf("failed to decode breaker record %q: %w", key, err)
			}
		}

		normalize(&rec)

		if !fn(&rec) {
			return nil
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to encode breaker record %q: %w", key, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey, data, redisRecordTTL)

			return nil
		})

		return err
	}

	for range maxWatchRetries {
		err := s.client.Watch(ctx, txf, redisKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}

		if err != nil {
			return Record{}, fmt.Errorf("breaker redis update: %w", err)
		}

		return rec, nil
	}

	return Record{}, fmt.Errorf("breaker redis update %q: %w", key, redis.TxFailedErr)
}
