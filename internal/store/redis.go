package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"phrasehunt/internal/gameerr"
	"phrasehunt/internal/models"
)

const (
	indexKey         = "challenges:index"
	maxUpdateRetries = 10
)

func challengeKey(id string) string {
	return "challenge:" + id
}

// RedisStore keeps one JSON document per challenge plus a sorted set of ids
// scored by creation time.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// List returns challenges newest first.
func (s *RedisStore) List(ctx context.Context) ([]*models.Challenge, error) {
	ids, err := s.client.ZRevRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list challenge ids: %w", err)
	}
	if len(ids) == 0 {
		return []*models.Challenge{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = challengeKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load challenges: %w", err)
	}

	challenges := make([]*models.Challenge, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Indexed but missing; skip rather than fail the whole list.
			continue
		}
		c, err := decode([]byte(raw))
		if err != nil {
			return nil, err
		}
		challenges = append(challenges, c)
	}
	return challenges, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*models.Challenge, error) {
	raw, err := s.client.Get(ctx, challengeKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get challenge %s: %w", id, err)
	}
	return decode(raw)
}

// Put writes a new challenge and indexes it. Existing ids are overwritten.
func (s *RedisStore) Put(ctx context.Context, c *models.Challenge) error {
	data, err := encode(c)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, challengeKey(c.ID), data, 0)
		pipe.ZAdd(ctx, indexKey, redis.Z{Score: float64(c.CreatedAt.UnixMilli()), Member: c.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to put challenge %s: %w", c.ID, err)
	}
	return nil
}

// Update applies fn under WATCH and retries when another writer got in first.
func (s *RedisStore) Update(ctx context.Context, id string, fn MutateFunc) (*models.Challenge, error) {
	key := challengeKey(id)

	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		var updated *models.Challenge
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return notFound(id)
			}
			if err != nil {
				return fmt.Errorf("failed to get challenge %s: %w", id, err)
			}
			c, err := decode(raw)
			if err != nil {
				return err
			}
			if err := fn(c); err != nil {
				return err
			}
			c.Version++
			data, err := encode(c)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, 0)
				return nil
			})
			if err != nil {
				return err
			}
			updated = c
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, gameerr.Wrap(gameerr.CodeConflict, fmt.Sprintf("challenge %s kept changing", id), redis.TxFailedErr)
}

// Ping reports whether the backing server is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
