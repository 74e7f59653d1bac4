package localstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const (
	redisKeyPrefix    = "localstore:"
	redisMaxTxRetries = 5
)

type Redis struct {
	Client *redis.Client
}

func NewRedis(client *redis.Client) *Redis { return &Redis{Client: client} }

func redisKey(key string) string { return redisKeyPrefix + key }

func (s *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.Client.Get(ctx, redisKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s from Redis: %w", key, err)
	}
	return v, true, nil
}

func (s *Redis) Set(ctx context.Context, key, value string) error {
	if err := s.Client.Set(ctx, redisKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s in Redis: %w", key, err)
	}
	return nil
}

func (s *Redis) Remove(ctx context.Context, key string) error {
	if err := s.Client.Del(ctx, redisKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete %s from Redis: %w", key, err)
	}
	return nil
}

// Update: WATCH/MULTI による楽観ロック。競合時は数回だけやり直す
func (s *Redis) Update(ctx context.Context, key string, fn UpdateFunc) error {
	k := redisKey(key)
	txf := func(tx *redis.Tx) error {
		old, err := tx.Get(ctx, k).Result()
		ok := true
		if errors.Is(err, redis.Nil) {
			old, ok = "", false
		} else if err != nil {
			return err
		}
		v, err := fn(old, ok)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, v, 0)
			return nil
		})
		return err
	}

	for i := 0; i < redisMaxTxRetries; i++ {
		err := s.Client.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to update %s in Redis: %w", key, err)
		}
		return nil
	}
	return fmt.Errorf("failed to update %s in Redis: too much contention", key)
}
