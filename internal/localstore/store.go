// Package localstore: ダッシュボード状態（スキャン履歴など）を置くキー/値ストア
package localstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"EduTrack-web/internal/platform/config"
	"EduTrack-web/internal/platform/db"
)

// UpdateFunc は現在値（ok=false なら未設定）を受け取り新しい値を返す
type UpdateFunc func(old string, ok bool) (string, error)

type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	// Update: キー単位で read-modify-write を原子的に行う
	Update(ctx context.Context, key string, fn UpdateFunc) error
}

var ErrUnknownDriver = errors.New("localstore: unknown driver")

// Open は設定の driver に応じた Store と、その後始末関数を返す
func Open(ctx context.Context, c config.StorageConfig) (Store, func() error, error) {
	noop := func() error { return nil }

	switch c.Driver {
	case "memory":
		return NewMemory(), noop, nil
	case "file":
		s, err := OpenFile(c.FilePath)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("could not connect to Redis: %w", err)
		}
		return NewRedis(rdb), rdb.Close, nil
	case "mysql":
		conn, err := db.Connect(ctx, c.DB)
		if err != nil {
			return nil, nil, err
		}
		s := NewMySQL(conn)
		if err := s.EnsureSchema(ctx); err != nil {
			conn.Close()
			return nil, nil, err
		}
		return s, conn.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownDriver, c.Driver)
	}
}
