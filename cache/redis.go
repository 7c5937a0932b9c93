package cache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Options Redis连接配置
type Options struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// InitRedis 创建客户端并确认连接可用
func InitRedis(ctx context.Context, opts Options, logger zerolog.Logger) (*redis.Client, error) {
	if opts.Addr == "" {
		return nil, ErrRedisNotAvailable
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "ping redis %s", opts.Addr)
	}

	logger.Info().Str("addr", opts.Addr).Int("db", opts.DB).Msg("redis connected")
	return client, nil
}
