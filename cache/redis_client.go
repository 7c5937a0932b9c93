package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient 定义缓存层用到的Redis命令
type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd

	Pipeline() redis.Pipeliner

	SetBit(ctx context.Context, key string, offset int64, value int) *redis.IntCmd
	GetBit(ctx context.Context, key string, offset int64) *redis.IntCmd

	ZRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd

	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

var _ RedisClient = (*redis.Client)(nil)
