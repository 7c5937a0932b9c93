package cache

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// HotCache 读穿透缓存，分布式锁防止缓存击穿
type HotCache struct {
	redisClient RedisClient
	lockService *DistributedLockService
	logger      zerolog.Logger
}

// NewHotCache 创建新的热点缓存管理器，lockService 可以为空
func NewHotCache(client RedisClient, lockService *DistributedLockService, logger zerolog.Logger) *HotCache {
	return &HotCache{
		redisClient: client,
		lockService: lockService,
		logger:      logger.With().Str("component", "hot_cache").Logger(),
	}
}

// GetWithCache 命中时解码到 dest，未命中时调用 loader 并回填
func (c *HotCache) GetWithCache(ctx context.Context, key string, ttl time.Duration, dest interface{}, loader func() (interface{}, error)) error {
	if c.redisClient == nil {
		return c.fill(ctx, key, 0, dest, loader)
	}
	if c.lookup(ctx, key, dest) {
		return nil
	}

	if c.lockService == nil {
		return c.fill(ctx, key, ttl, dest, loader)
	}
	return c.lockService.WithLock(ctx, "cache:"+key, func() error {
		// 双重检查，其他副本可能已经填充了缓存
		if c.lookup(ctx, key, dest) {
			return nil
		}
		return c.fill(ctx, key, ttl, dest, loader)
	})
}

// Invalidate 删除缓存键
func (c *HotCache) Invalidate(ctx context.Context, keys ...string) error {
	if c.redisClient == nil || len(keys) == 0 {
		return nil
	}
	return c.redisClient.Del(ctx, keys...).Err()
}

func (c *HotCache) lookup(ctx context.Context, key string, dest interface{}) bool {
	data, err := c.redisClient.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("discarding undecodable cache entry")
		return false
	}
	return true
}

// fill ttl 为 0 时只加载不回填
func (c *HotCache) fill(ctx context.Context, key string, ttl time.Duration, dest interface{}, loader func() (interface{}, error)) error {
	value, err := loader()
	if err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encode cache entry %s", key)
	}
	if ttl > 0 {
		if err := c.redisClient.Set(ctx, key, data, jitter(ttl)).Err(); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
	}
	return json.Unmarshal(data, dest)
}

// jitter 随机延长过期时间，避免缓存雪崩
func jitter(ttl time.Duration) time.Duration {
	spread := int64(ttl / 10)
	if spread <= 0 {
		return ttl
	}
	return ttl + time.Duration(rand.Int63n(spread))
}
