package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimiter 限流器接口
type RateLimiter interface {
	// Allow 判断请求是否允许通过
	Allow(ctx context.Context) (bool, error)
}

// UserLimiter 先全局后按用户的两级限流
type UserLimiter interface {
	AllowUser(ctx context.Context, userID string) (bool, error)
}

// tokenBucketScript 令牌数和上次补充时间保存在同一个 hash 中，毫秒精度补充
const tokenBucketScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])

local state = redis.call("hmget", key, "tokens", "ts")
local tokens = tonumber(state[1]) or burst
local last = tonumber(state[2]) or now

local elapsed = math.max(0, now - last)
tokens = math.min(burst, tokens + elapsed * rate / 1000)

local allowed = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
end

redis.call("hset", key, "tokens", tokens, "ts", now)
redis.call("pexpire", key, math.ceil(burst / rate * 1000) + 1000)
return allowed
`

// TokenBucketRateLimiter 令牌桶限流器实现
type TokenBucketRateLimiter struct {
	redisClient RedisClient
	key         string
	rate        int // 每秒生成的令牌数量
	burst       int // 令牌桶最大容量
}

// NewTokenBucketRateLimiter 创建新的令牌桶限流器
func NewTokenBucketRateLimiter(client RedisClient, key string, rate, burst int) *TokenBucketRateLimiter {
	return &TokenBucketRateLimiter{
		redisClient: client,
		key:         "rate_limit:" + key,
		rate:        rate,
		burst:       burst,
	}
}

// Allow 判断请求是否允许通过
func (l *TokenBucketRateLimiter) Allow(ctx context.Context) (bool, error) {
	if l.redisClient == nil {
		return false, ErrRedisNotAvailable
	}

	now := time.Now().UnixMilli()
	keys := []string{l.key}
	args := []interface{}{now, l.rate, l.burst}

	result, err := l.redisClient.Eval(ctx, tokenBucketScript, keys, args...).Int64()
	if err != nil {
		return false, err
	}

	return result == 1, nil
}

// SlidingWindowRateLimiter 滑动窗口限流器，每次请求作为有序集合成员记录
type SlidingWindowRateLimiter struct {
	redisClient RedisClient
	key         string
	window      time.Duration
	limit       int
}

// NewSlidingWindowRateLimiter 创建新的滑动窗口限流器
func NewSlidingWindowRateLimiter(client RedisClient, key string, window time.Duration, limit int) *SlidingWindowRateLimiter {
	return &SlidingWindowRateLimiter{
		redisClient: client,
		key:         "sliding_window:" + key,
		window:      window,
		limit:       limit,
	}
}

// Allow 先记录本次请求再计数，超限时撤回记录
func (l *SlidingWindowRateLimiter) Allow(ctx context.Context) (bool, error) {
	if l.redisClient == nil {
		return false, ErrRedisNotAvailable
	}

	now := time.Now().UnixMilli()
	cutoff := now - l.window.Milliseconds()
	member := uuid.NewString()

	pipe := l.redisClient.Pipeline()
	pipe.ZAdd(ctx, l.key, redis.Z{Score: float64(now), Member: member})
	pipe.ZRemRangeByScore(ctx, l.key, "-inf", strconv.FormatInt(cutoff, 10))
	card := pipe.ZCard(ctx, l.key)
	pipe.PExpire(ctx, l.key, 2*l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	if card.Val() <= int64(l.limit) {
		return true, nil
	}
	return false, l.redisClient.ZRem(ctx, l.key, member).Err()
}

// maxTrackedUsers 每个进程最多缓存的用户限流器数量，淘汰最久未访问的
const maxTrackedUsers = 8192

// UserRateLimiter 用户级别限流器，全局桶之后再走每个用户自己的令牌桶
type UserRateLimiter struct {
	redisClient RedisClient
	global      RateLimiter
	keyPrefix   string
	rate        int
	burst       int
	users       *lru.Cache
}

// NewUserRateLimiter 创建新的用户级别限流器
func NewUserRateLimiter(client RedisClient, keyPrefix string, globalRate, globalBurst, userRate, userBurst int) *UserRateLimiter {
	users, _ := lru.New(maxTrackedUsers)
	return &UserRateLimiter{
		redisClient: client,
		global:      NewTokenBucketRateLimiter(client, keyPrefix+":global", globalRate, globalBurst),
		keyPrefix:   keyPrefix,
		rate:        userRate,
		burst:       userBurst,
		users:       users,
	}
}

// GetUserLimiter 获取用户的限流器
func (l *UserRateLimiter) GetUserLimiter(userID string) RateLimiter {
	if v, ok := l.users.Get(userID); ok {
		return v.(RateLimiter)
	}
	limiter := NewTokenBucketRateLimiter(l.redisClient, l.keyPrefix+":user:"+userID, l.rate, l.burst)
	if prev, ok, _ := l.users.PeekOrAdd(userID, limiter); ok {
		return prev.(RateLimiter)
	}
	return limiter
}

// AllowUser 判断用户请求是否允许通过，userID 为空时只做全局限流
func (l *UserRateLimiter) AllowUser(ctx context.Context, userID string) (bool, error) {
	allowed, err := l.global.Allow(ctx)
	if err != nil || !allowed {
		return allowed, err
	}
	if userID == "" {
		return true, nil
	}
	return l.GetUserLimiter(userID).Allow(ctx)
}

// LocalRateLimiter 进程内限流，Redis不可用时使用
type LocalRateLimiter struct {
	global    *rate.Limiter
	userRate  rate.Limit
	userBurst int
	users     *lru.Cache
}

// NewLocalRateLimiter 创建进程内的两级限流器
func NewLocalRateLimiter(globalRate, globalBurst, userRate, userBurst int) *LocalRateLimiter {
	users, _ := lru.New(maxTrackedUsers)
	return &LocalRateLimiter{
		global:    rate.NewLimiter(rate.Limit(globalRate), globalBurst),
		userRate:  rate.Limit(userRate),
		userBurst: userBurst,
		users:     users,
	}
}

// AllowUser 判断用户请求是否允许通过
func (l *LocalRateLimiter) AllowUser(_ context.Context, userID string) (bool, error) {
	if !l.global.Allow() {
		return false, nil
	}
	if userID == "" {
		return true, nil
	}

	limiter := rate.NewLimiter(l.userRate, l.userBurst)
	if prev, ok, _ := l.users.PeekOrAdd(userID, limiter); ok {
		limiter = prev.(*rate.Limiter)
	}
	return limiter.Allow(), nil
}

var (
	_ UserLimiter = (*UserRateLimiter)(nil)
	_ UserLimiter = (*LocalRateLimiter)(nil)
)
