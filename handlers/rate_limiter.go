package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"civic-governance-backend/cache"
)

// RateLimiterConfig 限流器配置结构
type RateLimiterConfig struct {
	Enabled     bool `json:"enabled" mapstructure:"enabled"`
	GlobalRate  int  `json:"globalRate" mapstructure:"global_rate"`
	GlobalBurst int  `json:"globalBurst" mapstructure:"global_burst"`
	UserRate    int  `json:"userRate" mapstructure:"user_rate"`
	UserBurst   int  `json:"userBurst" mapstructure:"user_burst"`
}

// RateLimiterStats 限流器统计信息
type RateLimiterStats struct {
	TotalRequests     int64             `json:"totalRequests"`
	AllowedRequests   int64             `json:"allowedRequests"`
	RejectedRequests  int64             `json:"rejectedRequests"`
	RateLimiterConfig RateLimiterConfig `json:"config"`
}

// RateLimiter 两级限流中间件，已认证请求按地址限流，其余按客户端IP
type RateLimiter struct {
	config  RateLimiterConfig
	limiter cache.UserLimiter
	logger  zerolog.Logger

	mu    sync.Mutex
	stats RateLimiterStats
}

// NewRateLimiter 创建限流中间件
func NewRateLimiter(config RateLimiterConfig, limiter cache.UserLimiter, logger zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		config:  config,
		limiter: limiter,
		logger:  logger.With().Str("component", "rate_limiter").Logger(),
	}
}

// Middleware 限流中间件
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !r.config.Enabled || r.limiter == nil {
			c.Next()
			return
		}

		userID := Caller(c)
		if userID == "" {
			userID = "ip:" + c.ClientIP()
		}
		allowed, err := r.limiter.AllowUser(c.Request.Context(), userID)
		if err != nil {
			r.logger.Warn().Err(err).Str("user", userID).Msg("rate limit check failed")
		}
		r.record(allowed && err == nil)
		if err != nil || !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests",
				"code":  "rate_limited",
			})
			return
		}
		c.Next()
	}
}

func (r *RateLimiter) record(allowed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.TotalRequests++
	if allowed {
		r.stats.AllowedRequests++
	} else {
		r.stats.RejectedRequests++
	}
}

// GetRateLimiterStats 获取限流器状态
func (r *RateLimiter) GetRateLimiterStats(c *gin.Context) {
	r.mu.Lock()
	stats := r.stats
	r.mu.Unlock()
	stats.RateLimiterConfig = r.config
	c.JSON(http.StatusOK, stats)
}

// QuizAttemptLimit 限制每个地址在窗口内提交阅读测验的次数，client 为空时不限制
func QuizAttemptLimit(client cache.RedisClient, window time.Duration, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := Caller(c)
		if client == nil || caller == "" || limit <= 0 {
			c.Next()
			return
		}
		limiter := cache.NewSlidingWindowRateLimiter(client, "quiz:"+caller, window, limit)
		allowed, err := limiter.Allow(c.Request.Context())
		if err == nil && !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many quiz attempts",
				"code":  "rate_limited",
			})
			return
		}
		c.Next()
	}
}
