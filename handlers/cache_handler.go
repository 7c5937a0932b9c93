package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"civic-governance-backend/cache"
)

// cacheKeyPrefix 只允许清理本服务写入的键
const cacheKeyPrefix = "governance:"

// CleanupCacheInput 定义清理缓存的输入结构
type CleanupCacheInput struct {
	Patterns []string `json:"patterns" binding:"required,min=1"` // 要清理的键模式列表
}

// CacheHandler 缓存运维接口，仅管理员可用
type CacheHandler struct {
	client *redis.Client
	filter *cache.BloomFilter
	warm   func(ctx context.Context) error
	logger zerolog.Logger
}

// NewCacheHandler warm 用于重建投票键过滤器
func NewCacheHandler(client *redis.Client, filter *cache.BloomFilter, warm func(ctx context.Context) error, logger zerolog.Logger) *CacheHandler {
	return &CacheHandler{
		client: client,
		filter: filter,
		warm:   warm,
		logger: logger.With().Str("component", "cache_admin").Logger(),
	}
}

// CleanupRedisCache 按模式清理读缓存
func (h *CacheHandler) CleanupRedisCache(c *gin.Context) {
	if h.client == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "redis not configured", "code": "internal"})
		return
	}
	var input CleanupCacheInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid input: %v", err), "code": "invalid_input"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	totalDeleted := 0
	var failures []string
	for _, pattern := range input.Patterns {
		if !strings.HasPrefix(pattern, cacheKeyPrefix) {
			failures = append(failures, fmt.Sprintf("pattern %q outside %s", pattern, cacheKeyPrefix))
			continue
		}
		iter := h.client.Scan(ctx, 0, pattern, 100).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			failures = append(failures, fmt.Sprintf("scan %s: %v", pattern, err))
			continue
		}
		if len(keys) == 0 {
			continue
		}
		deleted, err := h.client.Del(ctx, keys...).Result()
		if err != nil {
			failures = append(failures, fmt.Sprintf("delete %s: %v", pattern, err))
			continue
		}
		totalDeleted += int(deleted)
	}

	h.logger.Info().Strs("patterns", input.Patterns).Int("deleted", totalDeleted).Str("caller", Caller(c)).Msg("cache cleanup")

	result := gin.H{
		"success":       len(failures) == 0,
		"total_deleted": totalDeleted,
	}
	if len(failures) > 0 {
		result["errors"] = failures
	}
	c.JSON(http.StatusOK, result)
}

// RebuildKeyFilter 清空并从数据库重建投票键过滤器
func (h *CacheHandler) RebuildKeyFilter(c *gin.Context) {
	if h.filter == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "key filter not configured", "code": "internal"})
		return
	}
	ctx := c.Request.Context()
	if err := h.filter.Reset(ctx); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "code": "internal"})
		return
	}
	if err := h.warm(ctx); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "code": "internal"})
		return
	}
	h.logger.Info().Str("caller", Caller(c)).Msg("voting key filter rebuilt")
	c.JSON(http.StatusOK, gin.H{"success": true})
}
