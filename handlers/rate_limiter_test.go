package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civic-governance-backend/cache"
)

func TestRateLimiterPerCaller(t *testing.T) {
	config := RateLimiterConfig{Enabled: true, GlobalRate: 1000, GlobalBurst: 1000, UserRate: 1, UserBurst: 2}
	limiter := NewRateLimiter(config, cache.NewLocalRateLimiter(1000, 1000, 1, 2), zerolog.Nop())

	router := setupRouter(t)
	router.GET("/stats", limiter.GetRateLimiterStats)
	api := router.Group("/api", JWTAuth(testSecret), limiter.Middleware())
	api.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	alice := bearer(t, "0xalice")
	assert.Equal(t, http.StatusOK, doRequest(router, http.MethodGet, "/api/ping", alice).Code)
	assert.Equal(t, http.StatusOK, doRequest(router, http.MethodGet, "/api/ping", alice).Code)
	w := doRequest(router, http.MethodGet, "/api/ping", alice)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate_limited")

	assert.Equal(t, http.StatusOK, doRequest(router, http.MethodGet, "/api/ping", bearer(t, "0xbob")).Code)

	w = doRequest(router, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats RateLimiterStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(4), stats.TotalRequests)
	assert.Equal(t, int64(3), stats.AllowedRequests)
	assert.Equal(t, int64(1), stats.RejectedRequests)
	assert.True(t, stats.RateLimiterConfig.Enabled)
}

func TestRateLimiterDisabled(t *testing.T) {
	limiter := NewRateLimiter(RateLimiterConfig{}, cache.NewLocalRateLimiter(1, 1, 1, 1), zerolog.Nop())
	router := setupRouter(t)
	router.GET("/ping", limiter.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, doRequest(router, http.MethodGet, "/ping", "").Code)
	}
}

func TestQuizAttemptLimitWithoutRedisPassesThrough(t *testing.T) {
	router := setupRouter(t)
	router.POST("/quiz", JWTAuth(testSecret), QuizAttemptLimit(nil, time.Minute, 1), func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusAccepted, doRequest(router, http.MethodPost, "/quiz", bearer(t, "0xalice")).Code)
	}
}
