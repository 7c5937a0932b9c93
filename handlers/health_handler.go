package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// SystemInfo contains basic system metrics and information
type SystemInfo struct {
	Status       string    `json:"status"`
	Version      string    `json:"version"`
	Uptime       string    `json:"uptime"`
	StartTime    time.Time `json:"start_time"`
	CurrentTime  time.Time `json:"current_time"`
	GoVersion    string    `json:"go_version"`
	NumGoroutine int       `json:"num_goroutine"`
	NumCPU       int       `json:"num_cpu"`
	DBStatus     string    `json:"db_status"`
	RedisStatus  string    `json:"redis_status"`
	MQMode       string    `json:"mq_mode"`
}

// HealthHandler 健康检查与运行状态
type HealthHandler struct {
	db        *gorm.DB
	redis     *redis.Client
	mqMode    string
	version   string
	startTime time.Time
}

// NewHealthHandler redis 可以为空
func NewHealthHandler(db *gorm.DB, rdb *redis.Client, mqMode, version string) *HealthHandler {
	return &HealthHandler{
		db:        db,
		redis:     rdb,
		mqMode:    mqMode,
		version:   version,
		startTime: time.Now(),
	}
}

// HealthCheck 提供基本健康检查端点
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// SystemStatus 提供详细的系统状态信息，数据库不可用时返回 503
func (h *HealthHandler) SystemStatus(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	info := SystemInfo{
		Status:       "ok",
		Version:      h.version,
		Uptime:       time.Since(h.startTime).String(),
		StartTime:    h.startTime,
		CurrentTime:  time.Now(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		NumCPU:       runtime.NumCPU(),
		DBStatus:     "ok",
		RedisStatus:  "disabled",
		MQMode:       h.mqMode,
	}

	sqlDB, err := h.db.DB()
	if err != nil || sqlDB.PingContext(ctx) != nil {
		info.DBStatus = "error"
		info.Status = "degraded"
	}
	if h.redis != nil {
		info.RedisStatus = "ok"
		if err := h.redis.Ping(ctx).Err(); err != nil {
			info.RedisStatus = "error"
			info.Status = "degraded"
		}
	}

	status := http.StatusOK
	if info.DBStatus != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, info)
}

// MetricsHandler 返回Prometheus格式的指标
func MetricsHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
