package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthEndpoints(t *testing.T) {
	db := setupTestDB(t)
	health := NewHealthHandler(db, nil, "direct", "test")

	router := setupRouter(t)
	router.GET("/health", health.HealthCheck)
	router.GET("/status", health.SystemStatus)
	router.GET("/metrics", MetricsHandler())

	w := doRequest(router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	w = doRequest(router, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	var info SystemInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "ok", info.Status)
	assert.Equal(t, "ok", info.DBStatus)
	assert.Equal(t, "disabled", info.RedisStatus)
	assert.Equal(t, "direct", info.MQMode)
	assert.Equal(t, "test", info.Version)

	w = doRequest(router, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestSystemStatusReportsClosedDatabase(t *testing.T) {
	db := setupTestDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	router := setupRouter(t)
	router.GET("/status", NewHealthHandler(db, nil, "direct", "test").SystemStatus)

	w := doRequest(router, http.MethodGet, "/status", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"db_status":"error"`)
}
