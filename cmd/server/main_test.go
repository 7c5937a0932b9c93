package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civic-governance-backend/config"
	"civic-governance-backend/handlers"
)

const testSecret = "cmd-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func setTestEnv(t *testing.T) {
	t.Setenv("GOVERNANCE_AUTH_JWT_SECRET", testSecret)
	t.Setenv("GOVERNANCE_AUTH_ADMINS", "0xadmin")
	t.Setenv("GOVERNANCE_DATABASE_DRIVER", "sqlite")
	t.Setenv("GOVERNANCE_DATABASE_DSN", "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	t.Setenv("GOVERNANCE_LOG_LEVEL", "error")
}

func TestTokenCommand(t *testing.T) {
	setTestEnv(t)

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"token", "0xcitizen", "--ttl", "1h"})
	require.NoError(t, root.Execute())

	raw := strings.TrimSpace(out.String())
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(testSecret), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "0xcitizen", claims["addr"])
}

func TestTokenCommandRequiresAddress(t *testing.T) {
	setTestEnv(t)

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"token"})
	assert.Error(t, root.Execute())
}

func TestMigrateCommand(t *testing.T) {
	setTestEnv(t)

	root := newRootCmd()
	root.SetArgs([]string{"migrate"})
	assert.NoError(t, root.Execute())
}

func TestApplicationWithoutRedis(t *testing.T) {
	setTestEnv(t)
	cfg, err := config.Load(viper.New(), "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := newApplication(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	defer func() { assert.NoError(t, app.Close()) }()
	require.NoError(t, app.start(ctx))

	assert.Nil(t, app.redis)

	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	// 配置中的管理员可以授予角色，直连模式下立即生效
	token, err := handlers.IssueToken([]byte(testSecret), "0xadmin", time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/admin/roles",
		strings.NewReader(`{"account":"0xcitizen","role":"CITIZEN"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	app.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/roles/0xcitizen", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "CITIZEN")

	// 没有 Redis 时不注册缓存运维接口
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/admin/cache/clean", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	app.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestApplicationRejectsRedisModeWithoutRedis(t *testing.T) {
	setTestEnv(t)
	cfg, err := config.Load(viper.New(), "")
	require.NoError(t, err)
	cfg.MQ.Mode = "redis"
	cfg.Redis.Addr = "127.0.0.1:1"

	_, err = newApplication(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}
