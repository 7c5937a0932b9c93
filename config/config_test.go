package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civic-governance-backend/service"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GOVERNANCE_AUTH_JWT_SECRET", "s3cret")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, ":8090", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "direct", cfg.MQ.Mode)
	assert.Equal(t, uint64(3), cfg.MQ.RetryAttempts)
	assert.Equal(t, 5*time.Second, cfg.MQ.RelayInterval)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, service.DefaultParams(), cfg.Governance.Params())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GOVERNANCE_AUTH_JWT_SECRET", "s3cret")
	t.Setenv("GOVERNANCE_SERVER_ADDR", ":9000")
	t.Setenv("GOVERNANCE_DATABASE_DRIVER", "postgres")
	t.Setenv("GOVERNANCE_DATABASE_DSN", "host=db user=gov")
	t.Setenv("GOVERNANCE_GOVERNANCE_THRESHOLD_BASE", "citizens")
	t.Setenv("GOVERNANCE_GOVERNANCE_CYCLE_INTERVAL", "240h")
	t.Setenv("GOVERNANCE_GOVERNANCE_CYCLE_BLACKOUT", "48h")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "host=db user=gov", cfg.Database.DSN)
	params := cfg.Governance.Params()
	assert.Equal(t, service.ThresholdCitizens, params.ThresholdBase)
	assert.Equal(t, 10*24*time.Hour, params.CycleInterval)
	assert.Equal(t, 48*time.Hour, params.CycleBlackout)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "governance.yaml")
	content := []byte(`
auth:
  jwt_secret: from-file
  admins: ["0xroot", "0xops"]
redis:
  addr: "127.0.0.1:6379"
mq:
  mode: redis
rate_limit:
  enabled: true
  user_rate: 3
`)
	require.NoError(t, os.WriteFile(file, content, 0o600))

	cfg, err := Load(viper.New(), file)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
	assert.Equal(t, []string{"0xroot", "0xops"}, cfg.Auth.Admins)
	assert.Equal(t, "redis", cfg.MQ.Mode)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 3, cfg.RateLimit.UserRate)
	assert.Equal(t, 20, cfg.RateLimit.UserBurst)
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("GOVERNANCE_AUTH_JWT_SECRET", "s3cret")
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))

	cfg.Database.Driver = "oracle"
	cfg.MQ.Mode = "redis"
	cfg.Lock.Distributed = true
	cfg.Governance.MinAnswers = 1

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "unknown database driver")
	assert.Contains(t, msg, "jwt_secret")
	assert.Contains(t, msg, "mq mode redis requires redis.addr")
	assert.Contains(t, msg, "distributed lock")
	assert.Contains(t, msg, "min answers")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"message":"shown"`)
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())

	_, err = NewLogger(LogConfig{Level: "loud"}, &buf)
	assert.Error(t, err)
}
