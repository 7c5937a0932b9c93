package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"civic-governance-backend/service"
)

// EnvPrefix 环境变量前缀，例如 GOVERNANCE_DATABASE_DSN
const EnvPrefix = "GOVERNANCE"

// Config 服务配置
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Auth       AuthConfig       `mapstructure:"auth"`
	MQ         MQConfig         `mapstructure:"mq"`
	Lock       LockConfig       `mapstructure:"lock"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Governance GovernanceConfig `mapstructure:"governance"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	Version         string        `mapstructure:"version"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	SSEHeartbeat    time.Duration `mapstructure:"sse_heartbeat"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig Driver 取 mysql、postgres 或 sqlite
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SlowThreshold   time.Duration `mapstructure:"slow_threshold"`
}

// RedisConfig Addr 为空时不使用 Redis
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type AuthConfig struct {
	JWTSecret string   `mapstructure:"jwt_secret"`
	Admins    []string `mapstructure:"admins"`
}

// MQConfig Mode 取 direct、redis 或 rocketmq
type MQConfig struct {
	Mode            string        `mapstructure:"mode"`
	RetryAttempts   uint64        `mapstructure:"retry_attempts"`
	NameServers     []string      `mapstructure:"name_servers"`
	ProducerGroup   string        `mapstructure:"producer_group"`
	ConsumerGroup   string        `mapstructure:"consumer_group"`
	Topic           string        `mapstructure:"topic"`
	RelayInterval   time.Duration `mapstructure:"relay_interval"`
	RelayMaxRetries int           `mapstructure:"relay_max_retries"`
}

// LockConfig Distributed 为 true 且配置了 Redis 时使用 redsync
type LockConfig struct {
	Distributed bool          `mapstructure:"distributed"`
	Expiry      time.Duration `mapstructure:"expiry"`
}

type RateLimitConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	GlobalRate  int           `mapstructure:"global_rate"`
	GlobalBurst int           `mapstructure:"global_burst"`
	UserRate    int           `mapstructure:"user_rate"`
	UserBurst   int           `mapstructure:"user_burst"`
	QuizWindow  time.Duration `mapstructure:"quiz_window"`
	QuizLimit   int           `mapstructure:"quiz_limit"`
}

// GovernanceConfig 两个引擎的时间与额度常量
type GovernanceConfig struct {
	PreElectionLead        time.Duration `mapstructure:"pre_election_lead"`
	CloseGrace             time.Duration `mapstructure:"close_grace"`
	PreElectionCredits     int           `mapstructure:"pre_election_credits"`
	ThresholdPercent       uint64        `mapstructure:"threshold_percent"`
	ThresholdBase          string        `mapstructure:"threshold_base"`
	CycleInterval          time.Duration `mapstructure:"cycle_interval"`
	MinScheduleLead        time.Duration `mapstructure:"min_schedule_lead"`
	MaxScheduleLead        time.Duration `mapstructure:"max_schedule_lead"`
	CycleBlackout          time.Duration `mapstructure:"cycle_blackout"`
	DefaultScheduleCredits uint64        `mapstructure:"default_schedule_credits"`
	ArticleCredits         uint64        `mapstructure:"article_credits"`
	ApprovalWindow         time.Duration `mapstructure:"approval_window"`
	MinAnswers             int           `mapstructure:"min_answers"`
	ChallengeSize          int           `mapstructure:"challenge_size"`
}

// Params converts the governance section to engine parameters.
func (g GovernanceConfig) Params() service.Params {
	return service.Params{
		PreElectionLead:        g.PreElectionLead,
		CloseGrace:             g.CloseGrace,
		PreElectionCredits:     g.PreElectionCredits,
		ThresholdPercent:       g.ThresholdPercent,
		ThresholdBase:          service.ThresholdBase(g.ThresholdBase),
		CycleInterval:          g.CycleInterval,
		MinScheduleLead:        g.MinScheduleLead,
		MaxScheduleLead:        g.MaxScheduleLead,
		CycleBlackout:          g.CycleBlackout,
		DefaultScheduleCredits: g.DefaultScheduleCredits,
		ArticleCredits:         g.ArticleCredits,
		ApprovalWindow:         g.ApprovalWindow,
		MinAnswers:             g.MinAnswers,
		ChallengeSize:          g.ChallengeSize,
	}
}

// SetDefaults 注册所有配置键的默认值，环境变量只对已知键生效
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8090")
	v.SetDefault("server.version", "0.1.0")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.sse_heartbeat", 15*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "governance.db")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.slow_threshold", time.Second)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.admins", []string{})

	v.SetDefault("mq.mode", "direct")
	v.SetDefault("mq.retry_attempts", 3)
	v.SetDefault("mq.name_servers", []string{"127.0.0.1:9876"})
	v.SetDefault("mq.producer_group", "governance_producer")
	v.SetDefault("mq.consumer_group", "governance_consumer")
	v.SetDefault("mq.topic", "governance_grants")
	v.SetDefault("mq.relay_interval", 5*time.Second)
	v.SetDefault("mq.relay_max_retries", 5)

	v.SetDefault("lock.distributed", false)
	v.SetDefault("lock.expiry", 30*time.Second)

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.global_rate", 100)
	v.SetDefault("rate_limit.global_burst", 200)
	v.SetDefault("rate_limit.user_rate", 10)
	v.SetDefault("rate_limit.user_burst", 20)
	v.SetDefault("rate_limit.quiz_window", time.Minute)
	v.SetDefault("rate_limit.quiz_limit", 5)

	p := service.DefaultParams()
	v.SetDefault("governance.pre_election_lead", p.PreElectionLead)
	v.SetDefault("governance.close_grace", p.CloseGrace)
	v.SetDefault("governance.pre_election_credits", p.PreElectionCredits)
	v.SetDefault("governance.threshold_percent", p.ThresholdPercent)
	v.SetDefault("governance.threshold_base", string(p.ThresholdBase))
	v.SetDefault("governance.cycle_interval", p.CycleInterval)
	v.SetDefault("governance.min_schedule_lead", p.MinScheduleLead)
	v.SetDefault("governance.max_schedule_lead", p.MaxScheduleLead)
	v.SetDefault("governance.cycle_blackout", p.CycleBlackout)
	v.SetDefault("governance.default_schedule_credits", p.DefaultScheduleCredits)
	v.SetDefault("governance.article_credits", p.ArticleCredits)
	v.SetDefault("governance.approval_window", p.ApprovalWindow)
	v.SetDefault("governance.min_answers", p.MinAnswers)
	v.SetDefault("governance.challenge_size", p.ChallengeSize)
}

// Load 读取 .env、可选的配置文件和 GOVERNANCE_* 环境变量
func Load(v *viper.Viper, file string) (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", file)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		result = multierror.Append(result, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		result = multierror.Append(result, fmt.Errorf("database dsn is empty"))
	}
	if c.Auth.JWTSecret == "" {
		result = multierror.Append(result, fmt.Errorf("auth.jwt_secret is required"))
	}
	switch c.MQ.Mode {
	case "", "direct", "rocketmq":
	case "redis":
		if c.Redis.Addr == "" {
			result = multierror.Append(result, fmt.Errorf("mq mode redis requires redis.addr"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unknown mq mode %q", c.MQ.Mode))
	}
	if c.Lock.Distributed && c.Redis.Addr == "" {
		result = multierror.Append(result, fmt.Errorf("distributed lock requires redis.addr"))
	}
	if err := c.Governance.Params().Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
