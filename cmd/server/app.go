package main

import (
	"context"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"civic-governance-backend/cache"
	"civic-governance-backend/config"
	"civic-governance-backend/database"
	"civic-governance-backend/handlers"
	"civic-governance-backend/mq"
	"civic-governance-backend/registry"
	"civic-governance-backend/repository"
	"civic-governance-backend/routes"
	"civic-governance-backend/service"
	"civic-governance-backend/websocket"
)

// loadConfig 读取配置并创建日志
func loadConfig(cmd *cobra.Command, v *viper.Viper) (*config.Config, zerolog.Logger, error) {
	file, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(v, file)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger, err := config.NewLogger(cfg.Log, os.Stdout)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logger, nil
}

// application 持有服务运行期间的全部组件
type application struct {
	cfg    *config.Config
	logger zerolog.Logger

	db       *gorm.DB
	redis    *redis.Client
	registry *registry.Registry
	queue    *mq.MQAdapter
	relay    *service.GrantRelay
	hub      *websocket.Hub
	sse      *handlers.SSEBroker

	elections *service.ElectionEngine
	votings   *service.VotingEngine
	router    *gin.Engine
}

// newApplication 按依赖顺序组装组件：数据库、Redis、角色登记、消息队列、引擎、路由
func newApplication(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (_ *application, err error) {
	a := &application{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.db, err = database.InitDB(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	if err = database.Migrate(a.db, logger); err != nil {
		return nil, err
	}

	if err = a.connectRedis(ctx); err != nil {
		return nil, err
	}

	a.registry = registry.New(a.db, logger)
	if err = a.registry.BootstrapAdmins(ctx, cfg.Auth.Admins); err != nil {
		return nil, errors.Wrap(err, "bootstrap admins")
	}

	mode, err := mq.ParseMode(cfg.MQ.Mode)
	if err != nil {
		return nil, err
	}
	a.queue, err = mq.NewMQAdapter(mq.Config{
		Mode:          mode,
		RetryAttempts: cfg.MQ.RetryAttempts,
		Rocket: mq.RocketConfig{
			NameServers:   cfg.MQ.NameServers,
			ProducerGroup: cfg.MQ.ProducerGroup,
			ConsumerGroup: cfg.MQ.ConsumerGroup,
			Topic:         cfg.MQ.Topic,
		},
	}, a.redis, a.registry.ApplyGrant, logger)
	if err != nil {
		return nil, err
	}

	repo := repository.NewGormLedgerRepository(a.db)
	a.relay = service.NewGrantRelay(repo, a.queue, logger, cfg.MQ.RelayInterval, cfg.MQ.RelayMaxRetries)
	a.hub = websocket.NewHub(logger)
	a.sse = handlers.NewSSEBroker(cfg.Server.SSEHeartbeat, logger)

	deps := service.Dependencies{
		Repo:       repo,
		Authorizer: a.registry,
		Clock:      service.SystemClock{},
		Locker:     &service.LocalLocker{},
		Publisher:  service.Publishers{a.hub, a.sse},
		Grants:     a.relay,
		Logger:     logger,
		Params:     cfg.Governance.Params(),
	}

	var filter *cache.BloomFilter
	if a.redis != nil {
		lockService := cache.NewDistributedLockService(a.redis, cfg.Lock.Expiry)
		if cfg.Lock.Distributed {
			deps.Locker = lockService
		}
		filter = cache.NewBloomFilter(a.redis, cache.VotingKeysFilter, 0, 0)
		deps.KeyFilter = filter
		deps.ReadCache = cache.NewHotCache(a.redis, lockService, logger)
	}

	a.elections = service.NewElectionService(deps)
	a.votings, err = service.NewVotingService(deps)
	if err != nil {
		return nil, err
	}

	a.router = routes.SetupRouter(a.routeDependencies(filter))
	return a, nil
}

// connectRedis 只有 Redis 被 mq 或分布式锁依赖时连接失败才是致命错误
func (a *application) connectRedis(ctx context.Context) error {
	if a.cfg.Redis.Addr == "" {
		a.logger.Info().Msg("未配置 Redis，使用进程内锁和限流")
		return nil
	}
	client, err := cache.InitRedis(ctx, cache.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
		PoolSize: a.cfg.Redis.PoolSize,
	}, a.logger)
	if err != nil {
		if a.cfg.MQ.Mode == string(mq.ModeRedis) || a.cfg.Lock.Distributed {
			return err
		}
		a.logger.Warn().Err(err).Msg("Redis 不可用，降级为进程内实现")
		return nil
	}
	a.redis = client
	return nil
}

func (a *application) routeDependencies(filter *cache.BloomFilter) routes.Dependencies {
	rl := a.cfg.RateLimit
	limiterCfg := handlers.RateLimiterConfig{
		Enabled:     rl.Enabled,
		GlobalRate:  rl.GlobalRate,
		GlobalBurst: rl.GlobalBurst,
		UserRate:    rl.UserRate,
		UserBurst:   rl.UserBurst,
	}

	deps := routes.Dependencies{
		Logger:      a.logger,
		JWTSecret:   []byte(a.cfg.Auth.JWTSecret),
		CORSOrigins: a.cfg.Server.CORSOrigins,
		Elections:   a.elections,
		Votings:     a.votings,
		Roles:       a.registry,
		GrantQueue:  a.queue,
		Health:      handlers.NewHealthHandler(a.db, a.redis, string(a.queue.Mode()), a.cfg.Server.Version),
		Hub:         a.hub,
		SSE:         a.sse,
	}

	var limiter cache.UserLimiter
	if a.redis != nil {
		limiter = cache.NewUserRateLimiter(a.redis, "api", rl.GlobalRate, rl.GlobalBurst, rl.UserRate, rl.UserBurst)
		deps.QuizLimit = handlers.QuizAttemptLimit(a.redis, rl.QuizWindow, rl.QuizLimit)
		deps.Cache = handlers.NewCacheHandler(a.redis, filter, a.votings.WarmKeyFilter, a.logger)
	} else {
		limiter = cache.NewLocalRateLimiter(rl.GlobalRate, rl.GlobalBurst, rl.UserRate, rl.UserBurst)
	}
	deps.RateLimiter = handlers.NewRateLimiter(limiterCfg, limiter, a.logger)
	return deps
}

// start 启动后台循环：事件广播、消息消费、发件箱转发
func (a *application) start(ctx context.Context) error {
	go a.hub.Run(ctx)

	if err := a.votings.WarmKeyFilter(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("预热投票键过滤器失败")
	}
	if err := a.queue.StartConsumer(); err != nil {
		return errors.Wrap(err, "start grant consumer")
	}
	a.relay.Start(ctx)
	return nil
}

// Close 释放全部连接，汇总所有错误
func (a *application) Close() error {
	var result *multierror.Error
	if a.queue != nil {
		if err := a.queue.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "close redis"))
		}
	}
	if a.db != nil {
		if err := database.CloseDB(a.db); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
