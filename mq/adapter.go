package mq

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"civic-governance-backend/model"
)

// Mode 授权消息的传输方式
type Mode string

const (
	// ModeDirect hands grants straight to the registry in-process.
	ModeDirect   Mode = "direct"
	ModeRedis    Mode = "redis"
	ModeRocketMQ Mode = "rocketmq"
)

// ParseMode 解析配置中的传输方式
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeDirect, ModeRedis, ModeRocketMQ:
		return m, nil
	case "":
		return ModeDirect, nil
	default:
		return "", fmt.Errorf("unknown mq mode %q", s)
	}
}

// Config 消息队列适配器配置
type Config struct {
	Mode          Mode
	RetryAttempts uint64
	Rocket        RocketConfig
}

// MQAdapter 消息队列适配器，按配置在直连、Redis MQ 和 RocketMQ 之间选择
type MQAdapter struct {
	mode    Mode
	apply   Handler
	redisMQ *RedisMQ
	rocket  *RocketMQ
	logger  zerolog.Logger
}

// NewMQAdapter creates the transport for cfg.Mode. apply writes a grant to
// the registry; in direct mode it is called synchronously from PublishGrant.
func NewMQAdapter(cfg Config, rdb *redis.Client, apply Handler, logger zerolog.Logger) (*MQAdapter, error) {
	if apply == nil {
		return nil, errors.New("mq: apply handler is required")
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 3
	}
	a := &MQAdapter{
		mode:   cfg.Mode,
		apply:  RetryingHandler(apply, cfg.RetryAttempts, logger),
		logger: logger.With().Str("component", "mq").Str("mode", string(cfg.Mode)).Logger(),
	}

	switch cfg.Mode {
	case ModeDirect, "":
		a.mode = ModeDirect
	case ModeRedis:
		if rdb == nil {
			return nil, errors.New("mq: redis mode needs a redis client")
		}
		a.redisMQ = NewRedisMQ(rdb, logger)
	case ModeRocketMQ:
		q, err := NewRocketMQ(cfg.Rocket, logger)
		if err != nil {
			return nil, err
		}
		a.rocket = q
	default:
		return nil, fmt.Errorf("unknown mq mode %q", cfg.Mode)
	}
	a.logger.Info().Msg("消息队列适配器已初始化")
	return a, nil
}

// Mode 返回当前传输方式
func (a *MQAdapter) Mode() Mode {
	return a.mode
}

// PublishGrant 发送授权消息
func (a *MQAdapter) PublishGrant(ctx context.Context, intent model.GrantIntent) error {
	switch a.mode {
	case ModeRedis:
		return a.redisMQ.PublishGrant(ctx, intent)
	case ModeRocketMQ:
		return a.rocket.PublishGrant(ctx, intent)
	default:
		return a.apply(ctx, intent)
	}
}

// StartConsumer 启动消费者，直连模式无需消费者
func (a *MQAdapter) StartConsumer() error {
	switch a.mode {
	case ModeRedis:
		return a.redisMQ.Start(a.apply)
	case ModeRocketMQ:
		return a.rocket.Start(a.apply)
	default:
		return nil
	}
}

// RetryDeadLetters 重试死信队列中的消息（仅Redis MQ模式可用）
func (a *MQAdapter) RetryDeadLetters(ctx context.Context) (int, error) {
	if a.mode != ModeRedis {
		return 0, errors.New("当前消息队列模式不支持死信队列操作")
	}
	return a.redisMQ.RetryDeadLetters(ctx)
}

// QueueStats 获取队列统计信息
func (a *MQAdapter) QueueStats(ctx context.Context) map[string]interface{} {
	stats := map[string]interface{}{"type": string(a.mode)}
	if a.mode == ModeRedis {
		stats["queues"] = a.redisMQ.QueueStats(ctx)
	}
	return stats
}

// Close 关闭消息队列
func (a *MQAdapter) Close() error {
	var err error
	switch a.mode {
	case ModeRedis:
		a.redisMQ.Stop()
	case ModeRocketMQ:
		err = a.rocket.Close()
	}
	a.logger.Info().Msg("消息队列已关闭")
	return err
}
