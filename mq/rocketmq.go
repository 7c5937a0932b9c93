package mq

import (
	"context"
	"time"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"civic-governance-backend/model"
)

const (
	// TopicGrantEvents 角色授权主题
	TopicGrantEvents = "governance_grants"
	grantTag         = "grant"
)

// RocketConfig RocketMQ 连接参数
type RocketConfig struct {
	NameServers   []string
	ProducerGroup string
	ConsumerGroup string
	Topic         string
}

// RocketMQ 基于 RocketMQ 的授权消息队列
type RocketMQ struct {
	cfg      RocketConfig
	producer rocketmq.Producer
	consumer rocketmq.PushConsumer
	logger   zerolog.Logger
}

// NewRocketMQ 依次尝试每个 NameServer 直到生产者启动成功
func NewRocketMQ(cfg RocketConfig, logger zerolog.Logger) (*RocketMQ, error) {
	if cfg.Topic == "" {
		cfg.Topic = TopicGrantEvents
	}
	if cfg.ProducerGroup == "" {
		cfg.ProducerGroup = "grant_producer"
	}
	if cfg.ConsumerGroup == "" {
		cfg.ConsumerGroup = "grant_consumer"
	}
	logger = logger.With().Str("component", "rocketmq").Logger()

	var lastErr error
	for _, addr := range cfg.NameServers {
		p, err := rocketmq.NewProducer(
			producer.WithNameServer([]string{addr}),
			producer.WithGroupName(cfg.ProducerGroup),
			producer.WithRetry(2),
			producer.WithSendMsgTimeout(10*time.Second),
			producer.WithVIPChannel(false),
		)
		if err != nil {
			lastErr = err
			logger.Warn().Err(err).Str("addr", addr).Msg("创建RocketMQ生产者失败")
			continue
		}
		if err := p.Start(); err != nil {
			lastErr = err
			logger.Warn().Err(err).Str("addr", addr).Msg("启动RocketMQ生产者失败")
			continue
		}

		logger.Info().Str("addr", addr).Msg("RocketMQ生产者初始化成功")
		cfg.NameServers = []string{addr}
		return &RocketMQ{cfg: cfg, producer: p, logger: logger}, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no name server configured")
	}
	return nil, errors.Wrap(lastErr, "connect rocketmq")
}

// PublishGrant sends the intent keyed by its ID and sharded by account, so
// grants for one account are consumed in order.
func (q *RocketMQ) PublishGrant(ctx context.Context, intent model.GrantIntent) error {
	body, err := encodeGrant(newGrantMessage(intent))
	if err != nil {
		return err
	}
	message := primitive.NewMessage(q.cfg.Topic, body)
	message.WithTag(grantTag)
	message.WithKeys([]string{intent.ID})
	message.WithShardingKey(intent.Account)

	res, err := q.producer.SendSync(ctx, message)
	if err != nil {
		return errors.Wrap(err, "发送授权消息失败")
	}
	q.logger.Debug().Str("msg_id", res.MsgID).Str("intent", intent.ID).Msg("授权消息已发送")
	return nil
}

// Start 启动顺序消费者
func (q *RocketMQ) Start(handler Handler) error {
	c, err := rocketmq.NewPushConsumer(
		consumer.WithNameServer(q.cfg.NameServers),
		consumer.WithGroupName(q.cfg.ConsumerGroup),
		consumer.WithConsumerModel(consumer.Clustering),
		consumer.WithConsumeFromWhere(consumer.ConsumeFromLastOffset),
		consumer.WithConsumerOrder(true),
	)
	if err != nil {
		return errors.Wrap(err, "创建消息消费者失败")
	}

	err = c.Subscribe(q.cfg.Topic, consumer.MessageSelector{
		Type:       consumer.TAG,
		Expression: grantTag,
	}, func(ctx context.Context, msgs ...*primitive.MessageExt) (consumer.ConsumeResult, error) {
		for _, m := range msgs {
			msg, err := decodeGrant(m.Body)
			if err != nil {
				q.logger.Error().Err(err).Str("msg_id", m.MsgId).Msg("丢弃无法解析的消息")
				continue
			}
			if err := handler(ctx, msg.Intent); err != nil {
				q.logger.Error().Err(err).Str("intent", msg.MessageID).Msg("处理授权消息失败")
				// 顺序消费时失败会阻塞同一队列的后续消息
				return consumer.ConsumeRetryLater, nil
			}
		}
		return consumer.ConsumeSuccess, nil
	})
	if err != nil {
		return errors.Wrap(err, "订阅主题失败")
	}
	if err := c.Start(); err != nil {
		return errors.Wrap(err, "启动消费者失败")
	}
	q.consumer = c
	q.logger.Info().Str("topic", q.cfg.Topic).Msg("授权消息消费者启动成功")
	return nil
}

// Close 关闭生产者和消费者
func (q *RocketMQ) Close() error {
	var result *multierror.Error
	if q.consumer != nil {
		if err := q.consumer.Shutdown(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "shutdown consumer"))
		}
	}
	if q.producer != nil {
		if err := q.producer.Shutdown(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "shutdown producer"))
		}
	}
	return result.ErrorOrNil()
}
