package mq

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"civic-governance-backend/model"
)

// 消息队列的队列名称常量
const (
	MainQueueName       = "grant_queue"       // 主队列
	ProcessingQueueName = "grant_processing"  // 处理中队列
	DeadLetterQueueName = "grant_dead_letter" // 死信队列
	RetriesHashName     = "grant_retries"     // 重试次数记录
	messageIDSetName    = "grant_message_ids"
)

// RedisMQ是基于Redis List实现的授权消息队列
type RedisMQ struct {
	client            *redis.Client
	logger            zerolog.Logger
	handler           Handler
	mu                sync.Mutex
	isRunning         bool
	stopChan          chan struct{}
	wg                sync.WaitGroup
	processingTimeout time.Duration // 消息处理超时时间
	retryDelay        time.Duration // 重试延迟
	maxRetries        int           // 最大重试次数
}

// NewRedisMQ 创建基于Redis的消息队列
func NewRedisMQ(client *redis.Client, logger zerolog.Logger) *RedisMQ {
	return &RedisMQ{
		client:            client,
		logger:            logger.With().Str("component", "redis_mq").Logger(),
		stopChan:          make(chan struct{}),
		processingTimeout: 5 * time.Minute,
		retryDelay:        30 * time.Second,
		maxRetries:        3,
	}
}

// PublishGrant 发送授权消息。同一意图重复发送只入队一次
func (r *RedisMQ) PublishGrant(ctx context.Context, intent model.GrantIntent) error {
	msg := newGrantMessage(intent)
	body, err := encodeGrant(msg)
	if err != nil {
		return err
	}

	exists, err := r.client.SIsMember(ctx, messageIDSetName, msg.MessageID).Result()
	if err != nil {
		r.logger.Warn().Err(err).Msg("检查消息幂等性出错")
	} else if exists {
		r.logger.Debug().Str("message_id", msg.MessageID).Msg("消息已发送过，跳过")
		return nil
	}

	if err := r.client.LPush(ctx, MainQueueName, body).Err(); err != nil {
		return errors.Wrap(err, "发送消息到队列失败")
	}

	pipe := r.client.Pipeline()
	pipe.SAdd(ctx, messageIDSetName, msg.MessageID)
	pipe.Expire(ctx, messageIDSetName, 48*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Warn().Err(err).Str("message_id", msg.MessageID).Msg("添加消息ID到幂等性集合出错")
	}
	return nil
}

// Start 注册处理函数并启动消费者
func (r *RedisMQ) Start(handler Handler) error {
	if handler == nil {
		return errors.New("处理函数未注册")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isRunning {
		return nil
	}
	r.handler = handler
	r.isRunning = true

	r.wg.Add(2)
	go r.consumeLoop()
	go r.timeoutCheckLoop()

	r.logger.Info().Msg("Redis消息队列消费者已启动")
	return nil
}

// Stop 关闭消费者并等待进行中的处理结束
func (r *RedisMQ) Stop() {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return
	}
	r.isRunning = false
	r.mu.Unlock()

	close(r.stopChan)
	r.wg.Wait()
	r.logger.Info().Msg("Redis消息队列消费者已关闭")
}

func (r *RedisMQ) consumeLoop() {
	defer r.wg.Done()
	ctx := context.Background()

	for {
		select {
		case <-r.stopChan:
			return
		default:
		}

		// BRPOPLPUSH 原子地把消息移到处理中队列
		result, err := r.client.BRPopLPush(ctx, MainQueueName, ProcessingQueueName, time.Second).Result()
		if err != nil {
			if err != redis.Nil {
				r.logger.Error().Err(err).Msg("从队列获取消息失败")
				time.Sleep(time.Second)
			}
			continue
		}
		r.processMessage(ctx, result)
	}
}

func (r *RedisMQ) timeoutCheckLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			r.checkTimeouts(context.Background())
		}
	}
}

// checkTimeouts requeues messages stuck in the processing list.
func (r *RedisMQ) checkTimeouts(ctx context.Context) {
	messages, err := r.client.LRange(ctx, ProcessingQueueName, 0, -1).Result()
	if err != nil {
		r.logger.Error().Err(err).Msg("获取处理中队列消息失败")
		return
	}

	now := time.Now().Unix()
	for _, data := range messages {
		msg, err := decodeGrant([]byte(data))
		if err != nil {
			r.moveToDeadLetter(ctx, data)
			continue
		}
		if now-msg.Timestamp > int64(r.processingTimeout.Seconds()) {
			r.client.LRem(ctx, ProcessingQueueName, 1, data)
			r.retryLater(ctx, msg, data)
		}
	}
}

func (r *RedisMQ) processMessage(ctx context.Context, data string) {
	msg, err := decodeGrant([]byte(data))
	if err != nil {
		r.logger.Error().Err(err).Msg("丢弃无法解析的消息")
		r.moveToDeadLetter(ctx, data)
		return
	}

	if err := r.handler(ctx, msg.Intent); err != nil {
		r.logger.Error().Err(err).Str("message_id", msg.MessageID).Msg("处理消息失败")
		r.client.LRem(ctx, ProcessingQueueName, 1, data)
		r.retryLater(ctx, msg, data)
		return
	}

	r.client.LRem(ctx, ProcessingQueueName, 1, data)
	r.client.HDel(ctx, RetriesHashName, msg.MessageID)
	r.logger.Debug().Str("message_id", msg.MessageID).Msg("消息处理成功")
}

func (r *RedisMQ) retryLater(ctx context.Context, msg GrantMessage, data string) {
	retries, _ := r.client.HGet(ctx, RetriesHashName, msg.MessageID).Int()
	if retries >= r.maxRetries {
		r.logger.Warn().Str("message_id", msg.MessageID).Msg("超过最大重试次数，移至死信队列")
		r.client.LPush(ctx, DeadLetterQueueName, data)
		return
	}
	r.client.HIncrBy(ctx, RetriesHashName, msg.MessageID, 1)

	msg.Timestamp = time.Now().Unix()
	body, err := encodeGrant(msg)
	if err != nil {
		return
	}
	time.AfterFunc(r.retryDelay, func() {
		r.client.LPush(context.Background(), MainQueueName, body)
	})
}

func (r *RedisMQ) moveToDeadLetter(ctx context.Context, data string) {
	r.client.LPush(ctx, DeadLetterQueueName, data)
	r.client.LRem(ctx, ProcessingQueueName, 1, data)
}

// RetryDeadLetters 将死信队列中的消息移回主队列
func (r *RedisMQ) RetryDeadLetters(ctx context.Context) (int, error) {
	messages, err := r.client.LRange(ctx, DeadLetterQueueName, 0, -1).Result()
	if err != nil {
		return 0, errors.Wrap(err, "获取死信队列消息失败")
	}

	count := 0
	for _, data := range messages {
		if err := r.client.LPush(ctx, MainQueueName, data).Err(); err != nil {
			r.logger.Error().Err(err).Msg("重新入队消息失败")
			continue
		}
		r.client.LRem(ctx, DeadLetterQueueName, 1, data)
		if msg, err := decodeGrant([]byte(data)); err == nil {
			r.client.HDel(ctx, RetriesHashName, msg.MessageID)
		}
		count++
	}
	r.logger.Info().Int("count", count).Msg("死信消息已移回主队列")
	return count, nil
}

// QueueStats 获取各队列的消息数量
func (r *RedisMQ) QueueStats(ctx context.Context) map[string]int64 {
	stats := make(map[string]int64)
	stats["main_queue"], _ = r.client.LLen(ctx, MainQueueName).Result()
	stats["processing_queue"], _ = r.client.LLen(ctx, ProcessingQueueName).Result()
	stats["dead_letter_queue"], _ = r.client.LLen(ctx, DeadLetterQueueName).Result()
	return stats
}
