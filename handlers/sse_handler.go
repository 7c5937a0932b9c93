package handlers

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"civic-governance-backend/model"
)

// SSEClient 一个 SSE 订阅
type SSEClient struct {
	Topic  string
	Key    string
	events chan sseFrame
}

type sseFrame struct {
	name string
	data []byte
}

func (c *SSEClient) wants(event *model.Event) bool {
	if c.Topic != "" && c.Topic != event.Topic {
		return false
	}
	return c.Key == "" || c.Key == event.Key
}

// SSEBroker 把已提交的账本事件推送给 SSE 客户端
type SSEBroker struct {
	mu        sync.RWMutex
	clients   map[*SSEClient]struct{}
	heartbeat time.Duration
	logger    zerolog.Logger
}

// NewSSEBroker 创建 SSE 广播器
func NewSSEBroker(heartbeat time.Duration, logger zerolog.Logger) *SSEBroker {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &SSEBroker{
		clients:   make(map[*SSEClient]struct{}),
		heartbeat: heartbeat,
		logger:    logger.With().Str("component", "sse").Logger(),
	}
}

// Publish 向订阅了该主题的客户端广播，慢客户端丢帧
func (b *SSEBroker) Publish(event model.Event) {
	data, err := event.ToJSON()
	if err != nil {
		b.logger.Error().Err(err).Str("type", event.Type).Msg("failed to encode event")
		return
	}
	frame := sseFrame{name: event.Type, data: data}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for client := range b.clients {
		if !client.wants(&event) {
			continue
		}
		select {
		case client.events <- frame:
		default:
			b.logger.Warn().Str("type", event.Type).Msg("sse client buffer full, frame dropped")
		}
	}
}

// ClientCount 当前连接数
func (b *SSEBroker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// HandleSSE 处理SSE连接请求，查询参数与 WebSocket 相同
func (b *SSEBroker) HandleSSE(c *gin.Context) {
	topic := c.Query("topic")
	if topic != "" && topic != model.TopicElections && topic != model.TopicVotings {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown topic", "code": "invalid_input"})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no") // 禁用Nginx缓冲
	c.Status(http.StatusOK)

	client := &SSEClient{Topic: topic, Key: c.Query("key"), events: make(chan sseFrame, 64)}
	b.mu.Lock()
	b.clients[client] = struct{}{}
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.clients, client)
		b.mu.Unlock()
	}()

	if err := writeSSE(c.Writer, flusher, "connected", []byte(`{"status":"connected"}`)); err != nil {
		return
	}

	heartbeat := time.NewTicker(b.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case frame := <-client.events:
			if err := writeSSE(c.Writer, flusher, frame.name, frame.data); err != nil {
				b.logger.Debug().Err(err).Msg("sse write failed")
				return
			}
		case <-heartbeat.C:
			// 注释行作为心跳
			if _, err := fmt.Fprint(c.Writer, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, name string, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
