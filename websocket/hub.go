package websocket

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"civic-governance-backend/model"
)

// Client 代表一个WebSocket连接客户端
type Client struct {
	// 订阅的主题，空表示全部主题
	Topic string

	// 只接收该键的事件，空表示不过滤
	Key string

	// WebSocket连接
	conn *websocket.Conn

	// 消息发送通道
	send chan []byte
}

func (c *Client) wants(event *model.Event) bool {
	if c.Topic != "" && c.Topic != event.Topic {
		return false
	}
	return c.Key == "" || c.Key == event.Key
}

// Hub 维护活跃的客户端集合并向客户端广播已提交的账本事件
type Hub struct {
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan model.Event
	done       chan struct{}

	// 只保护 count
	mu    sync.RWMutex
	count int

	logger zerolog.Logger
}

// NewHub 创建一个新的Hub
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan model.Event, 256),
		done:       make(chan struct{}),
		logger:     logger.With().Str("component", "ws_hub").Logger(),
	}
}

// Run 启动Hub消息处理循环，ctx 结束时关闭所有客户端
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.setCount()
			h.logger.Debug().Str("topic", client.Topic).Str("key", client.Key).Int("clients", len(h.clients)).Msg("client registered")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
			}

		case event := <-h.broadcast:
			payload, err := event.ToJSON()
			if err != nil {
				h.logger.Error().Err(err).Str("type", event.Type).Msg("failed to encode event")
				continue
			}
			delivered := 0
			for client := range h.clients {
				if !client.wants(&event) {
					continue
				}
				select {
				case client.send <- payload:
					delivered++
				default:
					// 发送缓冲区已满，断开慢客户端
					h.drop(client)
				}
			}
			h.logger.Debug().Str("type", event.Type).Int("delivered", delivered).Msg("event broadcast")
		}
	}
}

// Publish 投递事件，缓冲区满时丢弃
func (h *Hub) Publish(event model.Event) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn().Str("type", event.Type).Msg("broadcast buffer full, event dropped")
	}
}

// RegisterClient 注册客户端到Hub，Hub 已停止时返回 false
func (h *Hub) RegisterClient(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// UnregisterClient 从Hub中注销客户端
func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.setCount()
}

func (h *Hub) setCount() {
	h.mu.Lock()
	h.count = len(h.clients)
	h.mu.Unlock()
}
