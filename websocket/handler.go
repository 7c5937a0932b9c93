package websocket

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"civic-governance-backend/model"
)

const (
	// 写入超时
	writeWait = 10 * time.Second

	// 读取超时
	pongWait = 60 * time.Second

	// 发送ping间隔时间，必须小于pongWait
	pingPeriod = (pongWait * 9) / 10

	// 最大消息大小
	maxMessageSize = 512
)

// Handler WebSocket处理器
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewHandler 创建WebSocket处理器，allowedOrigins 为空时接受任意来源
func NewHandler(hub *Hub, allowedOrigins []string) *Handler {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				_, ok := origins[r.Header.Get("Origin")]
				return ok
			},
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(router gin.IRoutes) {
	router.GET("/ws/events", h.HandleWebSocketConnection)
}

// HandleWebSocketConnection 处理WebSocket连接请求
// 查询参数 topic 取 elections 或 votings，key 只订阅单个投票或文章
func (h *Handler) HandleWebSocketConnection(c *gin.Context) {
	topic := c.Query("topic")
	if topic != "" && topic != model.TopicElections && topic != model.TopicVotings {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown topic", "code": "INVALID_INPUT"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.hub.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		Topic: topic,
		Key:   c.Query("key"),
		conn:  conn,
		send:  make(chan []byte, 256),
	}
	if !h.hub.RegisterClient(client) {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}

	go h.writePump(client)
	go h.readPump(client)
}

// readPump 只处理控制帧，客户端发送的消息被忽略
func (h *Handler) readPump(client *Client) {
	defer func() {
		h.hub.UnregisterClient(client)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(maxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.hub.logger.Debug().Err(err).Msg("websocket read error")
			}
			return
		}
	}
}

// writePump 每个事件单独一帧
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// 通道已关闭
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
