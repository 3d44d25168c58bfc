// internal/api/websocket.go
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Corphon/MVDirectorAI/internal/models"
	"github.com/Corphon/MVDirectorAI/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 在生产环境中应该进行更严格的检查
		return true
	},
}

// wsClient 表示一个已连接的更新订阅者
type wsClient struct {
	conn   *websocket.Conn
	send   chan []byte
	closed int32
}

func (c *wsClient) close() {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		c.conn.Close()
	}
}

func (c *wsClient) isClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

// UpdateHub 向所有订阅者广播阶段产物变更事件
type UpdateHub struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}

	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
}

// NewUpdateHub 创建并启动更新广播器
func NewUpdateHub() *UpdateHub {
	hub := &UpdateHub{
		clients:    make(map[*wsClient]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient, 16),
		unregister: make(chan *wsClient, 16),
	}
	go hub.run()
	return hub
}

func (h *UpdateHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			client.close()

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				if client.isClosed() {
					continue
				}
				select {
				case client.send <- message:
				default:
					// 发送缓冲已满的慢客户端直接跳过
				}
			}
			h.mu.RUnlock()
		}
	}
}

// NotifyProjectEvent 实现 services.UpdateNotifier
func (h *UpdateHub) NotifyProjectEvent(stage models.Stage, event string, sceneID string) {
	payload := map[string]interface{}{
		"type":      "project_update",
		"stage":     stage.String(),
		"event":     event,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if sceneID != "" {
		payload["scene_id"] = sceneID
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return
	}

	select {
	case h.broadcast <- data:
	default:
		utils.GetLogger().Warn("update broadcast channel full, event dropped", map[string]interface{}{
			"event": event,
		})
	}
}

// ClientCount 返回当前订阅者数量
func (h *UpdateHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleUpdates 处理 /ws/updates 连接
func (h *UpdateHub) HandleUpdates(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.GetLogger().Error("websocket upgrade failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}
	h.register <- client

	go h.writeLoop(client)
	go h.readLoop(client)
}

func (h *UpdateHub) writeLoop(client *wsClient) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		client.close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			if !ok {
				return
			}
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *UpdateHub) readLoop(client *wsClient) {
	defer func() {
		h.unregister <- client
	}()

	client.conn.SetReadLimit(4096)
	client.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})

	// 订阅端只收不发，读循环只用于感知断连
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}
