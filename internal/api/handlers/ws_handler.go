package handlers

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ResultsHub 分析结果实时推送
// 所有连接的客户端都收到每条完成摘要
type ResultsHub struct {
	logger      *logrus.Logger
	upgrader    websocket.Upgrader
	clients     map[string]*websocket.Conn
	clientMutex sync.RWMutex
	broadcast   chan interface{}
}

// NewResultsHub 创建结果推送 hub
func NewResultsHub(logger *logrus.Logger) *ResultsHub {
	return &ResultsHub{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有来源（生产环境需要限制）
			},
		},
		clients:   make(map[string]*websocket.Conn),
		broadcast: make(chan interface{}, 100),
	}
}

// Start 启动广播循环
func (h *ResultsHub) Start() {
	go h.runBroadcaster()
}

// Broadcast 投递一条待推送消息，队列满时丢弃而不阻塞分析路径
func (h *ResultsHub) Broadcast(message interface{}) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("WebSocket 广播队列已满，丢弃消息")
	}
}

func (h *ResultsHub) runBroadcaster() {
	for msg := range h.broadcast {
		h.clientMutex.Lock()
		for id, client := range h.clients {
			if err := client.WriteJSON(msg); err != nil {
				h.logger.WithError(err).Warn("Failed to write to WebSocket client")
				client.Close()
				delete(h.clients, id)
			}
		}
		h.clientMutex.Unlock()
	}
}

// HandleWebSocket 处理 /ws/results 连接
func (h *ResultsHub) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade to WebSocket")
		return
	}
	defer conn.Close()

	id := uuid.New().String()
	h.clientMutex.Lock()
	h.clients[id] = conn
	h.clientMutex.Unlock()

	h.logger.WithField("client_id", id).Info("WebSocket client connected")

	// 只推不收，读循环用于感知断开
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.WithError(err).Warn("WebSocket error")
			}
			break
		}
	}

	h.clientMutex.Lock()
	delete(h.clients, id)
	h.clientMutex.Unlock()

	h.logger.WithField("client_id", id).Info("WebSocket client disconnected")
}
