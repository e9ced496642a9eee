package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Hub 任务进度事件推送。轮询仍是权威读路径，SSE 只是低延迟镜像，
// 客户端断开或堆积时直接丢事件。
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*client
	interval time.Duration
	retryMs  int
}

type client struct {
	id   string
	ch   chan string
	done chan struct{}
}

func NewHub(heartbeat time.Duration) *Hub {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &Hub{
		clients:  make(map[string]*client),
		interval: heartbeat,
		retryMs:  5000,
	}
}

// Publish 向所有客户端广播一个事件，payload 会被序列化为 JSON
func (h *Hub) Publish(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	msg := fmt.Sprintf("event: %s\ndata: %s\n\n", event, data)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.ch <- msg:
		default: // 慢客户端丢弃
		}
	}
}

func (h *Hub) add(id string) *client {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := &client{id: id, ch: make(chan string, 64), done: make(chan struct{})}
	h.clients[id] = c
	return c
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	if c, ok := h.clients[id]; ok {
		close(c.done)
		delete(h.clients, id)
	}
	h.mu.Unlock()
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Serve 处理一个 SSE 连接，阻塞到客户端断开
func (h *Hub) Serve(c *gin.Context, clientID string) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	cl := h.add(clientID)
	defer h.remove(clientID)

	fmt.Fprintf(c.Writer, "retry: %d\n\n", h.retryMs)
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.interval)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case msg := <-cl.ch:
			fmt.Fprint(w, msg)
			return true
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			return true
		case <-cl.done:
			return false
		case <-c.Request.Context().Done():
			return false
		}
	})
}
