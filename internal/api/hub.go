package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"filehub/internal/transfer"
)

const (
	clientBuffer = 64
	writeWait    = 5 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
)

// Hub 把传输事件广播给已连接的 websocket 客户端，实现 transfer.Reporter。
// 客户端可用 ?transfer=<id> 只订阅单个传输。
type Hub struct {
	upgrader websocket.Upgrader
	log      zerolog.Logger

	mu      sync.RWMutex
	clients map[*hubClient]struct{}
}

type hubClient struct {
	conn   *websocket.Conn
	filter string
	send   chan transfer.Event
}

func NewHub(checkOrigin func(*http.Request) bool, logger zerolog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		log:     logger.With().Str("component", "hub").Logger(),
		clients: make(map[*hubClient]struct{}),
	}
}

// Report 非阻塞地投递事件；客户端缓冲区满时丢弃该事件。
func (h *Hub) Report(ev transfer.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.filter != "" && c.filter != ev.TransferID {
			continue
		}
		select {
		case c.send <- ev:
		default:
			h.log.Debug().Str("transfer_id", ev.TransferID).Msg("client buffer full, event dropped")
		}
	}
}

// Clients 返回当前连接数。
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP 升级连接并持续推送事件，直到客户端断开。
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &hubClient{
		conn:   conn,
		filter: r.URL.Query().Get("transfer"),
		send:   make(chan transfer.Event, clientBuffer),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.log.Debug().Str("filter", c.filter).Msg("client connected")

	done := make(chan struct{})
	go h.writePump(c, done)
	h.readPump(c)
	close(done)

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	conn.Close()
	h.log.Debug().Msg("client disconnected")
}

// readPump 只处理控制帧；读出错即视为断开。
func (h *Hub) readPump(c *hubClient) {
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *hubClient, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				c.conn.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}
