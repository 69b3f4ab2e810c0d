package service

import (
	"context"
	"edutest_backend/pkg/logger"
	"edutest_backend/pkg/monitoring"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	refreshDelay   = 200 * time.Millisecond
)

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

const (
	MsgDashboard = "DASHBOARD"
	MsgRefresh   = "REFRESH"
)

type DashboardClient struct {
	Hub     *DashboardHub
	Conn    *websocket.Conn
	Send    chan []byte
	UserID  string
	Limiter *rate.Limiter
}

func (c *DashboardClient) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Error("WebSocket unexpected close", zap.Error(err), zap.String("userId", c.UserID))
			}
			break
		}
		if !c.Limiter.Allow() {
			continue
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == MsgRefresh {
			select {
			case c.Hub.resend <- c:
			case <-c.Hub.done:
				return
			}
		}
	}
}

func (c *DashboardClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// DashboardHub pushes a fresh analytics snapshot to every connected
// instructor whenever the catalog or the history changes.
type DashboardHub struct {
	snapshot func() Dashboard
	upgrader websocket.Upgrader

	clients    map[*DashboardClient]bool
	register   chan *DashboardClient
	unregister chan *DashboardClient
	resend     chan *DashboardClient
	dirty      chan struct{}
	done       chan struct{}
}

// NewDashboardHub accepts upgrades whose origin passes checkOrigin. A nil
// checkOrigin only admits same-host origins.
func NewDashboardHub(snapshot func() Dashboard, checkOrigin func(r *http.Request) bool) *DashboardHub {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin,
	}
	return &DashboardHub{
		snapshot:   snapshot,
		upgrader:   upgrader,
		clients:    make(map[*DashboardClient]bool),
		register:   make(chan *DashboardClient),
		unregister: make(chan *DashboardClient),
		resend:     make(chan *DashboardClient),
		dirty:      make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// Notify marks the dashboard stale. Bursts of changes produce one push.
func (h *DashboardHub) Notify() {
	select {
	case h.dirty <- struct{}{}:
	default:
	}
}

func (h *DashboardHub) encode() []byte {
	data, err := json.Marshal(WSMessage{Type: MsgDashboard, Data: h.snapshot()})
	if err != nil {
		logger.Log.Error("Failed to encode dashboard snapshot", zap.Error(err))
		return nil
	}
	return data
}

func (h *DashboardHub) push(c *DashboardClient, payload []byte) {
	select {
	case c.Send <- payload:
	default:
	}
}

func (h *DashboardHub) Run(ctx context.Context) {
	defer close(h.done)

	var refresh <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.Send)
				delete(h.clients, c)
			}
			monitoring.DashboardClients.Set(0)
			logger.Log.Info("Dashboard hub stopped")
			return

		case c := <-h.register:
			h.clients[c] = true
			monitoring.DashboardClients.Inc()
			if payload := h.encode(); payload != nil {
				h.push(c, payload)
			}

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.Send)
				monitoring.DashboardClients.Dec()
			}

		case c := <-h.resend:
			if h.clients[c] {
				if payload := h.encode(); payload != nil {
					h.push(c, payload)
				}
			}

		case <-h.dirty:
			if refresh == nil {
				refresh = time.After(refreshDelay)
			}

		case <-refresh:
			refresh = nil
			if len(h.clients) == 0 {
				continue
			}
			payload := h.encode()
			if payload == nil {
				continue
			}
			for c := range h.clients {
				h.push(c, payload)
			}
		}
	}
}

// Wait blocks until Run has returned.
func (h *DashboardHub) Wait() {
	<-h.done
}

func ServeDashboardWs(hub *DashboardHub, w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Error("WebSocket upgrade failed", zap.Error(err), zap.String("userId", userID))
		return
	}
	client := &DashboardClient{
		Hub:     hub,
		Conn:    conn,
		Send:    make(chan []byte, 16),
		UserID:  userID,
		Limiter: rate.NewLimiter(rate.Limit(5), 10),
	}
	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
