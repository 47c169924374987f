package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/openmohaa/match-server/internal/models"
)

var wsClients = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "matchd_ws_clients",
	Help: "Connected websocket subscribers",
})

const (
	wsSendBuffer   = 64
	wsPingInterval = 20 * time.Second
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
)

type wsClient struct {
	conn        *websocket.Conn
	participant string
	send        chan []byte
	done        chan struct{}
	once        sync.Once
}

func newWSClient(conn *websocket.Conn, participant string) *wsClient {
	return &wsClient{
		conn:        conn,
		participant: participant,
		send:        make(chan []byte, wsSendBuffer),
		done:        make(chan struct{}),
	}
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

func (c *wsClient) enqueue(b []byte) bool {
	select {
	case <-c.done:
		return false
	case c.send <- b:
		return true
	default:
		return false
	}
}

// Hub streams notifications to websocket subscribers. Notifications with a
// target only reach that participant's connections. A subscriber that falls
// behind is disconnected.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *zap.SugaredLogger

	mu   sync.Mutex
	subs map[*wsClient]struct{}
}

func NewHub(allowedOrigins []string, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
		logger: logger.Sugar(),
		subs:   make(map[*wsClient]struct{}),
	}
}

// Deliver implements notify.Sink.
func (h *Hub) Deliver(ctx context.Context, n models.Notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.subs {
		if n.Target != "" && c.participant != n.Target {
			continue
		}
		if !c.enqueue(b) {
			h.logger.Warnw("Websocket subscriber too slow, disconnecting", "participant", c.participant)
			c.close()
			delete(h.subs, c)
			wsClients.Dec()
		}
	}
	return nil
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.subs {
		c.close()
		delete(h.subs, c)
		wsClients.Dec()
	}
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.subs[c] = struct{}{}
	h.mu.Unlock()
	wsClients.Inc()
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.subs[c]; ok {
		delete(h.subs, c)
		wsClients.Dec()
	}
	h.mu.Unlock()
	c.close()
}

// ServeWS upgrades the request and streams notifications until the client
// goes away. ?participant=ID also receives notifications addressed to ID.
// @Summary Notification stream
// @Tags System
// @Param participant query string false "Participant ID"
// @Router /ws [get]
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnw("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	client := newWSClient(conn, r.URL.Query().Get("participant"))
	h.add(client)
	h.logger.Infow("Websocket connected", "remote", r.RemoteAddr, "participant", client.participant)

	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	go h.writePump(client)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(client)
	h.logger.Infow("Websocket disconnected", "remote", r.RemoteAddr, "participant", client.participant)
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	defer h.remove(c)

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
