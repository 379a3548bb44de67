package server

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/buzzsnip/buzzsnip/logger"
	"github.com/buzzsnip/buzzsnip/pulse/async"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	clientSendBuffer = 64
)

// JobUpdateMessage is pushed to websocket clients whenever a job changes
type JobUpdateMessage struct {
	Type      string     `json:"type"`
	Job       *async.Job `json:"job"`
	Timestamp int64      `json:"timestamp"`
}

// JobStatsMessage greets each new websocket client with current counts
type JobStatsMessage struct {
	Type      string       `json:"type"`
	Stats     *async.Stats `json:"stats"`
	Timestamp int64        `json:"timestamp"`
}

// Hub fans job updates out to websocket clients
type Hub struct {
	jobs     *async.Manager
	upgrader websocket.Upgrader
	logger   *zap.SugaredLogger

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool

	drops atomic.Int64
}

func newHub(jobs *async.Manager, allowedOrigins []string, log *zap.SugaredLogger) *Hub {
	h := &Hub{
		jobs:    jobs,
		logger:  log.Named("ws"),
		clients: make(map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  2048,
		WriteBufferSize: 2048,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// Non-browser clients send no origin
			return origin == "" || originAllowed(origin, allowedOrigins)
		},
	}
	return h
}

// run forwards job updates until ctx ends, then disconnects every client
func (h *Hub) run(ctx context.Context) {
	updates := h.jobs.Subscribe()
	defer h.jobs.Unsubscribe(updates)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case job := <-updates:
			h.broadcast(JobUpdateMessage{Type: "job_update", Job: job, Timestamp: time.Now().Unix()})
		}
	}
}

// broadcast queues msg for every client. Slow clients miss messages rather
// than stall the hub.
func (h *Hub) broadcast(msg interface{}) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for c := range h.clients {
		select {
		case c.send <- msg:
			sent++
		default:
			h.drops.Add(1)
		}
	}
	return sent
}

// ClientCount returns the number of connected websocket clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.close()
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
		delete(h.clients, c)
	}
	h.mu.Unlock()

	if len(clients) > 0 {
		h.logger.Infow("Closing websocket clients", logger.FieldCount, len(clients))
	}
	for _, c := range clients {
		c.close()
		c.conn.Close()
	}
}

// ServeWS handles GET /ws/jobs
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		h.logger.Debugw("Websocket upgrade failed", logger.FieldRemote, r.RemoteAddr, logger.FieldError, err)
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan interface{}, clientSendBuffer),
		id:   uuid.NewString()[:8],
	}
	// Queued before register, while nothing else can close send
	if stats, err := h.jobs.Stats(r.Context()); err == nil {
		c.send <- JobStatsMessage{Type: "job_stats", Stats: stats, Timestamp: time.Now().Unix()}
	}
	if !h.register(c) {
		conn.Close()
		return
	}
	h.logger.Debugw("Websocket client connected", "client_id", c.id, logger.FieldRemote, r.RemoteAddr)

	go c.writePump()
	go c.readPump()
}

// client is one websocket connection
type client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan interface{}
	id        string
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// readPump discards inbound messages and keeps the read deadline fresh.
// The stream is one-way; reading only notices pongs and disconnects.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNoStatusReceived,
			) {
				c.hub.logger.Warnw("Websocket read error", "client_id", c.id, logger.FieldError, err)
			}
			return
		}
	}
}

// writePump writes queued messages and keepalive pings
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.hub.logger.Debugw("Websocket write error", "client_id", c.id, logger.FieldError, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
