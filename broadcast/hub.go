// Package broadcast pushes host status to observers over WebSocket: metering
// frames, engine state changes, and parameter listings. The hub is the far
// end of the metering drain; it never feeds back into the real-time path.
package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shaban/dsphost/meter"
)

// Config tunes the hub's connection handling.
type Config struct {
	PingInterval   time.Duration // default 30s
	PongWait       time.Duration // default 60s
	WriteWait      time.Duration // default 10s
	MaxMessageSize int64         // default 512
	QueueSize      int           // broadcast and per-client buffers, default 256
}

// DefaultConfig returns the defaults used when a field is zero.
func DefaultConfig() Config {
	return Config{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 512,
		QueueSize:      256,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.PingInterval <= 0 {
		c.PingInterval = def.PingInterval
	}
	if c.PongWait <= 0 {
		c.PongWait = def.PongWait
	}
	if c.WriteWait <= 0 {
		c.WriteWait = def.WriteWait
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.QueueSize <= 0 {
		c.QueueSize = def.QueueSize
	}
}

// client holds one connection's outbound queue.
type client struct {
	send chan []byte
	addr string
}

// Hub fans messages out to every connected observer. Slow clients are
// disconnected rather than allowed to stall the rest.
type Hub struct {
	cfg    Config
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[*websocket.Conn]*client

	broadcast  chan Message
	register   chan *websocket.Conn
	unregister chan *websocket.Conn

	upgrader websocket.Upgrader

	// onConnect, when set, produces the greeting sent to each new client,
	// typically the parameter listing and current engine state.
	onConnect func() []Message
}

// NewHub creates a hub. Run must be called before clients connect.
func NewHub(cfg Config, logger *zap.Logger) *Hub {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		cfg:        cfg,
		logger:     logger,
		clients:    make(map[*websocket.Conn]*client),
		broadcast:  make(chan Message, cfg.QueueSize),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// OnConnect sets the greeting factory invoked for each new client.
func (h *Hub) OnConnect(fn func() []Message) { h.onConnect = fn }

// Run processes registrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ping := time.NewTicker(h.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case conn := <-h.register:
			h.add(conn)
		case conn := <-h.unregister:
			h.remove(conn)
		case msg := <-h.broadcast:
			h.fanOut(msg)
		case <-ping.C:
			h.pingAll()
		}
	}
}

// ServeHTTP upgrades the request and manages the client lifecycle. Mount
// the hub on the status mux, e.g. at /ws.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	conn.SetReadLimit(h.cfg.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
		return nil
	})

	h.register <- conn
	go h.readPump(conn)
}

// Broadcast queues msg for every client. Non-blocking: when the queue is
// full the message is dropped, which is acceptable for status traffic.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("broadcast queue full, dropping message", zap.String("type", msg.Type))
	}
}

// BroadcastMeter implements meter.Broadcaster so the hub can terminate the
// metering drain directly.
func (h *Hub) BroadcastMeter(frame meter.Frame) {
	h.Broadcast(NewMeterMessage(frame))
}

// BroadcastState forwards an engine state change.
func (h *Hub) BroadcastState(state, reason string) {
	h.Broadcast(NewStateMessage(state, reason))
}

// BroadcastError surfaces a background failure to connected observers.
func (h *Hub) BroadcastError(code, message string) {
	h.Broadcast(NewErrorMessage(code, message))
}

// ClientCount returns the number of connected observers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(conn *websocket.Conn) {
	c := &client{
		send: make(chan []byte, h.cfg.QueueSize),
		addr: conn.RemoteAddr().String(),
	}

	h.mu.Lock()
	h.clients[conn] = c
	total := len(h.clients)
	h.mu.Unlock()

	go h.writePump(conn, c.send)

	if h.onConnect != nil {
		for _, msg := range h.onConnect() {
			h.queueTo(c, msg)
		}
	}
	h.logger.Info("status client connected", zap.String("remote", c.addr), zap.Int("total", total))
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[conn]; ok {
		close(c.send)
		delete(h.clients, conn)
		conn.Close()
		h.logger.Info("status client disconnected",
			zap.String("remote", c.addr), zap.Int("total", len(h.clients)))
	}
}

func (h *Hub) fanOut(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn, c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("client queue full, disconnecting", zap.String("remote", c.addr))
			go func(conn *websocket.Conn) { h.unregister <- conn }(conn)
		}
	}
}

func (h *Hub) queueTo(c *client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal greeting message", zap.Error(err))
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (h *Hub) pingAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn, c := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
		if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			h.logger.Debug("ping failed", zap.String("remote", c.addr), zap.Error(err))
			go func(conn *websocket.Conn) { h.unregister <- conn }(conn)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, c := range h.clients {
		close(c.send)
		conn.Close()
		delete(h.clients, conn)
	}
}

// readPump discards client traffic; the socket is one-way. It exists to
// service pong frames and detect closes.
func (h *Hub) readPump(conn *websocket.Conn) {
	defer func() { h.unregister <- conn }()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("unexpected websocket close", zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, send <-chan []byte) {
	defer conn.Close()
	for data := range send {
		conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
	conn.WriteMessage(websocket.CloseMessage, []byte{})
}
