package relay

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mohamedkhairy/chat-relay/internal/config"
	"github.com/mohamedkhairy/chat-relay/internal/presence"
	"github.com/mohamedkhairy/chat-relay/pkg/logger"
)

// Hub owns the live websocket connections. It feeds their lifecycle and
// inbound frames to the Router and is the Router's Outbound.
type Hub struct {
	config   config.RelayConfig
	conns    *ConnectionSet
	router   *Router
	auth     *AuthManager
	upgrader websocket.Upgrader
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
	mu       sync.RWMutex
	running  bool
	counters hubCounters
}

type hubCounters struct {
	connectionsTotal atomic.Int64
	framesQueued     atomic.Int64
	framesDropped    atomic.Int64
	messagesRelayed  atomic.Int64
	messagesDropped  atomic.Int64
	malformedEvents  atomic.Int64
}

// HubStats holds statistics about the hub
type HubStats struct {
	ConnectionsTotal  int64 `json:"connections_total"`
	ConnectionsActive int64 `json:"connections_active"`
	OnlineUsers       int   `json:"online_users"`
	FramesQueued      int64 `json:"frames_queued"`
	FramesDropped     int64 `json:"frames_dropped"`
	MessagesRelayed   int64 `json:"messages_relayed"`
	MessagesDropped   int64 `json:"messages_dropped"`
	MalformedEvents   int64 `json:"malformed_events"`
}

// NewHub creates a hub and the router that owns registry
func NewHub(cfg config.RelayConfig, registry *presence.Registry, opts RouterOptions) *Hub {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 5 * time.Second
	}
	if cfg.PingTimeout <= cfg.PingInterval {
		cfg.PingTimeout = 2 * cfg.PingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		config: cfg,
		conns:  NewConnectionSet(),
		auth:   NewAuthManager(cfg.JWTSecret),
		ctx:    ctx,
		cancel: cancel,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return cfg.OriginAllowed(r.Header.Get("Origin"))
		},
	}
	h.router = NewRouter(registry, h, opts)
	return h
}

// Start starts the stale-connection monitor
func (h *Hub) Start() error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return nil
	}
	if h.ctx.Err() != nil {
		h.mu.Unlock()
		return fmt.Errorf("hub already stopped")
	}
	h.running = true
	h.mu.Unlock()

	logger.Info("Starting relay hub",
		logger.Duration("ping_interval", h.config.PingInterval),
		logger.Duration("ping_timeout", h.config.PingTimeout),
		logger.Int64("max_message_size", h.config.MaxMessageSize),
	)

	h.wg.Add(1)
	go h.monitorConnections()

	return nil
}

// Stop closes every connection and waits for their pumps to exit. It also
// applies to a hub that was never started, after which the hub admits nothing.
func (h *Hub) Stop() {
	h.mu.Lock()
	h.running = false
	h.mu.Unlock()

	h.stopOnce.Do(func() {
		logger.Info("Stopping relay hub",
			logger.Int("connections", h.conns.Count()),
		)
		h.cancel()
		h.wg.Wait()
		logger.Info("Relay hub stopped")
	})
}

// Running reports whether the hub has started and not yet stopped
func (h *Hub) Running() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Router returns the router driven by this hub
func (h *Hub) Router() *Router {
	return h.router
}

// Directory returns the read-only presence view for collaborators
func (h *Hub) Directory() presence.Directory {
	return h.router.Directory()
}

// ConnectionHandle returns the connection currently reachable for identity
func (h *Hub) ConnectionHandle(identity string) (string, bool) {
	return h.router.Directory().Lookup(identity)
}

// ServeWS admits a websocket handshake and registers the new connection
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if h.ctx.Err() != nil {
		http.Error(w, "Shutting down", http.StatusServiceUnavailable)
		return
	}

	if h.config.MaxConnections > 0 && h.conns.Count() >= h.config.MaxConnections {
		handshakesRejected.WithLabelValues("capacity").Inc()
		logger.Warn("Max connections reached, rejecting new connection",
			logger.Int("max_connections", h.config.MaxConnections),
		)
		http.Error(w, "Max connections reached", http.StatusServiceUnavailable)
		return
	}

	identity, err := h.auth.ResolveIdentity(r)
	if err != nil {
		handshakesRejected.WithLabelValues("auth").Inc()
		logger.Warn("Rejecting handshake with bad credentials",
			logger.ErrorField(err),
			logger.String("remote_addr", r.RemoteAddr),
		)
		http.Error(w, "Invalid authentication token", http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied, 403 for a disallowed origin
		handshakesRejected.WithLabelValues("upgrade").Inc()
		logger.Warn("Failed to upgrade connection",
			logger.ErrorField(err),
			logger.String("origin", r.Header.Get("Origin")),
		)
		return
	}

	conn := NewConnection(uuid.New().String(), identity, ws, h.config.SendQueueSize)
	h.Register(conn)

	logger.Info("WebSocket connection established",
		logger.ConnectionID(conn.ID),
		logger.UserID(identity),
		logger.String("remote_addr", r.RemoteAddr),
	)
}

// Register admits a connection: it joins the broadcast set, the router
// processes its connect event, and only then do its pumps start.
func (h *Hub) Register(conn *Connection) {
	if h.ctx.Err() != nil {
		conn.Close()
		return
	}
	if conn.Conn != nil && h.config.MaxMessageSize > 0 {
		conn.Conn.SetReadLimit(h.config.MaxMessageSize)
	}

	h.conns.Add(conn)
	h.counters.connectionsTotal.Add(1)
	connectionsActive.Inc()
	if conn.HasIdentity() {
		connectionsTotal.WithLabelValues("present").Inc()
	} else {
		connectionsTotal.WithLabelValues("absent").Inc()
	}

	h.router.HandleConnect(conn.ID, conn.UserID)

	h.wg.Add(2)
	go h.writePump(conn)
	go h.readPump(conn)
}

// Unregister closes a connection and runs its disconnect event exactly once
func (h *Hub) Unregister(conn *Connection) {
	if !h.conns.Remove(conn.ID) {
		conn.Close()
		return
	}
	connectionsActive.Dec()
	conn.Close()

	h.router.HandleDisconnect(conn.ID)

	logger.Info("Connection closed",
		logger.ConnectionID(conn.ID),
		logger.UserID(conn.UserID),
		logger.Duration("age", conn.Age()),
		logger.Int("total_connections", h.conns.Count()),
	)
}

// Broadcast queues frame on every live connection
func (h *Hub) Broadcast(frame []byte) {
	for _, conn := range h.conns.GetAll() {
		h.enqueue(conn, frame)
	}
}

// SendTo queues frame on the connection with the given handle
func (h *Hub) SendTo(handle string, frame []byte) bool {
	conn, exists := h.conns.Get(handle)
	if !exists {
		return false
	}
	return h.enqueue(conn, frame)
}

func (h *Hub) enqueue(conn *Connection, frame []byte) bool {
	if conn.Enqueue(frame) {
		h.counters.framesQueued.Add(1)
		return true
	}
	h.counters.framesDropped.Add(1)
	framesDropped.Inc()
	logger.Debug("Send queue full or closed, dropping frame",
		logger.ConnectionID(conn.ID),
	)
	return false
}

// writePump is the only writer of data frames on conn
func (h *Hub) writePump(conn *Connection) {
	defer h.wg.Done()
	defer h.Unregister(conn)

	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			conn.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			conn.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return

		case <-conn.Done():
			return

		case frame := <-conn.send:
			conn.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := conn.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Debug("Write failed",
					logger.ErrorField(err),
					logger.ConnectionID(conn.ID),
				)
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump turns inbound frames into router events until the socket fails
// or goes idle past the ping timeout
func (h *Hub) readPump(conn *Connection) {
	defer h.wg.Done()
	defer h.Unregister(conn)

	conn.Conn.SetReadDeadline(time.Now().Add(h.config.PingTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.UpdateLastPong()
		conn.Conn.SetReadDeadline(time.Now().Add(h.config.PingTimeout))
		return nil
	})

	for {
		_, raw, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Debug("WebSocket error",
					logger.ErrorField(err),
					logger.ConnectionID(conn.ID),
				)
			}
			return
		}

		conn.UpdateLastPong()
		conn.Conn.SetReadDeadline(time.Now().Add(h.config.PingTimeout))
		h.handleFrame(conn, raw)
	}
}

func (h *Hub) handleFrame(conn *Connection, raw []byte) {
	msg, err := DecodeClientMessage(raw)
	if err != nil {
		h.dropMalformed(conn, "decode", err)
		return
	}

	switch msg.Event {
	case EventSendMessage:
		payload, err := DecodeSendMessage(msg)
		if err != nil {
			h.dropMalformed(conn, "payload", err)
			return
		}
		if result := h.router.HandleSendMessage(conn.ID, conn.UserID, payload); result == Delivered {
			h.counters.messagesRelayed.Add(1)
		} else {
			h.counters.messagesDropped.Add(1)
		}

	case EventPing:
		frame, err := EncodeServerMessage(EventPong, nil)
		if err == nil {
			h.enqueue(conn, frame)
		}

	default:
		h.dropMalformed(conn, "unknown_event", fmt.Errorf("%w: %q", ErrUnknownEvent, msg.Event))
	}
}

func (h *Hub) dropMalformed(conn *Connection, reason string, err error) {
	h.counters.malformedEvents.Add(1)
	malformedEvents.WithLabelValues(reason).Inc()
	logger.Warn("Dropping malformed event",
		logger.ErrorField(err),
		logger.String("reason", reason),
		logger.ConnectionID(conn.ID),
		logger.UserID(conn.UserID),
	)
}

// monitorConnections closes connections that stopped answering pings even
// though their read deadline has not fired
func (h *Hub) monitorConnections() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.config.PingTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return

		case <-ticker.C:
			now := time.Now()
			staleThreshold := h.config.PingTimeout * 2

			for _, conn := range h.conns.GetAll() {
				idle := now.Sub(conn.GetLastPong())
				if idle > staleThreshold {
					logger.Info("Removing stale connection",
						logger.ConnectionID(conn.ID),
						logger.UserID(conn.UserID),
						logger.Duration("idle_time", idle),
					)
					h.Unregister(conn)
				}
			}
		}
	}
}

// GetStats returns hub statistics
func (h *Hub) GetStats() HubStats {
	return HubStats{
		ConnectionsTotal:  h.counters.connectionsTotal.Load(),
		ConnectionsActive: int64(h.conns.Count()),
		OnlineUsers:       h.router.Directory().Count(),
		FramesQueued:      h.counters.framesQueued.Load(),
		FramesDropped:     h.counters.framesDropped.Load(),
		MessagesRelayed:   h.counters.messagesRelayed.Load(),
		MessagesDropped:   h.counters.messagesDropped.Load(),
		MalformedEvents:   h.counters.malformedEvents.Load(),
	}
}
