package relay

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mohamedkhairy/chat-relay/internal/presence"
)

// Connection represents one live websocket connection
type Connection struct {
	// ID is the transport handle, unique for the life of the connection
	ID string
	// UserID is the identity captured from the handshake, verbatim
	UserID    string
	Conn      *websocket.Conn
	send      chan []byte
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	lastPong  time.Time
	createdAt time.Time
}

// NewConnection creates a new connection with a bounded send queue
func NewConnection(id string, userID string, conn *websocket.Conn, queueSize int) *Connection {
	if queueSize <= 0 {
		queueSize = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	return &Connection{
		ID:        id,
		UserID:    userID,
		Conn:      conn,
		send:      make(chan []byte, queueSize),
		ctx:       ctx,
		cancel:    cancel,
		createdAt: now,
		lastPong:  now,
	}
}

// HasIdentity reports whether the handshake carried a registrable identity
func (c *Connection) HasIdentity() bool {
	return presence.ValidateIdentity(c.UserID) == nil
}

// Enqueue queues a frame for the write pump without blocking. It returns
// false when the connection is closed or its queue is full.
func (c *Connection) Enqueue(frame []byte) bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Done is closed once the connection has been closed
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// UpdateLastPong updates the last pong time
func (c *Connection) UpdateLastPong() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPong = time.Now()
}

// GetLastPong returns the last pong time
func (c *Connection) GetLastPong() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPong
}

// Age returns how long the connection has been open
func (c *Connection) Age() time.Duration {
	return time.Since(c.createdAt)
}

// Close closes the connection; it is safe to call more than once
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		if c.Conn != nil {
			c.Conn.Close()
		}
	})
}
