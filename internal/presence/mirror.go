package presence

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mohamedkhairy/chat-relay/internal/config"
	"github.com/mohamedkhairy/chat-relay/internal/storage"
	"github.com/mohamedkhairy/chat-relay/pkg/logger"
)

// Mirror receives presence transitions after the registry has applied them.
// Implementations must return without blocking on I/O.
type Mirror interface {
	Online(identity string)
	Offline(identity string)
}

// NopMirror discards every transition
type NopMirror struct{}

func (NopMirror) Online(string)  {}
func (NopMirror) Offline(string) {}

// Event is the payload published on the presence channel
type Event struct {
	Type      string    `json:"type"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	EventOnline  = "online"
	EventOffline = "offline"
)

// MirrorStats holds counters about mirror activity
type MirrorStats struct {
	Applied int64
	Dropped int64
	Failed  int64
}

// RedisMirror copies the online set into a Redis set and announces each
// transition on a pub/sub channel so other processes can follow presence.
// Transitions are applied in the order they were reported by a single
// worker; when the queue is full the transition is dropped.
type RedisMirror struct {
	redis   storage.RedisClient
	setKey  string
	channel string
	ops     chan Event
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	// drainTimeout bounds how long Stop keeps applying queued transitions
	drainTimeout time.Duration

	applied atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewRedisMirror creates a mirror; call Start before reporting transitions
func NewRedisMirror(redis storage.RedisClient, cfg config.PresenceConfig) *RedisMirror {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1024
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisMirror{
		redis:   redis,
		setKey:  cfg.SetKey,
		channel: cfg.Channel,
		ops:     make(chan Event, queueSize),
		ctx:     ctx,
		cancel:  cancel,

		drainTimeout: 5 * time.Second,
	}
}

// Start clears what a previous run left in the set and starts the worker
func (m *RedisMirror) Start() error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(m.ctx, 5*time.Second)
	err := m.redis.Delete(ctx, m.setKey)
	cancel()
	if err != nil {
		logger.Warn("Failed to reset presence set",
			logger.ErrorField(err),
			logger.String("key", m.setKey),
		)
	}

	m.wg.Add(1)
	go m.run()

	logger.Info("Presence mirror started",
		logger.String("key", m.setKey),
		logger.String("channel", m.channel),
	)
	return nil
}

// Stop stops the worker after applying the transitions still queued, giving
// up on whatever is left once the drain timeout passes.
func (m *RedisMirror) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	logger.Info("Presence mirror stopped")
}

// Online reports that identity gained a connection
func (m *RedisMirror) Online(identity string) {
	m.enqueue(Event{Type: EventOnline, UserID: identity, Timestamp: time.Now().UTC()})
}

// Offline reports that identity lost its connection
func (m *RedisMirror) Offline(identity string) {
	m.enqueue(Event{Type: EventOffline, UserID: identity, Timestamp: time.Now().UTC()})
}

// GetStats returns mirror counters
func (m *RedisMirror) GetStats() MirrorStats {
	return MirrorStats{
		Applied: m.applied.Load(),
		Dropped: m.dropped.Load(),
		Failed:  m.failed.Load(),
	}
}

func (m *RedisMirror) enqueue(evt Event) {
	select {
	case m.ops <- evt:
	default:
		m.dropped.Add(1)
		logger.Warn("Presence mirror queue full, dropping transition",
			logger.String("type", evt.Type),
			logger.UserID(evt.UserID),
		)
	}
}

func (m *RedisMirror) run() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			m.drain()
			return
		case evt := <-m.ops:
			m.apply(context.Background(), evt)
		}
	}
}

func (m *RedisMirror) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), m.drainTimeout)
	defer cancel()

	for {
		if ctx.Err() != nil {
			if left := len(m.ops); left > 0 {
				logger.Warn("Presence mirror drain timed out",
					logger.Int("discarded", left),
				)
				m.dropped.Add(int64(left))
			}
			return
		}
		select {
		case evt := <-m.ops:
			m.apply(ctx, evt)
		default:
			return
		}
	}
}

func (m *RedisMirror) apply(parent context.Context, evt Event) {
	ctx, cancel := context.WithTimeout(parent, 2*time.Second)
	defer cancel()

	var err error
	switch evt.Type {
	case EventOnline:
		err = m.redis.SetAdd(ctx, m.setKey, evt.UserID)
	case EventOffline:
		err = m.redis.SetRemove(ctx, m.setKey, evt.UserID)
	}
	if err == nil {
		err = m.redis.Publish(ctx, m.channel, evt)
	}
	if err != nil {
		m.failed.Add(1)
		logger.Warn("Failed to mirror presence transition",
			logger.ErrorField(err),
			logger.String("type", evt.Type),
			logger.UserID(evt.UserID),
		)
		return
	}
	m.applied.Add(1)
}
