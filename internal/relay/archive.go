package relay

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mohamedkhairy/chat-relay/internal/storage"
	"github.com/mohamedkhairy/chat-relay/pkg/logger"
)

// ArchivedMessage is what the send path hands to the history store
type ArchivedMessage struct {
	SenderID   string          `json:"sender_id"`
	ReceiverID string          `json:"receiver_id"`
	Message    json.RawMessage `json:"message"`
	Delivered  bool            `json:"delivered"`
	Timestamp  time.Time       `json:"timestamp"`
}

// MessageArchive receives every relayed message. Implementations must not
// block the caller.
type MessageArchive interface {
	Archive(msg ArchivedMessage)
}

// StreamArchive appends relayed messages to a Redis stream for the history
// service to consume
type StreamArchive struct {
	redis   storage.RedisClient
	stream  string
	queue   chan ArchivedMessage
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	written atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewStreamArchive creates an archive writing to stream and starts its worker
func NewStreamArchive(redis storage.RedisClient, stream string, queueSize int) *StreamArchive {
	if queueSize <= 0 {
		queueSize = 1024
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &StreamArchive{
		redis:  redis,
		stream: stream,
		queue:  make(chan ArchivedMessage, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	a.wg.Add(1)
	go a.run()
	return a
}

// Archive queues msg; it is dropped when the queue is full
func (a *StreamArchive) Archive(msg ArchivedMessage) {
	select {
	case a.queue <- msg:
	default:
		a.dropped.Add(1)
		logger.Warn("Archive queue full, dropping message",
			logger.String("sender_id", msg.SenderID),
			logger.String("receiver_id", msg.ReceiverID),
		)
	}
}

// Close flushes queued messages and stops the worker
func (a *StreamArchive) Close() {
	a.cancel()
	a.wg.Wait()
}

// Written returns how many messages reached the stream
func (a *StreamArchive) Written() int64 {
	return a.written.Load()
}

func (a *StreamArchive) run() {
	defer a.wg.Done()

	for {
		select {
		case msg := <-a.queue:
			a.write(msg)
		case <-a.ctx.Done():
			for {
				select {
				case msg := <-a.queue:
					a.write(msg)
				default:
					return
				}
			}
		}
	}
}

func (a *StreamArchive) write(msg ArchivedMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := a.redis.PublishToStream(ctx, a.stream, "message", msg); err != nil {
		a.failed.Add(1)
		logger.Warn("Failed to archive message",
			logger.ErrorField(err),
			logger.String("stream", a.stream),
		)
		return
	}
	a.written.Add(1)
}
