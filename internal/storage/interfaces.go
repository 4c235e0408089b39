package storage

import (
	"context"
)

// RedisClient defines the Redis operations the relay relies on
type RedisClient interface {
	// Stream operations
	PublishToStream(ctx context.Context, stream string, key string, value interface{}) error

	// Key operations
	Delete(ctx context.Context, key string) error

	// Set operations
	SetAdd(ctx context.Context, key string, members ...string) error
	SetRemove(ctx context.Context, key string, members ...string) error

	// Pub/Sub operations
	Publish(ctx context.Context, channel string, message interface{}) error

	// Close closes the Redis connection
	Close() error
}

// StreamMessage represents a message written to a Redis stream
type StreamMessage struct {
	ID     string
	Stream string
	Values map[string]interface{}
}

// PubSubMessage represents a message published on a Redis channel
type PubSubMessage struct {
	Channel string
	Message string
}
