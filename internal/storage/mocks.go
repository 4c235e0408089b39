package storage

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// MockRedisClient is an in-memory RedisClient for tests. It is safe for
// concurrent use because the presence mirror writes from its own goroutine.
type MockRedisClient struct {
	mu         sync.Mutex
	Sets       map[string]map[string]bool
	StreamData []StreamMessage
	PubSubData []PubSubMessage
	Deleted    []string
	PublishErr error
	SetErr     error
	Closed     bool
}

func NewMockRedisClient() *MockRedisClient {
	return &MockRedisClient{
		Sets: make(map[string]map[string]bool),
	}
}

func (m *MockRedisClient) PublishToStream(ctx context.Context, stream string, key string, value interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PublishErr != nil {
		return m.PublishErr
	}
	// Marshal to JSON like the real implementation
	jsonData, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.StreamData = append(m.StreamData, StreamMessage{
		Stream: stream,
		Values: map[string]interface{}{key: string(jsonData)},
	})
	return nil
}

func (m *MockRedisClient) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Sets, key)
	m.Deleted = append(m.Deleted, key)
	return nil
}

func (m *MockRedisClient) SetAdd(ctx context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	if m.Sets[key] == nil {
		m.Sets[key] = make(map[string]bool)
	}
	for _, member := range members {
		m.Sets[key][member] = true
	}
	return nil
}

func (m *MockRedisClient) SetRemove(ctx context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	for _, member := range members {
		delete(m.Sets[key], member)
	}
	return nil
}

func (m *MockRedisClient) Publish(ctx context.Context, channel string, message interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PublishErr != nil {
		return m.PublishErr
	}
	jsonData, err := json.Marshal(message)
	if err != nil {
		return err
	}
	m.PubSubData = append(m.PubSubData, PubSubMessage{Channel: channel, Message: string(jsonData)})
	return nil
}

func (m *MockRedisClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// Members returns the sorted members of a set
func (m *MockRedisClient) Members(key string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	members := make([]string, 0, len(m.Sets[key]))
	for member := range m.Sets[key] {
		members = append(members, member)
	}
	sort.Strings(members)
	return members
}

// Published returns a copy of every pub/sub message seen so far
func (m *MockRedisClient) Published() []PubSubMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PubSubMessage(nil), m.PubSubData...)
}

// Streamed returns a copy of every stream entry seen so far
func (m *MockRedisClient) Streamed() []StreamMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]StreamMessage(nil), m.StreamData...)
}
