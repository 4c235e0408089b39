package relay

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mohamedkhairy/chat-relay/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamArchive_WritesToStream(t *testing.T) {
	redis := storage.NewMockRedisClient()
	archive := NewStreamArchive(redis, "chat.messages", 16)

	archive.Archive(ArchivedMessage{
		SenderID:   "alice",
		ReceiverID: "bob",
		Message:    json.RawMessage(`"hi"`),
		Delivered:  true,
		Timestamp:  time.Now().UTC(),
	})
	archive.Close()

	streamed := redis.Streamed()
	require.Len(t, streamed, 1)
	assert.Equal(t, "chat.messages", streamed[0].Stream)
	assert.Equal(t, int64(1), archive.Written())

	var got ArchivedMessage
	require.NoError(t, json.Unmarshal([]byte(streamed[0].Values["message"].(string)), &got))
	assert.Equal(t, "alice", got.SenderID)
	assert.Equal(t, "bob", got.ReceiverID)
	assert.True(t, got.Delivered)
}

func TestStreamArchive_CloseFlushesQueue(t *testing.T) {
	redis := storage.NewMockRedisClient()
	archive := NewStreamArchive(redis, "chat.messages", 64)

	for i := 0; i < 20; i++ {
		archive.Archive(ArchivedMessage{SenderID: "alice", ReceiverID: "bob", Message: json.RawMessage(`1`)})
	}
	archive.Close()

	assert.Len(t, redis.Streamed(), 20)
}

func TestStreamArchive_FailuresAreCounted(t *testing.T) {
	redis := storage.NewMockRedisClient()
	redis.PublishErr = errors.New("redis down")
	archive := NewStreamArchive(redis, "chat.messages", 4)

	archive.Archive(ArchivedMessage{SenderID: "alice", ReceiverID: "bob", Message: json.RawMessage(`1`)})
	archive.Close()

	assert.Equal(t, int64(0), archive.Written())
	assert.Equal(t, int64(1), archive.failed.Load())
}
