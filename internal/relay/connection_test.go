package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConnection_EnqueueUntilFull(t *testing.T) {
	conn := NewConnection("conn-1", "user-1", nil, 2)

	assert.True(t, conn.Enqueue([]byte("a")))
	assert.True(t, conn.Enqueue([]byte("b")))
	assert.False(t, conn.Enqueue([]byte("c")), "full queue must not block")
	assert.Len(t, conn.send, 2)
}

func TestConnection_EnqueueAfterClose(t *testing.T) {
	conn := NewConnection("conn-1", "user-1", nil, 4)
	conn.Close()

	assert.False(t, conn.Enqueue([]byte("a")))
	select {
	case <-conn.Done():
	default:
		t.Fatal("expected Done to be closed")
	}
}

func TestConnection_CloseIdempotent(t *testing.T) {
	conn := NewConnection("conn-1", "user-1", nil, 4)
	assert.NotPanics(t, func() {
		conn.Close()
		conn.Close()
	})
}

func TestConnection_DefaultQueueSize(t *testing.T) {
	conn := NewConnection("conn-1", "user-1", nil, 0)
	assert.Equal(t, 256, cap(conn.send))
}

func TestConnection_HasIdentity(t *testing.T) {
	assert.True(t, NewConnection("c", "alice", nil, 1).HasIdentity())
	assert.False(t, NewConnection("c", "", nil, 1).HasIdentity())
	assert.False(t, NewConnection("c", "undefined", nil, 1).HasIdentity())
}

func TestConnection_UpdateLastPong(t *testing.T) {
	conn := NewConnection("conn-1", "user-1", nil, 1)
	conn.lastPong = time.Now().Add(-1 * time.Hour)

	initialPong := conn.GetLastPong()
	conn.UpdateLastPong()

	assert.True(t, conn.GetLastPong().After(initialPong))
	assert.GreaterOrEqual(t, conn.Age(), time.Duration(0))
}
