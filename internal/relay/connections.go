package relay

import (
	"sync"

	"github.com/samber/lo"
)

// ConnectionSet holds every live connection, registered with an identity or not
type ConnectionSet struct {
	connections map[string]*Connection // connection_id -> connection
	mu          sync.RWMutex
}

// NewConnectionSet creates an empty connection set
func NewConnectionSet() *ConnectionSet {
	return &ConnectionSet{
		connections: make(map[string]*Connection),
	}
}

// Add adds a connection to the set
func (s *ConnectionSet) Add(conn *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[conn.ID] = conn
}

// Remove removes a connection and reports whether it was present
func (s *ConnectionSet) Remove(connectionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.connections[connectionID]; !exists {
		return false
	}
	delete(s.connections, connectionID)
	return true
}

// Get retrieves a connection by ID
func (s *ConnectionSet) Get(connectionID string) (*Connection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conn, exists := s.connections[connectionID]
	return conn, exists
}

// GetAll retrieves all connections
func (s *ConnectionSet) GetAll() []*Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return lo.Values(s.connections)
}

// Count returns the total number of connections
func (s *ConnectionSet) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}
