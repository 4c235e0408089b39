package relay

import (
	"sync"
	"testing"
)

func TestConnectionSet_AddRemove(t *testing.T) {
	set := NewConnectionSet()

	conn := &Connection{ID: "conn-1", UserID: "user-1"}
	set.Add(conn)

	retrieved, exists := set.Get("conn-1")
	if !exists {
		t.Fatal("Expected connection to exist")
	}
	if retrieved.ID != "conn-1" {
		t.Errorf("Expected connection ID %s, got %s", "conn-1", retrieved.ID)
	}
	if set.Count() != 1 {
		t.Errorf("Expected 1 connection, got %d", set.Count())
	}

	if !set.Remove("conn-1") {
		t.Error("Expected first remove to report the connection")
	}
	if set.Remove("conn-1") {
		t.Error("Expected second remove to be a no-op")
	}

	if _, exists = set.Get("conn-1"); exists {
		t.Error("Expected connection to be removed")
	}
	if set.Count() != 0 {
		t.Errorf("Expected 0 connections, got %d", set.Count())
	}
}

func TestConnectionSet_GetAll(t *testing.T) {
	set := NewConnectionSet()
	set.Add(&Connection{ID: "conn-1", UserID: "user-1"})
	set.Add(&Connection{ID: "conn-2"})
	set.Add(&Connection{ID: "conn-3", UserID: "user-1"})

	all := set.GetAll()
	if len(all) != 3 {
		t.Fatalf("Expected 3 connections, got %d", len(all))
	}
	seen := make(map[string]bool)
	for _, conn := range all {
		seen[conn.ID] = true
	}
	for _, id := range []string{"conn-1", "conn-2", "conn-3"} {
		if !seen[id] {
			t.Errorf("Expected %s in GetAll", id)
		}
	}
}

func TestConnectionSet_ConcurrentRemoveOnce(t *testing.T) {
	set := NewConnectionSet()
	set.Add(&Connection{ID: "conn-1"})

	var wg sync.WaitGroup
	var mu sync.Mutex
	removed := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if set.Remove("conn-1") {
				mu.Lock()
				removed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if removed != 1 {
		t.Errorf("Expected exactly one successful remove, got %d", removed)
	}
}
