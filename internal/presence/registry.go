// Package presence tracks which user identities currently own a live
// connection and mirrors that view to other processes.
package presence

import (
	"errors"
	"sort"
	"sync"
)

// UndefinedIdentity is the placeholder browsers send when the client had no
// user id to put in the handshake query.
const UndefinedIdentity = "undefined"

var (
	ErrMissingIdentity = errors.New("identity is missing")
	ErrInvalidIdentity = errors.New("identity is the undefined placeholder")
)

// ValidateIdentity reports why an identity may not be registered, or nil
func ValidateIdentity(identity string) error {
	switch identity {
	case "":
		return ErrMissingIdentity
	case UndefinedIdentity:
		return ErrInvalidIdentity
	}
	return nil
}

// Directory is the read-only view of the registry offered to collaborators
// such as the REST API. Writes stay with the relay router.
type Directory interface {
	Lookup(identity string) (string, bool)
	AllIdentities() []string
	Count() int
}

type entry struct {
	handle string
	seq    uint64
}

// Registry maps user identities to connection handles.
//
// At most one handle is kept per identity (last registration wins) and a
// handle is never the value of two identities. The reverse index is updated
// under the same lock as the forward map.
type Registry struct {
	mu       sync.RWMutex
	byUser   map[string]entry  // identity -> handle
	byHandle map[string]string // handle -> identity
	nextSeq  uint64
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		byUser:   make(map[string]entry),
		byHandle: make(map[string]string),
	}
}

// Register maps identity to handle, replacing any previous handle for the
// same identity. The replaced handle becomes orphaned: it can no longer be
// found by Lookup or removed by RemoveByHandle. It returns the orphaned
// handle, if any, and false when identity is not registrable.
func (r *Registry) Register(identity, handle string) (orphaned string, ok bool) {
	if ValidateIdentity(identity) != nil || handle == "" {
		return "", false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// A connection yields one identity; drop a stale claim on this handle
	if owner, exists := r.byHandle[handle]; exists && owner != identity {
		delete(r.byUser, owner)
	}

	prev, exists := r.byUser[identity]
	if exists {
		if prev.handle != handle {
			delete(r.byHandle, prev.handle)
			orphaned = prev.handle
		}
		// Overwrite keeps the original position in AllIdentities
		prev.handle = handle
		r.byUser[identity] = prev
	} else {
		r.nextSeq++
		r.byUser[identity] = entry{handle: handle, seq: r.nextSeq}
	}
	r.byHandle[handle] = identity

	return orphaned, true
}

// Lookup returns the handle currently mapped to identity
func (r *Registry) Lookup(identity string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, exists := r.byUser[identity]
	return e.handle, exists
}

// RemoveByHandle removes the entry owned by handle and returns its identity.
// It is the only removal path.
func (r *Registry) RemoveByHandle(handle string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, exists := r.byHandle[handle]
	if !exists {
		return "", false
	}
	delete(r.byHandle, handle)
	delete(r.byUser, identity)
	return identity, true
}

// AllIdentities returns every registered identity in first-registration order
func (r *Registry) AllIdentities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type ordered struct {
		identity string
		seq      uint64
	}
	items := make([]ordered, 0, len(r.byUser))
	for identity, e := range r.byUser {
		items = append(items, ordered{identity: identity, seq: e.seq})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].seq < items[j].seq })

	identities := make([]string, len(items))
	for i, item := range items {
		identities[i] = item.identity
	}
	return identities
}

// Count returns the number of registered identities
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// ReadOnly returns a Directory backed by r that exposes no mutators, even
// through a type assertion
func (r *Registry) ReadOnly() Directory {
	return readOnlyDirectory{registry: r}
}

type readOnlyDirectory struct {
	registry *Registry
}

func (d readOnlyDirectory) Lookup(identity string) (string, bool) {
	return d.registry.Lookup(identity)
}

func (d readOnlyDirectory) AllIdentities() []string {
	return d.registry.AllIdentities()
}

func (d readOnlyDirectory) Count() int {
	return d.registry.Count()
}
