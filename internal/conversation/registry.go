// ABOUTME: Registry is the in-memory table of active conversations
// ABOUTME: Keyed by remote id with O(1) lookup; uniqueness is enforced on add

package conversation

import (
	"errors"
	"sync"
)

// ErrDuplicate is returned when adding a conversation whose remote id
// is already registered.
var ErrDuplicate = errors.New("conversation already registered for this id")

// Registry maps remote ids to active conversations. All mutation goes
// through the session's dispatch path; the internal lock additionally
// protects against the ingress and host goroutines racing.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]*Conversation
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Conversation)}
}

// Add registers a conversation. Returns ErrDuplicate when a
// conversation with the same remote id already exists; callers are
// expected to look up before creating.
func (r *Registry) Add(c *Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[c.RemoteID()]; exists {
		return ErrDuplicate
	}
	r.byID[c.RemoteID()] = c
	return nil
}

// FindByRemoteID returns the conversation keyed by id, or nil.
func (r *Registry) FindByRemoteID(id string) *Conversation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// FindBySurfaceID returns the conversation whose display surface was
// opened under surfaceID. Surfaces are opened under the conversation's
// remote id, so this is an id lookup.
func (r *Registry) FindBySurfaceID(surfaceID string) *Conversation {
	return r.FindByRemoteID(surfaceID)
}

// Remove drops the conversation keyed by id. Removal is immediate and
// unconditional; pending messages are not drained.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}

// All returns a snapshot of the registered conversations.
func (r *Registry) All() []*Conversation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conversation, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	return out
}

// Len returns the number of registered conversations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
