package runtime

import (
	"sync"

	"github.com/google/uuid"

	"nestchat/contract"
)

type set map[string]struct{}

// Registry tracks the live delivery sinks per conversation. A
// subscriber is a single connection (one SSE stream), identified by its
// own id so a user reading the same thread from two devices holds two
// independent sinks.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[string]contract.EventSink
	subscribers map[uuid.UUID]set
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:    make(map[string]contract.EventSink),
		subscribers: make(map[uuid.UUID]set),
	}
}

// GetSinksFor resolves the active sinks watching one conversation.
// Returns nil when nobody is subscribed.
func (r *Registry) GetSinksFor(conversationID uuid.UUID) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.subscribers[conversationID]
	if !ok {
		return nil
	}
	var sinks []contract.EventSink
	for subscriberID := range members {
		if sink, exists := r.sessions[subscriberID]; exists {
			sinks = append(sinks, sink)
		}
	}
	return sinks
}

// Subscribe registers a connection's sink and attaches it to a
// conversation, initializing the membership set on first use.
func (r *Registry) Subscribe(subscriberID string, conversationID uuid.UUID, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[subscriberID] = sink
	if _, ok := r.subscribers[conversationID]; !ok {
		r.subscribers[conversationID] = make(set)
	}
	r.subscribers[conversationID][subscriberID] = struct{}{}
}

// Unsubscribe detaches a connection and drops empty membership sets so
// the map does not leak as conversations go quiet.
func (r *Registry) Unsubscribe(subscriberID string, conversationID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, subscriberID)
	if members, ok := r.subscribers[conversationID]; ok {
		delete(members, subscriberID)
		if len(members) == 0 {
			delete(r.subscribers, conversationID)
		}
	}
}
