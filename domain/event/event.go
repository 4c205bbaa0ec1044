package event

import (
	"github.com/google/uuid"

	"nestchat/domain"
)

// Kind names the change-event categories pushed to subscribers.
type Kind string

const (
	KindMessage    Kind = "message"
	KindRead       Kind = "read"
	KindPermission Kind = "permission"
	KindPresence   Kind = "presence"
)

// DomainEvent is a state mutation keyed by the conversation it affects.
// Every event carries a fully materialized snapshot so subscribers never
// need a follow-up read to stay consistent.
type DomainEvent interface {
	ConversationID() uuid.UUID
	Kind() Kind
}

// MessageSent is emitted after a message has been durably accepted.
// UnreadCount is the recipient's count at emission time.
type MessageSent struct {
	Conversation domain.Conversation
	Message      domain.Message
	UnreadCount  int
}

func (e MessageSent) ConversationID() uuid.UUID { return e.Conversation.ID }
func (e MessageSent) Kind() Kind                { return KindMessage }

// ReadMarked is emitted after a read receipt has been applied.
type ReadMarked struct {
	Conversation domain.Conversation
	ReaderID     string
	ThroughID    uuid.UUID
	UnreadCount  int
}

func (e ReadMarked) ConversationID() uuid.UUID { return e.Conversation.ID }
func (e ReadMarked) Kind() Kind                { return KindRead }

// PermissionChanged is emitted on every media-gate transition, including
// the no-op re-request while already pending.
type PermissionChanged struct {
	Conversation domain.Conversation
	ActorID      string
}

func (e PermissionChanged) ConversationID() uuid.UUID { return e.Conversation.ID }
func (e PermissionChanged) Kind() Kind                { return KindPermission }

// PresenceChanged is fanned out once per conversation the user takes
// part in, so per-conversation subscribers see their counterpart state.
type PresenceChanged struct {
	Conversation uuid.UUID
	Presence     domain.Presence
}

func (e PresenceChanged) ConversationID() uuid.UUID { return e.Conversation }
func (e PresenceChanged) Kind() Kind                { return KindPresence }
