package services

import (
	"context"
	"log/slog"

	"nestchat/domain"
	"nestchat/domain/event"
	"nestchat/presence"
	"nestchat/repositories"
)

// PresenceService records heartbeats and tells every conversation the
// user takes part in that their counterpart's status may have changed.
type PresenceService struct {
	log           *slog.Logger
	tracker       *presence.Tracker
	conversations repositories.IConversationRepository
	events        chan<- event.DomainEvent
}

func NewPresenceService(log *slog.Logger, tracker *presence.Tracker,
	conversations repositories.IConversationRepository,
	events chan<- event.DomainEvent) *PresenceService {
	return &PresenceService{
		log:           log,
		tracker:       tracker,
		conversations: conversations,
		events:        events,
	}
}

// Heartbeat marks the user online and fans the new status out to the
// user's conversations. Fanout is best effort; the tracker update is
// what heartbeats exist for.
func (s *PresenceService) Heartbeat(_ context.Context, userID string) (domain.Presence, error) {
	p := s.tracker.Heartbeat(userID)

	convs, err := s.conversations.ListForUser(userID)
	if err != nil {
		s.log.Error("Listing conversations for presence fanout", "user_id", userID, "error", err)
		return p, nil
	}
	for _, conv := range convs {
		evt := event.PresenceChanged{Conversation: conv.ID, Presence: p}
		select {
		case s.events <- evt:
		default:
			s.log.Warn("Event channel full, dropping presence event", "conversation_id", conv.ID)
		}
	}
	return p, nil
}

// Status reports a user's presence without touching it.
func (s *PresenceService) Status(_ context.Context, userID string) domain.Presence {
	return s.tracker.Get(userID)
}
