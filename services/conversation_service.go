//go:generate go run go.uber.org/mock/mockgen -source=conversation_service.go -destination=../mocks/mock_conversation_service.go -package=mocks
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"nestchat/contract"
	"nestchat/domain"
	"nestchat/domain/event"
	"nestchat/errors"
	"nestchat/repositories"
	"nestchat/runtime"
)

type IConversationService interface {
	GetOrCreate(ctx context.Context, propertyID, buyerID string) (domain.Conversation, error)
	Get(ctx context.Context, conversationID uuid.UUID, userID string) (domain.Conversation, error)
	RequestMediaPermission(ctx context.Context, conversationID uuid.UUID, requesterID string) (domain.Conversation, error)
	DecideMediaPermission(ctx context.Context, conversationID uuid.UUID, actorID string, decision domain.MediaPermission) (domain.Conversation, error)
}

// ConversationService owns conversation lifecycle and the
// media-permission gate. Every mutation of one conversation is
// serialized through the keyed mutex; independent conversations never
// contend.
type ConversationService struct {
	log           *slog.Logger
	conversations repositories.IConversationRepository
	owners        contract.OwnerResolver
	locks         *runtime.KeyedMutex
	events        chan<- event.DomainEvent
	now           func() time.Time
}

func NewConversationService(log *slog.Logger,
	conversations repositories.IConversationRepository,
	owners contract.OwnerResolver, locks *runtime.KeyedMutex,
	events chan<- event.DomainEvent) *ConversationService {
	return &ConversationService{
		log:           log,
		conversations: conversations,
		owners:        owners,
		locks:         locks,
		events:        events,
		now:           time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *ConversationService) WithClock(now func() time.Time) *ConversationService {
	s.now = now
	return s
}

// GetOrCreate returns the one conversation for the (property, buyer)
// pair. The owner is resolved from the external listing store exactly
// once, at creation, and is immutable afterwards.
func (s *ConversationService) GetOrCreate(ctx context.Context, propertyID, buyerID string) (domain.Conversation, error) {
	if propertyID == "" || buyerID == "" {
		return domain.Conversation{}, fmt.Errorf("%w: property and buyer are required", errors.ErrValidation)
	}

	ownerID, err := s.owners.OwnerOf(ctx, propertyID)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("resolving owner of property %s: %w", propertyID, err)
	}
	if ownerID == buyerID {
		return domain.Conversation{}, fmt.Errorf("%w: owners cannot open a conversation about their own property", errors.ErrValidation)
	}

	conv, created, err := s.conversations.GetOrCreate(domain.NewConversation(propertyID, ownerID, buyerID, s.now().UTC()))
	if err != nil {
		return domain.Conversation{}, err
	}
	if created {
		s.log.Info("Conversation created",
			"conversation_id", conv.ID,
			"property_id", propertyID,
			"buyer_id", buyerID)
	}
	return conv, nil
}

// Get loads a conversation on behalf of a participant.
func (s *ConversationService) Get(_ context.Context, conversationID uuid.UUID, userID string) (domain.Conversation, error) {
	conv, err := s.conversations.GetByID(conversationID)
	if err != nil {
		return domain.Conversation{}, err
	}
	if !conv.IsParticipant(userID) {
		return domain.Conversation{}, fmt.Errorf("%w: %s is not part of conversation %s", errors.ErrForbidden, userID, conversationID)
	}
	return conv, nil
}

// RequestMediaPermission opens or re-opens the media gate request and
// notifies subscribers so the counterparty can decide.
func (s *ConversationService) RequestMediaPermission(_ context.Context, conversationID uuid.UUID, requesterID string) (domain.Conversation, error) {
	unlock := s.locks.Lock(conversationID.String())
	defer unlock()

	conv, err := s.conversations.GetByID(conversationID)
	if err != nil {
		return domain.Conversation{}, err
	}
	if err := conv.RequestMedia(requesterID, s.now().UTC()); err != nil {
		return domain.Conversation{}, err
	}
	if err := s.conversations.Update(conv); err != nil {
		return domain.Conversation{}, err
	}

	s.emit(event.PermissionChanged{Conversation: conv, ActorID: requesterID})
	return conv, nil
}

// DecideMediaPermission settles a pending request. The domain rejects
// the requester deciding their own request and any decision without an
// open request; nothing is persisted on rejection.
func (s *ConversationService) DecideMediaPermission(_ context.Context, conversationID uuid.UUID, actorID string, decision domain.MediaPermission) (domain.Conversation, error) {
	unlock := s.locks.Lock(conversationID.String())
	defer unlock()

	conv, err := s.conversations.GetByID(conversationID)
	if err != nil {
		return domain.Conversation{}, err
	}
	if err := conv.DecideMedia(actorID, decision, s.now().UTC()); err != nil {
		return domain.Conversation{}, err
	}
	if err := s.conversations.Update(conv); err != nil {
		return domain.Conversation{}, err
	}

	s.log.Info("Media permission decided",
		"conversation_id", conversationID,
		"decision", decision)
	s.emit(event.PermissionChanged{Conversation: conv, ActorID: actorID})
	return conv, nil
}

// emit hands the event to the fanout worker without ever blocking the
// request path. The durable write already happened; dropping a change
// notification under pressure is the lesser evil.
func (s *ConversationService) emit(evt event.DomainEvent) {
	select {
	case s.events <- evt:
	default:
		s.log.Warn("Event channel full, dropping change event",
			"conversation_id", evt.ConversationID(), "kind", evt.Kind())
	}
}
