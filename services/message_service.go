//go:generate go run go.uber.org/mock/mockgen -source=message_service.go -destination=../mocks/mock_message_service.go -package=mocks
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/google/uuid"

	"nestchat/domain"
	"nestchat/domain/event"
	"nestchat/errors"
	"nestchat/moderation"
	"nestchat/repositories"
	"nestchat/runtime"
)

type IMessageService interface {
	Send(ctx context.Context, conversationID uuid.UUID, senderID string, msg domain.Message) (domain.Message, error)
	MarkRead(ctx context.Context, conversationID uuid.UUID, readerID string, throughID uuid.UUID) (int, error)
	List(ctx context.Context, conversationID uuid.UUID, userID string, cursor *string) ([]domain.Message, *string, error)
	Search(ctx context.Context, conversationID uuid.UUID, userID, terms string, limit, offset int) ([]domain.Message, uint64, error)
}

// MessageService is the write and read path for messages. Sends are
// serialized per conversation so the media gate is checked under the
// same lock that admits the message, and unread counts are recomputed
// from storage rather than incremented.
type MessageService struct {
	log           *slog.Logger
	conversations repositories.IConversationRepository
	messages      repositories.IMessageRepository
	index         *repositories.MessageIndex
	moderator     *moderation.Moderator
	locks         *runtime.KeyedMutex
	events        chan<- event.DomainEvent
	now           func() time.Time
}

func NewMessageService(log *slog.Logger,
	conversations repositories.IConversationRepository,
	messages repositories.IMessageRepository,
	index *repositories.MessageIndex,
	moderator *moderation.Moderator,
	locks *runtime.KeyedMutex,
	events chan<- event.DomainEvent) *MessageService {
	return &MessageService{
		log:           log,
		conversations: conversations,
		messages:      messages,
		index:         index,
		moderator:     moderator,
		locks:         locks,
		events:        events,
		now:           time.Now,
	}
}

func (s *MessageService) WithClock(now func() time.Time) *MessageService {
	s.now = now
	return s
}

// Send validates, moderates and persists a message, then notifies the
// counterparty with a snapshot carrying their fresh unread count.
// Media messages are admitted against the gate state at acceptance
// time: a grant revoked after acceptance never unsends anything.
func (s *MessageService) Send(_ context.Context, conversationID uuid.UUID, senderID string, msg domain.Message) (domain.Message, error) {
	unlock := s.locks.Lock(conversationID.String())
	defer unlock()

	conv, err := s.conversations.GetByID(conversationID)
	if err != nil {
		return domain.Message{}, err
	}
	if !conv.IsParticipant(senderID) {
		return domain.Message{}, fmt.Errorf("%w: %s is not part of conversation %s", errors.ErrForbidden, senderID, conversationID)
	}

	msg.ID = uuid.New()
	msg.ConversationID = conversationID
	msg.SenderID = senderID
	msg.IsRead = false
	msg.CreatedAt = s.now().UTC()
	if err := msg.Validate(); err != nil {
		return domain.Message{}, err
	}
	if msg.IsMedia() && !conv.MediaAllowed() {
		return domain.Message{}, fmt.Errorf("%w: media is not granted in conversation %s", errors.ErrMediaNotGranted, conversationID)
	}

	if msg.Type == domain.TypeText {
		msg.Text = s.moderator.Mask(msg.Text)
		if info := whatlanggo.Detect(msg.Text); info.IsReliable() {
			if msg.Metadata == nil {
				msg.Metadata = map[string]string{}
			}
			msg.Metadata["lang"] = info.Lang.Iso6391()
		}
	}

	msg, err = s.messages.Store(msg)
	if err != nil {
		return domain.Message{}, err
	}

	conv.UpdatedAt = msg.CreatedAt
	if err := s.conversations.Update(conv); err != nil {
		return domain.Message{}, err
	}

	recipient := conv.Counterpart(senderID)
	unread, err := s.messages.UnreadCount(conversationID, recipient)
	if err != nil {
		s.log.Error("Recomputing unread count", "conversation_id", conversationID, "error", err)
		unread = 0
	}
	s.emit(event.MessageSent{Conversation: conv, Message: msg, UnreadCount: unread})
	return msg, nil
}

// MarkRead flips every message up to and including throughID that was
// sent to the reader, then returns the reader's remaining unread count.
func (s *MessageService) MarkRead(_ context.Context, conversationID uuid.UUID, readerID string, throughID uuid.UUID) (int, error) {
	unlock := s.locks.Lock(conversationID.String())
	defer unlock()

	conv, err := s.conversations.GetByID(conversationID)
	if err != nil {
		return 0, err
	}
	if !conv.IsParticipant(readerID) {
		return 0, fmt.Errorf("%w: %s is not part of conversation %s", errors.ErrForbidden, readerID, conversationID)
	}

	if _, err := s.messages.MarkReadThrough(conversationID, readerID, throughID); err != nil {
		return 0, err
	}
	unread, err := s.messages.UnreadCount(conversationID, readerID)
	if err != nil {
		return 0, err
	}
	s.emit(event.ReadMarked{Conversation: conv, ReaderID: readerID, ThroughID: throughID, UnreadCount: unread})
	return unread, nil
}

// List pages messages backwards from the newest, returning each page in
// chronological order with an opaque cursor for the next older page.
func (s *MessageService) List(_ context.Context, conversationID uuid.UUID, userID string, cursor *string) ([]domain.Message, *string, error) {
	conv, err := s.conversations.GetByID(conversationID)
	if err != nil {
		return nil, nil, err
	}
	if !conv.IsParticipant(userID) {
		return nil, nil, fmt.Errorf("%w: %s is not part of conversation %s", errors.ErrForbidden, userID, conversationID)
	}
	return s.messages.List(conversationID, cursor)
}

// Search runs a full-text query scoped to one conversation and
// resolves the hits back to stored messages in relevance order.
func (s *MessageService) Search(ctx context.Context, conversationID uuid.UUID, userID, terms string, limit, offset int) ([]domain.Message, uint64, error) {
	conv, err := s.conversations.GetByID(conversationID)
	if err != nil {
		return nil, 0, err
	}
	if !conv.IsParticipant(userID) {
		return nil, 0, fmt.Errorf("%w: %s is not part of conversation %s", errors.ErrForbidden, userID, conversationID)
	}

	ids, total, err := s.index.Search(ctx, conversationID, terms, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	msgs := make([]domain.Message, 0, len(ids))
	for _, id := range ids {
		msg, err := s.messages.GetByID(conversationID, id)
		if err != nil {
			// Index can be ahead of or behind the store during
			// compaction; skip hits that no longer resolve.
			s.log.Warn("Search hit without stored message", "conversation_id", conversationID, "message_id", id)
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, total, nil
}

func (s *MessageService) emit(evt event.DomainEvent) {
	select {
	case s.events <- evt:
	default:
		s.log.Warn("Event channel full, dropping change event",
			"conversation_id", evt.ConversationID(), "kind", evt.Kind())
	}
}
