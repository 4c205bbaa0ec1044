package services

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/stretchr/testify/require"

	"nestchat/domain"
	"nestchat/domain/event"
	"nestchat/errors"
	"nestchat/moderation"
	"nestchat/repositories"
	"nestchat/runtime"
)

type messageFixture struct {
	conversations *repositories.ConversationRepository
	messages      *repositories.MessageRepository
	index         *repositories.MessageIndex
	service       *MessageService
	events        chan event.DomainEvent
	conv          domain.Conversation
}

func newMessageFixture(t *testing.T) *messageFixture {
	t.Helper()
	req := require.New(t)
	log := slog.Default()

	db := openTestDB(t)
	conversations := repositories.NewConversationRepository(db, log)
	messages, err := repositories.NewMessageRepository(db, log, 50)
	req.NoError(err)
	t.Cleanup(func() { _ = messages.Close() })

	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	req.NoError(err)
	t.Cleanup(func() { _ = writer.Close() })
	index := repositories.NewMessageIndex(writer, log)

	words, err := moderation.LoadWordList()
	req.NoError(err)
	moderator, err := moderation.NewModerator(words.Words, '*')
	req.NoError(err)

	events := make(chan event.DomainEvent, 32)
	service := NewMessageService(log, conversations, messages, index, moderator, runtime.NewKeyedMutex(), events)

	conv, _, err := conversations.GetOrCreate(domain.NewConversation("prop-1", "owner-1", "buyer-1", time.Now().UTC()))
	req.NoError(err)

	return &messageFixture{
		conversations: conversations,
		messages:      messages,
		index:         index,
		service:       service,
		events:        events,
		conv:          conv,
	}
}

func (f *messageFixture) sendText(t *testing.T, senderID, text string) domain.Message {
	t.Helper()
	msg, err := f.service.Send(context.Background(), f.conv.ID, senderID,
		domain.Message{Type: domain.TypeText, Text: text})
	require.NoError(t, err)
	return msg
}

func TestMessageService_Send_MasksOffPlatformPayment(t *testing.T) {
	req := require.New(t)
	f := newMessageFixture(t)

	msg := f.sendText(t, "buyer-1", "pay the deposit through venmo tonight")

	req.NotContains(msg.Text, "venmo")
	req.Contains(msg.Text, strings.Repeat("*", len("venmo")))
	req.False(msg.CreatedAt.IsZero())
	req.False(msg.IsRead)
}

func TestMessageService_Send_TagsLanguage(t *testing.T) {
	req := require.New(t)
	f := newMessageFixture(t)

	msg := f.sendText(t, "buyer-1",
		"Hello, I would really like to schedule a viewing of the apartment sometime tomorrow afternoon if the landlord is available")

	req.Equal("en", msg.Metadata["lang"])
}

func TestMessageService_Send_NonParticipant(t *testing.T) {
	req := require.New(t)
	f := newMessageFixture(t)

	_, err := f.service.Send(context.Background(), f.conv.ID, "stranger",
		domain.Message{Type: domain.TypeText, Text: "hello"})
	req.ErrorIs(err, errors.ErrForbidden)
}

func TestMessageService_Send_MediaGatedUntilGranted(t *testing.T) {
	req := require.New(t)
	f := newMessageFixture(t)

	img := domain.Message{Type: domain.TypeImage, MediaURL: "https://cdn.example.com/a.jpg"}
	_, err := f.service.Send(context.Background(), f.conv.ID, "buyer-1", img)
	req.ErrorIs(err, errors.ErrMediaNotGranted)

	conv := f.conv
	req.NoError(conv.RequestMedia("buyer-1", time.Now().UTC()))
	req.NoError(conv.DecideMedia("owner-1", domain.MediaGranted, time.Now().UTC()))
	req.NoError(f.conversations.Update(conv))

	sent, err := f.service.Send(context.Background(), f.conv.ID, "buyer-1", img)
	req.NoError(err)
	req.Equal(domain.TypeImage, sent.Type)

	// Revoking afterwards gates new sends but never unsends anything
	conv, err = f.conversations.GetByID(f.conv.ID)
	req.NoError(err)
	req.NoError(conv.RequestMedia("owner-1", time.Now().UTC()))
	req.NoError(f.conversations.Update(conv))

	_, err = f.service.Send(context.Background(), f.conv.ID, "buyer-1", img)
	req.ErrorIs(err, errors.ErrMediaNotGranted)

	msgs, _, err := f.service.List(context.Background(), f.conv.ID, "owner-1", nil)
	req.NoError(err)
	req.Len(msgs, 1)
}

func TestMessageService_Send_EmitsSnapshotWithUnreadCount(t *testing.T) {
	req := require.New(t)
	f := newMessageFixture(t)

	f.sendText(t, "owner-1", "the flat is still available")
	f.sendText(t, "owner-1", "are you interested?")

	first := (<-f.events).(event.MessageSent)
	second := (<-f.events).(event.MessageSent)
	req.Equal(1, first.UnreadCount)
	req.Equal(2, second.UnreadCount)
	req.Equal(f.conv.ID, second.ConversationID())
}

func TestMessageService_MarkRead(t *testing.T) {
	req := require.New(t)
	f := newMessageFixture(t)

	f.sendText(t, "owner-1", "first")
	f.sendText(t, "owner-1", "second")
	last := f.sendText(t, "owner-1", "third")

	unread, err := f.service.MarkRead(context.Background(), f.conv.ID, "buyer-1", last.ID)
	req.NoError(err)
	req.Zero(unread)

	// Drain the three sends, then check the read event
	<-f.events
	<-f.events
	<-f.events
	read := (<-f.events).(event.ReadMarked)
	req.Equal("buyer-1", read.ReaderID)
	req.Equal(last.ID, read.ThroughID)
	req.Zero(read.UnreadCount)
}

func TestMessageService_MarkRead_NonParticipant(t *testing.T) {
	req := require.New(t)
	f := newMessageFixture(t)

	msg := f.sendText(t, "owner-1", "hello")
	_, err := f.service.MarkRead(context.Background(), f.conv.ID, "stranger", msg.ID)
	req.ErrorIs(err, errors.ErrForbidden)
}

func TestMessageService_Search(t *testing.T) {
	req := require.New(t)
	f := newMessageFixture(t)

	target := f.sendText(t, "buyer-1", "is the deposit refundable at the end of the lease")
	f.sendText(t, "owner-1", "viewings happen on saturdays")

	// The index sink is wired in at runtime; feed the index directly here
	req.NoError(f.index.Index(target))

	msgs, total, err := f.service.Search(context.Background(), f.conv.ID, "buyer-1", "deposit", 10, 0)
	req.NoError(err)
	req.Equal(uint64(1), total)
	req.Len(msgs, 1)
	req.Equal(target.ID, msgs[0].ID)
}
