package workers

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"nestchat/contract"
	"nestchat/domain"
	"nestchat/domain/event"
	"nestchat/runtime"
)

type recordingSink struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (r *recordingSink) Consume(_ context.Context, e event.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestEventFanout_DeliversToSubscribersAndPermanentSinks(t *testing.T) {
	req := require.New(t)
	registry := runtime.NewRegistry()
	events := make(chan event.DomainEvent, 8)

	convID := uuid.New()
	subscriber := &recordingSink{}
	permanent := &recordingSink{}
	registry.Subscribe("sub-1", convID, subscriber)

	fanout := NewEventFanout(slog.Default(), events, registry,
		[]contract.EventSink{permanent}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = fanout.Run(ctx)
		close(done)
	}()

	conv := domain.NewConversation("prop-1", "owner", "buyer", time.Now().UTC())
	conv.ID = convID
	events <- event.PermissionChanged{Conversation: conv, ActorID: "buyer"}
	events <- event.PresenceChanged{Conversation: uuid.New(), Presence: domain.Presence{UserID: "owner"}}

	req.Eventually(func() bool { return permanent.count() == 2 }, time.Second, 5*time.Millisecond)
	// The subscriber only sees its own conversation.
	req.Equal(1, subscriber.count())

	cancel()
	<-done
}
