package runtime

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"nestchat/domain/event"
)

type countingSink struct{ consumed int }

func (c *countingSink) Consume(_ context.Context, _ event.DomainEvent) error {
	c.consumed++
	return nil
}

func TestRegistry_SubscribeAndResolve(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	convID := uuid.New()

	sinkA := &countingSink{}
	sinkB := &countingSink{}
	registry.Subscribe("sub-a", convID, sinkA)
	registry.Subscribe("sub-b", convID, sinkB)

	req.Len(registry.GetSinksFor(convID), 2)
	req.Nil(registry.GetSinksFor(uuid.New()))
}

func TestRegistry_UnsubscribeCleansEmptySets(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	convID := uuid.New()

	registry.Subscribe("sub-a", convID, &countingSink{})
	registry.Unsubscribe("sub-a", convID)

	req.Nil(registry.GetSinksFor(convID))
	req.Empty(registry.subscribers)
	req.Empty(registry.sessions)
}

func TestRegistry_SameUserTwoConnections(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	convID := uuid.New()

	registry.Subscribe("device-1", convID, &countingSink{})
	registry.Subscribe("device-2", convID, &countingSink{})
	registry.Unsubscribe("device-1", convID)

	req.Len(registry.GetSinksFor(convID), 1)
}
