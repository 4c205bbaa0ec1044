package workers

import (
	"context"
	"log/slog"
	"time"

	"nestchat/contract"
	"nestchat/domain/event"
)

// EventFanout broadcasts change events to the sinks subscribed to the
// affected conversation plus the permanent process-wide sinks (search
// indexing, logging).
//
// Delivery is best-effort with no ordering or retry guarantees across
// sinks; the durable write already happened before the event was
// emitted, so a lost delivery never loses data. A slow sink is bounded
// by the per-delivery timeout instead of stalling the whole fanout.
type EventFanout struct {
	log            *slog.Logger
	events         <-chan event.DomainEvent
	registry       contract.IRegistry
	permanentSinks []contract.EventSink
	sinkTimeout    time.Duration
}

func NewEventFanout(log *slog.Logger, events <-chan event.DomainEvent,
	registry contract.IRegistry, permanentSinks []contract.EventSink,
	sinkTimeout time.Duration) *EventFanout {
	return &EventFanout{
		log:            log,
		events:         events,
		registry:       registry,
		permanentSinks: permanentSinks,
		sinkTimeout:    sinkTimeout,
	}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping event fanout")
			return nil
		case evt, ok := <-w.events:
			if !ok {
				return nil
			}
			w.fanout(ctx, evt)
		}
	}
}

func (w *EventFanout) fanout(ctx context.Context, evt event.DomainEvent) {
	sinks := append(w.registry.GetSinksFor(evt.ConversationID()), w.permanentSinks...)
	for _, sink := range sinks {
		deliveryCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
		if err := sink.Consume(deliveryCtx, evt); err != nil {
			w.log.Warn("Sink refused event",
				"conversation_id", evt.ConversationID(),
				"kind", evt.Kind(),
				"err", err)
		}
		cancel()
	}
}
