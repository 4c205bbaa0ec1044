package sink

import (
	"context"
	"log/slog"

	"nestchat/domain/event"
	"nestchat/repositories"
)

// IndexSink feeds accepted messages into the full-text index. Indexing
// happens off the send path on purpose: a search lagging by one fanout
// hop is fine, a send blocked on the indexer is not.
type IndexSink struct {
	index *repositories.MessageIndex
	log   *slog.Logger
}

func NewIndexSink(index *repositories.MessageIndex, log *slog.Logger) *IndexSink {
	return &IndexSink{index: index, log: log}
}

func (s *IndexSink) Consume(_ context.Context, e event.DomainEvent) error {
	evt, ok := e.(event.MessageSent)
	if !ok {
		return nil
	}
	return s.index.Index(evt.Message)
}
