// Package sink holds the event consumers fed by the fanout worker: the
// per-connection stream sink behind SSE handlers and the search index
// sink.
package sink

import (
	"context"

	"nestchat/domain/event"
)

// StreamSink redirects events into the channel owned by one client
// connection. The SSE handler drains the channel from there. A full
// buffer drops the event rather than stalling the fanout; the client
// resyncs from the store on reconnect.
type StreamSink struct {
	Events chan event.DomainEvent
}

func NewStreamSink(bufferSize int) *StreamSink {
	return &StreamSink{Events: make(chan event.DomainEvent, bufferSize)}
}

func (s *StreamSink) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case s.Events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		// Backpressure: the connection is not keeping up.
		return nil
	}
}
