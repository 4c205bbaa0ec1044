package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"nestchat/auth"
	"nestchat/domain/event"
	"nestchat/sink"
)

// eventEnvelope is the wire shape of one SSE data frame.
type eventEnvelope struct {
	ConversationID uuid.UUID  `json:"conversationId"`
	Kind           event.Kind `json:"kind"`
	Payload        any        `json:"payload"`
}

// streamEvents subscribes the connection to one conversation's change
// events and relays them as server-sent events until the client hangs
// up. The per-connection sink is registered in the registry and fed by
// the fanout worker.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	convID, ok := s.conversationID(w, r)
	if !ok {
		return
	}
	userID := auth.UserID(r.Context())

	// Participant check before exposing the stream.
	if _, err := s.conversations.Get(r.Context(), convID, userID); err != nil {
		s.writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, fmt.Errorf("streaming unsupported by connection"))
		return
	}

	streamSink := sink.NewStreamSink(s.streamBuffer)
	subscriberID := userID + ":" + uuid.NewString()
	s.registry.Subscribe(subscriberID, convID, streamSink)
	defer s.registry.Unsubscribe(subscriberID, convID)

	s.activeStreams.Add(1)
	defer s.activeStreams.Add(-1)
	s.log.Info("Event stream opened", "conversation_id", convID, "user_id", userID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.log.Info("Event stream closed", "conversation_id", convID, "user_id", userID)
			return
		case evt := <-streamSink.Events:
			data, err := json.Marshal(eventEnvelope{
				ConversationID: evt.ConversationID(),
				Kind:           evt.Kind(),
				Payload:        evt,
			})
			if err != nil {
				s.log.Error("Encoding stream event", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Kind(), data)
			flusher.Flush()
		}
	}
}
