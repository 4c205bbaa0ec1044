// Package http is the transport surface of the messaging core: the
// JSON API, the SSE change-event stream and the debug endpoints.
package http

import (
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"nestchat/auth"
	"nestchat/contract"
	"nestchat/media"
	"nestchat/observability"
	"nestchat/presence"
	"nestchat/projection"
	"nestchat/ratelimit"
	"nestchat/services"
)

// Server holds every collaborator the handlers need. Construction wires
// it; routing lives in Router.
type Server struct {
	log           *slog.Logger
	validate      *validator.Validate
	conversations services.IConversationService
	messages      services.IMessageService
	presences     *services.PresenceService
	tracker       *presence.Tracker
	views         *projection.Views
	limiter       *ratelimit.Limiter
	registry      contract.IRegistry
	verifier      *auth.Verifier
	media         *media.Store
	collector     *observability.Collector
	streamBuffer  int
	activeStreams atomic.Int64
}

func NewServer(log *slog.Logger,
	conversations services.IConversationService,
	messages services.IMessageService,
	presences *services.PresenceService,
	tracker *presence.Tracker,
	views *projection.Views,
	limiter *ratelimit.Limiter,
	registry contract.IRegistry,
	verifier *auth.Verifier,
	mediaStore *media.Store,
	collector *observability.Collector,
	streamBuffer int) *Server {
	return &Server{
		log:           log,
		validate:      validator.New(),
		conversations: conversations,
		messages:      messages,
		presences:     presences,
		tracker:       tracker,
		views:         views,
		limiter:       limiter,
		registry:      registry,
		verifier:      verifier,
		media:         mediaStore,
		collector:     collector,
		streamBuffer:  streamBuffer,
	}
}

// Router builds the full route table. Everything under /api requires a
// valid token; mutations additionally pass the rate limiter.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.HandleFunc("/debug/stats", s.debugStats).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(auth.Middleware(s.verifier))

	api.HandleFunc("/conversations", s.rateLimited(s.createConversation)).Methods(http.MethodPost)
	api.HandleFunc("/conversations", s.inbox).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}/messages", s.listMessages).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}/messages", s.rateLimited(s.sendMessage)).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}/messages/search", s.searchMessages).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}/read", s.rateLimited(s.markRead)).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}/media-permission/request", s.rateLimited(s.requestMediaPermission)).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}/media-permission/decision", s.rateLimited(s.decideMediaPermission)).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}/events", s.streamEvents).Methods(http.MethodGet)
	api.HandleFunc("/presence/heartbeat", s.heartbeat).Methods(http.MethodPost)
	api.HandleFunc("/presence/{userId}", s.presenceStatus).Methods(http.MethodGet)
	api.HandleFunc("/media", s.rateLimited(s.uploadMedia)).Methods(http.MethodPost)
	api.HandleFunc("/media/{name}", s.serveMedia).Methods(http.MethodGet)

	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) debugStats(w http.ResponseWriter, _ *http.Request) {
	stats, err := s.collector.Collect(s.tracker.Size(), int(s.activeStreams.Load()))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}
