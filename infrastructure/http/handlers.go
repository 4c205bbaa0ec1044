package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/samber/lo"

	"nestchat/auth"
	"nestchat/domain"
	"nestchat/errors"
)

const (
	maxUploadBytes    = 20 << 20
	defaultSearchSize = 20
)

type createConversationRequest struct {
	PropertyID string `json:"propertyId" validate:"required"`
}

type sendMessageRequest struct {
	Type            string `json:"type" validate:"required,oneof=text image voice"`
	Text            string `json:"text"`
	MediaURL        string `json:"mediaUrl"`
	DurationSeconds int    `json:"durationSeconds" validate:"gte=0"`
}

type markReadRequest struct {
	ThroughMessageID string `json:"throughMessageId" validate:"required,uuid4"`
}

type decisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=granted denied"`
}

type messagePage struct {
	Messages   []domain.Message `json:"messages"`
	NextCursor *string          `json:"nextCursor,omitempty"`
}

type searchResult struct {
	Messages []domain.Message `json:"messages"`
	Total    uint64           `json:"total"`
}

type unreadResponse struct {
	UnreadCount int `json:"unreadCount"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) createConversation(w http.ResponseWriter, r *http.Request) {
	var body createConversationRequest
	if !s.decode(w, r, &body) {
		return
	}

	conv, err := s.conversations.GetOrCreate(r.Context(), body.PropertyID, auth.UserID(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}
	summary, err := s.views.Summary(conv.ID, auth.UserID(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) inbox(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.views.Inbox(auth.UserID(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	convID, ok := s.conversationID(w, r)
	if !ok {
		return
	}

	var cursor *string
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		cursor = &raw
	}

	msgs, next, err := s.messages.List(r.Context(), convID, auth.UserID(r.Context()), cursor)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, messagePage{Messages: msgs, NextCursor: next})
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	convID, ok := s.conversationID(w, r)
	if !ok {
		return
	}
	var body sendMessageRequest
	if !s.decode(w, r, &body) {
		return
	}

	msg, err := s.messages.Send(r.Context(), convID, auth.UserID(r.Context()), domain.Message{
		Type:            domain.MessageType(body.Type),
		Text:            body.Text,
		MediaURL:        body.MediaURL,
		DurationSeconds: body.DurationSeconds,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	convID, ok := s.conversationID(w, r)
	if !ok {
		return
	}
	var body markReadRequest
	if !s.decode(w, r, &body) {
		return
	}
	throughID, err := uuid.Parse(body.ThroughMessageID)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: invalid message id", errors.ErrValidation))
		return
	}

	unread, err := s.messages.MarkRead(r.Context(), convID, auth.UserID(r.Context()), throughID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, unreadResponse{UnreadCount: unread})
}

func (s *Server) requestMediaPermission(w http.ResponseWriter, r *http.Request) {
	convID, ok := s.conversationID(w, r)
	if !ok {
		return
	}
	conv, err := s.conversations.RequestMediaPermission(r.Context(), convID, auth.UserID(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, conv)
}

func (s *Server) decideMediaPermission(w http.ResponseWriter, r *http.Request) {
	convID, ok := s.conversationID(w, r)
	if !ok {
		return
	}
	var body decisionRequest
	if !s.decode(w, r, &body) {
		return
	}
	conv, err := s.conversations.DecideMediaPermission(r.Context(), convID,
		auth.UserID(r.Context()), domain.MediaPermission(body.Decision))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, conv)
}

func (s *Server) searchMessages(w http.ResponseWriter, r *http.Request) {
	convID, ok := s.conversationID(w, r)
	if !ok {
		return
	}
	terms := r.URL.Query().Get("q")
	if terms == "" {
		s.writeError(w, fmt.Errorf("%w: query parameter q is required", errors.ErrValidation))
		return
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	msgs, total, err := s.messages.Search(r.Context(), convID, auth.UserID(r.Context()), terms, defaultSearchSize, offset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, searchResult{Messages: msgs, Total: total})
}

func (s *Server) heartbeat(w http.ResponseWriter, r *http.Request) {
	p, err := s.presences.Heartbeat(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) presenceStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.presences.Status(r.Context(), mux.Vars(r)["userId"]))
}

func (s *Server) uploadMedia(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, fmt.Errorf("%w: invalid multipart payload", errors.ErrValidation))
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: multipart field file is required", errors.ErrValidation))
		return
	}
	defer file.Close()

	stored, err := s.media.Save(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, stored)
}

func (s *Server) serveMedia(w http.ResponseWriter, r *http.Request) {
	file, err := s.media.Open(mux.Vars(r)["name"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer file.Close()
	http.ServeContent(w, r, file.Name(), lo.Must(file.Stat()).ModTime(), file)
}

// conversationID pulls and parses the {id} path variable.
func (s *Server) conversationID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: invalid conversation id", errors.ErrValidation))
		return uuid.Nil, false
	}
	return id, true
}

// decode unmarshals and validates a JSON body, answering the request
// itself on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		s.writeError(w, fmt.Errorf("%w: malformed JSON body", errors.ErrValidation))
		return false
	}
	if err := s.validate.Struct(dest); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", errors.ErrValidation, err))
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Encoding response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("Request failed", "error", err)
	}
	s.writeJSON(w, status, errorResponse{Code: errors.Code(err), Message: err.Error()})
}
