package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"nestchat/auth"
	"nestchat/domain"
	"nestchat/domain/event"
	"nestchat/media"
	"nestchat/mocks"
	"nestchat/moderation"
	"nestchat/observability"
	"nestchat/presence"
	"nestchat/projection"
	"nestchat/ratelimit"
	"nestchat/repositories"
	"nestchat/runtime"
	"nestchat/services"
)

type fixture struct {
	server   *httptest.Server
	verifier *auth.Verifier
	events   chan event.DomainEvent
	registry *runtime.Registry
}

func newFixture(t *testing.T, maxPerWindow int) *fixture {
	t.Helper()
	req := require.New(t)
	log := slog.Default()

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

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

	ctrl := gomock.NewController(t)
	owners := mocks.NewMockOwnerResolver(ctrl)
	owners.EXPECT().OwnerOf(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ any, propertyID string) (string, error) {
			return "owner-of-" + propertyID, nil
		}).AnyTimes()

	locks := runtime.NewKeyedMutex()
	events := make(chan event.DomainEvent, 64)
	tracker := presence.NewTracker(log, time.Minute)
	limiter := ratelimit.NewLimiter(log, maxPerWindow, time.Minute)
	registry := runtime.NewRegistry()

	conversationService := services.NewConversationService(log, conversations, owners, locks, events)
	messageService := services.NewMessageService(log, conversations, messages, index, moderator, locks, events)
	presenceService := services.NewPresenceService(log, tracker, conversations, events)
	views := projection.NewViews(conversations, messages, tracker)

	mediaStore, err := media.NewStore(log, t.TempDir())
	req.NoError(err)
	collector, err := observability.NewCollector()
	req.NoError(err)

	verifier := auth.NewVerifier("test-secret")
	server := NewServer(log, conversationService, messageService, presenceService,
		tracker, views, limiter, registry, verifier, mediaStore, collector, 16)

	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)

	return &fixture{server: ts, verifier: verifier, events: events, registry: registry}
}

func (f *fixture) do(t *testing.T, userID, method, path string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	r, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)

	token, err := f.verifier.GenerateToken(userID, time.Hour)
	require.NoError(t, err)
	r.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(r)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (f *fixture) openConversation(t *testing.T, buyerID, propertyID string) projection.ConversationSummary {
	t.Helper()
	resp := f.do(t, buyerID, http.MethodPost, "/api/conversations",
		map[string]string{"propertyId": propertyID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decodeBody[projection.ConversationSummary](t, resp)
}

func TestServer_RequiresToken(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, 100)

	resp, err := http.Get(f.server.URL + "/api/conversations")
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_ConversationAndMessageFlow(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, 100)

	summary := f.openConversation(t, "buyer-1", "prop-1")
	conv := summary.Conversation
	req.Equal("owner-of-prop-1", conv.OwnerID)
	req.Zero(summary.UnreadCount)

	// Same pair lands on the same thread
	again := f.openConversation(t, "buyer-1", "prop-1")
	req.Equal(conv.ID, again.Conversation.ID)

	// Buyer texts the owner
	resp := f.do(t, "buyer-1", http.MethodPost, "/api/conversations/"+conv.ID.String()+"/messages",
		map[string]any{"type": "text", "text": "is the flat still available?"})
	req.Equal(http.StatusCreated, resp.StatusCode)
	msg := decodeBody[domain.Message](t, resp)
	req.Equal("buyer-1", msg.SenderID)
	req.False(msg.IsRead)

	// Owner's inbox shows one unread
	resp = f.do(t, conv.OwnerID, http.MethodGet, "/api/conversations", nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	inbox := decodeBody[[]projection.ConversationSummary](t, resp)
	req.Len(inbox, 1)
	req.Equal(1, inbox[0].UnreadCount)
	req.NotNil(inbox[0].LastMessage)

	// Owner reads through the message
	resp = f.do(t, conv.OwnerID, http.MethodPost, "/api/conversations/"+conv.ID.String()+"/read",
		map[string]string{"throughMessageId": msg.ID.String()})
	req.Equal(http.StatusOK, resp.StatusCode)
	read := decodeBody[unreadResponse](t, resp)
	req.Zero(read.UnreadCount)

	// History lists the message chronologically
	resp = f.do(t, "buyer-1", http.MethodGet, "/api/conversations/"+conv.ID.String()+"/messages", nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	page := decodeBody[messagePage](t, resp)
	req.Len(page.Messages, 1)
	req.True(page.Messages[0].IsRead)
}

func TestServer_StrangerIsForbidden(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, 100)

	conv := f.openConversation(t, "buyer-1", "prop-1").Conversation

	resp := f.do(t, "stranger", http.MethodPost, "/api/conversations/"+conv.ID.String()+"/messages",
		map[string]any{"type": "text", "text": "let me in"})
	defer resp.Body.Close()
	req.Equal(http.StatusForbidden, resp.StatusCode)
}

func TestServer_MediaPermissionFlow(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, 100)

	conv := f.openConversation(t, "buyer-1", "prop-1").Conversation
	convPath := "/api/conversations/" + conv.ID.String()

	// Image refused while the gate is pending
	resp := f.do(t, "buyer-1", http.MethodPost, convPath+"/messages",
		map[string]any{"type": "image", "mediaUrl": "/api/media/a.png"})
	req.Equal(http.StatusForbidden, resp.StatusCode)
	body := decodeBody[errorResponse](t, resp)
	req.Equal("permission_denied", body.Code)

	// Buyer requests, owner grants
	resp = f.do(t, "buyer-1", http.MethodPost, convPath+"/media-permission/request", nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = f.do(t, conv.OwnerID, http.MethodPost, convPath+"/media-permission/decision",
		map[string]string{"decision": "granted"})
	req.Equal(http.StatusOK, resp.StatusCode)
	granted := decodeBody[domain.Conversation](t, resp)
	req.True(granted.MediaAllowed())

	// Image now accepted
	resp = f.do(t, "buyer-1", http.MethodPost, convPath+"/messages",
		map[string]any{"type": "image", "mediaUrl": "/api/media/a.png"})
	defer resp.Body.Close()
	req.Equal(http.StatusCreated, resp.StatusCode)
}

func TestServer_RateLimitAnswers429(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, 3)

	conv := f.openConversation(t, "buyer-1", "prop-1").Conversation
	path := "/api/conversations/" + conv.ID.String() + "/messages"

	// Opening the conversation consumed one slot; two sends remain
	for i := 0; i < 2; i++ {
		resp := f.do(t, "buyer-1", http.MethodPost, path,
			map[string]any{"type": "text", "text": fmt.Sprintf("message %d", i)})
		req.Equal(http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}

	resp := f.do(t, "buyer-1", http.MethodPost, path,
		map[string]any{"type": "text", "text": "one too many"})
	req.Equal(http.StatusTooManyRequests, resp.StatusCode)
	req.Equal("3", resp.Header.Get("X-RateLimit-Limit"))
	req.Equal("0", resp.Header.Get("X-RateLimit-Remaining"))
	req.NotEmpty(resp.Header.Get("X-RateLimit-Reset"))

	throttled := decodeBody[rateLimitBody](t, resp)
	req.Equal(3, throttled.Limit)
	req.Zero(throttled.Remaining)
	req.False(throttled.ResetAt.IsZero())

	// The other participant is unaffected
	other := f.do(t, conv.OwnerID, http.MethodPost, path,
		map[string]any{"type": "text", "text": "owners have their own bucket"})
	defer other.Body.Close()
	req.Equal(http.StatusCreated, other.StatusCode)
}

func TestServer_PresenceRoundTrip(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, 100)

	resp := f.do(t, "buyer-1", http.MethodPost, "/api/presence/heartbeat", nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	beat := decodeBody[domain.Presence](t, resp)
	req.True(beat.Online)

	resp = f.do(t, "owner-1", http.MethodGet, "/api/presence/buyer-1", nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	seen := decodeBody[domain.Presence](t, resp)
	req.True(seen.Online)

	resp = f.do(t, "owner-1", http.MethodGet, "/api/presence/ghost", nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	ghost := decodeBody[domain.Presence](t, resp)
	req.False(ghost.Online)
}

func TestServer_MediaUpload(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, 100)

	png := []byte{
		0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A,
		0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52,
	}

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", "photo.png")
	req.NoError(err)
	_, err = part.Write(png)
	req.NoError(err)
	req.NoError(form.Close())

	r, err := http.NewRequest(http.MethodPost, f.server.URL+"/api/media", &buf)
	req.NoError(err)
	token, err := f.verifier.GenerateToken("buyer-1", time.Hour)
	req.NoError(err)
	r.Header.Set("Authorization", "Bearer "+token)
	r.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := http.DefaultClient.Do(r)
	req.NoError(err)
	req.Equal(http.StatusCreated, resp.StatusCode)
	stored := decodeBody[media.Stored](t, resp)
	req.Equal("image/png", stored.MimeType)

	// Round-trip through the download route
	download := f.do(t, "buyer-1", http.MethodGet, "/api/media/"+stored.ID.String()+".png", nil)
	defer download.Body.Close()
	req.Equal(http.StatusOK, download.StatusCode)
	got, err := io.ReadAll(download.Body)
	req.NoError(err)
	req.Equal(png, got)
}

func TestServer_ValidationErrors(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, 100)

	conv := f.openConversation(t, "buyer-1", "prop-1").Conversation

	// Unknown message type
	resp := f.do(t, "buyer-1", http.MethodPost, "/api/conversations/"+conv.ID.String()+"/messages",
		map[string]any{"type": "carrier-pigeon", "text": "coo"})
	req.Equal(http.StatusBadRequest, resp.StatusCode)
	body := decodeBody[errorResponse](t, resp)
	req.Equal("validation", body.Code)

	// Unknown conversation
	resp = f.do(t, "buyer-1", http.MethodGet,
		"/api/conversations/00000000-0000-0000-0000-000000000000/messages", nil)
	defer resp.Body.Close()
	req.Equal(http.StatusNotFound, resp.StatusCode)
}

func TestServer_DebugStats(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, 100)

	resp, err := http.Get(f.server.URL + "/debug/stats")
	req.NoError(err)
	req.Equal(http.StatusOK, resp.StatusCode)
	stats := decodeBody[observability.SelfStats](t, resp)
	req.NotZero(stats.Pid)
}
