package e2e

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"nestchat/domain"
	"nestchat/projection"
)

type testMessagingSuite struct {
	BaseHTTPSuite
}

func TestMessagingSuite(t *testing.T) {
	suite.Run(t, &testMessagingSuite{})
}

func (s *testMessagingSuite) TestFullMessagingFlow() {
	// Fresh ids per run so reruns against a long-lived server stay clean
	buyer := fmt.Sprintf("e2e-buyer-%d", time.Now().UnixNano())
	property := fmt.Sprintf("e2e-prop-%d", time.Now().UnixNano())

	var conv domain.Conversation

	s.Run("Step 1: Buyer opens a conversation about a property", func() {
		s.Step("Opening conversation")
		var summary projection.ConversationSummary
		resp := s.Do(s.T(), buyer, http.MethodPost, "/api/conversations",
			map[string]string{"propertyId": property}, &summary)
		s.Require().Equal(http.StatusOK, resp.StatusCode)
		s.Require().Equal(buyer, summary.Conversation.BuyerID)
		s.Require().NotEmpty(summary.Conversation.OwnerID)
		conv = summary.Conversation
	})

	convPath := func() string { return "/api/conversations/" + conv.ID.String() }

	var first domain.Message
	s.Run("Step 2: Buyer sends a text message", func() {
		s.Step("Sending first message")
		resp := s.Do(s.T(), buyer, http.MethodPost, convPath()+"/messages",
			map[string]any{"type": "text", "text": "hello, is the flat still available?"}, &first)
		s.Require().Equal(http.StatusCreated, resp.StatusCode)
		s.Require().False(first.IsRead)
	})

	s.Run("Step 3: Owner sees one unread conversation", func() {
		s.Step("Reading owner inbox")
		var inbox []projection.ConversationSummary
		resp := s.Do(s.T(), conv.OwnerID, http.MethodGet, "/api/conversations", nil, &inbox)
		s.Require().Equal(http.StatusOK, resp.StatusCode)

		found := false
		for _, row := range inbox {
			if row.Conversation.ID == conv.ID {
				found = true
				s.Require().Equal(1, row.UnreadCount)
			}
		}
		s.Require().True(found, "conversation missing from owner inbox")
	})

	s.Run("Step 4: Owner reads through the first message", func() {
		s.Step("Marking read")
		var read struct {
			UnreadCount int `json:"unreadCount"`
		}
		resp := s.Do(s.T(), conv.OwnerID, http.MethodPost, convPath()+"/read",
			map[string]string{"throughMessageId": first.ID.String()}, &read)
		s.Require().Equal(http.StatusOK, resp.StatusCode)
		s.Require().Zero(read.UnreadCount)
	})

	s.Run("Step 5: Media gate blocks images until granted", func() {
		s.Step("Exercising media permission state machine")
		image := map[string]any{"type": "image", "mediaUrl": "/api/media/sample.png"}

		resp := s.Do(s.T(), buyer, http.MethodPost, convPath()+"/messages", image, nil)
		s.Require().Equal(http.StatusForbidden, resp.StatusCode)

		resp = s.Do(s.T(), buyer, http.MethodPost, convPath()+"/media-permission/request", nil, nil)
		s.Require().Equal(http.StatusOK, resp.StatusCode)

		var granted domain.Conversation
		resp = s.Do(s.T(), conv.OwnerID, http.MethodPost, convPath()+"/media-permission/decision",
			map[string]string{"decision": "granted"}, &granted)
		s.Require().Equal(http.StatusOK, resp.StatusCode)
		s.Require().True(granted.MediaAllowed())

		resp = s.Do(s.T(), buyer, http.MethodPost, convPath()+"/messages", image, nil)
		s.Require().Equal(http.StatusCreated, resp.StatusCode)
	})

	s.Run("Step 6: Presence heartbeat is visible to the counterpart", func() {
		s.Step("Heartbeat")
		var beat domain.Presence
		resp := s.Do(s.T(), buyer, http.MethodPost, "/api/presence/heartbeat", nil, &beat)
		s.Require().Equal(http.StatusOK, resp.StatusCode)
		s.Require().True(beat.Online)

		var seen domain.Presence
		resp = s.Do(s.T(), conv.OwnerID, http.MethodGet, "/api/presence/"+buyer, nil, &seen)
		s.Require().Equal(http.StatusOK, resp.StatusCode)
		s.Require().True(seen.Online)
	})
}
