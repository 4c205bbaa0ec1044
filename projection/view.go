// Package projection assembles the denormalized read-side views served
// to clients. Conversations store participant ids only; the join with
// last message, unread count and counterpart presence happens here,
// never through object ownership.
package projection

import (
	"sort"

	"github.com/google/uuid"

	"nestchat/domain"
	"nestchat/presence"
	"nestchat/repositories"
)

// ConversationSummary is the inbox row for one viewer.
type ConversationSummary struct {
	Conversation domain.Conversation `json:"conversation"`
	LastMessage  *domain.Message     `json:"lastMessage,omitempty"`
	UnreadCount  int                 `json:"unreadCount"`
	Counterpart  domain.Presence     `json:"counterpart"`
}

type Views struct {
	conversations repositories.IConversationRepository
	messages      repositories.IMessageRepository
	tracker       *presence.Tracker
}

func NewViews(conversations repositories.IConversationRepository,
	messages repositories.IMessageRepository, tracker *presence.Tracker) *Views {
	return &Views{conversations: conversations, messages: messages, tracker: tracker}
}

// Summary materializes one conversation for a viewer.
func (v *Views) Summary(conversationID uuid.UUID, viewerID string) (ConversationSummary, error) {
	conv, err := v.conversations.GetByID(conversationID)
	if err != nil {
		return ConversationSummary{}, err
	}
	return v.summarize(conv, viewerID)
}

// Inbox lists every conversation of the viewer, most recently active
// first.
func (v *Views) Inbox(viewerID string) ([]ConversationSummary, error) {
	conversations, err := v.conversations.ListForUser(viewerID)
	if err != nil {
		return nil, err
	}

	summaries := make([]ConversationSummary, 0, len(conversations))
	for _, conv := range conversations {
		summary, err := v.summarize(conv, viewerID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Conversation.UpdatedAt.After(summaries[j].Conversation.UpdatedAt)
	})
	return summaries, nil
}

func (v *Views) summarize(conv domain.Conversation, viewerID string) (ConversationSummary, error) {
	last, err := v.messages.LastMessage(conv.ID)
	if err != nil {
		return ConversationSummary{}, err
	}
	unread, err := v.messages.UnreadCount(conv.ID, viewerID)
	if err != nil {
		return ConversationSummary{}, err
	}
	return ConversationSummary{
		Conversation: conv,
		LastMessage:  last,
		UnreadCount:  unread,
		Counterpart:  v.tracker.Get(conv.Counterpart(viewerID)),
	}, nil
}
