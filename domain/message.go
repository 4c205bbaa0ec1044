// Package domain contains core concepts of the messaging system.
// This file defines Message events and their validation rules.
// Messages are immutable once accepted, except for the read flag.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"nestchat/errors"
)

type MessageType string

const (
	TypeText   MessageType = "text"
	TypeImage  MessageType = "image"
	TypeVoice  MessageType = "voice"
	TypeSystem MessageType = "system"
)

// Message represents a single chat event inside a conversation.
// CreatedAt is assigned by the pipeline when the message is accepted,
// never taken from the client. Seq is the insertion sequence used to
// break same-nanosecond ordering ties.
type Message struct {
	ID              uuid.UUID         `json:"id"`
	ConversationID  uuid.UUID         `json:"conversationId"`
	SenderID        string            `json:"senderId"`
	Type            MessageType       `json:"type"`
	Text            string            `json:"text,omitempty"`
	MediaURL        string            `json:"mediaUrl,omitempty"`
	DurationSeconds int               `json:"durationSeconds,omitempty"`
	IsRead          bool              `json:"isRead"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	Seq             uint64            `json:"seq,omitempty"`
}

// IsMedia reports whether the message carries a media attachment and is
// therefore subject to the conversation's media-permission gate.
// System messages bypass the gate.
func (m Message) IsMedia() bool {
	return m.Type == TypeImage || m.Type == TypeVoice
}

// Validate checks the payload shape against the declared type.
func (m Message) Validate() error {
	switch m.Type {
	case TypeText, TypeSystem:
		if m.Text == "" {
			return fmt.Errorf("%w: %s message requires non-empty text", errors.ErrValidation, m.Type)
		}
		if m.MediaURL != "" {
			return fmt.Errorf("%w: %s message must not carry a media url", errors.ErrValidation, m.Type)
		}
	case TypeImage:
		if m.MediaURL == "" {
			return fmt.Errorf("%w: image message requires a media url", errors.ErrValidation)
		}
	case TypeVoice:
		if m.MediaURL == "" {
			return fmt.Errorf("%w: voice message requires a media url", errors.ErrValidation)
		}
		if m.DurationSeconds <= 0 {
			return fmt.Errorf("%w: voice message requires a positive duration", errors.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown message type %q", errors.ErrValidation, m.Type)
	}
	if m.Type != TypeVoice && m.DurationSeconds != 0 {
		return fmt.Errorf("%w: duration is only valid on voice messages", errors.ErrValidation)
	}
	return nil
}
