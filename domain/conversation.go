// Package domain contains core concepts of the messaging system.
// This file defines Conversation entities and the media-permission
// state machine. No runtime, network, or UI logic should be added here.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"nestchat/errors"
)

// MediaPermission is the gate controlling whether image and voice
// messages may be exchanged in a conversation.
type MediaPermission string

const (
	MediaPending MediaPermission = "pending"
	MediaGranted MediaPermission = "granted"
	MediaDenied  MediaPermission = "denied"
)

// Conversation is a persistent thread between exactly one buyer and one
// owner about exactly one property. The (PropertyID, BuyerID) pair is
// unique across the store; OwnerID is resolved from the property at
// creation and never changes afterwards.
type Conversation struct {
	ID              uuid.UUID       `json:"id"`
	PropertyID      string          `json:"propertyId"`
	OwnerID         string          `json:"ownerId"`
	BuyerID         string          `json:"buyerId"`
	MediaPermission MediaPermission `json:"mediaPermissionStatus"`
	// MediaRequestedBy is the participant awaiting a decision.
	// Empty when no request is open.
	MediaRequestedBy string    `json:"mediaRequestedBy,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func NewConversation(propertyID, ownerID, buyerID string, at time.Time) Conversation {
	return Conversation{
		ID:              uuid.New(),
		PropertyID:      propertyID,
		OwnerID:         ownerID,
		BuyerID:         buyerID,
		MediaPermission: MediaPending,
		CreatedAt:       at,
		UpdatedAt:       at,
	}
}

func (c Conversation) IsParticipant(userID string) bool {
	return userID == c.OwnerID || userID == c.BuyerID
}

// Counterpart returns the other participant of the thread.
func (c Conversation) Counterpart(userID string) string {
	if userID == c.OwnerID {
		return c.BuyerID
	}
	return c.OwnerID
}

// RequestMedia opens (or re-opens) a media-permission request.
// From granted or denied the gate re-enters pending; an already pending
// request is left untouched so the original requester keeps ownership
// of the open request.
func (c *Conversation) RequestMedia(requesterID string, at time.Time) error {
	if !c.IsParticipant(requesterID) {
		return fmt.Errorf("%w: %s is not part of conversation %s", errors.ErrForbidden, requesterID, c.ID)
	}
	if c.MediaPermission == MediaPending && c.MediaRequestedBy != "" {
		// Already awaiting a decision.
		return nil
	}
	c.MediaPermission = MediaPending
	c.MediaRequestedBy = requesterID
	c.UpdatedAt = at
	return nil
}

// DecideMedia settles an open request. Only the counterparty of the
// requester may grant or deny; the requester deciding their own request
// is an identity violation, not a validation problem.
func (c *Conversation) DecideMedia(actorID string, decision MediaPermission, at time.Time) error {
	if !c.IsParticipant(actorID) {
		return fmt.Errorf("%w: %s is not part of conversation %s", errors.ErrForbidden, actorID, c.ID)
	}
	if decision != MediaGranted && decision != MediaDenied {
		return fmt.Errorf("%w: decision must be granted or denied, got %q", errors.ErrValidation, decision)
	}
	if c.MediaPermission != MediaPending || c.MediaRequestedBy == "" {
		return fmt.Errorf("%w: no pending media request on conversation %s", errors.ErrValidation, c.ID)
	}
	if actorID == c.MediaRequestedBy {
		return fmt.Errorf("%w: requester cannot decide their own media request", errors.ErrForbidden)
	}
	c.MediaPermission = decision
	c.MediaRequestedBy = ""
	c.UpdatedAt = at
	return nil
}

// MediaAllowed reports whether media-bearing messages are currently
// acceptable in this conversation.
func (c Conversation) MediaAllowed() bool {
	return c.MediaPermission == MediaGranted
}
