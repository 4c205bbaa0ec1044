// Package domain contains core concepts of the messaging system.
// This file defines the Presence entity. Presence is best-effort and
// shared by reference across every conversation a user participates in.
package domain

import "time"

type Presence struct {
	UserID     string    `json:"userId"`
	Online     bool      `json:"onlineStatus"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}
