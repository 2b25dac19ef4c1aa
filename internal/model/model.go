// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// State is the lifecycle state of a capsule.
type State string

const (
	// StateLocked is the initial state; content is hidden until OpenAt.
	StateLocked State = "locked"
	// StateOpen is terminal.
	StateOpen State = "open"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool { return s == StateLocked || s == StateOpen }

// MediaType classifies an attachment.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// MediaAttachment references an asset held by the media store.
type MediaAttachment struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Type      MediaType `json:"type"`
	SizeBytes int64     `json:"size_bytes"`
}

// Capsule is a time-locked bundle of text and media.
type Capsule struct {
	ID         uuid.UUID
	OwnerID    uuid.UUID
	Title      string
	Message    string
	OpenAt     time.Time
	IsPrivate  bool
	SendToSelf bool
	Recipients []string // normalized, unique, in order of first appearance
	Media      []MediaAttachment
	State      State
	OpenedAt   *time.Time // set iff State == StateOpen
	CreatedAt  time.Time
}

// IsOpen reports whether the capsule reached its terminal state.
func (c *Capsule) IsOpen() bool { return c.State == StateOpen }

// Draft is a capsule definition submitted by its owner.
type Draft struct {
	OwnerID    uuid.UUID
	Title      string
	Message    string
	OpenAt     time.Time
	IsPrivate  bool
	SendToSelf bool
	Recipients []string // raw input, validated on create
	Media      []MediaAttachment
}

// Evaluation is a read-only view of open eligibility.
type Evaluation struct {
	CapsuleID uuid.UUID
	State     State
	OpenAt    time.Time
	OpenedAt  *time.Time
	Remaining time.Duration // zero when open or already eligible
}

// Ready reports whether a locked capsule may be opened now.
func (e Evaluation) Ready() bool { return e.State == StateLocked && e.Remaining == 0 }

// OpenedEvent is published once per successful Locked -> Open transition.
type OpenedEvent struct {
	Capsule  Capsule
	OpenedAt time.Time
}

// Role tells why an address receives a notification.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleRecipient Role = "recipient"
)

// Delivery is the outcome of one notification attempt.
type Delivery struct {
	CapsuleID   uuid.UUID
	Address     string
	Role        Role
	OK          bool
	Error       string
	AttemptedAt time.Time
}
