package types

import (
	"time"
)

// EventType identifies the kind of board activity that triggers a dispatch.
type EventType string

const (
	EventNewComment   EventType = "new_comment"
	EventStatusChange EventType = "status_change"
	EventNewPost      EventType = "new_post"
	EventNewVote      EventType = "new_vote"
)

// KnownEventTypes lists every event type the dispatcher understands.
// Anything else is treated as a no-op (zero recipients, zero sends).
var KnownEventTypes = []EventType{
	EventNewComment,
	EventStatusChange,
	EventNewPost,
	EventNewVote,
}

// IsKnown reports whether the event type belongs to the closed set.
func (e EventType) IsKnown() bool {
	for _, k := range KnownEventTypes {
		if e == k {
			return true
		}
	}
	return false
}

// DispatchEvent is the input descriptor for one dispatcher invocation.
// TriggeredBy is the user who caused the event; it is always excluded from
// the recipient set. NewStatus and CommentContent carry event-specific
// payload for status_change and new_comment respectively.
type DispatchEvent struct {
	Type           EventType `json:"type"`
	PostID         string    `json:"postId" validate:"required"`
	TriggeredBy    string    `json:"triggeredBy,omitempty"`
	NewStatus      string    `json:"newStatus,omitempty"`
	CommentContent string    `json:"commentContent,omitempty"`
}

// Post is one feedback submission within a board. AuthorID is empty for
// anonymous posts.
type Post struct {
	ID          string    `json:"id" db:"id"`
	BoardID     string    `json:"board_id" db:"board_id"`
	AuthorID    string    `json:"user_id,omitempty" db:"user_id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	Status      string    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`

	// Hydrated from the boards table on load.
	Board Board `json:"board" db:"-"`
}

// Board is a tenant's feedback collection space.
type Board struct {
	ID      string `json:"id" db:"id"`
	Title   string `json:"title" db:"title"`
	Slug    string `json:"slug" db:"slug"`
	OwnerID string `json:"owner_id" db:"owner_id"`
}

// BoardRole grants a user elevated access on a board.
type BoardRole string

const (
	RoleAdmin      BoardRole = "admin"
	RoleSuperAdmin BoardRole = "super_admin"
)

// NotificationPreference holds a user's per-category email opt-outs.
// Flags are pointers so that "never set" is distinguishable from an explicit
// choice: a nil flag means notify (opt-out model).
//
// The preferences schema predates the new_post event and has no dedicated
// column for it; new_post dispatches are gated by the legacy EmailNewVote
// flag, matching the behavior this service replaces.
type NotificationPreference struct {
	UserID            string `json:"user_id" db:"user_id"`
	EmailNewComment   *bool  `json:"email_new_comment,omitempty" db:"email_new_comment"`
	EmailStatusChange *bool  `json:"email_status_change,omitempty" db:"email_status_change"`
	EmailNewVote      *bool  `json:"email_new_vote,omitempty" db:"email_new_vote"`
}

// Allows reports whether the preference permits email for the given event
// type. Absence of an explicit false is consent.
func (p *NotificationPreference) Allows(event EventType) bool {
	if p == nil {
		return true
	}
	var flag *bool
	switch event {
	case EventNewComment:
		flag = p.EmailNewComment
	case EventStatusChange:
		flag = p.EmailStatusChange
	case EventNewPost, EventNewVote:
		flag = p.EmailNewVote
	default:
		return true
	}
	return flag == nil || *flag
}

// SenderIdentity is the From identity for outbound mail.
type SenderIdentity struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// SendInput carries one fully rendered message to a mail transport.
type SendInput struct {
	To          string
	From        SenderIdentity
	Subject     string
	BodyHTML    string
	BodyText    string
	ReferenceID string // correlates the provider message with the originating post
}

// DispatchResult is the outcome of one dispatcher invocation.
type DispatchResult struct {
	Sent       int `json:"sent"`
	Recipients int `json:"-"` // eligible recipients before delivery attempts
}

// DispatchMessage is the SQS transport envelope for the asynchronous
// dispatch path. TraceID correlates worker logs with the publishing caller.
type DispatchMessage struct {
	TraceID string        `json:"trace_id"`
	Event   DispatchEvent `json:"event"`
	SentAt  time.Time     `json:"sent_at"`
}

// APIKey is a caller credential for the dispatch API. The secret is stored
// bcrypt-hashed; Prefix enables lookup without scanning every row.
type APIKey struct {
	ID         string     `json:"id" db:"id"`
	Prefix     string     `json:"prefix" db:"prefix"`
	SecretHash string     `json:"-" db:"secret_hash"`
	Label      string     `json:"label" db:"label"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}
