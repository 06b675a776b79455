package types

import (
	"context"
	"time"
)

// Logger defines the structured logging interface used throughout the service.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}

// ContentStore exposes the read queries the dispatcher needs against the
// board data. The dispatcher never writes; every method reads a consistent
// snapshot at dispatch time.
type ContentStore interface {
	// GetPostWithBoard loads a post and hydrates its parent board.
	// Returns an AppError with ErrCodeNotFoundPost if the post does not exist.
	GetPostWithBoard(ctx context.Context, postID string) (*Post, error)

	// ListCommenterIDs returns the distinct user IDs that have commented on
	// the post, in first-comment order. Anonymous comments are excluded.
	ListCommenterIDs(ctx context.Context, postID string) ([]string, error)

	// ListBoardAdminIDs returns the user IDs holding an admin or super_admin
	// role on the board.
	ListBoardAdminIDs(ctx context.Context, boardID string) ([]string, error)

	// GetPreferences returns the notification preference records for the
	// given users. Users without a record are absent from the result map.
	GetPreferences(ctx context.Context, userIDs []string) (map[string]*NotificationPreference, error)
}

// IdentityResolver maps user IDs to email addresses.
type IdentityResolver interface {
	// ResolveEmails returns the email address for each user that has one.
	// Users with no resolvable address are absent from the result map;
	// the dispatcher silently skips them.
	ResolveEmails(ctx context.Context, userIDs []string) (map[string]string, error)
}

// DispatchPublisher enqueues an event for asynchronous dispatch.
type DispatchPublisher interface {
	Publish(ctx context.Context, event DispatchEvent) error
}

// DispatchMetrics abstracts telemetry for dispatch outcomes.
type DispatchMetrics interface {
	RecordDispatch(ctx context.Context, event EventType, sent, failed int)
	RecordLatency(ctx context.Context, event EventType, duration time.Duration)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }
