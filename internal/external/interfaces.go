package external

import (
	"context"

	"telloo/internal/types"
)

// EmailProvider abstracts interactions with the email delivery service
// (Resend in production, AWS SES as an alternative). Implementations
// transmit pre-rendered email content (Subject, BodyHTML, BodyText).
type EmailProvider interface {
	// Send transmits an email with pre-rendered content.
	// Returns the provider's message ID for tracking and correlation.
	Send(ctx context.Context, input types.SendInput) (providerMsgID string, err error)
}
