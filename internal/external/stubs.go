package external

import (
	"context"
	"fmt"
	"log/slog"

	"telloo/internal/types"
)

// StubEmailProvider implements EmailProvider by logging calls and returning
// a fake message ID. Used when APP_ENV=local, when email delivery is
// disabled via the kill switch, or when EMAIL_PROVIDER=noop. No mail leaves
// the process.
type StubEmailProvider struct {
	logger *slog.Logger
}

// NewStubEmailProvider creates a new StubEmailProvider.
func NewStubEmailProvider(logger *slog.Logger) *StubEmailProvider {
	return &StubEmailProvider{logger: logger}
}

func (s *StubEmailProvider) Send(ctx context.Context, input types.SendInput) (string, error) {
	s.logger.InfoContext(ctx, "stub: Send email called",
		"to", input.To,
		"subject", input.Subject,
		"from", input.From.Address,
	)
	return fmt.Sprintf("msg_stub_%s", input.ReferenceID), nil
}

var _ EmailProvider = (*StubEmailProvider)(nil)
