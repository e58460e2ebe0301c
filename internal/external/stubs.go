package external

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"safetyreports/internal/types"
)

// StubEmailProvider logs instead of sending. It is selected with
// EMAIL_PROVIDER=stub for local runs and keeps the messages it was given.
type StubEmailProvider struct {
	logger *slog.Logger

	mu   sync.Mutex
	sent []types.EmailMessage
}

// NewStubEmailProvider creates a StubEmailProvider.
func NewStubEmailProvider(logger *slog.Logger) *StubEmailProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubEmailProvider{logger: logger}
}

func (s *StubEmailProvider) Send(ctx context.Context, msg types.EmailMessage) (string, error) {
	names := make([]string, len(msg.Attachments))
	for i, a := range msg.Attachments {
		names[i] = a.Filename
	}

	s.mu.Lock()
	s.sent = append(s.sent, msg)
	n := len(s.sent)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "stub: email not sent",
		"recipients", len(msg.To),
		"subject", msg.Subject,
		"attachments", names,
	)
	return fmt.Sprintf("msg_stub_%d", n), nil
}

// Sent returns a copy of every message passed to Send.
func (s *StubEmailProvider) Sent() []types.EmailMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.EmailMessage(nil), s.sent...)
}

var _ EmailProvider = (*StubEmailProvider)(nil)
