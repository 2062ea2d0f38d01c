// Package messenger provides the outbound message channels.
package messenger

import (
	"context"
	"log/slog"

	"huddle/internal/domain/service"
)

// logMessenger writes outbound messages to the log instead of delivering them.
type logMessenger struct {
	logger *slog.Logger
}

// NewLogMessenger creates the mock messenger.
func NewLogMessenger(logger *slog.Logger) service.Messenger {
	return &logMessenger{logger: logger}
}

func (m *logMessenger) Send(_ context.Context, userID, text string) error {
	m.logger.Info("[LogMessenger] Outbound message",
		slog.String("user_id", userID),
		slog.String("text", text),
	)

	return nil
}
