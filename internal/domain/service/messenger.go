package service

import (
	"context"

	"huddle/internal/errors"
)

// ErrDeliveryFailed is returned when a message could not be handed to the channel.
var ErrDeliveryFailed = errors.New("message delivery failed")

// Messenger sends outbound text to a user. The engine treats it as fire-and-forget;
// retries, if any, belong to the implementation.
type Messenger interface {
	Send(ctx context.Context, userID, text string) error
}
