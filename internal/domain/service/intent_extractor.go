package service

import (
	"context"
	"time"

	"huddle/internal/domain/entity"
	"huddle/internal/errors"
)

// ErrUnrecognized is returned when a message carries no usable intent.
var ErrUnrecognized = errors.New("intent not recognized")

// ExtractContext carries what is already known about the user when parsing a message.
type ExtractContext struct {
	UserID  string
	Now     time.Time
	Partial entity.Intent // Fields collected from earlier messages.
}

// IntentExtractor turns free text into a structured intent. Implementations must return
// the same result for identical input and context.
type IntentExtractor interface {
	Extract(ctx context.Context, text string, uctx ExtractContext) (*entity.Intent, error)
}
