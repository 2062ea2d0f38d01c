package usecase

import (
	"context"

	"huddle/internal/domain/entity"

	"github.com/google/uuid"
)

// InboundResult describes what an inbound message did.
type InboundResult struct {
	Request *entity.UserRequest // The user's request after the message, nil when none exists.
	Reply   string              // Text sent back to the user.
}

// SessionUsecase is the session state machine. Every request mutation goes through it.
type SessionUsecase interface {
	// HandleInbound processes one free-text message from a user.
	HandleInbound(ctx context.Context, userID, text string) (*InboundResult, error)

	// SubmitIntent records a structured intent and starts matching or schedules it.
	SubmitIntent(ctx context.Context, userID string, intent entity.Intent) (*entity.UserRequest, error)

	// Cancel cancels the user's open request.
	Cancel(ctx context.Context, userID, reason string) (*entity.UserRequest, error)

	// CancelRequest cancels a specific request if it is still open.
	CancelRequest(ctx context.Context, requestID uuid.UUID, reason string) (*entity.UserRequest, error)

	// RunMatching searches candidates for a request in matching state and opens a negotiation.
	RunMatching(ctx context.Context, requestID uuid.UUID) (*entity.UserRequest, error)

	// Expire moves a matching request past its deadline to expired.
	Expire(ctx context.Context, requestID uuid.UUID) (*entity.UserRequest, error)

	// Activate moves a scheduled request whose activation time has come into matching.
	Activate(ctx context.Context, requestID uuid.UUID) (*entity.UserRequest, error)

	// ReturnToMatching sends a request back to candidate search, excluding the given
	// counterparts for the cool-down period.
	ReturnToMatching(ctx context.Context, requestID uuid.UUID, exclude []string, reason string) (*entity.UserRequest, error)

	// Get returns a request by ID.
	Get(ctx context.Context, requestID uuid.UUID) (*entity.UserRequest, error)

	// GetActiveByUser returns the user's open request.
	GetActiveByUser(ctx context.Context, userID string) (*entity.UserRequest, error)
}
