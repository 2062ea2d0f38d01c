package usecase

import (
	"context"

	"huddle/internal/domain/entity"

	"github.com/google/uuid"
)

// FormGroupInput carries the confirmed members of a consensus.
type FormGroupInput struct {
	GroupID      uuid.UUID
	Members      []*entity.UserRequest // Initiator first, then acceptors in acceptance order.
	AgreedWindow entity.TimeWindow
}

// GroupUsecase manages group sessions from formation to handoff.
type GroupUsecase interface {
	// Form validates the membership invariants and creates a confirmed group.
	Form(ctx context.Context, input FormGroupInput) (*entity.GroupSession, error)

	// Handoff passes a confirmed group to order processing and marks its members handed off.
	Handoff(ctx context.Context, groupID uuid.UUID) (*entity.GroupSession, error)

	// Cancel dissolves a group on behalf of a member. An empty userID means the system.
	Cancel(ctx context.Context, groupID uuid.UUID, userID, reason string) (*entity.GroupSession, error)

	// Complete marks a handed-off group as delivered.
	Complete(ctx context.Context, groupID uuid.UUID) (*entity.GroupSession, error)

	// Feedback records a member's satisfaction with a group.
	Feedback(ctx context.Context, groupID uuid.UUID, userID string, score float64) error

	// Get returns a group by ID.
	Get(ctx context.Context, groupID uuid.UUID) (*entity.GroupSession, error)

	// PaymentQR renders the member payment link of the group as a PNG QR code.
	PaymentQR(ctx context.Context, groupID uuid.UUID) ([]byte, error)
}
