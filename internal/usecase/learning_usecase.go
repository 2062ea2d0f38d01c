package usecase

import (
	"context"

	"huddle/internal/domain/entity"

	"github.com/google/uuid"
)

// LearningUsecase writes outcomes to the interaction log and keeps profiles derived from it.
type LearningUsecase interface {
	RecordRequestCreated(ctx context.Context, req *entity.UserRequest) error
	RecordTerminal(ctx context.Context, req *entity.UserRequest, outcome string) error
	RecordRejection(ctx context.Context, req *entity.UserRequest, counterparts []string, reason string) error
	RecordGroupOutcome(ctx context.Context, group *entity.GroupSession, outcome string) error
	RecordSatisfaction(ctx context.Context, groupID uuid.UUID, userID string, score float64) error
	RecordCheckIn(ctx context.Context, userID string) error
	SetCheckInOptOut(ctx context.Context, userID string, optOut bool) error

	// Profile returns the derived profile of a user.
	Profile(ctx context.Context, userID string) (*entity.UserProfile, error)

	// PairHistory reports whether the two users completed a well-rated group together.
	PairHistory(ctx context.Context, a, b string) (bool, error)
}
