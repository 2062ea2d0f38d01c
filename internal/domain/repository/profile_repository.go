package repository

import (
	"context"

	"huddle/internal/domain/entity"
)

// ProfileRepository defines the interface for the learning profile and its interaction log.
type ProfileRepository interface {
	// Get returns the stored profile, or an empty profile with version 0 when none exists.
	Get(ctx context.Context, userID string) (*entity.UserProfile, error)

	// UpdateIfVersion upserts the profile when the stored version equals expected.
	UpdateIfVersion(ctx context.Context, profile *entity.UserProfile, expected int64) error

	// AppendLog appends an event to the user's append-only interaction log.
	AppendLog(ctx context.Context, event *entity.InteractionEvent) error

	// ListLog returns the user's interaction log in creation order.
	ListLog(ctx context.Context, userID string) ([]*entity.InteractionEvent, error)

	// FindCheckInCandidates returns user IDs known to the system that have not opted out of
	// proactive check-ins.
	FindCheckInCandidates(ctx context.Context) ([]string, error)
}
