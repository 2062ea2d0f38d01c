package repository

import (
	"context"

	"huddle/internal/domain/entity"
	"huddle/internal/errors"

	"github.com/google/uuid"
)

// ErrGroupNotFound is returned when a group is not found.
var ErrGroupNotFound = errors.New("group not found")

// GroupRepository defines the interface for group session persistence.
type GroupRepository interface {
	// Create persists a newly formed group.
	Create(ctx context.Context, group *entity.GroupSession) error

	// FindByID retrieves a group by its unique ID.
	FindByID(ctx context.Context, id uuid.UUID) (*entity.GroupSession, error)

	// FindByMember returns the groups the user belongs to, newest first.
	FindByMember(ctx context.Context, userID string) ([]*entity.GroupSession, error)

	// UpdateIfVersion stores group when the persisted version equals expected.
	UpdateIfVersion(ctx context.Context, group *entity.GroupSession, expected int64) error
}
