// Package repository defines the interfaces for the persistence layer.
package repository

import (
	"context"
	"time"

	"huddle/internal/domain/entity"
	"huddle/internal/errors"

	"github.com/google/uuid"
)

// Domain-specific errors shared by every store implementation.
var (
	// ErrVersionConflict is returned when a compare-and-swap update finds a newer version.
	ErrVersionConflict = errors.New("version conflict")
	// ErrRequestNotFound is returned when a request is not found.
	ErrRequestNotFound = errors.New("request not found")
	// ErrActiveRequestExists is returned when a user already holds a non-terminal request.
	ErrActiveRequestExists = errors.New("user already has an active request")
)

// RequestFilter narrows a request query. Zero values are ignored.
type RequestFilter struct {
	States         []entity.RequestState
	Restaurant     string
	Location       string
	ExcludeUserID  string
	ExpiresBefore  *time.Time // ExpiresAt strictly before the instant.
	ActivateBefore *time.Time // ActivateAt at or before the instant.
	IdleBefore     *time.Time // LastActivityAt strictly before the instant.
	Limit          int
}

// RequestRepository defines the interface for user request persistence.
type RequestRepository interface {
	// Create persists a new request. It fails with ErrActiveRequestExists when the user
	// already has a non-terminal request.
	Create(ctx context.Context, req *entity.UserRequest) error

	// FindByID retrieves a request by its unique ID.
	FindByID(ctx context.Context, id uuid.UUID) (*entity.UserRequest, error)

	// FindActiveByUser returns the user's non-terminal request or ErrRequestNotFound.
	FindActiveByUser(ctx context.Context, userID string) (*entity.UserRequest, error)

	// Find returns the requests matching filter ordered by creation time, then ID.
	Find(ctx context.Context, filter RequestFilter) ([]*entity.UserRequest, error)

	// UpdateIfVersion stores req when the persisted version equals expected and bumps
	// req.Version. It returns ErrVersionConflict otherwise.
	UpdateIfVersion(ctx context.Context, req *entity.UserRequest, expected int64) error
}
