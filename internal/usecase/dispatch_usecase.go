package usecase

import (
	"context"

	"huddle/internal/domain/service"
	"huddle/internal/errors"
)

// ErrDispatchRetryable marks a dispatch failure that should be redelivered later.
var ErrDispatchRetryable = errors.New("dispatch should be retried")

// DispatchResult reports what happened to one GroupFinalized event.
type DispatchResult struct {
	GroupID     string
	DeliveryRef string
	Duplicate   bool // The group was already dispatched.
	Skipped     bool // The group was cancelled before dispatch.
}

// DispatchUsecase places the order of finalized groups with the delivery provider.
type DispatchUsecase interface {
	// Dispatch invokes the delivery provider at most once per group.
	Dispatch(ctx context.Context, event *service.GroupFinalizedEvent) (*DispatchResult, error)
}
