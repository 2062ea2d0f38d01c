package service

import (
	"context"

	"huddle/internal/errors"
)

// ErrProviderUnavailable marks a delivery failure worth retrying later.
var ErrProviderUnavailable = errors.New("delivery provider unavailable")

// DeliveryProvider places the order of a finalized group with the courier.
type DeliveryProvider interface {
	// Dispatch sends the order and returns the courier's reference.
	Dispatch(ctx context.Context, event GroupFinalizedEvent) (string, error)
}
