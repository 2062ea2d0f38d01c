package service

import "context"

// PaymentProvider issues payment links for members of a handed-off group.
type PaymentProvider interface {
	// PaymentLink returns the link a member of a group of the given size should pay with.
	PaymentLink(ctx context.Context, groupID string, groupSize int) (string, error)
}
