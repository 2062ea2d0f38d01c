package usecase

import (
	"context"

	"huddle/internal/domain/entity"
)

// ActionResult reports what a redeemed action link did.
type ActionResult struct {
	Action  string
	Round   *RoundResult        // Set for accept and decline.
	Request *entity.UserRequest // Set for cancel.
}

// ActionUsecase redeems the signed links embedded in outbound messages.
type ActionUsecase interface {
	// Redeem validates the token and performs the action it carries on behalf of its user.
	Redeem(ctx context.Context, token string) (*ActionResult, error)
}
