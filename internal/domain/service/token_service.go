package service

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Actions that can be carried by a signed link.
const (
	ActionAccept  = "accept"
	ActionDecline = "decline"
	ActionCancel  = "cancel"
)

// ActionClaims defines the custom claims of a signed action link.
type ActionClaims struct {
	UserID  string    `json:"uid"`
	Action  string    `json:"act"`
	Subject uuid.UUID `json:"sub_id"` // Proposal or request the action applies to.
	jwt.RegisteredClaims
}

// ActionTokenService issues and validates the tokens embedded in outbound message links.
type ActionTokenService interface {
	// Issue signs an action for the user that stays valid for ttl.
	Issue(userID, action string, subject uuid.UUID, ttl time.Duration) (string, error)

	// Validate checks the token signature and expiry.
	Validate(token string) (*ActionClaims, error)
}
