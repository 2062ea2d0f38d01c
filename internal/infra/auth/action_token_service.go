// Package auth provides the signed action links embedded in outbound messages.
package auth

import (
	"slices"
	"time"

	"huddle/config"
	"huddle/internal/domain/service"
	"huddle/internal/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "huddle"

var validActions = []string{service.ActionAccept, service.ActionDecline, service.ActionCancel}

// actionTokenService is a concrete implementation of the ActionTokenService interface using the JWT standard.
type actionTokenService struct {
	secret []byte
	now    func() time.Time
}

// NewActionTokenService is the constructor for actionTokenService.
func NewActionTokenService(cfg *config.Config) (service.ActionTokenService, error) {
	if cfg.SecretKey.Action == "" {
		return nil, errors.New("action link secret must be provided")
	}

	return &actionTokenService{
		secret: []byte(cfg.SecretKey.Action),
		now:    time.Now,
	}, nil
}

// Issue creates a signed token carrying one action for one user.
func (s *actionTokenService) Issue(userID, action string, subject uuid.UUID, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}
	if !slices.Contains(validActions, action) {
		return "", errors.Errorf("unknown action %q", action)
	}

	now := s.now()
	claims := service.ActionClaims{
		UserID:  userID,
		Action:  action,
		Subject: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign action token")
	}

	return signed, nil
}

// Validate checks the signature, expiry and action of a token.
func (s *actionTokenService) Validate(tokenString string) (*service.ActionClaims, error) {
	claims := &service.ActionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		// Ensure the signing method is what we expect.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}

		return s.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse action token")
	}
	if !token.Valid {
		return nil, errors.New("action token is not valid")
	}
	if !slices.Contains(validActions, claims.Action) {
		return nil, errors.Errorf("unknown action %q", claims.Action)
	}

	return claims, nil
}
