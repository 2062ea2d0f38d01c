package repository

import (
	"context"
	"time"

	"huddle/internal/domain/entity"
	"huddle/internal/errors"

	"github.com/google/uuid"
)

// ErrProposalNotFound is returned when a proposal is not found.
var ErrProposalNotFound = errors.New("proposal not found")

// ProposalRepository defines the interface for negotiation proposal persistence.
type ProposalRepository interface {
	// Create persists a new proposal.
	Create(ctx context.Context, proposal *entity.NegotiationProposal) error

	// FindByID retrieves a proposal by its unique ID.
	FindByID(ctx context.Context, id uuid.UUID) (*entity.NegotiationProposal, error)

	// FindByRound returns every proposal of the round ordered by creation time.
	FindByRound(ctx context.Context, roundID uuid.UUID) ([]*entity.NegotiationProposal, error)

	// FindOpenByTarget returns the pending proposals addressed to the request.
	FindOpenByTarget(ctx context.Context, targetRequestID uuid.UUID) ([]*entity.NegotiationProposal, error)

	// FindDueRounds returns the IDs of rounds that still have a pending proposal expiring
	// at or before now.
	FindDueRounds(ctx context.Context, now time.Time) ([]uuid.UUID, error)

	// UpdateIfVersion stores proposal when the persisted version equals expected.
	UpdateIfVersion(ctx context.Context, proposal *entity.NegotiationProposal, expected int64) error
}
