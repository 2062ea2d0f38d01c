package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"huddle/internal/domain/entity"
	"huddle/internal/domain/repository"

	"github.com/google/uuid"
)

type proposalRepository struct {
	store   *Store
	journal *journal
}

// NewProposalRepository creates a proposal repository over the store.
func NewProposalRepository(store *Store) repository.ProposalRepository {
	return &proposalRepository{store: store}
}

func (r *proposalRepository) Create(_ context.Context, proposal *entity.NegotiationProposal) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if proposal.ID == uuid.Nil {
		proposal.ID = uuid.New()
	}
	proposal.Version = 1
	put(r.journal, r.store.proposals, proposal.ID, proposal.Clone())

	return nil
}

func (r *proposalRepository) FindByID(_ context.Context, id uuid.UUID) (*entity.NegotiationProposal, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	proposal, ok := r.store.proposals[id]
	if !ok {
		return nil, repository.ErrProposalNotFound
	}

	return proposal.Clone(), nil
}

func (r *proposalRepository) FindByRound(_ context.Context, roundID uuid.UUID) ([]*entity.NegotiationProposal, error) {
	return r.collect(func(p *entity.NegotiationProposal) bool {
		return p.RoundID == roundID
	}), nil
}

func (r *proposalRepository) FindOpenByTarget(_ context.Context, targetRequestID uuid.UUID) ([]*entity.NegotiationProposal, error) {
	return r.collect(func(p *entity.NegotiationProposal) bool {
		return p.TargetRequestID == targetRequestID && p.IsPending()
	}), nil
}

func (r *proposalRepository) FindDueRounds(_ context.Context, now time.Time) ([]uuid.UUID, error) {
	due := r.collect(func(p *entity.NegotiationProposal) bool {
		return p.IsPending() && !p.ExpiresAt.After(now)
	})

	var rounds []uuid.UUID
	for _, p := range due {
		if !slices.Contains(rounds, p.RoundID) {
			rounds = append(rounds, p.RoundID)
		}
	}

	return rounds, nil
}

func (r *proposalRepository) UpdateIfVersion(_ context.Context, proposal *entity.NegotiationProposal, expected int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	current, ok := r.store.proposals[proposal.ID]
	if !ok {
		return repository.ErrProposalNotFound
	}
	if current.Version != expected {
		return repository.ErrVersionConflict
	}

	proposal.Version = expected + 1
	put(r.journal, r.store.proposals, proposal.ID, proposal.Clone())

	return nil
}

func (r *proposalRepository) collect(match func(*entity.NegotiationProposal) bool) []*entity.NegotiationProposal {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var result []*entity.NegotiationProposal
	for _, p := range r.store.proposals {
		if match(p) {
			result = append(result, p.Clone())
		}
	}

	slices.SortFunc(result, func(a, b *entity.NegotiationProposal) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}

		return cmp.Compare(a.ID.String(), b.ID.String())
	})

	return result
}
