package postgres

import (
	"context"
	"time"

	"huddle/internal/domain/entity"
	domainerrors "huddle/internal/domain/errors"
	"huddle/internal/domain/repository"
	"huddle/internal/infra/persistence/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// proposalRepository implements repository.ProposalRepository using GORM.
type proposalRepository struct {
	db *gorm.DB
}

// NewProposalRepository is the constructor for proposalRepository.
func NewProposalRepository(db *gorm.DB) repository.ProposalRepository {
	return &proposalRepository{db: db}
}

func (repo *proposalRepository) Create(ctx context.Context, proposal *entity.NegotiationProposal) error {
	if proposal.ID == uuid.Nil {
		proposal.ID = uuid.New()
	}
	proposal.Version = 1

	if err := repo.db.WithContext(ctx).Create(fromProposalDomain(proposal)).Error; err != nil {
		if isConstraintViolation(err) {
			return domainerrors.ErrInvariantViolation.WrapMessage("proposal violates a storage constraint")
		}

		return domainerrors.NewDatabaseExecuteError(err, "failed to create proposal")
	}

	return nil
}

func (repo *proposalRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.NegotiationProposal, error) {
	var m model.ProposalModel
	if err := repo.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrProposalNotFound
		}

		return nil, errors.Wrap(err, "failed to find proposal by id")
	}

	return toProposalDomain(&m), nil
}

func (repo *proposalRepository) FindByRound(ctx context.Context, roundID uuid.UUID) ([]*entity.NegotiationProposal, error) {
	return repo.find(ctx, "round_id = ?", roundID)
}

func (repo *proposalRepository) FindOpenByTarget(ctx context.Context, targetRequestID uuid.UUID) ([]*entity.NegotiationProposal, error) {
	return repo.find(ctx, "target_request_id = ? AND response = ?", targetRequestID, string(entity.ProposalPending))
}

func (repo *proposalRepository) FindDueRounds(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	var rounds []uuid.UUID
	err := repo.db.WithContext(ctx).
		Model(&model.ProposalModel{}).
		Distinct("round_id").
		Where("response = ? AND expires_at <= ?", string(entity.ProposalPending), now).
		Pluck("round_id", &rounds).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to find due rounds")
	}

	return rounds, nil
}

func (repo *proposalRepository) UpdateIfVersion(ctx context.Context, proposal *entity.NegotiationProposal, expected int64) error {
	m := fromProposalDomain(proposal)
	m.Version = expected + 1

	res := repo.db.WithContext(ctx).
		Model(&model.ProposalModel{}).
		Where("id = ? AND version = ?", proposal.ID, expected).
		Select("*").
		Omit("id", "created_at").
		Updates(m)
	if res.Error != nil {
		return domainerrors.NewDatabaseExecuteError(res.Error, "failed to update proposal")
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := repo.db.WithContext(ctx).Model(&model.ProposalModel{}).Where("id = ?", proposal.ID).Count(&count).Error; err != nil {
			return errors.Wrap(err, "failed to check proposal existence")
		}
		if count == 0 {
			return repository.ErrProposalNotFound
		}

		return repository.ErrVersionConflict
	}

	proposal.Version = m.Version

	return nil
}

func (repo *proposalRepository) find(ctx context.Context, where string, args ...any) ([]*entity.NegotiationProposal, error) {
	var models []*model.ProposalModel
	err := repo.db.WithContext(ctx).
		Where(where, args...).
		Order("created_at ASC").
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to query proposals")
	}

	result := make([]*entity.NegotiationProposal, 0, len(models))
	for _, m := range models {
		result = append(result, toProposalDomain(m))
	}

	return result, nil
}

func fromProposalDomain(p *entity.NegotiationProposal) *model.ProposalModel {
	m := &model.ProposalModel{
		ID:                 p.ID,
		RoundID:            p.RoundID,
		Round:              p.Round,
		InitiatorRequestID: p.InitiatorRequestID,
		InitiatorUserID:    p.InitiatorUserID,
		TargetRequestID:    p.TargetRequestID,
		TargetUserID:       p.TargetUserID,
		Restaurant:         p.Terms.Restaurant,
		Location:           p.Terms.Location,
		WindowStart:        p.Terms.Window.Start,
		WindowEnd:          p.Terms.Window.End,
		Score:              p.Score,
		Response:           string(p.Response),
		Reason:             p.Reason,
		ExpiresAt:          p.ExpiresAt,
		CreatedAt:          p.CreatedAt,
		RespondedAt:        p.RespondedAt,
		Version:            p.Version,
	}
	if p.CounterWindow != nil {
		start, end := p.CounterWindow.Start, p.CounterWindow.End
		m.CounterStart = &start
		m.CounterEnd = &end
	}

	return m
}

func toProposalDomain(m *model.ProposalModel) *entity.NegotiationProposal {
	p := &entity.NegotiationProposal{
		ID:                 m.ID,
		RoundID:            m.RoundID,
		Round:              m.Round,
		InitiatorRequestID: m.InitiatorRequestID,
		InitiatorUserID:    m.InitiatorUserID,
		TargetRequestID:    m.TargetRequestID,
		TargetUserID:       m.TargetUserID,
		Terms: entity.ProposalTerms{
			Restaurant: m.Restaurant,
			Location:   m.Location,
			Window:     entity.TimeWindow{Start: m.WindowStart, End: m.WindowEnd},
		},
		Score:       m.Score,
		Response:    entity.ProposalResponse(m.Response),
		Reason:      m.Reason,
		ExpiresAt:   m.ExpiresAt,
		CreatedAt:   m.CreatedAt,
		RespondedAt: m.RespondedAt,
		Version:     m.Version,
	}
	if m.CounterStart != nil && m.CounterEnd != nil {
		p.CounterWindow = &entity.TimeWindow{Start: *m.CounterStart, End: *m.CounterEnd}
	}

	return p
}
