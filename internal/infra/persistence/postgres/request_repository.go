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
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// requestRepository implements repository.RequestRepository using GORM.
type requestRepository struct {
	db *gorm.DB
}

// NewRequestRepository is the constructor for requestRepository.
func NewRequestRepository(db *gorm.DB) repository.RequestRepository {
	return &requestRepository{db: db}
}

func (repo *requestRepository) Create(ctx context.Context, req *entity.UserRequest) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	req.Version = 1

	if err := repo.db.WithContext(ctx).Create(fromRequestDomain(req)).Error; err != nil {
		if isUniqueConstraintViolation(err) {
			return repository.ErrActiveRequestExists
		}
		if isConstraintViolation(err) {
			return domainerrors.ErrValidation.WrapMessage("request violates a storage constraint")
		}

		return domainerrors.NewDatabaseExecuteError(err, "failed to create request")
	}

	return nil
}

func (repo *requestRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.UserRequest, error) {
	var m model.RequestModel
	if err := repo.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRequestNotFound
		}

		return nil, errors.Wrap(err, "failed to find request by id")
	}

	return toRequestDomain(&m), nil
}

func (repo *requestRepository) FindActiveByUser(ctx context.Context, userID string) (*entity.UserRequest, error) {
	var m model.RequestModel
	err := repo.db.WithContext(ctx).
		Where("user_id = ? AND state IN ?", userID, stateStrings(entity.NonTerminalRequestStates)).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRequestNotFound
		}

		return nil, errors.Wrap(err, "failed to find active request")
	}

	return toRequestDomain(&m), nil
}

func (repo *requestRepository) Find(ctx context.Context, filter repository.RequestFilter) ([]*entity.UserRequest, error) {
	query := repo.db.WithContext(ctx).Model(&model.RequestModel{})

	if len(filter.States) > 0 {
		query = query.Where("state IN ?", stateStrings(filter.States))
	}
	if filter.Restaurant != "" {
		query = query.Where("LOWER(restaurant) = LOWER(?)", filter.Restaurant)
	}
	if filter.Location != "" {
		query = query.Where("LOWER(location) = LOWER(?)", filter.Location)
	}
	if filter.ExcludeUserID != "" {
		query = query.Where("user_id <> ?", filter.ExcludeUserID)
	}
	if filter.ExpiresBefore != nil {
		query = query.Where("expires_at IS NOT NULL AND expires_at < ?", *filter.ExpiresBefore)
	}
	if filter.ActivateBefore != nil {
		query = query.Where("activate_at IS NOT NULL AND activate_at <= ?", *filter.ActivateBefore)
	}
	if filter.IdleBefore != nil {
		query = query.Where("last_activity_at < ?", *filter.IdleBefore)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var models []*model.RequestModel
	if err := query.Order("created_at ASC").Order("id ASC").Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "failed to query requests")
	}

	result := make([]*entity.UserRequest, 0, len(models))
	for _, m := range models {
		result = append(result, toRequestDomain(m))
	}

	return result, nil
}

func (repo *requestRepository) UpdateIfVersion(ctx context.Context, req *entity.UserRequest, expected int64) error {
	m := fromRequestDomain(req)
	m.Version = expected + 1

	res := repo.db.WithContext(ctx).
		Model(&model.RequestModel{}).
		Where("id = ? AND version = ?", req.ID, expected).
		Select("*").
		Omit("id", "created_at").
		Updates(m)
	if res.Error != nil {
		if isUniqueConstraintViolation(res.Error) {
			return repository.ErrActiveRequestExists
		}

		return domainerrors.NewDatabaseExecuteError(res.Error, "failed to update request")
	}
	if res.RowsAffected == 0 {
		return repo.missOrConflict(ctx, req.ID)
	}

	req.Version = m.Version

	return nil
}

func (repo *requestRepository) missOrConflict(ctx context.Context, id uuid.UUID) error {
	var count int64
	if err := repo.db.WithContext(ctx).Model(&model.RequestModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return errors.Wrap(err, "failed to check request existence")
	}
	if count == 0 {
		return repository.ErrRequestNotFound
	}

	return repository.ErrVersionConflict
}

func stateStrings(states []entity.RequestState) []string {
	result := make([]string, 0, len(states))
	for _, s := range states {
		result = append(result, string(s))
	}

	return result
}

func fromRequestDomain(req *entity.UserRequest) *model.RequestModel {
	m := &model.RequestModel{
		ID:             req.ID,
		UserID:         req.UserID,
		Restaurant:     req.Restaurant,
		Location:       req.Location,
		State:          string(req.State),
		GroupID:        req.GroupID,
		RoundID:        req.RoundID,
		WindowStart:    timePtr(req.Window.Start),
		WindowEnd:      timePtr(req.Window.End),
		ExpiresAt:      timePtr(req.ExpiresAt),
		HardExpiresAt:  timePtr(req.HardExpiresAt),
		ActivateAt:     req.ActivateAt,
		Reason:         req.Reason,
		CreatedAt:      req.CreatedAt,
		UpdatedAt:      req.UpdatedAt,
		LastActivityAt: req.LastActivityAt,
		Version:        req.Version,
	}

	exclusions := req.Exclusions
	if exclusions == nil {
		exclusions = map[string]time.Time{}
	}
	m.Exclusions = datatypes.NewJSONType(exclusions)

	return m
}

func toRequestDomain(m *model.RequestModel) *entity.UserRequest {
	req := &entity.UserRequest{
		ID:         m.ID,
		UserID:     m.UserID,
		Restaurant: m.Restaurant,
		Location:   m.Location,
		Window: entity.TimeWindow{
			Start: timeValue(m.WindowStart),
			End:   timeValue(m.WindowEnd),
		},
		State:          entity.RequestState(m.State),
		GroupID:        m.GroupID,
		RoundID:        m.RoundID,
		ExpiresAt:      timeValue(m.ExpiresAt),
		HardExpiresAt:  timeValue(m.HardExpiresAt),
		ActivateAt:     m.ActivateAt,
		Reason:         m.Reason,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
		LastActivityAt: m.LastActivityAt,
		Version:        m.Version,
	}
	if exclusions := m.Exclusions.Data(); len(exclusions) > 0 {
		req.Exclusions = exclusions
	}

	return req
}

// timePtr maps the zero time to NULL.
func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}

	return &t
}

func timeValue(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}

	return *t
}
