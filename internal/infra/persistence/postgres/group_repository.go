package postgres

import (
	"context"

	"huddle/internal/domain/entity"
	domainerrors "huddle/internal/domain/errors"
	"huddle/internal/domain/repository"
	"huddle/internal/infra/persistence/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// groupRepository implements repository.GroupRepository using GORM.
// Members live in their own table so that FindByMember stays an indexed lookup.
type groupRepository struct {
	db *gorm.DB
}

// NewGroupRepository is the constructor for groupRepository.
func NewGroupRepository(db *gorm.DB) repository.GroupRepository {
	return &groupRepository{db: db}
}

func (repo *groupRepository) Create(ctx context.Context, group *entity.GroupSession) error {
	if group.ID == uuid.Nil {
		group.ID = uuid.New()
	}
	group.Version = 1

	// GORM inserts the has-many members in the same statement batch.
	if err := repo.db.WithContext(ctx).Create(fromGroupDomain(group)).Error; err != nil {
		if isConstraintViolation(err) {
			return domainerrors.ErrInvariantViolation.WrapMessage("group violates a storage constraint")
		}

		return domainerrors.NewDatabaseExecuteError(err, "failed to create group")
	}

	return nil
}

func (repo *groupRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.GroupSession, error) {
	var m model.GroupModel
	err := repo.db.WithContext(ctx).
		Preload("Members", orderMembers).
		Where("id = ?", id).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrGroupNotFound
		}

		return nil, errors.Wrap(err, "failed to find group by id")
	}

	return toGroupDomain(&m), nil
}

func (repo *groupRepository) FindByMember(ctx context.Context, userID string) ([]*entity.GroupSession, error) {
	db := repo.db.WithContext(ctx)
	memberOf := db.Model(&model.GroupMemberModel{}).Select("group_id").Where("user_id = ?", userID)

	var models []*model.GroupModel
	err := db.Preload("Members", orderMembers).
		Where("id IN (?)", memberOf).
		Order("formed_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to find groups by member")
	}

	result := make([]*entity.GroupSession, 0, len(models))
	for _, m := range models {
		result = append(result, toGroupDomain(m))
	}

	return result, nil
}

func (repo *groupRepository) UpdateIfVersion(ctx context.Context, group *entity.GroupSession, expected int64) error {
	m := fromGroupDomain(group)
	m.Version = expected + 1

	// Membership is fixed at formation.
	res := repo.db.WithContext(ctx).
		Model(&model.GroupModel{}).
		Where("id = ? AND version = ?", group.ID, expected).
		Select("*").
		Omit("id", "formed_at", clause.Associations).
		Updates(m)
	if res.Error != nil {
		return domainerrors.NewDatabaseExecuteError(res.Error, "failed to update group")
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := repo.db.WithContext(ctx).Model(&model.GroupModel{}).Where("id = ?", group.ID).Count(&count).Error; err != nil {
			return errors.Wrap(err, "failed to check group existence")
		}
		if count == 0 {
			return repository.ErrGroupNotFound
		}

		return repository.ErrVersionConflict
	}

	group.Version = m.Version

	return nil
}

func orderMembers(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func fromGroupDomain(group *entity.GroupSession) *model.GroupModel {
	members := make([]*model.GroupMemberModel, 0, len(group.Members))
	for i, member := range group.Members {
		members = append(members, &model.GroupMemberModel{
			GroupID:   group.ID,
			RequestID: member.RequestID,
			UserID:    member.UserID,
			Position:  i,
		})
	}

	return &model.GroupModel{
		ID:          group.ID,
		Members:     members,
		Restaurant:  group.Restaurant,
		Location:    group.Location,
		WindowStart: group.AgreedWindow.Start,
		WindowEnd:   group.AgreedWindow.End,
		Status:      string(group.Status),
		Reason:      group.Reason,
		PaymentLink: group.PaymentLink,
		DeliveryRef: group.DeliveryRef,
		FormedAt:    group.FormedAt,
		HandedOffAt: group.HandedOffAt,
		ClosedAt:    group.ClosedAt,
		UpdatedAt:   group.UpdatedAt,
		Version:     group.Version,
	}
}

func toGroupDomain(m *model.GroupModel) *entity.GroupSession {
	members := make([]entity.GroupMember, 0, len(m.Members))
	for _, member := range m.Members {
		members = append(members, entity.GroupMember{RequestID: member.RequestID, UserID: member.UserID})
	}

	return &entity.GroupSession{
		ID:           m.ID,
		Members:      members,
		Restaurant:   m.Restaurant,
		Location:     m.Location,
		AgreedWindow: entity.TimeWindow{Start: m.WindowStart, End: m.WindowEnd},
		Status:       entity.GroupStatus(m.Status),
		Reason:       m.Reason,
		PaymentLink:  m.PaymentLink,
		DeliveryRef:  m.DeliveryRef,
		FormedAt:     m.FormedAt,
		HandedOffAt:  m.HandedOffAt,
		ClosedAt:     m.ClosedAt,
		UpdatedAt:    m.UpdatedAt,
		Version:      m.Version,
	}
}
