package postgres

import (
	"context"
	"encoding/json"

	"huddle/internal/domain/entity"
	domainerrors "huddle/internal/domain/errors"
	"huddle/internal/domain/repository"
	"huddle/internal/infra/persistence/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const checkInCandidatesQuery = `
SELECT u.user_id FROM (
	SELECT user_id FROM interaction_events
	UNION
	SELECT user_id FROM user_profiles
) u
LEFT JOIN user_profiles p ON p.user_id = u.user_id
WHERE p.check_in_opt_out IS NOT TRUE
ORDER BY u.user_id`

// profileSnapshot is the JSON document holding the derived aggregates of a profile.
type profileSnapshot struct {
	Preferences        entity.PreferenceHistory    `json:"preferences"`
	Groups             []entity.GroupRecord        `json:"groups"`
	Satisfaction       []entity.SatisfactionSample `json:"satisfaction"`
	Rejections         map[string]int              `json:"rejections"`
	CommunicationHints map[string]string           `json:"communication_hints"`
}

// profileRepository implements repository.ProfileRepository using GORM.
type profileRepository struct {
	db *gorm.DB
}

// NewProfileRepository is the constructor for profileRepository.
func NewProfileRepository(db *gorm.DB) repository.ProfileRepository {
	return &profileRepository{db: db}
}

func (repo *profileRepository) Get(ctx context.Context, userID string) (*entity.UserProfile, error) {
	var m model.ProfileModel
	if err := repo.db.WithContext(ctx).Where("user_id = ?", userID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entity.NewUserProfile(userID), nil
		}

		return nil, errors.Wrap(err, "failed to find profile")
	}

	return toProfileDomain(&m)
}

func (repo *profileRepository) UpdateIfVersion(ctx context.Context, profile *entity.UserProfile, expected int64) error {
	m, err := fromProfileDomain(profile)
	if err != nil {
		return err
	}
	m.Version = expected + 1

	db := repo.db.WithContext(ctx)

	// Version 0 means the profile was never stored; the primary key settles concurrent inserts.
	if expected == 0 {
		if err := db.Create(m).Error; err != nil {
			if isUniqueConstraintViolation(err) {
				return repository.ErrVersionConflict
			}

			return domainerrors.NewDatabaseExecuteError(err, "failed to create profile")
		}
		profile.Version = m.Version

		return nil
	}

	res := db.Model(&model.ProfileModel{}).
		Where("user_id = ? AND version = ?", profile.UserID, expected).
		Select("*").
		Omit("user_id").
		Updates(m)
	if res.Error != nil {
		return domainerrors.NewDatabaseExecuteError(res.Error, "failed to update profile")
	}
	if res.RowsAffected == 0 {
		return repository.ErrVersionConflict
	}
	profile.Version = m.Version

	return nil
}

func (repo *profileRepository) AppendLog(ctx context.Context, event *entity.InteractionEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}

	m := &model.InteractionModel{
		ID:           event.ID,
		UserID:       event.UserID,
		Kind:         string(event.Kind),
		RequestID:    event.RequestID,
		GroupID:      event.GroupID,
		Counterparts: datatypes.NewJSONType(event.Counterparts),
		Restaurant:   event.Restaurant,
		Location:     event.Location,
		WindowStart:  event.WindowStart,
		Outcome:      event.Outcome,
		Reason:       event.Reason,
		Score:        event.Score,
		HintKey:      event.HintKey,
		HintValue:    event.HintValue,
		CreatedAt:    event.CreatedAt,
	}
	if err := repo.db.WithContext(ctx).Create(m).Error; err != nil {
		return domainerrors.NewDatabaseExecuteError(err, "failed to append interaction event")
	}

	return nil
}

func (repo *profileRepository) ListLog(ctx context.Context, userID string) ([]*entity.InteractionEvent, error) {
	var models []*model.InteractionModel
	if err := repo.db.WithContext(ctx).Where("user_id = ?", userID).Order("seq ASC").Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list interaction log")
	}

	events := make([]*entity.InteractionEvent, 0, len(models))
	for _, m := range models {
		events = append(events, &entity.InteractionEvent{
			ID:           m.ID,
			UserID:       m.UserID,
			Kind:         entity.InteractionKind(m.Kind),
			RequestID:    m.RequestID,
			GroupID:      m.GroupID,
			Counterparts: m.Counterparts.Data(),
			Restaurant:   m.Restaurant,
			Location:     m.Location,
			WindowStart:  m.WindowStart,
			Outcome:      m.Outcome,
			Reason:       m.Reason,
			Score:        m.Score,
			HintKey:      m.HintKey,
			HintValue:    m.HintValue,
			CreatedAt:    m.CreatedAt,
		})
	}

	return events, nil
}

func (repo *profileRepository) FindCheckInCandidates(ctx context.Context) ([]string, error) {
	var users []string
	if err := repo.db.WithContext(ctx).Raw(checkInCandidatesQuery).Scan(&users).Error; err != nil {
		return nil, errors.Wrap(err, "failed to find check-in candidates")
	}

	return users, nil
}

func fromProfileDomain(profile *entity.UserProfile) (*model.ProfileModel, error) {
	snapshot, err := json.Marshal(profileSnapshot{
		Preferences:        profile.Preferences,
		Groups:             profile.Groups,
		Satisfaction:       profile.Satisfaction,
		Rejections:         profile.Rejections,
		CommunicationHints: profile.CommunicationHints,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode profile snapshot")
	}

	return &model.ProfileModel{
		UserID:        profile.UserID,
		Snapshot:      datatypes.JSON(snapshot),
		CheckInOptOut: profile.CheckInOptOut,
		LastCheckInAt: profile.LastCheckInAt,
		LastSeenAt:    profile.LastSeenAt,
		EventCount:    profile.EventCount,
		UpdatedAt:     profile.UpdatedAt,
		Version:       profile.Version,
	}, nil
}

func toProfileDomain(m *model.ProfileModel) (*entity.UserProfile, error) {
	profile := entity.NewUserProfile(m.UserID)

	var snapshot profileSnapshot
	if err := json.Unmarshal(m.Snapshot, &snapshot); err != nil {
		return nil, errors.Wrap(err, "failed to decode profile snapshot")
	}
	if snapshot.Preferences.Restaurants != nil {
		profile.Preferences.Restaurants = snapshot.Preferences.Restaurants
	}
	if snapshot.Preferences.Locations != nil {
		profile.Preferences.Locations = snapshot.Preferences.Locations
	}
	if snapshot.Preferences.TimeSlots != nil {
		profile.Preferences.TimeSlots = snapshot.Preferences.TimeSlots
	}
	if snapshot.Rejections != nil {
		profile.Rejections = snapshot.Rejections
	}
	if snapshot.CommunicationHints != nil {
		profile.CommunicationHints = snapshot.CommunicationHints
	}
	profile.Groups = snapshot.Groups
	profile.Satisfaction = snapshot.Satisfaction
	profile.CheckInOptOut = m.CheckInOptOut
	profile.LastCheckInAt = m.LastCheckInAt
	profile.LastSeenAt = m.LastSeenAt
	profile.EventCount = m.EventCount
	profile.UpdatedAt = m.UpdatedAt
	profile.Version = m.Version

	return profile, nil
}
