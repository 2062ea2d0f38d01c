package memory

import (
	"context"
	"slices"

	"huddle/internal/domain/entity"
	"huddle/internal/domain/repository"

	"github.com/google/uuid"
)

type profileRepository struct {
	store   *Store
	journal *journal
}

// NewProfileRepository creates a profile repository over the store.
func NewProfileRepository(store *Store) repository.ProfileRepository {
	return &profileRepository{store: store}
}

func (r *profileRepository) Get(_ context.Context, userID string) (*entity.UserProfile, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	if profile, ok := r.store.profiles[userID]; ok {
		return profile.Clone(), nil
	}

	return entity.NewUserProfile(userID), nil
}

func (r *profileRepository) UpdateIfVersion(_ context.Context, profile *entity.UserProfile, expected int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var current int64
	if stored, ok := r.store.profiles[profile.UserID]; ok {
		current = stored.Version
	}
	if current != expected {
		return repository.ErrVersionConflict
	}

	profile.Version = expected + 1
	put(r.journal, r.store.profiles, profile.UserID, profile.Clone())

	return nil
}

func (r *profileRepository) AppendLog(_ context.Context, event *entity.InteractionEvent) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	r.store.appendLog(r.journal, cloneEvent(event))

	return nil
}

func (r *profileRepository) ListLog(_ context.Context, userID string) ([]*entity.InteractionEvent, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	events := r.store.logs[userID]
	result := make([]*entity.InteractionEvent, 0, len(events))
	for _, ev := range events {
		result = append(result, cloneEvent(ev))
	}

	return result, nil
}

func (r *profileRepository) FindCheckInCandidates(_ context.Context) ([]string, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var users []string
	for userID := range r.store.logs {
		if profile, ok := r.store.profiles[userID]; ok && profile.CheckInOptOut {
			continue
		}
		users = append(users, userID)
	}
	for userID, profile := range r.store.profiles {
		if _, logged := r.store.logs[userID]; logged || profile.CheckInOptOut {
			continue
		}
		users = append(users, userID)
	}
	slices.Sort(users)

	return users, nil
}

func cloneEvent(ev *entity.InteractionEvent) *entity.InteractionEvent {
	cloned := *ev
	cloned.Counterparts = slices.Clone(ev.Counterparts)
	if ev.RequestID != nil {
		id := *ev.RequestID
		cloned.RequestID = &id
	}
	if ev.GroupID != nil {
		id := *ev.GroupID
		cloned.GroupID = &id
	}
	if ev.WindowStart != nil {
		at := *ev.WindowStart
		cloned.WindowStart = &at
	}
	if ev.Score != nil {
		score := *ev.Score
		cloned.Score = &score
	}

	return &cloned
}
