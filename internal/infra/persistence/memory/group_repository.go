package memory

import (
	"context"
	"slices"

	"huddle/internal/domain/entity"
	"huddle/internal/domain/repository"

	"github.com/google/uuid"
)

type groupRepository struct {
	store   *Store
	journal *journal
}

// NewGroupRepository creates a group repository over the store.
func NewGroupRepository(store *Store) repository.GroupRepository {
	return &groupRepository{store: store}
}

func (r *groupRepository) Create(_ context.Context, group *entity.GroupSession) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if group.ID == uuid.Nil {
		group.ID = uuid.New()
	}
	group.Version = 1
	put(r.journal, r.store.groups, group.ID, group.Clone())

	return nil
}

func (r *groupRepository) FindByID(_ context.Context, id uuid.UUID) (*entity.GroupSession, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	group, ok := r.store.groups[id]
	if !ok {
		return nil, repository.ErrGroupNotFound
	}

	return group.Clone(), nil
}

func (r *groupRepository) FindByMember(_ context.Context, userID string) ([]*entity.GroupSession, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var result []*entity.GroupSession
	for _, group := range r.store.groups {
		if group.HasUser(userID) {
			result = append(result, group.Clone())
		}
	}

	slices.SortFunc(result, func(a, b *entity.GroupSession) int {
		return b.FormedAt.Compare(a.FormedAt)
	})

	return result, nil
}

func (r *groupRepository) UpdateIfVersion(_ context.Context, group *entity.GroupSession, expected int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	current, ok := r.store.groups[group.ID]
	if !ok {
		return repository.ErrGroupNotFound
	}
	if current.Version != expected {
		return repository.ErrVersionConflict
	}

	group.Version = expected + 1
	put(r.journal, r.store.groups, group.ID, group.Clone())

	return nil
}
