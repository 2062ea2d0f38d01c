package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"huddle/internal/domain/entity"
	"huddle/internal/domain/repository"

	"github.com/google/uuid"
)

type requestRepository struct {
	store   *Store
	journal *journal
}

// NewRequestRepository creates a request repository over the store.
func NewRequestRepository(store *Store) repository.RequestRepository {
	return &requestRepository{store: store}
}

func (r *requestRepository) Create(_ context.Context, req *entity.UserRequest) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if !req.State.IsTerminal() {
		for _, existing := range r.store.requests {
			if existing.UserID == req.UserID && !existing.State.IsTerminal() {
				return repository.ErrActiveRequestExists
			}
		}
	}

	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	req.Version = 1
	put(r.journal, r.store.requests, req.ID, req.Clone())

	return nil
}

func (r *requestRepository) FindByID(_ context.Context, id uuid.UUID) (*entity.UserRequest, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	req, ok := r.store.requests[id]
	if !ok {
		return nil, repository.ErrRequestNotFound
	}

	return req.Clone(), nil
}

func (r *requestRepository) FindActiveByUser(_ context.Context, userID string) (*entity.UserRequest, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for _, req := range r.store.requests {
		if req.UserID == userID && !req.State.IsTerminal() {
			return req.Clone(), nil
		}
	}

	return nil, repository.ErrRequestNotFound
}

func (r *requestRepository) Find(_ context.Context, filter repository.RequestFilter) ([]*entity.UserRequest, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var result []*entity.UserRequest
	for _, req := range r.store.requests {
		if matchesFilter(req, filter) {
			result = append(result, req.Clone())
		}
	}

	slices.SortFunc(result, func(a, b *entity.UserRequest) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}

		return cmp.Compare(a.ID.String(), b.ID.String())
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}

	return result, nil
}

func (r *requestRepository) UpdateIfVersion(_ context.Context, req *entity.UserRequest, expected int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	current, ok := r.store.requests[req.ID]
	if !ok {
		return repository.ErrRequestNotFound
	}
	if current.Version != expected {
		return repository.ErrVersionConflict
	}

	req.Version = expected + 1
	put(r.journal, r.store.requests, req.ID, req.Clone())

	return nil
}

func matchesFilter(req *entity.UserRequest, filter repository.RequestFilter) bool {
	if len(filter.States) > 0 && !slices.Contains(filter.States, req.State) {
		return false
	}
	if filter.Restaurant != "" && !strings.EqualFold(filter.Restaurant, req.Restaurant) {
		return false
	}
	if filter.Location != "" && !strings.EqualFold(filter.Location, req.Location) {
		return false
	}
	if filter.ExcludeUserID != "" && req.UserID == filter.ExcludeUserID {
		return false
	}
	if filter.ExpiresBefore != nil && (req.ExpiresAt.IsZero() || !req.ExpiresAt.Before(*filter.ExpiresBefore)) {
		return false
	}
	if filter.ActivateBefore != nil && (req.ActivateAt == nil || req.ActivateAt.After(*filter.ActivateBefore)) {
		return false
	}
	if filter.IdleBefore != nil && !req.LastActivityAt.Before(*filter.IdleBefore) {
		return false
	}

	return true
}
