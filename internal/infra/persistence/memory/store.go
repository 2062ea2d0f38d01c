// Package memory implements the repositories on process memory. It backs the mock
// collaborator mode and the usecase tests.
package memory

import (
	"context"
	"slices"
	"sync"

	"huddle/internal/domain/entity"
	"huddle/internal/domain/repository"

	"github.com/google/uuid"
)

// Store holds every entity. Values are cloned on the way in and out so callers never
// share pointers with the store.
type Store struct {
	mu        sync.RWMutex
	requests  map[uuid.UUID]*entity.UserRequest
	groups    map[uuid.UUID]*entity.GroupSession
	proposals map[uuid.UUID]*entity.NegotiationProposal
	profiles  map[string]*entity.UserProfile
	logs      map[string][]*entity.InteractionEvent

	txMu sync.Mutex
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		requests:  make(map[uuid.UUID]*entity.UserRequest),
		groups:    make(map[uuid.UUID]*entity.GroupSession),
		proposals: make(map[uuid.UUID]*entity.NegotiationProposal),
		profiles:  make(map[string]*entity.UserProfile),
		logs:      make(map[string][]*entity.InteractionEvent),
	}
}

// NewRequestRepository returns the request repository of the store.
func (s *Store) NewRequestRepository() repository.RequestRepository {
	return &requestRepository{store: s}
}

// NewGroupRepository returns the group repository of the store.
func (s *Store) NewGroupRepository() repository.GroupRepository {
	return &groupRepository{store: s}
}

// NewProposalRepository returns the proposal repository of the store.
func (s *Store) NewProposalRepository() repository.ProposalRepository {
	return &proposalRepository{store: s}
}

// NewProfileRepository returns the profile repository of the store.
func (s *Store) NewProfileRepository() repository.ProfileRepository {
	return &profileRepository{store: s}
}

// journal records how to undo the writes of one transaction. Entries are added and
// replayed while holding the store lock.
type journal struct {
	undo []func()
}

// put stores value under key and journals its reversal. An undo is skipped when a
// write outside the transaction has replaced value since.
func put[K comparable, V any](j *journal, m map[K]*V, key K, value *V) {
	prev, existed := m[key]
	m[key] = value
	if j == nil {
		return
	}

	j.undo = append(j.undo, func() {
		if m[key] != value {
			return
		}
		if existed {
			m[key] = prev
		} else {
			delete(m, key)
		}
	})
}

func (s *Store) appendLog(j *journal, event *entity.InteractionEvent) {
	s.logs[event.UserID] = append(s.logs[event.UserID], event)
	if j == nil {
		return
	}

	j.undo = append(j.undo, func() {
		s.logs[event.UserID] = slices.DeleteFunc(s.logs[event.UserID], func(ev *entity.InteractionEvent) bool {
			return ev == event
		})
		if len(s.logs[event.UserID]) == 0 {
			delete(s.logs, event.UserID)
		}
	})
}

func (s *Store) rollback(j *journal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
}

// txRepositories binds the repositories of one transaction to its journal.
type txRepositories struct {
	store   *Store
	journal *journal
}

func (f *txRepositories) NewRequestRepository() repository.RequestRepository {
	return &requestRepository{store: f.store, journal: f.journal}
}

func (f *txRepositories) NewGroupRepository() repository.GroupRepository {
	return &groupRepository{store: f.store, journal: f.journal}
}

func (f *txRepositories) NewProposalRepository() repository.ProposalRepository {
	return &proposalRepository{store: f.store, journal: f.journal}
}

func (f *txRepositories) NewProfileRepository() repository.ProfileRepository {
	return &profileRepository{store: f.store, journal: f.journal}
}

type transactionManager struct {
	store *Store
}

// NewTransactionManager serializes transactions on the store and rolls back on error.
func NewTransactionManager(store *Store) repository.TransactionManager {
	return &transactionManager{store: store}
}

// Execute runs fn with repositories bound to the transaction. When fn fails or panics
// only the writes made through those repositories are undone.
func (tm *transactionManager) Execute(ctx context.Context, fn func(txRepoFactory repository.RepositoryFactory) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tm.store.txMu.Lock()
	defer tm.store.txMu.Unlock()

	tx := &txRepositories{store: tm.store, journal: &journal{}}

	committed := false
	defer func() {
		if !committed {
			tm.store.rollback(tx.journal)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	committed = true

	return nil
}
