// Package persistence selects the store driver backing the repositories.
package persistence

import (
	"log/slog"

	"huddle/config"
	"huddle/internal/domain/constants"
	"huddle/internal/domain/repository"
	"huddle/internal/infra/persistence/memory"
	"huddle/internal/infra/persistence/postgres"

	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// StoreParams holds the dependencies of the store.
type StoreParams struct {
	fx.In

	Lc     fx.Lifecycle
	Config *config.Config
	Logger *slog.Logger
}

// Store exposes every repository of the selected driver to the container.
type Store struct {
	fx.Out

	TxManager repository.TransactionManager
	Requests  repository.RequestRepository
	Groups    repository.GroupRepository
	Proposals repository.ProposalRepository
	Profiles  repository.ProfileRepository
}

// NewStore builds the repositories of the configured driver. An empty driver selects memory.
func NewStore(params StoreParams) (Store, error) {
	driver := params.Config.Store.Driver

	switch driver {
	case "", constants.StoreDriverMemory:
		store := memory.NewStore()
		params.Logger.Info("Using in-memory store")

		return newStore(store, memory.NewTransactionManager(store)), nil
	case constants.StoreDriverPostgres:
		db, err := postgres.New(postgres.Params{
			Lifecycle: params.Lc,
			Config:    params.Config,
			Logger:    params.Logger,
		})
		if err != nil {
			return Store{}, err
		}
		params.Logger.Info("Using PostgreSQL store")

		return newStore(postgres.NewRepositoryFactory(db), postgres.NewTransactionManager(db)), nil
	default:
		return Store{}, errors.Errorf("unsupported store driver: %s", driver)
	}
}

func newStore(factory repository.RepositoryFactory, txManager repository.TransactionManager) Store {
	return Store{
		TxManager: txManager,
		Requests:  factory.NewRequestRepository(),
		Groups:    factory.NewGroupRepository(),
		Proposals: factory.NewProposalRepository(),
		Profiles:  factory.NewProfileRepository(),
	}
}

// Module provides the persistence FX module
//
//nolint:gochecknoglobals
var Module = fx.Options(
	fx.Provide(NewStore),
)
