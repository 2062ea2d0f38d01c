package impl

import (
	"context"
	"log/slog"
	"sync"

	"huddle/config"
	deliverycontext "huddle/internal/delivery/context"
	"huddle/internal/domain/entity"
	domainerrors "huddle/internal/domain/errors"
	"huddle/internal/domain/repository"
	"huddle/internal/domain/service"
	"huddle/internal/errors"
	"huddle/internal/usecase"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"golang.org/x/sync/singleflight"
)

// DispatchServiceParams holds the dependencies of the order dispatcher.
type DispatchServiceParams struct {
	fx.In

	Groups   repository.GroupRepository
	Provider service.DeliveryProvider
	Clock    entity.Clock
	Config   *config.Config
	Logger   *slog.Logger
}

// dispatchService implements usecase.DispatchUsecase. Concurrent deliveries of the same
// group share one provider call; completed groups are remembered for the process lifetime.
type dispatchService struct {
	groups   repository.GroupRepository
	provider service.DeliveryProvider
	clock    entity.Clock
	retries  int
	logger   *slog.Logger

	flight     singleflight.Group
	mu         sync.Mutex
	dispatched map[string]string
}

// NewDispatchService creates the order dispatcher.
func NewDispatchService(params DispatchServiceParams) usecase.DispatchUsecase {
	return &dispatchService{
		groups:     params.Groups,
		provider:   params.Provider,
		clock:      params.Clock,
		retries:    params.Config.Negotiation.MaxConflictRetries,
		logger:     params.Logger,
		dispatched: make(map[string]string),
	}
}

func (srv *dispatchService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

func (srv *dispatchService) Dispatch(ctx context.Context, event *service.GroupFinalizedEvent) (*usecase.DispatchResult, error) {
	if event == nil || event.GroupID == "" {
		return nil, domainerrors.ErrValidation.WithDetails("group id is required")
	}
	if len(event.Members) == 0 {
		return nil, domainerrors.ErrValidation.WithDetails("group has no members")
	}

	v, err, shared := srv.flight.Do(event.GroupID, func() (any, error) {
		return srv.dispatch(ctx, event)
	})
	if err != nil {
		return nil, err
	}

	result := *v.(*usecase.DispatchResult)
	if shared {
		result.Duplicate = true
	}

	return &result, nil
}

func (srv *dispatchService) dispatch(ctx context.Context, event *service.GroupFinalizedEvent) (*usecase.DispatchResult, error) {
	if ref, ok := srv.known(event.GroupID); ok {
		return &usecase.DispatchResult{GroupID: event.GroupID, DeliveryRef: ref, Duplicate: true}, nil
	}

	group, err := srv.loadGroup(ctx, event.GroupID)
	if err != nil {
		return nil, errors.Join(usecase.ErrDispatchRetryable, err)
	}
	if group != nil {
		if group.DeliveryRef != "" {
			srv.remember(event.GroupID, group.DeliveryRef)

			return &usecase.DispatchResult{GroupID: event.GroupID, DeliveryRef: group.DeliveryRef, Duplicate: true}, nil
		}
		if group.Status == entity.GroupStatusCancelled {
			srv.log(ctx).Info("Skipping dispatch of cancelled group", slog.String("group_id", event.GroupID))

			return &usecase.DispatchResult{GroupID: event.GroupID, Skipped: true}, nil
		}
	}

	ref, err := srv.provider.Dispatch(ctx, *event)
	if err != nil {
		if errors.Is(err, service.ErrProviderUnavailable) {
			return nil, errors.Join(usecase.ErrDispatchRetryable, err)
		}

		return nil, errors.Wrap(err, "delivery provider rejected the order")
	}
	srv.remember(event.GroupID, ref)

	if group != nil {
		if err := srv.recordReference(ctx, group.ID, ref); err != nil {
			srv.log(ctx).Warn("Failed to record delivery reference",
				slog.String("group_id", event.GroupID), slog.String("delivery_ref", ref), slog.Any("error", err))
		}
	}

	return &usecase.DispatchResult{GroupID: event.GroupID, DeliveryRef: ref}, nil
}

// loadGroup returns nil without error when the store does not know the group, which is the
// case when the dispatcher runs against its own in-memory store.
func (srv *dispatchService) loadGroup(ctx context.Context, rawID string) (*entity.GroupSession, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, nil //nolint:nilerr // Foreign IDs are dispatched without bookkeeping.
	}

	group, err := srv.groups.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrGroupNotFound) {
			return nil, nil
		}

		return nil, errors.Wrap(err, "failed to load group")
	}

	return group, nil
}

func (srv *dispatchService) recordReference(ctx context.Context, groupID uuid.UUID, ref string) error {
	return withConflictRetry(ctx, srv.retries, func() error {
		group, err := srv.groups.FindByID(ctx, groupID)
		if err != nil {
			return err
		}
		if group.DeliveryRef != "" {
			return nil
		}

		group.DeliveryRef = ref
		group.UpdatedAt = srv.clock.Now()

		return srv.groups.UpdateIfVersion(ctx, group, group.Version)
	})
}

func (srv *dispatchService) known(groupID string) (string, bool) {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	ref, ok := srv.dispatched[groupID]

	return ref, ok
}

func (srv *dispatchService) remember(groupID, ref string) {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	srv.dispatched[groupID] = ref
}
