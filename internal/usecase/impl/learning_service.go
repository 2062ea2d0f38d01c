package impl

import (
	"context"
	"log/slog"
	"slices"

	"huddle/config"
	deliverycontext "huddle/internal/delivery/context"
	"huddle/internal/domain/entity"
	domainerrors "huddle/internal/domain/errors"
	"huddle/internal/domain/repository"
	"huddle/internal/usecase"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// LearningServiceParams holds the dependencies of the learning feedback hook.
type LearningServiceParams struct {
	fx.In

	TxManager repository.TransactionManager
	Clock     entity.Clock
	Config    *config.Config
	Logger    *slog.Logger
}

// learningService implements usecase.LearningUsecase on top of the append-only log.
type learningService struct {
	txManager             repository.TransactionManager
	clock                 entity.Clock
	retries               int
	satisfactionThreshold float64
	logger                *slog.Logger
}

// NewLearningService creates the learning feedback hook.
func NewLearningService(params LearningServiceParams) usecase.LearningUsecase {
	return &learningService{
		txManager:             params.TxManager,
		clock:                 params.Clock,
		retries:               params.Config.Negotiation.MaxConflictRetries,
		satisfactionThreshold: params.Config.Scoring.SatisfactionThreshold,
		logger:                params.Logger,
	}
}

func (srv *learningService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

func (srv *learningService) RecordRequestCreated(ctx context.Context, req *entity.UserRequest) error {
	ev := srv.requestEvent(req, entity.InteractionRequestCreated)
	if req.Window.Valid() {
		start := req.Window.Start
		ev.WindowStart = &start
	}

	return srv.record(ctx, ev)
}

func (srv *learningService) RecordTerminal(ctx context.Context, req *entity.UserRequest, outcome string) error {
	ev := srv.requestEvent(req, entity.InteractionTerminal)
	ev.Outcome = outcome
	ev.Reason = req.Reason

	return srv.record(ctx, ev)
}

func (srv *learningService) RecordRejection(ctx context.Context, req *entity.UserRequest, counterparts []string, reason string) error {
	if len(counterparts) == 0 {
		return nil
	}

	ev := srv.requestEvent(req, entity.InteractionRejection)
	ev.Counterparts = slices.Clone(counterparts)
	ev.Outcome = entity.OutcomeDeclined
	ev.Reason = reason

	return srv.record(ctx, ev)
}

func (srv *learningService) RecordGroupOutcome(ctx context.Context, group *entity.GroupSession, outcome string) error {
	now := srv.clock.Now()
	userIDs := group.UserIDs()

	events := make([]*entity.InteractionEvent, 0, len(group.Members))
	for _, member := range group.Members {
		groupID := group.ID
		requestID := member.RequestID
		events = append(events, &entity.InteractionEvent{
			ID:           uuid.New(),
			UserID:       member.UserID,
			Kind:         entity.InteractionGroupOutcome,
			RequestID:    &requestID,
			GroupID:      &groupID,
			Counterparts: slices.DeleteFunc(slices.Clone(userIDs), func(id string) bool { return id == member.UserID }),
			Restaurant:   group.Restaurant,
			Location:     group.Location,
			Outcome:      outcome,
			Reason:       group.Reason,
			CreatedAt:    now,
		})
	}

	return srv.record(ctx, events...)
}

func (srv *learningService) RecordSatisfaction(ctx context.Context, groupID uuid.UUID, userID string, score float64) error {
	id := groupID

	return srv.record(ctx, &entity.InteractionEvent{
		ID:        uuid.New(),
		UserID:    userID,
		Kind:      entity.InteractionSatisfaction,
		GroupID:   &id,
		Score:     &score,
		CreatedAt: srv.clock.Now(),
	})
}

func (srv *learningService) RecordCheckIn(ctx context.Context, userID string) error {
	return srv.record(ctx, &entity.InteractionEvent{
		ID:        uuid.New(),
		UserID:    userID,
		Kind:      entity.InteractionCheckIn,
		CreatedAt: srv.clock.Now(),
	})
}

func (srv *learningService) SetCheckInOptOut(ctx context.Context, userID string, optOut bool) error {
	kind := entity.InteractionOptIn
	if optOut {
		kind = entity.InteractionOptOut
	}

	return srv.record(ctx, &entity.InteractionEvent{
		ID:        uuid.New(),
		UserID:    userID,
		Kind:      kind,
		CreatedAt: srv.clock.Now(),
	})
}

func (srv *learningService) Profile(ctx context.Context, userID string) (*entity.UserProfile, error) {
	var profile *entity.UserProfile
	err := srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		var err error
		profile, err = repoFactory.NewProfileRepository().Get(ctx, userID)

		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to load profile")
	}

	return profile, nil
}

func (srv *learningService) PairHistory(ctx context.Context, a, b string) (bool, error) {
	profileA, err := srv.Profile(ctx, a)
	if err != nil {
		return false, err
	}
	profileB, err := srv.Profile(ctx, b)
	if err != nil {
		return false, err
	}

	return profileA.HadSuccessfulGroupWith(b, srv.satisfactionThreshold) ||
		profileB.HadSuccessfulGroupWith(a, srv.satisfactionThreshold), nil
}

func (srv *learningService) requestEvent(req *entity.UserRequest, kind entity.InteractionKind) *entity.InteractionEvent {
	requestID := req.ID

	return &entity.InteractionEvent{
		ID:         uuid.New(),
		UserID:     req.UserID,
		Kind:       kind,
		RequestID:  &requestID,
		Restaurant: req.Restaurant,
		Location:   req.Location,
		CreatedAt:  srv.clock.Now(),
	}
}

// record appends the events and refreshes the derived profile of every affected user
// inside one transaction.
func (srv *learningService) record(ctx context.Context, events ...*entity.InteractionEvent) error {
	err := withConflictRetry(ctx, srv.retries, func() error {
		return srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
			profiles := repoFactory.NewProfileRepository()

			var users []string
			for _, ev := range events {
				if err := profiles.AppendLog(ctx, ev); err != nil {
					return errors.Wrap(err, "failed to append interaction log")
				}
				if !slices.Contains(users, ev.UserID) {
					users = append(users, ev.UserID)
				}
			}

			for _, userID := range users {
				if err := srv.refresh(ctx, profiles, userID); err != nil {
					return err
				}
			}

			return nil
		})
	})
	if err != nil {
		srv.log(ctx).Warn("Failed to record interaction", slog.Any("error", err))

		if domainerrors.IsConflict(err) {
			return err
		}

		return errors.Wrap(err, "failed to record interaction")
	}

	return nil
}

func (srv *learningService) refresh(ctx context.Context, profiles repository.ProfileRepository, userID string) error {
	current, err := profiles.Get(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "failed to load profile")
	}

	history, err := profiles.ListLog(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "failed to list interaction log")
	}

	rebuilt := entity.Rebuild(userID, history)

	return profiles.UpdateIfVersion(ctx, rebuilt, current.Version)
}
