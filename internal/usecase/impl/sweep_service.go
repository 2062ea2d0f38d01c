package impl

import (
	"context"
	"log/slog"
	"time"

	"huddle/config"
	deliverycontext "huddle/internal/delivery/context"
	"huddle/internal/domain/entity"
	domainerrors "huddle/internal/domain/errors"
	"huddle/internal/domain/repository"
	"huddle/internal/domain/service"
	"huddle/internal/usecase"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// SweepServiceParams holds the dependencies of the time-based triggers.
type SweepServiceParams struct {
	fx.In

	Requests    repository.RequestRepository
	Profiles    repository.ProfileRepository
	Session     usecase.SessionUsecase
	Negotiation usecase.NegotiationUsecase
	Groups      usecase.GroupUsecase
	Learning    usecase.LearningUsecase
	Messenger   service.Messenger
	Clock       entity.Clock
	Config      *config.Config
	Logger      *slog.Logger
}

// sweepService implements usecase.SweepUsecase. Every transition it triggers goes
// through the session, negotiation and group usecases, so running it twice in a row
// changes nothing the second time.
type sweepService struct {
	requests    repository.RequestRepository
	profiles    repository.ProfileRepository
	session     usecase.SessionUsecase
	negotiation usecase.NegotiationUsecase
	groups      usecase.GroupUsecase
	learning    usecase.LearningUsecase
	notifier    *notifier
	clock       entity.Clock
	cfg         config.SchedulerConfig
	tz          *time.Location
	logger      *slog.Logger
}

// NewSweepService creates the time-based triggers.
func NewSweepService(params SweepServiceParams) usecase.SweepUsecase {
	tz, err := time.LoadLocation(params.Config.Scheduler.Timezone)
	if err != nil {
		tz = time.UTC
	}

	return &sweepService{
		requests:    params.Requests,
		profiles:    params.Profiles,
		session:     params.Session,
		negotiation: params.Negotiation,
		groups:      params.Groups,
		learning:    params.Learning,
		notifier:    newNotifier(params.Messenger, params.Logger),
		clock:       params.Clock,
		cfg:         params.Config.Scheduler,
		tz:          tz,
		logger:      params.Logger,
	}
}

func (srv *sweepService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

// CheckIn prompts every known user without an open request, at most once per local day.
func (srv *sweepService) CheckIn(ctx context.Context) (int, error) {
	users, err := srv.profiles.FindCheckInCandidates(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to find check-in candidates")
	}

	today := srv.clock.Now().In(srv.tz).Format(time.DateOnly)
	sent := 0
	for _, userID := range users {
		_, err := srv.session.GetActiveByUser(ctx, userID)
		if err == nil {
			continue
		}
		if !errors.Is(err, domainerrors.ErrRequestNotFound) {
			srv.log(ctx).Warn("Failed to look up open request", slog.String("user_id", userID), slog.Any("error", err))

			continue
		}

		profile, err := srv.learning.Profile(ctx, userID)
		if err != nil {
			srv.log(ctx).Warn("Failed to load profile", slog.String("user_id", userID), slog.Any("error", err))

			continue
		}
		if profile.CheckInOptOut {
			continue
		}
		if profile.LastCheckInAt != nil && profile.LastCheckInAt.In(srv.tz).Format(time.DateOnly) == today {
			continue
		}

		srv.notifier.send(ctx, userID, srv.cfg.CheckInMessage)
		if err := srv.learning.RecordCheckIn(ctx, userID); err != nil {
			srv.log(ctx).Warn("Failed to record check-in", slog.String("user_id", userID), slog.Any("error", err))
		}
		sent++
	}

	srv.log(ctx).Info("Check-in finished", slog.Int("candidates", len(users)), slog.Int("sent", sent))

	return sent, nil
}

func (srv *sweepService) ActivateScheduled(ctx context.Context) (int, error) {
	now := srv.clock.Now()
	due, err := srv.requests.Find(ctx, repository.RequestFilter{
		States:         []entity.RequestState{entity.RequestStateScheduled},
		ActivateBefore: &now,
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to find scheduled requests")
	}

	activated := 0
	for _, req := range due {
		result, err := srv.session.Activate(ctx, req.ID)
		if err != nil {
			srv.log(ctx).Warn("Failed to activate request", slog.Any("request_id", req.ID), slog.Any("error", err))

			continue
		}
		if result.State != entity.RequestStateScheduled {
			activated++
		}
	}

	return activated, nil
}

// Sweep runs every time-based trigger once.
func (srv *sweepService) Sweep(ctx context.Context) (*usecase.SweepReport, error) {
	report := &usecase.SweepReport{}

	activated, err := srv.ActivateScheduled(ctx)
	if err != nil {
		return nil, err
	}
	report.Activated = activated

	results, err := srv.negotiation.EvaluateDue(ctx, srv.clock.Now())
	if err != nil {
		return nil, err
	}
	for _, result := range results {
		if result.Outcome != usecase.RoundPending && result.Outcome != usecase.RoundClosed {
			report.RoundsResolved++
		}
	}

	if err := srv.sweepMatching(ctx, report); err != nil {
		return nil, err
	}
	if err := srv.retryHandoffs(ctx, report); err != nil {
		return nil, err
	}

	stale, err := srv.CleanupStale(ctx)
	if err != nil {
		return nil, err
	}
	report.StaleCancelled = stale

	srv.log(ctx).Debug("Sweep finished",
		slog.Int("activated", report.Activated),
		slog.Int("rounds_resolved", report.RoundsResolved),
		slog.Int("rematched", report.Rematched),
		slog.Int("expired", report.Expired),
		slog.Int("handoff_retried", report.HandoffRetried),
		slog.Int("stale_cancelled", report.StaleCancelled))

	return report, nil
}

// sweepMatching expires requests past their wait deadline and retries matching for the rest.
func (srv *sweepService) sweepMatching(ctx context.Context, report *usecase.SweepReport) error {
	matching, err := srv.requests.Find(ctx, repository.RequestFilter{
		States: []entity.RequestState{entity.RequestStateMatching},
	})
	if err != nil {
		return errors.Wrap(err, "failed to find matching requests")
	}

	for _, req := range matching {
		if !srv.clock.Now().Before(req.ExpiresAt) {
			result, err := srv.session.Expire(ctx, req.ID)
			if err != nil {
				srv.log(ctx).Warn("Failed to expire request", slog.Any("request_id", req.ID), slog.Any("error", err))

				continue
			}
			if result.State == entity.RequestStateExpired {
				report.Expired++
			}

			continue
		}

		result, err := srv.session.RunMatching(ctx, req.ID)
		if err != nil {
			srv.log(ctx).Warn("Failed to re-run matching", slog.Any("request_id", req.ID), slog.Any("error", err))

			continue
		}
		if result.State == entity.RequestStateNegotiating {
			report.Rematched++
		}
	}

	return nil
}

// retryHandoffs hands off confirmed groups whose earlier handoff failed. Members of a
// group that no longer exists go back to matching.
func (srv *sweepService) retryHandoffs(ctx context.Context, report *usecase.SweepReport) error {
	confirmed, err := srv.requests.Find(ctx, repository.RequestFilter{
		States: []entity.RequestState{entity.RequestStateConfirmed},
	})
	if err != nil {
		return errors.Wrap(err, "failed to find confirmed requests")
	}

	// Groups are created right after their members are confirmed; give a formation in
	// progress one sweep interval before treating its group as lost.
	settled := srv.clock.Now().Add(-srv.cfg.SweepInterval)
	seen := make(map[uuid.UUID]bool)
	for _, req := range confirmed {
		if req.UpdatedAt.After(settled) {
			continue
		}
		if req.GroupID == nil {
			srv.rematch(ctx, req.ID, "confirmed without a group")

			continue
		}
		if seen[*req.GroupID] {
			continue
		}
		seen[*req.GroupID] = true

		group, err := srv.groups.Get(ctx, *req.GroupID)
		if err != nil {
			if errors.Is(err, domainerrors.ErrGroupNotFound) {
				srv.rematch(ctx, req.ID, "group was never stored")
			} else {
				srv.log(ctx).Warn("Failed to load group", slog.Any("group_id", *req.GroupID), slog.Any("error", err))
			}

			continue
		}
		if group.Status != entity.GroupStatusConfirmed {
			continue
		}

		if _, err := srv.groups.Handoff(ctx, group.ID); err != nil {
			srv.log(ctx).Warn("Handoff retry failed", slog.Any("group_id", group.ID), slog.Any("error", err))

			continue
		}
		report.HandoffRetried++
	}

	return nil
}

func (srv *sweepService) rematch(ctx context.Context, requestID uuid.UUID, reason string) {
	if _, err := srv.session.ReturnToMatching(ctx, requestID, nil, reason); err != nil {
		srv.log(ctx).Warn("Failed to return request to matching", slog.Any("request_id", requestID), slog.Any("error", err))
	}
}

func (srv *sweepService) CleanupStale(ctx context.Context) (int, error) {
	cutoff := srv.clock.Now().Add(-srv.cfg.StaleAfter)
	stale, err := srv.requests.Find(ctx, repository.RequestFilter{
		States:     []entity.RequestState{entity.RequestStateAwaitingIntent},
		IdleBefore: &cutoff,
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to find stale requests")
	}

	cancelled := 0
	for _, req := range stale {
		result, err := srv.session.CancelRequest(ctx, req.ID, reasonStale)
		if err != nil {
			srv.log(ctx).Warn("Failed to cancel stale request", slog.Any("request_id", req.ID), slog.Any("error", err))

			continue
		}
		if result.State == entity.RequestStateCancelled {
			cancelled++
		}
	}

	return cancelled, nil
}
