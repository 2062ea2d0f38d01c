package impl

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"huddle/config"
	deliverycontext "huddle/internal/delivery/context"
	"huddle/internal/domain/entity"
	domainerrors "huddle/internal/domain/errors"
	"huddle/internal/domain/repository"
	"huddle/internal/usecase"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// stateMachine is the single mutation path of UserRequest. Every write is a
// version-checked read-modify-write that is retried against fresh state on conflict.
type stateMachine struct {
	requests repository.RequestRepository
	learning usecase.LearningUsecase
	notifier *notifier
	clock    entity.Clock
	cfg      *config.Config
	logger   *slog.Logger
}

func (m *stateMachine) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, m.logger)
}

// mutate loads the request, applies fn and stores the result if the version is unchanged.
// fn returning errNoChange leaves the request untouched; changed reports whether a write happened.
func (m *stateMachine) mutate(
	ctx context.Context,
	id uuid.UUID,
	fn func(req *entity.UserRequest, now time.Time) error,
) (result *entity.UserRequest, changed bool, err error) {
	err = withConflictRetry(ctx, m.cfg.Negotiation.MaxConflictRetries, func() error {
		req, findErr := m.requests.FindByID(ctx, id)
		if findErr != nil {
			return mapRequestError(findErr)
		}

		now := m.clock.Now()
		expected := req.Version
		if fnErr := fn(req, now); fnErr != nil {
			if errors.Is(fnErr, errNoChange) {
				result, changed = req, false

				return nil
			}

			return fnErr
		}

		req.UpdatedAt = now
		if updateErr := m.requests.UpdateIfVersion(ctx, req, expected); updateErr != nil {
			return updateErr
		}
		result, changed = req, true

		return nil
	})

	return result, changed, err
}

// transitionTo moves req to next if the state machine allows it.
func transitionTo(req *entity.UserRequest, next entity.RequestState) error {
	if !req.State.CanTransitionTo(next) {
		return domainerrors.ErrInvalidTransition.WithDetails(fmt.Sprintf("%s -> %s", req.State, next))
	}
	req.State = next

	return nil
}

// enterMatching starts or resumes candidate search. ExpiresAt never decreases and never
// passes HardExpiresAt.
func (m *stateMachine) enterMatching(req *entity.UserRequest, now time.Time) error {
	if err := transitionTo(req, entity.RequestStateMatching); err != nil {
		return err
	}

	if req.HardExpiresAt.IsZero() {
		hard := now.Add(m.cfg.Matching.MaxWait)
		if req.Window.Valid() && req.Window.End.Before(hard) {
			hard = req.Window.End
		}
		req.HardExpiresAt = hard
	}

	expires := now.Add(m.cfg.Matching.WaitTimeout)
	if req.ExpiresAt.After(expires) {
		expires = req.ExpiresAt
	}
	if expires.After(req.HardExpiresAt) {
		expires = req.HardExpiresAt
	}
	req.ExpiresAt = expires
	req.ActivateAt = nil
	req.RoundID = nil
	req.GroupID = nil
	req.LastActivityAt = now

	return nil
}

// terminate moves the request to a terminal state and tells the user why.
func (m *stateMachine) terminate(
	ctx context.Context,
	id uuid.UUID,
	state entity.RequestState,
	reason string,
	allow func(req *entity.UserRequest) bool,
	message func(req *entity.UserRequest) string,
) (*entity.UserRequest, bool, error) {
	req, changed, err := m.mutate(ctx, id, func(req *entity.UserRequest, now time.Time) error {
		if req.State.IsTerminal() || (allow != nil && !allow(req)) {
			return errNoChange
		}
		if err := transitionTo(req, state); err != nil {
			return err
		}
		req.Reason = reason
		req.RoundID = nil
		req.LastActivityAt = now

		return nil
	})
	if err != nil || !changed {
		return req, changed, err
	}

	m.log(ctx).Info("Request closed",
		slog.Any("request_id", req.ID),
		slog.String("user_id", req.UserID),
		slog.String("state", string(req.State)),
		slog.String("reason", reason))

	m.finish(ctx, req, message(req))

	return req, true, nil
}

// finish records the terminal outcome and sends the explicit outcome message.
func (m *stateMachine) finish(ctx context.Context, req *entity.UserRequest, text string) {
	if m.learning != nil {
		if err := m.learning.RecordTerminal(ctx, req, string(req.State)); err != nil {
			m.log(ctx).Warn("Failed to record terminal outcome", slog.Any("request_id", req.ID), slog.Any("error", err))
		}
	}
	m.notifier.send(ctx, req.UserID, text)
}

// resume sends req back to candidate search, or to expired when its hard deadline has
// passed. The counterparts in exclude are skipped for the cool-down period.
func (m *stateMachine) resume(req *entity.UserRequest, now time.Time, exclude []string) (expired bool, err error) {
	until := now.Add(m.cfg.Matching.ExclusionCooldown)
	req.PruneExclusions(now)
	for _, userID := range exclude {
		req.Exclude(userID, until)
	}

	if !req.HardExpiresAt.IsZero() && !now.Before(req.HardExpiresAt) {
		if err := transitionTo(req, entity.RequestStateExpired); err != nil {
			return false, err
		}
		req.Reason = "maximum wait reached"
		req.RoundID = nil
		req.GroupID = nil
		req.LastActivityAt = now

		return true, nil
	}

	return false, m.enterMatching(req, now)
}

// returnToMatching resumes candidate search for a negotiating or confirmed request that
// satisfies match. A request past its hard deadline expires instead.
func (m *stateMachine) returnToMatching(
	ctx context.Context,
	id uuid.UUID,
	match func(req *entity.UserRequest) bool,
	exclude []string,
	text string,
) (*entity.UserRequest, bool, error) {
	expired := false
	req, changed, err := m.mutate(ctx, id, func(req *entity.UserRequest, now time.Time) error {
		if req.State != entity.RequestStateNegotiating && req.State != entity.RequestStateConfirmed {
			return errNoChange
		}
		if match != nil && !match(req) {
			return errNoChange
		}

		var err error
		expired, err = m.resume(req, now, exclude)

		return err
	})
	if err != nil || !changed {
		return req, changed, err
	}

	m.afterResume(ctx, req, expired, text)

	return req, true, nil
}

// afterResume sends the message that belongs to the outcome of resume.
func (m *stateMachine) afterResume(ctx context.Context, req *entity.UserRequest, expired bool, text string) {
	if expired {
		m.finish(ctx, req, msgExpired(req))

		return
	}
	m.notifier.send(ctx, req.UserID, text)
}

// inRound matches requests taking part in the round.
func inRound(roundID uuid.UUID) func(req *entity.UserRequest) bool {
	return func(req *entity.UserRequest) bool {
		return req.RoundID != nil && *req.RoundID == roundID
	}
}

// inGroup matches requests that belong to the group.
func inGroup(groupID uuid.UUID) func(req *entity.UserRequest) bool {
	return func(req *entity.UserRequest) bool {
		return req.GroupID != nil && *req.GroupID == groupID
	}
}

func mapRequestError(err error) error {
	if errors.Is(err, repository.ErrRequestNotFound) {
		return errors.Wrap(domainerrors.ErrRequestNotFound, err.Error())
	}

	return err
}
