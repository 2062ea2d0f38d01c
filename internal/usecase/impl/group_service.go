package impl

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"huddle/config"
	deliverycontext "huddle/internal/delivery/context"
	"huddle/internal/domain/catalog"
	"huddle/internal/domain/entity"
	domainerrors "huddle/internal/domain/errors"
	"huddle/internal/domain/repository"
	"huddle/internal/domain/service"
	"huddle/internal/usecase"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// GroupServiceParams holds the dependencies of the group session manager.
type GroupServiceParams struct {
	fx.In

	Groups    repository.GroupRepository
	Requests  repository.RequestRepository
	Learning  usecase.LearningUsecase
	Publisher service.EventPublisher
	Payment   service.PaymentProvider
	QRCode    service.QRCodeService `optional:"true"`
	Messenger service.Messenger
	Catalog   *catalog.Catalog
	Clock     entity.Clock
	Config    *config.Config
	Logger    *slog.Logger
}

// groupService implements usecase.GroupUsecase.
type groupService struct {
	machine   *stateMachine
	groups    repository.GroupRepository
	requests  repository.RequestRepository
	learning  usecase.LearningUsecase
	publisher service.EventPublisher
	payment   service.PaymentProvider
	qrcode    service.QRCodeService
	notifier  *notifier
	tz        *time.Location
	clock     entity.Clock
	cfg       *config.Config
	logger    *slog.Logger
}

// NewGroupService creates the group session manager.
func NewGroupService(params GroupServiceParams) usecase.GroupUsecase {
	n := newNotifier(params.Messenger, params.Logger)

	return &groupService{
		machine: &stateMachine{
			requests: params.Requests,
			learning: params.Learning,
			notifier: n,
			clock:    params.Clock,
			cfg:      params.Config,
			logger:   params.Logger,
		},
		groups:    params.Groups,
		requests:  params.Requests,
		learning:  params.Learning,
		publisher: params.Publisher,
		payment:   params.Payment,
		qrcode:    params.QRCode,
		notifier:  n,
		tz:        params.Catalog.Timezone(),
		clock:     params.Clock,
		cfg:       params.Config,
		logger:    params.Logger,
	}
}

func (srv *groupService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

// Form checks the membership invariants and creates a confirmed group. A violation is an
// internal bug: it is logged, the members are cancelled with an apology and no group exists.
func (srv *groupService) Form(ctx context.Context, input usecase.FormGroupInput) (*entity.GroupSession, error) {
	if violation := srv.checkMembers(input); violation != "" {
		srv.log(ctx).Error("Group invariant violated",
			slog.Any("group_id", input.GroupID), slog.String("violation", violation), slog.Int("members", len(input.Members)))

		for _, m := range input.Members {
			if m == nil {
				continue
			}
			_, _, err := srv.machine.terminate(ctx, m.ID, entity.RequestStateCancelled, "internal error", nil,
				func(*entity.UserRequest) string { return msgInvariantCancelled() })
			if err != nil {
				srv.log(ctx).Warn("Failed to cancel member", slog.Any("request_id", m.ID), slog.Any("error", err))
			}
		}

		return nil, domainerrors.ErrInvariantViolation.WithDetails(violation)
	}

	now := srv.clock.Now()
	first := input.Members[0]
	group := &entity.GroupSession{
		ID:           input.GroupID,
		Restaurant:   first.Restaurant,
		Location:     first.Location,
		AgreedWindow: input.AgreedWindow,
		Status:       entity.GroupStatusForming,
		FormedAt:     now,
		UpdatedAt:    now,
	}
	for _, m := range input.Members {
		group.Members = append(group.Members, entity.GroupMember{RequestID: m.ID, UserID: m.UserID})
	}

	if err := srv.groups.Create(ctx, group); err != nil {
		return nil, errors.Wrap(err, "failed to create group")
	}

	expected := group.Version
	group.Status = entity.GroupStatusConfirmed
	if err := srv.groups.UpdateIfVersion(ctx, group, expected); err != nil {
		return nil, errors.Wrap(err, "failed to confirm group")
	}

	srv.log(ctx).Info("Group formed",
		slog.Any("group_id", group.ID),
		slog.String("restaurant", group.Restaurant),
		slog.String("location", group.Location),
		slog.Int("members", len(group.Members)))

	return group, nil
}

func (srv *groupService) checkMembers(input usecase.FormGroupInput) string {
	members := input.Members
	if len(members) < srv.cfg.Matching.MinGroupSize || len(members) > srv.cfg.Matching.MaxGroupSize {
		return fmt.Sprintf("group size %d outside [%d, %d]", len(members), srv.cfg.Matching.MinGroupSize, srv.cfg.Matching.MaxGroupSize)
	}
	if !input.AgreedWindow.Valid() {
		return "agreed window is empty"
	}

	users := make(map[string]bool, len(members))
	for i, m := range members {
		if m == nil {
			return "nil member"
		}
		if users[m.UserID] {
			return "user " + m.UserID + " appears twice"
		}
		users[m.UserID] = true

		if m.State != entity.RequestStateConfirmed || m.GroupID == nil || *m.GroupID != input.GroupID {
			return fmt.Sprintf("request %s is %s, not confirmed for the group", m.ID, m.State)
		}
		if m.Restaurant != members[0].Restaurant || m.Location != members[0].Location {
			return "members disagree on restaurant or location"
		}
		for _, other := range members[:i] {
			if m.Window.Gap(other.Window) > srv.cfg.Matching.TimeTolerance {
				return "member windows are further apart than the tolerance"
			}
		}
	}

	return ""
}

// updateGroup applies fn to the latest version of the group and stores it.
func (srv *groupService) updateGroup(
	ctx context.Context,
	groupID uuid.UUID,
	fn func(group *entity.GroupSession, now time.Time) error,
) (result *entity.GroupSession, changed bool, err error) {
	err = withConflictRetry(ctx, srv.cfg.Negotiation.MaxConflictRetries, func() error {
		group, findErr := srv.findGroup(ctx, groupID)
		if findErr != nil {
			return findErr
		}

		now := srv.clock.Now()
		expected := group.Version
		if fnErr := fn(group, now); fnErr != nil {
			if errors.Is(fnErr, errNoChange) {
				result, changed = group, false

				return nil
			}

			return fnErr
		}

		group.UpdatedAt = now
		if updateErr := srv.groups.UpdateIfVersion(ctx, group, expected); updateErr != nil {
			return updateErr
		}
		result, changed = group, true

		return nil
	})

	return result, changed, err
}

func (srv *groupService) findGroup(ctx context.Context, groupID uuid.UUID) (*entity.GroupSession, error) {
	group, err := srv.groups.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, repository.ErrGroupNotFound) {
			return nil, errors.Wrap(domainerrors.ErrGroupNotFound, err.Error())
		}

		return nil, errors.Wrap(err, "failed to find group")
	}

	return group, nil
}

func setGroupStatus(group *entity.GroupSession, next entity.GroupStatus) error {
	if !group.Status.CanTransitionTo(next) {
		return domainerrors.ErrInvalidTransition.WithDetails(fmt.Sprintf("group %s -> %s", group.Status, next))
	}
	group.Status = next

	return nil
}

// Handoff publishes the group to order processing. When publishing fails nothing changes
// and the sweep tries again later; a group is never handed off twice.
func (srv *groupService) Handoff(ctx context.Context, groupID uuid.UUID) (*entity.GroupSession, error) {
	group, err := srv.findGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	switch group.Status {
	case entity.GroupStatusConfirmed:
	case entity.GroupStatusHandedOff, entity.GroupStatusCompleted:
		return group, nil
	default:
		return nil, domainerrors.ErrInvalidTransition.WithDetails(fmt.Sprintf("group %s -> %s", group.Status, entity.GroupStatusHandedOff))
	}

	event := &service.GroupFinalizedEvent{
		RequestID:   deliverycontext.GetRequestIDFromContext(ctx),
		EventID:     group.ID.String(),
		GroupID:     group.ID.String(),
		Restaurant:  group.Restaurant,
		Location:    group.Location,
		WindowStart: group.AgreedWindow.Start,
		WindowEnd:   group.AgreedWindow.End,
		FormedAt:    group.FormedAt,
	}
	for _, m := range group.Members {
		event.Members = append(event.Members, service.GroupFinalizedMember{RequestID: m.RequestID.String(), UserID: m.UserID})
	}
	if err := srv.publisher.PublishGroupFinalized(ctx, event); err != nil {
		srv.log(ctx).Warn("Failed to publish finalized group", slog.Any("group_id", group.ID), slog.Any("error", err))

		return nil, errors.Wrap(domainerrors.ErrExternalCollaborator, err.Error())
	}

	link, err := srv.payment.PaymentLink(ctx, group.ID.String(), len(group.Members))
	if err != nil {
		srv.log(ctx).Warn("Failed to get payment link", slog.Any("group_id", group.ID), slog.Any("error", err))
	}

	group, changed, err := srv.updateGroup(ctx, groupID, func(g *entity.GroupSession, now time.Time) error {
		if g.Status != entity.GroupStatusConfirmed {
			return errNoChange
		}
		if err := setGroupStatus(g, entity.GroupStatusHandedOff); err != nil {
			return err
		}
		g.PaymentLink = link
		g.HandedOffAt = &now

		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return group, nil
	}

	srv.log(ctx).Info("Group handed off", slog.Any("group_id", group.ID), slog.Int("members", len(group.Members)))

	for _, m := range group.Members {
		req, moved, err := srv.machine.mutate(ctx, m.RequestID, func(req *entity.UserRequest, now time.Time) error {
			if req.State != entity.RequestStateConfirmed || !inGroup(group.ID)(req) {
				return errNoChange
			}
			if err := transitionTo(req, entity.RequestStateHandedOff); err != nil {
				return err
			}
			req.Reason = "order placed"
			req.LastActivityAt = now

			return nil
		})
		if err != nil {
			srv.log(ctx).Error("Failed to hand off member", slog.Any("request_id", m.RequestID), slog.Any("error", err))

			continue
		}
		if moved {
			srv.machine.finish(ctx, req, msgHandedOff(group, link, srv.tz))
		}
	}

	if err := srv.learning.RecordGroupOutcome(ctx, group, entity.OutcomeHandedOff); err != nil {
		srv.log(ctx).Warn("Failed to record group outcome", slog.Any("group_id", group.ID), slog.Any("error", err))
	}

	return group, nil
}

// Cancel dissolves the group. Before handoff the remaining members go back to matching;
// after handoff they are told the order is off.
func (srv *groupService) Cancel(ctx context.Context, groupID uuid.UUID, userID, reason string) (*entity.GroupSession, error) {
	if reason == "" {
		reason = "cancelled"
	}

	var before entity.GroupStatus
	group, changed, err := srv.updateGroup(ctx, groupID, func(g *entity.GroupSession, now time.Time) error {
		if userID != "" && !g.HasUser(userID) {
			return errors.Wrap(domainerrors.ErrForbidden, "not a member of the group")
		}
		if g.Status.IsTerminal() {
			return errNoChange
		}
		before = g.Status
		if err := setGroupStatus(g, entity.GroupStatusCancelled); err != nil {
			return err
		}
		g.Reason = reason
		g.ClosedAt = &now

		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return group, nil
	}

	srv.log(ctx).Info("Group cancelled",
		slog.Any("group_id", group.ID), slog.String("by", userID), slog.String("reason", reason))

	if before == entity.GroupStatusHandedOff {
		srv.notifier.broadcast(ctx, group.UserIDs(), func(string) string { return msgGroupCancelled(group) })
	} else {
		for _, m := range group.Members {
			if m.UserID == userID {
				_, _, err = srv.machine.terminate(ctx, m.RequestID, entity.RequestStateCancelled, reason, inGroup(group.ID),
					func(*entity.UserRequest) string { return msgCancelled(reason) })
			} else {
				var exclude []string
				if userID != "" {
					exclude = []string{userID}
				}
				_, _, err = srv.machine.returnToMatching(ctx, m.RequestID, inGroup(group.ID), exclude, msgGroupDissolved())
			}
			if err != nil {
				srv.log(ctx).Warn("Failed to release group member", slog.Any("request_id", m.RequestID), slog.Any("error", err))
			}
		}
	}

	if err := srv.learning.RecordGroupOutcome(ctx, group, entity.OutcomeCancelled); err != nil {
		srv.log(ctx).Warn("Failed to record group outcome", slog.Any("group_id", group.ID), slog.Any("error", err))
	}

	return group, nil
}

func (srv *groupService) Complete(ctx context.Context, groupID uuid.UUID) (*entity.GroupSession, error) {
	group, changed, err := srv.updateGroup(ctx, groupID, func(g *entity.GroupSession, now time.Time) error {
		if g.Status == entity.GroupStatusCompleted {
			return errNoChange
		}
		if err := setGroupStatus(g, entity.GroupStatusCompleted); err != nil {
			return err
		}
		g.ClosedAt = &now

		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		srv.log(ctx).Info("Group completed", slog.Any("group_id", group.ID))
		if err := srv.learning.RecordGroupOutcome(ctx, group, entity.OutcomeCompleted); err != nil {
			srv.log(ctx).Warn("Failed to record group outcome", slog.Any("group_id", group.ID), slog.Any("error", err))
		}
	}

	return group, nil
}

func (srv *groupService) Feedback(ctx context.Context, groupID uuid.UUID, userID string, score float64) error {
	if score < 1 || score > 5 {
		return domainerrors.ErrValidation.WithDetails("score must be between 1 and 5")
	}

	group, err := srv.findGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if !group.HasUser(userID) {
		return errors.Wrap(domainerrors.ErrForbidden, "not a member of the group")
	}
	if group.Status != entity.GroupStatusHandedOff && group.Status != entity.GroupStatusCompleted {
		return domainerrors.ErrValidation.WithDetails("feedback is only accepted after the order was placed")
	}

	return srv.learning.RecordSatisfaction(ctx, groupID, userID, score)
}

func (srv *groupService) Get(ctx context.Context, groupID uuid.UUID) (*entity.GroupSession, error) {
	return srv.findGroup(ctx, groupID)
}

func (srv *groupService) PaymentQR(ctx context.Context, groupID uuid.UUID) ([]byte, error) {
	if srv.qrcode == nil {
		return nil, errors.Wrap(domainerrors.ErrNotFound, "qr code rendering is not configured")
	}

	group, err := srv.findGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.PaymentLink == "" {
		return nil, errors.Wrap(domainerrors.ErrNotFound, "group has no payment link yet")
	}

	png, err := srv.qrcode.Encode(group.PaymentLink)
	if err != nil {
		return nil, errors.Wrap(err, "failed to render payment qr code")
	}

	return png, nil
}
