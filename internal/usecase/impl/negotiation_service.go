package impl

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
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

// NegotiationServiceParams holds the dependencies of the negotiation protocol.
type NegotiationServiceParams struct {
	fx.In

	Requests  repository.RequestRepository
	Proposals repository.ProposalRepository
	Groups    usecase.GroupUsecase
	Learning  usecase.LearningUsecase
	Messenger service.Messenger
	Tokens    service.ActionTokenService `optional:"true"`
	Catalog   *catalog.Catalog
	Clock     entity.Clock
	Config    *config.Config
	Logger    *slog.Logger
}

// negotiationService implements usecase.NegotiationUsecase.
type negotiationService struct {
	machine   *stateMachine
	requests  repository.RequestRepository
	proposals repository.ProposalRepository
	groups    usecase.GroupUsecase
	learning  usecase.LearningUsecase
	notifier  *notifier
	links     *actionLinks
	tz        *time.Location
	clock     entity.Clock
	cfg       *config.Config
	logger    *slog.Logger
}

// NewNegotiationService creates the negotiation protocol.
func NewNegotiationService(params NegotiationServiceParams) usecase.NegotiationUsecase {
	n := newNotifier(params.Messenger, params.Logger)

	return &negotiationService{
		machine: &stateMachine{
			requests: params.Requests,
			learning: params.Learning,
			notifier: n,
			clock:    params.Clock,
			cfg:      params.Config,
			logger:   params.Logger,
		},
		requests:  params.Requests,
		proposals: params.Proposals,
		groups:    params.Groups,
		learning:  params.Learning,
		notifier:  n,
		links: &actionLinks{
			tokens:  params.Tokens,
			baseURL: params.Config.HTTP.PublicBaseURL,
			ttl:     params.Config.Negotiation.ActionLinkTTL,
			logger:  params.Logger,
		},
		tz:     params.Catalog.Timezone(),
		clock:  params.Clock,
		cfg:    params.Config,
		logger: params.Logger,
	}
}

func (srv *negotiationService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

// Propose claims the initiator, then each candidate in rank order, and sends a proposal
// to every claimed candidate. Candidates that are no longer matchable are skipped.
func (srv *negotiationService) Propose(ctx context.Context, initiatorID uuid.UUID, candidates []entity.Candidate) (uuid.UUID, error) {
	if len(candidates) == 0 {
		return uuid.Nil, nil
	}

	roundID := uuid.New()
	initiator, claimed, err := srv.machine.mutate(ctx, initiatorID, func(req *entity.UserRequest, now time.Time) error {
		if req.State != entity.RequestStateMatching {
			return errNoChange
		}
		if err := transitionTo(req, entity.RequestStateNegotiating); err != nil {
			return err
		}
		req.RoundID = &roundID
		req.LastActivityAt = now

		return nil
	})
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "failed to claim initiator")
	}
	if !claimed {
		return uuid.Nil, nil
	}

	now := srv.clock.Now()
	expiresAt := now.Add(srv.cfg.Negotiation.Window)
	tolerance := srv.cfg.Matching.TimeTolerance

	var sent []*entity.NegotiationProposal
	for _, candidate := range candidates {
		if len(sent) >= srv.cfg.Matching.MaxGroupSize-1 {
			break
		}

		target, ok, err := srv.claimTarget(ctx, candidate.Request.ID, initiator, roundID)
		if err != nil {
			srv.log(ctx).Warn("Failed to claim candidate", slog.Any("request_id", candidate.Request.ID), slog.Any("error", err))

			continue
		}
		if !ok {
			continue
		}

		window, ok := entity.CommonWindow([]entity.TimeWindow{initiator.Window, target.Window}, tolerance)
		if !ok {
			srv.release(ctx, target.ID, roundID)

			continue
		}

		proposal := &entity.NegotiationProposal{
			ID:                 uuid.New(),
			RoundID:            roundID,
			Round:              1,
			InitiatorRequestID: initiator.ID,
			InitiatorUserID:    initiator.UserID,
			TargetRequestID:    target.ID,
			TargetUserID:       target.UserID,
			Terms: entity.ProposalTerms{
				Restaurant: initiator.Restaurant,
				Location:   initiator.Location,
				Window:     window,
			},
			Score:     candidate.Score.Score,
			Response:  entity.ProposalPending,
			ExpiresAt: expiresAt,
			CreatedAt: now,
		}
		if err := srv.proposals.Create(ctx, proposal); err != nil {
			srv.log(ctx).Error("Failed to create proposal", slog.Any("round_id", roundID), slog.Any("error", err))
			srv.release(ctx, target.ID, roundID)

			continue
		}
		sent = append(sent, proposal)
	}

	if len(sent) == 0 {
		srv.release(ctx, initiator.ID, roundID)

		return uuid.Nil, nil
	}

	srv.log(ctx).Info("Negotiation round opened",
		slog.Any("round_id", roundID),
		slog.Any("initiator_request_id", initiator.ID),
		slog.Int("proposals", len(sent)))

	for _, p := range sent {
		srv.sendProposal(ctx, p)
	}
	cancel := srv.links.linkFor(ctx, initiator.UserID, service.ActionCancel, initiator.ID, initiator.Window.End.Sub(srv.clock.Now()))
	srv.notifier.send(ctx, initiator.UserID, msgWaitingReplies(len(sent), cancel))

	return roundID, nil
}

func (srv *negotiationService) claimTarget(
	ctx context.Context,
	targetID uuid.UUID,
	initiator *entity.UserRequest,
	roundID uuid.UUID,
) (*entity.UserRequest, bool, error) {
	return srv.machine.mutate(ctx, targetID, func(req *entity.UserRequest, now time.Time) error {
		if req.State != entity.RequestStateMatching ||
			req.UserID == initiator.UserID ||
			req.IsExcluded(initiator.UserID, now) ||
			initiator.IsExcluded(req.UserID, now) ||
			req.Restaurant != initiator.Restaurant ||
			req.Location != initiator.Location {
			return errNoChange
		}
		if err := transitionTo(req, entity.RequestStateNegotiating); err != nil {
			return err
		}
		req.RoundID = &roundID
		req.LastActivityAt = now

		return nil
	})
}

// release undoes a claim without touching deadlines or sending messages.
func (srv *negotiationService) release(ctx context.Context, requestID, roundID uuid.UUID) {
	_, _, err := srv.machine.mutate(ctx, requestID, func(req *entity.UserRequest, _ time.Time) error {
		if req.State != entity.RequestStateNegotiating || !inRound(roundID)(req) {
			return errNoChange
		}
		req.State = entity.RequestStateMatching
		req.RoundID = nil

		return nil
	})
	if err != nil {
		srv.log(ctx).Warn("Failed to release claimed request", slog.Any("request_id", requestID), slog.Any("error", err))
	}
}

func (srv *negotiationService) sendProposal(ctx context.Context, p *entity.NegotiationProposal) {
	accept := srv.links.link(ctx, p.TargetUserID, service.ActionAccept, p.ID)
	decline := srv.links.link(ctx, p.TargetUserID, service.ActionDecline, p.ID)
	srv.notifier.send(ctx, p.TargetUserID, msgProposal(p, srv.tz, accept, decline))
}

// Respond records the answer of the proposal target. Concurrent answers to one proposal
// are ordered by the version check: the first write wins and later ones see a closed proposal.
func (srv *negotiationService) Respond(ctx context.Context, proposalID uuid.UUID, userID string, reply usecase.ProposalReply) (*usecase.RoundResult, error) {
	switch reply.Response {
	case entity.ProposalAccepted, entity.ProposalDeclined:
	case entity.ProposalCountered:
		if reply.CounterWindow == nil || !reply.CounterWindow.Valid() {
			return nil, domainerrors.ErrValidation.WithDetails("a counter-proposal needs a valid time window")
		}
	default:
		return nil, domainerrors.ErrValidation.WithDetails("response must be accepted, declined or countered")
	}

	var (
		answered  *entity.NegotiationProposal
		duplicate bool
	)
	err := withConflictRetry(ctx, srv.cfg.Negotiation.MaxConflictRetries, func() error {
		duplicate = false

		p, err := srv.proposals.FindByID(ctx, proposalID)
		if err != nil {
			if errors.Is(err, repository.ErrProposalNotFound) {
				return errors.Wrap(domainerrors.ErrProposalNotFound, err.Error())
			}

			return errors.Wrap(err, "failed to find proposal")
		}
		if p.TargetUserID != userID {
			return errors.Wrap(domainerrors.ErrForbidden, "proposal addressed to another user")
		}
		if !p.IsPending() {
			if p.Response == reply.Response {
				answered, duplicate = p, true

				return nil
			}

			return domainerrors.ErrProposalClosed.WithDetails(string(p.Response))
		}

		now := srv.clock.Now()
		if !now.Before(p.ExpiresAt) {
			return domainerrors.ErrProposalClosed.WithDetails("expired")
		}

		expected := p.Version
		p.Response = reply.Response
		p.Reason = reply.Reason
		p.RespondedAt = &now
		if reply.Response == entity.ProposalCountered {
			w := *reply.CounterWindow
			p.CounterWindow = &w
		}
		if err := srv.proposals.UpdateIfVersion(ctx, p, expected); err != nil {
			return err
		}
		answered = p

		return nil
	})
	if err != nil {
		return nil, err
	}

	if !duplicate {
		srv.log(ctx).Info("Proposal answered",
			slog.Any("proposal_id", answered.ID),
			slog.Any("round_id", answered.RoundID),
			slog.String("response", string(answered.Response)))

		if answered.Response == entity.ProposalDeclined {
			srv.recordDecline(ctx, answered)
		}
		srv.notifier.send(ctx, userID, msgReplyRecorded(answered.Response))
	}

	return srv.Evaluate(ctx, answered.RoundID)
}

func (srv *negotiationService) recordDecline(ctx context.Context, p *entity.NegotiationProposal) {
	target, err := srv.requests.FindByID(ctx, p.TargetRequestID)
	if err == nil {
		err = srv.learning.RecordRejection(ctx, target, []string{p.InitiatorUserID}, p.Reason)
	}
	if err != nil {
		srv.log(ctx).Warn("Failed to record rejection", slog.Any("proposal_id", p.ID), slog.Any("error", err))
	}
}

// Evaluate resolves the round when possible. The decision is committed by a
// version-checked write of the initiator, so only one evaluator resolves a round;
// a losing evaluator starts over against fresh state.
func (srv *negotiationService) Evaluate(ctx context.Context, roundID uuid.UUID) (*usecase.RoundResult, error) {
	var result *usecase.RoundResult
	err := withConflictRetry(ctx, srv.cfg.Negotiation.MaxConflictRetries+1, func() error {
		var err error
		result, err = srv.evaluateOnce(ctx, roundID)

		return err
	})
	if err != nil {
		srv.log(ctx).Error("Failed to evaluate negotiation round", slog.Any("round_id", roundID), slog.Any("error", err))

		return nil, err
	}

	return result, nil
}

type roundView struct {
	roundID   uuid.UUID
	number    int
	current   []*entity.NegotiationProposal
	initiator *entity.UserRequest
	version   int64 // Version of the initiator when the round was read.
	targets   map[uuid.UUID]*entity.UserRequest
}

func (srv *negotiationService) evaluateOnce(ctx context.Context, roundID uuid.UUID) (*usecase.RoundResult, error) {
	view, err := srv.loadRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if view == nil {
		return &usecase.RoundResult{RoundID: roundID, Outcome: usecase.RoundClosed}, nil
	}

	initiator := view.initiator
	switch {
	case initiator.State == entity.RequestStateNegotiating && inRound(roundID)(initiator):
	case initiator.State == entity.RequestStateConfirmed && inRound(roundID)(initiator):
		// Another evaluator is forming the group.
		return &usecase.RoundResult{RoundID: roundID, Outcome: usecase.RoundClosed}, nil
	default:
		return srv.abort(ctx, view)
	}

	if err := srv.settlePending(ctx, view); err != nil {
		return nil, err
	}

	accepted := filterProposals(view.current, entity.ProposalAccepted)
	countered := filterProposals(view.current, entity.ProposalCountered)
	pending := filterProposals(view.current, entity.ProposalPending)
	maxOthers := srv.cfg.Matching.MaxGroupSize - 1

	if len(pending) > 0 && len(accepted) < maxOthers {
		return &usecase.RoundResult{RoundID: roundID, Outcome: usecase.RoundPending}, nil
	}

	if 1+len(accepted) >= srv.cfg.Matching.MinGroupSize {
		return srv.resolveConsensus(ctx, view, accepted)
	}

	if counter := srv.pickCounter(view, countered); counter != nil {
		return srv.openCounterRound(ctx, view, counter, accepted, countered)
	}

	return srv.resolveFailure(ctx, view, accepted)
}

func (srv *negotiationService) loadRound(ctx context.Context, roundID uuid.UUID) (*roundView, error) {
	all, err := srv.proposals.FindByRound(ctx, roundID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load round proposals")
	}
	if len(all) == 0 {
		return nil, nil
	}

	view := &roundView{roundID: roundID, targets: make(map[uuid.UUID]*entity.UserRequest)}
	for _, p := range all {
		view.number = max(view.number, p.Round)
	}
	for _, p := range all {
		if p.Round == view.number {
			view.current = append(view.current, p)
		}
	}

	initiator, err := srv.requests.FindByID(ctx, view.current[0].InitiatorRequestID)
	if err != nil {
		return nil, errors.Wrap(mapRequestError(err), "failed to load initiator")
	}
	view.initiator = initiator
	view.version = initiator.Version

	for _, p := range view.current {
		target, err := srv.requests.FindByID(ctx, p.TargetRequestID)
		if err != nil {
			if errors.Is(err, repository.ErrRequestNotFound) {
				continue
			}

			return nil, errors.Wrap(err, "failed to load proposal target")
		}
		view.targets[target.ID] = target
	}

	return view, nil
}

// settlePending auto-declines proposals whose target left the round and marks proposals
// past their expiry as implicit declines.
func (srv *negotiationService) settlePending(ctx context.Context, view *roundView) error {
	now := srv.clock.Now()
	for _, p := range view.current {
		if !p.IsPending() {
			continue
		}

		target := view.targets[p.TargetRequestID]
		var response entity.ProposalResponse
		var reason string
		switch {
		case target == nil || target.State != entity.RequestStateNegotiating || !inRound(view.roundID)(target):
			response, reason = entity.ProposalDeclined, "request closed"
		case !now.Before(p.ExpiresAt):
			response, reason = entity.ProposalExpired, "no response"
		default:
			continue
		}

		expected := p.Version
		p.Response = response
		p.Reason = reason
		p.RespondedAt = &now
		if err := srv.proposals.UpdateIfVersion(ctx, p, expected); err != nil {
			return err
		}
	}

	return nil
}

// pickCounter returns the earliest counter-proposal whose time suits the initiator,
// if another round is still allowed.
func (srv *negotiationService) pickCounter(view *roundView, countered []*entity.NegotiationProposal) *entity.NegotiationProposal {
	if view.number >= srv.cfg.Negotiation.MaxRounds {
		return nil
	}

	sortByResponse(countered)
	for _, p := range countered {
		if p.CounterWindow != nil && view.initiator.Window.Gap(*p.CounterWindow) <= srv.cfg.Matching.TimeTolerance {
			return p
		}
	}

	return nil
}

func (srv *negotiationService) resolveConsensus(
	ctx context.Context,
	view *roundView,
	accepted []*entity.NegotiationProposal,
) (*usecase.RoundResult, error) {
	tolerance := srv.cfg.Matching.TimeTolerance
	sortByResponse(accepted)

	windows := []entity.TimeWindow{srv.memberWindow(view, view.initiator)}
	var joined []*entity.NegotiationProposal
	for _, p := range accepted {
		if 1+len(joined) >= srv.cfg.Matching.MaxGroupSize {
			break
		}
		target := view.targets[p.TargetRequestID]
		if target == nil {
			continue
		}
		candidate := append(slices.Clone(windows), srv.memberWindow(view, target))
		if _, ok := entity.CommonWindow(candidate, tolerance); !ok {
			continue
		}
		windows = candidate
		joined = append(joined, p)
	}
	if 1+len(joined) < srv.cfg.Matching.MinGroupSize {
		return srv.resolveFailure(ctx, view, accepted)
	}

	agreed, _ := entity.CommonWindow(windows, tolerance)
	if view.number > 1 {
		agreed = view.current[0].Terms.Window
	}

	groupID := uuid.New()
	initiator := view.initiator
	if err := srv.confirm(initiator, groupID, view, agreed); err != nil {
		return nil, err
	}
	if err := srv.requests.UpdateIfVersion(ctx, initiator, view.version); err != nil {
		return nil, err
	}

	members := []*entity.UserRequest{initiator}
	for _, p := range joined {
		member, changed, err := srv.machine.mutate(ctx, p.TargetRequestID, func(req *entity.UserRequest, now time.Time) error {
			if req.State != entity.RequestStateNegotiating || !inRound(view.roundID)(req) {
				return errNoChange
			}
			req.LastActivityAt = now

			return srv.confirm(req, groupID, view, agreed)
		})
		if err != nil {
			srv.log(ctx).Warn("Failed to confirm group member", slog.Any("request_id", p.TargetRequestID), slog.Any("error", err))

			continue
		}
		if changed {
			members = append(members, member)
		}
	}

	memberIDs := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		memberIDs = append(memberIDs, m.ID)
	}
	defer srv.releaseOthers(ctx, view, memberIDs)

	if len(members) < srv.cfg.Matching.MinGroupSize {
		for _, m := range members {
			if _, _, err := srv.machine.returnToMatching(ctx, m.ID, inGroup(groupID), nil, msgNegotiationFailed()); err != nil {
				srv.log(ctx).Warn("Failed to return member to matching", slog.Any("request_id", m.ID), slog.Any("error", err))
			}
		}

		return &usecase.RoundResult{RoundID: view.roundID, Outcome: usecase.RoundFailed}, nil
	}

	group, err := srv.groups.Form(ctx, usecase.FormGroupInput{GroupID: groupID, Members: members, AgreedWindow: agreed})
	if err != nil {
		if domainerrors.IsInvariantViolation(err) {
			return &usecase.RoundResult{RoundID: view.roundID, Outcome: usecase.RoundFailed}, nil
		}

		return nil, errors.Wrap(err, "failed to form group")
	}

	srv.log(ctx).Info("Negotiation reached consensus",
		slog.Any("round_id", view.roundID), slog.Any("group_id", group.ID), slog.Int("members", len(members)))

	if handedOff, err := srv.groups.Handoff(ctx, group.ID); err != nil {
		srv.log(ctx).Warn("Group handoff deferred to sweep", slog.Any("group_id", group.ID), slog.Any("error", err))
	} else {
		group = handedOff
	}

	return &usecase.RoundResult{RoundID: view.roundID, Outcome: usecase.RoundConsensus, Group: group}, nil
}

// memberWindow is the window a member committed to in this round. Counter rounds replace
// the original windows with the agreed counter time.
func (srv *negotiationService) memberWindow(view *roundView, req *entity.UserRequest) entity.TimeWindow {
	if view.number > 1 {
		return view.current[0].Terms.Window
	}

	return req.Window
}

func (srv *negotiationService) confirm(req *entity.UserRequest, groupID uuid.UUID, view *roundView, agreed entity.TimeWindow) error {
	if err := transitionTo(req, entity.RequestStateConfirmed); err != nil {
		return err
	}
	req.GroupID = &groupID
	if view.number > 1 {
		req.Window = agreed
	}
	now := srv.clock.Now()
	req.UpdatedAt = now
	req.LastActivityAt = now

	return nil
}

// releaseOthers withdraws the remaining pending proposals and returns every target that
// did not join the group to matching. Targets that declined or let the offer expire are
// kept away from the initiator for the cool-down period.
func (srv *negotiationService) releaseOthers(ctx context.Context, view *roundView, members []uuid.UUID) {
	for _, p := range view.current {
		if slices.Contains(members, p.TargetRequestID) {
			continue
		}
		if p.IsPending() {
			srv.withdraw(ctx, p)
		}

		var exclude []string
		if p.Response == entity.ProposalDeclined || p.Response == entity.ProposalExpired || p.Response == entity.ProposalCountered {
			exclude = []string{view.initiator.UserID}
		}
		if _, _, err := srv.machine.returnToMatching(ctx, p.TargetRequestID, inRound(view.roundID), exclude, msgNegotiationFailed()); err != nil {
			srv.log(ctx).Warn("Failed to return target to matching", slog.Any("request_id", p.TargetRequestID), slog.Any("error", err))
		}
	}
}

func (srv *negotiationService) withdraw(ctx context.Context, p *entity.NegotiationProposal) {
	if !p.IsPending() {
		return
	}

	now := srv.clock.Now()
	expected := p.Version
	p.Response = entity.ProposalWithdrawn
	p.RespondedAt = &now
	if err := srv.proposals.UpdateIfVersion(ctx, p, expected); err != nil {
		srv.log(ctx).Warn("Failed to withdraw proposal", slog.Any("proposal_id", p.ID), slog.Any("error", err))
	}
}

func (srv *negotiationService) resolveFailure(
	ctx context.Context,
	view *roundView,
	accepted []*entity.NegotiationProposal,
) (*usecase.RoundResult, error) {
	initiator := view.initiator

	var failed []string
	for _, p := range view.current {
		if p.Response == entity.ProposalDeclined || p.Response == entity.ProposalExpired || p.Response == entity.ProposalCountered {
			failed = append(failed, p.TargetUserID)
		}
	}

	expired, err := srv.machine.resume(initiator, srv.clock.Now(), failed)
	if err != nil {
		return nil, err
	}
	initiator.UpdatedAt = srv.clock.Now()
	if err := srv.requests.UpdateIfVersion(ctx, initiator, view.version); err != nil {
		return nil, err
	}

	srv.log(ctx).Info("Negotiation failed",
		slog.Any("round_id", view.roundID), slog.Any("initiator_request_id", initiator.ID), slog.Int("accepted", len(accepted)))

	if err := srv.learning.RecordRejection(ctx, initiator, failed, "negotiation failed"); err != nil {
		srv.log(ctx).Warn("Failed to record rejection", slog.Any("request_id", initiator.ID), slog.Any("error", err))
	}
	srv.machine.afterResume(ctx, initiator, expired, msgNegotiationFailed())
	srv.releaseOthers(ctx, view, nil)

	return &usecase.RoundResult{RoundID: view.roundID, Outcome: usecase.RoundFailed}, nil
}

// openCounterRound starts the next round with the counter time. The counterer has
// already agreed to it; every other acceptor is asked again. Round expiry never moves
// backwards.
func (srv *negotiationService) openCounterRound(
	ctx context.Context,
	view *roundView,
	counter *entity.NegotiationProposal,
	accepted []*entity.NegotiationProposal,
	countered []*entity.NegotiationProposal,
) (*usecase.RoundResult, error) {
	now := srv.clock.Now()

	initiator := view.initiator
	initiator.LastActivityAt = now
	initiator.UpdatedAt = now
	if err := srv.requests.UpdateIfVersion(ctx, initiator, view.version); err != nil {
		return nil, err
	}

	expiresAt := now.Add(srv.cfg.Negotiation.Window)
	for _, p := range view.current {
		if p.ExpiresAt.After(expiresAt) {
			expiresAt = p.ExpiresAt
		}
	}

	window := *counter.CounterWindow
	next := view.number + 1
	newProposal := func(from *entity.NegotiationProposal, response entity.ProposalResponse) *entity.NegotiationProposal {
		p := &entity.NegotiationProposal{
			ID:                 uuid.New(),
			RoundID:            view.roundID,
			Round:              next,
			InitiatorRequestID: initiator.ID,
			InitiatorUserID:    initiator.UserID,
			TargetRequestID:    from.TargetRequestID,
			TargetUserID:       from.TargetUserID,
			Terms: entity.ProposalTerms{
				Restaurant: from.Terms.Restaurant,
				Location:   from.Terms.Location,
				Window:     window,
			},
			Score:     from.Score,
			Response:  response,
			ExpiresAt: expiresAt,
			CreatedAt: now,
		}
		if response != entity.ProposalPending {
			p.RespondedAt = &now
			p.Reason = "proposed this time"
		}

		return p
	}

	if err := srv.proposals.Create(ctx, newProposal(counter, entity.ProposalAccepted)); err != nil {
		return nil, errors.Wrap(err, "failed to create counter proposal")
	}
	var asked []*entity.NegotiationProposal
	for _, p := range accepted {
		proposal := newProposal(p, entity.ProposalPending)
		if err := srv.proposals.Create(ctx, proposal); err != nil {
			return nil, errors.Wrap(err, "failed to create counter proposal")
		}
		asked = append(asked, proposal)
	}

	srv.log(ctx).Info("Counter-proposal round opened",
		slog.Any("round_id", view.roundID), slog.Int("round", next), slog.Int("asked", len(asked)))

	for _, p := range countered {
		if p.ID == counter.ID {
			continue
		}
		if _, _, err := srv.machine.returnToMatching(ctx, p.TargetRequestID, inRound(view.roundID), []string{initiator.UserID}, msgNegotiationFailed()); err != nil {
			srv.log(ctx).Warn("Failed to return target to matching", slog.Any("request_id", p.TargetRequestID), slog.Any("error", err))
		}
	}
	for _, p := range view.current {
		if p.Response == entity.ProposalDeclined || p.Response == entity.ProposalExpired {
			if _, _, err := srv.machine.returnToMatching(ctx, p.TargetRequestID, inRound(view.roundID), []string{initiator.UserID}, msgNegotiationFailed()); err != nil {
				srv.log(ctx).Warn("Failed to return target to matching", slog.Any("request_id", p.TargetRequestID), slog.Any("error", err))
			}
		}
	}

	for _, p := range asked {
		srv.sendProposal(ctx, p)
	}

	if len(asked) == 0 {
		// Nobody else has to agree: the counter round can be resolved right away.
		return srv.evaluateOnce(ctx, view.roundID)
	}

	return &usecase.RoundResult{RoundID: view.roundID, Outcome: usecase.RoundCountered}, nil
}

// abort closes a round whose initiator left: pending proposals are withdrawn and every
// target still held by the round returns to matching.
func (srv *negotiationService) abort(ctx context.Context, view *roundView) (*usecase.RoundResult, error) {
	released := false
	for _, p := range view.current {
		if p.IsPending() {
			srv.withdraw(ctx, p)
		}

		_, changed, err := srv.machine.returnToMatching(ctx, p.TargetRequestID, inRound(view.roundID), nil, msgRoundAborted())
		if err != nil {
			return nil, err
		}
		released = released || changed
	}

	if !released {
		return &usecase.RoundResult{RoundID: view.roundID, Outcome: usecase.RoundClosed}, nil
	}

	srv.log(ctx).Info("Negotiation round aborted", slog.Any("round_id", view.roundID))

	return &usecase.RoundResult{RoundID: view.roundID, Outcome: usecase.RoundAborted}, nil
}

// EvaluateDue evaluates rounds with expired proposals and rounds still holding
// negotiating requests, so that no round outlives a crash.
func (srv *negotiationService) EvaluateDue(ctx context.Context, now time.Time) ([]*usecase.RoundResult, error) {
	rounds, err := srv.proposals.FindDueRounds(ctx, now)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find due rounds")
	}

	negotiating, err := srv.requests.Find(ctx, repository.RequestFilter{
		States: []entity.RequestState{entity.RequestStateNegotiating},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to find negotiating requests")
	}
	for _, req := range negotiating {
		if req.RoundID != nil && !slices.Contains(rounds, *req.RoundID) {
			rounds = append(rounds, *req.RoundID)
		}
	}

	var results []*usecase.RoundResult
	for _, roundID := range rounds {
		result, err := srv.Evaluate(ctx, roundID)
		if err != nil {
			continue
		}
		results = append(results, result)
	}

	return results, nil
}

func (srv *negotiationService) OpenProposal(ctx context.Context, requestID uuid.UUID) (*entity.NegotiationProposal, error) {
	open, err := srv.proposals.FindOpenByTarget(ctx, requestID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find open proposals")
	}
	if len(open) == 0 {
		return nil, domainerrors.ErrProposalNotFound
	}

	return open[len(open)-1], nil
}

func filterProposals(proposals []*entity.NegotiationProposal, response entity.ProposalResponse) []*entity.NegotiationProposal {
	var result []*entity.NegotiationProposal
	for _, p := range proposals {
		if p.Response == response {
			result = append(result, p)
		}
	}

	return result
}

// sortByResponse orders proposals by answer time, then ID, so ties resolve the same way
// on every evaluator.
func sortByResponse(proposals []*entity.NegotiationProposal) {
	slices.SortStableFunc(proposals, func(a, b *entity.NegotiationProposal) int {
		switch {
		case a.RespondedAt == nil && b.RespondedAt != nil:
			return 1
		case a.RespondedAt != nil && b.RespondedAt == nil:
			return -1
		case a.RespondedAt != nil && b.RespondedAt != nil:
			if c := a.RespondedAt.Compare(*b.RespondedAt); c != 0 {
				return c
			}
		}

		return cmp.Compare(a.ID.String(), b.ID.String())
	})
}
