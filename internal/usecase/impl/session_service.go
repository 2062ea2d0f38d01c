package impl

import (
	"context"
	"log/slog"
	"strings"
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

const (
	reasonUserCancelled = "cancelled by user"
	reasonStale         = "no activity"
	reasonNoMatch       = "no match found"
)

// SessionServiceParams holds the dependencies of the session state machine.
type SessionServiceParams struct {
	fx.In

	Requests    repository.RequestRepository
	Matcher     usecase.CandidateMatcher
	Negotiation usecase.NegotiationUsecase
	Groups      usecase.GroupUsecase
	Learning    usecase.LearningUsecase
	Extractor   service.IntentExtractor
	Messenger   service.Messenger
	Tokens      service.ActionTokenService `optional:"true"`
	Catalog     *catalog.Catalog
	Clock       entity.Clock
	Config      *config.Config
	Logger      *slog.Logger
}

// sessionService implements usecase.SessionUsecase.
type sessionService struct {
	machine     *stateMachine
	requests    repository.RequestRepository
	matcher     usecase.CandidateMatcher
	negotiation usecase.NegotiationUsecase
	groups      usecase.GroupUsecase
	learning    usecase.LearningUsecase
	extractor   service.IntentExtractor
	notifier    *notifier
	links       *actionLinks
	catalog     *catalog.Catalog
	clock       entity.Clock
	cfg         *config.Config
	logger      *slog.Logger
}

// NewSessionService creates the session state machine.
func NewSessionService(params SessionServiceParams) usecase.SessionUsecase {
	n := newNotifier(params.Messenger, params.Logger)

	return &sessionService{
		machine: &stateMachine{
			requests: params.Requests,
			learning: params.Learning,
			notifier: n,
			clock:    params.Clock,
			cfg:      params.Config,
			logger:   params.Logger,
		},
		requests:    params.Requests,
		matcher:     params.Matcher,
		negotiation: params.Negotiation,
		groups:      params.Groups,
		learning:    params.Learning,
		extractor:   params.Extractor,
		notifier:    n,
		links: &actionLinks{
			tokens:  params.Tokens,
			baseURL: params.Config.HTTP.PublicBaseURL,
			ttl:     params.Config.Negotiation.ActionLinkTTL,
			logger:  params.Logger,
		},
		catalog: params.Catalog,
		clock:   params.Clock,
		cfg:     params.Config,
		logger:  params.Logger,
	}
}

// log returns a request-scoped logger if available, otherwise falls back to the service's logger.
func (srv *sessionService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

// reply sends text to the user and returns the inbound result carrying it.
func (srv *sessionService) reply(ctx context.Context, userID string, req *entity.UserRequest, text string) *usecase.InboundResult {
	srv.notifier.send(ctx, userID, text)

	return &usecase.InboundResult{Request: req, Reply: text}
}

// HandleInbound processes one message. Control words are handled first; anything else
// is treated as (part of) an order intent.
func (srv *sessionService) HandleInbound(ctx context.Context, userID, text string) (*usecase.InboundResult, error) {
	userID = strings.TrimSpace(userID)
	text = strings.TrimSpace(text)
	if userID == "" {
		return nil, domainerrors.ErrValidation.WithDetails("user id is required")
	}
	ctx = deliverycontext.WithUser(ctx, userID)

	active, err := srv.activeRequest(ctx, userID)
	if err != nil {
		return nil, err
	}

	fields := strings.Fields(strings.ToLower(text))
	command := ""
	if len(fields) > 0 {
		command = fields[0]
	}

	switch command {
	case "cancel", "stop":
		if active == nil {
			return srv.reply(ctx, userID, nil, msgNothingToCancel()), nil
		}
		req, err := srv.CancelRequest(ctx, active.ID, reasonUserCancelled)
		if err != nil {
			return nil, err
		}

		return &usecase.InboundResult{Request: req, Reply: msgCancelled("")}, nil
	case "status":
		return srv.reply(ctx, userID, active, msgStatus(active, srv.catalog.Timezone())), nil
	case "optout", "optin":
		optOut := command == "optout"
		if err := srv.learning.SetCheckInOptOut(ctx, userID, optOut); err != nil {
			return nil, errors.Wrap(err, "failed to update check-in preference")
		}
		if optOut {
			return srv.reply(ctx, userID, active, msgOptOut()), nil
		}

		return srv.reply(ctx, userID, active, msgOptIn()), nil
	case "yes", "y", "accept":
		return srv.answer(ctx, userID, active, usecase.ProposalReply{Response: entity.ProposalAccepted})
	case "no", "n", "decline":
		return srv.answer(ctx, userID, active, usecase.ProposalReply{Response: entity.ProposalDeclined, Reason: "declined by user"})
	case "counter":
		return srv.counter(ctx, userID, active, strings.TrimSpace(text[len(command):]))
	}

	if active != nil && active.State != entity.RequestStateAwaitingIntent {
		return srv.reply(ctx, userID, active, msgAlreadyOpen(active, srv.catalog.Timezone())), nil
	}

	opened := active == nil
	if opened {
		active, err = srv.openRequest(ctx, userID)
		if err != nil {
			return nil, err
		}
	}

	partial := entity.Intent{Restaurant: active.Restaurant, Location: active.Location, Window: active.Window}
	extracted, err := srv.extractor.Extract(ctx, text, service.ExtractContext{UserID: userID, Now: srv.clock.Now(), Partial: partial})
	if err != nil {
		if !errors.Is(err, service.ErrUnrecognized) {
			srv.log(ctx).Warn("Intent extraction failed", slog.String("user_id", userID), slog.Any("error", err))
		}
		if opened {
			return srv.reply(ctx, userID, active, msgAskIntent(nil)), nil
		}
		srv.touch(ctx, active.ID)

		return srv.reply(ctx, userID, active, msgClarify(partial.Missing())), nil
	}

	intent := srv.normalize(extracted.Merge(partial))
	if !intent.Complete() {
		req, _, err := srv.machine.mutate(ctx, active.ID, func(req *entity.UserRequest, now time.Time) error {
			if req.State != entity.RequestStateAwaitingIntent {
				return errNoChange
			}
			req.Restaurant = intent.Restaurant
			req.Location = intent.Location
			req.Window = intent.Window
			req.LastActivityAt = now

			return nil
		})
		if err != nil {
			return nil, err
		}

		return srv.reply(ctx, userID, req, msgAskIntent(intent.Missing())), nil
	}

	req, err := srv.SubmitIntent(ctx, userID, intent)
	if err != nil {
		if domainerrors.IsValidation(err) {
			return srv.reply(ctx, userID, active, msgClarify(nil)), nil
		}

		return nil, err
	}

	return &usecase.InboundResult{Request: req, Reply: srv.intentReply(ctx, req)}, nil
}

func (srv *sessionService) intentReply(ctx context.Context, req *entity.UserRequest) string {
	if req.State == entity.RequestStateScheduled {
		return msgScheduled(req, srv.catalog.Timezone(), srv.cancelLink(ctx, req))
	}

	return msgMatching(req, srv.catalog.Timezone(), srv.cancelLink(ctx, req))
}

// cancelLink signs a cancel action for the request that stays valid until its window closes.
func (srv *sessionService) cancelLink(ctx context.Context, req *entity.UserRequest) string {
	return srv.links.linkFor(ctx, req.UserID, service.ActionCancel, req.ID, req.Window.End.Sub(srv.clock.Now()))
}

// answer responds to the proposal currently waiting for the user.
func (srv *sessionService) answer(ctx context.Context, userID string, active *entity.UserRequest, reply usecase.ProposalReply) (*usecase.InboundResult, error) {
	if active == nil || active.State != entity.RequestStateNegotiating {
		return srv.reply(ctx, userID, active, msgNoOpenProposal()), nil
	}

	proposal, err := srv.negotiation.OpenProposal(ctx, active.ID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrProposalNotFound) {
			return srv.reply(ctx, userID, active, msgNoOpenProposal()), nil
		}

		return nil, err
	}

	if _, err := srv.negotiation.Respond(ctx, proposal.ID, userID, reply); err != nil {
		if errors.Is(err, domainerrors.ErrProposalClosed) {
			return srv.reply(ctx, userID, active, msgOfferClosed()), nil
		}

		return nil, err
	}

	req, err := srv.Get(ctx, active.ID)
	if err != nil {
		return nil, err
	}

	return &usecase.InboundResult{Request: req, Reply: msgReplyRecorded(reply.Response)}, nil
}

// counter parses the suggested time with the intent extractor and answers the open
// proposal with it.
func (srv *sessionService) counter(ctx context.Context, userID string, active *entity.UserRequest, text string) (*usecase.InboundResult, error) {
	if active == nil || active.State != entity.RequestStateNegotiating {
		return srv.reply(ctx, userID, active, msgNoOpenProposal()), nil
	}
	if text == "" {
		return srv.reply(ctx, userID, active, msgCounterNeedsTime()), nil
	}

	intent, err := srv.extractor.Extract(ctx, text, service.ExtractContext{UserID: userID, Now: srv.clock.Now()})
	if err != nil || !intent.Window.Valid() {
		return srv.reply(ctx, userID, active, msgCounterNeedsTime()), nil
	}

	window := intent.Window

	return srv.answer(ctx, userID, active, usecase.ProposalReply{
		Response:      entity.ProposalCountered,
		Reason:        "suggested another time",
		CounterWindow: &window,
	})
}

func (srv *sessionService) activeRequest(ctx context.Context, userID string) (*entity.UserRequest, error) {
	req, err := srv.requests.FindActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrRequestNotFound) {
			return nil, nil
		}

		return nil, errors.Wrap(err, "failed to find active request")
	}

	return req, nil
}

// openRequest creates a request waiting for intent. A concurrent message from the same
// user may have created one already; that request is returned instead.
func (srv *sessionService) openRequest(ctx context.Context, userID string) (*entity.UserRequest, error) {
	now := srv.clock.Now()
	req := &entity.UserRequest{
		ID:             uuid.New(),
		UserID:         userID,
		State:          entity.RequestStateIdle,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastActivityAt: now,
	}
	if err := transitionTo(req, entity.RequestStateAwaitingIntent); err != nil {
		return nil, err
	}

	if err := srv.requests.Create(ctx, req); err != nil {
		if errors.Is(err, repository.ErrActiveRequestExists) {
			existing, findErr := srv.activeRequest(ctx, userID)
			if findErr != nil {
				return nil, findErr
			}
			if existing != nil {
				return existing, nil
			}
		}

		return nil, errors.Wrap(err, "failed to create request")
	}

	srv.log(ctx).Info("Request opened", slog.Any("request_id", req.ID), slog.String("user_id", userID))

	return req, nil
}

func (srv *sessionService) touch(ctx context.Context, id uuid.UUID) {
	_, _, err := srv.machine.mutate(ctx, id, func(req *entity.UserRequest, now time.Time) error {
		req.LastActivityAt = now

		return nil
	})
	if err != nil {
		srv.log(ctx).Warn("Failed to record activity", slog.Any("request_id", id), slog.Any("error", err))
	}
}

// normalize maps names and aliases onto catalog entries and drops unknown values.
func (srv *sessionService) normalize(intent entity.Intent) entity.Intent {
	if r, ok := srv.catalog.Restaurant(intent.Restaurant); ok {
		intent.Restaurant = r.Name
	} else {
		intent.Restaurant = ""
	}
	if l, ok := srv.catalog.Location(intent.Location); ok {
		intent.Location = l.Name
	} else {
		intent.Location = ""
	}

	return intent
}

// SubmitIntent validates a complete intent and moves the user's request to matching, or
// to scheduled when the desired window starts later than the activation lead time.
func (srv *sessionService) SubmitIntent(ctx context.Context, userID string, intent entity.Intent) (*entity.UserRequest, error) {
	r, ok := srv.catalog.Restaurant(intent.Restaurant)
	if !ok {
		return nil, domainerrors.ErrValidation.WithDetails("unknown restaurant " + intent.Restaurant)
	}
	l, ok := srv.catalog.Location(intent.Location)
	if !ok {
		return nil, domainerrors.ErrValidation.WithDetails("unknown location " + intent.Location)
	}
	if !intent.Window.Valid() {
		return nil, domainerrors.ErrValidation.WithDetails("a time window is required")
	}
	if !intent.Window.End.After(srv.clock.Now()) {
		return nil, domainerrors.ErrValidation.WithDetails("the time window is already over")
	}

	active, err := srv.activeRequest(ctx, userID)
	if err != nil {
		return nil, err
	}
	if active == nil {
		if active, err = srv.openRequest(ctx, userID); err != nil {
			return nil, err
		}
	}
	if active.State != entity.RequestStateAwaitingIntent {
		return nil, errors.Wrap(domainerrors.ErrActiveRequestExists, string(active.State))
	}

	lead := srv.cfg.Scheduler.ActivationLeadTime
	req, changed, err := srv.machine.mutate(ctx, active.ID, func(req *entity.UserRequest, now time.Time) error {
		if req.State != entity.RequestStateAwaitingIntent {
			return errNoChange
		}
		req.Restaurant = r.Name
		req.Location = l.Name
		req.Window = intent.Window
		req.LastActivityAt = now

		if activateAt := intent.Window.Start.Add(-lead); activateAt.After(now) {
			if err := transitionTo(req, entity.RequestStateScheduled); err != nil {
				return err
			}
			req.ActivateAt = &activateAt

			return nil
		}

		return srv.machine.enterMatching(req, now)
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, errors.Wrap(domainerrors.ErrActiveRequestExists, string(req.State))
	}

	srv.log(ctx).Info("Intent submitted",
		slog.Any("request_id", req.ID),
		slog.String("state", string(req.State)),
		slog.String("restaurant", req.Restaurant),
		slog.String("location", req.Location))

	if err := srv.learning.RecordRequestCreated(ctx, req); err != nil {
		srv.log(ctx).Warn("Failed to record request", slog.Any("request_id", req.ID), slog.Any("error", err))
	}
	srv.notifier.send(ctx, userID, srv.intentReply(ctx, req))

	if req.State == entity.RequestStateMatching {
		return srv.RunMatching(ctx, req.ID)
	}

	return req, nil
}

func (srv *sessionService) Cancel(ctx context.Context, userID, reason string) (*entity.UserRequest, error) {
	active, err := srv.activeRequest(ctx, userID)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, domainerrors.ErrRequestNotFound.WithDetails("no open request")
	}

	return srv.CancelRequest(ctx, active.ID, reason)
}

// CancelRequest cancels the request and unwinds whatever it took part in: an open round
// is re-evaluated and a group that was not handed off yet is dissolved.
func (srv *sessionService) CancelRequest(ctx context.Context, requestID uuid.UUID, reason string) (*entity.UserRequest, error) {
	if reason == "" {
		reason = reasonUserCancelled
	}

	var before *entity.UserRequest
	req, changed, err := srv.machine.terminate(ctx, requestID, entity.RequestStateCancelled, reason,
		func(req *entity.UserRequest) bool {
			before = req.Clone()

			return true
		},
		func(*entity.UserRequest) string { return cancelMessage(reason) })
	if err != nil {
		return nil, err
	}
	if !changed {
		return req, nil
	}

	switch {
	case before.State == entity.RequestStateNegotiating && before.RoundID != nil:
		if _, err := srv.negotiation.Evaluate(ctx, *before.RoundID); err != nil {
			srv.log(ctx).Warn("Failed to settle round after cancel", slog.Any("round_id", *before.RoundID), slog.Any("error", err))
		}
	case before.State == entity.RequestStateConfirmed && before.GroupID != nil:
		if _, err := srv.groups.Cancel(ctx, *before.GroupID, req.UserID, reason); err != nil {
			srv.log(ctx).Warn("Failed to dissolve group after cancel", slog.Any("group_id", *before.GroupID), slog.Any("error", err))
		}
	}

	return req, nil
}

func cancelMessage(reason string) string {
	switch reason {
	case reasonUserCancelled:
		return msgCancelled("")
	case reasonStale:
		return msgStaleCancelled()
	default:
		return msgCancelled(reason)
	}
}

// RunMatching looks for candidates and opens a negotiation round with them. A request
// that is no longer matching is returned unchanged.
func (srv *sessionService) RunMatching(ctx context.Context, requestID uuid.UUID) (*entity.UserRequest, error) {
	req, err := srv.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.State != entity.RequestStateMatching {
		return req, nil
	}

	candidates, err := srv.matcher.FindCandidates(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find candidates")
	}
	if len(candidates) == 0 {
		return req, nil
	}

	roundID, err := srv.negotiation.Propose(ctx, req.ID, candidates)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open negotiation")
	}
	if roundID == uuid.Nil {
		return req, nil
	}

	return srv.Get(ctx, requestID)
}

// Expire closes a matching request whose wait deadline has passed.
func (srv *sessionService) Expire(ctx context.Context, requestID uuid.UUID) (*entity.UserRequest, error) {
	req, _, err := srv.machine.terminate(ctx, requestID, entity.RequestStateExpired, reasonNoMatch,
		func(req *entity.UserRequest) bool {
			return req.State == entity.RequestStateMatching && !srv.clock.Now().Before(req.ExpiresAt)
		},
		msgExpired)
	if err != nil {
		return nil, err
	}

	return req, nil
}

// Activate starts matching for a scheduled request whose activation time has come.
func (srv *sessionService) Activate(ctx context.Context, requestID uuid.UUID) (*entity.UserRequest, error) {
	req, changed, err := srv.machine.mutate(ctx, requestID, func(req *entity.UserRequest, now time.Time) error {
		if req.State != entity.RequestStateScheduled || req.ActivateAt == nil || now.Before(*req.ActivateAt) {
			return errNoChange
		}

		return srv.machine.enterMatching(req, now)
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return req, nil
	}

	srv.log(ctx).Info("Scheduled request activated", slog.Any("request_id", req.ID))
	srv.notifier.send(ctx, req.UserID, msgMatching(req, srv.catalog.Timezone(), srv.cancelLink(ctx, req)))

	return srv.RunMatching(ctx, req.ID)
}

func (srv *sessionService) ReturnToMatching(ctx context.Context, requestID uuid.UUID, exclude []string, reason string) (*entity.UserRequest, error) {
	req, changed, err := srv.machine.returnToMatching(ctx, requestID, nil, exclude, msgBackToMatching())
	if err != nil {
		return nil, err
	}
	if !changed || req.State != entity.RequestStateMatching {
		return req, nil
	}

	srv.log(ctx).Info("Request returned to matching", slog.Any("request_id", req.ID), slog.String("reason", reason))

	return srv.RunMatching(ctx, req.ID)
}

func (srv *sessionService) Get(ctx context.Context, requestID uuid.UUID) (*entity.UserRequest, error) {
	req, err := srv.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, mapRequestError(err)
	}

	return req, nil
}

func (srv *sessionService) GetActiveByUser(ctx context.Context, userID string) (*entity.UserRequest, error) {
	req, err := srv.activeRequest(ctx, userID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, domainerrors.ErrRequestNotFound.WithDetails("no open request")
	}

	return req, nil
}
