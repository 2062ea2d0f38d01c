package impl

import (
	"context"
	"log/slog"

	deliverycontext "huddle/internal/delivery/context"
	"huddle/internal/domain/entity"
	domainerrors "huddle/internal/domain/errors"
	"huddle/internal/domain/service"
	"huddle/internal/errors"
	"huddle/internal/usecase"

	"go.uber.org/fx"
)

// ActionServiceParams holds the dependencies of the action link redeemer.
type ActionServiceParams struct {
	fx.In

	Tokens      service.ActionTokenService
	Session     usecase.SessionUsecase
	Negotiation usecase.NegotiationUsecase
	Logger      *slog.Logger
}

type actionService struct {
	tokens      service.ActionTokenService
	session     usecase.SessionUsecase
	negotiation usecase.NegotiationUsecase
	logger      *slog.Logger
}

// NewActionService creates the action link redeemer.
func NewActionService(params ActionServiceParams) usecase.ActionUsecase {
	return &actionService{
		tokens:      params.Tokens,
		session:     params.Session,
		negotiation: params.Negotiation,
		logger:      params.Logger,
	}
}

func (srv *actionService) Redeem(ctx context.Context, token string) (*usecase.ActionResult, error) {
	if token == "" {
		return nil, domainerrors.ErrActionTokenInvalid
	}

	claims, err := srv.tokens.Validate(token)
	if err != nil {
		return nil, errors.Wrap(domainerrors.ErrActionTokenInvalid, err.Error())
	}

	logger := deliverycontext.GetLoggerOrDefault(ctx, srv.logger).With(
		slog.String("user_id", claims.UserID),
		slog.String("action", claims.Action),
		slog.String("subject_id", claims.Subject.String()),
	)
	logger.Info("Redeeming action link")

	switch claims.Action {
	case service.ActionAccept, service.ActionDecline:
		response := entity.ProposalAccepted
		if claims.Action == service.ActionDecline {
			response = entity.ProposalDeclined
		}

		round, err := srv.negotiation.Respond(ctx, claims.Subject, claims.UserID, usecase.ProposalReply{
			Response: response,
			Reason:   "via link",
		})
		if err != nil {
			return nil, err
		}

		return &usecase.ActionResult{Action: claims.Action, Round: round}, nil
	case service.ActionCancel:
		req, err := srv.session.Get(ctx, claims.Subject)
		if err != nil {
			return nil, err
		}
		if req.UserID != claims.UserID {
			return nil, domainerrors.ErrForbidden.WithDetails("the link belongs to another user")
		}

		cancelled, err := srv.session.CancelRequest(ctx, claims.Subject, "cancelled via link")
		if err != nil {
			return nil, err
		}

		return &usecase.ActionResult{Action: claims.Action, Request: cancelled}, nil
	default:
		logger.Warn("Unknown action in a valid link")

		return nil, domainerrors.ErrActionTokenInvalid.WithDetails("unknown action")
	}
}
