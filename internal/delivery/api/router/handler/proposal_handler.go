package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"huddle/internal/delivery/api/response"
	"huddle/internal/domain/entity"
	"huddle/internal/domain/service"
	"huddle/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

// ProposalHandlerParams holds dependencies for ProposalHandler, injected by Fx.
type ProposalHandlerParams struct {
	fx.In

	NegotiationUC usecase.NegotiationUsecase
	ActionUC      usecase.ActionUsecase
	Logger        *slog.Logger
}

// ProposalHandler answers negotiation proposals, directly or through signed links.
type ProposalHandler struct {
	negotiationUC usecase.NegotiationUsecase
	actionUC      usecase.ActionUsecase
	logger        *slog.Logger
}

// NewProposalHandler is the constructor for ProposalHandler
func NewProposalHandler(params ProposalHandlerParams) *ProposalHandler {
	return &ProposalHandler{
		negotiationUC: params.NegotiationUC,
		actionUC:      params.ActionUC,
		logger:        params.Logger,
	}
}

// RespondRequest is the answer of a proposal target.
type RespondRequest struct {
	UserID       string     `json:"userId" validate:"required"`
	Response     string     `json:"response" validate:"required,oneof=accepted declined countered"`
	Reason       string     `json:"reason"`
	CounterStart *time.Time `json:"counterStart" validate:"required_if=Response countered"`
	CounterEnd   *time.Time `json:"counterEnd" validate:"required_if=Response countered"`
}

// Respond records a target's answer to a proposal
func (h *ProposalHandler) Respond(c echo.Context) error {
	proposalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return response.BadRequest(c, "INVALID_ID", "Invalid proposal ID")
	}

	var req RespondRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid response input")
	}

	if err := c.Validate(&req); err != nil {
		return response.BadRequest(c, "VALIDATION_ERROR", err.Error())
	}

	reply := usecase.ProposalReply{
		Response: entity.ProposalResponse(req.Response),
		Reason:   req.Reason,
	}
	if reply.Response == entity.ProposalCountered {
		counter := entity.TimeWindow{Start: *req.CounterStart, End: *req.CounterEnd}
		if !counter.Valid() {
			return response.BadRequest(c, "VALIDATION_ERROR", "counterEnd must not be before counterStart")
		}
		reply.CounterWindow = &counter
	}

	result, err := h.negotiationUC.Respond(c.Request().Context(), proposalID, req.UserID, reply)
	if err != nil {
		return response.HandleAppError(c, err)
	}

	return response.Success(c, http.StatusOK, toRoundView(result))
}

// RedeemAction performs the accept, decline or cancel action of a signed link and
// answers with a short HTML page, since links are opened from a phone.
func (h *ProposalHandler) RedeemAction(c echo.Context) error {
	result, err := h.actionUC.Redeem(c.Request().Context(), c.Param("token"))
	if err != nil {
		return response.HandleAppError(c, err)
	}

	return c.HTML(http.StatusOK, actionPage(result))
}

func actionPage(result *usecase.ActionResult) string {
	message := "Done."
	switch result.Action {
	case service.ActionAccept:
		message = "Thanks, you're in. We'll text you once everyone has answered."
		if result.Round != nil && result.Round.Outcome == usecase.RoundConsensus {
			message = "Thanks, your group is confirmed. Check your messages for the payment link."
		}
	case service.ActionDecline:
		message = "No problem, we'll keep looking for another group."
	case service.ActionCancel:
		message = "Your request has been cancelled."
	}

	return fmt.Sprintf(`<!doctype html><html><head><meta name="viewport" content="width=device-width"><title>Huddle</title></head><body><p>%s</p></body></html>`, message)
}
