package handler

import (
	"log/slog"
	"net/http"

	"huddle/internal/delivery/api/response"
	"huddle/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

// GroupHandlerParams holds dependencies for GroupHandler, injected by Fx.
type GroupHandlerParams struct {
	fx.In

	GroupUC usecase.GroupUsecase
	Logger  *slog.Logger
}

// GroupHandler exposes group sessions and their member actions.
type GroupHandler struct {
	groupUC usecase.GroupUsecase
	logger  *slog.Logger
}

// NewGroupHandler is the constructor for GroupHandler
func NewGroupHandler(params GroupHandlerParams) *GroupHandler {
	return &GroupHandler{
		groupUC: params.GroupUC,
		logger:  params.Logger,
	}
}

// CancelGroupRequest identifies the member dissolving a group.
type CancelGroupRequest struct {
	UserID string `json:"userId" validate:"required"`
	Reason string `json:"reason"`
}

// FeedbackRequest carries a member's satisfaction score.
type FeedbackRequest struct {
	UserID string  `json:"userId" validate:"required"`
	Score  float64 `json:"score" validate:"min=1,max=5"`
}

// GetGroup returns a group by ID
func (h *GroupHandler) GetGroup(c echo.Context) error {
	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return response.BadRequest(c, "INVALID_ID", "Invalid group ID")
	}

	group, err := h.groupUC.Get(c.Request().Context(), groupID)
	if err != nil {
		return response.HandleAppError(c, err)
	}

	return response.Success(c, http.StatusOK, toGroupView(group))
}

// CancelGroup dissolves a group on behalf of a member
func (h *GroupHandler) CancelGroup(c echo.Context) error {
	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return response.BadRequest(c, "INVALID_ID", "Invalid group ID")
	}

	var req CancelGroupRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid cancel input")
	}

	if err := c.Validate(&req); err != nil {
		return response.BadRequest(c, "VALIDATION_ERROR", err.Error())
	}
	if req.Reason == "" {
		req.Reason = "cancelled by member"
	}

	group, err := h.groupUC.Cancel(c.Request().Context(), groupID, req.UserID, req.Reason)
	if err != nil {
		return response.HandleAppError(c, err)
	}

	return response.Success(c, http.StatusOK, toGroupView(group))
}

// CompleteGroup marks a handed-off group as delivered
func (h *GroupHandler) CompleteGroup(c echo.Context) error {
	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return response.BadRequest(c, "INVALID_ID", "Invalid group ID")
	}

	group, err := h.groupUC.Complete(c.Request().Context(), groupID)
	if err != nil {
		return response.HandleAppError(c, err)
	}

	return response.Success(c, http.StatusOK, toGroupView(group))
}

// SubmitFeedback records a member's satisfaction with a group
func (h *GroupHandler) SubmitFeedback(c echo.Context) error {
	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return response.BadRequest(c, "INVALID_ID", "Invalid group ID")
	}

	var req FeedbackRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid feedback input")
	}

	if err := c.Validate(&req); err != nil {
		return response.BadRequest(c, "VALIDATION_ERROR", err.Error())
	}

	if err := h.groupUC.Feedback(c.Request().Context(), groupID, req.UserID, req.Score); err != nil {
		return response.HandleAppError(c, err)
	}

	return response.Success(c, http.StatusOK, map[string]string{"message": "Feedback recorded"})
}

// GetPaymentQR renders the group's payment link as a PNG QR code
func (h *GroupHandler) GetPaymentQR(c echo.Context) error {
	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return response.BadRequest(c, "INVALID_ID", "Invalid group ID")
	}

	png, err := h.groupUC.PaymentQR(c.Request().Context(), groupID)
	if err != nil {
		return response.HandleAppError(c, err)
	}

	return c.Blob(http.StatusOK, "image/png", png)
}
