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

// RequestHandlerParams holds dependencies for RequestHandler, injected by Fx.
type RequestHandlerParams struct {
	fx.In

	SessionUC usecase.SessionUsecase
	Logger    *slog.Logger
}

// RequestHandler exposes user requests.
type RequestHandler struct {
	sessionUC usecase.SessionUsecase
	logger    *slog.Logger
}

// NewRequestHandler is the constructor for RequestHandler
func NewRequestHandler(params RequestHandlerParams) *RequestHandler {
	return &RequestHandler{
		sessionUC: params.SessionUC,
		logger:    params.Logger,
	}
}

// CancelRequest is the optional body of a user cancellation.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// GetRequest returns a request by ID
func (h *RequestHandler) GetRequest(c echo.Context) error {
	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return response.BadRequest(c, "INVALID_ID", "Invalid request ID")
	}

	req, err := h.sessionUC.Get(c.Request().Context(), requestID)
	if err != nil {
		return response.HandleAppError(c, err)
	}

	return response.Success(c, http.StatusOK, toRequestView(req))
}

// GetUserRequest returns the user's open request
func (h *RequestHandler) GetUserRequest(c echo.Context) error {
	userID := c.Param("userId")
	if userID == "" {
		return response.BadRequest(c, "INVALID_ID", "Invalid user ID")
	}

	req, err := h.sessionUC.GetActiveByUser(c.Request().Context(), userID)
	if err != nil {
		return response.HandleAppError(c, err)
	}

	return response.Success(c, http.StatusOK, toRequestView(req))
}

// CancelUserRequest cancels the user's open request
func (h *RequestHandler) CancelUserRequest(c echo.Context) error {
	userID := c.Param("userId")
	if userID == "" {
		return response.BadRequest(c, "INVALID_ID", "Invalid user ID")
	}

	var body CancelRequest
	if err := c.Bind(&body); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid cancel input")
	}
	if body.Reason == "" {
		body.Reason = "cancelled by user"
	}

	req, err := h.sessionUC.Cancel(c.Request().Context(), userID, body.Reason)
	if err != nil {
		return response.HandleAppError(c, err)
	}

	return response.Success(c, http.StatusOK, toRequestView(req))
}
