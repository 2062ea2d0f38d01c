package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"huddle/internal/delivery/api/response"
	deliverycontext "huddle/internal/delivery/context"
	"huddle/internal/usecase"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

// MessageHandlerParams holds dependencies for MessageHandler, injected by Fx.
type MessageHandlerParams struct {
	fx.In

	SessionUC usecase.SessionUsecase
	Logger    *slog.Logger
}

// MessageHandler receives inbound user messages from SMS and the mock channel.
type MessageHandler struct {
	sessionUC usecase.SessionUsecase
	logger    *slog.Logger
}

// NewMessageHandler is the constructor for MessageHandler
func NewMessageHandler(params MessageHandlerParams) *MessageHandler {
	return &MessageHandler{
		sessionUC: params.SessionUC,
		logger:    params.Logger,
	}
}

// PostMessageRequest is the body of a mock channel message.
type PostMessageRequest struct {
	UserID string `json:"userId" validate:"required"`
	Text   string `json:"text" validate:"required"`
}

// PostMessageResponse is the outcome of a mock channel message.
type PostMessageResponse struct {
	Reply   string       `json:"reply"`
	Request *RequestView `json:"request,omitempty"`
}

// PostMessage handles a message sent through the JSON mock channel
func (h *MessageHandler) PostMessage(c echo.Context) error {
	var req PostMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid message input")
	}

	if err := c.Validate(&req); err != nil {
		return response.BadRequest(c, "VALIDATION_ERROR", err.Error())
	}

	ctx := deliverycontext.WithUser(c.Request().Context(), req.UserID)
	result, err := h.sessionUC.HandleInbound(ctx, req.UserID, req.Text)
	if err != nil {
		return response.HandleAppError(c, err)
	}

	return response.Success(c, http.StatusOK, PostMessageResponse{
		Reply:   result.Reply,
		Request: toRequestView(result.Request),
	})
}

// ReceiveSMS handles the Twilio inbound SMS webhook. The reply goes out through the
// messenger, so the webhook answers with empty TwiML.
func (h *MessageHandler) ReceiveSMS(c echo.Context) error {
	from := strings.TrimSpace(c.FormValue("From"))
	body := c.FormValue("Body")
	if from == "" {
		return response.BadRequest(c, "VALIDATION_ERROR", "From is required")
	}

	ctx := deliverycontext.WithMessageSID(c.Request().Context(), c.FormValue("MessageSid"))
	ctx = deliverycontext.WithUser(ctx, from)

	if _, err := h.sessionUC.HandleInbound(ctx, from, body); err != nil {
		// Twilio retries non-2xx webhooks; a failed message is logged and acknowledged.
		deliverycontext.GetLoggerOrDefault(ctx, h.logger).Error("Failed to handle inbound SMS", slog.Any("error", err))
	}

	return response.EmptyTwiML(c)
}
