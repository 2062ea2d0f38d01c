package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"huddle/config"
	deliverycontext "huddle/internal/delivery/context"
	"huddle/internal/domain/service"
	"huddle/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/fx"
	"google.golang.org/api/idtoken"
)

// PubSubMessage represents the structure of a Pub/Sub push message
type PubSubMessage struct {
	Message struct {
		Data        string            `json:"data"`
		Attributes  map[string]string `json:"attributes,omitempty"`
		MessageID   string            `json:"messageId"`
		PublishTime string            `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// TokenVerifier validates the OIDC token attached to a push request.
type TokenVerifier func(ctx context.Context, token, audience string) error

// PushHandler handles GroupFinalized push messages
type PushHandler struct {
	audience string
	verify   TokenVerifier
	logger   *slog.Logger
	dispatch usecase.DispatchUsecase
}

// PushHandlerParams holds dependencies for the PushHandler
type PushHandlerParams struct {
	fx.In

	Config   *config.Config
	Logger   *slog.Logger
	Dispatch usecase.DispatchUsecase
	Verifier TokenVerifier `optional:"true"`
}

// NewPushHandler creates a new Pub/Sub push handler. Token verification is enabled when a
// push audience is configured.
func NewPushHandler(params PushHandlerParams) *PushHandler {
	var audience string
	if params.Config.PubSub != nil {
		audience = params.Config.PubSub.PushAudience
	}

	verify := params.Verifier
	if verify == nil {
		verify = verifyGoogleToken
	}

	return &PushHandler{
		audience: audience,
		verify:   verify,
		logger:   params.Logger,
		dispatch: params.Dispatch,
	}
}

// HandlePush handles incoming Pub/Sub push messages
func (h *PushHandler) HandlePush(c echo.Context) error {
	ctx := c.Request().Context()

	if h.audience != "" {
		if err := h.verifyRequest(c.Request()); err != nil {
			h.logger.Warn("[Dispatcher] Invalid Pub/Sub token", slog.Any("error", err))

			return c.NoContent(http.StatusUnauthorized)
		}
	}

	var pushMsg PubSubMessage
	if err := c.Bind(&pushMsg); err != nil {
		h.logger.Error("[Dispatcher] Failed to parse push message", slog.Any("error", err))

		return c.NoContent(http.StatusBadRequest)
	}

	data, err := base64.StdEncoding.DecodeString(pushMsg.Message.Data)
	if err != nil {
		h.logger.Error("[Dispatcher] Failed to decode message data", slog.Any("error", err))

		return c.NoContent(http.StatusBadRequest)
	}

	var event service.GroupFinalizedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		h.logger.Error("[Dispatcher] Failed to parse group finalized event", slog.Any("error", err))

		return c.NoContent(http.StatusBadRequest)
	}

	// Priority: message attributes > event field > existing context
	requestID := h.extractRequestID(ctx, &pushMsg, &event)
	reqLogger := h.logger.With(slog.String("request_id", requestID))
	ctx = deliverycontext.WithRequestID(ctx, requestID)
	ctx = deliverycontext.WithLogger(ctx, reqLogger)

	reqLogger.Info("[Dispatcher] Processing group finalized event",
		slog.String("event_id", event.EventID),
		slog.String("group_id", event.GroupID),
		slog.Int("member_count", len(event.Members)),
	)

	result, err := h.dispatch.Dispatch(ctx, &event)
	if err != nil {
		retryable := errors.Is(err, usecase.ErrDispatchRetryable)
		reqLogger.Error("[Dispatcher] Failed to dispatch group",
			slog.String("group_id", event.GroupID),
			slog.Any("error", err),
			slog.Bool("retryable", retryable),
		)
		// 503 asks Pub/Sub to redeliver; 200 drops a message that can never succeed.
		if retryable {
			return c.NoContent(http.StatusServiceUnavailable)
		}

		return c.NoContent(http.StatusOK)
	}

	reqLogger.Info("[Dispatcher] Group dispatched",
		slog.String("group_id", result.GroupID),
		slog.String("delivery_ref", result.DeliveryRef),
		slog.Bool("duplicate", result.Duplicate),
		slog.Bool("skipped", result.Skipped),
	)

	return c.NoContent(http.StatusOK)
}

// extractRequestID extracts request_id from message attributes, event, or generates a new one
func (h *PushHandler) extractRequestID(ctx context.Context, pushMsg *PubSubMessage, event *service.GroupFinalizedEvent) string {
	if requestID, ok := pushMsg.Message.Attributes["request_id"]; ok && requestID != "" {
		return requestID
	}

	if event.RequestID != "" {
		return event.RequestID
	}

	if requestID := deliverycontext.GetRequestIDFromContext(ctx); requestID != "" {
		return requestID
	}

	return uuid.New().String()
}

func (h *PushHandler) verifyRequest(req *http.Request) error {
	authHeader := req.Header.Get("Authorization")
	if authHeader == "" {
		return errors.New("missing authorization header")
	}

	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return errors.New("invalid authorization header format")
	}

	return h.verify(req.Context(), strings.TrimPrefix(authHeader, bearerPrefix), h.audience)
}

// verifyGoogleToken verifies the JWT token from Google Pub/Sub push requests
// Reference: https://cloud.google.com/pubsub/docs/push#authenticating_standard_push_requests
func verifyGoogleToken(ctx context.Context, token, audience string) error {
	payload, err := idtoken.Validate(ctx, token, audience)
	if err != nil {
		return errors.Wrap(err, "failed to validate token")
	}

	if payload.Issuer != "accounts.google.com" && payload.Issuer != "https://accounts.google.com" {
		return errors.Errorf("invalid issuer: %s", payload.Issuer)
	}

	if emailVerified, ok := payload.Claims["email_verified"].(bool); ok && !emailVerified {
		return errors.New("email not verified")
	}

	return nil
}
