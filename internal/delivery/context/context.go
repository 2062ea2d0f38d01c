// Package context carries the per-request values shared by the delivery layers and
// the usecases: the request ID, the acting user and a logger annotated with both.
package context

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const (
	KeyRequestID  ContextKey = "request_id"
	KeyLogger     ContextKey = "logger"
	KeyUserID     ContextKey = "user_id"
	KeyMessageSID ContextKey = "message_sid"

	// HeaderXRequestID is the HTTP header name for request ID.
	HeaderXRequestID = "X-Request-Id"
	// HeaderTwilioIdempotency is sent by Twilio with every webhook attempt; retries of
	// one inbound message share it.
	HeaderTwilioIdempotency = "I-Twilio-Idempotency-Token"
)

// GetRequestID returns the request ID stored on the echo context, or a fresh one.
func GetRequestID(c echo.Context) string {
	if id, _ := c.Get(string(KeyRequestID)).(string); id != "" {
		return id
	}

	return uuid.NewString()
}

// SetRequestID stores the request ID on the echo context.
func SetRequestID(c echo.Context, requestID string) {
	c.Set(string(KeyRequestID), requestID)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, KeyRequestID, requestID)
}

// GetRequestIDFromContext returns "" when no request ID was attached.
func GetRequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, KeyRequestID)
}

// WithUser marks ctx as acting for userID and adds the user to the request logger,
// so every line logged for an inbound message names its sender.
func WithUser(ctx context.Context, userID string) context.Context {
	if userID == "" || GetUserIDFromContext(ctx) == userID {
		return ctx
	}

	ctx = context.WithValue(ctx, KeyUserID, userID)
	if logger := GetLogger(ctx); logger != nil {
		ctx = WithLogger(ctx, logger.With(slog.String("user_id", userID)))
	}

	return ctx
}

func GetUserIDFromContext(ctx context.Context) string {
	return stringValue(ctx, KeyUserID)
}

// WithMessageSID attaches the provider ID of the inbound SMS being handled.
func WithMessageSID(ctx context.Context, sid string) context.Context {
	if sid == "" {
		return ctx
	}

	ctx = context.WithValue(ctx, KeyMessageSID, sid)
	if logger := GetLogger(ctx); logger != nil {
		ctx = WithLogger(ctx, logger.With(slog.String("message_sid", sid)))
	}

	return ctx
}

func GetMessageSIDFromContext(ctx context.Context) string {
	return stringValue(ctx, KeyMessageSID)
}

func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, KeyLogger, logger)
}

// GetLogger returns the request-scoped logger, or nil.
func GetLogger(ctx context.Context) *slog.Logger {
	logger, _ := ctx.Value(KeyLogger).(*slog.Logger)

	return logger
}

// GetLoggerOrDefault returns the request-scoped logger, or fallback when there is none.
func GetLoggerOrDefault(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if logger := GetLogger(ctx); logger != nil {
		return logger
	}

	return fallback
}

func stringValue(ctx context.Context, key ContextKey) string {
	v, _ := ctx.Value(key).(string)

	return v
}
