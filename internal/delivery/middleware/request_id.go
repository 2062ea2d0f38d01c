package middleware

import (
	"log/slog"

	deliverycontext "huddle/internal/delivery/context"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequestIDMiddleware tags every request with an ID and a request logger. Twilio
// retries of one webhook keep the ID of the first attempt.
type RequestIDMiddleware struct {
	logger *slog.Logger
}

// NewRequestIDMiddleware creates a new Request ID middleware
func NewRequestIDMiddleware(logger *slog.Logger) *RequestIDMiddleware {
	return &RequestIDMiddleware{
		logger: logger,
	}
}

// Process must run after routing so path parameters are available.
func (m *RequestIDMiddleware) Process(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()

		requestID := firstNonEmpty(
			req.Header.Get(deliverycontext.HeaderXRequestID),
			req.Header.Get(deliverycontext.HeaderTwilioIdempotency),
		)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		deliverycontext.SetRequestID(c, requestID)
		c.Response().Header().Set(deliverycontext.HeaderXRequestID, requestID)

		ctx := deliverycontext.WithRequestID(req.Context(), requestID)
		ctx = deliverycontext.WithLogger(ctx, m.logger.With(slog.String("request_id", requestID)))

		ctx = deliverycontext.WithUser(ctx, c.Param("userId"))

		c.SetRequest(req.WithContext(ctx))

		return next(c)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
