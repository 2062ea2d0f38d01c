package middleware

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // Twilio signs webhooks with HMAC-SHA1.
	"encoding/base64"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	"huddle/config"
	"huddle/internal/delivery/api/response"
	"huddle/internal/domain/constants"

	"github.com/labstack/echo/v4"
)

// HeaderTwilioSignature carries the webhook signature computed by Twilio.
const HeaderTwilioSignature = "X-Twilio-Signature"

// TwilioSignatureMiddleware rejects SMS webhooks that were not signed with the account token.
type TwilioSignatureMiddleware struct {
	authToken string
	baseURL   string
	logger    *slog.Logger
}

// NewTwilioSignatureMiddleware is the constructor for TwilioSignatureMiddleware. Verification
// is active only for the live Twilio messenger with an auth token.
func NewTwilioSignatureMiddleware(cfg *config.Config, logger *slog.Logger) *TwilioSignatureMiddleware {
	m := &TwilioSignatureMiddleware{
		baseURL: strings.TrimRight(cfg.HTTP.PublicBaseURL, "/"),
		logger:  logger,
	}

	if cfg.Collaborators.Mode == constants.CollaboratorsLive && cfg.Messenger != nil &&
		cfg.Messenger.Provider == constants.MessengerProviderTwilio {
		m.authToken = cfg.Messenger.TwilioAuthToken
	}

	return m
}

// Verify checks the X-Twilio-Signature header against the public URL and form parameters.
func (m *TwilioSignatureMiddleware) Verify(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if m.authToken == "" {
			return next(c)
		}

		signature := c.Request().Header.Get(HeaderTwilioSignature)
		if signature == "" {
			return response.Unauthorized(c, "MISSING_SIGNATURE", "Webhook signature is missing")
		}

		form, err := c.FormParams()
		if err != nil {
			return response.BindingError(c, "INVALID_INPUT", "Invalid webhook form")
		}

		expected := TwilioSignature(m.authToken, m.baseURL+c.Request().URL.RequestURI(), form)
		if !hmac.Equal([]byte(expected), []byte(signature)) {
			m.logger.Warn("Rejected unsigned SMS webhook", slog.String("path", c.Request().URL.Path))

			return response.Unauthorized(c, "INVALID_SIGNATURE", "Webhook signature does not match")
		}

		return next(c)
	}
}

// TwilioSignature computes the signature Twilio attaches to a webhook: the base64 HMAC-SHA1
// of the full URL followed by every form key and value in key order.
func TwilioSignature(authToken, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for key := range form {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, key := range keys {
		for _, value := range form[key] {
			b.WriteString(key)
			b.WriteString(value)
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))

	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
