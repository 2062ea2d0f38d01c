package messenger

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"huddle/config"
	"huddle/internal/domain/service"
	"huddle/internal/errors"
)

const (
	defaultTwilioBaseURL = "https://api.twilio.com"
	defaultTimeout       = 10 * time.Second
)

// twilioMessenger sends SMS through the Twilio REST API.
type twilioMessenger struct {
	baseURL    string
	accountSID string
	authToken  string
	from       string
	httpClient *http.Client
	logger     *slog.Logger
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewTwilioMessenger creates the SMS messenger.
func NewTwilioMessenger(cfg *config.MessengerConfig, logger *slog.Logger) (service.Messenger, error) {
	if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" || cfg.TwilioFrom == "" {
		return nil, errors.New("twilio account sid, auth token and sender are required")
	}

	baseURL := strings.TrimRight(cfg.TwilioBaseURL, "/")
	if baseURL == "" {
		baseURL = defaultTwilioBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &twilioMessenger{
		baseURL:    baseURL,
		accountSID: cfg.TwilioAccountSID,
		authToken:  cfg.TwilioAuthToken,
		from:       cfg.TwilioFrom,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

func (m *twilioMessenger) Send(ctx context.Context, userID, text string) error {
	form := url.Values{}
	form.Set("To", userID)
	form.Set("From", m.from)
	form.Set("Body", text)

	endpoint := m.baseURL + "/2010-04-01/Accounts/" + url.PathEscape(m.accountSID) + "/Messages.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.WithStack(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(m.accountSID, m.authToken)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(service.ErrDeliveryFailed, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr twilioError
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(body, &apiErr)

		return errors.Wrapf(service.ErrDeliveryFailed, "twilio returned %d: %s", resp.StatusCode, apiErr.Message)
	}

	m.logger.Debug("[Twilio] Message sent", slog.String("user_id", userID))

	return nil
}
