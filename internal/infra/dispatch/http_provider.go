package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"huddle/config"
	"huddle/internal/domain/service"
	"huddle/internal/errors"
)

const defaultTimeout = 10 * time.Second

// httpProvider creates deliveries through a courier REST API.
type httpProvider struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

type deliveryRequest struct {
	ExternalID    string            `json:"external_id"`
	Pickup        string            `json:"pickup_name"`
	Dropoff       string            `json:"dropoff_name"`
	DropoffReady  time.Time         `json:"dropoff_ready_dt"`
	DropoffLatest time.Time         `json:"dropoff_deadline_dt"`
	ManifestItems []manifestItem    `json:"manifest_items"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type manifestItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type deliveryResponse struct {
	ID string `json:"id"`
}

// NewHTTPProvider creates the live delivery provider.
func NewHTTPProvider(cfg *config.DeliveryConfig, logger *slog.Logger) (service.DeliveryProvider, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, errors.New("delivery endpoint is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &httpProvider{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// Dispatch creates one delivery per group. Network failures and 5xx answers are reported as
// ErrProviderUnavailable so the caller can retry; other failures are final.
func (p *httpProvider) Dispatch(ctx context.Context, event service.GroupFinalizedEvent) (string, error) {
	items := make([]manifestItem, 0, len(event.Members))
	for _, m := range event.Members {
		items = append(items, manifestItem{Name: "Order for " + m.UserID, Quantity: 1})
	}

	body, err := json.Marshal(deliveryRequest{
		ExternalID:    event.GroupID,
		Pickup:        event.Restaurant,
		Dropoff:       event.Location,
		DropoffReady:  event.WindowStart,
		DropoffLatest: event.WindowEnd,
		ManifestItems: items,
		Metadata:      map[string]string{"event_id": event.EventID},
	})
	if err != nil {
		return "", errors.WithStack(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/deliveries", bytes.NewReader(body))
	if err != nil {
		return "", errors.WithStack(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", event.EventID)
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(service.ErrProviderUnavailable, err.Error())
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return "", errors.Wrapf(service.ErrProviderUnavailable, "courier returned %d", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", errors.Errorf("courier rejected delivery: status %d", resp.StatusCode)
	}

	var out deliveryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", errors.Wrap(err, "failed to decode courier response")
	}

	p.logger.Info("[HTTPDelivery] Delivery created",
		slog.String("group_id", event.GroupID),
		slog.String("delivery_id", out.ID),
	)

	return out.ID, nil
}
