package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"huddle/config"
	"huddle/internal/domain/service"
	"huddle/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEvent() service.GroupFinalizedEvent {
	return service.GroupFinalizedEvent{
		EventID:     "evt-1",
		GroupID:     "grp-1",
		Members:     []service.GroupFinalizedMember{{RequestID: "r1", UserID: "alice"}, {RequestID: "r2", UserID: "bob"}},
		Restaurant:  "Chipotle",
		Location:    "Student Center East",
		WindowStart: time.Date(2026, 3, 2, 12, 15, 0, 0, time.UTC),
		WindowEnd:   time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC),
	}
}

func TestHTTPProvider_Dispatch(t *testing.T) {
	var got deliveryRequest
	var auth, idempotency string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/deliveries", r.URL.Path)
		auth = r.Header.Get("Authorization")
		idempotency = r.Header.Get("Idempotency-Key")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"del_123"}`))
	}))
	defer server.Close()

	provider, err := NewHTTPProvider(&config.DeliveryConfig{Endpoint: server.URL + "/", APIKey: "key"}, discardLogger())
	require.NoError(t, err)

	id, err := provider.Dispatch(context.Background(), testEvent())
	require.NoError(t, err)

	assert.Equal(t, "del_123", id)
	assert.Equal(t, "Bearer key", auth)
	assert.Equal(t, "evt-1", idempotency)
	assert.Equal(t, "grp-1", got.ExternalID)
	assert.Equal(t, "Chipotle", got.Pickup)
	assert.Len(t, got.ManifestItems, 2)
	assert.True(t, got.DropoffLatest.Equal(testEvent().WindowEnd))
}

func TestHTTPProvider_FailureClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"server error", http.StatusBadGateway, true},
		{"rate limited", http.StatusTooManyRequests, true},
		{"bad request", http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			provider, err := NewHTTPProvider(&config.DeliveryConfig{Endpoint: server.URL}, discardLogger())
			require.NoError(t, err)

			_, err = provider.Dispatch(context.Background(), testEvent())
			require.Error(t, err)
			assert.Equal(t, tt.retryable, errors.Is(err, service.ErrProviderUnavailable))
		})
	}
}

func TestNewDeliveryProvider(t *testing.T) {
	cfg := &config.Config{Delivery: &config.DeliveryConfig{Provider: "http"}}
	cfg.Collaborators.Mode = "mock"

	provider, err := NewDeliveryProvider(cfg, discardLogger())
	require.NoError(t, err)
	id, err := provider.Dispatch(context.Background(), testEvent())
	require.NoError(t, err)
	assert.Equal(t, "log-grp-1", id)

	cfg.Collaborators.Mode = "live"
	_, err = NewDeliveryProvider(cfg, discardLogger())
	assert.Error(t, err, "http provider needs an endpoint")

	cfg.Delivery.Provider = "drone"
	_, err = NewDeliveryProvider(cfg, discardLogger())
	assert.Error(t, err)
}
