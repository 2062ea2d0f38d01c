package pubsub

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"huddle/config"
	"huddle/internal/domain/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
)

func testEvent() *service.GroupFinalizedEvent {
	return &service.GroupFinalizedEvent{
		RequestID:  "req-1",
		EventID:    "6f1c6c1e-2d0b-4f0e-9a51-1f0a3c7d9e21",
		GroupID:    "6f1c6c1e-2d0b-4f0e-9a51-1f0a3c7d9e21",
		Members:    []service.GroupFinalizedMember{{RequestID: "a", UserID: "alice"}, {RequestID: "b", UserID: "bob"}},
		Restaurant: "Chipotle",
		Location:   "Student Center East",
		FormedAt:   time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLocalHTTPPublisher_PushesEnvelope(t *testing.T) {
	var received PubSubPushMessage
	var requestID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID = r.Header.Get("X-Request-Id")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	publisher := NewLocalHTTPPublisher(server.URL, discardLogger())
	event := testEvent()

	require.NoError(t, publisher.PublishGroupFinalized(context.Background(), event))

	assert.Equal(t, "req-1", requestID)
	assert.Equal(t, event.EventID, received.Message.MessageID)
	assert.Equal(t, event.GroupID, received.Message.Attributes["group_id"])

	data, err := base64.StdEncoding.DecodeString(received.Message.Data)
	require.NoError(t, err)

	var decoded service.GroupFinalizedEvent
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, event.Members, decoded.Members)
	assert.True(t, event.FormedAt.Equal(decoded.FormedAt))
}

func TestLocalHTTPPublisher_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	publisher := NewLocalHTTPPublisher(server.URL, discardLogger())

	err := publisher.PublishGroupFinalized(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestNewEventPublisher(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.PubSubConfig
		wantErr bool
		noop    bool
	}{
		{name: "not configured", cfg: nil, noop: true},
		{name: "noop provider", cfg: &config.PubSubConfig{Provider: "noop"}, noop: true},
		{name: "local", cfg: &config.PubSubConfig{Provider: "local", LocalEndpoint: "http://localhost:8090/push"}},
		{name: "local without endpoint", cfg: &config.PubSubConfig{Provider: "local"}, wantErr: true},
		{name: "local with relative endpoint", cfg: &config.PubSubConfig{Provider: "local", LocalEndpoint: "/push"}, wantErr: true},
		{name: "google without topic", cfg: &config.PubSubConfig{Provider: "google", ProjectID: "p"}, wantErr: true},
		{name: "google without project", cfg: &config.PubSubConfig{Provider: "google", TopicID: "t"}, wantErr: true},
		{name: "unknown", cfg: &config.PubSubConfig{Provider: "kafka"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			publisher, err := NewEventPublisher(PublisherParams{
				Lc:     fxtest.NewLifecycle(t),
				Ctx:    context.Background(),
				Config: &config.Config{PubSub: tt.cfg},
				Logger: discardLogger(),
			})
			if tt.wantErr {
				assert.Error(t, err)

				return
			}
			require.NoError(t, err)

			_, isNoop := publisher.(*noopPublisher)
			assert.Equal(t, tt.noop, isNoop)
			if tt.noop {
				assert.NoError(t, publisher.PublishGroupFinalized(context.Background(), testEvent()))
			}
		})
	}
}
