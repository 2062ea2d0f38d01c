package pubsub

import (
	"context"
	"log/slog"
	"net/url"

	"huddle/config"
	"huddle/internal/domain/constants"
	"huddle/internal/domain/service"

	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// noopPublisher accepts finalized groups without handing them to order processing.
// Groups still move to handed_off, so this is only meant for local runs without a
// dispatcher.
type noopPublisher struct {
	logger *slog.Logger
}

func (p *noopPublisher) PublishGroupFinalized(ctx context.Context, event *service.GroupFinalizedEvent) error {
	p.logger.WarnContext(ctx, "Order processing disabled, finalized group is not dispatched",
		slog.String("group_id", event.GroupID),
		slog.String("restaurant", event.Restaurant),
		slog.Int("members", len(event.Members)),
	)

	return nil
}

func (p *noopPublisher) Close() error {
	return nil
}

// PublisherParams holds dependencies for EventPublisher, injected by Fx
type PublisherParams struct {
	fx.In

	Lc     fx.Lifecycle
	Ctx    context.Context
	Config *config.Config
	Logger *slog.Logger
}

// NewEventPublisher selects where finalized groups are sent: Google Pub/Sub, the
// dispatcher's push endpoint directly, or nowhere.
func NewEventPublisher(params PublisherParams) (service.EventPublisher, error) {
	cfg := params.Config.PubSub
	logger := params.Logger

	if cfg == nil || cfg.Provider == "" || cfg.Provider == constants.PubSubProviderNoop {
		logger.Warn("No order-processing topic configured, finalized groups will not be dispatched")

		return &noopPublisher{logger: logger}, nil
	}

	publisher, err := newPublisher(params.Ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	params.Lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			logger.Info("Closing group event publisher", slog.String("provider", cfg.Provider))

			return publisher.Close()
		},
	})

	return publisher, nil
}

func newPublisher(ctx context.Context, cfg *config.PubSubConfig, logger *slog.Logger) (service.EventPublisher, error) {
	switch cfg.Provider {
	case constants.PubSubProviderLocal:
		endpoint, err := url.Parse(cfg.LocalEndpoint)
		if err != nil || !endpoint.IsAbs() || endpoint.Host == "" {
			return nil, errors.Errorf("local provider needs an absolute dispatcher push URL, got %q", cfg.LocalEndpoint)
		}
		logger.Info("Finalized groups are pushed straight to the dispatcher", slog.String("endpoint", cfg.LocalEndpoint))

		return NewLocalHTTPPublisher(cfg.LocalEndpoint, logger), nil

	case constants.PubSubProviderGoogle:
		if cfg.ProjectID == "" || cfg.TopicID == "" {
			return nil, errors.New("google provider needs both projectId and topicId")
		}
		logger.Info("Finalized groups are published to Google Pub/Sub",
			slog.String("project_id", cfg.ProjectID),
			slog.String("topic_id", cfg.TopicID),
		)

		return NewGooglePubSubPublisher(ctx, cfg.ProjectID, cfg.TopicID, logger)

	default:
		return nil, errors.Errorf("unknown pubsub provider: %s", cfg.Provider)
	}
}

// Module provides the Pub/Sub FX module
//
//nolint:gochecknoglobals
var Module = fx.Options(
	fx.Provide(NewEventPublisher),
)
