package messenger

import (
	"context"
	"log/slog"

	"huddle/config"
	"huddle/internal/domain/constants"
	"huddle/internal/domain/service"

	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// MessengerParams holds dependencies for the Messenger, injected by Fx
type MessengerParams struct {
	fx.In

	Ctx    context.Context
	Config *config.Config
	Logger *slog.Logger
}

// NewMessenger selects the outbound channel. Mock collaborators always log.
func NewMessenger(params MessengerParams) (service.Messenger, error) {
	cfg := params.Config.Messenger
	logger := params.Logger

	if params.Config.Collaborators.Mode != constants.CollaboratorsLive || cfg == nil {
		logger.Info("Using log messenger")

		return NewLogMessenger(logger), nil
	}

	switch cfg.Provider {
	case "", constants.MessengerProviderLog:
		return NewLogMessenger(logger), nil
	case constants.MessengerProviderTwilio:
		logger.Info("Using Twilio messenger", slog.String("from", cfg.TwilioFrom))

		return NewTwilioMessenger(cfg, logger)
	case constants.MessengerProviderFirebase:
		if params.Config.Firebase == nil || params.Config.Firebase.CredentialsPath == "" {
			return nil, errors.New("firebase credentials are required for the firebase messenger")
		}
		logger.Info("Using Firebase messenger", slog.String("topic_prefix", cfg.TopicPrefix))

		return NewFirebaseMessenger(params.Ctx, params.Config.Firebase.CredentialsPath, cfg.TopicPrefix, logger)
	default:
		return nil, errors.Errorf("unknown messenger provider: %s", cfg.Provider)
	}
}

// Module provides the messenger FX module
//
//nolint:gochecknoglobals
var Module = fx.Options(
	fx.Provide(NewMessenger),
)
