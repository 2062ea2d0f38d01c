package dispatch

import (
	"log/slog"

	"huddle/config"
	"huddle/internal/domain/constants"
	"huddle/internal/domain/service"

	"github.com/pkg/errors"
)

// NewDeliveryProvider selects the courier integration. Mock collaborators always log.
func NewDeliveryProvider(cfg *config.Config, logger *slog.Logger) (service.DeliveryProvider, error) {
	if cfg.Collaborators.Mode != constants.CollaboratorsLive || cfg.Delivery == nil {
		return NewLogProvider(logger), nil
	}

	switch cfg.Delivery.Provider {
	case "", constants.DeliveryProviderLog:
		return NewLogProvider(logger), nil
	case constants.DeliveryProviderHTTP:
		return NewHTTPProvider(cfg.Delivery, logger)
	default:
		return nil, errors.Errorf("unknown delivery provider: %s", cfg.Delivery.Provider)
	}
}
