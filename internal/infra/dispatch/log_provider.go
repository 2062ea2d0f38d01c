// Package dispatch places finalized group orders with the courier.
package dispatch

import (
	"context"
	"log/slog"

	"huddle/internal/domain/service"
)

type logProvider struct {
	logger *slog.Logger
}

// NewLogProvider creates the mock delivery provider.
func NewLogProvider(logger *slog.Logger) service.DeliveryProvider {
	return &logProvider{logger: logger}
}

func (p *logProvider) Dispatch(_ context.Context, event service.GroupFinalizedEvent) (string, error) {
	p.logger.Info("[LogDelivery] Order dispatched",
		slog.String("group_id", event.GroupID),
		slog.String("restaurant", event.Restaurant),
		slog.String("location", event.Location),
		slog.Int("member_count", len(event.Members)),
	)

	return "log-" + event.GroupID, nil
}
