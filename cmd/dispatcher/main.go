package main

import (
	"context"
	"log/slog"
	"os"

	"huddle/config"
	"huddle/internal/delivery"
	"huddle/internal/delivery/worker"
	"huddle/internal/delivery/worker/handler"
	"huddle/internal/domain/entity"
	"huddle/internal/infra/dispatch"
	logs "huddle/internal/infra/log"
	"huddle/internal/infra/persistence"
	"huddle/internal/usecase/impl"

	"go.uber.org/fx"
)

type startServerParams struct {
	fx.In
	fx.Lifecycle

	Deliveries []delivery.Delivery `group:"deliveries"`
}

func main() {
	fx.New(
		fx.Provide(
			config.New,
			logs.New,
			context.Background,
			newClock,
		),
		persistence.Module,
		fx.Provide(
			dispatch.NewDeliveryProvider,
			impl.NewDispatchService,
			handler.NewPushHandler,
			fx.Annotate(
				worker.NewServer,
				fx.ResultTags(`group:"deliveries"`),
			),
		),
		fx.Invoke(startServer),
	).Run()
}

func newClock() entity.Clock {
	return entity.SystemClock{}
}

func startServer(ctx context.Context, params startServerParams) {
	for _, delivery := range params.Deliveries {
		go func() {
			if err := delivery.Serve(ctx); err != nil {
				slog.Error("Failed to start dispatcher", slog.Any("error", err))
				os.Exit(1)
			}
		}()
	}
}
