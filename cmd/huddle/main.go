package main

import (
	"context"
	"log/slog"
	"os"

	"huddle/config"
	"huddle/internal/delivery"
	"huddle/internal/delivery/api"
	apimiddleware "huddle/internal/delivery/api/middleware"
	"huddle/internal/delivery/api/router/handler"
	"huddle/internal/domain/catalog"
	"huddle/internal/domain/entity"
	"huddle/internal/domain/service"
	"huddle/internal/infra/auth"
	"huddle/internal/infra/extractor"
	logs "huddle/internal/infra/log"
	"huddle/internal/infra/messenger"
	"huddle/internal/infra/payment"
	"huddle/internal/infra/persistence"
	"huddle/internal/infra/pubsub"
	"huddle/internal/infra/qrcode"
	"huddle/internal/infra/scheduler"
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
		injectInfra(),
		persistence.Module,
		injectService(),
		injectUsecase(),
		injectDelivery(),
		injectMiddleware(),
		injectHandler(),
		fx.Invoke(
			startScheduler,
			startServer,
		),
	).Run()
}

func injectInfra() fx.Option {
	return fx.Provide(
		config.New,
		logs.New,
		context.Background,
		newClock,
		catalog.New,
	)
}

func newClock() entity.Clock {
	return entity.SystemClock{}
}

func injectService() fx.Option {
	return fx.Options(
		messenger.Module,
		extractor.Module,
		pubsub.Module,
		fx.Provide(
			auth.NewActionTokenService,
			payment.NewLinkProvider,
			newQRCodeService,
		),
	)
}

// newQRCodeService creates the payment QR renderer with the configured size and level
func newQRCodeService(cfg *config.Config) service.QRCodeService {
	if cfg.Payment == nil || cfg.Payment.QRSize == 0 {
		return qrcode.NewQRCodeService(256, "M")
	}

	return qrcode.NewQRCodeService(cfg.Payment.QRSize, cfg.Payment.QRErrorCorrectionLevel)
}

func injectUsecase() fx.Option {
	return fx.Options(
		fx.Provide(
			impl.NewLearningService,
			impl.NewCompatibilityScorer,
			impl.NewCandidateMatcher,
			impl.NewGroupService,
			impl.NewNegotiationService,
			impl.NewSessionService,
			impl.NewSweepService,
			impl.NewActionService,
			scheduler.NewRunner,
		),
	)
}

func injectMiddleware() fx.Option {
	return fx.Options(
		fx.Provide(
			apimiddleware.NewTwilioSignatureMiddleware,
		),
	)
}

func injectHandler() fx.Option {
	return fx.Options(
		fx.Provide(
			handler.NewMessageHandler,
			handler.NewRequestHandler,
			handler.NewProposalHandler,
			handler.NewGroupHandler,
			handler.NewAdminHandler,
		),
	)
}

func injectDelivery() fx.Option {
	return fx.Options(
		fx.Provide(
			fx.Annotate(
				api.NewServer,
				fx.ResultTags(`group:"deliveries"`),
			),
		),
	)
}

// startScheduler forces construction of the runner, whose lifecycle hooks start the jobs.
func startScheduler(*scheduler.Runner) {}

func startServer(ctx context.Context, params startServerParams) {
	for _, delivery := range params.Deliveries {
		go func() {
			if err := delivery.Serve(ctx); err != nil {
				slog.Error("Failed to start server", slog.Any("error", err))
				os.Exit(1)
			}
		}()
	}
}
