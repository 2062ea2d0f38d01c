package extractor

import (
	"context"
	"log/slog"

	"huddle/config"
	"huddle/internal/domain/catalog"
	"huddle/internal/domain/constants"
	"huddle/internal/domain/service"

	"go.uber.org/fx"
)

// ExtractorParams holds dependencies for the IntentExtractor, injected by Fx
type ExtractorParams struct {
	fx.In

	Ctx     context.Context
	Config  *config.Config
	Catalog *catalog.Catalog
	Logger  *slog.Logger
}

// NewIntentExtractor selects the rule-based extractor for mock collaborators and Gemini
// for live ones.
func NewIntentExtractor(params ExtractorParams) (service.IntentExtractor, error) {
	if params.Config.Collaborators.Mode != constants.CollaboratorsLive {
		params.Logger.Info("Using rule-based intent extractor")

		return NewRuleExtractor(params.Catalog, params.Logger), nil
	}

	return NewGeminiExtractor(params.Ctx, params.Config.Extractor, params.Catalog, params.Logger)
}

// Module provides the extractor FX module
//
//nolint:gochecknoglobals
var Module = fx.Options(
	fx.Provide(NewIntentExtractor),
)
