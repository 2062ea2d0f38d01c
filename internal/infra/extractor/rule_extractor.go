// Package extractor turns free-text messages into structured intents.
package extractor

import (
	"context"
	"log/slog"

	"huddle/internal/domain/catalog"
	"huddle/internal/domain/entity"
	"huddle/internal/domain/service"
)

// ruleExtractor matches catalog names, aliases and written times. It is deterministic,
// so identical input always yields the same intent.
type ruleExtractor struct {
	catalog *catalog.Catalog
	logger  *slog.Logger
}

// NewRuleExtractor creates the mock intent extractor.
func NewRuleExtractor(cat *catalog.Catalog, logger *slog.Logger) service.IntentExtractor {
	return &ruleExtractor{catalog: cat, logger: logger}
}

func (e *ruleExtractor) Extract(_ context.Context, text string, uctx service.ExtractContext) (*entity.Intent, error) {
	intent := &entity.Intent{}

	if r, ok := e.catalog.FindRestaurant(text); ok {
		intent.Restaurant = r.Name
	}
	if l, ok := e.catalog.FindLocation(text); ok {
		intent.Location = l.Name
	}
	if w, ok := parseWindow(text, uctx.Now, e.catalog.Timezone(), e.catalog.ASAPWindow()); ok {
		intent.Window = w
	}

	if *intent == (entity.Intent{}) {
		return nil, service.ErrUnrecognized
	}

	e.logger.Debug("[RuleExtractor] Intent extracted",
		slog.String("user_id", uctx.UserID),
		slog.String("restaurant", intent.Restaurant),
		slog.String("location", intent.Location),
	)

	return intent, nil
}
