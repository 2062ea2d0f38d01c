package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"huddle/config"
	"huddle/internal/domain/catalog"
	"huddle/internal/domain/entity"
	"huddle/internal/domain/service"
	"huddle/internal/errors"

	"google.golang.org/genai"
)

const (
	defaultModel      = "gemini-2.5-flash"
	defaultTimeout    = 15 * time.Second
	maxRetries        = 2
	retryDelay        = 500 * time.Millisecond
	systemInstruction = `You read short text messages from students who want to split a food delivery order.
Return the restaurant, the drop-off location and the desired time mentioned in the message.
Only use restaurant and location names from the lists you are given; leave a field empty when the
message does not mention it. Times are 24-hour "HH:MM" in the user's local time. Set asap when the
user wants food as soon as possible.`
)

// contentGenerator is the part of the genai client the extractor uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// geminiExtractor asks Gemini for a JSON intent and validates it against the catalog.
type geminiExtractor struct {
	models        contentGenerator
	model         string
	timeout       time.Duration
	contentConfig *genai.GenerateContentConfig
	catalog       *catalog.Catalog
	logger        *slog.Logger
}

type extractedIntent struct {
	Restaurant string `json:"restaurant"`
	Location   string `json:"location"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	ASAP       bool   `json:"asap"`
}

var intentSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"restaurant": {Type: genai.TypeString, Description: "Restaurant name from the known list. Empty if not mentioned."},
		"location":   {Type: genai.TypeString, Description: "Drop-off location from the known list. Empty if not mentioned."},
		"start_time": {Type: genai.TypeString, Description: "Start of the desired time as HH:MM (24h). Empty if not mentioned."},
		"end_time":   {Type: genai.TypeString, Description: "End of the desired time as HH:MM (24h). Empty for a single time."},
		"asap":       {Type: genai.TypeBoolean, Description: "True when the user wants the food now."},
	},
	Required: []string{"restaurant", "location", "start_time", "end_time", "asap"},
}

// NewGeminiExtractor creates the live intent extractor.
func NewGeminiExtractor(ctx context.Context, cfg *config.ExtractorConfig, cat *catalog.Catalog, logger *slog.Logger) (service.IntentExtractor, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create genai client")
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	logger.Info("Gemini intent extractor initialized", slog.String("model", model))

	return newGeminiExtractor(client.Models, model, timeout, cat, logger), nil
}

func newGeminiExtractor(models contentGenerator, model string, timeout time.Duration, cat *catalog.Catalog, logger *slog.Logger) *geminiExtractor {
	// Zero temperature keeps answers stable for identical input.
	temperature := float32(0)

	return &geminiExtractor{
		models:  models,
		model:   model,
		timeout: timeout,
		contentConfig: &genai.GenerateContentConfig{
			Temperature:       &temperature,
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemInstruction}}},
			ResponseMIMEType:  "application/json",
			ResponseSchema:    intentSchema,
		},
		catalog: cat,
		logger:  logger.With(slog.String("component", "gemini_extractor")),
	}
}

func (e *geminiExtractor) Extract(ctx context.Context, text string, uctx service.ExtractContext) (*entity.Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	contents := []*genai.Content{genai.NewContentFromText(e.prompt(text, uctx), genai.RoleUser)}

	resp, err := e.generateWithRetries(ctx, contents)
	if err != nil {
		return nil, errors.Wrap(err, "gemini intent extraction failed")
	}

	raw := strings.TrimSpace(resp.Text())
	if raw == "" {
		return nil, service.ErrUnrecognized
	}

	var out extractedIntent
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		e.logger.WarnContext(ctx, "Malformed extractor response", slog.String("response", raw), slog.Any("error", err))

		return nil, service.ErrUnrecognized
	}

	intent := e.validate(out, uctx.Now)
	if *intent == (entity.Intent{}) {
		return nil, service.ErrUnrecognized
	}

	return intent, nil
}

func (e *geminiExtractor) prompt(text string, uctx service.ExtractContext) string {
	tz := e.catalog.Timezone()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Current local time: %s\n", uctx.Now.In(tz).Format("Monday 15:04"))
	sb.WriteString("Known restaurants:\n")
	for _, r := range e.catalog.Restaurants() {
		fmt.Fprintf(&sb, "- %s\n", r.Name)
	}
	sb.WriteString("Known locations:\n")
	for _, l := range e.catalog.Locations() {
		fmt.Fprintf(&sb, "- %s\n", l.Name)
	}
	if uctx.Partial.Restaurant != "" || uctx.Partial.Location != "" {
		fmt.Fprintf(&sb, "Already known: restaurant %q, location %q\n", uctx.Partial.Restaurant, uctx.Partial.Location)
	}
	fmt.Fprintf(&sb, "\nMessage: %s\n", text)

	return sb.String()
}

// validate keeps only the fields that resolve against the catalog. The model output is
// untrusted.
func (e *geminiExtractor) validate(out extractedIntent, now time.Time) *entity.Intent {
	intent := &entity.Intent{}
	tz := e.catalog.Timezone()

	if r, ok := e.catalog.Restaurant(out.Restaurant); ok {
		intent.Restaurant = r.Name
	} else if r, ok := e.catalog.FindRestaurant(out.Restaurant); ok && out.Restaurant != "" {
		intent.Restaurant = r.Name
	}
	if l, ok := e.catalog.Location(out.Location); ok {
		intent.Location = l.Name
	} else if l, ok := e.catalog.FindLocation(out.Location); ok && out.Location != "" {
		intent.Location = l.Name
	}

	start, okStart := parseHHMM(out.StartTime, now, tz)
	end, okEnd := parseHHMM(out.EndTime, now, tz)
	switch {
	case okStart && okEnd && !end.Before(start):
		intent.Window = entity.TimeWindow{Start: start, End: end}
	case okStart && !okEnd:
		intent.Window = entity.NewPointWindow(start)
	case out.ASAP:
		intent.Window = entity.TimeWindow{Start: now, End: now.Add(e.catalog.ASAPWindow())}
	}

	return intent
}

func (e *geminiExtractor) generateWithRetries(ctx context.Context, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		resp, err := e.models.GenerateContent(ctx, e.model, contents, e.contentConfig)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var apiErr genai.APIError
		var apiErrPtr *genai.APIError
		retriable := (errors.As(err, &apiErr) && (apiErr.Code == 500 || apiErr.Code == 503)) ||
			(errors.As(err, &apiErrPtr) && (apiErrPtr.Code == 500 || apiErrPtr.Code == 503))
		if !retriable || attempt == maxRetries {
			break
		}

		e.logger.WarnContext(ctx, "Gemini call failed, retrying", slog.Int("attempt", attempt+1), slog.Any("error", err))
		select {
		case <-ctx.Done():
			return nil, errors.WithStack(ctx.Err())
		case <-time.After(retryDelay):
		}
	}

	return nil, errors.WithStack(lastErr)
}
