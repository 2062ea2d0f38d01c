package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
	"github.com/slighter12/go-lib/database/postgres"
)

const (
	defaultPath               = "."
	defaultMaxRequestBodySize = "100KB"
)

type Config struct {
	Env struct {
		Env         string `json:"env" yaml:"env"`
		ServiceName string `json:"serviceName" yaml:"serviceName"`
		Debug       bool   `json:"debug" yaml:"debug"`
		Log         Log    `json:"log" yaml:"log"`
	} `json:"env" yaml:"env"`

	HTTP struct {
		Port               int    `json:"port" yaml:"port" validate:"min=0,max=65535"`
		MaxRequestBodySize string `json:"maxRequestBodySize" yaml:"maxRequestBodySize"`

		// PublicBaseURL prefixes the action links embedded in outbound messages
		PublicBaseURL string `json:"publicBaseUrl" yaml:"publicBaseUrl"`

		Timeouts struct {
			ReadTimeout       time.Duration `json:"readTimeout" yaml:"readTimeout"`
			ReadHeaderTimeout time.Duration `json:"readHeaderTimeout" yaml:"readHeaderTimeout"`
			WriteTimeout      time.Duration `json:"writeTimeout" yaml:"writeTimeout"`
			IdleTimeout       time.Duration `json:"idleTimeout" yaml:"idleTimeout"`
		} `json:"timeouts" yaml:"timeouts"`
	} `json:"http" yaml:"http"`

	Postgres *postgres.DBConn `json:"postgres" yaml:"postgres" mapstructure:"postgres"`

	// Store selects the Profile/Session Store implementation
	Store StoreConfig `json:"store" yaml:"store"`

	// Collaborators selects mock or live external collaborators
	Collaborators CollaboratorsConfig `json:"collaborators" yaml:"collaborators"`

	SecretKey struct {
		// Action signs the accept/decline/cancel links sent to users
		Action string `json:"action" yaml:"action"`
	} `json:"secretKey" yaml:"secretKey"`

	Matching    MatchingConfig    `json:"matching" yaml:"matching"`
	Scoring     ScoringConfig     `json:"scoring" yaml:"scoring"`
	Negotiation NegotiationConfig `json:"negotiation" yaml:"negotiation"`
	Scheduler   SchedulerConfig   `json:"scheduler" yaml:"scheduler"`
	Catalog     CatalogConfig     `json:"catalog" yaml:"catalog"`

	// Messenger configuration for outbound messages
	Messenger *MessengerConfig `json:"messenger" yaml:"messenger"`

	// Extractor configuration for the live intent extractor
	Extractor *ExtractorConfig `json:"extractor" yaml:"extractor"`

	// Payment configuration for payment links and QR codes
	Payment *PaymentConfig `json:"payment" yaml:"payment"`

	// Delivery configuration for the courier integration used by the dispatcher
	Delivery *DeliveryConfig `json:"delivery" yaml:"delivery"`

	// PubSub configuration for event publishing
	PubSub *PubSubConfig `json:"pubsub" yaml:"pubsub"`

	// Firebase configuration for push messages
	Firebase *FirebaseConfig `json:"firebase" yaml:"firebase"`
}

type Log struct {
	Pretty bool   `json:"pretty" yaml:"pretty"`
	Level  string `json:"level" yaml:"level"`
}

// StoreConfig defines the persistence backend
type StoreConfig struct {
	// Driver is "memory" or "postgres"
	Driver             string        `json:"driver" yaml:"driver" validate:"oneof=memory postgres"`
	AutoMigrate        bool          `json:"autoMigrate" yaml:"autoMigrate"`
	SlowQueryThreshold time.Duration `json:"slowQueryThreshold" yaml:"slowQueryThreshold"`
}

// CollaboratorsConfig selects the implementation of every external collaborator
type CollaboratorsConfig struct {
	// Mode is "mock" or "live"
	Mode string `json:"mode" yaml:"mode" validate:"oneof=mock live"`
}

// MatchingConfig defines group size and wait limits
type MatchingConfig struct {
	MinGroupSize int `json:"minGroupSize" yaml:"minGroupSize" validate:"min=2"`
	MaxGroupSize int `json:"maxGroupSize" yaml:"maxGroupSize" validate:"min=2"`

	// WaitTimeout is how long a request waits for a candidate before the deadline check
	WaitTimeout time.Duration `json:"waitTimeout" yaml:"waitTimeout" validate:"gt=0"`

	// MaxWait is the hard expiry measured from request creation
	MaxWait time.Duration `json:"maxWait" yaml:"maxWait" validate:"gt=0"`

	// ExclusionCooldown keeps a failed counterpart out of candidate lists
	ExclusionCooldown time.Duration `json:"exclusionCooldown" yaml:"exclusionCooldown" validate:"gte=0"`

	// TimeTolerance is the largest gap allowed between member windows of a group
	TimeTolerance time.Duration `json:"timeTolerance" yaml:"timeTolerance" validate:"gte=0"`
}

// ScoringConfig defines the compatibility scorer
type ScoringConfig struct {
	Weights ScoringWeights `json:"weights" yaml:"weights"`

	AcceptanceThreshold   float64       `json:"acceptanceThreshold" yaml:"acceptanceThreshold" validate:"gte=0,lte=1"`
	MaxTimingGap          time.Duration `json:"maxTimingGap" yaml:"maxTimingGap" validate:"gt=0"`
	SatisfactionThreshold float64       `json:"satisfactionThreshold" yaml:"satisfactionThreshold" validate:"gte=0"`

	// RelatedRestaurantCredit is the restaurant credit for distinct restaurants in one category
	RelatedRestaurantCredit float64 `json:"relatedRestaurantCredit" yaml:"relatedRestaurantCredit" validate:"gte=0,lte=1"`

	// SameZoneCredit is the location credit for distinct locations in one campus zone
	SameZoneCredit float64 `json:"sameZoneCredit" yaml:"sameZoneCredit" validate:"gte=0,lte=1"`

	// DistanceBuckets grade distinct locations with known coordinates, nearest first
	DistanceBuckets []DistanceBucket `json:"distanceBuckets" yaml:"distanceBuckets" validate:"dive"`
}

// ScoringWeights are the component weights; they must sum to 1.0
type ScoringWeights struct {
	Restaurant float64 `json:"restaurant" yaml:"restaurant" validate:"gte=0,lte=1"`
	Location   float64 `json:"location" yaml:"location" validate:"gte=0,lte=1"`
	Timing     float64 `json:"timing" yaml:"timing" validate:"gte=0,lte=1"`
	Historical float64 `json:"historical" yaml:"historical" validate:"gte=0,lte=1"`
}

// Sum returns the total of all weights
func (w ScoringWeights) Sum() float64 {
	return w.Restaurant + w.Location + w.Timing + w.Historical
}

// DistanceBucket grants Credit to locations at most MaxMeters apart
type DistanceBucket struct {
	MaxMeters float64 `json:"maxMeters" yaml:"maxMeters" validate:"gte=0"`
	Credit    float64 `json:"credit" yaml:"credit" validate:"gte=0,lte=1"`
}

// NegotiationConfig defines the proposal protocol
type NegotiationConfig struct {
	// Window is how long a target has to answer a proposal
	Window time.Duration `json:"window" yaml:"window" validate:"gt=0"`

	// MaxRounds bounds counter-proposal rounds of one negotiation
	MaxRounds int `json:"maxRounds" yaml:"maxRounds" validate:"min=1"`

	// MaxConflictRetries bounds re-reads after a lost compare-and-swap
	MaxConflictRetries int `json:"maxConflictRetries" yaml:"maxConflictRetries" validate:"min=1"`

	// ActionLinkTTL is the lifetime of signed action links
	ActionLinkTTL time.Duration `json:"actionLinkTtl" yaml:"actionLinkTtl" validate:"gt=0"`
}

// SchedulerConfig defines the periodic triggers
type SchedulerConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Timezone applies to the check-in cron expression
	Timezone string `json:"timezone" yaml:"timezone"`

	// CheckInCron fires the proactive check-in, once per configured window
	CheckInCron string `json:"checkInCron" yaml:"checkInCron"`

	// CheckInMessage is the prompt sent to users without an open request
	CheckInMessage string `json:"checkInMessage" yaml:"checkInMessage"`

	// SweepInterval drives the timeout sweep and scheduled activation
	SweepInterval time.Duration `json:"sweepInterval" yaml:"sweepInterval" validate:"gt=0"`

	// ActivationLeadTime is how long before the desired time a scheduled request starts matching
	ActivationLeadTime time.Duration `json:"activationLeadTime" yaml:"activationLeadTime" validate:"gte=0"`

	// StaleAfter cancels requests still awaiting intent after this much inactivity
	StaleAfter time.Duration `json:"staleAfter" yaml:"staleAfter" validate:"gt=0"`
}

// CatalogConfig lists the known restaurants and drop-off locations
type CatalogConfig struct {
	// ASAPWindow is the window used for "now" style requests
	ASAPWindow time.Duration `json:"asapWindow" yaml:"asapWindow" validate:"gt=0"`

	// Timezone interprets times of day written by users
	Timezone string `json:"timezone" yaml:"timezone"`

	Restaurants []RestaurantConfig `json:"restaurants" yaml:"restaurants" validate:"dive"`
	Locations   []LocationConfig   `json:"locations" yaml:"locations" validate:"dive"`
}

// RestaurantConfig is one known restaurant
type RestaurantConfig struct {
	Name     string   `json:"name" yaml:"name" validate:"required"`
	Category string   `json:"category" yaml:"category"`
	Aliases  []string `json:"aliases" yaml:"aliases"`
}

// LocationConfig is one known drop-off location
type LocationConfig struct {
	Name      string   `json:"name" yaml:"name" validate:"required"`
	Zone      string   `json:"zone" yaml:"zone"`
	Latitude  float64  `json:"latitude" yaml:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64  `json:"longitude" yaml:"longitude" validate:"gte=-180,lte=180"`
	Aliases   []string `json:"aliases" yaml:"aliases"`
}

// MessengerConfig defines the outbound message channels
type MessengerConfig struct {
	// Provider is "log", "twilio" or "firebase"
	Provider string `json:"provider" yaml:"provider"`

	// Twilio REST credentials
	TwilioAccountSID string        `json:"twilioAccountSid" yaml:"twilioAccountSid"`
	TwilioAuthToken  string        `json:"twilioAuthToken" yaml:"twilioAuthToken"`
	TwilioFrom       string        `json:"twilioFrom" yaml:"twilioFrom"`
	TwilioBaseURL    string        `json:"twilioBaseUrl" yaml:"twilioBaseUrl"`
	Timeout          time.Duration `json:"timeout" yaml:"timeout"`

	// TopicPrefix prefixes the per-user Firebase topic
	TopicPrefix string `json:"topicPrefix" yaml:"topicPrefix"`
}

// ExtractorConfig defines the live Gemini intent extractor
type ExtractorConfig struct {
	APIKey  string        `json:"apiKey" yaml:"apiKey"`
	Model   string        `json:"model" yaml:"model"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// PaymentConfig defines payment links and their QR rendering
type PaymentConfig struct {
	// GroupLink is sent to members of a group of two or more
	GroupLink string `json:"groupLink" yaml:"groupLink"`

	// SoloLink is sent when a single user orders alone
	SoloLink string `json:"soloLink" yaml:"soloLink"`

	QRSize                 int    `json:"qrSize" yaml:"qrSize"`
	QRErrorCorrectionLevel string `json:"qrErrorCorrectionLevel" yaml:"qrErrorCorrectionLevel"`
}

// DeliveryConfig defines the courier integration
type DeliveryConfig struct {
	// Provider is "log" or "http"
	Provider string        `json:"provider" yaml:"provider"`
	Endpoint string        `json:"endpoint" yaml:"endpoint"`
	APIKey   string        `json:"apiKey" yaml:"apiKey"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout"`

	// ListenPort serves the dispatcher push endpoint; zero falls back to http.port
	ListenPort int `json:"listenPort" yaml:"listenPort" validate:"min=0,max=65535"`
}

// FirebaseConfig defines Firebase configuration for push messages
type FirebaseConfig struct {
	ProjectID       string `json:"projectId" yaml:"projectId"`
	CredentialsPath string `json:"credentialsPath" yaml:"credentialsPath"`
}

// PubSubConfig defines Pub/Sub configuration for event publishing
type PubSubConfig struct {
	// Provider type: "local" for local HTTP, "google" for Google Pub/Sub or "noop"
	Provider string `json:"provider" yaml:"provider"`

	// Google Cloud project ID (for google provider)
	ProjectID string `json:"projectId" yaml:"projectId"`

	// Pub/Sub topic ID (for google provider)
	TopicID string `json:"topicId" yaml:"topicId"`

	// Local HTTP endpoint for development (for local provider)
	LocalEndpoint string `json:"localEndpoint" yaml:"localEndpoint"`

	// PushAudience is the expected audience of push subscription OIDC tokens.
	// Empty disables verification on the dispatcher.
	PushAudience string `json:"pushAudience" yaml:"pushAudience"`
}

// LoadWithEnv loads .yaml files through koanf.
func LoadWithEnv[T any](currEnv string, configPath ...string) (*T, error) {
	cfg := new(T)
	koanfInstance := koanf.New(".")

	// Build list of paths to search for config file
	searchPaths := []string{defaultPath}
	if len(configPath) != 0 {
		pwd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrap(err, "os.Getwd")
		}
		for _, path := range configPath {
			abs := filepath.Join(pwd, path)
			searchPaths = append(searchPaths, abs)
		}
	}

	// Try to find and load the config file
	var configFile string
	var found bool
	for _, path := range searchPaths {
		candidate := filepath.Join(path, currEnv+".yaml")
		if _, err := os.Stat(candidate); err == nil {
			configFile = candidate
			found = true

			break
		}
	}

	if !found {
		return nil, errors.Errorf("config file %s.yaml not found in any search path", currEnv)
	}

	// Load YAML config file
	if err := koanfInstance.Load(file.Provider(configFile), yaml.Parser()); err != nil {
		return nil, errors.Wrapf(err, "read %s config failed", currEnv)
	}

	existingConfigMap := koanfInstance.Raw()

	// Load environment variables
	if err := koanfInstance.Load(env.Provider(".", env.Opt{
		TransformFunc: func(k, v string) (string, any) {
			// Convert ENV_VAR_NAME to path and align each segment with existing YAML keys.
			// Example: POSTGRES_SSLMODE -> postgres.sslMode (not postgres.sslmode)
			key := canonicalizeEnvKey(k, existingConfigMap)

			return key, v
		},
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load env variables failed")
	}

	// Unmarshal into the config struct (case-insensitive to match env vars)
	if err := koanfInstance.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
			MatchName: func(mapKey, fieldName string) bool {
				// Case-insensitive matching for env var overrides
				return strings.EqualFold(mapKey, fieldName)
			},
		},
	}); err != nil {
		return nil, errors.Wrapf(err, "unmarshal %s config failed", currEnv)
	}

	return cfg, nil
}

func New() (*Config, error) {
	cfg, err := LoadWithEnv[Config]("config", "config", "../config", "../../config")
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.HTTP.MaxRequestBodySize) == "" {
		cfg.HTTP.MaxRequestBodySize = defaultMaxRequestBodySize
	}

	if cfg.Postgres != nil {
		// Build replicas from environment variables (POSTGRES_REPLICAS_0_HOST, POSTGRES_REPLICAS_0_PORT, etc.)
		cfg.Postgres.Replicas = buildReplicasFromEnv()
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func canonicalizeEnvKey(rawKey string, existing map[string]any) string {
	segments := strings.Split(strings.ToLower(rawKey), "_")
	canonical := make([]string, 0, len(segments))
	current := existing

	for _, segment := range segments {
		if segment == "" {
			continue
		}

		if matched, next, ok := findExistingSegment(current, segment); ok {
			canonical = append(canonical, matched)
			current = next
		} else {
			canonical = append(canonical, segment)
			current = nil
		}
	}

	return strings.Join(canonical, ".")
}

func findExistingSegment(current map[string]any, segment string) (matched string, next map[string]any, ok bool) {
	if len(current) == 0 {
		return "", nil, false
	}

	needle := normalizeToken(segment)
	for key, value := range current {
		if normalizeToken(key) != needle {
			continue
		}

		child, _ := value.(map[string]any)

		return key, child, true
	}

	return "", nil, false
}

func normalizeToken(s string) string {
	var normalized strings.Builder
	normalized.Grow(len(s))

	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		normalized.WriteRune(unicode.ToLower(r))
	}

	return normalized.String()
}

// buildReplicasFromEnv builds the replicas slice from environment variables.
// Environment variable format: POSTGRES_REPLICAS_{index}_{field}
// Example: POSTGRES_REPLICAS_0_HOST, POSTGRES_REPLICAS_0_PORT, POSTGRES_REPLICAS_0_USERNAME, POSTGRES_REPLICAS_0_PASSWORD
func buildReplicasFromEnv() []postgres.ConnectionConfig {
	var replicas []postgres.ConnectionConfig

	for i := 0; ; i++ {
		prefix := "POSTGRES_REPLICAS_" + strconv.Itoa(i) + "_"

		host := os.Getenv(prefix + "HOST")
		port := os.Getenv(prefix + "PORT")
		if host == "" || port == "" {
			// No more replicas or incomplete configuration.
			break
		}

		replica := postgres.ConnectionConfig{
			Host:     host,
			Port:     port,
			UserName: os.Getenv(prefix + "USERNAME"),
			Password: os.Getenv(prefix + "PASSWORD"),
		}

		replicas = append(replicas, replica)
	}

	return replicas
}
