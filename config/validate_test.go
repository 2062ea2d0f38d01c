package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "memory"
	cfg.Collaborators.Mode = "mock"
	cfg.Matching = MatchingConfig{
		MinGroupSize:      2,
		MaxGroupSize:      3,
		WaitTimeout:       30 * time.Minute,
		MaxWait:           3 * time.Hour,
		ExclusionCooldown: time.Hour,
		TimeTolerance:     15 * time.Minute,
	}
	cfg.Scoring = ScoringConfig{
		Weights:               ScoringWeights{Restaurant: 0.4, Location: 0.3, Timing: 0.2, Historical: 0.1},
		AcceptanceThreshold:   0.7,
		MaxTimingGap:          time.Hour,
		SatisfactionThreshold: 4,
		SameZoneCredit:        0.5,
		DistanceBuckets: []DistanceBucket{
			{MaxMeters: 50, Credit: 1},
			{MaxMeters: 400, Credit: 0.5},
		},
	}
	cfg.Negotiation = NegotiationConfig{Window: 5 * time.Minute, MaxRounds: 3, MaxConflictRetries: 1, ActionLinkTTL: time.Hour}
	cfg.Scheduler = SchedulerConfig{SweepInterval: time.Minute, StaleAfter: 2 * time.Hour, Timezone: "UTC"}
	cfg.Catalog = CatalogConfig{ASAPWindow: 30 * time.Minute, Timezone: "America/Chicago"}

	return cfg
}

func TestValidate_DefaultsAccepted(t *testing.T) {
	require.NoError(t, Validate(validConfig()))
}

func TestValidate_WeightsMustSumToOne(t *testing.T) {
	cfg := validConfig()
	cfg.Scoring.Weights.Historical = 0.2

	err := Validate(cfg)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "scoring weights must sum to 1.0")
}

func TestValidate_WeightsToleratesRounding(t *testing.T) {
	cfg := validConfig()
	cfg.Scoring.Weights = ScoringWeights{Restaurant: 0.1 + 0.2, Location: 0.3, Timing: 0.3, Historical: 0.1}

	assert.NoError(t, Validate(cfg))
}

func TestValidate_GroupSizeBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Matching.MinGroupSize = 3
	cfg.Matching.MaxGroupSize = 2

	err := Validate(cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "minGroupSize")
}

func TestValidate_MinGroupSizeBelowTwo(t *testing.T) {
	cfg := validConfig()
	cfg.Matching.MinGroupSize = 1

	err := Validate(cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "MinGroupSize")
}

func TestValidate_MaxWaitShorterThanWaitTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.Matching.MaxWait = 10 * time.Minute

	err := Validate(cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "matching.maxWait")
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Driver = "redis"

	assert.Error(t, Validate(cfg))
}

func TestValidate_PostgresDriverNeedsSection(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Driver = "postgres"

	err := Validate(cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires the postgres section")
}

func TestValidate_UnknownTimezone(t *testing.T) {
	cfg := validConfig()
	cfg.Catalog.Timezone = "Mars/Olympus"

	err := Validate(cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown timezone")
}

func TestValidate_BucketsOrdered(t *testing.T) {
	cfg := validConfig()
	cfg.Scoring.DistanceBuckets = []DistanceBucket{{MaxMeters: 400, Credit: 0.5}, {MaxMeters: 50, Credit: 1}}

	assert.Error(t, Validate(cfg))
}
