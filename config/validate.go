package config

import (
	"fmt"
	"math"
	"strings"
	"time"
	_ "time/tzdata" // catalog and scheduler timezones must resolve in minimal images

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

const weightSumTolerance = 1e-6

// ErrInvalidConfig is returned when the configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Validate checks struct constraints and the cross-field rules of the engine.
// Any violation aborts startup; nothing is corrected silently.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.Wrap(ErrInvalidConfig, "config is nil")
	}

	var problems []string

	if err := validator.New().Struct(cfg); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			for _, fieldErr := range validationErrs {
				problems = append(problems, fmt.Sprintf("%s failed %q", fieldErr.Namespace(), fieldErr.Tag()))
			}
		} else {
			problems = append(problems, err.Error())
		}
	}

	if sum := cfg.Scoring.Weights.Sum(); math.Abs(sum-1.0) > weightSumTolerance {
		problems = append(problems, fmt.Sprintf("scoring weights must sum to 1.0, got %.6f", sum))
	}

	if cfg.Matching.MinGroupSize > cfg.Matching.MaxGroupSize {
		problems = append(problems, fmt.Sprintf("matching.minGroupSize %d exceeds matching.maxGroupSize %d",
			cfg.Matching.MinGroupSize, cfg.Matching.MaxGroupSize))
	}

	if cfg.Matching.MaxWait < cfg.Matching.WaitTimeout {
		problems = append(problems, "matching.maxWait must not be shorter than matching.waitTimeout")
	}

	for i := 1; i < len(cfg.Scoring.DistanceBuckets); i++ {
		if cfg.Scoring.DistanceBuckets[i].MaxMeters < cfg.Scoring.DistanceBuckets[i-1].MaxMeters {
			problems = append(problems, "scoring.distanceBuckets must be ordered by maxMeters")

			break
		}
	}

	for _, tz := range []string{cfg.Catalog.Timezone, cfg.Scheduler.Timezone} {
		if tz == "" {
			continue
		}
		if _, err := time.LoadLocation(tz); err != nil {
			problems = append(problems, fmt.Sprintf("unknown timezone %q", tz))
		}
	}

	if cfg.Store.Driver == "postgres" && cfg.Postgres == nil {
		problems = append(problems, "store.driver postgres requires the postgres section")
	}

	if len(problems) > 0 {
		return errors.Wrap(ErrInvalidConfig, strings.Join(problems, "; "))
	}

	return nil
}
