package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalizeEnvKey_MapsOntoYAMLKeys(t *testing.T) {
	loaded := map[string]any{
		"matching": map[string]any{
			"maxGroupSize": 3,
			"waitTimeout":  "10m",
		},
		"scoring": map[string]any{
			"acceptanceThreshold": 0.7,
			"weights": map[string]any{
				"restaurant": 0.4,
			},
		},
		"delivery": map[string]any{
			"listenPort": 8090,
		},
		"pubsub": map[string]any{
			"pushAudience": "",
		},
		"secretKey": map[string]any{
			"action": "change-me",
		},
	}

	cases := map[string]string{
		"MATCHING_MAXGROUPSIZE":        "matching.maxGroupSize",
		"SCORING_ACCEPTANCETHRESHOLD":  "scoring.acceptanceThreshold",
		"SCORING_WEIGHTS_RESTAURANT":   "scoring.weights.restaurant",
		"DELIVERY_LISTENPORT":          "delivery.listenPort",
		"PUBSUB_PUSHAUDIENCE":          "pubsub.pushAudience",
		"SECRETKEY_ACTION":             "secretKey.action",
		"MATCHING__WAITTIMEOUT":        "matching.waitTimeout",
		"NEGOTIATION_MAXCONFLICTRETRY": "negotiation.maxconflictretry",
	}

	for envKey, want := range cases {
		t.Run(envKey, func(t *testing.T) {
			assert.Equal(t, want, canonicalizeEnvKey(envKey, loaded))
		})
	}
}
