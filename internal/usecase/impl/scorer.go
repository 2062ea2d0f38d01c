package impl

import (
	"strings"
	"time"

	"huddle/config"
	"huddle/internal/domain/catalog"
	"huddle/internal/domain/entity"
	"huddle/internal/usecase"

	"github.com/paulmach/orb/geo"
)

// compatibilityScorer implements usecase.CompatibilityScorer.
type compatibilityScorer struct {
	weights               config.ScoringWeights
	threshold             float64
	maxTimingGap          time.Duration
	satisfactionThreshold float64
	relatedCredit         float64
	sameZoneCredit        float64
	buckets               []config.DistanceBucket
	catalog               *catalog.Catalog
}

// NewCompatibilityScorer creates the weighted scorer from configuration.
func NewCompatibilityScorer(cfg *config.Config, cat *catalog.Catalog) usecase.CompatibilityScorer {
	return &compatibilityScorer{
		weights:               cfg.Scoring.Weights,
		threshold:             cfg.Scoring.AcceptanceThreshold,
		maxTimingGap:          cfg.Scoring.MaxTimingGap,
		satisfactionThreshold: cfg.Scoring.SatisfactionThreshold,
		relatedCredit:         cfg.Scoring.RelatedRestaurantCredit,
		sameZoneCredit:        cfg.Scoring.SameZoneCredit,
		buckets:               cfg.Scoring.DistanceBuckets,
		catalog:               cat,
	}
}

// Score combines the four weighted components. Every component is symmetric in its
// arguments, so the total is too.
func (s *compatibilityScorer) Score(a, b *entity.UserRequest, profileA, profileB *entity.UserProfile) entity.CompatibilityScore {
	components := entity.ScoreComponents{
		Restaurant: s.restaurantScore(a.Restaurant, b.Restaurant),
		Location:   s.locationScore(a.Location, b.Location),
		Timing:     s.timingScore(a.Window, b.Window),
		Historical: s.historicalScore(a.UserID, b.UserID, profileA, profileB),
	}

	total := s.weights.Restaurant*components.Restaurant +
		s.weights.Location*components.Location +
		s.weights.Timing*components.Timing +
		s.weights.Historical*components.Historical
	total = clamp01(total)

	return entity.CompatibilityScore{
		RequestID:   a.ID,
		CandidateID: b.ID,
		Score:       total,
		Components:  components,
		Eligible:    components.Restaurant == 1 && components.Location == 1 && total >= s.threshold,
	}
}

func (s *compatibilityScorer) restaurantScore(a, b string) float64 {
	if strings.EqualFold(a, b) {
		return 1
	}
	if s.catalog == nil || s.relatedCredit == 0 {
		return 0
	}

	ra, okA := s.catalog.Restaurant(a)
	rb, okB := s.catalog.Restaurant(b)
	if okA && okB && ra.Category != "" && strings.EqualFold(ra.Category, rb.Category) {
		return s.relatedCredit
	}

	return 0
}

func (s *compatibilityScorer) locationScore(a, b string) float64 {
	if strings.EqualFold(a, b) {
		return 1
	}
	if s.catalog == nil {
		return 0
	}

	la, okA := s.catalog.Location(a)
	lb, okB := s.catalog.Location(b)
	if !okA || !okB {
		return 0
	}

	if la.HasPoint && lb.HasPoint && len(s.buckets) > 0 {
		meters := geo.Distance(la.Point, lb.Point)
		for _, bucket := range s.buckets {
			if meters <= bucket.MaxMeters {
				return bucket.Credit
			}
		}

		return 0
	}

	if la.Zone != "" && strings.EqualFold(la.Zone, lb.Zone) {
		return s.sameZoneCredit
	}

	return 0
}

func (s *compatibilityScorer) timingScore(a, b entity.TimeWindow) float64 {
	if !a.Valid() || !b.Valid() {
		return 0
	}
	if a.Overlaps(b) {
		return 1
	}
	if s.maxTimingGap <= 0 {
		return 0
	}

	gap := a.CenterGap(b)

	return clamp01(1 - float64(gap)/float64(s.maxTimingGap))
}

func (s *compatibilityScorer) historicalScore(userA, userB string, profileA, profileB *entity.UserProfile) float64 {
	if profileA.HadSuccessfulGroupWith(userB, s.satisfactionThreshold) ||
		profileB.HadSuccessfulGroupWith(userA, s.satisfactionThreshold) {
		return 1
	}

	return 0
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
