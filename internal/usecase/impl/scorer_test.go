package impl

import (
	"testing"
	"time"

	"huddle/internal/domain/catalog"
	"huddle/internal/domain/entity"
	"huddle/internal/usecase"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScorer(t *testing.T) usecase.CompatibilityScorer {
	t.Helper()

	cfg := newTestConfig()
	cat, err := catalog.New(cfg)
	require.NoError(t, err)

	return NewCompatibilityScorer(cfg, cat)
}

func scoredRequest(userID, restaurant, location string, w entity.TimeWindow) *entity.UserRequest {
	return &entity.UserRequest{ID: uuid.New(), UserID: userID, Restaurant: restaurant, Location: location, Window: w}
}

func TestScorer_OverlappingWindowsGetFullTimingCredit(t *testing.T) {
	s := newTestScorer(t)

	a := scoredRequest("alice", chipotle, sce, window(12, 0, 12, 30))
	b := scoredRequest("bob", chipotle, sce, window(12, 15, 12, 45))

	score := s.Score(a, b, nil, nil)

	assert.Equal(t, entity.ScoreComponents{Restaurant: 1, Location: 1, Timing: 1, Historical: 0}, score.Components)
	assert.InDelta(t, 0.9, score.Score, 1e-9)
	assert.True(t, score.Eligible)
}

func TestScorer_TimingDecaysWithCenterGap(t *testing.T) {
	s := newTestScorer(t)

	a := scoredRequest("alice", chipotle, sce, entity.NewPointWindow(at(12, 0)))
	b := scoredRequest("bob", chipotle, sce, entity.NewPointWindow(at(12, 30)))
	c := scoredRequest("carol", chipotle, sce, entity.NewPointWindow(at(13, 30)))

	assert.InDelta(t, 0.5, s.Score(a, b, nil, nil).Components.Timing, 1e-9)
	assert.InDelta(t, 0.8, s.Score(a, b, nil, nil).Score, 1e-9)
	assert.Zero(t, s.Score(a, c, nil, nil).Components.Timing)
}

func TestScorer_LocationAndRestaurantCredits(t *testing.T) {
	s := newTestScorer(t)
	w := window(12, 0, 12, 30)

	nearby := s.Score(scoredRequest("a", chipotle, sce, w), scoredRequest("b", chipotle, "Daley Library", w), nil, nil)
	assert.Equal(t, 0.5, nearby.Components.Location)
	assert.False(t, nearby.Eligible, "location is a hard filter")

	otherZone := s.Score(scoredRequest("a", chipotle, sce, w), scoredRequest("b", chipotle, "Student Center West", w), nil, nil)
	assert.Zero(t, otherZone.Components.Location)

	related := s.Score(scoredRequest("a", chipotle, sce, w), scoredRequest("b", "Qdoba", sce, w), nil, nil)
	assert.Equal(t, 0.5, related.Components.Restaurant)
	assert.False(t, related.Eligible, "restaurant is a hard filter")

	unrelated := s.Score(scoredRequest("a", chipotle, sce, w), scoredRequest("b", "Panda Express", sce, w), nil, nil)
	assert.Zero(t, unrelated.Components.Restaurant)
}

func TestScorer_HistoricalNeedsCompletedWellRatedGroup(t *testing.T) {
	s := newTestScorer(t)
	w := window(12, 0, 12, 30)
	a := scoredRequest("alice", chipotle, sce, w)
	b := scoredRequest("bob", chipotle, sce, w)

	good, poor := 5.0, 2.0
	profile := entity.NewUserProfile("alice")
	profile.Groups = []entity.GroupRecord{
		{GroupID: uuid.New(), CoParticipants: []string{"bob"}, Outcome: entity.OutcomeCompleted, Satisfaction: &poor},
		{GroupID: uuid.New(), CoParticipants: []string{"bob"}, Outcome: entity.OutcomeCancelled, Satisfaction: &good},
	}
	assert.Zero(t, s.Score(a, b, profile, nil).Components.Historical)

	profile.Groups = append(profile.Groups, entity.GroupRecord{
		GroupID: uuid.New(), CoParticipants: []string{"bob"}, Outcome: entity.OutcomeCompleted, Satisfaction: &good,
	})
	score := s.Score(a, b, profile, nil)
	assert.Equal(t, 1.0, score.Components.Historical)
	assert.InDelta(t, 1.0, score.Score, 1e-9)
	assert.Equal(t, score.Score, s.Score(b, a, nil, profile).Score)
}

func TestScorer_Symmetry(t *testing.T) {
	s := newTestScorer(t)

	restaurants := []string{chipotle, "Qdoba", "Panda Express"}
	locations := []string{sce, "Daley Library", "Student Center West"}
	windows := []entity.TimeWindow{
		window(12, 0, 12, 30),
		window(12, 20, 12, 50),
		entity.NewPointWindow(at(12, 45)),
		window(13, 0, 14, 0),
	}

	var requests []*entity.UserRequest
	for i, r := range restaurants {
		for j, l := range locations {
			requests = append(requests, scoredRequest("u", r, l, windows[(i+j)%len(windows)]))
		}
	}

	for _, a := range requests {
		for _, b := range requests {
			ab := s.Score(a, b, nil, nil)
			ba := s.Score(b, a, nil, nil)
			assert.Equal(t, ab.Score, ba.Score)
			assert.Equal(t, ab.Eligible, ba.Eligible)
			assert.GreaterOrEqual(t, ab.Score, 0.0)
			assert.LessOrEqual(t, ab.Score, 1.0)
		}
	}
}

func TestScorer_WindowGapBeyondMaxIsZero(t *testing.T) {
	s := newTestScorer(t)

	a := scoredRequest("alice", chipotle, sce, entity.NewPointWindow(at(12, 0)))
	b := scoredRequest("bob", chipotle, sce, entity.NewPointWindow(at(12, 0).Add(3*time.Hour)))

	assert.Zero(t, s.Score(a, b, nil, nil).Components.Timing)
}
