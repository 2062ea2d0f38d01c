package impl

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"

	"huddle/config"
	deliverycontext "huddle/internal/delivery/context"
	"huddle/internal/domain/entity"
	"huddle/internal/domain/repository"
	"huddle/internal/usecase"

	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// CandidateMatcherParams holds the dependencies of the candidate matcher.
type CandidateMatcherParams struct {
	fx.In

	Requests repository.RequestRepository
	Profiles repository.ProfileRepository
	Scorer   usecase.CompatibilityScorer
	Clock    entity.Clock
	Config   *config.Config
	Logger   *slog.Logger
}

// candidateMatcher implements usecase.CandidateMatcher.
type candidateMatcher struct {
	requests  repository.RequestRepository
	profiles  repository.ProfileRepository
	scorer    usecase.CompatibilityScorer
	clock     entity.Clock
	maxGroup  int
	tolerance time.Duration
	logger    *slog.Logger
}

// NewCandidateMatcher creates the read-only candidate matcher.
func NewCandidateMatcher(params CandidateMatcherParams) usecase.CandidateMatcher {
	return &candidateMatcher{
		requests:  params.Requests,
		profiles:  params.Profiles,
		scorer:    params.Scorer,
		clock:     params.Clock,
		maxGroup:  params.Config.Matching.MaxGroupSize,
		tolerance: params.Config.Matching.TimeTolerance,
		logger:    params.Logger,
	}
}

func (m *candidateMatcher) FindCandidates(ctx context.Context, req *entity.UserRequest) ([]entity.Candidate, error) {
	if req.State != entity.RequestStateMatching {
		return nil, nil
	}

	others, err := m.requests.Find(ctx, repository.RequestFilter{
		States:        []entity.RequestState{entity.RequestStateMatching},
		Restaurant:    req.Restaurant,
		Location:      req.Location,
		ExcludeUserID: req.UserID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to query matching requests")
	}
	if len(others) == 0 {
		return nil, nil
	}

	own, err := m.profiles.Get(ctx, req.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load profile")
	}

	now := m.clock.Now()
	candidates := make([]entity.Candidate, 0, len(others))
	for _, other := range others {
		if req.IsExcluded(other.UserID, now) || other.IsExcluded(req.UserID, now) {
			continue
		}
		// Members of a group must agree on a time within the tolerance.
		if req.Window.Gap(other.Window) > m.tolerance {
			continue
		}

		profile, err := m.profiles.Get(ctx, other.UserID)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load candidate profile")
		}

		score := m.scorer.Score(req, other, own, profile)
		if !score.Eligible {
			continue
		}
		candidates = append(candidates, entity.Candidate{Request: other, Score: score})
	}

	slices.SortStableFunc(candidates, func(a, b entity.Candidate) int {
		if c := cmp.Compare(b.Score.Score, a.Score.Score); c != 0 {
			return c
		}
		if c := a.Request.CreatedAt.Compare(b.Request.CreatedAt); c != 0 {
			return c
		}

		return cmp.Compare(a.Request.ID.String(), b.Request.ID.String())
	})

	if limit := m.maxGroup - 1; len(candidates) > limit {
		candidates = candidates[:limit]
	}

	deliverycontext.GetLoggerOrDefault(ctx, m.logger).Debug("Candidates found",
		slog.Any("request_id", req.ID), slog.Int("count", len(candidates)))

	return candidates, nil
}
