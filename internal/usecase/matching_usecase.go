// Package usecase contains the application-specific business rules.
package usecase

import (
	"context"

	"huddle/internal/domain/entity"
)

// CompatibilityScorer rates how well two requests fit into one group.
// Implementations are pure and symmetric: Score(a, b) equals Score(b, a) apart from
// the order of the request IDs.
type CompatibilityScorer interface {
	Score(a, b *entity.UserRequest, profileA, profileB *entity.UserProfile) entity.CompatibilityScore
}

// CandidateMatcher finds the best partners for a request in matching state.
type CandidateMatcher interface {
	// FindCandidates returns eligible requests ordered by descending score, then by
	// creation time, capped at the maximum group size minus one. It never mutates state.
	FindCandidates(ctx context.Context, req *entity.UserRequest) ([]entity.Candidate, error)
}
