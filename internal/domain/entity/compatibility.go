package entity

import "github.com/google/uuid"

// ScoreComponents holds each weighted factor of a compatibility score, all in [0,1].
type ScoreComponents struct {
	Restaurant float64 `json:"restaurant"`
	Location   float64 `json:"location"`
	Timing     float64 `json:"timing"`
	Historical float64 `json:"historical"`
}

// CompatibilityScore is the pairwise fit of two requests.
type CompatibilityScore struct {
	RequestID   uuid.UUID       `json:"request_id"`
	CandidateID uuid.UUID       `json:"candidate_id"`
	Score       float64         `json:"score"`
	Components  ScoreComponents `json:"components"`
	Eligible    bool            `json:"eligible"` // Passed every hard filter.
}

// Candidate is a matchable request ranked by score.
type Candidate struct {
	Request *UserRequest
	Score   CompatibilityScore
}
