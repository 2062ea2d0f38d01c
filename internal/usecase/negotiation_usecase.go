package usecase

import (
	"context"
	"time"

	"huddle/internal/domain/entity"

	"github.com/google/uuid"
)

// ProposalReply is a target's answer to a proposal.
type ProposalReply struct {
	Response      entity.ProposalResponse // accepted, declined or countered
	Reason        string
	CounterWindow *entity.TimeWindow // Required for counters.
}

// RoundOutcome reports how an evaluation ended.
type RoundOutcome string

const (
	RoundPending   RoundOutcome = "pending"
	RoundConsensus RoundOutcome = "consensus"
	RoundFailed    RoundOutcome = "failed"
	RoundCountered RoundOutcome = "countered"
	RoundAborted   RoundOutcome = "aborted"
	RoundClosed    RoundOutcome = "closed" // Already resolved earlier.
)

// RoundResult is the result of evaluating a negotiation round.
type RoundResult struct {
	RoundID uuid.UUID
	Outcome RoundOutcome
	Group   *entity.GroupSession // Set on consensus.
}

// NegotiationUsecase is the two-phase proposal/response protocol.
type NegotiationUsecase interface {
	// Propose claims the initiator and the top candidates and sends them proposals.
	// It returns uuid.Nil when no candidate could be claimed.
	Propose(ctx context.Context, initiatorID uuid.UUID, candidates []entity.Candidate) (uuid.UUID, error)

	// Respond records the target's answer and evaluates the round.
	Respond(ctx context.Context, proposalID uuid.UUID, userID string, reply ProposalReply) (*RoundResult, error)

	// Evaluate resolves the round if every proposal is answered, expired or moot.
	Evaluate(ctx context.Context, roundID uuid.UUID) (*RoundResult, error)

	// EvaluateDue evaluates every round with an expired proposal or a stalled participant.
	EvaluateDue(ctx context.Context, now time.Time) ([]*RoundResult, error)

	// OpenProposal returns the pending proposal addressed to the request, if any.
	OpenProposal(ctx context.Context, requestID uuid.UUID) (*entity.NegotiationProposal, error)
}
