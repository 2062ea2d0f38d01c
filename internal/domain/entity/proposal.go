package entity

import (
	"time"

	"github.com/google/uuid"
)

// ProposalResponse is a target's answer to a NegotiationProposal.
type ProposalResponse string

const (
	ProposalPending   ProposalResponse = "pending"
	ProposalAccepted  ProposalResponse = "accepted"
	ProposalDeclined  ProposalResponse = "declined"
	ProposalCountered ProposalResponse = "countered"
	// ProposalExpired marks a proposal whose round timed out; it counts as a decline.
	ProposalExpired ProposalResponse = "expired"
	// ProposalWithdrawn marks a proposal abandoned because its round was aborted.
	ProposalWithdrawn ProposalResponse = "withdrawn"
)

// IsFinal reports whether the response can no longer change.
func (r ProposalResponse) IsFinal() bool {
	return r != ProposalPending
}

// ProposalTerms are the conditions offered to a candidate.
type ProposalTerms struct {
	Restaurant string
	Location   string
	Window     TimeWindow
}

// NegotiationProposal is one initiator-to-target offer inside a round.
type NegotiationProposal struct {
	ID                 uuid.UUID
	RoundID            uuid.UUID
	Round              int // Starts at 1 and increments on every counter-proposal.
	InitiatorRequestID uuid.UUID
	InitiatorUserID    string
	TargetRequestID    uuid.UUID
	TargetUserID       string
	Terms              ProposalTerms
	Score              float64
	Response           ProposalResponse
	CounterWindow      *TimeWindow
	Reason             string
	ExpiresAt          time.Time
	CreatedAt          time.Time
	RespondedAt        *time.Time
	Version            int64
}

// IsPending reports whether the target has not answered yet.
func (p *NegotiationProposal) IsPending() bool {
	return p.Response == ProposalPending
}

// Clone returns a deep copy of the proposal.
func (p *NegotiationProposal) Clone() *NegotiationProposal {
	if p == nil {
		return nil
	}

	cloned := *p
	if p.CounterWindow != nil {
		w := *p.CounterWindow
		cloned.CounterWindow = &w
	}
	if p.RespondedAt != nil {
		at := *p.RespondedAt
		cloned.RespondedAt = &at
	}

	return &cloned
}
