// Package entity contains the core business objects of the project.
package entity

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// RequestState is the lifecycle state of a UserRequest.
type RequestState string

const (
	RequestStateIdle           RequestState = "idle"
	RequestStateAwaitingIntent RequestState = "awaiting_intent"
	// RequestStateScheduled is the dormant state of a request whose desired time is far
	// enough in the future that matching has not started yet.
	RequestStateScheduled   RequestState = "scheduled"
	RequestStateMatching    RequestState = "matching"
	RequestStateNegotiating RequestState = "negotiating"
	RequestStateConfirmed   RequestState = "confirmed"
	RequestStateHandedOff   RequestState = "handed_off"
	RequestStateExpired     RequestState = "expired"
	RequestStateCancelled   RequestState = "cancelled"
)

var requestTransitions = map[RequestState][]RequestState{
	RequestStateIdle:           {RequestStateAwaitingIntent, RequestStateCancelled},
	RequestStateAwaitingIntent: {RequestStateMatching, RequestStateScheduled, RequestStateCancelled},
	RequestStateScheduled:      {RequestStateMatching, RequestStateCancelled},
	RequestStateMatching:       {RequestStateNegotiating, RequestStateExpired, RequestStateCancelled},
	RequestStateNegotiating:    {RequestStateConfirmed, RequestStateMatching, RequestStateExpired, RequestStateCancelled},
	RequestStateConfirmed:      {RequestStateHandedOff, RequestStateMatching, RequestStateExpired, RequestStateCancelled},
}

// NonTerminalRequestStates lists every state in which a request is still open.
var NonTerminalRequestStates = []RequestState{
	RequestStateIdle,
	RequestStateAwaitingIntent,
	RequestStateScheduled,
	RequestStateMatching,
	RequestStateNegotiating,
	RequestStateConfirmed,
}

// IsTerminal reports whether no further transition is possible.
func (s RequestState) IsTerminal() bool {
	return s == RequestStateHandedOff || s == RequestStateExpired || s == RequestStateCancelled
}

// IsValid reports whether s is a known state.
func (s RequestState) IsValid() bool {
	switch s {
	case RequestStateIdle, RequestStateAwaitingIntent, RequestStateScheduled, RequestStateMatching,
		RequestStateNegotiating, RequestStateConfirmed, RequestStateHandedOff, RequestStateExpired,
		RequestStateCancelled:
		return true
	}

	return false
}

// CanTransitionTo reports whether the state machine allows s -> next.
func (s RequestState) CanTransitionTo(next RequestState) bool {
	for _, allowed := range requestTransitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

// UserRequest is one user's active food-ordering intent.
type UserRequest struct {
	ID         uuid.UUID    // Unique identifier of the request.
	UserID     string       // The requesting user, usually an E.164 phone number.
	Restaurant string       // Normalized restaurant choice.
	Location   string       // Normalized drop-off location.
	Window     TimeWindow   // Desired delivery window (Start == End for a point in time).
	State      RequestState // Current lifecycle state.
	GroupID    *uuid.UUID   // Set once the request is part of a confirmed group.
	RoundID    *uuid.UUID   // Negotiation round the request currently takes part in.

	// Exclusions maps counterpart user IDs to the end of their cool-down period.
	Exclusions map[string]time.Time

	ExpiresAt     time.Time  // Matching wait deadline.
	HardExpiresAt time.Time  // Absolute deadline; ExpiresAt never moves past it.
	ActivateAt    *time.Time // When a scheduled request starts matching.
	Reason        string     // Reason recorded with the terminal transition.

	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastActivityAt time.Time
	Version        int64
}

// HasIntent reports whether restaurant, location and window are all known.
func (r *UserRequest) HasIntent() bool {
	return r.Restaurant != "" && r.Location != "" && r.Window.Valid()
}

// IsExcluded reports whether the counterpart is still cooling down at now.
func (r *UserRequest) IsExcluded(userID string, now time.Time) bool {
	until, ok := r.Exclusions[userID]

	return ok && now.Before(until)
}

// Exclude adds a cool-down for the counterpart, keeping the later deadline if one exists.
func (r *UserRequest) Exclude(userID string, until time.Time) {
	if userID == "" || userID == r.UserID {
		return
	}
	if r.Exclusions == nil {
		r.Exclusions = make(map[string]time.Time)
	}
	if current, ok := r.Exclusions[userID]; ok && current.After(until) {
		return
	}
	r.Exclusions[userID] = until
}

// PruneExclusions drops cool-downs that ended before now.
func (r *UserRequest) PruneExclusions(now time.Time) {
	maps.DeleteFunc(r.Exclusions, func(_ string, until time.Time) bool {
		return !now.Before(until)
	})
}

// Clone returns a deep copy safe to mutate independently.
func (r *UserRequest) Clone() *UserRequest {
	if r == nil {
		return nil
	}

	cloned := *r
	if r.GroupID != nil {
		id := *r.GroupID
		cloned.GroupID = &id
	}
	if r.RoundID != nil {
		id := *r.RoundID
		cloned.RoundID = &id
	}
	if r.ActivateAt != nil {
		at := *r.ActivateAt
		cloned.ActivateAt = &at
	}
	if r.Exclusions != nil {
		cloned.Exclusions = maps.Clone(r.Exclusions)
	}

	return &cloned
}
