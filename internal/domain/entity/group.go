package entity

import (
	"time"

	"github.com/google/uuid"
)

// GroupStatus is the lifecycle state of a GroupSession.
type GroupStatus string

const (
	GroupStatusForming   GroupStatus = "forming"
	GroupStatusConfirmed GroupStatus = "confirmed"
	GroupStatusHandedOff GroupStatus = "handed_off"
	GroupStatusCompleted GroupStatus = "completed"
	GroupStatusCancelled GroupStatus = "cancelled"
)

var groupTransitions = map[GroupStatus][]GroupStatus{
	GroupStatusForming:   {GroupStatusConfirmed, GroupStatusCancelled},
	GroupStatusConfirmed: {GroupStatusHandedOff, GroupStatusCancelled},
	GroupStatusHandedOff: {GroupStatusCompleted, GroupStatusCancelled},
}

// IsTerminal reports whether the group accepts no further transitions.
func (s GroupStatus) IsTerminal() bool {
	return s == GroupStatusCompleted || s == GroupStatusCancelled
}

// IsActive reports whether the group still holds its members.
func (s GroupStatus) IsActive() bool {
	return s == GroupStatusForming || s == GroupStatusConfirmed || s == GroupStatusHandedOff
}

// CanTransitionTo reports whether s -> next is allowed.
func (s GroupStatus) CanTransitionTo(next GroupStatus) bool {
	for _, allowed := range groupTransitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

// GroupMember links a request and its owner to a group.
type GroupMember struct {
	RequestID uuid.UUID
	UserID    string
}

// GroupSession is a set of requests that agreed to share an order.
type GroupSession struct {
	ID           uuid.UUID
	Members      []GroupMember
	Restaurant   string
	Location     string
	AgreedWindow TimeWindow
	Status       GroupStatus
	Reason       string // Cancellation reason, if any.
	PaymentLink  string // Link sent to members at handoff.
	DeliveryRef  string // Reference returned by the delivery provider.
	FormedAt     time.Time
	HandedOffAt  *time.Time
	ClosedAt     *time.Time // Completion or cancellation time.
	UpdatedAt    time.Time
	Version      int64
}

// UserIDs returns the member user IDs in join order.
func (g *GroupSession) UserIDs() []string {
	ids := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		ids = append(ids, m.UserID)
	}

	return ids
}

// RequestIDs returns the member request IDs in join order.
func (g *GroupSession) RequestIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(g.Members))
	for _, m := range g.Members {
		ids = append(ids, m.RequestID)
	}

	return ids
}

// HasUser reports whether the user is a member.
func (g *GroupSession) HasUser(userID string) bool {
	for _, m := range g.Members {
		if m.UserID == userID {
			return true
		}
	}

	return false
}

// Clone returns a deep copy of the group.
func (g *GroupSession) Clone() *GroupSession {
	if g == nil {
		return nil
	}

	cloned := *g
	cloned.Members = append([]GroupMember(nil), g.Members...)
	if g.HandedOffAt != nil {
		at := *g.HandedOffAt
		cloned.HandedOffAt = &at
	}
	if g.ClosedAt != nil {
		at := *g.ClosedAt
		cloned.ClosedAt = &at
	}

	return &cloned
}
