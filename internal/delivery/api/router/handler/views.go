package handler

import (
	"time"

	"huddle/internal/domain/entity"
	"huddle/internal/usecase"
)

// WindowView is the JSON form of a delivery time window.
type WindowView struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// RequestView is the JSON form of a user request.
type RequestView struct {
	ID            string      `json:"id"`
	UserID        string      `json:"userId"`
	State         string      `json:"state"`
	Restaurant    string      `json:"restaurant,omitempty"`
	Location      string      `json:"location,omitempty"`
	Window        *WindowView `json:"window,omitempty"`
	GroupID       string      `json:"groupId,omitempty"`
	RoundID       string      `json:"roundId,omitempty"`
	ExpiresAt     *time.Time  `json:"expiresAt,omitempty"`
	HardExpiresAt *time.Time  `json:"hardExpiresAt,omitempty"`
	ActivateAt    *time.Time  `json:"activateAt,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// MemberView is one group member.
type MemberView struct {
	RequestID string `json:"requestId"`
	UserID    string `json:"userId"`
}

// GroupView is the JSON form of a group session.
type GroupView struct {
	ID           string       `json:"id"`
	Status       string       `json:"status"`
	Members      []MemberView `json:"members"`
	Restaurant   string       `json:"restaurant"`
	Location     string       `json:"location"`
	AgreedWindow WindowView   `json:"agreedWindow"`
	PaymentLink  string       `json:"paymentLink,omitempty"`
	DeliveryRef  string       `json:"deliveryRef,omitempty"`
	Reason       string       `json:"reason,omitempty"`
	FormedAt     time.Time    `json:"formedAt"`
	HandedOffAt  *time.Time   `json:"handedOffAt,omitempty"`
	ClosedAt     *time.Time   `json:"closedAt,omitempty"`
}

// RoundView reports the outcome of a negotiation round.
type RoundView struct {
	RoundID string     `json:"roundId"`
	Outcome string     `json:"outcome"`
	Group   *GroupView `json:"group,omitempty"`
}

func toRequestView(req *entity.UserRequest) *RequestView {
	if req == nil {
		return nil
	}

	view := &RequestView{
		ID:            req.ID.String(),
		UserID:        req.UserID,
		State:         string(req.State),
		Restaurant:    req.Restaurant,
		Location:      req.Location,
		ExpiresAt:     nonZero(req.ExpiresAt),
		HardExpiresAt: nonZero(req.HardExpiresAt),
		ActivateAt:    req.ActivateAt,
		Reason:        req.Reason,
		CreatedAt:     req.CreatedAt,
		UpdatedAt:     req.UpdatedAt,
	}
	if req.Window.Valid() {
		view.Window = &WindowView{Start: req.Window.Start, End: req.Window.End}
	}
	if req.GroupID != nil {
		view.GroupID = req.GroupID.String()
	}
	if req.RoundID != nil {
		view.RoundID = req.RoundID.String()
	}

	return view
}

func toGroupView(group *entity.GroupSession) *GroupView {
	if group == nil {
		return nil
	}

	members := make([]MemberView, 0, len(group.Members))
	for _, m := range group.Members {
		members = append(members, MemberView{RequestID: m.RequestID.String(), UserID: m.UserID})
	}

	return &GroupView{
		ID:           group.ID.String(),
		Status:       string(group.Status),
		Members:      members,
		Restaurant:   group.Restaurant,
		Location:     group.Location,
		AgreedWindow: WindowView{Start: group.AgreedWindow.Start, End: group.AgreedWindow.End},
		PaymentLink:  group.PaymentLink,
		DeliveryRef:  group.DeliveryRef,
		Reason:       group.Reason,
		FormedAt:     group.FormedAt,
		HandedOffAt:  group.HandedOffAt,
		ClosedAt:     group.ClosedAt,
	}
}

func toRoundView(result *usecase.RoundResult) *RoundView {
	if result == nil {
		return nil
	}

	return &RoundView{
		RoundID: result.RoundID.String(),
		Outcome: string(result.Outcome),
		Group:   toGroupView(result.Group),
	}
}

func nonZero(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}

	return &t
}
