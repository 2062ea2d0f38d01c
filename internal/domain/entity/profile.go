package entity

import (
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// InteractionKind classifies an entry of the append-only interaction log.
type InteractionKind string

const (
	InteractionRequestCreated InteractionKind = "request_created"
	InteractionTerminal       InteractionKind = "request_terminal"
	InteractionRejection      InteractionKind = "rejection"
	InteractionGroupOutcome   InteractionKind = "group_outcome"
	InteractionSatisfaction   InteractionKind = "satisfaction"
	InteractionCheckIn        InteractionKind = "check_in"
	InteractionOptOut         InteractionKind = "opt_out"
	InteractionOptIn          InteractionKind = "opt_in"
	InteractionHint           InteractionKind = "communication_hint"
)

// Outcome values recorded for requests and groups.
const (
	OutcomeHandedOff = "handed_off"
	OutcomeExpired   = "expired"
	OutcomeCancelled = "cancelled"
	OutcomeCompleted = "completed"
	OutcomeDeclined  = "declined"
	OutcomeFailed    = "failed"
)

// InteractionEvent is one immutable entry of a user's interaction log.
type InteractionEvent struct {
	ID           uuid.UUID       `json:"id"`
	UserID       string          `json:"user_id"`
	Kind         InteractionKind `json:"kind"`
	RequestID    *uuid.UUID      `json:"request_id,omitempty"`
	GroupID      *uuid.UUID      `json:"group_id,omitempty"`
	Counterparts []string        `json:"counterparts,omitempty"`
	Restaurant   string          `json:"restaurant,omitempty"`
	Location     string          `json:"location,omitempty"`
	WindowStart  *time.Time      `json:"window_start,omitempty"`
	Outcome      string          `json:"outcome,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	Score        *float64        `json:"score,omitempty"`
	HintKey      string          `json:"hint_key,omitempty"`
	HintValue    string          `json:"hint_value,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// PreferenceHistory holds frequency counts derived from past requests.
type PreferenceHistory struct {
	Restaurants map[string]int `json:"restaurants"`
	Locations   map[string]int `json:"locations"`
	TimeSlots   map[string]int `json:"time_slots"` // Keyed by "HH:00" of the window start.
}

// GroupRecord summarizes one group the user took part in.
type GroupRecord struct {
	GroupID        uuid.UUID `json:"group_id"`
	CoParticipants []string  `json:"co_participants"`
	Outcome        string    `json:"outcome"`
	Satisfaction   *float64  `json:"satisfaction,omitempty"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// SatisfactionSample is one point of the satisfaction time series.
type SatisfactionSample struct {
	GroupID uuid.UUID `json:"group_id"`
	Score   float64   `json:"score"`
	At      time.Time `json:"at"`
}

// UserProfile is the durable learning record of a user. Everything except Version is
// derived from the interaction log by Rebuild.
type UserProfile struct {
	UserID             string
	Preferences        PreferenceHistory
	Groups             []GroupRecord
	Satisfaction       []SatisfactionSample
	Rejections         map[string]int // Counterpart user ID to rejection count.
	CommunicationHints map[string]string
	CheckInOptOut      bool
	LastCheckInAt      *time.Time
	LastSeenAt         *time.Time
	EventCount         int
	UpdatedAt          time.Time
	Version            int64
}

// NewUserProfile returns an empty profile for the user.
func NewUserProfile(userID string) *UserProfile {
	return &UserProfile{
		UserID: userID,
		Preferences: PreferenceHistory{
			Restaurants: make(map[string]int),
			Locations:   make(map[string]int),
			TimeSlots:   make(map[string]int),
		},
		Rejections:         make(map[string]int),
		CommunicationHints: make(map[string]string),
	}
}

// Rebuild recomputes every aggregate of a profile from its interaction log.
// Events are applied in creation order; the version is left at zero for the caller to set.
func Rebuild(userID string, events []*InteractionEvent) *UserProfile {
	profile := NewUserProfile(userID)

	ordered := slices.Clone(events)
	slices.SortStableFunc(ordered, func(a, b *InteractionEvent) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	for _, ev := range ordered {
		profile.apply(ev)
	}

	return profile
}

func (p *UserProfile) apply(ev *InteractionEvent) {
	p.EventCount++
	if ev.CreatedAt.After(p.UpdatedAt) {
		p.UpdatedAt = ev.CreatedAt
	}

	switch ev.Kind {
	case InteractionRequestCreated:
		if ev.Restaurant != "" {
			p.Preferences.Restaurants[ev.Restaurant]++
		}
		if ev.Location != "" {
			p.Preferences.Locations[ev.Location]++
		}
		if ev.WindowStart != nil {
			p.Preferences.TimeSlots[ev.WindowStart.Format("15")+":00"]++
		}
		p.seen(ev.CreatedAt)
	case InteractionRejection:
		for _, c := range ev.Counterparts {
			p.Rejections[c]++
		}
	case InteractionGroupOutcome:
		if ev.GroupID == nil {
			return
		}
		if rec := p.group(*ev.GroupID); rec != nil {
			rec.Outcome = ev.Outcome
			rec.RecordedAt = ev.CreatedAt
			return
		}
		p.Groups = append(p.Groups, GroupRecord{
			GroupID:        *ev.GroupID,
			CoParticipants: slices.Clone(ev.Counterparts),
			Outcome:        ev.Outcome,
			RecordedAt:     ev.CreatedAt,
		})
	case InteractionSatisfaction:
		if ev.GroupID == nil || ev.Score == nil {
			return
		}
		p.Satisfaction = append(p.Satisfaction, SatisfactionSample{GroupID: *ev.GroupID, Score: *ev.Score, At: ev.CreatedAt})
		if rec := p.group(*ev.GroupID); rec != nil {
			score := *ev.Score
			rec.Satisfaction = &score
		}
	case InteractionCheckIn:
		at := ev.CreatedAt
		p.LastCheckInAt = &at
	case InteractionOptOut:
		p.CheckInOptOut = true
	case InteractionOptIn:
		p.CheckInOptOut = false
	case InteractionHint:
		if ev.HintKey != "" {
			p.CommunicationHints[ev.HintKey] = ev.HintValue
		}
	case InteractionTerminal:
		p.seen(ev.CreatedAt)
	}
}

func (p *UserProfile) seen(at time.Time) {
	if p.LastSeenAt == nil || at.After(*p.LastSeenAt) {
		seen := at
		p.LastSeenAt = &seen
	}
}

func (p *UserProfile) group(id uuid.UUID) *GroupRecord {
	for i := range p.Groups {
		if p.Groups[i].GroupID == id {
			return &p.Groups[i]
		}
	}

	return nil
}

// HadSuccessfulGroupWith reports whether the user completed a group with the counterpart
// and rated it at least threshold.
func (p *UserProfile) HadSuccessfulGroupWith(counterpart string, threshold float64) bool {
	if p == nil {
		return false
	}

	for _, rec := range p.Groups {
		if rec.Outcome != OutcomeCompleted || rec.Satisfaction == nil || *rec.Satisfaction < threshold {
			continue
		}
		if slices.Contains(rec.CoParticipants, counterpart) {
			return true
		}
	}

	return false
}

// Clone returns a deep copy of the profile.
func (p *UserProfile) Clone() *UserProfile {
	if p == nil {
		return nil
	}

	cloned := *p
	cloned.Preferences = PreferenceHistory{
		Restaurants: maps.Clone(p.Preferences.Restaurants),
		Locations:   maps.Clone(p.Preferences.Locations),
		TimeSlots:   maps.Clone(p.Preferences.TimeSlots),
	}
	cloned.Groups = make([]GroupRecord, len(p.Groups))
	for i, rec := range p.Groups {
		rec.CoParticipants = slices.Clone(rec.CoParticipants)
		if rec.Satisfaction != nil {
			s := *rec.Satisfaction
			rec.Satisfaction = &s
		}
		cloned.Groups[i] = rec
	}
	cloned.Satisfaction = slices.Clone(p.Satisfaction)
	cloned.Rejections = maps.Clone(p.Rejections)
	cloned.CommunicationHints = maps.Clone(p.CommunicationHints)
	if p.LastCheckInAt != nil {
		at := *p.LastCheckInAt
		cloned.LastCheckInAt = &at
	}
	if p.LastSeenAt != nil {
		at := *p.LastSeenAt
		cloned.LastSeenAt = &at
	}

	return &cloned
}
