package postgres

import (
	"testing"
	"time"

	"huddle/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var baseTime = time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)

func TestRequestMapping_RoundTrip(t *testing.T) {
	groupID := uuid.New()
	activate := baseTime.Add(time.Hour)
	req := &entity.UserRequest{
		ID:             uuid.New(),
		UserID:         "+13125550100",
		Restaurant:     "Chipotle",
		Location:       "Student Center East",
		Window:         entity.TimeWindow{Start: baseTime.Add(time.Hour), End: baseTime.Add(90 * time.Minute)},
		State:          entity.RequestStateConfirmed,
		GroupID:        &groupID,
		Exclusions:     map[string]time.Time{"+13125550101": baseTime.Add(30 * time.Minute)},
		ExpiresAt:      baseTime.Add(10 * time.Minute),
		HardExpiresAt:  baseTime.Add(45 * time.Minute),
		ActivateAt:     &activate,
		CreatedAt:      baseTime,
		UpdatedAt:      baseTime,
		LastActivityAt: baseTime,
		Version:        3,
	}

	got := toRequestDomain(fromRequestDomain(req))

	assert.Equal(t, req, got)
}

func TestRequestMapping_ZeroTimesBecomeNull(t *testing.T) {
	req := &entity.UserRequest{
		ID:        uuid.New(),
		UserID:    "+13125550100",
		State:     entity.RequestStateAwaitingIntent,
		CreatedAt: baseTime,
	}

	m := fromRequestDomain(req)
	assert.Nil(t, m.WindowStart)
	assert.Nil(t, m.WindowEnd)
	assert.Nil(t, m.ExpiresAt)
	assert.Nil(t, m.HardExpiresAt)
	assert.NotNil(t, m.Exclusions.Data())

	got := toRequestDomain(m)
	assert.False(t, got.Window.Valid())
	assert.True(t, got.ExpiresAt.IsZero())
	assert.Nil(t, got.Exclusions)
}

func TestGroupMapping_KeepsMemberOrder(t *testing.T) {
	handedOff := baseTime.Add(5 * time.Minute)
	group := &entity.GroupSession{
		ID: uuid.New(),
		Members: []entity.GroupMember{
			{RequestID: uuid.New(), UserID: "carol"},
			{RequestID: uuid.New(), UserID: "alice"},
			{RequestID: uuid.New(), UserID: "bob"},
		},
		Restaurant:   "Chipotle",
		Location:     "Student Center East",
		AgreedWindow: entity.TimeWindow{Start: baseTime.Add(time.Hour), End: baseTime.Add(70 * time.Minute)},
		Status:       entity.GroupStatusHandedOff,
		PaymentLink:  "https://pay.example/group",
		DeliveryRef:  "log-1",
		FormedAt:     baseTime,
		HandedOffAt:  &handedOff,
		UpdatedAt:    handedOff,
		Version:      2,
	}

	m := fromGroupDomain(group)
	require.Len(t, m.Members, 3)
	for i, member := range m.Members {
		assert.Equal(t, i, member.Position)
		assert.Equal(t, group.ID, member.GroupID)
	}

	assert.Equal(t, group, toGroupDomain(m))
}

func TestProposalMapping_CounterWindow(t *testing.T) {
	counter := entity.TimeWindow{Start: baseTime.Add(80 * time.Minute), End: baseTime.Add(90 * time.Minute)}
	responded := baseTime.Add(2 * time.Minute)
	proposal := &entity.NegotiationProposal{
		ID:                 uuid.New(),
		RoundID:            uuid.New(),
		Round:              2,
		InitiatorRequestID: uuid.New(),
		InitiatorUserID:    "alice",
		TargetRequestID:    uuid.New(),
		TargetUserID:       "bob",
		Terms: entity.ProposalTerms{
			Restaurant: "Chipotle",
			Location:   "Student Center East",
			Window:     entity.TimeWindow{Start: baseTime.Add(time.Hour), End: baseTime.Add(70 * time.Minute)},
		},
		Score:         0.9,
		Response:      entity.ProposalCountered,
		CounterWindow: &counter,
		ExpiresAt:     baseTime.Add(5 * time.Minute),
		CreatedAt:     baseTime,
		RespondedAt:   &responded,
		Version:       2,
	}

	assert.Equal(t, proposal, toProposalDomain(fromProposalDomain(proposal)))

	proposal.CounterWindow = nil
	m := fromProposalDomain(proposal)
	assert.Nil(t, m.CounterStart)
	assert.Nil(t, toProposalDomain(m).CounterWindow)
}

func TestProfileMapping_RoundTrip(t *testing.T) {
	groupID := uuid.New()
	satisfaction := 5.0
	seen := baseTime
	profile := entity.NewUserProfile("alice")
	profile.Preferences.Restaurants["Chipotle"] = 3
	profile.Preferences.TimeSlots["12:00"] = 2
	profile.Groups = []entity.GroupRecord{{
		GroupID:        groupID,
		CoParticipants: []string{"bob"},
		Outcome:        entity.OutcomeCompleted,
		Satisfaction:   &satisfaction,
		RecordedAt:     baseTime,
	}}
	profile.Satisfaction = []entity.SatisfactionSample{{GroupID: groupID, Score: satisfaction, At: baseTime}}
	profile.Rejections["carol"] = 1
	profile.CommunicationHints["tone"] = "brief"
	profile.CheckInOptOut = true
	profile.LastSeenAt = &seen
	profile.EventCount = 7
	profile.UpdatedAt = baseTime
	profile.Version = 4

	m, err := fromProfileDomain(profile)
	require.NoError(t, err)
	assert.True(t, m.CheckInOptOut)

	got, err := toProfileDomain(m)
	require.NoError(t, err)
	assert.Equal(t, profile, got)
}

func TestProfileMapping_EmptySnapshotKeepsMapsUsable(t *testing.T) {
	m, err := fromProfileDomain(&entity.UserProfile{UserID: "dave"})
	require.NoError(t, err)

	got, err := toProfileDomain(m)
	require.NoError(t, err)
	assert.NotNil(t, got.Preferences.Restaurants)
	assert.NotNil(t, got.Rejections)
	assert.NotNil(t, got.CommunicationHints)
}

func TestConstraintErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		unique     bool
		constraint bool
	}{
		{
			name:       "translated duplicate key",
			err:        gorm.ErrDuplicatedKey,
			unique:     true,
			constraint: true,
		},
		{
			name:       "wrapped unique violation",
			err:        errors.Wrap(&pgconn.PgError{Code: "23505"}, "insert"),
			unique:     true,
			constraint: true,
		},
		{
			name:       "not null violation",
			err:        &pgconn.PgError{Code: "23502"},
			constraint: true,
		},
		{
			name:       "check violation",
			err:        &pgconn.PgError{Code: "23514"},
			constraint: true,
		},
		{
			name: "connection failure",
			err:  errors.New("connection refused"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.unique, isUniqueConstraintViolation(tt.err))
			assert.Equal(t, tt.constraint, isConstraintViolation(tt.err))
		})
	}
}
