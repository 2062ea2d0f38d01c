package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ProfileModel mirrors the 'user_profiles' table. The derived aggregates live in Snapshot.
type ProfileModel struct {
	UserID        string         `gorm:"type:varchar(64);primaryKey"`
	Snapshot      datatypes.JSON `gorm:"type:jsonb;not null"`
	CheckInOptOut bool           `gorm:"not null;default:false"`
	LastCheckInAt *time.Time
	LastSeenAt    *time.Time
	EventCount    int
	UpdatedAt     time.Time `gorm:"not null"`
	Version       int64     `gorm:"not null;default:1"`
}

// TableName explicitly sets the table name for GORM.
func (ProfileModel) TableName() string {
	return "user_profiles"
}

// InteractionModel mirrors the append-only 'interaction_events' table. Seq preserves the
// append order.
type InteractionModel struct {
	Seq          int64                        `gorm:"primaryKey;autoIncrement"`
	ID           uuid.UUID                    `gorm:"type:uuid;not null;uniqueIndex"`
	UserID       string                       `gorm:"type:varchar(64);not null;index"`
	Kind         string                       `gorm:"type:varchar(32);not null"`
	RequestID    *uuid.UUID                   `gorm:"type:uuid"`
	GroupID      *uuid.UUID                   `gorm:"type:uuid"`
	Counterparts datatypes.JSONType[[]string] `gorm:"type:jsonb"`
	Restaurant   string                       `gorm:"type:varchar(100)"`
	Location     string                       `gorm:"type:varchar(100)"`
	WindowStart  *time.Time
	Outcome      string `gorm:"type:varchar(32)"`
	Reason       string `gorm:"type:text"`
	Score        *float64
	HintKey      string    `gorm:"type:varchar(64)"`
	HintValue    string    `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"not null"`
}

// TableName explicitly sets the table name for GORM.
func (InteractionModel) TableName() string {
	return "interaction_events"
}

// All lists every model for schema migration.
func All() []any {
	return []any{
		&RequestModel{},
		&GroupModel{},
		&GroupMemberModel{},
		&ProposalModel{},
		&ProfileModel{},
		&InteractionModel{},
	}
}
