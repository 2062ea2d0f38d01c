package model

import (
	"time"

	"github.com/google/uuid"
)

// ProposalModel mirrors the 'negotiation_proposals' table.
type ProposalModel struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey"`
	RoundID            uuid.UUID `gorm:"type:uuid;not null;index"`
	Round              int       `gorm:"not null"`
	InitiatorRequestID uuid.UUID `gorm:"type:uuid;not null"`
	InitiatorUserID    string    `gorm:"type:varchar(64);not null"`
	TargetRequestID    uuid.UUID `gorm:"type:uuid;not null;index"`
	TargetUserID       string    `gorm:"type:varchar(64);not null"`
	Restaurant         string    `gorm:"type:varchar(100);not null"`
	Location           string    `gorm:"type:varchar(100);not null"`
	WindowStart        time.Time `gorm:"not null"`
	WindowEnd          time.Time `gorm:"not null"`
	Score              float64
	Response           string `gorm:"type:varchar(32);not null;index:idx_negotiation_proposals_due,priority:1"`
	CounterStart       *time.Time
	CounterEnd         *time.Time
	Reason             string    `gorm:"type:text"`
	ExpiresAt          time.Time `gorm:"not null;index:idx_negotiation_proposals_due,priority:2"`
	CreatedAt          time.Time `gorm:"not null"`
	RespondedAt        *time.Time
	Version            int64 `gorm:"not null;default:1"`
}

// TableName explicitly sets the table name for GORM.
func (ProposalModel) TableName() string {
	return "negotiation_proposals"
}
