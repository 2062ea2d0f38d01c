// Package model holds the GORM persistence models of the Postgres store.
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// RequestModel mirrors the 'user_requests' table. A user holds at most one non-terminal
// request, enforced by a partial unique index.
type RequestModel struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey"`
	UserID     string     `gorm:"type:varchar(64);not null;index;index:idx_user_requests_active_user,unique,where:state <> 'handed_off' AND state <> 'expired' AND state <> 'cancelled'"`
	Restaurant string     `gorm:"type:varchar(100);index:idx_user_requests_pool,priority:2"`
	Location   string     `gorm:"type:varchar(100);index:idx_user_requests_pool,priority:3"`
	State      string     `gorm:"type:varchar(32);not null;index:idx_user_requests_pool,priority:1"`
	GroupID    *uuid.UUID `gorm:"type:uuid"`
	RoundID    *uuid.UUID `gorm:"type:uuid"`

	WindowStart *time.Time
	WindowEnd   *time.Time

	Exclusions datatypes.JSONType[map[string]time.Time] `gorm:"type:jsonb"`

	ExpiresAt     *time.Time `gorm:"index"`
	HardExpiresAt *time.Time
	ActivateAt    *time.Time `gorm:"index"`
	Reason        string     `gorm:"type:text"`

	CreatedAt      time.Time `gorm:"not null;index"`
	UpdatedAt      time.Time `gorm:"not null"`
	LastActivityAt time.Time `gorm:"not null"`
	Version        int64     `gorm:"not null;default:1"`
}

// TableName explicitly sets the table name for GORM.
func (RequestModel) TableName() string {
	return "user_requests"
}
