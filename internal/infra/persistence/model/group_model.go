package model

import (
	"time"

	"github.com/google/uuid"
)

// GroupModel mirrors the 'group_sessions' table.
type GroupModel struct {
	ID          uuid.UUID           `gorm:"type:uuid;primaryKey"`
	Members     []*GroupMemberModel `gorm:"foreignKey:GroupID"`
	Restaurant  string              `gorm:"type:varchar(100);not null"`
	Location    string              `gorm:"type:varchar(100);not null"`
	WindowStart time.Time           `gorm:"not null"`
	WindowEnd   time.Time           `gorm:"not null"`
	Status      string              `gorm:"type:varchar(32);not null;index"`
	Reason      string              `gorm:"type:text"`
	PaymentLink string              `gorm:"type:text"`
	DeliveryRef string              `gorm:"type:varchar(255)"`
	FormedAt    time.Time           `gorm:"not null;index"`
	HandedOffAt *time.Time
	ClosedAt    *time.Time
	UpdatedAt   time.Time `gorm:"not null"`
	Version     int64     `gorm:"not null;default:1"`
}

// TableName explicitly sets the table name for GORM.
func (GroupModel) TableName() string {
	return "group_sessions"
}

// GroupMemberModel mirrors the 'group_members' table. Position keeps the join order.
type GroupMemberModel struct {
	GroupID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	RequestID uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    string    `gorm:"type:varchar(64);not null;index"`
	Position  int       `gorm:"not null"`
}

// TableName explicitly sets the table name for GORM.
func (GroupMemberModel) TableName() string {
	return "group_members"
}
