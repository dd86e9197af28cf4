package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CalendarEvent is a committed booking whose lines consumed stock.
type CalendarEvent struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	RequesterID   uuid.UUID  `gorm:"column:requester_id;type:uuid;not null;index"`
	DateStart     time.Time  `gorm:"column:date_start;not null"`
	DateEnd       time.Time  `gorm:"column:date_end;not null"`
	Description   string     `gorm:"column:description;not null;default:''"`
	TotalQuantity int        `gorm:"column:total_quantity;not null;default:0"`
	QuotedCents   int64      `gorm:"column:quoted_cents;not null;default:0"`
	CreatedBy     *uuid.UUID `gorm:"column:created_by;type:uuid"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime"`

	Lines []CalendarLine `gorm:"foreignKey:CalendarEventID;references:ID"`
}

func (m *CalendarEvent) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

// CalendarLine ties an allocation to the rented movement that removed its stock.
type CalendarLine struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	CalendarEventID uuid.UUID `gorm:"column:calendar_event_id;type:uuid;not null;index"`
	MovementID      uuid.UUID `gorm:"column:movement_id;type:uuid;not null;uniqueIndex"`
	ItemID          uuid.UUID `gorm:"column:item_id;type:uuid;not null;index"`
	Quantity        int       `gorm:"column:quantity;not null"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (m *CalendarLine) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}
