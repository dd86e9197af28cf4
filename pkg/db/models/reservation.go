package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventrentals-backend/pkg/enums"
)

// Reservation is a booking request that holds availability until it is
// confirmed into a calendar event or cancelled.
type Reservation struct {
	ID               uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	RequesterID      uuid.UUID               `gorm:"column:requester_id;type:uuid;not null;index"`
	ServiceLabel     string                  `gorm:"column:service_label;not null"`
	DateStart        time.Time               `gorm:"column:date_start;not null"`
	DateEnd          time.Time               `gorm:"column:date_end;not null"`
	TotalQuantity    int                     `gorm:"column:total_quantity;not null;default:0"`
	QuotedCents      int64                   `gorm:"column:quoted_cents;not null;default:0"`
	Status           enums.ReservationStatus `gorm:"column:status;type:reservation_status_enum;not null;index"`
	LinkedCalendarID *uuid.UUID              `gorm:"column:linked_calendar_id;type:uuid"`
	Metadata         json.RawMessage         `gorm:"column:metadata;type:jsonb"`
	CancelReason     *string                 `gorm:"column:cancel_reason"`
	ConfirmedAt      *time.Time              `gorm:"column:confirmed_at"`
	CancelledAt      *time.Time              `gorm:"column:cancelled_at"`
	FinalizedAt      *time.Time              `gorm:"column:finalized_at"`
	CreatedAt        time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time               `gorm:"column:updated_at;autoUpdateTime"`

	Lines []ReservationLine `gorm:"foreignKey:ReservationID;references:ID"`
}

func (m *Reservation) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

// ReservationLine requests a quantity of one item.
type ReservationLine struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ReservationID uuid.UUID `gorm:"column:reservation_id;type:uuid;not null;index"`
	ItemID        uuid.UUID `gorm:"column:item_id;type:uuid;not null;index"`
	Quantity      int       `gorm:"column:quantity;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (m *ReservationLine) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}
