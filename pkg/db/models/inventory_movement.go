package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventrentals-backend/pkg/enums"
)

// InventoryMovement is an immutable ledger row describing one stock change.
type InventoryMovement struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	ItemID          uuid.UUID          `gorm:"column:item_id;type:uuid;not null;index"`
	Kind            enums.MovementKind `gorm:"column:kind;type:movement_kind_enum;not null"`
	Quantity        int                `gorm:"column:quantity;not null"`
	StockBefore     int                `gorm:"column:stock_before;not null"`
	StockAfter      int                `gorm:"column:stock_after;not null"`
	Note            string             `gorm:"column:note;not null;default:''"`
	ReservationID   *uuid.UUID         `gorm:"column:reservation_id;type:uuid"`
	CalendarEventID *uuid.UUID         `gorm:"column:calendar_event_id;type:uuid"`
	ActorID         *uuid.UUID         `gorm:"column:actor_id;type:uuid"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (m *InventoryMovement) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

// SignedQuantity returns the movement's effect on stock.
func (m InventoryMovement) SignedQuantity() int {
	return m.Kind.Sign() * m.Quantity
}
