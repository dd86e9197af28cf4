package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InventoryItem is a rentable equipment line with its on-hand stock counter.
// Stock is only mutated through the stock ledger, never directly.
type InventoryItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	SKU            string    `gorm:"column:sku;not null;uniqueIndex"`
	Name           string    `gorm:"column:name;not null"`
	Description    *string   `gorm:"column:description"`
	Stock          int       `gorm:"column:stock;not null;default:0"`
	DailyRateCents int64     `gorm:"column:daily_rate_cents;not null;default:0"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (m *InventoryItem) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
