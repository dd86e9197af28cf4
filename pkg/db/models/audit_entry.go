package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventrentals-backend/pkg/enums"
)

// AuditEntry records a calendar lifecycle transition. Rows are never updated.
type AuditEntry struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	CalendarEventID uuid.UUID         `gorm:"column:calendar_event_id;type:uuid;not null;index"`
	ReservationID   *uuid.UUID        `gorm:"column:reservation_id;type:uuid"`
	Action          enums.AuditAction `gorm:"column:action;type:audit_action_enum;not null"`
	ActorID         *uuid.UUID        `gorm:"column:actor_id;type:uuid"`
	Note            string            `gorm:"column:note;not null;default:''"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (m *AuditEntry) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}
