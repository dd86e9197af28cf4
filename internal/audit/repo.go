package audit

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventrentals-backend/pkg/db/models"
)

// Repository manages persistence for audit entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.AuditEntry) error
	ListByCalendarID(ctx context.Context, calendarID uuid.UUID) ([]models.AuditEntry, error)
	ListByReservationID(ctx context.Context, reservationID uuid.UUID) ([]models.AuditEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an audit repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.AuditEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListByCalendarID(ctx context.Context, calendarID uuid.UUID) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	if err := r.db.WithContext(ctx).
		Where("calendar_event_id = ?", calendarID).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) ListByReservationID(ctx context.Context, reservationID uuid.UUID) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	if err := r.db.WithContext(ctx).
		Where("reservation_id = ?", reservationID).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
