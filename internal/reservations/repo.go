package reservations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventrentals-backend/internal/repo"
	"github.com/angelmondragon/eventrentals-backend/pkg/db/models"
	"github.com/angelmondragon/eventrentals-backend/pkg/enums"
	"github.com/angelmondragon/eventrentals-backend/pkg/pagination"
)

// ListFilter narrows reservation listings.
type ListFilter struct {
	Status      *enums.ReservationStatus
	RequesterID *uuid.UUID
	Page        pagination.Params
}

// Repository persists reservations and their lines.
type Repository struct {
	base repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{base: repo.NewBase(db)}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{base: repo.NewBase(tx)}
}

// Create inserts the reservation together with its lines.
func (r *Repository) Create(ctx context.Context, reservation *models.Reservation) error {
	return r.base.DB(ctx).Create(reservation).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	err := r.base.DB(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Where("id = ?", id).
		First(&reservation).Error
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

// LockByID row-locks the reservation for the rest of the transaction and loads its lines.
func (r *Repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	err := r.base.Locked(ctx).
		Where("id = ?", id).
		First(&reservation).Error
	if err != nil {
		return nil, err
	}
	if err := r.base.DB(ctx).
		Where("reservation_id = ?", id).
		Order("created_at ASC, id ASC").
		Find(&reservation.Lines).Error; err != nil {
		return nil, err
	}
	return &reservation, nil
}

// Transition moves a reservation out of from, applying fields. It returns the
// number of rows updated so callers can detect a lost race.
func (r *Repository) Transition(ctx context.Context, id uuid.UUID, from enums.ReservationStatus, fields map[string]any) (int64, error) {
	res := r.base.DB(ctx).
		Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	return res.RowsAffected, res.Error
}

// MarkConfirmed links a pending reservation to the calendar event that materialized it.
func (r *Repository) MarkConfirmed(ctx context.Context, tx *gorm.DB, reservationID, calendarID uuid.UUID, at time.Time) (int64, error) {
	return r.WithTx(tx).Transition(ctx, reservationID, enums.ReservationStatusPending, map[string]any{
		"status":             enums.ReservationStatusConfirmed,
		"linked_calendar_id": calendarID,
		"confirmed_at":       at,
	})
}

// MarkFinalizedByCalendar closes out the confirmed reservation linked to
// calendarID, if any, and returns its id.
func (r *Repository) MarkFinalizedByCalendar(ctx context.Context, tx *gorm.DB, calendarID uuid.UUID, at time.Time) (*uuid.UUID, error) {
	scoped := r.WithTx(tx)
	var reservation models.Reservation
	err := scoped.base.Locked(ctx).
		Where("linked_calendar_id = ? AND status = ?", calendarID, enums.ReservationStatusConfirmed).
		Limit(1).
		Find(&reservation).Error
	if err != nil {
		return nil, err
	}
	if reservation.ID == uuid.Nil {
		return nil, nil
	}
	if _, err := scoped.Transition(ctx, reservation.ID, enums.ReservationStatusConfirmed, map[string]any{
		"status":       enums.ReservationStatusFinalized,
		"finalized_at": at,
	}); err != nil {
		return nil, err
	}
	id := reservation.ID
	return &id, nil
}

// LinkedTo returns the id of the reservation materialized into calendarID, if any.
func (r *Repository) LinkedTo(ctx context.Context, tx *gorm.DB, calendarID uuid.UUID) (*uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.WithTx(tx).base.DB(ctx).
		Model(&models.Reservation{}).
		Where("linked_calendar_id = ?", calendarID).
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	return &ids[0], nil
}

func (r *Repository) List(ctx context.Context, filter ListFilter) ([]models.Reservation, string, error) {
	query := r.base.DB(ctx).Model(&models.Reservation{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.RequesterID != nil {
		query = query.Where("requester_id = ?", *filter.RequesterID)
	}
	query, err := pagination.ApplyDesc(query, "", filter.Page)
	if err != nil {
		return nil, "", err
	}
	var rows []models.Reservation
	if err := query.Preload("Lines").Find(&rows).Error; err != nil {
		return nil, "", err
	}
	page, next := pagination.Trim(rows, filter.Page.Limit, func(res models.Reservation) pagination.Cursor {
		return pagination.Cursor{CreatedAt: res.CreatedAt, ID: res.ID}
	})
	return page, next, nil
}

// PendingCreatedBefore returns up to limit pending reservation ids older than cutoff.
func (r *Repository) PendingCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.base.DB(ctx).
		Model(&models.Reservation{}).
		Where("status = ? AND created_at < ?", enums.ReservationStatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
