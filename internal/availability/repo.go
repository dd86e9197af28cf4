package availability

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventrentals-backend/internal/repo"
	"github.com/angelmondragon/eventrentals-backend/pkg/db/models"
	"github.com/angelmondragon/eventrentals-backend/pkg/enums"
)

type itemTotal struct {
	ItemID uuid.UUID `gorm:"column:item_id"`
	Total  int       `gorm:"column:total"`
}

// Repository reads the booking store: calendar lines and pending reservation lines.
type Repository struct {
	base repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{base: repo.NewBase(db)}
}

// Stocks returns the current on-hand counter for each known item.
func (r *Repository) Stocks(ctx context.Context, tx *gorm.DB, itemIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	var items []models.InventoryItem
	err := r.base.Conn(ctx, tx).
		Select("id", "stock").
		Where("id IN ?", itemIDs).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]int, len(items))
	for _, item := range items {
		out[item.ID] = item.Stock
	}
	return out, nil
}

// OutstandingHolds sums every calendar line per item regardless of dates.
// Those units have already left stock through rented movements.
func (r *Repository) OutstandingHolds(ctx context.Context, tx *gorm.DB, itemIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	var rows []itemTotal
	err := r.base.Conn(ctx, tx).
		Model(&models.CalendarLine{}).
		Select("item_id, COALESCE(SUM(quantity), 0) AS total").
		Where("item_id IN ?", itemIDs).
		Group("item_id").
		Scan(&rows).Error
	return toMap(rows), err
}

// CalendarDemand sums calendar lines whose event overlaps window.
func (r *Repository) CalendarDemand(ctx context.Context, tx *gorm.DB, itemIDs []uuid.UUID, window Range, excludeEvent *uuid.UUID) (map[uuid.UUID]int, error) {
	query := r.base.Conn(ctx, tx).
		Table("calendar_lines AS cl").
		Select("cl.item_id AS item_id, COALESCE(SUM(cl.quantity), 0) AS total").
		Joins("JOIN calendar_events AS ce ON ce.id = cl.calendar_event_id").
		Where("cl.item_id IN ?", itemIDs).
		Where("ce.date_start < ? AND ce.date_end > ?", window.End, window.Start)
	if excludeEvent != nil {
		query = query.Where("ce.id <> ?", *excludeEvent)
	}
	var rows []itemTotal
	err := query.Group("cl.item_id").Scan(&rows).Error
	return toMap(rows), err
}

// PendingDemand sums lines of pending reservations that overlap window.
func (r *Repository) PendingDemand(ctx context.Context, tx *gorm.DB, itemIDs []uuid.UUID, window Range, excludeReservation *uuid.UUID) (map[uuid.UUID]int, error) {
	query := r.base.Conn(ctx, tx).
		Table("reservation_lines AS rl").
		Select("rl.item_id AS item_id, COALESCE(SUM(rl.quantity), 0) AS total").
		Joins("JOIN reservations AS r ON r.id = rl.reservation_id").
		Where("rl.item_id IN ?", itemIDs).
		Where("r.status = ?", enums.ReservationStatusPending).
		Where("r.date_start < ? AND r.date_end > ?", window.End, window.Start)
	if excludeReservation != nil {
		query = query.Where("r.id <> ?", *excludeReservation)
	}
	var rows []itemTotal
	err := query.Group("rl.item_id").Scan(&rows).Error
	return toMap(rows), err
}

func toMap(rows []itemTotal) map[uuid.UUID]int {
	out := make(map[uuid.UUID]int, len(rows))
	for _, row := range rows {
		out[row.ItemID] = row.Total
	}
	return out
}
