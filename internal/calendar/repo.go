package calendar

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/eventrentals-backend/internal/repo"
	"github.com/angelmondragon/eventrentals-backend/pkg/db/models"
	"github.com/angelmondragon/eventrentals-backend/pkg/pagination"
)

// ListFilter narrows calendar listings. From/To select events overlapping [From, To).
type ListFilter struct {
	From        *time.Time
	To          *time.Time
	RequesterID *uuid.UUID
	Page        pagination.Params
}

// Repository persists calendar events and their lines.
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

// CreateEvent inserts the event row only; lines are written once their movements exist.
func (r *Repository) CreateEvent(ctx context.Context, event *models.CalendarEvent) error {
	return r.base.DB(ctx).Omit(clause.Associations).Create(event).Error
}

func (r *Repository) CreateLines(ctx context.Context, lines []models.CalendarLine) error {
	if len(lines) == 0 {
		return nil
	}
	return r.base.DB(ctx).Create(&lines).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CalendarEvent, error) {
	var event models.CalendarEvent
	err := r.base.DB(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Where("id = ?", id).
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// LockByID row-locks the event and loads its current lines.
func (r *Repository) LockByID(ctx context.Context, id uuid.UUID) (*models.CalendarEvent, error) {
	var event models.CalendarEvent
	err := r.base.Locked(ctx).
		Where("id = ?", id).
		First(&event).Error
	if err != nil {
		return nil, err
	}
	if err := r.base.DB(ctx).
		Where("calendar_event_id = ?", id).
		Order("created_at ASC, id ASC").
		Find(&event.Lines).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// UpdateEvent persists the event's scalar columns.
func (r *Repository) UpdateEvent(ctx context.Context, event *models.CalendarEvent) error {
	return r.base.DB(ctx).
		Model(event).
		Select("date_start", "date_end", "description", "total_quantity", "quoted_cents", "updated_at").
		Updates(event).Error
}

func (r *Repository) DeleteLines(ctx context.Context, eventID uuid.UUID) error {
	return r.base.DB(ctx).Where("calendar_event_id = ?", eventID).Delete(&models.CalendarLine{}).Error
}

func (r *Repository) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	return r.base.DB(ctx).Where("id = ?", id).Delete(&models.CalendarEvent{}).Error
}

func (r *Repository) List(ctx context.Context, filter ListFilter) ([]models.CalendarEvent, string, error) {
	query := r.base.DB(ctx).Model(&models.CalendarEvent{})
	if filter.To != nil {
		query = query.Where("date_start < ?", filter.To.UTC())
	}
	if filter.From != nil {
		query = query.Where("date_end > ?", filter.From.UTC())
	}
	if filter.RequesterID != nil {
		query = query.Where("requester_id = ?", *filter.RequesterID)
	}
	query, err := pagination.ApplyDesc(query, "", filter.Page)
	if err != nil {
		return nil, "", err
	}
	var rows []models.CalendarEvent
	if err := query.Preload("Lines").Find(&rows).Error; err != nil {
		return nil, "", err
	}
	page, next := pagination.Trim(rows, filter.Page.Limit, func(e models.CalendarEvent) pagination.Cursor {
		return pagination.Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
	})
	return page, next, nil
}
