package outbox

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventrentals-backend/pkg/db/models"
	"github.com/angelmondragon/eventrentals-backend/pkg/enums"
)

const (
	maxDLQErrorLen   = 1024
	defaultDLQListed = 50
)

// ErrDLQEntryNotFound is returned by Replay when the event was never dead-lettered.
var ErrDLQEntryNotFound = errors.New("dlq entry not found")

// DLQFilter narrows List. Zero values match everything.
type DLQFilter struct {
	Reason    enums.OutboxDLQErrorReason
	EventType enums.OutboxEventType
	Limit     int
}

// DLQRepository stores rental events the publisher gave up on.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ErrorMessage != nil {
		msg := truncateRunes(*entry.ErrorMessage, maxDLQErrorLen)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

// FindByEventID returns the dead-lettered copy of an outbox row, or nil.
func (r *DLQRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var entry models.OutboxDLQ
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// List returns the newest entries first.
func (r *DLQRepository) List(ctx context.Context, filter DLQFilter) ([]models.OutboxDLQ, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultDLQListed
	}
	query := r.db.WithContext(ctx).Model(&models.OutboxDLQ{})
	if filter.Reason != "" {
		query = query.Where("error_reason = ?", filter.Reason)
	}
	if filter.EventType != "" {
		query = query.Where("event_type = ?", filter.EventType)
	}
	var rows []models.OutboxDLQ
	err := query.Order("failed_at DESC").Order("id ASC").Limit(limit).Find(&rows).Error
	return rows, err
}

// Replay hands a dead-lettered event back to the publisher. The outbox row is
// re-armed in place, or recreated from the DLQ copy when retention already
// removed it, and the DLQ entry is dropped in the same transaction.
func (r *DLQRepository) Replay(ctx context.Context, tx *gorm.DB, eventID uuid.UUID) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	tx = tx.WithContext(ctx)

	var entry models.OutboxDLQ
	if err := tx.Where("event_id = ?", eventID).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrDLQEntryNotFound
		}
		return err
	}

	res := tx.Model(&models.OutboxEvent{}).
		Where("id = ?", eventID).
		Updates(map[string]any{
			"attempt_count": 0,
			"last_error":    nil,
			"published_at":  nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		row := models.OutboxEvent{
			ID:            entry.EventID,
			EventType:     entry.EventType,
			AggregateType: entry.AggregateType,
			AggregateID:   entry.AggregateID,
			Payload:       entry.Payload,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}
	return tx.Delete(&models.OutboxDLQ{}, "id = ?", entry.ID).Error
}

func truncateRunes(msg string, max int) string {
	if len(msg) <= max {
		return msg
	}
	cut := msg[:max]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}

// DeleteFailedBefore purges entries that failed before cutoff.
func (r *DLQRepository) DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		return 0, errors.New("transaction required")
	}
	res := tx.WithContext(ctx).Where("failed_at < ?", cutoff).Delete(&models.OutboxDLQ{})
	return res.RowsAffected, res.Error
}
