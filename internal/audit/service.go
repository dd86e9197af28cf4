package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventrentals-backend/pkg/db/models"
	"github.com/angelmondragon/eventrentals-backend/pkg/enums"
)

// Service records and reads calendar lifecycle history. Entries are append-only.
type Service interface {
	Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.AuditEntry, error)
	ForCalendar(ctx context.Context, calendarID uuid.UUID) ([]models.AuditEntry, error)
	ForReservation(ctx context.Context, reservationID uuid.UUID) ([]models.AuditEntry, error)
}

// RecordInput captures the immutable data an audit entry requires.
type RecordInput struct {
	CalendarEventID uuid.UUID
	ReservationID   *uuid.UUID
	Action          enums.AuditAction
	ActorID         *uuid.UUID
	Note            string
}

type service struct {
	repo Repository
}

// NewService wires an audit service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	return &service{repo: repo}, nil
}

// Record writes the entry inside tx so it commits or rolls back with the
// transition it describes.
func (s *service) Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.AuditEntry, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if input.CalendarEventID == uuid.Nil {
		return nil, fmt.Errorf("calendar event id is required")
	}
	if !input.Action.IsValid() {
		return nil, fmt.Errorf("invalid audit action %q", input.Action)
	}

	entry := &models.AuditEntry{
		CalendarEventID: input.CalendarEventID,
		ReservationID:   input.ReservationID,
		Action:          input.Action,
		ActorID:         input.ActorID,
		Note:            strings.TrimSpace(input.Note),
	}
	if err := s.repo.WithTx(tx).Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) ForCalendar(ctx context.Context, calendarID uuid.UUID) ([]models.AuditEntry, error) {
	if calendarID == uuid.Nil {
		return nil, fmt.Errorf("calendar event id is required")
	}
	return s.repo.ListByCalendarID(ctx, calendarID)
}

func (s *service) ForReservation(ctx context.Context, reservationID uuid.UUID) ([]models.AuditEntry, error) {
	if reservationID == uuid.Nil {
		return nil, fmt.Errorf("reservation id is required")
	}
	return s.repo.ListByReservationID(ctx, reservationID)
}
