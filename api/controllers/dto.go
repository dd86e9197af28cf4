package controllers

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/eventrentals-backend/api/validators"
	"github.com/angelmondragon/eventrentals-backend/internal/availability"
	"github.com/angelmondragon/eventrentals-backend/pkg/db/models"
	"github.com/angelmondragon/eventrentals-backend/pkg/enums"
)

type lineRequest struct {
	ItemID   string `json:"item_id" validate:"required,uuid"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
}

func toLines(in []lineRequest) []availability.Line {
	out := make([]availability.Line, 0, len(in))
	for _, line := range in {
		// validate:"uuid" has already run on ItemID.
		id, _ := uuid.Parse(line.ItemID)
		out = append(out, availability.Line{ItemID: id, Quantity: line.Quantity})
	}
	return out
}

type lineResponse struct {
	ItemID   uuid.UUID `json:"item_id"`
	Quantity int       `json:"quantity"`
}

type reservationResponse struct {
	ID               uuid.UUID               `json:"id"`
	RequesterID      uuid.UUID               `json:"requester_id"`
	ServiceLabel     string                  `json:"service_label"`
	DateStart        time.Time               `json:"date_start"`
	DateEnd          time.Time               `json:"date_end"`
	TotalQuantity    int                     `json:"total_quantity"`
	Quote            string                  `json:"quote"`
	QuotedCents      int64                   `json:"quoted_cents"`
	Status           enums.ReservationStatus `json:"status"`
	LinkedCalendarID *uuid.UUID              `json:"linked_calendar_id,omitempty"`
	Metadata         json.RawMessage         `json:"metadata,omitempty"`
	CancelReason     *string                 `json:"cancel_reason,omitempty"`
	ConfirmedAt      *time.Time              `json:"confirmed_at,omitempty"`
	CancelledAt      *time.Time              `json:"cancelled_at,omitempty"`
	FinalizedAt      *time.Time              `json:"finalized_at,omitempty"`
	Lines            []lineResponse          `json:"lines"`
	CreatedAt        time.Time               `json:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

func reservationResponseFromModel(m *models.Reservation) reservationResponse {
	lines := make([]lineResponse, 0, len(m.Lines))
	for _, line := range m.Lines {
		lines = append(lines, lineResponse{ItemID: line.ItemID, Quantity: line.Quantity})
	}
	return reservationResponse{
		ID:               m.ID,
		RequesterID:      m.RequesterID,
		ServiceLabel:     m.ServiceLabel,
		DateStart:        m.DateStart,
		DateEnd:          m.DateEnd,
		TotalQuantity:    m.TotalQuantity,
		Quote:            validators.FormatCents(m.QuotedCents),
		QuotedCents:      m.QuotedCents,
		Status:           m.Status,
		LinkedCalendarID: m.LinkedCalendarID,
		Metadata:         m.Metadata,
		CancelReason:     m.CancelReason,
		ConfirmedAt:      m.ConfirmedAt,
		CancelledAt:      m.CancelledAt,
		FinalizedAt:      m.FinalizedAt,
		Lines:            lines,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

type calendarLineResponse struct {
	ID         uuid.UUID `json:"id"`
	ItemID     uuid.UUID `json:"item_id"`
	Quantity   int       `json:"quantity"`
	MovementID uuid.UUID `json:"movement_id"`
}

type calendarEventResponse struct {
	ID            uuid.UUID              `json:"id"`
	RequesterID   uuid.UUID              `json:"requester_id"`
	DateStart     time.Time              `json:"date_start"`
	DateEnd       time.Time              `json:"date_end"`
	Description   string                 `json:"description"`
	TotalQuantity int                    `json:"total_quantity"`
	Quote         string                 `json:"quote"`
	QuotedCents   int64                  `json:"quoted_cents"`
	CreatedBy     *uuid.UUID             `json:"created_by,omitempty"`
	Lines         []calendarLineResponse `json:"lines"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

func calendarEventResponseFromModel(m *models.CalendarEvent) calendarEventResponse {
	lines := make([]calendarLineResponse, 0, len(m.Lines))
	for _, line := range m.Lines {
		lines = append(lines, calendarLineResponse{
			ID:         line.ID,
			ItemID:     line.ItemID,
			Quantity:   line.Quantity,
			MovementID: line.MovementID,
		})
	}
	return calendarEventResponse{
		ID:            m.ID,
		RequesterID:   m.RequesterID,
		DateStart:     m.DateStart,
		DateEnd:       m.DateEnd,
		Description:   m.Description,
		TotalQuantity: m.TotalQuantity,
		Quote:         validators.FormatCents(m.QuotedCents),
		QuotedCents:   m.QuotedCents,
		CreatedBy:     m.CreatedBy,
		Lines:         lines,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

type itemResponse struct {
	ID             uuid.UUID `json:"id"`
	SKU            string    `json:"sku"`
	Name           string    `json:"name"`
	Description    *string   `json:"description,omitempty"`
	Stock          int       `json:"stock"`
	DailyRate      string    `json:"daily_rate"`
	DailyRateCents int64     `json:"daily_rate_cents"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func itemResponseFromModel(m *models.InventoryItem) itemResponse {
	return itemResponse{
		ID:             m.ID,
		SKU:            m.SKU,
		Name:           m.Name,
		Description:    m.Description,
		Stock:          m.Stock,
		DailyRate:      validators.FormatCents(m.DailyRateCents),
		DailyRateCents: m.DailyRateCents,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

type movementResponse struct {
	ID              uuid.UUID          `json:"id"`
	ItemID          uuid.UUID          `json:"item_id"`
	Kind            enums.MovementKind `json:"kind"`
	Quantity        int                `json:"quantity"`
	StockBefore     int                `json:"stock_before"`
	StockAfter      int                `json:"stock_after"`
	Note            string             `json:"note,omitempty"`
	ReservationID   *uuid.UUID         `json:"reservation_id,omitempty"`
	CalendarEventID *uuid.UUID         `json:"calendar_event_id,omitempty"`
	ActorID         *uuid.UUID         `json:"actor_id,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

func movementResponseFromModel(m *models.InventoryMovement) movementResponse {
	return movementResponse{
		ID:              m.ID,
		ItemID:          m.ItemID,
		Kind:            m.Kind,
		Quantity:        m.Quantity,
		StockBefore:     m.StockBefore,
		StockAfter:      m.StockAfter,
		Note:            m.Note,
		ReservationID:   m.ReservationID,
		CalendarEventID: m.CalendarEventID,
		ActorID:         m.ActorID,
		CreatedAt:       m.CreatedAt,
	}
}

func movementResponses(in []models.InventoryMovement) []movementResponse {
	out := make([]movementResponse, 0, len(in))
	for i := range in {
		out = append(out, movementResponseFromModel(&in[i]))
	}
	return out
}

type auditEntryResponse struct {
	ID              uuid.UUID         `json:"id"`
	CalendarEventID uuid.UUID         `json:"calendar_event_id"`
	ReservationID   *uuid.UUID        `json:"reservation_id,omitempty"`
	Action          enums.AuditAction `json:"action"`
	ActorID         *uuid.UUID        `json:"actor_id,omitempty"`
	Note            string            `json:"note,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

func auditEntryResponseFromModel(m *models.AuditEntry) auditEntryResponse {
	return auditEntryResponse{
		ID:              m.ID,
		CalendarEventID: m.CalendarEventID,
		ReservationID:   m.ReservationID,
		Action:          m.Action,
		ActorID:         m.ActorID,
		Note:            m.Note,
		CreatedAt:       m.CreatedAt,
	}
}

type pageResponse[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}
