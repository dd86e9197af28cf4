package payloads

import (
	"time"

	"github.com/angelmondragon/eventrentals-backend/pkg/enums"
	"github.com/google/uuid"
)

// LineQuantity is the item/quantity pair carried by rental events.
type LineQuantity struct {
	ItemID   uuid.UUID `json:"item_id"`
	Quantity int       `json:"quantity"`
}

// ReservationSubmittedEvent is emitted when a booking request is stored as pending.
type ReservationSubmittedEvent struct {
	ReservationID uuid.UUID      `json:"reservation_id"`
	RequesterID   uuid.UUID      `json:"requester_id"`
	ServiceLabel  string         `json:"service_label"`
	DateStart     time.Time      `json:"date_start"`
	DateEnd       time.Time      `json:"date_end"`
	Lines         []LineQuantity `json:"lines"`
	QuotedCents   int64          `json:"quoted_cents"`
}

// ReservationConfirmedEvent is emitted when a reservation is materialized.
type ReservationConfirmedEvent struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	CalendarID    uuid.UUID `json:"calendar_id"`
	RequesterID   uuid.UUID `json:"requester_id"`
}

// ReservationCancelledEvent covers manual cancellation and TTL expiry.
type ReservationCancelledEvent struct {
	ReservationID uuid.UUID               `json:"reservation_id"`
	RequesterID   uuid.UUID               `json:"requester_id"`
	Status        enums.ReservationStatus `json:"status"`
	Reason        string                  `json:"reason"`
}

// CalendarEventChangedEvent is emitted when a calendar event is created or edited.
type CalendarEventChangedEvent struct {
	CalendarID    uuid.UUID      `json:"calendar_id"`
	ReservationID *uuid.UUID     `json:"reservation_id,omitempty"`
	RequesterID   uuid.UUID      `json:"requester_id"`
	DateStart     time.Time      `json:"date_start"`
	DateEnd       time.Time      `json:"date_end"`
	Lines         []LineQuantity `json:"lines"`
	TotalQuantity int            `json:"total_quantity"`
}

// CalendarEventFinalizedEvent is emitted when a calendar event's stock is returned.
type CalendarEventFinalizedEvent struct {
	CalendarID    uuid.UUID      `json:"calendar_id"`
	ReservationID *uuid.UUID     `json:"reservation_id,omitempty"`
	Returned      []LineQuantity `json:"returned"`
}

// StockAdjustedEvent is emitted for manual in/out corrections.
type StockAdjustedEvent struct {
	ItemID     uuid.UUID          `json:"item_id"`
	MovementID uuid.UUID          `json:"movement_id"`
	Kind       enums.MovementKind `json:"kind"`
	Quantity   int                `json:"quantity"`
	StockAfter int                `json:"stock_after"`
}
