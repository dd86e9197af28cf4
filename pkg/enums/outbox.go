package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateReservation   OutboxAggregateType = "reservation"
	AggregateCalendarEvent OutboxAggregateType = "calendar_event"
	AggregateInventoryItem OutboxAggregateType = "inventory_item"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateReservation,
	AggregateCalendarEvent,
	AggregateInventoryItem,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventReservationSubmitted   OutboxEventType = "reservation_submitted"
	EventReservationConfirmed   OutboxEventType = "reservation_confirmed"
	EventReservationCancelled   OutboxEventType = "reservation_cancelled"
	EventReservationExpired     OutboxEventType = "reservation_expired"
	EventCalendarEventCreated   OutboxEventType = "calendar_event_created"
	EventCalendarEventUpdated   OutboxEventType = "calendar_event_updated"
	EventCalendarEventFinalized OutboxEventType = "calendar_event_finalized"
	EventStockAdjusted          OutboxEventType = "stock_adjusted"
)

var validEventTypes = []OutboxEventType{
	EventReservationSubmitted,
	EventReservationConfirmed,
	EventReservationCancelled,
	EventReservationExpired,
	EventCalendarEventCreated,
	EventCalendarEventUpdated,
	EventCalendarEventFinalized,
	EventStockAdjusted,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var validOutboxDLQErrorReasons = []OutboxDLQErrorReason{
	OutboxDLQReasonMaxAttempts,
	OutboxDLQReasonNonRetryable,
}

func (r OutboxDLQErrorReason) IsValid() bool {
	for _, candidate := range validOutboxDLQErrorReasons {
		if candidate == r {
			return true
		}
	}
	return false
}
