// Package registry knows, for every outbox event type, which aggregate emits
// it, which Pub/Sub topic carries it and how its data decodes.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/eventrentals-backend/pkg/config"
	"github.com/angelmondragon/eventrentals-backend/pkg/db/models"
	"github.com/angelmondragon/eventrentals-backend/pkg/enums"
	"github.com/angelmondragon/eventrentals-backend/pkg/outbox"
	"github.com/angelmondragon/eventrentals-backend/pkg/outbox/payloads"
)

// EventDescriptor is one routable event type.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	decode        func(json.RawMessage) (any, error)
}

// ResolvedEvent is an outbox row that passed validation.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row that will fail the same way on every attempt.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

type topicFamily int

const (
	rentalFamily topicFamily = iota
	inventoryFamily
)

type route struct {
	aggregate enums.OutboxAggregateType
	family    topicFamily
	decode    func(json.RawMessage) (any, error)
}

func decodeAs[T any]() func(json.RawMessage) (any, error) {
	return func(raw json.RawMessage) (any, error) {
		v := new(T)
		if err := json.Unmarshal(raw, v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

var routes = map[enums.OutboxEventType]route{
	enums.EventReservationSubmitted:   {enums.AggregateReservation, rentalFamily, decodeAs[payloads.ReservationSubmittedEvent]()},
	enums.EventReservationConfirmed:   {enums.AggregateReservation, rentalFamily, decodeAs[payloads.ReservationConfirmedEvent]()},
	enums.EventReservationCancelled:   {enums.AggregateReservation, rentalFamily, decodeAs[payloads.ReservationCancelledEvent]()},
	enums.EventReservationExpired:     {enums.AggregateReservation, rentalFamily, decodeAs[payloads.ReservationCancelledEvent]()},
	enums.EventCalendarEventCreated:   {enums.AggregateCalendarEvent, rentalFamily, decodeAs[payloads.CalendarEventChangedEvent]()},
	enums.EventCalendarEventUpdated:   {enums.AggregateCalendarEvent, rentalFamily, decodeAs[payloads.CalendarEventChangedEvent]()},
	enums.EventCalendarEventFinalized: {enums.AggregateCalendarEvent, rentalFamily, decodeAs[payloads.CalendarEventFinalizedEvent]()},
	enums.EventStockAdjusted:          {enums.AggregateInventoryItem, inventoryFamily, decodeAs[payloads.StockAdjustedEvent]()},
}

// EventRegistry resolves outbox rows against the routing table.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NewEventRegistry binds every event type to its configured topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.RentalEventsTopic == "" {
		return nil, errors.New("rental events topic is required")
	}
	topics := map[topicFamily]string{
		rentalFamily:    cfg.RentalEventsTopic,
		inventoryFamily: cfg.InventoryEventsTopic,
	}
	if topics[inventoryFamily] == "" {
		topics[inventoryFamily] = cfg.RentalEventsTopic
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(routes))}
	for eventType, r := range routes {
		reg.entries[eventType] = EventDescriptor{
			EventType:     eventType,
			AggregateType: r.aggregate,
			Topic:         topics[r.family],
			decode:        r.decode,
		}
	}
	return reg, nil
}

// Topics lists the distinct topics the registry can route to.
func (r *EventRegistry) Topics() []string {
	seen := make(map[string]bool)
	var out []string
	for _, desc := range r.entries {
		if !seen[desc.Topic] {
			seen[desc.Topic] = true
			out = append(out, desc.Topic)
		}
	}
	return out
}

// Resolve validates the row and decodes its typed payload. Every failure is
// a NonRetryableError.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	fail := func(format string, args ...any) (*ResolvedEvent, error) {
		return nil, NewNonRetryableError(fmt.Errorf(format, args...))
	}

	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return fail("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return fail("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return fail("missing aggregate_id")
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return fail("%s: %w", event.EventType, err)
	}
	payload, err := desc.decode(envelope.Data)
	if err != nil {
		return fail("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
