package calendar

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventrentals-backend/internal/audit"
	"github.com/angelmondragon/eventrentals-backend/internal/availability"
	"github.com/angelmondragon/eventrentals-backend/internal/inventory"
	"github.com/angelmondragon/eventrentals-backend/pkg/auth"
	"github.com/angelmondragon/eventrentals-backend/pkg/db"
	"github.com/angelmondragon/eventrentals-backend/pkg/db/models"
	"github.com/angelmondragon/eventrentals-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventrentals-backend/pkg/errors"
	"github.com/angelmondragon/eventrentals-backend/pkg/logger"
	"github.com/angelmondragon/eventrentals-backend/pkg/metrics"
	"github.com/angelmondragon/eventrentals-backend/pkg/outbox"
	"github.com/angelmondragon/eventrentals-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/eventrentals-backend/pkg/pagination"
)

// ReservationStore is the slice of the reservation repository the calendar
// needs to keep a linked reservation in step with its event.
type ReservationStore interface {
	MarkConfirmed(ctx context.Context, tx *gorm.DB, reservationID, calendarID uuid.UUID, at time.Time) (int64, error)
	MarkFinalizedByCalendar(ctx context.Context, tx *gorm.DB, calendarID uuid.UUID, at time.Time) (*uuid.UUID, error)
	LinkedTo(ctx context.Context, tx *gorm.DB, calendarID uuid.UUID) (*uuid.UUID, error)
}

// BookInput is a direct privileged booking that bypasses the reservation flow.
type BookInput struct {
	RequesterID uuid.UUID
	Window      availability.Range
	Description string
	Lines       []availability.Line
}

// EditInput replaces an event's window and its full line set.
type EditInput struct {
	Window      availability.Range
	Description *string
	Lines       []availability.Line
}

// FinalizeResult reports what Finalize returned to stock.
type FinalizeResult struct {
	CalendarID    uuid.UUID                  `json:"calendar_id"`
	ReservationID *uuid.UUID                 `json:"reservation_id,omitempty"`
	Returned      []models.InventoryMovement `json:"returned"`
}

// EventList is one page of calendar events.
type EventList struct {
	Events     []models.CalendarEvent `json:"events"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}

// Service turns bookings into committed calendar events and reverses them.
type Service interface {
	MaterializeReservation(ctx context.Context, tx *gorm.DB, actor auth.Actor, reservation *models.Reservation) (*models.CalendarEvent, error)
	Book(ctx context.Context, actor auth.Actor, input BookInput) (*models.CalendarEvent, error)
	Edit(ctx context.Context, actor auth.Actor, id uuid.UUID, input EditInput) (*models.CalendarEvent, error)
	Finalize(ctx context.Context, actor auth.Actor, id uuid.UUID, note string) (*FinalizeResult, error)
	Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*models.CalendarEvent, error)
	List(ctx context.Context, actor auth.Actor, filter ListFilter) (*EventList, error)
	Audit(ctx context.Context, actor auth.Actor, id uuid.UUID) ([]models.AuditEntry, error)
}

type ServiceParams struct {
	TxRunner     db.TxRunner
	Repo         *Repository
	Inventory    *inventory.Repository
	Ledger       *inventory.Ledger
	Calculator   *availability.Calculator
	Reservations ReservationStore
	Audit        audit.Service
	Outbox       outbox.Emitter
	Policy       db.TxPolicy
	Logger       *logger.Logger
	Metrics      *metrics.EngineMetrics
	Clock        func() time.Time
}

type service struct {
	tx           db.TxRunner
	repo         *Repository
	inventory    *inventory.Repository
	ledger       *inventory.Ledger
	calc         *availability.Calculator
	reservations ReservationStore
	audit        audit.Service
	outbox       outbox.Emitter
	policy       db.TxPolicy
	logg         *logger.Logger
	metrics      *metrics.EngineMetrics
	now          func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.TxRunner == nil:
		return nil, errors.New("tx runner required")
	case params.Repo == nil:
		return nil, errors.New("calendar repository required")
	case params.Inventory == nil || params.Ledger == nil:
		return nil, errors.New("inventory repository and ledger required")
	case params.Calculator == nil:
		return nil, errors.New("availability calculator required")
	case params.Reservations == nil:
		return nil, errors.New("reservation store required")
	case params.Audit == nil:
		return nil, errors.New("audit service required")
	case params.Outbox == nil:
		return nil, errors.New("outbox emitter required")
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		tx:           params.TxRunner,
		repo:         params.Repo,
		inventory:    params.Inventory,
		ledger:       params.Ledger,
		calc:         params.Calculator,
		reservations: params.Reservations,
		audit:        params.Audit,
		outbox:       params.Outbox,
		policy:       params.Policy,
		logg:         params.Logger,
		metrics:      params.Metrics,
		now:          clock,
	}, nil
}

type materializeRequest struct {
	requesterID   uuid.UUID
	window        availability.Range
	description   string
	lines         []availability.Line
	reservationID *uuid.UUID
	actor         auth.Actor
}

// MaterializeReservation commits a pending reservation's lines inside the
// caller's transaction. The caller must hold the reservation row lock.
func (s *service) MaterializeReservation(ctx context.Context, tx *gorm.DB, actor auth.Actor, reservation *models.Reservation) (*models.CalendarEvent, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "materialize requires a transaction")
	}
	if reservation == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation is required")
	}
	window, err := availability.NewRange(reservation.DateStart, reservation.DateEnd)
	if err != nil {
		return nil, err
	}
	lines := make([]availability.Line, 0, len(reservation.Lines))
	for _, line := range reservation.Lines {
		lines = append(lines, availability.Line{ItemID: line.ItemID, Quantity: line.Quantity})
	}
	reservationID := reservation.ID
	return s.materialize(ctx, tx, materializeRequest{
		requesterID:   reservation.RequesterID,
		window:        window,
		description:   reservation.ServiceLabel,
		lines:         lines,
		reservationID: &reservationID,
		actor:         actor,
	})
}

func (s *service) Book(ctx context.Context, actor auth.Actor, input BookInput) (*models.CalendarEvent, error) {
	if !actor.Privileged() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only staff can book the calendar directly")
	}
	if input.RequesterID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "requester_id is required")
	}
	window, err := availability.NewRange(input.Window.Start, input.Window.End)
	if err != nil {
		return nil, err
	}
	if err := availability.ValidateLines(input.Lines); err != nil {
		return nil, err
	}

	var event *models.CalendarEvent
	err = db.RunBounded(ctx, s.tx, s.policy, "book calendar", func(tx *gorm.DB) error {
		var err error
		event, err = s.materialize(ctx, tx, materializeRequest{
			requesterID: input.RequesterID,
			window:      window,
			description: strings.TrimSpace(input.Description),
			lines:       input.Lines,
			actor:       actor,
		})
		return err
	})
	if err != nil {
		s.reject(ctx, "book", err)
		return nil, err
	}
	s.metrics.IncTransition("booked")
	s.metrics.AddMovement(string(enums.MovementKindRented), event.TotalQuantity)
	s.logEvent(ctx, event.ID, "calendar.booked")
	return event, nil
}

// materialize locks every item, re-validates availability under the lock,
// consumes stock with rented movements and writes the event, its lines and
// the confirmed audit entry.
func (s *service) materialize(ctx context.Context, tx *gorm.DB, req materializeRequest) (*models.CalendarEvent, error) {
	excl := availability.Exclusions{ReservationID: req.reservationID}
	items, err := s.lockItems(ctx, tx, itemIDs(req.lines))
	if err != nil {
		return nil, err
	}
	if err := s.calc.Validate(ctx, tx, req.lines, req.window, excl); err != nil {
		return nil, err
	}

	event := &models.CalendarEvent{
		RequesterID:   req.requesterID,
		DateStart:     req.window.Start,
		DateEnd:       req.window.End,
		Description:   req.description,
		TotalQuantity: availability.TotalQuantity(req.lines),
		QuotedCents:   availability.QuoteCents(rates(items), req.lines, req.window),
		CreatedBy:     req.actor.IDPtr(),
	}
	repo := s.repo.WithTx(tx)
	if err := repo.CreateEvent(ctx, event); err != nil {
		return nil, err
	}
	lines, err := s.consume(ctx, tx, event.ID, req.reservationID, req.actor, req.lines, "rented for calendar event")
	if err != nil {
		return nil, err
	}
	if err := repo.CreateLines(ctx, lines); err != nil {
		return nil, err
	}
	event.Lines = lines

	if req.reservationID != nil {
		rows, err := s.reservations.MarkConfirmed(ctx, tx, *req.reservationID, event.ID, s.now())
		if err != nil {
			return nil, err
		}
		if rows == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "Solo se pueden confirmar reservas pendientes")
		}
	}
	if _, err := s.audit.Record(ctx, tx, audit.RecordInput{
		CalendarEventID: event.ID,
		ReservationID:   req.reservationID,
		Action:          enums.AuditActionConfirmed,
		ActorID:         req.actor.IDPtr(),
	}); err != nil {
		return nil, err
	}
	if err := s.emitChanged(ctx, tx, enums.EventCalendarEventCreated, req.actor, event, req.reservationID); err != nil {
		return nil, err
	}
	return event, nil
}

// Edit reverses every current line, validates the replacement set with the
// event's own hold excluded, and re-applies it. Any failure rolls the whole
// edit back so the original lines stay in force.
func (s *service) Edit(ctx context.Context, actor auth.Actor, id uuid.UUID, input EditInput) (*models.CalendarEvent, error) {
	if !actor.Privileged() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only staff can edit calendar events")
	}
	window, err := availability.NewRange(input.Window.Start, input.Window.End)
	if err != nil {
		return nil, err
	}
	if err := availability.ValidateLines(input.Lines); err != nil {
		return nil, err
	}

	var event *models.CalendarEvent
	err = db.RunBounded(ctx, s.tx, s.policy, "edit calendar event", func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.LockByID(ctx, id)
		if err != nil {
			return mapFindError(err)
		}

		ids := itemIDs(input.Lines)
		for _, line := range current.Lines {
			ids = append(ids, line.ItemID)
		}
		items, err := s.lockItems(ctx, tx, ids)
		if err != nil {
			return err
		}

		if _, err := s.release(ctx, tx, current, actor, "reversed for calendar edit"); err != nil {
			return err
		}
		if err := repo.DeleteLines(ctx, current.ID); err != nil {
			return err
		}

		excl := availability.Exclusions{CalendarEventID: &current.ID}
		if err := s.calc.Validate(ctx, tx, input.Lines, window, excl); err != nil {
			return err
		}
		linkedID, err := s.reservations.LinkedTo(ctx, tx, current.ID)
		if err != nil {
			return err
		}
		lines, err := s.consume(ctx, tx, current.ID, linkedID, actor, input.Lines, "re-applied for calendar edit")
		if err != nil {
			return err
		}
		if err := repo.CreateLines(ctx, lines); err != nil {
			return err
		}

		current.DateStart = window.Start
		current.DateEnd = window.End
		if input.Description != nil {
			current.Description = strings.TrimSpace(*input.Description)
		}
		current.TotalQuantity = availability.TotalQuantity(input.Lines)
		current.QuotedCents = availability.QuoteCents(rates(items), input.Lines, window)
		if err := repo.UpdateEvent(ctx, current); err != nil {
			return err
		}
		current.Lines = lines
		event = current
		return s.emitChanged(ctx, tx, enums.EventCalendarEventUpdated, actor, current, linkedID)
	})
	if err != nil {
		s.reject(ctx, "edit", err)
		return nil, err
	}
	s.metrics.IncTransition("edited")
	s.logEvent(ctx, event.ID, "calendar.edited")
	return event, nil
}

// Finalize returns every line's stock, finalizes the linked reservation,
// records the finalized audit entry and deletes the event.
func (s *service) Finalize(ctx context.Context, actor auth.Actor, id uuid.UUID, note string) (*FinalizeResult, error) {
	if !actor.Privileged() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only staff can finalize calendar events")
	}

	result := &FinalizeResult{CalendarID: id}
	err := db.RunBounded(ctx, s.tx, s.policy, "finalize calendar event", func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.LockByID(ctx, id)
		if err != nil {
			return mapFindError(err)
		}
		ids := make([]uuid.UUID, 0, len(current.Lines))
		for _, line := range current.Lines {
			ids = append(ids, line.ItemID)
		}
		if _, err := s.lockItems(ctx, tx, ids); err != nil {
			return err
		}

		returned, err := s.release(ctx, tx, current, actor, "returned on calendar finalize")
		if err != nil {
			return err
		}
		result.Returned = returned

		reservationID, err := s.reservations.MarkFinalizedByCalendar(ctx, tx, current.ID, s.now())
		if err != nil {
			return err
		}
		result.ReservationID = reservationID

		if _, err := s.audit.Record(ctx, tx, audit.RecordInput{
			CalendarEventID: current.ID,
			ReservationID:   reservationID,
			Action:          enums.AuditActionFinalized,
			ActorID:         actor.IDPtr(),
			Note:            note,
		}); err != nil {
			return err
		}
		if err := repo.DeleteLines(ctx, current.ID); err != nil {
			return err
		}
		if err := repo.DeleteEvent(ctx, current.ID); err != nil {
			return err
		}

		back := make([]payloads.LineQuantity, 0, len(returned))
		for _, m := range returned {
			back = append(back, payloads.LineQuantity{ItemID: m.ItemID, Quantity: m.Quantity})
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCalendarEventFinalized,
			AggregateType: enums.AggregateCalendarEvent,
			AggregateID:   current.ID,
			Actor:         outbox.ActorFrom(actor),
			Data: payloads.CalendarEventFinalizedEvent{
				CalendarID:    current.ID,
				ReservationID: reservationID,
				Returned:      back,
			},
		})
	})
	if err != nil {
		s.reject(ctx, "finalize", err)
		return nil, err
	}
	s.metrics.IncTransition("finalized")
	for _, m := range result.Returned {
		s.metrics.AddMovement(string(m.Kind), m.Quantity)
	}
	s.logEvent(ctx, id, "calendar.finalized")
	return result, nil
}

func (s *service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*models.CalendarEvent, error) {
	if !actor.Privileged() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only staff can read the calendar")
	}
	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapFindError(err)
	}
	return event, nil
}

func (s *service) List(ctx context.Context, actor auth.Actor, filter ListFilter) (*EventList, error) {
	if !actor.Privileged() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only staff can read the calendar")
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "to must not be before from")
	}
	events, next, err := s.repo.List(ctx, filter)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidCursor) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list calendar events")
	}
	return &EventList{Events: events, NextCursor: next}, nil
}

// Audit lists the history of a calendar event. It keeps working after the
// event itself has been finalized and deleted.
func (s *service) Audit(ctx context.Context, actor auth.Actor, id uuid.UUID) ([]models.AuditEntry, error) {
	if !actor.Privileged() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only staff can read the calendar")
	}
	entries, err := s.audit.ForCalendar(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list audit entries")
	}
	if len(entries) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "calendar event not found")
	}
	return entries, nil
}

// lockItems locks every referenced item in ascending id order and fails with
// NOT_FOUND if any is missing.
func (s *service) lockItems(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]models.InventoryItem, error) {
	ordered := inventory.SortedIDs(ids)
	items, err := s.inventory.WithTx(tx).LockItems(ctx, ordered)
	if err != nil {
		return nil, err
	}
	if len(items) != len(ordered) {
		found := make(map[uuid.UUID]struct{}, len(items))
		for _, item := range items {
			found[item.ID] = struct{}{}
		}
		for _, id := range ordered {
			if _, ok := found[id]; !ok {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found").
					WithDetails(map[string]any{"item_id": id})
			}
		}
	}
	return items, nil
}

// consume decrements stock for each line with a rented movement and returns
// the calendar lines pointing at those movements.
func (s *service) consume(ctx context.Context, tx *gorm.DB, eventID uuid.UUID, reservationID *uuid.UUID, actor auth.Actor, lines []availability.Line, note string) ([]models.CalendarLine, error) {
	out := make([]models.CalendarLine, 0, len(lines))
	for _, line := range lines {
		movement, err := s.ledger.Decrement(ctx, tx, inventory.Change{
			ItemID:          line.ItemID,
			Quantity:        line.Quantity,
			Kind:            enums.MovementKindRented,
			Note:            note,
			ReservationID:   reservationID,
			CalendarEventID: &eventID,
			ActorID:         actor.IDPtr(),
		})
		if err != nil {
			return nil, err
		}
		out = append(out, models.CalendarLine{
			CalendarEventID: eventID,
			MovementID:      movement.ID,
			ItemID:          line.ItemID,
			Quantity:        line.Quantity,
		})
	}
	return out, nil
}

// release returns each calendar line's quantity to stock with a returned movement.
func (s *service) release(ctx context.Context, tx *gorm.DB, event *models.CalendarEvent, actor auth.Actor, note string) ([]models.InventoryMovement, error) {
	eventID := event.ID
	out := make([]models.InventoryMovement, 0, len(event.Lines))
	for _, line := range event.Lines {
		movement, err := s.ledger.Increment(ctx, tx, inventory.Change{
			ItemID:          line.ItemID,
			Quantity:        line.Quantity,
			Kind:            enums.MovementKindReturned,
			Note:            note,
			CalendarEventID: &eventID,
			ActorID:         actor.IDPtr(),
		})
		if err != nil {
			return nil, err
		}
		out = append(out, *movement)
	}
	return out, nil
}

func (s *service) emitChanged(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, actor auth.Actor, event *models.CalendarEvent, reservationID *uuid.UUID) error {
	lines := make([]payloads.LineQuantity, 0, len(event.Lines))
	for _, line := range event.Lines {
		lines = append(lines, payloads.LineQuantity{ItemID: line.ItemID, Quantity: line.Quantity})
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateCalendarEvent,
		AggregateID:   event.ID,
		Actor:         outbox.ActorFrom(actor),
		Data: payloads.CalendarEventChangedEvent{
			CalendarID:    event.ID,
			ReservationID: reservationID,
			RequesterID:   event.RequesterID,
			DateStart:     event.DateStart,
			DateEnd:       event.DateEnd,
			Lines:         lines,
			TotalQuantity: event.TotalQuantity,
		},
	})
}

func (s *service) reject(ctx context.Context, op string, err error) {
	code := pkgerrors.CodeOf(err)
	s.metrics.IncRejection(op, string(code))
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{"operation": op, "error_code": code})
	s.logg.Warn(logCtx, "calendar.rejected")
}

func (s *service) logEvent(ctx context.Context, id uuid.UUID, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithCalendarID(ctx, id.String()), msg)
}

func itemIDs(lines []availability.Line) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ItemID)
	}
	return ids
}

func rates(items []models.InventoryItem) map[uuid.UUID]int64 {
	out := make(map[uuid.UUID]int64, len(items))
	for _, item := range items {
		out[item.ID] = item.DailyRateCents
	}
	return out
}

func mapFindError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "calendar event not found")
	}
	return err
}
