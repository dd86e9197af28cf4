package reservations

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

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

const (
	msgConfirmPendingOnly = "Solo se pueden confirmar reservas pendientes"
	msgCancelPendingOnly  = "Solo se pueden cancelar reservas pendientes"

	// ReasonExpired is recorded on reservations cancelled by the pending TTL sweep.
	ReasonExpired = "expired"
)

// Materializer commits a pending reservation into a calendar event inside
// the caller's transaction.
type Materializer interface {
	MaterializeReservation(ctx context.Context, tx *gorm.DB, actor auth.Actor, reservation *models.Reservation) (*models.CalendarEvent, error)
}

// SubmitInput is a booking request. RequesterID defaults to the actor.
type SubmitInput struct {
	RequesterID  uuid.UUID
	ServiceLabel string
	DateStart    time.Time
	DateEnd      time.Time
	Lines        []availability.Line
	Metadata     json.RawMessage
}

// ConfirmResult pairs the confirmed reservation with the event it became.
type ConfirmResult struct {
	Reservation   *models.Reservation   `json:"reservation"`
	CalendarEvent *models.CalendarEvent `json:"calendar_event"`
}

// ReservationList is one page of reservations.
type ReservationList struct {
	Reservations []models.Reservation `json:"reservations"`
	NextCursor   string               `json:"next_cursor,omitempty"`
}

// Service drives the reservation state machine:
// pending -> confirmed (-> finalized via the calendar) or pending -> cancelled.
type Service interface {
	Submit(ctx context.Context, actor auth.Actor, input SubmitInput) (*models.Reservation, error)
	Confirm(ctx context.Context, actor auth.Actor, id uuid.UUID) (*ConfirmResult, error)
	Cancel(ctx context.Context, actor auth.Actor, id uuid.UUID, reason string) (*models.Reservation, error)
	Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*models.Reservation, error)
	List(ctx context.Context, actor auth.Actor, filter ListFilter) (*ReservationList, error)
	ExpirePending(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

type ServiceParams struct {
	TxRunner     db.TxRunner
	Repo         *Repository
	Inventory    *inventory.Repository
	Calculator   *availability.Calculator
	Materializer Materializer
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
	calc         *availability.Calculator
	materializer Materializer
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
		return nil, errors.New("reservation repository required")
	case params.Inventory == nil:
		return nil, errors.New("inventory repository required")
	case params.Calculator == nil:
		return nil, errors.New("availability calculator required")
	case params.Materializer == nil:
		return nil, errors.New("materializer required")
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
		calc:         params.Calculator,
		materializer: params.Materializer,
		outbox:       params.Outbox,
		policy:       params.Policy,
		logg:         params.Logger,
		metrics:      params.Metrics,
		now:          clock,
	}, nil
}

// Submit stores a pending reservation after a soft availability check.
// Nothing touches the ledger; the hold only lowers computed availability.
func (s *service) Submit(ctx context.Context, actor auth.Actor, input SubmitInput) (*models.Reservation, error) {
	requester := input.RequesterID
	if requester == uuid.Nil {
		requester = actor.UserID
	}
	if requester == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "requester_id is required")
	}
	if !actor.CanActFor(requester) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot submit reservations for another requester")
	}
	label := strings.TrimSpace(input.ServiceLabel)
	if label == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "service_label is required")
	}
	window, err := availability.NewRange(input.DateStart, input.DateEnd)
	if err != nil {
		return nil, err
	}
	if err := availability.ValidateLines(input.Lines); err != nil {
		return nil, err
	}
	if len(input.Metadata) > 0 && !json.Valid(input.Metadata) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "metadata must be valid JSON")
	}

	reservation := &models.Reservation{
		RequesterID:   requester,
		ServiceLabel:  label,
		DateStart:     window.Start,
		DateEnd:       window.End,
		TotalQuantity: availability.TotalQuantity(input.Lines),
		Status:        enums.ReservationStatusPending,
		Metadata:      input.Metadata,
	}
	for _, line := range input.Lines {
		reservation.Lines = append(reservation.Lines, models.ReservationLine{ItemID: line.ItemID, Quantity: line.Quantity})
	}

	err = db.RunBounded(ctx, s.tx, s.policy, "submit reservation", func(tx *gorm.DB) error {
		if err := s.calc.Validate(ctx, tx, input.Lines, window, availability.Exclusions{}); err != nil {
			return err
		}
		items, err := s.inventory.WithTx(tx).FindItems(ctx, itemIDs(input.Lines))
		if err != nil {
			return err
		}
		reservation.QuotedCents = availability.QuoteCents(rates(items), input.Lines, window)
		if err := s.repo.WithTx(tx).Create(ctx, reservation); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReservationSubmitted,
			AggregateType: enums.AggregateReservation,
			AggregateID:   reservation.ID,
			Actor:         outbox.ActorFrom(actor),
			Data: payloads.ReservationSubmittedEvent{
				ReservationID: reservation.ID,
				RequesterID:   reservation.RequesterID,
				ServiceLabel:  reservation.ServiceLabel,
				DateStart:     reservation.DateStart,
				DateEnd:       reservation.DateEnd,
				Lines:         lineQuantities(input.Lines),
				QuotedCents:   reservation.QuotedCents,
			},
		})
	})
	if err != nil {
		s.reject(ctx, "submit", uuid.Nil, err)
		return nil, err
	}
	s.metrics.IncTransition("submitted")
	s.logTransition(ctx, reservation.ID, "reservation.submitted")
	return reservation, nil
}

// Confirm re-validates a pending reservation under lock and materializes it.
// On any failure nothing is written and the reservation stays pending.
func (s *service) Confirm(ctx context.Context, actor auth.Actor, id uuid.UUID) (*ConfirmResult, error) {
	if !actor.Privileged() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only staff can confirm reservations")
	}

	var result ConfirmResult
	err := db.RunBounded(ctx, s.tx, s.policy, "confirm reservation", func(tx *gorm.DB) error {
		reservation, err := s.repo.WithTx(tx).LockByID(ctx, id)
		if err != nil {
			return mapFindError(err)
		}
		if reservation.Status != enums.ReservationStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, msgConfirmPendingOnly).
				WithDetails(map[string]any{"status": reservation.Status})
		}

		event, err := s.materializer.MaterializeReservation(ctx, tx, actor, reservation)
		if err != nil {
			return err
		}

		confirmedAt := s.now()
		reservation.Status = enums.ReservationStatusConfirmed
		reservation.LinkedCalendarID = &event.ID
		reservation.ConfirmedAt = &confirmedAt
		result = ConfirmResult{Reservation: reservation, CalendarEvent: event}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReservationConfirmed,
			AggregateType: enums.AggregateReservation,
			AggregateID:   reservation.ID,
			Actor:         outbox.ActorFrom(actor),
			Data: payloads.ReservationConfirmedEvent{
				ReservationID: reservation.ID,
				CalendarID:    event.ID,
				RequesterID:   reservation.RequesterID,
			},
		})
	})
	if err != nil {
		s.reject(ctx, "confirm", id, err)
		return nil, err
	}
	s.metrics.IncTransition("confirmed")
	s.metrics.AddMovement(string(enums.MovementKindRented), result.CalendarEvent.TotalQuantity)
	s.logTransition(ctx, id, "reservation.confirmed")
	return &result, nil
}

// Cancel closes a pending reservation. Pending holds never reached the
// ledger, so no stock moves. The row is kept with status cancelled.
func (s *service) Cancel(ctx context.Context, actor auth.Actor, id uuid.UUID, reason string) (*models.Reservation, error) {
	if !actor.Privileged() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only staff can cancel reservations")
	}
	reservation, err := s.cancel(ctx, actor, id, strings.TrimSpace(reason), enums.EventReservationCancelled)
	if err != nil {
		s.reject(ctx, "cancel", id, err)
		return nil, err
	}
	s.metrics.IncTransition("cancelled")
	s.logTransition(ctx, id, "reservation.cancelled")
	return reservation, nil
}

func (s *service) cancel(ctx context.Context, actor auth.Actor, id uuid.UUID, reason string, eventType enums.OutboxEventType) (*models.Reservation, error) {
	var reservation *models.Reservation
	err := db.RunBounded(ctx, s.tx, s.policy, "cancel reservation", func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.LockByID(ctx, id)
		if err != nil {
			return mapFindError(err)
		}
		if current.Status != enums.ReservationStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, msgCancelPendingOnly).
				WithDetails(map[string]any{"status": current.Status})
		}

		cancelledAt := s.now()
		fields := map[string]any{
			"status":       enums.ReservationStatusCancelled,
			"cancelled_at": cancelledAt,
		}
		if reason != "" {
			fields["cancel_reason"] = reason
		}
		rows, err := repo.Transition(ctx, id, enums.ReservationStatusPending, fields)
		if err != nil {
			return err
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, msgCancelPendingOnly)
		}
		current.Status = enums.ReservationStatusCancelled
		current.CancelledAt = &cancelledAt
		if reason != "" {
			current.CancelReason = &reason
		}
		reservation = current

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateReservation,
			AggregateID:   id,
			Actor:         outbox.ActorFrom(actor),
			Data: payloads.ReservationCancelledEvent{
				ReservationID: id,
				RequesterID:   current.RequesterID,
				Status:        current.Status,
				Reason:        reason,
			},
		})
	})
	return reservation, err
}

// ExpirePending cancels up to limit pending reservations created before
// cutoff. Reservations confirmed or cancelled in the meantime are skipped.
func (s *service) ExpirePending(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	ids, err := s.repo.PendingCreatedBefore(ctx, cutoff.UTC(), pagination.NormalizeLimit(limit))
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list expired reservations")
	}

	var (
		expired int
		errs    error
	)
	system := auth.SystemActor()
	for _, id := range ids {
		if _, err := s.cancel(ctx, system, id, ReasonExpired, enums.EventReservationExpired); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
				continue
			}
			errs = multierr.Append(errs, err)
			continue
		}
		expired++
		s.metrics.IncTransition("expired")
		s.logTransition(ctx, id, "reservation.expired")
	}
	return expired, errs
}

func (s *service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*models.Reservation, error) {
	reservation, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapFindError(err)
	}
	if !actor.CanActFor(reservation.RequesterID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
	}
	return reservation, nil
}

func (s *service) List(ctx context.Context, actor auth.Actor, filter ListFilter) (*ReservationList, error) {
	if !actor.Privileged() {
		if filter.RequesterID != nil && *filter.RequesterID != actor.UserID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot list reservations of another requester")
		}
		own := actor.UserID
		filter.RequesterID = &own
	}
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	rows, next, err := s.repo.List(ctx, filter)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidCursor) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list reservations")
	}
	return &ReservationList{Reservations: rows, NextCursor: next}, nil
}

func (s *service) reject(ctx context.Context, op string, id uuid.UUID, err error) {
	code := pkgerrors.CodeOf(err)
	s.metrics.IncRejection(op, string(code))
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{"operation": op, "error_code": code})
	if id != uuid.Nil {
		logCtx = s.logg.WithReservationID(logCtx, id.String())
	}
	s.logg.Warn(logCtx, "reservation.rejected")
}

func (s *service) logTransition(ctx context.Context, id uuid.UUID, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithReservationID(ctx, id.String()), msg)
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

func lineQuantities(lines []availability.Line) []payloads.LineQuantity {
	out := make([]payloads.LineQuantity, 0, len(lines))
	for _, line := range lines {
		out = append(out, payloads.LineQuantity{ItemID: line.ItemID, Quantity: line.Quantity})
	}
	return out
}

func mapFindError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
	}
	return err
}
