package reservations_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventrentals-backend/internal/audit"
	"github.com/angelmondragon/eventrentals-backend/internal/availability"
	"github.com/angelmondragon/eventrentals-backend/internal/calendar"
	"github.com/angelmondragon/eventrentals-backend/internal/inventory"
	"github.com/angelmondragon/eventrentals-backend/internal/reservations"
	"github.com/angelmondragon/eventrentals-backend/pkg/auth"
	"github.com/angelmondragon/eventrentals-backend/pkg/db/dbtest"
	"github.com/angelmondragon/eventrentals-backend/pkg/db/models"
	"github.com/angelmondragon/eventrentals-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventrentals-backend/pkg/errors"
	"github.com/angelmondragon/eventrentals-backend/pkg/logger"
	"github.com/angelmondragon/eventrentals-backend/pkg/outbox"
	"github.com/angelmondragon/eventrentals-backend/pkg/pagination"
)

var (
	staff    = auth.Actor{UserID: uuid.New(), Role: enums.MemberRoleStaff}
	customer = auth.Actor{UserID: uuid.New(), Role: enums.MemberRoleCustomer}
)

type engine struct {
	conn      *gorm.DB
	inventory inventory.Service
	invRepo   *inventory.Repository
	res       reservations.Service
	cal       calendar.Service
}

func newEngine(t *testing.T) engine {
	t.Helper()
	client, conn := dbtest.Client(t)
	logg := logger.New(logger.Options{ServiceName: "reservations-test", Output: io.Discard})
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)

	invRepo := inventory.NewRepository(conn)
	ledger := inventory.NewLedger(invRepo)
	invSvc, err := inventory.NewService(inventory.ServiceParams{
		TxRunner: client, Repo: invRepo, Ledger: ledger, Outbox: emitter, Logger: logg,
	})
	require.NoError(t, err)

	calc := availability.NewCalculator(availability.NewRepository(conn))
	resRepo := reservations.NewRepository(conn)
	auditSvc, err := audit.NewService(audit.NewRepository(conn))
	require.NoError(t, err)

	calSvc, err := calendar.NewService(calendar.ServiceParams{
		TxRunner:     client,
		Repo:         calendar.NewRepository(conn),
		Inventory:    invRepo,
		Ledger:       ledger,
		Calculator:   calc,
		Reservations: resRepo,
		Audit:        auditSvc,
		Outbox:       emitter,
		Logger:       logg,
	})
	require.NoError(t, err)

	resSvc, err := reservations.NewService(reservations.ServiceParams{
		TxRunner:     client,
		Repo:         resRepo,
		Inventory:    invRepo,
		Calculator:   calc,
		Materializer: calSvc,
		Outbox:       emitter,
		Logger:       logg,
	})
	require.NoError(t, err)

	return engine{conn: conn, inventory: invSvc, invRepo: invRepo, res: resSvc, cal: calSvc}
}

func jan(day, hour int) time.Time {
	return time.Date(2027, time.January, day, hour, 0, 0, 0, time.UTC)
}

func (e engine) item(t *testing.T, stock int) uuid.UUID {
	t.Helper()
	item, err := e.inventory.CreateItem(context.Background(), staff, inventory.CreateItemInput{
		SKU:            uuid.NewString(),
		Name:           "Line array speaker",
		InitialStock:   stock,
		DailyRateCents: 1000,
	})
	require.NoError(t, err)
	return item.ID
}

func (e engine) stock(t *testing.T, id uuid.UUID) int {
	t.Helper()
	item, err := e.invRepo.FindItem(context.Background(), id)
	require.NoError(t, err)
	return item.Stock
}

func (e engine) submit(t *testing.T, itemID uuid.UUID, qty int, start, end time.Time) (*models.Reservation, error) {
	t.Helper()
	return e.res.Submit(context.Background(), customer, reservations.SubmitInput{
		ServiceLabel: "sonido boda",
		DateStart:    start,
		DateEnd:      end,
		Lines:        []availability.Line{{ItemID: itemID, Quantity: qty}},
	})
}

func (e engine) mustSubmit(t *testing.T, itemID uuid.UUID, qty int, start, end time.Time) *models.Reservation {
	t.Helper()
	res, err := e.submit(t, itemID, qty, start, end)
	require.NoError(t, err)
	return res
}

func (e engine) movements(t *testing.T, itemID uuid.UUID, kind enums.MovementKind) []models.InventoryMovement {
	t.Helper()
	var rows []models.InventoryMovement
	require.NoError(t, e.conn.Where("item_id = ? AND kind = ?", itemID, kind).Order("created_at ASC").Find(&rows).Error)
	return rows
}

func (e engine) requireLedgerBalanced(t *testing.T, itemID uuid.UUID) {
	t.Helper()
	drift, err := e.inventory.Reconcile(context.Background(), itemID)
	require.NoError(t, err)
	require.True(t, drift.InSync(), "stock %d expected %d", drift.Stock, drift.Expected)
	require.GreaterOrEqual(t, drift.Stock, 0)
}

func TestSubmitStoresPendingWithQuote(t *testing.T) {
	e := newEngine(t)
	x := e.item(t, 5)

	res := e.mustSubmit(t, x, 2, jan(1, 0), jan(3, 12))
	require.Equal(t, enums.ReservationStatusPending, res.Status)
	require.Equal(t, customer.UserID, res.RequesterID)
	require.Equal(t, 2, res.TotalQuantity)
	require.Equal(t, int64(1000*2*3), res.QuotedCents)
	require.Len(t, res.Lines, 1)
	require.Equal(t, 5, e.stock(t, x))

	var event models.OutboxEvent
	require.NoError(t, e.conn.Where("event_type = ?", enums.EventReservationSubmitted).First(&event).Error)
	require.Equal(t, res.ID, event.AggregateID)
}

func TestSubmitValidation(t *testing.T) {
	e := newEngine(t)
	x := e.item(t, 5)
	ctx := context.Background()

	_, err := e.submit(t, x, 0, jan(1, 0), jan(2, 0))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = e.submit(t, x, 1, jan(3, 0), jan(2, 0))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = e.submit(t, uuid.New(), 1, jan(1, 0), jan(2, 0))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = e.res.Submit(ctx, customer, reservations.SubmitInput{
		RequesterID:  uuid.New(),
		ServiceLabel: "x",
		DateStart:    jan(1, 0),
		DateEnd:      jan(2, 0),
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = e.res.Submit(ctx, customer, reservations.SubmitInput{ServiceLabel: " ", DateStart: jan(1, 0), DateEnd: jan(2, 0)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	empty, err := e.res.Submit(ctx, customer, reservations.SubmitInput{ServiceLabel: "consulta", DateStart: jan(1, 0), DateEnd: jan(2, 0)})
	require.NoError(t, err)
	require.Zero(t, empty.TotalQuantity)
}

func TestScenarioOverlapAfterFullConfirmIsRejected(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	x := e.item(t, 5)

	first := e.mustSubmit(t, x, 5, jan(1, 0), jan(3, 0))
	_, err := e.res.Confirm(ctx, staff, first.ID)
	require.NoError(t, err)
	require.Equal(t, 0, e.stock(t, x))

	_, err = e.submit(t, x, 1, jan(2, 0), jan(2, 12))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))
	details := pkgerrors.As(err).Details().([]inventory.Shortfall)
	require.Equal(t, 0, details[0].Available)
	require.Equal(t, 1, details[0].Requested)
}

func TestScenarioBackToBackBookingDoesNotOverlap(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	x := e.item(t, 5)

	first := e.mustSubmit(t, x, 5, jan(1, 0), jan(3, 0))
	confirmed, err := e.res.Confirm(ctx, staff, first.ID)
	require.NoError(t, err)

	second, err := e.submit(t, x, 1, jan(3, 0), jan(5, 0))
	require.NoError(t, err)
	require.Equal(t, enums.ReservationStatusPending, second.Status)

	// The units are still out with the first event, so the hard check fails
	// until they are returned.
	_, err = e.res.Confirm(ctx, staff, second.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))
	reloaded, err := e.res.Get(ctx, staff, second.ID)
	require.NoError(t, err)
	require.Equal(t, enums.ReservationStatusPending, reloaded.Status)

	_, err = e.cal.Finalize(ctx, staff, confirmed.CalendarEvent.ID, "returned")
	require.NoError(t, err)
	_, err = e.res.Confirm(ctx, staff, second.ID)
	require.NoError(t, err)
	require.Equal(t, 4, e.stock(t, x))
	e.requireLedgerBalanced(t, x)
}

func TestScenarioConfirmThenFinalizeRoundTrip(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	x := e.item(t, 3)

	res := e.mustSubmit(t, x, 3, jan(10, 0), jan(12, 0))
	confirmed, err := e.res.Confirm(ctx, staff, res.ID)
	require.NoError(t, err)
	require.Equal(t, enums.ReservationStatusConfirmed, confirmed.Reservation.Status)
	require.Equal(t, confirmed.CalendarEvent.ID, *confirmed.Reservation.LinkedCalendarID)
	require.Equal(t, 0, e.stock(t, x))

	rented := e.movements(t, x, enums.MovementKindRented)
	require.Len(t, rented, 1)
	require.Equal(t, 3, rented[0].Quantity)
	event := confirmed.CalendarEvent
	require.Equal(t, 3, event.TotalQuantity)
	require.Len(t, event.Lines, 1)
	require.Equal(t, rented[0].ID, event.Lines[0].MovementID)
	require.Equal(t, int64(1000*3*2), event.QuotedCents)

	result, err := e.cal.Finalize(ctx, staff, event.ID, "")
	require.NoError(t, err)
	require.Equal(t, res.ID, *result.ReservationID)
	returned := e.movements(t, x, enums.MovementKindReturned)
	require.Len(t, returned, 1)
	require.Equal(t, 3, returned[0].Quantity)
	require.Equal(t, 3, e.stock(t, x))

	final, err := e.res.Get(ctx, staff, res.ID)
	require.NoError(t, err)
	require.Equal(t, enums.ReservationStatusFinalized, final.Status)
	require.NotNil(t, final.FinalizedAt)

	entries, err := e.cal.Audit(ctx, staff, event.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, enums.AuditActionConfirmed, entries[0].Action)
	require.Equal(t, enums.AuditActionFinalized, entries[1].Action)

	_, err = e.cal.Get(ctx, staff, event.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	_, err = e.cal.Finalize(ctx, staff, event.ID, "")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	e.requireLedgerBalanced(t, x)
}

func TestScenarioEditBeyondFreedStockRollsBack(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	x := e.item(t, 3)

	res := e.mustSubmit(t, x, 3, jan(1, 0), jan(2, 0))
	confirmed, err := e.res.Confirm(ctx, staff, res.ID)
	require.NoError(t, err)
	original := confirmed.CalendarEvent

	_, err = e.cal.Edit(ctx, staff, original.ID, calendar.EditInput{
		Window: availability.Range{Start: jan(1, 0), End: jan(2, 0)},
		Lines:  []availability.Line{{ItemID: x, Quantity: 5}},
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))
	require.Equal(t, 0, e.stock(t, x))

	current, err := e.cal.Get(ctx, staff, original.ID)
	require.NoError(t, err)
	require.Len(t, current.Lines, 1)
	require.Equal(t, original.Lines[0].MovementID, current.Lines[0].MovementID)
	require.Equal(t, 3, current.Lines[0].Quantity)
	require.Empty(t, e.movements(t, x, enums.MovementKindReturned))

	edited, err := e.cal.Edit(ctx, staff, original.ID, calendar.EditInput{
		Window: availability.Range{Start: jan(1, 0), End: jan(3, 0)},
		Lines:  []availability.Line{{ItemID: x, Quantity: 2}},
	})
	require.NoError(t, err)
	require.Equal(t, 2, edited.TotalQuantity)
	require.True(t, edited.DateEnd.Equal(jan(3, 0)))
	require.Equal(t, 1, e.stock(t, x))
	require.Len(t, e.movements(t, x, enums.MovementKindReturned), 1)
	require.Len(t, e.movements(t, x, enums.MovementKindRented), 2)

	current, err = e.cal.Get(ctx, staff, original.ID)
	require.NoError(t, err)
	require.Len(t, current.Lines, 1)
	require.NotEqual(t, original.Lines[0].MovementID, current.Lines[0].MovementID)
	e.requireLedgerBalanced(t, x)
}

func TestEditCountsOtherPendingDemand(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	x := e.item(t, 5)

	event, err := e.cal.Book(ctx, staff, calendar.BookInput{
		RequesterID: customer.UserID,
		Window:      availability.Range{Start: jan(1, 0), End: jan(2, 0)},
		Lines:       []availability.Line{{ItemID: x, Quantity: 2}},
	})
	require.NoError(t, err)
	e.mustSubmit(t, x, 2, jan(1, 0), jan(2, 0))

	_, err = e.cal.Edit(ctx, staff, event.ID, calendar.EditInput{
		Window: availability.Range{Start: jan(1, 0), End: jan(2, 0)},
		Lines:  []availability.Line{{ItemID: x, Quantity: 4}},
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))

	_, err = e.cal.Edit(ctx, staff, event.ID, calendar.EditInput{
		Window: availability.Range{Start: jan(1, 0), End: jan(2, 0)},
		Lines:  []availability.Line{{ItemID: x, Quantity: 3}},
	})
	require.NoError(t, err)
	require.Equal(t, 2, e.stock(t, x))
}

func TestConfirmRevalidatesAgainstCurrentStock(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	x := e.item(t, 4)

	res := e.mustSubmit(t, x, 3, jan(1, 0), jan(2, 0))
	_, err := e.inventory.Adjust(ctx, staff, x, inventory.AdjustInput{Kind: enums.MovementKindOut, Quantity: 2, Note: "damaged"})
	require.NoError(t, err)

	_, err = e.res.Confirm(ctx, staff, res.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))
	require.Equal(t, 2, e.stock(t, x))
	require.Empty(t, e.movements(t, x, enums.MovementKindRented))

	var events int64
	require.NoError(t, e.conn.Model(&models.CalendarEvent{}).Count(&events).Error)
	require.Zero(t, events)

	reloaded, err := e.res.Get(ctx, staff, res.ID)
	require.NoError(t, err)
	require.Equal(t, enums.ReservationStatusPending, reloaded.Status)
}

func TestConfirmRejectsNonPendingAndNonPrivileged(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	x := e.item(t, 4)
	res := e.mustSubmit(t, x, 1, jan(1, 0), jan(2, 0))

	_, err := e.res.Confirm(ctx, customer, res.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = e.res.Confirm(ctx, staff, res.ID)
	require.NoError(t, err)

	_, err = e.res.Confirm(ctx, staff, res.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	require.Equal(t, "Solo se pueden confirmar reservas pendientes", pkgerrors.As(err).Message())

	_, err = e.res.Cancel(ctx, staff, res.ID, "")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = e.res.Confirm(ctx, staff, uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	require.Equal(t, 3, e.stock(t, x))
}

func TestCancelTwiceIsRejectedAndLeavesStock(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	x := e.item(t, 4)
	res := e.mustSubmit(t, x, 4, jan(1, 0), jan(2, 0))

	cancelled, err := e.res.Cancel(ctx, staff, res.ID, "cliente desistió")
	require.NoError(t, err)
	require.Equal(t, enums.ReservationStatusCancelled, cancelled.Status)
	require.Equal(t, "cliente desistió", *cancelled.CancelReason)

	_, err = e.res.Cancel(ctx, staff, res.ID, "")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	require.Equal(t, 4, e.stock(t, x))

	// The cancelled hold no longer lowers availability.
	again := e.mustSubmit(t, x, 4, jan(1, 0), jan(2, 0))
	require.Equal(t, enums.ReservationStatusPending, again.Status)

	_, err = e.res.Confirm(ctx, staff, res.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	e.requireLedgerBalanced(t, x)
}

func TestConcurrentConfirmsNeverOverdraw(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	x := e.item(t, 4)
	a := e.mustSubmit(t, x, 3, jan(1, 0), jan(3, 0))
	b := e.mustSubmit(t, x, 3, jan(3, 0), jan(5, 0))

	ids := []uuid.UUID{a.ID, b.ID, a.ID, b.ID}
	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			_, errs[i] = e.res.Confirm(ctx, staff, id)
		}(i, id)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		code := pkgerrors.CodeOf(err)
		require.Contains(t, []pkgerrors.Code{pkgerrors.CodeInsufficientStock, pkgerrors.CodeStateConflict, pkgerrors.CodeConcurrencyConflict}, code)
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, e.stock(t, x))

	var events int64
	require.NoError(t, e.conn.Model(&models.CalendarEvent{}).Count(&events).Error)
	require.Equal(t, int64(1), events)
	e.requireLedgerBalanced(t, x)
}

func TestOverlappingCalendarEventsNeverExceedOwnedStock(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	x := e.item(t, 6)

	windows := [][2]time.Time{
		{jan(1, 0), jan(3, 0)},
		{jan(2, 0), jan(4, 0)},
		{jan(2, 12), jan(2, 18)},
		{jan(3, 0), jan(6, 0)},
	}
	for _, w := range windows {
		res, err := e.submit(t, x, 2, w[0], w[1])
		if err != nil {
			require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))
			continue
		}
		if _, err := e.res.Confirm(ctx, staff, res.ID); err != nil {
			require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))
		}
	}

	var events []models.CalendarEvent
	require.NoError(t, e.conn.Preload("Lines").Find(&events).Error)
	for i := range events {
		for j := range events {
			if i >= j {
				continue
			}
			ri := availability.Range{Start: events[i].DateStart, End: events[i].DateEnd}
			rj := availability.Range{Start: events[j].DateStart, End: events[j].DateEnd}
			if ri.Overlaps(rj) {
				require.LessOrEqual(t, events[i].TotalQuantity+events[j].TotalQuantity, 6)
			}
		}
	}
	e.requireLedgerBalanced(t, x)
}

func TestExpirePendingCancelsOldRequests(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	x := e.item(t, 4)
	stale := e.mustSubmit(t, x, 1, jan(1, 0), jan(2, 0))
	confirmed := e.mustSubmit(t, x, 1, jan(1, 0), jan(2, 0))
	_, err := e.res.Confirm(ctx, staff, confirmed.ID)
	require.NoError(t, err)

	expired, err := e.res.ExpirePending(ctx, time.Now().UTC().Add(time.Hour), 10)
	require.NoError(t, err)
	require.Equal(t, 1, expired)

	reloaded, err := e.res.Get(ctx, staff, stale.ID)
	require.NoError(t, err)
	require.Equal(t, enums.ReservationStatusCancelled, reloaded.Status)
	require.Equal(t, reservations.ReasonExpired, *reloaded.CancelReason)

	var event models.OutboxEvent
	require.NoError(t, e.conn.Where("event_type = ?", enums.EventReservationExpired).First(&event).Error)
	require.Equal(t, stale.ID, event.AggregateID)

	none, err := e.res.ExpirePending(ctx, time.Now().UTC().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Zero(t, none)
}

func TestGetAndListScopeToRequester(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	x := e.item(t, 10)
	own := e.mustSubmit(t, x, 1, jan(1, 0), jan(2, 0))
	other := auth.Actor{UserID: uuid.New(), Role: enums.MemberRoleCustomer}
	_, err := e.res.Submit(ctx, other, reservations.SubmitInput{
		ServiceLabel: "luces",
		DateStart:    jan(1, 0),
		DateEnd:      jan(2, 0),
		Lines:        []availability.Line{{ItemID: x, Quantity: 1}},
	})
	require.NoError(t, err)

	_, err = e.res.Get(ctx, other, own.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	mine, err := e.res.List(ctx, customer, reservations.ListFilter{})
	require.NoError(t, err)
	require.Len(t, mine.Reservations, 1)
	require.Equal(t, own.ID, mine.Reservations[0].ID)

	theirs := other.UserID
	_, err = e.res.List(ctx, customer, reservations.ListFilter{RequesterID: &theirs})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	pending := enums.ReservationStatusPending
	all, err := e.res.List(ctx, staff, reservations.ListFilter{Status: &pending, Page: pagination.Params{Limit: 1}})
	require.NoError(t, err)
	require.Len(t, all.Reservations, 1)
	require.NotEmpty(t, all.NextCursor)
}
