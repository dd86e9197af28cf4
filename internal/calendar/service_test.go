package calendar_test

import (
	"context"
	"io"
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
)

var (
	staff    = auth.Actor{UserID: uuid.New(), Role: enums.MemberRoleStaff}
	customer = auth.Actor{UserID: uuid.New(), Role: enums.MemberRoleCustomer}
)

type fixture struct {
	conn    *gorm.DB
	svc     calendar.Service
	items   inventory.Service
	invRepo *inventory.Repository
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	logg := logger.New(logger.Options{ServiceName: "calendar-test", Output: io.Discard})
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)

	invRepo := inventory.NewRepository(conn)
	ledger := inventory.NewLedger(invRepo)
	items, err := inventory.NewService(inventory.ServiceParams{
		TxRunner: client, Repo: invRepo, Ledger: ledger, Outbox: emitter, Logger: logg,
	})
	require.NoError(t, err)
	auditSvc, err := audit.NewService(audit.NewRepository(conn))
	require.NoError(t, err)

	svc, err := calendar.NewService(calendar.ServiceParams{
		TxRunner:     client,
		Repo:         calendar.NewRepository(conn),
		Inventory:    invRepo,
		Ledger:       ledger,
		Calculator:   availability.NewCalculator(availability.NewRepository(conn)),
		Reservations: reservations.NewRepository(conn),
		Audit:        auditSvc,
		Outbox:       emitter,
		Logger:       logg,
		Clock:        func() time.Time { return time.Date(2026, time.December, 1, 9, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return fixture{conn: conn, svc: svc, items: items, invRepo: invRepo}
}

func (f fixture) item(t *testing.T, stock int, rate int64) uuid.UUID {
	t.Helper()
	item, err := f.items.CreateItem(context.Background(), staff, inventory.CreateItemInput{
		SKU:            uuid.NewString(),
		Name:           "Mesa redonda",
		InitialStock:   stock,
		DailyRateCents: rate,
	})
	require.NoError(t, err)
	return item.ID
}

func (f fixture) stock(t *testing.T, id uuid.UUID) int {
	t.Helper()
	item, err := f.invRepo.FindItem(context.Background(), id)
	require.NoError(t, err)
	return item.Stock
}

func window(startDay, endDay int) availability.Range {
	return availability.Range{
		Start: time.Date(2027, time.March, startDay, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2027, time.March, endDay, 0, 0, 0, 0, time.UTC),
	}
}

func TestBookConsumesStockAndAudits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tables := f.item(t, 10, 500)
	chairs := f.item(t, 40, 50)

	event, err := f.svc.Book(ctx, staff, calendar.BookInput{
		RequesterID: customer.UserID,
		Window:      window(5, 7),
		Description: "  boda jardín  ",
		Lines: []availability.Line{
			{ItemID: tables, Quantity: 4},
			{ItemID: chairs, Quantity: 30},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "boda jardín", event.Description)
	require.Equal(t, 34, event.TotalQuantity)
	require.Equal(t, int64(500*4*2+50*30*2), event.QuotedCents)
	require.Len(t, event.Lines, 2)
	require.Equal(t, 6, f.stock(t, tables))
	require.Equal(t, 10, f.stock(t, chairs))

	for _, line := range event.Lines {
		var movement models.InventoryMovement
		require.NoError(t, f.conn.Where("id = ?", line.MovementID).First(&movement).Error)
		require.Equal(t, enums.MovementKindRented, movement.Kind)
		require.Equal(t, line.Quantity, movement.Quantity)
		require.Equal(t, event.ID, *movement.CalendarEventID)
	}

	entries, err := f.svc.Audit(ctx, staff, event.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, enums.AuditActionConfirmed, entries[0].Action)
	require.Nil(t, entries[0].ReservationID)
	require.Equal(t, staff.UserID, *entries[0].ActorID)

	var created models.OutboxEvent
	require.NoError(t, f.conn.Where("event_type = ?", enums.EventCalendarEventCreated).First(&created).Error)
	require.Equal(t, event.ID, created.AggregateID)
}

func TestBookRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.item(t, 2, 100)

	_, err := f.svc.Book(ctx, customer, calendar.BookInput{RequesterID: customer.UserID, Window: window(1, 2)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.Book(ctx, staff, calendar.BookInput{Window: window(1, 2)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Book(ctx, staff, calendar.BookInput{RequesterID: customer.UserID, Window: window(3, 2)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Book(ctx, staff, calendar.BookInput{
		RequesterID: customer.UserID,
		Window:      window(1, 2),
		Lines:       []availability.Line{{ItemID: uuid.New(), Quantity: 1}},
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.Book(ctx, staff, calendar.BookInput{
		RequesterID: customer.UserID,
		Window:      window(1, 2),
		Lines:       []availability.Line{{ItemID: x, Quantity: 3}},
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))
	require.Equal(t, 2, f.stock(t, x))

	var events int64
	require.NoError(t, f.conn.Model(&models.CalendarEvent{}).Count(&events).Error)
	require.Zero(t, events)
}

func TestBookWithoutLines(t *testing.T) {
	f := newFixture(t)
	event, err := f.svc.Book(context.Background(), staff, calendar.BookInput{
		RequesterID: customer.UserID,
		Window:      window(1, 1),
		Description: "visita técnica",
	})
	require.NoError(t, err)
	require.Zero(t, event.TotalQuantity)
	require.Zero(t, event.QuotedCents)
	require.Empty(t, event.Lines)
}

func TestFinalizeDirectBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.item(t, 5, 100)

	event, err := f.svc.Book(ctx, staff, calendar.BookInput{
		RequesterID: customer.UserID,
		Window:      window(1, 3),
		Lines:       []availability.Line{{ItemID: x, Quantity: 1}, {ItemID: x, Quantity: 2}},
	})
	require.NoError(t, err)
	require.Equal(t, 2, f.stock(t, x))

	_, err = f.svc.Finalize(ctx, customer, event.ID, "")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	result, err := f.svc.Finalize(ctx, staff, event.ID, "todo regresó")
	require.NoError(t, err)
	require.Nil(t, result.ReservationID)
	require.Len(t, result.Returned, 2)
	require.Equal(t, 5, f.stock(t, x))

	var lines int64
	require.NoError(t, f.conn.Model(&models.CalendarLine{}).Where("calendar_event_id = ?", event.ID).Count(&lines).Error)
	require.Zero(t, lines)

	entries, err := f.svc.Audit(ctx, staff, event.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, enums.AuditActionFinalized, entries[1].Action)
	require.Equal(t, "todo regresó", entries[1].Note)

	var finalized models.OutboxEvent
	require.NoError(t, f.conn.Where("event_type = ?", enums.EventCalendarEventFinalized).First(&finalized).Error)
	require.Equal(t, event.ID, finalized.AggregateID)

	drift, err := f.items.Reconcile(ctx, x)
	require.NoError(t, err)
	require.True(t, drift.InSync())
}

func TestEditChangesWindowAndDescription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.item(t, 5, 100)
	y := f.item(t, 5, 300)

	event, err := f.svc.Book(ctx, staff, calendar.BookInput{
		RequesterID: customer.UserID,
		Window:      window(1, 2),
		Lines:       []availability.Line{{ItemID: x, Quantity: 2}},
	})
	require.NoError(t, err)

	description := "cambio a salón"
	edited, err := f.svc.Edit(ctx, staff, event.ID, calendar.EditInput{
		Window:      window(1, 4),
		Description: &description,
		Lines:       []availability.Line{{ItemID: y, Quantity: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, description, edited.Description)
	require.Equal(t, int64(300*3), edited.QuotedCents)
	require.Equal(t, 5, f.stock(t, x))
	require.Equal(t, 4, f.stock(t, y))

	_, err = f.svc.Edit(ctx, customer, event.ID, calendar.EditInput{Window: window(1, 2)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	_, err = f.svc.Edit(ctx, staff, uuid.New(), calendar.EditInput{Window: window(1, 2)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	entries, err := f.svc.Audit(ctx, staff, event.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestListFiltersByWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.item(t, 10, 100)

	for _, w := range []availability.Range{window(1, 3), window(3, 5), window(10, 12)} {
		_, err := f.svc.Book(ctx, staff, calendar.BookInput{
			RequesterID: customer.UserID,
			Window:      w,
			Lines:       []availability.Line{{ItemID: x, Quantity: 1}},
		})
		require.NoError(t, err)
	}

	from, to := window(2, 4).Start, window(2, 4).End
	list, err := f.svc.List(ctx, staff, calendar.ListFilter{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, list.Events, 2)

	from = window(3, 3).Start
	to = window(3, 10).End
	list, err = f.svc.List(ctx, staff, calendar.ListFilter{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, list.Events, 1)

	_, err = f.svc.List(ctx, staff, calendar.ListFilter{From: &to, To: &from})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = f.svc.List(ctx, customer, calendar.ListFilter{})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestAuditUnknownEvent(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Audit(context.Background(), staff, uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
