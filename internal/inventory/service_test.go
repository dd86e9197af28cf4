package inventory

import (
	"context"
	"io"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventrentals-backend/pkg/auth"
	"github.com/angelmondragon/eventrentals-backend/pkg/db"
	"github.com/angelmondragon/eventrentals-backend/pkg/db/dbtest"
	"github.com/angelmondragon/eventrentals-backend/pkg/db/models"
	"github.com/angelmondragon/eventrentals-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventrentals-backend/pkg/errors"
	"github.com/angelmondragon/eventrentals-backend/pkg/logger"
	"github.com/angelmondragon/eventrentals-backend/pkg/outbox"
	"github.com/angelmondragon/eventrentals-backend/pkg/pagination"
)

var staff = auth.Actor{UserID: uuid.New(), Role: enums.MemberRoleStaff}

type fixture struct {
	client *db.Client
	conn   *gorm.DB
	repo   *Repository
	ledger *Ledger
	svc    Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	logg := logger.New(logger.Options{ServiceName: "inventory-test", Output: io.Discard})
	repo := NewRepository(conn)
	ledger := NewLedger(repo)
	svc, err := NewService(ServiceParams{
		TxRunner: client,
		Repo:     repo,
		Ledger:   ledger,
		Outbox:   outbox.NewService(outbox.NewRepository(conn), logg),
		Logger:   logg,
	})
	require.NoError(t, err)
	return fixture{client: client, conn: conn, repo: repo, ledger: ledger, svc: svc}
}

func (f fixture) createItem(t *testing.T, sku string, stock int) *models.InventoryItem {
	t.Helper()
	item, err := f.svc.CreateItem(context.Background(), staff, CreateItemInput{
		SKU:            sku,
		Name:           "Item " + sku,
		InitialStock:   stock,
		DailyRateCents: 2500,
	})
	require.NoError(t, err)
	return item
}

func (f fixture) stock(t *testing.T, id uuid.UUID) int {
	t.Helper()
	item, err := f.repo.FindItem(context.Background(), id)
	require.NoError(t, err)
	return item.Stock
}

func TestCreateItemRecordsOpeningMovement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	item := f.createItem(t, "SPK-01", 5)
	require.Equal(t, 5, item.Stock)
	require.Equal(t, 5, f.stock(t, item.ID))

	list, err := f.svc.ListMovements(ctx, item.ID, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, list.Movements, 1)
	require.Equal(t, enums.MovementKindIn, list.Movements[0].Kind)
	require.Equal(t, 0, list.Movements[0].StockBefore)
	require.Equal(t, 5, list.Movements[0].StockAfter)

	drift, err := f.svc.Reconcile(ctx, item.ID)
	require.NoError(t, err)
	require.True(t, drift.InSync())
}

func TestCreateItemValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateItem(ctx, auth.Actor{UserID: uuid.New(), Role: enums.MemberRoleCustomer}, CreateItemInput{SKU: "A", Name: "A"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.CreateItem(ctx, staff, CreateItemInput{SKU: " ", Name: "A"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.CreateItem(ctx, staff, CreateItemInput{SKU: "A", Name: "A", InitialStock: -1})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	f.createItem(t, "DUP", 1)
	_, err = f.svc.CreateItem(ctx, staff, CreateItemInput{SKU: "DUP", Name: "again"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestAdjustOutRejectsOverdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.createItem(t, "LGT-01", 2)

	_, err := f.svc.Adjust(ctx, staff, item.ID, AdjustInput{Kind: enums.MovementKindOut, Quantity: 3})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))
	shortfalls, ok := pkgerrors.As(err).Details().([]Shortfall)
	require.True(t, ok)
	require.Equal(t, []Shortfall{{ItemID: item.ID, Requested: 3, Available: 2}}, shortfalls)
	require.Equal(t, 2, f.stock(t, item.ID))

	var count int64
	require.NoError(t, f.conn.Model(&models.InventoryMovement{}).Where("item_id = ?", item.ID).Count(&count).Error)
	require.Equal(t, int64(1), count)

	var events int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Count(&events).Error)
	require.Zero(t, events)
}

func TestAdjustEmitsStockAdjusted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.createItem(t, "LGT-02", 2)

	movement, err := f.svc.Adjust(ctx, staff, item.ID, AdjustInput{Kind: enums.MovementKindIn, Quantity: 4, Note: " restock "})
	require.NoError(t, err)
	require.Equal(t, 2, movement.StockBefore)
	require.Equal(t, 6, movement.StockAfter)
	require.Equal(t, "restock", movement.Note)
	require.Equal(t, staff.UserID, *movement.ActorID)

	var event models.OutboxEvent
	require.NoError(t, f.conn.First(&event).Error)
	require.Equal(t, enums.EventStockAdjusted, event.EventType)
	require.Equal(t, item.ID, event.AggregateID)
}

func TestAdjustRejectsLedgerOnlyKinds(t *testing.T) {
	f := newFixture(t)
	item := f.createItem(t, "LGT-03", 2)

	_, err := f.svc.Adjust(context.Background(), staff, item.ID, AdjustInput{Kind: enums.MovementKindRented, Quantity: 1})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Adjust(context.Background(), staff, uuid.New(), AdjustInput{Kind: enums.MovementKindIn, Quantity: 1})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestLedgerKindDirection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.createItem(t, "MIX-01", 3)

	err := f.client.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := f.ledger.Increment(ctx, tx, Change{ItemID: item.ID, Quantity: 1, Kind: enums.MovementKindRented})
		return err
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	err = f.client.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := f.ledger.Decrement(ctx, tx, Change{ItemID: item.ID, Quantity: 1, Kind: enums.MovementKindReturned})
		return err
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.ledger.Decrement(ctx, nil, Change{ItemID: item.ID, Quantity: 1})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))
}

func TestLedgerSequenceKeepsStockNonNegativeAndReconciled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.createItem(t, "SEQ-01", 4)
	kinds := []enums.MovementKind{
		enums.MovementKindIn,
		enums.MovementKindOut,
		enums.MovementKindRented,
		enums.MovementKindReturned,
	}
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 60; i++ {
		kind := kinds[rng.Intn(len(kinds))]
		qty := rng.Intn(4) + 1
		before := f.stock(t, item.ID)
		err := f.client.WithTx(ctx, func(tx *gorm.DB) error {
			change := Change{ItemID: item.ID, Quantity: qty, Kind: kind}
			var err error
			if kind.Sign() > 0 {
				_, err = f.ledger.Increment(ctx, tx, change)
			} else {
				_, err = f.ledger.Decrement(ctx, tx, change)
			}
			return err
		})
		after := f.stock(t, item.ID)
		if err != nil {
			require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))
			require.Less(t, before, qty)
			require.Equal(t, before, after)
		} else {
			require.Equal(t, before+kind.Sign()*qty, after)
		}
		require.GreaterOrEqual(t, after, 0)
	}

	total, err := f.repo.SignedMovementTotal(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, f.stock(t, item.ID), total)
}

func TestReconcileAllReportsDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clean := f.createItem(t, "CLN-01", 3)
	dirty := f.createItem(t, "DRT-01", 3)

	require.NoError(t, f.conn.Model(&models.InventoryItem{}).Where("id = ?", dirty.ID).Update("stock", 7).Error)

	drifted, err := f.svc.ReconcileAll(ctx)
	require.NoError(t, err)
	require.Len(t, drifted, 1)
	require.Equal(t, dirty.ID, drifted[0].ItemID)
	require.Equal(t, 4, drifted[0].Delta)

	drift, err := f.svc.Reconcile(ctx, clean.ID)
	require.NoError(t, err)
	require.True(t, drift.InSync())
}

func TestListMovementsPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.createItem(t, "PAG-01", 1)
	for i := 0; i < 3; i++ {
		_, err := f.svc.Adjust(ctx, staff, item.ID, AdjustInput{Kind: enums.MovementKindIn, Quantity: 1})
		require.NoError(t, err)
	}

	first, err := f.svc.ListMovements(ctx, item.ID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Movements, 2)
	require.NotEmpty(t, first.NextCursor)
	require.Equal(t, 4, first.Movements[0].StockAfter)

	second, err := f.svc.ListMovements(ctx, item.ID, pagination.Params{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Movements, 2)
	require.Empty(t, second.NextCursor)
	require.Equal(t, 1, second.Movements[1].StockAfter)

	_, err = f.svc.ListMovements(ctx, item.ID, pagination.Params{Cursor: "%%%"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSortedIDsDeduplicates(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	b := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	require.Equal(t, []uuid.UUID{b, a}, SortedIDs([]uuid.UUID{a, b, a}))
}
