package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventrentals-backend/pkg/db/models"
	"github.com/angelmondragon/eventrentals-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventrentals-backend/pkg/errors"
)

// Change describes a single stock mutation and the references recorded on its movement.
type Change struct {
	ItemID          uuid.UUID
	Quantity        int
	Kind            enums.MovementKind
	Note            string
	ReservationID   *uuid.UUID
	CalendarEventID *uuid.UUID
	ActorID         *uuid.UUID
}

// Shortfall reports a line that cannot be satisfied.
type Shortfall struct {
	ItemID    uuid.UUID `json:"item_id"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

// InsufficientStock builds the typed error returned whenever a line exceeds capacity.
func InsufficientStock(shortfalls ...Shortfall) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").WithDetails(shortfalls)
}

// Ledger is the only writer of InventoryItem.stock. Every successful call
// updates the counter and appends exactly one movement in the caller's transaction.
type Ledger struct {
	repo *Repository
}

func NewLedger(repo *Repository) *Ledger {
	return &Ledger{repo: repo}
}

// Increment adds stock. Kind defaults to in and must be in or returned.
func (l *Ledger) Increment(ctx context.Context, tx *gorm.DB, change Change) (*models.InventoryMovement, error) {
	if change.Kind == "" {
		change.Kind = enums.MovementKindIn
	}
	if change.Kind.Sign() != 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("movement kind %q does not add stock", change.Kind))
	}
	return l.apply(ctx, tx, change)
}

// Decrement removes stock. Kind defaults to out and must be out or rented.
// It fails with INSUFFICIENT_STOCK when quantity exceeds the current stock.
func (l *Ledger) Decrement(ctx context.Context, tx *gorm.DB, change Change) (*models.InventoryMovement, error) {
	if change.Kind == "" {
		change.Kind = enums.MovementKindOut
	}
	if change.Kind.Sign() != -1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("movement kind %q does not remove stock", change.Kind))
	}
	return l.apply(ctx, tx, change)
}

func (l *Ledger) apply(ctx context.Context, tx *gorm.DB, change Change) (*models.InventoryMovement, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stock ledger requires a transaction")
	}
	if change.ItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item_id is required")
	}
	if change.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	repo := l.repo.WithTx(tx)
	locked, err := repo.LockItems(ctx, []uuid.UUID{change.ItemID})
	if err != nil {
		return nil, err
	}
	if len(locked) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found").
			WithDetails(map[string]any{"item_id": change.ItemID})
	}
	item := locked[0]

	delta := change.Kind.Sign() * change.Quantity
	after := item.Stock + delta
	if after < 0 {
		return nil, InsufficientStock(Shortfall{
			ItemID:    item.ID,
			Requested: change.Quantity,
			Available: item.Stock,
		})
	}

	rows, err := repo.ShiftStock(ctx, item.ID, delta)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConcurrencyConflict, errors.New("guarded stock update matched no rows"), "stock changed concurrently")
	}

	movement := &models.InventoryMovement{
		ItemID:          item.ID,
		Kind:            change.Kind,
		Quantity:        change.Quantity,
		StockBefore:     item.Stock,
		StockAfter:      after,
		Note:            change.Note,
		ReservationID:   change.ReservationID,
		CalendarEventID: change.CalendarEventID,
		ActorID:         change.ActorID,
	}
	if err := repo.InsertMovement(ctx, movement); err != nil {
		return nil, err
	}
	return movement, nil
}
