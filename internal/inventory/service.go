package inventory

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

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

const reconcileBatchSize = 200

// CreateItemInput describes a new catalog line and its opening stock.
type CreateItemInput struct {
	SKU            string
	Name           string
	Description    *string
	InitialStock   int
	DailyRateCents int64
}

// AdjustInput is a manual stock correction.
type AdjustInput struct {
	Kind     enums.MovementKind
	Quantity int
	Note     string
}

// ItemList is one page of inventory items.
type ItemList struct {
	Items      []models.InventoryItem `json:"items"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}

// MovementList is one page of an item's ledger, newest first.
type MovementList struct {
	Movements  []models.InventoryMovement `json:"movements"`
	NextCursor string                     `json:"next_cursor,omitempty"`
}

// Drift compares an item's stock counter with the sum of its movements.
type Drift struct {
	ItemID   uuid.UUID `json:"item_id"`
	Stock    int       `json:"stock"`
	Expected int       `json:"expected"`
	Delta    int       `json:"delta"`
}

// InSync reports whether stock matches the movement history.
func (d Drift) InSync() bool {
	return d.Delta == 0
}

// Service exposes item management and manual ledger operations.
type Service interface {
	CreateItem(ctx context.Context, actor auth.Actor, input CreateItemInput) (*models.InventoryItem, error)
	GetItem(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error)
	ListItems(ctx context.Context, params pagination.Params) (*ItemList, error)
	Adjust(ctx context.Context, actor auth.Actor, itemID uuid.UUID, input AdjustInput) (*models.InventoryMovement, error)
	ListMovements(ctx context.Context, itemID uuid.UUID, params pagination.Params) (*MovementList, error)
	Reconcile(ctx context.Context, itemID uuid.UUID) (*Drift, error)
	ReconcileAll(ctx context.Context) ([]Drift, error)
}

type ServiceParams struct {
	TxRunner db.TxRunner
	Repo     *Repository
	Ledger   *Ledger
	Outbox   outbox.Emitter
	Policy   db.TxPolicy
	Logger   *logger.Logger
	Metrics  *metrics.EngineMetrics
}

type service struct {
	tx      db.TxRunner
	repo    *Repository
	ledger  *Ledger
	outbox  outbox.Emitter
	policy  db.TxPolicy
	logg    *logger.Logger
	metrics *metrics.EngineMetrics
}

func NewService(params ServiceParams) (Service, error) {
	if params.TxRunner == nil {
		return nil, errors.New("tx runner required")
	}
	if params.Repo == nil {
		return nil, errors.New("inventory repository required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox emitter required")
	}
	ledger := params.Ledger
	if ledger == nil {
		ledger = NewLedger(params.Repo)
	}
	return &service{
		tx:      params.TxRunner,
		repo:    params.Repo,
		ledger:  ledger,
		outbox:  params.Outbox,
		policy:  params.Policy,
		logg:    params.Logger,
		metrics: params.Metrics,
	}, nil
}

func (s *service) CreateItem(ctx context.Context, actor auth.Actor, input CreateItemInput) (*models.InventoryItem, error) {
	if !actor.Privileged() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only staff can manage inventory")
	}
	input.SKU = strings.TrimSpace(input.SKU)
	input.Name = strings.TrimSpace(input.Name)
	switch {
	case input.SKU == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sku is required")
	case input.Name == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	case input.InitialStock < 0:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "initial_stock must be zero or greater")
	case input.DailyRateCents < 0:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "daily_rate_cents must be zero or greater")
	}

	item := &models.InventoryItem{
		SKU:            input.SKU,
		Name:           input.Name,
		Description:    input.Description,
		DailyRateCents: input.DailyRateCents,
	}
	err := db.RunBounded(ctx, s.tx, s.policy, "create inventory item", func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).CreateItem(ctx, item); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "sku already exists")
			}
			return err
		}
		if input.InitialStock == 0 {
			return nil
		}
		movement, err := s.ledger.Increment(ctx, tx, Change{
			ItemID:   item.ID,
			Quantity: input.InitialStock,
			Kind:     enums.MovementKindIn,
			Note:     "initial stock",
			ActorID:  actor.IDPtr(),
		})
		if err != nil {
			return err
		}
		item.Stock = movement.StockAfter
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.AddMovement(string(enums.MovementKindIn), input.InitialStock)
	s.log(ctx, item.ID, "inventory.item_created")
	return item, nil
}

func (s *service) GetItem(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error) {
	item, err := s.repo.FindItem(ctx, id)
	if err != nil {
		return nil, mapFindError(err)
	}
	return item, nil
}

func (s *service) ListItems(ctx context.Context, params pagination.Params) (*ItemList, error) {
	items, next, err := s.repo.ListItems(ctx, params)
	if err != nil {
		return nil, mapListError(err)
	}
	return &ItemList{Items: items, NextCursor: next}, nil
}

func (s *service) Adjust(ctx context.Context, actor auth.Actor, itemID uuid.UUID, input AdjustInput) (*models.InventoryMovement, error) {
	if !actor.Privileged() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only staff can adjust stock")
	}
	if !input.Kind.IsManual() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "kind must be in or out")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	change := Change{
		ItemID:   itemID,
		Quantity: input.Quantity,
		Kind:     input.Kind,
		Note:     strings.TrimSpace(input.Note),
		ActorID:  actor.IDPtr(),
	}
	var movement *models.InventoryMovement
	err := db.RunBounded(ctx, s.tx, s.policy, "adjust stock", func(tx *gorm.DB) error {
		var err error
		if input.Kind == enums.MovementKindIn {
			movement, err = s.ledger.Increment(ctx, tx, change)
		} else {
			movement, err = s.ledger.Decrement(ctx, tx, change)
		}
		if err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventStockAdjusted,
			AggregateType: enums.AggregateInventoryItem,
			AggregateID:   itemID,
			Actor:         outbox.ActorFrom(actor),
			Data: payloads.StockAdjustedEvent{
				ItemID:     itemID,
				MovementID: movement.ID,
				Kind:       movement.Kind,
				Quantity:   movement.Quantity,
				StockAfter: movement.StockAfter,
			},
		})
	})
	if err != nil {
		s.metrics.IncRejection("adjust", string(pkgerrors.CodeOf(err)))
		return nil, err
	}
	s.metrics.AddMovement(string(movement.Kind), movement.Quantity)
	s.log(ctx, itemID, "inventory.stock_adjusted")
	return movement, nil
}

func (s *service) ListMovements(ctx context.Context, itemID uuid.UUID, params pagination.Params) (*MovementList, error) {
	if _, err := s.repo.FindItem(ctx, itemID); err != nil {
		return nil, mapFindError(err)
	}
	rows, next, err := s.repo.ListMovements(ctx, itemID, params)
	if err != nil {
		return nil, mapListError(err)
	}
	return &MovementList{Movements: rows, NextCursor: next}, nil
}

// Reconcile checks that the item's stock equals the signed sum of its movements.
func (s *service) Reconcile(ctx context.Context, itemID uuid.UUID) (*Drift, error) {
	item, err := s.repo.FindItem(ctx, itemID)
	if err != nil {
		return nil, mapFindError(err)
	}
	drift, err := s.driftFor(ctx, *item)
	if err != nil {
		return nil, err
	}
	return &drift, nil
}

// ReconcileAll sweeps the whole catalog and returns only the items that drifted.
func (s *service) ReconcileAll(ctx context.Context) ([]Drift, error) {
	var (
		drifted []Drift
		after   uuid.UUID
	)
	for {
		items, err := s.repo.ItemsAfter(ctx, after, reconcileBatchSize)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list inventory items")
		}
		for _, item := range items {
			drift, err := s.driftFor(ctx, item)
			if err != nil {
				return nil, err
			}
			if !drift.InSync() {
				drifted = append(drifted, drift)
				if s.logg != nil {
					logCtx := s.logg.WithFields(ctx, map[string]any{
						"item_id":  item.ID.String(),
						"stock":    drift.Stock,
						"expected": drift.Expected,
					})
					s.logg.Warn(logCtx, "inventory.ledger_drift")
				}
			}
		}
		if len(items) < reconcileBatchSize {
			break
		}
		after = items[len(items)-1].ID
	}
	s.metrics.SetDriftItems(len(drifted))
	return drifted, nil
}

func (s *service) driftFor(ctx context.Context, item models.InventoryItem) (Drift, error) {
	expected, err := s.repo.SignedMovementTotal(ctx, item.ID)
	if err != nil {
		return Drift{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sum movements")
	}
	return Drift{
		ItemID:   item.ID,
		Stock:    item.Stock,
		Expected: expected,
		Delta:    item.Stock - expected,
	}, nil
}

func (s *service) log(ctx context.Context, itemID uuid.UUID, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithField(ctx, "item_id", itemID.String()), msg)
}

func mapFindError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load inventory item")
}

func mapListError(err error) error {
	if errors.Is(err, pagination.ErrInvalidCursor) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list inventory")
}
