package availability

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventrentals-backend/internal/inventory"
	pkgerrors "github.com/angelmondragon/eventrentals-backend/pkg/errors"
)

// Line is a requested quantity of one item.
type Line struct {
	ItemID   uuid.UUID `json:"item_id"`
	Quantity int       `json:"quantity"`
}

// Exclusions removes a booking's own hold from demand, so re-validating a
// reservation or an edited calendar event does not count it twice.
type Exclusions struct {
	ReservationID   *uuid.UUID
	CalendarEventID *uuid.UUID
}

// LineResult is the per-item outcome of a Check. Requested sums every line
// for the item.
type LineResult struct {
	ItemID    uuid.UUID `json:"item_id"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
	OK        bool      `json:"ok"`
}

// Calculator answers range-overlap availability questions. It never writes.
// Pass the surrounding transaction when the answer must be authoritative.
type Calculator struct {
	repo *Repository
}

func NewCalculator(repo *Repository) *Calculator {
	return &Calculator{repo: repo}
}

// Available returns the units of itemID free during window, never below zero.
func (c *Calculator) Available(ctx context.Context, tx *gorm.DB, itemID uuid.UUID, window Range, excl Exclusions) (int, error) {
	free, err := c.AvailableFor(ctx, tx, []uuid.UUID{itemID}, window, excl)
	if err != nil {
		return 0, err
	}
	return free[itemID], nil
}

// AvailableFor computes availability for several items at once:
// stock plus outstanding calendar holds gives the owned total, and every
// overlapping calendar hold or pending reservation hold is subtracted from it.
func (c *Calculator) AvailableFor(ctx context.Context, tx *gorm.DB, itemIDs []uuid.UUID, window Range, excl Exclusions) (map[uuid.UUID]int, error) {
	ids := inventory.SortedIDs(itemIDs)
	if len(ids) == 0 {
		return map[uuid.UUID]int{}, nil
	}

	stocks, err := c.repo.Stocks(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := stocks[id]; !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found").
				WithDetails(map[string]any{"item_id": id})
		}
	}
	holds, err := c.repo.OutstandingHolds(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	calendar, err := c.repo.CalendarDemand(ctx, tx, ids, window, excl.CalendarEventID)
	if err != nil {
		return nil, err
	}
	pending, err := c.repo.PendingDemand(ctx, tx, ids, window, excl.ReservationID)
	if err != nil {
		return nil, err
	}

	out := make(map[uuid.UUID]int, len(ids))
	for _, id := range ids {
		free := stocks[id] + holds[id] - calendar[id] - pending[id]
		if free < 0 {
			free = 0
		}
		out[id] = free
	}
	return out, nil
}

// Check evaluates a line set against window. Lines for the same item are summed.
func (c *Calculator) Check(ctx context.Context, tx *gorm.DB, lines []Line, window Range, excl Exclusions) ([]LineResult, error) {
	requested, order := aggregate(lines)
	free, err := c.AvailableFor(ctx, tx, order, window, excl)
	if err != nil {
		return nil, err
	}
	results := make([]LineResult, 0, len(order))
	for _, id := range order {
		results = append(results, LineResult{
			ItemID:    id,
			Requested: requested[id],
			Available: free[id],
			OK:        requested[id] <= free[id],
		})
	}
	return results, nil
}

// Validate returns INSUFFICIENT_STOCK listing every failing item, or nil.
func (c *Calculator) Validate(ctx context.Context, tx *gorm.DB, lines []Line, window Range, excl Exclusions) error {
	results, err := c.Check(ctx, tx, lines, window, excl)
	if err != nil {
		return err
	}
	if shortfalls := Shortfalls(results); len(shortfalls) > 0 {
		return inventory.InsufficientStock(shortfalls...)
	}
	return nil
}

// Shortfalls extracts the failing results.
func Shortfalls(results []LineResult) []inventory.Shortfall {
	var out []inventory.Shortfall
	for _, r := range results {
		if r.OK {
			continue
		}
		out = append(out, inventory.Shortfall{ItemID: r.ItemID, Requested: r.Requested, Available: r.Available})
	}
	return out
}

// ValidateLines rejects malformed line sets before any transaction starts.
// An empty set is allowed.
func ValidateLines(lines []Line) error {
	for i, line := range lines {
		if line.ItemID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "item_id is required").
				WithDetails(map[string]any{"line": i})
		}
		if line.Quantity < 1 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
				WithDetails(map[string]any{"line": i, "item_id": line.ItemID})
		}
	}
	return nil
}

// TotalQuantity sums the line quantities.
func TotalQuantity(lines []Line) int {
	total := 0
	for _, line := range lines {
		total += line.Quantity
	}
	return total
}

func aggregate(lines []Line) (map[uuid.UUID]int, []uuid.UUID) {
	requested := make(map[uuid.UUID]int, len(lines))
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		if _, ok := requested[line.ItemID]; !ok {
			ids = append(ids, line.ItemID)
		}
		requested[line.ItemID] += line.Quantity
	}
	return requested, inventory.SortedIDs(ids)
}
