package inventory

import (
	"bytes"
	"context"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventrentals-backend/internal/repo"
	"github.com/angelmondragon/eventrentals-backend/pkg/db/models"
	"github.com/angelmondragon/eventrentals-backend/pkg/pagination"
)

// Repository persists inventory items and their movement ledger.
type Repository struct {
	base repo.Base
}

// NewRepository builds an inventory repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{base: repo.NewBase(db)}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{base: repo.NewBase(tx)}
}

func (r *Repository) CreateItem(ctx context.Context, item *models.InventoryItem) error {
	return r.base.DB(ctx).Create(item).Error
}

func (r *Repository) FindItem(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error) {
	var item models.InventoryItem
	if err := r.base.DB(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// FindItems loads the items matching ids. Missing ids are simply absent from the result.
func (r *Repository) FindItems(ctx context.Context, ids []uuid.UUID) ([]models.InventoryItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []models.InventoryItem
	err := r.base.DB(ctx).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

// LockItems takes row locks on ids in ascending id order so concurrent
// transactions touching overlapping item sets cannot deadlock each other.
func (r *Repository) LockItems(ctx context.Context, ids []uuid.UUID) ([]models.InventoryItem, error) {
	ordered := SortedIDs(ids)
	if len(ordered) == 0 {
		return nil, nil
	}
	var items []models.InventoryItem
	err := r.base.Locked(ctx).
		Where("id IN ?", ordered).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

// ShiftStock adds delta to the item's stock unless the result would be
// negative. It returns the number of rows updated (0 or 1).
func (r *Repository) ShiftStock(ctx context.Context, id uuid.UUID, delta int) (int64, error) {
	res := r.base.DB(ctx).
		Model(&models.InventoryItem{}).
		Where("id = ? AND stock + ? >= 0", id, delta).
		Updates(map[string]any{"stock": gorm.Expr("stock + ?", delta)})
	return res.RowsAffected, res.Error
}

func (r *Repository) InsertMovement(ctx context.Context, movement *models.InventoryMovement) error {
	return r.base.DB(ctx).Create(movement).Error
}

// SignedMovementTotal sums every movement for the item with its ledger sign applied.
func (r *Repository) SignedMovementTotal(ctx context.Context, itemID uuid.UUID) (int, error) {
	var total int
	err := r.base.DB(ctx).
		Model(&models.InventoryMovement{}).
		Select("COALESCE(SUM(CASE WHEN kind IN ('in','returned') THEN quantity ELSE -quantity END), 0)").
		Where("item_id = ?", itemID).
		Scan(&total).Error
	return total, err
}

func (r *Repository) ListItems(ctx context.Context, params pagination.Params) ([]models.InventoryItem, string, error) {
	query, err := pagination.ApplyDesc(r.base.DB(ctx).Model(&models.InventoryItem{}), "", params)
	if err != nil {
		return nil, "", err
	}
	var items []models.InventoryItem
	if err := query.Find(&items).Error; err != nil {
		return nil, "", err
	}
	page, next := pagination.Trim(items, params.Limit, func(item models.InventoryItem) pagination.Cursor {
		return pagination.Cursor{CreatedAt: item.CreatedAt, ID: item.ID}
	})
	return page, next, nil
}

func (r *Repository) ListMovements(ctx context.Context, itemID uuid.UUID, params pagination.Params) ([]models.InventoryMovement, string, error) {
	base := r.base.DB(ctx).Model(&models.InventoryMovement{}).Where("item_id = ?", itemID)
	query, err := pagination.ApplyDesc(base, "", params)
	if err != nil {
		return nil, "", err
	}
	var rows []models.InventoryMovement
	if err := query.Find(&rows).Error; err != nil {
		return nil, "", err
	}
	page, next := pagination.Trim(rows, params.Limit, func(m models.InventoryMovement) pagination.Cursor {
		return pagination.Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
	})
	return page, next, nil
}

// ItemsAfter walks the catalog in id order for batch sweeps.
func (r *Repository) ItemsAfter(ctx context.Context, after uuid.UUID, limit int) ([]models.InventoryItem, error) {
	var items []models.InventoryItem
	query := r.base.DB(ctx).Order("id ASC").Limit(limit)
	if after != uuid.Nil {
		query = query.Where("id > ?", after)
	}
	err := query.Find(&items).Error
	return items, err
}

// SortedIDs returns the distinct ids in ascending byte order.
func SortedIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}
