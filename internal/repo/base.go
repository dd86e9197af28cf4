package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Base is embedded by the engine repositories. The handle is either the pool
// or the engine transaction the repository was scoped to.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB binds ctx to the handle.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Conn prefers an explicit transaction over the repository's own handle.
func (b Base) Conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return b.DB(ctx)
}

// Locked reads with SELECT ... FOR UPDATE so the rows stay pinned until the
// surrounding transaction ends. The sqlite dialect drops the clause.
func (b Base) Locked(ctx context.Context) *gorm.DB {
	return b.DB(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
}
