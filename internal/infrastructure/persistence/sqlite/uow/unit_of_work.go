package uow

import (
	"context"

	"gorm.io/gorm"

	"investigator/internal/ports"
)

// UnitOfWork implements ports.UnitOfWork with gorm. Nested calls join the
// transaction already present in the context.
type UnitOfWork struct {
	db *gorm.DB
}

var _ ports.UnitOfWork = (*UnitOfWork)(nil)

func NewUnitOfWork(db *gorm.DB) *UnitOfWork {
	return &UnitOfWork{db: db}
}

func (u *UnitOfWork) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ports.TxFromContext(ctx); ok {
		return fn(ctx)
	}
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ports.WithTxContext(ctx, tx))
	})
}
