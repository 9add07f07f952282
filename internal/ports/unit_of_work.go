package ports

import "context"

// Tx is an opaque transaction handle owned by the persistence adapter
// (a *gorm.DB for the SQLite store).
type Tx interface{}

// UnitOfWork runs fn inside one transaction: an error rolls back, nil commits.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type txKey struct{}

// WithTxContext stores a transaction handle in context.
func WithTxContext(ctx context.Context, tx Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns the transaction handle stored in ctx, if any.
func TxFromContext(ctx context.Context) (Tx, bool) {
	tx := ctx.Value(txKey{})
	return tx, tx != nil
}
