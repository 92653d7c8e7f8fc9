package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"delivery-chat/internal/ports"
)

// querier is the subset of pgx satisfied by both *pgxpool.Pool and pgx.Tx.
// Repos run against the transaction when one travels in the context, and
// straight against the pool otherwise.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// txKey is the context key carrying the active transaction.
type txKey struct{}

// UoW implements ports.UnitOfWork over a pgx pool.
type UoW struct {
	pool *pgxpool.Pool
}

// NewUnitOfWork wraps the pool in a transactional unit of work.
func NewUnitOfWork(pool *pgxpool.Pool) ports.UnitOfWork {
	return &UoW{pool: pool}
}

// WithinTx begins a transaction, stores it in the context for the repos, and
// commits when fn succeeds; any error rolls back.
func (u *UoW) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := u.pool.Begin(ctx)
	if err != nil {
		return err
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	return tx.Commit(ctx)
}

// queryTarget resolves the transaction from the context, falling back to the pool.
func queryTarget(ctx context.Context, pool *pgxpool.Pool) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return pool
}
