package postgres

import (
	"context"
	"errors"

	"wallet-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

var errForeignTx = errors.New("postgres: transaction was not opened by this store")

// Transactor implements ports.DBTransactor using a Pool.
type Transactor struct {
	pool Pool
}

// NewTransactor creates a new Transactor wrapping the connection pool.
func NewTransactor(pool Pool) *Transactor {
	return &Transactor{pool: pool}
}

// Begin starts a new database transaction.
func (t *Transactor) Begin(ctx context.Context) (ports.Tx, error) {
	return t.pool.Begin(ctx)
}

// pgxTx unwraps a scope opened by Transactor.
func pgxTx(tx ports.Tx) (pgx.Tx, error) {
	ptx, ok := tx.(pgx.Tx)
	if !ok {
		return nil, errForeignTx
	}
	return ptx, nil
}
