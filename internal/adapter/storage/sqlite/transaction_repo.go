package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
)

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	db *sql.DB
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(db *sql.DB) *TransactionRepo {
	return &TransactionRepo{db: db}
}

// Create inserts a transaction header.
func (r *TransactionRepo) Create(ctx context.Context, t *domain.Transaction) error {
	query := `INSERT INTO transactions (id, name, transacted_at, created_at) VALUES (?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query, t.ID, t.Name, float64(t.TransactedAt), t.CreatedAt.UnixMicro())
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByID returns nil, nil when the header does not exist.
func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT id, name, transacted_at, created_at FROM transactions WHERE id = ?`

	t := &domain.Transaction{}
	var transactedAt float64
	var created int64
	err := r.db.QueryRowContext(ctx, query, id).Scan(&t.ID, &t.Name, &transactedAt, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get transaction by id: %w", err)
	}
	t.TransactedAt = domain.DateSerial(transactedAt)
	t.CreatedAt = time.UnixMicro(created).UTC()
	return t, nil
}
