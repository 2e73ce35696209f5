package ports

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks

import (
	"context"
	"errors"
	"math"

	"wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrDuplicateSnapshot is returned by a LedgerStore when more than one balance
// row matches a (wallet, key) pair.
var ErrDuplicateSnapshot = errors.New("duplicate balance snapshot rows")

// Tx is an open transactional scope. Every store method taking a Tx must be
// given a scope created by the same store's DBTransactor.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (Tx, error)
}

// WalletRepository defines persistence operations for wallets.
// GetByIDForUpdate locks the wallet row for the rest of the scope.
type WalletRepository interface {
	Create(ctx context.Context, wallet *domain.Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	GetByIDForUpdate(ctx context.Context, tx Tx, id uuid.UUID) (*domain.Wallet, error)
	ListActive(ctx context.Context) ([]domain.Wallet, error)
}

// TransactionRepository defines persistence operations for transaction headers.
type TransactionRepository interface {
	Create(ctx context.Context, transaction *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
}

// MovementListParams holds filter + pagination for the movement audit list.
type MovementListParams struct {
	WalletID uuid.UUID
	State    *domain.MovementState
	Page     int
	PageSize int
}

// Offset returns the row offset for the page (pages start at 1). It saturates
// at math.MaxInt instead of overflowing.
func (p MovementListParams) Offset() int {
	if p.Page < 1 || p.PageSize < 1 {
		return 0
	}
	if p.Page-1 > math.MaxInt/p.PageSize {
		return math.MaxInt
	}
	return (p.Page - 1) * p.PageSize
}

// LedgerStore persists movement records and balance snapshots.
type LedgerStore interface {
	// FindOffsettable returns the wallet's records with a non-ordinary key whose
	// Remaining has desiredSign, ordered by Seq.
	FindOffsettable(ctx context.Context, tx Tx, walletID uuid.UUID, desiredSign int) ([]domain.MovementRecord, error)
	// AppendMovement inserts the record and assigns its Seq.
	AppendMovement(ctx context.Context, tx Tx, record *domain.MovementRecord) error
	UpdateRemaining(ctx context.Context, tx Tx, recordID uuid.UUID, remaining decimal.Decimal) error

	// GetSnapshot returns nil when no row exists and ErrDuplicateSnapshot when
	// more than one does.
	GetSnapshot(ctx context.Context, tx Tx, walletID uuid.UUID, key domain.AttributeKey) (*domain.BalanceSnapshot, error)
	// UpsertSnapshot adds delta to the (wallet, key) row, creating it at delta
	// when absent. A non-nil originID replaces the stored origin.
	UpsertSnapshot(ctx context.Context, tx Tx, walletID uuid.UUID, key domain.AttributeKey, delta decimal.Decimal, originID *uuid.UUID, updatedAt domain.DateSerial) (*domain.BalanceSnapshot, error)

	ListMovements(ctx context.Context, tx Tx, walletID uuid.UUID) ([]domain.MovementRecord, error)
	ListSnapshots(ctx context.Context, tx Tx, walletID uuid.UUID) ([]domain.BalanceSnapshot, error)
	// ReplaceSnapshot overwrites amount, origin and updated_at of the row with
	// snapshot.ID, or inserts it when snapshot.ID is uuid.Nil.
	ReplaceSnapshot(ctx context.Context, tx Tx, snapshot *domain.BalanceSnapshot) error

	// Reporting reads; outside any scope.
	ListSnapshotsByWallet(ctx context.Context, walletID uuid.UUID) ([]domain.BalanceSnapshot, error)
	ListMovementsByWallet(ctx context.Context, params MovementListParams) ([]domain.MovementRecord, int64, error)
}
