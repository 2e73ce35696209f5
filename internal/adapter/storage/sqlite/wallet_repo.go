package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
)

const walletColumns = `id, name, currency_code, display_unit, is_active, created_at`

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	db *sql.DB
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(db *sql.DB) *WalletRepo {
	return &WalletRepo{db: db}
}

// Create inserts a new wallet.
func (r *WalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	query := `INSERT INTO wallets (` + walletColumns + `) VALUES (?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		w.ID, w.Name, w.CurrencyCode, w.DisplayUnit, w.IsActive, w.CreatedAt.UnixMicro(),
	)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// GetByID fetches a wallet by its UUID.
func (r *WalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	w, err := scanWallet(r.db.QueryRowContext(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("get wallet by id: %w", err)
	}
	return w, nil
}

// GetByIDForUpdate reads the wallet inside tx. The immediate transaction
// already holds the database write lock, so no row lock is needed.
func (r *WalletRepo) GetByIDForUpdate(ctx context.Context, tx ports.Tx, id uuid.UUID) (*domain.Wallet, error) {
	stx, err := sqlTx(tx)
	if err != nil {
		return nil, err
	}
	w, err := scanWallet(stx.QueryRowContext(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("get wallet for update by id: %w", err)
	}
	return w, nil
}

// ListActive returns active wallets ordered by name.
func (r *WalletRepo) ListActive(ctx context.Context) ([]domain.Wallet, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+walletColumns+` FROM wallets WHERE is_active = 1 ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	wallets := []domain.Wallet{}
	for rows.Next() {
		w, err := scanWalletRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wallet row: %w", err)
		}
		wallets = append(wallets, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet rows: %w", err)
	}
	return wallets, nil
}

func scanWalletRow(row scanner) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	var created int64
	if err := row.Scan(&w.ID, &w.Name, &w.CurrencyCode, &w.DisplayUnit, &w.IsActive, &created); err != nil {
		return nil, err
	}
	w.CreatedAt = time.UnixMicro(created).UTC()
	return w, nil
}

// scanWallet returns nil, nil when the row does not exist.
func scanWallet(row *sql.Row) (*domain.Wallet, error) {
	w, err := scanWalletRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return w, err
}
