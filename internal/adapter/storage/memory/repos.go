package memory

import (
	"context"
	"fmt"
	"sort"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
)

// WalletRepo implements ports.WalletRepository on a Store.
type WalletRepo struct {
	s *Store
}

// Wallets returns the store's wallet repository.
func (s *Store) Wallets() *WalletRepo {
	return &WalletRepo{s: s}
}

func (r *WalletRepo) Create(ctx context.Context, wallet *domain.Wallet) error {
	if wallet.CreatedAt.IsZero() {
		wallet.CreatedAt = r.s.now().UTC()
	}
	return r.s.write(ctx, func(data *state) error {
		if _, exists := data.wallets[wallet.ID]; exists {
			return fmt.Errorf("memory: wallet %s already exists", wallet.ID)
		}
		data.wallets[wallet.ID] = *wallet
		data.walletOrder = append(data.walletOrder, wallet.ID)
		return nil
	})
}

func (r *WalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	var out *domain.Wallet
	err := r.s.read(ctx, func(data *state) error {
		if w, ok := data.wallets[id]; ok {
			out = &w
		}
		return nil
	})
	return out, err
}

// GetByIDForUpdate reads the wallet from the scope. The scope already holds
// the store exclusively.
func (r *WalletRepo) GetByIDForUpdate(_ context.Context, tx ports.Tx, id uuid.UUID) (*domain.Wallet, error) {
	data, err := r.s.scope(tx)
	if err != nil {
		return nil, err
	}
	w, ok := data.wallets[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (r *WalletRepo) ListActive(ctx context.Context) ([]domain.Wallet, error) {
	out := []domain.Wallet{}
	err := r.s.read(ctx, func(data *state) error {
		for _, id := range data.walletOrder {
			if w := data.wallets[id]; w.IsActive {
				out = append(out, w)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

// TransactionRepo implements ports.TransactionRepository on a Store.
type TransactionRepo struct {
	s *Store
}

// Transactions returns the store's transaction repository.
func (s *Store) Transactions() *TransactionRepo {
	return &TransactionRepo{s: s}
}

func (r *TransactionRepo) Create(ctx context.Context, transaction *domain.Transaction) error {
	if transaction.CreatedAt.IsZero() {
		transaction.CreatedAt = r.s.now().UTC()
	}
	return r.s.write(ctx, func(data *state) error {
		if _, exists := data.transactions[transaction.ID]; exists {
			return fmt.Errorf("memory: transaction %s already exists", transaction.ID)
		}
		data.transactions[transaction.ID] = *transaction
		return nil
	})
}

func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	var out *domain.Transaction
	err := r.s.read(ctx, func(data *state) error {
		if t, ok := data.transactions[id]; ok {
			out = &t
		}
		return nil
	})
	return out, err
}
