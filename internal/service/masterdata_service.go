package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/dateserial"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MasterDataServiceImpl implements ports.MasterDataService.
type MasterDataServiceImpl struct {
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
	log        zerolog.Logger
	now        func() time.Time
}

// NewMasterDataService creates a new MasterDataServiceImpl.
func NewMasterDataService(walletRepo ports.WalletRepository, txRepo ports.TransactionRepository, log zerolog.Logger) *MasterDataServiceImpl {
	return &MasterDataServiceImpl{
		walletRepo: walletRepo,
		txRepo:     txRepo,
		log:        log,
		now:        time.Now,
	}
}

// CreateWallet registers an active wallet. DisplayUnit defaults to the currency code.
func (s *MasterDataServiceImpl) CreateWallet(ctx context.Context, req ports.CreateWalletRequest) (*domain.Wallet, error) {
	name := strings.TrimSpace(req.Name)
	code := strings.ToUpper(strings.TrimSpace(req.CurrencyCode))
	if name == "" {
		return nil, apperror.Validation("wallet name is required")
	}
	if code == "" {
		return nil, apperror.Validation("currency code is required")
	}

	unit := strings.TrimSpace(req.DisplayUnit)
	if unit == "" {
		unit = code
	}

	wallet := &domain.Wallet{
		ID:           uuid.New(),
		Name:         name,
		CurrencyCode: code,
		DisplayUnit:  unit,
		IsActive:     true,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.walletRepo.Create(ctx, wallet); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create wallet: %w", err))
	}

	s.log.Info().
		Str("wallet_id", wallet.ID.String()).
		Str("currency", wallet.CurrencyCode).
		Msg("wallet created")

	return wallet, nil
}

// CreateTransaction records a transaction header. TransactedAt defaults to now.
func (s *MasterDataServiceImpl) CreateTransaction(ctx context.Context, req ports.CreateTransactionRequest) (*domain.Transaction, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperror.Validation("transaction name is required")
	}

	now := s.now().UTC()
	at := domain.DateSerial(dateserial.FromTime(now))
	if req.TransactedAt != nil {
		if *req.TransactedAt <= 0 {
			return nil, apperror.Validation("transacted_at must be a positive date serial")
		}
		at = *req.TransactedAt
	}

	txn := &domain.Transaction{
		ID:           uuid.New(),
		Name:         name,
		TransactedAt: at,
		CreatedAt:    now,
	}
	if err := s.txRepo.Create(ctx, txn); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create transaction: %w", err))
	}

	s.log.Debug().Str("transaction_id", txn.ID.String()).Msg("transaction created")
	return txn, nil
}
