package service

import (
	"context"
	"fmt"
	"math"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// balanceService implements ports.BalanceService.
type balanceService struct {
	walletRepo ports.WalletRepository
	ledger     ports.LedgerStore
	cache      ports.BalanceCache // optional
	log        zerolog.Logger
}

// NewBalanceService creates a new balance service. cache may be nil.
func NewBalanceService(
	walletRepo ports.WalletRepository,
	ledger ports.LedgerStore,
	cache ports.BalanceCache,
	log zerolog.Logger,
) ports.BalanceService {
	return &balanceService{
		walletRepo: walletRepo,
		ledger:     ledger,
		cache:      cache,
		log:        log,
	}
}

// GetWalletBalance returns ordinary, attributed and total balance, served from
// the cache when possible.
func (s *balanceService) GetWalletBalance(ctx context.Context, walletID uuid.UUID) (*domain.WalletBalance, error) {
	cacheable := false
	var generation int64
	if s.cache != nil {
		cached, gen, err := s.cache.Get(ctx, walletID)
		switch {
		case err != nil:
			s.log.Warn().Err(err).Str("wallet_id", walletID.String()).Msg("balance cache read failed, falling through to store")
		case cached != nil:
			return cached, nil
		default:
			cacheable, generation = true, gen
		}
	}

	wallet, err := s.walletRepo.GetByID(ctx, walletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}

	balance, err := s.build(ctx, *wallet)
	if err != nil {
		return nil, err
	}
	if cacheable {
		if err := s.cache.Set(ctx, balance, generation); err != nil {
			s.log.Warn().Err(err).Str("wallet_id", walletID.String()).Msg("failed to cache balance")
		}
	}
	return balance, nil
}

// ListWalletBalances returns every active wallet with its totals.
func (s *balanceService) ListWalletBalances(ctx context.Context) ([]domain.WalletBalance, error) {
	wallets, err := s.walletRepo.ListActive(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list wallets: %w", err))
	}

	out := make([]domain.WalletBalance, 0, len(wallets))
	for _, w := range wallets {
		b, err := s.build(ctx, w)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, nil
}

func (s *balanceService) build(ctx context.Context, wallet domain.Wallet) (*domain.WalletBalance, error) {
	snapshots, err := s.ledger.ListSnapshotsByWallet(ctx, wallet.ID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list snapshots: %w", err))
	}

	return domain.NewWalletBalance(wallet, snapshots), nil
}

// ListMovements returns the wallet's movement audit trail in insertion order.
func (s *balanceService) ListMovements(ctx context.Context, params ports.MovementListParams) ([]domain.MovementRecord, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = defaultPageSize
	}
	if params.PageSize > maxPageSize {
		params.PageSize = maxPageSize
	}
	if params.Page-1 > math.MaxInt32/params.PageSize {
		return nil, 0, apperror.Validation("page out of range")
	}
	if params.State != nil && *params.State != domain.MovementStateOpen && *params.State != domain.MovementStateSettled {
		return nil, 0, apperror.Validation("invalid state: must be OPEN or SETTLED")
	}

	wallet, err := s.walletRepo.GetByID(ctx, params.WalletID)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, 0, apperror.ErrNotFound("wallet")
	}

	records, total, err := s.ledger.ListMovementsByWallet(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list movements: %w", err))
	}
	return records, total, nil
}
