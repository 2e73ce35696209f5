package service

import (
	"context"
	"fmt"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// NettingServiceImpl implements ports.NettingService.
type NettingServiceImpl struct {
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
	ledger     ports.LedgerStore
	reconciler ports.ReconcilerService
	transactor ports.DBTransactor
	cache      ports.BalanceCache   // optional
	publisher  ports.EventPublisher // optional
	log        zerolog.Logger
	now        func() time.Time
}

// NewNettingService creates a new NettingServiceImpl. cache and publisher may be nil.
func NewNettingService(
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	ledger ports.LedgerStore,
	reconciler ports.ReconcilerService,
	transactor ports.DBTransactor,
	cache ports.BalanceCache,
	publisher ports.EventPublisher,
	log zerolog.Logger,
) *NettingServiceImpl {
	return &NettingServiceImpl{
		walletRepo: walletRepo,
		txRepo:     txRepo,
		ledger:     ledger,
		reconciler: reconciler,
		transactor: transactor,
		cache:      cache,
		publisher:  publisher,
		log:        log,
		now:        time.Now,
	}
}

// ApplyMovement nets req.Amount against the wallet's opposite-signed attributed
// records, oldest group first, and records whatever is left as the residual.
// Everything happens in one scope with the wallet locked.
func (s *NettingServiceImpl) ApplyMovement(ctx context.Context, req ports.MovementRequest) (*ports.MovementResult, error) {
	if req.Amount.IsZero() {
		return nil, apperror.ErrInvalidAmount()
	}
	if req.ResidualTag != nil {
		if err := req.ResidualTag.Validate(); err != nil {
			return nil, apperror.ErrInvalidAttribute(err)
		}
	}

	txn, err := s.txRepo.GetByID(ctx, req.TransactionID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get transaction: %w", err))
	}
	if txn == nil {
		return nil, apperror.ErrNotFound("transaction")
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetByIDForUpdate(ctx, dbTx, req.WalletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil || !wallet.IsActive {
		return nil, apperror.ErrNotFound("wallet")
	}

	offsettable, err := s.ledger.FindOffsettable(ctx, dbTx, wallet.ID, -req.Amount.Sign())
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("find offsettable: %w", err))
	}

	plan, err := planNetting(req.Amount, domain.GroupByAttribute(offsettable), req.Overrides)
	if err != nil {
		return nil, err
	}

	result := &ports.MovementResult{
		WalletID:      wallet.ID,
		TransactionID: txn.ID,
		Amount:        req.Amount,
		Created:       []domain.MovementRecord{},
		Settled:       []uuid.UUID{},
		Snapshots:     []domain.BalanceSnapshot{},
		Residual:      plan.residual,
	}

	for _, step := range plan.steps {
		for _, member := range step.group.Members {
			if err := s.ledger.UpdateRemaining(ctx, dbTx, member.ID, decimal.Zero); err != nil {
				return nil, apperror.InternalError(fmt.Errorf("settle movement %s: %w", member.ID, err))
			}
			result.Settled = append(result.Settled, member.ID)
		}

		remaining := step.group.Total.Add(step.offset)
		if err := s.record(ctx, dbTx, result, step.group.Key, step.offset, remaining); err != nil {
			return nil, err
		}
	}

	if !plan.residual.IsZero() {
		key, remaining := domain.OrdinaryKey(), decimal.Zero
		if req.ResidualTag != nil && !req.ResidualTag.IsOrdinary() {
			key, remaining = *req.ResidualTag, plan.residual
		}
		if err := s.record(ctx, dbTx, result, key, plan.residual, remaining); err != nil {
			return nil, err
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("wallet_id", wallet.ID.String()).
		Str("transaction_id", txn.ID.String()).
		Str("amount", req.Amount.String()).
		Int("groups_netted", len(plan.steps)).
		Str("residual", plan.residual.String()).
		Msg("movement applied")

	s.afterCommit(ctx, result)
	return result, nil
}

// record appends one movement record and folds it into the snapshot.
func (s *NettingServiceImpl) record(ctx context.Context, tx ports.Tx, result *ports.MovementResult, key domain.AttributeKey, amount, remaining decimal.Decimal) error {
	rec := &domain.MovementRecord{
		ID:            uuid.New(),
		TransactionID: result.TransactionID,
		WalletID:      result.WalletID,
		Amount:        amount,
		Remaining:     remaining,
		Key:           key,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.ledger.AppendMovement(ctx, tx, rec); err != nil {
		return apperror.InternalError(fmt.Errorf("append movement: %w", err))
	}
	result.Created = append(result.Created, *rec)

	snap, err := s.reconciler.Apply(ctx, tx, result.WalletID, key, amount, rec.ID)
	if err != nil {
		return err
	}
	result.Snapshots = append(result.Snapshots, *snap)
	return nil
}

// afterCommit runs best-effort side effects; failures are only logged.
func (s *NettingServiceImpl) afterCommit(ctx context.Context, result *ports.MovementResult) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, result.WalletID); err != nil {
			s.log.Warn().Err(err).Str("wallet_id", result.WalletID.String()).Msg("failed to invalidate balance cache")
		}
	}

	if s.publisher != nil {
		created := make([]uuid.UUID, 0, len(result.Created))
		for _, c := range result.Created {
			created = append(created, c.ID)
		}
		event := ports.MovementAppliedEvent{
			WalletID:      result.WalletID,
			TransactionID: result.TransactionID,
			Amount:        result.Amount,
			Residual:      result.Residual,
			CreatedIDs:    created,
			SettledIDs:    result.Settled,
			OccurredAt:    s.now().UTC(),
		}
		if err := s.publisher.PublishMovementApplied(ctx, event); err != nil {
			s.log.Warn().Err(err).Str("wallet_id", result.WalletID.String()).Msg("failed to publish movement event")
		}
	}
}

// PreviewOffsets lists the groups a movement of amount's sign would be netted
// against. Nothing is written.
func (s *NettingServiceImpl) PreviewOffsets(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) (domain.AttributeGroups, error) {
	if amount.IsZero() {
		return nil, apperror.ErrInvalidAmount()
	}

	wallet, err := s.walletRepo.GetByID(ctx, walletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil || !wallet.IsActive {
		return nil, apperror.ErrNotFound("wallet")
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	records, err := s.ledger.FindOffsettable(ctx, dbTx, walletID, -amount.Sign())
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("find offsettable: %w", err))
	}
	return domain.GroupByAttribute(records), nil
}
