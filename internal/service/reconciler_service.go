package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/dateserial"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ReconcilerServiceImpl implements ports.ReconcilerService.
type ReconcilerServiceImpl struct {
	walletRepo ports.WalletRepository
	ledger     ports.LedgerStore
	transactor ports.DBTransactor
	cache      ports.BalanceCache // optional
	log        zerolog.Logger
	now        func() time.Time
}

// NewReconcilerService creates a new ReconcilerServiceImpl. cache may be nil.
func NewReconcilerService(
	walletRepo ports.WalletRepository,
	ledger ports.LedgerStore,
	transactor ports.DBTransactor,
	cache ports.BalanceCache,
	log zerolog.Logger,
) *ReconcilerServiceImpl {
	return &ReconcilerServiceImpl{
		walletRepo: walletRepo,
		ledger:     ledger,
		transactor: transactor,
		cache:      cache,
		log:        log,
		now:        time.Now,
	}
}

func (s *ReconcilerServiceImpl) serialNow() domain.DateSerial {
	return domain.DateSerial(dateserial.FromTime(s.now().UTC()))
}

// Apply adds delta to the (wallet, key) snapshot inside the caller's scope.
// The ordinary key never records an origin.
func (s *ReconcilerServiceImpl) Apply(ctx context.Context, tx ports.Tx, walletID uuid.UUID, key domain.AttributeKey, delta decimal.Decimal, originID uuid.UUID) (*domain.BalanceSnapshot, error) {
	var origin *uuid.UUID
	if !key.IsOrdinary() {
		origin = &originID
	}

	snap, err := s.ledger.UpsertSnapshot(ctx, tx, walletID, key, delta, origin, s.serialNow())
	if err != nil {
		if errors.Is(err, ports.ErrDuplicateSnapshot) {
			s.log.Error().Err(err).
				Str("wallet_id", walletID.String()).
				Str("key", key.Label()).
				Msg("ledger consistency violation")
			return nil, apperror.ErrConsistency("Duplicate balance rows for wallet attribute", err)
		}
		return nil, apperror.InternalError(fmt.Errorf("upsert snapshot: %w", err))
	}
	return snap, nil
}

// Rebuild recomputes every snapshot of the wallet from its movement log and
// overwrites the rows that drifted. A wallet whose log is itself unbalanced is
// rejected untouched.
func (s *ReconcilerServiceImpl) Rebuild(ctx context.Context, walletID uuid.UUID) (*domain.ReconcileReport, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.lockWallet(ctx, dbTx, walletID); err != nil {
		return nil, err
	}

	report, fixes, err := s.reconcile(ctx, dbTx, walletID)
	if err != nil {
		return nil, err
	}

	for i := range fixes {
		if err := s.ledger.ReplaceSnapshot(ctx, dbTx, &fixes[i]); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("replace snapshot: %w", err))
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	report.Repaired = len(fixes) > 0
	report.SnapshotTotal = report.MovementTotal

	if report.Repaired {
		s.log.Warn().
			Str("wallet_id", walletID.String()).
			Int("drifted_rows", len(report.Drifts)).
			Msg("balance snapshots rebuilt")
		if s.cache != nil {
			if err := s.cache.Invalidate(ctx, walletID); err != nil {
				s.log.Warn().Err(err).Str("wallet_id", walletID.String()).Msg("failed to invalidate balance cache")
			}
		}
	} else {
		s.log.Info().Str("wallet_id", walletID.String()).Msg("balance snapshots already consistent")
	}

	return report, nil
}

// Verify runs the same replay as Rebuild without writing. It returns the
// report together with a ConsistencyError when anything drifted.
func (s *ReconcilerServiceImpl) Verify(ctx context.Context, walletID uuid.UUID) (*domain.ReconcileReport, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.lockWallet(ctx, dbTx, walletID); err != nil {
		return nil, err
	}

	report, _, err := s.reconcile(ctx, dbTx, walletID)
	if err != nil {
		return nil, err
	}

	if !report.Clean() {
		s.log.Error().
			Str("wallet_id", walletID.String()).
			Int("drifted_rows", len(report.Drifts)).
			Str("movement_total", report.MovementTotal.String()).
			Str("snapshot_total", report.SnapshotTotal.String()).
			Msg("ledger consistency violation")
		return report, apperror.ErrConsistency("Balance snapshots disagree with movement log", nil)
	}
	return report, nil
}

func (s *ReconcilerServiceImpl) lockWallet(ctx context.Context, tx ports.Tx, walletID uuid.UUID) error {
	wallet, err := s.walletRepo.GetByIDForUpdate(ctx, tx, walletID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return apperror.ErrNotFound("wallet")
	}
	return nil
}

// reconcile replays the log and returns the report plus the rows that would
// have to be written to make the snapshots match it.
func (s *ReconcilerServiceImpl) reconcile(ctx context.Context, tx ports.Tx, walletID uuid.UUID) (*domain.ReconcileReport, []domain.BalanceSnapshot, error) {
	movements, err := s.ledger.ListMovements(ctx, tx, walletID)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("list movements: %w", err))
	}
	snapshots, err := s.ledger.ListSnapshots(ctx, tx, walletID)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("list snapshots: %w", err))
	}

	report := &domain.ReconcileReport{
		WalletID:      walletID,
		MovementTotal: decimal.Zero,
		SnapshotTotal: decimal.Zero,
		Drifts:        []domain.SnapshotDrift{},
	}

	totals := domain.Replay(movements)
	expected := make(map[domain.KeyID]domain.KeyTotals, len(totals))
	for _, t := range totals {
		if !t.Balanced() {
			s.log.Error().
				Str("wallet_id", walletID.String()).
				Str("key", t.Key.Label()).
				Str("amount_sum", t.Amount.String()).
				Str("remaining_sum", t.Remaining.String()).
				Msg("movement log unbalanced")
			return nil, nil, apperror.ErrConsistency(
				fmt.Sprintf("Movement log for %s is unbalanced", t.Key.Label()), nil)
		}
		expected[t.Key.ID()] = t
		report.MovementTotal = report.MovementTotal.Add(t.Amount)
	}

	var fixes []domain.BalanceSnapshot
	stamp := s.serialNow()
	seen := make(map[domain.KeyID]bool, len(snapshots))

	for _, snap := range snapshots {
		id := snap.Key.ID()
		if seen[id] {
			return nil, nil, apperror.ErrConsistency(
				fmt.Sprintf("Duplicate balance rows for %s", snap.Key.Label()), ports.ErrDuplicateSnapshot)
		}
		seen[id] = true
		report.SnapshotTotal = report.SnapshotTotal.Add(snap.CurrentAmount)

		wantAmount, wantOrigin := decimal.Zero, (*uuid.UUID)(nil)
		if t, ok := expected[id]; ok {
			wantAmount, wantOrigin = t.ExpectedSnapshot()
		}
		if snap.CurrentAmount.Equal(wantAmount) && sameID(snap.OriginMovementID, wantOrigin) {
			continue
		}

		stored := snap.CurrentAmount
		report.Drifts = append(report.Drifts, domain.SnapshotDrift{
			Key:            snap.Key,
			Stored:         &stored,
			Expected:       wantAmount,
			StoredOrigin:   snap.OriginMovementID,
			ExpectedOrigin: wantOrigin,
		})
		fixed := snap
		fixed.CurrentAmount = wantAmount
		fixed.OriginMovementID = wantOrigin
		fixed.UpdatedAt = stamp
		fixes = append(fixes, fixed)
	}

	missing := 0
	for _, t := range totals {
		if seen[t.Key.ID()] {
			continue
		}
		missing++
		amount, origin := t.ExpectedSnapshot()
		report.Drifts = append(report.Drifts, domain.SnapshotDrift{
			Key:            t.Key,
			Expected:       amount,
			ExpectedOrigin: origin,
		})
		fixes = append(fixes, domain.BalanceSnapshot{
			WalletID:         walletID,
			Key:              t.Key,
			CurrentAmount:    amount,
			OriginMovementID: origin,
			UpdatedAt:        stamp,
		})
	}

	report.KeysChecked = len(seen) + missing
	return report, fixes, nil
}

func sameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
