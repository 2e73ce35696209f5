package postgres

import (
	"context"
	"fmt"
	"strings"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const (
	movementColumns = `id, seq, transaction_id, wallet_id, amount, remaining, expires_at, restriction, created_at`
	snapshotColumns = `id, wallet_id, expires_at, restriction, current_amount, origin_movement_id, updated_at`

	// Both components compare NULL-safe so the ordinary key matches too.
	keyMatch = `expires_at IS NOT DISTINCT FROM $2 AND restriction IS NOT DISTINCT FROM $3`
)

// LedgerStore implements ports.LedgerStore on PostgreSQL.
type LedgerStore struct {
	pool Pool
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(pool Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

func keyArgs(k domain.AttributeKey) (*float64, *string) {
	var exp *float64
	if k.ExpiresAt != nil {
		e := float64(*k.ExpiresAt)
		exp = &e
	}
	return exp, k.Restriction
}

func keyFromColumns(exp *float64, restriction *string) domain.AttributeKey {
	var at *domain.DateSerial
	if exp != nil {
		d := domain.DateSerial(*exp)
		at = &d
	}
	return domain.NewAttributeKey(at, restriction)
}

func scanMovement(row pgx.Row) (domain.MovementRecord, error) {
	var m domain.MovementRecord
	var exp *float64
	var restriction *string
	err := row.Scan(&m.ID, &m.Seq, &m.TransactionID, &m.WalletID,
		&m.Amount, &m.Remaining, &exp, &restriction, &m.CreatedAt)
	m.Key = keyFromColumns(exp, restriction)
	return m, err
}

func scanSnapshot(row pgx.Row) (domain.BalanceSnapshot, error) {
	var s domain.BalanceSnapshot
	var exp *float64
	var restriction *string
	var updated float64
	err := row.Scan(&s.ID, &s.WalletID, &exp, &restriction,
		&s.CurrentAmount, &s.OriginMovementID, &updated)
	s.Key = keyFromColumns(exp, restriction)
	s.UpdatedAt = domain.DateSerial(updated)
	return s, err
}

func collectMovements(rows pgx.Rows) ([]domain.MovementRecord, error) {
	defer rows.Close()
	out := []domain.MovementRecord{}
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan movement row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movement rows: %w", err)
	}
	return out, nil
}

func collectSnapshots(rows pgx.Rows) ([]domain.BalanceSnapshot, error) {
	defer rows.Close()
	out := []domain.BalanceSnapshot{}
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}
	return out, nil
}

// FindOffsettable locks and returns the open attributed records whose
// remaining has desiredSign, oldest first.
func (s *LedgerStore) FindOffsettable(ctx context.Context, tx ports.Tx, walletID uuid.UUID, desiredSign int) ([]domain.MovementRecord, error) {
	ptx, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + movementColumns + ` FROM movements
		WHERE wallet_id = $1 AND (expires_at IS NOT NULL OR restriction IS NOT NULL) AND sign(remaining) = $2
		ORDER BY seq FOR UPDATE`

	rows, err := ptx.Query(ctx, query, walletID, desiredSign)
	if err != nil {
		return nil, fmt.Errorf("find offsettable movements: %w", err)
	}
	return collectMovements(rows)
}

// AppendMovement inserts record and stores the assigned seq back into it.
func (s *LedgerStore) AppendMovement(ctx context.Context, tx ports.Tx, record *domain.MovementRecord) error {
	ptx, err := pgxTx(tx)
	if err != nil {
		return err
	}
	exp, restriction := keyArgs(record.Key)
	query := `INSERT INTO movements (id, transaction_id, wallet_id, amount, remaining, expires_at, restriction, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING seq`

	err = ptx.QueryRow(ctx, query,
		record.ID, record.TransactionID, record.WalletID,
		record.Amount, record.Remaining, exp, restriction, record.CreatedAt,
	).Scan(&record.Seq)
	if err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

// UpdateRemaining overwrites the remaining amount of one record.
func (s *LedgerStore) UpdateRemaining(ctx context.Context, tx ports.Tx, recordID uuid.UUID, remaining decimal.Decimal) error {
	ptx, err := pgxTx(tx)
	if err != nil {
		return err
	}
	tag, err := ptx.Exec(ctx, `UPDATE movements SET remaining = $1 WHERE id = $2`, remaining, recordID)
	if err != nil {
		return fmt.Errorf("update movement remaining: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("movement not found: %s", recordID)
	}
	return nil
}

// GetSnapshot locks and returns the (wallet, key) row.
func (s *LedgerStore) GetSnapshot(ctx context.Context, tx ports.Tx, walletID uuid.UUID, key domain.AttributeKey) (*domain.BalanceSnapshot, error) {
	ptx, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}
	exp, restriction := keyArgs(key)
	query := `SELECT ` + snapshotColumns + ` FROM balance_snapshots
		WHERE wallet_id = $1 AND ` + keyMatch + ` FOR UPDATE`

	rows, err := ptx.Query(ctx, query, walletID, exp, restriction)
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	snaps, err := collectSnapshots(rows)
	if err != nil {
		return nil, err
	}
	switch len(snaps) {
	case 0:
		return nil, nil
	case 1:
		return &snaps[0], nil
	default:
		return nil, fmt.Errorf("wallet %s key %s has %d rows: %w", walletID, key, len(snaps), ports.ErrDuplicateSnapshot)
	}
}

// UpsertSnapshot adds delta to the (wallet, key) row, inserting it if absent.
func (s *LedgerStore) UpsertSnapshot(ctx context.Context, tx ports.Tx, walletID uuid.UUID, key domain.AttributeKey, delta decimal.Decimal, originID *uuid.UUID, updatedAt domain.DateSerial) (*domain.BalanceSnapshot, error) {
	ptx, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}
	existing, err := s.GetSnapshot(ctx, tx, walletID, key)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		snap := &domain.BalanceSnapshot{
			ID:               uuid.New(),
			WalletID:         walletID,
			Key:              key,
			CurrentAmount:    delta,
			OriginMovementID: originID,
			UpdatedAt:        updatedAt,
		}
		if err := insertSnapshot(ctx, ptx, snap); err != nil {
			return nil, err
		}
		return snap, nil
	}

	existing.CurrentAmount = existing.CurrentAmount.Add(delta)
	if originID != nil {
		existing.OriginMovementID = originID
	}
	existing.UpdatedAt = updatedAt
	if err := updateSnapshot(ctx, ptx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func insertSnapshot(ctx context.Context, tx pgx.Tx, snap *domain.BalanceSnapshot) error {
	exp, restriction := keyArgs(snap.Key)
	query := `INSERT INTO balance_snapshots (` + snapshotColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := tx.Exec(ctx, query,
		snap.ID, snap.WalletID, exp, restriction,
		snap.CurrentAmount, snap.OriginMovementID, float64(snap.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func updateSnapshot(ctx context.Context, tx pgx.Tx, snap *domain.BalanceSnapshot) error {
	query := `UPDATE balance_snapshots SET current_amount = $1, origin_movement_id = $2, updated_at = $3 WHERE id = $4`

	tag, err := tx.Exec(ctx, query, snap.CurrentAmount, snap.OriginMovementID, float64(snap.UpdatedAt), snap.ID)
	if err != nil {
		return fmt.Errorf("update snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("snapshot not found: %s", snap.ID)
	}
	return nil
}

// ListMovements returns the wallet's full log in seq order.
func (s *LedgerStore) ListMovements(ctx context.Context, tx ports.Tx, walletID uuid.UUID) ([]domain.MovementRecord, error) {
	ptx, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}
	rows, err := ptx.Query(ctx, `SELECT `+movementColumns+` FROM movements WHERE wallet_id = $1 ORDER BY seq`, walletID)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	return collectMovements(rows)
}

// ListSnapshots locks and returns every snapshot row of the wallet.
func (s *LedgerStore) ListSnapshots(ctx context.Context, tx ports.Tx, walletID uuid.UUID) ([]domain.BalanceSnapshot, error) {
	ptx, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + snapshotColumns + ` FROM balance_snapshots WHERE wallet_id = $1
		ORDER BY expires_at NULLS FIRST, restriction NULLS FIRST, id FOR UPDATE`

	rows, err := ptx.Query(ctx, query, walletID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return collectSnapshots(rows)
}

// ReplaceSnapshot overwrites a row by ID, or inserts it when ID is uuid.Nil.
func (s *LedgerStore) ReplaceSnapshot(ctx context.Context, tx ports.Tx, snapshot *domain.BalanceSnapshot) error {
	ptx, err := pgxTx(tx)
	if err != nil {
		return err
	}
	if snapshot.ID == uuid.Nil {
		snapshot.ID = uuid.New()
		return insertSnapshot(ctx, ptx, snapshot)
	}
	return updateSnapshot(ctx, ptx, snapshot)
}

// ListSnapshotsByWallet is the unlocked read behind balance queries.
func (s *LedgerStore) ListSnapshotsByWallet(ctx context.Context, walletID uuid.UUID) ([]domain.BalanceSnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM balance_snapshots WHERE wallet_id = $1
		ORDER BY expires_at NULLS FIRST, restriction NULLS FIRST, id`

	rows, err := s.pool.Query(ctx, query, walletID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots by wallet: %w", err)
	}
	return collectSnapshots(rows)
}

// ListMovementsByWallet fetches one page of the wallet's log with an optional
// state filter.
func (s *LedgerStore) ListMovementsByWallet(ctx context.Context, params ports.MovementListParams) ([]domain.MovementRecord, int64, error) {
	conditions := []string{"wallet_id = $1"}
	args := []any{params.WalletID}
	argIdx := 2

	if params.State != nil {
		switch *params.State {
		case domain.MovementStateOpen:
			conditions = append(conditions, "remaining <> 0")
		case domain.MovementStateSettled:
			conditions = append(conditions, "remaining = 0")
		}
	}
	where := "WHERE " + strings.Join(conditions, " AND ")

	var total int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM movements "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count movements: %w", err)
	}

	dataQuery := fmt.Sprintf(`SELECT %s FROM movements %s ORDER BY seq`, movementColumns, where)
	if params.PageSize > 0 {
		dataQuery += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
		args = append(args, params.PageSize, params.Offset())
	}

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list movements by wallet: %w", err)
	}
	records, err := collectMovements(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}
