package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	movementColumns = `id, seq, transaction_id, wallet_id, amount, remaining, expires_at, restriction, created_at`
	snapshotColumns = `id, wallet_id, expires_at, restriction, current_amount, origin_movement_id, updated_at`

	// IS is SQLite's NULL-safe equality.
	keyMatch = `expires_at IS ? AND restriction IS ?`

	// Amounts are stored as decimal text; the cast is only used for sign tests.
	openMovement = `CAST(remaining AS REAL) <> 0`
)

// LedgerStore implements ports.LedgerStore on SQLite.
type LedgerStore struct {
	db *sql.DB
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{db: db}
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

func scanMovement(row scanner) (domain.MovementRecord, error) {
	var m domain.MovementRecord
	var exp *float64
	var restriction *string
	var created int64
	err := row.Scan(&m.ID, &m.Seq, &m.TransactionID, &m.WalletID,
		&m.Amount, &m.Remaining, &exp, &restriction, &created)
	m.Key = keyFromColumns(exp, restriction)
	m.CreatedAt = time.UnixMicro(created).UTC()
	return m, err
}

func scanSnapshot(row scanner) (domain.BalanceSnapshot, error) {
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

func queryMovements(ctx context.Context, q querier, query string, args ...any) ([]domain.MovementRecord, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
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

func querySnapshots(ctx context.Context, q querier, query string, args ...any) ([]domain.BalanceSnapshot, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
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

// FindOffsettable returns the open attributed records whose remaining has
// desiredSign, oldest first. The sign is decided on the exact decimal.
func (s *LedgerStore) FindOffsettable(ctx context.Context, tx ports.Tx, walletID uuid.UUID, desiredSign int) ([]domain.MovementRecord, error) {
	stx, err := sqlTx(tx)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + movementColumns + ` FROM movements
		WHERE wallet_id = ? AND (expires_at IS NOT NULL OR restriction IS NOT NULL) AND ` + openMovement + `
		ORDER BY seq`

	open, err := queryMovements(ctx, stx, query, walletID)
	if err != nil {
		return nil, fmt.Errorf("find offsettable movements: %w", err)
	}
	out := open[:0]
	for _, m := range open {
		if m.IsOffsettable(desiredSign) {
			out = append(out, m)
		}
	}
	return out, nil
}

// AppendMovement inserts record and stores the assigned seq back into it.
func (s *LedgerStore) AppendMovement(ctx context.Context, tx ports.Tx, record *domain.MovementRecord) error {
	stx, err := sqlTx(tx)
	if err != nil {
		return err
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	exp, restriction := keyArgs(record.Key)
	query := `INSERT INTO movements (id, transaction_id, wallet_id, amount, remaining, expires_at, restriction, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := stx.ExecContext(ctx, query,
		record.ID, record.TransactionID, record.WalletID,
		record.Amount, record.Remaining, exp, restriction, record.CreatedAt.UnixMicro(),
	)
	if err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read movement seq: %w", err)
	}
	record.Seq = seq
	return nil
}

// UpdateRemaining overwrites the remaining amount of one record.
func (s *LedgerStore) UpdateRemaining(ctx context.Context, tx ports.Tx, recordID uuid.UUID, remaining decimal.Decimal) error {
	stx, err := sqlTx(tx)
	if err != nil {
		return err
	}
	res, err := stx.ExecContext(ctx, `UPDATE movements SET remaining = ? WHERE id = ?`, remaining, recordID)
	if err != nil {
		return fmt.Errorf("update movement remaining: %w", err)
	}
	return requireRow(res, "movement", recordID)
}

// GetSnapshot returns the (wallet, key) row.
func (s *LedgerStore) GetSnapshot(ctx context.Context, tx ports.Tx, walletID uuid.UUID, key domain.AttributeKey) (*domain.BalanceSnapshot, error) {
	stx, err := sqlTx(tx)
	if err != nil {
		return nil, err
	}
	exp, restriction := keyArgs(key)
	query := `SELECT ` + snapshotColumns + ` FROM balance_snapshots WHERE wallet_id = ? AND ` + keyMatch

	snaps, err := querySnapshots(ctx, stx, query, walletID, exp, restriction)
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	switch len(snaps) {
	case 0:
		return nil, nil
	case 1:
		return &snaps[0], nil
	default:
		return nil, fmt.Errorf("wallet %s key %s has %d rows: %w", walletID, key.Label(), len(snaps), ports.ErrDuplicateSnapshot)
	}
}

// UpsertSnapshot adds delta to the (wallet, key) row, inserting it if absent.
// The sum is computed in Go so the stored text stays exact.
func (s *LedgerStore) UpsertSnapshot(ctx context.Context, tx ports.Tx, walletID uuid.UUID, key domain.AttributeKey, delta decimal.Decimal, originID *uuid.UUID, updatedAt domain.DateSerial) (*domain.BalanceSnapshot, error) {
	stx, err := sqlTx(tx)
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
		if err := insertSnapshot(ctx, stx, snap); err != nil {
			return nil, err
		}
		return snap, nil
	}

	existing.CurrentAmount = existing.CurrentAmount.Add(delta)
	if originID != nil {
		existing.OriginMovementID = originID
	}
	existing.UpdatedAt = updatedAt
	if err := updateSnapshot(ctx, stx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func insertSnapshot(ctx context.Context, tx *sql.Tx, snap *domain.BalanceSnapshot) error {
	exp, restriction := keyArgs(snap.Key)
	query := `INSERT INTO balance_snapshots (` + snapshotColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := tx.ExecContext(ctx, query,
		snap.ID, snap.WalletID, exp, restriction,
		snap.CurrentAmount, snap.OriginMovementID, float64(snap.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func updateSnapshot(ctx context.Context, tx *sql.Tx, snap *domain.BalanceSnapshot) error {
	query := `UPDATE balance_snapshots SET current_amount = ?, origin_movement_id = ?, updated_at = ? WHERE id = ?`

	res, err := tx.ExecContext(ctx, query, snap.CurrentAmount, snap.OriginMovementID, float64(snap.UpdatedAt), snap.ID)
	if err != nil {
		return fmt.Errorf("update snapshot: %w", err)
	}
	return requireRow(res, "snapshot", snap.ID)
}

func requireRow(res sql.Result, what string, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s not found: %s", what, id)
	}
	return nil
}

// ListMovements returns the wallet's full log in seq order.
func (s *LedgerStore) ListMovements(ctx context.Context, tx ports.Tx, walletID uuid.UUID) ([]domain.MovementRecord, error) {
	stx, err := sqlTx(tx)
	if err != nil {
		return nil, err
	}
	recs, err := queryMovements(ctx, stx, `SELECT `+movementColumns+` FROM movements WHERE wallet_id = ? ORDER BY seq`, walletID)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	return recs, nil
}

// ListSnapshots returns every snapshot row of the wallet.
func (s *LedgerStore) ListSnapshots(ctx context.Context, tx ports.Tx, walletID uuid.UUID) ([]domain.BalanceSnapshot, error) {
	stx, err := sqlTx(tx)
	if err != nil {
		return nil, err
	}
	snaps, err := querySnapshots(ctx, stx, snapshotsByWallet, walletID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return snaps, nil
}

// SQLite sorts NULLs first in ascending order.
const snapshotsByWallet = `SELECT ` + snapshotColumns + ` FROM balance_snapshots WHERE wallet_id = ?
	ORDER BY expires_at, restriction, id`

// ReplaceSnapshot overwrites a row by ID, or inserts it when ID is uuid.Nil.
func (s *LedgerStore) ReplaceSnapshot(ctx context.Context, tx ports.Tx, snapshot *domain.BalanceSnapshot) error {
	stx, err := sqlTx(tx)
	if err != nil {
		return err
	}
	if snapshot.ID == uuid.Nil {
		snapshot.ID = uuid.New()
		return insertSnapshot(ctx, stx, snapshot)
	}
	return updateSnapshot(ctx, stx, snapshot)
}

// ListSnapshotsByWallet is the read behind balance queries.
func (s *LedgerStore) ListSnapshotsByWallet(ctx context.Context, walletID uuid.UUID) ([]domain.BalanceSnapshot, error) {
	snaps, err := querySnapshots(ctx, s.db, snapshotsByWallet, walletID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots by wallet: %w", err)
	}
	return snaps, nil
}

// ListMovementsByWallet fetches one page of the wallet's log with an optional
// state filter.
func (s *LedgerStore) ListMovementsByWallet(ctx context.Context, params ports.MovementListParams) ([]domain.MovementRecord, int64, error) {
	conditions := []string{"wallet_id = ?"}
	args := []any{params.WalletID}

	if params.State != nil {
		switch *params.State {
		case domain.MovementStateOpen:
			conditions = append(conditions, openMovement)
		case domain.MovementStateSettled:
			conditions = append(conditions, "CAST(remaining AS REAL) = 0")
		}
	}
	where := "WHERE " + strings.Join(conditions, " AND ")

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM movements "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count movements: %w", err)
	}

	dataQuery := `SELECT ` + movementColumns + ` FROM movements ` + where + ` ORDER BY seq`
	if params.PageSize > 0 {
		dataQuery += " LIMIT ? OFFSET ?"
		args = append(args, params.PageSize, params.Offset())
	}

	records, err := queryMovements(ctx, s.db, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list movements by wallet: %w", err)
	}
	return records, total, nil
}
