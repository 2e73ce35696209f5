package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "ledger.db")
	db, err := Open(context.Background(), path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func strPtr(s string) *string { return &s }

func couponKey() domain.AttributeKey {
	return domain.NewAttributeKey(nil, strPtr("coupon"))
}

type seeded struct {
	wallet *domain.Wallet
	txn    *domain.Transaction
}

func seed(t *testing.T, db *sql.DB) seeded {
	t.Helper()
	ctx := context.Background()
	w := &domain.Wallet{ID: uuid.New(), Name: "Main", CurrencyCode: "JPY", DisplayUnit: "yen", IsActive: true, CreatedAt: time.Now().UTC()}
	require.NoError(t, NewWalletRepo(db).Create(ctx, w))
	txn := &domain.Transaction{ID: uuid.New(), Name: "groceries", TransactedAt: 45292.5, CreatedAt: time.Now().UTC()}
	require.NoError(t, NewTransactionRepo(db).Create(ctx, txn))
	return seeded{wallet: w, txn: txn}
}

func (s seeded) movement(amount, remaining string, key domain.AttributeKey) *domain.MovementRecord {
	return &domain.MovementRecord{
		ID:            uuid.New(),
		TransactionID: s.txn.ID,
		WalletID:      s.wallet.ID,
		Amount:        decimal.RequireFromString(amount),
		Remaining:     decimal.RequireFromString(remaining),
		Key:           key,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestOpen_ReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	db, err := Open(context.Background(), path, zerolog.Nop())
	require.NoError(t, err)
	s := seed(t, db)
	require.NoError(t, db.Close())

	db, err = Open(context.Background(), path, zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()

	got, err := NewWalletRepo(db).GetByID(context.Background(), s.wallet.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Main", got.Name)

	hc := NewHealthCheck(db)
	assert.NoError(t, hc.Ping(context.Background()))
	assert.Equal(t, "sqlite", hc.Name())
}

func TestWalletRepo(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewWalletRepo(db)

	created := time.Date(2024, 1, 1, 9, 30, 0, 123000, time.UTC)
	b := &domain.Wallet{ID: uuid.New(), Name: "b", CurrencyCode: "JPY", DisplayUnit: "yen", IsActive: true, CreatedAt: created}
	a := &domain.Wallet{ID: uuid.New(), Name: "a", CurrencyCode: "JPY", DisplayUnit: "yen", IsActive: true, CreatedAt: created}
	off := &domain.Wallet{ID: uuid.New(), Name: "off", CurrencyCode: "JPY", DisplayUnit: "yen", CreatedAt: created}
	for _, w := range []*domain.Wallet{b, a, off} {
		require.NoError(t, repo.Create(ctx, w))
	}
	assert.Error(t, repo.Create(ctx, a), "duplicate id")

	got, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, *a, *got)

	missing, err := repo.GetByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "a", active[0].Name)
	assert.Equal(t, "b", active[1].Name)

	tx, err := NewTransactor(db).Begin(ctx)
	require.NoError(t, err)
	locked, err := repo.GetByIDForUpdate(ctx, tx, off.ID)
	require.NoError(t, err)
	assert.False(t, locked.IsActive)
	require.NoError(t, tx.Rollback(ctx))
}

func TestTransactionRepo(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewTransactionRepo(db)

	txn := &domain.Transaction{ID: uuid.New(), Name: "rent", TransactedAt: 46022.25, CreatedAt: time.Now().UTC()}
	require.NoError(t, repo.Create(ctx, txn))

	got, err := repo.GetByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, "rent", got.Name)
	assert.Equal(t, domain.DateSerial(46022.25), got.TransactedAt)
	assert.Equal(t, txn.CreatedAt.UnixMicro(), got.CreatedAt.UnixMicro())

	missing, err := repo.GetByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestTransactor_CommitAndRollback(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	s := seed(t, db)
	store := NewLedgerStore(db)
	transactor := NewTransactor(db)

	tx, err := transactor.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, store.AppendMovement(ctx, tx, s.movement("5", "5", couponKey())))
	require.NoError(t, tx.Rollback(ctx))

	_, total, err := store.ListMovementsByWallet(ctx, ports.MovementListParams{WalletID: s.wallet.ID})
	require.NoError(t, err)
	assert.Zero(t, total)

	tx, err = transactor.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, store.AppendMovement(ctx, tx, s.movement("5", "5", couponKey())))
	require.NoError(t, tx.Commit(ctx))
	assert.NoError(t, tx.Rollback(ctx), "rollback after commit is a no-op")

	_, total, err = store.ListMovementsByWallet(ctx, ports.MovementListParams{WalletID: s.wallet.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

type otherTx struct{}

func (otherTx) Commit(context.Context) error   { return nil }
func (otherTx) Rollback(context.Context) error { return nil }

func TestLedgerStore_RejectsForeignScope(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store := NewLedgerStore(db)

	_, err := store.FindOffsettable(ctx, otherTx{}, uuid.New(), 1)
	assert.ErrorIs(t, err, errForeignTx)
	_, err = NewWalletRepo(db).GetByIDForUpdate(ctx, otherTx{}, uuid.New())
	assert.ErrorIs(t, err, errForeignTx)
	assert.ErrorIs(t, store.ReplaceSnapshot(ctx, otherTx{}, &domain.BalanceSnapshot{}), errForeignTx)
}

func TestLedgerStore_AppendAndFindOffsettable(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	s := seed(t, db)
	store := NewLedgerStore(db)

	tx, err := NewTransactor(db).Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx) //nolint:errcheck

	exp := domain.DateSerial(46022)
	recs := []*domain.MovementRecord{
		s.movement("10.10", "10.10", couponKey()),
		s.movement("-3", "-3", couponKey()),
		s.movement("7", "0", domain.OrdinaryKey()),
		s.movement("4", "0", couponKey()),
		s.movement("0.000001", "0.000001", domain.NewAttributeKey(&exp, nil)),
	}
	for _, r := range recs {
		require.NoError(t, store.AppendMovement(ctx, tx, r))
	}
	for i := 1; i < len(recs); i++ {
		assert.Greater(t, recs[i].Seq, recs[i-1].Seq)
	}

	pos, err := store.FindOffsettable(ctx, tx, s.wallet.ID, 1)
	require.NoError(t, err)
	require.Len(t, pos, 2)
	assert.Equal(t, recs[0].ID, pos[0].ID)
	assert.True(t, pos[0].Remaining.Equal(decimal.RequireFromString("10.10")))
	assert.True(t, pos[0].Key.Equal(couponKey()))
	assert.Equal(t, recs[4].ID, pos[1].ID)
	assert.True(t, pos[1].Key.Equal(domain.NewAttributeKey(&exp, nil)))

	neg, err := store.FindOffsettable(ctx, tx, s.wallet.ID, -1)
	require.NoError(t, err)
	require.Len(t, neg, 1)
	assert.Equal(t, recs[1].ID, neg[0].ID)

	require.NoError(t, store.UpdateRemaining(ctx, tx, recs[0].ID, decimal.Zero))
	pos, err = store.FindOffsettable(ctx, tx, s.wallet.ID, 1)
	require.NoError(t, err)
	assert.Len(t, pos, 1)

	assert.Error(t, store.UpdateRemaining(ctx, tx, uuid.New(), decimal.Zero))
}

func TestLedgerStore_Snapshots(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	s := seed(t, db)
	store := NewLedgerStore(db)

	tx, err := NewTransactor(db).Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx) //nolint:errcheck

	origin := s.movement("100", "100", couponKey())
	require.NoError(t, store.AppendMovement(ctx, tx, origin))

	snap, err := store.UpsertSnapshot(ctx, tx, s.wallet.ID, couponKey(), decimal.NewFromInt(100), &origin.ID, 45292)
	require.NoError(t, err)
	assert.True(t, snap.CurrentAmount.Equal(decimal.NewFromInt(100)))

	snap, err = store.UpsertSnapshot(ctx, tx, s.wallet.ID, couponKey(), decimal.RequireFromString("-40.5"), nil, 45293)
	require.NoError(t, err)
	assert.True(t, snap.CurrentAmount.Equal(decimal.RequireFromString("59.5")))
	require.NotNil(t, snap.OriginMovementID)
	assert.Equal(t, origin.ID, *snap.OriginMovementID, "nil origin keeps the stored one")

	ordinary, err := store.UpsertSnapshot(ctx, tx, s.wallet.ID, domain.OrdinaryKey(), decimal.NewFromInt(7), nil, 45293)
	require.NoError(t, err)
	assert.Nil(t, ordinary.OriginMovementID)

	got, err := store.GetSnapshot(ctx, tx, s.wallet.ID, domain.OrdinaryKey())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ordinary.ID, got.ID)

	none, err := store.GetSnapshot(ctx, tx, s.wallet.ID, domain.NewAttributeKey(nil, strPtr("other")))
	require.NoError(t, err)
	assert.Nil(t, none)

	dup := domain.BalanceSnapshot{WalletID: s.wallet.ID, Key: couponKey(), CurrentAmount: decimal.NewFromInt(1), UpdatedAt: 45293}
	assert.Error(t, store.ReplaceSnapshot(ctx, tx, &dup), "unique key index")

	snap.CurrentAmount = decimal.NewFromInt(60)
	snap.UpdatedAt = 45300
	require.NoError(t, store.ReplaceSnapshot(ctx, tx, snap))

	all, err := store.ListSnapshots(ctx, tx, s.wallet.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.True(t, all[0].Key.IsOrdinary(), "NULL keys sort first")
	assert.True(t, all[1].CurrentAmount.Equal(decimal.NewFromInt(60)))
	assert.Equal(t, domain.DateSerial(45300), all[1].UpdatedAt)

	require.NoError(t, tx.Commit(ctx))
	read, err := store.ListSnapshotsByWallet(ctx, s.wallet.ID)
	require.NoError(t, err)
	assert.Len(t, read, 2)
}

func TestLedgerStore_ListMovementsByWallet(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	s := seed(t, db)
	store := NewLedgerStore(db)

	tx, err := NewTransactor(db).Begin(ctx)
	require.NoError(t, err)
	for _, r := range []*domain.MovementRecord{
		s.movement("100", "0", couponKey()),
		s.movement("-100", "0", couponKey()),
		s.movement("600", "600", couponKey()),
		s.movement("50", "0", domain.OrdinaryKey()),
	} {
		require.NoError(t, store.AppendMovement(ctx, tx, r))
	}
	require.NoError(t, tx.Commit(ctx))

	open := domain.MovementStateOpen
	settled := domain.MovementStateSettled

	tests := []struct {
		name      string
		params    ports.MovementListParams
		wantTotal int64
		wantLen   int
	}{
		{name: "all", params: ports.MovementListParams{WalletID: s.wallet.ID}, wantTotal: 4, wantLen: 4},
		{name: "open", params: ports.MovementListParams{WalletID: s.wallet.ID, State: &open}, wantTotal: 1, wantLen: 1},
		{name: "settled", params: ports.MovementListParams{WalletID: s.wallet.ID, State: &settled}, wantTotal: 3, wantLen: 3},
		{name: "second page", params: ports.MovementListParams{WalletID: s.wallet.ID, Page: 2, PageSize: 3}, wantTotal: 4, wantLen: 1},
		{name: "other wallet", params: ports.MovementListParams{WalletID: uuid.New()}, wantTotal: 0, wantLen: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, total, err := store.ListMovementsByWallet(ctx, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, total)
			assert.Len(t, recs, tt.wantLen)
		})
	}
}
