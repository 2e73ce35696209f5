package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func coupon() domain.AttributeKey {
	r := "coupon"
	return domain.NewAttributeKey(nil, &r)
}

func TestTx_CommitPublishesRollbackDiscards(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	walletID := uuid.New()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, s.AppendMovement(ctx, tx, &domain.MovementRecord{WalletID: walletID, Amount: decimal.NewFromInt(5), Key: coupon()}))
	require.NoError(t, tx.Rollback(ctx))

	recs, total, err := s.ListMovementsByWallet(ctx, ports.MovementListParams{WalletID: walletID})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, recs)

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	rec := &domain.MovementRecord{WalletID: walletID, Amount: decimal.NewFromInt(5), Remaining: decimal.NewFromInt(5), Key: coupon()}
	require.NoError(t, s.AppendMovement(ctx, tx, rec))
	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, tx.Rollback(ctx), "rollback after commit is a no-op")

	assert.NotEqual(t, uuid.Nil, rec.ID)
	assert.EqualValues(t, 1, rec.Seq)
	recs, total, err = s.ListMovementsByWallet(ctx, ports.MovementListParams{WalletID: walletID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, rec.ID, recs[0].ID)
}

func TestTx_ScopesAreExclusive(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = s.Begin(waitCtx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	require.NoError(t, tx.Rollback(ctx))
	tx2, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx2.Rollback(ctx))
}

func TestScope_RejectsForeignOrClosedTx(t *testing.T) {
	ctx := context.Background()
	a, b := NewStore(), NewStore()

	tx, err := a.Begin(ctx)
	require.NoError(t, err)
	_, err = b.FindOffsettable(ctx, tx, uuid.New(), 1)
	assert.ErrorIs(t, err, errForeignTx)

	require.NoError(t, tx.Commit(ctx))
	_, err = a.ListMovements(ctx, tx, uuid.New())
	assert.Error(t, err)
}

func TestFindOffsettable(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	walletID := uuid.New()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	for _, r := range []domain.MovementRecord{
		{WalletID: walletID, Amount: decimal.NewFromInt(10), Remaining: decimal.NewFromInt(10), Key: coupon()},
		{WalletID: walletID, Amount: decimal.NewFromInt(-3), Remaining: decimal.NewFromInt(-3), Key: coupon()},
		{WalletID: walletID, Amount: decimal.NewFromInt(7), Remaining: decimal.NewFromInt(7), Key: domain.OrdinaryKey()},
		{WalletID: walletID, Amount: decimal.NewFromInt(4), Remaining: decimal.Zero, Key: coupon()},
		{WalletID: uuid.New(), Amount: decimal.NewFromInt(9), Remaining: decimal.NewFromInt(9), Key: coupon()},
		{WalletID: walletID, Amount: decimal.NewFromInt(2), Remaining: decimal.NewFromInt(2), Key: coupon()},
	} {
		r := r
		require.NoError(t, s.AppendMovement(ctx, tx, &r))
	}

	pos, err := s.FindOffsettable(ctx, tx, walletID, 1)
	require.NoError(t, err)
	require.Len(t, pos, 2)
	assert.EqualValues(t, 1, pos[0].Seq)
	assert.EqualValues(t, 6, pos[1].Seq)

	neg, err := s.FindOffsettable(ctx, tx, walletID, -1)
	require.NoError(t, err)
	require.Len(t, neg, 1)
	assert.EqualValues(t, 2, neg[0].Seq)
	require.NoError(t, tx.Rollback(ctx))
}

func TestListMovementsByWallet_Pages(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	walletID := uuid.New()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	for i := 1; i <= 5; i++ {
		require.NoError(t, s.AppendMovement(ctx, tx, &domain.MovementRecord{
			WalletID: walletID, Amount: decimal.NewFromInt(int64(i)), Key: domain.OrdinaryKey(),
		}))
	}
	require.NoError(t, tx.Commit(ctx))

	tests := []struct {
		name     string
		page     int
		pageSize int
		wantSeqs []int64
	}{
		{"unpaged", 0, 0, []int64{1, 2, 3, 4, 5}},
		{"second page", 2, 2, []int64{3, 4}},
		{"short last page", 3, 2, []int64{5}},
		{"past the end", 4, 2, nil},
		{"offset beyond int range", 1<<58 + 1, 50, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, total, err := s.ListMovementsByWallet(ctx, ports.MovementListParams{
				WalletID: walletID, Page: tt.page, PageSize: tt.pageSize,
			})
			require.NoError(t, err)
			assert.EqualValues(t, 5, total)
			var seqs []int64
			for _, r := range recs {
				seqs = append(seqs, r.Seq)
			}
			assert.Equal(t, tt.wantSeqs, seqs)
		})
	}
}

func TestSnapshots_UpsertAndReplace(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	walletID := uuid.New()
	origin := uuid.New()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	snap, err := s.UpsertSnapshot(ctx, tx, walletID, coupon(), decimal.NewFromInt(100), &origin, 45292)
	require.NoError(t, err)
	assert.True(t, snap.CurrentAmount.Equal(decimal.NewFromInt(100)))

	snap, err = s.UpsertSnapshot(ctx, tx, walletID, coupon(), decimal.NewFromInt(-40), nil, 45293)
	require.NoError(t, err)
	assert.True(t, snap.CurrentAmount.Equal(decimal.NewFromInt(60)))
	assert.Equal(t, origin, *snap.OriginMovementID, "nil origin keeps the stored one")
	assert.Equal(t, domain.DateSerial(45293), snap.UpdatedAt)

	got, err := s.GetSnapshot(ctx, tx, walletID, domain.OrdinaryKey())
	require.NoError(t, err)
	assert.Nil(t, got)

	// Force a duplicate row through the insert path of ReplaceSnapshot.
	dup := domain.BalanceSnapshot{WalletID: walletID, Key: coupon(), CurrentAmount: decimal.NewFromInt(1)}
	require.NoError(t, s.ReplaceSnapshot(ctx, tx, &dup))
	_, err = s.GetSnapshot(ctx, tx, walletID, coupon())
	assert.ErrorIs(t, err, ports.ErrDuplicateSnapshot)
	_, err = s.UpsertSnapshot(ctx, tx, walletID, coupon(), decimal.NewFromInt(1), nil, 45294)
	assert.ErrorIs(t, err, ports.ErrDuplicateSnapshot)

	require.NoError(t, tx.Commit(ctx))
	all, err := s.ListSnapshotsByWallet(ctx, walletID)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestReplaceSnapshot_Unknown(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx) //nolint:errcheck

	err = s.ReplaceSnapshot(ctx, tx, &domain.BalanceSnapshot{ID: uuid.New()})
	assert.Error(t, err)
	assert.Error(t, s.UpdateRemaining(ctx, tx, uuid.New(), decimal.Zero))
}

func TestWalletRepo(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	repo := s.Wallets()

	b := &domain.Wallet{ID: uuid.New(), Name: "b", IsActive: true}
	a := &domain.Wallet{ID: uuid.New(), Name: "a", IsActive: true}
	off := &domain.Wallet{ID: uuid.New(), Name: "off"}
	for _, w := range []*domain.Wallet{b, a, off} {
		require.NoError(t, repo.Create(ctx, w))
	}
	assert.Error(t, repo.Create(ctx, a), "duplicate id")
	assert.False(t, a.CreatedAt.IsZero())

	got, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Name)

	missing, err := repo.GetByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "a", active[0].Name)
	assert.Equal(t, "b", active[1].Name)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	locked, err := repo.GetByIDForUpdate(ctx, tx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, locked.ID)
	require.NoError(t, tx.Rollback(ctx))
}

func TestTransactionRepo(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	repo := s.Transactions()

	txn := &domain.Transaction{ID: uuid.New(), Name: "rent", TransactedAt: 45292}
	require.NoError(t, repo.Create(ctx, txn))
	assert.Error(t, repo.Create(ctx, txn))

	got, err := repo.GetByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, "rent", got.Name)

	missing, err := repo.GetByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, s.Ping(ctx))
	assert.Equal(t, "memory", s.Name())
}
