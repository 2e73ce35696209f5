// Package memory is an in-process storage backend. A scope (Tx) works on a
// private copy of the committed state and swaps it in on Commit; only one scope
// is open at a time, which serializes every netting pass and rebuild.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var errForeignTx = errors.New("memory: transaction does not belong to this store")

type state struct {
	wallets      map[uuid.UUID]domain.Wallet
	walletOrder  []uuid.UUID
	transactions map[uuid.UUID]domain.Transaction
	movements    []domain.MovementRecord // Seq order
	snapshots    []domain.BalanceSnapshot
	nextSeq      int64
}

func newState() *state {
	return &state{
		wallets:      make(map[uuid.UUID]domain.Wallet),
		transactions: make(map[uuid.UUID]domain.Transaction),
	}
}

func (s *state) clone() *state {
	c := &state{
		wallets:      make(map[uuid.UUID]domain.Wallet, len(s.wallets)),
		walletOrder:  append([]uuid.UUID(nil), s.walletOrder...),
		transactions: make(map[uuid.UUID]domain.Transaction, len(s.transactions)),
		movements:    make([]domain.MovementRecord, len(s.movements)),
		snapshots:    make([]domain.BalanceSnapshot, len(s.snapshots)),
		nextSeq:      s.nextSeq,
	}
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	copy(c.movements, s.movements)
	copy(c.snapshots, s.snapshots)
	return c
}

// Store implements ports.LedgerStore, ports.DBTransactor and ports.HealthChecker.
type Store struct {
	sem  chan struct{} // held by the open scope or a direct write
	mu   sync.RWMutex  // guards data
	data *state
	now  func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		sem:  make(chan struct{}, 1),
		data: newState(),
		now:  time.Now,
	}
}

func (s *Store) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) release() {
	<-s.sem
}

// Tx is a staged copy of the store.
type Tx struct {
	store *Store
	data  *state
	done  bool
}

// Begin waits for any open scope to finish, then opens a new one.
func (s *Store) Begin(ctx context.Context) (ports.Tx, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, fmt.Errorf("memory: begin: %w", err)
	}
	s.mu.RLock()
	staged := s.data.clone()
	s.mu.RUnlock()
	return &Tx{store: s, data: staged}, nil
}

func (t *Tx) Commit(_ context.Context) error {
	if t.done {
		return errors.New("memory: transaction already closed")
	}
	t.done = true
	t.store.mu.Lock()
	t.store.data = t.data
	t.store.mu.Unlock()
	t.store.release()
	return nil
}

// Rollback discards the staged copy. It is a no-op after Commit.
func (t *Tx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.release()
	return nil
}

func (s *Store) scope(tx ports.Tx) (*state, error) {
	t, ok := tx.(*Tx)
	if !ok || t.store != s {
		return nil, errForeignTx
	}
	if t.done {
		return nil, errors.New("memory: transaction already closed")
	}
	return t.data, nil
}

// read runs fn against committed state.
func (s *Store) read(_ context.Context, fn func(*state) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.data)
}

// write runs fn against committed state outside any scope. It waits for the
// open scope so a later Commit cannot discard the change.
func (s *Store) write(ctx context.Context, fn func(*state) error) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

// --- LedgerStore ---

func (s *Store) FindOffsettable(_ context.Context, tx ports.Tx, walletID uuid.UUID, desiredSign int) ([]domain.MovementRecord, error) {
	data, err := s.scope(tx)
	if err != nil {
		return nil, err
	}
	var out []domain.MovementRecord
	for _, m := range data.movements {
		if m.WalletID == walletID && m.IsOffsettable(desiredSign) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) AppendMovement(_ context.Context, tx ports.Tx, record *domain.MovementRecord) error {
	data, err := s.scope(tx)
	if err != nil {
		return err
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now().UTC()
	}
	data.nextSeq++
	record.Seq = data.nextSeq
	stored := *record
	stored.Key = domain.NewAttributeKey(record.Key.ExpiresAt, record.Key.Restriction)
	data.movements = append(data.movements, stored)
	return nil
}

func (s *Store) UpdateRemaining(_ context.Context, tx ports.Tx, recordID uuid.UUID, remaining decimal.Decimal) error {
	data, err := s.scope(tx)
	if err != nil {
		return err
	}
	for i := range data.movements {
		if data.movements[i].ID == recordID {
			data.movements[i].Remaining = remaining
			return nil
		}
	}
	return fmt.Errorf("memory: movement %s not found", recordID)
}

func findSnapshots(data *state, walletID uuid.UUID, key domain.AttributeKey) []int {
	var idx []int
	for i, snap := range data.snapshots {
		if snap.WalletID == walletID && snap.Key.Equal(key) {
			idx = append(idx, i)
		}
	}
	return idx
}

func (s *Store) GetSnapshot(_ context.Context, tx ports.Tx, walletID uuid.UUID, key domain.AttributeKey) (*domain.BalanceSnapshot, error) {
	data, err := s.scope(tx)
	if err != nil {
		return nil, err
	}
	idx := findSnapshots(data, walletID, key)
	switch len(idx) {
	case 0:
		return nil, nil
	case 1:
		snap := data.snapshots[idx[0]]
		return &snap, nil
	default:
		return nil, fmt.Errorf("memory: wallet %s key %s: %w", walletID, key, ports.ErrDuplicateSnapshot)
	}
}

func (s *Store) UpsertSnapshot(ctx context.Context, tx ports.Tx, walletID uuid.UUID, key domain.AttributeKey, delta decimal.Decimal, originID *uuid.UUID, updatedAt domain.DateSerial) (*domain.BalanceSnapshot, error) {
	data, err := s.scope(tx)
	if err != nil {
		return nil, err
	}
	existing, err := s.GetSnapshot(ctx, tx, walletID, key)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		snap := domain.BalanceSnapshot{
			ID:               uuid.New(),
			WalletID:         walletID,
			Key:              domain.NewAttributeKey(key.ExpiresAt, key.Restriction),
			CurrentAmount:    delta,
			OriginMovementID: copyID(originID),
			UpdatedAt:        updatedAt,
		}
		data.snapshots = append(data.snapshots, snap)
		return &snap, nil
	}

	i := findSnapshots(data, walletID, key)[0]
	data.snapshots[i].CurrentAmount = data.snapshots[i].CurrentAmount.Add(delta)
	if originID != nil {
		data.snapshots[i].OriginMovementID = copyID(originID)
	}
	data.snapshots[i].UpdatedAt = updatedAt
	snap := data.snapshots[i]
	return &snap, nil
}

func (s *Store) ListMovements(_ context.Context, tx ports.Tx, walletID uuid.UUID) ([]domain.MovementRecord, error) {
	data, err := s.scope(tx)
	if err != nil {
		return nil, err
	}
	return movementsOf(data, walletID, nil), nil
}

func (s *Store) ListSnapshots(_ context.Context, tx ports.Tx, walletID uuid.UUID) ([]domain.BalanceSnapshot, error) {
	data, err := s.scope(tx)
	if err != nil {
		return nil, err
	}
	return snapshotsOf(data, walletID), nil
}

func (s *Store) ReplaceSnapshot(_ context.Context, tx ports.Tx, snapshot *domain.BalanceSnapshot) error {
	data, err := s.scope(tx)
	if err != nil {
		return err
	}
	if snapshot.ID == uuid.Nil {
		snapshot.ID = uuid.New()
		stored := *snapshot
		stored.OriginMovementID = copyID(snapshot.OriginMovementID)
		data.snapshots = append(data.snapshots, stored)
		return nil
	}
	for i := range data.snapshots {
		if data.snapshots[i].ID == snapshot.ID {
			data.snapshots[i].CurrentAmount = snapshot.CurrentAmount
			data.snapshots[i].OriginMovementID = copyID(snapshot.OriginMovementID)
			data.snapshots[i].UpdatedAt = snapshot.UpdatedAt
			return nil
		}
	}
	return fmt.Errorf("memory: snapshot %s not found", snapshot.ID)
}

func (s *Store) ListSnapshotsByWallet(ctx context.Context, walletID uuid.UUID) ([]domain.BalanceSnapshot, error) {
	var out []domain.BalanceSnapshot
	err := s.read(ctx, func(data *state) error {
		out = snapshotsOf(data, walletID)
		return nil
	})
	return out, err
}

func (s *Store) ListMovementsByWallet(ctx context.Context, params ports.MovementListParams) ([]domain.MovementRecord, int64, error) {
	var page []domain.MovementRecord
	var total int64
	err := s.read(ctx, func(data *state) error {
		all := movementsOf(data, params.WalletID, params.State)
		total = int64(len(all))
		from := params.Offset()
		if from < 0 || from > len(all) {
			from = len(all)
		}
		to := len(all)
		if params.PageSize > 0 && params.PageSize < to-from {
			to = from + params.PageSize
		}
		page = all[from:to]
		return nil
	})
	return page, total, err
}

func movementsOf(data *state, walletID uuid.UUID, st *domain.MovementState) []domain.MovementRecord {
	out := []domain.MovementRecord{}
	for _, m := range data.movements {
		if m.WalletID != walletID {
			continue
		}
		if st != nil && m.State() != *st {
			continue
		}
		out = append(out, m)
	}
	return out
}

func snapshotsOf(data *state, walletID uuid.UUID) []domain.BalanceSnapshot {
	out := []domain.BalanceSnapshot{}
	for _, snap := range data.snapshots {
		if snap.WalletID == walletID {
			out = append(out, snap)
		}
	}
	return out
}

func copyID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}

// --- HealthChecker ---

func (s *Store) Ping(_ context.Context) error { return nil }

func (s *Store) Name() string { return "memory" }
