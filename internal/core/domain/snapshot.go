package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BalanceSnapshot is the materialized balance of one (wallet, attribute key).
// Rows are never deleted; an exhausted key keeps a zero row.
type BalanceSnapshot struct {
	ID               uuid.UUID       `json:"id"`
	WalletID         uuid.UUID       `json:"wallet_id"`
	Key              AttributeKey    `json:"key"`
	CurrentAmount    decimal.Decimal `json:"current_amount"`
	OriginMovementID *uuid.UUID      `json:"origin_movement_id,omitempty"` // Non-ordinary keys only
	UpdatedAt        DateSerial      `json:"updated_at"`
}

// SnapshotDrift describes one snapshot row that disagrees with the movement log.
type SnapshotDrift struct {
	Key            AttributeKey     `json:"key"`
	Stored         *decimal.Decimal `json:"stored,omitempty"` // nil when the row is missing
	Expected       decimal.Decimal  `json:"expected"`
	StoredOrigin   *uuid.UUID       `json:"stored_origin,omitempty"`
	ExpectedOrigin *uuid.UUID       `json:"expected_origin,omitempty"`
}

// ReconcileReport is the outcome of a verify or rebuild pass over one wallet.
type ReconcileReport struct {
	WalletID      uuid.UUID       `json:"wallet_id"`
	KeysChecked   int             `json:"keys_checked"`
	MovementTotal decimal.Decimal `json:"movement_total"`
	SnapshotTotal decimal.Decimal `json:"snapshot_total"`
	Drifts        []SnapshotDrift `json:"drifts"`
	Repaired      bool            `json:"repaired"`
}

// Clean reports whether the snapshots matched the log.
func (r *ReconcileReport) Clean() bool {
	return len(r.Drifts) == 0 && r.MovementTotal.Equal(r.SnapshotTotal)
}
