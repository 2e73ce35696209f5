package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementState is derived from Remaining; Settled is terminal.
type MovementState string

const (
	MovementStateOpen    MovementState = "OPEN"
	MovementStateSettled MovementState = "SETTLED"
)

// MovementRecord is one entry of a wallet's append-only movement log.
// Only Remaining ever changes after insert, and only through netting.
type MovementRecord struct {
	ID            uuid.UUID       `json:"id"`
	Seq           int64           `json:"seq"` // Insertion order, assigned by the store
	TransactionID uuid.UUID       `json:"transaction_id"`
	WalletID      uuid.UUID       `json:"wallet_id"`
	Amount        decimal.Decimal `json:"amount"`
	Remaining     decimal.Decimal `json:"remaining"`
	Key           AttributeKey    `json:"key"`
	CreatedAt     time.Time       `json:"created_at"`
}

// State returns Settled once nothing remains to be offset.
func (m *MovementRecord) State() MovementState {
	if m.Remaining.IsZero() {
		return MovementStateSettled
	}
	return MovementStateOpen
}

// IsOffsettable reports whether the record can absorb a movement of the given sign.
func (m *MovementRecord) IsOffsettable(desiredSign int) bool {
	return !m.Key.IsOrdinary() && desiredSign != 0 && m.Remaining.Sign() == desiredSign
}
