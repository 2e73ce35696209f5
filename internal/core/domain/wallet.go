package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet is a money container. The ledger core only reads it.
type Wallet struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	CurrencyCode string    `json:"currency_code"`
	DisplayUnit  string    `json:"display_unit"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// AttributeBalance is the outstanding amount of one attributed key.
type AttributeBalance struct {
	Key              AttributeKey    `json:"key"`
	Label            string          `json:"label"`
	Outstanding      decimal.Decimal `json:"outstanding"`
	OriginMovementID *uuid.UUID      `json:"origin_movement_id,omitempty"`
	UpdatedAt        DateSerial      `json:"updated_at"`
}

// WalletBalance summarizes a wallet's snapshots.
type WalletBalance struct {
	Wallet     Wallet             `json:"wallet"`
	Ordinary   decimal.Decimal    `json:"ordinary"`
	Attributed []AttributeBalance `json:"attributed"`
	Total      decimal.Decimal    `json:"total"`
}

// NewWalletBalance folds snapshots into a balance view. Exhausted attributed
// keys are omitted from Attributed but still counted in Total.
func NewWalletBalance(w Wallet, snapshots []BalanceSnapshot) *WalletBalance {
	b := &WalletBalance{
		Wallet:     w,
		Ordinary:   decimal.Zero,
		Attributed: []AttributeBalance{},
		Total:      decimal.Zero,
	}
	for _, s := range snapshots {
		b.Total = b.Total.Add(s.CurrentAmount)
		if s.Key.IsOrdinary() {
			b.Ordinary = b.Ordinary.Add(s.CurrentAmount)
			continue
		}
		if s.CurrentAmount.IsZero() {
			continue
		}
		b.Attributed = append(b.Attributed, AttributeBalance{
			Key:              s.Key,
			Label:            s.Key.Label(),
			Outstanding:      s.CurrentAmount,
			OriginMovementID: s.OriginMovementID,
			UpdatedAt:        s.UpdatedAt,
		})
	}
	return b
}
