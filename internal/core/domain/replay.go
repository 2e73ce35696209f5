package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// KeyTotals is what replaying the movement log yields for one key.
type KeyTotals struct {
	Key       AttributeKey
	Amount    decimal.Decimal // Sum of Amount
	Remaining decimal.Decimal // Sum of Remaining
	LastID    uuid.UUID       // Record with the highest Seq
	lastSeq   int64
}

// Balanced reports whether the key's log satisfies amount == remaining.
// The ordinary key never carries remaining and is always balanced.
func (t KeyTotals) Balanced() bool {
	return t.Key.IsOrdinary() || t.Amount.Equal(t.Remaining)
}

// ExpectedSnapshot returns the snapshot amount and origin the key should have.
func (t KeyTotals) ExpectedSnapshot() (decimal.Decimal, *uuid.UUID) {
	if t.Key.IsOrdinary() {
		return t.Amount, nil
	}
	origin := t.LastID
	return t.Amount, &origin
}

// Replay aggregates records per key, ordered by each key's first appearance.
func Replay(records []MovementRecord) []KeyTotals {
	out := []KeyTotals{}
	index := make(map[KeyID]int)
	for _, r := range records {
		id := r.Key.ID()
		i, ok := index[id]
		if !ok {
			i = len(out)
			index[id] = i
			out = append(out, KeyTotals{Key: r.Key, Amount: decimal.Zero, Remaining: decimal.Zero, lastSeq: -1})
		}
		out[i].Amount = out[i].Amount.Add(r.Amount)
		out[i].Remaining = out[i].Remaining.Add(r.Remaining)
		if r.Seq > out[i].lastSeq {
			out[i].lastSeq = r.Seq
			out[i].LastID = r.ID
		}
	}
	return out
}
