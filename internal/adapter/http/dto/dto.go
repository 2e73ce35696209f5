package dto

import (
	"fmt"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/pkg/dateserial"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateWalletRequest is the request body for wallet creation.
type CreateWalletRequest struct {
	Name         string `json:"name" binding:"required,max=100"`
	CurrencyCode string `json:"currency_code" binding:"required,max=16,safe_id"`
	DisplayUnit  string `json:"display_unit" binding:"max=32"`
}

// CreateTransactionRequest is the request body for a transaction header.
// TransactedOn takes YYYYMMDD or YYYYMMDDHHMM; TransactedAt takes a raw
// date serial. Both absent means now.
type CreateTransactionRequest struct {
	Name         string   `json:"name" binding:"required,max=200"`
	TransactedOn *string  `json:"transacted_on,omitempty" binding:"omitempty,datestamp"`
	TransactedAt *float64 `json:"transacted_at,omitempty" binding:"omitempty,gt=0"`
}

// Serial resolves the requested transaction date, or nil for now.
func (r CreateTransactionRequest) Serial() (*domain.DateSerial, error) {
	switch {
	case r.TransactedOn != nil:
		v, err := parseStamp(*r.TransactedOn)
		if err != nil {
			return nil, err
		}
		d := domain.DateSerial(v)
		return &d, nil
	case r.TransactedAt != nil:
		d := domain.DateSerial(*r.TransactedAt)
		return &d, nil
	}
	return nil, nil
}

// AttributeInput is the wire form of an attribute key. ExpiresOn (YYYYMMDD)
// wins over ExpiresAt (date serial) when both are set.
type AttributeInput struct {
	ExpiresOn   *string  `json:"expires_on,omitempty" binding:"omitempty,datestamp"`
	ExpiresAt   *float64 `json:"expires_at,omitempty" binding:"omitempty,gt=0"`
	Restriction *string  `json:"restriction,omitempty" binding:"omitempty,restriction"`
}

// Key converts the input into a validated attribute key.
func (a AttributeInput) Key() (domain.AttributeKey, error) {
	var exp *domain.DateSerial
	switch {
	case a.ExpiresOn != nil:
		v, err := parseStamp(*a.ExpiresOn)
		if err != nil {
			return domain.AttributeKey{}, err
		}
		d := domain.DateSerial(v)
		exp = &d
	case a.ExpiresAt != nil:
		d := domain.DateSerial(*a.ExpiresAt)
		exp = &d
	}
	k := domain.NewAttributeKey(exp, a.Restriction)
	return k, k.Validate()
}

// OverrideInput fixes the magnitude netted against one group.
type OverrideInput struct {
	AttributeInput
	Amount decimal.Decimal `json:"amount"`
}

// ApplyMovementRequest is the request body for one netting pass. Amounts are
// accepted as JSON strings or numbers.
type ApplyMovementRequest struct {
	TransactionID string          `json:"transaction_id" binding:"required,uuid"`
	Amount        decimal.Decimal `json:"amount"`
	Tag           *AttributeInput `json:"tag,omitempty"`
	Overrides     []OverrideInput `json:"overrides,omitempty" binding:"omitempty,max=64,dive"`
}

// MovementView is one audit row.
type MovementView struct {
	domain.MovementRecord
	Label string               `json:"label"`
	State domain.MovementState `json:"state"`
}

// NewMovementViews decorates records for output.
func NewMovementViews(records []domain.MovementRecord) []MovementView {
	out := make([]MovementView, 0, len(records))
	for _, r := range records {
		out = append(out, MovementView{MovementRecord: r, Label: r.Key.Label(), State: r.State()})
	}
	return out
}

// MovementListResponse is a page of the movement audit list.
type MovementListResponse struct {
	Items    []MovementView `json:"items"`
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

// OffsetGroupView is one group a movement would be netted against.
type OffsetGroupView struct {
	Key       domain.AttributeKey `json:"key"`
	Label     string              `json:"label"`
	Total     decimal.Decimal     `json:"total"`
	MemberIDs []uuid.UUID         `json:"member_ids"`
}

// NewOffsetGroupViews flattens groups for output.
func NewOffsetGroupViews(groups domain.AttributeGroups) []OffsetGroupView {
	out := make([]OffsetGroupView, 0, len(groups))
	for _, g := range groups {
		ids := make([]uuid.UUID, 0, len(g.Members))
		for _, m := range g.Members {
			ids = append(ids, m.ID)
		}
		out = append(out, OffsetGroupView{Key: g.Key, Label: g.Key.Label(), Total: g.Total, MemberIDs: ids})
	}
	return out
}

// WalletSummary is one row of the wallet balance listing.
type WalletSummary struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	CurrencyCode string          `json:"currency_code"`
	DisplayUnit  string          `json:"display_unit"`
	Total        decimal.Decimal `json:"total"`
}

func parseStamp(s string) (float64, error) {
	switch len(s) {
	case 8:
		return dateserial.ParseDate(s)
	case 12:
		return dateserial.ParseDateTime(s)
	}
	return 0, fmt.Errorf("date %q must be YYYYMMDD or YYYYMMDDHHMM", s)
}
