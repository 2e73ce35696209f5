package domain

import (
	"errors"
	"math"
	"strings"
	"unicode"

	"wallet-ledger/pkg/dateserial"
)

// DateSerial is a fractional day count since 1899-12-30.
type DateSerial float64

// MaxRestrictionLength bounds usage restriction labels.
const MaxRestrictionLength = 64

var (
	ErrInvalidExpiry      = errors.New("expiry must be a finite positive date serial")
	ErrInvalidRestriction = errors.New("usage restriction must be 1-64 printable characters")
)

// AttributeKey identifies an attribute group. The zero value (no expiry, no
// restriction) is the ordinary key. Equality is exact on both components.
type AttributeKey struct {
	ExpiresAt   *DateSerial `json:"expires_at,omitempty"`
	Restriction *string     `json:"restriction,omitempty"`
}

// OrdinaryKey returns the key for unrestricted money.
func OrdinaryKey() AttributeKey {
	return AttributeKey{}
}

// NewAttributeKey copies the given optionals into a fresh key.
func NewAttributeKey(expiresAt *DateSerial, restriction *string) AttributeKey {
	var k AttributeKey
	if expiresAt != nil {
		e := *expiresAt
		k.ExpiresAt = &e
	}
	if restriction != nil {
		r := *restriction
		k.Restriction = &r
	}
	return k
}

func (k AttributeKey) IsOrdinary() bool {
	return k.ExpiresAt == nil && k.Restriction == nil
}

// Equal reports whether both keys name the same group. nil only equals nil.
func (k AttributeKey) Equal(o AttributeKey) bool {
	return k.ID() == o.ID()
}

// Validate rejects keys that cannot be stored.
func (k AttributeKey) Validate() error {
	if k.ExpiresAt != nil {
		e := float64(*k.ExpiresAt)
		if math.IsNaN(e) || math.IsInf(e, 0) || e <= 0 {
			return ErrInvalidExpiry
		}
	}
	if k.Restriction != nil {
		r := *k.Restriction
		if strings.TrimSpace(r) == "" || len([]rune(r)) > MaxRestrictionLength {
			return ErrInvalidRestriction
		}
		for _, c := range r {
			if !unicode.IsPrint(c) {
				return ErrInvalidRestriction
			}
		}
	}
	return nil
}

// Label renders the key for display, e.g. "[expires 2025-12-31, restriction: coupon]".
func (k AttributeKey) Label() string {
	if k.IsOrdinary() {
		return "[ordinary]"
	}
	parts := make([]string, 0, 2)
	if k.ExpiresAt != nil {
		parts = append(parts, "expires "+dateserial.Format(float64(*k.ExpiresAt), "2006-01-02"))
	}
	if k.Restriction != nil {
		parts = append(parts, "restriction: "+*k.Restriction)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (k AttributeKey) String() string {
	return k.Label()
}

// KeyID is the comparable form of an AttributeKey, usable as a map key.
type KeyID struct {
	hasExpiry      bool
	expiry         float64
	hasRestriction bool
	restriction    string
}

// ID returns the comparable identity of the key.
func (k AttributeKey) ID() KeyID {
	var id KeyID
	if k.ExpiresAt != nil {
		id.hasExpiry = true
		id.expiry = float64(*k.ExpiresAt)
	}
	if k.Restriction != nil {
		id.hasRestriction = true
		id.restriction = *k.Restriction
	}
	return id
}
