package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, got.Equal(dec(want)), "want %s, got %s", want, got)
}

func serial(v float64) *DateSerial {
	d := DateSerial(v)
	return &d
}

func str(s string) *string {
	return &s
}

func record(seq int64, key AttributeKey, amount, remaining string) MovementRecord {
	return MovementRecord{
		ID:        uuid.New(),
		Seq:       seq,
		Amount:    dec(amount),
		Remaining: dec(remaining),
		Key:       key,
	}
}

func TestAttributeKey_Equal(t *testing.T) {
	coupon := NewAttributeKey(nil, str("coupon"))
	expiring := NewAttributeKey(serial(46022), nil)
	both := NewAttributeKey(serial(46022), str("coupon"))

	tests := []struct {
		name string
		a, b AttributeKey
		want bool
	}{
		{"ordinary vs ordinary", OrdinaryKey(), OrdinaryKey(), true},
		{"ordinary vs coupon", OrdinaryKey(), coupon, false},
		{"same restriction, distinct pointers", coupon, NewAttributeKey(nil, str("coupon")), true},
		{"restriction differs", coupon, NewAttributeKey(nil, str("points")), false},
		{"nil expiry vs set expiry", coupon, both, false},
		{"same expiry", expiring, NewAttributeKey(serial(46022), nil), true},
		{"expiry differs", expiring, NewAttributeKey(serial(46023), nil), false},
		{"empty restriction is not nil", OrdinaryKey(), NewAttributeKey(nil, str("")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Equal(tt.b))
			assert.Equal(t, tt.want, tt.b.Equal(tt.a))
		})
	}
}

func TestAttributeKey_NewCopiesPointers(t *testing.T) {
	r := "coupon"
	k := NewAttributeKey(nil, &r)
	r = "changed"
	assert.Equal(t, "coupon", *k.Restriction)
}

func TestAttributeKey_Validate(t *testing.T) {
	tests := []struct {
		name    string
		key     AttributeKey
		wantErr error
	}{
		{"ordinary", OrdinaryKey(), nil},
		{"valid both", NewAttributeKey(serial(46022), str("coupon")), nil},
		{"zero expiry", NewAttributeKey(serial(0), nil), ErrInvalidExpiry},
		{"negative expiry", NewAttributeKey(serial(-1), nil), ErrInvalidExpiry},
		{"blank restriction", NewAttributeKey(nil, str("   ")), ErrInvalidRestriction},
		{"control char", NewAttributeKey(nil, str("a\nb")), ErrInvalidRestriction},
		{"too long", NewAttributeKey(nil, str(string(make([]byte, 65)))), ErrInvalidRestriction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantErr, tt.key.Validate())
		})
	}
}

func TestAttributeKey_Label(t *testing.T) {
	assert.Equal(t, "[ordinary]", OrdinaryKey().Label())
	assert.Equal(t, "[restriction: coupon]", NewAttributeKey(nil, str("coupon")).Label())
	// 46022 = 2025-12-31
	assert.Equal(t, "[expires 2025-12-31]", NewAttributeKey(serial(46022), nil).Label())
	assert.Equal(t, "[expires 2025-12-31, restriction: coupon]", NewAttributeKey(serial(46022), str("coupon")).Label())
}

func TestMovementRecord_State(t *testing.T) {
	open := record(1, OrdinaryKey(), "100", "40")
	settled := record(2, OrdinaryKey(), "100", "0")

	assert.Equal(t, MovementStateOpen, open.State())
	assert.Equal(t, MovementStateSettled, settled.State())
}

func TestMovementRecord_IsOffsettable(t *testing.T) {
	coupon := NewAttributeKey(nil, str("coupon"))

	tests := []struct {
		name string
		rec  MovementRecord
		sign int
		want bool
	}{
		{"positive credit for payment", record(1, coupon, "1000", "1000"), 1, true},
		{"positive credit for deposit", record(1, coupon, "1000", "1000"), -1, false},
		{"settled", record(1, coupon, "1000", "0"), 1, false},
		{"ordinary never", record(1, OrdinaryKey(), "1000", "1000"), 1, false},
		{"zero sign", record(1, coupon, "1000", "1000"), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rec.IsOffsettable(tt.sign))
		})
	}
}

func TestGroupByAttribute(t *testing.T) {
	coupon := NewAttributeKey(nil, str("coupon"))
	expiring := NewAttributeKey(serial(46022), nil)

	r1 := record(5, expiring, "300", "300")
	r2 := record(2, coupon, "1000", "700")
	r3 := record(9, NewAttributeKey(nil, str("coupon")), "200", "200")
	r4 := record(7, expiring, "50", "50")
	input := []MovementRecord{r1, r2, r3, r4}

	groups := GroupByAttribute(input)
	require.Len(t, groups, 2)

	// coupon's oldest member (seq 2) precedes expiring's (seq 5)
	assert.True(t, groups[0].Key.Equal(coupon))
	assertDec(t, "900", groups[0].Total)
	require.Len(t, groups[0].Members, 2)
	assert.Equal(t, int64(2), groups[0].Members[0].Seq)
	assert.Equal(t, int64(9), groups[0].Members[1].Seq)

	assert.True(t, groups[1].Key.Equal(expiring))
	assertDec(t, "350", groups[1].Total)
	assert.Equal(t, int64(5), groups[1].Members[0].Seq)
	assert.Equal(t, int64(7), groups[1].Members[1].Seq)

	// input order untouched
	assert.Equal(t, int64(5), input[0].Seq)

	g, ok := groups.Find(NewAttributeKey(serial(46022), nil))
	require.True(t, ok)
	assertDec(t, "350", g.Total)

	_, ok = groups.Find(OrdinaryKey())
	assert.False(t, ok)
}

func TestGroupByAttribute_TotalMatchesSum(t *testing.T) {
	coupon := NewAttributeKey(nil, str("coupon"))
	records := []MovementRecord{
		record(1, coupon, "10.25", "10.25"),
		record(2, coupon, "0.10", "0.10"),
		record(3, coupon, "0.20", "0.20"),
	}

	groups := GroupByAttribute(records)
	require.Len(t, groups, 1)
	assertDec(t, "10.55", groups[0].Total)
}

func TestGroupByAttribute_Empty(t *testing.T) {
	groups := GroupByAttribute(nil)
	assert.NotNil(t, groups)
	assert.Empty(t, groups)
}

func TestReplay(t *testing.T) {
	coupon := NewAttributeKey(nil, str("coupon"))
	credit := record(1, coupon, "1000", "0")
	offset := record(3, coupon, "-600", "400")
	ordinary := record(2, OrdinaryKey(), "5000", "0")
	ordinary2 := record(4, OrdinaryKey(), "-2000", "0")

	totals := Replay([]MovementRecord{credit, ordinary, offset, ordinary2})
	require.Len(t, totals, 2)

	assert.True(t, totals[0].Key.Equal(coupon))
	assertDec(t, "400", totals[0].Amount)
	assertDec(t, "400", totals[0].Remaining)
	assert.True(t, totals[0].Balanced())
	amount, origin := totals[0].ExpectedSnapshot()
	assertDec(t, "400", amount)
	require.NotNil(t, origin)
	assert.Equal(t, offset.ID, *origin)

	assert.True(t, totals[1].Key.IsOrdinary())
	amount, origin = totals[1].ExpectedSnapshot()
	assertDec(t, "3000", amount)
	assert.Nil(t, origin)
	assert.True(t, totals[1].Balanced())
}

func TestReplay_DetectsUnbalancedKey(t *testing.T) {
	coupon := NewAttributeKey(nil, str("coupon"))
	totals := Replay([]MovementRecord{record(1, coupon, "1000", "900")})

	require.Len(t, totals, 1)
	assert.False(t, totals[0].Balanced())
}

func TestNewWalletBalance(t *testing.T) {
	w := Wallet{ID: uuid.New(), Name: "Main", CurrencyCode: "JPY", IsActive: true}
	origin := uuid.New()
	snapshots := []BalanceSnapshot{
		{WalletID: w.ID, Key: OrdinaryKey(), CurrentAmount: dec("3000")},
		{WalletID: w.ID, Key: NewAttributeKey(nil, str("coupon")), CurrentAmount: dec("400"), OriginMovementID: &origin},
		{WalletID: w.ID, Key: NewAttributeKey(serial(46022), nil), CurrentAmount: dec("0")},
	}

	b := NewWalletBalance(w, snapshots)

	assertDec(t, "3000", b.Ordinary)
	assertDec(t, "3400", b.Total)
	require.Len(t, b.Attributed, 1)
	assert.Equal(t, "[restriction: coupon]", b.Attributed[0].Label)
	assertDec(t, "400", b.Attributed[0].Outstanding)
	assert.Equal(t, &origin, b.Attributed[0].OriginMovementID)
}

func TestReconcileReport_Clean(t *testing.T) {
	r := &ReconcileReport{MovementTotal: dec("10"), SnapshotTotal: dec("10.0")}
	assert.True(t, r.Clean())

	r.Drifts = append(r.Drifts, SnapshotDrift{Key: OrdinaryKey(), Expected: dec("1")})
	assert.False(t, r.Clean())
}
