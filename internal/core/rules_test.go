package core

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsFutureDate(t *testing.T) {
	now := time.Date(2024, 3, 15, 23, 30, 0, 0, time.UTC)

	assert.False(t, isFutureDate(now, now))
	assert.False(t, isFutureDate(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), now))
	assert.False(t, isFutureDate(time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), now))
	assert.True(t, isFutureDate(time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC), now))
}

func TestResolveBillDate(t *testing.T) {
	now := time.Date(2024, 3, 15, 18, 5, 0, 0, time.UTC)

	got, err := resolveBillDate("date", time.Time{}, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), got)

	got, err = resolveBillDate("date", time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), got)

	_, err = resolveBillDate("date", now.AddDate(0, 0, 1), now)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestValidateLineItems(t *testing.T) {
	ok := []LineItemInput{{Description: "A", Quantity: 1, Rate: d("0")}}
	assert.NoError(t, validateLineItems(ok, BillCharges{}))
	assert.NoError(t, validateLineItems(nil, BillCharges{PackingQty: 0}))

	tests := []struct {
		name    string
		items   []LineItemInput
		charges BillCharges
		field   string
	}{
		{"zero quantity", []LineItemInput{{Quantity: 0, Rate: d("1")}}, BillCharges{}, "items[0].quantity"},
		{"negative quantity", []LineItemInput{ok[0], {Quantity: -2, Rate: d("1")}}, BillCharges{}, "items[1].quantity"},
		{"negative rate", []LineItemInput{{Quantity: 1, Rate: d("-0.01")}}, BillCharges{}, "items[0].rate"},
		{"negative packing qty", nil, BillCharges{PackingQty: -1}, "packing_qty"},
		{"negative packing rate", nil, BillCharges{PackingRate: d("-1")}, "packing_rate"},
		{"negative extra", nil, BillCharges{ExtraAmount: d("-5")}, "extra_amount"},
		{"sub-cent rate", []LineItemInput{{Quantity: 3, Rate: d("0.335")}}, BillCharges{}, "items[0].rate"},
		{"sub-cent packing rate", nil, BillCharges{PackingQty: 3, PackingRate: d("0.333")}, "packing_rate"},
		{"sub-cent extra", nil, BillCharges{ExtraAmount: d("1.005")}, "extra_amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateLineItems(tt.items, tt.charges)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestValidatePaymentAmount(t *testing.T) {
	assert.NoError(t, validatePaymentAmount(d("12.50")))
	assert.NoError(t, validatePaymentAmount(d("12.500")), "trailing zeros are whole cents")

	for _, raw := range []string{"0", "-1", "0.004", "10.255"} {
		err := validatePaymentAmount(d(raw))
		var ve *ValidationError
		require.True(t, errors.As(err, &ve), "%s: expected ValidationError, got %v", raw, err)
		assert.Equal(t, "amount", ve.Field, raw)
	}
}

func TestWholeCents(t *testing.T) {
	assert.True(t, WholeCents(d("10")))
	assert.True(t, WholeCents(d("10.5")))
	assert.True(t, WholeCents(d("10.50")))
	assert.True(t, WholeCents(d("10.5000")))
	assert.False(t, WholeCents(d("10.505")))
	assert.False(t, WholeCents(d("0.001")))
}

func TestDeriveBill(t *testing.T) {
	stored := Bill{
		ID:          1,
		PackingQty:  2,
		PackingRate: d("5"),
		ExtraAmount: d("10"),
	}
	src := billSources{
		itemTotals: []decimal.Decimal{d("400"), d("80")},
		returns:    []decimal.Decimal{d("100")},
		cash:       []decimal.Decimal{d("300"), d("-100"), d("100")},
	}

	got := deriveBill(stored, src)
	assert.True(t, got.TotalAmount.Equal(d("500")))
	assert.True(t, got.ReturnedAmount.Equal(d("100")))
	assert.True(t, got.PaidAmount.Equal(d("400")))
	assert.True(t, got.IsPaid)

	// The stored bill is untouched.
	assert.True(t, stored.TotalAmount.IsZero())
}

func TestBillDrift(t *testing.T) {
	paidAt := time.Now()
	expected := Bill{ID: 4, TotalAmount: d("100"), PaidAmount: d("100"), ReturnedAmount: d("0"), IsPaid: true}

	clean := expected
	clean.PaidDate = &paidAt
	assert.Empty(t, billDrift(clean, expected))

	noDate := expected
	issues := billDrift(noDate, expected)
	require.Len(t, issues, 1)
	assert.Equal(t, "paid_date does not match is_paid", issues[0].Reason)

	stale := clean
	stale.TotalAmount = d("90")
	stale.IsPaid = false
	issues = billDrift(stale, expected)
	require.Len(t, issues, 2)
	assert.Equal(t, "total_amount is 90.00, expected 100.00", issues[0].Reason)
	assert.Equal(t, "is_paid is false, expected true", issues[1].Reason)
	assert.Equal(t, 4, issues[0].ID)
}

func TestCustomerDrift(t *testing.T) {
	want := CustomerTotals{TotalAmount: d("10"), PaidAmount: d("4"), RemainingAmount: d("6")}
	assert.Empty(t, customerDrift(1, want, want))

	got := want
	got.RemainingAmount = d("7")
	issues := customerDrift(1, got, want)
	require.Len(t, issues, 1)
	assert.Equal(t, "customer", issues[0].Entity)
}

func TestContainsPattern(t *testing.T) {
	assert.Equal(t, "%ravi%", containsPattern("ravi"))
	assert.Equal(t, `%100\%\_off%`, containsPattern("100%_off"))
	assert.Equal(t, `%a\\b%`, containsPattern(`a\b`))
}

func TestReturnLabel(t *testing.T) {
	assert.Equal(t, "Return - Bill #12 (torn bag)", ReturnLabel(12, "torn bag"))
}

func TestSummarize(t *testing.T) {
	bills := []Bill{
		{ID: 1, TotalAmount: d("1000"), PaidAmount: d("300"), ReturnedAmount: d("0")},
		{ID: 2, TotalAmount: d("200"), PaidAmount: d("200"), ReturnedAmount: d("50")},
	}
	var lines []StatementLine
	for i := range bills {
		lines = append(lines, NewStatementLine(&bills[i]))
	}
	assert.True(t, lines[1].Net.Equal(d("150")))
	assert.True(t, lines[1].Remaining.IsZero())

	s := Summarize(lines)
	assert.Equal(t, 2, s.BillCount)
	assert.True(t, s.TotalAmount.Equal(d("1200")))
	assert.True(t, s.TotalNet.Equal(d("1150")))
	assert.True(t, s.TotalPaid.Equal(d("500")))
	assert.True(t, s.TotalRemaining.Equal(d("700")))
	// The overpaid second bill lowers the balance but not the per-bill remaining sum.
	assert.True(t, s.Balance.Equal(d("650")))

	empty := Summarize(nil)
	assert.True(t, empty.Balance.IsZero())
}
