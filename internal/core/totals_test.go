package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLineTotal(t *testing.T) {
	assert.True(t, LineTotal(3, d("120.50")).Equal(d("361.5")))
	assert.True(t, LineTotal(1, d("0")).IsZero())
	assert.True(t, LineTotal(7, d("0.01")).Equal(d("0.07")))
}

func TestBillGross(t *testing.T) {
	tests := []struct {
		name    string
		items   []string
		charges BillCharges
		want    string
	}{
		{"empty bill", nil, BillCharges{}, "0"},
		{"items only", []string{"100", "250.25"}, BillCharges{}, "350.25"},
		{"packing and extra", []string{"100"}, BillCharges{PackingQty: 3, PackingRate: d("12.5"), ExtraAmount: d("20")}, "157.5"},
		{"charges without items", nil, BillCharges{PackingQty: 1, PackingRate: d("10")}, "10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var totals []decimal.Decimal
			for _, s := range tt.items {
				totals = append(totals, d(s))
			}
			got := BillGross(totals, tt.charges)
			assert.True(t, got.Equal(d(tt.want)), "got %s, want %s", got, tt.want)
		})
	}
}

func TestNetAndRemainingClampAtZero(t *testing.T) {
	tests := []struct {
		total, returned, paid string
		net, remaining        string
	}{
		{"1000", "0", "0", "1000", "1000"},
		{"1000", "200", "300", "800", "500"},
		{"500", "200", "500", "300", "0"},
		{"100", "150", "0", "0", "0"},
		{"100", "0", "120", "100", "0"},
	}
	for _, tt := range tests {
		net := NetTotal(d(tt.total), d(tt.returned))
		assert.True(t, net.Equal(d(tt.net)), "net(%s, %s) = %s", tt.total, tt.returned, net)
		rem := Remaining(net, d(tt.paid))
		assert.True(t, rem.Equal(d(tt.remaining)), "remaining(%s, %s) = %s", net, tt.paid, rem)
	}
}

func TestIsFullyPaid(t *testing.T) {
	assert.True(t, IsFullyPaid(d("1000"), d("1000")))
	assert.True(t, IsFullyPaid(d("500"), d("300")))
	assert.False(t, IsFullyPaid(d("999.99"), d("1000")))
	// A zero net total is never "paid".
	assert.False(t, IsFullyPaid(d("0"), d("0")))
	assert.False(t, IsFullyPaid(d("10"), d("0")))

	assert.Equal(t, StatusPaid, StatusOf(d("10"), d("10")))
	assert.Equal(t, StatusUnpaid, StatusOf(d("0"), d("10")))
}

func TestSumPositiveIgnoresReturnMirrors(t *testing.T) {
	got := SumPositive([]decimal.Decimal{d("500"), d("-200"), d("50")})
	assert.True(t, got.Equal(d("550")))
	assert.True(t, SumPositive(nil).IsZero())
}

func TestBillDerivedAccessors(t *testing.T) {
	b := Bill{
		TotalAmount:    d("500"),
		ReturnedAmount: d("200"),
		PaidAmount:     d("100"),
		PackingQty:     2,
		PackingRate:    d("7.5"),
	}
	assert.True(t, b.NetTotal().Equal(d("300")))
	assert.True(t, b.Remaining().Equal(d("200")))
	assert.True(t, b.PackingTotal().Equal(d("15")))
	assert.Equal(t, StatusUnpaid, b.Status())
}

func TestAggregateCustomer(t *testing.T) {
	bills := []Bill{
		{TotalAmount: d("1000"), PaidAmount: d("400")},
		{TotalAmount: d("500"), ReturnedAmount: d("100"), PaidAmount: d("0")},
		{TotalAmount: d("100"), ReturnedAmount: d("150"), PaidAmount: d("0")},
	}
	got := AggregateCustomer(bills)
	assert.True(t, got.TotalAmount.Equal(d("1400")))
	assert.True(t, got.PaidAmount.Equal(d("400")))
	assert.True(t, got.RemainingAmount.Equal(d("1000")))

	// Order of bills does not matter.
	reversed := []Bill{bills[2], bills[1], bills[0]}
	assert.Equal(t, got.TotalAmount.String(), AggregateCustomer(reversed).TotalAmount.String())

	empty := AggregateCustomer(nil)
	assert.True(t, empty.TotalAmount.IsZero())
	assert.True(t, empty.RemainingAmount.IsZero())

	overpaid := AggregateCustomer([]Bill{{TotalAmount: d("100"), ReturnedAmount: d("60"), PaidAmount: d("100")}})
	assert.True(t, overpaid.RemainingAmount.IsZero())
}

func TestPayableIgnoresReturns(t *testing.T) {
	b := &Bill{TotalAmount: d("500"), ReturnedAmount: d("200"), PaidAmount: d("300")}
	assert.True(t, b.Remaining().IsZero())
	assert.True(t, b.Payable().Equal(d("200")))
	assert.NoError(t, checkOverpayment(d("200"), b.Payable()))
	assert.ErrorIs(t, checkOverpayment(d("200.01"), b.Payable()), ErrOverpayment)

	assert.True(t, Payable(d("100"), d("120")).IsZero())
}
