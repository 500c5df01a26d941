package core

import "github.com/shopspring/decimal"

// BillStatus is the payment state of a bill. It is never stored as a
// transition; it is re-derived from (paid, net) after every mutation.
type BillStatus string

const (
	StatusUnpaid BillStatus = "UNPAID"
	StatusPaid   BillStatus = "PAID"
)

// LineTotal is the extended amount of one line item.
func LineTotal(quantity int, rate decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(int64(quantity)).Mul(rate)
}

// PackingTotal is quantity × rate of the packing charge.
func PackingTotal(qty int, rate decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(int64(qty)).Mul(rate)
}

// BillGross is the bill total before returns.
func BillGross(itemTotals []decimal.Decimal, charges BillCharges) decimal.Decimal {
	total := decimal.Sum(decimal.Zero, itemTotals...)
	return total.Add(PackingTotal(charges.PackingQty, charges.PackingRate)).Add(charges.ExtraAmount)
}

// NetTotal is max(total − returned, 0).
func NetTotal(total, returned decimal.Decimal) decimal.Decimal {
	return floorZero(total.Sub(returned))
}

// Remaining is max(net − paid, 0).
func Remaining(net, paid decimal.Decimal) decimal.Decimal {
	return floorZero(net.Sub(paid))
}

// Payable is max(total − paid, 0): the most a new payment may add. Returns
// do not lower it, so a bill with returns can still be paid up to its gross total.
func Payable(total, paid decimal.Decimal) decimal.Decimal {
	return floorZero(total.Sub(paid))
}

// IsFullyPaid reports paid ≥ net > 0.
func IsFullyPaid(paid, net decimal.Decimal) bool {
	return net.IsPositive() && paid.GreaterThanOrEqual(net)
}

// StatusOf maps (paid, net) to a BillStatus.
func StatusOf(paid, net decimal.Decimal) BillStatus {
	if IsFullyPaid(paid, net) {
		return StatusPaid
	}
	return StatusUnpaid
}

// SumPositive adds the strictly positive amounts. Negative cash-ledger
// entries (return mirrors) do not count towards a bill's paid amount.
func SumPositive(amounts []decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, a := range amounts {
		if a.IsPositive() {
			sum = sum.Add(a)
		}
	}
	return sum
}

// CustomerTotals is the aggregate of a customer's bills.
type CustomerTotals struct {
	TotalAmount     decimal.Decimal `json:"total_amount"`
	PaidAmount      decimal.Decimal `json:"paid_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
}

// AggregateCustomer rolls bills up into customer totals. It carries no state
// between calls, so the result depends only on the current bills.
func AggregateCustomer(bills []Bill) CustomerTotals {
	total, paid := decimal.Zero, decimal.Zero
	for i := range bills {
		total = total.Add(bills[i].NetTotal())
		paid = paid.Add(bills[i].PaidAmount)
	}
	return CustomerTotals{
		TotalAmount:     total,
		PaidAmount:      paid,
		RemainingAmount: floorZero(total.Sub(paid)),
	}
}

// WholeCents reports whether d has no digits beyond the second decimal place.
// Money columns store two places, so finer amounts would be rounded on write.
func WholeCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
