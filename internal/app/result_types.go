package app

import (
	"billing-ledger/internal/core"

	"github.com/shopspring/decimal"
)

// CustomerListResult is returned by ListCustomers.
type CustomerListResult struct {
	Customers []core.Customer `json:"customers"`
}

// CustomerDetailResult is returned by GetCustomer.
type CustomerDetailResult struct {
	Customer *core.Customer        `json:"customer"`
	Bills    []core.StatementLine  `json:"bills"`
	Summary  core.StatementSummary `json:"summary"`
}

// BillResult is a bill with the amounts a caller usually needs next to it.
type BillResult struct {
	Bill      *core.Bill      `json:"bill"`
	NetTotal  decimal.Decimal `json:"net_total"`
	Remaining decimal.Decimal `json:"remaining"`
	Status    core.BillStatus `json:"status"`
}

func newBillResult(b *core.Bill) *BillResult {
	return &BillResult{
		Bill:      b,
		NetTotal:  b.NetTotal(),
		Remaining: b.Remaining(),
		Status:    b.Status(),
	}
}

// PaymentResult is returned by payment operations.
type PaymentResult struct {
	Payment     *core.Payment `json:"payment,omitempty"`
	Bill        *BillResult   `json:"bill"`
	AlreadyPaid bool          `json:"already_paid"`
}

// ReturnResult is returned by RecordReturn.
type ReturnResult struct {
	Return *core.BillReturn `json:"return"`
	Bill   *BillResult      `json:"bill"`
}
