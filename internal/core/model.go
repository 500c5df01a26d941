package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Customer is a billing party. TotalAmount, PaidAmount and RemainingAmount are
// derived from the customer's bills and are only ever written by the aggregator.
type Customer struct {
	ID              int             `json:"id"`
	Name            string          `json:"name"`
	Phone           string          `json:"phone"`
	Address         string          `json:"address"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	PaidAmount      decimal.Decimal `json:"paid_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	BillCount       int             `json:"bill_count"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Bill is an invoice header. CustomerID is a lookup key used for aggregation;
// CustomerName always carries the printable name, linked or not.
//
// TotalAmount, PaidAmount, ReturnedAmount, IsPaid and PaidDate are derived:
//
//	TotalAmount    = Σ item totals + PackingQty × PackingRate + ExtraAmount
//	ReturnedAmount = Σ returns
//	PaidAmount     = Σ positive payments
//	IsPaid         ⇔ PaidAmount ≥ NetTotal > 0
type Bill struct {
	ID             int             `json:"id"`
	BillNo         int64           `json:"bill_no"`
	CustomerID     *int            `json:"customer_id,omitempty"`
	CustomerName   string          `json:"customer_name"`
	Phone          string          `json:"phone"`
	Date           time.Time       `json:"date"`
	PackingQty     int             `json:"packing_qty"`
	PackingRate    decimal.Decimal `json:"packing_rate"`
	PackingReason  string          `json:"packing_reason"`
	ExtraReason    string          `json:"extra_reason"`
	ExtraAmount    decimal.Decimal `json:"extra_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	ReturnedAmount decimal.Decimal `json:"returned_amount"`
	IsPaid         bool            `json:"is_paid"`
	PaidDate       *time.Time      `json:"paid_date,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	Items          []LineItem      `json:"items,omitempty"`
}

// NetTotal is the gross total less confirmed returns, floored at zero.
func (b *Bill) NetTotal() decimal.Decimal {
	return NetTotal(b.TotalAmount, b.ReturnedAmount)
}

// Remaining is the net total less positive payments, floored at zero.
func (b *Bill) Remaining() decimal.Decimal {
	return Remaining(b.NetTotal(), b.PaidAmount)
}

// Payable is the gross total less positive payments, floored at zero. It caps
// new payments and is what MarkFullyPaid pays.
func (b *Bill) Payable() decimal.Decimal {
	return Payable(b.TotalAmount, b.PaidAmount)
}

// PackingTotal is the packing line amount.
func (b *Bill) PackingTotal() decimal.Decimal {
	return PackingTotal(b.PackingQty, b.PackingRate)
}

// Status reports the payment state machine position of the bill.
func (b *Bill) Status() BillStatus {
	return StatusOf(b.PaidAmount, b.NetTotal())
}

// LineItem is one billed line. Total is always Quantity × Rate.
type LineItem struct {
	ID          int             `json:"id"`
	BillID      int             `json:"bill_id"`
	Position    int             `json:"position"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	Rate        decimal.Decimal `json:"rate"`
	Total       decimal.Decimal `json:"total"`
}

// LineItemInput is a line supplied to SetLineItems.
type LineItemInput struct {
	Description string
	Quantity    int
	Rate        decimal.Decimal
}

// BillCharges are the header-level charges replaced together with the items.
type BillCharges struct {
	PackingQty    int
	PackingRate   decimal.Decimal
	PackingReason string
	ExtraReason   string
	ExtraAmount   decimal.Decimal
}

// EntryKind discriminates the rows of bill_entries.
type EntryKind string

const (
	EntryPayment EntryKind = "PAYMENT"
	EntryReturn  EntryKind = "RETURN"
)

// Payment is one row of the cash ledger. Amount is signed: payments are
// positive, returns appear as negative mirror entries with Kind = EntryReturn.
type Payment struct {
	ID        int             `json:"id"`
	BillID    int             `json:"bill_id"`
	Kind      EntryKind       `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	Date      time.Time       `json:"date"`
	Note      string          `json:"note"`
	CreatedAt time.Time       `json:"created_at"`
}

// BillReturn is a goods-return event against a bill. Amount is always positive.
type BillReturn struct {
	ID        int             `json:"id"`
	BillID    int             `json:"bill_id"`
	BillNo    int64           `json:"bill_no"`
	Amount    decimal.Decimal `json:"amount"`
	Note      string          `json:"note"`
	CreatedAt time.Time       `json:"created_at"`
}

// BillDetail is a bill with its full child history.
type BillDetail struct {
	Bill       Bill            `json:"bill"`
	NetTotal   decimal.Decimal `json:"net_total"`
	Remaining  decimal.Decimal `json:"remaining"`
	CashLedger []Payment       `json:"cash_ledger"`
	Returns    []BillReturn    `json:"returns"`
}

const (
	defaultPackingReason = "Packing"
	defaultReturnNote    = "Return"
	markedPaidNote       = "Marked paid"
)
