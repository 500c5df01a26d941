package app

import (
	"context"

	"billing-ledger/internal/core"
)

// ApplicationService is the single interface all UI adapters (CLI, Web) call.
// It decouples presentation from business logic. Implementations must contain
// no fmt.Println, no ANSI codes, and no display logic of any kind.
type ApplicationService interface {
	// ── Customers ──

	// CreateCustomer registers a customer. Names are unique.
	CreateCustomer(ctx context.Context, req CreateCustomerRequest) (*core.Customer, error)

	// UpdateCustomer edits master data and rewrites the name/phone on linked bills.
	UpdateCustomer(ctx context.Context, req UpdateCustomerRequest) (*core.Customer, error)

	// DeleteCustomer removes a customer. Its bills are kept and unlinked.
	DeleteCustomer(ctx context.Context, customerID int) error

	// ListCustomers returns customers matching q on name or phone (all when empty).
	ListCustomers(ctx context.Context, q string) (*CustomerListResult, error)

	// GetCustomer returns the customer with its bills and a summary row.
	GetCustomer(ctx context.Context, customerID int) (*CustomerDetailResult, error)

	// CustomerReturns lists every return across the customer's bills.
	CustomerReturns(ctx context.Context, customerID int) (*core.CustomerReturns, error)

	// ── Bills ──

	// CreateBill opens a bill with an auto-assigned (or explicit) bill number and a zero total.
	CreateBill(ctx context.Context, req CreateBillRequest) (*BillResult, error)

	// ReplaceItems swaps the bill's line items and header charges in one step.
	ReplaceItems(ctx context.Context, req ReplaceItemsRequest) (*BillResult, error)

	// AssignCustomer moves a bill to another customer, or unlinks it when CustomerID is nil.
	AssignCustomer(ctx context.Context, req AssignCustomerRequest) (*BillResult, error)

	// GetBill returns the bill with items, cash ledger and returns.
	GetBill(ctx context.Context, billID int) (*core.BillDetail, error)

	// DeleteBill removes a bill and everything recorded against it.
	DeleteBill(ctx context.Context, billID int) error

	// NextBillNo previews the number the next bill will get.
	NextBillNo(ctx context.Context) (int64, error)

	// ── Money ──

	// RecordPayment records money received. Overpayment is rejected.
	RecordPayment(ctx context.Context, req RecordPaymentRequest) (*PaymentResult, error)

	// UpdatePayment changes a payment's amount and note.
	UpdatePayment(ctx context.Context, req UpdatePaymentRequest) (*PaymentResult, error)

	// DeletePayment removes a payment and returns the recomputed bill.
	DeletePayment(ctx context.Context, paymentID int) (*BillResult, error)

	// RecordReturn records goods returned against a bill.
	RecordReturn(ctx context.Context, req RecordReturnRequest) (*ReturnResult, error)

	// DeleteReturn removes a return and returns the recomputed bill.
	DeleteReturn(ctx context.Context, returnID int) (*BillResult, error)

	// MarkPaid pays the bill's remaining balance, or reports that it was already paid.
	MarkPaid(ctx context.Context, billID int) (*PaymentResult, error)

	// ── Reporting ──

	// Statement lists bills matching the filter with a summary.
	Statement(ctx context.Context, req StatementRequest) (*core.Statement, error)

	// VerifyLedger recomputes every derived field and reports (optionally repairs) drift.
	VerifyLedger(ctx context.Context, repair bool) (*core.VerifyReport, error)
}
