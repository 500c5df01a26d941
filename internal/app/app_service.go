package app

import (
	"context"

	"billing-ledger/internal/core"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type appService struct {
	customers  core.CustomerService
	bills      core.BillService
	payments   core.PaymentService
	returns    core.ReturnService
	statements core.StatementService
	verifier   core.LedgerVerifier
	validate   *validator.Validate
}

// Services bundles the core services the application layer orchestrates.
type Services struct {
	Customers  core.CustomerService
	Bills      core.BillService
	Payments   core.PaymentService
	Returns    core.ReturnService
	Statements core.StatementService
	Verifier   core.LedgerVerifier
}

// NewServices wires every core service against one pool.
func NewServices(pool *pgxpool.Pool, log *zap.Logger) Services {
	return Services{
		Customers:  core.NewCustomerService(pool, log),
		Bills:      core.NewBillService(pool, log),
		Payments:   core.NewPaymentService(pool, log),
		Returns:    core.NewReturnService(pool, log),
		Statements: core.NewStatementService(pool),
		Verifier:   core.NewLedgerVerifier(pool, log),
	}
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(svc Services) ApplicationService {
	return &appService{
		customers:  svc.Customers,
		bills:      svc.Bills,
		payments:   svc.Payments,
		returns:    svc.Returns,
		statements: svc.Statements,
		verifier:   svc.Verifier,
		validate:   newValidator(),
	}
}

// ── Customers ─────────────────────────────────────────────────────────────────

func (s *appService) CreateCustomer(ctx context.Context, req CreateCustomerRequest) (*core.Customer, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	return s.customers.CreateCustomer(ctx, req.Name, req.Phone, req.Address)
}

func (s *appService) UpdateCustomer(ctx context.Context, req UpdateCustomerRequest) (*core.Customer, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	return s.customers.UpdateCustomer(ctx, req.ID, req.Name, req.Phone, req.Address)
}

func (s *appService) DeleteCustomer(ctx context.Context, customerID int) error {
	return s.customers.DeleteCustomer(ctx, customerID)
}

func (s *appService) ListCustomers(ctx context.Context, q string) (*CustomerListResult, error) {
	customers, err := s.customers.ListCustomers(ctx, q)
	if err != nil {
		return nil, err
	}
	if customers == nil {
		customers = []core.Customer{}
	}
	return &CustomerListResult{Customers: customers}, nil
}

func (s *appService) GetCustomer(ctx context.Context, customerID int) (*CustomerDetailResult, error) {
	c, err := s.customers.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	st, err := s.statements.Statement(ctx, core.StatementFilter{CustomerID: &customerID})
	if err != nil {
		return nil, err
	}
	return &CustomerDetailResult{Customer: c, Bills: st.Lines, Summary: st.Summary}, nil
}

func (s *appService) CustomerReturns(ctx context.Context, customerID int) (*core.CustomerReturns, error) {
	return s.returns.ListCustomerReturns(ctx, customerID)
}

// ── Bills ─────────────────────────────────────────────────────────────────────

func (s *appService) CreateBill(ctx context.Context, req CreateBillRequest) (*BillResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		return nil, err
	}
	b, err := s.bills.CreateBill(ctx, core.CreateBillInput{
		CustomerID:   req.CustomerID,
		CustomerName: req.CustomerName,
		Phone:        req.Phone,
		Date:         date,
		BillNo:       req.BillNo,
	})
	if err != nil {
		return nil, err
	}
	return newBillResult(b), nil
}

func (s *appService) ReplaceItems(ctx context.Context, req ReplaceItemsRequest) (*BillResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	items := make([]core.LineItemInput, len(req.Items))
	for i, it := range req.Items {
		items[i] = core.LineItemInput{Description: it.Description, Quantity: it.Quantity, Rate: it.Rate}
	}
	b, err := s.bills.SetLineItems(ctx, req.BillID, items, core.BillCharges{
		PackingQty:    req.PackingQty,
		PackingRate:   req.PackingRate,
		PackingReason: req.PackingReason,
		ExtraReason:   req.ExtraReason,
		ExtraAmount:   req.ExtraAmount,
	})
	if err != nil {
		return nil, err
	}
	return newBillResult(b), nil
}

func (s *appService) AssignCustomer(ctx context.Context, req AssignCustomerRequest) (*BillResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	b, err := s.bills.AssignCustomer(ctx, req.BillID, req.CustomerID)
	if err != nil {
		return nil, err
	}
	return newBillResult(b), nil
}

func (s *appService) GetBill(ctx context.Context, billID int) (*core.BillDetail, error) {
	return s.bills.GetBill(ctx, billID)
}

func (s *appService) DeleteBill(ctx context.Context, billID int) error {
	return s.bills.DeleteBill(ctx, billID)
}

func (s *appService) NextBillNo(ctx context.Context) (int64, error) {
	return s.bills.NextBillNo(ctx)
}

// ── Money ─────────────────────────────────────────────────────────────────────

func (s *appService) RecordPayment(ctx context.Context, req RecordPaymentRequest) (*PaymentResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		return nil, err
	}
	receipt, err := s.payments.RecordPayment(ctx, req.BillID, req.Amount, req.Note, date)
	if err != nil {
		return nil, err
	}
	return paymentResult(receipt), nil
}

func (s *appService) UpdatePayment(ctx context.Context, req UpdatePaymentRequest) (*PaymentResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	receipt, err := s.payments.UpdatePayment(ctx, req.PaymentID, req.Amount, req.Note)
	if err != nil {
		return nil, err
	}
	return paymentResult(receipt), nil
}

func (s *appService) DeletePayment(ctx context.Context, paymentID int) (*BillResult, error) {
	b, err := s.payments.DeletePayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return newBillResult(b), nil
}

func (s *appService) RecordReturn(ctx context.Context, req RecordReturnRequest) (*ReturnResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	receipt, err := s.returns.RecordReturn(ctx, req.BillID, req.Amount, req.Note)
	if err != nil {
		return nil, err
	}
	return &ReturnResult{Return: receipt.Return, Bill: newBillResult(receipt.Bill)}, nil
}

func (s *appService) DeleteReturn(ctx context.Context, returnID int) (*BillResult, error) {
	b, err := s.returns.DeleteReturn(ctx, returnID)
	if err != nil {
		return nil, err
	}
	return newBillResult(b), nil
}

func (s *appService) MarkPaid(ctx context.Context, billID int) (*PaymentResult, error) {
	receipt, err := s.payments.MarkFullyPaid(ctx, billID)
	if err != nil {
		return nil, err
	}
	return paymentResult(receipt), nil
}

func paymentResult(r *core.PaymentReceipt) *PaymentResult {
	return &PaymentResult{Payment: r.Payment, Bill: newBillResult(r.Bill), AlreadyPaid: r.AlreadyPaid}
}

// ── Reporting ─────────────────────────────────────────────────────────────────

func (s *appService) Statement(ctx context.Context, req StatementRequest) (*core.Statement, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	from, err := parseOptionalDate("from", req.From)
	if err != nil {
		return nil, err
	}
	to, err := parseOptionalDate("to", req.To)
	if err != nil {
		return nil, err
	}
	return s.statements.Statement(ctx, core.StatementFilter{
		CustomerName: req.CustomerName,
		CustomerID:   req.CustomerID,
		From:         from,
		To:           to,
	})
}

func (s *appService) VerifyLedger(ctx context.Context, repair bool) (*core.VerifyReport, error) {
	return s.verifier.Verify(ctx, repair)
}
