package core_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"billing-ledger/internal/core"
	"billing-ledger/internal/db"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	_ = godotenv.Load("../../.env")

	// Use a dedicated TEST database to avoid wiping the live app database.
	// Set TEST_DATABASE_URL in your .env or environment to run integration tests.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test to protect live database")
	}

	if err := db.Migrate(dbURL); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE bill_entries, bill_items, bills, bill_sequences, customers RESTART IDENTITY CASCADE;
	`)
	if err != nil {
		t.Fatalf("Failed to clean test database: %v", err)
	}

	return pool
}

type services struct {
	pool       *pgxpool.Pool
	customers  core.CustomerService
	bills      core.BillService
	payments   core.PaymentService
	returns    core.ReturnService
	statements core.StatementService
	verifier   core.LedgerVerifier
}

func newServices(t *testing.T) *services {
	pool := setupTestDB(t)
	t.Cleanup(pool.Close)
	log := zaptest.NewLogger(t)
	return &services{
		pool:       pool,
		customers:  core.NewCustomerService(pool, log),
		bills:      core.NewBillService(pool, log),
		payments:   core.NewPaymentService(pool, log),
		returns:    core.NewReturnService(pool, log),
		statements: core.NewStatementService(pool),
		verifier:   core.NewLedgerVerifier(pool, log),
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertAmount(t *testing.T, field string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Errorf("%s: expected %s, got %s", field, want, got.StringFixed(2))
	}
}

// newBill creates an unlinked bill priced at total via a single line item.
func newBill(t *testing.T, s *services, name, total string) *core.Bill {
	t.Helper()
	ctx := context.Background()
	b, err := s.bills.CreateBill(ctx, core.CreateBillInput{CustomerName: name})
	if err != nil {
		t.Fatalf("CreateBill failed: %v", err)
	}
	if total == "" {
		return b
	}
	b, err = s.bills.SetLineItems(ctx, b.ID, []core.LineItemInput{
		{Description: "Goods", Quantity: 1, Rate: dec(total)},
	}, core.BillCharges{})
	if err != nil {
		t.Fatalf("SetLineItems failed: %v", err)
	}
	return b
}

func countRows(t *testing.T, pool *pgxpool.Pool, sql string, args ...any) int {
	t.Helper()
	var n int
	if err := pool.QueryRow(context.Background(), sql, args...).Scan(&n); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	return n
}

func TestBill_TotalIncludesItemsPackingAndExtra(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	b := newBill(t, s, "Walk-in", "")

	b, err := s.bills.SetLineItems(ctx, b.ID, []core.LineItemInput{
		{Description: "Rice", Quantity: 3, Rate: dec("120.50")},
		{Description: "Oil", Quantity: 2, Rate: dec("99.75")},
	}, core.BillCharges{
		PackingQty:  2,
		PackingRate: dec("15"),
		ExtraReason: "Delivery",
		ExtraAmount: dec("40"),
	})
	if err != nil {
		t.Fatalf("SetLineItems failed: %v", err)
	}

	// 361.50 + 199.50 + 30 + 40
	assertAmount(t, "total_amount", b.TotalAmount, "631.00")
	if b.PackingReason != "Packing" {
		t.Errorf("expected default packing reason, got %q", b.PackingReason)
	}
	if len(b.Items) != 2 || b.Items[0].Position != 1 || b.Items[1].Description != "Oil" {
		t.Errorf("unexpected items: %+v", b.Items)
	}
	assertAmount(t, "item total", b.Items[0].Total, "361.50")
}

func TestBill_PayInFullThenOverpay(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	b := newBill(t, s, "Walk-in", "")

	b, err := s.bills.SetLineItems(ctx, b.ID, []core.LineItemInput{
		{Description: "Cement", Quantity: 10, Rate: dec("100")},
	}, core.BillCharges{})
	if err != nil {
		t.Fatalf("SetLineItems failed: %v", err)
	}
	assertAmount(t, "total_amount", b.TotalAmount, "1000")

	receipt, err := s.payments.RecordPayment(ctx, b.ID, dec("1000"), "cash", time.Time{})
	if err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}
	if !receipt.Bill.IsPaid || receipt.Bill.PaidDate == nil {
		t.Errorf("expected bill to be paid with a paid date, got is_paid=%v paid_date=%v", receipt.Bill.IsPaid, receipt.Bill.PaidDate)
	}
	assertAmount(t, "remaining", receipt.Bill.Remaining(), "0")

	_, err = s.payments.RecordPayment(ctx, b.ID, dec("1"), "extra", time.Time{})
	if !errors.Is(err, core.ErrOverpayment) || !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected overpayment validation error, got %v", err)
	}

	detail, err := s.bills.GetBill(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetBill failed: %v", err)
	}
	assertAmount(t, "paid_amount", detail.Bill.PaidAmount, "1000")
	if n := len(detail.CashLedger); n != 1 {
		t.Errorf("expected 1 cash entry after rejected payment, got %d", n)
	}
}

func TestBill_ReturnAfterFullPayment(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	b := newBill(t, s, "Walk-in", "500")

	if _, err := s.payments.RecordPayment(ctx, b.ID, dec("500"), "", time.Time{}); err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}
	receipt, err := s.returns.RecordReturn(ctx, b.ID, dec("200"), "")
	if err != nil {
		t.Fatalf("RecordReturn failed: %v", err)
	}

	got := receipt.Bill
	assertAmount(t, "returned_amount", got.ReturnedAmount, "200")
	assertAmount(t, "net_total", got.NetTotal(), "300")
	assertAmount(t, "paid_amount", got.PaidAmount, "500")
	assertAmount(t, "remaining", got.Remaining(), "0")
	if !got.IsPaid {
		t.Error("expected bill to stay paid after the return")
	}
	if receipt.Return.Note != "Return" {
		t.Errorf("expected default return note, got %q", receipt.Return.Note)
	}

	ledger, err := s.payments.GetCashLedger(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetCashLedger failed: %v", err)
	}
	if len(ledger) != 2 {
		t.Fatalf("expected payment and return mirror in cash ledger, got %d entries", len(ledger))
	}
	mirror := ledger[0]
	if mirror.Kind != core.EntryReturn || mirror.Note != "Return: Return" {
		t.Errorf("unexpected mirror entry: %+v", mirror)
	}
	assertAmount(t, "mirror amount", mirror.Amount, "-200")
}

func TestBill_ReturnRecomputesNetAndRemaining(t *testing.T) {
	cases := []struct {
		name                   string
		total, paid, ret       string
		wantNet, wantRemaining string
		wantPaid               bool
	}{
		{"partial return", "1000", "300", "200", "800", "500", false},
		{"return covers unpaid part", "1000", "600", "400", "600", "0", true},
		{"return exceeds total", "100", "0", "150", "0", "0", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newServices(t)
			ctx := context.Background()
			b := newBill(t, s, "Walk-in", tc.total)
			if tc.paid != "0" {
				if _, err := s.payments.RecordPayment(ctx, b.ID, dec(tc.paid), "", time.Time{}); err != nil {
					t.Fatalf("RecordPayment failed: %v", err)
				}
			}
			receipt, err := s.returns.RecordReturn(ctx, b.ID, dec(tc.ret), "damaged")
			if err != nil {
				t.Fatalf("RecordReturn failed: %v", err)
			}
			got := receipt.Bill
			assertAmount(t, "returned_amount", got.ReturnedAmount, tc.ret)
			assertAmount(t, "net_total", got.NetTotal(), tc.wantNet)
			assertAmount(t, "paid_amount", got.PaidAmount, tc.paid)
			assertAmount(t, "remaining", got.Remaining(), tc.wantRemaining)
			if got.IsPaid != tc.wantPaid {
				t.Errorf("is_paid: expected %v, got %v", tc.wantPaid, got.IsPaid)
			}
		})
	}
}

func TestBill_DeleteReturnRemovesMirror(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	b := newBill(t, s, "Walk-in", "300")

	receipt, err := s.returns.RecordReturn(ctx, b.ID, dec("100"), "torn bag")
	if err != nil {
		t.Fatalf("RecordReturn failed: %v", err)
	}
	got, err := s.returns.DeleteReturn(ctx, receipt.Return.ID)
	if err != nil {
		t.Fatalf("DeleteReturn failed: %v", err)
	}
	assertAmount(t, "returned_amount", got.ReturnedAmount, "0")
	assertAmount(t, "net_total", got.NetTotal(), "300")

	ledger, err := s.payments.GetCashLedger(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetCashLedger failed: %v", err)
	}
	if len(ledger) != 0 {
		t.Errorf("expected mirror entry to disappear, got %+v", ledger)
	}

	if _, err := s.returns.DeleteReturn(ctx, receipt.Return.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected not found on second delete, got %v", err)
	}
}

func TestBill_DeleteSoleItemZeroesTotal(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	b := newBill(t, s, "Walk-in", "100")
	assertAmount(t, "total_amount", b.TotalAmount, "100")

	b, err := s.bills.SetLineItems(ctx, b.ID, nil, core.BillCharges{})
	if err != nil {
		t.Fatalf("SetLineItems failed: %v", err)
	}
	assertAmount(t, "total_amount", b.TotalAmount, "0")
	if len(b.Items) != 0 {
		t.Errorf("expected no items, got %d", len(b.Items))
	}
}

func TestBill_ShrinkingTotalClearsPaidFlag(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	b := newBill(t, s, "Walk-in", "200")

	if _, err := s.payments.MarkFullyPaid(ctx, b.ID); err != nil {
		t.Fatalf("MarkFullyPaid failed: %v", err)
	}
	// Raising the total reopens the bill.
	b, err := s.bills.SetLineItems(ctx, b.ID, []core.LineItemInput{
		{Description: "Goods", Quantity: 3, Rate: dec("100")},
	}, core.BillCharges{})
	if err != nil {
		t.Fatalf("SetLineItems failed: %v", err)
	}
	if b.IsPaid || b.PaidDate != nil {
		t.Errorf("expected bill to be reopened, got is_paid=%v paid_date=%v", b.IsPaid, b.PaidDate)
	}
	assertAmount(t, "remaining", b.Remaining(), "100")
}

func TestBill_MarkFullyPaid(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	b := newBill(t, s, "Walk-in", "750")

	if _, err := s.payments.RecordPayment(ctx, b.ID, dec("250"), "advance", time.Time{}); err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}

	receipt, err := s.payments.MarkFullyPaid(ctx, b.ID)
	if err != nil {
		t.Fatalf("MarkFullyPaid failed: %v", err)
	}
	if receipt.AlreadyPaid {
		t.Error("expected a payment to be recorded")
	}
	assertAmount(t, "marked amount", receipt.Payment.Amount, "500")
	if receipt.Payment.Note != "Marked paid" {
		t.Errorf("unexpected note %q", receipt.Payment.Note)
	}
	if !receipt.Bill.IsPaid || receipt.Bill.PaidDate == nil {
		t.Error("expected bill to be paid")
	}
	assertAmount(t, "paid_amount", receipt.Bill.PaidAmount, "750")
	assertAmount(t, "total_amount", receipt.Bill.TotalAmount, "750")

	again, err := s.payments.MarkFullyPaid(ctx, b.ID)
	if err != nil {
		t.Fatalf("second MarkFullyPaid failed: %v", err)
	}
	if !again.AlreadyPaid || again.Payment != nil {
		t.Errorf("expected already-paid no-op, got %+v", again)
	}
	if n := countRows(t, s.pool, "SELECT count(*) FROM bill_entries WHERE bill_id = $1", b.ID); n != 2 {
		t.Errorf("expected 2 payment rows, got %d", n)
	}
}

func TestBill_PaymentLimitIgnoresReturns(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	b := newBill(t, s, "Walk-in", "500")

	if _, err := s.returns.RecordReturn(ctx, b.ID, dec("200"), "damaged"); err != nil {
		t.Fatalf("RecordReturn failed: %v", err)
	}
	receipt, err := s.payments.RecordPayment(ctx, b.ID, dec("300"), "", time.Time{})
	if err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}
	if !receipt.Bill.IsPaid {
		t.Error("expected bill to be paid once the net total is covered")
	}
	assertAmount(t, "remaining", receipt.Bill.Remaining(), "0")

	// The cap is total_amount − paid_amount = 200, not the net remaining.
	if _, err := s.payments.RecordPayment(ctx, b.ID, dec("201"), "", time.Time{}); !errors.Is(err, core.ErrOverpayment) {
		t.Fatalf("expected overpayment above total − paid, got %v", err)
	}
	receipt, err = s.payments.RecordPayment(ctx, b.ID, dec("200"), "", time.Time{})
	if err != nil {
		t.Fatalf("payment up to total − paid rejected: %v", err)
	}
	assertAmount(t, "paid_amount", receipt.Bill.PaidAmount, "500")
}

func TestBill_MarkFullyPaidWithReturnPaysGrossBalance(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	b := newBill(t, s, "Walk-in", "500")

	if _, err := s.returns.RecordReturn(ctx, b.ID, dec("200"), ""); err != nil {
		t.Fatalf("RecordReturn failed: %v", err)
	}
	if _, err := s.payments.RecordPayment(ctx, b.ID, dec("300"), "", time.Time{}); err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}

	receipt, err := s.payments.MarkFullyPaid(ctx, b.ID)
	if err != nil {
		t.Fatalf("MarkFullyPaid failed: %v", err)
	}
	if receipt.AlreadyPaid || receipt.Payment == nil {
		t.Fatalf("expected a payment for total − paid, got %+v", receipt)
	}
	assertAmount(t, "marked amount", receipt.Payment.Amount, "200")
	assertAmount(t, "paid_amount", receipt.Bill.PaidAmount, "500")
	assertAmount(t, "total_amount", receipt.Bill.TotalAmount, "500")
	if !receipt.Bill.IsPaid {
		t.Error("expected bill to be paid")
	}

	again, err := s.payments.MarkFullyPaid(ctx, b.ID)
	if err != nil {
		t.Fatalf("second MarkFullyPaid failed: %v", err)
	}
	if !again.AlreadyPaid {
		t.Error("expected already-paid once paid equals total")
	}
}

func TestBill_UpdateAndDeletePayment(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	b := newBill(t, s, "Walk-in", "400")

	receipt, err := s.payments.RecordPayment(ctx, b.ID, dec("100"), "first", time.Time{})
	if err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}

	// The old amount is released before the limit is checked.
	updated, err := s.payments.UpdatePayment(ctx, receipt.Payment.ID, dec("400"), "in full")
	if err != nil {
		t.Fatalf("UpdatePayment failed: %v", err)
	}
	if !updated.Bill.IsPaid {
		t.Error("expected bill to be paid after update")
	}

	if _, err := s.payments.UpdatePayment(ctx, receipt.Payment.ID, dec("401"), ""); !errors.Is(err, core.ErrOverpayment) {
		t.Errorf("expected overpayment, got %v", err)
	}
	if _, err := s.payments.UpdatePayment(ctx, receipt.Payment.ID, dec("0"), ""); !errors.Is(err, core.ErrValidation) {
		t.Errorf("expected validation error for zero amount, got %v", err)
	}

	got, err := s.payments.DeletePayment(ctx, receipt.Payment.ID)
	if err != nil {
		t.Fatalf("DeletePayment failed: %v", err)
	}
	assertAmount(t, "paid_amount", got.PaidAmount, "0")
	if got.IsPaid || got.PaidDate != nil {
		t.Error("expected paid flag to be cleared")
	}

	if _, err := s.payments.DeletePayment(ctx, receipt.Payment.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestBill_RefreshPaidFlagIsIdempotent(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	b := newBill(t, s, "Walk-in", "90")

	if _, err := s.payments.RecordPayment(ctx, b.ID, dec("90"), "", time.Time{}); err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}

	first, err := s.bills.RefreshPaidFlag(ctx, b.ID)
	if err != nil {
		t.Fatalf("RefreshPaidFlag failed: %v", err)
	}
	second, err := s.bills.RefreshPaidFlag(ctx, b.ID)
	if err != nil {
		t.Fatalf("RefreshPaidFlag failed: %v", err)
	}
	if !first.IsPaid || !second.IsPaid {
		t.Fatal("expected bill to be paid")
	}
	if first.PaidDate == nil || second.PaidDate == nil || !first.PaidDate.Equal(*second.PaidDate) {
		t.Errorf("paid date moved between refreshes: %v -> %v", first.PaidDate, second.PaidDate)
	}

	recomputed, err := s.payments.RecomputePaidAmount(ctx, b.ID)
	if err != nil {
		t.Fatalf("RecomputePaidAmount failed: %v", err)
	}
	assertAmount(t, "paid_amount", recomputed.PaidAmount, "90")

	total, err := s.bills.RecomputeTotal(ctx, b.ID)
	if err != nil {
		t.Fatalf("RecomputeTotal failed: %v", err)
	}
	assertAmount(t, "total_amount", total.TotalAmount, "90")
}

func TestBill_ValidationWritesNothing(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	b := newBill(t, s, "Walk-in", "50")

	_, err := s.bills.SetLineItems(ctx, b.ID, []core.LineItemInput{
		{Description: "Bad", Quantity: 0, Rate: dec("10")},
	}, core.BillCharges{})
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, err = s.bills.SetLineItems(ctx, b.ID, []core.LineItemInput{
		{Description: "Bad", Quantity: 1, Rate: dec("-1")},
	}, core.BillCharges{})
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := s.payments.RecordPayment(ctx, b.ID, dec("-5"), "", time.Time{}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := s.returns.RecordReturn(ctx, b.ID, decimal.Zero, ""); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := s.payments.RecordPayment(ctx, b.ID, dec("0.004"), "", time.Time{}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error for sub-cent payment, got %v", err)
	}
	if _, err := s.returns.RecordReturn(ctx, b.ID, dec("10.005"), ""); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error for sub-cent return, got %v", err)
	}
	_, err = s.bills.SetLineItems(ctx, b.ID, []core.LineItemInput{
		{Description: "Bad", Quantity: 3, Rate: dec("0.335")},
	}, core.BillCharges{})
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error for sub-cent rate, got %v", err)
	}
	tomorrow := time.Now().AddDate(0, 0, 1)
	if _, err := s.payments.RecordPayment(ctx, b.ID, dec("5"), "", tomorrow); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error for future payment date, got %v", err)
	}

	detail, err := s.bills.GetBill(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetBill failed: %v", err)
	}
	assertAmount(t, "total_amount", detail.Bill.TotalAmount, "50")
	if len(detail.Bill.Items) != 1 {
		t.Errorf("expected original item to survive, got %d items", len(detail.Bill.Items))
	}
	if n := countRows(t, s.pool, "SELECT count(*) FROM bill_entries"); n != 0 {
		t.Errorf("expected no ledger entries, got %d", n)
	}
}

func TestBill_FutureDateRejected(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()

	_, err := s.bills.CreateBill(ctx, core.CreateBillInput{
		CustomerName: "Walk-in",
		Date:         time.Now().AddDate(0, 0, 2),
	})
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if n := countRows(t, s.pool, "SELECT count(*) FROM bills"); n != 0 {
		t.Errorf("expected no bills, got %d", n)
	}

	if _, err := s.bills.CreateBill(ctx, core.CreateBillInput{}); !errors.Is(err, core.ErrValidation) {
		t.Errorf("expected validation error without a customer, got %v", err)
	}
}

func TestBill_NumbersAreNeverReused(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()

	first := newBill(t, s, "A", "")
	second := newBill(t, s, "B", "")
	if first.BillNo != 1 || second.BillNo != 2 {
		t.Fatalf("expected bill numbers 1 and 2, got %d and %d", first.BillNo, second.BillNo)
	}
	if err := s.bills.DeleteBill(ctx, second.ID); err != nil {
		t.Fatalf("DeleteBill failed: %v", err)
	}
	if err := s.bills.DeleteBill(ctx, second.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected not found on second delete, got %v", err)
	}

	third := newBill(t, s, "C", "")
	if third.BillNo != 3 {
		t.Errorf("expected bill number 3 after deletion, got %d", third.BillNo)
	}

	explicit, err := s.bills.CreateBill(ctx, core.CreateBillInput{CustomerName: "D", BillNo: 100})
	if err != nil {
		t.Fatalf("CreateBill with explicit number failed: %v", err)
	}
	if explicit.BillNo != 100 {
		t.Errorf("expected bill number 100, got %d", explicit.BillNo)
	}
	next, err := s.bills.NextBillNo(ctx)
	if err != nil {
		t.Fatalf("NextBillNo failed: %v", err)
	}
	if next != 101 {
		t.Errorf("expected next bill number 101, got %d", next)
	}
	if after := newBill(t, s, "E", ""); after.BillNo != 101 {
		t.Errorf("expected bill number 101, got %d", after.BillNo)
	}

	_, err = s.bills.CreateBill(ctx, core.CreateBillInput{CustomerName: "F", BillNo: 100})
	if !errors.Is(err, core.ErrValidation) {
		t.Errorf("expected duplicate bill number to be rejected, got %v", err)
	}
}

func TestBill_ConcurrentCreationAssignsDistinctNumbers(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()

	const workers = 20
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[int64]bool)
		errs = make(chan error, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := s.bills.CreateBill(ctx, core.CreateBillInput{CustomerName: "Counter"})
			if err != nil {
				errs <- err
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if seen[b.BillNo] {
				errs <- errors.New("duplicate bill number")
				return
			}
			seen[b.BillNo] = true
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent CreateBill: %v", err)
	}
	if len(seen) != workers {
		t.Errorf("expected %d distinct bill numbers, got %d", workers, len(seen))
	}
}

func TestBill_ConcurrentPaymentsNeverOverpay(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	b := newBill(t, s, "Walk-in", "100")

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Only four of these fit; the rest must be refused.
			_, _ = s.payments.RecordPayment(ctx, b.ID, dec("25"), "", time.Time{})
		}()
	}
	wg.Wait()

	detail, err := s.bills.GetBill(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetBill failed: %v", err)
	}
	assertAmount(t, "paid_amount", detail.Bill.PaidAmount, "100")
	if !detail.Bill.IsPaid {
		t.Error("expected bill to be paid")
	}
	if len(detail.CashLedger) != 4 {
		t.Errorf("expected 4 accepted payments, got %d", len(detail.CashLedger))
	}
}
