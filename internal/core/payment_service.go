package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentReceipt is the outcome of a payment mutation: the affected entry (nil
// when none was written) and the bill after recomputation.
type PaymentReceipt struct {
	Payment     *Payment `json:"payment,omitempty"`
	Bill        *Bill    `json:"bill"`
	AlreadyPaid bool     `json:"already_paid"`
}

// PaymentService records money received against bills.
type PaymentService interface {
	// RecordPayment refuses amounts above total_amount − paid_amount. A zero
	// date means today.
	RecordPayment(ctx context.Context, billID int, amount decimal.Decimal, note string, date time.Time) (*PaymentReceipt, error)
	UpdatePayment(ctx context.Context, paymentID int, amount decimal.Decimal, note string) (*PaymentReceipt, error)
	DeletePayment(ctx context.Context, paymentID int) (*Bill, error)
	// MarkFullyPaid pays exactly total_amount − paid_amount, leaving paid equal
	// to the gross total. A bill with nothing payable is returned unchanged
	// with AlreadyPaid set.
	MarkFullyPaid(ctx context.Context, billID int) (*PaymentReceipt, error)
	RecomputePaidAmount(ctx context.Context, billID int) (*Bill, error)
	// GetCashLedger lists payments and negated returns of a bill, newest first.
	GetCashLedger(ctx context.Context, billID int) ([]Payment, error)
}

type paymentService struct {
	pool *pgxpool.Pool
	recomputer
}

func NewPaymentService(pool *pgxpool.Pool, log *zap.Logger) PaymentService {
	return &paymentService{pool: pool, recomputer: newRecomputer(log)}
}

func validatePaymentAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return invalid("amount", "payment amount must be positive, got %s", amount.StringFixed(2))
	}
	if !WholeCents(amount) {
		return invalid("amount", "payment amount must have at most 2 decimal places, got %s", amount)
	}
	return nil
}

// checkOverpayment rejects amount when it exceeds limit.
func checkOverpayment(amount, limit decimal.Decimal) error {
	if amount.GreaterThan(limit) {
		return &ValidationError{
			Field:   "amount",
			Message: fmt.Sprintf("payment %s exceeds remaining balance %s", amount.StringFixed(2), limit.StringFixed(2)),
			Err:     ErrOverpayment,
		}
	}
	return nil
}

func (s *paymentService) RecordPayment(ctx context.Context, billID int, amount decimal.Decimal, note string, date time.Time) (*PaymentReceipt, error) {
	if err := validatePaymentAmount(amount); err != nil {
		return nil, err
	}
	date, err := resolveBillDate("date", date, time.Now())
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	b, err := lockBillTx(ctx, tx, billID)
	if err != nil {
		return nil, err
	}
	if err := checkOverpayment(amount, b.Payable()); err != nil {
		return nil, err
	}

	p, err := s.recordPaymentTx(ctx, tx, b, amount, note, date)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &PaymentReceipt{Payment: p, Bill: b}, nil
}

// recordPaymentTx inserts a PAYMENT entry on a locked bill and runs the paid
// amount cascade. The caller has already validated the amount.
func (s *paymentService) recordPaymentTx(ctx context.Context, tx pgx.Tx, b *Bill, amount decimal.Decimal, note string, date time.Time) (*Payment, error) {
	var p Payment
	var kind string
	err := tx.QueryRow(ctx, `
		INSERT INTO bill_entries (bill_id, kind, amount, entry_date, note)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, bill_id, kind, amount, entry_date, note, created_at
	`, b.ID, string(EntryPayment), amount, date, strings.TrimSpace(note)).Scan(
		&p.ID, &p.BillID, &kind, &p.Amount, &p.Date, &p.Note, &p.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert payment on bill %d: %w", b.ID, err)
	}
	p.Kind = EntryKind(kind)

	if err := s.afterPaymentChangeTx(ctx, tx, b); err != nil {
		return nil, err
	}
	return &p, nil
}

// afterPaymentChangeTx is the cascade shared by every payment mutation.
func (s *paymentService) afterPaymentChangeTx(ctx context.Context, tx pgx.Tx, b *Bill) error {
	if err := recomputePaidAmountTx(ctx, tx, b); err != nil {
		return err
	}
	if err := refreshPaidFlagTx(ctx, tx, b); err != nil {
		return err
	}
	return s.refreshOwnersTx(ctx, tx, b.CustomerID)
}

// lockPaymentTx locks the owning bill, then the payment row. The bill is
// looked up first without a lock so the bill-then-entry order holds.
func lockPaymentTx(ctx context.Context, tx pgx.Tx, paymentID int) (*Bill, *Payment, error) {
	var billID int
	err := tx.QueryRow(ctx, "SELECT bill_id FROM bill_entries WHERE id = $1 AND kind = $2", paymentID, string(EntryPayment)).Scan(&billID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, notFound("payment", paymentID)
		}
		return nil, nil, fmt.Errorf("failed to read payment %d: %w", paymentID, err)
	}

	b, err := lockBillTx(ctx, tx, billID)
	if err != nil {
		return nil, nil, err
	}

	var p Payment
	var kind string
	err = tx.QueryRow(ctx, `
		SELECT id, bill_id, kind, amount, entry_date, note, created_at
		FROM bill_entries
		WHERE id = $1 AND bill_id = $2 AND kind = $3
		FOR UPDATE
	`, paymentID, billID, string(EntryPayment)).Scan(&p.ID, &p.BillID, &kind, &p.Amount, &p.Date, &p.Note, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, notFound("payment", paymentID)
		}
		return nil, nil, fmt.Errorf("failed to lock payment %d: %w", paymentID, err)
	}
	p.Kind = EntryKind(kind)
	return b, &p, nil
}

func (s *paymentService) UpdatePayment(ctx context.Context, paymentID int, amount decimal.Decimal, note string) (*PaymentReceipt, error) {
	if err := validatePaymentAmount(amount); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	b, p, err := lockPaymentTx(ctx, tx, paymentID)
	if err != nil {
		return nil, err
	}
	// The payment being replaced no longer counts against the balance.
	limit := Payable(b.TotalAmount, b.PaidAmount.Sub(p.Amount))
	if err := checkOverpayment(amount, limit); err != nil {
		return nil, err
	}

	note = strings.TrimSpace(note)
	if _, err := tx.Exec(ctx, "UPDATE bill_entries SET amount = $2, note = $3 WHERE id = $1", paymentID, amount, note); err != nil {
		return nil, fmt.Errorf("failed to update payment %d: %w", paymentID, err)
	}
	p.Amount, p.Note = amount, note

	if err := s.afterPaymentChangeTx(ctx, tx, b); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &PaymentReceipt{Payment: p, Bill: b}, nil
}

func (s *paymentService) DeletePayment(ctx context.Context, paymentID int) (*Bill, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	b, _, err := lockPaymentTx(ctx, tx, paymentID)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, "DELETE FROM bill_entries WHERE id = $1", paymentID); err != nil {
		return nil, fmt.Errorf("failed to delete payment %d: %w", paymentID, err)
	}
	if err := s.afterPaymentChangeTx(ctx, tx, b); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return b, nil
}

func (s *paymentService) MarkFullyPaid(ctx context.Context, billID int) (*PaymentReceipt, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	b, err := lockBillTx(ctx, tx, billID)
	if err != nil {
		return nil, err
	}

	payable := b.Payable()
	if !payable.IsPositive() {
		return &PaymentReceipt{Bill: b, AlreadyPaid: true}, nil
	}

	p, err := s.recordPaymentTx(ctx, tx, b, payable, markedPaidNote, civilDate(time.Now()))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &PaymentReceipt{Payment: p, Bill: b}, nil
}

func (s *paymentService) RecomputePaidAmount(ctx context.Context, billID int) (*Bill, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	b, err := lockBillTx(ctx, tx, billID)
	if err != nil {
		return nil, err
	}
	if err := s.afterPaymentChangeTx(ctx, tx, b); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return b, nil
}

func (s *paymentService) GetCashLedger(ctx context.Context, billID int) ([]Payment, error) {
	if _, err := getBill(ctx, s.pool, billID); err != nil {
		return nil, err
	}
	return loadCashLedger(ctx, s.pool, billID)
}
