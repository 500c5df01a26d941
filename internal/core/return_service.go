package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReturnReceipt is a recorded return and the bill after recomputation.
type ReturnReceipt struct {
	Return *BillReturn `json:"return"`
	Bill   *Bill       `json:"bill"`
}

// CustomerReturnLine is one return in a customer's return history.
type CustomerReturnLine struct {
	BillReturn
	Label string `json:"label"`
}

// CustomerReturns lists every return across a customer's bills.
type CustomerReturns struct {
	CustomerID int                  `json:"customer_id"`
	Lines      []CustomerReturnLine `json:"lines"`
	Total      decimal.Decimal      `json:"total"`
}

// ReturnService records goods returned against bills.
type ReturnService interface {
	RecordReturn(ctx context.Context, billID int, amount decimal.Decimal, note string) (*ReturnReceipt, error)
	DeleteReturn(ctx context.Context, returnID int) (*Bill, error)
	ListReturns(ctx context.Context, billID int) ([]BillReturn, error)
	ListCustomerReturns(ctx context.Context, customerID int) (*CustomerReturns, error)
}

type returnService struct {
	pool *pgxpool.Pool
	recomputer
}

func NewReturnService(pool *pgxpool.Pool, log *zap.Logger) ReturnService {
	return &returnService{pool: pool, recomputer: newRecomputer(log)}
}

// ReturnLabel is the line shown for a return in a customer's history.
func ReturnLabel(billNo int64, note string) string {
	return fmt.Sprintf("Return - Bill #%d (%s)", billNo, note)
}

func (s *returnService) RecordReturn(ctx context.Context, billID int, amount decimal.Decimal, note string) (*ReturnReceipt, error) {
	if !amount.IsPositive() {
		return nil, invalid("amount", "return amount must be positive, got %s", amount.StringFixed(2))
	}
	if !WholeCents(amount) {
		return nil, invalid("amount", "return amount must have at most 2 decimal places, got %s", amount)
	}
	if note = strings.TrimSpace(note); note == "" {
		note = defaultReturnNote
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

	// The negated cash ledger mirror is the same row seen through cash_ledger.
	r := BillReturn{BillID: billID, BillNo: b.BillNo}
	err = tx.QueryRow(ctx, `
		INSERT INTO bill_entries (bill_id, kind, amount, note)
		VALUES ($1, $2, $3, $4)
		RETURNING id, amount, note, created_at
	`, billID, string(EntryReturn), amount, note).Scan(&r.ID, &r.Amount, &r.Note, &r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert return on bill %d: %w", billID, err)
	}

	if err := s.recomputeBillTx(ctx, tx, b); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &ReturnReceipt{Return: &r, Bill: b}, nil
}

func (s *returnService) DeleteReturn(ctx context.Context, returnID int) (*Bill, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var billID int
	err = tx.QueryRow(ctx, "SELECT bill_id FROM bill_entries WHERE id = $1 AND kind = $2", returnID, string(EntryReturn)).Scan(&billID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("return", returnID)
		}
		return nil, fmt.Errorf("failed to read return %d: %w", returnID, err)
	}

	b, err := lockBillTx(ctx, tx, billID)
	if err != nil {
		return nil, err
	}
	tag, err := tx.Exec(ctx, "DELETE FROM bill_entries WHERE id = $1 AND bill_id = $2 AND kind = $3", returnID, billID, string(EntryReturn))
	if err != nil {
		return nil, fmt.Errorf("failed to delete return %d: %w", returnID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, notFound("return", returnID)
	}

	if err := s.recomputeBillTx(ctx, tx, b); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return b, nil
}

func (s *returnService) ListReturns(ctx context.Context, billID int) ([]BillReturn, error) {
	if _, err := getBill(ctx, s.pool, billID); err != nil {
		return nil, err
	}
	return loadReturns(ctx, s.pool, "WHERE e.bill_id = $1", billID)
}

func (s *returnService) ListCustomerReturns(ctx context.Context, customerID int) (*CustomerReturns, error) {
	if _, err := getCustomer(ctx, s.pool, customerID); err != nil {
		return nil, err
	}
	returns, err := loadReturns(ctx, s.pool, "WHERE b.customer_id = $1", customerID)
	if err != nil {
		return nil, err
	}

	out := &CustomerReturns{CustomerID: customerID, Total: sumReturns(returns)}
	for _, r := range returns {
		out.Lines = append(out.Lines, CustomerReturnLine{BillReturn: r, Label: ReturnLabel(r.BillNo, r.Note)})
	}
	return out, nil
}
