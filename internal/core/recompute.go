package core

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Dependency graph of the derived fields:
//
//	bill_items ──► bills.total_amount ──┐
//	RETURN rows ─► bills.returned_amount ├─► bills.is_paid/paid_date ─► customers.*
//	cash_ledger ─► bills.paid_amount ───┘
//
// Each arrow is one function below. They all run on the caller's pgx.Tx so a
// failure at any step rolls back every step before it.

const billColumns = `id, bill_no, customer_id, customer_name, phone, bill_date,
	packing_qty, packing_rate, packing_reason, extra_reason, extra_amount,
	total_amount, paid_amount, returned_amount, is_paid, paid_date, created_at`

// pgxQuerier is satisfied by both *pgxpool.Pool and pgx.Tx, enabling shared query helpers.
type pgxQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanBill(row pgx.Row, b *Bill) error {
	return row.Scan(
		&b.ID, &b.BillNo, &b.CustomerID, &b.CustomerName, &b.Phone, &b.Date,
		&b.PackingQty, &b.PackingRate, &b.PackingReason, &b.ExtraReason, &b.ExtraAmount,
		&b.TotalAmount, &b.PaidAmount, &b.ReturnedAmount, &b.IsPaid, &b.PaidDate, &b.CreatedAt,
	)
}

// getBill reads a bill header without locking it.
func getBill(ctx context.Context, q pgxQuerier, billID int) (*Bill, error) {
	var b Bill
	err := scanBill(q.QueryRow(ctx, "SELECT "+billColumns+" FROM bills WHERE id = $1", billID), &b)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("bill", billID)
		}
		return nil, fmt.Errorf("failed to read bill %d: %w", billID, err)
	}
	return &b, nil
}

// lockBillTx reads a bill header and holds its row lock until the transaction
// ends. Every money mutation starts here so writers on one bill serialize.
func lockBillTx(ctx context.Context, tx pgx.Tx, billID int) (*Bill, error) {
	var b Bill
	err := scanBill(tx.QueryRow(ctx, "SELECT "+billColumns+" FROM bills WHERE id = $1 FOR UPDATE", billID), &b)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("bill", billID)
		}
		return nil, fmt.Errorf("failed to lock bill %d: %w", billID, err)
	}
	return &b, nil
}

func queryAmounts(ctx context.Context, q pgxQuerier, sql string, args ...any) ([]decimal.Decimal, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []decimal.Decimal
	for rows.Next() {
		var d decimal.Decimal
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// billSources are the child rows every derived bill field is computed from.
type billSources struct {
	itemTotals []decimal.Decimal
	returns    []decimal.Decimal
	cash       []decimal.Decimal // signed cash_ledger amounts
}

func loadItemTotals(ctx context.Context, q pgxQuerier, billID int) ([]decimal.Decimal, error) {
	totals, err := queryAmounts(ctx, q, "SELECT total FROM bill_items WHERE bill_id = $1 ORDER BY position", billID)
	if err != nil {
		return nil, fmt.Errorf("failed to load items of bill %d: %w", billID, err)
	}
	return totals, nil
}

func loadReturnAmounts(ctx context.Context, q pgxQuerier, billID int) ([]decimal.Decimal, error) {
	amounts, err := queryAmounts(ctx, q, "SELECT amount FROM bill_entries WHERE bill_id = $1 AND kind = $2", billID, string(EntryReturn))
	if err != nil {
		return nil, fmt.Errorf("failed to load returns of bill %d: %w", billID, err)
	}
	return amounts, nil
}

func loadCashAmounts(ctx context.Context, q pgxQuerier, billID int) ([]decimal.Decimal, error) {
	amounts, err := queryAmounts(ctx, q, "SELECT amount FROM cash_ledger WHERE bill_id = $1", billID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cash ledger of bill %d: %w", billID, err)
	}
	return amounts, nil
}

func loadBillSources(ctx context.Context, q pgxQuerier, billID int) (billSources, error) {
	var src billSources
	var err error
	if src.itemTotals, err = loadItemTotals(ctx, q, billID); err != nil {
		return src, err
	}
	if src.returns, err = loadReturnAmounts(ctx, q, billID); err != nil {
		return src, err
	}
	if src.cash, err = loadCashAmounts(ctx, q, billID); err != nil {
		return src, err
	}
	return src, nil
}

// deriveBill returns b with every derived field recomputed from src.
// PaidDate is left alone; it is a timestamp, not a function of the sources.
func deriveBill(b Bill, src billSources) Bill {
	b.TotalAmount = BillGross(src.itemTotals, BillCharges{
		PackingQty:  b.PackingQty,
		PackingRate: b.PackingRate,
		ExtraAmount: b.ExtraAmount,
	})
	b.ReturnedAmount = floorZero(decimal.Sum(decimal.Zero, src.returns...))
	b.PaidAmount = SumPositive(src.cash)
	b.IsPaid = IsFullyPaid(b.PaidAmount, b.NetTotal())
	return b
}

// recomputeBillTotalTx re-sums the line items and charges into total_amount,
// then re-evaluates the paid flag since the net total may have moved.
func recomputeBillTotalTx(ctx context.Context, tx pgx.Tx, b *Bill) error {
	items, err := loadItemTotals(ctx, tx, b.ID)
	if err != nil {
		return err
	}
	total := BillGross(items, BillCharges{PackingQty: b.PackingQty, PackingRate: b.PackingRate, ExtraAmount: b.ExtraAmount})
	if _, err := tx.Exec(ctx, "UPDATE bills SET total_amount = $2 WHERE id = $1", b.ID, total); err != nil {
		return fmt.Errorf("failed to store total of bill %d: %w", b.ID, err)
	}
	b.TotalAmount = total
	return refreshPaidFlagTx(ctx, tx, b)
}

// recomputeReturnedTx re-sums the bill's returns into returned_amount.
func recomputeReturnedTx(ctx context.Context, tx pgx.Tx, b *Bill) error {
	amounts, err := loadReturnAmounts(ctx, tx, b.ID)
	if err != nil {
		return err
	}
	returned := floorZero(decimal.Sum(decimal.Zero, amounts...))
	if _, err := tx.Exec(ctx, "UPDATE bills SET returned_amount = $2 WHERE id = $1", b.ID, returned); err != nil {
		return fmt.Errorf("failed to store returned amount of bill %d: %w", b.ID, err)
	}
	b.ReturnedAmount = returned
	return nil
}

// recomputePaidAmountTx sets paid_amount to the sum of positive cash entries.
func recomputePaidAmountTx(ctx context.Context, tx pgx.Tx, b *Bill) error {
	amounts, err := loadCashAmounts(ctx, tx, b.ID)
	if err != nil {
		return err
	}
	paid := SumPositive(amounts)
	if _, err := tx.Exec(ctx, "UPDATE bills SET paid_amount = $2 WHERE id = $1", b.ID, paid); err != nil {
		return fmt.Errorf("failed to store paid amount of bill %d: %w", b.ID, err)
	}
	b.PaidAmount = paid
	return nil
}

// refreshPaidFlagTx sets is_paid/paid_date from (paid, net). It writes only
// when the flag actually changes, so repeated calls are no-ops.
func refreshPaidFlagTx(ctx context.Context, tx pgx.Tx, b *Bill) error {
	fullyPaid := IsFullyPaid(b.PaidAmount, b.NetTotal())
	if fullyPaid == b.IsPaid {
		return nil
	}
	err := tx.QueryRow(ctx, `
		UPDATE bills
		SET is_paid = $2, paid_date = CASE WHEN $2 THEN NOW() ELSE NULL END
		WHERE id = $1
		RETURNING paid_date
	`, b.ID, fullyPaid).Scan(&b.PaidDate)
	if err != nil {
		return fmt.Errorf("failed to update paid flag of bill %d: %w", b.ID, err)
	}
	b.IsPaid = fullyPaid
	return nil
}

// refreshCustomerTotalsTx re-aggregates every bill of the customer. A missing
// customer is reported as a ConsistencyError.
func refreshCustomerTotalsTx(ctx context.Context, tx pgx.Tx, customerID int) (*CustomerTotals, error) {
	var id int
	err := tx.QueryRow(ctx, "SELECT id FROM customers WHERE id = $1 FOR UPDATE", customerID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &ConsistencyError{Entity: "customer", ID: customerID, Reason: "customer link is broken"}
		}
		return nil, fmt.Errorf("failed to lock customer %d: %w", customerID, err)
	}

	bills, err := customerBillAmounts(ctx, tx, customerID)
	if err != nil {
		return nil, err
	}
	totals := AggregateCustomer(bills)

	_, err = tx.Exec(ctx, `
		UPDATE customers
		SET total_amount = $2, paid_amount = $3, remaining_amount = $4
		WHERE id = $1
	`, customerID, totals.TotalAmount, totals.PaidAmount, totals.RemainingAmount)
	if err != nil {
		return nil, fmt.Errorf("failed to store totals of customer %d: %w", customerID, err)
	}
	return &totals, nil
}

// customerBillAmounts loads just the amount columns AggregateCustomer needs.
func customerBillAmounts(ctx context.Context, q pgxQuerier, customerID int) ([]Bill, error) {
	rows, err := q.Query(ctx, `
		SELECT id, total_amount, paid_amount, returned_amount
		FROM bills
		WHERE customer_id = $1
	`, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load bills of customer %d: %w", customerID, err)
	}
	defer rows.Close()

	var bills []Bill
	for rows.Next() {
		var b Bill
		if err := rows.Scan(&b.ID, &b.TotalAmount, &b.PaidAmount, &b.ReturnedAmount); err != nil {
			return nil, fmt.Errorf("failed to scan bill of customer %d: %w", customerID, err)
		}
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

// recomputer carries what the cascade needs beyond the transaction itself.
type recomputer struct {
	log *zap.Logger
}

func newRecomputer(log *zap.Logger) recomputer {
	if log == nil {
		log = zap.NewNop()
	}
	return recomputer{log: log}
}

// refreshOwnersTx refreshes each distinct customer in ascending id order so two
// transactions touching the same pair of customers lock them in the same order.
// A bill without a customer, or whose customer vanished, is not an error here.
func (r recomputer) refreshOwnersTx(ctx context.Context, tx pgx.Tx, customerIDs ...*int) error {
	seen := make(map[int]bool)
	var ids []int
	for _, id := range customerIDs {
		if id != nil && !seen[*id] {
			seen[*id] = true
			ids = append(ids, *id)
		}
	}
	sort.Ints(ids)

	for _, id := range ids {
		if _, err := refreshCustomerTotalsTx(ctx, tx, id); err != nil {
			if errors.Is(err, ErrConsistency) {
				r.log.Warn("skipping customer aggregate refresh", zap.Int("customer_id", id), zap.Error(err))
				continue
			}
			return err
		}
	}
	return nil
}

// recomputeBillTx runs the full cascade for one locked bill.
func (r recomputer) recomputeBillTx(ctx context.Context, tx pgx.Tx, b *Bill) error {
	if err := recomputeReturnedTx(ctx, tx, b); err != nil {
		return err
	}
	if err := recomputePaidAmountTx(ctx, tx, b); err != nil {
		return err
	}
	if err := recomputeBillTotalTx(ctx, tx, b); err != nil {
		return err
	}
	return r.refreshOwnersTx(ctx, tx, b.CustomerID)
}
