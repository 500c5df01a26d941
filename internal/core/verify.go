package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// VerifyReport lists every derived field whose stored value disagreed with
// the value recomputed from its sources.
type VerifyReport struct {
	BillsChecked     int                `json:"bills_checked"`
	CustomersChecked int                `json:"customers_checked"`
	Issues           []ConsistencyError `json:"issues"`
	Repaired         bool               `json:"repaired"`
}

// OK reports whether no drift was found.
func (r *VerifyReport) OK() bool { return len(r.Issues) == 0 }

// LedgerVerifier recomputes every bill and customer and compares the result
// with what is stored.
type LedgerVerifier interface {
	// Verify reports drift. With repair set, each drifted row is recomputed
	// and stored in the same transaction that found it.
	Verify(ctx context.Context, repair bool) (*VerifyReport, error)
}

type ledgerVerifier struct {
	pool *pgxpool.Pool
	recomputer
}

func NewLedgerVerifier(pool *pgxpool.Pool, log *zap.Logger) LedgerVerifier {
	return &ledgerVerifier{pool: pool, recomputer: newRecomputer(log)}
}

func (v *ledgerVerifier) Verify(ctx context.Context, repair bool) (*VerifyReport, error) {
	report := &VerifyReport{Issues: []ConsistencyError{}, Repaired: repair}

	billIDs, err := v.ids(ctx, "SELECT id FROM bills ORDER BY id")
	if err != nil {
		return nil, err
	}
	for _, id := range billIDs {
		issues, err := v.verifyBill(ctx, id, repair)
		if err != nil {
			return nil, err
		}
		report.BillsChecked++
		report.Issues = append(report.Issues, issues...)
	}

	customerIDs, err := v.ids(ctx, "SELECT id FROM customers ORDER BY id")
	if err != nil {
		return nil, err
	}
	for _, id := range customerIDs {
		issues, err := v.verifyCustomer(ctx, id, repair)
		if err != nil {
			return nil, err
		}
		report.CustomersChecked++
		report.Issues = append(report.Issues, issues...)
	}

	if len(report.Issues) > 0 {
		v.log.Warn("ledger drift detected", zap.Int("issues", len(report.Issues)), zap.Bool("repair", repair))
	}
	return report, nil
}

func (v *ledgerVerifier) ids(ctx context.Context, sql string) ([]int, error) {
	rows, err := v.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to list ids: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// billDrift compares a stored bill with its recomputed form.
func billDrift(stored, expected Bill) []ConsistencyError {
	var issues []ConsistencyError
	amount := func(field string, got, want decimal.Decimal) {
		if !got.Equal(want) {
			issues = append(issues, ConsistencyError{
				Entity: "bill", ID: stored.ID,
				Reason: fmt.Sprintf("%s is %s, expected %s", field, got.StringFixed(2), want.StringFixed(2)),
			})
		}
	}
	amount("total_amount", stored.TotalAmount, expected.TotalAmount)
	amount("returned_amount", stored.ReturnedAmount, expected.ReturnedAmount)
	amount("paid_amount", stored.PaidAmount, expected.PaidAmount)

	if stored.IsPaid != expected.IsPaid {
		issues = append(issues, ConsistencyError{
			Entity: "bill", ID: stored.ID,
			Reason: fmt.Sprintf("is_paid is %t, expected %t", stored.IsPaid, expected.IsPaid),
		})
	} else if stored.IsPaid != (stored.PaidDate != nil) {
		issues = append(issues, ConsistencyError{
			Entity: "bill", ID: stored.ID,
			Reason: "paid_date does not match is_paid",
		})
	}
	return issues
}

// customerDrift compares stored customer aggregates with recomputed ones.
func customerDrift(id int, stored, expected CustomerTotals) []ConsistencyError {
	var issues []ConsistencyError
	amount := func(field string, got, want decimal.Decimal) {
		if !got.Equal(want) {
			issues = append(issues, ConsistencyError{
				Entity: "customer", ID: id,
				Reason: fmt.Sprintf("%s is %s, expected %s", field, got.StringFixed(2), want.StringFixed(2)),
			})
		}
	}
	amount("total_amount", stored.TotalAmount, expected.TotalAmount)
	amount("paid_amount", stored.PaidAmount, expected.PaidAmount)
	amount("remaining_amount", stored.RemainingAmount, expected.RemainingAmount)
	return issues
}

func (v *ledgerVerifier) verifyBill(ctx context.Context, billID int, repair bool) ([]ConsistencyError, error) {
	tx, err := v.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var b *Bill
	if repair {
		b, err = lockBillTx(ctx, tx, billID)
	} else {
		b, err = getBill(ctx, tx, billID)
	}
	if err != nil {
		return nil, err
	}

	src, err := loadBillSources(ctx, tx, billID)
	if err != nil {
		return nil, err
	}
	issues := billDrift(*b, deriveBill(*b, src))
	if len(issues) == 0 || !repair {
		return issues, nil
	}

	if err := v.repairBillTx(ctx, tx, b); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return issues, nil
}

func (v *ledgerVerifier) repairBillTx(ctx context.Context, tx pgx.Tx, b *Bill) error {
	_, err := tx.Exec(ctx, `
		UPDATE bills
		SET paid_date = CASE WHEN is_paid THEN COALESCE(paid_date, NOW()) ELSE NULL END
		WHERE id = $1
	`, b.ID)
	if err != nil {
		return fmt.Errorf("failed to repair paid date of bill %d: %w", b.ID, err)
	}
	return v.recomputeBillTx(ctx, tx, b)
}

func (v *ledgerVerifier) verifyCustomer(ctx context.Context, customerID int, repair bool) ([]ConsistencyError, error) {
	tx, err := v.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	c, err := getCustomer(ctx, tx, customerID)
	if err != nil {
		return nil, err
	}
	bills, err := customerBillAmounts(ctx, tx, customerID)
	if err != nil {
		return nil, err
	}
	stored := CustomerTotals{TotalAmount: c.TotalAmount, PaidAmount: c.PaidAmount, RemainingAmount: c.RemainingAmount}
	issues := customerDrift(customerID, stored, AggregateCustomer(bills))
	if len(issues) == 0 || !repair {
		return issues, nil
	}

	if _, err := tx.Exec(ctx, "SELECT id FROM bills WHERE customer_id = $1 FOR UPDATE", customerID); err != nil {
		return nil, fmt.Errorf("failed to lock bills of customer %d: %w", customerID, err)
	}
	if _, err := refreshCustomerTotalsTx(ctx, tx, customerID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return issues, nil
}
