package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// nextBillNoTx advances the bill counter and returns the new number. The first
// call seeds the counter from the highest existing bill number. Concurrent
// callers serialize on the counter row, so no two bills get the same number,
// and numbers released by deleted bills are never handed out again.
func nextBillNoTx(ctx context.Context, tx pgx.Tx) (int64, error) {
	var n int64
	err := tx.QueryRow(ctx, `
		INSERT INTO bill_sequences (id, last_number)
		VALUES (1, (SELECT COALESCE(MAX(bill_no), 0) FROM bills) + 1)
		ON CONFLICT (id) DO UPDATE SET last_number = bill_sequences.last_number + 1
		RETURNING last_number
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to generate bill number: %w", err)
	}
	return n, nil
}

// reserveBillNoTx moves the counter forward to at least n so that an explicitly
// numbered bill is never reissued by nextBillNoTx.
func reserveBillNoTx(ctx context.Context, tx pgx.Tx, n int64) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO bill_sequences (id, last_number)
		VALUES (1, GREATEST($1::bigint, (SELECT COALESCE(MAX(bill_no), 0) FROM bills)))
		ON CONFLICT (id) DO UPDATE SET last_number = GREATEST(bill_sequences.last_number, EXCLUDED.last_number)
	`, n)
	if err != nil {
		return fmt.Errorf("failed to reserve bill number %d: %w", n, err)
	}
	return nil
}

// peekNextBillNo returns the number the next bill would get. It is only a
// hint for forms; nextBillNoTx is authoritative.
func peekNextBillNo(ctx context.Context, q pgxQuerier) (int64, error) {
	var n int64
	err := q.QueryRow(ctx, `
		SELECT GREATEST(
			COALESCE((SELECT last_number FROM bill_sequences WHERE id = 1), 0),
			(SELECT COALESCE(MAX(bill_no), 0) FROM bills)
		) + 1
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to read bill counter: %w", err)
	}
	return n, nil
}
