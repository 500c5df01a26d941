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

// maxBillNoAttempts bounds the retries when an auto-assigned bill number
// collides with a row written outside the counter.
const maxBillNoAttempts = 3

// CreateBillInput describes a new bill header. Either CustomerID or
// CustomerName must be set. A zero Date means today; a zero BillNo means the
// next number from the counter.
type CreateBillInput struct {
	CustomerID   *int
	CustomerName string
	Phone        string
	Date         time.Time
	BillNo       int64
}

// BillService owns the bill header and its line items.
type BillService interface {
	CreateBill(ctx context.Context, in CreateBillInput) (*Bill, error)
	GetBill(ctx context.Context, billID int) (*BillDetail, error)
	// NextBillNo is the number the next auto-numbered bill would receive.
	NextBillNo(ctx context.Context) (int64, error)
	// SetLineItems replaces every line item and header charge of the bill atomically.
	SetLineItems(ctx context.Context, billID int, items []LineItemInput, charges BillCharges) (*Bill, error)
	// AssignCustomer links the bill to customerID, or unlinks it when nil.
	AssignCustomer(ctx context.Context, billID int, customerID *int) (*Bill, error)
	DeleteBill(ctx context.Context, billID int) error
	RecomputeTotal(ctx context.Context, billID int) (*Bill, error)
	RefreshPaidFlag(ctx context.Context, billID int) (*Bill, error)
}

type billService struct {
	pool *pgxpool.Pool
	recomputer
}

func NewBillService(pool *pgxpool.Pool, log *zap.Logger) BillService {
	return &billService{pool: pool, recomputer: newRecomputer(log)}
}

// isFutureDate reports whether d falls on a calendar day after now.
func isFutureDate(d, now time.Time) bool {
	return civilDate(d).After(civilDate(now))
}

// civilDate drops the clock part of t, keeping its calendar day.
func civilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// resolveBillDate defaults a zero date to today and rejects future dates.
func resolveBillDate(field string, d, now time.Time) (time.Time, error) {
	if d.IsZero() {
		return civilDate(now), nil
	}
	if isFutureDate(d, now) {
		return time.Time{}, invalid(field, "%s is in the future", d.Format("2006-01-02"))
	}
	return civilDate(d), nil
}

type billOwner struct {
	customerID *int
	name       string
	phone      string
}

// resolveOwnerTx turns the caller's customer reference into the values stored
// on the bill. A free-text name that exactly matches a customer links to it.
func resolveOwnerTx(ctx context.Context, tx pgx.Tx, customerID *int, name, phone string) (billOwner, error) {
	name, phone = strings.TrimSpace(name), strings.TrimSpace(phone)

	var (
		id            int
		cName, cPhone string
		err           error
	)
	switch {
	case customerID != nil:
		err = tx.QueryRow(ctx, "SELECT id, name, phone FROM customers WHERE id = $1", *customerID).Scan(&id, &cName, &cPhone)
		if errors.Is(err, pgx.ErrNoRows) {
			return billOwner{}, notFound("customer", *customerID)
		}
	case name != "":
		err = tx.QueryRow(ctx, "SELECT id, name, phone FROM customers WHERE name = $1", name).Scan(&id, &cName, &cPhone)
		if errors.Is(err, pgx.ErrNoRows) {
			return billOwner{name: name, phone: phone}, nil
		}
	default:
		return billOwner{}, invalid("customer_name", "a customer or a customer name is required")
	}
	if err != nil {
		return billOwner{}, fmt.Errorf("failed to resolve customer: %w", err)
	}

	owner := billOwner{customerID: &id, name: cName, phone: phone}
	if cPhone != "" {
		owner.phone = cPhone
	}
	return owner, nil
}

func (s *billService) CreateBill(ctx context.Context, in CreateBillInput) (*Bill, error) {
	if in.BillNo < 0 {
		return nil, invalid("bill_no", "bill number must be positive")
	}
	date, err := resolveBillDate("date", in.Date, time.Now())
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	owner, err := resolveOwnerTx(ctx, tx, in.CustomerID, in.CustomerName, in.Phone)
	if err != nil {
		return nil, err
	}

	var b *Bill
	if in.BillNo > 0 {
		if err := reserveBillNoTx(ctx, tx, in.BillNo); err != nil {
			return nil, err
		}
		b, err = insertBillTx(ctx, tx, in.BillNo, owner, date)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, invalid("bill_no", "bill number %d is already used", in.BillNo)
			}
			return nil, err
		}
	} else {
		b, err = s.insertNumberedBillTx(ctx, tx, owner, date)
		if err != nil {
			return nil, err
		}
	}

	if err := s.refreshOwnersTx(ctx, tx, b.CustomerID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return b, nil
}

// insertNumberedBillTx takes numbers from the counter until one inserts. A
// collision means a bill was numbered outside the counter, so the counter is
// first caught up with MAX(bill_no).
func (s *billService) insertNumberedBillTx(ctx context.Context, tx pgx.Tx, owner billOwner, date time.Time) (*Bill, error) {
	for attempt := 1; ; attempt++ {
		billNo, err := nextBillNoTx(ctx, tx)
		if err != nil {
			return nil, err
		}
		b, err := insertBillTx(ctx, tx, billNo, owner, date)
		if err == nil {
			return b, nil
		}
		if !isUniqueViolation(err) || attempt == maxBillNoAttempts {
			return nil, err
		}
		s.log.Warn("bill number already taken, retrying", zap.Int64("bill_no", billNo), zap.Int("attempt", attempt))
		if err := reserveBillNoTx(ctx, tx, billNo); err != nil {
			return nil, err
		}
	}
}

// insertBillTx runs inside a savepoint so a unique violation leaves tx usable.
func insertBillTx(ctx context.Context, tx pgx.Tx, billNo int64, owner billOwner, date time.Time) (*Bill, error) {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open savepoint: %w", err)
	}
	defer sp.Rollback(ctx)

	var b Bill
	err = scanBill(sp.QueryRow(ctx, `
		INSERT INTO bills (bill_no, customer_id, customer_name, phone, bill_date, packing_reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+billColumns,
		billNo, owner.customerID, owner.name, owner.phone, date, defaultPackingReason,
	), &b)
	if err != nil {
		return nil, fmt.Errorf("failed to insert bill %d: %w", billNo, err)
	}
	if err := sp.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to release savepoint: %w", err)
	}
	return &b, nil
}

func (s *billService) GetBill(ctx context.Context, billID int) (*BillDetail, error) {
	b, err := getBill(ctx, s.pool, billID)
	if err != nil {
		return nil, err
	}
	if b.Items, err = loadItems(ctx, s.pool, billID); err != nil {
		return nil, err
	}
	ledger, err := loadCashLedger(ctx, s.pool, billID)
	if err != nil {
		return nil, err
	}
	returns, err := loadReturns(ctx, s.pool, "WHERE e.bill_id = $1", billID)
	if err != nil {
		return nil, err
	}
	return &BillDetail{
		Bill:       *b,
		NetTotal:   b.NetTotal(),
		Remaining:  b.Remaining(),
		CashLedger: ledger,
		Returns:    returns,
	}, nil
}

func (s *billService) NextBillNo(ctx context.Context) (int64, error) {
	return peekNextBillNo(ctx, s.pool)
}

func validateLineItems(items []LineItemInput, charges BillCharges) error {
	for i, it := range items {
		if it.Quantity <= 0 {
			return invalid(fmt.Sprintf("items[%d].quantity", i), "quantity must be positive, got %d", it.Quantity)
		}
		if it.Rate.IsNegative() {
			return invalid(fmt.Sprintf("items[%d].rate", i), "rate must not be negative, got %s", it.Rate.StringFixed(2))
		}
		if !WholeCents(it.Rate) {
			return invalid(fmt.Sprintf("items[%d].rate", i), "rate must have at most 2 decimal places, got %s", it.Rate)
		}
	}
	if charges.PackingQty < 0 {
		return invalid("packing_qty", "packing quantity must not be negative")
	}
	if charges.PackingRate.IsNegative() {
		return invalid("packing_rate", "packing rate must not be negative")
	}
	if !WholeCents(charges.PackingRate) {
		return invalid("packing_rate", "packing rate must have at most 2 decimal places, got %s", charges.PackingRate)
	}
	if charges.ExtraAmount.IsNegative() {
		return invalid("extra_amount", "extra amount must not be negative")
	}
	if !WholeCents(charges.ExtraAmount) {
		return invalid("extra_amount", "extra amount must have at most 2 decimal places, got %s", charges.ExtraAmount)
	}
	return nil
}

func (s *billService) SetLineItems(ctx context.Context, billID int, items []LineItemInput, charges BillCharges) (*Bill, error) {
	if err := validateLineItems(items, charges); err != nil {
		return nil, err
	}
	if strings.TrimSpace(charges.PackingReason) == "" {
		charges.PackingReason = defaultPackingReason
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

	if _, err := tx.Exec(ctx, "DELETE FROM bill_items WHERE bill_id = $1", billID); err != nil {
		return nil, fmt.Errorf("failed to clear items of bill %d: %w", billID, err)
	}
	for i, it := range items {
		_, err := tx.Exec(ctx, `
			INSERT INTO bill_items (bill_id, position, description, quantity, rate, total)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, billID, i+1, strings.TrimSpace(it.Description), it.Quantity, it.Rate, LineTotal(it.Quantity, it.Rate))
		if err != nil {
			return nil, fmt.Errorf("failed to insert item %d of bill %d: %w", i+1, billID, err)
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE bills
		SET packing_qty = $2, packing_rate = $3, packing_reason = $4, extra_reason = $5, extra_amount = $6
		WHERE id = $1
	`, billID, charges.PackingQty, charges.PackingRate, charges.PackingReason,
		strings.TrimSpace(charges.ExtraReason), charges.ExtraAmount)
	if err != nil {
		return nil, fmt.Errorf("failed to update charges of bill %d: %w", billID, err)
	}
	b.PackingQty, b.PackingRate, b.PackingReason = charges.PackingQty, charges.PackingRate, charges.PackingReason
	b.ExtraReason, b.ExtraAmount = strings.TrimSpace(charges.ExtraReason), charges.ExtraAmount

	if err := recomputeBillTotalTx(ctx, tx, b); err != nil {
		return nil, err
	}
	if err := s.refreshOwnersTx(ctx, tx, b.CustomerID); err != nil {
		return nil, err
	}
	if b.Items, err = loadItems(ctx, tx, billID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return b, nil
}

func (s *billService) AssignCustomer(ctx context.Context, billID int, customerID *int) (*Bill, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	b, err := lockBillTx(ctx, tx, billID)
	if err != nil {
		return nil, err
	}
	previous := b.CustomerID

	if customerID == nil {
		// The printable name stays on the bill.
		if _, err := tx.Exec(ctx, "UPDATE bills SET customer_id = NULL WHERE id = $1", billID); err != nil {
			return nil, fmt.Errorf("failed to unlink bill %d: %w", billID, err)
		}
		b.CustomerID = nil
	} else {
		owner, err := resolveOwnerTx(ctx, tx, customerID, "", b.Phone)
		if err != nil {
			return nil, err
		}
		_, err = tx.Exec(ctx, `
			UPDATE bills SET customer_id = $2, customer_name = $3, phone = $4 WHERE id = $1
		`, billID, owner.customerID, owner.name, owner.phone)
		if err != nil {
			return nil, fmt.Errorf("failed to assign bill %d: %w", billID, err)
		}
		b.CustomerID, b.CustomerName, b.Phone = owner.customerID, owner.name, owner.phone
	}

	if err := s.refreshOwnersTx(ctx, tx, previous, b.CustomerID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return b, nil
}

func (s *billService) DeleteBill(ctx context.Context, billID int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	b, err := lockBillTx(ctx, tx, billID)
	if err != nil {
		return err
	}
	// Items and ledger entries go with the bill (ON DELETE CASCADE).
	if _, err := tx.Exec(ctx, "DELETE FROM bills WHERE id = $1", billID); err != nil {
		return fmt.Errorf("failed to delete bill %d: %w", billID, err)
	}
	if err := s.refreshOwnersTx(ctx, tx, b.CustomerID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *billService) RecomputeTotal(ctx context.Context, billID int) (*Bill, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	b, err := lockBillTx(ctx, tx, billID)
	if err != nil {
		return nil, err
	}
	if err := recomputeBillTotalTx(ctx, tx, b); err != nil {
		return nil, err
	}
	if err := s.refreshOwnersTx(ctx, tx, b.CustomerID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return b, nil
}

func (s *billService) RefreshPaidFlag(ctx context.Context, billID int) (*Bill, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	b, err := lockBillTx(ctx, tx, billID)
	if err != nil {
		return nil, err
	}
	if err := refreshPaidFlagTx(ctx, tx, b); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return b, nil
}

// ── Child-row readers ────────────────────────────────────────────────────────

func loadItems(ctx context.Context, q pgxQuerier, billID int) ([]LineItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, bill_id, position, description, quantity, rate, total
		FROM bill_items
		WHERE bill_id = $1
		ORDER BY position
	`, billID)
	if err != nil {
		return nil, fmt.Errorf("failed to query items of bill %d: %w", billID, err)
	}
	defer rows.Close()

	var items []LineItem
	for rows.Next() {
		var it LineItem
		if err := rows.Scan(&it.ID, &it.BillID, &it.Position, &it.Description, &it.Quantity, &it.Rate, &it.Total); err != nil {
			return nil, fmt.Errorf("failed to scan item of bill %d: %w", billID, err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// loadCashLedger returns the signed cash movements of a bill, newest first.
func loadCashLedger(ctx context.Context, q pgxQuerier, billID int) ([]Payment, error) {
	rows, err := q.Query(ctx, `
		SELECT id, bill_id, kind, amount, entry_date, note, created_at
		FROM cash_ledger
		WHERE bill_id = $1
		ORDER BY entry_date DESC, id DESC
	`, billID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cash ledger of bill %d: %w", billID, err)
	}
	defer rows.Close()

	var ledger []Payment
	for rows.Next() {
		var p Payment
		var kind string
		if err := rows.Scan(&p.ID, &p.BillID, &kind, &p.Amount, &p.Date, &p.Note, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cash entry of bill %d: %w", billID, err)
		}
		p.Kind = EntryKind(kind)
		ledger = append(ledger, p)
	}
	return ledger, rows.Err()
}

// loadReturns reads RETURN entries joined with their bill number, newest first.
// where filters on bill_entries e and bills b.
func loadReturns(ctx context.Context, q pgxQuerier, where string, args ...any) ([]BillReturn, error) {
	rows, err := q.Query(ctx, `
		SELECT e.id, e.bill_id, b.bill_no, e.amount, e.note, e.created_at
		FROM bill_entries e
		JOIN bills b ON b.id = e.bill_id
		`+where+` AND e.kind = 'RETURN'
		ORDER BY e.created_at DESC, e.id DESC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query returns: %w", err)
	}
	defer rows.Close()

	var returns []BillReturn
	for rows.Next() {
		var r BillReturn
		if err := rows.Scan(&r.ID, &r.BillID, &r.BillNo, &r.Amount, &r.Note, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan return: %w", err)
		}
		returns = append(returns, r)
	}
	return returns, rows.Err()
}

// sumReturns is the total of a list of returns.
func sumReturns(returns []BillReturn) decimal.Decimal {
	total := decimal.Zero
	for _, r := range returns {
		total = total.Add(r.Amount)
	}
	return total
}
