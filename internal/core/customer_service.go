package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// CustomerService manages customer master data and the customer aggregate.
type CustomerService interface {
	CreateCustomer(ctx context.Context, name, phone, address string) (*Customer, error)
	// UpdateCustomer also rewrites the name/phone copied onto linked bills.
	UpdateCustomer(ctx context.Context, customerID int, name, phone, address string) (*Customer, error)
	// DeleteCustomer unlinks the customer's bills; the bills themselves survive.
	DeleteCustomer(ctx context.Context, customerID int) error
	GetCustomer(ctx context.Context, customerID int) (*Customer, error)
	// ListCustomers returns customers whose name or phone contains q (all when q is empty).
	ListCustomers(ctx context.Context, q string) ([]Customer, error)
	// RefreshTotals re-aggregates the customer's bills into its derived fields.
	RefreshTotals(ctx context.Context, customerID int) (*Customer, error)
}

type customerService struct {
	pool *pgxpool.Pool
	recomputer
}

func NewCustomerService(pool *pgxpool.Pool, log *zap.Logger) CustomerService {
	return &customerService{pool: pool, recomputer: newRecomputer(log)}
}

const customerColumns = `c.id, c.name, c.phone, c.address, c.total_amount, c.paid_amount, c.remaining_amount,
	(SELECT count(*) FROM bills b WHERE b.customer_id = c.id), c.created_at`

func scanCustomer(row pgx.Row, c *Customer) error {
	return row.Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &c.TotalAmount, &c.PaidAmount,
		&c.RemainingAmount, &c.BillCount, &c.CreatedAt)
}

func getCustomer(ctx context.Context, q pgxQuerier, customerID int) (*Customer, error) {
	var c Customer
	err := scanCustomer(q.QueryRow(ctx, "SELECT "+customerColumns+" FROM customers c WHERE c.id = $1", customerID), &c)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("customer", customerID)
		}
		return nil, fmt.Errorf("failed to read customer %d: %w", customerID, err)
	}
	return &c, nil
}

func normalizeCustomer(name, phone, address string) (string, string, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", "", invalid("name", "customer name is required")
	}
	return name, strings.TrimSpace(phone), strings.TrimSpace(address), nil
}

func (s *customerService) CreateCustomer(ctx context.Context, name, phone, address string) (*Customer, error) {
	name, phone, address, err := normalizeCustomer(name, phone, address)
	if err != nil {
		return nil, err
	}

	var id int
	err = s.pool.QueryRow(ctx, `
		INSERT INTO customers (name, phone, address)
		VALUES ($1, $2, $3)
		RETURNING id
	`, name, phone, address).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, invalid("name", "customer %q already exists", name)
		}
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}
	return getCustomer(ctx, s.pool, id)
}

func (s *customerService) UpdateCustomer(ctx context.Context, customerID int, name, phone, address string) (*Customer, error) {
	name, phone, address, err := normalizeCustomer(name, phone, address)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Bills first, customer second: the same lock order as the recompute cascade.
	if _, err := tx.Exec(ctx, "SELECT id FROM bills WHERE customer_id = $1 FOR UPDATE", customerID); err != nil {
		return nil, fmt.Errorf("failed to lock bills of customer %d: %w", customerID, err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE customers SET name = $2, phone = $3, address = $4 WHERE id = $1
	`, customerID, name, phone, address)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, invalid("name", "customer %q already exists", name)
		}
		return nil, fmt.Errorf("failed to update customer %d: %w", customerID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, notFound("customer", customerID)
	}

	_, err = tx.Exec(ctx, `
		UPDATE bills
		SET customer_name = $2, phone = CASE WHEN $3 <> '' THEN $3 ELSE phone END
		WHERE customer_id = $1
	`, customerID, name, phone)
	if err != nil {
		return nil, fmt.Errorf("failed to update bills of customer %d: %w", customerID, err)
	}

	c, err := getCustomer(ctx, tx, customerID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return c, nil
}

func (s *customerService) DeleteCustomer(ctx context.Context, customerID int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT id FROM bills WHERE customer_id = $1 FOR UPDATE", customerID); err != nil {
		return fmt.Errorf("failed to lock bills of customer %d: %w", customerID, err)
	}

	// bills.customer_id is ON DELETE SET NULL; customer_name stays on the bill.
	tag, err := tx.Exec(ctx, "DELETE FROM customers WHERE id = $1", customerID)
	if err != nil {
		return fmt.Errorf("failed to delete customer %d: %w", customerID, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("customer", customerID)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *customerService) GetCustomer(ctx context.Context, customerID int) (*Customer, error) {
	return getCustomer(ctx, s.pool, customerID)
}

func (s *customerService) ListCustomers(ctx context.Context, q string) ([]Customer, error) {
	query := "SELECT " + customerColumns + " FROM customers c"
	var args []any
	if q = strings.TrimSpace(q); q != "" {
		args = append(args, containsPattern(q))
		query += " WHERE c.name ILIKE $1 OR c.phone ILIKE $1"
	}
	query += " ORDER BY c.name"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()

	var customers []Customer
	for rows.Next() {
		var c Customer
		if err := scanCustomer(rows, &c); err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (s *customerService) RefreshTotals(ctx context.Context, customerID int) (*Customer, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT id FROM bills WHERE customer_id = $1 FOR UPDATE", customerID); err != nil {
		return nil, fmt.Errorf("failed to lock bills of customer %d: %w", customerID, err)
	}
	if _, err := refreshCustomerTotalsTx(ctx, tx, customerID); err != nil {
		if errors.Is(err, ErrConsistency) {
			return nil, notFound("customer", customerID)
		}
		return nil, err
	}

	c, err := getCustomer(ctx, tx, customerID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return c, nil
}

// containsPattern builds an ILIKE pattern matching s anywhere, with LIKE
// metacharacters in s taken literally.
func containsPattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
