package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ── Statement types ───────────────────────────────────────────────────────────

// StatementFilter narrows a statement. Zero fields do not filter. From and To
// are inclusive bill dates.
type StatementFilter struct {
	CustomerName string
	CustomerID   *int
	From         *time.Time
	To           *time.Time
}

// StatementLine is one bill in a statement.
type StatementLine struct {
	BillID       int             `json:"bill_id"`
	BillNo       int64           `json:"bill_no"`
	Date         time.Time       `json:"date"`
	CustomerID   *int            `json:"customer_id,omitempty"`
	CustomerName string          `json:"customer_name"`
	Total        decimal.Decimal `json:"total"`
	Returned     decimal.Decimal `json:"returned"`
	Net          decimal.Decimal `json:"net"`
	Paid         decimal.Decimal `json:"paid"`
	Remaining    decimal.Decimal `json:"remaining"`
	IsPaid       bool            `json:"is_paid"`
}

// StatementSummary totals a statement. TotalRemaining adds the per-bill
// remaining amounts; Balance is max(TotalNet − TotalPaid, 0), the same rule the
// customer aggregate uses. They differ only when a bill is overpaid.
type StatementSummary struct {
	BillCount      int             `json:"bill_count"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	TotalReturned  decimal.Decimal `json:"total_returned"`
	TotalNet       decimal.Decimal `json:"total_net"`
	TotalPaid      decimal.Decimal `json:"total_paid"`
	TotalRemaining decimal.Decimal `json:"total_remaining"`
	Balance        decimal.Decimal `json:"balance"`
}

// Statement is the per-bill listing plus its summary, ordered by date then bill number.
type Statement struct {
	Lines   []StatementLine  `json:"lines"`
	Summary StatementSummary `json:"summary"`
}

// StatementService produces customer statements.
type StatementService interface {
	Statement(ctx context.Context, f StatementFilter) (*Statement, error)
}

type statementService struct {
	pool *pgxpool.Pool
}

func NewStatementService(pool *pgxpool.Pool) StatementService {
	return &statementService{pool: pool}
}

// NewStatementLine derives the presentation amounts of a bill.
func NewStatementLine(b *Bill) StatementLine {
	return StatementLine{
		BillID:       b.ID,
		BillNo:       b.BillNo,
		Date:         b.Date,
		CustomerID:   b.CustomerID,
		CustomerName: b.CustomerName,
		Total:        b.TotalAmount,
		Returned:     b.ReturnedAmount,
		Net:          b.NetTotal(),
		Paid:         b.PaidAmount,
		Remaining:    b.Remaining(),
		IsPaid:       b.IsPaid,
	}
}

// Summarize totals statement lines.
func Summarize(lines []StatementLine) StatementSummary {
	s := StatementSummary{
		BillCount:      len(lines),
		TotalAmount:    decimal.Zero,
		TotalReturned:  decimal.Zero,
		TotalNet:       decimal.Zero,
		TotalPaid:      decimal.Zero,
		TotalRemaining: decimal.Zero,
	}
	for _, l := range lines {
		s.TotalAmount = s.TotalAmount.Add(l.Total)
		s.TotalReturned = s.TotalReturned.Add(l.Returned)
		s.TotalNet = s.TotalNet.Add(l.Net)
		s.TotalPaid = s.TotalPaid.Add(l.Paid)
		s.TotalRemaining = s.TotalRemaining.Add(l.Remaining)
	}
	s.Balance = floorZero(s.TotalNet.Sub(s.TotalPaid))
	return s
}

func (s *statementService) Statement(ctx context.Context, f StatementFilter) (*Statement, error) {
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return nil, invalid("from", "from date %s is after to date %s", f.From.Format("2006-01-02"), f.To.Format("2006-01-02"))
	}

	q := "SELECT " + billColumns + " FROM bills WHERE TRUE"
	var args []any
	if name := strings.TrimSpace(f.CustomerName); name != "" {
		args = append(args, containsPattern(name))
		q += fmt.Sprintf(" AND customer_name ILIKE $%d", len(args))
	}
	if f.CustomerID != nil {
		args = append(args, *f.CustomerID)
		q += fmt.Sprintf(" AND customer_id = $%d", len(args))
	}
	if f.From != nil {
		args = append(args, civilDate(*f.From))
		q += fmt.Sprintf(" AND bill_date >= $%d::date", len(args))
	}
	if f.To != nil {
		args = append(args, civilDate(*f.To))
		q += fmt.Sprintf(" AND bill_date <= $%d::date", len(args))
	}
	q += " ORDER BY bill_date, bill_no"

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query statement: %w", err)
	}
	defer rows.Close()

	st := &Statement{Lines: []StatementLine{}}
	for rows.Next() {
		var b Bill
		if err := scanBill(rows, &b); err != nil {
			return nil, fmt.Errorf("failed to scan statement bill: %w", err)
		}
		st.Lines = append(st.Lines, NewStatementLine(&b))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read statement: %w", err)
	}
	st.Summary = Summarize(st.Lines)
	return st, nil
}
