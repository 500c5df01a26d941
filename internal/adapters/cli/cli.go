package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"billing-ledger/internal/app"
	"billing-ledger/internal/core"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
)

const usage = "Available: customers, customer-add, bill, bill-new, items, pay, return, mark-paid, statement, verify"

// Run executes a one-shot CLI command and exits on failure.
// args is os.Args[1:] — the first element is the subcommand name.
func Run(ctx context.Context, svc app.ApplicationService, args []string) {
	if err := Execute(ctx, svc, args, os.Stdin, os.Stdout); err != nil {
		log.Fatalf("%v", err)
	}
}

// Execute runs a subcommand, reading JSON input from in where a command needs
// it and printing to out.
func Execute(ctx context.Context, svc app.ApplicationService, args []string, in io.Reader, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("no command given\n" + usage)
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "customers", "cust":
		fs := newFlagSet(cmd)
		q := fs.StringP("query", "q", "", "filter on name or phone")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		result, err := svc.ListCustomers(ctx, *q)
		if err != nil {
			return fmt.Errorf("failed to list customers: %w", err)
		}
		printCustomers(out, result.Customers)

	case "customer-add":
		fs := newFlagSet(cmd)
		var req app.CreateCustomerRequest
		fs.StringVar(&req.Name, "name", "", "customer name")
		fs.StringVar(&req.Phone, "phone", "", "phone number")
		fs.StringVar(&req.Address, "address", "", "address")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		c, err := svc.CreateCustomer(ctx, req)
		if err != nil {
			return fmt.Errorf("failed to create customer: %w", err)
		}
		fmt.Fprintf(out, "Customer #%d created: %s\n", c.ID, c.Name)

	case "bill", "b":
		id, err := intArg(rest, 0, "bill id")
		if err != nil {
			return err
		}
		detail, err := svc.GetBill(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load bill: %w", err)
		}
		printBill(out, detail)

	case "bill-new":
		fs := newFlagSet(cmd)
		var req app.CreateBillRequest
		customerID := fs.Int("customer-id", 0, "existing customer id")
		fs.StringVar(&req.CustomerName, "customer", "", "customer name (free text or exact match)")
		fs.StringVar(&req.Phone, "phone", "", "phone number")
		fs.StringVar(&req.Date, "date", "", "bill date, YYYY-MM-DD (default today)")
		fs.Int64Var(&req.BillNo, "bill-no", 0, "explicit bill number")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *customerID != 0 {
			req.CustomerID = customerID
		}
		result, err := svc.CreateBill(ctx, req)
		if err != nil {
			return fmt.Errorf("failed to create bill: %w", err)
		}
		fmt.Fprintf(out, "Bill #%d created for %s (id %d)\n", result.Bill.BillNo, result.Bill.CustomerName, result.Bill.ID)

	case "items":
		id, err := intArg(rest, 0, "bill id")
		if err != nil {
			return err
		}
		var req app.ReplaceItemsRequest
		if err := json.NewDecoder(in).Decode(&req); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
		req.BillID = id
		result, err := svc.ReplaceItems(ctx, req)
		if err != nil {
			return fmt.Errorf("failed to replace items: %w", err)
		}
		printBillResult(out, result)

	case "pay", "p":
		fs := newFlagSet(cmd)
		note := fs.String("note", "", "payment note")
		date := fs.String("date", "", "payment date, YYYY-MM-DD (default today)")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		id, amount, err := billAmountArgs(fs.Args())
		if err != nil {
			return err
		}
		result, err := svc.RecordPayment(ctx, app.RecordPaymentRequest{BillID: id, Amount: amount, Note: *note, Date: *date})
		if err != nil {
			return fmt.Errorf("failed to record payment: %w", err)
		}
		fmt.Fprintf(out, "Payment of %s recorded.\n", amount.StringFixed(2))
		printBillResult(out, result.Bill)

	case "return", "r":
		fs := newFlagSet(cmd)
		note := fs.String("note", "", "reason for the return")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		id, amount, err := billAmountArgs(fs.Args())
		if err != nil {
			return err
		}
		result, err := svc.RecordReturn(ctx, app.RecordReturnRequest{BillID: id, Amount: amount, Note: *note})
		if err != nil {
			return fmt.Errorf("failed to record return: %w", err)
		}
		fmt.Fprintf(out, "Return of %s recorded.\n", amount.StringFixed(2))
		printBillResult(out, result.Bill)

	case "mark-paid":
		id, err := intArg(rest, 0, "bill id")
		if err != nil {
			return err
		}
		result, err := svc.MarkPaid(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to mark bill paid: %w", err)
		}
		if result.AlreadyPaid {
			fmt.Fprintln(out, "Bill is already fully paid.")
		} else {
			fmt.Fprintf(out, "Paid remaining %s.\n", result.Payment.Amount.StringFixed(2))
		}
		printBillResult(out, result.Bill)

	case "statement", "st":
		fs := newFlagSet(cmd)
		var req app.StatementRequest
		customerID := fs.Int("customer-id", 0, "customer id")
		fs.StringVar(&req.CustomerName, "customer", "", "customer name contains")
		fs.StringVar(&req.From, "from", "", "from date, YYYY-MM-DD")
		fs.StringVar(&req.To, "to", "", "to date, YYYY-MM-DD")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *customerID != 0 {
			req.CustomerID = customerID
		}
		statement, err := svc.Statement(ctx, req)
		if err != nil {
			return fmt.Errorf("failed to build statement: %w", err)
		}
		printStatement(out, statement)

	case "verify":
		fs := newFlagSet(cmd)
		repair := fs.Bool("repair", false, "rewrite drifted derived fields")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		report, err := svc.VerifyLedger(ctx, *repair)
		if err != nil {
			return fmt.Errorf("failed to verify ledger: %w", err)
		}
		PrintVerifyReport(out, report)

	default:
		return fmt.Errorf("unknown command: %s\n%s", cmd, usage)
	}
	return nil
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func intArg(args []string, i int, name string) (int, error) {
	if len(args) <= i {
		return 0, fmt.Errorf("missing %s", name)
	}
	n, err := strconv.Atoi(args[i])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, args[i])
	}
	return n, nil
}

func billAmountArgs(args []string) (int, decimal.Decimal, error) {
	id, err := intArg(args, 0, "bill id")
	if err != nil {
		return 0, decimal.Zero, err
	}
	if len(args) < 2 {
		return 0, decimal.Zero, errors.New("missing amount")
	}
	amount, err := decimal.NewFromString(args[1])
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("invalid amount: %q", args[1])
	}
	return id, amount, nil
}

// ── Output ────────────────────────────────────────────────────────────────────

func printCustomers(out io.Writer, customers []core.Customer) {
	fmt.Fprintf(out, "  %-5s %-28s %-14s %12s %12s %12s\n", "ID", "NAME", "PHONE", "TOTAL", "PAID", "DUE")
	fmt.Fprintln(out, strings.Repeat("-", 90))
	for _, c := range customers {
		fmt.Fprintf(out, "  %-5d %-28s %-14s %12s %12s %12s\n",
			c.ID, c.Name, c.Phone,
			c.TotalAmount.StringFixed(2), c.PaidAmount.StringFixed(2), c.RemainingAmount.StringFixed(2))
	}
}

func printBillResult(out io.Writer, r *app.BillResult) {
	fmt.Fprintf(out, "  Bill #%d  total %s  net %s  paid %s  remaining %s  [%s]\n",
		r.Bill.BillNo, r.Bill.TotalAmount.StringFixed(2), r.NetTotal.StringFixed(2),
		r.Bill.PaidAmount.StringFixed(2), r.Remaining.StringFixed(2), r.Status)
}

func printBill(out io.Writer, d *core.BillDetail) {
	b := d.Bill
	fmt.Fprintln(out, strings.Repeat("=", 62))
	fmt.Fprintf(out, "  Bill #%d   %s   %s\n", b.BillNo, b.Date.Format("2006-01-02"), b.CustomerName)
	fmt.Fprintln(out, strings.Repeat("=", 62))
	for _, it := range b.Items {
		fmt.Fprintf(out, "  %-30s %5d x %10s = %10s\n",
			it.Description, it.Quantity, it.Rate.StringFixed(2), it.Total.StringFixed(2))
	}
	if b.PackingQty > 0 {
		fmt.Fprintf(out, "  %-30s %5d x %10s\n", b.PackingReason, b.PackingQty, b.PackingRate.StringFixed(2))
	}
	if b.ExtraAmount.IsPositive() {
		fmt.Fprintf(out, "  %-30s %25s\n", b.ExtraReason, b.ExtraAmount.StringFixed(2))
	}
	fmt.Fprintln(out, strings.Repeat("-", 62))
	fmt.Fprintf(out, "  %-30s %25s\n", "Total", b.TotalAmount.StringFixed(2))
	fmt.Fprintf(out, "  %-30s %25s\n", "Returned", b.ReturnedAmount.StringFixed(2))
	fmt.Fprintf(out, "  %-30s %25s\n", "Paid", b.PaidAmount.StringFixed(2))
	fmt.Fprintf(out, "  %-30s %25s\n", "Remaining", d.Remaining.StringFixed(2))
	if len(d.CashLedger) > 0 {
		fmt.Fprintln(out, strings.Repeat("-", 62))
		for _, e := range d.CashLedger {
			fmt.Fprintf(out, "  %s  %-30s %14s\n", e.Date.Format("2006-01-02"), e.Note, e.Amount.StringFixed(2))
		}
	}
}

func printStatement(out io.Writer, s *core.Statement) {
	fmt.Fprintf(out, "  %-8s %-10s %-24s %11s %11s %11s %6s\n", "BILL", "DATE", "CUSTOMER", "NET", "PAID", "DUE", "PAID?")
	fmt.Fprintln(out, strings.Repeat("-", 96))
	for _, l := range s.Lines {
		paid := "no"
		if l.IsPaid {
			paid = "yes"
		}
		fmt.Fprintf(out, "  %-8d %-10s %-24s %11s %11s %11s %6s\n",
			l.BillNo, l.Date.Format("2006-01-02"), l.CustomerName,
			l.Net.StringFixed(2), l.Paid.StringFixed(2), l.Remaining.StringFixed(2), paid)
	}
	fmt.Fprintln(out, strings.Repeat("-", 96))
	sum := s.Summary
	fmt.Fprintf(out, "  Bills %d   total %s   returned %s   paid %s   balance %s\n",
		sum.BillCount, sum.TotalAmount.StringFixed(2), sum.TotalReturned.StringFixed(2),
		sum.TotalPaid.StringFixed(2), sum.Balance.StringFixed(2))
}

// PrintVerifyReport writes a human-readable verification report.
func PrintVerifyReport(out io.Writer, r *core.VerifyReport) {
	fmt.Fprintf(out, "Checked %d bills and %d customers.\n", r.BillsChecked, r.CustomersChecked)
	if r.OK() {
		fmt.Fprintln(out, "Ledger is consistent.")
		return
	}
	for _, issue := range r.Issues {
		fmt.Fprintf(out, "  [DRIFT] %s\n", issue.Error())
	}
	if r.Repaired {
		fmt.Fprintf(out, "Repaired %d issue(s).\n", len(r.Issues))
	} else {
		fmt.Fprintf(out, "%d issue(s) found. Re-run with --repair to fix.\n", len(r.Issues))
	}
}
