package core

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinel kinds. Typed errors below report Is() against these so callers can
// branch with errors.Is without caring about the concrete type.
var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrConsistency = errors.New("ledger inconsistency")

	// ErrOverpayment is wrapped by the ValidationError returned when a payment
	// exceeds the bill's remaining balance.
	ErrOverpayment = errors.New("payment exceeds remaining balance")
)

// ValidationError is a caller-level rejection. Nothing has been written when
// one is returned.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) Unwrap() error { return e.Err }

// NotFoundError reports a reference to a row that does not exist.
type NotFoundError struct {
	Entity string
	ID     int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConsistencyError reports derived state that cannot be recomputed or that
// disagrees with its sources.
type ConsistencyError struct {
	Entity string `json:"entity"`
	ID     int    `json:"id"`
	Reason string `json:"reason"`
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("%s %d: %s", e.Entity, e.ID, e.Reason)
}

func (e *ConsistencyError) Is(target error) bool { return target == ErrConsistency }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func notFound(entity string, id int) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// isUniqueViolation reports a Postgres unique_violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
