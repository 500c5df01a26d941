package app

import (
	"github.com/shopspring/decimal"
)

// Dates travel as YYYY-MM-DD strings; empty means "today" (or unbounded for filters).
const dateLayout = "2006-01-02"

// CreateCustomerRequest is the input for registering a customer.
type CreateCustomerRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Phone   string `json:"phone" validate:"omitempty,max=20"`
	Address string `json:"address" validate:"omitempty,max=1000"`
}

// UpdateCustomerRequest is the input for editing a customer.
type UpdateCustomerRequest struct {
	ID      int    `json:"-" validate:"gt=0"`
	Name    string `json:"name" validate:"required,max=200"`
	Phone   string `json:"phone" validate:"omitempty,max=20"`
	Address string `json:"address" validate:"omitempty,max=1000"`
}

// CreateBillRequest is the input for opening a bill. Either CustomerID or
// CustomerName is required; a name that matches a customer exactly links to it.
type CreateBillRequest struct {
	CustomerID   *int   `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	CustomerName string `json:"customer_name" validate:"required_without=CustomerID,max=255"`
	Phone        string `json:"phone" validate:"omitempty,max=20"`
	Date         string `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	BillNo       int64  `json:"bill_no,omitempty" validate:"omitempty,gt=0"`
}

// LineItemRequest is a single line within a ReplaceItemsRequest.
type LineItemRequest struct {
	Description string          `json:"description" validate:"max=500"`
	Quantity    int             `json:"quantity" validate:"gt=0"`
	Rate        decimal.Decimal `json:"rate" validate:"gte=0"`
}

// ReplaceItemsRequest replaces every line item and header charge of a bill.
type ReplaceItemsRequest struct {
	BillID        int               `json:"-" validate:"gt=0"`
	Items         []LineItemRequest `json:"items" validate:"dive"`
	PackingQty    int               `json:"packing_qty" validate:"gte=0"`
	PackingRate   decimal.Decimal   `json:"packing_rate" validate:"gte=0"`
	PackingReason string            `json:"packing_reason" validate:"max=255"`
	ExtraReason   string            `json:"extra_reason" validate:"max=255"`
	ExtraAmount   decimal.Decimal   `json:"extra_amount" validate:"gte=0"`
}

// AssignCustomerRequest links a bill to a customer; nil CustomerID unlinks it.
type AssignCustomerRequest struct {
	BillID     int  `json:"-" validate:"gt=0"`
	CustomerID *int `json:"customer_id" validate:"omitempty,gt=0"`
}

// RecordPaymentRequest is the input for recording money received.
type RecordPaymentRequest struct {
	BillID int             `json:"-" validate:"gt=0"`
	Amount decimal.Decimal `json:"amount" validate:"gt=0"`
	Note   string          `json:"note" validate:"max=500"`
	Date   string          `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// UpdatePaymentRequest is the input for editing a payment.
type UpdatePaymentRequest struct {
	PaymentID int             `json:"-" validate:"gt=0"`
	Amount    decimal.Decimal `json:"amount" validate:"gt=0"`
	Note      string          `json:"note" validate:"max=500"`
}

// RecordReturnRequest is the input for recording goods returned.
type RecordReturnRequest struct {
	BillID int             `json:"-" validate:"gt=0"`
	Amount decimal.Decimal `json:"amount" validate:"gt=0"`
	Note   string          `json:"note" validate:"max=500"`
}

// StatementRequest filters a statement. All fields are optional.
type StatementRequest struct {
	CustomerName string `json:"customer_name" validate:"max=255"`
	CustomerID   *int   `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	From         string `json:"from,omitempty" validate:"omitempty,datetime=2006-01-02"`
	To           string `json:"to,omitempty" validate:"omitempty,datetime=2006-01-02"`
}
