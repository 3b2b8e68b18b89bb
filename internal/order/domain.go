package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-b2b/internal/common"
)

// ErrNotFound is returned when an order does not exist or is not visible to the caller.
var ErrNotFound = fmt.Errorf("order %w", common.ErrNotFound)

// Status is the order lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered, StatusCancelled},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether the lifecycle allows moving from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PaymentMethod is how an order is settled.
type PaymentMethod string

const (
	PaymentCredit PaymentMethod = "credit"
	PaymentCard   PaymentMethod = "card"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentCredit || m == PaymentCard
}

// Order is a placed order with its settlement state.
type Order struct {
	ID             uuid.UUID       `json:"id"`
	OrderNumber    string          `json:"orderNumber"`
	CustomerID     uuid.UUID       `json:"customerId"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	TaxAmount      decimal.Decimal `json:"taxAmount"`
	Total          decimal.Decimal `json:"total"`
	PaidAmount     decimal.Decimal `json:"paidAmount"`
	PaymentMethod  PaymentMethod   `json:"paymentMethod"`
	PaymentRef     *string         `json:"paymentRef,omitempty"`
	Status         Status          `json:"status"`
	Notes          *string         `json:"notes,omitempty"`
	Items          []Item          `json:"items,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Outstanding is the unpaid part of the total.
func (o Order) Outstanding() decimal.Decimal {
	out := o.Total.Sub(o.PaidAmount)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

// Item is an order line copied from the cart at checkout.
type Item struct {
	ID               uuid.UUID       `json:"id"`
	OrderID          uuid.UUID       `json:"orderId"`
	ProductID        uuid.UUID       `json:"productId"`
	Quantity         int             `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unitPrice"`
	LineTotal        decimal.Decimal `json:"lineTotal"`
	IsFreeItem       bool            `json:"isFreeItem"`
	SourceDiscountID *uuid.UUID      `json:"sourceDiscountId,omitempty"`
}

// NewOrder is the insert payload built by checkout.
type NewOrder struct {
	OrderNumber    string
	CustomerID     uuid.UUID
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxAmount      decimal.Decimal
	Total          decimal.Decimal
	PaidAmount     decimal.Decimal
	PaymentMethod  PaymentMethod
	PaymentRef     *string
	Notes          *string
	Items          []Item
}

// NewOrderNumber returns a human-readable order number of the form
// ORD-YYYYMMDD-XXXXXXXX.
func NewOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "ORD-" + now.UTC().Format("20060102") + "-" + suffix
}
