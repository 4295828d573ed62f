package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/printshop/internal/domain/cart"
	"github.com/xenking/printshop/internal/domain/pricing"
)

// ErrNotFound is returned when an order id does not exist.
var ErrNotFound = errors.New("order not found")

// Status is the lifecycle state of a persisted order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// PricedItem is a cart item with its authoritative price.
type PricedItem struct {
	Item cart.Item
	// RequestedQuantity is what the customer asked for; Quantity is what is
	// billed after the kind's rounding policy.
	RequestedQuantity int
	Quantity          int
	UnitPriceCents    int64
	TotalCents        int64
	Breakdown         []pricing.BreakdownEntry
}

// PricedOrder holds the totals of a cart. GrandTotalCents always equals
// SubtotalCents + ShippingCents + TaxCents.
type PricedOrder struct {
	Currency        string
	TaxRate         decimal.Decimal
	SubtotalCents   int64
	ShippingCents   int64
	TaxCents        int64
	GrandTotalCents int64
	Items           []PricedItem
}

// Order is a persisted priced cart and its payment state.
type Order struct {
	ID                string
	Status            Status
	CustomerEmail     string
	Pricing           PricedOrder
	CheckoutSessionID string
	PaymentIntentID   string
	CreatedAt         time.Time
}

// Repository defines persistence operations for orders. Create stores the
// order and its items atomically, breakdowns included verbatim.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	SetCheckoutSession(ctx context.Context, id, sessionID string) error
	MarkPaid(ctx context.Context, id, paymentIntentID string) error
}

// EventLog de-duplicates payment provider notifications. Begin reports false
// when the event was already fully processed.
type EventLog interface {
	Begin(ctx context.Context, eventID, eventType string) (bool, error)
	Finish(ctx context.Context, eventID string) error
}
