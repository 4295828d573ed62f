// Package payment defines the contract between the order service and a
// payment provider's hosted checkout.
package payment

import (
	"context"

	"github.com/go-faster/errors"
)

// Line is one checkout line. UnitAmountCents is never negative.
type Line struct {
	Name            string
	UnitAmountCents int64
	Quantity        int64
	Metadata        map[string]string
}

// Total returns UnitAmountCents * Quantity.
func (l Line) Total() int64 {
	return l.UnitAmountCents * l.Quantity
}

// SessionRequest describes a hosted checkout session to open.
type SessionRequest struct {
	OrderID       string
	Currency      string
	CustomerEmail string
	Lines         []Line
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

// Session is the provider's answer to a SessionRequest.
type Session struct {
	ID  string
	URL string
}

// EventType enumerates the provider notifications the service reacts to.
type EventType string

const (
	EventCheckoutCompleted EventType = "checkout.session.completed"
	EventPaymentSucceeded  EventType = "payment_intent.succeeded"
	EventPaymentFailed     EventType = "payment_intent.payment_failed"
)

// Event is a verified provider notification, reduced to what the order
// lifecycle needs.
type Event struct {
	ID              string
	Type            EventType
	OrderID         string
	SessionID       string
	PaymentIntentID string
}

// ErrInvalidSignature is returned when a webhook payload fails verification.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Provider opens checkout sessions and verifies webhook notifications.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req SessionRequest) (*Session, error)
	ParseWebhook(payload []byte, signature string) (*Event, error)
}
