// Package stripepay implements the payment provider contract on top of
// Stripe Checkout.
package stripepay

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
	"go.uber.org/zap"

	"github.com/xenking/printshop/internal/domain/payment"
)

type sessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// Config configures the Provider.
type Config struct {
	SecretKey     string
	WebhookSecret string
	Backends      *stripe.Backends

	// Sessions overrides the checkout session client, for tests.
	Sessions sessionAPI
}

// Provider opens Stripe Checkout sessions and verifies Stripe webhooks.
type Provider struct {
	sessions      sessionAPI
	webhookSecret string
}

var _ payment.Provider = (*Provider)(nil)

// New creates a Stripe Provider.
func New(cfg Config) (*Provider, error) {
	sessions := cfg.Sessions
	if sessions == nil {
		key := strings.TrimSpace(cfg.SecretKey)
		if key == "" {
			return nil, errors.New("stripe: secret key is required")
		}
		sessions = client.New(key, cfg.Backends).CheckoutSessions
	}
	return &Provider{
		sessions:      sessions,
		webhookSecret: cfg.WebhookSecret,
	}, nil
}

// CreateCheckoutSession creates a payment mode Checkout session with one
// price_data line per checkout line.
func (p *Provider) CreateCheckoutSession(ctx context.Context, req payment.SessionRequest) (*payment.Session, error) {
	if len(req.Lines) == 0 {
		return nil, errors.New("stripe: no checkout lines")
	}
	currency := strings.ToLower(req.Currency)

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		Metadata:   copyMetadata(req.Metadata),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: copyMetadata(req.Metadata),
		},
	}
	params.Context = ctx
	if req.OrderID != "" {
		params.SetIdempotencyKey("checkout-" + req.OrderID)
		params.ClientReferenceID = stripe.String(req.OrderID)
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}

	params.LineItems = make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Lines))
	for _, l := range req.Lines {
		if l.UnitAmountCents < 0 {
			return nil, errors.Errorf("stripe: negative amount on line %q", l.Name)
		}
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(l.Name),
		}
		if len(l.Metadata) > 0 {
			product.Metadata = copyMetadata(l.Metadata)
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(l.Quantity),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(currency),
				UnitAmount:  stripe.Int64(l.UnitAmountCents),
				ProductData: product,
			},
		})
	}

	session, err := p.sessions.New(params)
	if err != nil {
		return nil, errors.Wrap(err, "stripe: create checkout session")
	}

	zctx.From(ctx).Debug("Checkout session created",
		zap.String("session_id", session.ID),
		zap.String("order_id", req.OrderID),
	)
	return &payment.Session{ID: session.ID, URL: session.URL}, nil
}

// ParseWebhook verifies the Stripe-Signature header and extracts the order
// reference from the event payload.
func (p *Provider) ParseWebhook(payload []byte, signature string) (*payment.Event, error) {
	if p.webhookSecret == "" {
		return nil, errors.New("stripe: webhook secret is not configured")
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		return nil, errors.Wrap(payment.ErrInvalidSignature, err.Error())
	}

	out := &payment.Event{ID: ev.ID, Type: payment.EventType(ev.Type)}
	if ev.Data == nil {
		return out, nil
	}

	switch out.Type {
	case payment.EventCheckoutCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &session); err != nil {
			return nil, errors.Wrap(err, "decode checkout session")
		}
		out.SessionID = session.ID
		out.OrderID = session.Metadata["order_id"]
		if out.OrderID == "" {
			out.OrderID = session.ClientReferenceID
		}
		if session.PaymentIntent != nil {
			out.PaymentIntentID = session.PaymentIntent.ID
		}
	case payment.EventPaymentSucceeded, payment.EventPaymentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &intent); err != nil {
			return nil, errors.Wrap(err, "decode payment intent")
		}
		out.PaymentIntentID = intent.ID
		out.OrderID = intent.Metadata["order_id"]
	}
	return out, nil
}

func copyMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
