package stripepay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78"

	"github.com/xenking/printshop/internal/domain/payment"
)

type fakeSessions struct {
	params *stripe.CheckoutSessionParams
	err    error
}

func (f *fakeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.CheckoutSession{ID: "cs_test_123", URL: "https://checkout.stripe.com/c/pay/cs_test_123"}, nil
}

const testSecret = "whsec_test"

func sign(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func newTestProvider(t *testing.T, sessions *fakeSessions) *Provider {
	t.Helper()
	p, err := New(Config{WebhookSecret: testSecret, Sessions: sessions})
	require.NoError(t, err)
	return p
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestCreateCheckoutSession(t *testing.T) {
	sessions := &fakeSessions{}
	p := newTestProvider(t, sessions)

	s, err := p.CreateCheckoutSession(context.Background(), payment.SessionRequest{
		OrderID:       "order-1",
		Currency:      "EUR",
		CustomerEmail: "mairie@example.fr",
		SuccessURL:    "https://shop.example/merci",
		CancelURL:     "https://shop.example/commande?canceled=1",
		Metadata:      map[string]string{"order_id": "order-1"},
		Lines: []payment.Line{
			{Name: "Professions de foi - Recto", UnitAmountCents: 40, Quantity: 200},
			{Name: "TVA 20 %", UnitAmountCents: 1600, Quantity: 1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_123", s.ID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_123", s.URL)

	params := sessions.params
	require.NotNil(t, params)
	assert.Equal(t, string(stripe.CheckoutSessionModePayment), *params.Mode)
	assert.Equal(t, "mairie@example.fr", *params.CustomerEmail)
	assert.Equal(t, "order-1", params.Metadata["order_id"])
	assert.Equal(t, "order-1", params.PaymentIntentData.Metadata["order_id"])
	assert.Equal(t, "order-1", *params.ClientReferenceID)
	require.Len(t, params.LineItems, 2)
	assert.Equal(t, "eur", *params.LineItems[0].PriceData.Currency)
	assert.Equal(t, int64(40), *params.LineItems[0].PriceData.UnitAmount)
	assert.Equal(t, int64(200), *params.LineItems[0].Quantity)
	assert.Equal(t, "TVA 20 %", *params.LineItems[1].PriceData.ProductData.Name)
}

func TestCreateCheckoutSession_Errors(t *testing.T) {
	sessions := &fakeSessions{err: errors.New("card_declined")}
	p := newTestProvider(t, sessions)

	_, err := p.CreateCheckoutSession(context.Background(), payment.SessionRequest{})
	require.Error(t, err)

	_, err = p.CreateCheckoutSession(context.Background(), payment.SessionRequest{
		Lines: []payment.Line{{Name: "x", UnitAmountCents: -1, Quantity: 1}},
	})
	require.ErrorContains(t, err, "negative amount")

	_, err = p.CreateCheckoutSession(context.Background(), payment.SessionRequest{
		Lines: []payment.Line{{Name: "x", UnitAmountCents: 1, Quantity: 1}},
	})
	require.ErrorContains(t, err, "card_declined")
}

func TestParseWebhook_CheckoutCompleted(t *testing.T) {
	p := newTestProvider(t, &fakeSessions{})
	payload := []byte(`{
		"id": "evt_1",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_test_123",
			"object": "checkout.session",
			"payment_intent": "pi_123",
			"metadata": {"order_id": "order-1"}
		}}
	}`)

	ev, err := p.ParseWebhook(payload, sign(payload, testSecret, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, &payment.Event{
		ID:              "evt_1",
		Type:            payment.EventCheckoutCompleted,
		OrderID:         "order-1",
		SessionID:       "cs_test_123",
		PaymentIntentID: "pi_123",
	}, ev)
}

func TestParseWebhook_PaymentFailed(t *testing.T) {
	p := newTestProvider(t, &fakeSessions{})
	payload := []byte(`{
		"id": "evt_2",
		"object": "event",
		"type": "payment_intent.payment_failed",
		"data": {"object": {"id": "pi_9", "object": "payment_intent", "metadata": {"order_id": "order-9"}}}
	}`)

	ev, err := p.ParseWebhook(payload, sign(payload, testSecret, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, payment.EventPaymentFailed, ev.Type)
	assert.Equal(t, "pi_9", ev.PaymentIntentID)
	assert.Equal(t, "order-9", ev.OrderID)
}

func TestParseWebhook_InvalidSignature(t *testing.T) {
	p := newTestProvider(t, &fakeSessions{})
	payload := []byte(`{"id": "evt_3", "object": "event", "type": "checkout.session.completed"}`)

	_, err := p.ParseWebhook(payload, sign(payload, "whsec_other", time.Now()))
	require.ErrorIs(t, err, payment.ErrInvalidSignature)

	_, err = p.ParseWebhook(payload, "")
	require.ErrorIs(t, err, payment.ErrInvalidSignature)

	_, err = p.ParseWebhook(payload, sign(payload, testSecret, time.Now().Add(-time.Hour)))
	require.ErrorIs(t, err, payment.ErrInvalidSignature)
}
