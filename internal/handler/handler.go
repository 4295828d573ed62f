// Package handler implements the storefront JSON API on top of the order
// service.
package handler

import (
	"context"
	"net/http"

	"github.com/xenking/printshop/internal/domain/cart"
	"github.com/xenking/printshop/internal/domain/order"
	"github.com/xenking/printshop/internal/domain/payment"
)

const (
	maxCartBytes    = 1 << 20
	maxWebhookBytes = 64 << 10
)

// OrderService is the order workflow the API exposes.
type OrderService interface {
	Quote(ctx context.Context, items []cart.Item) (*order.PricedOrder, error)
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.PlaceOrderResult, error)
	Get(ctx context.Context, id string) (*order.Order, error)
	HandleEvent(ctx context.Context, ev *payment.Event) error
}

// WebhookVerifier authenticates payment provider notifications.
type WebhookVerifier interface {
	ParseWebhook(payload []byte, signature string) (*payment.Event, error)
}

var (
	_ OrderService    = (*order.Service)(nil)
	_ WebhookVerifier = (payment.Provider)(nil)
)

// Handler serves the /api routes.
type Handler struct {
	orders   OrderService
	webhooks WebhookVerifier
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(orders OrderService, webhooks WebhookVerifier) *Handler {
	return &Handler{
		orders:   orders,
		webhooks: webhooks,
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/quote", h.Quote)
	mux.HandleFunc("POST /api/checkout", h.Checkout)
	mux.HandleFunc("GET /api/orders/{id}", h.GetOrder)
	mux.HandleFunc("POST /api/stripe/webhook", h.Webhook)
}
