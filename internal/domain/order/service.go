package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/printshop/internal/domain/cart"
	"github.com/xenking/printshop/internal/domain/payment"
	"github.com/xenking/printshop/internal/domain/pricing"
)

const instrumentationName = "github.com/xenking/printshop/internal/domain/order"

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	Items         []cart.Item
	CustomerEmail string
}

// PlaceOrderResult holds the persisted order and where to send the customer
// to pay for it.
type PlaceOrderResult struct {
	Order      *Order
	SessionURL string
}

// ServiceConfig configures a Service. Nil providers fall back to no-op ones.
type ServiceConfig struct {
	Policy     Policy
	SuccessURL string
	CancelURL  string

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Service prices carts, persists orders and drives their payment lifecycle.
type Service struct {
	policy     Policy
	successURL string
	cancelURL  string

	tiers    pricing.Repository
	orders   Repository
	events   EventLog
	payments payment.Provider

	tracer   trace.Tracer
	priced   metric.Int64Counter
	failures metric.Int64Counter
}

// NewService creates an order Service with the required dependencies.
func NewService(
	cfg ServiceConfig,
	tiers pricing.Repository,
	orders Repository,
	events EventLog,
	payments payment.Provider,
) (*Service, error) {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = tracenoop.NewTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = metricnoop.NewMeterProvider()
	}
	if cfg.Policy.Currency == "" {
		cfg.Policy.Currency = "eur"
	}

	meter := cfg.MeterProvider.Meter(instrumentationName)
	priced, err := meter.Int64Counter("printshop.orders.priced",
		metric.WithDescription("Carts priced successfully"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "orders priced counter")
	}
	failures, err := meter.Int64Counter("printshop.pricing.failures",
		metric.WithDescription("Pricing failures by reason"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "pricing failures counter")
	}

	return &Service{
		policy:     cfg.Policy,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		tiers:      tiers,
		orders:     orders,
		events:     events,
		payments:   payments,
		tracer:     cfg.TracerProvider.Tracer(instrumentationName),
		priced:     priced,
		failures:   failures,
	}, nil
}

// Policy returns the pricing policy the service applies.
func (s *Service) Policy() Policy {
	return s.policy
}

// Quote validates and prices a cart without persisting anything.
func (s *Service) Quote(ctx context.Context, items []cart.Item) (*PricedOrder, error) {
	ctx, span := s.tracer.Start(ctx, "order.Quote",
		trace.WithAttributes(attribute.Int("printshop.items", len(items))),
	)
	defer span.End()

	priced, err := s.quote(ctx, items)
	if err != nil {
		span.RecordError(err)
		s.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", FailureReason(err))))
		return nil, err
	}
	s.priced.Add(ctx, 1)
	return priced, nil
}

func (s *Service) quote(ctx context.Context, items []cart.Item) (*PricedOrder, error) {
	if err := cart.Validate(items); err != nil {
		return nil, err
	}

	all, err := s.lookupTiers(ctx, items)
	if err != nil {
		return nil, err
	}

	priced, err := PriceOrder(items, all, s.policy)
	if err != nil {
		logPricingError(ctx, err)
		return nil, err
	}
	return priced, nil
}

// lookupTiers fetches the tiers of every distinct signature in the cart
// concurrently. The first failure cancels the remaining lookups.
func (s *Service) lookupTiers(ctx context.Context, items []cart.Item) ([]pricing.Tier, error) {
	seen := make(map[string]struct{}, len(items))
	var sigs []cart.Signature
	for _, item := range items {
		sig := item.Signature()
		if _, ok := seen[sig.Key()]; ok {
			continue
		}
		seen[sig.Key()] = struct{}{}
		sigs = append(sigs, sig)
	}

	results := make([][]pricing.Tier, len(sigs))
	g, gctx := errgroup.WithContext(ctx)
	for i, sig := range sigs {
		g.Go(func() error {
			tiers, err := s.tiers.FindTiers(gctx, sig)
			if err != nil {
				return &RepositoryUnavailableError{Signature: sig, Err: err}
			}
			results[i] = tiers
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []pricing.Tier
	for _, tiers := range results {
		all = append(all, tiers...)
	}
	return all, nil
}

// PlaceOrder prices the cart, persists the order and opens a checkout
// session for it. Nothing is persisted when pricing fails. When the payment
// provider fails the order stays pending.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder")
	defer span.End()

	priced, err := s.Quote(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	o := &Order{
		ID:            uuid.New().String(),
		Status:        StatusPending,
		CustomerEmail: req.CustomerEmail,
		Pricing:       *priced,
		CreatedAt:     time.Now().UTC(),
	}
	span.SetAttributes(attribute.String("printshop.order_id", o.ID))

	if err := s.orders.Create(ctx, o); err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "create order")
	}

	session, err := s.payments.CreateCheckoutSession(ctx, payment.SessionRequest{
		OrderID:       o.ID,
		Currency:      priced.Currency,
		CustomerEmail: req.CustomerEmail,
		Lines:         CheckoutLines(priced),
		SuccessURL:    s.successURL,
		CancelURL:     s.cancelURL,
		Metadata:      map[string]string{"order_id": o.ID},
	})
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrapf(err, "create checkout session for order %s", o.ID)
	}

	if err := s.orders.SetCheckoutSession(ctx, o.ID, session.ID); err != nil {
		return nil, errors.Wrap(err, "store checkout session")
	}
	o.CheckoutSessionID = session.ID

	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.Int64("grand_total_cents", priced.GrandTotalCents),
		zap.String("session_id", session.ID),
	)

	return &PlaceOrderResult{Order: o, SessionURL: session.URL}, nil
}

// Get returns a persisted order.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %s", id)
	}
	return o, nil
}

// MarkPaid records a successful payment. Marking an already paid order
// again is a no-op at the storage layer.
func (s *Service) MarkPaid(ctx context.Context, orderID, paymentIntentID string) error {
	if err := s.orders.MarkPaid(ctx, orderID, paymentIntentID); err != nil {
		return errors.Wrapf(err, "mark order %s paid", orderID)
	}
	return nil
}

// HandleEvent applies a verified payment notification. Events already
// processed are skipped.
func (s *Service) HandleEvent(ctx context.Context, ev *payment.Event) error {
	lg := zctx.From(ctx).With(
		zap.String("event_id", ev.ID),
		zap.String("event_type", string(ev.Type)),
	)

	fresh, err := s.events.Begin(ctx, ev.ID, string(ev.Type))
	if err != nil {
		return errors.Wrap(err, "begin event")
	}
	if !fresh {
		lg.Debug("Event already processed")
		return nil
	}

	switch ev.Type {
	case payment.EventCheckoutCompleted:
		if ev.OrderID == "" {
			lg.Warn("Checkout session without order id", zap.String("session_id", ev.SessionID))
			break
		}
		if err := s.MarkPaid(ctx, ev.OrderID, ev.PaymentIntentID); err != nil {
			return err
		}
		lg.Info("Order paid", zap.String("order_id", ev.OrderID))
	case payment.EventPaymentFailed:
		lg.Warn("Payment failed", zap.String("payment_intent_id", ev.PaymentIntentID))
	default:
		lg.Debug("Ignoring event")
	}

	if err := s.events.Finish(ctx, ev.ID); err != nil {
		return errors.Wrap(err, "finish event")
	}
	return nil
}

// FailureReason classifies a pricing error for metrics.
func FailureReason(err error) string {
	var (
		noPricing   *pricing.NoPricingFoundError
		incomplete  *pricing.IncompleteGridError
		invalidGrid *pricing.InvalidGridError
		repo        *RepositoryUnavailableError
		qty         *cart.InvalidQuantityError
		opt         *cart.InvalidOptionError
	)
	switch {
	case errors.As(err, &noPricing):
		return "no_pricing"
	case errors.As(err, &incomplete):
		return "incomplete_grid"
	case errors.As(err, &invalidGrid):
		return "invalid_grid"
	case errors.As(err, &repo):
		return "repository"
	case errors.As(err, &qty), errors.As(err, &opt), errors.Is(err, cart.ErrEmptyCart):
		return "invalid_input"
	default:
		return "internal"
	}
}

// logPricingError reports grid faults, which are configuration defects
// rather than customer mistakes.
func logPricingError(ctx context.Context, err error) {
	var (
		incomplete  *pricing.IncompleteGridError
		invalidGrid *pricing.InvalidGridError
	)
	lg := zctx.From(ctx)
	switch {
	case errors.As(err, &incomplete):
		lg.Error("Pricing grid does not cover quantity",
			zap.String("signature", incomplete.Signature.String()),
			zap.Int("requested", incomplete.RequestedQuantity),
			zap.Int("priced", incomplete.PricedQuantity),
			zap.Int("uncovered", incomplete.Uncovered),
		)
	case errors.As(err, &invalidGrid):
		lg.Error("Invalid pricing grid",
			zap.String("signature", invalidGrid.Signature.String()),
			zap.Int("seq", invalidGrid.Seq),
			zap.String("reason", invalidGrid.Reason),
		)
	}
}

// CheckoutURLs derives the success and cancel URLs from the storefront base
// URL. The success URL carries the provider's session id placeholder.
func CheckoutURLs(siteURL string) (success, cancel string) {
	base := strings.TrimRight(siteURL, "/")
	return base + "/merci?session_id={CHECKOUT_SESSION_ID}", base + "/commande?canceled=1"
}
