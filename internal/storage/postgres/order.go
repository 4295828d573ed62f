package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/printshop/internal/domain/cart"
	"github.com/xenking/printshop/internal/domain/order"
	"github.com/xenking/printshop/internal/domain/pricing"
)

const createOrderSQL = `INSERT INTO orders (
		id, status, customer_email, currency, tax_rate,
		subtotal_cents, shipping_cents, tax_cents, grand_total_cents, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

const createOrderItemSQL = `INSERT INTO order_items (
		order_id, position, product_kind, impression, bulletin_format, affiche_format,
		requested_quantity, quantity, unit_price_cents, total_cents, breakdown
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

const getOrderSQL = `SELECT id, status, customer_email, currency, tax_rate,
		subtotal_cents, shipping_cents, tax_cents, grand_total_cents,
		checkout_session_id, payment_intent_id, created_at
	FROM orders WHERE id = $1`

const getOrderItemsSQL = `SELECT product_kind, impression, bulletin_format, affiche_format,
		requested_quantity, quantity, unit_price_cents, total_cents, breakdown
	FROM order_items WHERE order_id = $1 ORDER BY position`

const setCheckoutSessionSQL = `UPDATE orders SET checkout_session_id = $2 WHERE id = $1`

// Paid is terminal; repeating the update keeps the first paid_at.
const markPaidSQL = `UPDATE orders SET
		status            = 'paid',
		payment_intent_id = COALESCE(NULLIF($2, ''), payment_intent_id),
		paid_at           = COALESCE(paid_at, now())
	WHERE id = $1`

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order and its items in one transaction. Breakdowns are
// stored verbatim in a JSONB column.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	p := o.Pricing

	batch := &pgx.Batch{}
	batch.Queue(createOrderSQL,
		o.ID, string(o.Status), o.CustomerEmail, p.Currency, p.TaxRate,
		p.SubtotalCents, p.ShippingCents, p.TaxCents, p.GrandTotalCents, o.CreatedAt,
	)
	for i, it := range p.Items {
		breakdown, err := json.Marshal(it.Breakdown)
		if err != nil {
			return errors.Wrapf(err, "marshal breakdown of item %d", i)
		}
		sig := it.Item.Signature()
		batch.Queue(createOrderItemSQL,
			o.ID, int32(i), string(sig.Kind),
			nullable(sig.Impression), nullable(sig.BulletinFormat), nullable(sig.AfficheFormat),
			int32(it.RequestedQuantity), int32(it.Quantity), it.UnitPriceCents, it.TotalCents, breakdown,
		)
	}

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return errors.Wrapf(err, "create order %q", o.ID)
	}
	return nil
}

// Get loads an order with its items in their original cart order.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := r.pool.QueryRow(ctx, getOrderSQL, id).Scan(
		&o.ID, &status, &o.CustomerEmail, &o.Pricing.Currency, &o.Pricing.TaxRate,
		&o.Pricing.SubtotalCents, &o.Pricing.ShippingCents, &o.Pricing.TaxCents, &o.Pricing.GrandTotalCents,
		&o.CheckoutSessionID, &o.PaymentIntentID, &o.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, order.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	o.Status = order.Status(status)

	rows, err := r.pool.Query(ctx, getOrderItemsSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "query items of order %q", id)
	}
	items, err := pgx.CollectRows(rows, scanPricedItem)
	if err != nil {
		return nil, errors.Wrapf(err, "scan items of order %q", id)
	}
	o.Pricing.Items = items

	return &o, nil
}

// SetCheckoutSession stores the payment session id on the order.
func (r *OrderRepository) SetCheckoutSession(ctx context.Context, id, sessionID string) error {
	tag, err := r.pool.Exec(ctx, setCheckoutSessionSQL, id, sessionID)
	if err != nil {
		return errors.Wrapf(err, "set checkout session of order %q", id)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// MarkPaid flags the order as paid. It is safe to call more than once.
func (r *OrderRepository) MarkPaid(ctx context.Context, id, paymentIntentID string) error {
	tag, err := r.pool.Exec(ctx, markPaidSQL, id, paymentIntentID)
	if err != nil {
		return errors.Wrapf(err, "mark order %q paid", id)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func scanPricedItem(row pgx.CollectableRow) (order.PricedItem, error) {
	var (
		kind                   string
		imp, bulletin, affiche *string
		requested, qty         int32
		it                     order.PricedItem
		breakdown              []byte
	)
	if err := row.Scan(&kind, &imp, &bulletin, &affiche,
		&requested, &qty, &it.UnitPriceCents, &it.TotalCents, &breakdown,
	); err != nil {
		return order.PricedItem{}, err
	}

	sig := cart.Signature{
		Kind:           cart.ProductKind(kind),
		Impression:     cart.Impression(deref(imp)),
		BulletinFormat: cart.BulletinFormat(deref(bulletin)),
		AfficheFormat:  cart.AfficheFormat(deref(affiche)),
	}
	item, err := cart.FromSignature(sig, int(requested))
	if err != nil {
		return order.PricedItem{}, errors.Wrap(err, "rebuild item")
	}
	it.Item = item
	it.RequestedQuantity = int(requested)
	it.Quantity = int(qty)

	var entries []pricing.BreakdownEntry
	if err := json.Unmarshal(breakdown, &entries); err != nil {
		return order.PricedItem{}, errors.Wrap(err, "decode breakdown")
	}
	it.Breakdown = entries
	return it, nil
}
