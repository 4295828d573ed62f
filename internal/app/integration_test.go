//go:build integration

package app

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/xenking/printshop/db"
	"github.com/xenking/printshop/internal/domain/order"
	"github.com/xenking/printshop/internal/grid"
	"github.com/xenking/printshop/internal/handler"
	"github.com/xenking/printshop/internal/payment/stripepay"
	"github.com/xenking/printshop/internal/storage/postgres"
	"github.com/xenking/printshop/internal/storage/rediscache"
	"github.com/xenking/printshop/pkg/httpmiddleware"
)

const webhookSecret = "whsec_integration"

var databaseURL string

// Response types are defined locally to keep the tests black-box.

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type pricingResponse struct {
	Currency          string `json:"currency"`
	SubtotalCents     int64  `json:"subtotalCents"`
	ShippingCents     int64  `json:"shippingCents"`
	TaxCents          int64  `json:"taxCents"`
	GrandTotalCents   int64  `json:"grandTotalCents"`
	GrandTotalDisplay string `json:"grandTotalDisplay"`
	Items             []struct {
		ProductKind       string `json:"productKind"`
		RequestedQuantity int    `json:"requestedQuantity"`
		Quantity          int    `json:"quantity"`
		TotalCents        int64  `json:"totalCents"`
	} `json:"items"`
}

type checkoutResponse struct {
	OrderID     string          `json:"orderId"`
	Status      string          `json:"status"`
	CheckoutURL string          `json:"checkoutUrl"`
	Pricing     pricingResponse `json:"pricing"`
}

type orderResponse struct {
	ID      string          `json:"id"`
	Status  string          `json:"status"`
	Pricing pricingResponse `json:"pricing"`
}

type fakeSessions struct{}

func (fakeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	id := "cs_test_" + *params.ClientReferenceID
	return &stripe.CheckoutSession{ID: id, URL: "https://checkout.stripe.com/c/pay/" + id}, nil
}

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "printshop",
				"POSTGRES_PASSWORD": "printshop",
				"POSTGRES_DB":       "printshop",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() { _ = container.Terminate(context.Background()) }()

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}
	databaseURL = fmt.Sprintf("postgres://printshop:printshop@%s:%s/printshop?sslmode=disable", host, port.Port())

	return m.Run()
}

// newTestServer wires the API the way Run does, with Stripe sessions faked
// and Redis served by miniredis.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, databaseURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, postgres.RunMigrations(ctx, pool))

	rows, err := grid.DecodeJSON(db.DefaultGrid)
	require.NoError(t, err)
	tiers, err := grid.Tiers(rows)
	require.NoError(t, err)
	require.NoError(t, postgres.NewTierRepository(pool).ReplaceGrid(ctx, tiers))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := validConfig()
	cfg.DatabaseURL = databaseURL
	policy, err := cfg.Policy()
	require.NoError(t, err)

	payments, err := stripepay.New(stripepay.Config{WebhookSecret: webhookSecret, Sessions: fakeSessions{}})
	require.NoError(t, err)

	success, cancel := order.CheckoutURLs(cfg.Stripe.SiteURL)
	svc, err := order.NewService(order.ServiceConfig{Policy: policy, SuccessURL: success, CancelURL: cancel},
		rediscache.NewTierCache(postgres.NewTierRepository(pool), rdb, time.Minute),
		postgres.NewOrderRepository(pool),
		postgres.NewEventLog(pool),
		payments,
	)
	require.NoError(t, err)

	mux := http.NewServeMux()
	handler.NewHandler(svc, payments).Register(mux)
	srv := httptest.NewServer(newServerHandler(mux, zap.NewNop(), noopTelemetry{}, cfg,
		httpmiddleware.NewRedisStore(rdb, "printshop:ratelimit:", cfg.RateLimit.Max, cfg.RateLimit.Window)))
	t.Cleanup(srv.Close)
	return srv
}

// HTTP helpers.

func doPost(t *testing.T, srv *httptest.Server, path string, body []byte, headers ...string) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, srv.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func doGet(t *testing.T, srv *httptest.Server, path string) *http.Response {
	t.Helper()

	resp, err := srv.Client().Get(srv.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func signWebhook(payload []byte) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	_, _ = fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

// Tests.

func TestQuote_SeededGrid(t *testing.T) {
	srv := newTestServer(t)

	for _, tt := range []struct {
		name     string
		body     string
		qty      int
		subtotal int64
		shipping int64
		tax      int64
		grand    int64
	}{
		// 1500 manifestos: 90 € for the first 1000, 35 € for the next 500.
		{"ProfessionsDeFoi", `{"items":[{"productKind":"professions_de_foi","impression":"recto","quantity":1500}]}`,
			1500, 12500, 0, 2500, 15000},
		// 200 manifestos are billed as 500, below the free shipping threshold.
		{"RoundedUpWithShipping", `{"items":[{"productKind":"professions_de_foi","impression":"recto","quantity":200}]}`,
			500, 9000, 1500, 2100, 12600},
		// 12 posters: 297 € for the first 10, 9,90 € each after.
		{"Affiches", `{"items":[{"productKind":"affiches","afficheFormat":"grand_format","quantity":12}]}`,
			12, 31680, 0, 6336, 38016},
	} {
		t.Run(tt.name, func(t *testing.T) {
			resp := doPost(t, srv, "/api/quote", []byte(tt.body))
			require.Equal(t, http.StatusOK, resp.StatusCode)

			p := decodeJSON[pricingResponse](t, resp)
			require.Len(t, p.Items, 1)
			assert.Equal(t, tt.qty, p.Items[0].Quantity)
			assert.Equal(t, tt.subtotal, p.SubtotalCents)
			assert.Equal(t, tt.shipping, p.ShippingCents)
			assert.Equal(t, tt.tax, p.TaxCents)
			assert.Equal(t, tt.grand, p.GrandTotalCents)
			assert.Equal(t, p.SubtotalCents+p.ShippingCents+p.TaxCents, p.GrandTotalCents)
		})
	}
}

func TestQuote_Errors(t *testing.T) {
	srv := newTestServer(t)

	resp := doPost(t, srv, "/api/quote", []byte(`{"items":[]}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doPost(t, srv, "/api/quote", []byte(`{"items":[{"productKind":"affiches","afficheFormat":"grand_format","quantity":0}]}`))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = doPost(t, srv, "/api/quote", []byte(`{"items":[{"productKind":"affiches","impression":"recto","afficheFormat":"grand_format","quantity":1}]}`))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	e := decodeJSON[errorResponse](t, resp)
	assert.Equal(t, 400, e.Code)
}

func TestCheckoutAndWebhook(t *testing.T) {
	srv := newTestServer(t)

	resp := doPost(t, srv, "/api/checkout", []byte(`{
		"customerEmail": "mairie@example.fr",
		"items": [
			{"productKind": "bulletins_de_vote", "impression": "recto", "bulletinFormat": "liste_5_31", "quantity": 2000},
			{"productKind": "affiches", "afficheFormat": "petit_format", "quantity": 10}
		]
	}`))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	co := decodeJSON[checkoutResponse](t, resp)
	assert.Equal(t, "pending", co.Status)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_"+co.OrderID, co.CheckoutURL)
	// Ballots: 40 € + 25 €; posters: 149 €.
	assert.Equal(t, int64(4000+2500+14900), co.Pricing.SubtotalCents)

	resp = doGet(t, srv, "/api/orders/"+co.OrderID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeJSON[orderResponse](t, resp)
	assert.Equal(t, "pending", got.Status)
	assert.Equal(t, co.Pricing.GrandTotalCents, got.Pricing.GrandTotalCents)
	require.Len(t, got.Pricing.Items, 2)
	assert.Equal(t, "bulletins_de_vote", got.Pricing.Items[0].ProductKind)

	payload := []byte(fmt.Sprintf(`{
		"id": "evt_paid_%[1]s",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_test_%[1]s",
			"object": "checkout.session",
			"client_reference_id": "%[1]s",
			"metadata": {"order_id": "%[1]s"},
			"payment_intent": "pi_%[1]s"
		}}
	}`, co.OrderID))

	resp = doPost(t, srv, "/api/stripe/webhook", payload, "Stripe-Signature", "t=1,v1=forged")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Delivered twice: the second delivery is a no-op.
	for range 2 {
		resp = doPost(t, srv, "/api/stripe/webhook", payload, "Stripe-Signature", signWebhook(payload))
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp = doGet(t, srv, "/api/orders/"+co.OrderID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "paid", decodeJSON[orderResponse](t, resp).Status)
}

func TestGetOrder_NotFound(t *testing.T) {
	srv := newTestServer(t)

	resp := doGet(t, srv, "/api/orders/7d1f0c2e-9a4b-4c1d-8e2f-000000000000")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
