// Package app wires the API server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/printshop/internal/domain/order"
	"github.com/xenking/printshop/internal/handler"
	"github.com/xenking/printshop/internal/payment/stripepay"
	"github.com/xenking/printshop/internal/storage/postgres"
	"github.com/xenking/printshop/internal/storage/rediscache"
	"github.com/xenking/printshop/pkg/health"
	"github.com/xenking/printshop/pkg/httpmiddleware"
)

const serviceName = "printshop-api"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	policy, err := cfg.Policy()
	if err != nil {
		return errors.Wrap(err, "pricing policy")
	}

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck("postgres", pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Redis is optional: without it tiers are read from Postgres on every
	// lookup and rate limits are per process.
	var rdb redis.UniversalClient
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return errors.Wrap(err, "parse redis url")
		}
		client := redis.NewClient(opts)
		defer func() { _ = client.Close() }()
		rdb = client

		healthSvc.AddReadinessCheck("redis", 2*time.Second, health.PingCheck("redis",
			health.PingFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() }),
		), health.WithThresholds(5, 1))
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	tierRepo := rediscache.NewTierCache(postgres.NewTierRepository(pool), rdb, cfg.Redis.CacheTTL)
	orderRepo := postgres.NewOrderRepository(pool)
	eventLog := postgres.NewEventLog(pool)

	payments, err := stripepay.New(stripepay.Config{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
	})
	if err != nil {
		return errors.Wrap(err, "create stripe provider")
	}

	// Domain services.
	successURL, cancelURL := order.CheckoutURLs(cfg.Stripe.SiteURL)
	orderService, err := order.NewService(order.ServiceConfig{
		Policy:         policy,
		SuccessURL:     successURL,
		CancelURL:      cancelURL,
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	}, tierRepo, orderRepo, eventLog, payments)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	handler.NewHandler(orderService, payments).Register(mux)

	rateStore, err := newRateStore(ctx, cfg.RateLimit, rdb)
	if err != nil {
		return err
	}

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           newServerHandler(mux, lg, m, cfg, rateStore),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newServerHandler wraps mux with the middleware chain. The request id and
// logger come first so that every later middleware can log with them.
func newServerHandler(
	mux *http.ServeMux,
	lg *zap.Logger,
	m httpmiddleware.Telemetry,
	cfg *Config,
	rateStore httpmiddleware.Store,
) http.Handler {
	routeFinder := httpmiddleware.MakeRouteFinder(mux)
	return httpmiddleware.Wrap(mux,
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", httpmiddleware.HeaderRequestID},
			ExposeHeaders:    []string{httpmiddleware.HeaderRequestID, "Retry-After"},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
			Store:  rateStore,
		}),
		httpmiddleware.Instrument(serviceName, routeFinder, m),
		httpmiddleware.LogRequests(routeFinder),
		httpmiddleware.Labeler(routeFinder),
	)
}

// newRateStore picks the rate limit backend. The memory store is swept until
// ctx is done.
func newRateStore(ctx context.Context, cfg RateLimitConfig, rdb redis.UniversalClient) (httpmiddleware.Store, error) {
	switch cfg.Store {
	case "redis":
		if rdb == nil {
			return nil, errors.New("redis rate limit store requires a redis URL")
		}
		return httpmiddleware.NewRedisStore(rdb, "printshop:ratelimit:", cfg.Max, cfg.Window), nil
	default:
		s := httpmiddleware.NewMemoryStore(cfg.Max, cfg.Window)
		s.StartSweeper(ctx)
		return s, nil
	}
}
