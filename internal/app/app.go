package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/ecomify/internal/domain/cart"
	"github.com/xenking/ecomify/internal/domain/discount"
	"github.com/xenking/ecomify/internal/domain/money"
	"github.com/xenking/ecomify/internal/domain/order"
	"github.com/xenking/ecomify/internal/domain/payment"
	"github.com/xenking/ecomify/internal/events"
	"github.com/xenking/ecomify/internal/handler"
	"github.com/xenking/ecomify/internal/storage/postgres"
	redisstore "github.com/xenking/ecomify/internal/storage/redis"
	"github.com/xenking/ecomify/pkg/health"
	"github.com/xenking/ecomify/pkg/httpmiddleware"
)

const serviceName = "ecomify"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	currency, err := money.ParseCurrency(cfg.Currency)
	if err != nil {
		return errors.Wrap(err, "currency")
	}
	meter := m.MeterProvider().Meter(serviceName)

	// PostgreSQL pool + migrations.
	if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()
	db := postgres.NewDB(pool, lg.Named("postgres"))

	// Redis cart store.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = rdb.Close() }()
	cartStore := redisstore.NewCartStore(rdb, cfg.Redis.CartTTL, cfg.Redis.CartTTLJitter)

	publisher, closePublisher, err := newPublisher(cfg.Events, lg)
	if err != nil {
		return errors.Wrap(err, "create event publisher")
	}
	defer closePublisher()

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck("postgres", db))
	healthSvc.AddReadinessCheck("redis", 2*time.Second, health.PingCheck("redis", cartStore))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	productRepo := postgres.NewProductRepository(db)
	discountRepo := postgres.NewDiscountRepository(db)
	orderRepo := postgres.NewOrderRepository(db)
	paymentRepo := postgres.NewPaymentRepository(db)
	apikeyRepo := postgres.NewAPIKeyRepository(db)

	// Domain services.
	strategies := discount.NewStrategies(discountRepo, cfg.Discounts.Policy())
	discountSvc, err := discount.NewService(discountRepo, discountRepo, strategies, meter)
	if err != nil {
		return errors.Wrap(err, "create discount service")
	}
	orderSvc := order.NewService(productRepo, discountSvc, orderRepo, db, currency)
	paymentSvc, err := payment.NewService(paymentRepo, orderSvc, publisher, meter)
	if err != nil {
		return errors.Wrap(err, "create payment service")
	}
	cartSvc := cart.NewService(cartStore, productRepo, discountSvc, currency)

	// HTTP handlers.
	h := handler.New(
		handler.Config{ImageBaseURL: cfg.ImageBaseURL, APIKeyPepper: []byte(cfg.APIKeyPepper)},
		productRepo,
		apikeyRepo,
		cartSvc,
		discountSvc,
		orderSvc,
		paymentSvc,
	)

	// Router: health endpoints + API routes on one server.
	root := chi.NewRouter()
	root.Get("/livez", healthSvc.LiveEndpoint)
	root.Get("/readyz", healthSvc.ReadyEndpoint)
	root.Mount("/api", h.Routes())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(root,
			httpmiddleware.Recovery(),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Routes(),
			httpmiddleware.Instrument(serviceName+"-api",
				otelhttp.WithMeterProvider(m.MeterProvider()),
				otelhttp.WithTracerProvider(m.TracerProvider()),
			),
			httpmiddleware.Labeler(),
			httpmiddleware.LogRequests(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", handler.HeaderAPIKey, httpmiddleware.HeaderRequestID},
				ExposeHeaders:    []string{httpmiddleware.HeaderRequestID},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			// Runs before authentication, so only the client address is a
			// trustworthy key.
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
		),
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

// newPublisher returns the payment event publisher for the configured driver
// and a func releasing its connection. The "none" driver returns a nil
// publisher, which disables events.
func newPublisher(cfg EventsConfig, lg *zap.Logger) (payment.Publisher, func(), error) {
	switch cfg.Driver {
	case "kafka":
		w := events.NewKafkaWriter(cfg.Brokers, cfg.Topic)
		p := events.NewKafkaPublisher(w)
		lg.Info("Publishing payment events to Kafka",
			zap.Strings("brokers", cfg.Brokers),
			zap.String("topic", cfg.Topic),
		)
		return p, func() {
			if err := p.Close(); err != nil {
				lg.Warn("Close Kafka writer", zap.Error(err))
			}
		}, nil
	case "nats":
		conn, err := events.ConnectNATS(cfg.NATSURL, serviceName, lg.Named("nats"))
		if err != nil {
			return nil, nil, err
		}
		lg.Info("Publishing payment events to NATS", zap.String("subject", cfg.Subject))
		return events.NewNATSPublisher(conn, cfg.Subject), func() {
			if err := conn.Drain(); err != nil {
				lg.Warn("Drain NATS connection", zap.Error(err))
			}
		}, nil
	case "log":
		return events.LogPublisher{}, func() {}, nil
	default:
		return nil, func() {}, nil
	}
}
