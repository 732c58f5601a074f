package app

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/notify"
	"github.com/xenking/storefront/internal/payment"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
	"github.com/xenking/storefront/pkg/idempotency"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("currency", cfg.Currency),
		zap.Bool("strict_transitions", cfg.Orders.StrictTransitions),
	)

	if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))

	gateway, err := newGateway(lg, m, cfg.Stripe)
	if err != nil {
		return errors.Wrap(err, "create payment gateway")
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Order events outlive the server so in-flight requests still publish;
	// stopNotify runs after the server has drained.
	notifyCtx, stopNotify := context.WithCancel(context.WithoutCancel(ctx))
	defer stopNotify()

	orderOpts := []order.Option{
		order.WithCurrency(cfg.Currency),
		order.WithStrictTransitions(cfg.Orders.StrictTransitions),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		notifier := notify.NewKafka(
			notify.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic),
			cfg.Kafka.Buffer,
			lg.Named("notify"),
		)
		g.Go(func() error { return notifier.Run(notifyCtx) })
		orderOpts = append(orderOpts, order.WithNotifier(notifier))
		lg.Info("Publishing order events",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	var handlerOpts []handler.Option
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		healthSvc.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		handlerOpts = append(handlerOpts,
			handler.WithIdempotency(idempotency.NewRedisStore(rdb, cfg.Redis.IdempotencyTTL)),
		)
	}

	// Domain services.
	resolver := catalog.NewResolver(postgres.NewCatalogRepository(pool))
	carts := cart.NewService(resolver, postgres.NewCartRepository(pool))
	orders := order.NewService(
		resolver,
		postgres.NewUserRepository(pool),
		postgres.NewOrderRepository(pool),
		gateway,
		orderOpts...,
	)

	// Instrument and LogRequests run inside chi so the route pattern is set.
	router := chi.NewRouter()
	router.Use(
		httpmiddleware.Instrument("storefront-api", m.TracerProvider(), m.MeterProvider()),
		httpmiddleware.LogRequests(),
	)
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	handler.NewHandler(carts, orders, handlerOpts...).Register(router)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Card payments wait for the gateway.
		WriteTimeout:   cfg.Stripe.Timeout + 10*time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		BaseContext: func(net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", idempotency.HeaderKey, httpmiddleware.HeaderRequestID},
				ExposeHeaders:    []string{httpmiddleware.HeaderRequestID, idempotency.HeaderReplay},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(gCtx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
		),
	}

	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		defer stopNotify()

		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})

	healthSvc.Start(gCtx, 10*time.Second)
	healthSvc.SetReady(true)

	return g.Wait()
}

// newGateway returns the Stripe gateway, or a gateway that rejects every
// card charge when no secret key is configured.
func newGateway(lg *zap.Logger, m *app.Telemetry, cfg StripeConfig) (payment.Gateway, error) {
	if cfg.SecretKey == "" {
		lg.Warn("Stripe secret key not set, card payments are disabled")
		return payment.Disabled{}, nil
	}
	gw, err := payment.NewStripe(payment.StripeConfig{
		SecretKey:      cfg.SecretKey,
		Timeout:        cfg.Timeout,
		MeterProvider:  m.MeterProvider(),
		TracerProvider: m.TracerProvider(),
	})
	if err != nil {
		return nil, err
	}
	return gw, nil
}
