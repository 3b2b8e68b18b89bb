package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-b2b/internal/audit"
	"github.com/noah-isme/backend-b2b/internal/auth"
	"github.com/noah-isme/backend-b2b/internal/cart"
	"github.com/noah-isme/backend-b2b/internal/catalog"
	"github.com/noah-isme/backend-b2b/internal/checkout"
	"github.com/noah-isme/backend-b2b/internal/config"
	"github.com/noah-isme/backend-b2b/internal/customer"
	"github.com/noah-isme/backend-b2b/internal/db"
	"github.com/noah-isme/backend-b2b/internal/discount"
	"github.com/noah-isme/backend-b2b/internal/events"
	"github.com/noah-isme/backend-b2b/internal/health"
	"github.com/noah-isme/backend-b2b/internal/jobs"
	"github.com/noah-isme/backend-b2b/internal/lock"
	"github.com/noah-isme/backend-b2b/internal/obs"
	"github.com/noah-isme/backend-b2b/internal/order"
	"github.com/noah-isme/backend-b2b/internal/payment"
	"github.com/noah-isme/backend-b2b/internal/pricing"
	"github.com/noah-isme/backend-b2b/internal/resilience"
	"github.com/noah-isme/backend-b2b/internal/reward"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Str("service", "b2b-api").Logger()

	if cfg.Obs.MetricsEnabled {
		obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)
		resilience.RegisterMetrics(cfg.Obs.MetricsNamespace, nil)
	}

	tracingEnabled := cfg.Obs.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "b2b-api",
			Endpoint:      cfg.Obs.OTLPEndpoint,
			Exporter:      cfg.Obs.TracingExporter,
			SamplingRatio: cfg.Obs.TracingSampleRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	if cfg.MigrateOnStart {
		if err := db.Migrate(cfg.DatabaseURL, logger); err != nil {
			logger.Fatal().Err(err).Msg("migrate database")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool := connectDB(ctx, cfg, logger)
	defer pool.Close()

	redisClient := connectRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	redisOpts, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis uri for jobs")
	}
	queue := jobs.NewClient(redisOpts)
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Error().Err(err).Msg("close job client")
		}
	}()

	tokens, err := auth.NewTokens(auth.Config{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise token validator")
	}

	customers := customer.New(pool)
	bus := &events.Bus{
		Store:     events.New(pool),
		Notifiers: []events.Notifier{events.LogNotifier{Logger: logger}},
	}

	resolver := &catalog.Resolver{
		Products:  catalog.New(pool),
		Customers: customers,
		Cache:     catalog.NewCache(redisClient, cfg.CatalogCacheTTL),
		Logger:    logger,
	}
	discountSvc := &discount.Service{Store: discount.New(pool), Logger: logger}
	var tax pricing.TaxCalculator = pricing.NoTax{}
	if cfg.TaxRateBPS > 0 {
		tax = pricing.FlatRate{Bps: cfg.TaxRateBPS}
	}
	cartSvc := &cart.Service{
		Store:     cart.NewPGStore(pool),
		Prices:    resolver,
		Discounts: discountSvc,
		Tax:       tax,
		Currency:  cfg.CurrencyCode,
		Logger:    logger,
	}

	breaker := resilience.NewBreaker(cfg.CardBreakerMinRequests, cfg.CardBreakerFailureRatio, cfg.CardBreakerOpenFor).
		WithTarget("card_processor").
		WithLogger(logger)
	checkoutSvc := &checkout.Service{
		Store:      checkout.NewPGStore(pool),
		Carts:      cartSvc,
		Authorizer: &payment.GuardedAuthorizer{Next: payment.SimulatedAuthorizer{}, Breaker: breaker},
		Events:     bus,
		Logger:     logger,
	}
	orderSvc := &order.Service{Store: order.NewPGStore(pool), Events: bus, Logger: logger}
	rewardSvc := &reward.Service{
		Store:       reward.NewPGStore(pool),
		Lock:        lock.Locker{Client: redisClient, RetryBackoff: cfg.RewardLockRetryBackoff},
		Events:      bus,
		Logger:      logger,
		LockTTL:     cfg.RewardLockTTL,
		Lease:       cfg.RewardProcessingLease,
		Concurrency: cfg.RewardProcessConcurrency,
	}

	router, err := newRouter(routerDeps{
		cfg:            cfg,
		logger:         logger,
		redis:          redisClient,
		tracingEnabled: tracingEnabled,
		auth:           auth.Middleware{Tokens: tokens},
		audit:          &audit.Service{Store: audit.New(pool), Enabled: cfg.AuditEnabled, Logger: logger},
		health:         health.Handler{Probes: []health.Probe{health.Database(pool), health.Redis(redisClient)}},
		catalog:        &catalog.Handler{Resolver: resolver},
		customers:      &customer.Handler{Store: customers},
		discounts:      &discount.Handler{Svc: discountSvc},
		cart:           &cart.Handler{Svc: cartSvc},
		checkout:       &checkout.Handler{Svc: checkoutSvc},
		orders:         &order.Handler{Svc: orderSvc},
		rewards:        &reward.Handler{Svc: rewardSvc, Queue: queue},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("build router")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
		return
	case <-runCtx.Done():
	}

	health.SetReady(false)
	logger.Info().Msg("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}

func connectDB(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "b2b-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func connectRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(redisOpts)
	if cfg.Obs.TracingEnabled {
		if err := redisotel.InstrumentTracing(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis tracing")
		}
	}
	if cfg.Obs.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}
