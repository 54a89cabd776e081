package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/CitizenPortal/pkg/database"
	"github.com/utafrali/CitizenPortal/pkg/health"
	"github.com/utafrali/CitizenPortal/pkg/httpclient"
	pkgkafka "github.com/utafrali/CitizenPortal/pkg/kafka"
	"github.com/utafrali/CitizenPortal/pkg/middleware"
	"github.com/utafrali/CitizenPortal/pkg/tracing"
	"github.com/utafrali/CitizenPortal/services/portal/internal/backend"
	"github.com/utafrali/CitizenPortal/services/portal/internal/config"
	"github.com/utafrali/CitizenPortal/services/portal/internal/event"
	handler "github.com/utafrali/CitizenPortal/services/portal/internal/handler/http"
	"github.com/utafrali/CitizenPortal/services/portal/internal/repository"
	"github.com/utafrali/CitizenPortal/services/portal/internal/repository/memory"
	"github.com/utafrali/CitizenPortal/services/portal/internal/repository/postgres"
	redisrepo "github.com/utafrali/CitizenPortal/services/portal/internal/repository/redis"
	"github.com/utafrali/CitizenPortal/services/portal/internal/service"
	"github.com/utafrali/CitizenPortal/services/portal/migrations"
)

const serviceName = "portal"

// App wires together all dependencies and runs the portal service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	rdb            *redis.Client
	pool           *pgxpool.Pool
	producer       *pkgkafka.Producer
	carts          *service.CartStore
	limiter        *middleware.RateLimiter
	cbLimiter      *middleware.RateLimiter
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

type storage struct {
	carts    repository.CartStorage
	contacts repository.ContactRepository
	guard    repository.SubmissionGuard
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	healthHandler := health.NewHandler()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	st, err := a.initStorage(ctx, healthHandler)
	if err != nil {
		a.closeResources()
		return nil, err
	}

	journal, err := a.initJournal(ctx, healthHandler)
	if err != nil {
		a.closeResources()
		return nil, err
	}

	// Event publishing.
	var publisher pkgkafka.Publisher = pkgkafka.NoopPublisher{Logger: logger}
	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = a.producer
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	} else {
		logger.Info("kafka disabled, events are dropped")
	}
	eventProducer := event.NewProducer(publisher, logger)

	// Order backend client with circuit breaker.
	cbCfg := cfg.CircuitBreakerConfig()
	cbClient := httpclient.NewCircuitBreakerClient(httpclient.New(cfg.HTTPClientConfig()), cbCfg, logger)
	logger.Info("circuit breaker initialized",
		slog.String("name", cbCfg.Name),
		slog.Uint64("max_requests", uint64(cbCfg.MaxRequests)),
		slog.Int("timeout_seconds", cfg.CBTimeout),
		slog.Uint64("min_requests", uint64(cbCfg.MinRequests)),
	)
	backendClient := backend.NewClient(cbClient, cfg.BackendBaseURL, logger)

	// Build the dependency graph.
	pricing := cfg.Pricing()
	a.carts = service.NewCartStore(st.carts, pricing, time.Duration(cfg.CartCacheTTLSeconds)*time.Second, logger)
	if err := a.carts.Start(context.Background()); err != nil {
		a.closeResources()
		return nil, fmt.Errorf("subscribe to cart changes: %w", err)
	}

	policy := service.RetryPolicy{
		MaxAttempts:    cfg.PaymentMaxAttempts,
		Delay:          cfg.PaymentRetryDelay(),
		AttemptTimeout: cfg.PaymentAttemptTimeout(),
	}
	payments := service.NewPaymentInitializer(backendClient, journal, eventProducer, pricing, policy, logger)
	checkout := service.NewCheckoutService(
		a.carts,
		st.contacts,
		st.guard,
		cfg.CheckoutLockTTL(),
		service.NewOrderSubmitter(backendClient, logger),
		payments,
		eventProducer,
		logger,
	)
	orders := service.NewOrderView(backendClient, logger)

	// HTTP router.
	a.limiter = middleware.NewRateLimiter(cfg.CheckoutRateLimitRPS, cfg.CheckoutRateLimitBurst, middleware.BySession, logger)
	a.cbLimiter = middleware.NewRateLimiter(cfg.CallbackRateLimitRPS, cfg.CallbackRateLimitBurst, middleware.ByClientIP, logger)
	router := handler.NewRouter(handler.Handlers{
		Cart:     handler.NewCartHandler(a.carts, logger),
		Checkout: handler.NewCheckoutHandler(checkout, cfg.CheckoutURL(), logger),
		Orders:   handler.NewOrderHandler(orders, journal, logger),
		Callback: handler.NewCallbackHandler(eventProducer, cfg.CheckoutURL(), cfg.DashboardURL(), logger),
	}, handler.RouterConfig{
		CORS: middleware.CORSConfig{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			ExposedHeaders: []string{"X-Correlation-ID", "Retry-After"},
			Environment:    cfg.Environment,
		},
		CheckoutLimiter: a.limiter,
		CallbackLimiter: a.cbLimiter,
		PprofCIDRs:      cfg.PprofAllowedCIDRs,
		ServeAttempts:   journal != nil,
	}, healthHandler, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      checkoutWriteTimeout(policy),
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// checkoutWriteTimeout leaves room for every payment attempt plus the order
// submission that precedes them.
func checkoutWriteTimeout(p service.RetryPolicy) time.Duration {
	worst := time.Duration(p.MaxAttempts)*(p.Delay+p.AttemptTimeout) + 30*time.Second
	return max(worst, 15*time.Second)
}

func (a *App) initStorage(ctx context.Context, healthHandler *health.Handler) (storage, error) {
	cfg := a.cfg
	if cfg.CartStorage == config.StorageMemory {
		a.logger.Warn("using in-memory cart storage, carts are not shared between replicas")
		return storage{
			carts:    memory.NewCartStorage(),
			contacts: memory.NewContactRepository(cfg.CartTTL()),
			guard:    memory.NewSubmissionGuard(),
		}, nil
	}

	rdb, err := database.NewRedisClient(ctx, cfg.RedisConfig(), a.logger)
	if err != nil {
		return storage{}, fmt.Errorf("connect to redis: %w", err)
	}
	a.rdb = rdb
	a.logger.Info("connected to Redis",
		slog.String("addr", cfg.RedisAddr),
		slog.Int("db", cfg.RedisDB),
	)

	carts := redisrepo.NewCartStorage(rdb, cfg.CartTTL(), a.logger)
	healthHandler.RegisterCritical("redis", carts.Ping)

	return storage{
		carts:    carts,
		contacts: redisrepo.NewContactRepository(rdb, cfg.CartTTL()),
		guard:    redisrepo.NewSubmissionGuard(rdb),
	}, nil
}

// initJournal returns a nil journal when journaling is disabled.
func (a *App) initJournal(ctx context.Context, healthHandler *health.Handler) (repository.AttemptJournal, error) {
	cfg := a.cfg
	if !cfg.JournalEnabled {
		return nil, nil
	}

	pgCfg := cfg.PostgresConfig()
	pool, err := database.NewPostgresPool(ctx, &pgCfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	a.logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, serviceName); err != nil {
		a.logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	if err := database.RunMigrations(ctx, pool, migrations.FS, a.logger); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	a.logger.Info("database migrations completed")

	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, a.logger)
	}

	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	return postgres.NewAttemptJournal(pool), nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return errors.Join(err, a.Shutdown())
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight checkouts)
// 2. Tracer (flush pending spans from drained requests)
// 3. Cart subscription, rate limiter, Kafka, Redis, PostgreSQL
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := a.closeResources(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeResources() error {
	var errs []error

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.carts != nil {
		a.carts.Close()
	}
	if a.cbLimiter != nil {
		a.cbLimiter.Close()
	}
	if a.limiter != nil {
		a.limiter.Close()
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.pool != nil {
		a.pool.Close()
	}
	return errors.Join(errs...)
}
