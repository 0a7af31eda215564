package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/platinummonkey/eams/pkg/api"
	"github.com/platinummonkey/eams/pkg/async"
	"github.com/platinummonkey/eams/pkg/audit"
	"github.com/platinummonkey/eams/pkg/config"
	"github.com/platinummonkey/eams/pkg/identity"
	"github.com/platinummonkey/eams/pkg/jobs"
	"github.com/platinummonkey/eams/pkg/middleware"
	"github.com/platinummonkey/eams/pkg/observability"
	"github.com/platinummonkey/eams/pkg/rbac"
	"github.com/platinummonkey/eams/pkg/service"
	"github.com/platinummonkey/eams/pkg/storage"
	"github.com/platinummonkey/eams/pkg/storage/dynamodb"
	"github.com/platinummonkey/eams/pkg/storage/postgres"
	"github.com/platinummonkey/eams/pkg/webhooks"
)

const version = "1.0.0"

// memoryAuditCapacity bounds the audit trail kept with in-memory storage
const memoryAuditCapacity = 10000

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("EAMS server exited")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.WithFields(map[string]interface{}{
		"version": version,
		"storage": cfg.Storage.Type,
	}).Info("Starting EAMS server")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	telemetry, err := observability.InitTelemetry(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	catalog := rbac.DefaultCatalog()
	if cfg.Auth.RoleCatalogPath != "" {
		if catalog, err = rbac.LoadCatalogFile(cfg.Auth.RoleCatalogPath); err != nil {
			return fmt.Errorf("failed to load role catalog: %w", err)
		}
		logger.WithField("path", cfg.Auth.RoleCatalogPath).Info("Loaded role catalog")
	}

	// Storage
	var (
		store storage.Store
		conns *postgres.ConnectionManager
	)
	switch cfg.Storage.Type {
	case config.StorageMemory:
		logger.Warn("Using in-memory storage; data is lost on restart")
		store = storage.NewMemoryStore()
	case config.StoragePostgres:
		connCfg := postgres.DefaultConnectionConfig(cfg.Storage.PostgresURL)
		connCfg.ReplicaURLs = postgres.ParseReplicaURLs(cfg.Storage.PostgresReplicaURLs)
		connCfg.MaxConns = cfg.Storage.PostgresMaxConns
		connCfg.MinConns = cfg.Storage.PostgresMinConns
		connCfg.Timeout = cfg.Storage.PostgresTimeout

		conns, err = postgres.NewConnectionManager(connCfg, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		if cfg.Storage.AutoMigrate {
			if err := postgres.Migrate(ctx, conns.Primary(), logger); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
		}
		conns.StartHealthCheckRoutine(ctx, 30*time.Second)
		store = postgres.NewStore(conns)
	case config.StorageDynamoDB:
		client, err := dynamodb.NewClient(ctx, dynamodb.ClientConfig{
			Region:    cfg.Storage.DynamoDBRegion,
			Endpoint:  cfg.Storage.DynamoDBEndpoint,
			AccessKey: cfg.Storage.DynamoDBAccessKey,
			SecretKey: cfg.Storage.DynamoDBSecretKey,
		})
		if err != nil {
			return fmt.Errorf("failed to create dynamodb client: %w", err)
		}
		store = dynamodb.NewStore(client, cfg.Storage.DynamoDBTable)
		if err := store.Ping(ctx); err != nil {
			return fmt.Errorf("failed to reach dynamodb table %s: %w", cfg.Storage.DynamoDBTable, err)
		}
		logger.WithField("table", cfg.Storage.DynamoDBTable).Info("Using DynamoDB storage")
	}

	// Shared cache tier
	var (
		redisCache  *postgres.RedisUserCache
		redisClient *redis.Client
	)
	if cfg.Storage.RedisURL != "" {
		redisCache, err = postgres.NewRedisUserCache(postgres.RedisConfig{
			URL:      cfg.Storage.RedisURL,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
			PoolSize: cfg.Storage.RedisPoolSize,
			TTL:      cfg.Storage.SharedCacheTTL,
		})
		if err != nil {
			return fmt.Errorf("failed to configure redis: %w", err)
		}
		redisClient = redisCache.Client()
	}

	var shared storage.UserCache
	if redisCache != nil {
		shared = redisCache
	}
	cached := storage.NewCachedUserStore(store, storage.CacheConfig{
		Size: cfg.Storage.UserCacheSize,
		TTL:  cfg.Storage.UserCacheTTL,
	}, shared, metrics)

	// Identity
	provider, err := identity.NewProvider(ctx, cfg.Auth.Provider())
	if err != nil {
		return fmt.Errorf("failed to initialize identity provider: %w", err)
	}
	auth := middleware.NewAuthMiddleware(provider, cached, logger)

	svc := service.NewDataService(cached, rbac.NewChecker(catalog), metrics, logger)

	// Audit trail: structured log lines plus a searchable sink
	var auditSink audit.Logger
	if conns != nil {
		if auditSink, err = audit.NewDBLogger(conns.Primary()); err != nil {
			return fmt.Errorf("failed to configure audit log: %w", err)
		}
	} else {
		auditSink = audit.NewMemoryLogger(memoryAuditCapacity)
	}
	sinks := []audit.Logger{auditSink, audit.NewStructuredLogger(logger.WithField("component", "audit"))}
	notifier, err := newNotifier(cfg.Webhooks, metrics, logger)
	if err != nil {
		return err
	}
	if notifier != nil {
		sinks = append(sinks, notifier)
	}
	auditLog := audit.NewMultiLogger(sinks...)
	svc.SetAudit(auditLog, auditLog.Searcher())

	opts := api.Options{
		Metrics:      metrics,
		Login:        provider,
		Audit:        auditLog,
		CORSOrigins:  cfg.Server.CORSOrigins,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Tracing:      cfg.Observability.OTelEnabled,
	}
	if cfg.Server.UserRateLimit > 0 {
		opts.RateLimit = newRateLimit(ctx, cfg.Server, redisClient, logger).Handler
	}

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      api.NewServer(svc, auth, logger, opts).Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on their own port
	healthMux := http.NewServeMux()
	deps := []observability.Dependency{
		observability.StoreDependency(store),
		observability.RoleCatalogDependency(func() int { return len(catalog.Roles()) }),
	}
	if conns != nil {
		deps = append(deps, observability.PoolDependency(conns.Primary()))
	}
	if redisClient != nil {
		deps = append(deps, observability.SharedCacheDependency(redisClient))
	}
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(version, deps...))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:        cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler:     healthMux,
		ReadTimeout: 5 * time.Second,
	}

	// Background jobs
	var locker jobs.Locker
	if redisCache != nil {
		locker = redisCache
	}
	auditor := jobs.NewGrantAuditor(store, locker, metrics, logger)
	scheduler := jobs.NewScheduler(logger)
	if err := scheduler.ScheduleGrantAudit(cfg.Jobs.GrantAuditSchedule, auditor, time.Minute); err != nil {
		return err
	}
	if conns != nil && metrics != nil {
		if err := scheduler.Add("@every 15s", "db-stats", 5*time.Second, func(context.Context) error {
			metrics.RecordDBStats(conns.Stats().Primary)
			return nil
		}); err != nil {
			return err
		}
	}
	if notifier != nil {
		if err := scheduler.Add(cfg.Webhooks.RetrySchedule, "webhook-retries", time.Minute, notifier.ProcessRetries); err != nil {
			return err
		}
	}
	scheduler.Start()
	async.SafeGo(ctx, logger, time.Minute, "initial grant audit", func(ctx context.Context) error {
		_, err := auditor.Run(ctx)
		return err
	})

	// shutdown functions run in reverse registration order
	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, healthServer)
	shutdown.RegisterShutdownFunc("otel", telemetry.Shutdown)
	if conns != nil {
		shutdown.RegisterShutdownFunc("postgres", func(context.Context) error { return conns.Close() })
	}
	shutdown.RegisterShutdownFunc("audit", func(context.Context) error { return auditLog.Close() })
	if redisCache != nil {
		shutdown.RegisterShutdownFunc("redis", func(context.Context) error { return redisCache.Close() })
	}
	shutdown.RegisterShutdownFunc("background", func(context.Context) error {
		cancel()
		return nil
	})
	shutdown.RegisterShutdownFunc("scheduler", scheduler.Stop)

	serveErr := make(chan error, 2)
	go serve(apiServer, "api", logger, serveErr)
	go serve(healthServer, "health", logger, serveErr)

	shutdownDone := make(chan error, 1)
	go func() { shutdownDone <- shutdown.WaitForShutdown(ctx) }()

	select {
	case err := <-serveErr:
		// canceling ctx releases WaitForShutdown, which runs the shutdown sequence
		cancel()
		if shutdownErr := <-shutdownDone; shutdownErr != nil {
			logger.WithError(shutdownErr).Error("Shutdown completed with errors")
		}
		return err
	case err := <-shutdownDone:
		return err
	}
}

func serve(server *http.Server, name string, logger *observability.Logger, errs chan<- error) {
	logger.WithFields(map[string]interface{}{"server": name, "addr": server.Addr}).Info("Listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		errs <- fmt.Errorf("%s server: %w", name, err)
	}
}

// newNotifier builds the access change notifier, or nil when no webhooks are configured
func newNotifier(cfg config.WebhookConfig, metrics *observability.Metrics, logger *observability.Logger) (*webhooks.Notifier, error) {
	if len(cfg.URLs) == 0 {
		return nil, nil
	}
	var events []audit.EventType
	for _, e := range cfg.Events {
		events = append(events, audit.EventType(e))
	}
	subs := make([]webhooks.Subscription, 0, len(cfg.URLs))
	for _, u := range cfg.URLs {
		subs = append(subs, webhooks.Subscription{URL: u, Secret: cfg.Secret, Events: events})
	}
	notifier, err := webhooks.NewNotifier(subs, webhooks.Options{
		Retry:   webhooks.RetryConfig{MaxAttempts: cfg.MaxAttempts},
		Metrics: metrics,
		Logger:  logger.WithField("component", "webhooks"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure webhooks: %w", err)
	}
	logger.WithField("subscriptions", len(subs)).Info("Access change notifications enabled")
	return notifier, nil
}

// newRateLimit prefers the shared Redis limiter so replicas enforce one budget
func newRateLimit(ctx context.Context, cfg config.ServerConfig, redisClient *redis.Client, logger *observability.Logger) *middleware.RateLimitMiddleware {
	userCfg := &middleware.RateLimitConfig{RequestsPerWindow: cfg.UserRateLimit, WindowDuration: time.Minute, BurstSize: cfg.UserRateLimit / 10}
	anonCfg := &middleware.RateLimitConfig{RequestsPerWindow: cfg.AnonymousRateLimit, WindowDuration: time.Minute, BurstSize: cfg.AnonymousRateLimit / 10}

	if redisClient != nil {
		m := middleware.NewRateLimitMiddleware(
			middleware.NewDistributedRateLimiter(redisClient, userCfg, "eams:ratelimit:user"),
			middleware.NewDistributedRateLimiter(redisClient, anonCfg, "eams:ratelimit:anon"),
			logger,
		)
		m.SetFailOpen(true)
		return m
	}

	user := middleware.NewRateLimiter(userCfg)
	anon := middleware.NewRateLimiter(anonCfg)
	user.StartCleanup(ctx, logger)
	anon.StartCleanup(ctx, logger)
	return middleware.NewRateLimitMiddleware(user, anon, logger)
}
