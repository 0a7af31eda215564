package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/platinummonkey/eams/pkg/jobs"
	"github.com/platinummonkey/eams/pkg/observability"
	"github.com/platinummonkey/eams/pkg/storage/postgres"
)

var (
	dbURL       = flag.String("db-url", getEnv("EAMS_POSTGRES_URL", "postgres://localhost/eams?sslmode=disable"), "PostgreSQL connection URL")
	redisURL    = flag.String("redis-url", getEnv("EAMS_REDIS_URL", ""), "Redis URL used to coordinate replicas (optional)")
	schedule    = flag.String("schedule", getEnv("EAMS_GRANT_AUDIT_SCHEDULE", "0 * * * *"), "Cron schedule for the audit (default: hourly)")
	timeout     = flag.Duration("timeout", time.Minute, "Timeout for a single audit run")
	metricsAddr = flag.String("metrics-addr", getEnv("EAMS_AUDITOR_METRICS_ADDR", ""), "Address to serve /metrics on (optional)")
	logLevel    = flag.String("log-level", getEnv("EAMS_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	runOnce     = flag.Bool("run-once", false, "Run the audit once, print the expired grants as JSON and exit")
)

func main() {
	flag.Parse()

	logger := observability.NewLogger(observability.ParseLogLevel(*logLevel), os.Stderr)

	conns, err := postgres.NewConnectionManager(postgres.DefaultConnectionConfig(*dbURL), logger)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	defer conns.Close()

	var locker jobs.Locker
	if *redisURL != "" {
		cache, err := postgres.NewRedisUserCache(postgres.RedisConfig{URL: *redisURL})
		if err != nil {
			logger.WithError(err).Error("Failed to configure redis")
			os.Exit(1)
		}
		defer cache.Close()
		locker = cache
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	auditor := jobs.NewGrantAuditor(postgres.NewStore(conns), locker, metrics, logger)

	// Run once mode (for cron jobs outside the process or ad hoc reports)
	if *runOnce {
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		defer cancel()

		result, err := auditor.Run(ctx)
		if err != nil {
			logger.WithError(err).Error("Grant audit failed")
			os.Exit(1)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write result: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Scheduled mode
	scheduler := jobs.NewScheduler(logger)
	if err := scheduler.ScheduleGrantAudit(*schedule, auditor, *timeout); err != nil {
		logger.WithError(err).Error("Failed to schedule grant audit")
		os.Exit(1)
	}

	var metricsServer *http.Server
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		observability.RegisterMetricsEndpoint(mux, registry)
		metricsServer = &http.Server{Addr: *metricsAddr, Handler: mux, ReadTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	scheduler.Start()
	logger.WithField("schedule", *schedule).Info("EAMS grant auditor started")

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	if metricsServer != nil {
		_ = metricsServer.Shutdown(ctx)
	}
	if err := scheduler.Stop(ctx); err != nil {
		logger.WithError(err).Warn("Scheduler did not stop cleanly")
	}

	logger.Info("Grant auditor stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
