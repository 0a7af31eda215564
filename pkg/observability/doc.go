// Package observability provides structured logging, Prometheus metrics, health checks
// and OpenTelemetry tracing for the EAMS server and jobs.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.ParseLogLevel(cfg.LogLevel), os.Stdout)
//	logger.WithField("user_id", user.ID).Info("Grant created")
//
// Request-scoped loggers carry the request ID, the caller (caller_id, caller_type,
// caller_company_id) and the active trace:
//
//	observability.FromContext(ctx).WithDecision("can_manage_users", false).Info("access denied")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordDecision("can_manage_users", allowed)
//
// Metrics also satisfies the user cache observer, so it can be handed to
// storage.NewCachedUserStore directly. A nil *Metrics is valid and records nothing.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(version,
//		observability.StoreDependency(store),
//		observability.SharedCacheDependency(redisClient),
//	)
//	observability.RegisterHealthRoutes(mux, checker)
//
// Only critical dependencies (the store and the role catalog) make the server
// unready. A Redis outage reports degraded.
//
// # OpenTelemetry
//
//	telemetry, err := observability.InitTelemetry(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "eams-server",
//	}, logger)
//	defer telemetry.Shutdown(ctx)
//
// Data service operations open a span with StartOperation, and each access
// check adds an authz.decision event to it.
package observability
