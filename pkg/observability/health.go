package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// errPoolExhausted marks a reachable database with no free connections
var errPoolExhausted = errors.New("connection pool exhausted")

// Dependency is one readiness check. A failing critical dependency makes the
// server unready; any other failure only degrades it.
type Dependency struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

// Pinger is satisfied by every storage.Store backend
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreDependency checks the user and directory store
func StoreDependency(store Pinger) Dependency {
	return Dependency{Name: "store", Critical: true, Check: store.Ping}
}

// RoleCatalogDependency fails while no user types are loaded, since every
// access check would then fall back to read-only
func RoleCatalogDependency(roleCount func() int) Dependency {
	return Dependency{
		Name:     "role_catalog",
		Critical: true,
		Check: func(context.Context) error {
			if roleCount() == 0 {
				return errors.New("no roles loaded")
			}
			return nil
		},
	}
}

// SharedCacheDependency checks the Redis user cache. Lookups fall through to the
// store without it.
func SharedCacheDependency(client *redis.Client) Dependency {
	return Dependency{
		Name: "shared_user_cache",
		Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
	}
}

// PoolDependency reports the PostgreSQL primary pool as degraded when every
// connection is in use
func PoolDependency(db *sql.DB) Dependency {
	return Dependency{
		Name: "postgres_pool",
		Check: func(ctx context.Context) error {
			var one int
			if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
				return fmt.Errorf("query failed: %w", err)
			}
			stats := db.Stats()
			if stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections {
				return errPoolExhausted
			}
			return nil
		},
	}
}

// HealthChecker serves liveness and readiness for the EAMS server
type HealthChecker struct {
	version string
	deps    []Dependency
}

// NewHealthChecker creates a checker over deps
func NewHealthChecker(version string, deps ...Dependency) *HealthChecker {
	return &HealthChecker{version: version, deps: deps}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status    string        `json:"status"`
	Critical  bool          `json:"critical"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency_ms,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Liveness always answers 200 while the process serves requests
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, HealthStatus{Status: StatusHealthy, Timestamp: time.Now(), Version: h.version})
}

// Readiness answers 503 while a critical dependency is failing
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)
	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeHealth(w, code, status)
}

// Check runs every dependency concurrently
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	results := make([]DependencyStatus, len(h.deps))
	var eg errgroup.Group
	for i, dep := range h.deps {
		eg.Go(func() error {
			results[i] = runDependency(ctx, dep)
			return nil
		})
	}
	eg.Wait()

	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus, len(h.deps)),
	}
	for i, dep := range h.deps {
		res := results[i]
		status.Dependencies[dep.Name] = res
		switch {
		case res.Status == StatusHealthy:
		case dep.Critical:
			status.Status = StatusUnhealthy
		case status.Status == StatusHealthy:
			status.Status = StatusDegraded
		}
	}
	return status
}

func runDependency(ctx context.Context, dep Dependency) DependencyStatus {
	start := time.Now()
	err := dep.Check(ctx)
	res := DependencyStatus{
		Status:    StatusHealthy,
		Critical:  dep.Critical,
		Latency:   time.Since(start),
		Timestamp: start,
	}
	if err != nil {
		res.Status = StatusUnhealthy
		if errors.Is(err, errPoolExhausted) {
			res.Status = StatusDegraded
		}
		res.Message = err.Error()
	}
	return res
}

func writeHealth(w http.ResponseWriter, code int, status HealthStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}

// RegisterHealthRoutes registers health check endpoints
func RegisterHealthRoutes(mux *http.ServeMux, checker *HealthChecker) {
	mux.HandleFunc("/health", checker.Readiness)
	mux.HandleFunc("/health/live", checker.Liveness)
	mux.HandleFunc("/health/ready", checker.Readiness)
}
