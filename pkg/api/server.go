package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/eams/pkg/audit"
	"github.com/platinummonkey/eams/pkg/httputil"
	"github.com/platinummonkey/eams/pkg/observability"
	"github.com/platinummonkey/eams/pkg/service"
)

// Authenticator resolves the caller of /api requests
type Authenticator interface {
	Handler(next http.Handler) http.Handler
}

// Options configures the optional parts of the server
type Options struct {
	// RateLimit is applied after authentication so callers are limited per user
	RateLimit func(http.Handler) http.Handler
	// Metrics enables per-route Prometheus instrumentation
	Metrics *observability.Metrics
	// Login enables /auth/login and /auth/callback
	Login LoginProvider
	// Audit records login outcomes; nil disables it
	Audit audit.Logger

	CORSOrigins  []string
	MaxBodyBytes int64
	// Tracing wraps the handler with otelhttp
	Tracing bool
}

// Server represents our API server
type Server struct {
	svc          *service.DataService
	router       *mux.Router
	auth         Authenticator
	opts         Options
	logger       *observability.Logger
	authHandlers *AuthHandlers
}

// NewServer creates a new API server
func NewServer(svc *service.DataService, auth Authenticator, logger *observability.Logger, opts Options) *Server {
	s := &Server{
		svc:    svc,
		router: mux.NewRouter(),
		auth:   auth,
		opts:   opts,
		logger: logger,
	}

	if opts.Login != nil && opts.Login.LoginEnabled() {
		s.authHandlers = NewAuthHandlers(opts.Login, opts.Audit)
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	if s.opts.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.opts.Metrics))
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.auth.Handler)
	if s.opts.RateLimit != nil {
		api.Use(s.opts.RateLimit)
	}
	api.Use(httputil.ContentTypeMiddleware)

	// Caller routes
	api.HandleFunc("/me", s.getProfile).Methods("GET")
	api.HandleFunc("/me/assignable-roles", s.listAssignableRoles).Methods("GET")
	api.HandleFunc("/dashboard", s.getDashboard).Methods("GET")

	// Catalog routes
	api.HandleFunc("/roles", s.listRoles).Methods("GET")
	api.HandleFunc("/permissions", s.listPermissions).Methods("GET")
	api.HandleFunc("/access/validate", s.validateAccess).Methods("POST")
	api.HandleFunc("/audit-events", s.listAuditEvents).Methods("GET")

	// User routes
	api.HandleFunc("/users", s.listUsers).Methods("GET")
	api.HandleFunc("/users", s.createUser).Methods("POST")
	api.HandleFunc("/users/{id}/role", s.updateUserRole).Methods("PUT")
	api.HandleFunc("/users/{id}/company-access", s.grantCompanyAccess).Methods("POST")
	api.HandleFunc("/users/{id}/company-access/{grant_id}", s.revokeCompanyAccess).Methods("DELETE")

	// Directory routes
	api.HandleFunc("/companies", s.listCompanies).Methods("GET")
	api.HandleFunc("/companies", s.createCompany).Methods("POST")
	api.HandleFunc("/projects", s.listProjects).Methods("GET")
	api.HandleFunc("/projects", s.createProject).Methods("POST")
	api.HandleFunc("/projects/{id}/applications", s.listApplications).Methods("GET")
	api.HandleFunc("/projects/{id}/applications", s.createApplication).Methods("POST")

	if s.authHandlers != nil {
		login := s.router.PathPrefix("/auth").Subrouter()
		if s.opts.RateLimit != nil {
			login.Use(s.opts.RateLimit)
		}
		s.authHandlers.RegisterRoutes(login)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the router wrapped in the request-scoped middleware every route
// shares: request IDs, panic recovery, access logging, CORS and body limits.
func (s *Server) Handler() http.Handler {
	middlewares := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		withLogger(s.logger),
		httputil.RecoveryMiddleware(s.logger),
		httputil.LoggingMiddleware(s.logger),
	}
	if len(s.opts.CORSOrigins) > 0 {
		middlewares = append(middlewares, httputil.CORSMiddleware(s.opts.CORSOrigins))
	}
	if s.opts.MaxBodyBytes > 0 {
		middlewares = append(middlewares, httputil.MaxBytesMiddleware(s.opts.MaxBodyBytes))
	}

	handler := httputil.Chain(middlewares...)(s)
	if s.opts.Tracing {
		handler = otelhttp.NewHandler(handler, "eams.http",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	}
	return handler
}

// withLogger stores the server logger so observability.FromContext picks it up
func withLogger(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(observability.WithLogger(r.Context(), logger)))
		})
	}
}
