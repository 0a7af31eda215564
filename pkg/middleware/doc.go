// Package middleware provides HTTP middleware for authentication, authorization, and rate limiting.
//
// # Middleware Components
//
// AuthMiddleware verifies the bearer ID token, loads the caller from the user store by
// token subject and falls back to the token attributes for unprovisioned users:
//
//	auth := middleware.NewAuthMiddleware(provider, cachedUsers, logger)
//	api.Use(auth.Handler)
//
// Authorization itself happens in pkg/service so that denials are audited with the
// check that failed.
//
// RateLimitMiddleware keys limits by caller ID, or by client IP for requests that are
// not yet authenticated. Limiters are in-process (RateLimiter) or shared through Redis
// (DistributedRateLimiter):
//
//	rl := middleware.NewRateLimitMiddleware(
//		middleware.NewDistributedRateLimiter(client, middleware.PerUserRateLimitConfig(), ""),
//		middleware.NewRateLimiter(middleware.DefaultRateLimitConfig()),
//		logger,
//	)
//
// # Rate Limiting
//
// Default (Anonymous): 100 req/min, 10 burst
// Per-User: 1000 req/min, 50 burst
//
// # Related Packages
//
//   - pkg/identity: Token verification
//   - pkg/rbac: Permission checking
package middleware
