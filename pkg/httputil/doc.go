// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Overview
//
// This package offers helper functions for JSON encoding/decoding, error responses,
// parameter parsing, validation, and the middleware shared by the EAMS API router.
//
// # Response Helpers
//
//	httputil.WriteSuccess(w, users)
//	httputil.WriteCreated(w, company)
//	if !httputil.WriteClassified(w, err, classes) {
//		httputil.WriteInternalError(w, err)
//	}
//
// Every error body has the shape {"error": "...", "code": "forbidden", "request_id": "..."}.
// The code is derived from the status.
//
// # Request Parsing
//
//	var req GrantRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//	userID, ok := httputil.ParsePathStringOrError(w, r, "id")
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.RecoveryMiddleware(logger),
//		httputil.LoggingMiddleware(logger),
//		httputil.MaxBytesMiddleware(1<<20),
//	)(router)
package httputil
