// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Overview
//
// This package offers helper functions for JSON encoding/decoding, error
// responses, request parsing, and middleware. Its centerpiece is the mapping
// from the domain error taxonomy onto HTTP status codes.
//
// # Error Mapping
//
// WriteAppError translates pkg/apperr errors into status codes and a stable
// JSON body:
//
//	ValidationError   -> 400 {"error": "...", "kind": "validation"}
//	NotFoundError     -> 404 {"error": "...", "kind": "not_found"}
//	ConflictError     -> 409 {"error": "...", "kind": "conflict"}
//	BusinessRuleError -> 422 {"error": "...", "kind": "business_rule"}
//	UnauthorizedError -> 403 {"error": "...", "kind": "unauthorized"}
//	anything else     -> 500 {"error": "internal server error"}
//
// Handlers return domain errors from the stores and resolver unchanged and
// let WriteAppError pick the status, so the taxonomy stays in one place.
//
// # Request Parsing
//
// Path and query helpers cover the common handler needs:
//
//	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
//	if !ok {
//		return // Error response already written
//	}
//	limit, offset, err := httputil.ParsePagination(r, 50, 500)
//	force, err := httputil.ParseQueryBool(r, "force", false)
//
// # Middleware
//
// Chain composes middleware in declaration order:
//
//	handler := httputil.Chain(
//		httputil.RecoveryMiddleware,
//		httputil.LoggingMiddleware,
//		httputil.MaxBytesMiddleware(1<<20),
//	)(mux)
//
// # Related Packages
//
//   - pkg/apperr: the error taxonomy this package maps to HTTP
//   - pkg/api: handlers built on these helpers
//   - pkg/middleware: authentication and request-id middleware
package httputil
