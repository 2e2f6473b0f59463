// Package middleware provides HTTP middleware for authentication and request identity.
//
// # Overview
//
// This package implements the identity boundary: bearer service tokens are
// resolved to actor ids before any handler runs, and each request gets an id
// and a structured logger in its context. The core packages never see
// credentials, only actor ids.
//
// # Middleware Components
//
// Auth: token-based authentication
//
//	tokens, err := middleware.NewTokenStore("/etc/orgscope/tokens.yaml", logger)
//	auth := middleware.NewAuth(tokens)
//	protected := auth.Handler(apiRouter)
//	// Extracts the Bearer token, resolves the actor id, rejects unknown tokens with 401
//
// The token file is plain YAML, hot-reloaded on change so tokens rotate
// without a restart:
//
//	tokens:
//	  3f1c…-service-token: 4ee0ba98-0b54-4a86-9d82-2b0a46333a15
//
// RequestID: request id plumbing
//
//	router.Use(middleware.RequestID)
//	// Honors inbound X-Request-ID, otherwise generates a UUID; echoes it on the response
//
// InjectLogger: context logger
//
//	router.Use(middleware.InjectLogger(logger))
//	// observability.FromContext then enriches with request and actor ids
//
// # Related Packages
//
//   - pkg/contextkeys: the context keys this package populates
//   - pkg/observability: the logger carried through requests
//   - pkg/api: the routes these middlewares protect
package middleware
