// Package api provides the HTTP REST API server for the orgscope
// organizational access-control service.
//
// # Overview
//
// This package exposes the hierarchy, grant, scope, directory and audit
// subsystems as JSON endpoints under /api/v1. It owns authorization at the
// HTTP boundary: every handler resolves the authenticated actor's access
// scope and enforces the role the operation demands before touching a store.
// Authentication itself happens upstream in middleware.Auth, which places
// the actor id in the request context.
//
// # Architecture
//
// The API is built on gorilla/mux with one Server coordinating handler
// groups split by domain:
//
//   - Hierarchy: node CRUD, subtree move/delete/restore, tree and
//     traversal reads, integrity reports
//   - Grants: create, list, update and revoke permission grants, all held
//     to the anti-escalation rule
//   - Scope & Access: derived access scopes and point access checks
//   - Directory: scope-filtered people queries and user management
//   - Audit: searching the persisted audit trail
//
// # Key Types
//
// Server is the main API server:
//
//	server := api.NewServer(db, resolver, auditLogger, dbLogger, logger)
//	http.ListenAndServe(":8080", server)
//
// # API Endpoints
//
// Hierarchy:
//
//	POST   /api/v1/nodes                     create node (admin at parent)
//	GET    /api/v1/nodes/{id}                get node
//	PUT    /api/v1/nodes/{id}                update display fields (manager)
//	DELETE /api/v1/nodes/{id}?force=         soft-delete subtree (admin)
//	POST   /api/v1/nodes/{id}/move           move subtree (admin both ends)
//	POST   /api/v1/nodes/{id}/restore        restore subtree (admin)
//	GET    /api/v1/nodes/{id}/children       direct children
//	GET    /api/v1/nodes/{id}/ancestors      root-to-node chain
//	GET    /api/v1/nodes/{id}/descendants    whole subtree
//	GET    /api/v1/nodes/{id}/siblings       same-parent nodes
//	GET    /api/v1/tree                      full nested tree
//	GET    /api/v1/hierarchy/integrity       integrity report (root admin)
//
// Grants:
//
//	POST   /api/v1/grants                    create grant (CanGrant)
//	GET    /api/v1/grants?actor_id=&node_id= list grants
//	GET    /api/v1/grants/{id}               get grant
//	PATCH  /api/v1/grants/{id}               update grant (CanGrant)
//	DELETE /api/v1/grants/{id}               revoke grant (self or CanGrant)
//
// Scope and directory:
//
//	GET    /api/v1/scope                     caller's access scope
//	GET    /api/v1/access/check?path=        point access decision
//	GET    /api/v1/directory/users           scope-filtered user query
//	POST   /api/v1/directory/users           add user (admin at node)
//	GET    /api/v1/directory/users/{id}      get user (if visible)
//	PATCH  /api/v1/directory/users/{id}      update user (manager at node)
//	GET    /api/v1/audit/events              audit search (root admin)
//
// # Error Model
//
// Handlers return domain errors through httputil.WriteAppError, which maps
// the five apperr kinds to 400, 404, 409, 422 and 403 with a
// {"error", "kind"} body. Denied point checks are not errors; they are 200
// decisions with allowed=false.
//
// # Related Packages
//
//   - pkg/hierarchy: tree storage and mutation engine
//   - pkg/grants: grant storage
//   - pkg/scope: scope resolution and caching
//   - pkg/directory: user storage and scope-filtered queries
//   - pkg/audit: audit event sinks and search
//   - pkg/middleware: bearer-token authentication
package api
