// Package audit provides audit logging for security, compliance, and forensics.
//
// # Overview
//
// This package records hierarchy mutations, grant lifecycle changes, access
// decisions, and directory user changes with before/after values and request
// context.
//
// # Event Types
//
// Hierarchy: node_create, node_update, node_move, node_delete, node_restore, integrity_finding
// Grants: create, update, revoke, expire
// Access: check, denied, scope_read, directory_query
// Directory: user_create, user_update
//
// # Destinations
//
// Three Logger implementations are provided: DBLogger persists events to the
// audit_events table (searchable, purgeable), FileLogger appends NDJSON lines
// with size-based rotation, and MultiLogger fans out to several destinations
// at once. NopLogger discards everything.
//
// # Usage
//
// Log a grant mutation:
//
//	logger.LogGrantMutation(ctx, audit.EventTypeGrantCreate, actorID, grant.ID,
//		grant.NodePath, changes, "Grant created")
//
// Log a denied access check:
//
//	logger.LogAccessDecision(ctx, actorID, targetPath, false, decision.Reason)
//
// Handlers can enrich events with HTTP metadata:
//
//	event := audit.BuildHTTPEvent(ctx, r, audit.EventTypeScopeRead, audit.EventStatusSuccess)
//	event.ActorID = actorID
//	logger.Log(ctx, event)
package audit
