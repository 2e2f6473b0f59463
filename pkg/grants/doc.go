// Package grants persists direct permission assignments: (actor, node, role,
// inheritance, validity window) tuples with an active/inactive lifecycle.
//
// A grant names the node by id and carries a denormalized copy of the node's
// materialized path for fast prefix comparison; subtree moves rewrite the
// copy in the same transaction that rewrites the nodes. Revocation flips
// is_active and records who revoked when, it never deletes the row.
package grants
