// Package scope computes an actor's access scope from their direct grants
// and the current tree, and answers point and bulk authorization queries.
//
// A scope is a value computed fresh per call: load the actor's in-force
// grants, expand every inheriting grant to the current descendant paths,
// union the results. Point checks reason over the contributing grants, so a
// node created after the scope was computed is still reachable through an
// inheriting ancestor grant. Denial is an expected outcome and comes back as
// a decision with a reason, never as an error.
//
// Caching is optional and explicit: the resolver consults a ScopeCache when
// one is configured, and grant or tree mutations must invalidate through it.
package scope
