package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/orgscope/pkg/apperr"
	"github.com/platinummonkey/orgscope/pkg/audit"
	"github.com/platinummonkey/orgscope/pkg/grants"
	"github.com/platinummonkey/orgscope/pkg/httputil"
)

// createGrant handles POST /api/v1/grants. The actor must pass the
// anti-escalation check at the target node; granted_by always records the
// authenticated actor, never a value from the body.
func (s *Server) createGrant(w http.ResponseWriter, r *http.Request) {
	actorID, ok := s.requireActor(w, r)
	if !ok {
		return
	}

	var req grants.CreateGrantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.ActorID, "actor_id") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.NodeID, "node_id") {
		return
	}

	ctx := r.Context()
	node, err := s.nodes.GetByID(ctx, req.NodeID)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	decision, err := s.resolver.CanGrant(ctx, actorID, node.Path, req.Role)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	if !decision.Allowed {
		s.auditError(s.audit.LogAccessDecision(ctx, actorID, node.Path, false, decision.Reason))
		httputil.WriteAppError(w, apperr.NewUnauthorized("%s", decision.Reason))
		return
	}

	req.GrantedBy = &actorID
	grant, err := s.grants.Grant(ctx, &req)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	s.resolver.InvalidateActor(ctx, grant.ActorID)
	changes := &audit.ChangeDetails{
		After: map[string]interface{}{
			"actor_id":               grant.ActorID,
			"role":                   grant.Role,
			"inherit_to_descendants": grant.InheritToDescendants,
		},
	}
	s.auditError(s.audit.LogGrantMutation(ctx, audit.EventTypeGrantCreate, actorID, grant.ID, grant.NodePath, changes, "grant created"))

	httputil.WriteCreated(w, grant)
}

// listGrants handles GET /api/v1/grants?actor_id=&node_id=&include_expired=
func (s *Server) listGrants(w http.ResponseWriter, r *http.Request) {
	actorID, ok := s.requireActor(w, r)
	if !ok {
		return
	}

	actorFilter := httputil.ParseQueryString(r, "actor_id", "")
	nodeFilter := httputil.ParseQueryString(r, "node_id", "")
	includeExpired, err := httputil.ParseQueryBool(r, "include_expired", false)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if actorFilter == "" && nodeFilter == "" {
		httputil.WriteValidationError(w, "actor_id or node_id query parameter is required")
		return
	}

	ctx := r.Context()

	// Anyone may list their own grants. Listing another actor's grants takes
	// root admin; listing a node's grants takes manager there.
	if actorFilter != "" && actorFilter != actorID {
		if err := s.requireRootAdmin(ctx, actorID); err != nil {
			httputil.WriteAppError(w, err)
			return
		}
	}
	if nodeFilter != "" {
		node, err := s.nodes.GetByID(ctx, nodeFilter)
		if err != nil {
			httputil.WriteAppError(w, err)
			return
		}
		if err := s.requireRoleAt(ctx, actorID, node.Path, grants.RoleManager); err != nil {
			httputil.WriteAppError(w, err)
			return
		}
	}

	var list []*grants.Grant
	switch {
	case actorFilter != "":
		list, err = s.grants.FindByActor(ctx, actorFilter, includeExpired)
		if err == nil && nodeFilter != "" {
			filtered := list[:0]
			for _, g := range list {
				if g.NodeID == nodeFilter {
					filtered = append(filtered, g)
				}
			}
			list = filtered
		}
	default:
		list, err = s.grants.FindByNode(ctx, nodeFilter)
	}
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, list)
}

// getGrant handles GET /api/v1/grants/{id}
func (s *Server) getGrant(w http.ResponseWriter, r *http.Request) {
	actorID, ok := s.requireActor(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	grant, err := s.grants.GetByID(ctx, mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	if grant.ActorID != actorID {
		if err := s.requireRoleAt(ctx, actorID, grant.NodePath, grants.RoleManager); err != nil {
			httputil.WriteAppError(w, err)
			return
		}
	}

	httputil.WriteJSON(w, http.StatusOK, grant)
}

// updateGrant handles PATCH /api/v1/grants/{id}. Changing a grant takes grant
// authority at the higher of its current and requested role.
func (s *Server) updateGrant(w http.ResponseWriter, r *http.Request) {
	actorID, ok := s.requireActor(w, r)
	if !ok {
		return
	}

	var req grants.UpdateGrantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	ctx := r.Context()
	before, err := s.grants.GetByID(ctx, mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	// Checking at the higher of the two roles stops a lower-ranked actor from
	// raising a grant or tampering with one above their rank.
	targetRole := before.Role
	if req.Role != nil && req.Role.Rank() > targetRole.Rank() {
		targetRole = *req.Role
	}
	decision, err := s.resolver.CanGrant(ctx, actorID, before.NodePath, targetRole)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	if !decision.Allowed {
		s.auditError(s.audit.LogAccessDecision(ctx, actorID, before.NodePath, false, decision.Reason))
		httputil.WriteAppError(w, apperr.NewUnauthorized("%s", decision.Reason))
		return
	}

	grant, err := s.grants.Update(ctx, before.ID, &req)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	s.resolver.InvalidateActor(ctx, grant.ActorID)
	changes := &audit.ChangeDetails{
		Before: map[string]interface{}{"role": before.Role, "inherit_to_descendants": before.InheritToDescendants, "valid_until": before.ValidUntil},
		After:  map[string]interface{}{"role": grant.Role, "inherit_to_descendants": grant.InheritToDescendants, "valid_until": grant.ValidUntil},
	}
	s.auditError(s.audit.LogGrantMutation(ctx, audit.EventTypeGrantUpdate, actorID, grant.ID, grant.NodePath, changes, "grant updated"))

	httputil.WriteJSON(w, http.StatusOK, grant)
}

// revokeGrant handles DELETE /api/v1/grants/{id}. Actors may always revoke
// their own grants; revoking someone else's takes grant authority at the
// grant's node.
func (s *Server) revokeGrant(w http.ResponseWriter, r *http.Request) {
	actorID, ok := s.requireActor(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	grant, err := s.grants.GetByID(ctx, mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	if grant.ActorID != actorID {
		decision, err := s.resolver.CanGrant(ctx, actorID, grant.NodePath, grant.Role)
		if err != nil {
			httputil.WriteAppError(w, err)
			return
		}
		if !decision.Allowed {
			s.auditError(s.audit.LogAccessDecision(ctx, actorID, grant.NodePath, false, decision.Reason))
			httputil.WriteAppError(w, apperr.NewUnauthorized("%s", decision.Reason))
			return
		}
	}

	revoked, err := s.grants.Revoke(ctx, grant.ID, actorID)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	s.resolver.InvalidateActor(ctx, revoked.ActorID)
	s.auditError(s.audit.LogGrantMutation(ctx, audit.EventTypeGrantRevoke, actorID, revoked.ID, revoked.NodePath, nil, "grant revoked"))

	httputil.WriteJSON(w, http.StatusOK, revoked)
}
