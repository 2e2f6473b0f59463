package api

import (
	"net/http"

	"github.com/platinummonkey/orgscope/pkg/audit"
	"github.com/platinummonkey/orgscope/pkg/httputil"
)

// getScope handles GET /api/v1/scope. The actor_id override lets a root
// admin inspect any actor's derived scope.
func (s *Server) getScope(w http.ResponseWriter, r *http.Request) {
	actorID, ok := s.requireActor(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	target := httputil.ParseQueryString(r, "actor_id", actorID)
	if target != actorID {
		if err := s.requireRootAdmin(ctx, actorID); err != nil {
			httputil.WriteAppError(w, err)
			return
		}
		event := audit.BuildHTTPEvent(ctx, r, audit.EventTypeScopeRead, audit.EventStatusSuccess)
		event.ResourceType = audit.ResourceTypeUser
		event.ResourceID = target
		event.Message = "scope inspected by admin"
		s.auditError(s.audit.Log(ctx, event))
	}

	sc, err := s.resolver.ComputeScope(ctx, target)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, sc)
}

// checkAccess handles GET /api/v1/access/check?path=. A denial is a regular
// 200 decision with allowed=false, never an error status.
func (s *Server) checkAccess(w http.ResponseWriter, r *http.Request) {
	actorID, ok := s.requireActor(w, r)
	if !ok {
		return
	}

	path := httputil.ParseQueryString(r, "path", "")
	if !httputil.RequireNonEmpty(w, path, "path") {
		return
	}

	ctx := r.Context()
	decision, err := s.resolver.CheckPathAccess(ctx, actorID, path)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	s.auditError(s.audit.LogAccessDecision(ctx, actorID, path, decision.Allowed, decision.Reason))

	httputil.WriteJSON(w, http.StatusOK, decision)
}
