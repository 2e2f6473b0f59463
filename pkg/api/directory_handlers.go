package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/orgscope/pkg/apperr"
	"github.com/platinummonkey/orgscope/pkg/audit"
	"github.com/platinummonkey/orgscope/pkg/directory"
	"github.com/platinummonkey/orgscope/pkg/grants"
	"github.com/platinummonkey/orgscope/pkg/httputil"
)

// queryUsers handles GET /api/v1/directory/users. Results are always
// narrowed to the caller's scope; filters intersect it, never widen it.
func (s *Server) queryUsers(w http.ResponseWriter, r *http.Request) {
	actorID, ok := s.requireActor(w, r)
	if !ok {
		return
	}

	filters, ok := parseUserFilters(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	sc, err := s.resolver.ComputeScope(ctx, actorID)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	page, err := s.query.QueryAccessibleUsers(ctx, sc, filters)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	event := audit.BuildHTTPEvent(ctx, r, audit.EventTypeDirectoryQuery, audit.EventStatusSuccess)
	event.Details["total"] = page.Total
	s.auditError(s.audit.Log(ctx, event))

	httputil.WriteJSON(w, http.StatusOK, page)
}

// parseUserFilters reads directory query filters from the URL. Writes a
// validation error and returns false on a malformed parameter.
func parseUserFilters(w http.ResponseWriter, r *http.Request) (directory.QueryFilters, bool) {
	filters := directory.QueryFilters{
		Search:             httputil.ParseQueryString(r, "search", ""),
		Status:             httputil.ParseQueryString(r, "status", ""),
		PathPrefix:         httputil.ParseQueryString(r, "path_prefix", ""),
		RequireMinimumRole: grants.Role(httputil.ParseQueryString(r, "min_role", "")),
	}

	excludeSelf, err := httputil.ParseQueryBool(r, "exclude_self", false)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return filters, false
	}
	filters.ExcludeSelf = excludeSelf

	hiredAfter, err := httputil.ParseQueryTime(r, "hired_after")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return filters, false
	}
	if !hiredAfter.IsZero() {
		filters.HiredAfter = &hiredAfter
	}
	hiredBefore, err := httputil.ParseQueryTime(r, "hired_before")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return filters, false
	}
	if !hiredBefore.IsZero() {
		filters.HiredBefore = &hiredBefore
	}

	limit, offset, err := httputil.ParsePagination(r, directory.DefaultPageLimit, directory.MaxPageLimit)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return filters, false
	}
	filters.Limit = limit
	filters.Offset = offset

	return filters, true
}

// createUser handles POST /api/v1/directory/users. Adding a user takes
// admin at the node the user is attached to.
func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	actorID, ok := s.requireActor(w, r)
	if !ok {
		return
	}

	var req directory.CreateUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
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
	if err := s.requireRoleAt(ctx, actorID, node.Path, grants.RoleAdmin); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	user, err := s.users.Create(ctx, &req)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	changes := &audit.ChangeDetails{
		After: map[string]interface{}{"email": user.Email, "node_id": user.NodeID},
	}
	s.auditError(s.audit.LogUserMutation(ctx, audit.EventTypeUserCreate, actorID, user.ID, changes, "user added to directory"))

	httputil.WriteCreated(w, user)
}

// getUser handles GET /api/v1/directory/users/{id}. Users outside the
// caller's scope read as not found; directory existence is not probeable.
func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	actorID, ok := s.requireActor(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	userID := mux.Vars(r)["id"]
	decision, err := s.resolver.CheckUserAccess(ctx, actorID, userID)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	if !decision.Allowed {
		s.auditError(s.audit.LogAccessDecision(ctx, actorID, decision.TargetPath, false, decision.Reason))
		httputil.WriteAppError(w, apperr.NewNotFound("user %s not found", userID))
		return
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, user)
}

// updateUser handles PATCH /api/v1/directory/users/{id}. Visibility is
// checked first, so actors who cannot see the user get the same not-found
// as a read; visible users take manager at their node to change, and moving
// a user takes manager at the destination node too.
func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	actorID, ok := s.requireActor(w, r)
	if !ok {
		return
	}

	var req directory.UpdateUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	ctx := r.Context()
	userID := mux.Vars(r)["id"]
	before, err := s.users.GetByID(ctx, userID)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	decision, err := s.resolver.CheckUserAccess(ctx, actorID, userID)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	if !decision.Allowed {
		httputil.WriteAppError(w, apperr.NewNotFound("user %s not found", userID))
		return
	}
	if !decision.Role.AtLeast(grants.RoleManager) {
		httputil.WriteAppError(w, apperr.NewUnauthorized("requires %s role at %s", grants.RoleManager, decision.TargetPath))
		return
	}
	if req.NodeID != nil && *req.NodeID != before.NodeID {
		dest, err := s.nodes.GetByID(ctx, *req.NodeID)
		if err != nil {
			httputil.WriteAppError(w, err)
			return
		}
		if err := s.requireRoleAt(ctx, actorID, dest.Path, grants.RoleManager); err != nil {
			httputil.WriteAppError(w, err)
			return
		}
	}

	user, err := s.users.Update(ctx, userID, &req)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	changes := &audit.ChangeDetails{
		Before: userChangeFields(before),
		After:  userChangeFields(user),
	}
	s.auditError(s.audit.LogUserMutation(ctx, audit.EventTypeUserUpdate, actorID, user.ID, changes, "user updated"))

	httputil.WriteJSON(w, http.StatusOK, user)
}

func userChangeFields(u *directory.User) map[string]interface{} {
	return map[string]interface{}{
		"display_name": u.DisplayName,
		"title":        u.Title,
		"status":       u.Status,
		"node_id":      u.NodeID,
	}
}
