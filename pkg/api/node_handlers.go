package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/orgscope/pkg/audit"
	"github.com/platinummonkey/orgscope/pkg/grants"
	"github.com/platinummonkey/orgscope/pkg/hierarchy"
	"github.com/platinummonkey/orgscope/pkg/httputil"
)

// createNode handles POST /api/v1/nodes
func (s *Server) createNode(w http.ResponseWriter, r *http.Request) {
	actorID, ok := s.requireActor(w, r)
	if !ok {
		return
	}

	var req hierarchy.CreateNodeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	ctx := r.Context()
	if req.ParentID != nil {
		parent, err := s.nodes.GetByID(ctx, *req.ParentID)
		if err != nil {
			httputil.WriteAppError(w, err)
			return
		}
		if err := s.requireRoleAt(ctx, actorID, parent.Path, grants.RoleAdmin); err != nil {
			httputil.WriteAppError(w, err)
			return
		}
	} else {
		// Creating a root requires admin at an existing root. The empty tree
		// is the bootstrap case: someone has to create the first node before
		// any grant can exist.
		roots, err := s.nodes.Children(ctx, nil)
		if err != nil {
			httputil.WriteAppError(w, err)
			return
		}
		if len(roots) > 0 {
			if err := s.requireRootAdmin(ctx, actorID); err != nil {
				httputil.WriteAppError(w, err)
				return
			}
		}
	}

	node, err := s.nodes.Create(ctx, &req)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	s.resolver.InvalidateAll(ctx)
	s.auditError(s.audit.LogNodeMutation(ctx, audit.EventTypeNodeCreate, actorID, node.ID, node.Path, nil, "node created"))

	httputil.WriteCreated(w, node)
}

// getNode handles GET /api/v1/nodes/{id}
func (s *Server) getNode(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireActor(w, r); !ok {
		return
	}

	node, err := s.nodes.GetByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, node)
}

// updateNode handles PUT /api/v1/nodes/{id}. Only display fields change
// here; relocation goes through the move endpoint.
func (s *Server) updateNode(w http.ResponseWriter, r *http.Request) {
	actorID, ok := s.requireActor(w, r)
	if !ok {
		return
	}

	var req hierarchy.UpdateNodeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	ctx := r.Context()
	before, err := s.nodes.GetByID(ctx, mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	if err := s.requireRoleAt(ctx, actorID, before.Path, grants.RoleManager); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	node, err := s.nodes.Update(ctx, before.ID, &req)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	changes := &audit.ChangeDetails{
		Before: map[string]interface{}{"name": before.Name, "sort_order": before.SortOrder},
		After:  map[string]interface{}{"name": node.Name, "sort_order": node.SortOrder},
	}
	s.auditError(s.audit.LogNodeMutation(ctx, audit.EventTypeNodeUpdate, actorID, node.ID, node.Path, changes, "node updated"))

	httputil.WriteJSON(w, http.StatusOK, node)
}

// moveNode handles POST /api/v1/nodes/{id}/move
func (s *Server) moveNode(w http.ResponseWriter, r *http.Request) {
	actorID, ok := s.requireActor(w, r)
	if !ok {
		return
	}

	var req hierarchy.MoveNodeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	ctx := r.Context()
	node, err := s.nodes.GetByID(ctx, mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	if err := s.requireRoleAt(ctx, actorID, node.Path, grants.RoleAdmin); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	if req.NewParentID != nil {
		parent, err := s.nodes.GetByID(ctx, *req.NewParentID)
		if err != nil {
			httputil.WriteAppError(w, err)
			return
		}
		if err := s.requireRoleAt(ctx, actorID, parent.Path, grants.RoleAdmin); err != nil {
			httputil.WriteAppError(w, err)
			return
		}
	} else if err := s.requireRootAdmin(ctx, actorID); err != nil {
		// Promoting a subtree to a new root is a root-level operation.
		httputil.WriteAppError(w, err)
		return
	}

	result, err := s.nodes.MoveSubtree(ctx, node.ID, req.NewParentID)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	s.resolver.InvalidateAll(ctx)
	changes := &audit.ChangeDetails{
		Before: map[string]interface{}{"path": result.OldPath},
		After:  map[string]interface{}{"path": result.NewPath},
	}
	s.auditError(s.audit.LogNodeMutation(ctx, audit.EventTypeNodeMove, actorID, result.Node.ID, result.NewPath, changes, "subtree moved"))

	httputil.WriteJSON(w, http.StatusOK, result)
}

// deleteNode handles DELETE /api/v1/nodes/{id}. Deleting a node with active
// children requires force=true and takes the whole subtree down with it.
func (s *Server) deleteNode(w http.ResponseWriter, r *http.Request) {
	actorID, ok := s.requireActor(w, r)
	if !ok {
		return
	}

	force, err := httputil.ParseQueryBool(r, "force", false)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	ctx := r.Context()
	node, err := s.nodes.GetByID(ctx, mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	if err := s.requireRoleAt(ctx, actorID, node.Path, grants.RoleAdmin); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	affected, err := s.nodes.SoftDeleteSubtree(ctx, node.ID, force)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	s.resolver.InvalidateAll(ctx)
	s.auditError(s.audit.LogNodeMutation(ctx, audit.EventTypeNodeDelete, actorID, node.ID, node.Path, nil, "subtree soft-deleted"))

	httputil.WriteJSON(w, http.StatusOK, subtreeChangeResponse{AffectedNodes: affected})
}

// restoreNode handles POST /api/v1/nodes/{id}/restore
func (s *Server) restoreNode(w http.ResponseWriter, r *http.Request) {
	actorID, ok := s.requireActor(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	node, err := s.nodes.GetByID(ctx, mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	if err := s.requireRoleAt(ctx, actorID, node.Path, grants.RoleAdmin); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	affected, err := s.nodes.RestoreSubtree(ctx, node.ID)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	s.resolver.InvalidateAll(ctx)
	s.auditError(s.audit.LogNodeMutation(ctx, audit.EventTypeNodeRestore, actorID, node.ID, node.Path, nil, "subtree restored"))

	httputil.WriteJSON(w, http.StatusOK, subtreeChangeResponse{AffectedNodes: affected})
}

// getTree handles GET /api/v1/tree
func (s *Server) getTree(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireActor(w, r); !ok {
		return
	}

	nodes, err := s.nodes.List(r.Context())
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, hierarchy.BuildTree(nodes))
}

// listChildren handles GET /api/v1/nodes/{id}/children
func (s *Server) listChildren(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireActor(w, r); !ok {
		return
	}

	ctx := r.Context()
	node, err := s.nodes.GetByID(ctx, mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	children, err := s.nodes.Children(ctx, &node.ID)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, children)
}

// listAncestors handles GET /api/v1/nodes/{id}/ancestors
func (s *Server) listAncestors(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireActor(w, r); !ok {
		return
	}

	includeSelf, err := httputil.ParseQueryBool(r, "include_self", false)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	ctx := r.Context()
	node, err := s.nodes.GetByID(ctx, mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	ancestors, err := s.nodes.Ancestors(ctx, node.Path, includeSelf)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, ancestors)
}

// listDescendants handles GET /api/v1/nodes/{id}/descendants
func (s *Server) listDescendants(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireActor(w, r); !ok {
		return
	}

	includeSelf, err := httputil.ParseQueryBool(r, "include_self", false)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	ctx := r.Context()
	node, err := s.nodes.GetByID(ctx, mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	descendants, err := s.nodes.Descendants(ctx, node.Path, includeSelf)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, descendants)
}

// listSiblings handles GET /api/v1/nodes/{id}/siblings
func (s *Server) listSiblings(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireActor(w, r); !ok {
		return
	}

	includeSelf, err := httputil.ParseQueryBool(r, "include_self", false)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	siblings, err := s.nodes.Siblings(r.Context(), mux.Vars(r)["id"], includeSelf)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, siblings)
}

// integrityReport handles GET /api/v1/hierarchy/integrity
func (s *Server) integrityReport(w http.ResponseWriter, r *http.Request) {
	actorID, ok := s.requireActor(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	if err := s.requireRootAdmin(ctx, actorID); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	report, err := s.nodes.RunIntegrityReport(ctx)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, report)
}
