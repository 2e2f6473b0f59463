package api

import (
	"context"
	"net/http"

	"github.com/platinummonkey/orgscope/pkg/apperr"
	"github.com/platinummonkey/orgscope/pkg/contextkeys"
	"github.com/platinummonkey/orgscope/pkg/grants"
	"github.com/platinummonkey/orgscope/pkg/httputil"
)

// requireActor extracts the authenticated actor id from the request context.
// It writes a 401 and returns false when no actor is present, which only
// happens if a request reached the handler without passing the auth
// middleware.
func (s *Server) requireActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actorID := contextkeys.GetActorID(r.Context())
	if actorID == "" {
		httputil.WriteUnauthenticated(w, "authentication required")
		return "", false
	}
	return actorID, true
}

// requireRoleAt checks that the actor's effective role at path ranks at or
// above minRole.
func (s *Server) requireRoleAt(ctx context.Context, actorID, path string, minRole grants.Role) error {
	sc, err := s.resolver.ComputeScope(ctx, actorID)
	if err != nil {
		return err
	}
	role, ok := sc.EffectiveRole(path)
	if !ok || !role.AtLeast(minRole) {
		return apperr.NewUnauthorized("requires %s role at %s", minRole, path)
	}
	return nil
}

// requireRootAdmin checks that the actor holds the admin role at some active
// root node. Operations spanning the whole tree, such as integrity reports
// and audit searches, gate on this.
func (s *Server) requireRootAdmin(ctx context.Context, actorID string) error {
	roots, err := s.nodes.Children(ctx, nil)
	if err != nil {
		return err
	}
	sc, err := s.resolver.ComputeScope(ctx, actorID)
	if err != nil {
		return err
	}
	for _, root := range roots {
		if role, ok := sc.EffectiveRole(root.Path); ok && role == grants.RoleAdmin {
			return nil
		}
	}
	return apperr.NewUnauthorized("requires admin role at a root node")
}
