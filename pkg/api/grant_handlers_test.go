package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/orgscope/pkg/apperr"
	"github.com/platinummonkey/orgscope/pkg/audit"
	"github.com/platinummonkey/orgscope/pkg/grants"
	"github.com/platinummonkey/orgscope/pkg/scope"
)

func decodeGrant(t *testing.T, data []byte) *grants.Grant {
	t.Helper()

	var g grants.Grant
	require.NoError(t, json.Unmarshal(data, &g))
	return &g
}

func TestCreateGrant(t *testing.T) {
	s := newTestServer(t)
	f := setupOrg(t, s)
	target := newActor()

	rec := doRequest(t, s, f.admin, "POST", "/api/v1/grants", map[string]interface{}{
		"actor_id":               target,
		"node_id":                f.eng.ID,
		"role":                   "manager",
		"inherit_to_descendants": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	g := decodeGrant(t, rec.Body.Bytes())
	assert.Equal(t, target, g.ActorID)
	assert.Equal(t, "org.eng", g.NodePath)
	assert.Equal(t, grants.RoleManager, g.Role)
	assert.True(t, g.InheritToDescendants)
	require.NotNil(t, g.GrantedBy)
	assert.Equal(t, f.admin, *g.GrantedBy)
	assert.Equal(t, 1, countAuditEvents(t, s, audit.EventTypeGrantCreate))

	// The grantee can now list their own grants.
	rec = doRequest(t, s, target, "GET", "/api/v1/grants?actor_id="+target, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []*grants.Grant
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, g.ID, list[0].ID)
}

func TestCreateGrantBodyCannotSetGrantedBy(t *testing.T) {
	s := newTestServer(t)
	f := setupOrg(t, s)

	rec := doRequest(t, s, f.admin, "POST", "/api/v1/grants", map[string]interface{}{
		"actor_id":   newActor(),
		"node_id":    f.sales.ID,
		"role":       "read",
		"granted_by": uuid.New().String(),
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	g := decodeGrant(t, rec.Body.Bytes())
	require.NotNil(t, g.GrantedBy)
	assert.Equal(t, f.admin, *g.GrantedBy)
}

func TestCreateGrantAntiEscalation(t *testing.T) {
	s := newTestServer(t)
	f := setupOrg(t, s)

	manager := newActor()
	mustGrant(t, s, manager, f.eng.ID, grants.RoleManager, true)
	reader := newActor()
	mustGrant(t, s, reader, f.eng.ID, grants.RoleRead, true)
	outsider := newActor()

	tests := []struct {
		name   string
		actor  string
		role   string
		reason string
	}{
		{"manager granting admin", manager, "admin", "above own effective role"},
		{"reader granting read", reader, "read", "below manager"},
		{"no coverage at node", outsider, "read", "no grant covers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, s, tt.actor, "POST", "/api/v1/grants", map[string]interface{}{
				"actor_id": newActor(),
				"node_id":  f.eng.ID,
				"role":     tt.role,
			})
			assert.Equal(t, http.StatusForbidden, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, apperr.KindUnauthorized, body.Kind)
			assert.Contains(t, body.Error, tt.reason)
		})
	}

	// Each denial leaves an audit trail entry.
	assert.Equal(t, len(tests), countAuditEvents(t, s, audit.EventTypeAccessDenied))
}

func TestCreateGrantManagerWithinOwnTier(t *testing.T) {
	s := newTestServer(t)
	f := setupOrg(t, s)

	manager := newActor()
	mustGrant(t, s, manager, f.eng.ID, grants.RoleManager, true)

	// A manager may hand out roles up to manager inside their subtree.
	rec := doRequest(t, s, manager, "POST", "/api/v1/grants", map[string]interface{}{
		"actor_id": newActor(),
		"node_id":  f.backend.ID,
		"role":     "manager",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateGrantValidation(t *testing.T) {
	s := newTestServer(t)
	f := setupOrg(t, s)
	target := newActor()

	t.Run("unknown role", func(t *testing.T) {
		rec := doRequest(t, s, f.admin, "POST", "/api/v1/grants", map[string]interface{}{
			"actor_id": target,
			"node_id":  f.eng.ID,
			"role":     "owner",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, apperr.KindValidation, decodeError(t, rec).Kind)
	})

	t.Run("missing actor_id", func(t *testing.T) {
		rec := doRequest(t, s, f.admin, "POST", "/api/v1/grants", map[string]interface{}{
			"node_id": f.eng.ID,
			"role":    "read",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown node", func(t *testing.T) {
		rec := doRequest(t, s, f.admin, "POST", "/api/v1/grants", map[string]interface{}{
			"actor_id": target,
			"node_id":  uuid.New().String(),
			"role":     "read",
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("duplicate active pair", func(t *testing.T) {
		mustGrant(t, s, target, f.sales.ID, grants.RoleRead, false)
		rec := doRequest(t, s, f.admin, "POST", "/api/v1/grants", map[string]interface{}{
			"actor_id": target,
			"node_id":  f.sales.ID,
			"role":     "manager",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, apperr.KindConflict, decodeError(t, rec).Kind)
	})
}

func TestListGrants(t *testing.T) {
	s := newTestServer(t)
	f := setupOrg(t, s)

	target := newActor()
	mustGrant(t, s, target, f.eng.ID, grants.RoleRead, true)
	mustGrant(t, s, target, f.sales.ID, grants.RoleRead, false)

	listGrants := func(t *testing.T, actor, query string) ([]*grants.Grant, *http.Response) {
		t.Helper()
		rec := doRequest(t, s, actor, "GET", "/api/v1/grants?"+query, nil)
		if rec.Code != http.StatusOK {
			return nil, rec.Result()
		}
		var list []*grants.Grant
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
		return list, rec.Result()
	}

	t.Run("own grants", func(t *testing.T) {
		list, resp := listGrants(t, target, "actor_id="+target)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Len(t, list, 2)
	})

	t.Run("other actor needs root admin", func(t *testing.T) {
		stranger := newActor()
		_, resp := listGrants(t, stranger, "actor_id="+target)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		list, resp := listGrants(t, f.admin, "actor_id="+target)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Len(t, list, 2)
	})

	t.Run("by node needs manager there", func(t *testing.T) {
		engManager := newActor()
		mustGrant(t, s, engManager, f.eng.ID, grants.RoleManager, false)

		list, resp := listGrants(t, engManager, "node_id="+f.eng.ID)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		// target's read grant plus the manager's own.
		assert.Len(t, list, 2)

		_, resp = listGrants(t, target, "node_id="+f.eng.ID)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("both filters intersect", func(t *testing.T) {
		list, resp := listGrants(t, f.admin, "actor_id="+target+"&node_id="+f.sales.ID)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Len(t, list, 1)
		assert.Equal(t, "org.sales", list[0].NodePath)
	})

	t.Run("no filter rejected", func(t *testing.T) {
		_, resp := listGrants(t, f.admin, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("include expired adds revoked rows", func(t *testing.T) {
		rec := doRequest(t, s, target, "DELETE", "/api/v1/grants/"+grantIDFor(t, s, target, f.sales.ID), nil)
		require.Equal(t, http.StatusOK, rec.Code)

		list, resp := listGrants(t, target, "actor_id="+target)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Len(t, list, 1)

		list, resp = listGrants(t, target, "actor_id="+target+"&include_expired=true")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Len(t, list, 2)
	})
}

// grantIDFor looks up the id of target's grant at nodeID.
func grantIDFor(t *testing.T, s *Server, actorID, nodeID string) string {
	t.Helper()

	list, err := s.grants.FindByActor(context.Background(), actorID, true)
	require.NoError(t, err)
	for _, g := range list {
		if g.NodeID == nodeID {
			return g.ID
		}
	}
	t.Fatalf("no grant for actor %s at node %s", actorID, nodeID)
	return ""
}

func TestGetGrant(t *testing.T) {
	s := newTestServer(t)
	f := setupOrg(t, s)

	target := newActor()
	g := mustGrant(t, s, target, f.eng.ID, grants.RoleRead, false)

	t.Run("own", func(t *testing.T) {
		rec := doRequest(t, s, target, "GET", "/api/v1/grants/"+g.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, g.ID, decodeGrant(t, rec.Body.Bytes()).ID)
	})

	t.Run("manager at node", func(t *testing.T) {
		engManager := newActor()
		mustGrant(t, s, engManager, f.eng.ID, grants.RoleManager, false)
		rec := doRequest(t, s, engManager, "GET", "/api/v1/grants/"+g.ID, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unrelated actor", func(t *testing.T) {
		rec := doRequest(t, s, newActor(), "GET", "/api/v1/grants/"+g.ID, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("missing", func(t *testing.T) {
		rec := doRequest(t, s, f.admin, "GET", "/api/v1/grants/"+uuid.New().String(), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestUpdateGrant(t *testing.T) {
	s := newTestServer(t)
	f := setupOrg(t, s)

	target := newActor()
	g := mustGrant(t, s, target, f.eng.ID, grants.RoleManager, true)

	rec := doRequest(t, s, f.admin, "PATCH", "/api/v1/grants/"+g.ID, map[string]interface{}{
		"role": "admin",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	updated := decodeGrant(t, rec.Body.Bytes())
	assert.Equal(t, grants.RoleAdmin, updated.Role)
	assert.Equal(t, 1, countAuditEvents(t, s, audit.EventTypeGrantUpdate))
}

func TestUpdateGrantAntiEscalation(t *testing.T) {
	s := newTestServer(t)
	f := setupOrg(t, s)

	target := newActor()
	g := mustGrant(t, s, target, f.eng.ID, grants.RoleRead, false)
	manager := newActor()
	mustGrant(t, s, manager, f.eng.ID, grants.RoleManager, true)

	// Raising the grant to admin is held to the same bar as granting admin.
	rec := doRequest(t, s, manager, "PATCH", "/api/v1/grants/"+g.ID, map[string]interface{}{
		"role": "admin",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, decodeError(t, rec).Error, "above own effective role")

	// Within the manager tier the same actor may adjust it.
	rec = doRequest(t, s, manager, "PATCH", "/api/v1/grants/"+g.ID, map[string]interface{}{
		"role": "manager",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateGrantCannotDowngradeAboveOwnRank(t *testing.T) {
	s := newTestServer(t)
	f := setupOrg(t, s)

	target := newActor()
	g := mustGrant(t, s, target, f.eng.ID, grants.RoleAdmin, true)
	manager := newActor()
	mustGrant(t, s, manager, f.eng.ID, grants.RoleManager, true)

	// Lowering an admin grant is held to the same bar as revoking it.
	rec := doRequest(t, s, manager, "PATCH", "/api/v1/grants/"+g.ID, map[string]interface{}{
		"role": "read",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, s, f.admin, "PATCH", "/api/v1/grants/"+g.ID, map[string]interface{}{
		"role": "read",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, grants.RoleRead, decodeGrant(t, rec.Body.Bytes()).Role)
}

func TestUpdateGrantExpiry(t *testing.T) {
	s := newTestServer(t)
	f := setupOrg(t, s)

	target := newActor()
	g := mustGrant(t, s, target, f.eng.ID, grants.RoleRead, false)
	until := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)

	rec := doRequest(t, s, f.admin, "PATCH", "/api/v1/grants/"+g.ID, map[string]interface{}{
		"valid_until": until.Format(time.RFC3339),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeGrant(t, rec.Body.Bytes())
	require.NotNil(t, updated.ValidUntil)
	assert.True(t, updated.ValidUntil.Equal(until))

	rec = doRequest(t, s, f.admin, "PATCH", "/api/v1/grants/"+g.ID, map[string]interface{}{
		"clear_valid_until": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decodeGrant(t, rec.Body.Bytes()).ValidUntil)
}

func TestRevokeGrant(t *testing.T) {
	s := newTestServer(t)
	f := setupOrg(t, s)

	t.Run("self revocation", func(t *testing.T) {
		target := newActor()
		g := mustGrant(t, s, target, f.eng.ID, grants.RoleRead, false)

		rec := doRequest(t, s, target, "DELETE", "/api/v1/grants/"+g.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		revoked := decodeGrant(t, rec.Body.Bytes())
		assert.False(t, revoked.IsActive)
		require.NotNil(t, revoked.RevokedBy)
		assert.Equal(t, target, *revoked.RevokedBy)
	})

	t.Run("admin revokes", func(t *testing.T) {
		target := newActor()
		g := mustGrant(t, s, target, f.sales.ID, grants.RoleRead, false)

		rec := doRequest(t, s, f.admin, "DELETE", "/api/v1/grants/"+g.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, decodeGrant(t, rec.Body.Bytes()).RevokedBy)
	})

	t.Run("unrelated actor denied", func(t *testing.T) {
		target := newActor()
		g := mustGrant(t, s, target, f.backend.ID, grants.RoleRead, false)
		reader := newActor()
		mustGrant(t, s, reader, f.backend.ID, grants.RoleRead, false)

		rec := doRequest(t, s, reader, "DELETE", "/api/v1/grants/"+g.ID, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("double revoke conflicts", func(t *testing.T) {
		target := newActor()
		g := mustGrant(t, s, target, f.org.ID, grants.RoleRead, false)

		rec := doRequest(t, s, target, "DELETE", "/api/v1/grants/"+g.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		rec = doRequest(t, s, target, "DELETE", "/api/v1/grants/"+g.ID, nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

// TestGrantLifecycleInvalidatesScope drives grant, check, revoke, check
// through the API and expects the second check to see the revocation
// immediately, with no cached scope surviving the mutation.
func TestGrantLifecycleInvalidatesScope(t *testing.T) {
	s := newTestServer(t)
	f := setupOrg(t, s)
	target := newActor()

	rec := doRequest(t, s, f.admin, "POST", "/api/v1/grants", map[string]interface{}{
		"actor_id":               target,
		"node_id":                f.eng.ID,
		"role":                   "read",
		"inherit_to_descendants": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	grantID := decodeGrant(t, rec.Body.Bytes()).ID

	rec = doRequest(t, s, target, "GET", "/api/v1/access/check?path=org.eng.backend", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var decision scope.AccessDecision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	require.True(t, decision.Allowed)

	rec = doRequest(t, s, target, "DELETE", "/api/v1/grants/"+grantID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, target, "GET", "/api/v1/access/check?path=org.eng.backend", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	assert.False(t, decision.Allowed)
}
