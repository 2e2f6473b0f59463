package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/orgscope/pkg/apperr"
	"github.com/platinummonkey/orgscope/pkg/audit"
	"github.com/platinummonkey/orgscope/pkg/directory"
	"github.com/platinummonkey/orgscope/pkg/grants"
)

func decodeUser(t *testing.T, rec *httptest.ResponseRecorder) *directory.User {
	t.Helper()

	var u directory.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &u))
	return &u
}

func decodePage(t *testing.T, rec *httptest.ResponseRecorder) *directory.Page {
	t.Helper()

	var p directory.Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return &p
}

// directoryFixture seeds one user under each fixture node.
type directoryFixture struct {
	orgFixture
	alice *directory.User // org.eng
	bob   *directory.User // org.eng.backend
	carol *directory.User // org.sales
	dave  *directory.User // org
}

func setupDirectory(t *testing.T, s *Server) directoryFixture {
	t.Helper()

	f := setupOrg(t, s)
	return directoryFixture{
		orgFixture: f,
		alice:      mustUser(t, s, "Alice Liddell", "alice@example.com", f.eng.ID),
		bob:        mustUser(t, s, "Bob Stone", "bob@example.com", f.backend.ID),
		carol:      mustUser(t, s, "Carol Reyes", "carol@example.com", f.sales.ID),
		dave:       mustUser(t, s, "Dave Ng", "dave@example.com", f.org.ID),
	}
}

func userNames(p *directory.Page) []string {
	names := make([]string, 0, len(p.Users))
	for _, u := range p.Users {
		names = append(names, u.DisplayName)
	}
	return names
}

func TestQueryUsersScopeFiltered(t *testing.T) {
	s := newTestServer(t)
	d := setupDirectory(t, s)

	viewer := newActor()
	mustGrant(t, s, viewer, d.eng.ID, grants.RoleRead, true)

	rec := doRequest(t, s, viewer, "GET", "/api/v1/directory/users", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	page := decodePage(t, rec)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Users, 2)

	// Ordered by node path: org.eng before org.eng.backend.
	assert.Equal(t, []string{"Alice Liddell", "Bob Stone"}, userNames(page))
	assert.Equal(t, directory.ProvenanceDirect, page.Users[0].Provenance)
	assert.Equal(t, directory.ProvenanceInherited, page.Users[1].Provenance)
	assert.Equal(t, grants.RoleRead, page.Users[0].EffectiveRole)
	assert.Equal(t, []string{"org.eng"}, page.Users[1].GrantPaths)

	assert.Equal(t, 1, countAuditEvents(t, s, audit.EventTypeDirectoryQuery))
}

func TestQueryUsersSelfRowWithoutGrants(t *testing.T) {
	s := newTestServer(t)
	d := setupDirectory(t, s)

	// Carol holds no grants; she still sees her own row.
	rec := doRequest(t, s, d.carol.ID, "GET", "/api/v1/directory/users", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	page := decodePage(t, rec)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, d.carol.ID, page.Users[0].ID)
	assert.Equal(t, directory.ProvenanceSelf, page.Users[0].Provenance)
	assert.Equal(t, grants.RoleRead, page.Users[0].EffectiveRole)

	rec = doRequest(t, s, d.carol.ID, "GET", "/api/v1/directory/users?exclude_self=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decodePage(t, rec).Total)
}

func TestQueryUsersFilters(t *testing.T) {
	s := newTestServer(t)
	d := setupDirectory(t, s)

	// Suspend carol and add a user with a hire date for the date filters.
	rec := doRequest(t, s, d.admin, "PATCH", "/api/v1/directory/users/"+d.carol.ID, map[string]interface{}{
		"status": "suspended",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(t, s, d.admin, "POST", "/api/v1/directory/users", map[string]interface{}{
		"display_name": "Eve Tanaka",
		"email":        "eve@example.com",
		"node_id":      d.backend.ID,
		"hired_at":     "2024-03-01T00:00:00Z",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	query := func(t *testing.T, params string) *directory.Page {
		t.Helper()
		rec := doRequest(t, s, d.admin, "GET", "/api/v1/directory/users?"+params, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		return decodePage(t, rec)
	}

	t.Run("unfiltered sees all", func(t *testing.T) {
		assert.Equal(t, 5, query(t, "").Total)
	})

	t.Run("search matches name or email", func(t *testing.T) {
		assert.Equal(t, []string{"Alice Liddell"}, userNames(query(t, "search=ALIce")))
		assert.Equal(t, []string{"Bob Stone"}, userNames(query(t, "search=bob%40example")))
	})

	t.Run("status", func(t *testing.T) {
		assert.Equal(t, []string{"Carol Reyes"}, userNames(query(t, "status=suspended")))
	})

	t.Run("path prefix", func(t *testing.T) {
		page := query(t, "path_prefix=org.eng")
		assert.Equal(t, []string{"Alice Liddell", "Bob Stone", "Eve Tanaka"}, userNames(page))
	})

	t.Run("hired window", func(t *testing.T) {
		assert.Equal(t, []string{"Eve Tanaka"}, userNames(query(t, "hired_after=2024-01-01T00:00:00Z")))
		assert.Empty(t, userNames(query(t, "hired_after=2025-01-01T00:00:00Z")))
	})

	t.Run("pagination", func(t *testing.T) {
		page := query(t, "limit=2")
		assert.Equal(t, 5, page.Total)
		assert.Len(t, page.Users, 2)
		assert.Equal(t, 2, page.Limit)

		page = query(t, "limit=2&offset=4")
		assert.Len(t, page.Users, 1)
		assert.Equal(t, 4, page.Offset)
	})
}

// TestQueryUsersMinimumRole narrows the directory to subtrees where the
// caller holds at least the requested role.
func TestQueryUsersMinimumRole(t *testing.T) {
	s := newTestServer(t)
	d := setupDirectory(t, s)

	actor := newActor()
	mustGrant(t, s, actor, d.eng.ID, grants.RoleManager, true)
	mustGrant(t, s, actor, d.sales.ID, grants.RoleRead, false)

	rec := doRequest(t, s, actor, "GET", "/api/v1/directory/users", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decodePage(t, rec).Total)

	rec = doRequest(t, s, actor, "GET", "/api/v1/directory/users?min_role=manager", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodePage(t, rec)
	assert.Equal(t, []string{"Alice Liddell", "Bob Stone"}, userNames(page))
}

func TestQueryUsersValidation(t *testing.T) {
	s := newTestServer(t)
	d := setupDirectory(t, s)

	for name, params := range map[string]string{
		"unknown min_role":    "min_role=owner",
		"malformed prefix":    "path_prefix=Bad..Path",
		"malformed timestamp": "hired_after=yesterday",
		"non-numeric limit":   "limit=abc",
	} {
		t.Run(name, func(t *testing.T) {
			rec := doRequest(t, s, d.admin, "GET", "/api/v1/directory/users?"+params, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestCreateUser(t *testing.T) {
	s := newTestServer(t)
	f := setupOrg(t, s)

	rec := doRequest(t, s, f.admin, "POST", "/api/v1/directory/users", map[string]interface{}{
		"display_name": "Frank Ocean",
		"email":        "Frank@Example.com",
		"node_id":      f.backend.ID,
		"title":        "engineer",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	u := decodeUser(t, rec)
	assert.Equal(t, "frank@example.com", u.Email)
	assert.Equal(t, directory.StatusActive, u.Status)
	assert.Equal(t, f.backend.ID, u.NodeID)
	assert.Equal(t, 1, countAuditEvents(t, s, audit.EventTypeUserCreate))
}

func TestCreateUserAuthorization(t *testing.T) {
	s := newTestServer(t)
	f := setupOrg(t, s)

	manager := newActor()
	mustGrant(t, s, manager, f.eng.ID, grants.RoleManager, true)

	rec := doRequest(t, s, manager, "POST", "/api/v1/directory/users", map[string]interface{}{
		"display_name": "Grace Hopper",
		"email":        "grace@example.com",
		"node_id":      f.eng.ID,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, apperr.KindUnauthorized, decodeError(t, rec).Kind)
}

func TestCreateUserValidation(t *testing.T) {
	s := newTestServer(t)
	d := setupDirectory(t, s)

	t.Run("missing node_id", func(t *testing.T) {
		rec := doRequest(t, s, d.admin, "POST", "/api/v1/directory/users", map[string]interface{}{
			"display_name": "No Node",
			"email":        "nonode@example.com",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown node", func(t *testing.T) {
		rec := doRequest(t, s, d.admin, "POST", "/api/v1/directory/users", map[string]interface{}{
			"display_name": "Lost",
			"email":        "lost@example.com",
			"node_id":      uuid.New().String(),
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("duplicate email", func(t *testing.T) {
		rec := doRequest(t, s, d.admin, "POST", "/api/v1/directory/users", map[string]interface{}{
			"display_name": "Alice Again",
			"email":        "alice@example.com",
			"node_id":      d.sales.ID,
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, apperr.KindConflict, decodeError(t, rec).Kind)
	})

	t.Run("bad email", func(t *testing.T) {
		rec := doRequest(t, s, d.admin, "POST", "/api/v1/directory/users", map[string]interface{}{
			"display_name": "No At Sign",
			"email":        "not-an-email",
			"node_id":      d.sales.ID,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetUser(t *testing.T) {
	s := newTestServer(t)
	d := setupDirectory(t, s)

	t.Run("visible", func(t *testing.T) {
		rec := doRequest(t, s, d.admin, "GET", "/api/v1/directory/users/"+d.alice.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, d.alice.ID, decodeUser(t, rec).ID)
	})

	t.Run("self without grants", func(t *testing.T) {
		rec := doRequest(t, s, d.carol.ID, "GET", "/api/v1/directory/users/"+d.carol.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, d.carol.ID, decodeUser(t, rec).ID)
	})

	t.Run("out of scope reads as missing", func(t *testing.T) {
		salesReader := newActor()
		mustGrant(t, s, salesReader, d.sales.ID, grants.RoleRead, true)

		rec := doRequest(t, s, salesReader, "GET", "/api/v1/directory/users/"+d.alice.ID, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		body := decodeError(t, rec)
		assert.Equal(t, apperr.KindNotFound, body.Kind)
		assert.Contains(t, body.Error, "not found")
		assert.Equal(t, 1, countAuditEvents(t, s, audit.EventTypeAccessDenied))
	})

	t.Run("genuinely missing", func(t *testing.T) {
		rec := doRequest(t, s, d.admin, "GET", "/api/v1/directory/users/"+uuid.New().String(), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed id", func(t *testing.T) {
		rec := doRequest(t, s, d.admin, "GET", "/api/v1/directory/users/nope", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

// TestGetUserUnderDeletedNode verifies a soft-deleted branch hides its users
// even from an actor who could see them before.
func TestGetUserUnderDeletedNode(t *testing.T) {
	s := newTestServer(t)
	d := setupDirectory(t, s)

	rec := doRequest(t, s, d.admin, "GET", "/api/v1/directory/users/"+d.carol.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, d.admin, "DELETE", fmt.Sprintf("/api/v1/nodes/%s", d.sales.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, d.admin, "GET", "/api/v1/directory/users/"+d.carol.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateUser(t *testing.T) {
	s := newTestServer(t)
	d := setupDirectory(t, s)

	manager := newActor()
	mustGrant(t, s, manager, d.eng.ID, grants.RoleManager, true)

	rec := doRequest(t, s, manager, "PATCH", "/api/v1/directory/users/"+d.alice.ID, map[string]interface{}{
		"display_name": "Alice L.",
		"title":        "staff engineer",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	u := decodeUser(t, rec)
	assert.Equal(t, "Alice L.", u.DisplayName)
	assert.Equal(t, "staff engineer", u.Title)
	assert.Equal(t, 1, countAuditEvents(t, s, audit.EventTypeUserUpdate))
}

func TestUpdateUserAuthorization(t *testing.T) {
	s := newTestServer(t)
	d := setupDirectory(t, s)

	t.Run("reader sees but cannot edit", func(t *testing.T) {
		reader := newActor()
		mustGrant(t, s, reader, d.eng.ID, grants.RoleRead, true)

		rec := doRequest(t, s, reader, "PATCH", "/api/v1/directory/users/"+d.alice.ID, map[string]interface{}{
			"title": "self promoter",
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, decodeError(t, rec).Error, "manager")
	})

	t.Run("invisible reads as missing", func(t *testing.T) {
		rec := doRequest(t, s, newActor(), "PATCH", "/api/v1/directory/users/"+d.alice.ID, map[string]interface{}{
			"title": "intruder",
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("self access does not include edit", func(t *testing.T) {
		rec := doRequest(t, s, d.bob.ID, "PATCH", "/api/v1/directory/users/"+d.bob.ID, map[string]interface{}{
			"title": "director",
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestUpdateUserMove(t *testing.T) {
	s := newTestServer(t)
	d := setupDirectory(t, s)

	engManager := newActor()
	mustGrant(t, s, engManager, d.eng.ID, grants.RoleManager, true)

	t.Run("needs manager at destination", func(t *testing.T) {
		rec := doRequest(t, s, engManager, "PATCH", "/api/v1/directory/users/"+d.alice.ID, map[string]interface{}{
			"node_id": d.sales.ID,
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin moves across subtrees", func(t *testing.T) {
		rec := doRequest(t, s, d.admin, "PATCH", "/api/v1/directory/users/"+d.alice.ID, map[string]interface{}{
			"node_id": d.sales.ID,
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, d.sales.ID, decodeUser(t, rec).NodeID)
	})

	t.Run("destination must exist", func(t *testing.T) {
		rec := doRequest(t, s, d.admin, "PATCH", "/api/v1/directory/users/"+d.bob.ID, map[string]interface{}{
			"node_id": uuid.New().String(),
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestUpdateUserValidation(t *testing.T) {
	s := newTestServer(t)
	d := setupDirectory(t, s)

	rec := doRequest(t, s, d.admin, "PATCH", "/api/v1/directory/users/"+d.alice.ID, map[string]interface{}{
		"status": "retired",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperr.KindValidation, decodeError(t, rec).Kind)
}
