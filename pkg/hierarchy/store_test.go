package hierarchy

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/platinummonkey/orgscope/pkg/apperr"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE org_nodes (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			code TEXT NOT NULL,
			path TEXT NOT NULL UNIQUE,
			level INTEGER NOT NULL,
			parent_id TEXT,
			sort_order INTEGER NOT NULL DEFAULT 0,
			metadata TEXT NOT NULL DEFAULT '{}',
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE org_grants (
			id TEXT PRIMARY KEY,
			actor_id TEXT NOT NULL,
			node_id TEXT NOT NULL,
			node_path TEXT NOT NULL,
			role TEXT NOT NULL,
			inherit_to_descendants INTEGER NOT NULL DEFAULT 0,
			valid_from TIMESTAMP NOT NULL,
			valid_until TIMESTAMP,
			granted_by TEXT,
			revoked_by TEXT,
			revoked_at TIMESTAMP,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	return db
}

func mustCreateNode(t *testing.T, store *Store, name, code string, parentID *string) *Node {
	t.Helper()

	node, err := store.Create(context.Background(), &CreateNodeRequest{
		Name:     name,
		Code:     code,
		ParentID: parentID,
	})
	if err != nil {
		t.Fatalf("Failed to create node %s: %v", code, err)
	}
	return node
}

// setupOrgTree builds the canonical test tree:
// org (0), org.eng (1), org.eng.backend (2), org.sales (1).
func setupOrgTree(t *testing.T, store *Store) (org, eng, backend, sales *Node) {
	t.Helper()

	org = mustCreateNode(t, store, "Organization", "org", nil)
	eng = mustCreateNode(t, store, "Engineering", "eng", &org.ID)
	backend = mustCreateNode(t, store, "Backend", "backend", &eng.ID)
	sales = mustCreateNode(t, store, "Sales", "sales", &org.ID)
	return org, eng, backend, sales
}

func TestCreateNode(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	t.Run("Root", func(t *testing.T) {
		node := mustCreateNode(t, store, "Organization", "org", nil)
		if node.Path != "org" {
			t.Errorf("root path = %q, want org", node.Path)
		}
		if node.Level != 0 {
			t.Errorf("root level = %d, want 0", node.Level)
		}
		if node.ParentID != nil {
			t.Errorf("root parent = %v, want nil", *node.ParentID)
		}
		if !node.IsActive {
			t.Error("new node should be active")
		}
	})

	t.Run("Child", func(t *testing.T) {
		org, err := store.GetByPath(ctx, "org")
		if err != nil {
			t.Fatalf("GetByPath(org) error: %v", err)
		}
		child := mustCreateNode(t, store, "Engineering", "eng", &org.ID)
		if child.Path != "org.eng" {
			t.Errorf("child path = %q, want org.eng", child.Path)
		}
		if child.Level != 1 {
			t.Errorf("child level = %d, want 1", child.Level)
		}
	})

	t.Run("DuplicateSiblingCode", func(t *testing.T) {
		org, _ := store.GetByPath(ctx, "org")
		_, err := store.Create(ctx, &CreateNodeRequest{Name: "Other Eng", Code: "eng", ParentID: &org.ID})
		if !apperr.IsConflict(err) {
			t.Errorf("duplicate sibling code error = %v, want conflict", err)
		}
	})

	t.Run("InvalidCode", func(t *testing.T) {
		_, err := store.Create(ctx, &CreateNodeRequest{Name: "Bad", Code: "a.b"})
		if !apperr.IsValidation(err) {
			t.Errorf("invalid code error = %v, want validation", err)
		}
	})

	t.Run("EmptyName", func(t *testing.T) {
		_, err := store.Create(ctx, &CreateNodeRequest{Name: "   ", Code: "blank"})
		if !apperr.IsValidation(err) {
			t.Errorf("empty name error = %v, want validation", err)
		}
	})

	t.Run("ParentNotFound", func(t *testing.T) {
		missing := "caffee00-0000-4000-8000-000000000000"
		_, err := store.Create(ctx, &CreateNodeRequest{Name: "X", Code: "x", ParentID: &missing})
		if !apperr.IsNotFound(err) {
			t.Errorf("missing parent error = %v, want not found", err)
		}
	})

	t.Run("MalformedParentID", func(t *testing.T) {
		bad := "not-a-uuid"
		_, err := store.Create(ctx, &CreateNodeRequest{Name: "X", Code: "x2", ParentID: &bad})
		if !apperr.IsValidation(err) {
			t.Errorf("malformed parent id error = %v, want validation", err)
		}
	})

	t.Run("MetadataRoundTrip", func(t *testing.T) {
		node, err := store.Create(ctx, &CreateNodeRequest{
			Name:     "Platform",
			Code:     "platform",
			Metadata: map[string]any{"cost_center": "cc-42", "headcount": float64(12)},
		})
		if err != nil {
			t.Fatalf("Create error: %v", err)
		}
		loaded, err := store.GetByID(ctx, node.ID)
		if err != nil {
			t.Fatalf("GetByID error: %v", err)
		}
		if loaded.Metadata["cost_center"] != "cc-42" {
			t.Errorf("metadata cost_center = %v, want cc-42", loaded.Metadata["cost_center"])
		}
		if loaded.Metadata["headcount"] != float64(12) {
			t.Errorf("metadata headcount = %v, want 12", loaded.Metadata["headcount"])
		}
	})
}

func TestGetByPathNotFound(t *testing.T) {
	store := NewStore(setupTestDB(t))

	_, err := store.GetByPath(context.Background(), "ghost")
	if !apperr.IsNotFound(err) {
		t.Errorf("error = %v, want not found", err)
	}
}

func TestChildrenOrdering(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	org := mustCreateNode(t, store, "Organization", "org", nil)
	for _, c := range []struct {
		code string
		sort int
	}{{"zeta", 1}, {"alpha", 2}, {"mid", 1}} {
		_, err := store.Create(ctx, &CreateNodeRequest{
			Name: c.code, Code: c.code, ParentID: &org.ID, SortOrder: c.sort,
		})
		if err != nil {
			t.Fatalf("Create(%s) error: %v", c.code, err)
		}
	}

	children, err := store.Children(ctx, &org.ID)
	if err != nil {
		t.Fatalf("Children error: %v", err)
	}
	got := make([]string, len(children))
	for i, c := range children {
		got[i] = c.Code
	}
	want := []string{"mid", "zeta", "alpha"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("children order = %v, want %v", got, want)
		}
	}
}

func TestDescendantsAndAncestors(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()
	org, eng, backend, _ := setupOrgTree(t, store)

	t.Run("Descendants", func(t *testing.T) {
		descendants, err := store.Descendants(ctx, org.Path, false)
		if err != nil {
			t.Fatalf("Descendants error: %v", err)
		}
		if len(descendants) != 3 {
			t.Fatalf("descendants of org = %d nodes, want 3", len(descendants))
		}
		// path-ordered
		if descendants[0].Path != "org.eng" || descendants[1].Path != "org.eng.backend" || descendants[2].Path != "org.sales" {
			t.Errorf("descendant order wrong: %s, %s, %s",
				descendants[0].Path, descendants[1].Path, descendants[2].Path)
		}
	})

	t.Run("DescendantsIncludeSelf", func(t *testing.T) {
		descendants, err := store.Descendants(ctx, org.Path, true)
		if err != nil {
			t.Fatalf("Descendants error: %v", err)
		}
		if len(descendants) != 4 {
			t.Errorf("descendants with self = %d nodes, want 4", len(descendants))
		}
	})

	t.Run("DescendantPaths", func(t *testing.T) {
		paths, err := store.DescendantPaths(ctx, eng.Path)
		if err != nil {
			t.Fatalf("DescendantPaths error: %v", err)
		}
		if len(paths) != 1 || paths[0] != "org.eng.backend" {
			t.Errorf("DescendantPaths(org.eng) = %v, want [org.eng.backend]", paths)
		}
	})

	t.Run("Ancestors", func(t *testing.T) {
		ancestors, err := store.Ancestors(ctx, backend.Path, false)
		if err != nil {
			t.Fatalf("Ancestors error: %v", err)
		}
		if len(ancestors) != 2 {
			t.Fatalf("ancestors of backend = %d, want 2", len(ancestors))
		}
		if ancestors[0].Path != "org" || ancestors[1].Path != "org.eng" {
			t.Errorf("ancestor order = %s, %s, want org, org.eng", ancestors[0].Path, ancestors[1].Path)
		}
	})

	t.Run("AncestorsIncludeSelf", func(t *testing.T) {
		ancestors, err := store.Ancestors(ctx, backend.Path, true)
		if err != nil {
			t.Fatalf("Ancestors error: %v", err)
		}
		if len(ancestors) != 3 || ancestors[2].Path != "org.eng.backend" {
			t.Errorf("ancestors with self wrong: %d nodes", len(ancestors))
		}
	})

	t.Run("RootHasNoAncestors", func(t *testing.T) {
		ancestors, err := store.Ancestors(ctx, org.Path, false)
		if err != nil {
			t.Fatalf("Ancestors error: %v", err)
		}
		if len(ancestors) != 0 {
			t.Errorf("root ancestors = %d, want 0", len(ancestors))
		}
	})
}

// Underscore is a legal code character but a LIKE wildcard; prefix scans must
// not bleed into lookalike paths.
func TestDescendantsUnderscoreNotWildcard(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	teamA := mustCreateNode(t, store, "Team A", "team_a", nil)
	lookalike := mustCreateNode(t, store, "Lookalike", "teamxa", nil)
	mustCreateNode(t, store, "A Child", "child", &teamA.ID)
	mustCreateNode(t, store, "X Child", "child", &lookalike.ID)

	descendants, err := store.Descendants(ctx, teamA.Path, false)
	if err != nil {
		t.Fatalf("Descendants error: %v", err)
	}
	if len(descendants) != 1 {
		t.Fatalf("descendants of team_a = %d, want 1", len(descendants))
	}
	if descendants[0].Path != "team_a.child" {
		t.Errorf("descendant path = %q, want team_a.child", descendants[0].Path)
	}
}

func TestSiblings(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()
	_, eng, _, sales := setupOrgTree(t, store)

	siblings, err := store.Siblings(ctx, eng.ID, false)
	if err != nil {
		t.Fatalf("Siblings error: %v", err)
	}
	if len(siblings) != 1 || siblings[0].ID != sales.ID {
		t.Errorf("siblings of eng = %d nodes, want just sales", len(siblings))
	}

	withSelf, err := store.Siblings(ctx, eng.ID, true)
	if err != nil {
		t.Fatalf("Siblings error: %v", err)
	}
	if len(withSelf) != 2 {
		t.Errorf("siblings with self = %d nodes, want 2", len(withSelf))
	}
}

func TestUpdateNode(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()
	org, _, _, _ := setupOrgTree(t, store)

	newName := "Holding Company"
	newSort := 5
	updated, err := store.Update(ctx, org.ID, &UpdateNodeRequest{
		Name:      &newName,
		SortOrder: &newSort,
		Metadata:  map[string]any{"region": "emea"},
	})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if updated.Name != newName || updated.SortOrder != newSort {
		t.Errorf("update not applied: name=%q sort=%d", updated.Name, updated.SortOrder)
	}
	if updated.Metadata["region"] != "emea" {
		t.Errorf("metadata not applied: %v", updated.Metadata)
	}
	if updated.Path != "org" || updated.Code != "org" {
		t.Errorf("update must not touch path/code, got %q/%q", updated.Path, updated.Code)
	}

	t.Run("NoFields", func(t *testing.T) {
		_, err := store.Update(ctx, org.ID, &UpdateNodeRequest{})
		if !apperr.IsValidation(err) {
			t.Errorf("empty update error = %v, want validation", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		name := "X"
		_, err := store.Update(ctx, "caffee00-0000-4000-8000-000000000000", &UpdateNodeRequest{Name: &name})
		if !apperr.IsNotFound(err) {
			t.Errorf("missing node error = %v, want not found", err)
		}
	})
}
