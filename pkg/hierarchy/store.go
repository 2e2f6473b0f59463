package hierarchy

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/platinummonkey/orgscope/pkg/apperr"
)

// Store provides database operations for hierarchy nodes
type Store struct {
	db *sql.DB
}

// NewStore creates a new hierarchy store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for health checks and cross-store joins.
func (s *Store) DB() *sql.DB {
	return s.db
}

const nodeColumns = "id, name, code, path, level, parent_id, sort_order, metadata, is_active, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNode(scanner rowScanner) (*Node, error) {
	var node Node
	var parentID sql.NullString
	var metadata sql.NullString

	err := scanner.Scan(
		&node.ID, &node.Name, &node.Code, &node.Path, &node.Level,
		&parentID, &node.SortOrder, &metadata, &node.IsActive,
		&node.CreatedAt, &node.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		node.ParentID = &parentID.String
	}
	if metadata.Valid && metadata.String != "" && metadata.String != "{}" {
		if err := json.Unmarshal([]byte(metadata.String), &node.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode node metadata: %w", err)
		}
	}

	return &node, nil
}

func marshalMetadata(metadata map[string]any) (string, error) {
	if len(metadata) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return "", apperr.NewValidation("metadata is not JSON-encodable: %v", err)
	}
	return string(raw), nil
}

// likePrefixPattern builds a LIKE pattern matching strict descendants of
// path. Underscore is a LIKE wildcard and a legal code character, so the
// prefix must be escaped.
func likePrefixPattern(path string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `_`, `\_`, `%`, `\%`).Replace(path)
	return escaped + PathSeparator + "%"
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	// sqlite used in tests reports constraint violations as plain strings
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func validateID(id, label string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.NewValidation("invalid %s id %q", label, id)
	}
	return nil
}

// Create inserts a new node with path and level derived from the parent.
func (s *Store) Create(ctx context.Context, req *CreateNodeRequest) (*Node, error) {
	if req == nil {
		return nil, apperr.NewValidation("request must not be nil")
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, apperr.NewValidation("node name must not be empty")
	}
	if err := ValidateCode(req.Code); err != nil {
		return nil, err
	}

	var parentPath string
	var level int
	if req.ParentID != nil {
		if err := validateID(*req.ParentID, "parent node"); err != nil {
			return nil, err
		}
		parent, err := s.GetByID(ctx, *req.ParentID)
		if err != nil {
			if apperr.IsNotFound(err) {
				return nil, apperr.NewNotFound("parent node %s not found", *req.ParentID)
			}
			return nil, err
		}
		if !parent.IsActive {
			return nil, apperr.NewNotFound("parent node %s not found", *req.ParentID)
		}
		parentPath = parent.Path
		level = parent.Level + 1
	}

	path, err := DerivePath(parentPath, req.Code)
	if err != nil {
		return nil, err
	}

	// Explicit duplicate check so the caller gets a clean conflict message;
	// the unique index on path is the concurrent-writer backstop.
	taken, err := s.pathTaken(ctx, path)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperr.NewConflict("node code %q already used under %q", req.Code, parentPath)
	}

	metadata, err := marshalMetadata(req.Metadata)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	node := &Node{
		ID:        uuid.New().String(),
		Name:      strings.TrimSpace(req.Name),
		Code:      req.Code,
		Path:      path,
		Level:     level,
		ParentID:  req.ParentID,
		SortOrder: req.SortOrder,
		Metadata:  req.Metadata,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO org_nodes (id, name, code, path, level, parent_id, sort_order, metadata, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		node.ID, node.Name, node.Code, node.Path, node.Level,
		node.ParentID, node.SortOrder, metadata, node.IsActive,
		node.CreatedAt, node.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.NewConflict("node code %q already used under %q", req.Code, parentPath)
		}
		return nil, fmt.Errorf("failed to create node: %w", err)
	}

	return node, nil
}

func (s *Store) pathTaken(ctx context.Context, path string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM org_nodes WHERE path = $1", path).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check path uniqueness: %w", err)
	}
	return count > 0, nil
}

// GetByID returns a node by id, active or not.
func (s *Store) GetByID(ctx context.Context, id string) (*Node, error) {
	if err := validateID(id, "node"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		"SELECT "+nodeColumns+" FROM org_nodes WHERE id = $1", id)
	node, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NewNotFound("node %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get node: %w", err)
	}
	return node, nil
}

// GetByPath returns a node by its materialized path, active or not.
func (s *Store) GetByPath(ctx context.Context, path string) (*Node, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		"SELECT "+nodeColumns+" FROM org_nodes WHERE path = $1", path)
	node, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NewNotFound("node with path %q not found", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get node by path: %w", err)
	}
	return node, nil
}

// List returns all active nodes ordered by path, the natural order for
// assembling the full tree.
func (s *Store) List(ctx context.Context) ([]*Node, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+nodeColumns+" FROM org_nodes WHERE is_active = TRUE ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	defer rows.Close()
	return collectNodes(rows)
}

// Children returns the active children of parentID, ordered for display.
// A nil parentID returns the root nodes.
func (s *Store) Children(ctx context.Context, parentID *string) ([]*Node, error) {
	var rows *sql.Rows
	var err error
	if parentID == nil {
		rows, err = s.db.QueryContext(ctx,
			"SELECT "+nodeColumns+" FROM org_nodes WHERE parent_id IS NULL AND is_active = TRUE ORDER BY sort_order, code")
	} else {
		if idErr := validateID(*parentID, "parent node"); idErr != nil {
			return nil, idErr
		}
		rows, err = s.db.QueryContext(ctx,
			"SELECT "+nodeColumns+" FROM org_nodes WHERE parent_id = $1 AND is_active = TRUE ORDER BY sort_order, code",
			*parentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	defer rows.Close()
	return collectNodes(rows)
}

// Descendants returns every active node strictly below path, path-ordered.
// With includeSelf the node at path itself is included when active.
func (s *Store) Descendants(ctx context.Context, path string, includeSelf bool) ([]*Node, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}

	query := "SELECT " + nodeColumns + ` FROM org_nodes
		WHERE is_active = TRUE AND (path LIKE $1 ESCAPE '\'`
	args := []interface{}{likePrefixPattern(path)}
	if includeSelf {
		query += " OR path = $2"
		args = append(args, path)
	}
	query += ") ORDER BY path"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list descendants: %w", err)
	}
	defer rows.Close()
	return collectNodes(rows)
}

// DescendantPaths returns just the active descendant paths below path,
// the shape scope expansion needs.
func (s *Store) DescendantPaths(ctx context.Context, path string) ([]string, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT path FROM org_nodes WHERE is_active = TRUE AND path LIKE $1 ESCAPE '\' ORDER BY path`,
		likePrefixPattern(path))
	if err != nil {
		return nil, fmt.Errorf("failed to list descendant paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan descendant path: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// Ancestors returns the chain of active nodes above path in root-to-leaf
// order. With includeSelf the node at path is appended.
func (s *Store) Ancestors(ctx context.Context, path string, includeSelf bool) ([]*Node, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}

	paths := AncestorPaths(path)
	if includeSelf {
		paths = append(paths, path)
	}
	if len(paths) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(paths))
	args := make([]interface{}, len(paths))
	for i, p := range paths {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = p
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+nodeColumns+" FROM org_nodes WHERE is_active = TRUE AND path IN ("+strings.Join(placeholders, ", ")+") ORDER BY level",
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list ancestors: %w", err)
	}
	defer rows.Close()
	return collectNodes(rows)
}

// Siblings returns the active nodes sharing a parent with the given node,
// ordered for display. Root nodes are siblings of the other roots.
func (s *Store) Siblings(ctx context.Context, id string, includeSelf bool) ([]*Node, error) {
	node, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	siblings, err := s.Children(ctx, node.ParentID)
	if err != nil {
		return nil, err
	}
	if includeSelf {
		return siblings, nil
	}

	filtered := siblings[:0]
	for _, sibling := range siblings {
		if sibling.ID != node.ID {
			filtered = append(filtered, sibling)
		}
	}
	return filtered, nil
}

// Update changes a node's display fields. Code, path and parent are fixed;
// relocation goes through MoveSubtree.
func (s *Store) Update(ctx context.Context, id string, req *UpdateNodeRequest) (*Node, error) {
	if err := validateID(id, "node"); err != nil {
		return nil, err
	}
	if req == nil || (req.Name == nil && req.SortOrder == nil && req.Metadata == nil) {
		return nil, apperr.NewValidation("no fields to update")
	}

	setClauses := []string{}
	args := []interface{}{}
	argPos := 1

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, apperr.NewValidation("node name must not be empty")
		}
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argPos))
		args = append(args, strings.TrimSpace(*req.Name))
		argPos++
	}
	if req.SortOrder != nil {
		setClauses = append(setClauses, fmt.Sprintf("sort_order = $%d", argPos))
		args = append(args, *req.SortOrder)
		argPos++
	}
	if req.Metadata != nil {
		metadata, err := marshalMetadata(req.Metadata)
		if err != nil {
			return nil, err
		}
		setClauses = append(setClauses, fmt.Sprintf("metadata = $%d", argPos))
		args = append(args, metadata)
		argPos++
	}

	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", argPos))
	args = append(args, time.Now().UTC())
	argPos++
	args = append(args, id)

	result, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE org_nodes SET %s WHERE id = $%d AND is_active = TRUE",
			strings.Join(setClauses, ", "), argPos),
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update node: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return nil, apperr.NewNotFound("node %s not found", id)
	}

	return s.GetByID(ctx, id)
}

func collectNodes(rows *sql.Rows) ([]*Node, error) {
	var nodes []*Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}
