package hierarchy

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/platinummonkey/orgscope/pkg/apperr"
)

// MoveResult represents the outcome of a subtree relocation
type MoveResult struct {
	Node           *Node  `json:"node"`
	OldPath        string `json:"old_path"`
	NewPath        string `json:"new_path"`
	LevelDelta     int    `json:"level_delta"`
	MovedDescCount int64  `json:"moved_descendants"`
}

// MoveSubtree relocates a node and every descendant under a new parent in a
// single transaction. The moved node's path, level and parent_id change;
// each descendant keeps its suffix while the old path prefix is replaced and
// its level shifts by the same delta. Concurrent overlapping moves serialize
// on the moved row: the path guard on the first UPDATE detects a prefix that
// changed between read and write and aborts with a conflict.
func (s *Store) MoveSubtree(ctx context.Context, id string, newParentID *string) (*MoveResult, error) {
	if err := validateID(id, "node"); err != nil {
		return nil, err
	}
	if newParentID != nil {
		if err := validateID(*newParentID, "parent node"); err != nil {
			return nil, err
		}
		if *newParentID == id {
			return nil, apperr.NewBusinessRule("cannot move node %s under itself", id)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start move transaction: %w", err)
	}
	defer tx.Rollback()

	node, err := getNodeTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !node.IsActive {
		return nil, apperr.NewBusinessRule("cannot move inactive node %s", id)
	}

	var newParentPath string
	var newLevel int
	if newParentID != nil {
		parent, err := getNodeTx(ctx, tx, *newParentID)
		if err != nil {
			if apperr.IsNotFound(err) {
				return nil, apperr.NewNotFound("target parent node %s not found", *newParentID)
			}
			return nil, err
		}
		if !parent.IsActive {
			return nil, apperr.NewNotFound("target parent node %s not found", *newParentID)
		}
		if parent.Path == node.Path || IsDescendant(parent.Path, node.Path) {
			return nil, apperr.NewBusinessRule(
				"circular move: %q is inside the subtree of %q", parent.Path, node.Path)
		}
		newParentPath = parent.Path
		newLevel = parent.Level + 1
	}

	// No-op when the destination is the current parent.
	if sameParent(node.ParentID, newParentID) {
		result := &MoveResult{Node: node, OldPath: node.Path, NewPath: node.Path}
		return result, tx.Commit()
	}

	newPath, err := DerivePath(newParentPath, node.Code)
	if err != nil {
		return nil, err
	}

	// Active sibling with the same code at the destination.
	var collisions int
	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM org_nodes WHERE path = $1 AND id <> $2",
		newPath, node.ID).Scan(&collisions)
	if err != nil {
		return nil, fmt.Errorf("failed to check destination collision: %w", err)
	}
	if collisions > 0 {
		return nil, apperr.NewConflict("node code %q already used under %q", node.Code, newParentPath)
	}

	oldPath := node.Path
	levelDelta := newLevel - node.Level
	now := time.Now().UTC()

	// Guarded root update: if another transaction rewrote this node's path
	// after our read, zero rows match and the move aborts.
	result, err := tx.ExecContext(ctx, `
		UPDATE org_nodes
		SET path = $1, level = $2, parent_id = $3, updated_at = $4
		WHERE id = $5 AND path = $6`,
		newPath, newLevel, newParentID, now, node.ID, oldPath)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.NewConflict("node code %q already used under %q", node.Code, newParentPath)
		}
		return nil, fmt.Errorf("failed to move node: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check move result: %w", err)
	}
	if affected == 0 {
		return nil, apperr.NewConflict("node %s was moved concurrently, retry", id)
	}

	// Rewrite every descendant (active or not) in one statement: replace the
	// old prefix, shift the level. Suffixes are preserved by construction.
	descResult, err := tx.ExecContext(ctx, `
		UPDATE org_nodes
		SET path = $1 || substr(path, $2), level = level + $3, updated_at = $4
		WHERE path LIKE $5 ESCAPE '\'`,
		newPath, len(oldPath)+1, levelDelta, now, likePrefixPattern(oldPath))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.NewConflict("descendant path collision under %q", newPath)
		}
		return nil, fmt.Errorf("failed to move descendants: %w", err)
	}
	movedDesc, err := descResult.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to count moved descendants: %w", err)
	}

	// Grants denormalize node_path; rewrite the copies in the same
	// transaction so they never drift from the tree.
	_, err = tx.ExecContext(ctx, `
		UPDATE org_grants
		SET node_path = $1 || substr(node_path, $2), updated_at = $3
		WHERE node_path = $4 OR node_path LIKE $5 ESCAPE '\'`,
		newPath, len(oldPath)+1, now, oldPath, likePrefixPattern(oldPath))
	if err != nil {
		return nil, fmt.Errorf("failed to rewrite grant paths: %w", err)
	}

	moved, err := getNodeTx(ctx, tx, node.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit move: %w", err)
	}

	return &MoveResult{
		Node:           moved,
		OldPath:        oldPath,
		NewPath:        newPath,
		LevelDelta:     levelDelta,
		MovedDescCount: movedDesc,
	}, nil
}

// SoftDeleteSubtree marks a node and every active descendant inactive and
// returns the affected count. Deleting a node that still has active children
// requires force.
func (s *Store) SoftDeleteSubtree(ctx context.Context, id string, force bool) (int64, error) {
	if err := validateID(id, "node"); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to start delete transaction: %w", err)
	}
	defer tx.Rollback()

	node, err := getNodeTx(ctx, tx, id)
	if err != nil {
		return 0, err
	}
	if !node.IsActive {
		return 0, apperr.NewConflict("node %s is already inactive", id)
	}

	if !force {
		var children int
		err = tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM org_nodes WHERE parent_id = $1 AND is_active = TRUE",
			node.ID).Scan(&children)
		if err != nil {
			return 0, fmt.Errorf("failed to count children: %w", err)
		}
		if children > 0 {
			return 0, apperr.NewBusinessRule(
				"node %s has %d active children, pass force to delete the subtree", id, children)
		}
	}

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `
		UPDATE org_nodes
		SET is_active = FALSE, updated_at = $1
		WHERE is_active = TRUE AND (path = $2 OR path LIKE $3 ESCAPE '\')`,
		now, node.Path, likePrefixPattern(node.Path))
	if err != nil {
		return 0, fmt.Errorf("failed to soft delete subtree: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted nodes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit delete: %w", err)
	}
	return affected, nil
}

// RestoreSubtree re-activates an inactive node together with its subtree.
// The node's ancestor chain must be active, otherwise the restored subtree
// would dangle under a deleted parent.
func (s *Store) RestoreSubtree(ctx context.Context, id string) (int64, error) {
	if err := validateID(id, "node"); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to start restore transaction: %w", err)
	}
	defer tx.Rollback()

	node, err := getNodeTx(ctx, tx, id)
	if err != nil {
		return 0, err
	}
	if node.IsActive {
		return 0, apperr.NewConflict("node %s is already active", id)
	}

	for _, ancestorPath := range AncestorPaths(node.Path) {
		var active bool
		err = tx.QueryRowContext(ctx,
			"SELECT is_active FROM org_nodes WHERE path = $1", ancestorPath).Scan(&active)
		if err == sql.ErrNoRows {
			return 0, apperr.NewBusinessRule("cannot restore %s: ancestor %q is missing", id, ancestorPath)
		}
		if err != nil {
			return 0, fmt.Errorf("failed to check ancestor %q: %w", ancestorPath, err)
		}
		if !active {
			return 0, apperr.NewBusinessRule("cannot restore %s: ancestor %q is inactive", id, ancestorPath)
		}
	}

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `
		UPDATE org_nodes
		SET is_active = TRUE, updated_at = $1
		WHERE is_active = FALSE AND (path = $2 OR path LIKE $3 ESCAPE '\')`,
		now, node.Path, likePrefixPattern(node.Path))
	if err != nil {
		return 0, fmt.Errorf("failed to restore subtree: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count restored nodes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit restore: %w", err)
	}
	return affected, nil
}

func getNodeTx(ctx context.Context, tx *sql.Tx, id string) (*Node, error) {
	row := tx.QueryRowContext(ctx,
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

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
