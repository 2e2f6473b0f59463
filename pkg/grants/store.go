package grants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/platinummonkey/orgscope/pkg/apperr"
)

// Store provides database operations for grants
type Store struct {
	db *sql.DB
}

// NewStore creates a new grant store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const grantColumns = "id, actor_id, node_id, node_path, role, inherit_to_descendants, valid_from, valid_until, granted_by, revoked_by, revoked_at, is_active, created_at, updated_at"

// inForcePredicate matches grants conveying access now. The two placeholders
// must both be bound to the same timestamp.
const inForcePredicate = "is_active = TRUE AND valid_from <= %s AND (valid_until IS NULL OR valid_until > %s)"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanGrant(scanner rowScanner) (*Grant, error) {
	var grant Grant
	var validUntil, revokedAt sql.NullTime
	var grantedBy, revokedBy sql.NullString

	err := scanner.Scan(
		&grant.ID, &grant.ActorID, &grant.NodeID, &grant.NodePath, &grant.Role,
		&grant.InheritToDescendants, &grant.ValidFrom, &validUntil,
		&grantedBy, &revokedBy, &revokedAt, &grant.IsActive,
		&grant.CreatedAt, &grant.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if validUntil.Valid {
		grant.ValidUntil = &validUntil.Time
	}
	if grantedBy.Valid {
		grant.GrantedBy = &grantedBy.String
	}
	if revokedBy.Valid {
		grant.RevokedBy = &revokedBy.String
	}
	if revokedAt.Valid {
		grant.RevokedAt = &revokedAt.Time
	}

	return &grant, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	// sqlite used in tests reports constraint violations as plain strings
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func validateUUID(id, label string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.NewValidation("invalid %s id %q", label, id)
	}
	return nil
}

// Grant creates a direct grant after validating the node exists and no
// active grant already covers the (actor, node) pair.
func (s *Store) Grant(ctx context.Context, req *CreateGrantRequest) (*Grant, error) {
	if req == nil {
		return nil, apperr.NewValidation("request must not be nil")
	}
	if err := validateUUID(req.ActorID, "actor"); err != nil {
		return nil, err
	}
	if err := validateUUID(req.NodeID, "node"); err != nil {
		return nil, err
	}
	if !req.Role.Valid() {
		return nil, apperr.NewValidation("unknown role %q", req.Role)
	}
	if req.GrantedBy != nil {
		if err := validateUUID(*req.GrantedBy, "granting actor"); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	validFrom := now
	if req.ValidFrom != nil {
		validFrom = req.ValidFrom.UTC()
	}
	if req.ValidUntil != nil {
		if !req.ValidUntil.After(now) {
			return nil, apperr.NewValidation("valid_until %s is not in the future", req.ValidUntil.Format(time.RFC3339))
		}
		if !req.ValidUntil.After(validFrom) {
			return nil, apperr.NewValidation("valid_until must come after valid_from")
		}
	}

	var nodePath string
	var nodeActive bool
	err := s.db.QueryRowContext(ctx,
		"SELECT path, is_active FROM org_nodes WHERE id = $1", req.NodeID).
		Scan(&nodePath, &nodeActive)
	if err == sql.ErrNoRows {
		return nil, apperr.NewNotFound("node %s not found", req.NodeID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up node: %w", err)
	}
	if !nodeActive {
		return nil, apperr.NewNotFound("node %s not found", req.NodeID)
	}

	// An expired grant still holds the active-pair slot until swept; clear it
	// here so re-granting after expiry does not trip the unique index.
	_, err = s.db.ExecContext(ctx, `
		UPDATE org_grants
		SET is_active = FALSE, updated_at = $1
		WHERE actor_id = $2 AND node_id = $3 AND is_active = TRUE
		  AND valid_until IS NOT NULL AND valid_until <= $4`,
		now, req.ActorID, req.NodeID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to clear expired grants: %w", err)
	}

	var existing int
	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM org_grants WHERE actor_id = $1 AND node_id = $2 AND is_active = TRUE",
		req.ActorID, req.NodeID).Scan(&existing)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing grants: %w", err)
	}
	if existing > 0 {
		return nil, apperr.NewConflict("actor %s already has an active grant at node %s, revoke it first", req.ActorID, req.NodeID)
	}

	grant := &Grant{
		ID:                   uuid.New().String(),
		ActorID:              req.ActorID,
		NodeID:               req.NodeID,
		NodePath:             nodePath,
		Role:                 req.Role,
		InheritToDescendants: req.InheritToDescendants,
		ValidFrom:            validFrom,
		ValidUntil:           req.ValidUntil,
		IsActive:             true,
		GrantedBy:            req.GrantedBy,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO org_grants (id, actor_id, node_id, node_path, role, inherit_to_descendants, valid_from, valid_until, granted_by, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		grant.ID, grant.ActorID, grant.NodeID, grant.NodePath, grant.Role,
		grant.InheritToDescendants, grant.ValidFrom, grant.ValidUntil,
		grant.GrantedBy, grant.IsActive, grant.CreatedAt, grant.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.NewConflict("actor %s already has an active grant at node %s, revoke it first", req.ActorID, req.NodeID)
		}
		return nil, fmt.Errorf("failed to create grant: %w", err)
	}

	return grant, nil
}

// Revoke deactivates an active grant, recording who revoked it and when.
// Revoking an already-inactive grant is a conflict so caller bugs surface.
func (s *Store) Revoke(ctx context.Context, id, revokedBy string) (*Grant, error) {
	if err := validateUUID(id, "grant"); err != nil {
		return nil, err
	}
	if err := validateUUID(revokedBy, "revoking actor"); err != nil {
		return nil, err
	}

	grant, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !grant.IsActive {
		return nil, apperr.NewConflict("grant %s is already inactive", id)
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE org_grants
		SET is_active = FALSE, revoked_by = $1, revoked_at = $2, updated_at = $3
		WHERE id = $4 AND is_active = TRUE`,
		revokedBy, now, now, id)
	if err != nil {
		return nil, fmt.Errorf("failed to revoke grant: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check revoke result: %w", err)
	}
	if affected == 0 {
		return nil, apperr.NewConflict("grant %s is already inactive", id)
	}

	return s.GetByID(ctx, id)
}

// Update changes role, inheritance or expiry of an active grant.
func (s *Store) Update(ctx context.Context, id string, req *UpdateGrantRequest) (*Grant, error) {
	if err := validateUUID(id, "grant"); err != nil {
		return nil, err
	}
	if req == nil || (req.Role == nil && req.InheritToDescendants == nil && req.ValidUntil == nil && !req.ClearValidUntil) {
		return nil, apperr.NewValidation("no fields to update")
	}
	if req.ValidUntil != nil && req.ClearValidUntil {
		return nil, apperr.NewValidation("valid_until and clear_valid_until are mutually exclusive")
	}

	setClauses := []string{}
	args := []interface{}{}
	argPos := 1

	if req.Role != nil {
		if !req.Role.Valid() {
			return nil, apperr.NewValidation("unknown role %q", *req.Role)
		}
		setClauses = append(setClauses, fmt.Sprintf("role = $%d", argPos))
		args = append(args, *req.Role)
		argPos++
	}
	if req.InheritToDescendants != nil {
		setClauses = append(setClauses, fmt.Sprintf("inherit_to_descendants = $%d", argPos))
		args = append(args, *req.InheritToDescendants)
		argPos++
	}
	if req.ValidUntil != nil {
		if !req.ValidUntil.After(time.Now().UTC()) {
			return nil, apperr.NewValidation("valid_until %s is not in the future", req.ValidUntil.Format(time.RFC3339))
		}
		setClauses = append(setClauses, fmt.Sprintf("valid_until = $%d", argPos))
		args = append(args, req.ValidUntil.UTC())
		argPos++
	}
	if req.ClearValidUntil {
		setClauses = append(setClauses, "valid_until = NULL")
	}

	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", argPos))
	args = append(args, time.Now().UTC())
	argPos++
	args = append(args, id)

	result, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE org_grants SET %s WHERE id = $%d AND is_active = TRUE",
			strings.Join(setClauses, ", "), argPos),
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update grant: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		grant, getErr := s.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if !grant.IsActive {
			return nil, apperr.NewConflict("grant %s is inactive and cannot be updated", id)
		}
		return nil, apperr.NewNotFound("grant %s not found", id)
	}

	return s.GetByID(ctx, id)
}

// GetByID returns a grant by id, active or not.
func (s *Store) GetByID(ctx context.Context, id string) (*Grant, error) {
	if err := validateUUID(id, "grant"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		"SELECT "+grantColumns+" FROM org_grants WHERE id = $1", id)
	grant, err := scanGrant(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NewNotFound("grant %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get grant: %w", err)
	}
	return grant, nil
}

// FindByActor returns an actor's grants. By default only grants currently in
// force; includeExpired adds revoked, expired and not-yet-valid rows for
// history views.
func (s *Store) FindByActor(ctx context.Context, actorID string, includeExpired bool) ([]*Grant, error) {
	if err := validateUUID(actorID, "actor"); err != nil {
		return nil, err
	}

	query := "SELECT " + grantColumns + " FROM org_grants WHERE actor_id = $1"
	args := []interface{}{actorID}
	if !includeExpired {
		query += " AND " + fmt.Sprintf(inForcePredicate, "$2", "$3")
		now := time.Now().UTC()
		args = append(args, now, now)
	}
	query += " ORDER BY node_path"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants by actor: %w", err)
	}
	defer rows.Close()
	return collectGrants(rows)
}

// FindByNode returns every grant at a node, newest first, for admin views.
func (s *Store) FindByNode(ctx context.Context, nodeID string) ([]*Grant, error) {
	if err := validateUUID(nodeID, "node"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+grantColumns+" FROM org_grants WHERE node_id = $1 ORDER BY is_active DESC, created_at DESC",
		nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants by node: %w", err)
	}
	defer rows.Close()
	return collectGrants(rows)
}

// FindActiveByActor returns the actor's in-force grants joined with node
// display names, filtered to active nodes. This is the scope resolver's
// load step.
func (s *Store) FindActiveByActor(ctx context.Context, actorID string) ([]*GrantWithNode, error) {
	if err := validateUUID(actorID, "actor"); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	query := `
		SELECT g.id, g.actor_id, g.node_id, n.path, g.role, g.inherit_to_descendants,
		       g.valid_from, g.valid_until, g.granted_by, g.revoked_by, g.revoked_at,
		       g.is_active, g.created_at, g.updated_at, n.name
		FROM org_grants g
		JOIN org_nodes n ON n.id = g.node_id
		WHERE g.actor_id = $1 AND n.is_active = TRUE
		  AND g.is_active = TRUE AND g.valid_from <= $2
		  AND (g.valid_until IS NULL OR g.valid_until > $3)
		ORDER BY n.path`

	rows, err := s.db.QueryContext(ctx, query, actorID, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list active grants: %w", err)
	}
	defer rows.Close()

	var results []*GrantWithNode
	for rows.Next() {
		var item GrantWithNode
		var validUntil, revokedAt sql.NullTime
		var grantedBy, revokedBy sql.NullString
		err := rows.Scan(
			&item.ID, &item.ActorID, &item.NodeID, &item.NodePath, &item.Role,
			&item.InheritToDescendants, &item.ValidFrom, &validUntil,
			&grantedBy, &revokedBy, &revokedAt, &item.IsActive,
			&item.CreatedAt, &item.UpdatedAt, &item.NodeName,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		if validUntil.Valid {
			item.ValidUntil = &validUntil.Time
		}
		if grantedBy.Valid {
			item.GrantedBy = &grantedBy.String
		}
		if revokedBy.Valid {
			item.RevokedBy = &revokedBy.String
		}
		if revokedAt.Valid {
			item.RevokedAt = &revokedAt.Time
		}
		results = append(results, &item)
	}
	return results, rows.Err()
}

// DeactivateExpired marks expired-but-still-active grants inactive and
// returns how many rows it touched. The janitor runs this on a schedule so
// the active-pair unique index reflects reality.
func (s *Store) DeactivateExpired(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE org_grants
		SET is_active = FALSE, updated_at = $1
		WHERE is_active = TRUE AND valid_until IS NOT NULL AND valid_until <= $2`,
		now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate expired grants: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count expired grants: %w", err)
	}
	return affected, nil
}

func collectGrants(rows *sql.Rows) ([]*Grant, error) {
	var grants []*Grant
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		grants = append(grants, grant)
	}
	return grants, rows.Err()
}
