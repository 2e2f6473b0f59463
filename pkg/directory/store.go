package directory

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

// Store provides directory user persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new directory store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const userColumns = `id, display_name, email, node_id, title, status, hired_at, created_at, updated_at`

func scanUser(row interface{ Scan(...interface{}) error }) (*User, error) {
	user := &User{}
	var title sql.NullString
	var hiredAt sql.NullTime

	err := row.Scan(
		&user.ID, &user.DisplayName, &user.Email, &user.NodeID,
		&title, &user.Status, &hiredAt, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if title.Valid {
		user.Title = title.String
	}
	if hiredAt.Valid {
		t := hiredAt.Time
		user.HiredAt = &t
	}
	return user, nil
}

func validateUserID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.NewValidation("invalid user id %q", id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Create adds a user to the directory under an existing active node.
func (s *Store) Create(ctx context.Context, req *CreateUserRequest) (*User, error) {
	if strings.TrimSpace(req.DisplayName) == "" {
		return nil, apperr.NewValidation("display_name is required")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperr.NewValidation("valid email is required")
	}
	if _, err := uuid.Parse(req.NodeID); err != nil {
		return nil, apperr.NewValidation("invalid node id %q", req.NodeID)
	}

	var nodeActive bool
	err := s.db.QueryRowContext(ctx,
		"SELECT is_active FROM org_nodes WHERE id = $1", req.NodeID,
	).Scan(&nodeActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NewNotFound("node %s not found", req.NodeID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up node: %w", err)
	}
	if !nodeActive {
		return nil, apperr.NewNotFound("node %s not found", req.NodeID)
	}

	now := time.Now().UTC()
	user := &User{
		ID:          uuid.New().String(),
		DisplayName: strings.TrimSpace(req.DisplayName),
		Email:       email,
		NodeID:      req.NodeID,
		Title:       strings.TrimSpace(req.Title),
		Status:      StatusActive,
		HiredAt:     req.HiredAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var title interface{}
	if user.Title != "" {
		title = user.Title
	}
	var hiredAt interface{}
	if user.HiredAt != nil {
		hiredAt = user.HiredAt.UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO directory_users (id, display_name, email, node_id, title, status, hired_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		user.ID, user.DisplayName, user.Email, user.NodeID, title, user.Status, hiredAt, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.NewConflict("email %s is already registered", email)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// GetByID retrieves a user by id
func (s *Store) GetByID(ctx context.Context, id string) (*User, error) {
	if err := validateUserID(id); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM directory_users WHERE id = $1", id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NewNotFound("user %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM directory_users WHERE email = $1",
		strings.ToLower(strings.TrimSpace(email)))
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NewNotFound("user %s not found", email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// Update applies a partial update. Moving a user to another node requires
// the destination node to exist and be active.
func (s *Store) Update(ctx context.Context, id string, req *UpdateUserRequest) (*User, error) {
	if err := validateUserID(id); err != nil {
		return nil, err
	}

	setClauses := []string{}
	args := []interface{}{}
	argPos := 1

	if req.DisplayName != nil {
		if strings.TrimSpace(*req.DisplayName) == "" {
			return nil, apperr.NewValidation("display_name must not be empty")
		}
		setClauses = append(setClauses, fmt.Sprintf("display_name = $%d", argPos))
		args = append(args, strings.TrimSpace(*req.DisplayName))
		argPos++
	}
	if req.Title != nil {
		setClauses = append(setClauses, fmt.Sprintf("title = $%d", argPos))
		args = append(args, *req.Title)
		argPos++
	}
	if req.Status != nil {
		if *req.Status != StatusActive && *req.Status != StatusSuspended {
			return nil, apperr.NewValidation("unknown status %q", *req.Status)
		}
		setClauses = append(setClauses, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *req.Status)
		argPos++
	}
	if req.NodeID != nil {
		if _, err := uuid.Parse(*req.NodeID); err != nil {
			return nil, apperr.NewValidation("invalid node id %q", *req.NodeID)
		}
		var nodeActive bool
		err := s.db.QueryRowContext(ctx,
			"SELECT is_active FROM org_nodes WHERE id = $1", *req.NodeID,
		).Scan(&nodeActive)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && !nodeActive) {
			return nil, apperr.NewNotFound("node %s not found", *req.NodeID)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to look up node: %w", err)
		}
		setClauses = append(setClauses, fmt.Sprintf("node_id = $%d", argPos))
		args = append(args, *req.NodeID)
		argPos++
	}

	if len(setClauses) == 0 {
		return s.GetByID(ctx, id)
	}

	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", argPos))
	args = append(args, time.Now().UTC())
	argPos++
	args = append(args, id)

	query := fmt.Sprintf("UPDATE directory_users SET %s WHERE id = $%d",
		strings.Join(setClauses, ", "), argPos)
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return nil, apperr.NewNotFound("user %s not found", id)
	}

	return s.GetByID(ctx, id)
}

// UserNodePath returns the current path of the active node a user hangs
// under. A user whose node was soft-deleted is treated as absent, so access
// checks against them deny rather than leak through a dead branch.
func (s *Store) UserNodePath(ctx context.Context, userID string) (string, error) {
	if err := validateUserID(userID); err != nil {
		return "", err
	}

	var path string
	err := s.db.QueryRowContext(ctx, `
		SELECT n.path
		FROM directory_users u
		JOIN org_nodes n ON n.id = u.node_id
		WHERE u.id = $1 AND n.is_active = TRUE`,
		userID,
	).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.NewNotFound("user %s not found", userID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve user node path: %w", err)
	}
	return path, nil
}

// CountByNode returns how many users hang under a node. Used by the
// integrity report surface and deletion guards.
func (s *Store) CountByNode(ctx context.Context, nodeID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM directory_users WHERE node_id = $1", nodeID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}
