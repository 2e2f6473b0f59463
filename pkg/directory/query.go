package directory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/platinummonkey/orgscope/pkg/apperr"
	"github.com/platinummonkey/orgscope/pkg/grants"
	"github.com/platinummonkey/orgscope/pkg/hierarchy"
	"github.com/platinummonkey/orgscope/pkg/scope"
)

// Pagination bounds for directory queries.
const (
	DefaultPageLimit = 50
	MaxPageLimit     = 200
)

// Service answers scope-filtered directory queries
type Service struct {
	db *sql.DB
}

// NewService creates a directory query service
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// likePrefixPattern builds a LIKE pattern matching strict descendants of
// path. Underscore is a LIKE wildcard and a legal code character, so the
// prefix must be escaped.
func likePrefixPattern(path string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `_`, `\_`, `%`, `\%`).Replace(path)
	return escaped + hierarchy.PathSeparator + "%"
}

// QueryAccessibleUsers lists the users the scope's actor may see, narrowed
// by filters. Visibility comes from the scope's grants (exact node match or
// descendant of an inheriting grant) plus the caller's own row; filters only
// ever intersect that base, never widen it. Results carry provenance and the
// effective role at each user's node.
func (s *Service) QueryAccessibleUsers(ctx context.Context, sc *scope.AccessScope, filters QueryFilters) (*Page, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	offset := filters.Offset
	if offset < 0 {
		offset = 0
	}
	page := &Page{Users: []*AccessibleUser{}, Limit: limit, Offset: offset}

	minRole := filters.RequireMinimumRole
	if minRole != "" && !minRole.Valid() {
		return nil, apperr.NewValidation("unknown role %q", minRole)
	}
	if filters.PathPrefix != "" {
		if err := hierarchy.ValidatePath(filters.PathPrefix); err != nil {
			return nil, err
		}
	}

	conds := []string{"n.is_active = TRUE"}
	args := []interface{}{}
	argPos := 1

	// Visibility: some qualifying grant covers the user's node, or the row
	// is the caller's own. A minimum-role filter drops grants below it;
	// effective role is the max over covering grants, so a user qualifies
	// iff at least one covering grant alone qualifies.
	coverage := []string{}
	for _, g := range sc.Grants {
		if minRole != "" && g.Role.Rank() < minRole.Rank() {
			continue
		}
		if g.InheritToDescendants {
			coverage = append(coverage,
				fmt.Sprintf(`(n.path = $%d OR n.path LIKE $%d ESCAPE '\')`, argPos, argPos+1))
			args = append(args, g.NodePath, likePrefixPattern(g.NodePath))
			argPos += 2
		} else {
			coverage = append(coverage, fmt.Sprintf("n.path = $%d", argPos))
			args = append(args, g.NodePath)
			argPos++
		}
	}
	selfQualifies := !filters.ExcludeSelf &&
		(minRole == "" || minRole == grants.RoleRead)
	if selfQualifies {
		coverage = append(coverage, fmt.Sprintf("u.id = $%d", argPos))
		args = append(args, sc.ActorID)
		argPos++
	}
	if len(coverage) == 0 {
		// Nothing can match; default deny without touching the database.
		return page, nil
	}
	conds = append(conds, "("+strings.Join(coverage, " OR ")+")")

	if filters.ExcludeSelf {
		conds = append(conds, fmt.Sprintf("u.id <> $%d", argPos))
		args = append(args, sc.ActorID)
		argPos++
	}
	if filters.Search != "" {
		pattern := "%" + strings.ToLower(filters.Search) + "%"
		conds = append(conds,
			fmt.Sprintf("(LOWER(u.display_name) LIKE $%d OR LOWER(u.email) LIKE $%d)", argPos, argPos+1))
		args = append(args, pattern, pattern)
		argPos += 2
	}
	if filters.Status != "" {
		conds = append(conds, fmt.Sprintf("u.status = $%d", argPos))
		args = append(args, filters.Status)
		argPos++
	}
	if filters.PathPrefix != "" {
		conds = append(conds,
			fmt.Sprintf(`(n.path = $%d OR n.path LIKE $%d ESCAPE '\')`, argPos, argPos+1))
		args = append(args, filters.PathPrefix, likePrefixPattern(filters.PathPrefix))
		argPos += 2
	}
	if filters.HiredAfter != nil {
		conds = append(conds, fmt.Sprintf("u.hired_at >= $%d", argPos))
		args = append(args, filters.HiredAfter.UTC())
		argPos++
	}
	if filters.HiredBefore != nil {
		conds = append(conds, fmt.Sprintf("u.hired_at <= $%d", argPos))
		args = append(args, filters.HiredBefore.UTC())
		argPos++
	}

	whereSQL := strings.Join(conds, " AND ")

	countQuery := `
		SELECT COUNT(*)
		FROM directory_users u
		JOIN org_nodes n ON n.id = u.node_id
		WHERE ` + whereSQL
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("failed to count accessible users: %w", err)
	}

	listQuery := fmt.Sprintf(`
		SELECT u.id, u.display_name, u.email, u.node_id, u.title, u.status,
		       u.hired_at, u.created_at, u.updated_at, n.path
		FROM directory_users u
		JOIN org_nodes n ON n.id = u.node_id
		WHERE %s
		ORDER BY n.path, u.display_name, u.id
		LIMIT $%d OFFSET $%d`, whereSQL, argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accessible users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		result := &AccessibleUser{}
		var title sql.NullString
		var hiredAt sql.NullTime
		if err := rows.Scan(
			&result.ID, &result.DisplayName, &result.Email, &result.NodeID,
			&title, &result.Status, &hiredAt, &result.CreatedAt, &result.UpdatedAt,
			&result.NodePath,
		); err != nil {
			return nil, fmt.Errorf("failed to scan accessible user: %w", err)
		}
		if title.Valid {
			result.Title = title.String
		}
		if hiredAt.Valid {
			t := hiredAt.Time
			result.HiredAt = &t
		}
		annotateProvenance(result, sc)
		page.Users = append(page.Users, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accessible users: %w", err)
	}

	return page, nil
}

// annotateProvenance fills in how the scope reaches the user's node.
func annotateProvenance(result *AccessibleUser, sc *scope.AccessScope) {
	if role, ok := sc.EffectiveRole(result.NodePath); ok {
		result.EffectiveRole = role
		result.GrantPaths = sc.MatchingGrantPaths(result.NodePath)
		if sc.HasDirectGrantAt(result.NodePath) {
			result.Provenance = ProvenanceDirect
		} else {
			result.Provenance = ProvenanceInherited
		}
		return
	}
	// Only self-access can have put the row here.
	result.Provenance = ProvenanceSelf
	result.EffectiveRole = grants.RoleRead
}
