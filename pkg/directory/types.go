package directory

import (
	"time"

	"github.com/platinummonkey/orgscope/pkg/grants"
)

// User statuses.
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

// User represents a person attached to a node of the org tree
type User struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"display_name"`
	Email       string     `json:"email"`
	NodeID      string     `json:"node_id"`
	Title       string     `json:"title,omitempty"`
	Status      string     `json:"status"`
	HiredAt     *time.Time `json:"hired_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// CreateUserRequest represents a request to add a user to the directory
type CreateUserRequest struct {
	DisplayName string     `json:"display_name"`
	Email       string     `json:"email"`
	NodeID      string     `json:"node_id"`
	Title       string     `json:"title,omitempty"`
	HiredAt     *time.Time `json:"hired_at,omitempty"`
}

// UpdateUserRequest represents a partial user update. Nil fields are left
// unchanged.
type UpdateUserRequest struct {
	DisplayName *string `json:"display_name,omitempty"`
	Title       *string `json:"title,omitempty"`
	Status      *string `json:"status,omitempty"`
	NodeID      *string `json:"node_id,omitempty"`
}

// Provenance says how a row became visible to the caller.
type Provenance string

const (
	// ProvenanceDirect means a grant sits exactly at the user's node.
	ProvenanceDirect Provenance = "direct"
	// ProvenanceInherited means only ancestor grants reach the user's node.
	ProvenanceInherited Provenance = "inherited"
	// ProvenanceSelf means the row is the caller's own and no grant covers it.
	ProvenanceSelf Provenance = "self"
)

// AccessibleUser is one directory query result with its access provenance.
type AccessibleUser struct {
	User
	NodePath      string      `json:"node_path"`
	Provenance    Provenance  `json:"provenance"`
	EffectiveRole grants.Role `json:"effective_role,omitempty"`
	GrantPaths    []string    `json:"grant_paths,omitempty"`
}

// QueryFilters narrows a directory query. Every filter intersects the
// caller's scope; none can widen it.
type QueryFilters struct {
	Search             string      `json:"search,omitempty"`
	Status             string      `json:"status,omitempty"`
	PathPrefix         string      `json:"path_prefix,omitempty"`
	HiredAfter         *time.Time  `json:"hired_after,omitempty"`
	HiredBefore        *time.Time  `json:"hired_before,omitempty"`
	ExcludeSelf        bool        `json:"exclude_self,omitempty"`
	RequireMinimumRole grants.Role `json:"require_minimum_role,omitempty"`
	Limit              int         `json:"limit,omitempty"`
	Offset             int         `json:"offset,omitempty"`
}

// Page is one page of directory query results.
type Page struct {
	Users  []*AccessibleUser `json:"users"`
	Total  int               `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}
