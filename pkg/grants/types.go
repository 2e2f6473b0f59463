package grants

import (
	"time"
)

// Role represents the permission tier carried by a grant
type Role string

const (
	RoleRead    Role = "read"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

var roleRanks = map[Role]int{
	RoleRead:    1,
	RoleManager: 2,
	RoleAdmin:   3,
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleRanks[r]
	return ok
}

// Rank returns the ordering of roles: read < manager < admin. Unknown roles
// rank 0, below everything.
func (r Role) Rank() int {
	return roleRanks[r]
}

// AtLeast reports whether r ranks at or above other.
func (r Role) AtLeast(other Role) bool {
	return r.Rank() >= other.Rank()
}

// MaxRole returns the higher-ranked of two roles.
func MaxRole(a, b Role) Role {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Grant represents a direct permission assignment at one node
type Grant struct {
	ID                   string     `json:"id"`
	ActorID              string     `json:"actor_id"`
	NodeID               string     `json:"node_id"`
	NodePath             string     `json:"node_path"`
	Role                 Role       `json:"role"`
	InheritToDescendants bool       `json:"inherit_to_descendants"`
	ValidFrom            time.Time  `json:"valid_from"`
	ValidUntil           *time.Time `json:"valid_until,omitempty"`
	IsActive             bool       `json:"is_active"`
	GrantedBy            *string    `json:"granted_by,omitempty"`
	RevokedBy            *string    `json:"revoked_by,omitempty"`
	RevokedAt            *time.Time `json:"revoked_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// InForceAt reports whether the grant conveys access at t: not revoked and
// inside its validity window.
func (g *Grant) InForceAt(t time.Time) bool {
	if !g.IsActive {
		return false
	}
	if g.ValidFrom.After(t) {
		return false
	}
	if g.ValidUntil != nil && !g.ValidUntil.After(t) {
		return false
	}
	return true
}

// GrantWithNode represents a grant joined with display fields of its node
type GrantWithNode struct {
	Grant
	NodeName string `json:"node_name"`
}

// CreateGrantRequest represents a request to create a grant. GrantedBy is
// filled from the authenticated actor, never from the request body.
type CreateGrantRequest struct {
	ActorID              string     `json:"actor_id"`
	NodeID               string     `json:"node_id"`
	Role                 Role       `json:"role"`
	InheritToDescendants bool       `json:"inherit_to_descendants"`
	ValidFrom            *time.Time `json:"valid_from,omitempty"`
	ValidUntil           *time.Time `json:"valid_until,omitempty"`
	GrantedBy            *string    `json:"-"`
}

// UpdateGrantRequest represents a request to change an active grant's role,
// inheritance or expiry. ClearValidUntil removes the expiry.
type UpdateGrantRequest struct {
	Role                 *Role      `json:"role,omitempty"`
	InheritToDescendants *bool      `json:"inherit_to_descendants,omitempty"`
	ValidUntil           *time.Time `json:"valid_until,omitempty"`
	ClearValidUntil      bool       `json:"clear_valid_until,omitempty"`
}
