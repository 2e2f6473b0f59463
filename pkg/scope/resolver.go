package scope

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/orgscope/pkg/apperr"
	"github.com/platinummonkey/orgscope/pkg/grants"
	"github.com/platinummonkey/orgscope/pkg/hierarchy"
)

// UserLocator resolves a directory user to the node path their record hangs
// under. Needed for user-level checks and the self-access baseline.
type UserLocator interface {
	UserNodePath(ctx context.Context, userID string) (string, error)
}

// ScopeCache caches computed scopes keyed by actor id. Implementations
// swallow backend errors and report a miss instead; a cache outage must
// degrade to recomputation, not failure.
type ScopeCache interface {
	Get(ctx context.Context, actorID string) (*AccessScope, bool)
	Set(ctx context.Context, actorID string, scope *AccessScope)
	Invalidate(ctx context.Context, actorID string)
	InvalidateAll(ctx context.Context)
}

// Resolver computes access scopes and answers authorization queries.
// State machine per query: load grants, expand inheritance, union paths,
// answer.
type Resolver struct {
	grants *grants.Store
	nodes  *hierarchy.Store
	users  UserLocator
	cache  ScopeCache
	group  singleflight.Group
	tracer trace.Tracer
}

// NewResolver creates a resolver over the grant and hierarchy stores.
// users and cache are optional; pass nil to disable user-level checks and
// caching respectively.
func NewResolver(grantStore *grants.Store, nodeStore *hierarchy.Store, users UserLocator, cache ScopeCache) *Resolver {
	return &Resolver{
		grants: grantStore,
		nodes:  nodeStore,
		users:  users,
		cache:  cache,
		tracer: otel.Tracer("orgscope-scope"),
	}
}

// ComputeScope derives the actor's full access scope. An unknown actor or
// one with zero in-force grants yields an empty scope, not an error.
// Concurrent computations for the same actor are deduplicated.
func (r *Resolver) ComputeScope(ctx context.Context, actorID string) (*AccessScope, error) {
	if _, err := uuid.Parse(actorID); err != nil {
		return nil, apperr.NewValidation("invalid actor id %q", actorID)
	}

	if r.cache != nil {
		if scope, ok := r.cache.Get(ctx, actorID); ok {
			return scope, nil
		}
	}

	value, err, _ := r.group.Do(actorID, func() (interface{}, error) {
		return r.computeScope(ctx, actorID)
	})
	if err != nil {
		return nil, err
	}
	scope := value.(*AccessScope)

	if r.cache != nil {
		r.cache.Set(ctx, actorID, scope)
	}
	return scope, nil
}

func (r *Resolver) computeScope(ctx context.Context, actorID string) (*AccessScope, error) {
	ctx, span := r.tracer.Start(ctx, "scope.compute",
		trace.WithAttributes(attribute.String("actor.id", actorID)))
	defer span.End()

	active, err := r.grants.FindActiveByActor(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load grants for scope: %w", err)
	}

	scope := &AccessScope{
		ActorID:    actorID,
		ComputedAt: time.Now().UTC(),
	}

	pathSet := make(map[string]struct{})
	for _, grant := range active {
		scope.Grants = append(scope.Grants, ScopeGrant{
			GrantID:              grant.ID,
			NodeID:               grant.NodeID,
			NodePath:             grant.NodePath,
			NodeName:             grant.NodeName,
			Role:                 grant.Role,
			InheritToDescendants: grant.InheritToDescendants,
		})
		pathSet[grant.NodePath] = struct{}{}

		if !grant.InheritToDescendants {
			continue
		}
		descendants, err := r.nodes.DescendantPaths(ctx, grant.NodePath)
		if err != nil {
			return nil, fmt.Errorf("failed to expand grant %s: %w", grant.ID, err)
		}
		for _, p := range descendants {
			pathSet[p] = struct{}{}
		}
	}

	scope.AccessiblePaths = make([]string, 0, len(pathSet))
	for p := range pathSet {
		scope.AccessiblePaths = append(scope.AccessiblePaths, p)
	}
	sort.Strings(scope.AccessiblePaths)
	scope.ReachableNodes = len(scope.AccessiblePaths)

	span.SetAttributes(
		attribute.Int("scope.grants", len(scope.Grants)),
		attribute.Int("scope.paths", len(scope.AccessiblePaths)),
	)
	return scope, nil
}

// CheckPathAccess answers "can actor reach target path, at what role".
// A malformed target is an error; a covered-by-nothing target is a regular
// denied decision.
func (r *Resolver) CheckPathAccess(ctx context.Context, actorID, targetPath string) (*AccessDecision, error) {
	if err := hierarchy.ValidatePath(targetPath); err != nil {
		return nil, err
	}

	scope, err := r.ComputeScope(ctx, actorID)
	if err != nil {
		return nil, err
	}

	decision := &AccessDecision{
		ActorID:    actorID,
		TargetPath: targetPath,
		CheckedAt:  time.Now().UTC(),
	}

	if scope.Empty() {
		decision.Reason = "actor has no active grants"
		return decision, nil
	}

	role, ok := scope.EffectiveRole(targetPath)
	if !ok {
		decision.Reason = fmt.Sprintf("no grant covers path %q", targetPath)
		return decision, nil
	}

	decision.Allowed = true
	decision.Role = role
	decision.MatchedGrantPaths = scope.MatchingGrantPaths(targetPath)
	if scope.HasDirectGrantAt(targetPath) {
		decision.Reason = fmt.Sprintf("direct grant at %q", targetPath)
	} else {
		decision.Reason = fmt.Sprintf("inherited from %q", decision.MatchedGrantPaths[0])
	}
	return decision, nil
}

// CheckUserAccess answers "can actor see target user". Actors always read
// their own record; everything else goes through the target's node path.
func (r *Resolver) CheckUserAccess(ctx context.Context, actorID, targetUserID string) (*AccessDecision, error) {
	if _, err := uuid.Parse(targetUserID); err != nil {
		return nil, apperr.NewValidation("invalid user id %q", targetUserID)
	}

	decision := &AccessDecision{
		ActorID:      actorID,
		TargetUserID: targetUserID,
		CheckedAt:    time.Now().UTC(),
	}

	if actorID == targetUserID {
		decision.Allowed = true
		decision.Role = grants.RoleRead
		decision.Reason = "self access"
		// A grant may still convey more than the baseline read.
		if scope, err := r.ComputeScope(ctx, actorID); err == nil && r.users != nil {
			if ownPath, err := r.users.UserNodePath(ctx, actorID); err == nil {
				if role, ok := scope.EffectiveRole(ownPath); ok && role.Rank() > decision.Role.Rank() {
					decision.Role = role
				}
			}
		}
		return decision, nil
	}

	if r.users == nil {
		return nil, fmt.Errorf("user lookups not configured")
	}

	targetPath, err := r.users.UserNodePath(ctx, targetUserID)
	if err != nil {
		if apperr.IsNotFound(err) {
			decision.Reason = fmt.Sprintf("user %s not found", targetUserID)
			return decision, nil
		}
		return nil, err
	}

	pathDecision, err := r.CheckPathAccess(ctx, actorID, targetPath)
	if err != nil {
		return nil, err
	}
	decision.Allowed = pathDecision.Allowed
	decision.Role = pathDecision.Role
	decision.Reason = pathDecision.Reason
	decision.MatchedGrantPaths = pathDecision.MatchedGrantPaths
	decision.TargetPath = targetPath
	return decision, nil
}

// CanGrant decides whether actor may create or modify a grant of
// requestedRole at targetNodePath. Requires manager or better at the target
// (directly or through an inheriting ancestor grant) and never a requested
// role above the actor's own effective role there.
func (r *Resolver) CanGrant(ctx context.Context, actorID, targetNodePath string, requestedRole grants.Role) (*GrantDecision, error) {
	if err := hierarchy.ValidatePath(targetNodePath); err != nil {
		return nil, err
	}
	if !requestedRole.Valid() {
		return nil, apperr.NewValidation("unknown role %q", requestedRole)
	}

	scope, err := r.ComputeScope(ctx, actorID)
	if err != nil {
		return nil, err
	}

	role, ok := scope.EffectiveRole(targetNodePath)
	if !ok {
		return &GrantDecision{
			Reason: fmt.Sprintf("no grant covers path %q", targetNodePath),
		}, nil
	}
	if !role.AtLeast(grants.RoleManager) {
		return &GrantDecision{
			Reason:        fmt.Sprintf("effective role %q at %q is below manager", role, targetNodePath),
			EffectiveRole: role,
		}, nil
	}
	if requestedRole.Rank() > role.Rank() {
		return &GrantDecision{
			Reason:        fmt.Sprintf("cannot grant %q above own effective role %q", requestedRole, role),
			EffectiveRole: role,
		}, nil
	}

	return &GrantDecision{Allowed: true, EffectiveRole: role}, nil
}

// InvalidateActor drops the cached scope of one actor after a grant
// mutation.
func (r *Resolver) InvalidateActor(ctx context.Context, actorID string) {
	if r.cache != nil {
		r.cache.Invalidate(ctx, actorID)
	}
}

// InvalidateAll drops every cached scope. Tree mutations change descendant
// expansions for arbitrary actors, so they flush everything.
func (r *Resolver) InvalidateAll(ctx context.Context) {
	if r.cache != nil {
		r.cache.InvalidateAll(ctx)
	}
}
