package authz

import (
	"context"
	"fmt"
	"time"

	"github.com/Aeonia-ai/gaia-sub005/pkg/observability"
)

// AssignmentReader supplies role assignments for one context at a
// time, so pruned contexts never cost a lookup.
type AssignmentReader interface {
	// RolesForUser returns the names of roles the user holds in the
	// given context, excluding expired assignments.
	RolesForUser(ctx context.Context, userID string, scope Context) ([]string, error)
}

// PermissionReader supplies direct path-scoped grants.
type PermissionReader interface {
	// MatchingPermissions returns every rule whose path_prefix is a
	// prefix of the normalized path, for any principal. Principal
	// filtering happens in the resolver, which knows the user's
	// memberships.
	MatchingPermissions(ctx context.Context, resourceType, normalizedPath string) ([]ResourcePermission, error)
}

// Resolver is the permission resolution core. It is pure with respect
// to its stores: calling Authorize has no side effects beyond cache
// population, and repeated calls are safe.
type Resolver struct {
	registry    *Registry
	assignments AssignmentReader
	permissions PermissionReader
	contexts    *ContextResolver

	cache   *Cache
	logger  *observability.Logger
	metrics *observability.Metrics
}

// ResolverOption configures optional resolver collaborators.
type ResolverOption func(*Resolver)

// WithCache attaches a generation-validated decision cache.
func WithCache(cache *Cache) ResolverOption {
	return func(r *Resolver) { r.cache = cache }
}

// WithLogger attaches a structured logger.
func WithLogger(logger *observability.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = logger }
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *observability.Metrics) ResolverOption {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver wires the resolution core over its stores.
func NewResolver(registry *Registry, assignments AssignmentReader, permissions PermissionReader, members MembershipReader, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		registry:    registry,
		assignments: assignments,
		permissions: permissions,
		contexts:    NewContextResolver(members),
		logger:      observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Authorize decides whether userID may perform action on the resource
// at resourcePath. The decision is always allow or deny, never
// unknown; a non-nil error means the stores could not be consulted
// (infrastructure failure), which is distinct from a deny.
//
// Precedence: a global super_admin allows everything; otherwise an
// explicit deny rule matching the path is absolute over every grant
// at every specificity; otherwise role-derived capabilities, the
// namespace conventions, and the most specific allow rule each
// suffice; otherwise deny, fail-closed.
func (r *Resolver) Authorize(ctx context.Context, userID, resourceType, resourcePath string, action Capability) (Decision, *MatchedRule, error) {
	start := time.Now()
	decision, rule, err := r.authorize(ctx, userID, resourceType, resourcePath, action)
	if err == nil {
		r.observe(decision, rule, time.Since(start))
	}
	return decision, rule, err
}

func (r *Resolver) authorize(ctx context.Context, userID, resourceType, resourcePath string, action Capability) (Decision, *MatchedRule, error) {
	if userID == "" {
		return r.invalid("empty user id")
	}
	if _, err := ParseCapability(string(action)); err != nil {
		return r.invalid(fmt.Sprintf("unknown action %q", action))
	}

	normalized, err := NormalizePath(resourcePath)
	if err != nil {
		// Malformed paths deny without detail: callers should not
		// learn why, to avoid leaking namespace existence.
		r.logger.WithField("user_id", userID).WithError(err).Debug("authorize: malformed resource path")
		return DecisionDeny, &MatchedRule{Kind: RuleInvalid}, nil
	}

	key := CacheKey(userID, resourceType, normalized, action)

	caching := r.cache != nil
	var stamp Stamp
	if caching {
		if decision, rule, ok := r.cache.Lookup(ctx, key, userID); ok {
			r.countCache(true)
			return decision, rule, nil
		}
		r.countCache(false)

		// The stamp must predate every store read; a write that lands
		// mid-resolution bumps past it and the entry reads as stale.
		stamp, err = r.cache.NewStamp(ctx, userID)
		if err != nil {
			// A dead generation source degrades to uncached
			// resolution; correctness does not depend on the cache.
			r.logger.WithError(err).Warn("authorize: generation snapshot failed, bypassing cache")
			caching = false
		}
	}

	// Global roles come first: the super_admin fast path skips rule
	// evaluation entirely, though it is still audited as a decision
	// in the global context.
	global := GlobalContext()
	globalRoles, err := r.assignments.RolesForUser(ctx, userID, global)
	if err != nil {
		r.countStoreError("roles")
		return DecisionDeny, nil, fmt.Errorf("role lookup failed for %s: %w", global, err)
	}
	for _, role := range globalRoles {
		if role == RoleSuperAdmin {
			rule := &MatchedRule{Kind: RuleSuperAdmin, Context: &global, Role: RoleSuperAdmin}
			if caching {
				r.cache.Store(key, stamp, DecisionAllow, rule)
			}
			return DecisionAllow, rule, nil
		}
	}

	// Memberships are read and their team counters stamped before any
	// rule data. A team-scoped permission write that commits
	// mid-resolution therefore bumps past the stamp, and the entry it
	// would have poisoned reads as stale instead.
	teams, err := r.contexts.Memberships(ctx, userID)
	if err != nil {
		r.countStoreError("memberships")
		return DecisionDeny, nil, err
	}
	if caching {
		if err := r.cache.StampTeams(ctx, &stamp, teams); err != nil {
			r.logger.WithError(err).Warn("authorize: generation snapshot failed, bypassing cache")
			caching = false
		}
	}

	rules, err := r.permissions.MatchingPermissions(ctx, resourceType, normalized)
	if err != nil {
		r.countStoreError("permissions")
		return DecisionDeny, nil, fmt.Errorf("permission lookup failed: %w", err)
	}

	// Context pruning needs the fetched rules: a team grant can make
	// an otherwise irrelevant team context relevant.
	ns := SplitNamespace(normalized)
	contexts := r.contexts.Contexts(userID, ns, teams, rules)

	decision, rule, err := r.resolve(ctx, userID, action, ns, globalRoles, contexts, teams, rules)
	if err != nil {
		return DecisionDeny, nil, err
	}
	if caching {
		r.cache.Store(key, stamp, decision, rule)
	}
	return decision, rule, nil
}

// resolve runs the precedence algorithm over already-fetched rules
// and pruned contexts.
func (r *Resolver) resolve(ctx context.Context, userID string, action Capability, ns Namespace, globalRoles []string, contexts []Context, teams []string, rules []ResourcePermission) (Decision, *MatchedRule, error) {
	applicable := filterPrincipals(rules, userID, teams, action)

	// Deny is absolute: any applicable deny rule, at any specificity,
	// overrides every grant. The most specific deny is reported.
	if deny := selectRule(applicable, EffectDeny); deny != nil {
		return DecisionDeny, directRule(deny), nil
	}

	// Role-derived grants, in context order. The global lookup is
	// already done; remaining contexts are consulted lazily so pruned
	// ones never touch the store.
	if role, ok := r.registry.Grants(globalRoles, action); ok {
		global := GlobalContext()
		return DecisionAllow, &MatchedRule{Kind: RuleRoleGrant, Context: &global, Role: role}, nil
	}
	for _, c := range contexts {
		if c.Type == ContextGlobal {
			continue
		}
		roles, err := r.assignments.RolesForUser(ctx, userID, c)
		if err != nil {
			r.countStoreError("roles")
			return DecisionDeny, nil, fmt.Errorf("role lookup failed for %s: %w", c, err)
		}
		if role, ok := r.registry.Grants(roles, action); ok {
			scope := c
			return DecisionAllow, &MatchedRule{Kind: RuleRoleGrant, Context: &scope, Role: role}, nil
		}
	}

	if rule := namespaceDefault(ns, userID, action); rule != nil {
		return DecisionAllow, rule, nil
	}

	if allow := selectRule(applicable, EffectAllow); allow != nil {
		return DecisionAllow, directRule(allow), nil
	}

	return DecisionDeny, &MatchedRule{Kind: RuleNoMatch}, nil
}

// filterPrincipals keeps rules that name this user, one of their
// teams, or the any-authenticated-user wildcard, and that cover the
// requested action.
func filterPrincipals(rules []ResourcePermission, userID string, teams []string, action Capability) []ResourcePermission {
	memberOf := make(map[string]bool, len(teams))
	for _, id := range teams {
		memberOf[id] = true
	}

	out := make([]ResourcePermission, 0, len(rules))
	for _, p := range rules {
		if !p.HasCapability(action) {
			continue
		}
		switch p.PrincipalType {
		case PrincipalUser:
			if p.PrincipalID != userID {
				continue
			}
		case PrincipalTeam:
			if !memberOf[p.PrincipalID] {
				continue
			}
		case PrincipalAny:
		default:
			continue
		}
		out = append(out, p)
	}
	return out
}

// selectRule picks the winning rule of one effect: longest path
// prefix first, then the most recently defined (highest ID) on ties.
func selectRule(rules []ResourcePermission, effect Effect) *ResourcePermission {
	var best *ResourcePermission
	for i := range rules {
		p := &rules[i]
		if p.Effect != effect {
			continue
		}
		if best == nil ||
			len(p.PathPrefix) > len(best.PathPrefix) ||
			(len(p.PathPrefix) == len(best.PathPrefix) && p.ID > best.ID) {
			best = p
		}
	}
	return best
}

// namespaceDefault applies the layout conventions that hold without
// any stored rule: a user controls their own namespace, shared/ is
// org-wide readable, public/ is world readable.
func namespaceDefault(ns Namespace, userID string, action Capability) *MatchedRule {
	switch ns.Kind {
	case NamespaceUser:
		if ns.OwnerID == userID {
			return &MatchedRule{Kind: RuleNamespace, Detail: "owner"}
		}
	case NamespaceShared:
		if action == CapabilityRead {
			return &MatchedRule{Kind: RuleNamespace, Detail: "shared_read"}
		}
	case NamespacePublic:
		if action == CapabilityRead {
			return &MatchedRule{Kind: RuleNamespace, Detail: "public_read"}
		}
	}
	return nil
}

func directRule(p *ResourcePermission) *MatchedRule {
	return &MatchedRule{
		Kind:         RuleDirect,
		PermissionID: p.ID,
		PathPrefix:   p.PathPrefix,
		Detail:       string(p.Effect),
	}
}

func (r *Resolver) invalid(detail string) (Decision, *MatchedRule, error) {
	r.logger.WithField("detail", detail).Debug("authorize: invalid request")
	return DecisionDeny, &MatchedRule{Kind: RuleInvalid}, nil
}

func (r *Resolver) observe(decision Decision, rule *MatchedRule, elapsed time.Duration) {
	if r.metrics == nil {
		return
	}
	kind := ""
	if rule != nil {
		kind = string(rule.Kind)
	}
	r.metrics.AuthzDecisionsTotal.WithLabelValues(string(decision), kind).Inc()
	r.metrics.AuthzDecisionDuration.Observe(elapsed.Seconds())
}

func (r *Resolver) countStoreError(operation string) {
	if r.metrics == nil {
		return
	}
	r.metrics.StoreErrorsTotal.WithLabelValues(operation).Inc()
}

func (r *Resolver) countCache(hit bool) {
	if r.metrics == nil {
		return
	}
	if hit {
		r.metrics.AuthzCacheHitsTotal.Inc()
	} else {
		r.metrics.AuthzCacheMissesTotal.Inc()
	}
}
