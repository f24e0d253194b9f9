// Package authz resolves role-based, path-scoped permissions for the
// multi-tenant knowledge store.
//
// # Overview
//
// Every piece of content lives at a path whose layout encodes
// ownership:
//
//	/{resource_type}/users/{user_id}/...   - personal namespace
//	/{resource_type}/teams/{team_id}/...   - team namespace
//	/{resource_type}/shared/...            - org-wide, readable by all
//	/{resource_type}/public/...            - world readable
//
// The resolver answers one question: may user U perform action A on
// the resource at path P? The answer is always allow or deny, never
// unknown, and absence of any grant resolves to deny.
//
// # Model
//
// Three kinds of records feed a decision:
//
//  1. Role assignments bind a named role to a user within a context
//     (global, one team, or the user's own scope). Roles map to
//     capability sets through the Registry; built-in roles cover the
//     common cases and a YAML file can add custom ones.
//  2. Resource permissions are direct path-prefix rules for a user, a
//     team, or any authenticated user. They carry an allow or deny
//     effect; they are the only source of explicit deny.
//  3. Team membership determines which team contexts and team-principal
//     rules apply to a user at all.
//
// # Resolution
//
// A query is resolved in a fixed order:
//
//  1. Normalize the path and classify its namespace. Malformed paths
//     deny immediately.
//  2. A global super_admin assignment allows everything.
//  3. An applicable deny rule, at any prefix depth, denies. Deny is
//     absolute: no role or more specific allow can override it.
//  4. A role held in a relevant context whose capability set covers the
//     action allows.
//  5. The namespace conventions apply: owners hold every capability in
//     their own namespace, shared/ grants read org-wide, public/ grants
//     read to everyone.
//  6. The most specific applicable allow rule (longest path prefix,
//     newest on ties) allows.
//  7. Otherwise deny.
//
// Contexts are pruned before role lookups: only the global context,
// the user's own context, the team owning the path's namespace, and
// teams named by a matching rule are ever consulted, so membership in
// unrelated teams costs nothing per query.
//
// # Caching
//
// Decisions are cached in-process (hashicorp LRU with TTL) and
// validated by generation counters. Every write bumps the counter for
// the scope it can affect - a user, a team, or everyone - strictly
// after commit, and every cached decision carries the counters
// observed before its store reads. A cached decision whose counters
// lag the live ones is discarded, so a revocation is visible to all
// instances after one counter read, not one TTL. Counters live in
// Redis when configured and fall back to process-local atomics.
//
// # Usage
//
//	store := authz.NewStore(db, authz.NewRedisGenerations(rdb))
//	cache := authz.NewCache(65536, 10*time.Minute, store.Generations())
//	resolver := authz.NewResolver(authz.DefaultRegistry(), store, store, store,
//		authz.WithCache(cache))
//
//	decision, rule, err := resolver.Authorize(ctx, "alice", "kb", "/kb/shared/runbooks/deploy.md", authz.CapabilityRead)
//
// The returned MatchedRule names the grant (or its absence) that
// produced the decision, for auditing.
package authz
