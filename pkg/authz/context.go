package authz

import (
	"context"
	"fmt"
)

// MembershipReader supplies team memberships. Provisioning of the
// underlying users/teams tables is external; this core only reads.
type MembershipReader interface {
	// TeamsForUser returns the IDs of every team the user belongs to.
	TeamsForUser(ctx context.Context, userID string) ([]string, error)
}

// ContextResolver enumerates the authorization contexts applicable to
// a (user, path) pair. Pruning is the main performance lever: a user
// may belong to many teams, but most paths are irrelevant to most of
// them, and a pruned team context never costs a role lookup.
type ContextResolver struct {
	members MembershipReader
}

// NewContextResolver creates a context resolver over a membership
// source.
func NewContextResolver(members MembershipReader) *ContextResolver {
	return &ContextResolver{members: members}
}

// Memberships returns the IDs of every team the user belongs to.
// This is the only store read the context resolver performs, kept
// separate from Contexts so callers can stamp team generation
// counters before reading any rule data those counters govern.
func (cr *ContextResolver) Memberships(ctx context.Context, userID string) ([]string, error) {
	teams, err := cr.members.TeamsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve team memberships: %w", err)
	}
	return teams, nil
}

// Contexts returns the ordered contexts to evaluate for userID
// against a path already classified into ns, pruning the
// already-fetched membership list. Pure over its arguments.
//
// The global context is always first. The user's own context appears
// only when the path falls under their namespace. A team context
// survives pruning when the path falls under the team's namespace, or
// when some matching ResourcePermission names the team as principal
// (the team has been granted a foothold under this prefix).
func (cr *ContextResolver) Contexts(userID string, ns Namespace, teams []string, matched []ResourcePermission) []Context {
	contexts := []Context{GlobalContext()}

	if ns.Kind == NamespaceUser && ns.OwnerID == userID {
		contexts = append(contexts, Context{Type: ContextUser, ID: userID})
	}

	granted := make(map[string]bool)
	for _, p := range matched {
		if p.PrincipalType == PrincipalTeam {
			granted[p.PrincipalID] = true
		}
	}

	for _, teamID := range teams {
		if (ns.Kind == NamespaceTeam && ns.OwnerID == teamID) || granted[teamID] {
			contexts = append(contexts, Context{Type: ContextTeam, ID: teamID})
		}
	}

	return contexts
}
