package authz

import (
	"fmt"
	"time"
)

// Capability is a single named permission from the closed capability
// vocabulary. Unknown names are rejected at registry load time.
type Capability string

const (
	CapabilityRead   Capability = "read"
	CapabilityWrite  Capability = "write"
	CapabilityDelete Capability = "delete"
	CapabilityShare  Capability = "share"
	CapabilityAdmin  Capability = "admin"
)

// AllCapabilities lists every capability in the vocabulary.
func AllCapabilities() []Capability {
	return []Capability{
		CapabilityRead,
		CapabilityWrite,
		CapabilityDelete,
		CapabilityShare,
		CapabilityAdmin,
	}
}

// ParseCapability validates a capability name against the vocabulary.
func ParseCapability(name string) (Capability, error) {
	c := Capability(name)
	switch c {
	case CapabilityRead, CapabilityWrite, CapabilityDelete, CapabilityShare, CapabilityAdmin:
		return c, nil
	}
	return "", fmt.Errorf("unknown capability: %q", name)
}

// Decision is the outcome of an authorization check. There is no
// "unknown": a query that matches nothing resolves to deny.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionDeny  Decision = "deny"
)

// Effect is the effect of a resource permission rule. Roles can only
// grant; an explicit deny exists only here.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// ContextType scopes a role assignment.
type ContextType string

const (
	ContextGlobal ContextType = "global"
	ContextTeam   ContextType = "team"
	ContextUser   ContextType = "user"
)

// GlobalContextID is the sentinel context_id used for global
// assignments.
const GlobalContextID = "global"

// Context identifies a scope under which role assignments apply.
type Context struct {
	Type ContextType `json:"type"`
	ID   string      `json:"id"`
}

// GlobalContext returns the global scope.
func GlobalContext() Context {
	return Context{Type: ContextGlobal, ID: GlobalContextID}
}

func (c Context) String() string {
	return string(c.Type) + ":" + c.ID
}

// RoleAssignment grants a named role to a user within a context.
//
// Invariants, enforced on write:
//   - ContextType global implies ContextID == GlobalContextID
//   - ContextType user implies ContextID == UserID
//   - ContextType team implies the user is a member of that team
type RoleAssignment struct {
	ID          int64       `json:"id"`
	UserID      string      `json:"user_id"`
	Role        string      `json:"role"`
	ContextType ContextType `json:"context_type"`
	ContextID   string      `json:"context_id"`
	GrantedBy   *string     `json:"granted_by,omitempty"`
	GrantedAt   time.Time   `json:"granted_at"`
	ExpiresAt   *time.Time  `json:"expires_at,omitempty"`
}

// Context returns the scope this assignment applies to.
func (a RoleAssignment) Context() Context {
	return Context{Type: a.ContextType, ID: a.ContextID}
}

// PrincipalType identifies who a resource permission applies to.
type PrincipalType string

const (
	PrincipalUser PrincipalType = "user"
	PrincipalTeam PrincipalType = "team"
	// PrincipalAny matches any authenticated user. Used for opening
	// up shared/ and public/ subtrees beyond the namespace defaults.
	PrincipalAny PrincipalType = "any"
)

// ResourcePermission is a direct, path-scoped grant or denial that is
// independent of roles. PathPrefix is normalized and slash-terminated;
// matching is by prefix. The longest matching prefix is the most
// specific rule, and deny is absolute over any grant.
type ResourcePermission struct {
	ID            int64         `json:"id"`
	ResourceType  string        `json:"resource_type"`
	PathPrefix    string        `json:"path_prefix"`
	PrincipalType PrincipalType `json:"principal_type"`
	PrincipalID   string        `json:"principal_id"`
	Capabilities  []Capability  `json:"capabilities"`
	Effect        Effect        `json:"effect"`
	CreatedBy     *string       `json:"created_by,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// HasCapability reports whether the rule covers the given action.
func (p ResourcePermission) HasCapability(action Capability) bool {
	for _, c := range p.Capabilities {
		if c == action {
			return true
		}
	}
	return false
}

// RuleKind says which evaluation step produced a decision.
type RuleKind string

const (
	RuleSuperAdmin RuleKind = "super_admin"
	RuleRoleGrant  RuleKind = "role_grant"
	RuleDirect     RuleKind = "resource_permission"
	// RuleNamespace marks decisions produced by the namespace
	// conventions themselves (owner control of the user namespace,
	// org-wide read of shared/, world read of public/).
	RuleNamespace RuleKind = "namespace_default"
	// RuleNoMatch marks a fail-closed deny: nothing granted access.
	RuleNoMatch RuleKind = "no_match"
	// RuleInvalid marks a fail-closed deny on a malformed request.
	RuleInvalid RuleKind = "invalid_request"
)

// MatchedRule records, for auditing, which rule and context produced a
// decision.
type MatchedRule struct {
	Kind RuleKind `json:"kind"`

	// Context is set for role-derived and super-admin decisions.
	Context *Context `json:"context,omitempty"`
	// Role is set when a role grant produced the decision.
	Role string `json:"role,omitempty"`

	// PermissionID and PathPrefix are set when a ResourcePermission
	// produced the decision.
	PermissionID int64  `json:"permission_id,omitempty"`
	PathPrefix   string `json:"path_prefix,omitempty"`

	Detail string `json:"detail,omitempty"`
}

// TeamRole is a member's standing inside a team. It is distinct from
// KB roles: it governs the team itself, not resource access.
type TeamRole string

const (
	TeamRoleOwner  TeamRole = "owner"
	TeamRoleMember TeamRole = "member"
)

// Team is a named collaboration group owning /{type}/teams/{id}/.
type Team struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TeamMember records a user's membership and team role.
type TeamMember struct {
	TeamID  string    `json:"team_id"`
	UserID  string    `json:"user_id"`
	Role    TeamRole  `json:"role"`
	AddedBy *string   `json:"added_by,omitempty"`
	AddedAt time.Time `json:"added_at"`
}
