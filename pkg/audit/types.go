package audit

import "time"

// EventType categorizes an audit event.
type EventType string

const (
	// Decision events
	EventTypeDecision     EventType = "authz.decision"
	EventTypeAccessDenied EventType = "authz.access_denied"

	// Grant mutation events
	EventTypeRoleGrant        EventType = "authz.role_grant"
	EventTypeRoleRevoke       EventType = "authz.role_revoke"
	EventTypePermissionGrant  EventType = "authz.permission_grant"
	EventTypePermissionRevoke EventType = "authz.permission_revoke"
	EventTypeMemberAdd        EventType = "authz.team_member_add"
	EventTypeMemberRemove     EventType = "authz.team_member_remove"
)

// Event is a single audit log entry. For decision events the Rule
// fields carry the matched rule the resolver reported, so an allow or
// deny can always be traced back to the grant that produced it.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`

	// ActorID is the administrator for mutations, the requesting user
	// for decisions.
	ActorID string `json:"actor_id"`

	ResourceType string `json:"resource_type,omitempty"`
	ResourcePath string `json:"resource_path,omitempty"`
	Action       string `json:"action,omitempty"`

	Decision string `json:"decision,omitempty"`
	RuleKind string `json:"rule_kind,omitempty"`

	RequestID string `json:"request_id,omitempty"`
	Detail    string `json:"detail,omitempty"`
}
