package api

import (
	"time"

	"github.com/Aeonia-ai/gaia-sub005/pkg/authz"
)

// AuthorizeRequest is the body of POST /api/v1/authorize.
type AuthorizeRequest struct {
	UserID       string `json:"user_id"`
	ResourceType string `json:"resource_type"`
	ResourcePath string `json:"resource_path"`
	Action       string `json:"action"`
}

// AuthorizeResponse reports the decision and the rule that produced it.
type AuthorizeResponse struct {
	Decision authz.Decision     `json:"decision"`
	Rule     *authz.MatchedRule `json:"rule,omitempty"`
}

// GrantRoleRequest is the body of POST /api/v1/assignments.
type GrantRoleRequest struct {
	UserID      string     `json:"user_id"`
	Role        string     `json:"role"`
	ContextType string     `json:"context_type"`
	ContextID   string     `json:"context_id,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// AddPermissionRequest is the body of POST /api/v1/permissions.
type AddPermissionRequest struct {
	ResourceType  string   `json:"resource_type"`
	PathPrefix    string   `json:"path_prefix"`
	PrincipalType string   `json:"principal_type"`
	PrincipalID   string   `json:"principal_id,omitempty"`
	Capabilities  []string `json:"capabilities"`
	Effect        string   `json:"effect"`
}

// CreateTeamRequest is the body of POST /api/v1/teams.
type CreateTeamRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// AddMemberRequest is the body of POST /api/v1/teams/{id}/members.
type AddMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
}

// RoleInfo describes one registry role for the listing endpoint.
type RoleInfo struct {
	Name         string             `json:"name"`
	Capabilities []authz.Capability `json:"capabilities"`
}
