package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/Aeonia-ai/gaia-sub005/pkg/audit"
	"github.com/Aeonia-ai/gaia-sub005/pkg/authz"
	"github.com/Aeonia-ai/gaia-sub005/pkg/httputil"
)

// grantRole assigns a role to a user within a context.
func (s *Server) grantRole(w http.ResponseWriter, r *http.Request) {
	var req GrantRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "user_id") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Role, "role") {
		return
	}
	if !s.registry.KnownRole(req.Role) {
		httputil.WriteBadRequest(w, fmt.Sprintf("unknown role: %q", req.Role))
		return
	}

	actor := actorID(r)
	assignment := &authz.RoleAssignment{
		UserID:      req.UserID,
		Role:        req.Role,
		ContextType: authz.ContextType(req.ContextType),
		ContextID:   req.ContextID,
		GrantedBy:   &actor,
		ExpiresAt:   req.ExpiresAt,
	}

	if err := s.store.Grant(r.Context(), assignment); err != nil {
		if isConstraintError(err) {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		s.logger.WithError(err).Error("role grant failed")
		httputil.WriteInternalError(w, fmt.Errorf("failed to grant role"))
		return
	}

	event := audit.NewEvent(audit.EventTypeRoleGrant, actor)
	event.Detail = fmt.Sprintf("granted %s to %s in %s", assignment.Role, assignment.UserID, assignment.Context())
	s.recordAudit(r, event)

	httputil.WriteCreated(w, assignment)
}

// revokeRole removes a role assignment by ID.
func (s *Server) revokeRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.store.Revoke(r.Context(), id); err != nil {
		if strings.Contains(err.Error(), "not found") {
			httputil.WriteNotFoundError(w, err.Error())
			return
		}
		s.logger.WithError(err).Error("role revoke failed")
		httputil.WriteInternalError(w, fmt.Errorf("failed to revoke role"))
		return
	}

	event := audit.NewEvent(audit.EventTypeRoleRevoke, actorID(r))
	event.Detail = fmt.Sprintf("revoked assignment %d", id)
	s.recordAudit(r, event)

	httputil.WriteNoContent(w)
}

// listAssignments lists a user's unexpired role assignments.
func (s *Server) listAssignments(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "userID")
	if !ok {
		return
	}

	assignments, err := s.store.AssignmentsForUser(r.Context(), userID)
	if err != nil {
		s.logger.WithError(err).Error("assignment listing failed")
		httputil.WriteInternalError(w, fmt.Errorf("failed to list assignments"))
		return
	}
	if assignments == nil {
		assignments = []authz.RoleAssignment{}
	}
	httputil.WriteSuccess(w, assignments)
}

// addPermission creates a direct path-scoped rule.
func (s *Server) addPermission(w http.ResponseWriter, r *http.Request) {
	var req AddPermissionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.ResourceType, "resource_type") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.PathPrefix, "path_prefix") {
		return
	}

	caps := make([]authz.Capability, 0, len(req.Capabilities))
	for _, c := range req.Capabilities {
		caps = append(caps, authz.Capability(c))
	}

	actor := actorID(r)
	perm := &authz.ResourcePermission{
		ResourceType:  req.ResourceType,
		PathPrefix:    req.PathPrefix,
		PrincipalType: authz.PrincipalType(req.PrincipalType),
		PrincipalID:   req.PrincipalID,
		Capabilities:  caps,
		Effect:        authz.Effect(req.Effect),
		CreatedBy:     &actor,
	}

	if err := s.store.AddPermission(r.Context(), perm); err != nil {
		if isConstraintError(err) {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		s.logger.WithError(err).Error("permission add failed")
		httputil.WriteInternalError(w, fmt.Errorf("failed to add permission"))
		return
	}

	event := audit.NewEvent(audit.EventTypePermissionGrant, actor)
	event.ResourceType = perm.ResourceType
	event.ResourcePath = perm.PathPrefix
	event.Detail = fmt.Sprintf("%s %s for %s:%s", perm.Effect, perm.Capabilities, perm.PrincipalType, perm.PrincipalID)
	s.recordAudit(r, event)

	httputil.WriteCreated(w, perm)
}

// removePermission deletes a direct rule by ID.
func (s *Server) removePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.store.RemovePermission(r.Context(), id); err != nil {
		if strings.Contains(err.Error(), "not found") {
			httputil.WriteNotFoundError(w, err.Error())
			return
		}
		s.logger.WithError(err).Error("permission remove failed")
		httputil.WriteInternalError(w, fmt.Errorf("failed to remove permission"))
		return
	}

	event := audit.NewEvent(audit.EventTypePermissionRevoke, actorID(r))
	event.Detail = fmt.Sprintf("removed permission %d", id)
	s.recordAudit(r, event)

	httputil.WriteNoContent(w)
}

// listPermissions lists rules under a path prefix.
func (s *Server) listPermissions(w http.ResponseWriter, r *http.Request) {
	resourceType := httputil.ParseQueryString(r, "resource_type", "")
	if !httputil.RequireNonEmpty(w, resourceType, "resource_type") {
		return
	}
	prefix := httputil.ParseQueryString(r, "prefix", "/")

	perms, err := s.store.ListPermissions(r.Context(), resourceType, prefix)
	if err != nil {
		if isConstraintError(err) {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		s.logger.WithError(err).Error("permission listing failed")
		httputil.WriteInternalError(w, fmt.Errorf("failed to list permissions"))
		return
	}
	if perms == nil {
		perms = []authz.ResourcePermission{}
	}
	httputil.WriteSuccess(w, perms)
}

// isConstraintError distinguishes caller mistakes (unknown capability,
// bad context, invalid path) from infrastructure failures. Store
// validation errors are produced before any query runs.
func isConstraintError(err error) bool {
	msg := err.Error()
	for _, marker := range []string{
		"unknown capability",
		"unknown effect",
		"unknown principal type",
		"unknown context type",
		"unknown team role",
		"invalid path",
		"must be",
		"requires",
		"not a member",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
