package api

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/Aeonia-ai/gaia-sub005/pkg/audit"
	"github.com/Aeonia-ai/gaia-sub005/pkg/authz"
	"github.com/Aeonia-ai/gaia-sub005/pkg/httputil"
)

// authorize resolves one permission query. Malformed queries still
// return 200 with a deny decision: the caller asked a well-formed HTTP
// question, the answer is "no". Only infrastructure failures are 5xx.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) {
	var req AuthorizeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "user_id") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.ResourceType, "resource_type") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.ResourcePath, "resource_path") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Action, "action") {
		return
	}

	decision, rule, err := s.resolver.Authorize(r.Context(), req.UserID, req.ResourceType, req.ResourcePath, authz.Capability(req.Action))
	if err != nil {
		s.logger.WithError(err).Error("authorization resolution failed")
		httputil.WriteInternalError(w, fmt.Errorf("authorization unavailable"))
		return
	}

	if decision == authz.DecisionDeny || s.auditDecisions {
		eventType := audit.EventTypeDecision
		if decision == authz.DecisionDeny {
			eventType = audit.EventTypeAccessDenied
		}
		event := audit.NewEvent(eventType, req.UserID)
		event.ResourceType = req.ResourceType
		event.ResourcePath = req.ResourcePath
		event.Action = req.Action
		event.Decision = string(decision)
		if rule != nil {
			event.RuleKind = string(rule.Kind)
		}
		s.recordAudit(r, event)
	}

	httputil.WriteSuccess(w, AuthorizeResponse{Decision: decision, Rule: rule})
}

// listRoles returns the role registry with each role's capabilities.
func (s *Server) listRoles(w http.ResponseWriter, r *http.Request) {
	names := s.registry.RoleNames()
	sort.Strings(names)

	roles := make([]RoleInfo, 0, len(names))
	for _, name := range names {
		caps, _ := s.registry.Capabilities(name)
		roles = append(roles, RoleInfo{Name: name, Capabilities: caps})
	}
	httputil.WriteSuccess(w, roles)
}
