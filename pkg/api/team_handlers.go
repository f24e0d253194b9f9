package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/Aeonia-ai/gaia-sub005/pkg/audit"
	"github.com/Aeonia-ai/gaia-sub005/pkg/authz"
	"github.com/Aeonia-ai/gaia-sub005/pkg/httputil"
)

// createTeam records a new team.
func (s *Server) createTeam(w http.ResponseWriter, r *http.Request) {
	var req CreateTeamRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.ID, "id") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	team := &authz.Team{ID: req.ID, Name: req.Name, Description: req.Description}
	if err := s.store.CreateTeam(r.Context(), team); err != nil {
		s.logger.WithError(err).Error("team creation failed")
		httputil.WriteInternalError(w, fmt.Errorf("failed to create team"))
		return
	}
	httputil.WriteCreated(w, team)
}

// getTeam retrieves a team by ID.
func (s *Server) getTeam(w http.ResponseWriter, r *http.Request) {
	teamID, ok := httputil.ParsePathStringOrError(w, r, "teamID")
	if !ok {
		return
	}

	team, err := s.store.GetTeam(r.Context(), teamID)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			httputil.WriteNotFoundError(w, err.Error())
			return
		}
		s.logger.WithError(err).Error("team lookup failed")
		httputil.WriteInternalError(w, fmt.Errorf("failed to get team"))
		return
	}
	httputil.WriteSuccess(w, team)
}

// addMember adds a user to a team.
func (s *Server) addMember(w http.ResponseWriter, r *http.Request) {
	teamID, ok := httputil.ParsePathStringOrError(w, r, "teamID")
	if !ok {
		return
	}
	var req AddMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "user_id") {
		return
	}

	actor := actorID(r)
	member := &authz.TeamMember{
		TeamID:  teamID,
		UserID:  req.UserID,
		Role:    authz.TeamRole(req.Role),
		AddedBy: &actor,
	}

	if err := s.store.AddTeamMember(r.Context(), member); err != nil {
		if isConstraintError(err) {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		s.logger.WithError(err).Error("member add failed")
		httputil.WriteInternalError(w, fmt.Errorf("failed to add team member"))
		return
	}

	event := audit.NewEvent(audit.EventTypeMemberAdd, actor)
	event.Detail = fmt.Sprintf("added %s to team %s as %s", member.UserID, teamID, member.Role)
	s.recordAudit(r, event)

	httputil.WriteCreated(w, member)
}

// listMembers lists a team's members.
func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	teamID, ok := httputil.ParsePathStringOrError(w, r, "teamID")
	if !ok {
		return
	}

	members, err := s.store.TeamMembers(r.Context(), teamID)
	if err != nil {
		s.logger.WithError(err).Error("member listing failed")
		httputil.WriteInternalError(w, fmt.Errorf("failed to list team members"))
		return
	}
	if members == nil {
		members = []authz.TeamMember{}
	}
	httputil.WriteSuccess(w, members)
}

// removeMember removes a user from a team, along with their team-scoped
// role assignments.
func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	teamID, ok := httputil.ParsePathStringOrError(w, r, "teamID")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathStringOrError(w, r, "userID")
	if !ok {
		return
	}

	if err := s.store.RemoveTeamMember(r.Context(), teamID, userID); err != nil {
		s.logger.WithError(err).Error("member remove failed")
		httputil.WriteInternalError(w, fmt.Errorf("failed to remove team member"))
		return
	}

	event := audit.NewEvent(audit.EventTypeMemberRemove, actorID(r))
	event.Detail = fmt.Sprintf("removed %s from team %s", userID, teamID)
	s.recordAudit(r, event)

	httputil.WriteNoContent(w)
}
