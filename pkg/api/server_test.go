package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aeonia-ai/gaia-sub005/pkg/audit"
	"github.com/Aeonia-ai/gaia-sub005/pkg/authz"
)

// recordingSink captures audit events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *recordingSink) Log(_ context.Context, event *audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *event)
	return nil
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) byType(t audit.EventType) []audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.Event
	for _, e := range s.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func setupTestServer(t *testing.T) (*httptest.Server, *authz.Store, *recordingSink) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE teams (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE team_members (
			team_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'member',
			added_by TEXT,
			added_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (team_id, user_id)
		);
		CREATE TABLE role_assignments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			context_type TEXT NOT NULL,
			context_id TEXT NOT NULL,
			granted_by TEXT,
			granted_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			expires_at TIMESTAMP
		);
		CREATE TABLE resource_permissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			resource_type TEXT NOT NULL,
			path_prefix TEXT NOT NULL,
			principal_type TEXT NOT NULL,
			principal_id TEXT NOT NULL DEFAULT '',
			capabilities TEXT NOT NULL,
			effect TEXT NOT NULL,
			created_by TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	require.NoError(t, err)

	gens := authz.NewLocalGenerations()
	store := authz.NewStore(db, gens)
	registry := authz.DefaultRegistry()
	cache := authz.NewCache(128, time.Minute, gens)
	resolver := authz.NewResolver(registry, store, store, store, authz.WithCache(cache))

	sink := &recordingSink{}
	server := NewServer(resolver, store, registry, WithAuditor(sink, false))

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return ts, store, sink
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest("POST", url, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", "admin")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestAuthorizeEndpoint(t *testing.T) {
	ts, store, sink := setupTestServer(t)
	ctx := context.Background()

	require.NoError(t, store.Grant(ctx, &authz.RoleAssignment{
		UserID: "alice", Role: authz.RoleKBEditor, ContextType: authz.ContextGlobal,
	}))

	resp := postJSON(t, ts.URL+"/api/v1/authorize", map[string]string{
		"user_id": "alice", "resource_type": "kb",
		"resource_path": "/kb/shared/doc.md", "action": "write",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result AuthorizeResponse
	decode(t, resp, &result)
	assert.Equal(t, authz.DecisionAllow, result.Decision)
	require.NotNil(t, result.Rule)
	assert.Equal(t, authz.RuleRoleGrant, result.Rule.Kind)

	// A denial is still HTTP 200 and lands in the audit log.
	resp = postJSON(t, ts.URL+"/api/v1/authorize", map[string]string{
		"user_id": "bob", "resource_type": "kb",
		"resource_path": "/kb/users/alice/private.md", "action": "read",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &result)
	assert.Equal(t, authz.DecisionDeny, result.Decision)

	denied := sink.byType(audit.EventTypeAccessDenied)
	require.Len(t, denied, 1)
	assert.Equal(t, "bob", denied[0].ActorID)
	assert.NotEmpty(t, denied[0].RequestID)
}

func TestAuthorizeEndpointValidation(t *testing.T) {
	ts, _, _ := setupTestServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/authorize", map[string]string{
		"resource_type": "kb", "resource_path": "/kb/x", "action": "read",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Malformed path: well-formed request, deny decision.
	resp = postJSON(t, ts.URL+"/api/v1/authorize", map[string]string{
		"user_id": "alice", "resource_type": "kb",
		"resource_path": "../etc/passwd", "action": "read",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result AuthorizeResponse
	decode(t, resp, &result)
	assert.Equal(t, authz.DecisionDeny, result.Decision)
	assert.Equal(t, authz.RuleInvalid, result.Rule.Kind)
}

func TestAssignmentEndpoints(t *testing.T) {
	ts, _, sink := setupTestServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/assignments", map[string]interface{}{
		"user_id": "alice", "role": authz.RoleKBViewer, "context_type": "global",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created authz.RoleAssignment
	decode(t, resp, &created)
	assert.NotZero(t, created.ID)
	require.NotNil(t, created.GrantedBy)
	assert.Equal(t, "admin", *created.GrantedBy)

	// Unknown role is a 400.
	resp = postJSON(t, ts.URL+"/api/v1/assignments", map[string]interface{}{
		"user_id": "alice", "role": "no_such_role", "context_type": "global",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Listing.
	var assignments []authz.RoleAssignment
	resp, err := http.Get(ts.URL + "/api/v1/users/alice/assignments")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &assignments)
	require.Len(t, assignments, 1)

	// Revoke, then the list is empty.
	req, err := http.NewRequest("DELETE", fmt.Sprintf("%s/api/v1/assignments/%d", ts.URL, created.ID), nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/v1/users/alice/assignments")
	require.NoError(t, err)
	decode(t, resp, &assignments)
	assert.Empty(t, assignments)

	// Revoking again is a 404.
	req, err = http.NewRequest("DELETE", fmt.Sprintf("%s/api/v1/assignments/%d", ts.URL, created.ID), nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	assert.Len(t, sink.byType(audit.EventTypeRoleGrant), 1)
	assert.Len(t, sink.byType(audit.EventTypeRoleRevoke), 1)
}

func TestPermissionEndpoints(t *testing.T) {
	ts, _, sink := setupTestServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/permissions", map[string]interface{}{
		"resource_type": "kb", "path_prefix": "/kb/shared/specs",
		"principal_type": "user", "principal_id": "dave",
		"capabilities": []string{"read", "write"}, "effect": "allow",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created authz.ResourcePermission
	decode(t, resp, &created)
	assert.Equal(t, "/kb/shared/specs/", created.PathPrefix)

	// The rule is live.
	resp = postJSON(t, ts.URL+"/api/v1/authorize", map[string]string{
		"user_id": "dave", "resource_type": "kb",
		"resource_path": "/kb/shared/specs/api.md", "action": "write",
	})
	var result AuthorizeResponse
	decode(t, resp, &result)
	assert.Equal(t, authz.DecisionAllow, result.Decision)

	// Bad capability is a 400.
	resp = postJSON(t, ts.URL+"/api/v1/permissions", map[string]interface{}{
		"resource_type": "kb", "path_prefix": "/kb/",
		"principal_type": "user", "principal_id": "dave",
		"capabilities": []string{"fly"}, "effect": "allow",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Listing.
	resp, err := http.Get(ts.URL + "/api/v1/permissions?resource_type=kb&prefix=/kb/shared/")
	require.NoError(t, err)
	var perms []authz.ResourcePermission
	decode(t, resp, &perms)
	require.Len(t, perms, 1)

	// Removal revokes access.
	req, err := http.NewRequest("DELETE", fmt.Sprintf("%s/api/v1/permissions/%d", ts.URL, created.ID), nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/api/v1/authorize", map[string]string{
		"user_id": "dave", "resource_type": "kb",
		"resource_path": "/kb/shared/specs/api.md", "action": "write",
	})
	decode(t, resp, &result)
	assert.Equal(t, authz.DecisionDeny, result.Decision)

	assert.Len(t, sink.byType(audit.EventTypePermissionGrant), 1)
	assert.Len(t, sink.byType(audit.EventTypePermissionRevoke), 1)
}

func TestTeamEndpoints(t *testing.T) {
	ts, _, sink := setupTestServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/teams", map[string]string{
		"id": "platform", "name": "Platform Engineering",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/api/v1/teams/platform/members", map[string]string{
		"user_id": "carol",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// A team role now works end to end.
	resp = postJSON(t, ts.URL+"/api/v1/assignments", map[string]interface{}{
		"user_id": "carol", "role": authz.RoleKBEditor,
		"context_type": "team", "context_id": "platform",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/api/v1/authorize", map[string]string{
		"user_id": "carol", "resource_type": "kb",
		"resource_path": "/kb/teams/platform/runbook.md", "action": "write",
	})
	var result AuthorizeResponse
	decode(t, resp, &result)
	assert.Equal(t, authz.DecisionAllow, result.Decision)

	var members []authz.TeamMember
	getResp, err := http.Get(ts.URL + "/api/v1/teams/platform/members")
	require.NoError(t, err)
	decode(t, getResp, &members)
	require.Len(t, members, 1)

	// Removing the member cascades: the team role stops applying.
	req, err := http.NewRequest("DELETE", ts.URL+"/api/v1/teams/platform/members/carol", nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	delResp.Body.Close()
	require.Equal(t, http.StatusNoContent, delResp.StatusCode)

	resp = postJSON(t, ts.URL+"/api/v1/authorize", map[string]string{
		"user_id": "carol", "resource_type": "kb",
		"resource_path": "/kb/teams/platform/runbook.md", "action": "write",
	})
	decode(t, resp, &result)
	assert.Equal(t, authz.DecisionDeny, result.Decision)

	assert.Len(t, sink.byType(audit.EventTypeMemberAdd), 1)
	assert.Len(t, sink.byType(audit.EventTypeMemberRemove), 1)

	// Missing team is a 404.
	getResp, err = http.Get(ts.URL + "/api/v1/teams/ghosts")
	require.NoError(t, err)
	getResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, getResp.StatusCode)
}

func TestListRolesEndpoint(t *testing.T) {
	ts, _, _ := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/roles")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var roles []RoleInfo
	decode(t, resp, &roles)
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	assert.Contains(t, names, authz.RoleSuperAdmin)
	assert.Contains(t, names, authz.RoleKBViewer)
}

func TestRequestIDPropagation(t *testing.T) {
	ts, _, _ := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/roles")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	req, err := http.NewRequest("GET", ts.URL+"/api/v1/roles", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-42")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "req-42", resp.Header.Get("X-Request-ID"))
}
