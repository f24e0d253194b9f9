package authz

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Store is the persistence adapter for role assignments, resource
// permissions, and team membership. Reads are plain indexed lookups;
// writes validate the assignment invariants and bump the affected
// generation scope strictly after the row lands, so no reader can
// serve a revoked grant from cache past one bump's latency.
type Store struct {
	db   *sql.DB
	gens Generations
}

// NewStore creates a store over db. Writes bump gens; pass
// NewLocalGenerations() when no shared counter backend is configured.
func NewStore(db *sql.DB, gens Generations) *Store {
	if gens == nil {
		gens = NewLocalGenerations()
	}
	return &Store{db: db, gens: gens}
}

// Generations exposes the generation source the store bumps, for
// wiring the same instance into the decision cache.
func (s *Store) Generations() Generations {
	return s.gens
}

// RolesForUser returns the role names the user holds in one context,
// excluding expired assignments.
func (s *Store) RolesForUser(ctx context.Context, userID string, scope Context) ([]string, error) {
	query := `
		SELECT role
		FROM role_assignments
		WHERE user_id = $1
		  AND context_type = $2
		  AND context_id = $3
		  AND (expires_at IS NULL OR expires_at > CURRENT_TIMESTAMP)
		ORDER BY role
	`

	rows, err := s.db.QueryContext(ctx, query, userID, string(scope.Type), scope.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get roles for %s in %s: %w", userID, scope, err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// TeamsForUser returns the IDs of every team the user belongs to.
func (s *Store) TeamsForUser(ctx context.Context, userID string) ([]string, error) {
	query := `SELECT team_id FROM team_members WHERE user_id = $1 ORDER BY team_id`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get teams for %s: %w", userID, err)
	}
	defer rows.Close()

	var teams []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan team id: %w", err)
		}
		teams = append(teams, id)
	}
	return teams, rows.Err()
}

// MatchingPermissions returns every rule whose path_prefix is a
// prefix of the normalized path, newest first within equal lengths.
// The substr comparison keeps LIKE wildcards in stored prefixes from
// ever widening a match.
func (s *Store) MatchingPermissions(ctx context.Context, resourceType, normalizedPath string) ([]ResourcePermission, error) {
	query := `
		SELECT id, resource_type, path_prefix, principal_type, principal_id, capabilities, effect, created_by, created_at
		FROM resource_permissions
		WHERE resource_type = $1
		  AND substr($2, 1, length(path_prefix)) = path_prefix
		ORDER BY length(path_prefix) DESC, id DESC
	`

	rows, err := s.db.QueryContext(ctx, query, resourceType, normalizedPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get matching permissions: %w", err)
	}
	defer rows.Close()

	var perms []ResourcePermission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, *p)
	}
	return perms, rows.Err()
}

// Grant assigns a role to a user within a context. The assignment
// invariants are enforced here: global assignments carry the sentinel
// context id, user assignments are self-scoped, and team assignments
// require membership.
func (s *Store) Grant(ctx context.Context, a *RoleAssignment) error {
	switch a.ContextType {
	case ContextGlobal:
		if a.ContextID == "" {
			a.ContextID = GlobalContextID
		}
		if a.ContextID != GlobalContextID {
			return fmt.Errorf("global assignment must use context id %q", GlobalContextID)
		}
	case ContextUser:
		if a.ContextID == "" {
			a.ContextID = a.UserID
		}
		if a.ContextID != a.UserID {
			return fmt.Errorf("user assignment must be self-scoped")
		}
	case ContextTeam:
		member, err := s.IsTeamMember(ctx, a.ContextID, a.UserID)
		if err != nil {
			return err
		}
		if !member {
			return fmt.Errorf("user %s is not a member of team %s", a.UserID, a.ContextID)
		}
	default:
		return fmt.Errorf("unknown context type: %q", a.ContextType)
	}

	query := `
		INSERT INTO role_assignments (user_id, role, context_type, context_id, granted_by, granted_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx, query,
		a.UserID,
		a.Role,
		string(a.ContextType),
		a.ContextID,
		a.GrantedBy,
		now,
		a.ExpiresAt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("failed to grant role: %w", err)
	}
	a.GrantedAt = now

	return s.gens.BumpUser(ctx, a.UserID)
}

// Revoke removes a role assignment by ID.
func (s *Store) Revoke(ctx context.Context, assignmentID int64) error {
	var userID string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id FROM role_assignments WHERE id = $1`, assignmentID,
	).Scan(&userID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("role assignment not found: %d", assignmentID)
	}
	if err != nil {
		return fmt.Errorf("failed to look up role assignment: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM role_assignments WHERE id = $1`, assignmentID); err != nil {
		return fmt.Errorf("failed to revoke role assignment: %w", err)
	}

	return s.gens.BumpUser(ctx, userID)
}

// AssignmentsForUser lists every unexpired assignment a user holds,
// across all contexts.
func (s *Store) AssignmentsForUser(ctx context.Context, userID string) ([]RoleAssignment, error) {
	query := `
		SELECT id, user_id, role, context_type, context_id, granted_by, granted_at, expires_at
		FROM role_assignments
		WHERE user_id = $1
		  AND (expires_at IS NULL OR expires_at > CURRENT_TIMESTAMP)
		ORDER BY granted_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []RoleAssignment
	for rows.Next() {
		var a RoleAssignment
		var contextType string
		var grantedBy sql.NullString
		var expiresAt sql.NullTime

		err := rows.Scan(&a.ID, &a.UserID, &a.Role, &contextType, &a.ContextID, &grantedBy, &a.GrantedAt, &expiresAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		a.ContextType = ContextType(contextType)
		if grantedBy.Valid {
			gb := grantedBy.String
			a.GrantedBy = &gb
		}
		if expiresAt.Valid {
			ea := expiresAt.Time
			a.ExpiresAt = &ea
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// PurgeExpiredAssignments deletes assignments whose expiry has
// passed. Expired rows are already invisible to readers; purging
// keeps the table and its indexes lean. Returns the number of rows
// removed.
func (s *Store) PurgeExpiredAssignments(ctx context.Context) (int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT user_id FROM role_assignments
		WHERE expires_at IS NOT NULL AND expires_at <= CURRENT_TIMESTAMP
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to find expired assignments: %w", err)
	}
	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan user id: %w", err)
		}
		users = append(users, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(users) == 0 {
		return 0, nil
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM role_assignments
		WHERE expires_at IS NOT NULL AND expires_at <= CURRENT_TIMESTAMP
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired assignments: %w", err)
	}
	purged, _ := res.RowsAffected()

	for _, id := range users {
		if err := s.gens.BumpUser(ctx, id); err != nil {
			return purged, err
		}
	}
	return purged, nil
}

// AddPermission inserts a direct path-scoped rule. The prefix is
// normalized before storage and the capability list is validated
// against the vocabulary, so a misspelled capability is rejected
// instead of silently never matching.
func (s *Store) AddPermission(ctx context.Context, p *ResourcePermission) error {
	switch p.Effect {
	case EffectAllow, EffectDeny:
	default:
		return fmt.Errorf("unknown effect: %q", p.Effect)
	}
	switch p.PrincipalType {
	case PrincipalUser, PrincipalTeam:
		if p.PrincipalID == "" {
			return fmt.Errorf("%s principal requires an id", p.PrincipalType)
		}
	case PrincipalAny:
		p.PrincipalID = ""
	default:
		return fmt.Errorf("unknown principal type: %q", p.PrincipalType)
	}
	if len(p.Capabilities) == 0 {
		return fmt.Errorf("permission requires at least one capability")
	}
	for _, c := range p.Capabilities {
		if _, err := ParseCapability(string(c)); err != nil {
			return err
		}
	}

	normalized, err := NormalizePath(p.PathPrefix)
	if err != nil {
		return fmt.Errorf("invalid path prefix: %w", err)
	}
	p.PathPrefix = normalized

	capsJSON, err := json.Marshal(p.Capabilities)
	if err != nil {
		return fmt.Errorf("failed to marshal capabilities: %w", err)
	}

	query := `
		INSERT INTO resource_permissions (resource_type, path_prefix, principal_type, principal_id, capabilities, effect, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	now := time.Now().UTC()
	err = s.db.QueryRowContext(ctx, query,
		p.ResourceType,
		p.PathPrefix,
		string(p.PrincipalType),
		p.PrincipalID,
		string(capsJSON),
		string(p.Effect),
		p.CreatedBy,
		now,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to add permission: %w", err)
	}
	p.CreatedAt = now

	return s.bumpPrincipal(ctx, p.PrincipalType, p.PrincipalID)
}

// RemovePermission deletes a direct rule by ID.
func (s *Store) RemovePermission(ctx context.Context, permissionID int64) error {
	var principalType, principalID string
	err := s.db.QueryRowContext(ctx,
		`SELECT principal_type, principal_id FROM resource_permissions WHERE id = $1`, permissionID,
	).Scan(&principalType, &principalID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("resource permission not found: %d", permissionID)
	}
	if err != nil {
		return fmt.Errorf("failed to look up resource permission: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM resource_permissions WHERE id = $1`, permissionID); err != nil {
		return fmt.Errorf("failed to remove permission: %w", err)
	}

	return s.bumpPrincipal(ctx, PrincipalType(principalType), principalID)
}

// ListPermissions lists rules of one resource type under a prefix,
// for administration.
func (s *Store) ListPermissions(ctx context.Context, resourceType, pathPrefix string) ([]ResourcePermission, error) {
	normalized, err := NormalizePath(pathPrefix)
	if err != nil {
		return nil, fmt.Errorf("invalid path prefix: %w", err)
	}

	query := `
		SELECT id, resource_type, path_prefix, principal_type, principal_id, capabilities, effect, created_by, created_at
		FROM resource_permissions
		WHERE resource_type = $1
		  AND substr(path_prefix, 1, length($2)) = $2
		ORDER BY path_prefix, id
	`

	rows, err := s.db.QueryContext(ctx, query, resourceType, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	var perms []ResourcePermission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, *p)
	}
	return perms, rows.Err()
}

// bumpPrincipal invalidates the scope a permission rule can affect:
// exactly one user, one team's members, or (wildcard) everyone.
func (s *Store) bumpPrincipal(ctx context.Context, pt PrincipalType, principalID string) error {
	switch pt {
	case PrincipalUser:
		return s.gens.BumpUser(ctx, principalID)
	case PrincipalTeam:
		return s.gens.BumpTeam(ctx, principalID)
	default:
		return s.gens.BumpGlobal(ctx)
	}
}

// CreateTeam records a team. Identity provisioning normally owns
// this; the write exists for administration tooling and tests.
func (s *Store) CreateTeam(ctx context.Context, team *Team) error {
	query := `
		INSERT INTO teams (id, name, description, created_at)
		VALUES ($1, $2, $3, $4)
	`

	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, query, team.ID, team.Name, team.Description, now); err != nil {
		return fmt.Errorf("failed to create team: %w", err)
	}
	team.CreatedAt = now
	return nil
}

// GetTeam retrieves a team by ID.
func (s *Store) GetTeam(ctx context.Context, teamID string) (*Team, error) {
	query := `SELECT id, name, description, created_at FROM teams WHERE id = $1`

	var team Team
	err := s.db.QueryRowContext(ctx, query, teamID).Scan(&team.ID, &team.Name, &team.Description, &team.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("team not found: %s", teamID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return &team, nil
}

// AddTeamMember adds a user to a team with a team role.
func (s *Store) AddTeamMember(ctx context.Context, member *TeamMember) error {
	switch member.Role {
	case TeamRoleOwner, TeamRoleMember:
	case "":
		member.Role = TeamRoleMember
	default:
		return fmt.Errorf("unknown team role: %q", member.Role)
	}

	query := `
		INSERT INTO team_members (team_id, user_id, role, added_by, added_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, query, member.TeamID, member.UserID, string(member.Role), member.AddedBy, now); err != nil {
		return fmt.Errorf("failed to add team member: %w", err)
	}
	member.AddedAt = now

	if err := s.gens.BumpTeam(ctx, member.TeamID); err != nil {
		return err
	}
	return s.gens.BumpUser(ctx, member.UserID)
}

// RemoveTeamMember removes a user from a team. Team-context role
// assignments for that team are removed with the membership, keeping
// the assignment invariant intact.
func (s *Store) RemoveTeamMember(ctx context.Context, teamID, userID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM team_members WHERE team_id = $1 AND user_id = $2`, teamID, userID); err != nil {
		return fmt.Errorf("failed to remove team member: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM role_assignments WHERE user_id = $1 AND context_type = $2 AND context_id = $3`,
		userID, string(ContextTeam), teamID); err != nil {
		return fmt.Errorf("failed to remove team role assignments: %w", err)
	}

	if err := s.gens.BumpTeam(ctx, teamID); err != nil {
		return err
	}
	return s.gens.BumpUser(ctx, userID)
}

// IsTeamMember reports whether a user belongs to a team.
func (s *Store) IsTeamMember(ctx context.Context, teamID, userID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM team_members WHERE team_id = $1 AND user_id = $2`, teamID, userID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check team membership: %w", err)
	}
	return true, nil
}

// TeamMembers lists a team's members.
func (s *Store) TeamMembers(ctx context.Context, teamID string) ([]TeamMember, error) {
	query := `
		SELECT team_id, user_id, role, added_by, added_at
		FROM team_members
		WHERE team_id = $1
		ORDER BY added_at
	`

	rows, err := s.db.QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list team members: %w", err)
	}
	defer rows.Close()

	var members []TeamMember
	for rows.Next() {
		var m TeamMember
		var role string
		var addedBy sql.NullString

		if err := rows.Scan(&m.TeamID, &m.UserID, &role, &addedBy, &m.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan team member: %w", err)
		}
		m.Role = TeamRole(role)
		if addedBy.Valid {
			ab := addedBy.String
			m.AddedBy = &ab
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// scanPermission scans a resource permission row.
func scanPermission(scanner interface {
	Scan(dest ...interface{}) error
}) (*ResourcePermission, error) {
	var p ResourcePermission
	var principalType, effect, capsJSON string
	var createdBy sql.NullString

	err := scanner.Scan(
		&p.ID,
		&p.ResourceType,
		&p.PathPrefix,
		&principalType,
		&p.PrincipalID,
		&capsJSON,
		&effect,
		&createdBy,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan permission: %w", err)
	}

	p.PrincipalType = PrincipalType(principalType)
	p.Effect = Effect(effect)
	if createdBy.Valid {
		cb := createdBy.String
		p.CreatedBy = &cb
	}
	if err := json.Unmarshal([]byte(capsJSON), &p.Capabilities); err != nil {
		return nil, fmt.Errorf("corrupt capabilities for permission %d: %w", p.ID, err)
	}
	return &p, nil
}
