package authz

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB opens an in-memory sqlite database with the authz
// schema. The production migrations are Postgres-flavored; tests carry
// an equivalent minimal schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE teams (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE team_members (
			team_id TEXT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
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
			expires_at TIMESTAMP,
			UNIQUE (user_id, role, context_type, context_id)
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
	if err != nil {
		t.Fatalf("Failed to create test tables: %v", err)
	}

	return db
}

// setupTestStore returns a store over an in-memory database with local
// generation counters.
func setupTestStore(t *testing.T) (*Store, *LocalGenerations) {
	t.Helper()
	gens := NewLocalGenerations()
	return NewStore(setupTestDB(t), gens), gens
}

// mustCreateTeam seeds a team and its members.
func mustCreateTeam(t *testing.T, store *Store, teamID string, members ...string) {
	t.Helper()
	ctx := context.Background()
	if err := store.CreateTeam(ctx, &Team{ID: teamID, Name: teamID}); err != nil {
		t.Fatalf("Failed to create team %s: %v", teamID, err)
	}
	for _, userID := range members {
		if err := store.AddTeamMember(ctx, &TeamMember{TeamID: teamID, UserID: userID}); err != nil {
			t.Fatalf("Failed to add %s to %s: %v", userID, teamID, err)
		}
	}
}
