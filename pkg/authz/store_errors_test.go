package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

// Error paths are exercised with sqlmock; the happy paths run against
// sqlite in store_test.go.

func TestStoreRolesForUserQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT role").WillReturnError(errors.New("connection reset"))

	store := NewStore(db, nil)
	_, err = store.RolesForUser(context.Background(), "alice", GlobalContext())
	if err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStoreMatchingPermissionsCorruptCapabilities(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{
		"id", "resource_type", "path_prefix", "principal_type", "principal_id",
		"capabilities", "effect", "created_by", "created_at",
	}).AddRow(int64(1), "kb", "/kb/", "user", "alice", "not-json", "allow", nil, time.Now())

	mock.ExpectQuery("SELECT id, resource_type").WillReturnRows(rows)

	store := NewStore(db, nil)
	_, err = store.MatchingPermissions(context.Background(), "kb", "/kb/shared/doc.md/")
	if err == nil {
		t.Fatal("expected error for corrupt capabilities")
	}
}

func TestStoreGrantInsertError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("INSERT INTO role_assignments").WillReturnError(errors.New("deadlock detected"))

	store := NewStore(db, NewLocalGenerations())
	gens := store.Generations().(*LocalGenerations)

	err = store.Grant(context.Background(), &RoleAssignment{
		UserID: "alice", Role: RoleKBViewer, ContextType: ContextGlobal,
	})
	if err == nil {
		t.Fatal("expected error")
	}

	// A failed write must not bump: nothing changed.
	_, gen, _ := gens.SnapshotUser(context.Background(), "alice")
	if gen != 0 {
		t.Errorf("generation after failed grant = %d, want 0", gen)
	}
}
