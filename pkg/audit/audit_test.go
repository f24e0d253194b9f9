package audit

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	event := NewEvent(EventTypeRoleGrant, "admin")
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Timestamp.IsZero())
	assert.Equal(t, EventTypeRoleGrant, event.Type)
	assert.Equal(t, "admin", event.ActorID)

	other := NewEvent(EventTypeRoleGrant, "admin")
	assert.NotEqual(t, event.ID, other.ID)
}

func TestFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "events.jsonl")
	logger, err := NewFileLogger(path)
	require.NoError(t, err)

	ctx := context.Background()
	first := NewEvent(EventTypeAccessDenied, "alice")
	first.ResourcePath = "/kb/users/bob/notes.md"
	first.Decision = "deny"
	require.NoError(t, logger.Log(ctx, first))
	require.NoError(t, logger.Log(ctx, NewEvent(EventTypeRoleGrant, "admin")))
	require.NoError(t, logger.Close())

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var events []Event
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var e Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		events = append(events, e)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, events, 2)
	assert.Equal(t, EventTypeAccessDenied, events[0].Type)
	assert.Equal(t, "/kb/users/bob/notes.md", events[0].ResourcePath)
	assert.Equal(t, EventTypeRoleGrant, events[1].Type)
}

func TestFileLoggerReopensAfterRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	logger, err := NewFileLogger(path)
	require.NoError(t, err)
	defer logger.Close()

	ctx := context.Background()
	require.NoError(t, logger.Log(ctx, NewEvent(EventTypeRoleGrant, "admin")))

	// Simulate logrotate moving the file away.
	require.NoError(t, os.Remove(path))
	require.NoError(t, logger.Log(ctx, NewEvent(EventTypeRoleRevoke, "admin")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var e Event
	require.NoError(t, json.Unmarshal(data, &e))
	assert.Equal(t, EventTypeRoleRevoke, e.Type)
}

type failingSink struct{ err error }

func (s *failingSink) Log(context.Context, *Event) error { return s.err }
func (s *failingSink) Close() error                      { return s.err }

type countingSink struct{ logged int }

func (s *countingSink) Log(context.Context, *Event) error { s.logged++; return nil }
func (s *countingSink) Close() error                      { return nil }

func TestMultiLoggerFanOut(t *testing.T) {
	a := &countingSink{}
	b := &countingSink{}
	multi := NewMultiLogger(a, b)

	require.NoError(t, multi.Log(context.Background(), NewEvent(EventTypeDecision, "alice")))
	assert.Equal(t, 1, a.logged)
	assert.Equal(t, 1, b.logged)
}

func TestMultiLoggerDoesNotShortCircuit(t *testing.T) {
	boom := errors.New("disk full")
	healthy := &countingSink{}
	multi := NewMultiLogger(&failingSink{err: boom}, healthy)

	err := multi.Log(context.Background(), NewEvent(EventTypeDecision, "alice"))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, healthy.logged, "healthy sink must still receive the event")
}

func TestDBLogger(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	logger := NewDBLogger(db)
	require.NoError(t, logger.EnsureSchema(ctx))
	// EnsureSchema is idempotent.
	require.NoError(t, logger.EnsureSchema(ctx))

	event := NewEvent(EventTypePermissionGrant, "admin")
	event.ResourceType = "kb"
	event.ResourcePath = "/kb/shared/specs/"
	event.Detail = "granted read,write to dave"
	require.NoError(t, logger.Log(ctx, event))
	require.NoError(t, logger.Log(ctx, NewEvent(EventTypeDecision, "alice")))

	events, err := logger.RecentEvents(ctx, "admin", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, event.ID, events[0].ID)
	assert.Equal(t, EventTypePermissionGrant, events[0].Type)
	assert.Equal(t, "/kb/shared/specs/", events[0].ResourcePath)
	assert.Equal(t, "granted read,write to dave", events[0].Detail)
}
