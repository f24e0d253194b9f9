package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// DBLogger writes audit events to the audit_events table, so grant
// history is queryable next to the grants themselves.
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a database audit sink.
func NewDBLogger(db *sql.DB) *DBLogger {
	return &DBLogger{db: db}
}

// EnsureSchema creates the audit_events table if missing.
func (l *DBLogger) EnsureSchema(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_events (
			id VARCHAR(64) PRIMARY KEY,
			timestamp TIMESTAMP NOT NULL,
			event_type VARCHAR(100) NOT NULL,
			actor_id VARCHAR(255) NOT NULL,
			resource_type VARCHAR(255),
			resource_path TEXT,
			action VARCHAR(50),
			decision VARCHAR(20),
			rule_kind VARCHAR(50),
			request_id VARCHAR(64),
			detail TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create audit_events table: %w", err)
	}
	return nil
}

// Log inserts one event.
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	query := `
		INSERT INTO audit_events (id, timestamp, event_type, actor_id, resource_type, resource_path, action, decision, rule_kind, request_id, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := l.db.ExecContext(ctx, query,
		event.ID,
		event.Timestamp,
		string(event.Type),
		event.ActorID,
		event.ResourceType,
		event.ResourcePath,
		event.Action,
		event.Decision,
		event.RuleKind,
		event.RequestID,
		event.Detail,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Close is a no-op; the connection pool is owned by the caller.
func (l *DBLogger) Close() error { return nil }

// RecentEvents returns the newest events for an actor, for the admin
// surface.
func (l *DBLogger) RecentEvents(ctx context.Context, actorID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, timestamp, event_type, actor_id, resource_type, resource_path, action, decision, rule_kind, request_id, detail
		FROM audit_events
		WHERE actor_id = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`

	rows, err := l.db.QueryContext(ctx, query, actorID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var eventType string
		var resourceType, resourcePath, action, decision, ruleKind, requestID, detail sql.NullString

		err := rows.Scan(&e.ID, &e.Timestamp, &eventType, &e.ActorID,
			&resourceType, &resourcePath, &action, &decision, &ruleKind, &requestID, &detail)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.Type = EventType(eventType)
		e.ResourceType = resourceType.String
		e.ResourcePath = resourcePath.String
		e.Action = action.String
		e.Decision = decision.String
		e.RuleKind = ruleKind.String
		e.RequestID = requestID.String
		e.Detail = detail.String
		events = append(events, e)
	}
	return events, rows.Err()
}
