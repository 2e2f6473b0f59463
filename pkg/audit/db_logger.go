package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DBLogger implements audit logging to the database
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a new database-backed audit logger. The audit_events
// table must exist; run RunMigrations first.
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBLogger{db: db}, nil
}

// Log logs an audit event to the database
func (l *DBLogger) Log(ctx context.Context, event *AuditEvent) error {
	var detailsJSON, changesJSON []byte
	var err error

	if event.Details != nil {
		detailsJSON, err = json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal details: %w", err)
		}
	}
	if event.Changes != nil {
		changesJSON, err = json.Marshal(event.Changes)
		if err != nil {
			return fmt.Errorf("failed to marshal changes: %w", err)
		}
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	var actorID interface{}
	if event.ActorID != "" {
		actorID = event.ActorID
	}

	query := `
		INSERT INTO audit_events (
			timestamp, event_type, status,
			actor_id, resource_type, resource_id, resource_path,
			request_id, ip_address, user_agent,
			method, http_path, status_code,
			message, error_message, details, changes
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7,
			$8, $9, $10,
			$11, $12, $13,
			$14, $15, $16, $17
		) RETURNING id
	`

	err = l.db.QueryRowContext(ctx, query,
		event.Timestamp, event.EventType, event.Status,
		actorID, event.ResourceType, event.ResourceID, event.ResourcePath,
		event.RequestID, event.IPAddress, event.UserAgent,
		event.Method, event.HTTPPath, event.StatusCode,
		event.Message, event.ErrorMessage, detailsJSON, changesJSON,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}

	return nil
}

// LogNodeMutation logs a hierarchy mutation event
func (l *DBLogger) LogNodeMutation(ctx context.Context, eventType EventType, actorID, nodeID, nodePath string, changes *ChangeDetails, message string) error {
	event := buildBaseEvent(ctx, nil, eventType, EventStatusSuccess)
	if actorID != "" {
		event.ActorID = actorID
	}
	event.ResourceType = ResourceTypeNode
	event.ResourceID = nodeID
	event.ResourcePath = nodePath
	event.Changes = changes
	event.Message = message

	return l.Log(ctx, event)
}

// LogGrantMutation logs a grant lifecycle event
func (l *DBLogger) LogGrantMutation(ctx context.Context, eventType EventType, actorID, grantID, nodePath string, changes *ChangeDetails, message string) error {
	event := buildBaseEvent(ctx, nil, eventType, EventStatusSuccess)
	if actorID != "" {
		event.ActorID = actorID
	}
	event.ResourceType = ResourceTypeGrant
	event.ResourceID = grantID
	event.ResourcePath = nodePath
	event.Changes = changes
	event.Message = message

	return l.Log(ctx, event)
}

// LogAccessDecision logs the outcome of a point access check
func (l *DBLogger) LogAccessDecision(ctx context.Context, actorID, targetPath string, allowed bool, reason string) error {
	eventType := EventTypeAccessCheck
	status := EventStatusSuccess
	if !allowed {
		eventType = EventTypeAccessDenied
		status = EventStatusDenied
	}

	event := buildBaseEvent(ctx, nil, eventType, status)
	if actorID != "" {
		event.ActorID = actorID
	}
	event.ResourceType = ResourceTypeNode
	event.ResourcePath = targetPath
	event.Message = reason

	return l.Log(ctx, event)
}

// LogUserMutation logs a directory user event
func (l *DBLogger) LogUserMutation(ctx context.Context, eventType EventType, actorID, userID string, changes *ChangeDetails, message string) error {
	event := buildBaseEvent(ctx, nil, eventType, EventStatusSuccess)
	if actorID != "" {
		event.ActorID = actorID
	}
	event.ResourceType = ResourceTypeUser
	event.ResourceID = userID
	event.Changes = changes
	event.Message = message

	return l.Log(ctx, event)
}

// LogIntegrityFinding logs one hierarchy integrity anomaly
func (l *DBLogger) LogIntegrityFinding(ctx context.Context, nodeID, nodePath, severity, message string) error {
	status := EventStatusFailure
	if severity == "warning" {
		status = EventStatusSuccess
	}

	event := buildBaseEvent(ctx, nil, EventTypeIntegrityFinding, status)
	event.ResourceType = ResourceTypeHierarchy
	event.ResourceID = nodeID
	event.ResourcePath = nodePath
	event.Message = message
	event.Details["severity"] = severity

	return l.Log(ctx, event)
}

// escapeLikePrefix builds a LIKE pattern matching path itself or anything
// under it, with LIKE metacharacters escaped.
func escapeLikePrefix(path string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `_`, `\_`, `%`, `\%`).Replace(path)
	return escaped + ".%"
}

// Search searches audit events based on filters
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error) {
	query := `
		SELECT
			id, timestamp, event_type, status,
			actor_id, resource_type, resource_id, resource_path,
			request_id, ip_address, user_agent,
			method, http_path, status_code,
			message, error_message, details, changes
		FROM audit_events
		WHERE 1=1
	`

	args := []interface{}{}
	argCount := 1

	if filter.StartTime != nil {
		query += fmt.Sprintf(" AND timestamp >= $%d", argCount)
		args = append(args, filter.StartTime.UTC())
		argCount++
	}

	if filter.EndTime != nil {
		query += fmt.Sprintf(" AND timestamp <= $%d", argCount)
		args = append(args, filter.EndTime.UTC())
		argCount++
	}

	if filter.ActorID != "" {
		query += fmt.Sprintf(" AND actor_id = $%d", argCount)
		args = append(args, filter.ActorID)
		argCount++
	}

	if len(filter.EventTypes) > 0 {
		placeholders := make([]string, len(filter.EventTypes))
		for i, et := range filter.EventTypes {
			placeholders[i] = fmt.Sprintf("$%d", argCount)
			args = append(args, string(et))
			argCount++
		}
		query += " AND event_type IN (" + strings.Join(placeholders, ", ") + ")"
	}

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, string(*filter.Status))
		argCount++
	}

	if filter.ResourceType != "" {
		query += fmt.Sprintf(" AND resource_type = $%d", argCount)
		args = append(args, string(filter.ResourceType))
		argCount++
	}

	if filter.ResourceID != "" {
		query += fmt.Sprintf(" AND resource_id = $%d", argCount)
		args = append(args, filter.ResourceID)
		argCount++
	}

	if filter.ResourcePathPrefix != "" {
		query += fmt.Sprintf(` AND (resource_path = $%d OR resource_path LIKE $%d ESCAPE '\')`, argCount, argCount+1)
		args = append(args, filter.ResourcePathPrefix, escapeLikePrefix(filter.ResourcePathPrefix))
		argCount += 2
	}

	query += " ORDER BY timestamp DESC, id DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT $%d", argCount)
	args = append(args, limit)
	argCount++

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, filter.Offset)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit events: %w", err)
	}
	defer rows.Close()

	events := make([]*AuditEvent, 0)
	for rows.Next() {
		event := &AuditEvent{}
		var actorID, resourceType, resourceID, resourcePath sql.NullString
		var requestID, ipAddress, userAgent, method, httpPath sql.NullString
		var statusCode sql.NullInt64
		var message, errorMessage sql.NullString
		var detailsJSON, changesJSON []byte

		err := rows.Scan(
			&event.ID, &event.Timestamp, &event.EventType, &event.Status,
			&actorID, &resourceType, &resourceID, &resourcePath,
			&requestID, &ipAddress, &userAgent,
			&method, &httpPath, &statusCode,
			&message, &errorMessage, &detailsJSON, &changesJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}

		event.ActorID = actorID.String
		event.ResourceType = ResourceType(resourceType.String)
		event.ResourceID = resourceID.String
		event.ResourcePath = resourcePath.String
		event.RequestID = requestID.String
		event.IPAddress = ipAddress.String
		event.UserAgent = userAgent.String
		event.Method = method.String
		event.HTTPPath = httpPath.String
		event.StatusCode = int(statusCode.Int64)
		event.Message = message.String
		event.ErrorMessage = errorMessage.String

		if len(detailsJSON) > 0 {
			event.Details = make(map[string]interface{})
			if err := json.Unmarshal(detailsJSON, &event.Details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal details: %w", err)
			}
		}
		if len(changesJSON) > 0 {
			event.Changes = &ChangeDetails{}
			if err := json.Unmarshal(changesJSON, event.Changes); err != nil {
				return nil, fmt.Errorf("failed to unmarshal changes: %w", err)
			}
		}

		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}

	return events, nil
}

// PurgeOlderThan deletes audit events older than the cutoff and returns how
// many were removed. Used by the retention sweep.
func (l *DBLogger) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := l.db.ExecContext(ctx,
		"DELETE FROM audit_events WHERE timestamp < $1", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit events: %w", err)
	}
	purged, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return purged, nil
}

// Close closes the database logger
func (l *DBLogger) Close() error {
	// The database connection is shared, the caller owns it.
	return nil
}
