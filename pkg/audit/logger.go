package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/platinummonkey/orgscope/pkg/contextkeys"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *AuditEvent) error

	// LogNodeMutation logs a hierarchy mutation event
	LogNodeMutation(ctx context.Context, eventType EventType, actorID, nodeID, nodePath string, changes *ChangeDetails, message string) error

	// LogGrantMutation logs a grant lifecycle event
	LogGrantMutation(ctx context.Context, eventType EventType, actorID, grantID, nodePath string, changes *ChangeDetails, message string) error

	// LogAccessDecision logs the outcome of a point access check
	LogAccessDecision(ctx context.Context, actorID, targetPath string, allowed bool, reason string) error

	// LogUserMutation logs a directory user event
	LogUserMutation(ctx context.Context, eventType EventType, actorID, userID string, changes *ChangeDetails, message string) error

	// LogIntegrityFinding logs one hierarchy integrity anomaly
	LogIntegrityFinding(ctx context.Context, nodeID, nodePath, severity, message string) error

	// Close closes the logger and flushes any buffered events
	Close() error
}

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return contextkeys.WithAuditLogger(ctx, logger)
}

// FromContext retrieves the audit logger from context, or a no-op logger
// if none is set.
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(contextkeys.AuditLoggerKey).(Logger); ok {
		return logger
	}
	return &noOpLogger{}
}

// noOpLogger is a logger that does nothing (used when no logger is configured)
type noOpLogger struct{}

func (l *noOpLogger) Log(ctx context.Context, event *AuditEvent) error {
	return nil
}

func (l *noOpLogger) LogNodeMutation(ctx context.Context, eventType EventType, actorID, nodeID, nodePath string, changes *ChangeDetails, message string) error {
	return nil
}

func (l *noOpLogger) LogGrantMutation(ctx context.Context, eventType EventType, actorID, grantID, nodePath string, changes *ChangeDetails, message string) error {
	return nil
}

func (l *noOpLogger) LogAccessDecision(ctx context.Context, actorID, targetPath string, allowed bool, reason string) error {
	return nil
}

func (l *noOpLogger) LogUserMutation(ctx context.Context, eventType EventType, actorID, userID string, changes *ChangeDetails, message string) error {
	return nil
}

func (l *noOpLogger) LogIntegrityFinding(ctx context.Context, nodeID, nodePath, severity, message string) error {
	return nil
}

func (l *noOpLogger) Close() error {
	return nil
}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger {
	return &noOpLogger{}
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// BuildHTTPEvent creates an audit event populated from the request context
// and HTTP metadata. Callers fill in resource fields before logging it.
func BuildHTTPEvent(ctx context.Context, r *http.Request, eventType EventType, status EventStatus) *AuditEvent {
	return buildBaseEvent(ctx, r, eventType, status)
}

// buildBaseEvent creates a base audit event with common fields populated
func buildBaseEvent(ctx context.Context, r *http.Request, eventType EventType, status EventStatus) *AuditEvent {
	event := &AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		ActorID:   contextkeys.GetActorID(ctx),
		RequestID: contextkeys.GetRequestID(ctx),
		Details:   make(map[string]interface{}),
	}

	if r != nil {
		event.IPAddress = getClientIP(r)
		event.UserAgent = r.UserAgent()
		event.Method = r.Method
		event.HTTPPath = r.URL.Path
	}

	return event
}
