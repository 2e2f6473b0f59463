package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/platinummonkey/orgscope/pkg/async"
)

// asyncWriteTimeout bounds one detached sink write.
const asyncWriteTimeout = 10 * time.Second

// MultiLogger logs to multiple audit loggers simultaneously
type MultiLogger struct {
	loggers []Logger
	async   bool // If true, log asynchronously
	wg      sync.WaitGroup
	errChan chan error
}

// NewMultiLogger creates a new multi-logger that writes to multiple destinations
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{
		loggers: loggers,
		async:   true,
		errChan: make(chan error, len(loggers)),
	}
}

// SetAsync sets whether logging should be asynchronous
func (m *MultiLogger) SetAsync(async bool) {
	m.async = async
}

// Log logs an audit event to all configured loggers
func (m *MultiLogger) Log(ctx context.Context, event *AuditEvent) error {
	if len(m.loggers) == 0 {
		return nil
	}

	if m.async {
		return m.logAsync(ctx, event)
	}

	return m.logSync(ctx, event)
}

// logSync logs synchronously to all loggers
func (m *MultiLogger) logSync(ctx context.Context, event *AuditEvent) error {
	var firstErr error

	for _, logger := range m.loggers {
		if err := logger.Log(ctx, event); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			// Continue logging to other loggers even if one fails
		}
	}

	return firstErr
}

// logAsync logs asynchronously to all loggers. The writes run on a context
// detached from the request, so an audit record survives the response that
// triggered it.
func (m *MultiLogger) logAsync(ctx context.Context, event *AuditEvent) error {
	detached := context.WithoutCancel(ctx)
	for _, logger := range m.loggers {
		m.wg.Add(1)
		async.SafeGo(detached, asyncWriteTimeout, "audit fan-out", func(ctx context.Context) error {
			defer m.wg.Done()
			if err := logger.Log(ctx, event); err != nil {
				select {
				case m.errChan <- err:
				default:
					// Channel full, drop error
				}
			}
			// Failures are reported through errChan, not SafeGo's log.
			return nil
		})
	}

	return nil
}

// LogNodeMutation logs a hierarchy mutation event
func (m *MultiLogger) LogNodeMutation(ctx context.Context, eventType EventType, actorID, nodeID, nodePath string, changes *ChangeDetails, message string) error {
	event := buildBaseEvent(ctx, nil, eventType, EventStatusSuccess)
	if actorID != "" {
		event.ActorID = actorID
	}
	event.ResourceType = ResourceTypeNode
	event.ResourceID = nodeID
	event.ResourcePath = nodePath
	event.Changes = changes
	event.Message = message

	return m.Log(ctx, event)
}

// LogGrantMutation logs a grant lifecycle event
func (m *MultiLogger) LogGrantMutation(ctx context.Context, eventType EventType, actorID, grantID, nodePath string, changes *ChangeDetails, message string) error {
	event := buildBaseEvent(ctx, nil, eventType, EventStatusSuccess)
	if actorID != "" {
		event.ActorID = actorID
	}
	event.ResourceType = ResourceTypeGrant
	event.ResourceID = grantID
	event.ResourcePath = nodePath
	event.Changes = changes
	event.Message = message

	return m.Log(ctx, event)
}

// LogAccessDecision logs the outcome of a point access check
func (m *MultiLogger) LogAccessDecision(ctx context.Context, actorID, targetPath string, allowed bool, reason string) error {
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

	return m.Log(ctx, event)
}

// LogUserMutation logs a directory user event
func (m *MultiLogger) LogUserMutation(ctx context.Context, eventType EventType, actorID, userID string, changes *ChangeDetails, message string) error {
	event := buildBaseEvent(ctx, nil, eventType, EventStatusSuccess)
	if actorID != "" {
		event.ActorID = actorID
	}
	event.ResourceType = ResourceTypeUser
	event.ResourceID = userID
	event.Changes = changes
	event.Message = message

	return m.Log(ctx, event)
}

// LogIntegrityFinding logs one hierarchy integrity anomaly
func (m *MultiLogger) LogIntegrityFinding(ctx context.Context, nodeID, nodePath, severity, message string) error {
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

	return m.Log(ctx, event)
}

// Wait waits for all async logging operations to complete
func (m *MultiLogger) Wait() {
	m.wg.Wait()
}

// GetErrors returns any errors that occurred during async logging
func (m *MultiLogger) GetErrors() []error {
	var errors []error
	for {
		select {
		case err := <-m.errChan:
			errors = append(errors, err)
		default:
			return errors
		}
	}
}

// Close closes all loggers
func (m *MultiLogger) Close() error {
	// Wait for any pending async operations
	m.wg.Wait()

	var firstErr error
	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to close logger: %w", err)
			}
		}
	}

	close(m.errChan)
	return firstErr
}
