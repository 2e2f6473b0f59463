package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Hierarchy events
	EventTypeNodeCreate       EventType = "hierarchy.node_create"
	EventTypeNodeUpdate       EventType = "hierarchy.node_update"
	EventTypeNodeMove         EventType = "hierarchy.node_move"
	EventTypeNodeDelete       EventType = "hierarchy.node_delete"
	EventTypeNodeRestore      EventType = "hierarchy.node_restore"
	EventTypeIntegrityFinding EventType = "hierarchy.integrity_finding"

	// Grant events
	EventTypeGrantCreate EventType = "grant.create"
	EventTypeGrantUpdate EventType = "grant.update"
	EventTypeGrantRevoke EventType = "grant.revoke"
	EventTypeGrantExpire EventType = "grant.expire"

	// Access events
	EventTypeAccessCheck    EventType = "access.check"
	EventTypeAccessDenied   EventType = "access.denied"
	EventTypeScopeRead      EventType = "access.scope_read"
	EventTypeDirectoryQuery EventType = "access.directory_query"

	// Directory events
	EventTypeUserCreate EventType = "directory.user_create"
	EventTypeUserUpdate EventType = "directory.user_update"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource an event concerns
type ResourceType string

const (
	ResourceTypeNode      ResourceType = "node"
	ResourceTypeGrant     ResourceType = "grant"
	ResourceTypeUser      ResourceType = "user"
	ResourceTypeHierarchy ResourceType = "hierarchy"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	// Core fields
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor
	ActorID string `json:"actor_id,omitempty"`

	// Resource. ResourcePath holds the node path the event concerns, as it
	// was at event time; paths in older events are historical, not current.
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`
	ResourcePath string       `json:"resource_path,omitempty"`

	// Request context
	RequestID  string `json:"request_id,omitempty"`
	IPAddress  string `json:"ip_address,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	Method     string `json:"method,omitempty"`
	HTTPPath   string `json:"http_path,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`

	// Additional details
	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`

	// Changes tracking (before/after for updates)
	Changes *ChangeDetails `json:"changes,omitempty"`
}

// ChangeDetails tracks before/after values for updates
type ChangeDetails struct {
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *AuditEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an audit event from JSON
func FromJSON(data []byte) (*AuditEvent, error) {
	var event AuditEvent
	err := json.Unmarshal(data, &event)
	return &event, err
}

// SearchFilter represents filters for searching audit events
type SearchFilter struct {
	// Time range
	StartTime *time.Time
	EndTime   *time.Time

	// Actor filter
	ActorID string

	// Event filters
	EventTypes []EventType
	Status     *EventStatus

	// Resource filters
	ResourceType ResourceType
	ResourceID   string
	// ResourcePathPrefix matches events at or under a node path.
	ResourcePathPrefix string

	// Pagination
	Limit  int
	Offset int
}
