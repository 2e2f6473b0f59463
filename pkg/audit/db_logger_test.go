package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock
}

var searchColumns = []string{
	"id", "timestamp", "event_type", "status",
	"actor_id", "resource_type", "resource_id", "resource_path",
	"request_id", "ip_address", "user_agent",
	"method", "http_path", "status_code",
	"message", "error_message", "details", "changes",
}

func TestNewDBLogger(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		db, _ := setupMockDB(t)
		defer db.Close()

		logger, err := NewDBLogger(db)
		require.NoError(t, err)
		assert.NotNil(t, logger)
	})

	t.Run("nil database", func(t *testing.T) {
		logger, err := NewDBLogger(nil)
		assert.Error(t, err)
		assert.Nil(t, logger)
		assert.Contains(t, err.Error(), "database connection is required")
	})
}

func TestDBLogger_Log(t *testing.T) {
	t.Run("success - basic event", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		event := &AuditEvent{
			Timestamp:    time.Now().UTC(),
			EventType:    EventTypeGrantCreate,
			Status:       EventStatusSuccess,
			ActorID:      "6a1f0c3e-8f7d-4c3a-9d64-2f8f3a6f0b11",
			ResourceType: ResourceTypeGrant,
			ResourceID:   "grant-123",
			ResourcePath: "org.eng",
			IPAddress:    "192.168.1.1",
			UserAgent:    "Mozilla/5.0",
			RequestID:    "req-123",
			Method:       "POST",
			HTTPPath:     "/api/v1/grants",
			StatusCode:   201,
			Message:      "Grant created",
			Details:      map[string]interface{}{"role": "manager"},
		}

		mock.ExpectQuery("INSERT INTO audit_events").
			WithArgs(
				sqlmock.AnyArg(), event.EventType, event.Status,
				event.ActorID, event.ResourceType, event.ResourceID, event.ResourcePath,
				event.RequestID, event.IPAddress, event.UserAgent,
				event.Method, event.HTTPPath, event.StatusCode,
				event.Message, event.ErrorMessage, sqlmock.AnyArg(), sqlmock.AnyArg(),
			).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

		err := logger.Log(ctx, event)
		assert.NoError(t, err)
		assert.Equal(t, int64(1), event.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success - with changes", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		changes := &ChangeDetails{
			Before: map[string]interface{}{"path": "org.eng"},
			After:  map[string]interface{}{"path": "holding.eng"},
		}

		event := &AuditEvent{
			Timestamp:    time.Now().UTC(),
			EventType:    EventTypeNodeMove,
			Status:       EventStatusSuccess,
			ResourceType: ResourceTypeNode,
			ResourceID:   "node-123",
			ResourcePath: "holding.eng",
			Message:      "Subtree moved",
			Changes:      changes,
			Details:      map[string]interface{}{},
		}

		detailsJSON, _ := json.Marshal(event.Details)
		changesJSON, _ := json.Marshal(event.Changes)

		mock.ExpectQuery("INSERT INTO audit_events").
			WithArgs(
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), detailsJSON, changesJSON,
			).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))

		err := logger.Log(ctx, event)
		assert.NoError(t, err)
		assert.Equal(t, int64(2), event.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("details marshal error", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		event := &AuditEvent{
			Timestamp: time.Now().UTC(),
			EventType: EventTypeAccessCheck,
			Status:    EventStatusSuccess,
			Details: map[string]interface{}{
				"invalid": make(chan int), // channels can't be marshaled to JSON
			},
		}

		err := logger.Log(ctx, event)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to marshal details")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("changes marshal error", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		event := &AuditEvent{
			Timestamp: time.Now().UTC(),
			EventType: EventTypeNodeUpdate,
			Status:    EventStatusSuccess,
			Changes: &ChangeDetails{
				Before: map[string]interface{}{
					"invalid": make(chan int),
				},
			},
		}

		err := logger.Log(ctx, event)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to marshal changes")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database insert error", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		event := &AuditEvent{
			Timestamp: time.Now().UTC(),
			EventType: EventTypeAccessCheck,
			Status:    EventStatusSuccess,
		}

		mock.ExpectQuery("INSERT INTO audit_events").
			WillReturnError(errors.New("database error"))

		err := logger.Log(ctx, event)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to insert audit event")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero timestamp gets defaulted", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		event := &AuditEvent{
			EventType: EventTypeAccessCheck,
			Status:    EventStatusSuccess,
		}

		mock.ExpectQuery("INSERT INTO audit_events").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))

		err := logger.Log(ctx, event)
		assert.NoError(t, err)
		assert.False(t, event.Timestamp.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDBLogger_LogNodeMutation(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	logger := &DBLogger{db: db}
	ctx := context.Background()
	actorID := "6a1f0c3e-8f7d-4c3a-9d64-2f8f3a6f0b11"

	changes := &ChangeDetails{
		After: map[string]interface{}{"path": "org.eng.platform"},
	}

	mock.ExpectQuery("INSERT INTO audit_events").
		WithArgs(
			sqlmock.AnyArg(), EventTypeNodeCreate, EventStatusSuccess,
			actorID, ResourceTypeNode, "node-123", "org.eng.platform",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			"Node created", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	err := logger.LogNodeMutation(ctx, EventTypeNodeCreate, actorID, "node-123", "org.eng.platform", changes, "Node created")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBLogger_LogGrantMutation(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	logger := &DBLogger{db: db}
	ctx := context.Background()
	actorID := "6a1f0c3e-8f7d-4c3a-9d64-2f8f3a6f0b11"

	mock.ExpectQuery("INSERT INTO audit_events").
		WithArgs(
			sqlmock.AnyArg(), EventTypeGrantRevoke, EventStatusSuccess,
			actorID, ResourceTypeGrant, "grant-456", "org.sales",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			"Grant revoked", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	err := logger.LogGrantMutation(ctx, EventTypeGrantRevoke, actorID, "grant-456", "org.sales", nil, "Grant revoked")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBLogger_LogAccessDecision(t *testing.T) {
	t.Run("allowed", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		mock.ExpectQuery("INSERT INTO audit_events").
			WithArgs(
				sqlmock.AnyArg(), EventTypeAccessCheck, EventStatusSuccess,
				sqlmock.AnyArg(), ResourceTypeNode, sqlmock.AnyArg(), "org.eng",
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

		err := logger.LogAccessDecision(ctx, "actor-1", "org.eng", true, "direct grant at \"org.eng\"")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("denied", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		mock.ExpectQuery("INSERT INTO audit_events").
			WithArgs(
				sqlmock.AnyArg(), EventTypeAccessDenied, EventStatusDenied,
				sqlmock.AnyArg(), ResourceTypeNode, sqlmock.AnyArg(), "org.finance",
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))

		err := logger.LogAccessDecision(ctx, "actor-1", "org.finance", false, "no grant covers path \"org.finance\"")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDBLogger_LogUserMutation(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	logger := &DBLogger{db: db}
	ctx := context.Background()

	mock.ExpectQuery("INSERT INTO audit_events").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	err := logger.LogUserMutation(ctx, EventTypeUserCreate, "actor-1", "user-789", nil, "User registered")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBLogger_LogIntegrityFinding(t *testing.T) {
	t.Run("error severity maps to failure", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		mock.ExpectQuery("INSERT INTO audit_events").
			WithArgs(
				sqlmock.AnyArg(), EventTypeIntegrityFinding, EventStatusFailure,
				sqlmock.AnyArg(), ResourceTypeHierarchy, "node-1", "org.eng.backend",
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

		err := logger.LogIntegrityFinding(ctx, "node-1", "org.eng.backend", "error", "orphaned path: parent prefix missing")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("warning severity maps to success", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		mock.ExpectQuery("INSERT INTO audit_events").
			WithArgs(
				sqlmock.AnyArg(), EventTypeIntegrityFinding, EventStatusSuccess,
				sqlmock.AnyArg(), ResourceTypeHierarchy, "node-2", "org.sales",
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))

		err := logger.LogIntegrityFinding(ctx, "node-2", "org.sales", "warning", "level does not match path depth")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDBLogger_Search(t *testing.T) {
	t.Run("no filters", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		rows := sqlmock.NewRows(searchColumns).AddRow(
			1, time.Now(), EventTypeGrantCreate, EventStatusSuccess,
			"6a1f0c3e-8f7d-4c3a-9d64-2f8f3a6f0b11", ResourceTypeGrant, "grant-123", "org.eng",
			"req-123", "192.168.1.1", "Mozilla/5.0",
			"POST", "/api/v1/grants", 201,
			"Grant created", "", []byte(`{"role":"manager"}`), nil,
		)

		mock.ExpectQuery("SELECT (.+) FROM audit_events WHERE 1=1 ORDER BY timestamp DESC").
			WillReturnRows(rows)

		events, err := logger.Search(ctx, SearchFilter{})
		assert.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, int64(1), events[0].ID)
		assert.Equal(t, EventTypeGrantCreate, events[0].EventType)
		assert.Equal(t, "org.eng", events[0].ResourcePath)
		assert.Equal(t, 201, events[0].StatusCode)
		assert.Equal(t, "manager", events[0].Details["role"])
		assert.Nil(t, events[0].Changes)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("with time filters", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		startTime := time.Now().UTC().Add(-24 * time.Hour)
		endTime := time.Now().UTC()

		mock.ExpectQuery(`SELECT (.+) FROM audit_events WHERE 1=1 AND timestamp >= \$1 AND timestamp <= \$2`).
			WithArgs(startTime, endTime, 100).
			WillReturnRows(sqlmock.NewRows(searchColumns))

		filter := SearchFilter{
			StartTime: &startTime,
			EndTime:   &endTime,
		}

		events, err := logger.Search(ctx, filter)
		assert.NoError(t, err)
		assert.NotNil(t, events)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("with actor filter", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		mock.ExpectQuery(`SELECT (.+) FROM audit_events WHERE 1=1 AND actor_id = \$1`).
			WithArgs("6a1f0c3e-8f7d-4c3a-9d64-2f8f3a6f0b11", 100).
			WillReturnRows(sqlmock.NewRows(searchColumns))

		filter := SearchFilter{
			ActorID: "6a1f0c3e-8f7d-4c3a-9d64-2f8f3a6f0b11",
		}

		events, err := logger.Search(ctx, filter)
		assert.NoError(t, err)
		assert.NotNil(t, events)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("with event types filter", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		mock.ExpectQuery(`SELECT (.+) FROM audit_events WHERE 1=1 AND event_type IN \(\$1, \$2\)`).
			WithArgs(string(EventTypeGrantCreate), string(EventTypeGrantRevoke), 100).
			WillReturnRows(sqlmock.NewRows(searchColumns))

		filter := SearchFilter{
			EventTypes: []EventType{EventTypeGrantCreate, EventTypeGrantRevoke},
		}

		events, err := logger.Search(ctx, filter)
		assert.NoError(t, err)
		assert.NotNil(t, events)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("with status filter", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		status := EventStatusDenied

		mock.ExpectQuery(`SELECT (.+) FROM audit_events WHERE 1=1 AND status = \$1`).
			WithArgs(string(status), 100).
			WillReturnRows(sqlmock.NewRows(searchColumns))

		filter := SearchFilter{
			Status: &status,
		}

		events, err := logger.Search(ctx, filter)
		assert.NoError(t, err)
		assert.NotNil(t, events)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("with resource filters", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		mock.ExpectQuery(`SELECT (.+) FROM audit_events WHERE 1=1 AND resource_type = \$1 AND resource_id = \$2`).
			WithArgs(string(ResourceTypeNode), "node-123", 100).
			WillReturnRows(sqlmock.NewRows(searchColumns))

		filter := SearchFilter{
			ResourceType: ResourceTypeNode,
			ResourceID:   "node-123",
		}

		events, err := logger.Search(ctx, filter)
		assert.NoError(t, err)
		assert.NotNil(t, events)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("with resource path prefix", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		mock.ExpectQuery(`SELECT (.+) FROM audit_events WHERE 1=1 AND \(resource_path = \$1 OR resource_path LIKE \$2 ESCAPE`).
			WithArgs("org.eng", `org.eng.%`, 100).
			WillReturnRows(sqlmock.NewRows(searchColumns))

		filter := SearchFilter{
			ResourcePathPrefix: "org.eng",
		}

		events, err := logger.Search(ctx, filter)
		assert.NoError(t, err)
		assert.NotNil(t, events)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("with limit and offset", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		mock.ExpectQuery(`SELECT (.+) FROM audit_events WHERE 1=1 ORDER BY timestamp DESC, id DESC LIMIT \$1 OFFSET \$2`).
			WithArgs(10, 20).
			WillReturnRows(sqlmock.NewRows(searchColumns))

		filter := SearchFilter{
			Limit:  10,
			Offset: 20,
		}

		events, err := logger.Search(ctx, filter)
		assert.NoError(t, err)
		assert.NotNil(t, events)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query error", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		mock.ExpectQuery("SELECT (.+) FROM audit_events").
			WillReturnError(errors.New("database error"))

		events, err := logger.Search(ctx, SearchFilter{})
		assert.Error(t, err)
		assert.Nil(t, events)
		assert.Contains(t, err.Error(), "failed to search audit events")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDBLogger_PurgeOlderThan(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()
		cutoff := time.Now().UTC().Add(-90 * 24 * time.Hour)

		mock.ExpectExec("DELETE FROM audit_events WHERE timestamp <").
			WithArgs(cutoff).
			WillReturnResult(sqlmock.NewResult(0, 42))

		purged, err := logger.PurgeOlderThan(ctx, cutoff)
		assert.NoError(t, err)
		assert.Equal(t, int64(42), purged)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("delete error", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		mock.ExpectExec("DELETE FROM audit_events").
			WillReturnError(errors.New("database error"))

		purged, err := logger.PurgeOlderThan(ctx, time.Now())
		assert.Error(t, err)
		assert.Equal(t, int64(0), purged)
		assert.Contains(t, err.Error(), "failed to purge audit events")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestEscapeLikePrefix(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"org.eng", `org.eng.%`},
		{"org.x_y", `org.x\_y.%`},
		{"org.100%", `org.100\%.%`},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, escapeLikePrefix(tt.input), "input %q", tt.input)
	}
}
