package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Vrooli/agent-s2/api/schemas"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func newMockStore(t *testing.T, logger *zap.Logger) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)
	mockPool.ExpectPing()
	s, err := New(context.Background(), mockPool, logger)
	require.NoError(t, err)
	return s, mockPool
}

func sampleEvent() schemas.SecurityEvent {
	return schemas.SecurityEvent{
		ID:        "evt-1",
		SessionID: "sess-1",
		Timestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600)),
		EventType: "action_executed",
		Severity:  schemas.SeverityHigh,
		Source:    "executor",
		Target:    "terminal",
		Action:    "type",
		RiskScore: 50,
		Patterns:  []string{"privilege:sudo"},
		Details:   map[string]interface{}{"text": "sudo ls"},
	}
}

func TestNewStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestEnsureSchema(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())
	mockPool.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS security_events")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestInsertSecurityEvent(t *testing.T) {
	t.Run("should write UTC timestamp and encoded details", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		e := sampleEvent()

		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertEvent)).
			WithArgs(e.ID, e.SessionID, e.Timestamp.UTC(), e.EventType, "high", e.Source, e.Target, e.Action,
				50, []string{"privilege:sudo"}, []byte(`{"text":"sudo ls"}`)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, s.InsertSecurityEvent(context.Background(), e))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should default empty details and patterns", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		e := sampleEvent()
		e.Details = nil
		e.Patterns = nil

		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertEvent)).
			WithArgs(e.ID, e.SessionID, e.Timestamp.UTC(), e.EventType, "high", e.Source, e.Target, e.Action,
				50, []string{}, []byte("{}")).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, s.InsertSecurityEvent(context.Background(), e))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should wrap database errors", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		dbErr := errors.New("connection reset")
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertEvent)).WillReturnError(dbErr)

		err := s.InsertSecurityEvent(context.Background(), sampleEvent())
		assert.ErrorIs(t, err, dbErr)
	})
}

func TestInsertSecurityEvents(t *testing.T) {
	t.Run("should copy all events and commit without rollback errors", func(t *testing.T) {
		observedZapCore, observedLogs := observer.New(zapcore.ErrorLevel)
		s, mockPool := newMockStore(t, zap.New(observedZapCore))

		second := sampleEvent()
		second.ID = "evt-2"

		mockPool.ExpectBegin()
		mockPool.ExpectCopyFrom(pgx.Identifier{"security_events"}, eventColumns).WillReturnResult(2)
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.InsertSecurityEvents(context.Background(), []schemas.SecurityEvent{sampleEvent(), second}))
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Empty(t, observedLogs.All(), "Expected no errors logged on successful commit")
	})

	t.Run("should fail on count mismatch", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())

		mockPool.ExpectBegin()
		mockPool.ExpectCopyFrom(pgx.Identifier{"security_events"}, eventColumns).WillReturnResult(0)
		mockPool.ExpectRollback()

		err := s.InsertSecurityEvents(context.Background(), []schemas.SecurityEvent{sampleEvent()})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mismatch")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should do nothing for an empty slice", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		require.NoError(t, s.InsertSecurityEvents(context.Background(), nil))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestSaveTaskRecord(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := TaskRecord{
		TaskID:     "task-1",
		Task:       "open firefox",
		Success:    true,
		Summary:    "1 of 1 actions succeeded",
		StartedAt:  started,
		FinishedAt: started.Add(5 * time.Second),
		Actions:    []ActionRecord{{Type: "launch_app", Status: "success"}},
	}

	mockPool.ExpectBegin()
	mockPool.ExpectExec("INSERT INTO task_records").
		WithArgs(rec.TaskID, rec.Task, true, rec.Summary, "", rec.StartedAt, rec.FinishedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockPool.ExpectExec("DELETE FROM task_actions").
		WithArgs(rec.TaskID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	batch := mockPool.ExpectBatch()
	batch.ExpectExec("INSERT INTO task_actions").
		WithArgs(rec.TaskID, 0, "launch_app", "success", []byte("{}")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockPool.ExpectCommit()
	mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

	require.NoError(t, s.SaveTaskRecord(context.Background(), rec))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSecurityEventsSince(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	at := since.Add(time.Hour)

	rows := pgxmock.NewRows(eventColumns).
		AddRow("evt-1", "sess-1", at, "action_executed", "critical", "executor", "terminal", "type",
			90, []string{"shell:recursive_delete"}, []byte(`{"text":"rm -rf /"}`))
	mockPool.ExpectQuery("SELECT id, session_id").WithArgs(since, 40).WillReturnRows(rows)

	events, err := s.SecurityEventsSince(context.Background(), since, 40)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, schemas.SeverityCritical, events[0].Severity)
	assert.Equal(t, "rm -rf /", events[0].Details["text"])
	assert.Equal(t, []string{"shell:recursive_delete"}, events[0].Patterns)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
