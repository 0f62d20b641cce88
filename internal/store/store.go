package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/Vrooli/agent-s2/api/schemas"
)

// DBPool abstracts pgxpool.Pool so tests can run against pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

var _ DBPool = (*pgxpool.Pool)(nil)

// SchemaSQL creates the tables Store writes to.
const SchemaSQL = `
CREATE TABLE IF NOT EXISTS security_events (
    id          TEXT PRIMARY KEY,
    session_id  TEXT NOT NULL,
    occurred_at TIMESTAMPTZ NOT NULL,
    event_type  TEXT NOT NULL,
    severity    TEXT NOT NULL,
    source      TEXT NOT NULL,
    target      TEXT NOT NULL,
    action      TEXT NOT NULL,
    risk_score  INTEGER NOT NULL,
    patterns    TEXT[] NOT NULL DEFAULT '{}',
    details     JSONB NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS security_events_occurred_at_idx ON security_events (occurred_at);
CREATE TABLE IF NOT EXISTS task_records (
    task_id     TEXT PRIMARY KEY,
    task        TEXT NOT NULL,
    success     BOOLEAN NOT NULL,
    summary     TEXT NOT NULL,
    error       TEXT NOT NULL DEFAULT '',
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS task_actions (
    task_id   TEXT NOT NULL REFERENCES task_records (task_id) ON DELETE CASCADE,
    seq       INTEGER NOT NULL,
    type      TEXT NOT NULL,
    status    TEXT NOT NULL,
    detail    JSONB NOT NULL DEFAULT '{}',
    PRIMARY KEY (task_id, seq)
);`

const sqlInsertEvent = `
        INSERT INTO security_events (id, session_id, occurred_at, event_type, severity, source, target, action, risk_score, patterns, details)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (id) DO NOTHING;
    `

var eventColumns = []string{"id", "session_id", "occurred_at", "event_type", "severity", "source", "target", "action", "risk_score", "patterns", "details"}

// TaskRecord is the persisted summary of one executed task.
type TaskRecord struct {
	TaskID     string
	Task       string
	Success    bool
	Summary    string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
	Actions    []ActionRecord
}

// ActionRecord is one dispatched action of a task.
type ActionRecord struct {
	Type   string
	Status string
	Detail map[string]any
}

// Store is the PostgreSQL sink for security events and task history.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a store and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Connect opens a pool for dsn and wraps it in a Store. The caller closes the
// returned pool.
func Connect(ctx context.Context, dsn string, logger *zap.Logger) (*Store, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool, nil
}

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, SchemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func detailsJSON(details map[string]interface{}) ([]byte, error) {
	if len(details) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(details)
}

func eventRow(e schemas.SecurityEvent) ([]interface{}, error) {
	details, err := detailsJSON(e.Details)
	if err != nil {
		return nil, fmt.Errorf("failed to encode details of event %s: %w", e.ID, err)
	}
	patterns := e.Patterns
	if patterns == nil {
		patterns = []string{}
	}
	return []interface{}{
		e.ID, e.SessionID, e.Timestamp.UTC(),
		e.EventType, string(e.Severity), e.Source, e.Target, e.Action,
		e.RiskScore, patterns, details,
	}, nil
}

// InsertSecurityEvent writes a single event. Duplicate ids are ignored.
func (s *Store) InsertSecurityEvent(ctx context.Context, e schemas.SecurityEvent) error {
	row, err := eventRow(e)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, sqlInsertEvent, row...); err != nil {
		return fmt.Errorf("failed to insert security event %s: %w", e.ID, err)
	}
	return nil
}

// InsertSecurityEvents bulk-copies events in one transaction.
func (s *Store) InsertSecurityEvents(ctx context.Context, events []schemas.SecurityEvent) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([][]interface{}, 0, len(events))
	for _, e := range events {
		row, err := eventRow(e)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	n, err := tx.CopyFrom(ctx, pgx.Identifier{"security_events"}, eventColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy security events: %w", err)
	}
	if int(n) != len(events) {
		return fmt.Errorf("mismatch in copied events count: expected %d, got %d", len(events), n)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SaveTaskRecord upserts the task row and replaces its actions.
func (s *Store) SaveTaskRecord(ctx context.Context, rec TaskRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	_, err = tx.Exec(ctx, `
        INSERT INTO task_records (task_id, task, success, summary, error, started_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (task_id) DO UPDATE SET
            success = EXCLUDED.success,
            summary = EXCLUDED.summary,
            error = EXCLUDED.error,
            finished_at = EXCLUDED.finished_at;
    `, rec.TaskID, rec.Task, rec.Success, rec.Summary, rec.Error, rec.StartedAt.UTC(), rec.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert task %s: %w", rec.TaskID, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM task_actions WHERE task_id = $1;`, rec.TaskID); err != nil {
		return fmt.Errorf("failed to clear actions of task %s: %w", rec.TaskID, err)
	}

	if len(rec.Actions) > 0 {
		batch := &pgx.Batch{}
		for i, a := range rec.Actions {
			detail, err := detailsJSON(a.Detail)
			if err != nil {
				return fmt.Errorf("failed to encode action %d of task %s: %w", i, rec.TaskID, err)
			}
			batch.Queue(`INSERT INTO task_actions (task_id, seq, type, status, detail) VALUES ($1, $2, $3, $4, $5);`,
				rec.TaskID, i, a.Type, a.Status, detail)
		}
		br := tx.SendBatch(ctx, batch)
		if br == nil {
			return fmt.Errorf("failed to send batch: batch results is nil")
		}
		for i := range rec.Actions {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("failed to insert action %d of task %s: %w", i, rec.TaskID, err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("failed to close batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SecurityEventsSince returns events at or after since with risk of at least
// minRisk, oldest first.
func (s *Store) SecurityEventsSince(ctx context.Context, since time.Time, minRisk int) ([]schemas.SecurityEvent, error) {
	query := `
        SELECT id, session_id, occurred_at, event_type, severity, source, target, action, risk_score, patterns, details
        FROM security_events
        WHERE occurred_at >= $1 AND risk_score >= $2
        ORDER BY occurred_at ASC;
    `
	rows, err := s.pool.Query(ctx, query, since.UTC(), minRisk)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", err)
	}
	defer rows.Close()

	var events []schemas.SecurityEvent
	for rows.Next() {
		var e schemas.SecurityEvent
		var severity string
		var details []byte
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Timestamp, &e.EventType, &severity,
			&e.Source, &e.Target, &e.Action, &e.RiskScore, &e.Patterns, &details); err != nil {
			return nil, fmt.Errorf("failed to scan security event row: %w", err)
		}
		e.Severity = schemas.Severity(severity)
		if len(details) > 0 && string(details) != "{}" {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("failed to decode details of event %s: %w", e.ID, err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return events, nil
}

func (s *Store) rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		s.log.Error("Failed to rollback transaction", zap.Error(err))
	}
}
