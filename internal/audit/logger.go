// internal/audit/logger.go
package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/Vrooli/agent-s2/api/schemas"
)

const auditFilePrefix = "security-audit-"

// FileForDay returns the audit file path in dir for the UTC day of t.
func FileForDay(dir string, t time.Time) string {
	return filepath.Join(dir, auditFilePrefix+t.UTC().Format("2006-01-02")+".jsonl")
}

// Logger appends one JSON line per security event to a file per UTC day.
type Logger struct {
	dir      string
	fallback *zap.Logger
	now      func() time.Time

	mu   sync.Mutex
	day  string
	file *os.File
}

// NewLogger writes into dir, creating it on first write. Events that cannot
// be written go to fallback instead.
func NewLogger(dir string, fallback *zap.Logger) *Logger {
	return &Logger{dir: dir, fallback: fallback.Named("audit_log"), now: time.Now}
}

// Write appends e. On failure the event is emitted through the fallback
// logger and the error is returned.
func (l *Logger) Write(e schemas.SecurityEvent) error {
	line, err := json.Marshal(e)
	if err != nil {
		l.fallbackEvent(e, err)
		return fmt.Errorf("encoding audit event: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := l.current()
	if err == nil {
		_, err = f.Write(line)
	}
	if err != nil {
		l.fallbackEvent(e, err)
		return fmt.Errorf("writing audit event: %w", err)
	}
	return nil
}

func (l *Logger) current() (*os.File, error) {
	now := l.now()
	day := now.UTC().Format("2006-01-02")
	if l.file != nil && l.day == day {
		return l.file, nil
	}
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
	if err := os.MkdirAll(l.dir, 0o750); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(FileForDay(l.dir, now), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, err
	}
	l.file, l.day = f, day
	return f, nil
}

func (l *Logger) fallbackEvent(e schemas.SecurityEvent, cause error) {
	l.fallback.Warn("Audit file unavailable; logging event instead",
		zap.Error(cause),
		zap.String("event_id", e.ID),
		zap.String("event_type", e.EventType),
		zap.String("severity", string(e.Severity)),
		zap.Int("risk_score", e.RiskScore),
		zap.String("action", e.Action),
		zap.String("target", e.Target),
		zap.Strings("patterns", e.Patterns))
}

// Path returns today's audit file.
func (l *Logger) Path() string { return FileForDay(l.dir, l.now()) }

// Close releases the open file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
