// internal/audit/monitor.go
package audit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Vrooli/agent-s2/api/schemas"
	"github.com/Vrooli/agent-s2/internal/config"
	"github.com/Vrooli/agent-s2/internal/store"
)

const (
	defaultRingSize        = 1000
	defaultNotifyThreshold = 40
)

// EventSink receives every scored event in addition to the JSONL log.
type EventSink interface {
	InsertSecurityEvent(ctx context.Context, e schemas.SecurityEvent) error
}

var _ EventSink = (*store.Store)(nil)

// Entry is an action about to be recorded.
type Entry struct {
	EventType   string
	Source      string
	Target      string
	Action      string
	Details     map[string]interface{}
	UserContext map[string]interface{}
}

// Filter narrows Events. Zero fields match everything.
type Filter struct {
	Since       time.Time
	MinSeverity schemas.Severity
	EventType   string
	Limit       int
}

// Stats summarizes the in-memory ring.
type Stats struct {
	SessionID     string                   `json:"session_id"`
	Total         int                      `json:"total"`
	BySeverity    map[schemas.Severity]int `json:"by_severity"`
	ByEventType   map[string]int           `json:"by_event_type"`
	HighestRisk   int                      `json:"highest_risk"`
	Notifications int                      `json:"notifications"`
}

// Monitor scores actions, keeps the most recent events in a bounded ring and
// forwards them to the audit log, the optional sink, and the notifier.
type Monitor struct {
	cfg      config.AuditConfig
	log      *Logger
	sink     EventSink
	notifier *Notifier
	logger   *zap.Logger
	now      func() time.Time

	mu            sync.Mutex
	sessionID     string
	ring          []schemas.SecurityEvent
	next          int
	full          bool
	history       map[string][]time.Time
	notifications int
}

// NewMonitor builds a monitor. log and sink may be nil.
func NewMonitor(cfg config.AuditConfig, log *Logger, sink EventSink, notifier *Notifier, logger *zap.Logger) *Monitor {
	size := cfg.RingSize
	if size <= 0 || size > defaultRingSize {
		size = defaultRingSize
	}
	if cfg.NotifyThreshold <= 0 {
		cfg.NotifyThreshold = defaultNotifyThreshold
	}
	return &Monitor{
		cfg:       cfg,
		log:       log,
		sink:      sink,
		notifier:  notifier,
		logger:    logger.Named("security_monitor"),
		now:       time.Now,
		sessionID: uuid.NewString(),
		ring:      make([]schemas.SecurityEvent, size),
		history:   make(map[string][]time.Time),
	}
}

// SessionID identifies this monitor's lifetime.
func (m *Monitor) SessionID() string { return m.sessionID }

// LogAction scores e, records it, and notifies when the risk exceeds the
// configured threshold. It never fails; sink and file errors are logged.
func (m *Monitor) LogAction(ctx context.Context, e Entry) schemas.SecurityEvent {
	now := m.now()
	if e.EventType == "" {
		e.EventType = "action_executed"
	}

	m.mu.Lock()
	burst, sustained := m.observe(e.Action, now)
	m.mu.Unlock()

	risk, hits := ScoreRisk(RiskInput{
		Text:            riskText(e),
		HostMode:        m.cfg.HostModeEnabled,
		ForbiddenPaths:  m.cfg.ForbiddenPaths,
		RecentBurst:     burst,
		RecentSustained: sustained,
	})
	event := schemas.SecurityEvent{
		ID:          uuid.NewString(),
		Timestamp:   now.UTC(),
		EventType:   e.EventType,
		Severity:    schemas.SeverityForRisk(risk),
		Source:      e.Source,
		Target:      e.Target,
		Action:      e.Action,
		Details:     e.Details,
		UserContext: e.UserContext,
		RiskScore:   risk,
		Patterns:    hits,
		SessionID:   m.sessionID,
	}

	m.mu.Lock()
	m.ring[m.next] = event
	m.next = (m.next + 1) % len(m.ring)
	if m.next == 0 {
		m.full = true
	}
	m.mu.Unlock()

	if m.log != nil {
		_ = m.log.Write(event)
	} else {
		m.logger.Info("Security event",
			zap.String("event_id", event.ID),
			zap.String("action", event.Action),
			zap.Int("risk_score", event.RiskScore))
	}
	if m.sink != nil {
		if err := m.sink.InsertSecurityEvent(ctx, event); err != nil {
			m.logger.Warn("Failed to persist security event", zap.String("event_id", event.ID), zap.Error(err))
		}
	}
	if risk > m.cfg.NotifyThreshold && m.notifier != nil {
		m.notifier.Notify(ctx, event)
		m.mu.Lock()
		m.notifications++
		m.mu.Unlock()
	}
	return event
}

// observe appends now to the history of action and returns how many events,
// this one included, fall in the burst and sustained windows. Callers hold m.mu.
func (m *Monitor) observe(action string, now time.Time) (burst, sustained int) {
	key := strings.ToLower(action)
	cutoff := now.Add(-sustainedWindow)
	past := m.history[key][:0]
	for _, t := range m.history[key] {
		if t.After(cutoff) {
			past = append(past, t)
		}
	}
	m.history[key] = append(past, now)
	for _, t := range m.history[key] {
		sustained++
		if now.Sub(t) < burstWindow {
			burst++
		}
	}
	return burst, sustained
}

func riskText(e Entry) string {
	var b strings.Builder
	b.WriteString(e.Action)
	b.WriteByte(' ')
	b.WriteString(e.Target)
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %v", e.Details[k])
	}
	return b.String()
}

// snapshot returns the ring oldest first. Callers hold m.mu.
func (m *Monitor) snapshot() []schemas.SecurityEvent {
	if !m.full {
		return append([]schemas.SecurityEvent(nil), m.ring[:m.next]...)
	}
	out := make([]schemas.SecurityEvent, 0, len(m.ring))
	out = append(out, m.ring[m.next:]...)
	return append(out, m.ring[:m.next]...)
}

var severityRank = map[schemas.Severity]int{
	schemas.SeverityLow:      0,
	schemas.SeverityMedium:   1,
	schemas.SeverityHigh:     2,
	schemas.SeverityCritical: 3,
}

// Events returns a copy of the ring, oldest first, narrowed by f. With a
// Limit only the newest matches are kept.
func (m *Monitor) Events(f Filter) []schemas.SecurityEvent {
	m.mu.Lock()
	all := m.snapshot()
	m.mu.Unlock()
	return f.Apply(all)
}

// Match reports whether e passes every set field of f. Limit is ignored.
func (f Filter) Match(e schemas.SecurityEvent) bool {
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if f.MinSeverity != "" && severityRank[e.Severity] < severityRank[f.MinSeverity] {
		return false
	}
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	return true
}

// Apply keeps the events that match f, then the newest Limit of those.
func (f Filter) Apply(events []schemas.SecurityEvent) []schemas.SecurityEvent {
	var out []schemas.SecurityEvent
	for _, e := range events {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Stats{
		SessionID:     m.sessionID,
		BySeverity:    make(map[schemas.Severity]int),
		ByEventType:   make(map[string]int),
		Notifications: m.notifications,
	}
	for _, e := range m.snapshot() {
		st.Total++
		st.BySeverity[e.Severity]++
		st.ByEventType[e.EventType]++
		if e.RiskScore > st.HighestRisk {
			st.HighestRisk = e.RiskScore
		}
	}
	return st
}
