// api/schemas/security.go
package schemas

import "time"

// Severity is the bucketed risk of a security event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SeverityForRisk buckets a 0..100 risk score.
func SeverityForRisk(risk int) Severity {
	switch {
	case risk > 70:
		return SeverityCritical
	case risk > 40:
		return SeverityHigh
	case risk > 20:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// SecurityEvent is one scored entry in the audit ring.
type SecurityEvent struct {
	ID          string                 `json:"id"`
	Timestamp   time.Time              `json:"timestamp"`
	EventType   string                 `json:"event_type"`
	Severity    Severity               `json:"severity"`
	Source      string                 `json:"source"`
	Target      string                 `json:"target"`
	Action      string                 `json:"action"`
	Details     map[string]interface{} `json:"details,omitempty"`
	UserContext map[string]interface{} `json:"user_context,omitempty"`
	RiskScore   int                    `json:"risk_score"`
	Patterns    []string               `json:"patterns,omitempty"`
	SessionID   string                 `json:"session_id"`
}
