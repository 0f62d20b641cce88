// internal/agent/models.go
package agent

import (
	"time"

	"github.com/Vrooli/agent-s2/api/schemas"
	"github.com/Vrooli/agent-s2/internal/humanoid"
)

// ActionStatus is the outcome class of one dispatched action.
type ActionStatus string

const (
	StatusSuccess ActionStatus = "success"
	StatusFailed  ActionStatus = "failed"
	StatusBlocked ActionStatus = "blocked"
	StatusSkipped ActionStatus = "skipped"
)

// ActionOutcome is one entry of actions_taken.
type ActionOutcome struct {
	Index      int                           `json:"index"`
	Action     schemas.Action                `json:"action"`
	Status     ActionStatus                  `json:"status"`
	ErrorCode  ErrorCode                     `json:"error_code,omitempty"`
	Error      string                        `json:"error,omitempty"`
	Warnings   []string                      `json:"warnings,omitempty"`
	Focus      *humanoid.TargetedResult      `json:"focus,omitempty"`
	Security   *schemas.ActionSecurityResult `json:"security,omitempty"`
	OutputPath string                        `json:"output_path,omitempty"`
	Duration   time.Duration                 `json:"duration"`
}

// TaskResult is what ExecuteTask returns for every task that got past the
// readiness check.
type TaskResult struct {
	TaskID            string              `json:"task_id"`
	Success           bool                `json:"success"`
	Task              string              `json:"task"`
	Summary           string              `json:"summary"`
	ActionsTaken      []ActionOutcome     `json:"actions_taken"`
	Plan              []schemas.Action    `json:"plan"`
	Reasoning         string              `json:"reasoning"`
	EstimatedDuration string              `json:"estimated_duration"`
	RawAIResponse     string              `json:"raw_ai_response"`
	DebugInfo         schemas.DebugBundle `json:"debug_info"`
	Error             string              `json:"error,omitempty"`
	StartedAt         time.Time           `json:"started_at"`
	FinishedAt        time.Time           `json:"finished_at"`
}

// TaskStatus is the lifecycle state of an async task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// TaskRecord tracks one submitted task.
type TaskRecord struct {
	ID          string      `json:"id"`
	Task        string      `json:"task"`
	Context     string      `json:"context,omitempty"`
	Status      TaskStatus  `json:"status"`
	Result      *TaskResult `json:"result,omitempty"`
	Error       string      `json:"error,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

func (r TaskRecord) done() bool {
	return r.Status == TaskCompleted || r.Status == TaskFailed
}
