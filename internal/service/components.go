// File: internal/service/components.go
package service

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Vrooli/agent-s2/internal/agent"
	"github.com/Vrooli/agent-s2/internal/audit"
	"github.com/Vrooli/agent-s2/internal/capture"
	"github.com/Vrooli/agent-s2/internal/config"
	"github.com/Vrooli/agent-s2/internal/desktop"
	"github.com/Vrooli/agent-s2/internal/humanoid"
	"github.com/Vrooli/agent-s2/internal/llmclient"
	"github.com/Vrooli/agent-s2/internal/observability"
	"github.com/Vrooli/agent-s2/internal/planner"
	"github.com/Vrooli/agent-s2/internal/routing"
	"github.com/Vrooli/agent-s2/internal/security"
	"github.com/Vrooli/agent-s2/internal/stealth"
	"github.com/Vrooli/agent-s2/internal/store"
	"github.com/Vrooli/agent-s2/internal/watchdog"
)

// Components holds every initialized service of the control loop and
// centralizes their lifecycle.
type Components struct {
	Config config.Interface

	Runner   *desktop.ExecRunner
	Catalog  *desktop.Catalog
	Registry *desktop.Registry
	Capture  *capture.Service
	Humanoid *humanoid.Humanoid
	Input    *humanoid.Driver
	Watchdog *watchdog.Watchdog

	LLM       *llmclient.OllamaClient
	Router    *routing.Router
	Validator *security.ActionValidator
	Planner   *planner.Planner

	AuditLog *audit.Logger
	Notifier *audit.Notifier
	Monitor  *audit.Monitor
	Store    *store.Store
	DBPool   *pgxpool.Pool
	Events   *EventQueue

	Stealth  *stealth.Store
	Resetter *stealth.Resetter

	Executor *agent.Executor
	Tasks    *agent.TaskManager
}

// Shutdown releases components in dependency order: producers first, then
// the event pipeline, then the database and the LLM client.
func (c *Components) Shutdown() {
	logger := observability.GetLogger()
	logger.Debug("Beginning components shutdown sequence.")

	if c.Tasks != nil {
		c.Tasks.Close()
		logger.Debug("Task manager stopped.")
	}
	if c.Capture != nil && c.Capture.Monitoring() {
		c.Capture.StopChangeDetection()
	}

	// Close the queue before the pool so the final batch can still be written.
	if c.Events != nil {
		c.Events.Close()
		logger.Debug("Security event queue drained.")
	}
	if c.AuditLog != nil {
		if err := c.AuditLog.Close(); err != nil {
			logger.Warn("Error closing audit log.", zap.Error(err))
		}
	}
	if c.DBPool != nil {
		c.DBPool.Close()
		logger.Debug("Database connection pool closed.")
	}
	if c.LLM != nil {
		if err := c.LLM.Close(); err != nil {
			logger.Warn("Error closing LLM client.", zap.Error(err))
		}
	}

	logger.Info("All components shut down.")
}
