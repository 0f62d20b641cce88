// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Vrooli/agent-s2/api/schemas"
	"github.com/Vrooli/agent-s2/internal/agent"
	"github.com/Vrooli/agent-s2/internal/audit"
	"github.com/Vrooli/agent-s2/internal/capture"
	"github.com/Vrooli/agent-s2/internal/config"
	"github.com/Vrooli/agent-s2/internal/desktop"
	"github.com/Vrooli/agent-s2/internal/humanoid"
	"github.com/Vrooli/agent-s2/internal/llmclient"
	"github.com/Vrooli/agent-s2/internal/planner"
	"github.com/Vrooli/agent-s2/internal/routing"
	"github.com/Vrooli/agent-s2/internal/security"
	"github.com/Vrooli/agent-s2/internal/stealth"
	"github.com/Vrooli/agent-s2/internal/store"
	"github.com/Vrooli/agent-s2/internal/watchdog"
)

// ComponentFactory creates the set of components a command needs. The
// abstraction lets commands be tested with a fake factory.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error)
}

type concreteFactory struct {
	registerer prometheus.Registerer

	metricsOnce sync.Once
	metrics     *agent.Metrics
}

// NewComponentFactory returns the production factory. Metrics are registered
// with reg, or the default registerer when reg is nil.
func NewComponentFactory(reg prometheus.Registerer) ComponentFactory {
	return &concreteFactory{registerer: reg}
}

// Create wires every component in dependency order. The LLM gateway is initialized only when AI is
// enabled; a gateway that fails to initialize leaves the executor not ready
// rather than failing construction.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error) {
	c := &Components{Config: cfg}

	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			c.Shutdown()
		}
	}()

	// 1. Desktop: runner, catalog, window registry.
	dcfg := cfg.Desktop()
	c.Runner = desktop.NewExecRunner(dcfg.Display, dcfg.CommandTimeout)
	c.Catalog = desktop.NewCatalog()
	c.Registry = desktop.NewRegistry(c.Runner, c.Runner, logger, desktop.Options{
		CacheTTL:     dcfg.CacheTTL,
		FocusTimeout: dcfg.FocusTimeout,
		StartTimeout: dcfg.StartTimeout,
		ProcRoot:     cfg.Watchdog().ProcRoot,
		Catalog:      c.Catalog,
	})
	logger.Debug("Window registry initialized.", zap.String("display", dcfg.Display))

	// 2. Screen capture.
	ccfg := cfg.Capture()
	c.Capture = capture.NewService(capture.NewCommandGrabber(c.Runner, ccfg.Command), c.Registry, logger, capture.Options{
		Format:             schemas.ImageFormat(ccfg.Format),
		Quality:            ccfg.Quality,
		MaxDimension:       ccfg.MaxDimension,
		MaxBytesMB:         ccfg.MaxBytesMB,
		WindowGrace:        ccfg.WindowGrace,
		PixelDiffThreshold: ccfg.PixelDiffThreshold,
	})

	// 3. Input.
	c.Humanoid = humanoid.New(humanoid.FromAppConfig(cfg.Humanoid()), logger, humanoid.NewXdotoolExecutor(c.Runner))
	if dcfg.ScreenWidth > 0 && dcfg.ScreenHeight > 0 {
		c.Humanoid.SetBounds(dcfg.ScreenWidth, dcfg.ScreenHeight)
	}
	c.Input = humanoid.NewDriver(c.Humanoid, c.Registry, logger)

	// 4. Browser watchdog.
	c.Watchdog = watchdog.New(watchdog.NewProcFS(cfg.Watchdog().ProcRoot), cfg.Watchdog(), logger)

	// 5. LLM gateway.
	c.LLM = llmclient.NewOllamaClient(cfg.AI(), logger)
	if cfg.AI().Enabled {
		if ok, err := c.LLM.Initialize(ctx); !ok {
			logger.Warn("LLM gateway is not available; tasks will be refused until it is.", zap.Error(err))
		}
	}

	// 6-8. Router, security validator, planner.
	c.Router = routing.NewRouter(cfg.Search(), logger)
	c.Validator = security.NewActionValidator(cfg.Security(), c.Router, logger)
	c.Planner = planner.NewPlanner(c.LLM, c.Router, logger, planner.Options{
		ScreenWidth:  dcfg.ScreenWidth,
		ScreenHeight: dcfg.ScreenHeight,
	})

	// 9. Audit pipeline, with the optional Postgres sink behind a batching queue.
	acfg := cfg.Audit()
	c.AuditLog = audit.NewLogger(acfg.LogDir, logger)
	c.Notifier = audit.NewNotifier(acfg, logger)
	var sink audit.EventSink
	var recorder agent.TaskRecorder
	if acfg.PostgresDSN != "" {
		st, pool, err := store.Connect(ctx, acfg.PostgresDSN, logger)
		if err != nil {
			initializationErr = fmt.Errorf("failed to connect audit database: %w", err)
			return nil, initializationErr
		}
		c.Store, c.DBPool = st, pool
		if err := st.EnsureSchema(ctx); err != nil {
			initializationErr = err
			return nil, initializationErr
		}
		c.Events = NewEventQueue(context.WithoutCancel(ctx), st, logger)
		sink, recorder = c.Events, st
		logger.Debug("Postgres audit sink initialized.")
	}
	c.Monitor = audit.NewMonitor(acfg, c.AuditLog, sink, c.Notifier, logger)

	// Stealth profiles.
	st, err := stealth.NewStore(cfg.Stealth(), logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to open stealth profile store: %w", err)
		return nil, initializationErr
	}
	c.Stealth = st
	c.Resetter = stealth.NewResetter(c.Registry, c.Humanoid, c.Watchdog, logger)

	// 10. Executor and background task manager.
	deps := agent.Deps{
		Planner:   c.Planner,
		Capturer:  c.Capture,
		Windows:   c.Registry,
		Launcher:  c.Registry,
		Catalog:   c.Catalog,
		Input:     c.Input,
		Validator: c.Validator,
		Cleaner:   c.Watchdog,
		Auditor:   c.Monitor,
		Ready:     c.LLM,
		Recorder:  recorder,
		Shortcuts: agent.DefaultShortcuts,
		Metrics:   f.executorMetrics(),
	}
	if c.Stealth.Enabled() {
		deps.Profiles = c.Stealth
	}
	acfgAgent := cfg.Agent()
	c.Executor = agent.NewExecutor(deps, logger, agent.Options{
		ScreenshotDir: acfgAgent.ScreenshotDir,
		DebugDir:      acfgAgent.DebugDir,
		TaskTimeout:   acfgAgent.TaskTimeout,
		LaunchGrace:   dcfg.LaunchGrace,
		TypeInterval:  time.Duration(cfg.Humanoid().TypeIntervalMs * float64(time.Millisecond)),
	})
	c.Tasks = agent.NewTaskManager(c.Executor, acfgAgent.MaxTaskRecords, logger)

	logger.Info("All components initialized.", zap.Bool("llm_ready", c.LLM.IsReady()))
	return c, nil
}

// executorMetrics registers the executor metrics on first use; later Create
// calls share them.
func (f *concreteFactory) executorMetrics() *agent.Metrics {
	f.metricsOnce.Do(func() { f.metrics = agent.NewMetrics(f.registerer) })
	return f.metrics
}
