// internal/watchdog/watchdog.go
package watchdog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/Vrooli/agent-s2/internal/config"
)

// State is the browser lifecycle as seen by the watchdog.
type State string

const (
	StateUnknown  State = "unknown"
	StateHealthy  State = "healthy"
	StateDegraded State = "degraded"
	StateCrashed  State = "crashed"
	StateCleaning State = "cleaning"
)

// Health is one sample of browser resource usage.
type Health struct {
	Running       bool      `json:"running"`
	ProcessCount  int       `json:"process_count"`
	PIDs          []int     `json:"pids"`
	MemoryMB      float64   `json:"memory_mb"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryWarning bool      `json:"memory_warning"`
	CPUWarning    bool      `json:"cpu_warning"`
	RecentCrashes bool      `json:"recent_crashes"`
	CrashCount    int       `json:"crash_count"`
	LockPresent   bool      `json:"lock_present"`
	State         State     `json:"state"`
	CheckedAt     time.Time `json:"checked_at"`
}

// CrashRecord is one entry of the bounded crash log.
type CrashRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details"`
}

// Watchdog monitors Firefox processes and restores a clean profile state.
type Watchdog struct {
	procs  ProcessTable
	cfg    config.WatchdogConfig
	logger *zap.Logger
	now    func() time.Time

	// cleanMu serializes EnsureCleanState.
	cleanMu sync.Mutex

	mu          sync.Mutex
	state       State
	crashes     []CrashRecord
	lastRunning bool
}

// New creates a watchdog. Zero-valued thresholds fall back to the defaults.
func New(procs ProcessTable, cfg config.WatchdogConfig, logger *zap.Logger) *Watchdog {
	if cfg.ProcessName == "" {
		cfg.ProcessName = "firefox"
	}
	if cfg.MemoryWarningMB <= 0 {
		cfg.MemoryWarningMB = 1500
	}
	if cfg.CPUWarningPercent <= 0 {
		cfg.CPUWarningPercent = 80
	}
	if cfg.MaxProcesses <= 0 {
		cfg.MaxProcesses = 5
	}
	if cfg.CrashThreshold <= 0 {
		cfg.CrashThreshold = 3
	}
	if cfg.CrashWindow <= 0 {
		cfg.CrashWindow = 5 * time.Minute
	}
	if cfg.CrashLogSize <= 0 {
		cfg.CrashLogSize = 100
	}
	if cfg.TermGrace <= 0 {
		cfg.TermGrace = time.Second
	}
	if cfg.WatchInterval <= 0 {
		cfg.WatchInterval = 10 * time.Second
	}
	if expanded, err := homedir.Expand(cfg.ProfileRoot); err == nil {
		cfg.ProfileRoot = expanded
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watchdog{
		procs:  procs,
		cfg:    cfg,
		logger: logger.Named("browser_watchdog"),
		now:    time.Now,
		state:  StateUnknown,
	}
}

// State returns the last observed lifecycle state.
func (w *Watchdog) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Health samples every browser process and derives the warning flags.
func (w *Watchdog) Health(ctx context.Context) (Health, error) {
	procs, err := w.procs.Find(ctx, w.cfg.ProcessName)
	if err != nil {
		return Health{}, fmt.Errorf("sampling %s processes: %w", w.cfg.ProcessName, err)
	}

	h := Health{CheckedAt: w.now(), ProcessCount: len(procs), Running: len(procs) > 0}
	var rss uint64
	for _, p := range procs {
		h.PIDs = append(h.PIDs, p.PID)
		rss += p.RSSBytes
		h.CPUPercent += p.CPUPercent
	}
	h.MemoryMB = float64(rss) / (1024 * 1024)
	h.MemoryWarning = h.MemoryMB > w.cfg.MemoryWarningMB
	h.CPUWarning = h.CPUPercent > w.cfg.CPUWarningPercent
	h.CrashCount = w.recentCrashCount()
	h.RecentCrashes = h.CrashCount > 0
	h.LockPresent = len(w.findLocks()) > 0

	w.mu.Lock()
	switch {
	case w.state == StateCleaning:
	case h.Running && (h.MemoryWarning || h.CPUWarning):
		w.state = StateDegraded
	case h.Running:
		w.state = StateHealthy
	case h.RecentCrashes:
		w.state = StateCrashed
	case w.state != StateHealthy:
		w.state = StateUnknown
	}
	h.State = w.state
	w.mu.Unlock()
	return h, nil
}

// ShouldRestart reports whether the browser needs a cleanup and restart, and why.
func (w *Watchdog) ShouldRestart(ctx context.Context) (bool, []string, error) {
	h, err := w.Health(ctx)
	if err != nil {
		return false, nil, err
	}
	var reasons []string
	if !h.Running {
		reasons = append(reasons, "browser not running")
	}
	if h.MemoryWarning {
		reasons = append(reasons, fmt.Sprintf("memory usage %.0f MB exceeds %.0f MB", h.MemoryMB, w.cfg.MemoryWarningMB))
	}
	if h.CrashCount >= w.cfg.CrashThreshold {
		reasons = append(reasons, fmt.Sprintf("%d crashes in the last %s", h.CrashCount, w.cfg.CrashWindow))
	}
	if h.ProcessCount > w.cfg.MaxProcesses {
		reasons = append(reasons, fmt.Sprintf("%d browser processes (max %d)", h.ProcessCount, w.cfg.MaxProcesses))
	}
	if h.LockPresent {
		reasons = append(reasons, "profile lock present")
	}
	return len(reasons) > 0, reasons, nil
}

// RecordCrash appends to the crash log, evicting the oldest entry when full.
func (w *Watchdog) RecordCrash(details string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.crashes = append(w.crashes, CrashRecord{Timestamp: w.now(), Details: details})
	if over := len(w.crashes) - w.cfg.CrashLogSize; over > 0 {
		w.crashes = append([]CrashRecord(nil), w.crashes[over:]...)
	}
	w.state = StateCrashed
	w.logger.Warn("Browser crash recorded", zap.String("details", details), zap.Int("log_size", len(w.crashes)))
}

// CrashLog returns a copy of the crash log, oldest first.
func (w *Watchdog) CrashLog() []CrashRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]CrashRecord(nil), w.crashes...)
}

func (w *Watchdog) recentCrashCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	cutoff := w.now().Add(-w.cfg.CrashWindow)
	n := 0
	for _, c := range w.crashes {
		if c.Timestamp.After(cutoff) {
			n++
		}
	}
	return n
}

// Watch samples health every interval until ctx is done. A browser that
// disappears between samples without a cleanup counts as a crash.
func (w *Watchdog) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = w.cfg.WatchInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		h, err := w.Health(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Warn("Health sample failed", zap.Error(err))
			continue
		}

		w.mu.Lock()
		vanished := w.lastRunning && !h.Running && w.state != StateCleaning
		w.lastRunning = h.Running
		w.mu.Unlock()

		if vanished {
			w.RecordCrash("browser processes disappeared")
		}
		if h.MemoryWarning || h.CPUWarning {
			w.logger.Warn("Browser degraded",
				zap.Float64("memory_mb", h.MemoryMB),
				zap.Float64("cpu_percent", h.CPUPercent),
				zap.Int("processes", h.ProcessCount))
		}
	}
}
