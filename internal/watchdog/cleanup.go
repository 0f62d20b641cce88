// internal/watchdog/cleanup.go
package watchdog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
)

var (
	lockFiles       = []string{"lock", ".parentlock", "parent.lock"}
	sessionPatterns = []string{"sessionstore*", "recovery*", "sessionstore-backups/recovery*"}
)

// CleanupResult summarizes one EnsureCleanState run.
type CleanupResult struct {
	Success         bool          `json:"success"`
	ProcessesKilled int           `json:"processes_killed"`
	SessionCleared  bool          `json:"session_cleared"`
	LocksCleared    bool          `json:"locks_cleared"`
	LocksRemoved    int           `json:"locks_removed"`
	SessionRemoved  int           `json:"session_files_removed"`
	Errors          []string      `json:"errors,omitempty"`
	CleanupTime     time.Duration `json:"cleanup_time"`
}

// EnsureCleanState terminates every browser process, clears session restore
// data and profile locks, and resets the crash log. Running it on an already
// clean system kills nothing and succeeds.
func (w *Watchdog) EnsureCleanState(ctx context.Context) CleanupResult {
	w.cleanMu.Lock()
	defer w.cleanMu.Unlock()

	start := time.Now()
	w.setState(StateCleaning)
	res := CleanupResult{}

	killed, errs := w.terminateAll(ctx)
	res.ProcessesKilled = killed
	res.Errors = append(res.Errors, errs...)

	dirs := w.profileDirs()
	res.SessionRemoved, errs = removeMatching(dirs, sessionPatterns)
	res.Errors = append(res.Errors, errs...)
	res.LocksRemoved, errs = w.removeLocks()
	res.Errors = append(res.Errors, errs...)

	res.SessionCleared = len(matching(dirs, sessionPatterns)) == 0
	res.LocksCleared = len(w.findLocks()) == 0

	w.mu.Lock()
	w.crashes = nil
	w.lastRunning = false
	w.mu.Unlock()

	if err := sleepCtx(ctx, w.cfg.Settle); err != nil {
		res.Errors = append(res.Errors, err.Error())
	}

	res.Success = len(res.Errors) == 0
	res.CleanupTime = time.Since(start)
	if res.Success {
		w.setState(StateHealthy)
	} else {
		w.setState(StateUnknown)
	}
	w.logger.Info("Browser cleanup finished",
		zap.Bool("success", res.Success),
		zap.Int("processes_killed", res.ProcessesKilled),
		zap.Int("locks_removed", res.LocksRemoved),
		zap.Int("session_files_removed", res.SessionRemoved),
		zap.Duration("took", res.CleanupTime),
		zap.Strings("errors", res.Errors))
	return res
}

func (w *Watchdog) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// terminateAll sends SIGTERM, waits TermGrace, then SIGKILLs survivors.
func (w *Watchdog) terminateAll(ctx context.Context) (int, []string) {
	procs, err := w.procs.Find(ctx, w.cfg.ProcessName)
	if err != nil {
		return 0, []string{fmt.Sprintf("listing processes: %v", err)}
	}
	if len(procs) == 0 {
		return 0, nil
	}

	var errs []string
	for _, p := range procs {
		if err := w.procs.Signal(p.PID, syscall.SIGTERM); err != nil {
			errs = append(errs, fmt.Sprintf("SIGTERM %d: %v", p.PID, err))
		}
	}
	if err := sleepCtx(ctx, w.cfg.TermGrace); err != nil {
		errs = append(errs, err.Error())
	}
	for _, p := range procs {
		if !w.procs.Alive(p.PID) {
			continue
		}
		w.logger.Debug("Process survived SIGTERM, killing", zap.Int("pid", p.PID))
		if err := w.procs.Signal(p.PID, syscall.SIGKILL); err != nil {
			errs = append(errs, fmt.Sprintf("SIGKILL %d: %v", p.PID, err))
		}
	}
	return len(procs), errs
}

// profileDirs lists the profile directories under ProfileRoot.
func (w *Watchdog) profileDirs() []string {
	if w.cfg.ProfileRoot == "" {
		return nil
	}
	entries, err := os.ReadDir(w.cfg.ProfileRoot)
	if err != nil {
		return nil
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(w.cfg.ProfileRoot, e.Name()))
		}
	}
	return dirs
}

// findLocks returns lock paths that exist, including dangling symlinks.
func (w *Watchdog) findLocks() []string {
	var found []string
	for _, dir := range w.profileDirs() {
		for _, name := range lockFiles {
			p := filepath.Join(dir, name)
			if _, err := os.Lstat(p); err == nil {
				found = append(found, p)
			}
		}
	}
	return found
}

func (w *Watchdog) removeLocks() (int, []string) {
	var (
		n    int
		errs []string
	)
	for _, p := range w.findLocks() {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Sprintf("removing %s: %v", p, err))
			continue
		}
		n++
	}
	return n, errs
}

func matching(dirs, patterns []string) []string {
	var out []string
	for _, dir := range dirs {
		for _, pat := range patterns {
			matches, _ := filepath.Glob(filepath.Join(dir, pat))
			out = append(out, matches...)
		}
	}
	return out
}

func removeMatching(dirs, patterns []string) (int, []string) {
	var (
		n    int
		errs []string
	)
	for _, p := range matching(dirs, patterns) {
		if err := os.RemoveAll(p); err != nil {
			errs = append(errs, fmt.Sprintf("removing %s: %v", p, err))
			continue
		}
		n++
	}
	return n, errs
}
