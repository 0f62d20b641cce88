// internal/stealth/reset.go
package stealth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Vrooli/agent-s2/api/schemas"
	"github.com/Vrooli/agent-s2/internal/desktop"
	"github.com/Vrooli/agent-s2/internal/watchdog"
)

// closeWindowCombo closes every tab of the focused Firefox window.
const closeWindowCombo = "ctrl+shift+w"

// BrowserWindows lists and focuses browser windows.
type BrowserWindows interface {
	WindowsFor(ctx context.Context, app string) ([]schemas.Window, error)
	Focus(ctx context.Context, windowID string) (bool, error)
}

// KeyPresser sends key combinations to the focused window.
type KeyPresser interface {
	Press(ctx context.Context, keys ...string) error
}

// Cleaner is the watchdog's cleanup entry point.
type Cleaner interface {
	EnsureCleanState(ctx context.Context) watchdog.CleanupResult
}

func isFirefox(app string) bool { return desktop.ResolveApp(app) == "firefox" }

// Resetter returns the browser to a clean state between stealth sessions.
type Resetter struct {
	windows BrowserWindows
	keys    KeyPresser
	cleaner Cleaner
	logger  *zap.Logger
	settle  time.Duration
}

// NewResetter wires a resetter. windows and keys may be nil, in which case
// only the watchdog path runs.
func NewResetter(windows BrowserWindows, keys KeyPresser, cleaner Cleaner, logger *zap.Logger) *Resetter {
	return &Resetter{
		windows: windows,
		keys:    keys,
		cleaner: cleaner,
		logger:  logger.Named("stealth_reset"),
		settle:  500 * time.Millisecond,
	}
}

// Reset closes Firefox windows from the keyboard, then runs the watchdog
// cleanup. Every failure on either path is returned, joined.
func (r *Resetter) Reset(ctx context.Context) error {
	var errs []error
	closed, err := r.closeWindows(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	if closed > 0 {
		select {
		case <-ctx.Done():
			return errors.Join(append(errs, ctx.Err())...)
		case <-time.After(r.settle):
		}
	}

	if r.cleaner == nil {
		errs = append(errs, fmt.Errorf("%w: no browser cleaner configured", schemas.ErrNotReady))
	} else {
		res := r.cleaner.EnsureCleanState(ctx)
		if !res.Success {
			errs = append(errs, fmt.Errorf("%w: cleanup failed: %s", schemas.ErrBrowserUnhealthy, strings.Join(res.Errors, "; ")))
		}
	}

	err = errors.Join(errs...)
	if err != nil {
		r.logger.Warn("Browser reset incomplete", zap.Int("windows_closed", closed), zap.Error(err))
	} else {
		r.logger.Info("Browser reset", zap.Int("windows_closed", closed))
	}
	return err
}

func (r *Resetter) closeWindows(ctx context.Context) (int, error) {
	if r.windows == nil || r.keys == nil {
		return 0, nil
	}
	windows, err := r.windows.WindowsFor(ctx, "firefox")
	if err != nil {
		return 0, fmt.Errorf("listing browser windows: %w", err)
	}
	var errs []error
	closed := 0
	for _, w := range windows {
		if ok, err := r.windows.Focus(ctx, w.WindowID); err != nil || !ok {
			errs = append(errs, fmt.Errorf("%w: window %s", schemas.ErrWindowFocusFailed, w.WindowID))
			continue
		}
		if err := r.keys.Press(ctx, closeWindowCombo); err != nil {
			errs = append(errs, fmt.Errorf("closing window %s: %w", w.WindowID, err))
			continue
		}
		closed++
	}
	return closed, errors.Join(errs...)
}
