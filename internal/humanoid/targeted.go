// internal/humanoid/targeted.go
package humanoid

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Vrooli/agent-s2/api/schemas"
	"go.uber.org/zap"
)

// Focuser brings an application window to the foreground.
type Focuser interface {
	FocusApp(ctx context.Context, app string, criteria *schemas.WindowCriteria) (*schemas.Window, error)
}

// Target names the window an action is aimed at. An empty App means "wherever
// focus currently is".
type Target struct {
	App      string
	Criteria *schemas.WindowCriteria
	// EnsureFocus turns a focus failure into an error instead of a warning.
	EnsureFocus bool
}

// TargetedResult reports the focus step that preceded a targeted action.
type TargetedResult struct {
	Success       bool            `json:"success"`
	FocusedWindow *schemas.Window `json:"focused_window,omitempty"`
	FocusTimeMs   int64           `json:"focus_time_ms"`
	FocusError    string          `json:"focus_error,omitempty"`
}

// Driver is the input surface used by the executor: plain humanoid primitives
// plus variants that first focus a target application.
type Driver struct {
	*Humanoid
	focuser Focuser
	logger  *zap.Logger
}

func NewDriver(h *Humanoid, focuser Focuser, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{Humanoid: h, focuser: focuser, logger: logger.Named("input")}
}

func (d *Driver) focus(ctx context.Context, target Target) (TargetedResult, error) {
	if target.App == "" {
		return TargetedResult{Success: true}, nil
	}
	if d.focuser == nil {
		return TargetedResult{}, fmt.Errorf("%w: no window focuser configured", schemas.ErrNotReady)
	}

	start := time.Now()
	win, err := d.focuser.FocusApp(ctx, target.App, target.Criteria)
	res := TargetedResult{FocusedWindow: win, FocusTimeMs: time.Since(start).Milliseconds()}
	if err == nil {
		res.Success = true
		return res, nil
	}

	res.FocusError = err.Error()
	if target.EnsureFocus {
		if !errors.Is(err, schemas.ErrWindowFocusFailed) {
			err = fmt.Errorf("%w: %v", schemas.ErrWindowFocusFailed, err)
		}
		return res, err
	}
	d.logger.Warn("Could not focus target window, continuing",
		zap.String("app", target.App), zap.Error(err))
	res.Success = true
	return res, nil
}

// ClickTargeted focuses target and clicks at (x, y).
func (d *Driver) ClickTargeted(ctx context.Context, target Target, x, y int, button schemas.MouseButton, clicks int) (TargetedResult, error) {
	res, err := d.focus(ctx, target)
	if err != nil {
		return res, err
	}
	if err := d.Click(ctx, x, y, button, clicks); err != nil {
		res.Success = false
		return res, err
	}
	return res, nil
}

// TypeTargeted focuses target and types text.
func (d *Driver) TypeTargeted(ctx context.Context, target Target, text string, interval time.Duration) (TargetedResult, error) {
	res, err := d.focus(ctx, target)
	if err != nil {
		return res, err
	}
	if err := d.Type(ctx, text, interval); err != nil {
		res.Success = false
		return res, err
	}
	return res, nil
}

// PressTargeted focuses target and presses keys in order.
func (d *Driver) PressTargeted(ctx context.Context, target Target, keys ...string) (TargetedResult, error) {
	res, err := d.focus(ctx, target)
	if err != nil {
		return res, err
	}
	if err := d.Press(ctx, keys...); err != nil {
		res.Success = false
		return res, err
	}
	return res, nil
}

// ScrollTargeted focuses target and scrolls.
func (d *Driver) ScrollTargeted(ctx context.Context, target Target, direction schemas.ScrollDirection, amount int, at *schemas.Point) (TargetedResult, error) {
	res, err := d.focus(ctx, target)
	if err != nil {
		return res, err
	}
	if err := d.Scroll(ctx, direction, amount, at); err != nil {
		res.Success = false
		return res, err
	}
	return res, nil
}
