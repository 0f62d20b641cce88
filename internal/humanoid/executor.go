// internal/humanoid/executor.go
package humanoid

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Vrooli/agent-s2/api/schemas"
	"github.com/Vrooli/agent-s2/internal/desktop"
)

// Executor is the low-level input backend the humanoid model drives.
type Executor interface {
	Sleep(ctx context.Context, d time.Duration) error
	DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error
	SendKeys(ctx context.Context, keys string) error
	DispatchStructuredKey(ctx context.Context, data schemas.KeyEventData) error
}

// XdotoolExecutor synthesizes X11 input through xdotool.
type XdotoolExecutor struct {
	runner desktop.Runner
}

var _ Executor = (*XdotoolExecutor)(nil)

func NewXdotoolExecutor(runner desktop.Runner) *XdotoolExecutor {
	return &XdotoolExecutor{runner: runner}
}

func (x *XdotoolExecutor) Sleep(ctx context.Context, d time.Duration) error {
	return sleepCtx(ctx, d)
}

func (x *XdotoolExecutor) DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error {
	var args []string
	switch data.Type {
	case schemas.MouseMove:
		px, py := Vector2D{X: data.X, Y: data.Y}.rounded()
		args = []string{"mousemove", "--sync", strconv.Itoa(px), strconv.Itoa(py)}
	case schemas.MousePress:
		args = []string{"mousedown", xButton(data.Button)}
	case schemas.MouseRelease:
		args = []string{"mouseup", xButton(data.Button)}
	case schemas.MouseWheel:
		// X11 reports wheel notches as buttons 4 (up) and 5 (down).
		button := "5"
		if data.DeltaY < 0 {
			button = "4"
		}
		args = []string{"click", button}
	default:
		return fmt.Errorf("%w: unsupported mouse event %q", schemas.ErrInvalidInput, data.Type)
	}
	_, err := x.runner.Run(ctx, "xdotool", args...)
	return err
}

func (x *XdotoolExecutor) SendKeys(ctx context.Context, keys string) error {
	if keys == "" {
		return nil
	}
	_, err := x.runner.Run(ctx, "xdotool", "type", "--delay", "0", "--", keys)
	return err
}

func (x *XdotoolExecutor) DispatchStructuredKey(ctx context.Context, data schemas.KeyEventData) error {
	_, err := x.runner.Run(ctx, "xdotool", "key", "--", xdotoolCombo(data))
	return err
}

func xButton(b schemas.MouseButton) string {
	switch b {
	case schemas.ButtonRight:
		return "3"
	case schemas.ButtonMiddle:
		return "2"
	default:
		return "1"
	}
}

var keysyms = map[string]string{
	"enter":     "Return",
	"return":    "Return",
	"kp_enter":  "KP_Enter",
	"esc":       "Escape",
	"escape":    "Escape",
	"tab":       "Tab",
	"backspace": "BackSpace",
	"delete":    "Delete",
	"del":       "Delete",
	"insert":    "Insert",
	"space":     "space",
	"up":        "Up",
	"down":      "Down",
	"left":      "Left",
	"right":     "Right",
	"home":      "Home",
	"end":       "End",
	"pageup":    "Page_Up",
	"page_up":   "Page_Up",
	"pagedown":  "Page_Down",
	"page_down": "Page_Down",
	"+":         "plus",
	"-":         "minus",
}

// keysym maps a friendly key name onto its X11 keysym.
func keysym(key string) string {
	lower := strings.ToLower(key)
	if s, ok := keysyms[lower]; ok {
		return s
	}
	if len(lower) >= 2 && lower[0] == 'f' {
		if n, err := strconv.Atoi(lower[1:]); err == nil && n >= 1 && n <= 24 {
			return "F" + lower[1:]
		}
	}
	if len(key) == 1 {
		return lower
	}
	return key
}

func xdotoolCombo(data schemas.KeyEventData) string {
	var parts []string
	if data.Modifiers&schemas.ModCtrl != 0 {
		parts = append(parts, "ctrl")
	}
	if data.Modifiers&schemas.ModAlt != 0 {
		parts = append(parts, "alt")
	}
	if data.Modifiers&schemas.ModShift != 0 {
		parts = append(parts, "shift")
	}
	if data.Modifiers&schemas.ModMeta != 0 {
		parts = append(parts, "super")
	}
	return strings.Join(append(parts, keysym(data.Key)), "+")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
