// internal/humanoid/mouse.go
package humanoid

import (
	"context"
	"fmt"
	"time"

	"github.com/Vrooli/agent-s2/api/schemas"
)

// MoveTo moves the pointer to (x, y). Duration zero means Fitts's law decides.
func (h *Humanoid) MoveTo(ctx context.Context, x, y int, duration time.Duration) error {
	target := h.clampToScreen(pointOf(x, y))
	if !h.enabled() {
		if err := h.executor.DispatchMouseEvent(ctx, schemas.MouseEventData{
			Type: schemas.MouseMove, X: target.X, Y: target.Y, Button: schemas.ButtonNone,
		}); err != nil {
			return err
		}
		h.mu.Lock()
		h.currentPos = target
		h.mu.Unlock()
		return nil
	}
	return h.simulateTrajectory(ctx, target, duration)
}

// Click moves to (x, y) and presses button clicks times.
func (h *Humanoid) Click(ctx context.Context, x, y int, button schemas.MouseButton, clicks int) error {
	if button == "" {
		button = schemas.ButtonLeft
	}
	if !button.IsValid() {
		return fmt.Errorf("%w: invalid mouse button %q", schemas.ErrInvalidInput, button)
	}
	if clicks < 1 {
		clicks = 1
	}
	if err := h.MoveTo(ctx, x, y, 0); err != nil {
		return fmt.Errorf("moving to click target: %w", err)
	}
	pos := h.currentPosition()
	for i := 1; i <= clicks; i++ {
		if err := h.press(ctx, pos, button, i); err != nil {
			return err
		}
		if err := h.hold(ctx); err != nil {
			return err
		}
		if err := h.release(ctx, pos, button, i); err != nil {
			return err
		}
		if i < clicks && h.enabled() {
			if err := h.executor.Sleep(ctx, 80*time.Millisecond); err != nil {
				return err
			}
		}
	}
	return nil
}

// Drag presses button at start, moves to end over duration, and releases.
func (h *Humanoid) Drag(ctx context.Context, start, end schemas.Point, duration time.Duration, button schemas.MouseButton) error {
	if button == "" {
		button = schemas.ButtonLeft
	}
	if !button.IsValid() {
		return fmt.Errorf("%w: invalid mouse button %q", schemas.ErrInvalidInput, button)
	}
	if err := h.MoveTo(ctx, start.X, start.Y, 0); err != nil {
		return err
	}
	if err := h.press(ctx, h.currentPosition(), button, 1); err != nil {
		return err
	}

	moveErr := h.MoveTo(ctx, end.X, end.Y, duration)

	// Always release so a failed move does not leave the button stuck down.
	releaseCtx := ctx
	if ctx.Err() != nil {
		releaseCtx = context.Background()
	}
	if err := h.release(releaseCtx, h.currentPosition(), button, 1); err != nil && moveErr == nil {
		return err
	}
	return moveErr
}

// Scroll emits amount wheel notches in direction, optionally at a point.
func (h *Humanoid) Scroll(ctx context.Context, direction schemas.ScrollDirection, amount int, at *schemas.Point) error {
	var dy float64
	switch direction {
	case schemas.ScrollUp:
		dy = -1
	case schemas.ScrollDown, "":
		dy = 1
	default:
		return fmt.Errorf("%w: invalid scroll direction %q", schemas.ErrInvalidInput, direction)
	}
	if amount < 0 {
		return fmt.Errorf("%w: negative scroll amount %d", schemas.ErrInvalidInput, amount)
	}
	if at != nil {
		if err := h.MoveTo(ctx, at.X, at.Y, 0); err != nil {
			return err
		}
	}
	pos := h.currentPosition()
	for i := 0; i < amount; i++ {
		if err := h.executor.DispatchMouseEvent(ctx, schemas.MouseEventData{
			Type: schemas.MouseWheel, X: pos.X, Y: pos.Y, DeltaY: dy,
		}); err != nil {
			return fmt.Errorf("scrolling: %w", err)
		}
		if h.enabled() {
			if err := h.executor.Sleep(ctx, 40*time.Millisecond); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *Humanoid) currentPosition() Vector2D {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentPos
}

func (h *Humanoid) press(ctx context.Context, pos Vector2D, button schemas.MouseButton, count int) error {
	if err := h.executor.DispatchMouseEvent(ctx, schemas.MouseEventData{
		Type: schemas.MousePress, X: pos.X, Y: pos.Y, Button: button, ClickCount: count,
	}); err != nil {
		return fmt.Errorf("pressing %s button: %w", button, err)
	}
	h.mu.Lock()
	h.currentButton = button
	h.mu.Unlock()
	return nil
}

func (h *Humanoid) release(ctx context.Context, pos Vector2D, button schemas.MouseButton, count int) error {
	h.mu.Lock()
	h.currentButton = schemas.ButtonNone
	h.mu.Unlock()
	if err := h.executor.DispatchMouseEvent(ctx, schemas.MouseEventData{
		Type: schemas.MouseRelease, X: pos.X, Y: pos.Y, Button: button, ClickCount: count,
	}); err != nil {
		return fmt.Errorf("releasing %s button: %w", button, err)
	}
	return nil
}

func (h *Humanoid) hold(ctx context.Context) error {
	if !h.enabled() {
		return nil
	}
	d := h.clickHold()
	if err := h.executor.Sleep(ctx, d); err != nil {
		return err
	}
	h.recoverFatigue(d)
	return nil
}
