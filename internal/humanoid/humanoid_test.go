// internal/humanoid/humanoid_test.go
package humanoid

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/Vrooli/agent-s2/api/schemas"
	"github.com/Vrooli/agent-s2/internal/config"
)

func TestParseKeyCombo(t *testing.T) {
	tests := []struct {
		in      string
		want    schemas.KeyEventData
		wantErr bool
	}{
		{in: "Enter", want: schemas.KeyEventData{Key: "Enter"}},
		{in: "Ctrl+A", want: schemas.KeyEventData{Key: "A", Modifiers: schemas.ModCtrl}},
		{in: "ctrl+shift+t", want: schemas.KeyEventData{Key: "t", Modifiers: schemas.ModCtrl | schemas.ModShift}},
		{in: "Ctrl++", want: schemas.KeyEventData{Key: "+", Modifiers: schemas.ModCtrl}},
		{in: "+", want: schemas.KeyEventData{Key: "+"}},
		{in: "Hyper+X", wantErr: true},
		{in: "Ctrl+", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKeyCombo(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, schemas.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestXdotoolCombo(t *testing.T) {
	assert.Equal(t, "ctrl+a", xdotoolCombo(schemas.KeyEventData{Key: "A", Modifiers: schemas.ModCtrl}))
	assert.Equal(t, "Return", xdotoolCombo(schemas.KeyEventData{Key: "Enter"}))
	assert.Equal(t, "F5", xdotoolCombo(schemas.KeyEventData{Key: "f5"}))
	assert.Equal(t, "ctrl+shift+t", xdotoolCombo(schemas.KeyEventData{Key: "t", Modifiers: schemas.ModCtrl | schemas.ModShift}))
	assert.Equal(t, "alt+Tab", xdotoolCombo(schemas.KeyEventData{Key: "tab", Modifiers: schemas.ModAlt}))
}

func TestXdotoolExecutor(t *testing.T) {
	runner := &recordingRunner{}
	x := NewXdotoolExecutor(runner)
	ctx := context.Background()

	require.NoError(t, x.DispatchMouseEvent(ctx, schemas.MouseEventData{Type: schemas.MouseMove, X: 10.4, Y: 20.6}))
	require.NoError(t, x.DispatchMouseEvent(ctx, schemas.MouseEventData{Type: schemas.MousePress, Button: schemas.ButtonRight}))
	require.NoError(t, x.DispatchMouseEvent(ctx, schemas.MouseEventData{Type: schemas.MouseRelease, Button: schemas.ButtonLeft}))
	require.NoError(t, x.DispatchMouseEvent(ctx, schemas.MouseEventData{Type: schemas.MouseWheel, DeltaY: -1}))
	require.NoError(t, x.SendKeys(ctx, "https://youtube.com"))
	require.NoError(t, x.SendKeys(ctx, ""))
	require.NoError(t, x.DispatchStructuredKey(ctx, schemas.KeyEventData{Key: "a", Modifiers: schemas.ModCtrl}))

	assert.Equal(t, []string{
		"xdotool mousemove --sync 10 21",
		"xdotool mousedown 3",
		"xdotool mouseup 1",
		"xdotool click 4",
		"xdotool type --delay 0 -- https://youtube.com",
		"xdotool key -- ctrl+a",
	}, runner.calls)

	err := x.DispatchMouseEvent(ctx, schemas.MouseEventData{Type: "mouseTeleported"})
	assert.ErrorIs(t, err, schemas.ErrInvalidInput)
}

func TestMoveToEndsAtTarget(t *testing.T) {
	mock := newMockExecutor()
	h := NewTestHumanoid(mock, 42)
	h.SetBounds(1920, 1080)

	require.NoError(t, h.MoveTo(context.Background(), 500, 300, 0))

	moves := mock.eventsOfType(schemas.MouseMove)
	require.GreaterOrEqual(t, len(moves), 2)
	last := moves[len(moves)-1]
	assert.Equal(t, 500.0, last.X)
	assert.Equal(t, 300.0, last.Y)
	assert.Equal(t, schemas.Point{X: 500, Y: 300}, h.Position())
	assert.Greater(t, h.Fatigue(), 0.0)
}

func TestMoveToClampsToBounds(t *testing.T) {
	mock := newMockExecutor()
	h := NewTestHumanoid(mock, 7)
	h.SetBounds(100, 100)

	require.NoError(t, h.MoveTo(context.Background(), 500, 500, 0))
	for _, e := range mock.eventsOfType(schemas.MouseMove) {
		assert.LessOrEqual(t, e.X, 99.0)
		assert.LessOrEqual(t, e.Y, 99.0)
		assert.GreaterOrEqual(t, e.X, 0.0)
		assert.GreaterOrEqual(t, e.Y, 0.0)
	}
	assert.Equal(t, schemas.Point{X: 99, Y: 99}, h.Position())
}

func TestDisabledHumanoidJumps(t *testing.T) {
	mock := newMockExecutor()
	cfg := DefaultConfig()
	cfg.Enabled = false
	cfg.Rng = rand.New(rand.NewSource(1))
	h := New(cfg, zap.NewNop(), mock)

	require.NoError(t, h.MoveTo(context.Background(), 640, 480, 0))
	require.Len(t, mock.events(), 1)

	require.NoError(t, h.Type(context.Background(), "hello", 0))
	assert.Equal(t, []string{"hello"}, mock.sentKeys)
	assert.Empty(t, mock.sleepDurations)
}

func TestClickDispatchesPressReleasePairs(t *testing.T) {
	mock := newMockExecutor()
	h := NewTestHumanoid(mock, 3)

	require.NoError(t, h.Click(context.Background(), 10, 20, schemas.ButtonRight, 2))

	var clicks []schemas.MouseEventData
	for _, e := range mock.events() {
		if e.Type == schemas.MousePress || e.Type == schemas.MouseRelease {
			clicks = append(clicks, e)
		}
	}
	require.Len(t, clicks, 4)
	wantTypes := []schemas.MouseEventType{schemas.MousePress, schemas.MouseRelease, schemas.MousePress, schemas.MouseRelease}
	wantCounts := []int{1, 1, 2, 2}
	for i, e := range clicks {
		assert.Equal(t, wantTypes[i], e.Type)
		assert.Equal(t, wantCounts[i], e.ClickCount)
		assert.Equal(t, schemas.ButtonRight, e.Button)
		assert.Equal(t, 10.0, e.X)
		assert.Equal(t, 20.0, e.Y)
	}
}

func TestClickRejectsInvalidButton(t *testing.T) {
	h := NewTestHumanoid(newMockExecutor(), 1)
	err := h.Click(context.Background(), 1, 1, schemas.ButtonNone, 1)
	assert.ErrorIs(t, err, schemas.ErrInvalidInput)
}

func TestDragReleasesButtonWhenMoveFails(t *testing.T) {
	mock := newMockExecutor()
	mock.failMoveWhilePressed = true
	h := NewTestHumanoid(mock, 9)

	err := h.Drag(context.Background(), schemas.Point{X: 10, Y: 10}, schemas.Point{X: 300, Y: 200}, 50*time.Millisecond, schemas.ButtonLeft)
	require.Error(t, err)

	events := mock.events()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, schemas.MouseRelease, last.Type)
	assert.Equal(t, schemas.ButtonLeft, last.Button)
}

func TestDragCarriesHeldButton(t *testing.T) {
	mock := newMockExecutor()
	h := NewTestHumanoid(mock, 11)

	require.NoError(t, h.Drag(context.Background(), schemas.Point{X: 0, Y: 0}, schemas.Point{X: 200, Y: 100}, 30*time.Millisecond, schemas.ButtonLeft))

	events := mock.events()
	pressIdx, releaseIdx := -1, -1
	for i, e := range events {
		switch e.Type {
		case schemas.MousePress:
			pressIdx = i
		case schemas.MouseRelease:
			releaseIdx = i
		}
	}
	require.Greater(t, releaseIdx, pressIdx)
	for _, e := range events[pressIdx+1 : releaseIdx] {
		assert.Equal(t, int64(1), e.Buttons)
	}
	assert.Equal(t, schemas.Point{X: 200, Y: 100}, h.Position())
}

func TestTypeWithFixedInterval(t *testing.T) {
	mock := newMockExecutor()
	h := NewTestHumanoid(mock, 5)

	require.NoError(t, h.Type(context.Background(), "abc", 10*time.Millisecond))
	assert.Equal(t, []string{"a", "b", "c"}, mock.sentKeys)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 10 * time.Millisecond, 10 * time.Millisecond}, mock.sleepDurations)
}

func TestTypeModelledPausesArePositive(t *testing.T) {
	mock := newMockExecutor()
	h := NewTestHumanoid(mock, 5)

	require.NoError(t, h.Type(context.Background(), "héllo", 0))
	assert.Equal(t, []string{"h", "é", "l", "l", "o"}, mock.sentKeys)
	for _, d := range mock.sleepDurations {
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
	}
}

func TestPressCombos(t *testing.T) {
	mock := newMockExecutor()
	h := NewTestHumanoid(mock, 5)

	require.NoError(t, h.Press(context.Background(), "Ctrl+A", "Enter"))
	assert.Equal(t, []schemas.KeyEventData{
		{Key: "A", Modifiers: schemas.ModCtrl},
		{Key: "Enter"},
	}, mock.structuredKeys)

	assert.ErrorIs(t, h.Press(context.Background()), schemas.ErrInvalidInput)
	assert.ErrorIs(t, h.Press(context.Background(), "Bogus+X"), schemas.ErrInvalidInput)
}

func TestScroll(t *testing.T) {
	mock := newMockExecutor()
	h := NewTestHumanoid(mock, 5)

	require.NoError(t, h.Scroll(context.Background(), schemas.ScrollUp, 3, nil))
	wheel := mock.eventsOfType(schemas.MouseWheel)
	require.Len(t, wheel, 3)
	for _, e := range wheel {
		assert.Equal(t, -1.0, e.DeltaY)
	}

	require.NoError(t, h.Scroll(context.Background(), schemas.ScrollDown, 1, &schemas.Point{X: 50, Y: 60}))
	wheel = mock.eventsOfType(schemas.MouseWheel)
	assert.Equal(t, 1.0, wheel[len(wheel)-1].DeltaY)
	assert.Equal(t, 50.0, wheel[len(wheel)-1].X)

	assert.ErrorIs(t, h.Scroll(context.Background(), "sideways", 1, nil), schemas.ErrInvalidInput)
	assert.ErrorIs(t, h.Scroll(context.Background(), schemas.ScrollDown, -1, nil), schemas.ErrInvalidInput)
}

func TestCancelledContextStopsMovement(t *testing.T) {
	mock := newMockExecutor()
	h := NewTestHumanoid(mock, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.MoveTo(ctx, 800, 600, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, mock.events())
}

func TestFatigueRecovers(t *testing.T) {
	h := NewTestHumanoid(newMockExecutor(), 5)
	h.updateFatigue(10)
	raised := h.Fatigue()
	require.Greater(t, raised, 0.0)
	assert.Greater(t, h.dynamicConfig.FittsA, h.baseConfig.FittsA)

	h.recoverFatigue(time.Hour)
	assert.Equal(t, 0.0, h.Fatigue())
	assert.Equal(t, h.baseConfig.FittsA, h.dynamicConfig.FittsA)
}

func TestIdealPathEndpoints(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		start := Vector2D{X: rapid.Float64Range(0, 1920).Draw(t, "sx"), Y: rapid.Float64Range(0, 1080).Draw(t, "sy")}
		end := Vector2D{X: rapid.Float64Range(0, 1920).Draw(t, "ex"), Y: rapid.Float64Range(0, 1080).Draw(t, "ey")}
		steps := rapid.IntRange(2, 200).Draw(t, "steps")

		field := NewPotentialField()
		field.AddSource(start.Add(end).Mul(0.5), 0.8, 200)
		path := idealPath(start, end, field, steps)

		last := path[len(path)-1]
		if last.Dist(end) > 1e-6 {
			t.Fatalf("path ends at %v, want %v", last, end)
		}
		if start.Dist(end) >= 1 && path[0].Dist(start) > 1e-6 {
			t.Fatalf("path starts at %v, want %v", path[0], start)
		}
	})
}

func TestPotentialFieldForceIsBounded(t *testing.T) {
	f := NewPotentialField()
	f.AddSource(Vector2D{X: 100, Y: 100}, 50, 10)
	f.AddSource(Vector2D{X: 110, Y: 100}, -5, 10)

	force := f.CalculateNetForce(Vector2D{X: 105, Y: 100})
	assert.LessOrEqual(t, force.Mag(), 1.0+1e-9)
	assert.Less(t, force.X, 0.0, "pulled toward the attractor and away from the repulsor")
}

func TestEaseInOutCubic(t *testing.T) {
	assert.Equal(t, 0.0, easeInOutCubic(0))
	assert.Equal(t, 1.0, easeInOutCubic(1))
	assert.InDelta(t, 0.5, easeInOutCubic(0.5), 1e-9)
	assert.True(t, math.Abs(easeInOutCubic(0.25)-0.0625) < 1e-9)
}

func TestFromAppConfig(t *testing.T) {
	appCfg := config.NewDefaultConfig().Humanoid()
	cfg := FromAppConfig(appCfg)
	assert.Equal(t, appCfg.Enabled, cfg.Enabled)
	assert.Equal(t, appCfg.FittsA, cfg.FittsA)
	assert.Equal(t, appCfg.TypeIntervalMs, cfg.TypeIntervalMs)
}

func TestDriverTargetedVariants(t *testing.T) {
	win := &schemas.Window{WindowID: "0x01", Title: "Mozilla Firefox"}

	t.Run("focus success", func(t *testing.T) {
		mock := newMockExecutor()
		focuser := &fakeFocuser{window: win}
		d := NewDriver(NewTestHumanoid(mock, 1), focuser, zap.NewNop())

		res, err := d.TypeTargeted(context.Background(), Target{App: "firefox", EnsureFocus: true}, "hi", time.Millisecond)
		require.NoError(t, err)
		assert.True(t, res.Success)
		require.NotNil(t, res.FocusedWindow)
		assert.Equal(t, "firefox", res.FocusedWindow.AppName)
		assert.GreaterOrEqual(t, res.FocusTimeMs, int64(0))
		assert.Equal(t, []string{"h", "i"}, mock.sentKeys)
	})

	t.Run("required focus fails", func(t *testing.T) {
		mock := newMockExecutor()
		focuser := &fakeFocuser{err: errors.New("no window")}
		d := NewDriver(NewTestHumanoid(mock, 1), focuser, zap.NewNop())

		res, err := d.ClickTargeted(context.Background(), Target{App: "firefox", EnsureFocus: true}, 5, 5, schemas.ButtonLeft, 1)
		assert.ErrorIs(t, err, schemas.ErrWindowFocusFailed)
		assert.False(t, res.Success)
		assert.Equal(t, "no window", res.FocusError)
		assert.Empty(t, mock.events())
	})

	t.Run("best effort focus proceeds", func(t *testing.T) {
		mock := newMockExecutor()
		focuser := &fakeFocuser{err: schemas.ErrWindowFocusFailed}
		d := NewDriver(NewTestHumanoid(mock, 1), focuser, zap.NewNop())

		res, err := d.PressTargeted(context.Background(), Target{App: "firefox"}, "Enter")
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.NotEmpty(t, res.FocusError)
		assert.Len(t, mock.structuredKeys, 1)
	})

	t.Run("untargeted skips focus", func(t *testing.T) {
		mock := newMockExecutor()
		focuser := &fakeFocuser{window: win}
		d := NewDriver(NewTestHumanoid(mock, 1), focuser, zap.NewNop())

		res, err := d.ScrollTargeted(context.Background(), Target{}, schemas.ScrollDown, 2, nil)
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, 0, focuser.calls)
		assert.Nil(t, res.FocusedWindow)
	})
}
