// internal/humanoid/mocks_test.go
package humanoid

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/Vrooli/agent-s2/api/schemas"
)

// mockExecutor records every event it is asked to dispatch.
type mockExecutor struct {
	mu               sync.Mutex
	dispatchedEvents []schemas.MouseEventData
	sentKeys         []string
	structuredKeys   []schemas.KeyEventData
	sleepDurations   []time.Duration

	// failMoveWhilePressed rejects pointer moves that carry a held button.
	failMoveWhilePressed bool
}

func newMockExecutor() *mockExecutor { return &mockExecutor{} }

func (m *mockExecutor) Sleep(ctx context.Context, d time.Duration) error {
	m.mu.Lock()
	m.sleepDurations = append(m.sleepDurations, d)
	m.mu.Unlock()
	return ctx.Err()
}

func (m *mockExecutor) DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatchedEvents = append(m.dispatchedEvents, data)
	if m.failMoveWhilePressed && data.Type == schemas.MouseMove && data.Buttons > 0 {
		return errors.New("pointer grab lost")
	}
	return ctx.Err()
}

func (m *mockExecutor) SendKeys(ctx context.Context, keys string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentKeys = append(m.sentKeys, keys)
	return ctx.Err()
}

func (m *mockExecutor) DispatchStructuredKey(ctx context.Context, data schemas.KeyEventData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.structuredKeys = append(m.structuredKeys, data)
	return ctx.Err()
}

func (m *mockExecutor) events() []schemas.MouseEventData {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]schemas.MouseEventData(nil), m.dispatchedEvents...)
}

func (m *mockExecutor) eventsOfType(t schemas.MouseEventType) []schemas.MouseEventData {
	var out []schemas.MouseEventData
	for _, e := range m.events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// recordingRunner captures xdotool invocations as single strings.
type recordingRunner struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name+" "+strings.Join(args, " "))
	return nil, nil
}

type fakeFocuser struct {
	window *schemas.Window
	err    error
	calls  int
}

func (f *fakeFocuser) FocusApp(_ context.Context, app string, _ *schemas.WindowCriteria) (*schemas.Window, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	w := *f.window
	w.AppName = app
	return &w, nil
}
