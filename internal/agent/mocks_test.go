package agent

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Vrooli/agent-s2/api/schemas"
	"github.com/Vrooli/agent-s2/internal/audit"
	"github.com/Vrooli/agent-s2/internal/capture"
	"github.com/Vrooli/agent-s2/internal/desktop"
	"github.com/Vrooli/agent-s2/internal/humanoid"
	"github.com/Vrooli/agent-s2/internal/planner"
	"github.com/Vrooli/agent-s2/internal/store"
	"github.com/Vrooli/agent-s2/internal/watchdog"
)

type fakePlanner struct {
	mu     sync.Mutex
	result *planner.PlanResult
	err    error
	block  chan struct{}
	reqs   []planner.PlanRequest
}

func (f *fakePlanner) PlanTaskExecution(ctx context.Context, req planner.PlanRequest) (*planner.PlanResult, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func planOf(steps ...schemas.Action) *planner.PlanResult {
	return &planner.PlanResult{
		Plan:        schemas.Plan{Steps: steps, Reasoning: "test plan", EstimatedDuration: "10s"},
		RawResponse: `{"steps":[]}`,
		Debug:       schemas.PlannerDebug{SystemPrompt: "system", PlanValidated: true},
	}
}

func testScreenshot(t testing.TB) *schemas.Screenshot {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 4, 3))))
	return &schemas.Screenshot{
		Format:     schemas.FormatPNG,
		Size:       schemas.Size{Width: 4, Height: 3},
		Data:       "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
		CapturedAt: time.Now(),
	}
}

type fakeCapturer struct {
	shot  *schemas.Screenshot
	err   error
	calls int
}

func (f *fakeCapturer) Capture(context.Context, capture.Request) (*schemas.Screenshot, error) {
	f.calls++
	return f.shot, f.err
}

type fakeWindows struct {
	windows []schemas.Window
	focused *schemas.Window
}

func (f *fakeWindows) ListWindows(context.Context) ([]schemas.Window, error) { return f.windows, nil }

func (f *fakeWindows) FocusedWindow(context.Context) (*schemas.Window, error) {
	if f.focused == nil {
		return nil, fmt.Errorf("%w: no active window", schemas.ErrExternalUnavailable)
	}
	return f.focused, nil
}

type launchCall struct {
	app  string
	args []string
}

type fakeLauncher struct {
	appeared bool
	err      error
	calls    []launchCall
}

func (f *fakeLauncher) Start(_ context.Context, app string, args ...string) (bool, error) {
	f.calls = append(f.calls, launchCall{app: app, args: args})
	return f.appeared, f.err
}

type fakeCatalog struct{ apps []desktop.LaunchableApp }

func (f fakeCatalog) Apps() []desktop.LaunchableApp { return f.apps }

func (f fakeCatalog) Resolve(name string) (desktop.LaunchableApp, bool) {
	for _, a := range f.apps {
		if a.Name == name {
			return a, true
		}
	}
	return desktop.LaunchableApp{}, false
}

// fakeInput records each dispatch as "<kind>:<detail>@<target app>".
type fakeInput struct {
	mu       sync.Mutex
	calls    []string
	failOn   map[string]error
	focusErr string
	panicOn  string
}

func (f *fakeInput) record(kind, detail string, target humanoid.Target) (humanoid.TargetedResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOn == kind {
		panic("input driver exploded")
	}
	f.calls = append(f.calls, fmt.Sprintf("%s:%s@%s", kind, detail, target.App))
	res := humanoid.TargetedResult{Success: true}
	if target.App != "" && f.focusErr != "" {
		res.FocusError = f.focusErr
	}
	if err := f.failOn[kind]; err != nil {
		res.Success = false
		return res, err
	}
	return res, nil
}

func (f *fakeInput) ClickTargeted(_ context.Context, target humanoid.Target, x, y int, button schemas.MouseButton, clicks int) (humanoid.TargetedResult, error) {
	return f.record("click", fmt.Sprintf("%d,%d,%s,%d", x, y, button, clicks), target)
}

func (f *fakeInput) TypeTargeted(_ context.Context, target humanoid.Target, text string, _ time.Duration) (humanoid.TargetedResult, error) {
	return f.record("type", text, target)
}

func (f *fakeInput) PressTargeted(_ context.Context, target humanoid.Target, keys ...string) (humanoid.TargetedResult, error) {
	return f.record("key", fmt.Sprint(keys), target)
}

func (f *fakeInput) ScrollTargeted(_ context.Context, target humanoid.Target, direction schemas.ScrollDirection, amount int, at *schemas.Point) (humanoid.TargetedResult, error) {
	return f.record("scroll", fmt.Sprintf("%s,%d,%v", direction, amount, at != nil), target)
}

type fakeValidator struct {
	fn func(schemas.Action) schemas.ActionSecurityResult
}

func (f fakeValidator) ValidateAction(_ context.Context, a schemas.Action, _ string) schemas.ActionSecurityResult {
	if f.fn == nil {
		return schemas.ActionSecurityResult{Valid: true}
	}
	return f.fn(a)
}

type fakeCleaner struct {
	result watchdog.CleanupResult
	calls  int
}

func (f *fakeCleaner) EnsureCleanState(context.Context) watchdog.CleanupResult {
	f.calls++
	return f.result
}

type fakeProfiles struct{ args []string }

func (f fakeProfiles) LaunchArgs(app string) ([]string, error) {
	if app == schemas.DefaultBrowserApp {
		return f.args, nil
	}
	return nil, nil
}

type fakeAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (f *fakeAuditor) LogAction(_ context.Context, e audit.Entry) schemas.SecurityEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return schemas.SecurityEvent{Action: e.Action}
}

type fakeReady bool

func (f fakeReady) IsReady() bool { return bool(f) }

type fakeRecorder struct {
	mu      sync.Mutex
	records []store.TaskRecord
}

func (f *fakeRecorder) SaveTaskRecord(_ context.Context, rec store.TaskRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

// harness bundles an executor with inspectable fakes.
type harness struct {
	exec     *Executor
	planner  *fakePlanner
	capturer *fakeCapturer
	windows  *fakeWindows
	launcher *fakeLauncher
	input    *fakeInput
	cleaner  *fakeCleaner
	auditor  *fakeAuditor
	recorder *fakeRecorder
	slept    []time.Duration
}

func newHarness(t *testing.T, plan *planner.PlanResult, mutate func(*Deps, *Options)) *harness {
	t.Helper()
	h := &harness{
		planner:  &fakePlanner{result: plan},
		capturer: &fakeCapturer{shot: testScreenshot(t)},
		windows:  &fakeWindows{},
		launcher: &fakeLauncher{appeared: true},
		input:    &fakeInput{},
		cleaner:  &fakeCleaner{result: watchdog.CleanupResult{Success: true}},
		auditor:  &fakeAuditor{},
		recorder: &fakeRecorder{},
	}
	deps := Deps{
		Planner:   h.planner,
		Capturer:  h.capturer,
		Windows:   h.windows,
		Launcher:  h.launcher,
		Catalog:   fakeCatalog{apps: []desktop.LaunchableApp{{Name: "Firefox ESR", Command: "firefox-esr", Path: "/usr/bin/firefox-esr"}}},
		Input:     h.input,
		Validator: fakeValidator{},
		Cleaner:   h.cleaner,
		Auditor:   h.auditor,
		Ready:     fakeReady(true),
		Recorder:  h.recorder,
		Shortcuts: DefaultShortcuts,
		Metrics:   NewMetrics(prometheus.NewRegistry()),
	}
	opts := Options{ScreenshotDir: t.TempDir(), LaunchGrace: 2 * time.Second, TaskTimeout: time.Minute}
	if mutate != nil {
		mutate(&deps, &opts)
	}
	h.exec = NewExecutor(deps, zap.NewNop(), opts)
	h.exec.sleep = func(ctx context.Context, d time.Duration) error {
		h.slept = append(h.slept, d)
		return ctx.Err()
	}
	return h
}
