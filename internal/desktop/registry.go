// internal/desktop/registry.go
package desktop

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Vrooli/agent-s2/api/schemas"
	"go.uber.org/zap"
)

const focusPollInterval = 100 * time.Millisecond

// Options tunes a Registry. Zero values select the defaults.
type Options struct {
	CacheTTL     time.Duration
	FocusTimeout time.Duration
	StartTimeout time.Duration
	ProcRoot     string
	// Catalog, when set, supplies the installed command for Start.
	Catalog *Catalog
}

type windowSnapshot struct {
	windows   []schemas.Window
	fetchedAt time.Time
}

// Registry enumerates X11 windows and manages focus.
//
// The window list is cached for CacheTTL. The cache is a single atomic pointer
// written only by enumerate, so readers never block.
type Registry struct {
	runner       Runner
	spawner      Spawner
	logger       *zap.Logger
	ttl          time.Duration
	focusTimeout time.Duration
	startTimeout time.Duration
	procRoot     string
	catalog      *Catalog
	now          func() time.Time

	snapshot   atomic.Pointer[windowSnapshot]
	lastActive sync.Map // normalized window id -> time.Time
}

// NewRegistry creates a window registry backed by wmctrl and xprop.
func NewRegistry(runner Runner, spawner Spawner, logger *zap.Logger, opts Options) *Registry {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Second
	}
	if opts.FocusTimeout <= 0 {
		opts.FocusTimeout = 2 * time.Second
	}
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = 2 * time.Second
	}
	if opts.ProcRoot == "" {
		opts.ProcRoot = "/proc"
	}
	return &Registry{
		runner:       runner,
		spawner:      spawner,
		logger:       logger.Named("window_registry"),
		ttl:          opts.CacheTTL,
		focusTimeout: opts.FocusTimeout,
		startTimeout: opts.StartTimeout,
		procRoot:     opts.ProcRoot,
		catalog:      opts.Catalog,
		now:          time.Now,
	}
}

// ListWindows returns every managed window. On tool failure the list is empty
// and the error says why.
func (r *Registry) ListWindows(ctx context.Context) ([]schemas.Window, error) {
	if snap := r.snapshot.Load(); snap != nil && r.now().Sub(snap.fetchedAt) < r.ttl {
		return cloneWindows(snap.windows), nil
	}
	windows, err := r.enumerate(ctx)
	if err != nil {
		return []schemas.Window{}, err
	}
	return cloneWindows(windows), nil
}

// enumerate is the only writer of the snapshot.
func (r *Registry) enumerate(ctx context.Context) ([]schemas.Window, error) {
	out, err := r.runner.Run(ctx, "wmctrl", "-lG")
	if err != nil {
		r.logger.Warn("Window enumeration failed", zap.Error(err))
		return nil, fmt.Errorf("listing windows: %w", err)
	}

	active, err := r.activeWindowID(ctx)
	if err != nil {
		r.logger.Debug("Could not read active window", zap.Error(err))
	}

	now := r.now()
	rows := parseWmctrl(string(out))
	windows := make([]schemas.Window, 0, len(rows))
	for _, row := range rows {
		w := schemas.Window{
			WindowID: row.id,
			Title:    row.title,
			Geometry: row.geometry,
		}
		var instance, class string
		if props, err := r.runner.Run(ctx, "xprop", "-id", row.id, "_NET_WM_PID", "WM_CLASS"); err == nil {
			w.ProcessID, instance, class = parseWindowProps(string(props))
		}
		w.AppName = r.appName(w.ProcessID, instance, class, row.title)

		if row.id == active {
			w.IsFocused = true
			r.lastActive.Store(row.id, now)
		}
		if t, ok := r.lastActive.Load(row.id); ok {
			w.LastActive = t.(time.Time)
		}
		windows = append(windows, w)
	}

	r.snapshot.Store(&windowSnapshot{windows: windows, fetchedAt: now})
	return windows, nil
}

// appName folds the process name, then WM_CLASS, then the title into a canonical name.
func (r *Registry) appName(pid int, instance, class, title string) string {
	if pid > 0 {
		if comm, err := os.ReadFile(filepath.Join(r.procRoot, strconv.Itoa(pid), "comm")); err == nil {
			name := strings.TrimSpace(string(comm))
			if _, ok := LookupApp(name); ok || (instance == "" && class == "") {
				return ResolveApp(name)
			}
		}
	}
	for _, cand := range []string{class, instance} {
		if _, ok := LookupApp(cand); ok {
			return ResolveApp(cand)
		}
	}
	if strings.Contains(title, "Mozilla Firefox") {
		return ResolveApp("firefox")
	}
	if class != "" {
		return ResolveApp(class)
	}
	return "unknown"
}

func (r *Registry) activeWindowID(ctx context.Context) (string, error) {
	out, err := r.runner.Run(ctx, "xprop", "-root", "_NET_ACTIVE_WINDOW")
	if err != nil {
		return "", err
	}
	return parseActiveWindow(string(out)), nil
}

// FocusedWindow returns the focused window, or nil when none is focused.
func (r *Registry) FocusedWindow(ctx context.Context) (*schemas.Window, error) {
	windows, err := r.ListWindows(ctx)
	if err != nil {
		return nil, err
	}
	for i := range windows {
		if windows[i].IsFocused {
			return &windows[i], nil
		}
	}
	return nil, nil
}

// WindowsFor returns the windows of app, most recently active first.
func (r *Registry) WindowsFor(ctx context.Context, app string) ([]schemas.Window, error) {
	windows, err := r.ListWindows(ctx)
	if err != nil {
		return nil, err
	}
	canonical := ResolveApp(app)
	var matched []schemas.Window
	for _, w := range windows {
		if w.AppName == canonical {
			matched = append(matched, w)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].IsFocused != matched[j].IsFocused {
			return matched[i].IsFocused
		}
		return matched[i].LastActive.After(matched[j].LastActive)
	})
	return matched, nil
}

// WindowByID looks a window up by id in any hex spelling.
func (r *Registry) WindowByID(ctx context.Context, id string) (*schemas.Window, error) {
	windows, err := r.ListWindows(ctx)
	if err != nil {
		return nil, err
	}
	want := normalizeWindowID(id)
	for i := range windows {
		if windows[i].WindowID == want {
			return &windows[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no window with id %s", schemas.ErrInvalidInput, id)
}

// FindByTitle returns the first window whose title contains title, case-insensitively.
func (r *Registry) FindByTitle(ctx context.Context, title string) (*schemas.Window, error) {
	windows, err := r.ListWindows(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(title)
	for i := range windows {
		if strings.Contains(strings.ToLower(windows[i].Title), needle) {
			return &windows[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no window titled %q", schemas.ErrInvalidInput, title)
}

// Focus activates windowID and waits until the window manager reports it active.
func (r *Registry) Focus(ctx context.Context, windowID string) (bool, error) {
	id := normalizeWindowID(windowID)
	if _, err := r.runner.Run(ctx, "wmctrl", "-ia", id); err != nil {
		return false, fmt.Errorf("%w: activating %s: %v", schemas.ErrWindowFocusFailed, id, err)
	}
	if !r.VerifyFocus(ctx, id, r.focusTimeout) {
		return false, nil
	}
	r.lastActive.Store(id, r.now())
	return true, nil
}

// VerifyFocus polls _NET_ACTIVE_WINDOW every 100ms until windowID is active or timeout elapses.
func (r *Registry) VerifyFocus(ctx context.Context, windowID string, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = r.focusTimeout
	}
	want := normalizeWindowID(windowID)
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(focusPollInterval)
	defer ticker.Stop()

	for {
		if active, err := r.activeWindowID(ctx); err == nil && active == want {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return false
		case <-ticker.C:
		}
	}
}

// FocusApp focuses the best window of app that matches criteria. The returned
// window reflects the focused state.
func (r *Registry) FocusApp(ctx context.Context, app string, criteria *schemas.WindowCriteria) (*schemas.Window, error) {
	windows, err := r.WindowsFor(ctx, app)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", schemas.ErrWindowFocusFailed, err)
	}
	windows = filterWindows(windows, criteria)
	if len(windows) == 0 {
		return nil, fmt.Errorf("%w: no window for %q", schemas.ErrWindowFocusFailed, app)
	}

	target := windows[0]
	if target.IsFocused {
		return &target, nil
	}
	ok, err := r.Focus(ctx, target.WindowID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s did not become active within %s", schemas.ErrWindowFocusFailed, target.WindowID, r.focusTimeout)
	}
	target.IsFocused = true
	target.LastActive = r.now()
	return &target, nil
}

func filterWindows(windows []schemas.Window, criteria *schemas.WindowCriteria) []schemas.Window {
	if criteria == nil {
		return windows
	}
	var out []schemas.Window
	for _, w := range windows {
		if criteria.WindowID != "" && w.WindowID != normalizeWindowID(criteria.WindowID) {
			continue
		}
		if criteria.ProcessID != 0 && w.ProcessID != criteria.ProcessID {
			continue
		}
		if criteria.TitleContains != "" && !strings.Contains(strings.ToLower(w.Title), strings.ToLower(criteria.TitleContains)) {
			continue
		}
		out = append(out, w)
	}
	return out
}

// Start launches a known application detached and waits up to StartTimeout
// for one of its windows to appear.
func (r *Registry) Start(ctx context.Context, app string, args ...string) (bool, error) {
	spec, ok := LookupApp(app)
	if !ok {
		return false, fmt.Errorf("%w: unknown application %q", schemas.ErrInvalidInput, app)
	}
	if r.spawner == nil {
		return false, fmt.Errorf("%w: no process spawner configured", schemas.ErrNotReady)
	}
	command := spec.Command
	if r.catalog != nil {
		if installed, ok := r.catalog.Resolve(spec.Canonical); ok {
			command = installed.Path
		}
	}
	pid, err := r.spawner.Spawn(ctx, command, append(append([]string{}, spec.Args...), args...), nil)
	if err != nil {
		return false, err
	}
	r.logger.Info("Started application", zap.String("app", spec.DisplayName), zap.Int("pid", pid))
	return r.WaitForApp(ctx, spec.Canonical, r.startTimeout), nil
}

// WaitForApp polls for a window of app until timeout.
func (r *Registry) WaitForApp(ctx context.Context, app string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if windows, err := r.WindowsFor(ctx, app); err == nil && len(windows) > 0 {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(focusPollInterval):
		}
	}
}

func cloneWindows(in []schemas.Window) []schemas.Window {
	out := make([]schemas.Window, len(in))
	copy(out, in)
	return out
}
