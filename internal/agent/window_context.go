// internal/agent/window_context.go
package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/Vrooli/agent-s2/api/schemas"
)

// ShortcutHints maps a task category to keyboard shortcuts worth trying.
type ShortcutHints struct {
	PriorityActions map[string][]string `json:"priority_actions"`
}

// ShortcutProvider returns shortcut hints for the focused window. A nil
// result means no hints.
type ShortcutProvider interface {
	Shortcuts(ctx context.Context, active *schemas.Window) *ShortcutHints
}

// StaticShortcuts serves a fixed table keyed by canonical app name.
type StaticShortcuts map[string]ShortcutHints

// DefaultShortcuts covers the browser.
var DefaultShortcuts = StaticShortcuts{
	"firefox": {PriorityActions: map[string][]string{
		"navigate":     {"Ctrl+L focuses the address bar", "Alt+Left goes back", "F5 reloads"},
		"search":       {"Ctrl+K focuses the search field", "Ctrl+F finds on page"},
		"tabs":         {"Ctrl+T opens a tab", "Ctrl+W closes the tab", "Ctrl+Tab switches tabs"},
		"zoom":         {"Ctrl+Plus zooms in", "Ctrl+Minus zooms out", "Ctrl+0 resets zoom"},
		"close_window": {"Ctrl+Shift+W closes the window"},
	}},
}

func (s StaticShortcuts) Shortcuts(_ context.Context, active *schemas.Window) *ShortcutHints {
	if active == nil {
		return nil
	}
	if h, ok := s[strings.ToLower(active.AppName)]; ok {
		return &h
	}
	return nil
}

// BuildWindowContext renders the windows, launchable applications and
// shortcut hints as the text block embedded in the planning prompt. It also
// reports whether a browser window is open.
func (e *Executor) BuildWindowContext(ctx context.Context) (string, bool) {
	var b strings.Builder
	browserOpen := false

	var active *schemas.Window
	var windows []schemas.Window
	if e.windows != nil {
		var err error
		if active, err = e.windows.FocusedWindow(ctx); err != nil {
			e.logger.Debug("No focused window", zap.Error(err))
		}
		if windows, err = e.windows.ListWindows(ctx); err != nil {
			e.logger.Debug("Window enumeration failed", zap.Error(err))
		}
	}

	if active != nil {
		p := active.FocusPoint()
		fmt.Fprintf(&b, "ACTIVE WINDOW: %s (%s) id=%s at %dx%d+%d+%d, focus point (%d,%d)\n",
			active.Title, active.AppName, active.WindowID,
			active.Geometry.Width, active.Geometry.Height, active.Geometry.X, active.Geometry.Y, p.X, p.Y)
	} else {
		b.WriteString("ACTIVE WINDOW: none\n")
	}

	if len(windows) > 0 {
		b.WriteString("OPEN WINDOWS:\n")
		for _, w := range windows {
			if isBrowser(w.AppName) {
				browserOpen = true
			}
			p := w.FocusPoint()
			marker := ""
			if w.IsFocused {
				marker = " [focused]"
			}
			fmt.Fprintf(&b, "- %s (%s) id=%s at %dx%d+%d+%d, focus point (%d,%d)%s\n",
				w.Title, w.AppName, w.WindowID,
				w.Geometry.Width, w.Geometry.Height, w.Geometry.X, w.Geometry.Y, p.X, p.Y, marker)
		}
	} else {
		b.WriteString("OPEN WINDOWS: none\n")
	}

	if e.catalog != nil {
		if apps := e.catalog.Apps(); len(apps) > 0 {
			b.WriteString("LAUNCHABLE APPLICATIONS (use launch_app with the name):\n")
			for _, a := range apps {
				fmt.Fprintf(&b, "- %s (command: %s)\n", a.Name, a.Command)
			}
		}
	}

	if e.shortcuts != nil {
		if hints := e.shortcuts.Shortcuts(ctx, active); hints != nil && len(hints.PriorityActions) > 0 {
			b.WriteString("KEYBOARD SHORTCUTS FOR THE ACTIVE WINDOW:\n")
			keys := make([]string, 0, len(hints.PriorityActions))
			for k := range hints.PriorityActions {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&b, "- %s: %s\n", k, strings.Join(hints.PriorityActions[k], "; "))
			}
		}
	}
	return strings.TrimRight(b.String(), "\n"), browserOpen
}

func isBrowser(app string) bool {
	app = strings.ToLower(app)
	return strings.Contains(app, "firefox") || strings.Contains(app, "chrom")
}
