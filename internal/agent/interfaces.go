// internal/agent/interfaces.go
package agent

import (
	"context"
	"time"

	"github.com/Vrooli/agent-s2/api/schemas"
	"github.com/Vrooli/agent-s2/internal/audit"
	"github.com/Vrooli/agent-s2/internal/capture"
	"github.com/Vrooli/agent-s2/internal/desktop"
	"github.com/Vrooli/agent-s2/internal/humanoid"
	"github.com/Vrooli/agent-s2/internal/planner"
	"github.com/Vrooli/agent-s2/internal/security"
	"github.com/Vrooli/agent-s2/internal/stealth"
	"github.com/Vrooli/agent-s2/internal/store"
	"github.com/Vrooli/agent-s2/internal/watchdog"
)

// Planner turns a task into a validated plan.
type Planner interface {
	PlanTaskExecution(ctx context.Context, req planner.PlanRequest) (*planner.PlanResult, error)
}

type ScreenCapturer interface {
	Capture(ctx context.Context, req capture.Request) (*schemas.Screenshot, error)
}

// WindowSource enumerates the windows on the display.
type WindowSource interface {
	ListWindows(ctx context.Context) ([]schemas.Window, error)
	FocusedWindow(ctx context.Context) (*schemas.Window, error)
}

// AppLauncher spawns an application and reports whether a window appeared.
type AppLauncher interface {
	Start(ctx context.Context, app string, args ...string) (bool, error)
}

// AppCatalog lists launchable applications.
type AppCatalog interface {
	Apps() []desktop.LaunchableApp
	Resolve(name string) (desktop.LaunchableApp, bool)
}

// InputDriver dispatches mouse and keyboard input. A Target with an empty App
// acts on whatever window has focus.
type InputDriver interface {
	ClickTargeted(ctx context.Context, target humanoid.Target, x, y int, button schemas.MouseButton, clicks int) (humanoid.TargetedResult, error)
	TypeTargeted(ctx context.Context, target humanoid.Target, text string, interval time.Duration) (humanoid.TargetedResult, error)
	PressTargeted(ctx context.Context, target humanoid.Target, keys ...string) (humanoid.TargetedResult, error)
	ScrollTargeted(ctx context.Context, target humanoid.Target, direction schemas.ScrollDirection, amount int, at *schemas.Point) (humanoid.TargetedResult, error)
}

type ActionValidator interface {
	ValidateAction(ctx context.Context, action schemas.Action, task string) schemas.ActionSecurityResult
}

// BrowserCleaner restores the browser to a clean state before a task.
type BrowserCleaner interface {
	EnsureCleanState(ctx context.Context) watchdog.CleanupResult
}

// ProfileProvider contributes extra launch arguments, e.g. a browser profile.
type ProfileProvider interface {
	LaunchArgs(app string) ([]string, error)
}

type ActionAuditor interface {
	LogAction(ctx context.Context, e audit.Entry) schemas.SecurityEvent
}

// ReadyChecker reports whether the LLM gateway can serve requests.
type ReadyChecker interface {
	IsReady() bool
}

// TaskRecorder persists finished tasks.
type TaskRecorder interface {
	SaveTaskRecord(ctx context.Context, rec store.TaskRecord) error
}

var (
	_ Planner         = (*planner.Planner)(nil)
	_ ScreenCapturer  = (*capture.Service)(nil)
	_ WindowSource    = (*desktop.Registry)(nil)
	_ AppLauncher     = (*desktop.Registry)(nil)
	_ AppCatalog      = (*desktop.Catalog)(nil)
	_ InputDriver     = (*humanoid.Driver)(nil)
	_ ActionValidator = (*security.ActionValidator)(nil)
	_ BrowserCleaner  = (*watchdog.Watchdog)(nil)
	_ ProfileProvider = (*stealth.Store)(nil)
	_ ActionAuditor   = (*audit.Monitor)(nil)
	_ TaskRecorder    = (*store.Store)(nil)
)
