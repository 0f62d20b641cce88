// api/schemas/actions.go
package schemas

import (
	"fmt"
	"strings"
)

// ActionType discriminates the Action variant.
type ActionType string

const (
	ActionClick          ActionType = "click"
	ActionTypeText       ActionType = "type"
	ActionKey            ActionType = "key"
	ActionWait           ActionType = "wait"
	ActionScroll         ActionType = "scroll"
	ActionLaunchApp      ActionType = "launch_app"
	ActionScreenshotSave ActionType = "screenshot_save"
	ActionManualReview   ActionType = "manual_review"
)

// ScrollDirection is the wheel direction of a scroll action.
type ScrollDirection string

const (
	ScrollUp   ScrollDirection = "up"
	ScrollDown ScrollDirection = "down"
)

// DefaultBrowserApp is the application name used when a plan needs a browser.
const DefaultBrowserApp = "Firefox ESR"

// Upper bounds on repeated input within one action.
const (
	MaxClicks       = 3
	MaxScrollAmount = 20
)

// Action is one executable step. Only the fields belonging to Type are meaningful;
// Validate enforces the per-variant invariants.
type Action struct {
	Type        ActionType      `json:"type"`
	Description string          `json:"description,omitempty"`
	X           int             `json:"x,omitempty"`
	Y           int             `json:"y,omitempty"`
	Button      MouseButton     `json:"button,omitempty"`
	Clicks      int             `json:"clicks,omitempty"`
	Text        string          `json:"text,omitempty"`
	Key         string          `json:"key,omitempty"`
	Seconds     float64         `json:"seconds,omitempty"`
	Direction   ScrollDirection `json:"direction,omitempty"`
	Amount      int             `json:"amount,omitempty"`
	AppName     string          `json:"app_name,omitempty"`
	Filename    string          `json:"filename,omitempty"`
	TargetApp   string          `json:"target_app,omitempty"`
}

// Validate checks the invariants of the variant selected by Type.
func (a Action) Validate() error {
	switch a.Type {
	case ActionClick:
		if !a.Button.IsValid() {
			return fmt.Errorf("%w: click button %q", ErrInvalidInput, a.Button)
		}
		if a.Clicks < 1 || a.Clicks > MaxClicks {
			return fmt.Errorf("%w: click count must be in [1,%d], got %d", ErrInvalidInput, MaxClicks, a.Clicks)
		}
	case ActionTypeText:
		if a.Text == "" {
			return fmt.Errorf("%w: type action requires text", ErrInvalidInput)
		}
	case ActionKey:
		if strings.TrimSpace(a.Key) == "" {
			return fmt.Errorf("%w: key action requires a key", ErrInvalidInput)
		}
	case ActionWait:
		if a.Seconds < 0 {
			return fmt.Errorf("%w: wait seconds must be >= 0", ErrInvalidInput)
		}
	case ActionScroll:
		if a.Direction != ScrollUp && a.Direction != ScrollDown {
			return fmt.Errorf("%w: scroll direction %q", ErrInvalidInput, a.Direction)
		}
		if a.Amount < 0 || a.Amount > MaxScrollAmount {
			return fmt.Errorf("%w: scroll amount must be in [0,%d], got %d", ErrInvalidInput, MaxScrollAmount, a.Amount)
		}
	case ActionLaunchApp:
		if strings.TrimSpace(a.AppName) == "" {
			return fmt.Errorf("%w: launch_app requires app_name", ErrInvalidInput)
		}
	case ActionScreenshotSave, ActionManualReview:
	default:
		return fmt.Errorf("%w: unknown action type %q", ErrInvalidInput, a.Type)
	}
	return nil
}

// String renders a short human form used in summaries and logs.
func (a Action) String() string {
	switch a.Type {
	case ActionClick:
		return fmt.Sprintf("click(%d,%d,%s)", a.X, a.Y, a.Button)
	case ActionTypeText:
		return fmt.Sprintf("type(%q)", a.Text)
	case ActionKey:
		return fmt.Sprintf("key(%s)", a.Key)
	case ActionWait:
		return fmt.Sprintf("wait(%gs)", a.Seconds)
	case ActionScroll:
		return fmt.Sprintf("scroll(%s,%d)", a.Direction, a.Amount)
	case ActionLaunchApp:
		return fmt.Sprintf("launch_app(%s)", a.AppName)
	case ActionScreenshotSave:
		return fmt.Sprintf("screenshot_save(%s)", a.Filename)
	default:
		return string(a.Type)
	}
}

// IsEnter reports whether a is a key action pressing Enter/Return.
func (a Action) IsEnter() bool {
	if a.Type != ActionKey {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(a.Key)) {
	case "enter", "return", "kp_enter":
		return true
	}
	return false
}

func NewClick(x, y int) Action {
	return Action{Type: ActionClick, X: x, Y: y, Button: ButtonLeft, Clicks: 1}
}

func NewTypeText(text string) Action {
	return Action{Type: ActionTypeText, Text: text}
}

func NewKey(key string) Action {
	return Action{Type: ActionKey, Key: key}
}

func NewWait(seconds float64) Action {
	return Action{Type: ActionWait, Seconds: seconds}
}

func NewLaunchApp(app string) Action {
	return Action{Type: ActionLaunchApp, AppName: app}
}

// NewManualReview wraps a step that could not be normalized.
func NewManualReview(description string) Action {
	return Action{Type: ActionManualReview, Description: description}
}

// Plan is the ordered action sequence for one task.
type Plan struct {
	Steps             []Action `json:"steps"`
	Reasoning         string   `json:"reasoning"`
	EstimatedDuration string   `json:"estimated_duration"`
}

// GoalStep is the step shape emitted by the screen-analysis and goal-plan entry points.
type GoalStep struct {
	Step            int      `json:"step"`
	Action          string   `json:"action"`
	Description     string   `json:"description"`
	Prerequisites   []string `json:"prerequisites"`
	ExpectedOutcome string   `json:"expected_outcome"`
}
