// internal/planner/normalize.go
package planner

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Vrooli/agent-s2/api/schemas"
)

// Defaults applied when a step omits a field its type needs.
const (
	DefaultClickX       = 500
	DefaultClickY       = 300
	DefaultKey          = "Enter"
	DefaultWaitSeconds  = 2.0
	DefaultScrollAmount = 3
)

var stepTypeAliases = map[string]schemas.ActionType{
	"click":              schemas.ActionClick,
	"left_click":         schemas.ActionClick,
	"right_click":        schemas.ActionClick,
	"double_click":       schemas.ActionClick,
	"mouse_click":        schemas.ActionClick,
	"type":               schemas.ActionTypeText,
	"type_text":          schemas.ActionTypeText,
	"input":              schemas.ActionTypeText,
	"input_text":         schemas.ActionTypeText,
	"write":              schemas.ActionTypeText,
	"key":                schemas.ActionKey,
	"keys":               schemas.ActionKey,
	"press":              schemas.ActionKey,
	"key_press":          schemas.ActionKey,
	"keypress":           schemas.ActionKey,
	"press_key":          schemas.ActionKey,
	"hotkey":             schemas.ActionKey,
	"wait":               schemas.ActionWait,
	"sleep":              schemas.ActionWait,
	"pause":              schemas.ActionWait,
	"delay":              schemas.ActionWait,
	"scroll":             schemas.ActionScroll,
	"launch_app":         schemas.ActionLaunchApp,
	"launch":             schemas.ActionLaunchApp,
	"open_app":           schemas.ActionLaunchApp,
	"start_app":          schemas.ActionLaunchApp,
	"launch_application": schemas.ActionLaunchApp,
	"open_application":   schemas.ActionLaunchApp,
	"screenshot_save":    schemas.ActionScreenshotSave,
	"screenshot":         schemas.ActionScreenshotSave,
	"save_screenshot":    schemas.ActionScreenshotSave,
	"take_screenshot":    schemas.ActionScreenshotSave,
	"manual_review":      schemas.ActionManualReview,
}

func canonicalStepType(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return s
}

// NormalizeStep coerces one loosely typed step into an Action. Missing fields
// get defaults; steps whose type is unknown, or that stay invalid after
// defaulting, become manual_review actions.
func NormalizeStep(step map[string]any) schemas.Action {
	rawType := canonicalStepType(firstString(step, "type", "action", "action_type"))
	desc := firstString(step, "description", "reason", "rationale")

	t, ok := stepTypeAliases[rawType]
	if !ok {
		if rawType == "" {
			return schemas.NewManualReview(fmt.Sprintf("step without a type: %s", desc))
		}
		return schemas.NewManualReview(fmt.Sprintf("unsupported step type %q: %s", rawType, desc))
	}

	a := schemas.Action{Type: t, Description: desc, TargetApp: firstString(step, "target_app")}
	switch t {
	case schemas.ActionClick:
		x, y, ok := coordinates(step)
		if !ok {
			x, y = DefaultClickX, DefaultClickY
		}
		a.X, a.Y = x, y
		a.Button = schemas.MouseButton(strings.ToLower(firstString(step, "button")))
		if a.Button == "" || a.Button == schemas.ButtonNone {
			a.Button = schemas.ButtonLeft
			if rawType == "right_click" {
				a.Button = schemas.ButtonRight
			}
		}
		a.Clicks = 1
		if rawType == "double_click" {
			a.Clicks = 2
		}
		if n, ok := firstNumber(step, "clicks", "click_count", "count"); ok && n >= 1 {
			a.Clicks = int(min(n, schemas.MaxClicks))
		}
	case schemas.ActionTypeText:
		a.Text = firstString(step, "text", "value", "content", "url", "query")
	case schemas.ActionKey:
		a.Key = keyOf(step)
		if a.Key == "" {
			a.Key = DefaultKey
		}
	case schemas.ActionWait:
		a.Seconds = DefaultWaitSeconds
		if n, ok := firstNumber(step, "seconds", "duration", "time", "value"); ok && n >= 0 {
			a.Seconds = n
		} else if ms, ok := firstNumber(step, "ms", "milliseconds", "duration_ms"); ok && ms >= 0 {
			a.Seconds = ms / 1000
		}
	case schemas.ActionScroll:
		a.Direction = schemas.ScrollDirection(strings.ToLower(firstString(step, "direction")))
		if a.Direction != schemas.ScrollUp && a.Direction != schemas.ScrollDown {
			a.Direction = schemas.ScrollDown
		}
		a.Amount = DefaultScrollAmount
		if n, ok := firstNumber(step, "amount", "clicks", "value"); ok && n >= 0 {
			a.Amount = int(min(n, schemas.MaxScrollAmount))
		}
	case schemas.ActionLaunchApp:
		a.AppName = firstString(step, "app_name", "app", "application", "name", "value")
		if a.AppName == "" {
			a.AppName = schemas.DefaultBrowserApp
		}
	case schemas.ActionScreenshotSave:
		a.Filename = firstString(step, "filename", "path", "file")
	case schemas.ActionManualReview:
		if a.Description == "" {
			a.Description = "model requested manual review"
		}
		return a
	}

	if err := a.Validate(); err != nil {
		return schemas.NewManualReview(fmt.Sprintf("invalid %s step (%v): %s", t, err, desc))
	}
	return a
}

// NormalizeSteps applies NormalizeStep to every step in order.
func NormalizeSteps(steps []map[string]any) []schemas.Action {
	out := make([]schemas.Action, 0, len(steps))
	for _, s := range steps {
		out = append(out, NormalizeStep(s))
	}
	return out
}

func keyOf(step map[string]any) string {
	for _, k := range []string{"key", "keys", "combination", "hotkey", "value"} {
		switch v := step[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case []any:
			parts := make([]string, 0, len(v))
			for _, p := range v {
				if s := strings.TrimSpace(stringOf(p)); s != "" {
					parts = append(parts, s)
				}
			}
			if len(parts) > 0 {
				return strings.Join(parts, "+")
			}
		}
	}
	return ""
}

func coordinates(step map[string]any) (int, int, bool) {
	x, okX := firstNumber(step, "x")
	y, okY := firstNumber(step, "y")
	if okX && okY {
		return int(x), int(y), true
	}
	for _, k := range []string{"coordinates", "position", "coords", "point"} {
		switch v := step[k].(type) {
		case []any:
			if len(v) >= 2 {
				x, okX := toNumber(v[0])
				y, okY := toNumber(v[1])
				if okX && okY {
					return int(x), int(y), true
				}
			}
		case map[string]any:
			x, okX := firstNumber(v, "x")
			y, okY := firstNumber(v, "y")
			if okX && okY {
				return int(x), int(y), true
			}
		}
	}
	return 0, 0, false
}

func firstString(step map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := step[k]; ok {
			if s := strings.TrimSpace(stringOf(v)); s != "" {
				return s
			}
		}
	}
	return ""
}

func firstNumber(step map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := step[k]; ok {
			if n, ok := toNumber(v); ok {
				return n, true
			}
		}
	}
	return 0, false
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		s := strings.TrimSpace(n)
		s = strings.TrimSuffix(strings.TrimSuffix(s, "px"), "s")
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return f, err == nil
	}
	return 0, false
}
