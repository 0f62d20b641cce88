// internal/planner/parse.go
package planner

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	json "github.com/json-iterator/go"

	"github.com/Vrooli/agent-s2/api/schemas"
	"github.com/Vrooli/agent-s2/internal/desktop"
	"github.com/Vrooli/agent-s2/internal/llmutil"
)

// Parse methods recorded in the planner debug.
const (
	ParseMethodJSON     = "json"
	ParseMethodMarkdown = "markdown"
	ParseMethodNone     = "none"
)

// ErrUnparseable is returned when neither JSON nor markdown steps can be recovered.
var ErrUnparseable = errors.New("model response contains no recognizable plan")

// RawPlan is a model response decoded into loosely typed steps. Steps are
// coerced into actions by NormalizeStep.
type RawPlan struct {
	Steps             []map[string]any
	Reasoning         string
	EstimatedDuration string
}

// ParseResponse extracts a plan from a model response. The first balanced
// JSON object wins; otherwise numbered or bulleted markdown steps are recovered.
func ParseResponse(response string) (RawPlan, string, error) {
	if obj, ok := llmutil.ExtractJSONObject(response); ok {
		var doc map[string]any
		if err := json.Unmarshal([]byte(obj), &doc); err == nil {
			if plan, ok := planFromJSON(doc); ok {
				return plan, ParseMethodJSON, nil
			}
		}
	}

	steps := parseMarkdownSteps(response)
	if len(steps) == 0 {
		return RawPlan{}, ParseMethodNone, ErrUnparseable
	}
	plan := RawPlan{Reasoning: "recovered from a markdown response"}
	for _, s := range steps {
		if raw := s.toRaw(); raw != nil {
			plan.Steps = append(plan.Steps, raw)
		}
	}
	if len(plan.Steps) == 0 {
		return RawPlan{}, ParseMethodNone, ErrUnparseable
	}
	return plan, ParseMethodMarkdown, nil
}

func planFromJSON(doc map[string]any) (RawPlan, bool) {
	plan := RawPlan{
		Reasoning:         stringOf(doc["reasoning"]),
		EstimatedDuration: stringOf(doc["estimated_duration"]),
	}
	for _, key := range []string{"steps", "actions", "plan"} {
		list, ok := doc[key].([]any)
		if !ok {
			continue
		}
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				plan.Steps = append(plan.Steps, m)
			}
		}
		return plan, true
	}
	// A bare action object.
	if _, ok := doc["type"]; ok {
		plan.Steps = []map[string]any{doc}
		return plan, true
	}
	return plan, false
}

var (
	numberedLineRe = regexp.MustCompile(`(?i)^\s*(?:#+\s*)?(?:step\s*)?(\d+)\s*[.):\-]\s*(.*)$`)
	bulletLineRe   = regexp.MustCompile(`^(\s*)[-*•]\s+(.*)$`)
	actionFieldRe  = regexp.MustCompile(`(?i)^action\s*:\s*(.+)$`)
	paramsFieldRe  = regexp.MustCompile(`(?i)^param(?:eter)?s?\s*:\s*(.+)$`)
	keyValueRe     = regexp.MustCompile(`([A-Za-z_]+)\s*[:=]\s*("[^"]*"|'[^']*'|[^,]+)`)
	coordsRe       = regexp.MustCompile(`\(?\s*(\d{1,4})\s*,\s*(\d{1,4})\s*\)?`)
	quotedRe       = regexp.MustCompile("[\"'`“‘]([^\"'`”’]+)[\"'`”’]")
	secondsRe      = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:s\b|sec|second)`)
	digitsRe       = regexp.MustCompile(`\d+`)
)

type markdownStep struct {
	text   string
	action string
	params string
}

func cleanMarkdown(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "__", "")
	return strings.TrimSpace(s)
}

// parseMarkdownSteps groups a response into steps. A step starts at a
// numbered line or a top-level bullet; indented "Action:" and "Parameters:"
// bullets attach to the current step.
func parseMarkdownSteps(response string) []markdownStep {
	var steps []markdownStep
	var cur *markdownStep
	flush := func() {
		if cur != nil && (cur.text != "" || cur.action != "") {
			steps = append(steps, *cur)
		}
		cur = nil
	}

	for _, line := range strings.Split(response, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		if m := numberedLineRe.FindStringSubmatch(line); m != nil {
			flush()
			cur = &markdownStep{text: cleanMarkdown(m[2])}
			continue
		}

		body := line
		indented := false
		if m := bulletLineRe.FindStringSubmatch(line); m != nil {
			body = m[2]
			indented = len(m[1]) > 0
		}
		body = cleanMarkdown(body)
		if body == "" {
			continue
		}

		if m := actionFieldRe.FindStringSubmatch(body); m != nil {
			if cur == nil {
				cur = &markdownStep{}
			}
			cur.action = strings.TrimSpace(m[1])
			continue
		}
		if m := paramsFieldRe.FindStringSubmatch(body); m != nil {
			if cur != nil {
				cur.params = strings.TrimSpace(m[1])
			}
			continue
		}
		if bulletLineRe.MatchString(line) && !indented {
			flush()
			cur = &markdownStep{text: body}
		}
	}
	flush()
	return steps
}

func (s markdownStep) toRaw() map[string]any {
	if s.action != "" {
		raw := parseParams(s.params)
		raw["type"] = strings.ToLower(strings.Trim(s.action, "`\"' "))
		if _, ok := raw["description"]; !ok && s.text != "" {
			raw["description"] = s.text
		}
		return raw
	}
	return phraseStep(s.text)
}

func parseParams(params string) map[string]any {
	out := map[string]any{}
	params = strings.TrimSpace(params)
	if params == "" {
		return out
	}
	if strings.HasPrefix(params, "{") {
		if err := json.Unmarshal([]byte(params), &out); err == nil {
			return out
		}
		out = map[string]any{}
	}
	for _, m := range keyValueRe.FindAllStringSubmatch(params, -1) {
		val := strings.Trim(strings.TrimSpace(m[2]), `"'`)
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			out[strings.ToLower(m[1])] = f
			continue
		}
		out[strings.ToLower(m[1])] = val
	}
	return out
}

// phraseStep interprets a bare verb phrase such as "Click at (700, 100)" or
// "Type 'cats' into the search box". It returns nil for unrecognized text.
func phraseStep(text string) map[string]any {
	lower := strings.ToLower(text)
	fields := strings.Fields(lower)
	if len(fields) == 0 {
		return nil
	}
	verb := strings.Trim(fields[0], ":,.")
	rest := strings.TrimSpace(text[strings.Index(lower, fields[0])+len(fields[0]):])
	raw := map[string]any{"description": text}

	switch verb {
	case "launch", "start", "open":
		app := strings.TrimSpace(strings.TrimPrefix(strings.ToLower(rest), "the "))
		app = strings.TrimSuffix(strings.TrimSuffix(app, " application"), " app")
		app = strings.Trim(app, ".")
		if verb == "open" {
			if _, ok := desktop.LookupApp(app); !ok {
				return nil
			}
		}
		raw["type"] = string(schemas.ActionLaunchApp)
		if app != "" {
			if spec, ok := desktop.LookupApp(app); ok {
				app = spec.DisplayName
			}
			raw["app_name"] = app
		}
	case "click", "double-click", "right-click", "tap":
		raw["type"] = string(schemas.ActionClick)
		if m := coordsRe.FindStringSubmatch(text); m != nil {
			raw["x"], _ = strconv.ParseFloat(m[1], 64)
			raw["y"], _ = strconv.ParseFloat(m[2], 64)
		}
		switch {
		case verb == "right-click" || strings.Contains(lower, "right click"):
			raw["button"] = string(schemas.ButtonRight)
		case verb == "double-click" || strings.Contains(lower, "double click"):
			raw["clicks"] = float64(2)
		}
	case "type", "enter", "input", "write":
		m := quotedRe.FindStringSubmatch(rest)
		if m == nil {
			if verb == "enter" {
				return nil
			}
			if rest == "" {
				return nil
			}
			raw["text"] = rest
		} else {
			raw["text"] = m[1]
		}
		raw["type"] = string(schemas.ActionTypeText)
	case "press", "hit":
		key := strings.TrimSpace(strings.TrimPrefix(rest, "the "))
		if m := quotedRe.FindStringSubmatch(key); m != nil {
			key = m[1]
		}
		key = strings.TrimSuffix(strings.TrimSuffix(strings.Trim(key, "."), " key"), " button")
		raw["type"] = string(schemas.ActionKey)
		if key != "" {
			raw["key"] = key
		}
	case "wait", "pause", "sleep":
		raw["type"] = string(schemas.ActionWait)
		if m := secondsRe.FindStringSubmatch(lower); m != nil {
			raw["seconds"], _ = strconv.ParseFloat(m[1], 64)
		}
	case "scroll":
		raw["type"] = string(schemas.ActionScroll)
		if strings.Contains(lower, "up") {
			raw["direction"] = string(schemas.ScrollUp)
		} else {
			raw["direction"] = string(schemas.ScrollDown)
		}
		if m := digitsRe.FindString(lower); m != "" {
			raw["amount"], _ = strconv.ParseFloat(m, 64)
		}
	case "screenshot", "capture", "save":
		raw["type"] = string(schemas.ActionScreenshotSave)
		if m := quotedRe.FindStringSubmatch(rest); m != nil {
			raw["filename"] = m[1]
		}
	default:
		return nil
	}
	return raw
}

func stringOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
