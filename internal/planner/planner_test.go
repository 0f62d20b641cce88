package planner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/Vrooli/agent-s2/api/schemas"
	"github.com/Vrooli/agent-s2/internal/config"
	"github.com/Vrooli/agent-s2/internal/routing"
)

type fakeLLM struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	requests  []schemas.GenerationRequest
}

func (f *fakeLLM) Generate(_ context.Context, req schemas.GenerationRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	i := len(f.requests) - 1
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	if len(f.responses) > 0 {
		return f.responses[len(f.responses)-1], nil
	}
	return "", nil
}

func (f *fakeLLM) Close() error { return nil }

func newTestPlanner(llm schemas.LLMClient) *Planner {
	router := routing.NewRouter(config.SearchConfig{}, zap.NewNop())
	return NewPlanner(llm, router, zap.NewNop(), Options{})
}

var ignoreDescriptions = cmpopts.IgnoreFields(schemas.Action{}, "Description")

const ddgPuppies = "https://duckduckgo.com/?q=puppies&iax=images&ia=images"

func TestPlanNavigateToYouTube(t *testing.T) {
	llm := &fakeLLM{responses: []string{"I am not sure what to do here."}}
	p := newTestPlanner(llm)

	res, err := p.PlanTaskExecution(context.Background(), PlanRequest{Task: "go to YouTube"})
	require.NoError(t, err)

	want := []schemas.Action{
		schemas.NewLaunchApp("Firefox ESR"),
		schemas.NewWait(2),
		schemas.NewClick(700, 100),
		schemas.NewKey("Ctrl+A"),
		schemas.NewTypeText("https://youtube.com"),
		schemas.NewKey("Enter"),
		schemas.NewWait(3),
	}
	if diff := cmp.Diff(want, res.Plan.Steps, ignoreDescriptions); diff != "" {
		t.Errorf("repaired plan mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, "https://youtube.com", res.Debug.SuggestedURL)
	assert.Equal(t, ParseMethodNone, res.Debug.ParseMethod)
	assert.True(t, res.Debug.PlanEnhanced)
	assert.True(t, res.Debug.PlanValidated)
	assert.False(t, res.Debug.ScreenshotIncluded)
	require.NotNil(t, res.Debug.Classification)
	assert.Equal(t, schemas.TaskNavigation, res.Debug.Classification.TaskType)
	assert.Contains(t, res.Debug.SystemPrompt, "https://youtube.com")
}

func TestPlanShowMePuppies(t *testing.T) {
	llm := &fakeLLM{responses: []string{"```json\n" + `{
		"reasoning": "open the browser first",
		"estimated_duration": 12,
		"steps": [
			{"type": "launch_app", "app_name": "firefox"},
			{"type": "wait", "seconds": 2}
		]}` + "\n```"}}
	p := newTestPlanner(llm)

	res, err := p.PlanTaskExecution(context.Background(), PlanRequest{Task: "show me puppies"})
	require.NoError(t, err)
	assert.Equal(t, ParseMethodJSON, res.Debug.ParseMethod)
	assert.Equal(t, "open the browser first", res.Plan.Reasoning)
	assert.Equal(t, "12", res.Plan.EstimatedDuration)

	steps := res.Plan.Steps
	require.Len(t, steps, 8)
	assert.Equal(t, schemas.ActionLaunchApp, steps[0].Type, "no second launch is prepended")
	assert.Equal(t, ddgPuppies, steps[5].Text)
	assert.True(t, steps[6].IsEnter())
	assert.True(t, res.Debug.PlanEnhanced)
}

func TestPlanReplacesSuspiciousURL(t *testing.T) {
	llm := &fakeLLM{responses: []string{`{"steps": [
		{"type": "click", "x": 700, "y": 100},
		{"type": "type", "text": "paw-paw.com"},
		{"type": "key", "key": "Enter"}
	]}`}}
	p := newTestPlanner(llm)

	res, err := p.PlanTaskExecution(context.Background(), PlanRequest{Task: "show me puppies", BrowserOpen: true})
	require.NoError(t, err)

	steps := res.Plan.Steps
	require.Len(t, steps, 3)
	assert.Equal(t, ddgPuppies, steps[1].Text)
	assert.Contains(t, steps[1].Description, "URL replaced: paw-paw.com")
	assert.Equal(t, []string{"paw-paw.com -> " + ddgPuppies}, res.Debug.URLReplacements)
	assert.False(t, res.Debug.PlanEnhanced)
	assert.True(t, res.Debug.PlanValidated)
}

func TestPlanTextOnlyRetry(t *testing.T) {
	llm := &fakeLLM{
		errs:      []error{fmt.Errorf("%w: vision model crashed", schemas.ErrExternalUnavailable)},
		responses: []string{"", `{"steps":[{"type":"key","key":"F5"}]}`},
	}
	p := newTestPlanner(llm)
	shot := &schemas.Screenshot{Format: schemas.FormatPNG, Data: "data:image/png;base64,aGVsbG8="}

	res, err := p.PlanTaskExecution(context.Background(), PlanRequest{Task: "reload", Screenshot: shot})
	require.NoError(t, err)
	require.Len(t, llm.requests, 2)
	assert.Equal(t, []string{"aGVsbG8="}, llm.requests[0].Images)
	assert.Empty(t, llm.requests[1].Images)
	assert.True(t, res.Debug.TextOnlyRetry)
	assert.False(t, res.Debug.ScreenshotIncluded)
	assert.Equal(t, "F5", res.Plan.Steps[0].Key)
}

func TestPlanNotReadyDoesNotRetry(t *testing.T) {
	llm := &fakeLLM{errs: []error{schemas.ErrNotReady}}
	p := newTestPlanner(llm)
	shot := &schemas.Screenshot{Data: "aGVsbG8="}

	_, err := p.PlanTaskExecution(context.Background(), PlanRequest{Task: "reload", Screenshot: shot})
	require.ErrorIs(t, err, schemas.ErrNotReady)
	assert.Len(t, llm.requests, 1)
}

func TestPlanRejectsEmptyTaskAndMissingClient(t *testing.T) {
	p := newTestPlanner(&fakeLLM{})
	_, err := p.PlanTaskExecution(context.Background(), PlanRequest{Task: "  "})
	assert.ErrorIs(t, err, schemas.ErrInvalidInput)

	p = NewPlanner(nil, nil, zap.NewNop(), Options{})
	_, err = p.PlanTaskExecution(context.Background(), PlanRequest{Task: "go to YouTube"})
	assert.ErrorIs(t, err, schemas.ErrNotReady)
}

func TestSystemPromptContents(t *testing.T) {
	llm := &fakeLLM{responses: []string{`{"steps":[]}`}}
	p := newTestPlanner(llm)
	_, err := p.PlanTaskExecution(context.Background(), PlanRequest{
		Task:          "search for go generics",
		Context:       "prefer recent posts",
		WindowContext: "FOCUSED WINDOW: Terminal",
	})
	require.NoError(t, err)

	req := llm.requests[0]
	assert.Contains(t, req.SystemPrompt, "1920x1080")
	assert.Contains(t, req.SystemPrompt, "launch_app")
	assert.Contains(t, req.SystemPrompt, "FOCUSED WINDOW: Terminal")
	assert.Contains(t, req.SystemPrompt, "https://duckduckgo.com/?q=go+generics")
	assert.Contains(t, req.UserPrompt, "TASK: search for go generics")
	assert.Contains(t, req.UserPrompt, "CONTEXT: prefer recent posts")
	assert.Contains(t, req.UserPrompt, `"steps"`)
}

func TestParseResponseMarkdownPhrases(t *testing.T) {
	response := `Here's what I'd do:
1. **Launch Firefox**
2. Click at (700, 100)
3. Type "https://github.com"
4. Press Enter
5. Wait 3 seconds`

	raw, method, err := ParseResponse(response)
	require.NoError(t, err)
	assert.Equal(t, ParseMethodMarkdown, method)

	want := []schemas.Action{
		schemas.NewLaunchApp("Firefox ESR"),
		schemas.NewClick(700, 100),
		schemas.NewTypeText("https://github.com"),
		schemas.NewKey("Enter"),
		schemas.NewWait(3),
	}
	if diff := cmp.Diff(want, NormalizeSteps(raw.Steps), ignoreDescriptions); diff != "" {
		t.Errorf("markdown plan mismatch (-want +got):\n%s", diff)
	}
}

func TestParseResponseMarkdownActionFields(t *testing.T) {
	response := `Plan:
1. Open the browser
   - Action: launch_app
   - Parameters: app_name: Firefox ESR
2. Scroll the page
   - **Action:** scroll
   - **Parameters:** {"direction": "up", "amount": 5}`

	raw, method, err := ParseResponse(response)
	require.NoError(t, err)
	assert.Equal(t, ParseMethodMarkdown, method)

	got := NormalizeSteps(raw.Steps)
	require.Len(t, got, 2)
	assert.Equal(t, "Firefox ESR", got[0].AppName)
	assert.Equal(t, "Open the browser", got[0].Description)
	assert.Equal(t, schemas.ScrollUp, got[1].Direction)
	assert.Equal(t, 5, got[1].Amount)
}

func TestParseResponseFailures(t *testing.T) {
	_, method, err := ParseResponse("I cannot help with that.")
	assert.ErrorIs(t, err, ErrUnparseable)
	assert.Equal(t, ParseMethodNone, method)

	raw, method, err := ParseResponse(`{"type": "key", "key": "Escape"}`)
	require.NoError(t, err)
	assert.Equal(t, ParseMethodJSON, method)
	require.Len(t, raw.Steps, 1)
}

func TestNormalizeStep(t *testing.T) {
	tests := []struct {
		name string
		step map[string]any
		want schemas.Action
	}{
		{"click defaults", map[string]any{"type": "click"}, schemas.NewClick(500, 300)},
		{"click coordinates list", map[string]any{"type": "click", "coordinates": []any{10.0, 20.0}}, schemas.NewClick(10, 20)},
		{"click string coords", map[string]any{"type": "click", "x": "15px", "y": "25"}, schemas.NewClick(15, 25)},
		{"right click alias", map[string]any{"type": "right-click", "x": 1, "y": 2},
			schemas.Action{Type: schemas.ActionClick, X: 1, Y: 2, Button: schemas.ButtonRight, Clicks: 1}},
		{"double click", map[string]any{"type": "double_click", "x": 1, "y": 2},
			schemas.Action{Type: schemas.ActionClick, X: 1, Y: 2, Button: schemas.ButtonLeft, Clicks: 2}},
		{"key default", map[string]any{"type": "key"}, schemas.NewKey("Enter")},
		{"key list", map[string]any{"type": "hotkey", "keys": []any{"ctrl", "l"}}, schemas.NewKey("ctrl+l")},
		{"wait default", map[string]any{"type": "wait"}, schemas.NewWait(2)},
		{"wait millis", map[string]any{"type": "sleep", "ms": 1500.0}, schemas.NewWait(1.5)},
		{"scroll default", map[string]any{"type": "scroll", "direction": "sideways"},
			schemas.Action{Type: schemas.ActionScroll, Direction: schemas.ScrollDown, Amount: 3}},
		{"runaway clicks capped", map[string]any{"type": "click", "x": 1, "y": 2, "clicks": 10000.0},
			schemas.Action{Type: schemas.ActionClick, X: 1, Y: 2, Button: schemas.ButtonLeft, Clicks: schemas.MaxClicks}},
		{"runaway scroll capped", map[string]any{"type": "scroll", "direction": "up", "amount": "500"},
			schemas.Action{Type: schemas.ActionScroll, Direction: schemas.ScrollUp, Amount: schemas.MaxScrollAmount}},
		{"scroll within bound kept", map[string]any{"type": "scroll", "direction": "down", "amount": 7},
			schemas.Action{Type: schemas.ActionScroll, Direction: schemas.ScrollDown, Amount: 7}},
		{"launch default", map[string]any{"type": "launch_app"}, schemas.NewLaunchApp("Firefox ESR")},
		{"type text", map[string]any{"action": "type_text", "value": "hello"}, schemas.NewTypeText("hello")},
		{"target app", map[string]any{"type": "key", "key": "F5", "target_app": "firefox"},
			schemas.Action{Type: schemas.ActionKey, Key: "F5", TargetApp: "firefox"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, NormalizeStep(tt.step), ignoreDescriptions); diff != "" {
				t.Errorf("NormalizeStep mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNormalizeStepManualReview(t *testing.T) {
	for _, step := range []map[string]any{
		{"type": "drag", "description": "drag the file"},
		{"type": "type"},
		{"description": "no type at all"},
		{"type": "click", "button": "fourth"},
	} {
		got := NormalizeStep(step)
		assert.Equal(t, schemas.ActionManualReview, got.Type, "%v", step)
		assert.NotEmpty(t, got.Description)
	}
}

func TestNormalizedStepsAlwaysValidate(t *testing.T) {
	types := []string{"click", "type", "key", "wait", "scroll", "launch_app", "screenshot_save", "drag", "", "right_click", "hotkey"}
	keys := []string{"x", "y", "text", "key", "seconds", "direction", "amount", "app_name", "button", "clicks"}
	rapid.Check(t, func(t *rapid.T) {
		step := map[string]any{"type": rapid.SampledFrom(types).Draw(t, "type")}
		n := rapid.IntRange(0, 5).Draw(t, "n")
		for i := 0; i < n; i++ {
			k := rapid.SampledFrom(keys).Draw(t, "key")
			if rapid.Bool().Draw(t, "numeric") {
				step[k] = rapid.Float64Range(-50, 5000).Draw(t, "num")
			} else {
				step[k] = rapid.StringMatching(`[a-z]{0,6}`).Draw(t, "str")
			}
		}
		if err := NormalizeStep(step).Validate(); err != nil {
			t.Fatalf("normalized %v does not validate: %v", step, err)
		}
	})
}

func TestCheckCompleteness(t *testing.T) {
	urlThenEnter := []schemas.Action{schemas.NewTypeText("https://github.com"), schemas.NewKey("Return")}
	queryThenEnter := []schemas.Action{schemas.NewTypeText("cheap flights"), schemas.NewKey("Enter")}
	enterFirst := []schemas.Action{schemas.NewKey("Enter"), schemas.NewTypeText("https://github.com")}

	c := CheckCompleteness("go to github", schemas.TaskNavigation, urlThenEnter)
	assert.Empty(t, c.Issues)

	c = CheckCompleteness("go to github", schemas.TaskNavigation, queryThenEnter)
	assert.Len(t, c.Issues, 1)
	assert.True(t, c.NeedsBrowserRepair())

	c = CheckCompleteness("visit github", schemas.TaskUnknown, enterFirst)
	assert.True(t, c.NeedsBrowserRepair())

	c = CheckCompleteness("search for cheap flights", schemas.TaskSearch, queryThenEnter)
	assert.Empty(t, c.Issues)

	c = CheckCompleteness("look up the weather in Oslo", schemas.TaskUnknown, nil)
	assert.Len(t, c.Issues, 2)

	c = CheckCompleteness("open the terminal and list files", schemas.TaskApplication, []schemas.Action{schemas.NewLaunchApp("Terminal")})
	assert.Len(t, c.Issues, 1)
	assert.False(t, c.NeedsBrowserRepair())

	c = CheckCompleteness("press enter", schemas.TaskUnknown, []schemas.Action{schemas.NewKey("Enter")})
	assert.Empty(t, c.Issues)
}

func TestRepairPlan(t *testing.T) {
	got := RepairPlan(nil, "https://github.com", true)
	if diff := cmp.Diff(BrowserSequence("https://github.com"), got); diff != "" {
		t.Errorf("open browser repair mismatch (-want +got):\n%s", diff)
	}

	existing := []schemas.Action{schemas.NewLaunchApp("firefox-esr")}
	got = RepairPlan(existing, "https://github.com", false)
	assert.Len(t, got, 7)
	assert.Equal(t, "firefox-esr", got[0].AppName)

	got = RepairPlan([]schemas.Action{schemas.NewWait(1)}, "https://github.com", false)
	assert.Len(t, got, 8)
	assert.Equal(t, schemas.DefaultBrowserApp, got[0].AppName)
}

func TestPlanGoal(t *testing.T) {
	llm := &fakeLLM{responses: []string{`Sure: {"reasoning": "two phases", "steps": [
		{"step": 1, "action": "open browser", "description": "Launch Firefox", "prerequisites": "desktop visible", "expected_outcome": "browser window"},
		{"action": "search", "description": "Search for flights", "prerequisites": ["browser open"]}
	]}`}}
	p := newTestPlanner(llm)

	plan, err := p.PlanGoal(context.Background(), "book a flight", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "two phases", plan.Reasoning)
	want := []schemas.GoalStep{
		{Step: 1, Action: "open browser", Description: "Launch Firefox", Prerequisites: []string{"desktop visible"}, ExpectedOutcome: "browser window"},
		{Step: 2, Action: "search", Description: "Search for flights", Prerequisites: []string{"browser open"}},
	}
	if diff := cmp.Diff(want, plan.Steps); diff != "" {
		t.Errorf("goal steps mismatch (-want +got):\n%s", diff)
	}

	_, err = p.PlanGoal(context.Background(), "", "", nil)
	assert.ErrorIs(t, err, schemas.ErrInvalidInput)
}

func TestPlanGoalMarkdownFallback(t *testing.T) {
	llm := &fakeLLM{responses: []string{"1. Open the terminal\n2. Run the build\n"}}
	p := newTestPlanner(llm)

	plan, err := p.PlanGoal(context.Background(), "build the project", "", nil)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, 2, plan.Steps[1].Step)
	assert.Equal(t, "run", plan.Steps[1].Action)
	assert.Equal(t, "Run the build", plan.Steps[1].Description)
}

func TestAnalyzeScreen(t *testing.T) {
	llm := &fakeLLM{responses: []string{`{"description": "A terminal", "elements": ["prompt at (20, 1000)"], "steps": []}`}}
	p := newTestPlanner(llm)

	_, err := p.AnalyzeScreen(context.Background(), nil, "what is this?")
	assert.ErrorIs(t, err, schemas.ErrInvalidInput)

	out, err := p.AnalyzeScreen(context.Background(), &schemas.Screenshot{Data: "aGVsbG8="}, "")
	require.NoError(t, err)
	assert.Equal(t, "A terminal", out.Description)
	assert.Equal(t, []string{"prompt at (20, 1000)"}, out.Elements)
	assert.Equal(t, []string{"aGVsbG8="}, llm.requests[0].Images)

	llm.errs = []error{nil, errors.New("boom")}
	_, err = p.AnalyzeScreen(context.Background(), &schemas.Screenshot{Data: "aGVsbG8="}, "")
	assert.Error(t, err)
}
