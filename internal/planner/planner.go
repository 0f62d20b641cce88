// internal/planner/planner.go
package planner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/Vrooli/agent-s2/api/schemas"
	"github.com/Vrooli/agent-s2/internal/llmclient"
	"github.com/Vrooli/agent-s2/internal/llmutil"
	"github.com/Vrooli/agent-s2/internal/routing"
)

// URLRouter is the subset of the task router the planner depends on.
type URLRouter interface {
	Classify(task string) schemas.TaskClassification
	URLForTask(ctx context.Context, task string) string
	ValidateURL(ctx context.Context, rawURL, task string) schemas.URLValidation
	IsSearchURL(u string) bool
}

var _ URLRouter = (*routing.Router)(nil)

// Options sizes the coordinate space described to the model.
type Options struct {
	ScreenWidth  int
	ScreenHeight int
}

// PlanRequest is one task to plan.
type PlanRequest struct {
	Task          string
	Context       string
	Screenshot    *schemas.Screenshot
	WindowContext string
	// BrowserOpen reports whether a browser window already exists.
	BrowserOpen bool
}

// PlanResult is a validated plan plus what produced it.
type PlanResult struct {
	Plan        schemas.Plan
	RawResponse string
	Debug       schemas.PlannerDebug
}

// GoalPlan is the output of PlanGoal.
type GoalPlan struct {
	Goal        string             `json:"goal"`
	Reasoning   string             `json:"reasoning"`
	Steps       []schemas.GoalStep `json:"steps"`
	RawResponse string             `json:"raw_response"`
}

// ScreenAnalysis is the output of AnalyzeScreen.
type ScreenAnalysis struct {
	Description string             `json:"description"`
	Elements    []string           `json:"elements"`
	Steps       []schemas.GoalStep `json:"steps"`
	RawResponse string             `json:"raw_response"`
}

// Planner turns natural-language tasks into executable plans using a vision model.
type Planner struct {
	llm    schemas.LLMClient
	router URLRouter
	logger *zap.Logger
	width  int
	height int
}

// NewPlanner creates a planner. router may be nil, in which case no URL is
// suggested or revalidated.
func NewPlanner(llm schemas.LLMClient, router URLRouter, logger *zap.Logger, opts Options) *Planner {
	if opts.ScreenWidth <= 0 {
		opts.ScreenWidth = 1920
	}
	if opts.ScreenHeight <= 0 {
		opts.ScreenHeight = 1080
	}
	return &Planner{
		llm:    llm,
		router: router,
		logger: logger.Named("planner"),
		width:  opts.ScreenWidth,
		height: opts.ScreenHeight,
	}
}

func isWebTask(t schemas.TaskType) bool {
	switch t {
	case schemas.TaskSearch, schemas.TaskImageSearch, schemas.TaskNavigation:
		return true
	}
	return false
}

// PlanTaskExecution asks the model for a plan, then normalizes, repairs, and
// revalidates it. Generation failures are returned; parse failures are not,
// they degrade into repair of an empty plan.
func (p *Planner) PlanTaskExecution(ctx context.Context, req PlanRequest) (*PlanResult, error) {
	task := strings.TrimSpace(req.Task)
	if task == "" {
		return nil, fmt.Errorf("%w: task is empty", schemas.ErrInvalidInput)
	}
	if p.llm == nil {
		return nil, fmt.Errorf("%w: no model client configured", schemas.ErrNotReady)
	}

	res := &PlanResult{}
	dbg := &res.Debug
	dbg.Context = req.Context

	in := promptInput{width: p.width, height: p.height, windowContext: req.WindowContext}
	taskType := schemas.TaskUnknown
	if p.router != nil {
		cls := p.router.Classify(task)
		taskType = cls.TaskType
		dbg.Classification = &cls
		in.classification = &cls
		if isWebTask(cls.TaskType) {
			in.suggestedURL = p.router.URLForTask(ctx, task)
			dbg.SuggestedURL = in.suggestedURL
		}
	}
	dbg.SystemPrompt = buildSystemPrompt(in)
	dbg.UserPrompt = buildUserPrompt(task, req.Context)

	genReq := schemas.GenerationRequest{SystemPrompt: dbg.SystemPrompt, UserPrompt: dbg.UserPrompt}
	if req.Screenshot != nil {
		genReq.Images = llmclient.NormalizeImages(req.Screenshot.Data)
	}
	dbg.ScreenshotIncluded = len(genReq.Images) > 0

	raw, err := p.generate(ctx, genReq, dbg)
	if err != nil {
		return nil, err
	}
	res.RawResponse = raw

	parsed, method, err := ParseResponse(raw)
	dbg.ParseMethod = method
	if err != nil {
		p.logger.Warn("Could not parse a plan from the model response.",
			zap.String("response", llmutil.Truncate(raw, 500)), zap.Error(err))
	}
	steps := NormalizeSteps(parsed.Steps)

	if p.router != nil {
		steps, dbg.URLReplacements = p.revalidateURLs(ctx, task, steps)
	}

	check := CheckCompleteness(task, taskType, steps)
	dbg.CompletenessIssues = check.Issues
	if check.NeedsBrowserRepair() {
		target := in.suggestedURL
		if target == "" && p.router != nil {
			target = p.router.URLForTask(ctx, task)
		}
		if target == "" {
			target = routing.DuckDuckGoURL(routing.ExtractQuery(task), false)
		}
		steps = RepairPlan(steps, target, req.BrowserOpen)
		dbg.PlanEnhanced = true
		p.logger.Info("Plan was incomplete; appended browser navigation.",
			zap.Strings("issues", check.Issues), zap.String("url", target))
	}
	dbg.PlanValidated = len(CheckCompleteness(task, taskType, steps).Issues) == 0

	reasoning := parsed.Reasoning
	if reasoning == "" {
		reasoning = "no reasoning provided"
	}
	res.Plan = schemas.Plan{
		Steps:             steps,
		Reasoning:         reasoning,
		EstimatedDuration: parsed.EstimatedDuration,
	}
	return res, nil
}

// generate calls the model, retrying once without images when a vision call fails.
func (p *Planner) generate(ctx context.Context, req schemas.GenerationRequest, dbg *schemas.PlannerDebug) (string, error) {
	raw, err := p.llm.Generate(ctx, req)
	if err == nil {
		return raw, nil
	}
	if len(req.Images) == 0 || errors.Is(err, schemas.ErrNotReady) || ctx.Err() != nil {
		return "", fmt.Errorf("plan generation failed: %w", err)
	}

	p.logger.Warn("Vision generation failed; retrying without the screenshot.", zap.Error(err))
	dbg.TextOnlyRetry = true
	dbg.ScreenshotIncluded = false
	req.Images = nil
	raw, err = p.llm.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("plan generation failed after text-only retry: %w", err)
	}
	return raw, nil
}

// revalidateURLs replaces typed URLs the router judges invalid or low-confidence.
func (p *Planner) revalidateURLs(ctx context.Context, task string, steps []schemas.Action) ([]schemas.Action, []string) {
	var replaced []string
	for i, a := range steps {
		if a.Type != schemas.ActionTypeText || !routing.LooksLikeURL(a.Text) || p.router.IsSearchURL(a.Text) {
			continue
		}
		v := p.router.ValidateURL(ctx, a.Text, task)
		if v.IsValid && v.Confidence >= 0.5 {
			continue
		}
		alt := v.AlternativeURL
		if alt == "" {
			alt = p.router.URLForTask(ctx, task)
		}
		if alt == "" || alt == a.Text {
			continue
		}
		steps[i].Text = alt
		steps[i].Description = strings.TrimSpace(fmt.Sprintf("%s (URL replaced: %s -> %s)", a.Description, a.Text, alt))
		replaced = append(replaced, a.Text+" -> "+alt)
		p.logger.Info("Replaced a questionable URL in the plan.",
			zap.String("original", a.Text), zap.String("replacement", alt),
			zap.Float64("confidence", v.Confidence), zap.Strings("issues", v.Issues))
	}
	return steps, replaced
}

// PlanGoal breaks a goal into descriptive steps. The screenshot is optional.
func (p *Planner) PlanGoal(ctx context.Context, goal, goalContext string, shot *schemas.Screenshot) (*GoalPlan, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, fmt.Errorf("%w: goal is empty", schemas.ErrInvalidInput)
	}
	if p.llm == nil {
		return nil, fmt.Errorf("%w: no model client configured", schemas.ErrNotReady)
	}
	system, user := buildGoalPrompts(goal, goalContext, p.width, p.height)
	req := schemas.GenerationRequest{SystemPrompt: system, UserPrompt: user}
	if shot != nil {
		req.Images = llmclient.NormalizeImages(shot.Data)
	}
	var dbg schemas.PlannerDebug
	raw, err := p.generate(ctx, req, &dbg)
	if err != nil {
		return nil, err
	}
	doc, steps, err := parseGoalResponse(raw)
	if err != nil {
		return nil, err
	}
	return &GoalPlan{Goal: goal, Reasoning: stringOf(doc["reasoning"]), Steps: steps, RawResponse: raw}, nil
}

// AnalyzeScreen describes a screenshot and proposes next steps.
func (p *Planner) AnalyzeScreen(ctx context.Context, shot *schemas.Screenshot, question string) (*ScreenAnalysis, error) {
	if shot == nil || shot.Data == "" {
		return nil, fmt.Errorf("%w: screen analysis requires a screenshot", schemas.ErrInvalidInput)
	}
	if p.llm == nil {
		return nil, fmt.Errorf("%w: no model client configured", schemas.ErrNotReady)
	}
	system, user := buildAnalysisPrompts(question, p.width, p.height)
	raw, err := p.llm.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: system,
		UserPrompt:   user,
		Images:       llmclient.NormalizeImages(shot.Data),
	})
	if err != nil {
		return nil, fmt.Errorf("screen analysis failed: %w", err)
	}
	doc, steps, err := parseGoalResponse(raw)
	if err != nil && !errors.Is(err, ErrUnparseable) {
		return nil, err
	}
	out := &ScreenAnalysis{Steps: steps, RawResponse: raw}
	if doc != nil {
		out.Description = stringOf(doc["description"])
		out.Elements = stringList(doc["elements"])
	}
	if out.Description == "" {
		out.Description = strings.TrimSpace(raw)
	}
	return out, nil
}

// parseGoalResponse decodes {step, action, description, prerequisites,
// expected_outcome} steps, falling back to markdown lines.
func parseGoalResponse(raw string) (map[string]any, []schemas.GoalStep, error) {
	if obj, ok := llmutil.ExtractJSONObject(raw); ok {
		var doc map[string]any
		if err := json.Unmarshal([]byte(obj), &doc); err == nil {
			list, _ := doc["steps"].([]any)
			steps := make([]schemas.GoalStep, 0, len(list))
			for i, item := range list {
				m, ok := item.(map[string]any)
				if !ok {
					continue
				}
				gs := schemas.GoalStep{
					Action:          firstString(m, "action", "type"),
					Description:     firstString(m, "description"),
					Prerequisites:   stringList(m["prerequisites"]),
					ExpectedOutcome: firstString(m, "expected_outcome", "outcome"),
				}
				if n, ok := firstNumber(m, "step"); ok && n > 0 {
					gs.Step = int(n)
				} else {
					gs.Step = i + 1
				}
				steps = append(steps, gs)
			}
			return doc, steps, nil
		}
	}

	md := parseMarkdownSteps(raw)
	if len(md) == 0 {
		return nil, nil, ErrUnparseable
	}
	steps := make([]schemas.GoalStep, 0, len(md))
	for i, s := range md {
		action := s.action
		if action == "" {
			if f := strings.Fields(s.text); len(f) > 0 {
				action = strings.ToLower(strings.Trim(f[0], ":,."))
			}
		}
		steps = append(steps, schemas.GoalStep{
			Step:          i + 1,
			Action:        action,
			Description:   s.text,
			Prerequisites: []string{},
		})
	}
	return nil, steps, nil
}

func stringList(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := strings.TrimSpace(stringOf(item)); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
	case float64:
		return []string{strconv.FormatFloat(t, 'f', -1, 64)}
	}
	return []string{}
}
