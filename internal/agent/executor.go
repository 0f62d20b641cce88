// internal/agent/executor.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/Vrooli/agent-s2/api/schemas"
	"github.com/Vrooli/agent-s2/internal/audit"
	"github.com/Vrooli/agent-s2/internal/capture"
	"github.com/Vrooli/agent-s2/internal/desktop"
	"github.com/Vrooli/agent-s2/internal/humanoid"
	"github.com/Vrooli/agent-s2/internal/planner"
	"github.com/Vrooli/agent-s2/internal/store"
)

var saveAsRe = regexp.MustCompile(`(?i)\bsave\s+(?:it|this|the\s+screenshot)?\s*as\s+["']?([^\s"']+)`)

// Options tune the executor.
type Options struct {
	ScreenshotDir string
	// DebugDir, when set, receives <task_id>.json for every task.
	DebugDir     string
	TaskTimeout  time.Duration
	LaunchGrace  time.Duration
	TypeInterval time.Duration
}

// Deps are the executor's collaborators. Planner and Input are required;
// everything else degrades when nil.
type Deps struct {
	Planner   Planner
	Capturer  ScreenCapturer
	Windows   WindowSource
	Launcher  AppLauncher
	Catalog   AppCatalog
	Input     InputDriver
	Validator ActionValidator
	Cleaner   BrowserCleaner
	Profiles  ProfileProvider
	Auditor   ActionAuditor
	Ready     ReadyChecker
	Recorder  TaskRecorder
	Shortcuts ShortcutProvider
	Metrics   *Metrics
}

type actionHandler func(ctx context.Context, run *taskRun, idx int, action schemas.Action) []ActionOutcome

type taskRun struct {
	id   string
	task string
}

// Executor runs one task at a time: clean the browser, capture the screen,
// plan, then dispatch every action in order.
type Executor struct {
	planner   Planner
	capturer  ScreenCapturer
	windows   WindowSource
	launcher  AppLauncher
	catalog   AppCatalog
	input     InputDriver
	validator ActionValidator
	cleaner   BrowserCleaner
	profiles  ProfileProvider
	auditor   ActionAuditor
	ready     ReadyChecker
	recorder  TaskRecorder
	shortcuts ShortcutProvider
	metrics   *Metrics

	opts     Options
	logger   *zap.Logger
	handlers map[schemas.ActionType]actionHandler
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error

	mu sync.Mutex
}

func NewExecutor(deps Deps, logger *zap.Logger, opts Options) *Executor {
	if opts.LaunchGrace < 0 {
		opts.LaunchGrace = 0
	}
	e := &Executor{
		planner:   deps.Planner,
		capturer:  deps.Capturer,
		windows:   deps.Windows,
		launcher:  deps.Launcher,
		catalog:   deps.Catalog,
		input:     deps.Input,
		validator: deps.Validator,
		cleaner:   deps.Cleaner,
		profiles:  deps.Profiles,
		auditor:   deps.Auditor,
		ready:     deps.Ready,
		recorder:  deps.Recorder,
		shortcuts: deps.Shortcuts,
		metrics:   deps.Metrics,
		opts:      opts,
		logger:    logger.Named("executor"),
		handlers:  make(map[schemas.ActionType]actionHandler),
		now:       time.Now,
		sleep:     sleepCtx,
	}
	e.registerHandlers()
	return e
}

func (e *Executor) registerHandlers() {
	e.handlers[schemas.ActionClick] = e.handleClick
	e.handlers[schemas.ActionTypeText] = e.handleType
	e.handlers[schemas.ActionKey] = e.handleKey
	e.handlers[schemas.ActionWait] = e.handleWait
	e.handlers[schemas.ActionScroll] = e.handleScroll
	e.handlers[schemas.ActionScreenshotSave] = e.handleScreenshotSave
	e.handlers[schemas.ActionLaunchApp] = e.handleLaunchApp
	e.handlers[schemas.ActionManualReview] = e.handleManualReview
}

// CheckReady returns ErrNotReady when a required collaborator is missing or
// the LLM gateway is not initialized.
func (e *Executor) CheckReady() error {
	switch {
	case e.planner == nil:
		return fmt.Errorf("%w: no planner configured", schemas.ErrNotReady)
	case e.input == nil:
		return fmt.Errorf("%w: no input driver configured", schemas.ErrNotReady)
	case e.ready != nil && !e.ready.IsReady():
		return fmt.Errorf("%w: LLM gateway is not initialized", schemas.ErrNotReady)
	}
	return nil
}

// ExecuteTask plans and runs task. The error return is reserved for
// ErrNotReady and ErrInvalidInput, both raised before any side effect;
// every other failure is reported in the result.
func (e *Executor) ExecuteTask(ctx context.Context, task, taskContext string) (*TaskResult, error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return nil, fmt.Errorf("%w: task is empty", schemas.ErrInvalidInput)
	}
	if err := e.CheckReady(); err != nil {
		return nil, err
	}
	return e.run(ctx, uuid.NewString(), task, taskContext), nil
}

func (e *Executor) run(ctx context.Context, taskID, task, taskContext string) *TaskResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.opts.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.TaskTimeout)
		defer cancel()
	}

	logger := e.logger.With(zap.String("task_id", taskID))
	res := &TaskResult{
		TaskID:       taskID,
		Task:         task,
		ActionsTaken: []ActionOutcome{},
		StartedAt:    e.now(),
		DebugInfo:    schemas.DebugBundle{TaskID: taskID, ValidationErrors: []string{}},
	}
	defer e.finish(ctx, res, logger)
	logger.Info("Executing task", zap.String("task", task))

	if e.cleaner != nil {
		cr := e.cleaner.EnsureCleanState(ctx)
		if !cr.Success {
			res.DebugInfo.CleanupErrors = cr.Errors
			logger.Warn("Browser cleanup reported errors, continuing", zap.Strings("errors", cr.Errors))
		}
	}

	shot := e.captureForPlanning(ctx, &res.DebugInfo.ScreenshotCapture, logger)
	windowContext, browserOpen := e.BuildWindowContext(ctx)
	res.DebugInfo.WindowContext = windowContext

	plan, err := e.planner.PlanTaskExecution(ctx, planner.PlanRequest{
		Task:          task,
		Context:       taskContext,
		Screenshot:    shot,
		WindowContext: windowContext,
		BrowserOpen:   browserOpen,
	})
	if err != nil {
		res.Error = fmt.Sprintf("planning failed: %v", err)
		res.Summary = "No actions executed: " + res.Error
		logger.Error("Planning failed", zap.Error(err))
		return res
	}
	res.RawAIResponse = plan.RawResponse
	res.Reasoning = plan.Plan.Reasoning
	res.EstimatedDuration = plan.Plan.EstimatedDuration
	res.DebugInfo.FromPlanner = plan.Debug

	actions, validationErrs := ConvertPlan(plan.Plan.Steps)
	res.Plan = actions
	res.DebugInfo.ValidationErrors = append(res.DebugInfo.ValidationErrors, validationErrs...)

	run := &taskRun{id: taskID, task: task}
	for i, action := range actions {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(actions); j++ {
				res.ActionsTaken = append(res.ActionsTaken, ActionOutcome{
					Index: j, Action: actions[j], Status: StatusSkipped,
					ErrorCode: classifyError(err), Error: err.Error(),
				})
			}
			res.Error = fmt.Sprintf("task interrupted: %v", err)
			break
		}
		res.ActionsTaken = append(res.ActionsTaken, e.dispatch(ctx, run, i, action)...)
	}

	res.Success, res.Summary = summarize(res)
	return res
}

func (e *Executor) finish(ctx context.Context, res *TaskResult, logger *zap.Logger) {
	res.FinishedAt = e.now()
	e.metrics.observeTask(res.Success, res.FinishedAt.Sub(res.StartedAt))
	logger.Info("Task finished",
		zap.Bool("success", res.Success),
		zap.String("summary", res.Summary),
		zap.Duration("duration", res.FinishedAt.Sub(res.StartedAt)))

	if e.opts.DebugDir != "" {
		if err := writeDebugBundle(e.opts.DebugDir, res.DebugInfo); err != nil {
			logger.Warn("Failed to persist debug bundle", zap.Error(err))
		}
	}
	if e.recorder != nil {
		// The task context may have expired; persistence gets its own budget.
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := e.recorder.SaveTaskRecord(saveCtx, storeRecord(res)); err != nil {
			logger.Warn("Failed to persist task record", zap.Error(err))
		}
	}
}

func summarize(res *TaskResult) (bool, string) {
	counts := make(map[ActionStatus]int)
	for _, o := range res.ActionsTaken {
		counts[o.Status]++
	}
	total := len(res.ActionsTaken)
	summary := fmt.Sprintf("%d of %d actions succeeded (%d failed, %d blocked, %d skipped)",
		counts[StatusSuccess], total, counts[StatusFailed], counts[StatusBlocked], counts[StatusSkipped])
	if total == 0 {
		summary = "The plan contained no actions"
	}
	success := res.Error == "" && counts[StatusSuccess] > 0 && counts[StatusFailed] == 0
	return success, summary
}

func (e *Executor) captureForPlanning(ctx context.Context, info *schemas.ScreenshotCaptureInfo, logger *zap.Logger) *schemas.Screenshot {
	if e.capturer == nil {
		info.Error = "no screen capturer configured"
		return nil
	}
	shot, err := e.capturer.Capture(ctx, capture.Request{Format: schemas.FormatPNG})
	if err != nil {
		info.Error = err.Error()
		logger.Warn("Screenshot failed, planning without visual context", zap.Error(err))
		return nil
	}
	info.Captured = true
	info.Format = string(shot.Format)
	info.Size = shot.Size
	info.BytesMB = shot.BytesMB
	if err := capture.ValidateScreenshot(shot); err != nil {
		info.Error = err.Error()
		logger.Warn("Screenshot is invalid, planning without visual context", zap.Error(err))
		return nil
	}
	info.Valid = true
	return shot
}

// dispatch runs one action through its handler, converting panics into a
// failed outcome, then meters and audits what happened.
func (e *Executor) dispatch(ctx context.Context, run *taskRun, idx int, action schemas.Action) (outs []ActionOutcome) {
	start := e.now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Action handler panicked", zap.Any("panic", r), zap.String("action", action.String()))
			outs = []ActionOutcome{{
				Index: idx, Action: action, Status: StatusFailed,
				ErrorCode: ErrCodeExecutorPanic, Error: fmt.Sprintf("panic: %v", r),
			}}
		}
		elapsed := e.now().Sub(start)
		for i := range outs {
			if outs[i].Duration == 0 {
				outs[i].Duration = elapsed
			}
			e.metrics.observeAction(outs[i])
			e.audit(ctx, run, outs[i])
		}
	}()

	handler, ok := e.handlers[action.Type]
	if !ok {
		return []ActionOutcome{{
			Index: idx, Action: action, Status: StatusFailed,
			ErrorCode: ErrCodeUnknownAction, Error: fmt.Sprintf("no handler for action type %q", action.Type),
		}}
	}
	return handler(ctx, run, idx, action)
}

func (e *Executor) audit(ctx context.Context, run *taskRun, o ActionOutcome) {
	if e.auditor == nil {
		return
	}
	details := map[string]interface{}{
		"task_id": run.id,
		"status":  string(o.Status),
	}
	a := o.Action
	for k, v := range map[string]string{"text": a.Text, "key": a.Key, "app_name": a.AppName, "filename": a.Filename, "error": o.Error} {
		if v != "" {
			details[k] = v
		}
	}
	target := a.TargetApp
	if target == "" {
		target = a.AppName
	}
	eventType := "action_executed"
	if o.Status == StatusBlocked {
		eventType = "action_blocked"
	}
	e.auditor.LogAction(ctx, audit.Entry{
		EventType:   eventType,
		Source:      "executor",
		Target:      target,
		Action:      string(a.Type),
		Details:     details,
		UserContext: map[string]interface{}{"task": run.task},
	})
}

// outcome builds the record for an input dispatch.
func outcome(idx int, action schemas.Action, focus *humanoid.TargetedResult, err error) ActionOutcome {
	o := ActionOutcome{Index: idx, Action: action, Status: StatusSuccess, Focus: focus}
	if focus != nil && focus.FocusError != "" && err == nil {
		o.Warnings = append(o.Warnings, "focus not confirmed: "+focus.FocusError)
	}
	if err != nil {
		o.Status = StatusFailed
		o.ErrorCode = classifyError(err)
		o.Error = err.Error()
	}
	return o
}

func target(action schemas.Action) humanoid.Target {
	return humanoid.Target{App: action.TargetApp}
}

func (e *Executor) handleClick(ctx context.Context, _ *taskRun, idx int, action schemas.Action) []ActionOutcome {
	res, err := e.input.ClickTargeted(ctx, target(action), action.X, action.Y, action.Button, action.Clicks)
	return []ActionOutcome{outcome(idx, action, &res, err)}
}

func (e *Executor) handleType(ctx context.Context, run *taskRun, idx int, action schemas.Action) []ActionOutcome {
	var warnings []string
	if e.validator != nil {
		sec := e.validator.ValidateAction(ctx, action, run.task)
		if !sec.Valid {
			blocked := blockedOutcome(idx, action, sec)
			if sec.SuggestedAction == nil {
				return []ActionOutcome{blocked}
			}
			sub := *sec.SuggestedAction
			if sub.Type == "" {
				sub.Type = schemas.ActionTypeText
			}
			sub.TargetApp = action.TargetApp
			e.logger.Info("Substituting blocked text",
				zap.String("original", action.Text), zap.String("replacement", sub.Text))
			res, err := e.input.TypeTargeted(ctx, target(sub), sub.Text, e.opts.TypeInterval)
			replaced := outcome(idx, sub, &res, err)
			replaced.Warnings = append(replaced.Warnings, fmt.Sprintf("replaces blocked text %q", action.Text))
			return []ActionOutcome{blocked, replaced}
		}
		warnings = sec.Warnings
	}
	res, err := e.input.TypeTargeted(ctx, target(action), action.Text, e.opts.TypeInterval)
	o := outcome(idx, action, &res, err)
	o.Warnings = append(o.Warnings, warnings...)
	return []ActionOutcome{o}
}

func blockedOutcome(idx int, action schemas.Action, sec schemas.ActionSecurityResult) ActionOutcome {
	reason := sec.BlockedReason
	if reason == "" {
		reason = sec.Reason
	}
	return ActionOutcome{
		Index:     idx,
		Action:    action,
		Status:    StatusBlocked,
		ErrorCode: ErrCodeBlockedBySecurity,
		Error:     reason,
		Warnings:  sec.Warnings,
		Security:  &sec,
	}
}

func (e *Executor) handleKey(ctx context.Context, _ *taskRun, idx int, action schemas.Action) []ActionOutcome {
	res, err := e.input.PressTargeted(ctx, target(action), strings.TrimSpace(action.Key))
	return []ActionOutcome{outcome(idx, action, &res, err)}
}

func (e *Executor) handleWait(ctx context.Context, _ *taskRun, idx int, action schemas.Action) []ActionOutcome {
	err := e.sleep(ctx, time.Duration(action.Seconds*float64(time.Second)))
	return []ActionOutcome{outcome(idx, action, nil, err)}
}

func (e *Executor) handleScroll(ctx context.Context, _ *taskRun, idx int, action schemas.Action) []ActionOutcome {
	var at *schemas.Point
	if action.X != 0 || action.Y != 0 {
		at = &schemas.Point{X: action.X, Y: action.Y}
	}
	res, err := e.input.ScrollTargeted(ctx, target(action), action.Direction, action.Amount, at)
	return []ActionOutcome{outcome(idx, action, &res, err)}
}

func (e *Executor) handleScreenshotSave(ctx context.Context, run *taskRun, idx int, action schemas.Action) []ActionOutcome {
	fail := func(err error) []ActionOutcome {
		return []ActionOutcome{{Index: idx, Action: action, Status: StatusFailed, ErrorCode: ErrCodeCaptureFailed, Error: err.Error()}}
	}
	if e.capturer == nil {
		return fail(fmt.Errorf("%w: no screen capturer configured", schemas.ErrNotReady))
	}
	shot, err := e.capturer.Capture(ctx, capture.Request{Format: schemas.FormatPNG})
	if err != nil {
		return fail(err)
	}
	data, err := capture.DecodeDataURI(shot)
	if err != nil {
		return fail(err)
	}

	name := action.Filename
	if name == "" {
		name = SaveAsFilename(run.task)
	}
	if name == "" {
		name = fmt.Sprintf("screenshot_%s.png", e.now().UTC().Format("20060102_150405"))
	}
	name = filepath.Base(name)
	if filepath.Ext(name) == "" {
		name += "." + string(shot.Format)
	}
	dir := e.opts.ScreenshotDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fail(fmt.Errorf("creating screenshot directory: %w", err))
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fail(fmt.Errorf("writing screenshot: %w", err))
	}
	action.Filename = name
	return []ActionOutcome{{Index: idx, Action: action, Status: StatusSuccess, OutputPath: path}}
}

// SaveAsFilename extracts X from "... save it as X" in a task.
func SaveAsFilename(task string) string {
	m := saveAsRe.FindStringSubmatch(task)
	if m == nil {
		return ""
	}
	return strings.TrimRight(m[1], ".,;:!?")
}

func (e *Executor) handleLaunchApp(ctx context.Context, run *taskRun, idx int, action schemas.Action) []ActionOutcome {
	if e.validator != nil {
		if sec := e.validator.ValidateAction(ctx, action, run.task); !sec.Valid {
			return []ActionOutcome{blockedOutcome(idx, action, sec)}
		}
	}
	failed := func(code ErrorCode, err error) []ActionOutcome {
		return []ActionOutcome{{Index: idx, Action: action, Status: StatusFailed, ErrorCode: code, Error: err.Error()}}
	}

	spec, ok := desktop.LookupApp(action.AppName)
	if !ok {
		return failed(ErrCodeAppUnknown, fmt.Errorf("%w: unknown application %q", schemas.ErrInvalidInput, action.AppName))
	}
	if e.launcher == nil {
		return failed(ErrCodeLaunchFailed, fmt.Errorf("%w: no application launcher configured", schemas.ErrNotReady))
	}

	var args []string
	if e.profiles != nil {
		extra, err := e.profiles.LaunchArgs(spec.DisplayName)
		if err != nil {
			e.logger.Warn("Could not prepare launch profile, launching without it", zap.String("app", spec.DisplayName), zap.Error(err))
		} else {
			args = extra
		}
	}

	appeared, err := e.launcher.Start(ctx, spec.DisplayName, args...)
	if err != nil {
		code := ErrCodeLaunchFailed
		if errors.Is(err, schemas.ErrInvalidInput) {
			code = ErrCodeAppUnknown
		}
		return failed(code, err)
	}
	o := ActionOutcome{Index: idx, Action: action, Status: StatusSuccess}
	if !appeared {
		o.Warnings = append(o.Warnings, "no window appeared before the start timeout")
	}
	if err := e.sleep(ctx, e.opts.LaunchGrace); err != nil {
		o.Warnings = append(o.Warnings, "launch grace period interrupted")
	}
	return []ActionOutcome{o}
}

func (e *Executor) handleManualReview(_ context.Context, _ *taskRun, idx int, action schemas.Action) []ActionOutcome {
	return []ActionOutcome{{
		Index: idx, Action: action, Status: StatusSkipped,
		ErrorCode: ErrCodeManualReview, Error: "step needs manual review: " + action.Description,
	}}
}

func writeDebugBundle(dir string, bundle schemas.DebugBundle) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, bundle.TaskID+".json"), data, 0o644)
}

func storeRecord(res *TaskResult) store.TaskRecord {
	rec := store.TaskRecord{
		TaskID:     res.TaskID,
		Task:       res.Task,
		Success:    res.Success,
		Summary:    res.Summary,
		Error:      res.Error,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	}
	for _, o := range res.ActionsTaken {
		detail := map[string]any{"action": o.Action.String()}
		if o.ErrorCode != "" {
			detail["error_code"] = string(o.ErrorCode)
			detail["error"] = o.Error
		}
		rec.Actions = append(rec.Actions, store.ActionRecord{
			Type:   string(o.Action.Type),
			Status: string(o.Status),
			Detail: detail,
		})
	}
	return rec
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
