// api/schemas/debug.go
package schemas

// ScreenshotCaptureInfo records how the pre-plan capture went.
type ScreenshotCaptureInfo struct {
	Captured bool    `json:"captured"`
	Valid    bool    `json:"valid"`
	Format   string  `json:"format,omitempty"`
	Size     Size    `json:"size"`
	BytesMB  float64 `json:"bytes_mb,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// PlannerDebug is the planner's contribution to the debug bundle.
type PlannerDebug struct {
	SystemPrompt       string              `json:"system_prompt"`
	UserPrompt         string              `json:"user_prompt"`
	ScreenshotIncluded bool                `json:"screenshot_included"`
	Context            string              `json:"context,omitempty"`
	SuggestedURL       string              `json:"suggested_url,omitempty"`
	Classification     *TaskClassification `json:"classification,omitempty"`
	ParseMethod        string              `json:"parse_method,omitempty"`
	TextOnlyRetry      bool                `json:"text_only_retry,omitempty"`
	PlanValidated      bool                `json:"plan_validated"`
	PlanEnhanced       bool                `json:"plan_enhanced"`
	CompletenessIssues []string            `json:"completeness_issues,omitempty"`
	URLReplacements    []string            `json:"url_replacements,omitempty"`
}

// DebugBundle is the per-task postmortem record.
type DebugBundle struct {
	TaskID            string                `json:"task_id"`
	ScreenshotCapture ScreenshotCaptureInfo `json:"screenshot_capture"`
	WindowContext     string                `json:"window_context"`
	FromPlanner       PlannerDebug          `json:"from_planner"`
	ValidationErrors  []string              `json:"validation_errors"`
	CleanupErrors     []string              `json:"cleanup_errors,omitempty"`
}
