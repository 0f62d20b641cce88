// api/schemas/routing.go
package schemas

// TaskType is the intent family a task was classified into.
type TaskType string

const (
	TaskSearch      TaskType = "search"
	TaskImageSearch TaskType = "image_search"
	TaskNavigation  TaskType = "navigation"
	TaskApplication TaskType = "application"
	TaskSystem      TaskType = "system"
	TaskAutomation  TaskType = "automation"
	TaskUnknown     TaskType = "unknown"
)

// TaskClassification is the classifier's verdict on a natural-language task.
type TaskClassification struct {
	TaskType          TaskType               `json:"task_type"`
	Confidence        float64                `json:"confidence"`
	Metadata          map[string]interface{} `json:"metadata"`
	SafeToExecute     bool                   `json:"safe_to_execute"`
	RecommendedAction string                 `json:"recommended_action"`
	Scores            map[TaskType]float64   `json:"scores,omitempty"`
}

// Target returns the navigation target extracted by the classifier, if any.
func (c TaskClassification) Target() string {
	if c.Metadata == nil {
		return ""
	}
	s, _ := c.Metadata["target"].(string)
	return s
}

// URLValidation is the semantic URL validator's verdict.
type URLValidation struct {
	IsValid        bool     `json:"is_valid"`
	Confidence     float64  `json:"confidence"`
	Issues         []string `json:"issues"`
	Suggestions    []string `json:"suggestions"`
	AlternativeURL string   `json:"alternative_url,omitempty"`
	Reasoning      string   `json:"reasoning"`
}

// TypeActionType classifies the text of a type action.
type TypeActionType string

const (
	TypeActionURL   TypeActionType = "url"
	TypeActionEmail TypeActionType = "email"
	TypeActionText  TypeActionType = "text"
)

// ActionSecurityResult is the security validator's decision for one action.
type ActionSecurityResult struct {
	Valid           bool           `json:"valid"`
	Reason          string         `json:"reason"`
	TextType        TypeActionType `json:"text_type,omitempty"`
	SuggestedAction *Action        `json:"suggested_action,omitempty"`
	BlockedReason   string         `json:"blocked_reason,omitempty"`
	Warnings        []string       `json:"warnings,omitempty"`
}
