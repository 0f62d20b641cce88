// internal/planner/completeness.go
package planner

import (
	"regexp"
	"strings"

	"github.com/Vrooli/agent-s2/api/schemas"
	"github.com/Vrooli/agent-s2/internal/desktop"
	"github.com/Vrooli/agent-s2/internal/routing"
)

var (
	navigationIntentRe = regexp.MustCompile(`(?i)\b(go to|navigate|visit|browse to)\b`)
	searchIntentRe     = regexp.MustCompile(`(?i)\b(search for|look up|find)\b`)
)

// minStepWords is the task length, in words, above which a plan needs at least two steps.
const minStepWords = 3

// Completeness is the outcome of checking a plan against its task.
// Navigation tasks must type a URL; search tasks may type any query.
type Completeness struct {
	Navigation bool
	Search     bool
	Issues     []string
}

// NeedsBrowserRepair reports whether the plan should get the canonical
// address-bar sequence appended.
func (c Completeness) NeedsBrowserRepair() bool {
	return (c.Navigation || c.Search) && len(c.Issues) > 0
}

// CheckCompleteness verifies that a plan can plausibly accomplish task.
// taskType is the classifier verdict; image searches count as navigation.
func CheckCompleteness(task string, taskType schemas.TaskType, steps []schemas.Action) Completeness {
	c := Completeness{
		Navigation: navigationIntentRe.MatchString(task) ||
			taskType == schemas.TaskNavigation || taskType == schemas.TaskImageSearch,
		Search: searchIntentRe.MatchString(task) || taskType == schemas.TaskSearch,
	}
	if c.Navigation && !typedThenEnter(steps, true) {
		c.Issues = append(c.Issues, "navigation task does not type a URL followed by Enter")
	}
	if c.Search && !c.Navigation && !typedThenEnter(steps, false) {
		c.Issues = append(c.Issues, "search task does not type a query followed by Enter")
	}
	if len(strings.Fields(task)) > minStepWords && executableSteps(steps) < 2 {
		c.Issues = append(c.Issues, "non-trivial task has fewer than 2 executable steps")
	}
	return c
}

// typedThenEnter reports whether some type action is later followed by Enter.
// With wantURL, only typed text that looks like a URL counts.
func typedThenEnter(steps []schemas.Action, wantURL bool) bool {
	typed := false
	for _, a := range steps {
		switch {
		case a.Type == schemas.ActionTypeText:
			if !wantURL || routing.LooksLikeURL(a.Text) {
				typed = true
			}
		case a.IsEnter() && typed:
			return true
		}
	}
	return false
}

func executableSteps(steps []schemas.Action) int {
	n := 0
	for _, a := range steps {
		if a.Type != schemas.ActionManualReview {
			n++
		}
	}
	return n
}

func launchesBrowser(steps []schemas.Action) bool {
	for _, a := range steps {
		if a.Type == schemas.ActionLaunchApp && desktop.ResolveApp(a.AppName) == "firefox" {
			return true
		}
	}
	return false
}

// BrowserSequence is the canonical address-bar navigation to targetURL.
func BrowserSequence(targetURL string) []schemas.Action {
	click := schemas.NewClick(700, 100)
	click.Description = "focus the browser address bar"
	selectAll := schemas.NewKey("Ctrl+A")
	selectAll.Description = "select the current address"
	typeURL := schemas.NewTypeText(targetURL)
	typeURL.Description = "enter the destination URL"
	submit := schemas.NewKey("Enter")
	submit.Description = "load the page"
	settle := schemas.NewWait(3)
	settle.Description = "wait for the page to load"
	ready := schemas.NewWait(2)
	ready.Description = "wait for the browser to be ready"
	return []schemas.Action{ready, click, selectAll, typeURL, submit, settle}
}

// RepairPlan appends the canonical browser sequence for targetURL. When no
// browser window is open and the plan never launches one, a launch_app step
// is prepended.
func RepairPlan(steps []schemas.Action, targetURL string, browserOpen bool) []schemas.Action {
	out := make([]schemas.Action, 0, len(steps)+7)
	if !browserOpen && !launchesBrowser(steps) {
		launch := schemas.NewLaunchApp(schemas.DefaultBrowserApp)
		launch.Description = "open the web browser"
		out = append(out, launch)
	}
	out = append(out, steps...)
	return append(out, BrowserSequence(targetURL)...)
}
