// internal/planner/prompts.go
package planner

import (
	"fmt"
	"strings"

	"github.com/Vrooli/agent-s2/api/schemas"
)

const planSchema = `{
  "reasoning": "why these steps accomplish the task",
  "estimated_duration": "e.g. 15 seconds",
  "steps": [
    {"type": "launch_app", "app_name": "Firefox ESR", "description": "..."},
    {"type": "click", "x": 700, "y": 100, "button": "left", "description": "..."},
    {"type": "type", "text": "https://example.org", "description": "..."},
    {"type": "key", "key": "Enter", "description": "..."},
    {"type": "wait", "seconds": 2, "description": "..."},
    {"type": "scroll", "direction": "down", "amount": 3, "description": "..."},
    {"type": "screenshot_save", "filename": "result.png", "description": "..."}
  ]
}`

const goalSchema = `{
  "reasoning": "overall approach",
  "steps": [
    {
      "step": 1,
      "action": "short verb phrase",
      "description": "what to do",
      "prerequisites": ["what must already be true"],
      "expected_outcome": "what the screen shows afterwards"
    }
  ]
}`

const analysisSchema = `{
  "description": "what is currently on screen",
  "elements": ["notable UI elements with approximate coordinates"],
  "steps": [
    {
      "step": 1,
      "action": "short verb phrase",
      "description": "what to do",
      "prerequisites": [],
      "expected_outcome": "what the screen shows afterwards"
    }
  ]
}`

type promptInput struct {
	width, height  int
	windowContext  string
	suggestedURL   string
	classification *schemas.TaskClassification
}

func desktopConventions(width, height int) string {
	return fmt.Sprintf(`DESKTOP ENVIRONMENT:
- The display is a single %dx%d screen. All coordinates are absolute screen pixels with (0,0) at the top left.
- The window manager is Fluxbox. New windows open maximized; the Firefox address bar is near (700,100).
- To give a window focus, click its focus point (listed in the window context below).
`, width, height)
}

const launchConventions = `APPLICATION LAUNCHING:
- To open an application you MUST use a "launch_app" step with "app_name". Never type launcher commands or shell strings.
- After launch_app, add a "wait" step of at least 2 seconds so the window can appear.
`

const navigationGuidance = `WEB NAVIGATION SECURITY:
- Only type URLs of well-known, legitimate sites. Never invent domains.
- When a suggested URL is given, use it exactly instead of guessing a domain.
- To navigate: click the address bar, press Ctrl+A, type the URL, then press Enter.
- When unsure which site to use, search instead of guessing.
`

func buildSystemPrompt(in promptInput) string {
	var b strings.Builder
	b.WriteString("You control a Linux desktop by emitting precise GUI actions. You see a screenshot of the current screen when one is available.\n\n")
	b.WriteString(desktopConventions(in.width, in.height))
	b.WriteString("\n")
	b.WriteString(launchConventions)
	b.WriteString("\n")
	b.WriteString(navigationGuidance)
	if ctx := strings.TrimSpace(in.windowContext); ctx != "" {
		b.WriteString("\nWINDOW CONTEXT:\n")
		b.WriteString(ctx)
		b.WriteString("\n")
	}
	if in.suggestedURL != "" {
		b.WriteString("\nSUGGESTED URL:\n")
		fmt.Fprintf(&b, "Use %s for this task", in.suggestedURL)
		if in.classification != nil {
			fmt.Fprintf(&b, " (classified as %s)", in.classification.TaskType)
		}
		b.WriteString(". Type it exactly as given.\n")
	}
	b.WriteString("\nAllowed step types: click, type, key, wait, scroll, launch_app, screenshot_save.\n")
	b.WriteString("Respond with a single JSON object and nothing else.")
	return b.String()
}

func buildUserPrompt(task, context string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "TASK: %s\n", task)
	if c := strings.TrimSpace(context); c != "" {
		fmt.Fprintf(&b, "CONTEXT: %s\n", c)
	}
	b.WriteString("\nReturn the plan as JSON matching exactly this schema:\n")
	b.WriteString(planSchema)
	return b.String()
}

func buildGoalPrompts(goal, context string, width, height int) (string, string) {
	system := "You are a planner for GUI automation on a Linux desktop. Break goals into ordered, verifiable steps.\n\n" +
		desktopConventions(width, height) + "\n" + launchConventions +
		"\nRespond with a single JSON object and nothing else."

	var b strings.Builder
	fmt.Fprintf(&b, "GOAL: %s\n", goal)
	if c := strings.TrimSpace(context); c != "" {
		fmt.Fprintf(&b, "CONTEXT: %s\n", c)
	}
	b.WriteString("\nReturn JSON matching exactly this schema:\n")
	b.WriteString(goalSchema)
	return system, b.String()
}

func buildAnalysisPrompts(question string, width, height int) (string, string) {
	system := "You analyze screenshots of a Linux desktop and suggest how a user could proceed.\n\n" +
		desktopConventions(width, height) +
		"\nRespond with a single JSON object and nothing else."

	q := strings.TrimSpace(question)
	if q == "" {
		q = "Describe the screen and the next useful actions."
	}
	return system, fmt.Sprintf("QUESTION: %s\n\nReturn JSON matching exactly this schema:\n%s", q, analysisSchema)
}
