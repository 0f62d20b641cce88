// internal/agent/convert.go
package agent

import (
	"fmt"
	"strings"

	"github.com/Vrooli/agent-s2/api/schemas"
)

// ConvertPlan fills typed defaults into each step and validates it. Steps that
// still fail validation become manual_review; their errors are returned
// alongside and never abort the plan.
func ConvertPlan(steps []schemas.Action) ([]schemas.Action, []string) {
	out := make([]schemas.Action, 0, len(steps))
	var errs []string
	for i, a := range steps {
		a = withDefaults(a)
		if err := a.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("step %d (%s): %v", i+1, a.Type, err))
			desc := a.Description
			if desc == "" {
				desc = a.String()
			}
			out = append(out, schemas.NewManualReview(desc))
			continue
		}
		out = append(out, a)
	}
	return out, errs
}

func withDefaults(a schemas.Action) schemas.Action {
	a.Type = schemas.ActionType(strings.ToLower(strings.TrimSpace(string(a.Type))))
	switch a.Type {
	case schemas.ActionClick:
		if a.Button == "" {
			a.Button = schemas.ButtonLeft
		}
		if a.Clicks == 0 {
			a.Clicks = 1
		}
	case schemas.ActionScroll:
		if a.Direction == "" {
			a.Direction = schemas.ScrollDown
		}
		if a.Amount == 0 {
			a.Amount = 3
		}
	}
	return a
}
