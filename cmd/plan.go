// File: cmd/plan.go
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Vrooli/agent-s2/api/schemas"
	"github.com/Vrooli/agent-s2/internal/capture"
	"github.com/Vrooli/agent-s2/internal/observability"
	"github.com/Vrooli/agent-s2/internal/service"
)

type planOptions struct {
	goalContext  string
	noScreenshot bool
}

func newPlanCmd(factory service.ComponentFactory) *cobra.Command {
	opts := &planOptions{}
	cmd := &cobra.Command{
		Use:   "plan <goal...>",
		Short: "Break a goal into descriptive steps without executing anything",
		Long: `plan asks the model to decompose a high-level goal into numbered steps,
each with prerequisites and an expected outcome, and prints them as JSON.
The current screen is attached unless --no-screenshot is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			goal := strings.Join(args, " ")
			return withComponents(cmd, factory, nil, func(c *service.Components) error {
				if !c.LLM.IsReady() {
					return fmt.Errorf("LLM gateway is not ready; run `agent-s2 llm probe`")
				}
				var shot *schemas.Screenshot
				if !opts.noScreenshot {
					var err error
					if shot, err = c.Capture.Capture(cmd.Context(), capture.Request{}); err != nil {
						observability.Component("cli").Warn("Planning without a screenshot", zap.Error(err))
						shot = nil
					}
				}
				plan, err := c.Planner.PlanGoal(cmd.Context(), goal, opts.goalContext, shot)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), plan)
			})
		},
	}
	cmd.Flags().StringVar(&opts.goalContext, "context", "", "extra context about the goal")
	cmd.Flags().BoolVar(&opts.noScreenshot, "no-screenshot", false, "plan from the goal text alone")
	return cmd
}
