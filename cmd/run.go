// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Vrooli/agent-s2/internal/agent"
	"github.com/Vrooli/agent-s2/internal/observability"
	"github.com/Vrooli/agent-s2/internal/service"
)

type runOptions struct {
	taskContext string
	asJSON      bool
}

func newRunCmd(factory service.ComponentFactory) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <task...>",
		Short: "Plan and execute one task on the desktop, waiting for it to finish",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task := strings.Join(args, " ")
			return withComponents(cmd, factory, nil, func(c *service.Components) error {
				res, err := c.Executor.ExecuteTask(cmd.Context(), task, opts.taskContext)
				if err != nil {
					return err
				}
				if err := printResult(cmd.OutOrStdout(), res, opts.asJSON); err != nil {
					return err
				}
				if !res.Success {
					return fmt.Errorf("task did not succeed: %s", res.Summary)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.taskContext, "context", "", "extra context passed to the planner")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the full task result as JSON")
	return cmd
}

type submitOptions struct {
	taskContext string
	timeout     time.Duration
}

func newSubmitCmd(factory service.ComponentFactory) *cobra.Command {
	opts := &submitOptions{}
	cmd := &cobra.Command{
		Use:   "submit <task...>",
		Short: "Submit a task to the background task manager and print its record",
		Long: `submit queues the task, prints the pending record, then waits for the
task to finish (or for --timeout) and prints the final record as JSON.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task := strings.Join(args, " ")
			return withComponents(cmd, factory, nil, func(c *service.Components) error {
				rec, err := c.Tasks.Submit(task, opts.taskContext)
				if err != nil {
					return err
				}
				cmd.Printf("Submitted task %s (%s)\n", rec.ID, rec.Status)
				observability.Component("cli").Debug("Task submitted", zap.String("task_id", rec.ID))

				ctx := cmd.Context()
				if opts.timeout > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, opts.timeout)
					defer cancel()
				}
				final, err := c.Tasks.Wait(ctx, rec.ID)
				if err != nil {
					current, _ := c.Tasks.Get(rec.ID)
					cmd.Printf("Task %s still %s: %v\n", rec.ID, current.Status, err)
					return err
				}
				return writeJSON(cmd.OutOrStdout(), final)
			})
		},
	}
	cmd.Flags().StringVar(&opts.taskContext, "context", "", "extra context passed to the planner")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "stop waiting after this long (0 waits until the task ends)")
	return cmd
}

func printResult(w io.Writer, res *agent.TaskResult, asJSON bool) error {
	if asJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "Task %s: %s\n", res.TaskID, res.Summary)
	if res.Reasoning != "" {
		fmt.Fprintf(w, "Reasoning: %s\n", res.Reasoning)
	}
	for _, o := range res.ActionsTaken {
		line := fmt.Sprintf("  [%d] %-8s %s", o.Index+1, o.Status, o.Action.String())
		if o.Error != "" {
			line += fmt.Sprintf(" (%s: %s)", o.ErrorCode, o.Error)
		}
		if o.OutputPath != "" {
			line += " -> " + o.OutputPath
		}
		fmt.Fprintln(w, line)
		for _, warn := range o.Warnings {
			fmt.Fprintf(w, "        warning: %s\n", warn)
		}
	}
	if res.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", res.Error)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
