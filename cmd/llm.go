// File: cmd/llm.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Vrooli/agent-s2/internal/capture"
	"github.com/Vrooli/agent-s2/internal/service"
)

func newLLMCmd(factory service.ComponentFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "llm",
		Short: "Inspect the local model gateway",
	}

	probe := &cobra.Command{
		Use:   "probe",
		Short: "Probe every candidate Ollama host and report the models each serves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withComponents(cmd, factory, withoutAI, func(c *service.Components) error {
				return writeJSON(cmd.OutOrStdout(), c.LLM.Probe(cmd.Context()))
			})
		},
	}

	var question string
	analyze := &cobra.Command{
		Use:   "analyze",
		Short: "Capture the screen and ask the model to describe it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withComponents(cmd, factory, nil, func(c *service.Components) error {
				if !c.LLM.IsReady() {
					return fmt.Errorf("LLM gateway is not ready; run `agent-s2 llm probe`")
				}
				shot, err := c.Capture.Capture(cmd.Context(), capture.Request{})
				if err != nil {
					return err
				}
				analysis, err := c.Planner.AnalyzeScreen(cmd.Context(), shot, question)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), analysis)
			})
		},
	}
	analyze.Flags().StringVar(&question, "question", "", "what to ask about the screen")

	cmd.AddCommand(probe, analyze)
	return cmd
}
