// File: cmd/browser.go
package cmd

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/Vrooli/agent-s2/internal/service"
)

func newBrowserCmd(factory service.ComponentFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "browser",
		Short: "Inspect and repair the Firefox instance the agent drives",
	}

	health := &cobra.Command{
		Use:   "health",
		Short: "Report Firefox process health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withComponents(cmd, factory, withoutAI, func(c *service.Components) error {
				h, err := c.Watchdog.Health(cmd.Context())
				if err != nil {
					return err
				}
				restart, reasons, err := c.Watchdog.ShouldRestart(cmd.Context())
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"health":          h,
					"should_restart":  restart,
					"restart_reasons": reasons,
				})
			})
		},
	}

	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Kill Firefox and remove stale profile locks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withComponents(cmd, factory, withoutAI, func(c *service.Components) error {
				res := c.Watchdog.EnsureCleanState(cmd.Context())
				if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
				if !res.Success {
					return errors.New("cleanup finished with errors")
				}
				return nil
			})
		},
	}

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Close Firefox windows from the keyboard, then clean up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withComponents(cmd, factory, withoutAI, func(c *service.Components) error {
				if err := c.Resetter.Reset(cmd.Context()); err != nil {
					return err
				}
				cmd.Println("Browser reset complete.")
				return nil
			})
		},
	}

	var interval time.Duration
	watch := &cobra.Command{
		Use:   "watch",
		Short: "Sample browser health until interrupted, recording crashes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withComponents(cmd, factory, withoutAI, func(c *service.Components) error {
				if err := c.Watchdog.Watch(cmd.Context(), interval); err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), c.Watchdog.CrashLog())
			})
		},
	}
	watch.Flags().DurationVar(&interval, "interval", 0, "sampling interval (default from config)")

	cmd.AddCommand(health, cleanup, reset, watch)
	return cmd
}
