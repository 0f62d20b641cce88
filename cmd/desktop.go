// File: cmd/desktop.go
package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Vrooli/agent-s2/api/schemas"
	"github.com/Vrooli/agent-s2/internal/capture"
	"github.com/Vrooli/agent-s2/internal/service"
)

type captureOptions struct {
	output  string
	format  string
	quality int
	region  string
	window  string
	watch   time.Duration
}

func newCaptureCmd(factory service.ComponentFactory) *cobra.Command {
	opts := &captureOptions{}
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture the screen, a region, or one window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := capture.Request{Format: schemas.ImageFormat(opts.format), Quality: opts.quality}
			if opts.region != "" {
				r, err := parseRegion(opts.region)
				if err != nil {
					return err
				}
				req.Region = &r
			}
			return withComponents(cmd, factory, withoutAI, func(c *service.Components) error {
				if opts.watch > 0 {
					events, err := c.Capture.DetectChanges(cmd.Context(), capture.DetectOptions{Timeout: opts.watch})
					if err != nil {
						return err
					}
					return writeJSON(cmd.OutOrStdout(), events)
				}

				var shot *schemas.Screenshot
				var err error
				if opts.window != "" {
					shot, err = c.Capture.CaptureWindowByTitle(cmd.Context(), opts.window, req)
				} else {
					shot, err = c.Capture.Capture(cmd.Context(), req)
				}
				if err != nil {
					return err
				}
				if opts.output == "" {
					return writeJSON(cmd.OutOrStdout(), shot)
				}
				data, err := capture.DecodeDataURI(shot)
				if err != nil {
					return err
				}
				if err := os.WriteFile(opts.output, data, 0o644); err != nil {
					return fmt.Errorf("writing %s: %w", opts.output, err)
				}
				cmd.Printf("Saved %dx%d %s to %s (%.2f MB)\n", shot.Size.Width, shot.Size.Height, shot.Format, opts.output, shot.BytesMB)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write the decoded image here instead of printing JSON")
	cmd.Flags().StringVar(&opts.format, "format", "", "png or jpeg (default from config)")
	cmd.Flags().IntVar(&opts.quality, "quality", 0, "JPEG quality 1-100 (default from config)")
	cmd.Flags().StringVar(&opts.region, "region", "", "crop to x,y,width,height")
	cmd.Flags().StringVar(&opts.window, "window", "", "capture the first window whose title contains this text")
	cmd.Flags().DurationVar(&opts.watch, "watch", 0, "report screen changes for this long instead of capturing once")
	return cmd
}

// parseRegion reads "x,y,width,height".
func parseRegion(s string) (schemas.Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return schemas.Region{}, fmt.Errorf("%w: region must be x,y,width,height", schemas.ErrInvalidInput)
	}
	var n [4]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return schemas.Region{}, fmt.Errorf("%w: region component %q: %v", schemas.ErrInvalidInput, p, err)
		}
		n[i] = v
	}
	if n[2] <= 0 || n[3] <= 0 {
		return schemas.Region{}, fmt.Errorf("%w: region width and height must be positive", schemas.ErrInvalidInput)
	}
	return schemas.Region{X: n[0], Y: n[1], Width: n[2], Height: n[3]}, nil
}

func newWindowsCmd(factory service.ComponentFactory) *cobra.Command {
	var app string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "windows",
		Short: "List the windows on the display",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withComponents(cmd, factory, withoutAI, func(c *service.Components) error {
				var windows []schemas.Window
				var err error
				if app != "" {
					windows, err = c.Registry.WindowsFor(cmd.Context(), app)
				} else {
					windows, err = c.Registry.ListWindows(cmd.Context())
				}
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), windows)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tAPP\tPID\tGEOMETRY\tFOCUSED\tTITLE")
				for _, w := range windows {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%dx%d+%d+%d\t%t\t%s\n", w.WindowID, w.AppName, w.ProcessID,
						w.Geometry.Width, w.Geometry.Height, w.Geometry.X, w.Geometry.Y, w.IsFocused, w.Title)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&app, "app", "", "only windows of this application (any alias)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	focus := &cobra.Command{
		Use:   "focus <app>",
		Short: "Bring an application window to the foreground",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, factory, withoutAI, func(c *service.Components) error {
				w, err := c.Registry.FocusApp(cmd.Context(), args[0], nil)
				if err != nil {
					return err
				}
				cmd.Printf("Focused %s (%s)\n", w.Title, w.WindowID)
				return nil
			})
		},
	}
	apps := &cobra.Command{
		Use:   "apps",
		Short: "List the applications that can be launched on this host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withComponents(cmd, factory, withoutAI, func(c *service.Components) error {
				return writeJSON(cmd.OutOrStdout(), c.Catalog.Apps())
			})
		},
	}
	cmd.AddCommand(focus, apps)
	return cmd
}
