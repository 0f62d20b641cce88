// File: cmd/audit.go
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Vrooli/agent-s2/api/schemas"
	"github.com/Vrooli/agent-s2/internal/audit"
	"github.com/Vrooli/agent-s2/internal/observability"
	"github.com/Vrooli/agent-s2/internal/store"
)

type auditOptions struct {
	since       time.Duration
	minSeverity string
	eventType   string
	limit       int
	day         string
}

func (o *auditOptions) filter(now time.Time) (audit.Filter, error) {
	f := audit.Filter{EventType: o.eventType, Limit: o.limit}
	if o.since > 0 {
		f.Since = now.Add(-o.since)
	}
	if o.minSeverity != "" {
		sev := schemas.Severity(o.minSeverity)
		switch sev {
		case schemas.SeverityLow, schemas.SeverityMedium, schemas.SeverityHigh, schemas.SeverityCritical:
			f.MinSeverity = sev
		default:
			return f, fmt.Errorf("%w: unknown severity %q", schemas.ErrInvalidInput, o.minSeverity)
		}
	}
	return f, nil
}

// minRiskFor maps a severity floor onto the lowest risk score in its bucket.
func minRiskFor(sev schemas.Severity) int {
	for risk := 0; risk <= audit.MaxRisk; risk++ {
		if sev == "" || schemas.SeverityForRisk(risk) == sev {
			return risk
		}
	}
	return 0
}

// dayFile resolves --day (YYYY-MM-DD, default today in UTC) to an audit file.
func (o *auditOptions) dayFile(dir string, now time.Time) (string, error) {
	if o.day == "" {
		return audit.FileForDay(dir, now), nil
	}
	t, err := time.Parse("2006-01-02", o.day)
	if err != nil {
		return "", fmt.Errorf("%w: --day must be YYYY-MM-DD", schemas.ErrInvalidInput)
	}
	return audit.FileForDay(dir, t), nil
}

func newAuditCmd() *cobra.Command {
	opts := &auditOptions{}
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Read the security audit trail",
	}
	cmd.PersistentFlags().DurationVar(&opts.since, "since", 0, "only events newer than this")
	cmd.PersistentFlags().StringVar(&opts.minSeverity, "min-severity", "", "low, medium, high or critical")
	cmd.PersistentFlags().StringVar(&opts.eventType, "type", "", "only this event type")

	events := &cobra.Command{
		Use:   "events",
		Short: "Print recorded security events as JSON",
		Long: `events reads the day's JSONL audit file, or the security_events table
when audit.postgres_dsn is configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			now := time.Now()
			f, err := opts.filter(now)
			if err != nil {
				return err
			}
			logger := observability.Component("cli")

			if dsn := cfg.Audit().PostgresDSN; dsn != "" {
				st, pool, err := store.Connect(cmd.Context(), dsn, logger)
				if err != nil {
					return err
				}
				defer pool.Close()
				rows, err := st.SecurityEventsSince(cmd.Context(), f.Since, minRiskFor(f.MinSeverity))
				if err != nil {
					return err
				}
				f.Since, f.MinSeverity = time.Time{}, ""
				return writeJSON(cmd.OutOrStdout(), f.Apply(rows))
			}

			path, err := opts.dayFile(cfg.Audit().LogDir, now)
			if err != nil {
				return err
			}
			found, skipped, err := audit.ReadFile(path, f)
			if err != nil {
				return err
			}
			if skipped > 0 {
				logger.Warn("Skipped undecodable audit lines", zap.String("path", path), zap.Int("skipped", skipped))
			}
			if found == nil {
				found = []schemas.SecurityEvent{}
			}
			return writeJSON(cmd.OutOrStdout(), found)
		},
	}
	events.Flags().IntVar(&opts.limit, "limit", 0, "keep only the newest N events")
	events.Flags().StringVar(&opts.day, "day", "", "audit file day as YYYY-MM-DD (UTC, default today)")

	var fromStart bool
	tailCmd := &cobra.Command{
		Use:   "tail",
		Short: "Stream today's audit events as they are written",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			now := time.Now()
			f, err := opts.filter(now)
			if err != nil {
				return err
			}
			path, err := opts.dayFile(cfg.Audit().LogDir, now)
			if err != nil {
				return err
			}
			var writeErr error
			err = audit.Follow(cmd.Context(), path, fromStart, f, observability.GetLogger(), func(e schemas.SecurityEvent) {
				if writeErr == nil {
					writeErr = writeJSON(cmd.OutOrStdout(), e)
				}
			})
			if err != nil {
				return err
			}
			return writeErr
		},
	}
	tailCmd.Flags().BoolVar(&fromStart, "from-start", false, "replay the file's existing events first")
	tailCmd.Flags().StringVar(&opts.day, "day", "", "audit file day as YYYY-MM-DD (UTC, default today)")

	cmd.AddCommand(events, tailCmd)
	return cmd
}
