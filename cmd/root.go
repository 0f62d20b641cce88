// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Vrooli/agent-s2/internal/config"
	"github.com/Vrooli/agent-s2/internal/observability"
	"github.com/Vrooli/agent-s2/internal/service"
)

type contextKey string

const configKey contextKey = "config"

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	cfgFile         string
	securityProfile string
}

// NewRootCommand builds the command tree with the production component factory.
func NewRootCommand() *cobra.Command {
	return newRootCommand(service.NewComponentFactory(nil))
}

func newRootCommand(factory service.ComponentFactory) *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "agent-s2",
		Short:         "Agent-S2 drives a virtual desktop from natural-language tasks.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(v, opts.cfgFile); err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "agent-s2"})
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}
			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "agent-s2"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}
			if opts.securityProfile != "" {
				cfg.SetSecurityProfile(opts.securityProfile)
				if err := cfg.Validate(); err != nil {
					return fmt.Errorf("invalid --security-profile: %w", err)
				}
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting agent-s2", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, config.Interface(cfg)))
			return nil
		},
	}
	cmd.SetVersionTemplate(`{{printf "agent-s2 version %s\n" .Version}}`)
	cmd.PersistentFlags().StringVarP(&opts.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.securityProfile, "security-profile", "", "override security.profile (strict, moderate, permissive)")

	cmd.AddCommand(
		newRunCmd(factory),
		newSubmitCmd(factory),
		newPlanCmd(factory),
		newCaptureCmd(factory),
		newWindowsCmd(factory),
		newBrowserCmd(factory),
		newLLMCmd(factory),
		newAuditCmd(),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the command tree under ctx, which carries the process's
// interrupt signal.
func Execute(ctx context.Context) error {
	root := NewRootCommand()
	err := root.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "Error:", err)
		observability.GetLogger().Debug("Command execution failed", zap.Error(err))
	}
	observability.Sync()
	return err
}

// initializeConfig points v at the config file. A missing default file is
// not an error; an explicitly named one is.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

func getConfigFromContext(ctx context.Context) (config.Interface, error) {
	cfg, ok := ctx.Value(configKey).(config.Interface)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}

// withComponents loads the config, lets adjust tweak it, builds the components
// and runs fn, shutting the components down afterwards.
func withComponents(cmd *cobra.Command, factory service.ComponentFactory, adjust func(config.Interface), fn func(*service.Components) error) error {
	cfg, err := getConfigFromContext(cmd.Context())
	if err != nil {
		return err
	}
	if adjust != nil {
		adjust(cfg)
	}
	components, err := factory.Create(cmd.Context(), cfg, observability.GetLogger())
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	defer components.Shutdown()
	return fn(components)
}

// withoutAI is an adjust hook for commands that never plan.
func withoutAI(cfg config.Interface) { cfg.SetAIEnabled(false) }
