package cli

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"paladin/config"
	"paladin/internal/infrastructure"
)

// options are the flags shared by every command.
type options struct {
	configPath string
	logLevel   string
}

// NewRootCommand builds the paladin command tree.
func NewRootCommand(version string) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "paladin",
		Short:         "Host ransomware detection and response agent",
		Long:          "Protects a directory with honeypots, entropy analysis and peer distress alerts.\nOn compromise it kills the attacker, alerts the grid, isolates the host and restores the baseline.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "paladin.yaml", "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		newProtectCommand(opts),
		newConfigCommand(opts),
		newScanCommand(opts),
		newAlertCommand(opts),
		newVersionCommand(version),
	)
	return root
}

// loadConfig reads and validates the configuration and applies flag overrides.
func (o *options) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// consoleLogger is used by the short-lived commands.
func (o *options) consoleLogger(w io.Writer, cfg *config.Config) zerolog.Logger {
	level := o.logLevel
	if level == "" && cfg != nil {
		level = cfg.Logging.Level
	}
	return infrastructure.NewConsoleLogger(w, level)
}

func newVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "paladin %s\n", version)
		},
	}
}

func newConfigCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.Logging.Level = opts.logLevel
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# source: %s\n", cfg.Source)
			fmt.Fprint(out, cfg.String())

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return nil
		},
	}
}
