package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"paladin/internal/infrastructure"
	"paladin/internal/metrics"
)

func newAlertCommand(opts *options) *cobra.Command {
	var threatType string

	cmd := &cobra.Command{
		Use:   "alert",
		Short: "Broadcast one distress alert to the grid",
		Long:  "Broadcasts a single distress alert. Every agent on the segment, including this host's, will start its lockdown.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if threatType != "" {
				cfg.Grid.ThreatType = threatType
			}
			logger := opts.consoleLogger(cmd.ErrOrStderr(), cfg)

			grid, err := infrastructure.NewGrid(gridConfig(cfg), metrics.NewNop(), logger)
			if err != nil {
				return err
			}
			defer grid.Stop()

			alert := grid.NewAlert()
			if err := grid.Broadcast(alert); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "alert sent: sender=%s threat=%s timestamp=%d\n",
				alert.SenderIP, alert.ThreatType, alert.Timestamp)
			return nil
		},
	}

	cmd.Flags().StringVar(&threatType, "threat-type", "", "threat type to report (default from config)")
	return cmd
}
