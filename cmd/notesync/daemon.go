package main

import (
	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/notesync/internal/daemon"
	"github.com/mohammad-safakhou/notesync/internal/metrics"
)

func daemonCMD(g *globals) *cobra.Command {
	var cron string
	var listen string
	var noRunOnStart bool

	var cmd = &cobra.Command{
		Use:   "daemon",
		Short: "Run sync passes on a schedule and serve status and metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			defer a.Close()

			s, j, err := a.syncer(cmd.Context())
			if err != nil {
				return err
			}
			opts := daemon.Options{
				Cron:          a.cfg.Schedule.Cron,
				RunOnStart:    a.cfg.Schedule.RunOnStart && !noRunOnStart,
				ListenAddress: a.cfg.Schedule.ListenAddress,
				Metrics:       metrics.New(),
				TextfilePath:  a.cfg.Telemetry.MetricsTextfile,
				Logger:        a.logger,
			}
			if cmd.Flags().Changed("cron") {
				opts.Cron = cron
			}
			if cmd.Flags().Changed("listen") {
				opts.ListenAddress = listen
			}
			if j != nil {
				opts.History = j
			}
			d, err := daemon.New(s, opts)
			if err != nil {
				return err
			}
			return d.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&cron, "cron", "", "cron schedule (overrides schedule.cron)")
	cmd.Flags().StringVar(&listen, "listen", "", "status server address, empty disables it (overrides schedule.listen_address)")
	cmd.Flags().BoolVar(&noRunOnStart, "no-run-on-start", false, "wait for the first scheduled activation")
	return cmd
}
