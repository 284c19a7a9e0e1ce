package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/notesync/internal/metrics"
	"github.com/mohammad-safakhou/notesync/internal/syncer"
)

func syncCMD(g *globals) *cobra.Command {
	var sync = &cobra.Command{
		Use:   "sync",
		Short: "Run one incremental sync pass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			defer a.Close()

			s, _, err := a.syncer(cmd.Context())
			if err != nil {
				return err
			}
			res := s.Run(cmd.Context())

			if path := a.cfg.Telemetry.MetricsTextfile; path != "" {
				m := metrics.New()
				m.Observe(res)
				if err := m.WriteTextfile(path); err != nil {
					a.logger.WithError(err).Warn("write metrics textfile")
				}
			}

			printResult(cmd.OutOrStdout(), res, a.cfg.Development.VerboseOutput)
			if !res.Success() {
				return &exitError{code: exitFailure}
			}
			return nil
		},
	}
	return sync
}

// printResult writes the one-line summary of a pass.
func printResult(w io.Writer, res *syncer.Result, verbose bool) {
	st := res.Stats
	if !res.Success() {
		if verbose {
			fmt.Fprintf(w, "sync failed in %s: %+v\n", res.FailedIn, res.Err)
			fmt.Fprintf(w, "  run=%s stats=%+v\n", res.RunID, st)
			return
		}
		fmt.Fprintf(w, "sync failed in %s: %v\n", res.FailedIn, res.Err)
		return
	}
	prefix := "sync complete"
	if res.DryRun {
		prefix = "sync complete (dry run)"
	}
	fmt.Fprintf(w, "%s: processed=%d created=%d updated=%d skipped=%d failed=%d success=%.1f%% files=%d duration=%s\n",
		prefix, st.Processed, st.Created, st.Updated, st.Skipped, st.Failed,
		st.SuccessRate(), res.TotalFiles, st.Duration.Round(time.Millisecond))
	if verbose {
		fmt.Fprintf(w, "  run=%s since=%s watermark=%s transcripts=%d/%d\n",
			res.RunID, res.Since.Format(time.RFC3339), res.Watermark.Format(time.RFC3339),
			st.TranscriptsFetched, st.TranscriptsFetched+st.TranscriptsFailed)
	}
}
