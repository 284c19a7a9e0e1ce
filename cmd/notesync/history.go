package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func historyCMD(g *globals) *cobra.Command {
	var limit int
	var runID string
	var asJSON bool

	var cmd = &cobra.Command{
		Use:   "history",
		Short: "List journaled sync runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			defer a.Close()

			j, err := a.journal(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if runID != "" {
				docs, err := j.Documents(cmd.Context(), runID)
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(docs)
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "DOCUMENT\tOUTCOME\tFILE\tERROR")
				for _, d := range docs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.DocumentID, d.Outcome, d.Filename, d.Error)
				}
				return tw.Flush()
			}

			runs, err := j.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tSTATUS\tFINISHED\tPROCESSED\tCREATED\tUPDATED\tSKIPPED\tFAILED\tERROR")
			for _, r := range runs {
				finished := "-"
				if !r.FinishedAt.IsZero() {
					finished = r.FinishedAt.Local().Format(time.DateTime)
				}
				status := string(r.Status)
				if r.DryRun {
					status += " (dry run)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
					r.ID, status, finished, r.Stats.Processed, r.Stats.Created,
					r.Stats.Updated, r.Stats.Skipped, r.Stats.Failed, r.Error)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to list")
	cmd.Flags().StringVar(&runID, "run", "", "list the documents of one run")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
