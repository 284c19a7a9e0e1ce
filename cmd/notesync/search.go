package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func searchCMD(g *globals) *cobra.Command {
	var limit int

	var cmd = &cobra.Command{
		Use:   "search QUERY...",
		Short: "Search synced notes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			defer a.Close()

			idx, err := a.index()
			if err != nil {
				return err
			}
			hits, err := idx.Search(strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(hits) == 0 {
				fmt.Fprintln(out, "no matches")
				return nil
			}
			for _, h := range hits {
				fmt.Fprintf(out, "%.3f  %s  %s\n", h.Score, h.Date, h.Title)
				fmt.Fprintf(out, "       %s\n", h.Path)
				for _, frag := range h.Fragments {
					fmt.Fprintf(out, "       ... %s\n", strings.Join(strings.Fields(frag), " "))
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum hits")
	return cmd
}
