package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func mappingCMD(g *globals) *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "mapping",
		Short: "Inspect or rebuild the document to group mapping",
	}
	cmd.AddCommand(mappingRefreshCMD(g), mappingShowCMD(g))
	return cmd
}

func mappingRefreshCMD(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Fetch groups and rebuild the mapping file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.cfg.Paths.EnsureDirectories(); err != nil {
				return err
			}

			c, err := a.mapping()
			if err != nil {
				return err
			}
			if err := c.Refresh(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "mapping refreshed: %d documents in %s\n", c.Len(), a.cfg.Paths.DocumentMapping)
			return nil
		},
	}
}

func mappingShowCMD(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show DOCUMENT_ID",
		Short: "Print the group a document belongs to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.mapping()
			if err != nil {
				return err
			}
			if err := c.Load(cmd.Context()); err != nil {
				return err
			}
			entry, ok := c.Entry(args[0])
			if !ok {
				return fmt.Errorf("document %s is not in the mapping", args[0])
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(entry)
		},
	}
}
