package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/notesync/internal/journal"
)

func migrateCMD(g *globals) *cobra.Command {
	var path string
	var direction string
	var steps int

	var migrate = &cobra.Command{
		Use:   "migrate",
		Short: "Run journal database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				a, err := newApp(g)
				if err != nil {
					return err
				}
				path = a.cfg.Paths.Journal
			}
			if path == "" {
				return fmt.Errorf("journal not configured (paths.journal or --db)")
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			db, err := journal.OpenDB(path)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := journal.Migrate(db, direction, steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrated %s %s\n", path, direction)
			return nil
		},
	}
	migrate.Flags().StringVar(&path, "db", "", "journal database (default paths.journal)")
	migrate.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")

	return migrate
}
