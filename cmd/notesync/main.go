package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitInterrupted = 130
)

// exitError carries a process exit code. The failure has already been reported.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := rootCMD()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if ctx.Err() != nil {
		fmt.Fprintln(stderr, "interrupted")
		return exitInterrupted
	}
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintln(stderr, "error:", err)
	return exitFailure
}

// globals are the flags shared by every subcommand.
type globals struct {
	cfgPath string
	dryRun  bool
	verbose bool
}

func rootCMD() *cobra.Command {
	g := &globals{}
	var root = &cobra.Command{
		Use:           "notesync",
		Short:         "Sync meeting transcripts into a markdown vault",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.cfgPath, "config", "c", "", "config file (default is ./config/notesync.yaml)")
	root.PersistentFlags().BoolVar(&g.dryRun, "dry-run", false, "show what would change without writing anything")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "debug logging and full error output")

	root.AddCommand(
		syncCMD(g),
		daemonCMD(g),
		historyCMD(g),
		searchCMD(g),
		mappingCMD(g),
		migrateCMD(g),
		versionCMD(),
	)
	return root
}
