package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	os.Exit(run())
}

// run builds the root command and dispatches to it under a context that
// cancels cooperatively on SIGINT/SIGTERM, translating the result into the
// exit codes spec.md §6 documents: 0 success, 1 fatal error, 130 user
// interrupt.
func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	root := newRootCmd()
	root.Version = version + " (" + commit + ")"

	if err := root.ExecuteContext(ctx); err != nil {
		if isInterrupt(err) {
			return 130
		}
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "attachmentscan",
		Short: "Find duplicate attachments across a Jira Data Center instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), opts, "")
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "attachmentscan.yaml", "Path to YAML configuration file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug-level logging")

	root.AddCommand(newResumeCmd(opts))
	root.AddCommand(newResetCmd(opts))
	root.AddCommand(newListCmd(opts))
	root.AddCommand(newCleanupCmd(opts))

	return root
}

// globalOptions holds flags shared by every subcommand.
type globalOptions struct {
	configPath string
	verbose    bool
}
