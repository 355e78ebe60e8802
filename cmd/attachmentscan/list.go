package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ivoronin/attachmentscan/internal/config"
	"github.com/ivoronin/attachmentscan/internal/store"
)

func newListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Enumerate every persisted scan with a summary",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runList(opts)
		},
	}
}

func runList(opts *globalOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	st, err := store.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	scans, err := st.ListScans()
	if err != nil {
		return fmt.Errorf("list scans: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer func() { _ = w.Flush() }()
	fmt.Fprintln(w, "SCAN ID\tSTATUS\tPROCESSED\tTOTAL\tSTARTED")
	for _, s := range scans {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
			s.ID, s.Status, s.ProcessedIssues, s.TotalIssues, s.StartedAt.Format("2006-01-02T15:04:05Z07:00"))
	}
	return nil
}
