package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ivoronin/attachmentscan/internal/config"
	"github.com/ivoronin/attachmentscan/internal/store"
)

func newResetCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset [scan_id]",
		Short: "Reset one scan, or every incomplete scan if none is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runReset(opts, args)
		},
	}
}

func runReset(opts *globalOptions, args []string) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	st, err := store.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	if len(args) == 1 {
		return st.ResetScan(args[0])
	}

	incomplete, err := st.FindIncompleteScans()
	if err != nil {
		return fmt.Errorf("find incomplete scans: %w", err)
	}
	for _, scan := range incomplete {
		if err := st.ResetScan(scan.ID); err != nil {
			return fmt.Errorf("reset scan %s: %w", scan.ID, err)
		}
	}
	return nil
}
