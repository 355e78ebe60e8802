package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ivoronin/attachmentscan/internal/config"
	"github.com/ivoronin/attachmentscan/internal/store"
)

const defaultCleanupDays = 30

func newCleanupCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup [days]",
		Short: "Delete completed scans older than N days (default 30)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			days := defaultCleanupDays
			if len(args) == 1 {
				d, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid days %q: %w", args[0], err)
				}
				days = d
			}
			return runCleanup(opts, days)
		},
	}
}

func runCleanup(opts *globalOptions, days int) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	st, err := store.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	return st.CleanupOlderThan(days)
}
