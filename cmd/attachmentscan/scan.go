package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ivoronin/attachmentscan/internal/client"
	"github.com/ivoronin/attachmentscan/internal/config"
	"github.com/ivoronin/attachmentscan/internal/logging"
	"github.com/ivoronin/attachmentscan/internal/orchestrator"
	"github.com/ivoronin/attachmentscan/internal/pool"
	"github.com/ivoronin/attachmentscan/internal/progress"
	"github.com/ivoronin/attachmentscan/internal/ratelimit"
	"github.com/ivoronin/attachmentscan/internal/scanmodel"
	"github.com/ivoronin/attachmentscan/internal/store"
)

// runScan drives one fresh-or-resumed scan to completion. resumeID, if
// non-empty, resumes that scan; otherwise a fresh scan starts unless an
// incomplete scan already exists, in which case the most recent one is
// auto-resumed (spec.md §6, default CLI behavior).
func runScan(ctx context.Context, opts *globalOptions, resumeID string) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logging.New(opts.verbose)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	st, err := store.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	rl := ratelimit.New(cfg.Scan.RateLimitPerSecond)

	c, err := client.New(client.Config{
		BaseURL: cfg.Remote.BaseURL,
		Credentials: client.Credentials{
			Token:    cfg.Remote.Token,
			Username: cfg.Remote.Username,
			Password: cfg.Remote.Password,
		},
		VerifySSL:   cfg.Remote.VerifySSL == nil || *cfg.Remote.VerifySSL,
		WorkerCount: cfg.Scan.WorkerCount,
	}, rl, log)
	if err != nil {
		return fmt.Errorf("build client: %w", err)
	}

	errCh := make(chan error, 100)
	go drainErrors(log, errCh)
	defer close(errCh)

	useContentHash := cfg.Scan.UseContentHash == nil || *cfg.Scan.UseContentHash
	dlPool := pool.New(c, pool.Config{
		Workers:         cfg.Scan.WorkerCount,
		MaxFileBytes:    int64(cfg.Scan.MaxFileBytes),
		DownloadTimeout: cfg.DownloadTimeout(),
		UseContentHash:  useContentHash,
	}, errCh, log)

	bar := progress.New(!opts.verbose, 0)
	orc := orchestrator.New(c, dlPool, st, log, bar)

	runCfg := scanmodel.RunConfig{
		PageSize:           cfg.Scan.PageSize,
		WorkerCount:        cfg.Scan.WorkerCount,
		MaxFileBytes:       int64(cfg.Scan.MaxFileBytes),
		DownloadTimeout:    cfg.DownloadTimeout(),
		RateLimitPerSecond: cfg.Scan.RateLimitPerSecond,
		UseContentHash:     useContentHash,
		CheckpointInterval: cfg.Storage.CheckpointInterval,
	}

	var result *scanmodel.Result
	switch {
	case resumeID != "":
		result, err = orc.Resume(ctx, resumeID)
	default:
		var autoID string
		autoID, err = mostRecentIncomplete(st)
		if err != nil {
			return err
		}
		if autoID != "" {
			log.Infow("auto-resuming incomplete scan", "scan_id", autoID)
			result, err = orc.Resume(ctx, autoID)
		} else {
			predicate := orchestrator.BuildPredicate(cfg.Filters)
			result, err = orc.StartNew(ctx, predicate, runCfg)
		}
	}
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	log.Infow("scan result", "scan_id", result.Scan.ID, "total_files", result.Stats.TotalFiles,
		"duplicate_files", result.Stats.DuplicateFiles, "duplicate_bytes", result.Stats.DuplicateBytes)
	return nil
}

func mostRecentIncomplete(st *store.Store) (string, error) {
	incomplete, err := st.FindIncompleteScans()
	if err != nil {
		return "", fmt.Errorf("find incomplete scans: %w", err)
	}
	if len(incomplete) == 0 {
		return "", nil
	}
	latest := incomplete[0]
	for _, s := range incomplete[1:] {
		if s.StartedAt.After(latest.StartedAt) {
			latest = s
		}
	}
	return latest.ID, nil
}

func drainErrors(log *zap.SugaredLogger, errs <-chan error) {
	for err := range errs {
		log.Warnw("non-fatal scan error", "error", err)
	}
}

func isInterrupt(err error) bool {
	return errors.Is(err, context.Canceled)
}
