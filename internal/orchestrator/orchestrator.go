// Package orchestrator drives one scan from start (or resume) to
// completion: the Scan Orchestrator of spec.md §4.6, and the largest
// single component in this codebase.
//
// Grounded on cmd/dupedog/dedupe.go's runDedupe driver and
// internal/deduper.Deduper.Run: a single driver goroutine that dispatches
// batches to a worker pool, awaits each batch, folds the results into a
// stats struct, and reports through a progress.Bar. The duplicate-catalog
// merge step is new (the teacher has no equivalent - it hardlinks files in
// place rather than building a fingerprint catalog) but follows the same
// "workers do I/O, driver does bookkeeping" discipline.
package orchestrator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/ivoronin/attachmentscan/internal/client"
	"github.com/ivoronin/attachmentscan/internal/pool"
	"github.com/ivoronin/attachmentscan/internal/progress"
	"github.com/ivoronin/attachmentscan/internal/scanerr"
	"github.com/ivoronin/attachmentscan/internal/scanmodel"
)

// Searcher is the subset of *client.Client the orchestrator depends on for
// issue discovery, expressed as an interface so tests can inject a fake
// search/count implementation without an httptest.Server.
type Searcher interface {
	Count(ctx context.Context, predicate string) (int, error)
	Search(ctx context.Context, predicate string, offset, pageSize int, fields []string) (*client.SearchPage, error)
}

// Downloader is the subset of *pool.Pool the orchestrator depends on to
// resolve one issue's attachments to fingerprints.
type Downloader interface {
	Run(ctx context.Context, batch []client.Attachment) []pool.Result
}

// Store is the subset of *store.Store the orchestrator depends on for
// persistence. Defined here, against the orchestrator's own needs, rather
// than imported from the store package, so the dependency direction stays
// orchestrator -> store (never the reverse).
type Store interface {
	SaveScan(scan scanmodel.Scan) error
	LoadScan(scanID string) (*scanmodel.Scan, error)
	LoadStats(scanID string) (*scanmodel.ScanStatistics, error)
	LoadGroups(scanID string) (map[string]*scanmodel.DuplicateGroup, error)
	LoadCheckpoint(scanID string) (*scanmodel.Checkpoint, error)
	SaveProgress(scan scanmodel.Scan, stats scanmodel.ScanStatistics, groups map[string]*scanmodel.DuplicateGroup, lastIssueKey string, lastOffset int) error
}

// Orchestrator is constructed once per process and reused across fresh and
// resumed scans. It holds no per-scan mutable state between calls to
// StartNew/Resume, the same "construct once, drive many independent runs"
// shape as the teacher's worker pools.
type Orchestrator struct {
	search Searcher
	pool   Downloader
	store  Store
	log    *zap.SugaredLogger
	bar    *progress.Bar
}

// New constructs an Orchestrator from its explicit collaborators, per the
// "global mutable state -> injected collaborators" design note: there is
// no package-level client, pool, or store anywhere in this codebase.
func New(search Searcher, dl Downloader, st Store, log *zap.SugaredLogger, bar *progress.Bar) *Orchestrator {
	return &Orchestrator{search: search, pool: dl, store: st, log: log, bar: bar}
}

// newScanID generates an 8 hex-character opaque scan identifier.
func newScanID() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate scan id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// StartNew begins a fresh scan against predicate, per spec.md §4.6's
// fresh-scan startup sequence.
func (o *Orchestrator) StartNew(ctx context.Context, predicate string, cfg scanmodel.RunConfig) (*scanmodel.Result, error) {
	id, err := newScanID()
	if err != nil {
		return nil, err
	}

	total, err := o.search.Count(ctx, predicate)
	if err != nil {
		return nil, fmt.Errorf("count issues: %w", err)
	}

	scan := scanmodel.Scan{
		ID:          id,
		Status:      scanmodel.StatusRunning,
		TotalIssues: total,
		StartedAt:   time.Now().UTC(),
		Predicate:   predicate,
		Config:      cfg,
	}
	if err := o.store.SaveScan(scan); err != nil {
		return nil, scanerr.New(scanerr.KindPersistence, "start_new", err)
	}

	o.log.Infow("scan started", "scan_id", id, "total_issues", total, "predicate", predicate)

	stats := scanmodel.NewScanStatistics()
	groups := make(map[string]*scanmodel.DuplicateGroup)
	return o.run(ctx, &scan, stats, groups, 0, "")
}

// Resume continues a previously started scan from its last checkpoint (or
// from processed_issues as a fallback offset if no checkpoint was ever
// written), per spec.md §4.6's resume startup sequence.
func (o *Orchestrator) Resume(ctx context.Context, scanID string) (*scanmodel.Result, error) {
	scan, err := o.store.LoadScan(scanID)
	if err != nil {
		return nil, fmt.Errorf("load scan %s: %w", scanID, err)
	}
	if scan == nil {
		return nil, fmt.Errorf("scan %s not found", scanID)
	}

	stats, err := o.store.LoadStats(scanID)
	if err != nil {
		return nil, fmt.Errorf("load stats %s: %w", scanID, err)
	}
	if stats == nil {
		stats = scanmodel.NewScanStatistics()
	}

	groups, err := o.store.LoadGroups(scanID)
	if err != nil {
		return nil, fmt.Errorf("load groups %s: %w", scanID, err)
	}
	if groups == nil {
		groups = make(map[string]*scanmodel.DuplicateGroup)
	}

	cp, err := o.store.LoadCheckpoint(scanID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", scanID, err)
	}

	offset := scan.ProcessedIssues
	lastIssueKey := ""
	if cp != nil {
		offset = cp.LastOffset
		lastIssueKey = cp.LastIssueKey
	}

	o.log.Infow("scan resumed", "scan_id", scanID, "offset", offset, "processed_issues", scan.ProcessedIssues)

	return o.run(ctx, scan, stats, groups, offset, lastIssueKey)
}

// run is the main loop shared by StartNew and Resume.
func (o *Orchestrator) run(ctx context.Context, scan *scanmodel.Scan, stats *scanmodel.ScanStatistics, groups map[string]*scanmodel.DuplicateGroup, offset int, lastIssueKey string) (*scanmodel.Result, error) {
	cfg := scan.Config
	sinceCheckpoint := 0
	started := time.Now()

	for offset < scan.TotalIssues {
		select {
		case <-ctx.Done():
			if err := o.checkpoint(scan, stats, groups, lastIssueKey, offset); err != nil {
				o.log.Errorw("checkpoint on interrupt failed", "scan_id", scan.ID, "error", err)
			}
			o.log.Infow("scan interrupted, checkpointed for resume", "scan_id", scan.ID, "offset", offset)
			return nil, ctx.Err()
		default:
		}

		page, err := o.search.Search(ctx, scan.Predicate, offset, cfg.PageSize, nil)
		if err != nil {
			if cerr := o.checkpoint(scan, stats, groups, lastIssueKey, offset); cerr != nil {
				o.log.Errorw("checkpoint after search failure failed", "scan_id", scan.ID, "error", cerr)
			}
			return nil, fmt.Errorf("search at offset %d: %w", offset, err)
		}
		if len(page.Issues) == 0 {
			break
		}

		for _, issue := range page.Issues {
			lastIssueKey = issue.Key
			if len(issue.Fields.Attachment) == 0 {
				continue
			}
			results := o.pool.Run(ctx, issue.Fields.Attachment)
			o.classify(groups, stats, issue, results)
		}

		pageLen := len(page.Issues)
		scan.ProcessedIssues += pageLen
		sinceCheckpoint += pageLen
		// Advance by the returned page length, not the configured page
		// size: the preferred Open Question resolution, since advancing
		// by page size would skip issues whenever a short page appears
		// before the final page.
		offset += pageLen

		if sinceCheckpoint >= cfg.CheckpointInterval {
			if err := o.checkpoint(scan, stats, groups, lastIssueKey, offset); err != nil {
				return nil, fmt.Errorf("checkpoint: %w", err)
			}
			sinceCheckpoint = 0
		}

		o.bar.Describe(scanProgress{processed: scan.ProcessedIssues, total: scan.TotalIssues, stats: *stats})
		o.bar.Set(int64(scan.ProcessedIssues))
	}

	return o.finish(scan, stats, groups, started)
}

// classify applies spec.md §4.6's classification rule to one issue's
// resolved attachment batch: the first fingerprint sighting becomes
// canonical, every later sighting is folded into that group as a
// duplicate.
func (o *Orchestrator) classify(groups map[string]*scanmodel.DuplicateGroup, stats *scanmodel.ScanStatistics, issue client.Issue, results []pool.Result) {
	updated, err := scanmodel.ParseJiraTime(issue.Fields.Updated)
	if err != nil {
		o.log.Warnw("unparseable issue timestamp", "issue", issue.Key, "raw", issue.Fields.Updated)
	}

	for _, r := range results {
		created, err := scanmodel.ParseJiraTime(r.Attachment.Created)
		if err != nil {
			o.log.Warnw("unparseable attachment timestamp", "attachment_id", r.Attachment.ID, "raw", r.Attachment.Created)
		}

		loc := scanmodel.Location{
			IssueKey:     issue.Key,
			ProjectKey:   issue.Fields.Project.Key,
			AttachmentID: r.Attachment.ID,
			DateAdded:    created,
			AuthorName:   r.Attachment.Author.DisplayName,
		}

		g, exists := groups[r.Fingerprint]
		if !exists {
			groups[r.Fingerprint] = scanmodel.AddCanonical(
				r.Fingerprint, r.Attachment.Filename, r.Attachment.Size, r.Attachment.MimeType, r.Source,
				loc, r.Attachment.Author.DisplayName, r.Attachment.Author.ID(), created,
				issue.Fields.Status.Name, issue.Fields.Status.StatusCategory.Name, updated,
			)
			stats.RecordCanonical(r.Attachment.Filename, issue.Fields.Project.Key, issue.Fields.Project.Name, r.Attachment.Size)
			continue
		}

		g.AddDuplicate(loc)
		stats.RecordDuplicate(r.Attachment.Filename, issue.Fields.Project.Key, issue.Fields.Project.Name, r.Attachment.Size)
	}
}

func (o *Orchestrator) checkpoint(scan *scanmodel.Scan, stats *scanmodel.ScanStatistics, groups map[string]*scanmodel.DuplicateGroup, lastIssueKey string, offset int) error {
	if err := o.store.SaveProgress(*scan, *stats, groups, lastIssueKey, offset); err != nil {
		return scanerr.New(scanerr.KindPersistence, "checkpoint", err)
	}
	return nil
}

// finish completes a scan: terminal status, completion timestamp,
// quick-win insights, and a final persist, per spec.md §4.6's termination
// sequence.
func (o *Orchestrator) finish(scan *scanmodel.Scan, stats *scanmodel.ScanStatistics, groups map[string]*scanmodel.DuplicateGroup, started time.Time) (*scanmodel.Result, error) {
	now := time.Now().UTC()
	scan.Status = scanmodel.StatusCompleted
	scan.CompletedAt = &now
	scan.DurationSeconds = time.Since(started).Seconds()

	quickWins := topQuickWins(groups, 3)

	if err := o.store.SaveProgress(*scan, *stats, groups, "", scan.TotalIssues); err != nil {
		return nil, scanerr.New(scanerr.KindPersistence, "finish", err)
	}

	o.bar.Finish(scanProgress{processed: scan.ProcessedIssues, total: scan.TotalIssues, stats: *stats})
	o.log.Infow("scan completed", "scan_id", scan.ID, "duration_seconds", scan.DurationSeconds,
		"total_files", stats.TotalFiles, "duplicate_bytes", stats.DuplicateBytes)

	return &scanmodel.Result{Scan: *scan, Stats: *stats, DuplicateGroups: groups, QuickWins: quickWins}, nil
}

// topQuickWins returns the n groups with duplicate_count > 0 that waste
// the most space, sorted descending, per spec.md §6's Result document.
func topQuickWins(groups map[string]*scanmodel.DuplicateGroup, n int) []scanmodel.QuickWin {
	candidates := make([]scanmodel.QuickWin, 0, len(groups))
	for _, g := range groups {
		if g.DuplicateCount <= 0 {
			continue
		}
		candidates = append(candidates, scanmodel.QuickWin{
			Fingerprint:      g.Fingerprint,
			FileName:         g.FileName,
			TotalWastedSpace: g.TotalWastedSpace,
			DuplicateCount:   g.DuplicateCount,
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].TotalWastedSpace > candidates[j].TotalWastedSpace
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}

// scanProgress is the fmt.Stringer handed to the progress bar at step 5 of
// the main loop ("emit a progress signal (count, size, waste)").
type scanProgress struct {
	processed, total int
	stats            scanmodel.ScanStatistics
}

func (p scanProgress) String() string {
	pct := 0.0
	if p.total > 0 {
		pct = float64(p.processed) / float64(p.total) * 100
	}
	return fmt.Sprintf("%d/%d issues (%.0f%%), %s scanned, %s wasted",
		p.processed, p.total, pct,
		humanize.IBytes(uint64(p.stats.TotalBytes)),
		humanize.IBytes(uint64(p.stats.DuplicateBytes)))
}
