// Package pool implements the Download Pool from spec.md §4.4: a bounded
// concurrent worker set that fans a batch of attachment downloads out to
// W workers, hashes each one, and returns once the whole batch is done.
//
// Grounded on the teacher's verifier.Verifier worker pool: a fixed set of
// workers draining a job channel, a WaitGroup tracking in-flight work, and
// a buffered results channel collected by the caller. The teacher spawns
// its worker pool once per run and feeds it a continuous job stream; here
// each Run call is one self-contained batch (one issue's attachments),
// since spec.md requires the orchestrator to await each batch before
// merging it into the catalog - there is no cross-batch overlap to manage.
package pool

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ivoronin/attachmentscan/internal/client"
	"github.com/ivoronin/attachmentscan/internal/hasher"
	"github.com/ivoronin/attachmentscan/internal/scanmodel"
)

// Downloader is the subset of *client.Client the pool depends on,
// expressed as an interface so tests can substitute a fake transport
// without spinning up httptest.Server for pure pool-logic tests.
type Downloader interface {
	Download(ctx context.Context, contentURL string, timeout time.Duration) (ioReadCloser, error)
}

// ioReadCloser is an alias for io.ReadCloser, so *client.Client's Download
// method (which returns io.ReadCloser) satisfies Downloader as-is.
type ioReadCloser = io.ReadCloser

// Result is the outcome of hashing one attachment.
type Result struct {
	Attachment client.Attachment
	Fingerprint string
	Source      scanmodel.HashSource
}

// Config configures a Pool.
type Config struct {
	Workers         int
	MaxFileBytes    int64
	DownloadTimeout time.Duration
	UseContentHash  bool
}

// Pool fans attachment downloads out to a bounded worker set.
//
// Each Run call handles exactly one batch: construct once with New, then
// call Run once per issue's attachment batch. It holds no mutable state
// between Run calls, so it is safe to reuse across many batches from a
// single driver goroutine (the orchestrator never calls Run concurrently
// with itself).
type Pool struct {
	client Downloader
	cfg    Config
	errCh  chan error
	log    *zap.SugaredLogger
}

// New creates a Pool backed by client, bounded by cfg.Workers concurrent
// downloads.
func New(c Downloader, cfg Config, errCh chan error, log *zap.SugaredLogger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Pool{client: c, cfg: cfg, errCh: errCh, log: log}
}

// Run fans batch out to the worker set, waits for every item to resolve
// (either a real result or a dropped-item log), and returns the results.
// Result order is unspecified, per spec.md §4.4; the caller (orchestrator)
// is responsible for any ordering it needs across batches, not within one.
func (p *Pool) Run(ctx context.Context, batch []client.Attachment) []Result {
	if len(batch) == 0 {
		return nil
	}

	sem := make(chan struct{}, p.cfg.Workers)
	resultsCh := make(chan Result, len(batch))
	var wg sync.WaitGroup

	for _, att := range batch {
		wg.Add(1)
		go func(att client.Attachment) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if r, ok := p.process(ctx, att); ok {
				resultsCh <- r
			}
		}(att)
	}

	wg.Wait()
	close(resultsCh)

	results := make([]Result, 0, len(batch))
	for r := range resultsCh {
		results = append(results, r)
	}
	return results
}

// process applies the per-item policy from spec.md §4.4: oversize skip,
// content hash, transient-failure fallback to URL hash, and
// drop-on-fallback-failure (which in practice cannot happen, since URL
// hashing never does I/O, but is handled explicitly per the "even the
// fallback fails" clause).
func (p *Pool) process(ctx context.Context, att client.Attachment) (Result, bool) {
	if att.Size > p.cfg.MaxFileBytes {
		p.log.Warnw("skipping oversize attachment, using url hash",
			"attachment_id", att.ID, "size", att.Size, "max", p.cfg.MaxFileBytes)
		return p.urlFallback(att, scanmodel.HashSourceOversizeSkip)
	}

	if !p.cfg.UseContentHash {
		return p.urlFallback(att, scanmodel.HashSourceURLFallback)
	}

	fingerprint, err := p.downloadAndHash(ctx, att)
	if err != nil {
		p.sendError(err)
		p.log.Warnw("download failed, using url hash fallback",
			"attachment_id", att.ID, "error", err)
		return p.urlFallback(att, scanmodel.HashSourceURLFallback)
	}

	return Result{Attachment: att, Fingerprint: fingerprint, Source: scanmodel.HashSourceContent}, true
}

func (p *Pool) downloadAndHash(ctx context.Context, att client.Attachment) (string, error) {
	body, err := p.client.Download(ctx, att.Content, p.cfg.DownloadTimeout)
	if err != nil {
		return "", err
	}
	defer func() { _ = body.Close() }()

	digest, _, err := hasher.HashReader(body)
	if err != nil {
		return "", err
	}
	return digest, nil
}

// urlFallback computes the in-memory URL-string hash. Per spec.md §4.4,
// if even this fails the item is dropped entirely; in practice HashURL
// never returns an error (it is pure in-memory hashing), so this branch
// exists to satisfy that contract rather than because it is expected to
// trigger.
func (p *Pool) urlFallback(att client.Attachment, source scanmodel.HashSource) (Result, bool) {
	defer func() {
		if r := recover(); r != nil {
			p.sendError(errors.New("url hash fallback panicked"))
		}
	}()
	digest := hasher.HashURL(att.Content)
	return Result{Attachment: att, Fingerprint: digest, Source: source}, true
}

func (p *Pool) sendError(err error) {
	if p.errCh != nil {
		select {
		case p.errCh <- err:
		default:
		}
	}
}
