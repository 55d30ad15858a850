// Package monitor is the release scan-and-report pipeline: poll the package
// index for new releases, submit each to the scan service, evaluate the
// results against the active rule config, and dispatch reports for flagged
// releases, advancing a persisted checkpoint as releases resolve.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mantisec/pkgwatch/monitor/checkpoint"
	"github.com/mantisec/pkgwatch/monitor/dedup"
)

// Source lists releases published after a cursor, ordered by publish time
// ascending. Implemented by the feed package.
type Source interface {
	ListSince(ctx context.Context, cur checkpoint.Cursor) ([]Release, error)
}

// Scanner submits one release artifact and returns a full scan result or a
// classified error. Implemented by the scanner package.
type Scanner interface {
	Scan(ctx context.Context, rel Release) (*ScanResult, error)
}

// Engine is the pipeline orchestrator. It owns the checkpoint cursor: the
// cursor is loaded once at startup and advanced only from the cycle loop, so
// there is exactly one writer regardless of how much scan and dispatch work
// runs concurrently.
type Engine struct {
	Logger      *slog.Logger
	Source      Source
	Scanner     Scanner
	Checkpoints checkpoint.Store
	Dedup       dedup.Tracker
	Dispatcher  *Dispatcher
	Rules       *RuleConfig

	PollInterval time.Duration
	// concurrent release workers per cycle; scan rate limiting on top of
	// this lives in the scanner client
	Concurrency int64

	ScanMaxAttempts int
	ScanRetryBase   time.Duration

	// cycles a release may fail dispatch on every channel before the
	// checkpoint is allowed past it
	DispatchMaxCycles int

	// SummaryFunc, if set, is called at the end of each cycle with the
	// keys of releases scanned during that cycle.
	SummaryFunc func(ctx context.Context, scanned []string)

	// test hook
	Now func() time.Time

	mu            sync.Mutex
	cursor        checkpoint.Cursor
	dispatchFails map[string]int
}

type releaseStatus int

const (
	statusUnresolved releaseStatus = iota
	statusResolved
)

type releaseResult struct {
	status  releaseStatus
	scanned bool
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) concurrency() int64 {
	if e.Concurrency > 0 {
		return e.Concurrency
	}
	return 4
}

func (e *Engine) scanAttempts() int {
	if e.ScanMaxAttempts > 0 {
		return e.ScanMaxAttempts
	}
	return 3
}

func (e *Engine) scanRetryBase() time.Duration {
	if e.ScanRetryBase > 0 {
		return e.ScanRetryBase
	}
	return 200 * time.Millisecond
}

func (e *Engine) dispatchMaxCycles() int {
	if e.DispatchMaxCycles > 0 {
		return e.DispatchMaxCycles
	}
	return 3
}

// Run executes polling cycles until the context is cancelled. Feed outages
// back off exponentially without advancing anything; all other cycle errors
// are logged and retried on the next tick. Never returns a release-level
// error: the process only exits on cancellation.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.loadCursor(ctx); err != nil {
		return err
	}
	logger := e.logger()
	logger.Info("starting polling loop", "interval", e.PollInterval, "cursor", e.Cursor())

	srcBackoff := time.Second
	for {
		err := e.RunCycle(ctx)
		wait := e.PollInterval
		switch {
		case err == nil:
			srcBackoff = time.Second
		case errors.Is(err, ErrSourceUnavailable):
			logger.Warn("feed unavailable, backing off", "err", err, "delay", srcBackoff)
			wait = srcBackoff
			srcBackoff *= 2
			if srcBackoff > 5*time.Minute {
				srcBackoff = 5 * time.Minute
			}
		case errors.Is(err, context.Canceled):
			return nil
		default:
			logger.Error("cycle failed", "err", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (e *Engine) loadCursor(ctx context.Context) error {
	cur, err := e.Checkpoints.Load(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cursor = cur
	if e.dispatchFails == nil {
		e.dispatchFails = make(map[string]int)
	}
	return nil
}

// Cursor returns the engine's current checkpoint position. Safe to call
// from other goroutines while the engine runs; intended for status
// endpoints and tests.
func (e *Engine) Cursor() checkpoint.Cursor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursor
}

func (e *Engine) setCursor(c checkpoint.Cursor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cursor = c
}

// RunCycle performs one full poll-scan-evaluate-dispatch-advance pass.
// Releases are processed with bounded concurrency; the checkpoint advances
// to the end of the minimum fully-resolved prefix of the cycle's releases,
// so out-of-order completion never skips an unresolved release.
func (e *Engine) RunCycle(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "runCycle")
	defer span.End()

	e.mu.Lock()
	if e.dispatchFails == nil {
		e.dispatchFails = make(map[string]int)
	}
	cur := e.cursor
	e.mu.Unlock()
	logger := e.logger()

	rels, err := e.Source.ListSince(ctx, cur)
	if err != nil {
		if errors.Is(err, ErrSourceUnavailable) {
			sourceErrors.Inc()
		}
		return err
	}
	releasesFetched.Add(float64(len(rels)))
	logger.Info("fetched releases", "count", len(rels), "cursor", cur)

	results := make([]releaseResult, len(rels))
	sem := semaphore.NewWeighted(e.concurrency())
	var wg sync.WaitGroup
	for i := range rels {
		if err := sem.Acquire(ctx, 1); err != nil {
			// cancelled mid-cycle: remaining releases stay unresolved,
			// the checkpoint will not pass them
			break
		}
		wg.Add(1)
		go func(i int, rel Release) {
			defer sem.Release(1)
			defer wg.Done()
			results[i] = e.processRelease(ctx, rel)
		}(i, rels[i])
	}
	wg.Wait()

	scanned := make([]string, 0, len(rels))
	for i, rel := range rels {
		if results[i].scanned {
			scanned = append(scanned, rel.Key())
		}
	}

	// serialized checkpoint advancement: longest fully-resolved prefix.
	// The feed filter is strictly-after and pubDate has second granularity,
	// so the cursor must never reach a timestamp an unresolved release
	// still shares with a resolved one.
	firstUnresolved := -1
	for i := range rels {
		if results[i].status != statusResolved {
			firstUnresolved = i
			break
		}
	}
	limit := len(rels)
	if firstUnresolved >= 0 {
		limit = firstUnresolved
	}
	advanced := false
	newCursor := cur
	for i := 0; i < limit; i++ {
		if firstUnresolved >= 0 && !rels[i].PublishedAt.Before(rels[firstUnresolved].PublishedAt) {
			break
		}
		newCursor = checkpoint.FromTime(rels[i].PublishedAt)
		advanced = true
	}
	if advanced && newCursor != cur {
		if err := e.Checkpoints.Save(ctx, newCursor); err != nil {
			return err
		}
		e.setCursor(newCursor)
		if t, err := newCursor.Time(); err == nil {
			checkpointUnix.Set(float64(t.Unix()))
		}
		logger.Info("checkpoint advanced", "cursor", newCursor)
	}

	if e.SummaryFunc != nil {
		e.SummaryFunc(ctx, scanned)
	}
	return nil
}

func (e *Engine) processRelease(ctx context.Context, rel Release) releaseResult {
	logger := e.logger().With("release", rel.Key())

	// the feed may repeat entries; skip the scan entirely when this
	// release already reached a reported or clean verdict
	for _, flagged := range []bool{true, false} {
		seen, err := e.Dedup.HasReported(ctx, dedup.Key(rel.Name, rel.Version, flagged))
		if err != nil {
			logger.Error("dedup lookup failed", "err", err)
			return releaseResult{}
		}
		if seen {
			logger.Debug("release already handled, skipping scan")
			e.clearDispatchFails(rel.Key())
			return releaseResult{status: statusResolved}
		}
	}

	var res *ScanResult
	err := retry(ctx, e.scanAttempts(), e.scanRetryBase(), func() error {
		var scanErr error
		res, scanErr = e.Scanner.Scan(ctx, rel)
		return scanErr
	})
	if err != nil {
		scansFailed.Inc()
		logger.Warn("scan failed, release held for next cycle", "err", err, "attempts", e.scanAttempts())
		return releaseResult{}
	}
	releasesScanned.Inc()

	verdict := Evaluate(res, e.Rules, e.now())
	verdict.PackageURL = rel.PackageURL
	verdict.InspectorURL = rel.InspectorURL

	if !verdict.Flagged {
		// record the clean verdict so repeated feed entries skip the scan
		if err := e.Dedup.MarkReported(ctx, dedup.Key(rel.Name, rel.Version, false)); err != nil {
			logger.Error("dedup mark failed", "err", err)
			return releaseResult{}
		}
		logger.Info("release clean", "score", verdict.Score)
		return releaseResult{status: statusResolved, scanned: true}
	}

	releasesFlagged.Inc()
	logger.Info("release flagged", "score", verdict.Score, "rules", len(verdict.Hits))

	dres, err := e.Dispatcher.Dispatch(ctx, verdict)
	if err != nil {
		logger.Error("dispatch errored, release held for next cycle", "err", err)
		return releaseResult{scanned: true}
	}
	if dres.Resolved {
		if dres.Delivered {
			reportsSent.Inc()
		} else {
			reportsSkipped.Inc()
		}
		e.clearDispatchFails(rel.Key())
		return releaseResult{status: statusResolved, scanned: true}
	}

	// every channel failed; bound how many cycles this release may block
	reportsFailed.Inc()
	fails := e.recordDispatchFail(rel.Key())
	if fails >= e.dispatchMaxCycles() {
		logger.Error("dispatch failed on all channels, advancing past release",
			"cycles", fails)
		e.clearDispatchFails(rel.Key())
		return releaseResult{status: statusResolved, scanned: true}
	}
	logger.Warn("dispatch failed on all channels, will retry next cycle",
		"cycles", fails)
	return releaseResult{scanned: true}
}

func (e *Engine) recordDispatchFail(key string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dispatchFails[key]++
	return e.dispatchFails[key]
}

func (e *Engine) clearDispatchFails(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.dispatchFails, key)
}
