package roas

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// RecordParser turns one crawled snapshot into its parsed ROA records.
// Supplied externally (internal/source.Parser in production, a fake in
// tests) so the ingest engine stays independent of network/CSV concerns.
type RecordParser func(ctx context.Context, ref SnapshotRef) ([]RoaRecord, error)

// IngestBulk performs a bulk rebuild: refs are parsed by a
// worker pool, a single writer goroutine applies every resulting record
// with bootstrap=true, and FullCompress runs once after the queue drains.
// workers <= 0 defaults to runtime.NumCPU().
func (a *Archive) IngestBulk(ctx context.Context, refs []SnapshotRef, parse RecordParser, workers int, log *zerolog.Logger) (IngestSummary, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	type batch struct {
		ref     SnapshotRef
		records []RoaRecord
		err     error
	}

	jobs := make(chan SnapshotRef)
	results := make(chan batch, workers)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for ref := range jobs {
				records, err := parse(ctx, ref)
				results <- batch{ref: ref, records: records, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, ref := range refs {
			select {
			case jobs <- ref:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var summary IngestSummary
	for b := range results {
		summary.FilesSeen++
		if b.err != nil {
			summary.FilesFailed++
			if log != nil {
				log.Warn().Err(b.err).Str("url", b.ref.URL).Msg("snapshot fetch/parse failed, skipping")
			}
			continue
		}
		for _, rec := range b.records {
			a.applyRecord(rec, true)
		}
		summary.RecordsApplied += len(b.records)
	}

	if err := ctx.Err(); err != nil {
		return summary, err
	}

	a.fullCompress()
	return summary, summary.errorIfAllFailed()
}

// IngestIncremental performs an incremental update: refs are
// sorted by FileDate ascending and applied sequentially with
// bootstrap=false, no post-pass compression.
func (a *Archive) IngestIncremental(ctx context.Context, refs []SnapshotRef, parse RecordParser, log *zerolog.Logger) (IngestSummary, error) {
	sorted := append([]SnapshotRef(nil), refs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].FileDate.Before(sorted[j].FileDate) })

	var summary IngestSummary
	for _, ref := range sorted {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.FilesSeen++
		records, err := parse(ctx, ref)
		if err != nil {
			summary.FilesFailed++
			if log != nil {
				log.Warn().Err(err).Str("url", ref.URL).Msg("snapshot fetch/parse failed, skipping")
			}
			continue
		}
		for _, rec := range records {
			a.applyRecord(rec, false)
		}
		summary.RecordsApplied += len(records)
	}
	return summary, summary.errorIfAllFailed()
}

// SinceLatest returns the day immediately after the archive's current
// latest_date, for driving a crawl's "from" bound during incremental
// update. If the archive has no data yet, ok is false.
func (a *Archive) SinceLatest() (dayTS int64, ok bool) {
	if !a.hasLatest {
		return 0, false
	}
	return a.latestDate + daySeconds, true
}

func (s IngestSummary) errorIfAllFailed() error {
	if s.FilesSeen > 0 && s.FilesFailed == s.FilesSeen {
		return fmt.Errorf("ingest: all %d snapshot(s) failed", s.FilesSeen)
	}
	return nil
}
