package server

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/rs/zerolog"

	"github.com/bgpkit/wayback-rpki/internal/roas"
	"github.com/bgpkit/wayback-rpki/internal/snapshot"
)

// DefaultRefreshInterval is the default background refresh period (8h).
const DefaultRefreshInterval = 8 * time.Hour

var refreshTotal = metrics.NewCounter(`wayback_rpki_refresh_total{result="ok"}`)
var refreshFailTotal = metrics.NewCounter(`wayback_rpki_refresh_total{result="fail"}`)

// Crawler is the subset of source.Crawler the refresher needs, kept as an
// interface so internal/server doesn't import internal/source directly.
type Crawler interface {
	List(ctx context.Context, tals []string, from, until *time.Time) ([]roas.SnapshotRef, error)
}

// Refresher owns the live published Archive and periodically builds a
// replacement out-of-band, swapping it in atomically.
type Refresher struct {
	Archive            *atomic.Pointer[roas.Archive]
	SnapshotPath       string
	BackupDestinations []string
	TALs               []string
	Crawler            Crawler
	Parse              roas.RecordParser
	Interval           time.Duration
	Log                *zerolog.Logger
}

// Run drives the refresh loop until ctx is cancelled.
func (r *Refresher) Run(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.tick(ctx); err != nil {
				refreshFailTotal.Inc()
				if r.Log != nil {
					r.Log.Error().Err(err).Msg("refresh cycle failed, will retry next interval")
				}
				continue
			}
			refreshTotal.Inc()
		}
	}
}

// tick implements one refresh cycle: clone, incremental-update the
// clone, dump, back up, then swap the live pointer.
func (r *Refresher) tick(ctx context.Context) error {
	live := r.Archive.Load()
	working := live.Clone()

	since, ok := working.SinceLatest()
	var from *time.Time
	if ok {
		t := time.Unix(since, 0).UTC()
		from = &t
	}

	refs, err := r.Crawler.List(ctx, r.TALs, from, nil)
	if err != nil {
		return err
	}

	if _, err := working.IngestIncremental(ctx, refs, r.Parse, r.Log); err != nil {
		return err
	}

	if err := snapshot.Dump(working, r.SnapshotPath); err != nil {
		return err
	}

	for _, dest := range r.BackupDestinations {
		if err := uploadBackup(r.SnapshotPath, dest); err != nil && r.Log != nil {
			r.Log.Warn().Err(err).Str("destination", dest).Msg("backup upload failed, continuing")
		}
	}

	r.Archive.Store(working)
	return nil
}

// uploadBackup copies path to dest: a same-host filesystem path, or an
// s3://bucket/key URL shelled out to the aws CLI. This is a deliberate
// simplification of the original's object-store upload (see SPEC_FULL.md):
// it recognizes both a local file path and an s3:// URL without pulling in
// a full AWS SDK dependency no other component needs. If the aws CLI is
// missing or fails, the error is returned; there is no fallback.
func uploadBackup(path, dest string) error {
	if strings.HasPrefix(dest, "s3://") {
		cmd := exec.Command("aws", "s3", "cp", path, dest)
		return cmd.Run()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o644)
}
