package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"os"
	"sync/atomic"
	"time"

	"github.com/spf13/pflag"

	"github.com/bgpkit/wayback-rpki/internal/roas"
	"github.com/bgpkit/wayback-rpki/internal/server"
	"github.com/bgpkit/wayback-rpki/internal/snapshot"
	"github.com/bgpkit/wayback-rpki/internal/source"
)

func (a *App) loadOrNewArchive() *roas.Archive {
	path := a.SnapshotPath()
	if _, err := os.Stat(path); err != nil {
		return &roas.Archive{}
	}
	arc, err := snapshot.Load(path)
	if err != nil {
		a.Warn().Err(err).Str("path", path).Msg("failed to load existing snapshot, starting empty")
		return &roas.Archive{}
	}
	return arc
}

func parseDateFlag(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", v, err)
	}
	return &t, nil
}

// cmdRebuild implements the `rebuild` subcommand: a full bulk rebuild.
func (a *App) cmdRebuild(args []string) error {
	fs := pflag.NewFlagSet("rebuild", pflag.ContinueOnError)
	tals := fs.StringSlice("tal", source.TALs, "TALs to crawl")
	fromStr := fs.String("from", "", "only crawl snapshots on/after this date (YYYY-MM-DD)")
	untilStr := fs.String("until", "", "only crawl snapshots on/before this date (YYYY-MM-DD)")
	workers := fs.Int("workers", 0, "parser worker pool size (0 = runtime.NumCPU())")
	if err := fs.Parse(args); err != nil {
		return err
	}

	from, err := parseDateFlag(*fromStr)
	if err != nil {
		return err
	}
	until, err := parseDateFlag(*untilStr)
	if err != nil {
		return err
	}

	ctx := context.Background()
	refs, err := a.Crawler.List(ctx, *tals, from, until)
	if err != nil {
		return fmt.Errorf("crawl: %w", err)
	}
	a.Info().Int("snapshots", len(refs)).Msg("crawled snapshot list")

	arc := &roas.Archive{}
	summary, err := arc.IngestBulk(ctx, refs, a.Parser.Parse, *workers, &a.Logger)
	if err != nil {
		return fmt.Errorf("bulk ingest: %w", err)
	}
	a.Info().Str("summary", summary.String()).Msg("bulk ingest complete")

	if err := snapshot.Dump(arc, a.SnapshotPath()); err != nil {
		return fmt.Errorf("dump: %w", err)
	}
	return nil
}

// cmdUpdate implements the `update` subcommand: an incremental update
// since the archive's current latest date.
func (a *App) cmdUpdate(args []string) error {
	fs := pflag.NewFlagSet("update", pflag.ContinueOnError)
	tals := fs.StringSlice("tal", source.TALs, "TALs to crawl")
	untilStr := fs.String("until", "", "only crawl snapshots on/before this date (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	until, err := parseDateFlag(*untilStr)
	if err != nil {
		return err
	}

	arc := a.loadOrNewArchive()

	var from *time.Time
	if since, ok := arc.SinceLatest(); ok {
		t := time.Unix(since, 0).UTC()
		from = &t
	}

	ctx := context.Background()
	refs, err := a.Crawler.List(ctx, *tals, from, until)
	if err != nil {
		return fmt.Errorf("crawl: %w", err)
	}
	a.Info().Int("snapshots", len(refs)).Msg("crawled incremental snapshot list")

	summary, err := arc.IngestIncremental(ctx, refs, a.Parser.Parse, &a.Logger)
	if err != nil {
		return fmt.Errorf("incremental ingest: %w", err)
	}
	a.Info().Str("summary", summary.String()).Msg("incremental ingest complete")

	if err := snapshot.Dump(arc, a.SnapshotPath()); err != nil {
		return fmt.Errorf("dump: %w", err)
	}
	return nil
}

// cmdFix implements the `fix` subcommand: a gap-fill pass.
func (a *App) cmdFix(args []string) error {
	fs := pflag.NewFlagSet("fix", pflag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := a.SnapshotPath()
	arc, err := snapshot.Load(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}

	patched := arc.FillGaps()
	a.Info().Int("entries_patched", patched).Msg("gap fill complete")

	if err := snapshot.Dump(arc, path); err != nil {
		return fmt.Errorf("dump: %w", err)
	}
	return nil
}

// cmdSearch implements the `search` subcommand: a CLI front-end over the
// same query engine the HTTP /search endpoint uses.
func (a *App) cmdSearch(args []string) error {
	fs := pflag.NewFlagSet("search", pflag.ContinueOnError)
	asn := fs.Uint32("asn", 0, "filter by origin ASN")
	hasASN := fs.Changed
	prefixStr := fs.String("prefix", "", "filter by prefix (equal-or-supernet match)")
	maxLen := fs.Uint8("max-len", 0, "filter by exact max length")
	dateStr := fs.String("date", "", "filter by date (YYYY-MM-DD)")
	current := fs.Bool("current", false, "filter to currently-active entries only")
	if err := fs.Parse(args); err != nil {
		return err
	}

	arc, err := snapshot.Load(a.SnapshotPath())
	if err != nil {
		return fmt.Errorf("load %s: %w", a.SnapshotPath(), err)
	}

	var filter roas.SearchFilter
	if hasASN("asn") {
		filter.Origin = asn
	}
	if *prefixStr != "" {
		p, err := netip.ParsePrefix(*prefixStr)
		if err != nil {
			return fmt.Errorf("invalid --prefix: %w", err)
		}
		p = p.Masked()
		filter.Prefix = &p
	}
	if fs.Changed("max-len") {
		filter.MaxLen = maxLen
	}
	if fs.Changed("current") {
		filter.Current = current
	} else if *dateStr != "" {
		d, err := time.Parse("2006-01-02", *dateStr)
		if err != nil {
			return fmt.Errorf("invalid --date: %w", err)
		}
		ts := d.Unix()
		filter.Date = &ts
	}

	results := arc.Search(filter)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

// cmdServe implements the `serve` subcommand: HTTP surface plus the
// background refresh loop.
func (a *App) cmdServe(args []string) error {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	addr := fs.String("addr", ":8080", "HTTP listen address")
	prefix := fs.String("prefix", "/", "URL prefix to mount the HTTP surface under")
	interval := fs.Duration("refresh-interval", server.DefaultRefreshInterval, "background refresh interval")
	backupTo := fs.StringSlice("backup-to", nil, "auxiliary backup destination (repeatable): file path or s3://bucket/key")
	if err := fs.Parse(args); err != nil {
		return err
	}

	arc := a.loadOrNewArchive()
	var ptr atomic.Pointer[roas.Archive]
	ptr.Store(arc)

	backups := append(a.BackupDestinations(), *backupTo...)

	refresher := &server.Refresher{
		Archive:            &ptr,
		SnapshotPath:       a.SnapshotPath(),
		BackupDestinations: backups,
		TALs:               source.TALs,
		Crawler:            a.Crawler,
		Parse:              a.Parser.Parse,
		Interval:           *interval,
		Log:                &a.Logger,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go refresher.Run(ctx)

	srv := server.New(*prefix, &ptr, &a.Logger)
	a.Info().Str("addr", *addr).Msg("serving wayback-rpki HTTP surface")

	httpServer := &http.Server{Addr: *addr, Handler: srv}
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
