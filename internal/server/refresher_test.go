package server

import (
	"context"
	"net/netip"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bgpkit/wayback-rpki/internal/roas"
)

type fakeCrawler struct {
	refs []roas.SnapshotRef
}

func (f *fakeCrawler) List(_ context.Context, _ []string, from, until *time.Time) ([]roas.SnapshotRef, error) {
	var out []roas.SnapshotRef
	for _, r := range f.refs {
		if from != nil && r.FileDate.Before(*from) {
			continue
		}
		if until != nil && r.FileDate.After(*until) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func TestRefresherTickAppliesIncrementalUpdateAndSwaps(t *testing.T) {
	var ptr atomic.Pointer[roas.Archive]
	ptr.Store(&roas.Archive{})

	p, _ := netip.ParsePrefix("1.1.1.0/24")
	d1, _ := time.Parse("2006-01-02", "2022-01-01")

	crawler := &fakeCrawler{refs: []roas.SnapshotRef{{URL: "a", FileDate: d1}}}
	parse := func(_ context.Context, ref roas.SnapshotRef) ([]roas.RoaRecord, error) {
		return []roas.RoaRecord{{Prefix: p, MaxLen: 24, Origin: 1, Date: ref.FileDate}}, nil
	}

	r := &Refresher{
		Archive:      &ptr,
		SnapshotPath: filepath.Join(t.TempDir(), "snap.bin.gz"),
		TALs:         []string{"ripencc"},
		Crawler:      crawler,
		Parse:        parse,
	}

	require.NoError(t, r.tick(context.Background()))

	live := ptr.Load()
	latest, ok := live.LatestDate()
	require.True(t, ok)
	assert.Equal(t, d1.Unix(), latest)
}

func TestRefresherTickDoesNotSwapOnCrawlFailure(t *testing.T) {
	var ptr atomic.Pointer[roas.Archive]
	original := &roas.Archive{}
	ptr.Store(original)

	r := &Refresher{
		Archive:      &ptr,
		SnapshotPath: filepath.Join(t.TempDir(), "snap.bin.gz"),
		Crawler:      failingCrawler{},
	}

	err := r.tick(context.Background())
	assert.Error(t, err)
	assert.Same(t, original, ptr.Load())
}

type failingCrawler struct{}

func (failingCrawler) List(context.Context, []string, *time.Time, *time.Time) ([]roas.SnapshotRef, error) {
	return nil, assert.AnError
}
