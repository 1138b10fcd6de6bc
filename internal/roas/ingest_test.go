package roas

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestBulkIsIdempotent(t *testing.T) {
	rec := RoaRecord{Prefix: mustPrefix(t, "1.1.1.0/24"), MaxLen: 24, Origin: 13335, Date: mustDate(t, "2022-01-01")}

	var a Archive
	_, err := a.IngestBulk(context.Background(), []SnapshotRef{{URL: "x"}}, staticParser([]RoaRecord{rec, rec}), 1, nil)
	require.NoError(t, err)

	matches := a.tuplesAt(mustPrefix(t, "1.1.1.0/24"))
	entry := (*matches[0].Value)[Key{MaxLen: 24, Origin: 13335}]
	require.Len(t, entry.daysRuns, 1)
	assert.Equal(t, dayRun{ts(t, "2022-01-01"), ts(t, "2022-01-01")}, entry.daysRuns[0])
}

func TestIngestBulkSkipsFailedFilesAndContinues(t *testing.T) {
	good := RoaRecord{Prefix: mustPrefix(t, "1.1.1.0/24"), MaxLen: 24, Origin: 1, Date: mustDate(t, "2022-01-01")}
	refs := []SnapshotRef{{URL: "bad"}, {URL: "good"}}
	parse := func(_ context.Context, ref SnapshotRef) ([]RoaRecord, error) {
		if ref.URL == "bad" {
			return nil, errors.New("boom")
		}
		return []RoaRecord{good}, nil
	}

	var a Archive
	summary, err := a.IngestBulk(context.Background(), refs, parse, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.FilesSeen)
	assert.Equal(t, 1, summary.FilesFailed)
	assert.Equal(t, 1, summary.RecordsApplied)

	v4, _ := a.Counts()
	assert.Equal(t, 1, v4)
}

func TestIngestIncrementalNoPostCompressPass(t *testing.T) {
	p := mustPrefix(t, "1.1.1.0/24")
	refs := []SnapshotRef{
		{URL: "a", FileDate: mustDate(t, "2022-01-01")},
		{URL: "b", FileDate: mustDate(t, "2022-01-02")},
	}
	parse := func(_ context.Context, ref SnapshotRef) ([]RoaRecord, error) {
		return []RoaRecord{{Prefix: p, MaxLen: 24, Origin: 1, Date: ref.FileDate}}, nil
	}

	var a Archive
	_, err := a.IngestIncremental(context.Background(), refs, parse, nil)
	require.NoError(t, err)

	matches := a.tuplesAt(p)
	entry := (*matches[0].Value)[Key{MaxLen: 24, Origin: 1}]
	assert.Nil(t, entry.daysLoose)
	require.Len(t, entry.daysRuns, 1)
}

func TestIngestBulkErrorsWhenEverySnapshotFails(t *testing.T) {
	refs := []SnapshotRef{{URL: "a"}, {URL: "b"}}
	parse := func(_ context.Context, _ SnapshotRef) ([]RoaRecord, error) {
		return nil, errors.New("boom")
	}

	var a Archive
	summary, err := a.IngestBulk(context.Background(), refs, parse, 2, nil)
	require.Error(t, err)
	assert.Equal(t, 2, summary.FilesFailed)
}

func TestEmptySnapshotDoesNotMutateIndex(t *testing.T) {
	var a Archive
	summary, err := a.IngestBulk(context.Background(), []SnapshotRef{{URL: "x"}}, staticParser(nil), 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.RecordsApplied)

	v4, v6 := a.Counts()
	assert.Equal(t, 0, v4)
	assert.Equal(t, 0, v6)
	_, ok := a.LatestDate()
	assert.False(t, ok)
}
