package roas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFillEntryGapsHealsExactStraddle(t *testing.T) {
	e := &TemporalEntry{MaxLen: 24, Origin: 1, daysRuns: []dayRun{
		{mustDayTS("2021-09-01"), mustDayTS("2021-09-05")},
		{mustDayTS("2021-09-08"), mustDayTS("2021-09-09")},
	}}

	changed := fillEntryGaps(e, []gapRange{{"2021-09-06", "2021-09-07"}})
	require.True(t, changed)
	require.Len(t, e.daysRuns, 1)
	assert.Equal(t, dayRun{mustDayTS("2021-09-01"), mustDayTS("2021-09-09")}, e.daysRuns[0])
}

func TestFillEntryGapsLeavesNonStraddlingAlone(t *testing.T) {
	e := &TemporalEntry{MaxLen: 24, Origin: 1, daysRuns: []dayRun{
		{mustDayTS("2021-09-01"), mustDayTS("2021-09-04")}, // ends before gap start - 1
		{mustDayTS("2021-09-10"), mustDayTS("2021-09-12")},
	}}

	changed := fillEntryGaps(e, []gapRange{{"2021-09-06", "2021-09-07"}})
	assert.False(t, changed)
	assert.Len(t, e.daysRuns, 2)
}

func TestKnownGapsTableParsesAndIsSorted(t *testing.T) {
	var prev int64
	for i, g := range knownGaps {
		start := mustDayTS(g.start)
		end := mustDayTS(g.end)
		require.LessOrEqual(t, start, end, "gap %d", i)
		require.GreaterOrEqual(t, start, prev, "gap %d out of order", i)
		prev = start
	}
}
