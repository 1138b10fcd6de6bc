package roas

import "time"

// gapRange is one closed UTC date interval from the Known Gaps Table
// (bit-exact).
type gapRange struct {
	start, end string // YYYY-MM-DD
}

// knownGaps is the Known Gaps Table.
var knownGaps = []gapRange{
	{"2018-12-28", "2019-01-02"},
	{"2019-10-22", "2019-10-22"},
	{"2019-11-24", "2019-11-24"},
	{"2020-08-03", "2020-08-03"},
	{"2021-01-04", "2021-01-04"},
	{"2021-07-15", "2021-07-15"},
	{"2021-07-19", "2021-07-19"},
	{"2021-07-23", "2021-07-23"},
	{"2021-07-31", "2021-07-31"},
	{"2021-08-10", "2021-08-10"},
	{"2021-09-03", "2021-09-03"},
	{"2021-09-06", "2021-09-07"},
	{"2021-09-10", "2021-09-25"},
	{"2021-09-27", "2021-09-28"},
	{"2022-01-03", "2022-01-03"},
	{"2022-01-15", "2022-01-15"},
	{"2022-01-19", "2022-01-19"},
	{"2022-01-24", "2022-01-24"},
	{"2022-02-02", "2022-02-02"},
	{"2022-02-04", "2022-02-04"},
	{"2022-02-13", "2022-02-13"},
	{"2022-02-16", "2022-02-16"},
	{"2023-06-24", "2023-06-24"},
	{"2023-07-14", "2023-07-17"},
}

func mustDayTS(s string) int64 {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err) // knownGaps is a compile-time-fixed literal table
	}
	return t.Unix()
}

// FillGaps implements the "Fix" pass: for every gap in the
// Known Gaps Table, every TemporalEntry whose runs straddle the gap
// exactly (a run ending the day before the gap, immediately followed by
// a run starting the day after) has the gap's days injected into
// days_loose and is scheduled for FullCompress. Entries that don't
// straddle a gap are left untouched.
func (a *Archive) FillGaps() int {
	patched := 0
	for _, e := range a.trie.Iter() {
		for _, entry := range *e.Value {
			if fillEntryGaps(entry, knownGaps) {
				patched++
			}
		}
	}
	return patched
}

func fillEntryGaps(entry *TemporalEntry, gaps []gapRange) bool {
	changed := false
	for _, gap := range gaps {
		gapStart := mustDayTS(gap.start)
		gapEnd := mustDayTS(gap.end)

		for i := 0; i+1 < len(entry.daysRuns); i++ {
			r1, r2 := entry.daysRuns[i], entry.daysRuns[i+1]
			if r1.End == gapStart-daySeconds && r2.Start == gapEnd+daySeconds {
				for d := gapStart; d <= gapEnd; d += daySeconds {
					entry.PushDate(d, true) // route through days_loose
				}
				changed = true
			}
		}
	}
	if changed {
		entry.FullCompress()
	}
	return changed
}
