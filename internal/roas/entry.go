// Package roas implements the temporal ROA archive: the TemporalEntry
// date representation, the ingest engine, and the query engine, layered
// on top of internal/iptrie.
package roas

import "sort"

const daySeconds = 86400

// Key identifies one (max_len, origin_asn) tuple stored at a trie prefix.
type Key struct {
	MaxLen uint8
	Origin uint32
}

// dayRun is a closed-closed inclusive interval of UTC-midnight day
// timestamps, both multiples of daySeconds.
type dayRun struct {
	Start int64
	End   int64
}

// TemporalEntry is the value held at one (prefix, Key) location: the set
// of UTC calendar days on which the ROA was observed, in either loose
// (unordered, for bulk/parallel ingest) or compressed (ordered runs, for
// incremental ingest) form.
type TemporalEntry struct {
	MaxLen uint8
	Origin uint32

	daysLoose map[int64]struct{}
	daysRuns  []dayRun
}

// NewTemporalEntry creates an entry with its first observed day. If
// bootstrap is true the day goes into the loose set (bulk mode); otherwise
// it seeds the run list directly (incremental mode).
func NewTemporalEntry(dayTS int64, maxLen uint8, origin uint32, bootstrap bool) *TemporalEntry {
	e := &TemporalEntry{MaxLen: maxLen, Origin: origin}
	if bootstrap {
		e.daysLoose = map[int64]struct{}{dayTS: {}}
	} else {
		e.daysRuns = []dayRun{{Start: dayTS, End: dayTS}}
	}
	return e
}

// PushDate records a new observed day.
//
// In bootstrap (bulk) mode this is an idempotent set insert. In
// incremental mode it only ever extends or appends to the tail run,
// assuming callers present days in non-decreasing order; a day at or
// before the tail run's end is silently ignored, matching the upstream
// behavior this archive preserves (see SPEC_FULL.md).
func (e *TemporalEntry) PushDate(dayTS int64, bootstrap bool) {
	if bootstrap {
		if e.daysLoose == nil {
			e.daysLoose = make(map[int64]struct{}, 1)
		}
		e.daysLoose[dayTS] = struct{}{}
		return
	}

	if len(e.daysRuns) == 0 {
		e.daysRuns = []dayRun{{Start: dayTS, End: dayTS}}
		return
	}

	last := &e.daysRuns[len(e.daysRuns)-1]
	switch {
	case dayTS == last.End+daySeconds:
		last.End = dayTS
	case dayTS > last.End+daySeconds:
		e.daysRuns = append(e.daysRuns, dayRun{Start: dayTS, End: dayTS})
	default:
		// dayTS <= last.End: out of order or already covered, ignore.
	}
}

// FullCompress explodes every run and the loose set into individual days,
// sorts them, and rebuilds daysRuns as the minimal sorted, non-overlapping,
// non-adjacent run list. Idempotent; clears daysLoose.
func (e *TemporalEntry) FullCompress() {
	days := make([]int64, 0, len(e.daysLoose)+2*len(e.daysRuns))
	for d := range e.daysLoose {
		days = append(days, d)
	}
	for _, r := range e.daysRuns {
		for d := r.Start; d <= r.End; d += daySeconds {
			days = append(days, d)
		}
	}
	e.daysLoose = nil

	if len(days) == 0 {
		e.daysRuns = nil
		return
	}

	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })

	runs := make([]dayRun, 0, len(days))
	start, end := days[0], days[0]
	for _, d := range days[1:] {
		if d == end {
			continue // de-dup a repeated day
		}
		if d == end+daySeconds {
			end = d
			continue
		}
		runs = append(runs, dayRun{Start: start, End: end})
		start, end = d, d
	}
	runs = append(runs, dayRun{Start: start, End: end})
	e.daysRuns = runs
}

// ContainsDate reports whether dayTS is present in either representation.
func (e *TemporalEntry) ContainsDate(dayTS int64) bool {
	if e.daysLoose != nil {
		if _, ok := e.daysLoose[dayTS]; ok {
			return true
		}
	}
	for _, r := range e.daysRuns {
		if dayTS >= r.Start && dayTS <= r.End {
			return true
		}
	}
	return false
}

// LatestDay returns the maximum day timestamp present in the entry (in
// either representation) and whether the entry has any days at all.
func (e *TemporalEntry) LatestDay() (int64, bool) {
	var (
		max   int64
		found bool
	)
	for d := range e.daysLoose {
		if !found || d > max {
			max, found = d, true
		}
	}
	for _, r := range e.daysRuns {
		if !found || r.End > max {
			max, found = r.End, true
		}
	}
	return max, found
}

// Runs returns the compressed run list (read-only view, ordered by start
// ascending). Callers must call FullCompress first if they need the loose
// set folded in.
func (e *TemporalEntry) Runs() []dayRun {
	return e.daysRuns
}

// IsCurrent reports whether any run reaches at least latestDay.
func (e *TemporalEntry) IsCurrent(latestDay int64) bool {
	for _, r := range e.daysRuns {
		if r.End >= latestDay {
			return true
		}
	}
	return false
}
