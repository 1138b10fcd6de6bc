package roas

import "net/netip"

// Verdict is the result of Validate: standard RPKI route-origin
// validation extended with a historical date parameter.
type Verdict int

const (
	Unknown Verdict = iota
	Valid
	Invalid
)

func (v Verdict) String() string {
	switch v {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Validate answers "was (prefix, origin, day_ts) a valid ROA on that
// day?": every matched (equal-or-supernet) prefix without a satisfying
// tuple flips the running verdict to Invalid, but a later match can still
// flip it back to Valid; the loop does not stop at the first Invalid.
func (a *Archive) Validate(prefix netip.Prefix, origin uint32, dayTS int64) Verdict {
	verdict := Unknown
	for _, m := range a.tuplesAt(prefix.Masked()) {
		found := false
		for _, entry := range *m.Value {
			if entry.Origin == origin && uint8(prefix.Bits()) <= entry.MaxLen && entry.ContainsDate(dayTS) {
				found = true
				break
			}
		}
		if found {
			return Valid
		}
		verdict = Invalid
	}
	return verdict
}

// DateRange is one (start, end) calendar-date pair for a LookupEntry.
type DateRange struct {
	Start string
	End   string
}

// LookupEntry is one search result row.
type LookupEntry struct {
	Prefix     netip.Prefix
	MaxLen     uint8
	Origin     uint32
	DateRanges []DateRange
	Current    bool
}

// SearchFilter selects which TemporalEntries Search returns. A nil field
// means "no constraint on this predicate". Current, when non-nil, is
// exclusive with Date: when set, Date is ignored. Current always wins
// when both are supplied.
type SearchFilter struct {
	Prefix  *netip.Prefix
	Origin  *uint32
	MaxLen  *uint8
	Date    *int64
	Current *bool
}

// Search performs a multi-predicate search. Results are
// unsorted; the HTTP layer (internal/server) sorts by prefix string and
// paginates.
func (a *Archive) Search(f SearchFilter) []LookupEntry {
	latest, _ := a.LatestDate()

	var candidates []struct {
		prefix netip.Prefix
		tuples map[Key]*TemporalEntry
	}
	if f.Prefix != nil {
		for _, m := range a.tuplesAt(f.Prefix.Masked()) {
			candidates = append(candidates, struct {
				prefix netip.Prefix
				tuples map[Key]*TemporalEntry
			}{m.Prefix, *m.Value})
		}
	} else {
		for _, e := range a.trie.Iter() {
			candidates = append(candidates, struct {
				prefix netip.Prefix
				tuples map[Key]*TemporalEntry
			}{e.Prefix, *e.Value})
		}
	}

	var out []LookupEntry
	for _, c := range candidates {
		for key, entry := range c.tuples {
			if f.Origin != nil && key.Origin != *f.Origin {
				continue
			}
			if f.MaxLen != nil && key.MaxLen != *f.MaxLen {
				continue
			}
			if f.Current != nil {
				if *f.Current != entry.IsCurrent(latest) {
					continue
				}
			} else if f.Date != nil {
				if !entry.ContainsDate(*f.Date) {
					continue
				}
			}

			out = append(out, LookupEntry{
				Prefix:     c.prefix,
				MaxLen:     key.MaxLen,
				Origin:     key.Origin,
				DateRanges: toDateRanges(entry.Runs()),
				Current:    entry.IsCurrent(latest),
			})
		}
	}
	return out
}

func toDateRanges(runs []dayRun) []DateRange {
	out := make([]DateRange, 0, len(runs))
	for _, r := range runs {
		out = append(out, DateRange{Start: dayToDateString(r.Start), End: dayToDateString(r.End)})
	}
	return out
}
