package roas

import (
	"net/netip"

	"github.com/bgpkit/wayback-rpki/internal/iptrie"
)

// Archive is the whole in-memory index: the trie plus the derived,
// global latest_date. The zero value is an empty, ready-to-use archive.
//
// Archive itself holds no lock; reader/writer
// discipline to the caller (internal/server.Refresher holds an
// atomic.Pointer[Archive] and never mutates a published Archive in
// place — see DESIGN.md).
type Archive struct {
	trie       iptrie.Trie[map[Key]*TemporalEntry]
	latestDate int64
	hasLatest  bool
}

// LatestDate returns the global latest observed day and whether any
// record has ever been ingested.
func (a *Archive) LatestDate() (int64, bool) {
	return a.latestDate, a.hasLatest
}

func (a *Archive) bumpLatest(dayTS int64) {
	if !a.hasLatest || dayTS > a.latestDate {
		a.latestDate = dayTS
		a.hasLatest = true
	}
}

// Counts returns the v4/v6 prefix counts, for the /health surface.
func (a *Archive) Counts() (v4, v6 int) {
	return a.trie.Len()
}

// Clone deep-copies the archive: a fresh trie with fresh TemporalEntry
// and tuple-map values, sharing no mutable state with the receiver.
// Used by the refresh orchestrator to build a working copy without
// blocking readers of the published archive.
func (a *Archive) Clone() *Archive {
	out := &Archive{latestDate: a.latestDate, hasLatest: a.hasLatest}
	for _, e := range a.trie.Iter() {
		tuples := make(map[Key]*TemporalEntry, len(*e.Value))
		for k, v := range *e.Value {
			clone := *v
			clone.daysRuns = append([]dayRun(nil), v.daysRuns...)
			if v.daysLoose != nil {
				clone.daysLoose = make(map[int64]struct{}, len(v.daysLoose))
				for d := range v.daysLoose {
					clone.daysLoose[d] = struct{}{}
				}
			}
			tuples[k] = &clone
		}
		out.trie.Insert(e.Prefix, tuples)
	}
	return out
}

// applyRecord locates or creates the trie node and TemporalEntry for
// rec and records its date.
func (a *Archive) applyRecord(rec RoaRecord, bootstrap bool) {
	prefix := rec.Prefix.Masked()
	dayTS := dayTimestamp(rec.Date)
	key := Key{MaxLen: rec.MaxLen, Origin: rec.Origin}

	tuples, ok := a.trie.ExactMatchMut(prefix)
	if !ok {
		m := map[Key]*TemporalEntry{key: NewTemporalEntry(dayTS, rec.MaxLen, rec.Origin, bootstrap)}
		a.trie.Insert(prefix, m)
	} else {
		entry, ok := (*tuples)[key]
		if !ok {
			(*tuples)[key] = NewTemporalEntry(dayTS, rec.MaxLen, rec.Origin, bootstrap)
		} else {
			entry.PushDate(dayTS, bootstrap)
		}
	}
	a.bumpLatest(dayTS)
}

// fullCompress runs TemporalEntry.FullCompress over every stored entry.
func (a *Archive) fullCompress() {
	for _, e := range a.trie.Iter() {
		for _, entry := range *e.Value {
			entry.FullCompress()
		}
	}
}

// tuplesAt is a small helper shared by Validate/Search.
func (a *Archive) tuplesAt(prefix netip.Prefix) []iptrie.Match[map[Key]*TemporalEntry] {
	return a.trie.Matches(prefix)
}

// WireTuple is the serialization-friendly form of one (Key, TemporalEntry)
// pair, exposed for internal/snapshot's codec.
type WireTuple struct {
	MaxLen uint8
	Origin uint32
	Runs   [][2]int64
}

// WireEntry is the serialization-friendly form of one trie node, exposed
// for internal/snapshot's codec.
type WireEntry struct {
	Prefix netip.Prefix
	Tuples []WireTuple
}

// Entries returns every stored trie node in wire form. Any loose
// (uncompressed) days are dropped: dump is only ever called after an
// ingest pass has already run FullCompress or push_date(..., false).
func (a *Archive) Entries() []WireEntry {
	nodes := a.trie.Iter()
	out := make([]WireEntry, 0, len(nodes))
	for _, n := range nodes {
		tuples := make([]WireTuple, 0, len(*n.Value))
		for key, entry := range *n.Value {
			runs := make([][2]int64, len(entry.daysRuns))
			for i, r := range entry.daysRuns {
				runs[i] = [2]int64{r.Start, r.End}
			}
			tuples = append(tuples, WireTuple{MaxLen: key.MaxLen, Origin: key.Origin, Runs: runs})
		}
		out = append(out, WireEntry{Prefix: n.Prefix, Tuples: tuples})
	}
	return out
}

// FromEntries rebuilds an Archive from wire-form entries, recomputing
// latest_date by scanning every run rather than trusting any stored
// scalar.
func FromEntries(entries []WireEntry) *Archive {
	a := &Archive{}
	for _, e := range entries {
		tuples := make(map[Key]*TemporalEntry, len(e.Tuples))
		for _, wt := range e.Tuples {
			runs := make([]dayRun, len(wt.Runs))
			for i, r := range wt.Runs {
				runs[i] = dayRun{Start: r[0], End: r[1]}
				a.bumpLatest(r[1])
			}
			tuples[Key{MaxLen: wt.MaxLen, Origin: wt.Origin}] = &TemporalEntry{
				MaxLen:   wt.MaxLen,
				Origin:   wt.Origin,
				daysRuns: runs,
			}
		}
		a.trie.Insert(e.Prefix, tuples)
	}
	return a
}
