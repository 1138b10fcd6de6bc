package snapshot

import (
	"fmt"
	"net/netip"

	"github.com/bgpkit/wayback-rpki/internal/roas"
)

func toWire(entries []roas.WireEntry) []wireEntry {
	out := make([]wireEntry, len(entries))
	for i, e := range entries {
		tuples := make([]wireTuple, len(e.Tuples))
		for j, t := range e.Tuples {
			tuples[j] = wireTuple{MaxLen: t.MaxLen, Origin: t.Origin, Runs: t.Runs}
		}
		out[i] = wireEntry{Prefix: e.Prefix.String(), Tuples: tuples}
	}
	return out
}

func fromWire(entries []wireEntry) ([]roas.WireEntry, error) {
	out := make([]roas.WireEntry, len(entries))
	for i, e := range entries {
		prefix, err := netip.ParsePrefix(e.Prefix)
		if err != nil {
			return nil, fmt.Errorf("decode prefix %q: %w", e.Prefix, err)
		}
		tuples := make([]roas.WireTuple, len(e.Tuples))
		for j, t := range e.Tuples {
			tuples[j] = roas.WireTuple{MaxLen: t.MaxLen, Origin: t.Origin, Runs: t.Runs}
		}
		out[i] = roas.WireEntry{Prefix: prefix, Tuples: tuples}
	}
	return out, nil
}
