// Package snapshot implements the archive's durable on-disk format: a
// gzip-compressed msgpack dump of the trie, written atomically via
// write-temp-then-rename, and loaded back with latest_date always
// recomputed rather than trusted from storage.
package snapshot

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/bgpkit/wayback-rpki/internal/roas"
)

// wireTuple and wireEntry mirror roas.WireTuple/WireEntry but use a plain
// string for the prefix, since netip.Prefix has no default msgpack
// encoding and the archive's own types stay free of codec tags.
type wireTuple struct {
	MaxLen uint8      `msgpack:"max_len"`
	Origin uint32     `msgpack:"origin"`
	Runs   [][2]int64 `msgpack:"runs"`
}

type wireEntry struct {
	Prefix string      `msgpack:"prefix"`
	Tuples []wireTuple `msgpack:"tuples"`
}

// Dump writes the archive to path: gzip-compressed msgpack, written to a
// temp file in the same directory and renamed into place so a crash or
// concurrent reader never observes a partial file.
func Dump(a *roas.Archive, path string) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("snapshot: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	gz := gzip.NewWriter(tmp)
	enc := msgpack.NewEncoder(gz)

	entries := toWire(a.Entries())
	if err = enc.Encode(entries); err != nil {
		tmp.Close()
		return fmt.Errorf("snapshot: encode: %w", err)
	}
	if err = gz.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("snapshot: close gzip writer: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("snapshot: close temp file: %w", err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("snapshot: rename into place: %w", err)
	}
	return nil
}

// Load reads and decodes path, reconstructing the archive. latest_date is
// always recomputed from the decoded runs, never read from
// a stored scalar — this format stores none.
func Load(path string) (*roas.Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open gzip reader: %w", err)
	}
	defer gz.Close()

	var entries []wireEntry
	if err := msgpack.NewDecoder(gz).Decode(&entries); err != nil {
		return nil, fmt.Errorf("snapshot: decode: %w", err)
	}

	wireEntries, err := fromWire(entries)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return roas.FromEntries(wireEntries), nil
}

// LoadReader is Load's underlying decode step, exposed for tests that
// don't want to touch the filesystem.
func LoadReader(r io.Reader) (*roas.Archive, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open gzip reader: %w", err)
	}
	defer gz.Close()

	var entries []wireEntry
	if err := msgpack.NewDecoder(gz).Decode(&entries); err != nil {
		return nil, fmt.Errorf("snapshot: decode: %w", err)
	}
	wireEntries, err := fromWire(entries)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return roas.FromEntries(wireEntries), nil
}
