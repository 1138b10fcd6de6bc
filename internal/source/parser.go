package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/ulikunitz/xz"
	"github.com/valyala/bytebufferpool"

	"github.com/bgpkit/wayback-rpki/internal/roas"
)

// Parser fetches one snapshot URL and streams its rows into RoaRecords,
// following the snapshot's CSV format rules.
type Parser struct {
	Client *http.Client
}

// NewParser returns a Parser with a 60s HTTP client timeout, generous
// enough for a multi-megabyte daily snapshot body.
func NewParser() *Parser {
	return &Parser{Client: &http.Client{Timeout: 60 * time.Second}}
}

// Parse implements roas.RecordParser: it downloads ref.URL, transparently
// decompresses a .xz body, and parses the CSV rows it finds. File date
// comes from ref.FileDate (the URL path), never from the file contents.
func (p *Parser) Parse(ctx context.Context, ref roas.SnapshotRef) ([]roas.RoaRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", ref.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", ref.URL, resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if strings.HasSuffix(ref.URL, ".xz") {
		xr, err := xz.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("xz: %s: %w", ref.URL, err)
		}
		body = xr
	}

	return ParseCSV(body, ref.TAL, ref.FileDate)
}

// ParseCSV parses one snapshot body already decompressed. The first line
// must begin with "URI" (header); its absence is a hard file-level error
// Per-line failures are skipped, not fatal to the file.
func ParseCSV(r io.Reader, tal string, fileDate time.Time) ([]roas.RoaRecord, error) {
	scanner := bufio.NewScanner(r)
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	scanner.Buffer(buf.B, 1<<20)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		return nil, fmt.Errorf("empty snapshot body")
	}
	header := scanner.Text()
	if !strings.HasPrefix(header, "URI") {
		return nil, fmt.Errorf("format incorrect: missing URI header")
	}

	var records []roas.RoaRecord
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		rec, ok := parseRow(line, tal, fileDate)
		if !ok {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("scan: %w", err)
	}
	return records, nil
}

// parseRow parses one "<uri>,AS<asn>,<prefix>,<max_len>" row.
func parseRow(line, tal string, fileDate time.Time) (roas.RoaRecord, bool) {
	fields := strings.Split(line, ",")
	if len(fields) < 3 {
		return roas.RoaRecord{}, false
	}

	asnField := strings.TrimPrefix(strings.TrimSpace(fields[1]), "AS")
	asn, err := strconv.ParseUint(asnField, 10, 32)
	if err != nil {
		return roas.RoaRecord{}, false
	}

	prefix, err := netip.ParsePrefix(strings.TrimSpace(fields[2]))
	if err != nil {
		return roas.RoaRecord{}, false
	}
	prefix = prefix.Masked()

	maxLen := uint8(prefix.Bits())
	if len(fields) > 3 {
		if v, err := strconv.ParseUint(strings.TrimSpace(fields[3]), 10, 8); err == nil {
			maxLen = uint8(v)
		}
	}

	return roas.RoaRecord{
		TAL:    tal,
		Prefix: prefix,
		MaxLen: maxLen,
		Origin: uint32(asn),
		Date:   fileDate,
	}, true
}
