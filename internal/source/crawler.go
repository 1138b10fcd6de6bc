// Package source implements the archive's external collaborators: the
// HTML-directory crawler that discovers snapshot URLs, and the CSV
// parser that turns one snapshot into ROA records. These are the
// default, working implementations against the real RIPE ftp mirror.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/bgpkit/wayback-rpki/internal/roas"
)

// TALs is the fixed RIR trust anchor set.
var TALs = []string{"afrinic", "apnic", "arin", "lacnic", "ripencc"}

const defaultBaseURL = "https://ftp.ripe.net/rpki"

// dirEntryPattern matches one Apache directory-listing anchor whose link
// text is a bare two-to-four-digit token, optionally followed by a slash, e.g.
// `<a href="2022/">2022/</a>` or `<a href="07/">07/</a>`, matching the
// verbatim pattern shape.
var dirEntryPattern = regexp.MustCompile(`<a href="[^"]*">\s*(\d{2,4})/?\s*</a>`)

// Crawler walks ftp.ripe.net's RPKI directory tree
// (/rpki/<tal>.tal/YYYY/MM/DD/roas.csv.xz) and yields snapshot references.
type Crawler struct {
	BaseURL string
	Client  *http.Client
	Limiter *rate.Limiter
	Log     *zerolog.Logger

	inFlight *xsync.Map[string, *dirFetch]
}

// dirFetch tracks one in-flight directory listing fetch so concurrent
// callers asking for the same URL share a single HTTP round trip.
type dirFetch struct {
	done    chan struct{}
	entries []string
	err     error
}

// NewCrawler returns a Crawler with the production defaults: the real
// RIPE ftp mirror, a 5 req/s rate limit, and a 30s HTTP client timeout.
func NewCrawler(log *zerolog.Logger) *Crawler {
	return &Crawler{
		BaseURL: defaultBaseURL,
		Client:  &http.Client{Timeout: 30 * time.Second},
		Limiter: rate.NewLimiter(rate.Limit(5), 1),
		Log:     log,
	}
}

// List returns every roas.csv.xz snapshot found across tals whose
// file_date falls within [from, until] (either bound may be nil, meaning
// unbounded). Filtering is coarse: a year/month/day
// directory is skipped entirely once it clearly falls outside the range.
func (c *Crawler) List(ctx context.Context, tals []string, from, until *time.Time) ([]roas.SnapshotRef, error) {
	if c.inFlight == nil {
		c.inFlight = xsync.NewMap[string, *dirFetch]()
	}

	var refs []roas.SnapshotRef
	for _, tal := range tals {
		talRefs, err := c.crawlTAL(ctx, tal, from, until)
		if err != nil {
			if c.Log != nil {
				c.Log.Warn().Err(err).Str("tal", tal).Msg("crawl failed for TAL, skipping")
			}
			continue
		}
		refs = append(refs, talRefs...)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].FileDate.Before(refs[j].FileDate) })
	return refs, nil
}

func (c *Crawler) crawlTAL(ctx context.Context, tal string, from, until *time.Time) ([]roas.SnapshotRef, error) {
	talURL := fmt.Sprintf("%s/%s.tal/", c.BaseURL, tal)
	years, err := c.listDir(ctx, talURL)
	if err != nil {
		return nil, err
	}

	var refs []roas.SnapshotRef
	for _, year := range years {
		if from != nil && year < fmt.Sprintf("%04d", from.Year()) {
			continue
		}
		if until != nil && year > fmt.Sprintf("%04d", until.Year()) {
			continue
		}
		yearURL := talURL + year + "/"
		months, err := c.listDir(ctx, yearURL)
		if err != nil {
			if c.Log != nil {
				c.Log.Warn().Err(err).Str("url", yearURL).Msg("listing failed, skipping year")
			}
			continue
		}
		for _, month := range months {
			if monthOutOfRange(year, month, from, until) {
				continue
			}
			monthURL := yearURL + month + "/"
			days, err := c.listDir(ctx, monthURL)
			if err != nil {
				if c.Log != nil {
					c.Log.Warn().Err(err).Str("url", monthURL).Msg("listing failed, skipping month")
				}
				continue
			}
			for _, day := range days {
				dayURL := monthURL + day + "/"
				date, err := time.Parse("2006-01-02", fmt.Sprintf("%s-%s-%s", year, month, day))
				if err != nil {
					continue
				}
				if from != nil && date.Before(truncateToDay(*from)) {
					continue
				}
				if until != nil && date.After(truncateToDay(*until)) {
					continue
				}
				refs = append(refs, roas.SnapshotRef{
					URL:      dayURL + "roas.csv.xz",
					TAL:      tal,
					FileDate: date,
				})
			}
		}
	}
	return refs, nil
}

func truncateToDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// monthOutOfRange applies a coarse month-level filter: a
// month directory is skipped only when it's unambiguously outside
// [from, until], i.e. the bound falls in the same year.
func monthOutOfRange(year, month string, from, until *time.Time) bool {
	if from != nil && year == fmt.Sprintf("%04d", from.Year()) && month < fmt.Sprintf("%02d", int(from.Month())) {
		return true
	}
	if until != nil && year == fmt.Sprintf("%04d", until.Year()) && month > fmt.Sprintf("%02d", int(until.Month())) {
		return true
	}
	return false
}

// listDir fetches and parses one Apache-style directory listing. Concurrent
// callers for the same URL share one fetch; once it completes the entry is
// dropped, so a later call fetches the listing afresh.
func (c *Crawler) listDir(ctx context.Context, url string) ([]string, error) {
	fetch, loaded := c.inFlight.LoadOrStore(url, &dirFetch{done: make(chan struct{})})
	if loaded {
		<-fetch.done
		return fetch.entries, fetch.err
	}

	fetch.entries, fetch.err = c.fetchDir(ctx, url)
	close(fetch.done)
	c.inFlight.Delete(url)
	return fetch.entries, fetch.err
}

func (c *Crawler) fetchDir(ctx context.Context, url string) ([]string, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}

	matches := dirEntryPattern.FindAllSubmatch(body, -1)
	entries := make([]string, 0, len(matches))
	for _, m := range matches {
		entries = append(entries, string(m[1]))
	}
	return entries, nil
}
