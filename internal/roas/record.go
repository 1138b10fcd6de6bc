package roas

import (
	"fmt"
	"net/netip"
	"time"
)

// RoaRecord is one parsed row out of a daily snapshot: a ROA observed for
// tal on date, authorizing origin to announce prefix up to maxLen.
type RoaRecord struct {
	TAL    string
	Prefix netip.Prefix
	MaxLen uint8
	Origin uint32
	Date   time.Time
}

// SnapshotRef is a crawled snapshot URL and the date it covers, per
// a crawled snapshot's metadata (only url and file_date are consumed by the
// core; rows_count/processed are observability, not index state).
type SnapshotRef struct {
	URL       string
	TAL       string
	FileDate  time.Time
	RowsCount int
	Processed bool
}

// IngestSummary reports what one ingest run did, for logging. It is not
// persisted: the archive's only durable state is the trie itself.
type IngestSummary struct {
	FilesSeen      int
	FilesFailed    int
	RecordsApplied int
}

func (s IngestSummary) String() string {
	return fmt.Sprintf("files_seen=%d files_failed=%d records_applied=%d", s.FilesSeen, s.FilesFailed, s.RecordsApplied)
}

// dayTimestamp truncates t to a UTC calendar day and returns the number of
// seconds since epoch for that midnight.
func dayTimestamp(t time.Time) int64 {
	u := t.UTC()
	midnight := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.Unix()
}

// dayToTime converts a day timestamp back to a UTC midnight time.Time.
func dayToTime(dayTS int64) time.Time {
	return time.Unix(dayTS, 0).UTC()
}

// dayToDateString formats a day timestamp as YYYY-MM-DD.
func dayToDateString(dayTS int64) string {
	return dayToTime(dayTS).Format("2006-01-02")
}
