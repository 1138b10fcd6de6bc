package source

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCSVHappyPath(t *testing.T) {
	body := "URI,ASN,Prefix,Max Length\n" +
		"rsync://x,AS13335,1.1.1.0/24,24\n" +
		"rsync://y,AS64512,2001:db8::/32,48\n"

	date, _ := time.Parse("2006-01-02", "2022-01-01")
	records, err := ParseCSV(strings.NewReader(body), "ripencc", date)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, uint32(13335), records[0].Origin)
	assert.Equal(t, uint8(24), records[0].MaxLen)
	assert.Equal(t, "1.1.1.0/24", records[0].Prefix.String())
	assert.Equal(t, date, records[0].Date)

	assert.Equal(t, uint32(64512), records[1].Origin)
	assert.Equal(t, "2001:db8::/32", records[1].Prefix.String())
}

func TestParseCSVMissingHeaderFails(t *testing.T) {
	body := "rsync://x,AS13335,1.1.1.0/24,24\n"
	_, err := ParseCSV(strings.NewReader(body), "ripencc", time.Now())
	assert.Error(t, err)
}

func TestParseCSVMaxLenBlankFallsBackToPrefixLen(t *testing.T) {
	body := "URI\nrsync://x,AS1,1.1.1.0/24,\n"
	date, _ := time.Parse("2006-01-02", "2022-01-01")
	records, err := ParseCSV(strings.NewReader(body), "ripencc", date)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, uint8(24), records[0].MaxLen)
}

func TestParseCSVSkipsUnparseableLines(t *testing.T) {
	body := "URI\n" +
		"rsync://x,ASnotanumber,1.1.1.0/24,24\n" +
		"rsync://y,AS1,not-a-prefix,24\n" +
		"rsync://z,AS1,1.1.1.0/24,24\n"
	date, _ := time.Parse("2006-01-02", "2022-01-01")
	records, err := ParseCSV(strings.NewReader(body), "ripencc", date)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, uint32(1), records[0].Origin)
}

func TestParseCSVEmptyBodyNoRowsYieldsNoMutation(t *testing.T) {
	body := "URI\n"
	date, _ := time.Parse("2006-01-02", "2022-01-01")
	records, err := ParseCSV(strings.NewReader(body), "ripencc", date)
	require.NoError(t, err)
	assert.Empty(t, records)
}
