package roas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchByOriginAndMaxLen(t *testing.T) {
	a := scenario2Archive(t)

	origin := uint32(13335)
	results := a.Search(SearchFilter{Origin: &origin})
	require.Len(t, results, 1)

	other := uint32(1)
	assert.Empty(t, a.Search(SearchFilter{Origin: &other}))

	maxLen := uint8(24)
	assert.Len(t, a.Search(SearchFilter{MaxLen: &maxLen}), 1)

	wrongLen := uint8(23)
	assert.Empty(t, a.Search(SearchFilter{MaxLen: &wrongLen}))
}

func TestSearchByExplicitDate(t *testing.T) {
	a := scenario2Archive(t)

	d := ts(t, "2022-01-02")
	results := a.Search(SearchFilter{Date: &d})
	require.Len(t, results, 1)

	missing := ts(t, "2022-01-03")
	assert.Empty(t, a.Search(SearchFilter{Date: &missing}))
}

func TestSearchCurrentWinsOverExplicitDate(t *testing.T) {
	a := scenario2Archive(t)
	a.latestDate = ts(t, "2022-01-10") // no run reaches latest

	current := true
	date := ts(t, "2022-01-02") // would otherwise match
	results := a.Search(SearchFilter{Current: &current, Date: &date})
	assert.Empty(t, results, "current=true should win and exclude a non-current entry even though date matches")
}

func TestSearchWithNoPrefixScansWholeTrie(t *testing.T) {
	a := scenario2Archive(t)
	results := a.Search(SearchFilter{})
	assert.Len(t, results, 1)
	assert.Equal(t, "1.1.1.0/24", results[0].Prefix.String())
	require.Len(t, results[0].DateRanges, 2)
	assert.Equal(t, "2022-01-01", results[0].DateRanges[0].Start)
	assert.Equal(t, "2022-01-02", results[0].DateRanges[0].End)
}

func TestValidateNoMatchIsUnknown(t *testing.T) {
	var a Archive
	assert.Equal(t, Unknown, a.Validate(mustPrefix(t, "1.1.1.0/24"), 1, ts(t, "2022-01-01")))
}
