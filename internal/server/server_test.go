package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bgpkit/wayback-rpki/internal/roas"
)

func buildArchive(t *testing.T) *roas.Archive {
	t.Helper()
	var a roas.Archive
	p, err := netip.ParsePrefix("1.1.1.0/24")
	require.NoError(t, err)
	d1, _ := time.Parse("2006-01-02", "2022-01-01")
	d2, _ := time.Parse("2006-01-02", "2022-01-02")
	parse := func(_ context.Context, _ roas.SnapshotRef) ([]roas.RoaRecord, error) {
		return []roas.RoaRecord{
			{Prefix: p, MaxLen: 24, Origin: 13335, Date: d1},
			{Prefix: p, MaxLen: 24, Origin: 13335, Date: d2},
		}, nil
	}
	_, err = a.IngestBulk(context.Background(), []roas.SnapshotRef{{URL: "x"}}, parse, 1, nil)
	require.NoError(t, err)
	return &a
}

func testServer(t *testing.T) *Server {
	t.Helper()
	var ptr atomic.Pointer[roas.Archive]
	ptr.Store(buildArchive(t))
	return New("/", &ptr, nil)
}

func TestHandleHealth(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.IPv4RoasCount)
	assert.Equal(t, 0, resp.IPv6RoasCount)
	assert.Equal(t, "2022-01-02", resp.LatestDate)
}

func TestHandleSearchBasic(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/search?asn=13335", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp searchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "1.1.1.0/24", resp.Data[0].Prefix)
	assert.Equal(t, 100, resp.PageSize)
}

func TestHandleSearchInvalidPrefixIsValidationError(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/search?prefix=not-a-prefix", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var resp searchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Error)
	assert.Empty(t, resp.Data)
}

func TestHandleSearchPagination(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/search?page=1&page_size=1", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp searchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Empty(t, resp.Data, "page 1 with only one result on page 0 should be empty")
}

func TestHandleSearchCORSHeaders(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/search", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST", w.Header().Get("Access-Control-Allow-Methods"))
}

func TestHandleValidateMatch(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/validate?prefix=1.1.1.0/24&asn=13335&date=2022-01-01", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp validateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "valid", resp.Verdict)
}

func TestHandleValidateMissingParams(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/validate", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleMetricsServesPrometheusFormat(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "wayback_rpki_search_requests_total")
}
