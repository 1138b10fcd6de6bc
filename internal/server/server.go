// Package server implements the archive's HTTP surface (GET /health,
// GET /search, GET /validate, GET /metrics) and the background refresh
// orchestrator that keeps the served index up to date.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/netip"
	"sort"
	"strconv"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/bgpkit/wayback-rpki/internal/roas"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

var (
	searchRequests   = metrics.NewCounter(`wayback_rpki_search_requests_total`)
	validateRequests = metrics.NewCounter(`wayback_rpki_validate_requests_total`)
	healthRequests   = metrics.NewCounter(`wayback_rpki_health_requests_total`)
)

// Server wraps a chi router over a live, hot-swappable Archive.
type Server struct {
	archive *atomic.Pointer[roas.Archive]
	router  chi.Router
	log     *zerolog.Logger
}

// New builds a Server mounted under prefix (default "/" when empty),
// backed by archive. archive is expected to already hold a non-nil
// *roas.Archive (internal/app loads or creates one before serving).
func New(prefix string, archive *atomic.Pointer[roas.Archive], log *zerolog.Logger) *Server {
	if prefix == "" {
		prefix = "/"
	}
	s := &Server{archive: archive, router: chi.NewRouter(), log: log}

	s.router.Use(corsMiddleware)
	s.router.Route(prefix, func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/search", s.handleSearch)
		r.Get("/validate", s.handleValidate)
		r.Get("/metrics", s.handleMetrics)
	})
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type healthResponse struct {
	IPv4RoasCount int    `json:"ipv4_roas_count"`
	IPv6RoasCount int    `json:"ipv6_roas_count"`
	LatestDate    string `json:"latest_date"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	healthRequests.Inc()
	a := s.archive.Load()

	v4, v6 := a.Counts()
	latest, ok := a.LatestDate()
	resp := healthResponse{IPv4RoasCount: v4, IPv6RoasCount: v6}
	if ok {
		resp.LatestDate = dayToDateString(latest)
	}
	writeJSON(w, http.StatusOK, resp)
}

type searchDataEntry struct {
	Prefix     string      `json:"prefix"`
	MaxLen     uint8       `json:"max_len"`
	ASN        uint32      `json:"asn"`
	DateRanges [][2]string `json:"date_ranges"`
	Current    bool        `json:"current"`
}

type searchResponse struct {
	Count    int               `json:"count"`
	Error    string            `json:"error,omitempty"`
	Data     []searchDataEntry `json:"data"`
	Meta     searchMeta        `json:"meta"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

type searchMeta struct {
	LatestDate string `json:"latest_date"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	searchRequests.Inc()
	a := s.archive.Load()
	q := r.URL.Query()

	filter, page, pageSize, err := parseSearchQuery(q)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, searchResponse{Error: err.Error(), Data: []searchDataEntry{}})
		return
	}

	results := a.Search(filter)
	sort.Slice(results, func(i, j int) bool { return results[i].Prefix.String() < results[j].Prefix.String() })

	total := len(results)
	start := page * pageSize
	end := start + pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	paged := results[start:end]

	data := make([]searchDataEntry, 0, len(paged))
	for _, e := range paged {
		ranges := make([][2]string, 0, len(e.DateRanges))
		for _, dr := range e.DateRanges {
			ranges = append(ranges, [2]string{dr.Start, dr.End})
		}
		data = append(data, searchDataEntry{
			Prefix:     e.Prefix.String(),
			MaxLen:     e.MaxLen,
			ASN:        e.Origin,
			DateRanges: ranges,
			Current:    e.Current,
		})
	}

	meta := searchMeta{}
	if latest, ok := a.LatestDate(); ok {
		meta.LatestDate = dayToDateString(latest)
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Count:    total,
		Data:     data,
		Meta:     meta,
		Page:     page,
		PageSize: pageSize,
	})
}

type validateResponse struct {
	Verdict string `json:"verdict"`
	Error   string `json:"error,omitempty"`
}

// handleValidate exposes Archive.Validate, a point-in-time ROA check, as
// GET /validate?prefix=&asn=&date=. date defaults to the archive's
// latest_date when omitted.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	validateRequests.Inc()
	a := s.archive.Load()
	q := r.URL.Query()

	prefixStr := q.Get("prefix")
	asnStr := q.Get("asn")
	if prefixStr == "" || asnStr == "" {
		writeJSON(w, http.StatusBadRequest, validateResponse{Error: "prefix and asn are required"})
		return
	}

	p, err := netip.ParsePrefix(prefixStr)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, validateResponse{Error: err.Error()})
		return
	}
	n, err := strconv.ParseUint(asnStr, 10, 32)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, validateResponse{Error: err.Error()})
		return
	}

	dayTS, ok := a.LatestDate()
	if v := q.Get("date"); v != "" {
		dayTS, err = parseDateTS(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, validateResponse{Error: err.Error()})
			return
		}
		ok = true
	}
	if !ok {
		writeJSON(w, http.StatusOK, validateResponse{Verdict: roas.Unknown.String()})
		return
	}

	verdict := a.Validate(p.Masked(), uint32(n), dayTS)
	writeJSON(w, http.StatusOK, validateResponse{Verdict: verdict.String()})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics.WritePrometheus(w, true)
}

func parseSearchQuery(q map[string][]string) (roas.SearchFilter, int, int, error) {
	get := func(key string) (string, bool) {
		v, ok := q[key]
		if !ok || len(v) == 0 || v[0] == "" {
			return "", false
		}
		return v[0], true
	}

	var filter roas.SearchFilter

	if v, ok := get("prefix"); ok {
		p, err := netip.ParsePrefix(v)
		if err != nil {
			return filter, 0, 0, err
		}
		p = p.Masked()
		filter.Prefix = &p
	}
	if v, ok := get("asn"); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return filter, 0, 0, err
		}
		origin := uint32(n)
		filter.Origin = &origin
	}
	if v, ok := get("max_len"); ok {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return filter, 0, 0, err
		}
		maxLen := uint8(n)
		filter.MaxLen = &maxLen
	}
	if v, ok := get("current"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, 0, 0, err
		}
		filter.Current = &b
	} else if v, ok := get("date"); ok {
		d, err := parseDateTS(v)
		if err != nil {
			return filter, 0, 0, err
		}
		filter.Date = &d
	}

	page := 0
	if v, ok := get("page"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, 0, 0, err
		}
		if n < 0 {
			return filter, 0, 0, fmt.Errorf("page must be >= 0")
		}
		page = n
	}
	pageSize := defaultPageSize
	if v, ok := get("page_size"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, 0, 0, err
		}
		if n < 0 {
			return filter, 0, 0, fmt.Errorf("page_size must be >= 0")
		}
		pageSize = n
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	if pageSize == 0 {
		pageSize = defaultPageSize
	}
	return filter, page, pageSize, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
