package server

import (
	"net/http"
	"strconv"

	"github.com/hazyhaar/cjenik/dates"
	"github.com/hazyhaar/cjenik/query"
)

// handleSearch serves GET /v1/search?date=&q=&city=.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	qp := r.URL.Query()

	date := qp.Get("date")
	if date == "" {
		date = dates.Today()
	} else if !dates.Valid(date) {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid date, want YYYY-MM-DD"})
		return
	}

	res, err := s.queries.Search(r.Context(), date, qp.Get("q"), qp.Get("city"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// handleHistory serves GET /v1/history?barcode=&name=&city=&chain=&days=.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	qp := r.URL.Query()

	days := 7
	if d := qp.Get("days"); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil || n < 0 {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid days"})
			return
		}
		days = n
	}

	entries, err := s.queries.History(r.Context(), query.HistoryRequest{
		Barcode: qp.Get("barcode"),
		Name:    qp.Get("name"),
		City:    qp.Get("city"),
		Chain:   qp.Get("chain"),
		Days:    days,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

// handleCities serves GET /v1/cities.
func (s *Server) handleCities(w http.ResponseWriter, r *http.Request) {
	cities, err := s.queries.Cities(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"cities": cities})
}

// handleStatus serves GET /v1/status — the ingestion log.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ingestions, err := s.catalog.ListIngestions(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ingestions": ingestions})
}

// handleHealth serves GET /v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	latest, err := s.catalog.LatestIngestedDate(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"latest_date": latest,
	})
}
