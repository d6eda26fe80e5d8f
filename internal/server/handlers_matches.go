package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/jobmatch/internal/db"
	"github.com/jonathan/jobmatch/internal/emailgate"
	"github.com/jonathan/jobmatch/internal/lifecycle"
	"github.com/jonathan/jobmatch/internal/types"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// handleListMatches handles GET /matches
func (s *Server) handleListMatches(w http.ResponseWriter, r *http.Request) {
	filters, err := parseMatchFilters(r)
	if err != nil {
		s.failure(w, r, err)
		return
	}

	matches, total, err := s.matches.QueryMatches(r.Context(), filters)
	if err != nil {
		s.failure(w, r, err)
		return
	}
	if matches == nil {
		matches = []db.JobMatch{}
	}
	s.jsonResponse(w, http.StatusOK, types.ListResponse[db.JobMatch]{
		Items:  matches,
		Total:  total,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	})
}

// handleGetMatch handles GET /matches/{id}
func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.failure(w, r, err)
		return
	}
	m, err := s.matches.GetJobMatch(r.Context(), id)
	if err != nil {
		s.failure(w, r, err)
		return
	}
	if m == nil {
		s.failure(w, r, &ErrNotFound{Resource: "job match", ID: id.String()})
		return
	}
	s.jsonResponse(w, http.StatusOK, m)
}

// handleGetStatus handles GET /matches/{id}/status
func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.failure(w, r, err)
		return
	}
	rec, err := s.lifecycle.Get(r.Context(), id)
	if err != nil {
		s.failure(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, rec)
}

// handleSetStatus handles PUT /matches/{id}/status
func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.failure(w, r, err)
		return
	}
	var req types.StatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.failure(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.failure(w, r, &ErrValidation{Field: "status", Message: err.Error()})
		return
	}
	status, err := lifecycle.ParseStatus(req.Status)
	if err != nil {
		s.failure(w, r, err)
		return
	}

	ok, err := s.lifecycle.SetStatus(r.Context(), id, status, req.Notes)
	if err != nil {
		s.failure(w, r, err)
		return
	}
	if !ok {
		s.failure(w, r, &ErrNotFound{Resource: "job match", ID: id.String()})
		return
	}
	rec, err := s.lifecycle.Get(r.Context(), id)
	if err != nil {
		s.failure(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, rec)
}

// handleAddNote handles POST /matches/{id}/notes
func (s *Server) handleAddNote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.failure(w, r, err)
		return
	}
	var req types.NoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.failure(w, r, err)
		return
	}
	if strings.TrimSpace(req.Note) == "" {
		s.failure(w, r, &ErrValidation{Field: "note", Message: "is required"})
		return
	}
	if err := req.Validate(); err != nil {
		s.failure(w, r, &ErrValidation{Field: "note", Message: err.Error()})
		return
	}

	ok, err := s.lifecycle.AddNote(r.Context(), id, req.Note)
	if err != nil {
		s.failure(w, r, err)
		return
	}
	if !ok {
		s.failure(w, r, &ErrNotFound{Resource: "job match", ID: id.String()})
		return
	}
	rec, err := s.lifecycle.Get(r.Context(), id)
	if err != nil {
		s.failure(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, rec)
}

// handlePipelineStats handles GET /stats?cv_key=
func (s *Server) handlePipelineStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.lifecycle.PipelineStats(r.Context(), r.URL.Query().Get("cv_key"))
	if err != nil {
		s.failure(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, stats)
}

// handleScrapeStats handles GET /stats/scrape?search_term=
func (s *Server) handleScrapeStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.matches.ScrapeStats(r.Context(), r.URL.Query().Get("search_term"))
	if err != nil {
		s.failure(w, r, err)
		return
	}
	if stats == nil {
		stats = []db.ScrapeStats{}
	}
	s.jsonResponse(w, http.StatusOK, types.ListResponse[db.ScrapeStats]{Items: stats, Total: len(stats)})
}

// handleListStale handles GET /stale
func (s *Server) handleListStale(w http.ResponseWriter, r *http.Request) {
	stale, err := s.lifecycle.ListStale(r.Context())
	if err != nil {
		s.failure(w, r, err)
		return
	}
	if stale == nil {
		stale = []db.StaleApplication{}
	}
	s.jsonResponse(w, http.StatusOK, types.ListResponse[db.StaleApplication]{Items: stale, Total: len(stale)})
}

// handleEmailCheck handles POST /email/check
func (s *Server) handleEmailCheck(w http.ResponseWriter, r *http.Request) {
	var req types.EmailCheckRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.failure(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.failure(w, r, &ErrValidation{Field: "emails", Message: err.Error()})
		return
	}
	s.jsonResponse(w, http.StatusOK, emailgate.AssessBatch(req.Emails))
}

func pathID(r *http.Request) (uuid.UUID, error) {
	raw := r.PathValue("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, &ErrValidation{Field: "id", Message: "must be a UUID"}
	}
	return id, nil
}

// parseMatchFilters reads the GET /matches query. Dates accept RFC 3339 or
// YYYY-MM-DD; a bare "to" date covers the whole day.
func parseMatchFilters(r *http.Request) (db.MatchFilters, error) {
	q := r.URL.Query()
	f := db.MatchFilters{
		SearchTerm: strings.TrimSpace(q.Get("search_term")),
		CVKey:      strings.TrimSpace(q.Get("cv_key")),
		Location:   strings.TrimSpace(q.Get("location")),
		Limit:      defaultListLimit,
	}

	if v := q.Get("min_score"); v != "" {
		score, err := strconv.ParseFloat(v, 64)
		if err != nil || score < 0 || score > 10 {
			return f, &ErrValidation{Field: "min_score", Message: "must be a number between 0 and 10"}
		}
		f.MinScore = &score
	}
	if v := q.Get("from"); v != "" {
		t, _, err := parseDate(v)
		if err != nil {
			return f, &ErrValidation{Field: "from", Message: err.Error()}
		}
		f.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, dateOnly, err := parseDate(v)
		if err != nil {
			return f, &ErrValidation{Field: "to", Message: err.Error()}
		}
		if dateOnly {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		f.To = &t
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return f, &ErrValidation{Field: "to", Message: "must not be before from"}
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, &ErrValidation{Field: "limit", Message: "must be a positive integer"}
		}
		f.Limit = min(n, maxListLimit)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, &ErrValidation{Field: "offset", Message: "must be a non-negative integer"}
		}
		f.Offset = n
	}
	return f, nil
}

func parseDate(v string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, false, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}
