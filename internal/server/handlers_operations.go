package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/jobmatch/internal/bridge"
	"github.com/jonathan/jobmatch/internal/pipeline"
	"github.com/jonathan/jobmatch/internal/server/middleware"
	"github.com/jonathan/jobmatch/internal/types"
)

// heartbeatInterval keeps idle operation streams alive through proxies.
const heartbeatInterval = 15 * time.Second

// handleStartCrawl handles POST /crawl
func (s *Server) handleStartCrawl(w http.ResponseWriter, r *http.Request) {
	var req types.CrawlRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.failure(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.failure(w, r, &ErrValidation{Field: "crawl", Message: err.Error()})
		return
	}

	cfg := s.crawlDefaults
	cfg.SearchTerm = req.SearchTerm
	cfg.CVKey = req.CVKey
	cfg.SourceURL = req.SourceURL
	if req.MaxPages > 0 {
		cfg.MaxPages = req.MaxPages
	}
	if req.PageTimeoutSeconds > 0 {
		cfg.PageTimeout = time.Duration(req.PageTimeoutSeconds) * time.Second
	}
	if err := cfg.Validate(); err != nil {
		s.failure(w, r, err)
		return
	}

	id := s.runner.StartCrawl(cfg)
	s.accepted(w, r, id, pipeline.StepCrawl)
}

// handleStartLetters handles POST /letters
func (s *Server) handleStartLetters(w http.ResponseWriter, r *http.Request) {
	_, ids, ok := s.matchIDs(w, r)
	if !ok {
		return
	}
	id := s.runner.StartLetters(ids)
	s.accepted(w, r, id, pipeline.StepLetters)
}

// handleStartBridge handles POST /bridge
func (s *Server) handleStartBridge(w http.ResponseWriter, r *http.Request) {
	req, ids, ok := s.matchIDs(w, r)
	if !ok {
		return
	}
	id := s.runner.StartQueue(ids, bridge.Options{SkipDuplicates: req.SkipDuplicatesOrDefault()})
	s.accepted(w, r, id, pipeline.StepBridge)
}

// handleListOperations handles GET /operations
func (s *Server) handleListOperations(w http.ResponseWriter, _ *http.Request) {
	ops := s.board.List()
	s.jsonResponse(w, http.StatusOK, map[string]any{"items": ops, "total": len(ops)})
}

// handleGetOperation handles GET /operations/{id}
func (s *Server) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	op, err := s.board.Get(r.PathValue("id"))
	if err != nil {
		s.failure(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, op)
}

// handleStreamOperation handles GET /operations/{id}/stream, sending a
// progress event per update and a complete event when the operation ends.
func (s *Server) handleStreamOperation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	updates, cancel, err := s.board.Subscribe(id)
	if err != nil {
		s.failure(w, r, err)
		return
	}
	defer cancel()

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if err := sse.WriteComment("heartbeat"); err != nil {
				return
			}
		case op, open := <-updates:
			if !open {
				final, err := s.board.Get(id)
				if err != nil {
					sse.WriteError(err.Error())
					return
				}
				sse.WriteComplete(&final)
				return
			}
			if err := sse.WriteEvent("progress", op); err != nil {
				s.logger.Printf("[SERVER] Stream for operation %s closed: %v", id, err)
				return
			}
		}
	}
}

// matchIDs decodes and validates a MatchIDsRequest body.
func (s *Server) matchIDs(w http.ResponseWriter, r *http.Request) (*types.MatchIDsRequest, []uuid.UUID, bool) {
	var req types.MatchIDsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.failure(w, r, err)
		return nil, nil, false
	}
	if err := req.Validate(); err != nil {
		s.failure(w, r, &ErrValidation{Field: "job_match_ids", Message: err.Error()})
		return nil, nil, false
	}
	ids := make([]uuid.UUID, 0, len(req.JobMatchIDs))
	for _, raw := range req.JobMatchIDs {
		ids = append(ids, uuid.MustParse(raw))
	}
	return &req, ids, true
}

func (s *Server) accepted(w http.ResponseWriter, r *http.Request, id, kind string) {
	if subject, err := middleware.GetSubject(r); err == nil {
		s.logger.Printf("[SERVER] %s started %s operation %s", subject, kind, id)
	}
	s.jsonResponse(w, http.StatusAccepted, types.OperationAccepted{
		OperationID: id,
		Kind:        kind,
		StatusURL:   "/operations/" + id,
		StreamURL:   "/operations/" + id + "/stream",
	})
}
