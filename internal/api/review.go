package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/re-ink/intake/internal/review"
)

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req review.ApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	res, err := s.engine.Approve(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	if err := s.engine.Reject(r.Context(), chi.URLParam(r, "jobID"), body.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "extraction rejected"})
}

func (s *Server) handleAdvisorReview(w http.ResponseWriter, r *http.Request) {
	var body struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.JobID == "" {
		badRequest(w, "job_id is required")
		return
	}

	job, err := s.orchestrator.Status(r.Context(), body.JobID)
	if err != nil {
		writeError(w, err)
		return
	}

	ann, err := s.advisor.Review(r.Context(), job.Result)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ann)
}
