package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/re-ink/intake/internal/model"
	"github.com/re-ink/intake/internal/upload"
)

// handleUpload accepts a multipart document, stores it and queues
// extraction. The caller polls the status endpoint with the job id.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	ref, err := s.uploads.Save(file, header.Filename)
	if err != nil {
		switch {
		case errors.Is(err, upload.ErrFileTooLarge):
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "file_too_large"})
		case errors.Is(err, upload.ErrBadExtension):
			badRequest(w, "file type not allowed")
		default:
			writeError(w, err)
		}
		return
	}

	job, err := s.orchestrator.Submit(r.Context(), header.Filename, ref)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":   job.ID,
		"filename": job.Filename,
		"status":   job.Status,
		"message":  job.Message,
	})
}

// handleSynthetic seeds a completed job without calling the extraction
// service. An optional job_id query parameter fixes the new job's id.
func (s *Server) handleSynthetic(w http.ResponseWriter, r *http.Request) {
	job, err := s.orchestrator.SeedSynthetic(r.Context(), r.URL.Query().Get("job_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.orchestrator.Status(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":     job.ID,
		"status":     job.Status,
		"message":    job.Message,
		"filename":   job.Filename,
		"created_at": job.CreatedAt,
		"updated_at": job.UpdatedAt,
	})
}

// handleJobResults returns the canonical extraction result once the job
// completed. Non-terminal jobs are a conflict, failed ones carry their
// message.
func (s *Server) handleJobResults(w http.ResponseWriter, r *http.Request) {
	job, err := s.orchestrator.Status(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, err)
		return
	}
	switch job.Status {
	case model.JobStatusCompleted:
		writeJSON(w, http.StatusOK, map[string]any{
			"job_id": job.ID,
			"result": job.Result,
		})
	case model.JobStatusFailed:
		writeJSON(w, http.StatusOK, map[string]any{
			"job_id": job.ID,
			"status": job.Status,
			"error":  job.Message,
		})
	default:
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":  "job_not_finished",
			"status": job.Status,
		})
	}
}

func (s *Server) handleRecentJobs(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			badRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	jobs, err := s.orchestrator.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if jobs == nil {
		jobs = []model.ExtractionJob{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}
