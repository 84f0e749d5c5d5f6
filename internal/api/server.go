// Package api exposes the intake pipeline over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/re-ink/intake/internal/extract"
	"github.com/re-ink/intake/internal/review"
	"github.com/re-ink/intake/internal/store"
	"github.com/re-ink/intake/internal/upload"
	"github.com/re-ink/intake/pkg/advisor"
)

// Server wires handlers to the pipeline components.
type Server struct {
	orchestrator *extract.Orchestrator
	engine       *review.Engine
	records      store.RecordStore
	uploads      upload.Storage
	advisor      advisor.Advisor
}

func NewServer(orch *extract.Orchestrator, engine *review.Engine, records store.RecordStore, uploads upload.Storage, adv advisor.Advisor) *Server {
	return &Server{
		orchestrator: orch,
		engine:       engine,
		records:      records,
		uploads:      uploads,
		advisor:      adv,
	}
}

// Router builds the chi router with all API routes mounted.
func (s *Server) Router(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/documents", func(r chi.Router) {
			r.Post("/upload", s.handleUpload)
			r.Post("/synthetic", s.handleSynthetic)
			r.Get("/recent", s.handleRecentJobs)
			r.Get("/status/{jobID}", s.handleJobStatus)
			r.Get("/results/{jobID}", s.handleJobResults)
		})

		r.Route("/review", func(r chi.Router) {
			r.Post("/approve", s.handleApprove)
			r.Post("/reject/{jobID}", s.handleReject)
		})

		r.Route("/contracts", func(r chi.Router) {
			r.Post("/", s.handleCreateContract)
			r.Get("/", s.handleListContracts)
			r.Get("/{id}", s.handleGetContract)
			r.Put("/{id}", s.handleUpdateContract)
			r.Delete("/{id}", s.handleDeleteContract)
			r.Post("/{id}/parties/{partyID}", s.handleLinkParty)
			r.Delete("/{id}/parties/{partyID}", s.handleUnlinkParty)
		})

		r.Route("/parties", func(r chi.Router) {
			r.Post("/", s.handleCreateParty)
			r.Get("/", s.handleListParties)
			r.Get("/search", s.handleSearchParties)
			r.Get("/{id}", s.handleGetParty)
			r.Put("/{id}", s.handleUpdateParty)
			r.Delete("/{id}", s.handleDeleteParty)
		})

		r.Post("/advisor/review", s.handleAdvisorReview)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
