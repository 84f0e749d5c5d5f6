package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/re-ink/intake/internal/model"
	"github.com/re-ink/intake/internal/review"
	"github.com/re-ink/intake/internal/store"
)

func (s *Server) handleCreateParty(w http.ResponseWriter, r *http.Request) {
	var draft review.PartyDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	party, err := s.engine.CreateParty(r.Context(), draft)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, party)
}

func (s *Server) handleListParties(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.PartyFilter{
		PartyType: model.PartyType(q.Get("party_type")),
	}
	if v := q.Get("is_active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(w, "is_active must be a boolean")
			return
		}
		filter.IsActive = &active
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			badRequest(w, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(w, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	parties, err := s.records.ListParties(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if parties == nil {
		parties = []model.Party{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"parties": parties})
}

func (s *Server) handleSearchParties(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		badRequest(w, "name query parameter is required")
		return
	}
	parties, err := s.records.SearchPartiesByName(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	if parties == nil {
		parties = []model.Party{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"parties": parties})
}

func (s *Server) handleGetParty(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid party id")
		return
	}
	party, err := s.records.GetParty(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, party)
}

func (s *Server) handleUpdateParty(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid party id")
		return
	}
	var patch model.PartyPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	party, err := s.engine.UpdateParty(r.Context(), id, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, party)
}

func (s *Server) handleDeleteParty(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid party id")
		return
	}
	if err := s.engine.DeleteParty(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "party deactivated"})
}
