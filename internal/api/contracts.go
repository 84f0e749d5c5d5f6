package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/re-ink/intake/internal/model"
	"github.com/re-ink/intake/internal/review"
	"github.com/re-ink/intake/internal/store"
)

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

type manualContractRequest struct {
	Contract         review.ContractDraft `json:"contract"`
	Parties          []review.PartyDraft  `json:"parties"`
	CreateNewParties bool                 `json:"create_new_parties"`
}

func (s *Server) handleCreateContract(w http.ResponseWriter, r *http.Request) {
	var req manualContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	res, err := s.engine.CreateManualContract(r.Context(), req.Contract, req.Parties, req.CreateNewParties)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleListContracts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ContractFilter{
		Status:       model.ContractStatus(q.Get("status")),
		ContractType: q.Get("contract_type"),
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

	contracts, err := s.records.ListContracts(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if contracts == nil {
		contracts = []model.Contract{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"contracts": contracts})
}

func (s *Server) handleGetContract(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid contract id")
		return
	}
	contract, err := s.records.GetContract(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contract)
}

func (s *Server) handleUpdateContract(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid contract id")
		return
	}
	var patch model.ContractPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	contract, err := s.engine.UpdateContract(r.Context(), id, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contract)
}

func (s *Server) handleDeleteContract(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid contract id")
		return
	}
	if err := s.engine.DeleteContract(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "contract deactivated"})
}

func (s *Server) handleLinkParty(w http.ResponseWriter, r *http.Request) {
	contractID, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid contract id")
		return
	}
	partyID, ok := pathID(r, "partyID")
	if !ok {
		badRequest(w, "invalid party id")
		return
	}
	if err := s.engine.LinkParty(r.Context(), contractID, partyID, r.URL.Query().Get("role")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "party linked"})
}

func (s *Server) handleUnlinkParty(w http.ResponseWriter, r *http.Request) {
	contractID, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid contract id")
		return
	}
	partyID, ok := pathID(r, "partyID")
	if !ok {
		badRequest(w, "invalid party id")
		return
	}
	if err := s.engine.UnlinkParty(r.Context(), contractID, partyID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "party unlinked"})
}
