package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/re-ink/intake/internal/review"
	"github.com/re-ink/intake/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("response encoding failed", zap.Error(err))
	}
}

// writeError maps domain errors onto the API contract. Validation and
// duplicate conflicts are user-actionable and returned in full;
// anything unexpected becomes an opaque 500.
func writeError(w http.ResponseWriter, err error) {
	var ve *review.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":      "validation_failed",
			"violations": ve.Violations,
		})
		return
	}

	var dup *store.DuplicateError
	if errors.As(err, &dup) {
		body := map[string]any{}
		switch dup.Kind {
		case "party":
			body["error"] = "duplicate_party"
			body["registration_number"] = dup.Key
			body["existing_party_id"] = dup.ExistingID
		default:
			body["error"] = "duplicate_contract"
			body["contract_number"] = dup.Key
			body["existing_contract_id"] = dup.ExistingID
		}
		writeJSON(w, http.StatusConflict, body)
		return
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
	case errors.Is(err, store.ErrJobTerminal):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "job_already_settled"})
	default:
		zap.L().Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error"})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}
