package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"BucketCatalog/internal/domain"
	"BucketCatalog/internal/validate"
)

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, errCode, details string) {
	writeJSON(w, code, errorBody{Error: errCode, Details: details})
}

// fail maps an error onto its stable code and status.
func (h *handler) fail(w http.ResponseWriter, err error) {
	var verr *validate.Error
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Code, verr.Message)
	case errors.Is(err, domain.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, "fetch_already_running", err.Error())
	case errors.Is(err, domain.ErrRunActive):
		writeError(w, http.StatusConflict, "fetch_running", "Cannot delete running fetch")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrStoreCreation):
		h.logger.Error("fetch failed to start", "error", err)
		writeError(w, http.StatusInternalServerError, "fetch_failed", err.Error())
	case errors.Is(err, domain.ErrManifestFetch):
		writeError(w, http.StatusBadGateway, "manifest_fetch_failed", err.Error())
	case errors.Is(err, domain.ErrManifestParse):
		writeError(w, http.StatusBadRequest, "manifest_parse_failed", err.Error())
	default:
		h.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
