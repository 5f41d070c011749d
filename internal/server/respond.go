package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"pin-clipboard/internal/clipboard"
	"pin-clipboard/internal/logging"
)

type errorResp struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResp{Error: msg})
}

// writeError maps a clipboard error to a status code. Internal details of
// 5xx errors are logged, never returned.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, msg := http.StatusInternalServerError, "Internal server error"
	var ve *clipboard.ValidationError
	switch {
	case errors.As(err, &ve):
		status, msg = http.StatusBadRequest, ve.Error()
	case errors.Is(err, clipboard.ErrNotFound):
		status, msg = http.StatusNotFound, "Content not found or expired"
	case errors.Is(err, clipboard.ErrAllocationExhausted), errors.Is(err, clipboard.ErrDuplicatePin):
		status, msg = http.StatusServiceUnavailable, "No PIN available. Please try again."
	case errors.Is(err, clipboard.ErrAttachmentFailed):
		status, msg = http.StatusBadGateway, "Could not store attachments"
	}

	if status >= http.StatusInternalServerError {
		logging.Error(op+"_failed", map[string]interface{}{
			"request_id": RequestIDFromContext(r.Context()),
			"status":     status,
		}, err)
	}
	writeJSONError(w, status, msg)
}
