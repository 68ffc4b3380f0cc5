package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"media-migrator/internal/database"
	"media-migrator/internal/logging"
	"media-migrator/internal/migration"
)

var log = logging.With("http")

// writeJSON encodes v as JSON and writes it to the response writer.
// Any encoding or write errors are logged since we typically cannot
// recover from them in an HTTP handler context.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONOK writes v with a 200 status.
func writeJSONOK(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, v)
}

// writeJSONError writes an error response as JSON with the given status code.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, map[string]string{"error": message})
}

// writeServiceError maps a control-surface error to an HTTP status.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	var fatal *migration.BatchFatalError
	switch {
	case errors.Is(err, migration.ErrInvalidRequest):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, database.ErrNotFound):
		writeJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, migration.ErrScanInProgress):
		writeJSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, migration.ErrScanDisabled):
		writeJSONError(w, err.Error(), http.StatusServiceUnavailable)
	case errors.As(err, &fatal):
		log.Error("%s: %v", op, err)
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
	default:
		log.Error("%s: %v", op, err)
		writeJSONError(w, op+" failed", http.StatusInternalServerError)
	}
}
