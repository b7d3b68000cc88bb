package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"route-segment-service/internal/domain"
	"route-segment-service/internal/platform/logger"
	"route-segment-service/internal/services"
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.GetLogger("http").Warnw("encode failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, map[string]string{"error": msg})
}

// writeDomainError maps service errors onto HTTP statuses. Hard resolution
// failures are reported as server errors the client may retry.
func writeDomainError(w http.ResponseWriter, r *http.Request, op string, err error) {
	log := logger.GetLogger("http")

	switch {
	case errors.Is(err, domain.ErrLocationNotFound):
		writeError(w, r, http.StatusNotFound, "location not found")
	case services.IsRetryable(err):
		w.Header().Set("Retry-After", "2")
		writeError(w, r, http.StatusServiceUnavailable, "segment is being resolved elsewhere, retry later")
	case errors.Is(err, domain.ErrInvalidCoordinates):
		log.Errorw(op+" failed", "err", err)
		writeError(w, r, http.StatusInternalServerError, "location has no valid coordinates")
	default:
		log.Errorw(op+" failed", "err", err)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}
