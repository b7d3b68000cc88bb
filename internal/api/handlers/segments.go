package handlers

import (
	"context"
	"net/http"
	"route-segment-service/internal/api/dto"
	"route-segment-service/internal/services"
	"strings"
)

type SegmentResolver interface {
	Resolve(ctx context.Context, fromLocationID, toLocationID string) (services.Resolution, error)
}

type SegmentHandler struct {
	Segments SegmentResolver
}

// RoadDistance resolves one directed segment through the cache.
func (h *SegmentHandler) RoadDistance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from := strings.TrimSpace(q.Get("fromLocationId"))
	to := strings.TrimSpace(q.Get("toLocationId"))

	if from == "" || to == "" {
		writeError(w, r, http.StatusBadRequest, "fromLocationId and toLocationId are required")
		return
	}

	res, err := h.Segments.Resolve(r.Context(), from, to)
	if err != nil {
		writeDomainError(w, r, "road distance", err)
		return
	}

	writeJSON(w, r, http.StatusOK, dto.RoadDistanceResponse{
		FromLocationID:  from,
		ToLocationID:    to,
		DistanceKm:      res.DistanceKm,
		DurationMinutes: res.DurationMinutes,
		Cached:          res.Cached,
		Source:          string(res.Source),
		SegmentID:       res.SegmentID,
	})
}
