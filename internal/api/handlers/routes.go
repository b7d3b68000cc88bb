package handlers

import (
	"context"
	"net/http"
	"route-segment-service/internal/api/dto"
	"strings"
)

type DerivedMetricsRecomputer interface {
	Recompute(ctx context.Context, routeID string) (int, error)
}

type RouteHandler struct {
	Derived DerivedMetricsRecomputer
}

// RecomputeDerivedMetrics refreshes cumulative and offset fields of a route.
func (h *RouteHandler) RecomputeDerivedMetrics(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, r, http.StatusBadRequest, "route id is required")
		return
	}

	n, err := h.Derived.Recompute(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, "recompute derived metrics", err)
		return
	}

	writeJSON(w, r, http.StatusOK, dto.DerivedMetricsResponse{RouteID: id, UpdatedPointCount: n})
}
