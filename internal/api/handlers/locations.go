package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"route-segment-service/internal/api/dto"
	"route-segment-service/internal/services"
	"strings"
)

type CoordinateUpdater interface {
	UpdateCoordinates(ctx context.Context, locationID string, lat, lng float64) (services.CoordinateUpdate, error)
}

type LocationHandler struct {
	Updater CoordinateUpdater
}

// UpdateCoordinates persists new coordinates and reports the cascade it caused.
func (h *LocationHandler) UpdateCoordinates(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, r, http.StatusBadRequest, "location id is required")
		return
	}

	var req dto.UpdateCoordinatesRequest

	dec := json.NewDecoder(r.Body)
	defer r.Body.Close()
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeError(w, r, http.StatusBadRequest, "body must contain only one JSON object")
		return
	}
	if req.Lat == nil || req.Lng == nil {
		writeError(w, r, http.StatusBadRequest, "lat and lng are required")
		return
	}
	if *req.Lat < -90 || *req.Lat > 90 || *req.Lng < -180 || *req.Lng > 180 {
		writeError(w, r, http.StatusBadRequest, "lat must be within [-90, 90] and lng within [-180, 180]")
		return
	}

	out, err := h.Updater.UpdateCoordinates(r.Context(), id, *req.Lat, *req.Lng)
	if err != nil {
		writeDomainError(w, r, "update coordinates", err)
		return
	}

	res := dto.UpdateCoordinatesResponse{
		LocationID:    out.Location.ID,
		Lat:           out.Location.Lat,
		Lng:           out.Location.Lng,
		Changed:       out.Changed,
		DerivedPoints: out.DerivedPoints,
		DerivedErrors: out.DerivedErrors,
	}
	if c := out.Cascade; c != nil {
		res.Cascade = &dto.CascadeSummaryResponse{
			StaleMarked:       c.StaleMarked,
			RoutesScanned:     c.RoutesScanned,
			UpdatedPoints:     c.UpdatedPoints,
			SegmentsComputed:  c.SegmentsComputed,
			SegmentsFromCache: c.SegmentsFromCache,
			SegmentsFallback:  c.SegmentsFallback,
			Errors:            c.Errors,
			TouchedRouteIDs:   c.TouchedRouteIDs,
		}
	}

	writeJSON(w, r, http.StatusOK, res)
}
