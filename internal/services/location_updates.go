package services

import (
	"context"
	"fmt"
	"math"
	"route-segment-service/internal/domain"
	"route-segment-service/internal/platform/logger"
	"route-segment-service/internal/ports"

	"go.uber.org/zap"
)

// CoordinateUpdate describes what a coordinate edit caused.
type CoordinateUpdate struct {
	Location      domain.Location
	Changed       bool
	Cascade       *CascadeSummary
	DerivedPoints int
	DerivedErrors int
}

// LocationUpdater persists coordinate edits and, when a location actually
// moved, runs the cascade and refreshes derived metrics on touched routes.
type LocationUpdater struct {
	locations ports.LocationRepository
	cascade   *InvalidationCascade
	derived   *DerivedMetricsPass
	epsilon   float64
	log       *zap.SugaredLogger
}

func NewLocationUpdater(
	locations ports.LocationRepository,
	cascade *InvalidationCascade,
	derived *DerivedMetricsPass,
	epsilon float64,
) *LocationUpdater {
	if epsilon <= 0 {
		epsilon = 1e-6
	}

	return &LocationUpdater{
		locations: locations,
		cascade:   cascade,
		derived:   derived,
		epsilon:   epsilon,
		log:       logger.GetLogger("locations"),
	}
}

func (u *LocationUpdater) UpdateCoordinates(ctx context.Context, locationID string, lat, lng float64) (CoordinateUpdate, error) {
	if !validLatLng(lat, lng) {
		return CoordinateUpdate{}, fmt.Errorf("update coordinates id=%q: %w", locationID, domain.ErrInvalidCoordinates)
	}

	before, err := u.locations.GetLocation(ctx, locationID)
	if err != nil {
		return CoordinateUpdate{}, fmt.Errorf("update coordinates id=%q: %w", locationID, err)
	}
	if before == nil {
		return CoordinateUpdate{}, fmt.Errorf("update coordinates id=%q: %w", locationID, domain.ErrLocationNotFound)
	}

	after, err := u.locations.UpdateCoordinates(ctx, locationID, lat, lng)
	if err != nil {
		return CoordinateUpdate{}, fmt.Errorf("update coordinates id=%q: %w", locationID, err)
	}

	out := CoordinateUpdate{Location: *after}
	if !domain.CoordinatesChanged(*before, *after, u.epsilon) {
		return out, nil
	}
	out.Changed = true

	summary, err := u.cascade.OnLocationCoordinatesChanged(ctx, locationID)
	if err != nil {
		return out, fmt.Errorf("update coordinates id=%q: %w", locationID, err)
	}
	out.Cascade = &summary

	for _, routeID := range summary.TouchedRouteIDs {
		n, err := u.derived.Recompute(ctx, routeID)
		if err != nil {
			u.log.Warnw("derived metrics refresh failed", "route", routeID, "err", err)
			out.DerivedErrors++
			continue
		}
		out.DerivedPoints += n
	}

	return out, nil
}

func validLatLng(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
