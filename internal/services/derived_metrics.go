package services

import (
	"context"
	"fmt"
	"route-segment-service/internal/domain"
	"route-segment-service/internal/platform/obs"
	"route-segment-service/internal/ports"
)

// ComputeDerivedMetrics fills cumulative distance, average speed and time
// offsets in one front-to-back walk. points must be ordered; the input is not
// modified.
func ComputeDerivedMetrics(points []domain.RoutePoint) []domain.RoutePoint {
	out := make([]domain.RoutePoint, len(points))
	copy(out, points)

	var cumulative float64
	var departure int

	for i := range out {
		p := &out[i]
		stop := intOr(p.StopDurationMinutes, 0)

		if i == 0 {
			cumulative = 0
			departure = stop
			p.CumulativeDistanceKm = float64Ptr(0)
			p.AverageSpeedKmH = nil
			p.ArrivalOffsetMinutes = intPtr(0)
			p.DepartureOffsetMinutes = intPtr(departure)
			continue
		}

		km := floatOr(p.SegmentDistanceKm, 0)
		minutes := intOr(p.SegmentDurationMinutes, 0)

		cumulative = domain.RoundTo(cumulative+km, 2)
		arrival := departure + minutes
		departure = arrival + stop

		p.CumulativeDistanceKm = float64Ptr(cumulative)
		p.ArrivalOffsetMinutes = intPtr(arrival)
		p.DepartureOffsetMinutes = intPtr(departure)

		p.AverageSpeedKmH = nil
		if km > 0 && minutes > 0 {
			p.AverageSpeedKmH = float64Ptr(domain.RoundTo(km/(float64(minutes)/60), 1))
		}
	}

	return out
}

// DerivedMetricsPass recomputes and stores the derived fields of a route.
type DerivedMetricsPass struct {
	points ports.RoutePointRepository
}

func NewDerivedMetricsPass(points ports.RoutePointRepository) *DerivedMetricsPass {
	return &DerivedMetricsPass{points: points}
}

// Recompute returns the number of points written.
func (d *DerivedMetricsPass) Recompute(ctx context.Context, routeID string) (_ int, err error) {
	defer obs.Time(ctx, "derived.Recompute")(&err)

	points, err := d.points.OrderedRoutePoints(ctx, routeID)
	if err != nil {
		return 0, fmt.Errorf("recompute derived metrics route=%q: load points: %w", routeID, err)
	}

	if len(points) == 0 {
		return 0, nil
	}

	updated := ComputeDerivedMetrics(points)
	if err := d.points.SaveDerivedMetrics(ctx, updated); err != nil {
		return 0, fmt.Errorf("recompute derived metrics route=%q: %w", routeID, err)
	}

	return len(updated), nil
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func intPtr(v int) *int { return &v }

func float64Ptr(v float64) *float64 { return &v }
