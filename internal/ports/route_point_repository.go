package ports

import (
	"context"
	"route-segment-service/internal/domain"
)

// Port: ordered route point listings and the fields this service owns.
type RoutePointRepository interface {
	// Return the ids of every route with at least one point at the location.
	RoutesReferencingLocation(ctx context.Context, locationID string) ([]string, error)

	// Return the route's points ordered by Order.
	OrderedRoutePoints(ctx context.Context, routeID string) ([]domain.RoutePoint, error)

	// Write the leg from the previous point. A nil duration leaves the stored
	// duration unchanged.
	UpdateSegment(ctx context.Context, pointID string, distanceKm float64, durationMinutes *int) error

	// Write cumulative distance, average speed and time offsets.
	SaveDerivedMetrics(ctx context.Context, points []domain.RoutePoint) error
}
