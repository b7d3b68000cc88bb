package ports

import (
	"context"
	"route-segment-service/internal/domain"
)

// Distance and travel duration between two coordinates.
// DurationMinutes is nil when only a geometric estimate is available.
type RouteEstimate struct {
	DistanceKm      float64
	DurationMinutes *int
	Source          domain.SegmentSource
}

// Contract for an external routing provider. Any error means the provider
// could not answer; callers decide how to degrade.
type RouteProvider interface {
	Route(ctx context.Context, from, to domain.Coordinates) (RouteEstimate, error)
}

// Contract for a resolver that always produces an estimate for valid input.
// It only fails for non-finite coordinates.
type DistanceResolver interface {
	Resolve(ctx context.Context, from, to domain.Coordinates) (RouteEstimate, error)
}
