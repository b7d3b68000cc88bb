package ports

import (
	"context"
	"route-segment-service/internal/domain"
)

// Port: read/write access to location coordinates.
type LocationRepository interface {
	// Return the location, or nil when it does not exist.
	GetLocation(ctx context.Context, id string) (*domain.Location, error)

	// Return the locations found among ids, keyed by id.
	GetLocations(ctx context.Context, ids []string) (map[string]domain.Location, error)

	// Persist new coordinates and return the stored location.
	UpdateCoordinates(ctx context.Context, id string, lat, lng float64) (*domain.Location, error)
}
