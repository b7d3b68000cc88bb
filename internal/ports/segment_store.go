package ports

import (
	"context"
	"route-segment-service/internal/domain"
)

// Port: the (from, to)-keyed road segment cache table.
type SegmentStore interface {
	// Return the entry for the ordered pair, or nil when absent.
	GetSegment(ctx context.Context, fromLocationID, toLocationID string) (*domain.RoadSegment, error)

	// Insert or update the entry for the ordered pair. Must be a true
	// upsert-on-conflict; the existing segment id is preserved.
	UpsertSegment(ctx context.Context, seg domain.RoadSegment) (*domain.RoadSegment, error)

	// Like UpsertSegment, but an existing row is only overwritten while its
	// updated_at and stale flag still match seen. A nil seen only inserts.
	// Returns domain.ErrSegmentChanged when the row moved on.
	UpsertSegmentIfUnchanged(ctx context.Context, seg domain.RoadSegment, seen *domain.RoadSegment) (*domain.RoadSegment, error)

	// Flag every entry with the location at either end as stale.
	MarkStaleByLocation(ctx context.Context, locationID string) (int, error)
}
