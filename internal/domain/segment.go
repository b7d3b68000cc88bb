package domain

import (
	"strconv"
	"time"
)

// Where a segment distance came from.
type SegmentSource string

const (
	SourceProvider SegmentSource = "provider"
	SourceFallback SegmentSource = "fallback"

	// Resolution-only sources; never persisted.
	SourceCache   SegmentSource = "db"
	SourceTrivial SegmentSource = "cached-trivial"
)

// Represents a memoized directed road segment between two locations.
// A->B and B->A are distinct entries. Stale entries are kept as the last
// known value but are never served as cache hits.
type RoadSegment struct {
	SegmentID       string
	FromLocationID  string
	ToLocationID    string
	DistanceKm      float64
	DurationMinutes *int
	Source          SegmentSource
	Stale           bool
	UpdatedAt       time.Time
}

// Key identifies the ordered pair; it is also the lock and single-flight key.
func (s RoadSegment) Key() string { return SegmentKey(s.FromLocationID, s.ToLocationID) }

// SegmentKey quotes each id so that ids containing the separator cannot
// collide with another pair.
func SegmentKey(fromLocationID, toLocationID string) string {
	return strconv.Quote(fromLocationID) + "|" + strconv.Quote(toLocationID)
}
