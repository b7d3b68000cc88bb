package domain

// Represents one stop of an ordered route.
// Segment fields describe the leg from the previous point to this one and are
// filled by segment resolution; derived fields are filled by the derived
// metrics pass.
type RoutePoint struct {
	ID         string
	RouteID    string
	Order      int
	LocationID string

	SegmentDistanceKm      *float64
	SegmentDurationMinutes *int
	StopDurationMinutes    *int

	CumulativeDistanceKm   *float64
	AverageSpeedKmH        *float64
	ArrivalOffsetMinutes   *int
	DepartureOffsetMinutes *int
}
