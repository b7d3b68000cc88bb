package dto

type RoadDistanceResponse struct {
	FromLocationID  string  `json:"from_location_id"`
	ToLocationID    string  `json:"to_location_id"`
	DistanceKm      float64 `json:"distance_km"`
	DurationMinutes *int    `json:"duration_minutes"`
	Cached          bool    `json:"cached"`
	Source          string  `json:"source"`
	SegmentID       string  `json:"segment_id,omitempty"`
}
