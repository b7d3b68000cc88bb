package dto

type UpdateCoordinatesRequest struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

type CascadeSummaryResponse struct {
	StaleMarked       int      `json:"stale_marked"`
	RoutesScanned     int      `json:"routes_scanned"`
	UpdatedPoints     int      `json:"updated_points"`
	SegmentsComputed  int      `json:"segments_computed"`
	SegmentsFromCache int      `json:"segments_from_cache"`
	SegmentsFallback  int      `json:"segments_fallback"`
	Errors            int      `json:"errors"`
	TouchedRouteIDs   []string `json:"touched_route_ids"`
}

type UpdateCoordinatesResponse struct {
	LocationID    string                  `json:"location_id"`
	Lat           *float64                `json:"lat"`
	Lng           *float64                `json:"lng"`
	Changed       bool                    `json:"changed"`
	Cascade       *CascadeSummaryResponse `json:"cascade,omitempty"`
	DerivedPoints int                     `json:"derived_points"`
	DerivedErrors int                     `json:"derived_errors"`
}

type DerivedMetricsResponse struct {
	RouteID           string `json:"route_id"`
	UpdatedPointCount int    `json:"updated_point_count"`
}
