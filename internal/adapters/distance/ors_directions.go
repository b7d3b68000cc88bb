package distance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"route-segment-service/internal/domain"
	"route-segment-service/internal/ports"
)

type directionsRequest struct {
	Coordinates [][]float64 `json:"coordinates"`
	Radiuses    []float64   `json:"radiuses"`
}

type directionsResponse struct {
	Features []struct {
		Properties struct {
			Segments []struct {
				Distance *float64 `json:"distance"`
				Duration *float64 `json:"duration"`
			} `json:"segments"`
		} `json:"properties"`
	} `json:"features"`
}

type attemptResult struct {
	kind     outcomeKind
	estimate ports.RouteEstimate
	err      error
}

// fetchRoute performs a single directions call bounded by the provider timeout.
func (o *ORSRouteProvider) fetchRoute(
	ctx context.Context,
	from domain.Coordinates,
	to domain.Coordinates,
	radius float64,
) attemptResult {
	endpoint := fmt.Sprintf("%s/v2/directions/%s/geojson", o.baseURL, o.profile)

	payload, err := json.Marshal(directionsRequest{
		Coordinates: [][]float64{from.CoordsToList(), to.CoordsToList()},
		Radiuses:    []float64{radius, radius},
	})
	if err != nil {
		return attemptResult{kind: outcomeFatal, err: fmt.Errorf("marshal directions request: %w", err)}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	req, err := o.newRequest(attemptCtx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return attemptResult{kind: outcomeFatal, err: err}
	}

	resp, err := o.do(req)
	if err != nil {
		return attemptResult{kind: classify(ctx, err), err: fmt.Errorf("directions request: %w", err)}
	}
	defer resp.Body.Close()

	var dr directionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return attemptResult{kind: classify(ctx, err), err: fmt.Errorf("decode directions response: %w", err)}
	}

	if len(dr.Features) == 0 || len(dr.Features[0].Properties.Segments) == 0 {
		return attemptResult{kind: outcomeFatal, err: errors.New("directions response has no route segment")}
	}

	seg := dr.Features[0].Properties.Segments[0]
	if seg.Distance == nil || math.IsNaN(*seg.Distance) || math.IsInf(*seg.Distance, 0) {
		return attemptResult{kind: outcomeFatal, err: errors.New("directions response has no distance")}
	}

	estimate := ports.RouteEstimate{
		DistanceKm: domain.RoundTo(*seg.Distance/1000, 2),
		Source:     domain.SourceProvider,
	}
	if seg.Duration != nil {
		minutes := int(math.Max(0, math.Round(*seg.Duration/60)))
		estimate.DurationMinutes = &minutes
	}

	return attemptResult{kind: outcomeSuccess, estimate: estimate}
}
