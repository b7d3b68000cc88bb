package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"route-segment-service/internal/domain"
	"strings"

	"github.com/google/uuid"
)

type LocationSeed struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Lat  *float64 `json:"lat"`
	Lng  *float64 `json:"lng"`
}

type RoutePointSeed struct {
	LocationID          string   `json:"location_id"`
	SegmentDistanceKm   *float64 `json:"segment_distance_km,omitempty"`
	SegmentDurationMins *int     `json:"segment_duration_minutes,omitempty"`
	StopDurationMinutes *int     `json:"stop_duration_minutes,omitempty"`
}

type RouteSeed struct {
	ID     string           `json:"id"`
	Points []RoutePointSeed `json:"points"`
}

type Seed struct {
	Locations []LocationSeed `json:"locations"`
	Routes    []RouteSeed    `json:"routes"`
}

// Read and validate a seed file.
func LoadSeed(jsonPath string) (*Seed, error) {
	bytes, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("load seed: read %q: %w", jsonPath, err)
	}

	var data Seed
	if err := json.Unmarshal(bytes, &data); err != nil {
		return nil, fmt.Errorf("load seed: parse json: %w", err)
	}

	known := make(map[string]struct{}, len(data.Locations))
	for i, loc := range data.Locations {
		id := strings.TrimSpace(loc.ID)
		if id == "" {
			return nil, fmt.Errorf("load seed: location at index %d: id cannot be empty", i+1)
		}
		data.Locations[i].ID = id
		known[id] = struct{}{}
	}

	for i, r := range data.Routes {
		if strings.TrimSpace(r.ID) == "" {
			return nil, fmt.Errorf("load seed: route at index %d: id cannot be empty", i+1)
		}
		for j, p := range r.Points {
			if _, ok := known[p.LocationID]; !ok {
				return nil, fmt.Errorf("load seed: route %q point %d: unknown location %q", r.ID, j+1, p.LocationID)
			}
		}
	}

	return &data, nil
}

// Domain views of the seed, for stores that are not SQL backed.
func (s *Seed) DomainLocations() []domain.Location {
	out := make([]domain.Location, 0, len(s.Locations))
	for _, l := range s.Locations {
		out = append(out, domain.Location{ID: l.ID, Lat: l.Lat, Lng: l.Lng})
	}
	return out
}

func (s *Seed) DomainRoutePoints() []domain.RoutePoint {
	out := make([]domain.RoutePoint, 0)
	for _, r := range s.Routes {
		for i, p := range r.Points {
			out = append(out, domain.RoutePoint{
				ID:                     uuid.NewString(),
				RouteID:                r.ID,
				Order:                  i + 1,
				LocationID:             p.LocationID,
				SegmentDistanceKm:      p.SegmentDistanceKm,
				SegmentDurationMinutes: p.SegmentDurationMins,
				StopDurationMinutes:    p.StopDurationMinutes,
			})
		}
	}
	return out
}

// Populate the database with locations and routes from a JSON file.
func SeedFromJSON(ctx context.Context, db *sql.DB, jsonPath string) error {
	data, err := LoadSeed(jsonPath)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	locStmt, err := tx.PrepareContext(ctx, `
	INSERT INTO locations (id, name, lat, lng)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (id) DO UPDATE
	SET name = EXCLUDED.name, lat = EXCLUDED.lat, lng = EXCLUDED.lng, updated_at = now();
	`)
	if err != nil {
		return fmt.Errorf("seed: prepare location insert: %w", err)
	}
	defer locStmt.Close()

	for _, l := range data.Locations {
		if _, err := locStmt.ExecContext(ctx, l.ID, l.Name, nullFloat(l.Lat), nullFloat(l.Lng)); err != nil {
			return fmt.Errorf("seed: insert location id=%q: %w", l.ID, err)
		}
	}

	pointStmt, err := tx.PrepareContext(ctx, `
	INSERT INTO route_points (
		id, route_id, point_order, location_id,
		segment_distance_km, segment_duration_minutes, stop_duration_minutes
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (route_id, point_order) DO UPDATE
	SET location_id = EXCLUDED.location_id,
		segment_distance_km = EXCLUDED.segment_distance_km,
		segment_duration_minutes = EXCLUDED.segment_duration_minutes,
		stop_duration_minutes = EXCLUDED.stop_duration_minutes;
	`)
	if err != nil {
		return fmt.Errorf("seed: prepare route point insert: %w", err)
	}
	defer pointStmt.Close()

	for _, p := range data.DomainRoutePoints() {
		if _, err := pointStmt.ExecContext(ctx,
			p.ID, p.RouteID, p.Order, p.LocationID,
			nullFloat(p.SegmentDistanceKm),
			nullInt(p.SegmentDurationMinutes),
			nullInt(p.StopDurationMinutes),
		); err != nil {
			return fmt.Errorf("seed: insert route %q point %d: %w", p.RouteID, p.Order, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed: commit tx: %w", err)
	}

	return nil
}
