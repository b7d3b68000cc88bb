package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Initialize the Postgres schema.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.New("init schema: DB is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createLocationsQuery := `
	CREATE TABLE IF NOT EXISTS locations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		lat DOUBLE PRECISION,
		lng DOUBLE PRECISION,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	`

	createRoadSegmentsQuery := `
	CREATE TABLE IF NOT EXISTS road_segments (
		segment_id TEXT PRIMARY KEY,
		from_location_id TEXT NOT NULL REFERENCES locations(id),
		to_location_id TEXT NOT NULL REFERENCES locations(id),
		distance_km DOUBLE PRECISION NOT NULL,
		duration_minutes INTEGER,
		source TEXT NOT NULL CHECK (source IN ('provider', 'fallback')),
		stale BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (from_location_id, to_location_id),
		CHECK (from_location_id <> to_location_id)
	);
	`

	createRoutePointsQuery := `
	CREATE TABLE IF NOT EXISTS route_points (
		id TEXT PRIMARY KEY,
		route_id TEXT NOT NULL,
		point_order INTEGER NOT NULL,
		location_id TEXT NOT NULL REFERENCES locations(id),
		segment_distance_km DOUBLE PRECISION,
		segment_duration_minutes INTEGER,
		stop_duration_minutes INTEGER,
		cumulative_distance_km DOUBLE PRECISION,
		average_speed_kmh DOUBLE PRECISION,
		arrival_offset_minutes INTEGER,
		departure_offset_minutes INTEGER,
		UNIQUE (route_id, point_order)
	);
	`

	createSegmentIndexQuery := `
	CREATE INDEX IF NOT EXISTS idx_road_segments_to_location
	ON road_segments(to_location_id);
	`

	createPointIndexQuery := `
	CREATE INDEX IF NOT EXISTS idx_route_points_location
	ON route_points(location_id);
	`

	statements := []string{
		createLocationsQuery,
		createRoadSegmentsQuery,
		createRoutePointsQuery,
		createSegmentIndexQuery,
		createPointIndexQuery,
	}

	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}

	return nil
}
