package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"route-segment-service/internal/domain"
	"route-segment-service/internal/platform/obs"
)

// Postgres-backed implementation of the RoutePointRepository port.
type SQLRoutePointRepository struct{ DB *sql.DB }

func NewSQLRoutePointRepository(db *sql.DB) *SQLRoutePointRepository {
	return &SQLRoutePointRepository{DB: db}
}

func (r *SQLRoutePointRepository) RoutesReferencingLocation(ctx context.Context, locationID string) (_ []string, err error) {
	defer obs.Time(ctx, "routePoints.RoutesReferencingLocation")(&err)

	if r.DB == nil {
		return nil, errors.New("route point repository: DB is nil")
	}

	rows, err := r.DB.QueryContext(ctx, `
	SELECT DISTINCT route_id
	FROM route_points
	WHERE location_id = $1
	ORDER BY route_id;
	`, locationID)
	if err != nil {
		return nil, fmt.Errorf("routes referencing location=%q: query: %w", locationID, err)
	}
	defer rows.Close()

	routes := make([]string, 0, 8)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("routes referencing location=%q: scan row: %w", locationID, err)
		}
		routes = append(routes, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("routes referencing location=%q: row iteration: %w", locationID, err)
	}

	return routes, nil
}

func (r *SQLRoutePointRepository) OrderedRoutePoints(ctx context.Context, routeID string) (_ []domain.RoutePoint, err error) {
	defer obs.Time(ctx, "routePoints.OrderedRoutePoints")(&err)

	if r.DB == nil {
		return nil, errors.New("route point repository: DB is nil")
	}

	rows, err := r.DB.QueryContext(ctx, `
	SELECT
		id, route_id, point_order, location_id,
		segment_distance_km, segment_duration_minutes, stop_duration_minutes,
		cumulative_distance_km, average_speed_kmh,
		arrival_offset_minutes, departure_offset_minutes
	FROM route_points
	WHERE route_id = $1
	ORDER BY point_order;
	`, routeID)
	if err != nil {
		return nil, fmt.Errorf("ordered route points route=%q: query: %w", routeID, err)
	}
	defer rows.Close()

	points := make([]domain.RoutePoint, 0, 16)
	for rows.Next() {
		var (
			p                         domain.RoutePoint
			segKm, cumKm, speed       sql.NullFloat64
			segMin, stopMin, arr, dep sql.NullInt64
		)
		if err := rows.Scan(
			&p.ID, &p.RouteID, &p.Order, &p.LocationID,
			&segKm, &segMin, &stopMin,
			&cumKm, &speed,
			&arr, &dep,
		); err != nil {
			return nil, fmt.Errorf("ordered route points route=%q: scan row: %w", routeID, err)
		}
		p.SegmentDistanceKm = floatPtr(segKm)
		p.SegmentDurationMinutes = intPtr(segMin)
		p.StopDurationMinutes = intPtr(stopMin)
		p.CumulativeDistanceKm = floatPtr(cumKm)
		p.AverageSpeedKmH = floatPtr(speed)
		p.ArrivalOffsetMinutes = intPtr(arr)
		p.DepartureOffsetMinutes = intPtr(dep)
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ordered route points route=%q: row iteration: %w", routeID, err)
	}

	return points, nil
}

// A nil duration keeps the stored duration.
func (r *SQLRoutePointRepository) UpdateSegment(
	ctx context.Context,
	pointID string,
	distanceKm float64,
	durationMinutes *int,
) (err error) {
	defer obs.Time(ctx, "routePoints.UpdateSegment")(&err)

	if r.DB == nil {
		return errors.New("route point repository: DB is nil")
	}

	res, err := r.DB.ExecContext(ctx, `
	UPDATE route_points
	SET segment_distance_km = $2,
		segment_duration_minutes = COALESCE($3, segment_duration_minutes)
	WHERE id = $1;
	`, pointID, distanceKm, nullInt(durationMinutes))
	if err != nil {
		return fmt.Errorf("update segment point=%q: %w", pointID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update segment point=%q: %w", pointID, domain.ErrRoutePointNotFound)
	}
	return nil
}

func (r *SQLRoutePointRepository) SaveDerivedMetrics(ctx context.Context, points []domain.RoutePoint) (err error) {
	defer obs.Time(ctx, "routePoints.SaveDerivedMetrics")(&err)

	if r.DB == nil {
		return errors.New("route point repository: DB is nil")
	}

	if len(points) == 0 {
		return nil
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save derived metrics: db begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	UPDATE route_points
	SET cumulative_distance_km = $2,
		average_speed_kmh = $3,
		arrival_offset_minutes = $4,
		departure_offset_minutes = $5
	WHERE id = $1;
	`)
	if err != nil {
		return fmt.Errorf("save derived metrics: db prepare: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx,
			p.ID,
			nullFloat(p.CumulativeDistanceKm),
			nullFloat(p.AverageSpeedKmH),
			nullInt(p.ArrivalOffsetMinutes),
			nullInt(p.DepartureOffsetMinutes),
		); err != nil {
			return fmt.Errorf("save derived metrics point=%q: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save derived metrics commit: %w", err)
	}

	return nil
}
